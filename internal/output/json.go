package output

import (
	"encoding/json"
)

// JSONFormatter renders results as JSON.
type JSONFormatter struct {
	Indent bool
}

type jsonReport struct {
	Results []*Result `json:"results"`
	Summary Summary   `json:"summary"`
}

// FormatResults renders results and their summary as one JSON document.
func (f *JSONFormatter) FormatResults(results []*Result) (string, error) {
	report := jsonReport{Results: results, Summary: Summarize(results)}
	if report.Results == nil {
		report.Results = []*Result{}
	}

	var (
		data []byte
		err  error
	)

	if f.Indent {
		data, err = json.MarshalIndent(report, "", "  ")
	} else {
		data, err = json.Marshal(report)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}
