package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// readCoordinates reads one coordinate per line. Blank lines and lines
// starting with # are skipped. "-" reads stdin.
func readCoordinates(path string) ([]string, error) {
	var reader io.Reader
	if strings.TrimSpace(path) == "-" {
		reader = os.Stdin
	} else {
		// #nosec G304 -- path is an explicit CLI argument
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer file.Close() // nolint:errcheck // read-only file
		reader = file
	}
	return scanCoordinates(reader)
}

func scanCoordinates(r io.Reader) ([]string, error) {
	coords := make([]string, 0)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		coords = append(coords, raw)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(coords) == 0 {
		return nil, errors.New("no coordinates found")
	}
	return coords, nil
}

// collectCoordinates merges positional coordinates with an optional file.
func collectCoordinates(positional []string, file string) ([]string, error) {
	coords := make([]string, 0, len(positional))
	for _, raw := range positional {
		if trimmed := strings.TrimSpace(raw); trimmed != "" {
			coords = append(coords, trimmed)
		}
	}
	if strings.TrimSpace(file) != "" {
		fromFile, err := readCoordinates(file)
		if err != nil {
			return nil, fmt.Errorf("read coordinates: %w", err)
		}
		coords = append(coords, fromFile...)
	}
	if len(coords) == 0 {
		return nil, errors.New("at least one coordinate is required (group:name:version)")
	}
	return coords, nil
}
