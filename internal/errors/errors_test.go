package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repochain/repochain/internal/core"
	"github.com/repochain/repochain/internal/core/engine"
	"github.com/repochain/repochain/internal/core/transport"
)

func TestFromResolution(t *testing.T) {
	ctx := core.WithRequestID(context.Background(), "req-1")
	coord := core.ModuleCoordinate{Group: "org.example", Name: "lib", Version: "1.0"}

	_, parseErr := core.ParseCoordinate("nope")

	cases := []struct {
		name string
		err  error
		code string
	}{
		{"invalid coordinate", parseErr, CodeInvalidCoordinate},
		{"not found", &engine.NotFoundError{Coordinate: coord, Diagnostics: []engine.RepositoryDiagnostic{{Repository: "central", Reason: "not found"}}}, CodeNotFound},
		{"failed", &engine.ResolutionFailedError{Coordinate: coord, Causes: []error{fmt.Errorf("boom")}}, CodeResolutionFailed},
		{"timeout", fmt.Errorf("resolve: %w", context.DeadlineExceeded), CodeTimeout},
		{"rate limited", &transport.RateLimitedError{Endpoint: "repo.example", Wait: time.Second}, CodeRateLimited},
		{"other", fmt.Errorf("disk on fire"), CodeInternal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			envelope := FromResolution(ctx, tc.err)
			require.NotNil(t, envelope)
			assert.Equal(t, tc.code, envelope.Code)
			assert.Equal(t, "req-1", envelope.CorrelationID)
		})
	}
}

func TestFromResolutionNotFoundCarriesDiagnostics(t *testing.T) {
	coord := core.ModuleCoordinate{Group: "org.example", Name: "lib", Version: "1.0"}
	envelope := FromResolution(context.Background(), &engine.NotFoundError{
		Coordinate:  coord,
		Diagnostics: []engine.RepositoryDiagnostic{{Repository: "central", Reason: "not found in remote tier"}},
	})

	details := ResponseDetails(envelope)
	require.NotNil(t, details)
	assert.Equal(t, "org.example:lib:1.0", details["coordinate"])
	assert.NotNil(t, details["diagnostics"])
}

func TestHTTPStatusFromCode(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatusFromCode(CodeInvalidCoordinate))
	assert.Equal(t, http.StatusNotFound, HTTPStatusFromCode(CodeNotFound))
	assert.Equal(t, http.StatusBadGateway, HTTPStatusFromCode(CodeResolutionFailed))
	assert.Equal(t, http.StatusTooManyRequests, HTTPStatusFromCode(CodeRateLimited))
	assert.Equal(t, http.StatusGatewayTimeout, HTTPStatusFromCode(CodeTimeout))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatusFromCode("SOMETHING_ELSE"))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatusFromEnvelope(nil))
}

func TestRespondWithEnvelope(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/resolve", nil)
	req = req.WithContext(core.WithRequestID(req.Context(), "req-42"))
	rec := httptest.NewRecorder()

	RespondWithEnvelope(rec, req, NewNotFoundError("no such module"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, CodeNotFound, body.Error.Code)
	assert.Equal(t, "no such module", body.Error.Message)
	assert.Equal(t, "req-42", body.Error.RequestID)
}

func TestEnsureEnvelope(t *testing.T) {
	envelope := EnsureEnvelope(nil)
	assert.Equal(t, CodeInternal, envelope.Code)

	original := NewInvalidInputError("bad")
	assert.Same(t, original, EnsureEnvelope(original))

	wrapped := EnsureEnvelope(fmt.Errorf("plain"))
	assert.Equal(t, CodeInternal, wrapped.Code)
	assert.Equal(t, "plain", ResponseDetails(wrapped)["wrapped_error"])
}
