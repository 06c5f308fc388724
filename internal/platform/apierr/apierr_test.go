package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aidanjnn/sketchy/internal/generation/artifact"
	"github.com/aidanjnn/sketchy/internal/generation/canvas"
	"github.com/aidanjnn/sketchy/internal/generation/upstream"
	"github.com/aidanjnn/sketchy/internal/projects/domain"
	"github.com/aidanjnn/sketchy/internal/session"
)

func TestFrom(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		reason string
	}{
		{"not found", fmt.Errorf("get: %w", domain.ErrNotFound), http.StatusNotFound, "not_found"},
		{"empty canvas", canvas.ErrEmptyCanvas, http.StatusUnprocessableEntity, "empty_canvas"},
		{"busy", upstream.ErrBusy, http.StatusConflict, "busy"},
		{"session busy", session.ErrGenerationInProgress, http.StatusConflict, "busy"},
		{"read only", session.ErrReadOnlyPreview, http.StatusConflict, "read_only_preview"},
		{"timeout", &upstream.GenerationError{Reason: upstream.ReasonTimeout, Err: upstream.ErrTimeout}, http.StatusGatewayTimeout, "timeout"},
		{"truncated", &upstream.GenerationError{Reason: upstream.ReasonTruncated}, http.StatusBadGateway, "truncated"},
		{"persistence", &domain.PersistenceError{Op: "append version", Err: errors.New("down")}, http.StatusInternalServerError, "persistence"},
		{"invalid name", domain.ErrInvalidName, http.StatusBadRequest, "invalid_name"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := From(tt.err)
			assert.Equal(t, tt.status, got.Status)
			assert.Equal(t, tt.reason, got.Reason)
			assert.NotEmpty(t, got.Message)
		})
	}
}

func TestFrom_ParseErrorCarriesRaw(t *testing.T) {
	got := From(&artifact.ParseError{Raw: "not json", Reason: "no object"})
	assert.Equal(t, http.StatusBadGateway, got.Status)
	assert.Equal(t, "not json", got.Raw)
}

func TestFrom_Nil(t *testing.T) {
	assert.Nil(t, From(nil))
}
