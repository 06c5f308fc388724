// Package apierr maps domain errors onto HTTP statuses and the error body
// shared by the REST handlers and the session socket.
package apierr

import (
	"context"
	"errors"
	"net/http"

	"github.com/aidanjnn/sketchy/internal/generation/artifact"
	"github.com/aidanjnn/sketchy/internal/generation/canvas"
	genservice "github.com/aidanjnn/sketchy/internal/generation/service"
	"github.com/aidanjnn/sketchy/internal/generation/upstream"
	"github.com/aidanjnn/sketchy/internal/projects/domain"
	"github.com/aidanjnn/sketchy/internal/session"
)

type Error struct {
	Status  int    `json:"code"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
	Raw     string `json:"raw,omitempty"`
}

func From(err error) *Error {
	var (
		ge  *upstream.GenerationError
		pe  *artifact.ParseError
		per *domain.PersistenceError
	)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrNotFound):
		return &Error{Status: http.StatusNotFound, Reason: "not_found", Message: "not found"}
	case errors.Is(err, domain.ErrInvalidName):
		return &Error{Status: http.StatusBadRequest, Reason: "invalid_name", Message: err.Error()}
	case errors.Is(err, domain.ErrInvalidSnapshot), errors.Is(err, canvas.ErrInvalidSnapshot):
		return &Error{Status: http.StatusBadRequest, Reason: "invalid_snapshot", Message: err.Error()}
	case errors.Is(err, canvas.ErrEmptyCanvas):
		return &Error{Status: http.StatusUnprocessableEntity, Reason: "empty_canvas", Message: genservice.Describe(err)}
	case errors.Is(err, upstream.ErrBusy), errors.Is(err, session.ErrGenerationInProgress):
		return &Error{Status: http.StatusConflict, Reason: "busy", Message: genservice.Describe(upstream.ErrBusy)}
	case errors.Is(err, session.ErrReadOnlyPreview):
		return &Error{Status: http.StatusConflict, Reason: "read_only_preview", Message: "exit the preview or restore it before editing"}
	case errors.Is(err, session.ErrNotPreviewing):
		return &Error{Status: http.StatusConflict, Reason: "not_previewing", Message: err.Error()}
	case errors.Is(err, session.ErrRestoreInProgress):
		return &Error{Status: http.StatusConflict, Reason: "restoring", Message: err.Error()}
	case errors.Is(err, session.ErrStaleGeneration):
		return &Error{Status: http.StatusConflict, Reason: "stale", Message: err.Error()}
	case errors.Is(err, session.ErrNotLoaded):
		return &Error{Status: http.StatusConflict, Reason: "not_loaded", Message: err.Error()}
	case errors.As(err, &ge):
		status := http.StatusBadGateway
		if ge.Reason == upstream.ReasonTimeout {
			status = http.StatusGatewayTimeout
		}
		return &Error{Status: status, Reason: string(ge.Reason), Message: genservice.Describe(err)}
	case errors.As(err, &pe):
		return &Error{Status: http.StatusBadGateway, Reason: "parse", Message: genservice.Describe(err), Raw: pe.Raw}
	case errors.As(err, &per):
		return &Error{Status: http.StatusInternalServerError, Reason: "persistence", Message: genservice.Describe(err)}
	case errors.Is(err, context.Canceled):
		return &Error{Status: http.StatusRequestTimeout, Reason: "canceled", Message: "request canceled"}
	default:
		return &Error{Status: http.StatusInternalServerError, Reason: "internal", Message: "internal error"}
	}
}
