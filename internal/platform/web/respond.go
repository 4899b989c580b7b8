package web

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coincart/settlement-engine/internal/platform/db"
	"github.com/coincart/settlement-engine/internal/platform/fault"

	"github.com/pkg/errors"
	"go.opencensus.io/trace"
)

// ErrorResponse is the body returned for any failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// Respond sends JSON to the client. If data is nil only the status code is
// written.
func Respond(ctx context.Context, w http.ResponseWriter, data interface{}, statusCode int) {
	ctx, span := trace.StartSpan(ctx, "internal.platform.web.Respond")
	defer span.End()

	// Set the status code for the request logger middleware.
	if v, ok := ctx.Value(KeyValues).(*Values); ok {
		v.StatusCode = statusCode
	}

	if data == nil || statusCode == http.StatusNoContent {
		w.WriteHeader(statusCode)
		return
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(jsonData)
}

// RespondError sends an error response with an explicit status code.
func RespondError(ctx context.Context, w http.ResponseWriter, err error, statusCode int) {
	Respond(ctx, w, ErrorResponse{Error: err.Error()}, statusCode)
}

// Error sends an error response with a status code derived from the error's
// kind.
func Error(ctx context.Context, w http.ResponseWriter, err error) {
	cause := errors.Cause(err)

	if cause == db.ErrNotFound {
		Respond(ctx, w, ErrorResponse{Error: err.Error(), Kind: fault.KindNotFound.String()},
			http.StatusNotFound)
		return
	}

	kind := fault.KindOf(err)
	Respond(ctx, w, ErrorResponse{Error: cause.Error(), Kind: kind.String()}, statusCodeForKind(kind))
}

func statusCodeForKind(kind fault.Kind) int {
	switch kind {
	case fault.KindValidation:
		return http.StatusBadRequest
	case fault.KindNotFound:
		return http.StatusNotFound
	case fault.KindForbidden:
		return http.StatusForbidden
	case fault.KindConflict:
		return http.StatusConflict
	case fault.KindState:
		return http.StatusConflict
	case fault.KindExternal:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
