package engine

import "github.com/rhuss/trianswer/pkg/api"

// Rejections returned by Submit and Clear. They are *api.APIError values,
// so transports can map them without knowing the engine.
var (
	ErrEmptyQuery = &api.APIError{
		Type:    api.ErrorTypeInvalidRequest,
		Code:    "empty_query",
		Param:   "query",
		Message: "query must contain non-whitespace text",
	}

	ErrInvalidMode = &api.APIError{
		Type:    api.ErrorTypeInvalidRequest,
		Code:    "invalid_mode",
		Param:   "mode",
		Message: "mode must be multi_view or agent",
	}

	ErrTurnInFlight = api.NewConflictError("turn_in_flight",
		"a turn is still generating in this conversation")

	ErrClosed = api.NewServerError("engine is shutting down")
)
