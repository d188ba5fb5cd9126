package api

import "fmt"

// ValidateResponseTransition checks whether a style response may move from
// one status to another. Pending is the only non-terminal status, and a
// resolved value never changes again.
func ValidateResponseTransition(from, to ResponseStatus) *APIError {
	valid := map[ResponseStatus][]ResponseStatus{
		ResponseStatusPending: {ResponseStatusText, ResponseStatusError},
		ResponseStatusText:    {}, // terminal
		ResponseStatusError:   {}, // terminal
	}

	allowed, exists := valid[from]
	if !exists {
		return NewInvalidRequestError("status",
			fmt.Sprintf("invalid transition from %s to %s", from, to))
	}

	for _, s := range allowed {
		if s == to {
			return nil
		}
	}

	return NewInvalidRequestError("status",
		fmt.Sprintf("invalid transition from %s to %s", from, to))
}
