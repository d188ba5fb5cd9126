package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// MaxQueryLength bounds the size of a single query in bytes.
const MaxQueryLength = 32 * 1024

// SubmitRequest is the body of a turn submission.
type SubmitRequest struct {
	Query string `json:"query"`
	Mode  Mode   `json:"mode"`
}

// Validate checks the request shape. Whitespace-only queries pass here and
// are rejected by the engine, which owns that rule.
func (r *SubmitRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Query, validation.Required, validation.Length(1, MaxQueryLength)),
		validation.Field(&r.Mode, validation.In(ModeMultiView, ModeAgent)),
	)
}

// ActiveTabRequest is the body of a tab selection.
type ActiveTabRequest struct {
	Tab StyleKey `json:"tab"`
}

// Validate checks the request shape.
func (r *ActiveTabRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Tab, validation.Required,
			validation.In(StyleConcise, StyleDetailed, StyleCreative, StyleAgent)),
	)
}

// ThemeRequest is the body of a theme update.
type ThemeRequest struct {
	Theme Theme `json:"theme"`
}

// Validate checks the request shape.
func (r *ThemeRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Theme, validation.Required, validation.In(ThemeDark, ThemeLight)),
	)
}

// ValidationError converts an ozzo validation result into an APIError naming
// the first offending field.
func ValidationError(err error) *APIError {
	if err == nil {
		return nil
	}
	if errs, ok := err.(validation.Errors); ok {
		for _, field := range []string{"query", "mode", "tab", "theme"} {
			if fe, ok := errs[field]; ok {
				return NewInvalidRequestError(field, field+" "+fe.Error())
			}
		}
	}
	return NewInvalidRequestError("", err.Error())
}
