package provider

// Request is the backend-facing request for one style response.
type Request struct {
	Model             string
	SystemInstruction string
	Query             string

	Temperature *float64
	MaxTokens   *int
}

// Response carries the candidate texts returned by the backend, in order.
// A well-formed response may have no candidates.
type Response struct {
	Model      string
	Candidates []string
	Usage      *Usage
}

// Usage reports token counts when the backend provides them.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// FirstText returns the first non-empty candidate text.
func (r *Response) FirstText() (string, bool) {
	if r == nil || len(r.Candidates) == 0 || r.Candidates[0] == "" {
		return "", false
	}
	return r.Candidates[0], true
}
