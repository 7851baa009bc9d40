package tools

import "github.com/nextlevelbuilder/goclaw/internal/providers"

// Result is the unified return type from tool execution. Tools never throw
// into the agent loop (§4.6): failures are reported as an IsError Result
// whose ForLLM is prefixed "Error: ".
type Result struct {
	ForLLM  string `json:"for_llm"`
	ForUser string `json:"for_user,omitempty"`
	Silent  bool   `json:"silent"`
	IsError bool   `json:"is_error"`
	Err     error  `json:"-"`

	// Usage is set by tools that make their own internal LLM calls, so the
	// session's accumulated token counts stay accurate.
	Usage *providers.Usage `json:"-"`
}

func NewResult(forLLM string) *Result {
	return &Result{ForLLM: forLLM}
}

func SilentResult(forLLM string) *Result {
	return &Result{ForLLM: forLLM, Silent: true}
}

func ErrorResult(message string) *Result {
	return &Result{ForLLM: "Error: " + message, IsError: true}
}

func UserResult(content string) *Result {
	return &Result{ForLLM: content, ForUser: content}
}

func (r *Result) WithError(err error) *Result {
	r.Err = err
	return r
}
