package llm

import "errors"

// ErrLLMResponse matches any model response that should have been
// structured but could not be parsed.
var ErrLLMResponse = errors.New("unparseable model response")

// ResponseError carries the raw text of an unparseable response.
type ResponseError struct {
	Prompt PromptType
	Raw    string
	Err    error
}

func (e *ResponseError) Error() string {
	msg := "llm response"
	if e.Prompt != "" {
		msg += " for " + string(e.Prompt)
	}
	msg += ": " + ErrLLMResponse.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ResponseError) Is(target error) bool { return target == ErrLLMResponse }

func (e *ResponseError) Unwrap() error { return e.Err }
