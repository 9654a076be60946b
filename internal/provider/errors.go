package provider

import "fmt"

// GenerationError is the single failure surface of the router: any
// transport error, non-2xx response, or malformed payload ends up
// here. Remediation, when set, tells the user how to get a backend
// running.
type GenerationError struct {
	Provider    string
	Reason      string
	Remediation string
	Err         error
}

func (e *GenerationError) Error() string {
	msg := e.Reason
	if e.Provider != "" {
		msg = fmt.Sprintf("%s: %s", e.Provider, msg)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Remediation != "" {
		msg += "\n" + e.Remediation
	}
	return "generation failed: " + msg
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

func generationErr(providerName, reason string, err error) *GenerationError {
	return &GenerationError{Provider: providerName, Reason: reason, Err: err}
}
