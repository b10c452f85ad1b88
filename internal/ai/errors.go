package ai

import "fmt"

type ErrorKind string

const (
	KindNotConfigured ErrorKind = "not_configured"
	KindTimeout       ErrorKind = "timeout"
	KindTransport     ErrorKind = "transport"
	KindStatus        ErrorKind = "status"
	KindDecode        ErrorKind = "decode"
	KindEmpty         ErrorKind = "empty"
)

// GenerationError describes why a composition attempt produced no text.
type GenerationError struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *GenerationError) Error() string {
	switch {
	case e.Kind == KindStatus:
		return fmt.Sprintf("ai %s: HTTP %d: %v", e.Kind, e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("ai %s: %v", e.Kind, e.Err)
	default:
		return "ai " + string(e.Kind)
	}
}

func (e *GenerationError) Unwrap() error { return e.Err }
