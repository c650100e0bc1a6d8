package apierr

import "fmt"

// Kind classifies an error for retry policy and HTTP status mapping.
type Kind string

const (
	KindConfig      Kind = "config"
	KindFetch       Kind = "fetch"
	KindExtraction  Kind = "extraction"
	KindPersistence Kind = "persistence"
	KindValidation  Kind = "validation"
	KindTimeout     Kind = "timeout"
	KindNotFound    Kind = "not_found"
)

type Error struct {
	Kind   Kind
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Kind != "" {
		return string(e.Kind)
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Status: defaultStatus(kind), Err: err}
}

func Newf(kind Kind, format string, args ...interface{}) *Error {
	return New(kind, fmt.Errorf(format, args...))
}

func defaultStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return 400
	case KindNotFound:
		return 404
	case KindConfig:
		return 500
	case KindTimeout:
		return 504
	case KindFetch, KindExtraction:
		return 502
	default:
		return 500
	}
}

// KindOf walks the error chain and reports the first Kind it finds.
func KindOf(err error) Kind {
	for err != nil {
		if ae, ok := err.(*Error); ok {
			return ae.Kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}

// Retryable reports whether the workflow item loop should attempt again.
// Fetch, extraction and timeout failures may recover on retry; validation,
// persistence and config failures will not.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindFetch, KindExtraction, KindTimeout:
		return true
	case "":
		// Unclassified errors are treated as transient.
		return true
	default:
		return false
	}
}

// StatusOf maps an error chain to an HTTP status, defaulting to 500.
func StatusOf(err error) int {
	for err != nil {
		if ae, ok := err.(*Error); ok && ae.Status != 0 {
			return ae.Status
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return 500
}
