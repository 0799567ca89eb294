package messageservice

import "errors"

// ErrorKind classifies a MessageService failure for upstream status
// mapping.
type ErrorKind int

const (
	KindAuthorization ErrorKind = iota
	KindInvalidContent
	KindContentTooLong
	KindContentTooShort
	KindRateLimit
	KindNotFound
	KindDatabase
	KindBroadcast
)

// Error is the error type every MessageService method returns.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return "messageservice: " + e.Message + ": " + e.Err.Error()
	}
	return "messageservice: " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind ErrorKind, msg string, err error) error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf extracts the ErrorKind from err, if it is an *Error.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
