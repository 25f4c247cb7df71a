package storagelru

// Code classifies the errors reported by the cache engine.
type Code int

const (
	CodeDisabled       Code = 1
	CodeDeserialize    Code = 2
	CodeSerialize      Code = 3
	CodeCacheControl   Code = 4
	CodeInvalidKey     Code = 5
	CodeNotEnoughSpace Code = 6
	CodeRevalidate     Code = 7
)

var codeMessages = map[Code]string{
	CodeDisabled:       "disabled",
	CodeDeserialize:    "cannot deserialize",
	CodeSerialize:      "cannot serialize",
	CodeCacheControl:   "bad cacheControl",
	CodeInvalidKey:     "invalid key",
	CodeNotEnoughSpace: "not enough space",
	CodeRevalidate:     "revalidate failed",
}

// String returns the canonical message for the code.
func (c Code) String() string {
	if msg, ok := codeMessages[c]; ok {
		return msg
	}
	return "unknown"
}

// Error is the error type returned by the cache engine. Two errors are
// considered equal by errors.Is when their codes match, so callers can
// compare against the sentinels below.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Sentinels for use with errors.Is.
var (
	ErrDisabled       = &Error{Code: CodeDisabled, Message: CodeDisabled.String()}
	ErrDeserialize    = &Error{Code: CodeDeserialize, Message: CodeDeserialize.String()}
	ErrSerialize      = &Error{Code: CodeSerialize, Message: CodeSerialize.String()}
	ErrCacheControl   = &Error{Code: CodeCacheControl, Message: CodeCacheControl.String()}
	ErrInvalidKey     = &Error{Code: CodeInvalidKey, Message: CodeInvalidKey.String()}
	ErrNotEnoughSpace = &Error{Code: CodeNotEnoughSpace, Message: CodeNotEnoughSpace.String()}
	ErrRevalidate     = &Error{Code: CodeRevalidate, Message: CodeRevalidate.String()}
)

// NewError returns an error with the canonical message for code. A non-empty
// detail is appended as "message: detail".
func NewError(code Code, detail string, cause error) *Error {
	msg := code.String()
	if detail != "" {
		msg += ": " + detail
	}
	return &Error{Code: code, Message: msg, Err: cause}
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}
