package shared

import "errors"

// Error taxonomy shared by every module. Module errors wrap one of these with
// %w so transport layers can classify them with errors.Is.
var (
	// ErrInvalidArgument indicates missing or malformed input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates the write collides with existing state.
	ErrConflict = errors.New("conflict")
	// ErrReferenced indicates a delete blocked by a row referencing the target.
	ErrReferenced = errors.New("referenced elsewhere")
)

// CodedError is implemented by errors carrying a machine readable code.
type CodedError interface {
	error
	Code() string
}

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }

// NewError returns an error with message msg classified as kind.
func NewError(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}
