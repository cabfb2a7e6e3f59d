package types

import (
	"errors"
	"fmt"
)

// Kind is a stable machine-readable error tag. Handlers map kinds to HTTP
// status codes; services compare kinds, never message text.
type Kind string

const (
	KindNotFound           Kind = "not-found"
	KindPermissionDenied   Kind = "permission-denied"
	KindConflict           Kind = "conflict"
	KindAlreadyFrozen      Kind = "already-frozen"
	KindDuplicate          Kind = "duplicate"
	KindNothingToFreeze    Kind = "nothing-to-freeze"
	KindIncompleteRequired Kind = "incomplete-required"
	KindValidation         Kind = "validation"
	KindIntegrity          Kind = "integrity"
	KindFrozenSample       Kind = "frozen-sample"
	KindUpstream           Kind = "upstream"
)

// Error carries a kind tag plus human-readable detail.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// E builds an Error with fmt.Sprintf semantics.
func E(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind of err, or "" when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var ir *IncompleteRequiredError
	if errors.As(err, &ir) {
		return KindIncompleteRequired
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IncompleteRequiredError reports a freeze attempt with required questions
// still unanswered. Results holds the offending question paths.
type IncompleteRequiredError struct {
	NbRequiredAnswers   int      `json:"nb_required_answers"`
	NbRequiredQuestions int      `json:"nb_required_questions"`
	Results             []string `json:"results"`
}

func (e *IncompleteRequiredError) Error() string {
	return fmt.Sprintf("incomplete-required: %d of %d required questions answered",
		e.NbRequiredAnswers, e.NbRequiredQuestions)
}

// CustomError is the transport-level error shape used by the Fiber layer.
type CustomError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

func (e *CustomError) Error() string {
	return fmt.Sprintf("%d: %s [type: %s]", e.Code, e.Message, e.Type)
}
