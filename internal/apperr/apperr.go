// Package apperr defines the pipeline's error taxonomy. Each failing stage
// wraps its cause in an *Error whose Kind tells the caller how far the failure
// is allowed to propagate.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by the stage that produced it.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindFetch is a network, timeout or non-success status from an upstream source.
	KindFetch
	// KindParse is a malformed calendar feed.
	KindParse
	// KindRender is an unreachable or timed-out rendering engine.
	KindRender
	// KindPublish is a staging or rename I/O failure.
	KindPublish
)

func (k Kind) String() string {
	switch k {
	case KindFetch:
		return "fetch"
	case KindParse:
		return "parse"
	case KindRender:
		return "render"
	case KindPublish:
		return "publish"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is matching against any *Error of that kind.
var (
	ErrFetch   = &Error{Kind: KindFetch}
	ErrParse   = &Error{Kind: KindParse}
	ErrRender  = &Error{Kind: KindRender}
	ErrPublish = &Error{Kind: KindPublish}
)

// Error is a classified failure.
type Error struct {
	Kind Kind
	// Op names the operation, e.g. "ics.fetch".
	Op string
	// Source is the calendar source id or artifact path involved, if any.
	Source string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.String() + " error"
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Source != "" {
		msg += " (" + e.Source + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports a match when target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func newError(k Kind, op, src string, err error) error {
	return &Error{Kind: k, Op: op, Source: src, Err: err}
}

func Fetch(op, src string, err error) error { return newError(KindFetch, op, src, err) }
func Parse(op, src string, err error) error { return newError(KindParse, op, src, err) }
func Render(op string, err error) error { return newError(KindRender, op, "", err) }
func Publish(op, path string, err error) error { return newError(KindPublish, op, path, err) }

// Fetchf builds a FetchError from a format string.
func Fetchf(op, src, format string, args ...any) error {
	return Fetch(op, src, fmt.Errorf(format, args...))
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
