package models

import (
	"errors"
	"fmt"
)

// Kind classifies a model failure so the pipeline can decide whether to retry.
type Kind string

const (
	KindInvalidInput Kind = "invalid_input"
	KindUnavailable  Kind = "unavailable"
	KindTimeout      Kind = "timeout"
)

var (
	ErrInvalidInput = errors.New("model rejected input")
	ErrUnavailable  = errors.New("model unavailable")
	ErrTimeout      = errors.New("model call timed out")
)

type Failure struct {
	Kind Kind
	Err  error
}

func (f *Failure) Error() string {
	if f == nil {
		return "model failure"
	}
	if f.Err == nil {
		return string(f.Kind)
	}
	return fmt.Sprintf("%s: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Is lets errors.Is(err, ErrTimeout) and friends match on the kind.
func (f *Failure) Is(target error) bool {
	if f == nil {
		return false
	}
	switch target {
	case ErrInvalidInput:
		return f.Kind == KindInvalidInput
	case ErrUnavailable:
		return f.Kind == KindUnavailable
	case ErrTimeout:
		return f.Kind == KindTimeout
	}
	return false
}

func InvalidInput(format string, args ...any) error {
	return &Failure{Kind: KindInvalidInput, Err: fmt.Errorf(format, args...)}
}

func Unavailable(err error) error {
	return &Failure{Kind: KindUnavailable, Err: err}
}

func Timeout(err error) error {
	return &Failure{Kind: KindTimeout, Err: err}
}

// KindOf reports the failure kind of err. Errors that carry no kind are
// treated as unavailable.
func KindOf(err error) Kind {
	var f *Failure
	if errors.As(err, &f) && f != nil {
		return f.Kind
	}
	return KindUnavailable
}

// Retryable reports whether another attempt could succeed.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	k := KindOf(err)
	return k == KindUnavailable || k == KindTimeout
}
