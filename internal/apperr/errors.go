package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

type Kind int

const (
	KindUnknown Kind = iota
	// KindInvalidCueData marks a malformed cue; the cue is skipped.
	KindInvalidCueData
	// KindNetwork marks an unreachable generator or store.
	KindNetwork
	// KindRateLimited is an explicit throttling signal from a remote party.
	KindRateLimited
	// KindQuotaExceeded marks a persistent write rejected for capacity.
	KindQuotaExceeded
	// KindStaleCompletion marks an async result that arrived after an epoch change.
	KindStaleCompletion
	KindConfig
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindInvalidCueData:
		return "InvalidCueData"
	case KindNetwork:
		return "Network"
	case KindRateLimited:
		return "RateLimited"
	case KindQuotaExceeded:
		return "QuotaExceeded"
	case KindStaleCompletion:
		return "StaleCompletion"
	case KindConfig:
		return "Config"
	case KindValidation:
		return "Validation"
	default:
		return "Unknown"
	}
}

type Error struct {
	Kind    Kind
	Message string
	Context map[string]any
	Cause   error
}

func New(kind Kind, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Context: make(map[string]any),
	}
}

func Wrap(err error, kind Kind, message string) *Error {
	e := New(kind, message)
	e.Cause = err
	return e
}

func (e *Error) Error() string {
	parts := []string{fmt.Sprintf("[%s] %s", e.Kind, e.Message)}

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ctxParts := make([]string, 0, len(keys))
		for _, k := range keys {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		parts = append(parts, "context: "+strings.Join(ctxParts, ", "))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) WithContext(key string, value any) *Error {
	e.Context[key] = value
	return e
}

// Is reports whether any error in err's chain is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var target *Error
	for err != nil {
		if !errors.As(err, &target) {
			return false
		}
		if target.Kind == kind {
			return true
		}
		err = target.Cause
	}
	return false
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var target *Error
	if errors.As(err, &target) {
		return target.Kind
	}
	return KindUnknown
}

func RateLimited(message string) *Error {
	return New(KindRateLimited, message)
}

func QuotaExceeded(message string) *Error {
	return New(KindQuotaExceeded, message)
}

func Stale(message string) *Error {
	return New(KindStaleCompletion, message)
}
