package apierror

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a domain error. Each kind maps to exactly one HTTP status.
type Kind string

const (
	KindNotFound               Kind = "not_found"
	KindInvalidStateTransition Kind = "invalid_state_transition"
	KindValidationFailed       Kind = "validation_failed"
	KindCannotRegress          Kind = "cannot_regress"
	KindPricingUnavailable     Kind = "pricing_unavailable"
)

// Error is the typed error returned by services. Detail is safe to show to clients.
type Error struct {
	Kind   Kind
	Detail string
	Fields map[string]string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so errors.Is(err, ErrCannotRegress) works for any
// CannotRegress error regardless of its detail.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	// Sentinels with a detail only match the same detail (NoValidMinerals).
	return t.Detail == "" || t.Detail == e.Detail
}

// Sentinels for errors.Is checks.
var (
	ErrNotFound               = &Error{Kind: KindNotFound}
	ErrInvalidStateTransition = &Error{Kind: KindInvalidStateTransition}
	ErrValidationFailed       = &Error{Kind: KindValidationFailed}
	ErrCannotRegress          = &Error{Kind: KindCannotRegress}
	ErrPricingUnavailable     = &Error{Kind: KindPricingUnavailable}

	ErrNoValidMinerals = &Error{Kind: KindValidationFailed, Detail: "el lote no contiene minerales validos"}
)

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Detail: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidationFailed, Detail: fmt.Sprintf(format, args...)}
}

func CannotRegress(format string, args ...any) *Error {
	return &Error{Kind: KindCannotRegress, Detail: fmt.Sprintf(format, args...)}
}

// InvalidTransition reports the current status against the expected set.
func InvalidTransition[S ~string](entidad string, actual S, esperados ...S) *Error {
	exp := make([]string, len(esperados))
	for i, e := range esperados {
		exp[i] = string(e)
	}
	return &Error{
		Kind:   KindInvalidStateTransition,
		Detail: fmt.Sprintf("%s en estado '%s', se esperaba: %s", entidad, actual, strings.Join(exp, " | ")),
		Fields: map[string]string{"actual": string(actual), "esperado": strings.Join(exp, ",")},
	}
}

// HTTPStatus maps an error to its response status. Untyped errors are 500.
func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidStateTransition, KindCannotRegress:
		return http.StatusConflict
	case KindValidationFailed:
		return http.StatusUnprocessableEntity
	case KindPricingUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Public returns the message a client may see for err.
func Public(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Detail
	}
	return "Error interno del servidor"
}
