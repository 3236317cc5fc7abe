// Package gwerrors defines the gateway's error taxonomy (spec §7): a typed
// enum with a retryable discriminator plus a single sanitizing wrapper, in
// place of the vendor SDKs' individual exception hierarchies.
package gwerrors

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// Kind enumerates the gateway's error taxonomy. Kind is a classification,
// not a concrete type: every Kind is carried by the single *Error type.
type Kind string

const (
	KindConfig          Kind = "config_error"
	KindProviderAuth    Kind = "provider_auth_error"
	KindRateLimit       Kind = "rate_limit_error"
	KindContextOverflow Kind = "context_overflow"
	KindBudgetExceeded  Kind = "budget_exceeded"
	KindParse           Kind = "parse_error"
	KindToolValidation  Kind = "tool_validation_error"
	KindToolExecution   Kind = "tool_execution_error"
	KindSSRFBlocked     Kind = "ssrf_blocked"
	KindCircuitOpen     Kind = "circuit_open"
	KindUnknown         Kind = "unknown"
)

// Retryable reports whether a transient retry of the same provider/endpoint
// might succeed. ShouldFailover reports whether the router should instead
// try the next preferred provider for the tier.
func (k Kind) Retryable() bool {
	switch k {
	case KindRateLimit, KindCircuitOpen:
		return true
	default:
		return false
	}
}

func (k Kind) ShouldFailover() bool {
	switch k {
	case KindProviderAuth, KindRateLimit, KindCircuitOpen:
		return true
	default:
		return false
	}
}

// Error is the single structured error type for the gateway. Every error
// that crosses a provider, router, or tool boundary is wrapped into one of
// these so callers can switch on Kind without parsing message text.
type Error struct {
	Kind     Kind
	Provider string
	Model    string
	Status   int
	Code     string
	Message  string
	Host     string // set for SSRFBlocked/DomainBlocked
	Cause    error
}

func (e *Error) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s]", e.Kind))
	if e.Provider != "" {
		parts = append(parts, e.Provider)
	}
	if e.Model != "" {
		parts = append(parts, "model="+e.Model)
	}
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.Status))
	}
	if e.Host != "" {
		parts = append(parts, "host="+e.Host)
	}
	if e.Message != "" {
		parts = append(parts, Sanitize(e.Message))
	} else if e.Cause != nil {
		parts = append(parts, Sanitize(e.Cause.Error()))
	}
	return strings.Join(parts, " ")
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) Retryable() bool     { return e.Kind.Retryable() }
func (e *Error) ShouldFailover() bool { return e.Kind.ShouldFailover() }

// New wraps cause with a classified Kind, deriving the Kind from the error
// text when cause is not already a gwerrors.Error.
func New(provider, model string, cause error) *Error {
	e := &Error{Provider: provider, Model: model, Cause: cause, Kind: KindUnknown}
	if cause != nil {
		e.Message = cause.Error()
		e.Kind = Classify(cause)
	}
	return e
}

func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	if k := classifyStatusCode(status); k != KindUnknown {
		e.Kind = k
	}
	return e
}

func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

func (e *Error) WithHost(host string) *Error {
	e.Host = host
	return e
}

func (e *Error) WithKind(k Kind) *Error {
	e.Kind = k
	return e
}

// HTTPStatus maps the error to a response status for the gateway's HTTP
// surface: an explicit upstream Status is preserved where it is itself a
// client/server error, otherwise the Kind picks a representative status.
func (e *Error) HTTPStatus() int {
	if e.Status >= 400 {
		return e.Status
	}
	switch e.Kind {
	case KindProviderAuth:
		return http.StatusUnauthorized
	case KindRateLimit, KindCircuitOpen:
		return http.StatusTooManyRequests
	case KindBudgetExceeded:
		return http.StatusPaymentRequired
	case KindContextOverflow, KindParse, KindToolValidation, KindConfig:
		return http.StatusBadRequest
	case KindSSRFBlocked:
		return http.StatusForbidden
	case KindToolExecution:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Classify inspects an error's text and returns the best-guess Kind. Vendor
// errors that already carry an HTTP status should prefer WithStatus instead.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "rate limit") || strings.Contains(s, "429") || strings.Contains(s, "too many requests"):
		return KindRateLimit
	case strings.Contains(s, "unauthorized") || strings.Contains(s, "invalid api key") || strings.Contains(s, "401") || strings.Contains(s, "403"):
		return KindProviderAuth
	case strings.Contains(s, "circuit") && strings.Contains(s, "open"):
		return KindCircuitOpen
	case strings.Contains(s, "ssrf") || strings.Contains(s, "blocked hostname") || strings.Contains(s, "private ip") || strings.Contains(s, "metadata"):
		return KindSSRFBlocked
	case strings.Contains(s, "budget") && strings.Contains(s, "exceed"):
		return KindBudgetExceeded
	case strings.Contains(s, "context window") || strings.Contains(s, "insufficient context"):
		return KindContextOverflow
	case strings.Contains(s, "config"):
		return KindConfig
	default:
		return KindUnknown
	}
}

func classifyStatusCode(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindProviderAuth
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status >= 500:
		return KindRateLimit // treated as a retryable transient failure, per spec §4.1 retries
	default:
		return KindUnknown
	}
}

// As extracts a *Error from an error chain.
func As(err error) (*Error, bool) {
	var typed *Error
	if errors.As(err, &typed) {
		return typed, true
	}
	return nil, false
}

func IsRetryable(err error) bool {
	if typed, ok := As(err); ok {
		return typed.Retryable()
	}
	return Classify(err).Retryable()
}

func ShouldFailover(err error) bool {
	if typed, ok := As(err); ok {
		return typed.ShouldFailover()
	}
	return Classify(err).ShouldFailover()
}

var (
	tokenPattern = regexp.MustCompile(`\b[A-Za-z0-9_\-]{32,}\b`)
	urlPattern   = regexp.MustCompile(`https?://\S+`)
)

// Sanitize redacts URLs and long alphanumeric tokens (API keys, bearer
// tokens) from an error message before it is allowed to cross the HTTP
// surface, per spec §7's propagation policy and §4.7's shared security
// invariants for OpenAPI/MCP callers.
func Sanitize(msg string) string {
	msg = urlPattern.ReplaceAllStringFunc(msg, func(u string) string {
		if idx := strings.Index(u[8:], "/"); idx >= 0 {
			return u[:8+idx] + "/<redacted>"
		}
		return u
	})
	msg = tokenPattern.ReplaceAllString(msg, "<redacted>")
	return msg
}
