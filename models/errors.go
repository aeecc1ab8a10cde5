package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidSymbol  = errors.New("invalid symbol")
	ErrCredential     = errors.New("missing credentials")
	ErrExchange       = errors.New("exchange error")
	ErrNetwork        = errors.New("network request failed")
	ErrNotImplemented = errors.New("not implemented")
)

// InvalidSymbolError is returned when a symbol matches none of the
// canonical patterns.
type InvalidSymbolError struct {
	Input string
}

func (e *InvalidSymbolError) Error() string {
	return fmt.Sprintf("invalid symbol input %q", e.Input)
}

func (e *InvalidSymbolError) Is(target error) bool { return target == ErrInvalidSymbol }

// CredentialError is raised before any network call when required
// credential fields are empty.
type CredentialError struct {
	Exchange string
	Missing  []string
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("%s: %s required", e.Exchange, strings.Join(e.Missing, " and "))
}

func (e *CredentialError) Is(target error) bool { return target == ErrCredential }

// ExchangeError carries the exchange's own rejection message verbatim.
type ExchangeError struct {
	Exchange string
	Code     string
	Message  string
	Status   int
}

func (e *ExchangeError) Error() string {
	if e.Exchange == "" {
		return e.Message
	}
	return e.Exchange + ": " + e.Message
}

func (e *ExchangeError) Is(target error) bool { return target == ErrExchange }

// NetworkRequestError is a transport level failure. Retryable reports
// whether the transport may issue the request again.
type NetworkRequestError struct {
	Exchange  string
	Status    int
	Retryable bool
	Err       error
}

func (e *NetworkRequestError) Error() string {
	var b strings.Builder
	b.WriteString(e.Exchange)
	b.WriteString(": network request failed")
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *NetworkRequestError) Unwrap() error { return e.Err }

func (e *NetworkRequestError) Is(target error) bool { return target == ErrNetwork }

// NotImplementedError marks an operation a driver does not support.
type NotImplementedError struct {
	Exchange  string
	Operation string
}

func (e *NotImplementedError) Error() string {
	return fmt.Sprintf("%s: %s not implemented", e.Exchange, e.Operation)
}

func (e *NotImplementedError) Is(target error) bool { return target == ErrNotImplemented }

// RequireKeys validates that every named field of keys is non-empty.
// Field names are apiKey, secret, password and uid.
func RequireKeys(exchange string, keys ApiKeys, fields ...string) error {
	var missing []string
	for _, f := range fields {
		var v string
		switch f {
		case "apiKey":
			v = keys.APIKey
		case "secret":
			v = keys.Secret
		case "password":
			v = keys.Password
		case "uid":
			v = keys.UID
		}
		if strings.TrimSpace(v) == "" {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return &CredentialError{Exchange: exchange, Missing: missing}
	}
	return nil
}

// IsRetryable reports whether err is a transient transport failure.
func IsRetryable(err error) bool {
	var ne *NetworkRequestError
	return errors.As(err, &ne) && ne.Retryable
}

// Kind names the error class for callers that branch on it.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidSymbol):
		return "invalid_symbol"
	case errors.Is(err, ErrCredential):
		return "credential"
	case errors.Is(err, ErrExchange):
		return "exchange"
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrNotImplemented):
		return "not_implemented"
	}
	return "unknown"
}
