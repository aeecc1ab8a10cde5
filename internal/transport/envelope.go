package transport

import (
	"github.com/valyala/fastjson"

	"cointrade/internal/normalize"
	"cointrade/models"
)

// Envelope inspects a parsed response body and returns the exchange's
// rejection, or nil when the body signals success. The transport fills in
// the exchange name and HTTP status.
type Envelope func(status int, body *fastjson.Value) *models.ExchangeError

// CodeEnvelope fails when field is present and its value is not one of
// ok. The message is read from the first non-empty path in msgPaths.
func CodeEnvelope(field string, ok []string, msgPaths ...[]string) Envelope {
	return func(status int, v *fastjson.Value) *models.ExchangeError {
		if v.Get(field) == nil {
			return nil
		}
		code := normalize.Str(v, field)
		for _, o := range ok {
			if code == o {
				return nil
			}
		}
		return &models.ExchangeError{Code: code, Message: firstMessage(v, msgPaths)}
	}
}

// FieldEnvelope fails when any of the named fields is present and not
// null or empty. The first present field supplies the message.
func FieldEnvelope(prefix string, fields ...string) Envelope {
	return func(status int, v *fastjson.Value) *models.ExchangeError {
		if v.Type() != fastjson.TypeObject {
			return nil
		}
		for _, f := range fields {
			if msg := normalize.Str(v, f); msg != "" && msg != "false" {
				if nested := v.Get(f); nested != nil && nested.Type() == fastjson.TypeObject {
					if m := normalize.Str(nested, "message"); m != "" {
						msg = m
					}
				}
				return &models.ExchangeError{Message: prefix + msg}
			}
		}
		return nil
	}
}

func firstMessage(v *fastjson.Value, paths [][]string) string {
	for _, p := range paths {
		if m := normalize.Str(v, p...); m != "" {
			return m
		}
	}
	return "request failed"
}
