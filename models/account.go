package models

import (
	"encoding/json"
	"sort"
	"strconv"
)

// ApiKeys is supplied per call and never stored by the adapter.
type ApiKeys struct {
	APIKey   string `json:"apiKey"`
	Secret   string `json:"secret"`
	Password string `json:"password,omitempty"`
	UID      string `json:"uid,omitempty"`
}

// Fingerprint identifies the credential in session caches.
func (k ApiKeys) Fingerprint() string { return k.APIKey }

// Params carries exchange specific extra parameters.
type Params map[string]interface{}

// Keys returns the parameter names in sorted order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String returns the value under key rendered as a string, or "".
func (p Params) String(key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	return FormatValue(v)
}

// Without returns a copy of p with the named keys removed.
func (p Params) Without(keys ...string) Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

// FormatValue renders a parameter value the way query strings expect it.
func FormatValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

type BalanceEntry struct {
	Free  float64 `json:"free"`
	Used  float64 `json:"used"`
	Total float64 `json:"total"`
}

type Balance struct {
	Info      json.RawMessage         `json:"info,omitempty"`
	Timestamp int64                   `json:"timestamp,omitempty"`
	Assets    map[string]BalanceEntry `json:"assets,omitempty"`
}

// CustomRequest is the raw escape hatch. Path may be relative to the
// exchange base URL or absolute.
type CustomRequest struct {
	Path   string `json:"path"`
	Method string `json:"method"`
	Data   Params `json:"data,omitempty"`
	Extra  Params `json:"params,omitempty"`
}

type WithdrawRequest struct {
	Coin    string  `json:"coin"`
	Amount  float64 `json:"amount"`
	Address string  `json:"address"`
	Tag     string  `json:"tag,omitempty"`
	Network string  `json:"network,omitempty"`
	Extra   Params  `json:"params,omitempty"`
}
