// Package signer implements the per-exchange request authentication
// schemes. Every signer mutates a Request in place: it may add query
// parameters and always adds headers.
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"cointrade/models"
)

// Signer authenticates a request with the given credentials. Missing
// credential fields produce a *models.CredentialError before anything is
// computed.
type Signer interface {
	Sign(req *Request, keys models.ApiKeys) error
}

// Clock returns the current time. Signers default to time.Now.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}

// Request is the exchange-agnostic description of an HTTP call.
type Request struct {
	Method string
	// Path is relative to the client's base URL or an absolute URL.
	Path   string
	Query  Params
	Body   []byte
	Header http.Header
	// Instruction names the action for schemes that sign it (Backpack).
	Instruction string
}

// NewRequest returns a request with an initialized header map.
func NewRequest(method, path string) *Request {
	return &Request{Method: strings.ToUpper(method), Path: path, Header: http.Header{}}
}

// Clone returns a deep copy, so a retry can be signed from scratch.
func (r *Request) Clone() *Request {
	out := *r
	out.Header = r.Header.Clone()
	if out.Header == nil {
		out.Header = http.Header{}
	}
	out.Query = Params{
		keys: append([]string(nil), r.Query.keys...),
		vals: append([]string(nil), r.Query.vals...),
	}
	if r.Body != nil {
		out.Body = append([]byte(nil), r.Body...)
	}
	return &out
}

// SetHeader sets a header, allocating the map when needed.
func (r *Request) SetHeader(k, v string) {
	if r.Header == nil {
		r.Header = http.Header{}
	}
	r.Header.Set(k, v)
}

// SetJSON marshals v as the request body.
func (r *Request) SetJSON(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	r.Body = b
	r.SetHeader("Content-Type", "application/json")
	return nil
}

// URL returns the path with the encoded query appended.
func (r *Request) URL() string {
	if r.Query.Len() == 0 {
		return r.Path
	}
	sep := "?"
	if strings.Contains(r.Path, "?") {
		sep = "&"
	}
	return r.Path + sep + r.Query.Encode()
}

// RequestPath is the path component used in signature payloads. The host
// of absolute URLs is stripped.
func (r *Request) RequestPath() string {
	p := r.Path
	if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
		if u, err := url.Parse(p); err == nil {
			p = u.EscapedPath()
			if u.RawQuery != "" {
				p += "?" + u.RawQuery
			}
		}
	}
	return p
}

// Params is an insertion-ordered list of query parameters.
type Params struct {
	keys []string
	vals []string
}

// Add appends key=value, rendering value with models.FormatValue.
func (p *Params) Add(key string, value interface{}) *Params {
	p.keys = append(p.keys, key)
	p.vals = append(p.vals, models.FormatValue(value))
	return p
}

// AddIf appends key=value only when value renders non-empty.
func (p *Params) AddIf(key string, value interface{}) *Params {
	if value == nil {
		return p
	}
	if s := models.FormatValue(value); s != "" && s != "0" {
		p.keys = append(p.keys, key)
		p.vals = append(p.vals, s)
	}
	return p
}

// AddExtra appends extra parameters in sorted key order, replacing any
// key that is already present.
func (p *Params) AddExtra(extra models.Params) *Params {
	for _, k := range extra.Keys() {
		if extra[k] == nil {
			continue
		}
		p.Set(k, extra[k])
	}
	return p
}

// Set replaces the value of key or appends it.
func (p *Params) Set(key string, value interface{}) *Params {
	for i, k := range p.keys {
		if k == key {
			p.vals[i] = models.FormatValue(value)
			return p
		}
	}
	return p.Add(key, value)
}

// Get returns the value for key.
func (p Params) Get(key string) string {
	for i, k := range p.keys {
		if k == key {
			return p.vals[i]
		}
	}
	return ""
}

func (p Params) Len() int { return len(p.keys) }

// Sorted returns a copy ordered by key.
func (p Params) Sorted() Params {
	idx := make([]int, len(p.keys))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return p.keys[idx[a]] < p.keys[idx[b]] })
	out := Params{keys: make([]string, len(idx)), vals: make([]string, len(idx))}
	for i, j := range idx {
		out.keys[i] = p.keys[j]
		out.vals[i] = p.vals[j]
	}
	return out
}

// Encode renders key=value pairs joined by & in insertion order, with
// values query-escaped.
func (p Params) Encode() string {
	var b strings.Builder
	for i, k := range p.keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.vals[i]))
	}
	return b.String()
}

// Map returns the parameters as a map.
func (p Params) Map() map[string]string {
	m := make(map[string]string, len(p.keys))
	for i, k := range p.keys {
		m[k] = p.vals[i]
	}
	return m
}

// ParamsFrom builds Params from a map in sorted key order.
func ParamsFrom(m models.Params) Params {
	var p Params
	p.AddExtra(m)
	return p
}

func hmacSHA256(secret, payload []byte) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write(payload)
	return h.Sum(nil)
}

func hmacSHA512(secret, payload []byte) []byte {
	h := hmac.New(sha512.New, secret)
	h.Write(payload)
	return h.Sum(nil)
}

// HMACSHA256Hex returns the lowercase hex HMAC-SHA256 of payload.
func HMACSHA256Hex(secret, payload string) string {
	return hex.EncodeToString(hmacSHA256([]byte(secret), []byte(payload)))
}

// HMACSHA256Base64 returns the standard base64 HMAC-SHA256 of payload.
func HMACSHA256Base64(secret, payload string) string {
	return base64.StdEncoding.EncodeToString(hmacSHA256([]byte(secret), []byte(payload)))
}

// HMACSHA512Hex returns the lowercase hex HMAC-SHA512 of payload.
func HMACSHA512Hex(secret, payload string) string {
	return hex.EncodeToString(hmacSHA512([]byte(secret), []byte(payload)))
}

func millis(t time.Time) int64 { return t.UnixNano() / int64(time.Millisecond) }
