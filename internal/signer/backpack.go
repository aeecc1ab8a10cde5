package signer

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/valyala/fastjson"

	"cointrade/models"
)

const BackpackWindow = 15000

// Backpack signs "instruction=<i>&<sorted params>&timestamp=<ms>&window=<w>"
// with ED25519. The secret is the base64 seed, the API key the base64
// public key. Body fields are signed for writes, query fields otherwise.
type Backpack struct {
	Now    Clock
	Window int
}

func (s Backpack) Sign(req *Request, keys models.ApiKeys) error {
	if err := models.RequireKeys("backpack", keys, "apiKey", "secret"); err != nil {
		return err
	}
	priv, err := backpackKey(keys)
	if err != nil {
		return err
	}
	window := s.Window
	if window == 0 {
		window = BackpackWindow
	}
	params, err := backpackParams(req)
	if err != nil {
		return err
	}
	ts := strconv.FormatInt(millis(s.Now.now()), 10)
	msg := BackpackMessage(req.Instruction, params, ts, window)
	sig := ed25519.Sign(priv, []byte(msg))

	req.SetHeader("X-API-Key", keys.APIKey)
	req.SetHeader("X-Signature", base64.StdEncoding.EncodeToString(sig))
	req.SetHeader("X-Timestamp", ts)
	req.SetHeader("X-Window", strconv.Itoa(window))
	req.SetHeader("Content-Type", "application/json; charset=utf-8")
	req.SetHeader("Accept", "application/json; charset=utf-8")
	return nil
}

// BackpackMessage builds the exact string that is signed.
func BackpackMessage(instruction string, params Params, ts string, window int) string {
	var b strings.Builder
	b.WriteString("instruction=")
	b.WriteString(instruction)
	if enc := params.Sorted().Encode(); enc != "" {
		b.WriteByte('&')
		b.WriteString(enc)
	}
	b.WriteString("&timestamp=")
	b.WriteString(ts)
	b.WriteString("&window=")
	b.WriteString(strconv.Itoa(window))
	return b.String()
}

func backpackKey(keys models.ApiKeys) (ed25519.PrivateKey, error) {
	seed, err := base64.StdEncoding.DecodeString(keys.Secret)
	if err != nil || len(seed) != ed25519.SeedSize {
		return nil, &models.CredentialError{Exchange: "backpack", Missing: []string{"secret (base64 ed25519 seed)"}}
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// backpackParams flattens the top level of a JSON object body, or returns
// the query when there is no body.
func backpackParams(req *Request) (Params, error) {
	if len(req.Body) == 0 {
		return req.Query, nil
	}
	v, err := fastjson.ParseBytes(req.Body)
	if err != nil {
		return Params{}, fmt.Errorf("backpack: sign body: %w", err)
	}
	obj, err := v.Object()
	if err != nil {
		return Params{}, fmt.Errorf("backpack: sign body: %w", err)
	}
	var keys []string
	vals := map[string]string{}
	obj.Visit(func(k []byte, fv *fastjson.Value) {
		key := string(k)
		keys = append(keys, key)
		switch fv.Type() {
		case fastjson.TypeString:
			vals[key] = string(fv.GetStringBytes())
		default:
			vals[key] = fv.String()
		}
	})
	sort.Strings(keys)
	var p Params
	for _, k := range keys {
		p.Add(k, vals[k])
	}
	return p, nil
}

// Polymarket signs CLOB level-2 requests with a URL-safe base64
// HMAC-SHA256 keyed by the base64-decoded secret. keys.UID carries the
// wallet address sent as POLY_ADDRESS.
type Polymarket struct {
	Now Clock
}

func (s Polymarket) Sign(req *Request, keys models.ApiKeys) error {
	if err := models.RequireKeys("polymarket", keys, "apiKey", "secret", "password"); err != nil {
		return err
	}
	secret, err := base64.URLEncoding.DecodeString(keys.Secret)
	if err != nil {
		secret, err = base64.StdEncoding.DecodeString(keys.Secret)
		if err != nil {
			return &models.CredentialError{Exchange: "polymarket", Missing: []string{"secret (base64)"}}
		}
	}
	ts := strconv.FormatInt(s.Now.now().Unix(), 10)
	path := req.RequestPath()
	if req.Query.Len() > 0 {
		path += "?" + req.Query.Encode()
	}
	sig := base64.StdEncoding.EncodeToString(hmacSHA256(secret, []byte(ts+req.Method+path+string(req.Body))))
	sig = strings.NewReplacer("+", "-", "/", "_").Replace(sig)

	req.SetHeader("POLY_ADDRESS", keys.UID)
	req.SetHeader("POLY_SIGNATURE", sig)
	req.SetHeader("POLY_TIMESTAMP", ts)
	req.SetHeader("POLY_API_KEY", keys.APIKey)
	req.SetHeader("POLY_PASSPHRASE", keys.Password)
	return nil
}
