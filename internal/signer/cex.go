package signer

import (
	"crypto/sha512"
	"encoding/hex"
	"strconv"
	"strings"

	"cointrade/models"
)

const DefaultRecvWindow = 10000

// Binance appends timestamp, recvWindow and a hex HMAC-SHA256 signature
// of the query string, in that order.
type Binance struct {
	Now        Clock
	RecvWindow int
}

func (s Binance) Sign(req *Request, keys models.ApiKeys) error {
	if err := models.RequireKeys("binance", keys, "apiKey", "secret"); err != nil {
		return err
	}
	rw := s.RecvWindow
	if rw == 0 {
		rw = DefaultRecvWindow
	}
	req.Query.Set("timestamp", millis(s.Now.now()))
	req.Query.Set("recvWindow", rw)
	req.Query.Set("signature", HMACSHA256Hex(keys.Secret, req.Query.Encode()))
	req.SetHeader("X-MBX-APIKEY", keys.APIKey)
	return nil
}

// Bybit signs timestamp + apiKey + recvWindow + (query or body).
type Bybit struct {
	Now        Clock
	RecvWindow int
}

func (s Bybit) Sign(req *Request, keys models.ApiKeys) error {
	if err := models.RequireKeys("bybit", keys, "apiKey", "secret"); err != nil {
		return err
	}
	rw := s.RecvWindow
	if rw == 0 {
		rw = DefaultRecvWindow
	}
	ts := strconv.FormatInt(millis(s.Now.now()), 10)
	payload := ts + keys.APIKey + strconv.Itoa(rw) + req.Query.Encode() + string(req.Body)
	req.SetHeader("X-BAPI-API-KEY", keys.APIKey)
	req.SetHeader("X-BAPI-TIMESTAMP", ts)
	req.SetHeader("X-BAPI-SIGN", HMACSHA256Hex(keys.Secret, payload))
	req.SetHeader("X-BAPI-RECV-WINDOW", strconv.Itoa(rw))
	return nil
}

// OKX signs isoTimestamp + METHOD + path(?query) + body with base64
// HMAC-SHA256 and sends the passphrase alongside.
type OKX struct {
	Now       Clock
	Simulated bool
}

func (s OKX) Sign(req *Request, keys models.ApiKeys) error {
	if err := models.RequireKeys("okx", keys, "apiKey", "secret", "password"); err != nil {
		return err
	}
	ts := s.Now.now().UTC().Format("2006-01-02T15:04:05.000Z")
	path := req.RequestPath()
	if req.Query.Len() > 0 {
		path += "?" + req.Query.Encode()
	}
	req.SetHeader("OK-ACCESS-KEY", keys.APIKey)
	req.SetHeader("OK-ACCESS-TIMESTAMP", ts)
	req.SetHeader("OK-ACCESS-SIGN", HMACSHA256Base64(keys.Secret, ts+req.Method+path+string(req.Body)))
	req.SetHeader("OK-ACCESS-PASSPHRASE", keys.Password)
	req.SetHeader("Content-Type", "application/json")
	if s.Simulated {
		req.SetHeader("x-simulated-trading", "1")
	}
	return nil
}

// Bitget sorts the query by key before signing
// msTimestamp + METHOD + path(?query) + body.
type Bitget struct {
	Now Clock
}

func (s Bitget) Sign(req *Request, keys models.ApiKeys) error {
	if err := models.RequireKeys("bitget", keys, "apiKey", "secret", "password"); err != nil {
		return err
	}
	req.Query = req.Query.Sorted()
	ts := strconv.FormatInt(millis(s.Now.now()), 10)
	path := req.RequestPath()
	if req.Query.Len() > 0 {
		path += "?" + req.Query.Encode()
	}
	req.SetHeader("ACCESS-KEY", keys.APIKey)
	req.SetHeader("ACCESS-SIGN", HMACSHA256Base64(keys.Secret, ts+req.Method+path+string(req.Body)))
	req.SetHeader("ACCESS-TIMESTAMP", ts)
	req.SetHeader("ACCESS-PASSPHRASE", keys.Password)
	req.SetHeader("locale", "en-US")
	req.SetHeader("Content-Type", "application/json")
	return nil
}

// Gate signs METHOD\npath\nquery\nhex(sha512(body))\ntimestamp with hex
// HMAC-SHA512. The timestamp is in seconds.
type Gate struct {
	Now Clock
}

func (s Gate) Sign(req *Request, keys models.ApiKeys) error {
	if err := models.RequireKeys("gate", keys, "apiKey", "secret"); err != nil {
		return err
	}
	ts := strconv.FormatInt(s.Now.now().Unix(), 10)
	bodyHash := sha512.Sum512(req.Body)
	payload := strings.Join([]string{
		req.Method,
		req.RequestPath(),
		req.Query.Encode(),
		hex.EncodeToString(bodyHash[:]),
		ts,
	}, "\n")
	req.SetHeader("KEY", keys.APIKey)
	req.SetHeader("SIGN", HMACSHA512Hex(keys.Secret, payload))
	req.SetHeader("Timestamp", ts)
	req.SetHeader("Content-Type", "application/json")
	return nil
}

// KuCoin signs msTimestamp + METHOD + path + body; the query is part of
// the path only for GET and DELETE. The passphrase is itself HMAC'd.
type KuCoin struct {
	Now Clock
}

func (s KuCoin) Sign(req *Request, keys models.ApiKeys) error {
	if err := models.RequireKeys("kucoin", keys, "apiKey", "secret", "password"); err != nil {
		return err
	}
	ts := strconv.FormatInt(millis(s.Now.now()), 10)
	endpoint := req.RequestPath()
	if (req.Method == "GET" || req.Method == "DELETE") && req.Query.Len() > 0 {
		endpoint += "?" + req.Query.Encode()
	}
	req.SetHeader("KC-API-KEY", keys.APIKey)
	req.SetHeader("KC-API-SIGN", HMACSHA256Base64(keys.Secret, ts+req.Method+endpoint+string(req.Body)))
	req.SetHeader("KC-API-TIMESTAMP", ts)
	req.SetHeader("KC-API-PASSPHRASE", HMACSHA256Base64(keys.Secret, keys.Password))
	req.SetHeader("KC-API-KEY-VERSION", "3")
	req.SetHeader("Content-Type", "application/json")
	return nil
}
