package signer

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"

	"cointrade/models"
)

// SuiKey is an ED25519 key in the Sui scheme.
type SuiKey struct {
	priv ed25519.PrivateKey
}

// ParseSuiKey accepts a 32-byte seed in hex, with or without 0x.
func ParseSuiKey(exchange, hexSeed string) (SuiKey, error) {
	seed, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(hexSeed), "0x"))
	if err != nil || len(seed) != ed25519.SeedSize {
		return SuiKey{}, &models.CredentialError{Exchange: exchange, Missing: []string{"secret (hex ed25519 seed)"}}
	}
	return SuiKey{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

func (k SuiKey) PublicKey() ed25519.PublicKey { return k.priv.Public().(ed25519.PublicKey) }

// Address is blake2b-256(flag || pubkey) with the ED25519 flag 0x00.
func (k SuiKey) Address() string {
	sum := blake2b.Sum256(append([]byte{0x00}, k.PublicKey()...))
	return "0x" + hex.EncodeToString(sum[:])
}

// PersonalMessageDigest is the digest Sui wallets sign for a personal
// message: intent [3,0,0] followed by the BCS-encoded byte vector.
func PersonalMessageDigest(msg []byte) [32]byte {
	buf := make([]byte, 0, len(msg)+8)
	buf = append(buf, 3, 0, 0)
	buf = appendULEB128(buf, uint64(len(msg)))
	buf = append(buf, msg...)
	return blake2b.Sum256(buf)
}

// SignPersonalMessage returns hex(signature) + "1" + base64(pubkey), the
// serialized form the Bluefin API accepts for ED25519 accounts.
func (k SuiKey) SignPersonalMessage(msg []byte) string {
	digest := PersonalMessageDigest(msg)
	sig := ed25519.Sign(k.priv, digest[:])
	return hex.EncodeToString(sig) + "1" + base64.StdEncoding.EncodeToString(k.PublicKey())
}

func appendULEB128(b []byte, v uint64) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			c |= 0x80
		}
		b = append(b, c)
		if v == 0 {
			return b
		}
	}
}

// Bearer attaches an Authorization header. The token comes from a
// session login; Sign only validates that one is present.
type Bearer struct {
	Exchange string
	Token    string
}

func (s Bearer) Sign(req *Request, keys models.ApiKeys) error {
	if s.Token == "" {
		return &models.CredentialError{Exchange: s.Exchange, Missing: []string{"auth token"}}
	}
	req.SetHeader("Authorization", "Bearer "+s.Token)
	return nil
}

// Headers copies a fixed header set, used for cookie based sessions.
type Headers map[string]string

func (h Headers) Sign(req *Request, keys models.ApiKeys) error {
	for k, v := range h {
		req.SetHeader(k, v)
	}
	return nil
}
