package signer

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
)

// BluefinOrderSize is the length of a serialized Bluefin order.
const BluefinOrderSize = 144

// Order flag bits, packed into one byte.
const (
	bluefinIOC = 1 << iota
	bluefinPostOnly
	bluefinReduceOnly
	bluefinIsBuy
	bluefinOrderbookOnly
)

// BluefinOrder is the order a Sui account signs before Bluefin accepts it.
// Price, Quantity and Leverage are base-10 integers in 18-decimal fixed
// point. Market is the perpetual's object id and Maker the account
// address, both 32-byte hex.
type BluefinOrder struct {
	Market        string
	Maker         string
	Price         string
	Quantity      string
	Leverage      string
	Salt          int64
	Expiration    int64
	IsBuy         bool
	ReduceOnly    bool
	PostOnly      bool
	OrderbookOnly bool
	IOC           bool
}

func (o BluefinOrder) flags() byte {
	var f byte
	if o.IOC {
		f |= bluefinIOC
	}
	if o.PostOnly {
		f |= bluefinPostOnly
	}
	if o.ReduceOnly {
		f |= bluefinReduceOnly
	}
	if o.IsBuy {
		f |= bluefinIsBuy
	}
	if o.OrderbookOnly {
		f |= bluefinOrderbookOnly
	}
	return f
}

// Serialize lays the order out as
// price(16) quantity(16) leverage(16) salt(16) expiration(8) maker(32)
// market(32) flags(1) "Bluefin"(7), integers big-endian.
func (o BluefinOrder) Serialize() ([]byte, error) {
	buf := make([]byte, 0, BluefinOrderSize)
	for _, f := range []struct {
		name, v string
	}{{"price", o.Price}, {"quantity", o.Quantity}, {"leverage", o.Leverage}} {
		n, ok := new(big.Int).SetString(f.v, 10)
		if !ok || n.Sign() < 0 || n.BitLen() > 128 {
			return nil, fmt.Errorf("bluefin order %s %q is not a 128-bit unsigned integer", f.name, f.v)
		}
		buf = append(buf, math.PaddedBigBytes(n, 16)...)
	}
	if o.Salt < 0 || o.Expiration < 0 {
		return nil, fmt.Errorf("bluefin order salt and expiration must not be negative")
	}
	buf = append(buf, math.PaddedBigBytes(big.NewInt(o.Salt), 16)...)
	buf = append(buf, math.PaddedBigBytes(big.NewInt(o.Expiration), 8)...)
	for _, f := range []struct {
		name, v string
	}{{"maker", o.Maker}, {"market", o.Market}} {
		b, err := hexutil.Decode(f.v)
		if err != nil || len(b) != 32 {
			return nil, fmt.Errorf("bluefin order %s %q is not a 32-byte hex id", f.name, f.v)
		}
		buf = append(buf, b...)
	}
	buf = append(buf, o.flags())
	buf = append(buf, "Bluefin"...)
	return buf, nil
}

// Hash is the hex sha256 of the serialized order, the id Bluefin uses to
// cancel it.
func (o BluefinOrder) Hash() (string, error) {
	b, err := o.Serialize()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// SignBluefinOrder signs the order hash and returns the hash with the
// serialized signature hex(sig) + "1" + base64(pubkey).
func (k SuiKey) SignBluefinOrder(o BluefinOrder) (hash, signature string, err error) {
	b, err := o.Serialize()
	if err != nil {
		return "", "", err
	}
	sum := sha256.Sum256(b)
	sig := ed25519.Sign(k.priv, sum[:])
	return hex.EncodeToString(sum[:]), hex.EncodeToString(sig) + "1" + base64.StdEncoding.EncodeToString(k.PublicKey()), nil
}

// SignBluefinCancel signs {"orderHashes":[...]} as a personal message.
func (k SuiKey) SignBluefinCancel(hashes []string) (string, error) {
	msg, err := json.Marshal(map[string][]string{"orderHashes": hashes})
	if err != nil {
		return "", err
	}
	return k.SignPersonalMessage(msg), nil
}
