package signer

import (
	"strconv"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	polygonChainID = 137
	// PolymarketNegRiskExchange verifies signed CTF orders.
	PolymarketNegRiskExchange = "0xC5d563A36AE78145C45a50134d48A1215220f80a"
	clobAuthMessage           = "This message attests that I control the given wallet"
)

// PolymarketOrder is the CLOB order payload. Integer fields are decimal
// strings as the CLOB expects them.
type PolymarketOrder struct {
	Salt          int64  `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          string `json:"side"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
}

func polymarketOrderTypedData(o PolymarketOrder) apitypes.TypedData {
	side := "1"
	if o.Side == "BUY" {
		side = "0"
	}
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": domainTypes(true),
			"Order": {
				{Name: "salt", Type: "uint256"},
				{Name: "maker", Type: "address"},
				{Name: "signer", Type: "address"},
				{Name: "taker", Type: "address"},
				{Name: "tokenId", Type: "uint256"},
				{Name: "makerAmount", Type: "uint256"},
				{Name: "takerAmount", Type: "uint256"},
				{Name: "expiration", Type: "uint256"},
				{Name: "nonce", Type: "uint256"},
				{Name: "feeRateBps", Type: "uint256"},
				{Name: "side", Type: "uint8"},
				{Name: "signatureType", Type: "uint8"},
			},
		},
		PrimaryType: "Order",
		Domain:      domain("Polymarket CTF Exchange", "1", polygonChainID, PolymarketNegRiskExchange),
		Message: map[string]interface{}{
			"salt":          strconv.FormatInt(o.Salt, 10),
			"maker":         o.Maker,
			"signer":        o.Signer,
			"taker":         o.Taker,
			"tokenId":       o.TokenID,
			"makerAmount":   o.MakerAmount,
			"takerAmount":   o.TakerAmount,
			"expiration":    o.Expiration,
			"nonce":         o.Nonce,
			"feeRateBps":    o.FeeRateBps,
			"side":          side,
			"signatureType": strconv.Itoa(o.SignatureType),
		},
	}
}

// SignPolymarketOrder fills o.Signature.
func SignPolymarketOrder(key EVMKey, o *PolymarketOrder) error {
	sig, err := key.SignTypedData(polymarketOrderTypedData(*o))
	if err != nil {
		return err
	}
	o.Signature = hexSig(sig)
	return nil
}

func clobAuthTypedData(address, ts string, nonce int64) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": domainTypes(false),
			"ClobAuth": {
				{Name: "address", Type: "address"},
				{Name: "timestamp", Type: "string"},
				{Name: "nonce", Type: "uint256"},
				{Name: "message", Type: "string"},
			},
		},
		PrimaryType: "ClobAuth",
		Domain:      domain("ClobAuthDomain", "1", polygonChainID, ""),
		Message: map[string]interface{}{
			"address":   address,
			"timestamp": ts,
			"nonce":     strconv.FormatInt(nonce, 10),
			"message":   clobAuthMessage,
		},
	}
}

// PolymarketL1Headers returns the wallet-signed headers used to create or
// derive CLOB API keys.
func PolymarketL1Headers(key EVMKey, now Clock, nonce int64) (map[string]string, error) {
	ts := strconv.FormatInt(now.now().Unix(), 10)
	sig, err := key.SignTypedData(clobAuthTypedData(key.Address, ts, nonce))
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"POLY_ADDRESS":   key.Address,
		"POLY_SIGNATURE": hexSig(sig),
		"POLY_TIMESTAMP": ts,
		"POLY_NONCE":     strconv.FormatInt(nonce, 10),
	}, nil
}
