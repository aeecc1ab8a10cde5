package signer

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const grvtChainID = 325

// GRVT time-in-force codes used in the signed payload.
var GRVTTimeInForce = map[string]uint8{
	"GOOD_TILL_TIME":      1,
	"ALL_OR_NONE":         2,
	"IMMEDIATE_OR_CANCEL": 3,
	"FILL_OR_KILL":        4,
}

// GRVTLeg carries already scaled integer amounts as decimal strings.
type GRVTLeg struct {
	AssetID      string
	ContractSize string
	LimitPrice   string
	IsBuying     bool
}

type GRVTOrder struct {
	SubAccountID string
	IsMarket     bool
	TimeInForce  string
	PostOnly     bool
	ReduceOnly   bool
	Legs         []GRVTLeg
	Nonce        uint32
	Expiration   int64
}

// GRVTSignature is the signature object attached to a create_order body.
type GRVTSignature struct {
	Signer     string `json:"signer"`
	R          string `json:"r"`
	S          string `json:"s"`
	V          int    `json:"v"`
	Expiration string `json:"expiration"`
	Nonce      uint32 `json:"nonce"`
}

func grvtTypedData(o GRVTOrder) apitypes.TypedData {
	legs := make([]interface{}, 0, len(o.Legs))
	for _, l := range o.Legs {
		legs = append(legs, map[string]interface{}{
			"assetID":          l.AssetID,
			"contractSize":     l.ContractSize,
			"limitPrice":       l.LimitPrice,
			"isBuyingContract": l.IsBuying,
		})
	}
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": domainTypes(false),
			"Order": {
				{Name: "subAccountID", Type: "uint64"},
				{Name: "isMarket", Type: "bool"},
				{Name: "timeInForce", Type: "uint8"},
				{Name: "postOnly", Type: "bool"},
				{Name: "reduceOnly", Type: "bool"},
				{Name: "legs", Type: "OrderLeg[]"},
				{Name: "nonce", Type: "uint32"},
				{Name: "expiration", Type: "int64"},
			},
			"OrderLeg": {
				{Name: "assetID", Type: "uint256"},
				{Name: "contractSize", Type: "uint64"},
				{Name: "limitPrice", Type: "uint64"},
				{Name: "isBuyingContract", Type: "bool"},
			},
		},
		PrimaryType: "Order",
		Domain:      domain("GRVT Exchange", "0", grvtChainID, ""),
		Message: map[string]interface{}{
			"subAccountID": o.SubAccountID,
			"isMarket":     o.IsMarket,
			"timeInForce":  strconv.Itoa(int(GRVTTimeInForce[o.TimeInForce])),
			"postOnly":     o.PostOnly,
			"reduceOnly":   o.ReduceOnly,
			"legs":         legs,
			"nonce":        strconv.FormatUint(uint64(o.Nonce), 10),
			"expiration":   strconv.FormatInt(o.Expiration, 10),
		},
	}
}

// SignGRVTOrder produces the EIP-712 signature for a GRVT order.
func SignGRVTOrder(key EVMKey, o GRVTOrder) (GRVTSignature, error) {
	sig, err := key.SignTypedData(grvtTypedData(o))
	if err != nil {
		return GRVTSignature{}, err
	}
	return GRVTSignature{
		Signer:     key.Address,
		R:          hexutil.Encode(sig[:32]),
		S:          hexutil.Encode(sig[32:64]),
		V:          int(sig[64]),
		Expiration: strconv.FormatInt(o.Expiration, 10),
		Nonce:      o.Nonce,
	}, nil
}
