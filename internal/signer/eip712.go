package signer

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"cointrade/models"
)

// EVMKey is a secp256k1 key together with its checksummed address.
type EVMKey struct {
	priv    *ecdsa.PrivateKey
	Address string
}

// ParseEVMKey accepts a hex private key with or without the 0x prefix.
func ParseEVMKey(exchange, hexKey string) (EVMKey, error) {
	priv, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return EVMKey{}, &models.CredentialError{Exchange: exchange, Missing: []string{"privateKey (hex secp256k1)"}}
	}
	return EVMKey{priv: priv, Address: crypto.PubkeyToAddress(priv.PublicKey).Hex()}, nil
}

// SignTypedData hashes td per EIP-712 and returns the 65-byte signature
// with v in {27, 28}.
func (k EVMKey) SignTypedData(td apitypes.TypedData) ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return nil, fmt.Errorf("hash typed data: %w", err)
	}
	sig, err := crypto.Sign(hash, k.priv)
	if err != nil {
		return nil, fmt.Errorf("sign typed data: %w", err)
	}
	sig[64] += 27
	return sig, nil
}

func domainTypes(withContract bool) []apitypes.Type {
	t := []apitypes.Type{
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
	}
	if withContract {
		t = append(t, apitypes.Type{Name: "verifyingContract", Type: "address"})
	}
	return t
}

func domain(name, version string, chainID int64, contract string) apitypes.TypedDataDomain {
	return apitypes.TypedDataDomain{
		Name:              name,
		Version:           version,
		ChainId:           math.NewHexOrDecimal256(chainID),
		VerifyingContract: contract,
	}
}

func hexSig(sig []byte) string { return hexutil.Encode(sig) }
