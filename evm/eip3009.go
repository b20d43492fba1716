package evm

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/auteng/x402-go"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// clockSkew is subtracted from validAfter so a server whose clock lags ours
// still accepts the authorization.
const clockSkew = 10 * time.Second

// defaultValidity is used when the option does not bound the authorization lifetime.
const defaultValidity = 60 * time.Second

// TransferAuthorization holds the parameters of an EIP-3009 transferWithAuthorization.
type TransferAuthorization struct {
	From        common.Address
	To          common.Address
	Value       *big.Int
	ValidAfter  *big.Int
	ValidBefore *big.Int
	Nonce       common.Hash
}

// Domain is the EIP-712 domain of the token contract being authorized.
type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// NewTransferAuthorization builds a single-use authorization valid from
// now (minus clock skew) for the given lifetime, with a random nonce.
func NewTransferAuthorization(from, to common.Address, value *big.Int, now time.Time, validity time.Duration) (*TransferAuthorization, error) {
	nonce, err := generateNonce()
	if err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	if validity <= 0 {
		validity = defaultValidity
	}

	return &TransferAuthorization{
		From:        from,
		To:          to,
		Value:       new(big.Int).Set(value),
		ValidAfter:  big.NewInt(now.Add(-clockSkew).Unix()),
		ValidBefore: big.NewInt(now.Add(validity).Unix()),
		Nonce:       nonce,
	}, nil
}

// typedData returns the EIP-712 document for auth under domain.
func (auth *TransferAuthorization) typedData(domain Domain) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"TransferWithAuthorization": []apitypes.Type{
				{Name: "from", Type: "address"},
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "validAfter", Type: "uint256"},
				{Name: "validBefore", Type: "uint256"},
				{Name: "nonce", Type: "bytes32"},
			},
		},
		PrimaryType: "TransferWithAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:              domain.Name,
			Version:           domain.Version,
			ChainId:           (*math.HexOrDecimal256)(domain.ChainID),
			VerifyingContract: domain.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"from":        auth.From.Hex(),
			"to":          auth.To.Hex(),
			"value":       (*math.HexOrDecimal256)(auth.Value),
			"validAfter":  (*math.HexOrDecimal256)(auth.ValidAfter),
			"validBefore": (*math.HexOrDecimal256)(auth.ValidBefore),
			"nonce":       auth.Nonce.Hex(),
		},
	}
}

// Digest returns the EIP-712 hash that is signed for auth.
func (auth *TransferAuthorization) Digest(domain Domain) ([]byte, error) {
	digest, _, err := apitypes.TypedDataAndHash(auth.typedData(domain))
	if err != nil {
		return nil, fmt.Errorf("failed to hash typed data: %w", err)
	}
	return digest, nil
}

// SignTransferAuthorization signs auth with privateKey and returns the
// 65-byte signature as 0x-prefixed hex with v in {27, 28}.
func SignTransferAuthorization(privateKey *ecdsa.PrivateKey, domain Domain, auth *TransferAuthorization) (string, error) {
	digest, err := auth.Digest(domain)
	if err != nil {
		return "", x402.NewPaymentError(x402.ErrCodeSigningFailed, "failed to build authorization digest", err)
	}

	signature, err := crypto.Sign(digest, privateKey)
	if err != nil {
		return "", x402.NewPaymentError(x402.ErrCodeSigningFailed, "failed to sign authorization", err)
	}
	signature[64] += 27

	return "0x" + hex.EncodeToString(signature), nil
}

// payload renders auth and its signature in the wire shape of the exact scheme.
func (auth *TransferAuthorization) payload(signature string) x402.EVMPayload {
	return x402.EVMPayload{
		Signature: signature,
		Authorization: x402.EVMAuthorization{
			From:        auth.From.Hex(),
			To:          auth.To.Hex(),
			Value:       auth.Value.String(),
			ValidAfter:  auth.ValidAfter.String(),
			ValidBefore: auth.ValidBefore.String(),
			Nonce:       auth.Nonce.Hex(),
		},
	}
}

func generateNonce() (common.Hash, error) {
	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(nonce[:]), nil
}
