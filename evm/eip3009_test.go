package evm

import (
	"encoding/hex"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var testDomain = Domain{
	Name:              "USD Coin",
	Version:           "2",
	ChainID:           big.NewInt(8453),
	VerifyingContract: common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"),
}

func fixedAuthorization(from common.Address) *TransferAuthorization {
	return &TransferAuthorization{
		From:        from,
		To:          common.HexToAddress("0x2222222222222222222222222222222222222222"),
		Value:       big.NewInt(1000000),
		ValidAfter:  big.NewInt(1700000000),
		ValidBefore: big.NewInt(1700000060),
		Nonce:       common.HexToHash("0x1234567890abcdef1234567890abcdef1234567890abcdef1234567890abcdef"),
	}
}

func TestNewTransferAuthorization(t *testing.T) {
	from := common.HexToAddress("0x1111111111111111111111111111111111111111")
	to := common.HexToAddress("0x2222222222222222222222222222222222222222")
	value := big.NewInt(1000000)
	now := time.Unix(1700000000, 0)

	auth, err := NewTransferAuthorization(from, to, value, now, 60*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if auth.From != from || auth.To != to {
		t.Errorf("unexpected parties %s -> %s", auth.From.Hex(), auth.To.Hex())
	}
	if auth.Value.Cmp(value) != 0 {
		t.Errorf("expected value %s, got %s", value, auth.Value)
	}
	if auth.ValidAfter.Int64() != 1700000000-10 {
		t.Errorf("expected validAfter now-10s, got %s", auth.ValidAfter)
	}
	if auth.ValidBefore.Int64() != 1700000060 {
		t.Errorf("expected validBefore now+60s, got %s", auth.ValidBefore)
	}
	if auth.Nonce == (common.Hash{}) {
		t.Error("expected nonce to be non-zero")
	}

	// The authorization must not alias the caller's value.
	value.SetInt64(5)
	if auth.Value.Int64() != 1000000 {
		t.Error("authorization value changed with the caller's big.Int")
	}
}

func TestNewTransferAuthorization_DefaultValidity(t *testing.T) {
	now := time.Unix(1700000000, 0)
	auth, err := NewTransferAuthorization(common.Address{}, common.Address{}, big.NewInt(1), now, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := auth.ValidBefore.Int64() - now.Unix(); got != int64(defaultValidity/time.Second) {
		t.Errorf("expected default validity %v, got %ds", defaultValidity, got)
	}
}

func TestGenerateNonce(t *testing.T) {
	nonces := make(map[common.Hash]bool)
	for i := 0; i < 100; i++ {
		nonce, err := generateNonce()
		if err != nil {
			t.Fatalf("failed to generate nonce: %v", err)
		}
		if nonces[nonce] {
			t.Fatal("duplicate nonce generated")
		}
		nonces[nonce] = true
	}
}

func TestSignTransferAuthorization_RecoversSigner(t *testing.T) {
	privateKey, err := crypto.HexToECDSA(testPrivateKeyHex)
	if err != nil {
		t.Fatalf("failed to parse private key: %v", err)
	}
	from := crypto.PubkeyToAddress(privateKey.PublicKey)
	auth := fixedAuthorization(from)

	signature, err := SignTransferAuthorization(privateKey, testDomain, auth)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(signature, "0x") || len(signature) != 132 {
		t.Fatalf("expected 0x-prefixed 65-byte signature, got %q", signature)
	}

	sig, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil {
		t.Fatalf("signature is not hex: %v", err)
	}
	if sig[64] != 27 && sig[64] != 28 {
		t.Fatalf("expected v in {27, 28}, got %d", sig[64])
	}
	sig[64] -= 27

	digest, err := auth.Digest(testDomain)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if got := crypto.PubkeyToAddress(*pub); got != from {
		t.Errorf("recovered %s, want %s", got.Hex(), from.Hex())
	}
}

func TestSignTransferAuthorization_DomainSeparation(t *testing.T) {
	privateKey, err := crypto.HexToECDSA(testPrivateKeyHex)
	if err != nil {
		t.Fatalf("failed to parse private key: %v", err)
	}
	auth := fixedAuthorization(crypto.PubkeyToAddress(privateKey.PublicKey))

	base, err := SignTransferAuthorization(privateKey, testDomain, auth)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	again, err := SignTransferAuthorization(privateKey, testDomain, auth)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if base != again {
		t.Error("signatures should be deterministic with same inputs")
	}

	variants := map[string]Domain{
		"chain":    {Name: testDomain.Name, Version: testDomain.Version, ChainID: big.NewInt(84532), VerifyingContract: testDomain.VerifyingContract},
		"name":     {Name: "USDC", Version: testDomain.Version, ChainID: testDomain.ChainID, VerifyingContract: testDomain.VerifyingContract},
		"version":  {Name: testDomain.Name, Version: "1", ChainID: testDomain.ChainID, VerifyingContract: testDomain.VerifyingContract},
		"contract": {Name: testDomain.Name, Version: testDomain.Version, ChainID: testDomain.ChainID, VerifyingContract: common.HexToAddress("0x50c5725949A6F0c72E6C4a641F24049A917DB0Cb")},
	}
	for name, domain := range variants {
		t.Run(name, func(t *testing.T) {
			sig, err := SignTransferAuthorization(privateKey, domain, auth)
			if err != nil {
				t.Fatalf("sign: %v", err)
			}
			if sig == base {
				t.Errorf("changing the domain %s should change the signature", name)
			}
		})
	}
}
