// Package evm provides an x402 signer for EVM chains using EIP-3009
// transferWithAuthorization, plus an ERC-20 balance reader.
package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/auteng/x402-go"
	"github.com/auteng/x402-go/validation"
	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer implements the x402.Signer interface for EVM-compatible chains.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	network    string
	chainID    *big.Int
	tokens     []x402.TokenConfig
	priority   int
	maxAmount  *big.Int
	clock      clock.Clock
}

// SignerOption configures a Signer.
type SignerOption func(*Signer) error

// NewSigner creates a new EVM signer with the given options.
// The network may be a CAIP-2 id ("eip155:8453") or a legacy name ("base").
func NewSigner(opts ...SignerOption) (*Signer, error) {
	s := &Signer{}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if s.privateKey == nil {
		return nil, x402.ErrInvalidKey
	}
	if s.network == "" {
		return nil, x402.ErrInvalidNetwork
	}
	chainID, ok := chainIDFor(s.network)
	if !ok {
		return nil, fmt.Errorf("%w: %s", x402.ErrInvalidNetwork, s.network)
	}
	if len(s.tokens) == 0 {
		return nil, x402.ErrNoTokens
	}
	if s.clock == nil {
		s.clock = clock.New()
	}

	s.address = crypto.PubkeyToAddress(s.privateKey.PublicKey)
	s.chainID = chainID

	return s, nil
}

// WithPrivateKey sets the private key from a hex string.
func WithPrivateKey(hexKey string) SignerOption {
	return func(s *Signer) error {
		privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
		if err != nil {
			return x402.ErrInvalidKey
		}
		s.privateKey = privateKey
		return nil
	}
}

// WithNetwork sets the blockchain network.
func WithNetwork(network string) SignerOption {
	return func(s *Signer) error {
		s.network = network
		return nil
	}
}

// WithToken adds a token configuration.
func WithToken(address, symbol string, decimals int) SignerOption {
	return WithTokenPriority(address, symbol, decimals, 0)
}

// WithTokenPriority adds a token configuration with a priority.
func WithTokenPriority(address, symbol string, decimals, priority int) SignerOption {
	return func(s *Signer) error {
		s.tokens = append(s.tokens, x402.TokenConfig{
			Address:  address,
			Symbol:   symbol,
			Decimals: decimals,
			Priority: priority,
		})
		return nil
	}
}

// WithUSDC adds the USDC token of the signer's chain. It must follow WithNetwork.
func WithUSDC() SignerOption {
	return func(s *Signer) error {
		chain, ok := x402.LookupChain(s.network)
		if !ok || chain.Type != x402.NetworkTypeEVM {
			return fmt.Errorf("%w: no USDC known for %q", x402.ErrInvalidNetwork, s.network)
		}
		s.tokens = append(s.tokens, x402.NewUSDCTokenConfig(chain, 0))
		return nil
	}
}

// WithPriority sets the signer priority.
func WithPriority(priority int) SignerOption {
	return func(s *Signer) error {
		s.priority = priority
		return nil
	}
}

// WithMaxAmountPerCall sets the maximum amount per payment call, in minor units.
func WithMaxAmountPerCall(amount string) SignerOption {
	return func(s *Signer) error {
		maxAmount, ok := new(big.Int).SetString(amount, 10)
		if !ok || maxAmount.Sign() < 0 {
			return x402.ErrInvalidAmount
		}
		s.maxAmount = maxAmount
		return nil
	}
}

// WithClock sets the clock used for authorization validity windows.
func WithClock(c clock.Clock) SignerOption {
	return func(s *Signer) error {
		s.clock = c
		return nil
	}
}

// Network implements x402.Signer.
func (s *Signer) Network() string {
	return s.network
}

// Scheme implements x402.Signer.
func (s *Signer) Scheme() string {
	return x402.SchemeExact
}

// CanSign implements x402.Signer. Networks match across CAIP-2 ids and
// legacy names of the same chain.
func (s *Signer) CanSign(option *x402.PaymentOption) bool {
	if option == nil || option.Scheme != x402.SchemeExact {
		return false
	}
	if id, ok := chainIDFor(option.Network); !ok || id.Cmp(s.chainID) != 0 {
		return false
	}
	_, ok := s.token(option.Asset)
	return ok
}

// Sign implements x402.Signer.
func (s *Signer) Sign(ctx context.Context, option *x402.PaymentOption) (*x402.Authorization, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.CanSign(option) {
		return nil, x402.ErrNoValidSigner
	}
	if err := validation.ValidateOption(*option); err != nil {
		return nil, x402.NewPaymentError(x402.ErrCodeInvalidRequirements, "invalid payment option", err)
	}

	amount, ok := option.AmountInt()
	if !ok {
		return nil, x402.ErrInvalidAmount
	}
	if s.maxAmount != nil && amount.Cmp(s.maxAmount) > 0 {
		return nil, x402.NewPaymentError(x402.ErrCodeAmountExceeded, "payment amount exceeds per-call limit", x402.ErrAmountExceeded).
			WithDetails("amount", option.Amount).
			WithDetails("max", s.maxAmount.String())
	}

	token, _ := s.token(option.Asset)
	domain := s.domain(option, token)

	auth, err := NewTransferAuthorization(
		s.address,
		common.HexToAddress(option.PayTo),
		amount,
		s.clock.Now(),
		time.Duration(option.MaxTimeoutSeconds)*time.Second,
	)
	if err != nil {
		return nil, x402.NewPaymentError(x402.ErrCodeSigningFailed, "failed to create authorization", err)
	}

	signature, err := SignTransferAuthorization(s.privateKey, domain, auth)
	if err != nil {
		return nil, err
	}

	return &x402.Authorization{
		Scheme:  x402.SchemeExact,
		Network: option.Network,
		Payer:   s.address.Hex(),
		Payload: auth.payload(signature),
	}, nil
}

// GetPriority implements x402.Signer.
func (s *Signer) GetPriority() int {
	return s.priority
}

// GetTokens implements x402.Signer.
func (s *Signer) GetTokens() []x402.TokenConfig {
	return s.tokens
}

// GetMaxAmount implements x402.Signer.
func (s *Signer) GetMaxAmount() *big.Int {
	return s.maxAmount
}

// Address returns the signer's Ethereum address.
func (s *Signer) Address() common.Address {
	return s.address
}

func (s *Signer) token(asset string) (x402.TokenConfig, bool) {
	for _, token := range s.tokens {
		if strings.EqualFold(token.Address, asset) {
			return token, true
		}
	}
	return x402.TokenConfig{}, false
}

// domain resolves the EIP-712 domain. Server-provided extra.name and
// extra.version win over the chain table.
func (s *Signer) domain(option *x402.PaymentOption, token x402.TokenConfig) Domain {
	d := Domain{
		ChainID:           s.chainID,
		VerifyingContract: common.HexToAddress(token.Address),
	}
	if chain, ok := x402.LookupChain(s.network); ok && strings.EqualFold(chain.USDCAddress, token.Address) {
		d.Name = chain.EIP3009Name
		d.Version = chain.EIP3009Version
	}
	if name, ok := option.Extra["name"].(string); ok && name != "" {
		d.Name = name
	}
	if version, ok := option.Extra["version"].(string); ok && version != "" {
		d.Version = version
	}
	return d
}

// chainIDFor resolves the EIP-155 chain id of a CAIP-2 id or known legacy name.
func chainIDFor(network string) (*big.Int, bool) {
	if chain, ok := x402.LookupChain(network); ok {
		if chain.Type != x402.NetworkTypeEVM {
			return nil, false
		}
		return big.NewInt(chain.ChainID), true
	}
	ref, found := strings.CutPrefix(network, "eip155:")
	if !found {
		return nil, false
	}
	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil || id <= 0 {
		return nil, false
	}
	return big.NewInt(id), true
}
