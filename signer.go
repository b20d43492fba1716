package x402

import (
	"context"
	"math/big"
)

// Signer produces payment authorizations for a specific blockchain.
// Implementations handle blockchain-specific signing; the x402 layer treats
// the result as opaque and only wraps it in a protocol envelope.
type Signer interface {
	// Network returns the blockchain network identifier (e.g., "eip155:8453").
	Network() string

	// Scheme returns the payment scheme identifier (currently "exact").
	Scheme() string

	// CanSign reports whether this signer supports the option's network and asset.
	CanSign(option *PaymentOption) bool

	// Sign creates a single-use authorization for the given option. The signer
	// chooses the nonce and validity window. Sign must either return a complete
	// authorization or an error, never a partial result.
	Sign(ctx context.Context, option *PaymentOption) (*Authorization, error)

	// GetPriority returns the signer's priority level.
	// Lower numbers indicate higher priority (1 > 2 > 3).
	GetPriority() int

	// GetTokens returns the list of tokens supported by this signer.
	GetTokens() []TokenConfig

	// GetMaxAmount returns the per-call spending limit, or nil if no limit is set.
	GetMaxAmount() *big.Int
}
