// Package svm reads SPL token balances on Solana networks.
package svm

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/auteng/x402-go"
	"github.com/auteng/x402-go/retry"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// TokenBalanceGetter is the subset of *rpc.Client used by BalanceReader.
type TokenBalanceGetter interface {
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error)
}

// BalanceReader reads the balance of an owner's associated token account.
type BalanceReader struct {
	mu         sync.Mutex
	clients    map[string]TokenBalanceGetter
	rpcURLs    map[string]string
	mint       string
	commitment rpc.CommitmentType
	retry      retry.Config
}

// BalanceOption configures a BalanceReader.
type BalanceOption func(*BalanceReader)

// WithRPCURL overrides the RPC endpoint for a network.
func WithRPCURL(network, url string) BalanceOption {
	return func(r *BalanceReader) {
		r.rpcURLs[network] = url
	}
}

// WithClient uses an existing RPC client for a network.
func WithClient(network string, client TokenBalanceGetter) BalanceOption {
	return func(r *BalanceReader) {
		r.clients[network] = client
	}
}

// WithMint reads the given SPL mint instead of the chain's USDC.
func WithMint(mint string) BalanceOption {
	return func(r *BalanceReader) {
		r.mint = mint
	}
}

// WithCommitment sets the commitment level of balance queries. Defaults to finalized.
func WithCommitment(commitment rpc.CommitmentType) BalanceOption {
	return func(r *BalanceReader) {
		r.commitment = commitment
	}
}

// WithBalanceRetry sets the retry policy for transient RPC failures.
func WithBalanceRetry(cfg retry.Config) BalanceOption {
	return func(r *BalanceReader) {
		r.retry = cfg
	}
}

// NewBalanceReader creates a BalanceReader.
func NewBalanceReader(opts ...BalanceOption) *BalanceReader {
	r := &BalanceReader{
		clients:    make(map[string]TokenBalanceGetter),
		rpcURLs:    make(map[string]string),
		commitment: rpc.CommitmentFinalized,
		retry:      retry.DefaultConfig,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// BalanceOf returns the token balance of owner on network in minor units.
// An owner without an associated token account has a zero balance.
func (r *BalanceReader) BalanceOf(ctx context.Context, owner, network string) (*big.Int, error) {
	ownerKey, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return nil, fmt.Errorf("invalid Solana address %q: %w", owner, err)
	}
	mint, err := r.mintFor(network)
	if err != nil {
		return nil, err
	}
	ata, _, err := solana.FindAssociatedTokenAddress(ownerKey, mint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive token account: %w", err)
	}
	client, err := r.client(network)
	if err != nil {
		return nil, err
	}

	result, err := retry.WithRetry(ctx, r.retry, retry.IsTransient, func(ctx context.Context) (*rpc.GetTokenAccountBalanceResult, error) {
		return client.GetTokenAccountBalance(ctx, ata, r.commitment)
	})
	if err != nil {
		if isAccountNotFound(err) {
			return new(big.Int), nil
		}
		return nil, fmt.Errorf("token balance of %s on %s: %w", owner, network, err)
	}
	if result == nil || result.Value == nil {
		return new(big.Int), nil
	}

	balance, ok := new(big.Int).SetString(result.Value.Amount, 10)
	if !ok {
		return nil, fmt.Errorf("unexpected token amount %q", result.Value.Amount)
	}
	return balance, nil
}

func (r *BalanceReader) mintFor(network string) (solana.PublicKey, error) {
	mint := r.mint
	if mint == "" {
		chain, ok := x402.LookupChain(network)
		if !ok || chain.Type != x402.NetworkTypeSVM {
			return solana.PublicKey{}, fmt.Errorf("%w: %s", x402.ErrInvalidNetwork, network)
		}
		mint = chain.USDCAddress
	}
	key, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid mint %q: %w", mint, err)
	}
	return key, nil
}

func (r *BalanceReader) client(network string) (TokenBalanceGetter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[network]; ok {
		return c, nil
	}

	url := r.rpcURLs[network]
	if url == "" {
		chain, ok := x402.LookupChain(network)
		if !ok || chain.RPCURL == "" {
			return nil, fmt.Errorf("%w: no RPC endpoint for %s", x402.ErrInvalidNetwork, network)
		}
		url = chain.RPCURL
	}

	client := rpc.New(url)
	r.clients[network] = client
	return client, nil
}

// isAccountNotFound reports whether the node rejected the query because the
// token account has never been created.
func isAccountNotFound(err error) bool {
	return strings.Contains(err.Error(), "could not find account")
}
