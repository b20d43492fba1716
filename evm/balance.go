package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/auteng/x402-go"
	"github.com/auteng/x402-go/retry"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

const erc20BalanceOfABI = `[{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`

var erc20ABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(erc20BalanceOfABI))
	if err != nil {
		panic(err)
	}
	return parsed
}()

// BalanceReader reads ERC-20 token balances over JSON-RPC.
// Callers are dialed lazily per network and reused.
type BalanceReader struct {
	mu      sync.Mutex
	callers map[string]ethereum.ContractCaller
	rpcURLs map[string]string
	token   string
	retry   retry.Config
}

// BalanceOption configures a BalanceReader.
type BalanceOption func(*BalanceReader)

// WithRPCURL overrides the RPC endpoint for a network.
func WithRPCURL(network, url string) BalanceOption {
	return func(r *BalanceReader) {
		r.rpcURLs[network] = url
	}
}

// WithCaller uses an existing contract caller for a network, such as an
// *ethclient.Client or a simulated backend.
func WithCaller(network string, caller ethereum.ContractCaller) BalanceOption {
	return func(r *BalanceReader) {
		r.callers[network] = caller
	}
}

// WithBalanceToken reads the given token instead of the chain's USDC.
func WithBalanceToken(address string) BalanceOption {
	return func(r *BalanceReader) {
		r.token = address
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
		callers: make(map[string]ethereum.ContractCaller),
		rpcURLs: make(map[string]string),
		retry:   retry.DefaultConfig,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// BalanceOf returns the token balance of address on network in minor units.
func (r *BalanceReader) BalanceOf(ctx context.Context, address, network string) (*big.Int, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid EVM address: %q", address)
	}
	token, err := r.tokenFor(network)
	if err != nil {
		return nil, err
	}
	caller, err := r.caller(ctx, network)
	if err != nil {
		return nil, err
	}

	data, err := erc20ABI.Pack("balanceOf", common.HexToAddress(address))
	if err != nil {
		return nil, fmt.Errorf("failed to encode balanceOf: %w", err)
	}
	msg := ethereum.CallMsg{To: &token, Data: data}

	out, err := retry.WithRetry(ctx, r.retry, retry.IsTransient, func(ctx context.Context) ([]byte, error) {
		return caller.CallContract(ctx, msg, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("balanceOf %s on %s: %w", address, network, err)
	}

	values, err := erc20ABI.Unpack("balanceOf", out)
	if err != nil {
		return nil, fmt.Errorf("failed to decode balanceOf: %w", err)
	}
	balance, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf result %T", values[0])
	}
	return balance, nil
}

func (r *BalanceReader) tokenFor(network string) (common.Address, error) {
	if r.token != "" {
		return common.HexToAddress(r.token), nil
	}
	chain, ok := x402.LookupChain(network)
	if !ok || chain.Type != x402.NetworkTypeEVM {
		return common.Address{}, fmt.Errorf("%w: %s", x402.ErrInvalidNetwork, network)
	}
	return common.HexToAddress(chain.USDCAddress), nil
}

func (r *BalanceReader) caller(ctx context.Context, network string) (ethereum.ContractCaller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.callers[network]; ok {
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

	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	r.callers[network] = client
	return client, nil
}
