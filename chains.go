package x402

import (
	"fmt"
	"strings"
)

// NetworkType represents the blockchain virtual machine type.
type NetworkType int

const (
	// NetworkTypeUnknown represents an unrecognized network.
	NetworkTypeUnknown NetworkType = iota
	// NetworkTypeEVM represents Ethereum Virtual Machine chains.
	NetworkTypeEVM
	// NetworkTypeSVM represents Solana Virtual Machine chains.
	NetworkTypeSVM
)

// ChainConfig contains chain-specific configuration for USDC tokens and RPC access.
type ChainConfig struct {
	// NetworkID is the CAIP-2 network identifier (e.g., "eip155:8453").
	NetworkID string

	// LegacyName is the pre-CAIP short name used by generation-1 servers (e.g., "base").
	LegacyName string

	// DisplayName is the human-readable chain name used in formatted prices.
	DisplayName string

	// Type is the virtual machine family of the chain.
	Type NetworkType

	// ChainID is the EIP-155 chain id (zero for non-EVM chains).
	ChainID int64

	// USDCAddress is the official Circle USDC contract address or mint address.
	USDCAddress string

	// Decimals is the number of decimal places for USDC (always 6).
	Decimals uint8

	// EIP3009Name is the EIP-3009 domain parameter "name" (empty for non-EVM chains).
	EIP3009Name string

	// EIP3009Version is the EIP-3009 domain parameter "version" (empty for non-EVM chains).
	EIP3009Version string

	// RPCURL is a public RPC endpoint used when no other endpoint is configured.
	RPCURL string
}

// Mainnet chain configurations
var (
	BaseMainnet = ChainConfig{
		NetworkID:      "eip155:8453",
		LegacyName:     "base",
		DisplayName:    "Base",
		Type:           NetworkTypeEVM,
		ChainID:        8453,
		USDCAddress:    "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		Decimals:       6,
		EIP3009Name:    "USD Coin",
		EIP3009Version: "2",
		RPCURL:         "https://mainnet.base.org",
	}

	PolygonMainnet = ChainConfig{
		NetworkID:      "eip155:137",
		LegacyName:     "polygon",
		DisplayName:    "Polygon",
		Type:           NetworkTypeEVM,
		ChainID:        137,
		USDCAddress:    "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359",
		Decimals:       6,
		EIP3009Name:    "USD Coin",
		EIP3009Version: "2",
		RPCURL:         "https://polygon-rpc.com",
	}

	AvalancheMainnet = ChainConfig{
		NetworkID:      "eip155:43114",
		LegacyName:     "avalanche",
		DisplayName:    "Avalanche",
		Type:           NetworkTypeEVM,
		ChainID:        43114,
		USDCAddress:    "0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E",
		Decimals:       6,
		EIP3009Name:    "USD Coin",
		EIP3009Version: "2",
		RPCURL:         "https://api.avax.network/ext/bc/C/rpc",
	}

	SolanaMainnet = ChainConfig{
		NetworkID:   "solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp",
		LegacyName:  "solana",
		DisplayName: "Solana",
		Type:        NetworkTypeSVM,
		USDCAddress: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		Decimals:    6,
		RPCURL:      "https://api.mainnet-beta.solana.com",
	}
)

// Testnet chain configurations
var (
	// BaseSepolia EIP-3009 parameters differ from mainnet ("USDC", not "USD Coin").
	BaseSepolia = ChainConfig{
		NetworkID:      "eip155:84532",
		LegacyName:     "base-sepolia",
		DisplayName:    "Base Sepolia",
		Type:           NetworkTypeEVM,
		ChainID:        84532,
		USDCAddress:    "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		Decimals:       6,
		EIP3009Name:    "USDC",
		EIP3009Version: "2",
		RPCURL:         "https://sepolia.base.org",
	}

	PolygonAmoy = ChainConfig{
		NetworkID:      "eip155:80002",
		LegacyName:     "polygon-amoy",
		DisplayName:    "Polygon Amoy",
		Type:           NetworkTypeEVM,
		ChainID:        80002,
		USDCAddress:    "0x41E94Eb019C0762f9Bfcf9Fb1E58725BfB0e7582",
		Decimals:       6,
		EIP3009Name:    "USDC",
		EIP3009Version: "2",
		RPCURL:         "https://rpc-amoy.polygon.technology",
	}

	AvalancheFuji = ChainConfig{
		NetworkID:      "eip155:43113",
		LegacyName:     "avalanche-fuji",
		DisplayName:    "Avalanche Fuji",
		Type:           NetworkTypeEVM,
		ChainID:        43113,
		USDCAddress:    "0x5425890298aed601595a70AB815c96711a31Bc65",
		Decimals:       6,
		EIP3009Name:    "USD Coin",
		EIP3009Version: "2",
		RPCURL:         "https://api.avax-test.network/ext/bc/C/rpc",
	}

	SolanaDevnet = ChainConfig{
		NetworkID:   "solana:EtWTRABZaYq6iMfeYKouRu166VU2xqa1",
		LegacyName:  "solana-devnet",
		DisplayName: "Solana Devnet",
		Type:        NetworkTypeSVM,
		USDCAddress: "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU",
		Decimals:    6,
		RPCURL:      "https://api.devnet.solana.com",
	}
)

// Chains lists every chain known to this package.
var Chains = []ChainConfig{
	BaseMainnet,
	BaseSepolia,
	PolygonMainnet,
	PolygonAmoy,
	AvalancheMainnet,
	AvalancheFuji,
	SolanaMainnet,
	SolanaDevnet,
}

// chainsByNetwork indexes Chains by both CAIP-2 id and legacy name.
var chainsByNetwork = func() map[string]ChainConfig {
	m := make(map[string]ChainConfig, len(Chains)*2)
	for _, c := range Chains {
		m[c.NetworkID] = c
		m[c.LegacyName] = c
	}
	return m
}()

// LookupChain returns the chain for a CAIP-2 id or legacy short name.
// Matching is exact.
func LookupChain(network string) (ChainConfig, bool) {
	c, ok := chainsByNetwork[network]
	return c, ok
}

// NewUSDCTokenConfig creates a TokenConfig for USDC on the given chain with the specified priority.
func NewUSDCTokenConfig(chain ChainConfig, priority int) TokenConfig {
	return TokenConfig{
		Address:  chain.USDCAddress,
		Symbol:   "USDC",
		Decimals: int(chain.Decimals),
		Priority: priority,
	}
}

// ValidateNetwork validates a network identifier and returns its type.
// Known CAIP-2 ids, legacy names and any "eip155:<n>" or "solana:<ref>" id are accepted.
func ValidateNetwork(networkID string) (NetworkType, error) {
	if networkID == "" {
		return NetworkTypeUnknown, fmt.Errorf("networkID: cannot be empty")
	}

	if c, ok := LookupChain(networkID); ok {
		return c.Type, nil
	}

	namespace, reference, found := strings.Cut(networkID, ":")
	if found && reference != "" {
		switch namespace {
		case "eip155":
			return NetworkTypeEVM, nil
		case "solana":
			return NetworkTypeSVM, nil
		}
	}

	return NetworkTypeUnknown, fmt.Errorf("networkID: unsupported network %q", networkID)
}
