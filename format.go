package x402

import (
	"math/big"
	"strings"
)

// AssetInfo describes how to display amounts of a known token.
type AssetInfo struct {
	Symbol   string
	Decimals int
	Prefix   string
}

// knownAssets maps lowercased token addresses to their display info.
var knownAssets = func() map[string]AssetInfo {
	m := make(map[string]AssetInfo, len(Chains))
	for _, c := range Chains {
		m[strings.ToLower(c.USDCAddress)] = AssetInfo{Symbol: "USDC", Decimals: int(c.Decimals), Prefix: "$"}
	}
	return m
}()

// LookupAsset returns display info for a token address, matched case-insensitively.
func LookupAsset(asset string) (AssetInfo, bool) {
	info, ok := knownAssets[strings.ToLower(asset)]
	return info, ok
}

type formatConfig struct {
	short bool
}

// FormatOption configures FormatPrice.
type FormatOption func(*formatConfig)

// WithShort omits the " on <Network>" suffix.
func WithShort() FormatOption {
	return func(c *formatConfig) {
		c.short = true
	}
}

// FormatPrice renders a minor-unit amount as a human-readable price.
//
//	FormatPrice("2000", "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", "eip155:8453")
//	// "$0.002 USDC on Base"
//
// Unknown assets render the raw amount followed by a truncated asset id.
// Unknown networks omit the suffix. FormatPrice never fails.
func FormatPrice(amount, asset, network string, opts ...FormatOption) string {
	var cfg formatConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	var b strings.Builder
	if info, ok := LookupAsset(asset); ok {
		if value, ok := new(big.Int).SetString(amount, 10); ok {
			b.WriteString(info.Prefix)
			b.WriteString(FormatUnits(value, info.Decimals))
		} else {
			b.WriteString(amount)
		}
		b.WriteString(" ")
		b.WriteString(info.Symbol)
	} else {
		b.WriteString(amount)
		b.WriteString(" ")
		b.WriteString(shortAsset(asset))
	}

	if !cfg.short {
		if chain, ok := LookupChain(network); ok {
			b.WriteString(" on ")
			b.WriteString(chain.DisplayName)
		}
	}
	return b.String()
}

func shortAsset(asset string) string {
	head := asset[:min(6, len(asset))]
	tail := asset[max(0, len(asset)-4):]
	return head + "..." + tail
}
