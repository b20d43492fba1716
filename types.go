// Package x402 implements the client side of the x402 pay-per-request HTTP
// protocol: detecting payment demands, normalizing them across both wire
// generations, presenting prices and describing signed payment authorizations.
//
// The HTTP-facing pieces (probe, discover and the paying transport) live in
// the http subpackage. Signing and balance lookups are pluggable; the evm and
// svm subpackages provide chain-specific implementations.
package x402

import (
	"math/big"
	"strings"
)

// Protocol generations understood by the normalizer.
const (
	// X402VersionV1 is the first wire generation (accepts[].maxAmountRequired).
	X402VersionV1 = 1

	// X402VersionV2 is the second wire generation (top-level resource, accepts[].amount).
	X402VersionV2 = 2
)

// SchemeExact is the only payment scheme this client signs for.
const SchemeExact = "exact"

// PaymentOption is one accepted way to pay for a resource.
type PaymentOption struct {
	// Scheme is the payment scheme identifier (e.g., "exact").
	Scheme string `json:"scheme"`

	// Network is the chain identifier, CAIP-2 ("eip155:8453") or legacy ("base").
	Network string `json:"network"`

	// Asset is the token contract address (EVM) or mint address (Solana).
	Asset string `json:"asset"`

	// Amount is the price in minor units, always a canonical base-10 integer string.
	Amount string `json:"amount"`

	// PayTo is the recipient address for the payment.
	PayTo string `json:"payTo"`

	// MaxTimeoutSeconds is the validity period for the payment authorization.
	MaxTimeoutSeconds int `json:"maxTimeoutSeconds"`

	// Extra contains scheme-specific additional data (EIP-3009 name/version, feePayer, ...).
	Extra map[string]any `json:"extra,omitempty"`
}

// AmountInt returns the option amount as an arbitrary-precision integer.
// The second return value is false if the amount is not a valid integer.
func (o *PaymentOption) AmountInt() (*big.Int, bool) {
	return new(big.Int).SetString(o.Amount, 10)
}

// ResourceInfo describes the protected resource.
type ResourceInfo struct {
	// URL is the URL of the protected resource.
	URL string `json:"url"`

	// Description is an optional human-readable description.
	Description string `json:"description,omitempty"`

	// MimeType is the content type of the protected resource.
	MimeType string `json:"mimeType,omitempty"`
}

// PaymentRequirement is the normalized payment demand for one resource,
// independent of the wire generation it was received in.
// It always carries at least one option.
type PaymentRequirement struct {
	// X402Version is the protocol version reported by the server.
	X402Version int `json:"x402Version"`

	// Resource describes what is being paid for.
	Resource ResourceInfo `json:"resource"`

	// Accepts lists the payment options in the order the server sent them.
	Accepts []PaymentOption `json:"accepts"`

	// Extensions contains protocol extensions (passthrough, not validated).
	Extensions map[string]any `json:"extensions,omitempty"`
}

// ProbeResult is the outcome of inspecting a URL without paying.
type ProbeResult struct {
	// Enabled is true iff the URL answered 402 with a usable payment demand.
	Enabled bool `json:"enabled"`

	// URL is the URL that was probed.
	URL string `json:"url"`

	// Status is the HTTP status code observed.
	Status int `json:"status"`

	// Price is the formatted price of the first offered option. Empty when not enabled.
	Price string `json:"price,omitempty"`

	// PaymentRequired is the normalized demand. Nil when not enabled.
	PaymentRequired *PaymentRequirement `json:"paymentRequired,omitempty"`
}

// ServiceListing is one priced entry from a discovery registry.
type ServiceListing struct {
	// URL is the service endpoint URL.
	URL string `json:"url"`

	// Description is the service description, nil if the registry gave none.
	Description *string `json:"description"`

	// Price is the formatted price of the cheapest accepted option.
	Price string `json:"price"`

	// Accepts lists all accepted payment options in registry order.
	Accepts []PaymentOption `json:"accepts"`

	// Metadata is the raw metadata object from the registry.
	Metadata map[string]any `json:"metadata"`
}

// DiscoverResult is one page of registry results.
type DiscoverResult struct {
	// Services are the listings that carried at least one payment option.
	Services []ServiceListing `json:"services"`

	// Total is the registry-reported total across all pages.
	Total int `json:"total"`
}

// Authorization is the output of a Signer: a scheme-specific, single-use
// payment proof ready to be wrapped in a protocol envelope.
type Authorization struct {
	// Scheme is the scheme the authorization was produced for.
	Scheme string

	// Network is the network the authorization is valid on.
	Network string

	// Payer is the address that will be debited.
	Payer string

	// Payload is the scheme payload, e.g. EVMPayload.
	Payload any
}

// PaymentPayloadV1 is the generation-1 envelope sent in the X-PAYMENT header.
type PaymentPayloadV1 struct {
	X402Version int    `json:"x402Version"`
	Scheme      string `json:"scheme"`
	Network     string `json:"network"`
	Payload     any    `json:"payload"`
}

// PaymentPayloadV2 is the generation-2 envelope sent in the PAYMENT-SIGNATURE header.
type PaymentPayloadV2 struct {
	X402Version int            `json:"x402Version"`
	Resource    *ResourceInfo  `json:"resource,omitempty"`
	Accepted    PaymentOption  `json:"accepted"`
	Payload     any            `json:"payload"`
	Extensions  map[string]any `json:"extensions,omitempty"`
}

// EVMPayload represents an EVM payment with EIP-3009 authorization.
type EVMPayload struct {
	// Signature is the hex-encoded ECDSA signature.
	Signature string `json:"signature"`

	// Authorization contains the EIP-3009 transferWithAuthorization parameters.
	Authorization EVMAuthorization `json:"authorization"`
}

// EVMAuthorization represents EIP-3009 transferWithAuthorization parameters.
type EVMAuthorization struct {
	// From is the payer's address.
	From string `json:"from"`

	// To is the recipient's address.
	To string `json:"to"`

	// Value is the payment amount in atomic units.
	Value string `json:"value"`

	// ValidAfter is the unix timestamp after which the authorization is valid.
	ValidAfter string `json:"validAfter"`

	// ValidBefore is the unix timestamp before which the authorization is valid.
	ValidBefore string `json:"validBefore"`

	// Nonce is a unique 32-byte hex string to prevent replay attacks.
	Nonce string `json:"nonce"`
}

// SettlementResponse is the server's receipt after settling a payment.
type SettlementResponse struct {
	// Success indicates whether the payment was successfully settled.
	Success bool `json:"success"`

	// ErrorReason provides details if the payment failed.
	ErrorReason string `json:"errorReason,omitempty"`

	// Transaction is the blockchain transaction hash.
	Transaction string `json:"transaction,omitempty"`

	// Network is the blockchain network where the payment was settled.
	Network string `json:"network"`

	// Payer is the address that made the payment.
	Payer string `json:"payer"`
}

// TokenConfig represents configuration for a supported token.
type TokenConfig struct {
	// Address is the token contract address (EVM) or mint address (Solana).
	Address string

	// Symbol is the token symbol (e.g., "USDC").
	Symbol string

	// Decimals is the number of decimal places for the token.
	Decimals int

	// Priority is the token's priority level within the signer.
	// Lower numbers indicate higher priority (1 > 2 > 3).
	Priority int
}

// ParseUnits converts a decimal amount string to minor units.
// For example, "1.5" with 6 decimals becomes 1500000.
// The conversion is exact; amounts with more fractional digits than decimals are rejected.
func ParseUnits(amount string, decimals int) (*big.Int, error) {
	value, ok := new(big.Rat).SetString(strings.TrimSpace(amount))
	if !ok || value.Sign() < 0 {
		return nil, ErrInvalidAmount
	}

	value.Mul(value, new(big.Rat).SetInt(pow10(decimals)))
	if !value.IsInt() {
		return nil, ErrInvalidAmount
	}
	return new(big.Int).Set(value.Num()), nil
}

// FormatUnits renders minor units as a decimal string without trailing zeros.
// For example, 1500000 with 6 decimals becomes "1.5" and 0 becomes "0".
func FormatUnits(value *big.Int, decimals int) string {
	if value == nil {
		return "0"
	}
	if decimals <= 0 {
		return value.String()
	}

	abs := new(big.Int).Abs(value)
	whole, frac := new(big.Int).QuoRem(abs, pow10(decimals), new(big.Int))

	sign := ""
	if value.Sign() < 0 {
		sign = "-"
	}
	if frac.Sign() == 0 {
		return sign + whole.String()
	}

	digits := frac.String()
	digits = strings.Repeat("0", decimals-len(digits)) + digits
	digits = strings.TrimRight(digits, "0")
	return sign + whole.String() + "." + digits
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
