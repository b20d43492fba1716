package validation

import (
	"fmt"
	"math/big"
	"regexp"

	"github.com/auteng/x402-go"
)

var (
	// evmAddressRegex matches Ethereum-style addresses (0x followed by 40 hex chars)
	evmAddressRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

	// solanaAddressRegex matches Solana base58 addresses (32-44 chars, base58 charset)
	solanaAddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)
)

// ValidateAmount validates that an amount string is a canonical non-negative integer.
// Zero is allowed; servers may demand a signature without a charge.
func ValidateAmount(amount string) error {
	if amount == "" {
		return fmt.Errorf("amount cannot be empty")
	}

	// Parse as big.Int to handle large values
	amt := new(big.Int)
	amt, ok := amt.SetString(amount, 10)
	if !ok {
		return fmt.Errorf("invalid amount format: %s", amount)
	}

	if amt.Sign() < 0 {
		return fmt.Errorf("amount cannot be negative, got: %s", amount)
	}

	return nil
}

// ValidateAddress validates an address based on the network type.
// It uses ValidateNetwork to determine the network type and then applies
// network-specific address validation rules.
func ValidateAddress(address string, network string) error {
	if address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	networkType, err := x402.ValidateNetwork(network)
	if err != nil {
		return fmt.Errorf("cannot validate address: %w", err)
	}

	switch networkType {
	case x402.NetworkTypeEVM:
		if !evmAddressRegex.MatchString(address) {
			return fmt.Errorf("invalid EVM address format: %s (expected 0x followed by 40 hex characters)", address)
		}
		return nil

	case x402.NetworkTypeSVM:
		if !solanaAddressRegex.MatchString(address) {
			return fmt.Errorf("invalid Solana address format: %s (expected base58 string 32-44 chars)", address)
		}
		return nil

	default:
		return fmt.Errorf("unsupported network type for address validation: %d", networkType)
	}
}

// ValidateOption performs comprehensive validation of a payment option before signing.
// It validates the amount, network, addresses, scheme, and EIP-3009 parameters.
func ValidateOption(opt x402.PaymentOption) error {
	// Validate amount
	if err := ValidateAmount(opt.Amount); err != nil {
		return fmt.Errorf("invalid option: %w", err)
	}

	// Validate network
	if opt.Network == "" {
		return fmt.Errorf("invalid option: network cannot be empty")
	}

	networkType, err := x402.ValidateNetwork(opt.Network)
	if err != nil {
		return fmt.Errorf("invalid option: %w", err)
	}

	// Validate recipient address
	if err := ValidateAddress(opt.PayTo, opt.Network); err != nil {
		return fmt.Errorf("invalid option: payTo %w", err)
	}

	// Validate asset address (required)
	if opt.Asset == "" {
		return fmt.Errorf("invalid option: asset address cannot be empty")
	}

	if err := ValidateAddress(opt.Asset, opt.Network); err != nil {
		return fmt.Errorf("invalid option: asset %w", err)
	}

	if opt.Scheme == "" {
		return fmt.Errorf("invalid option: scheme cannot be empty")
	}

	// Validate timeout (must be non-negative)
	if opt.MaxTimeoutSeconds < 0 {
		return fmt.Errorf("invalid option: timeout cannot be negative: %d", opt.MaxTimeoutSeconds)
	}

	// Validate EIP-3009 parameters for EVM chains
	if networkType == x402.NetworkTypeEVM && opt.Extra != nil {
		if name, ok := opt.Extra["name"].(string); ok && name == "" {
			return fmt.Errorf("invalid option: EIP-3009 name cannot be empty")
		}
		if version, ok := opt.Extra["version"].(string); ok && version == "" {
			return fmt.Errorf("invalid option: EIP-3009 version cannot be empty")
		}
	}

	return nil
}
