package x402

import (
	"context"
	"sort"
	"strings"
)

// PaymentSelector chooses one payment option and produces its authorization.
type PaymentSelector interface {
	// SelectAndSign chooses the best option/signer pair from the requirement
	// and signs it. Signer errors are returned unmodified.
	SelectAndSign(ctx context.Context, requirement *PaymentRequirement, signers []Signer) (*PaymentOption, *Authorization, error)
}

// DefaultPaymentSelector implements the standard payment selection algorithm.
// It selects candidates based on:
// 1. Scheme support (options with schemes no signer implements are ignored)
// 2. Ability to satisfy the option (network and token match, spending cap)
// 3. Signer priority (lower number = higher priority)
// 4. Token priority within the signer
// 5. Server order of options, then configuration order of signers (for ties)
type DefaultPaymentSelector struct{}

// NewDefaultPaymentSelector creates a new DefaultPaymentSelector.
func NewDefaultPaymentSelector() *DefaultPaymentSelector {
	return &DefaultPaymentSelector{}
}

// SelectAndSign implements PaymentSelector.
func (s *DefaultPaymentSelector) SelectAndSign(ctx context.Context, requirement *PaymentRequirement, signers []Signer) (*PaymentOption, *Authorization, error) {
	if requirement == nil || len(requirement.Accepts) == 0 {
		return nil, nil, NewPaymentError(ErrCodeInvalidRequirements, "payment requirement has no options", ErrInvalidRequirements)
	}
	if len(signers) == 0 {
		return nil, nil, NewPaymentError(ErrCodeNoValidSigner, "no signers configured", ErrNoValidSigner)
	}

	schemes := make(map[string]bool, len(signers))
	for _, signer := range signers {
		schemes[signer.Scheme()] = true
	}

	var supported []int
	for i := range requirement.Accepts {
		if schemes[requirement.Accepts[i].Scheme] {
			supported = append(supported, i)
		}
	}
	if len(supported) == 0 {
		offered := make([]string, 0, len(requirement.Accepts))
		for _, opt := range requirement.Accepts {
			offered = append(offered, opt.Scheme)
		}
		return nil, nil, NewPaymentError(ErrCodeUnsupportedScheme, "no offered payment scheme is supported", ErrUnsupportedScheme).
			WithDetails("schemes", offered)
	}

	var candidates []signerCandidate
	exceeded := false
	for _, idx := range supported {
		option := &requirement.Accepts[idx]
		amount, ok := option.AmountInt()
		if !ok {
			continue
		}

		for _, signer := range signers {
			if signer.Scheme() != option.Scheme || !signer.CanSign(option) {
				continue
			}

			// Check max amount limit
			if maxAmount := signer.GetMaxAmount(); maxAmount != nil && amount.Cmp(maxAmount) > 0 {
				exceeded = true
				continue
			}

			// Find matching token and its priority
			tokenPriority := 0
			for _, token := range signer.GetTokens() {
				if strings.EqualFold(token.Address, option.Asset) {
					tokenPriority = token.Priority
					break
				}
			}

			candidates = append(candidates, signerCandidate{
				signer:         signer,
				option:         option,
				signerPriority: signer.GetPriority(),
				tokenPriority:  tokenPriority,
			})
		}
	}

	if len(candidates) == 0 {
		first := requirement.Accepts[supported[0]]
		if exceeded {
			return nil, nil, NewPaymentError(ErrCodeAmountExceeded, "payment amount exceeds signer limits", ErrAmountExceeded).
				WithDetails("network", first.Network).
				WithDetails("asset", first.Asset).
				WithDetails("amount", first.Amount)
		}
		return nil, nil, NewPaymentError(ErrCodeNoValidSigner, "no signer can satisfy requirements", ErrNoValidSigner).
			WithDetails("network", first.Network).
			WithDetails("asset", first.Asset).
			WithDetails("amount", first.Amount)
	}

	// Lower priority numbers come first; stable sort keeps server order for ties.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].signerPriority != candidates[j].signerPriority {
			return candidates[i].signerPriority < candidates[j].signerPriority
		}
		return candidates[i].tokenPriority < candidates[j].tokenPriority
	})

	selected := candidates[0]
	auth, err := selected.signer.Sign(ctx, selected.option)
	if err != nil {
		return nil, nil, err
	}
	return selected.option, auth, nil
}

// signerCandidate is a signer paired with an option it can pay.
type signerCandidate struct {
	signer         Signer
	option         *PaymentOption
	signerPriority int
	tokenPriority  int
}
