// Package encoding provides utilities for encoding and decoding x402 header values.
// Payment envelopes, settlement receipts and payment demands travel as
// base64-encoded JSON in HTTP headers.
package encoding

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/auteng/x402-go"
)

// EncodePayment converts a payment envelope to a base64-encoded JSON string.
// The envelope is x402.PaymentPayloadV1 or x402.PaymentPayloadV2 depending on
// the protocol generation of the demand being answered.
//
// Returns an error if JSON marshaling fails.
func EncodePayment(envelope any) (string, error) {
	paymentJSON, err := json.Marshal(envelope)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment: %w", err)
	}
	return base64.StdEncoding.EncodeToString(paymentJSON), nil
}

// EncodeSettlement converts a SettlementResponse to base64-encoded JSON string.
//
// Returns an error if JSON marshaling fails.
func EncodeSettlement(settlement x402.SettlementResponse) (string, error) {
	settlementJSON, err := json.Marshal(settlement)
	if err != nil {
		return "", fmt.Errorf("failed to marshal settlement: %w", err)
	}
	return base64.StdEncoding.EncodeToString(settlementJSON), nil
}

// DecodeSettlement converts a base64-encoded JSON string to SettlementResponse.
//
// Returns an error if base64 decoding or JSON unmarshaling fails.
func DecodeSettlement(encoded string) (x402.SettlementResponse, error) {
	var settlement x402.SettlementResponse

	decoded, err := decodeBase64(encoded)
	if err != nil {
		return settlement, fmt.Errorf("failed to decode base64: %w", err)
	}

	if err := json.Unmarshal(decoded, &settlement); err != nil {
		return settlement, fmt.Errorf("failed to unmarshal settlement: %w", err)
	}

	return settlement, nil
}

// EncodeRequirements converts a raw payment demand to base64-encoded JSON,
// as sent by servers in the PAYMENT-REQUIRED header.
//
// Returns an error if JSON marshaling fails.
func EncodeRequirements(demand any) (string, error) {
	reqJSON, err := json.Marshal(demand)
	if err != nil {
		return "", fmt.Errorf("failed to marshal requirements: %w", err)
	}
	return base64.StdEncoding.EncodeToString(reqJSON), nil
}

// DecodeRequirements decodes and normalizes a base64-encoded payment demand.
//
// Returns an error wrapping x402.ErrMalformedHeader if the value is not
// base64, or x402.ErrInvalidRequirements if it does not normalize.
func DecodeRequirements(encoded string) (*x402.PaymentRequirement, error) {
	decoded, err := decodeBase64(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", x402.ErrMalformedHeader, err)
	}

	req := x402.ParsePaymentRequired(decoded)
	if req == nil {
		return nil, x402.ErrInvalidRequirements
	}
	return req, nil
}

// decodeBase64 accepts padded and unpadded standard encodings.
func decodeBase64(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if decoded, err := base64.StdEncoding.DecodeString(encoded); err == nil {
		return decoded, nil
	}
	return base64.RawStdEncoding.DecodeString(encoded)
}
