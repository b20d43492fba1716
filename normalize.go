package x402

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// demand is a payment demand whose wire generation has been identified.
type demand interface {
	requirement() *PaymentRequirement
}

// generationOne demands carry maxAmountRequired and resource fields on each accept.
type generationOne struct {
	raw     map[string]any
	accepts []any
	first   map[string]any
}

// generationTwo demands carry a top-level resource object and accepts[].amount.
type generationTwo struct {
	raw      map[string]any
	accepts  []any
	resource map[string]any
}

// classify identifies the wire generation of raw, or returns nil if the
// shape matches neither.
func classify(raw any) demand {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	accepts, ok := obj["accepts"].([]any)
	if !ok || len(accepts) == 0 {
		return nil
	}
	first, ok := accepts[0].(map[string]any)
	if !ok {
		return nil
	}

	if _, ok := first["amount"].(string); ok {
		if resource, ok := obj["resource"].(map[string]any); ok {
			return generationTwo{raw: obj, accepts: accepts, resource: resource}
		}
	}
	if _, ok := first["maxAmountRequired"].(string); ok {
		return generationOne{raw: obj, accepts: accepts, first: first}
	}
	return nil
}

func (d generationOne) requirement() *PaymentRequirement {
	top, _ := d.raw["resource"].(map[string]any)
	resource := ResourceInfo{
		URL:         firstString(stringField(d.first, "resource"), stringField(top, "url")),
		Description: firstString(stringField(d.first, "description"), stringField(top, "description")),
		MimeType:    firstString(stringField(d.first, "mimeType"), stringField(top, "mimeType")),
	}
	return newRequirement(d.raw, X402VersionV1, resource, d.accepts, "maxAmountRequired")
}

func (d generationTwo) requirement() *PaymentRequirement {
	resource := ResourceInfo{
		URL:         stringField(d.resource, "url"),
		Description: stringField(d.resource, "description"),
		MimeType:    stringField(d.resource, "mimeType"),
	}
	return newRequirement(d.raw, X402VersionV2, resource, d.accepts, "amount", "maxAmountRequired")
}

// newRequirement builds the canonical requirement shared by both generations.
// It returns nil when no option survives normalization.
func newRequirement(raw map[string]any, defaultVersion int, resource ResourceInfo, accepts []any, amountKeys ...string) *PaymentRequirement {
	options := make([]PaymentOption, 0, len(accepts))
	for _, a := range accepts {
		m, ok := a.(map[string]any)
		if !ok {
			continue
		}
		opt, ok := normalizeOption(m, amountKeys)
		if !ok {
			continue
		}
		options = append(options, opt)
	}
	if len(options) == 0 {
		return nil
	}

	version := defaultVersion
	if v, ok := intField(raw, "x402Version"); ok {
		version = v
	}

	req := &PaymentRequirement{
		X402Version: version,
		Resource:    resource,
		Accepts:     options,
	}
	if ext, ok := raw["extensions"].(map[string]any); ok {
		req.Extensions = ext
	}
	return req
}

// NormalizePaymentRequired converts a decoded payment demand of either wire
// generation into its canonical form. It returns nil for anything it cannot
// positively identify, including demands without any usable option.
func NormalizePaymentRequired(raw any) *PaymentRequirement {
	d := classify(raw)
	if d == nil {
		return nil
	}
	return d.requirement()
}

// ParsePaymentRequired decodes a JSON payment demand and normalizes it.
// Malformed JSON yields nil.
func ParsePaymentRequired(body []byte) *PaymentRequirement {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil
	}
	return NormalizePaymentRequired(raw)
}

// NormalizeOption builds a PaymentOption from one raw accepts entry, reading
// the amount from "amount" or, failing that, "maxAmountRequired".
// The second return value is false if the amount is not a non-negative integer.
func NormalizeOption(raw map[string]any) (PaymentOption, bool) {
	return normalizeOption(raw, []string{"amount", "maxAmountRequired"})
}

func normalizeOption(raw map[string]any, amountKeys []string) (PaymentOption, bool) {
	var amountRaw any
	for _, key := range amountKeys {
		if v, ok := raw[key]; ok && v != nil {
			amountRaw = v
			break
		}
	}
	amount, ok := canonicalAmount(amountRaw)
	if !ok {
		return PaymentOption{}, false
	}

	opt := PaymentOption{
		Scheme:  SchemeExact,
		Network: stringField(raw, "network"),
		Asset:   stringField(raw, "asset"),
		Amount:  amount,
		PayTo:   stringField(raw, "payTo"),
	}
	if s, ok := raw["scheme"].(string); ok {
		opt.Scheme = s
	}
	if v, ok := intField(raw, "maxTimeoutSeconds"); ok {
		opt.MaxTimeoutSeconds = v
	}
	if extra, ok := raw["extra"].(map[string]any); ok {
		opt.Extra = extra
	}
	return opt, true
}

// canonicalAmount renders v as a base-10 integer string without leading zeros.
// Missing amounts are "0". Negative, fractional or non-numeric values are rejected.
func canonicalAmount(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "0", true
	case string:
		return canonicalAmountString(t)
	case json.Number:
		return canonicalAmountString(t.String())
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) || t < 0 || t != math.Trunc(t) {
			return "", false
		}
		n, _ := new(big.Float).SetFloat64(t).Int(nil)
		return n.String(), true
	case int:
		if t < 0 {
			return "", false
		}
		return strconv.Itoa(t), true
	case int64:
		if t < 0 {
			return "", false
		}
		return strconv.FormatInt(t, 10), true
	case uint64:
		return strconv.FormatUint(t, 10), true
	}
	return "", false
}

// maxAmountExponent bounds exponent forms like "2e3".
const maxAmountExponent = 78

func canonicalAmountString(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}

	if n, ok := new(big.Int).SetString(s, 10); ok {
		if n.Sign() < 0 {
			return "", false
		}
		return n.String(), true
	}

	// Decimal or exponent notation that still denotes an integer.
	if strings.IndexFunc(s, func(r rune) bool {
		return !strings.ContainsRune("0123456789.eE+", r)
	}) >= 0 {
		return "", false
	}
	if i := strings.IndexAny(s, "eE"); i >= 0 {
		exp, err := strconv.Atoi(s[i+1:])
		if err != nil || exp > maxAmountExponent || exp < -maxAmountExponent {
			return "", false
		}
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok || r.Sign() < 0 || !r.IsInt() {
		return "", false
	}
	return r.Num().String(), true
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func intField(m map[string]any, key string) (int, bool) {
	switch t := m[key].(type) {
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	case float64:
		if t != math.Trunc(t) {
			return 0, false
		}
		return int(t), true
	case int:
		return t, true
	case int64:
		return int(t), true
	}
	return 0, false
}

func firstString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
