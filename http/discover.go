package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"

	"github.com/auteng/x402-go"
)

// DefaultRegistryURL is the Coinbase CDP Bazaar discovery endpoint.
const DefaultRegistryURL = "https://api.cdp.coinbase.com/platform/v2/x402/discovery/resources"

// maxErrorBodyBytes bounds the registry error text kept in a RegistryError.
const maxErrorBodyBytes = 4 << 10

type discoverConfig struct {
	registryURL  string
	limit        *int
	offset       *int
	resourceType string
	client       *http.Client
}

// DiscoverOption configures Discover.
type DiscoverOption func(*discoverConfig)

// WithRegistryURL sets the registry endpoint. Defaults to DefaultRegistryURL.
func WithRegistryURL(registryURL string) DiscoverOption {
	return func(c *discoverConfig) {
		c.registryURL = registryURL
	}
}

// WithLimit sets the page size query parameter.
func WithLimit(limit int) DiscoverOption {
	return func(c *discoverConfig) {
		c.limit = &limit
	}
}

// WithOffset sets the page offset query parameter.
func WithOffset(offset int) DiscoverOption {
	return func(c *discoverConfig) {
		c.offset = &offset
	}
}

// WithType filters listings by resource type (e.g., "http").
func WithType(resourceType string) DiscoverOption {
	return func(c *discoverConfig) {
		c.resourceType = resourceType
	}
}

// WithDiscoverClient sets the HTTP client used for the registry request.
func WithDiscoverClient(client *http.Client) DiscoverOption {
	return func(c *discoverConfig) {
		c.client = client
	}
}

// Discover fetches one page of priced services from an x402 registry.
// Listings without any usable payment option are dropped. Each listing's
// price is that of its cheapest option. A non-2xx registry status is
// returned as a *x402.RegistryError.
func Discover(ctx context.Context, opts ...DiscoverOption) (*x402.DiscoverResult, error) {
	cfg := discoverConfig{
		registryURL: DefaultRegistryURL,
		client:      http.DefaultClient,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	endpoint, err := registryEndpoint(cfg)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create registry request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := cfg.client.Do(req)
	if err != nil {
		return nil, x402.NewPaymentError(x402.ErrCodeNetworkError, "registry request failed", err).
			WithDetails("url", endpoint)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, &x402.RegistryError{StatusCode: resp.StatusCode, Body: string(text)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, x402.NewPaymentError(x402.ErrCodeNetworkError, "failed to read registry response", err)
	}
	return parseRegistryResponse(data)
}

func registryEndpoint(cfg discoverConfig) (string, error) {
	u, err := url.Parse(cfg.registryURL)
	if err != nil {
		return "", fmt.Errorf("invalid registry URL: %w", err)
	}

	q := u.Query()
	if cfg.limit != nil {
		q.Set("limit", strconv.Itoa(*cfg.limit))
	}
	if cfg.offset != nil {
		q.Set("offset", strconv.Itoa(*cfg.offset))
	}
	if cfg.resourceType != "" {
		q.Set("type", cfg.resourceType)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// parseRegistryResponse reads a registry page. Listings come from "items"
// or "resources"; a missing or non-array field yields no listings. The total
// comes from "total", "totalCount" or "pagination.total", defaulting to the
// number of listings kept.
func parseRegistryResponse(data []byte) (*x402.DiscoverResult, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode registry response: %w", err)
	}
	obj, _ := raw.(map[string]any)

	items, ok := obj["items"].([]any)
	if !ok {
		items, _ = obj["resources"].([]any)
	}

	services := make([]x402.ServiceListing, 0, len(items))
	for _, item := range items {
		if listing, ok := normalizeListing(item); ok {
			services = append(services, listing)
		}
	}

	pagination, _ := obj["pagination"].(map[string]any)
	total := len(services)
	for _, v := range []any{obj["total"], obj["totalCount"], pagination["total"]} {
		if n, ok := countValue(v); ok {
			total = n
			break
		}
	}

	return &x402.DiscoverResult{Services: services, Total: total}, nil
}

// countValue reads a non-negative integral JSON number, including exponent
// forms such as 1e2.
func countValue(v any) (int, bool) {
	n, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	if i, err := n.Int64(); err == nil {
		return int(i), i >= 0
	}
	f, err := n.Float64()
	if err != nil || f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

// normalizeListing converts one registry item. The second return value is
// false for items that are not objects or carry no usable payment option.
func normalizeListing(raw any) (x402.ServiceListing, bool) {
	item, ok := raw.(map[string]any)
	if !ok {
		return x402.ServiceListing{}, false
	}

	rawAccepts, _ := item["accepts"].([]any)
	accepts := make([]x402.PaymentOption, 0, len(rawAccepts))
	for _, a := range rawAccepts {
		m, ok := a.(map[string]any)
		if !ok {
			continue
		}
		if opt, ok := x402.NormalizeOption(m); ok {
			accepts = append(accepts, opt)
		}
	}
	if len(accepts) == 0 {
		return x402.ServiceListing{}, false
	}

	cheapest := cheapestOption(accepts)
	firstAccept, _ := rawAccepts[0].(map[string]any)
	resource, _ := item["resource"].(map[string]any)
	metadata, _ := item["metadata"].(map[string]any)

	listing := x402.ServiceListing{
		URL: firstNonEmpty(
			stringValue(item, "url"),
			stringValue(resource, "url"),
			stringValue(item, "resource"),
			stringValue(firstAccept, "resource"),
		),
		Price:    x402.FormatPrice(cheapest.Amount, cheapest.Asset, cheapest.Network),
		Accepts:  accepts,
		Metadata: metadata,
	}
	if desc := firstNonEmpty(
		stringValue(item, "description"),
		stringValue(resource, "description"),
		stringValue(firstAccept, "description"),
		stringValue(metadata, "description"),
	); desc != "" {
		listing.Description = &desc
	}
	if listing.Metadata == nil {
		listing.Metadata = map[string]any{}
	}
	return listing, true
}

// cheapestOption returns the option with the smallest amount.
// Ties keep the earliest option.
func cheapestOption(options []x402.PaymentOption) x402.PaymentOption {
	best := options[0]
	bestAmount, _ := best.AmountInt()
	for _, opt := range options[1:] {
		amount, _ := opt.AmountInt()
		if amount.Cmp(bestAmount) < 0 {
			best, bestAmount = opt, amount
		}
	}
	return best
}

func stringValue(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
