package http

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/auteng/x402-go"
)

type probeConfig struct {
	method string
	header http.Header
	body   []byte
	client *http.Client
}

// ProbeOption configures Probe.
type ProbeOption func(*probeConfig)

// WithProbeMethod sets the HTTP method. Defaults to GET.
func WithProbeMethod(method string) ProbeOption {
	return func(c *probeConfig) {
		c.method = method
	}
}

// WithProbeHeader adds a request header.
func WithProbeHeader(key, value string) ProbeOption {
	return func(c *probeConfig) {
		c.header.Add(key, value)
	}
}

// WithProbeBody sets the request body.
func WithProbeBody(body []byte) ProbeOption {
	return func(c *probeConfig) {
		c.body = body
	}
}

// WithProbeClient sets the HTTP client used for the request.
// The client must not pay automatically, or the probe is no longer read-only.
func WithProbeClient(client *http.Client) ProbeOption {
	return func(c *probeConfig) {
		c.client = client
	}
}

// Probe reports whether url demands an x402 payment and what it would cost,
// without paying. A target that does not answer 402 with a usable demand is
// reported as not enabled; only transport failures are returned as errors.
// The price is that of the first option the server offers.
func Probe(ctx context.Context, url string, opts ...ProbeOption) (*x402.ProbeResult, error) {
	cfg := probeConfig{
		method: http.MethodGet,
		header: make(http.Header),
		client: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	var body io.Reader
	if cfg.body != nil {
		body = bytes.NewReader(cfg.body)
	}
	req, err := http.NewRequestWithContext(ctx, cfg.method, url, body)
	if err != nil {
		return nil, x402.NewPaymentError(x402.ErrCodeNetworkError, "failed to create probe request", err)
	}
	for key, values := range cfg.header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := cfg.client.Do(req)
	if err != nil {
		return nil, x402.NewPaymentError(x402.ErrCodeNetworkError, "probe request failed", err).
			WithDetails("url", url)
	}
	defer resp.Body.Close()

	result := &x402.ProbeResult{URL: url, Status: resp.StatusCode}
	if resp.StatusCode != http.StatusPaymentRequired {
		return result, nil
	}

	requirement, err := readPaymentRequirement(resp)
	if err != nil {
		return nil, x402.NewPaymentError(x402.ErrCodeNetworkError, "failed to read probe response", err).
			WithDetails("url", url)
	}
	if requirement == nil {
		return result, nil
	}

	first := requirement.Accepts[0]
	result.Enabled = true
	result.Price = x402.FormatPrice(first.Amount, first.Asset, first.Network)
	result.PaymentRequired = requirement
	return result, nil
}
