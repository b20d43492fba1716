package http

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/auteng/x402-go"
	"github.com/auteng/x402-go/encoding"
)

// Client is an *http.Client whose transport answers 402 responses by paying
// once and retrying. Options that configure payment install an X402Transport
// over the client's existing transport on first use.
type Client struct {
	*http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client) error

// NewClient returns a Client configured by opts.
func NewClient(opts ...ClientOption) (*Client, error) {
	c := &Client{Client: &http.Client{Transport: http.DefaultTransport}}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// WithHTTPClient replaces the underlying client. Apply it before options
// that configure payment, which wrap its transport.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) error {
		if httpClient.Transport == nil {
			httpClient.Transport = http.DefaultTransport
		}
		c.Client = httpClient
		return nil
	}
}

// WithSigner adds a payment signer. The selector picks among all of them.
func WithSigner(signer x402.Signer) ClientOption {
	return func(c *Client) error {
		if signer == nil {
			return fmt.Errorf("signer cannot be nil")
		}
		t := c.payments()
		t.Signers = append(t.Signers, signer)
		return nil
	}
}

// WithSelector sets a custom payment selector.
func WithSelector(selector x402.PaymentSelector) ClientOption {
	return func(c *Client) error {
		c.payments().Selector = selector
		return nil
	}
}

// WithLogger sets the logger used for payment flow logs.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) error {
		c.payments().Logger = logger
		return nil
	}
}

// WithPaymentCallback registers callback for one event type.
func WithPaymentCallback(eventType x402.PaymentEventType, callback x402.PaymentCallback) ClientOption {
	return func(c *Client) error {
		slot := c.payments().callback(eventType)
		if slot == nil {
			return fmt.Errorf("unknown payment event type: %s", eventType)
		}
		*slot = callback
		return nil
	}
}

// WithPaymentCallbacks registers the attempt, success and failure callbacks.
// Nil arguments leave the existing callback in place.
func WithPaymentCallbacks(onAttempt, onSuccess, onFailure x402.PaymentCallback) ClientOption {
	return func(c *Client) error {
		t := c.payments()
		for eventType, cb := range map[x402.PaymentEventType]x402.PaymentCallback{
			x402.PaymentEventAttempt: onAttempt,
			x402.PaymentEventSuccess: onSuccess,
			x402.PaymentEventFailure: onFailure,
		} {
			if cb != nil {
				*t.callback(eventType) = cb
			}
		}
		return nil
	}
}

// payments returns the client's X402Transport, wrapping the current
// transport in one if needed.
func (c *Client) payments() *X402Transport {
	if t, ok := c.Transport.(*X402Transport); ok {
		return t
	}
	t := &X402Transport{Base: c.Transport, Selector: x402.NewDefaultPaymentSelector()}
	c.Transport = t
	return t
}

func (t *X402Transport) callback(eventType x402.PaymentEventType) *x402.PaymentCallback {
	switch eventType {
	case x402.PaymentEventAttempt:
		return &t.OnPaymentAttempt
	case x402.PaymentEventSuccess:
		return &t.OnPaymentSuccess
	case x402.PaymentEventFailure:
		return &t.OnPaymentFailure
	}
	return nil
}

// GetSettlement decodes the settlement receipt of a paid response, from
// PAYMENT-RESPONSE or else X-PAYMENT-RESPONSE. It returns nil when neither
// header is present or the value does not decode.
func GetSettlement(resp *http.Response) *x402.SettlementResponse {
	if resp == nil {
		return nil
	}

	header := resp.Header.Get(HeaderSettlementV2)
	if header == "" {
		header = resp.Header.Get(HeaderSettlementV1)
	}
	if header == "" {
		return nil
	}

	settlement, err := encoding.DecodeSettlement(header)
	if err != nil {
		return nil
	}
	return &settlement
}
