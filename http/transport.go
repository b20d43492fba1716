package http

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/auteng/x402-go"
	"github.com/auteng/x402-go/encoding"
	"github.com/google/uuid"
)

// Protocol header names.
const (
	// HeaderPaymentV1 carries the payment envelope for generation-1 demands.
	HeaderPaymentV1 = "X-PAYMENT"

	// HeaderPaymentV2 carries the payment envelope for generation-2 demands.
	HeaderPaymentV2 = "PAYMENT-SIGNATURE"

	// HeaderPaymentRequired optionally carries a base64 payment demand on 402 responses.
	HeaderPaymentRequired = "PAYMENT-REQUIRED"

	// HeaderSettlementV1 carries the settlement receipt for generation-1 payments.
	HeaderSettlementV1 = "X-PAYMENT-RESPONSE"

	// HeaderSettlementV2 carries the settlement receipt for generation-2 payments.
	HeaderSettlementV2 = "PAYMENT-RESPONSE"
)

// maxDemandBytes bounds how much of a 402 body is read for normalization.
const maxDemandBytes = 1 << 20

// Payment flow states, logged at debug level.
const (
	stateAwaitingFirstResponse = "awaiting_first_response"
	stateNeedsPayment          = "needs_payment"
	statePaymentFailed         = "payment_failed"
	stateDone                  = "done"
)

// X402Transport is a custom RoundTripper that handles x402 payment flows.
// It wraps an existing http.RoundTripper and answers a 402 Payment Required
// response by signing one payment and retrying the request exactly once.
// The second response is returned as-is, whatever its status.
type X402Transport struct {
	// Base is the underlying RoundTripper (typically http.DefaultTransport).
	Base http.RoundTripper

	// Signers is the list of available payment signers.
	Signers []x402.Signer

	// Selector is used to choose the appropriate signer and create payments.
	Selector x402.PaymentSelector

	// Logger receives payment flow logs. Defaults to slog.Default().
	Logger *slog.Logger

	// OnPaymentAttempt is called when a payment attempt is made.
	OnPaymentAttempt x402.PaymentCallback

	// OnPaymentSuccess is called when a payment succeeds.
	OnPaymentSuccess x402.PaymentCallback

	// OnPaymentFailure is called when a payment fails.
	OnPaymentFailure x402.PaymentCallback
}

// RoundTrip implements http.RoundTripper.
func (t *X402Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	selector := t.Selector
	if selector == nil {
		selector = x402.NewDefaultPaymentSelector()
	}
	logger := t.logger().With("method", req.Method, "url", req.URL.String())

	body, err := newReplayableBody(req)
	if err != nil {
		return nil, x402.NewPaymentError(x402.ErrCodeNetworkError, "failed to read request body", err)
	}

	logger.Debug("x402 request", "state", stateAwaitingFirstResponse)
	first, err := body.request(req)
	if err != nil {
		return nil, x402.NewPaymentError(x402.ErrCodeNetworkError, "failed to prepare request", err)
	}
	resp, err := base.RoundTrip(first)
	if err != nil {
		return nil, x402.NewPaymentError(x402.ErrCodeNetworkError, "request failed", err)
	}

	if resp.StatusCode != http.StatusPaymentRequired {
		logger.Debug("x402 request", "state", stateDone, "status", resp.StatusCode)
		return resp, nil
	}

	requirement, err := readPaymentRequirement(resp)
	if err != nil {
		return nil, x402.NewPaymentError(x402.ErrCodeNetworkError, "failed to read payment demand", err)
	}
	if requirement == nil {
		// No usable demand: hand the 402 back untouched.
		logger.Debug("x402 request", "state", stateDone, "status", resp.StatusCode, "reason", "unparsable payment demand")
		return resp, nil
	}
	resp.Body.Close()

	flow := &paymentFlow{id: uuid.NewString(), req: req, start: time.Now()}
	logger = logger.With("payment_id", flow.id)
	logger.Debug("x402 request", "state", stateNeedsPayment, "options", len(requirement.Accepts))

	option, auth, err := selector.SelectAndSign(req.Context(), requirement, t.Signers)
	if err != nil {
		logger.Debug("x402 request", "state", statePaymentFailed, "error", err)
		t.notifyFailure(flow, nil, err)
		return nil, err
	}

	// Never submit an authorization for a call the caller has abandoned.
	if err := req.Context().Err(); err != nil {
		logger.Debug("x402 request", "state", statePaymentFailed, "error", err)
		t.notifyFailure(flow, option, err)
		return nil, fmt.Errorf("payment not sent: %w", err)
	}

	headerName, headerValue, err := buildPaymentHeader(requirement, option, auth)
	if err != nil {
		logger.Debug("x402 request", "state", statePaymentFailed, "error", err)
		t.notifyFailure(flow, option, err)
		return nil, x402.NewPaymentError(x402.ErrCodeSigningFailed, "failed to build payment header", err)
	}

	logger.Info("paying for request",
		"network", option.Network,
		"asset", option.Asset,
		"amount", option.Amount,
		"payTo", option.PayTo,
		"payer", auth.Payer,
	)
	if t.OnPaymentAttempt != nil {
		event := flow.event(x402.PaymentEventAttempt, option)
		event.Timestamp = flow.start
		t.OnPaymentAttempt(event)
	}

	retry, err := body.request(req)
	if err != nil {
		t.notifyFailure(flow, option, err)
		return nil, x402.NewPaymentError(x402.ErrCodeNetworkError, "failed to prepare paid request", err)
	}
	retry.Header.Set(headerName, headerValue)

	respRetry, err := base.RoundTrip(retry)
	if err != nil {
		logger.Debug("x402 request", "state", statePaymentFailed, "error", err)
		t.notifyFailure(flow, option, err)
		return nil, x402.NewPaymentError(x402.ErrCodeNetworkError, "paid request failed", err)
	}
	logger.Debug("x402 request", "state", stateDone, "status", respRetry.StatusCode)

	settlement := GetSettlement(respRetry)
	switch {
	case settlement != nil && settlement.Success:
		if t.OnPaymentSuccess != nil {
			event := flow.event(x402.PaymentEventSuccess, option)
			event.Transaction = settlement.Transaction
			event.Payer = settlement.Payer
			t.OnPaymentSuccess(event)
		}
	case settlement != nil:
		t.notifyFailure(flow, option, fmt.Errorf("settlement failed: %s", settlement.ErrorReason))
	}

	return respRetry, nil
}

func (t *X402Transport) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}

func (t *X402Transport) notifyFailure(flow *paymentFlow, option *x402.PaymentOption, err error) {
	if t.OnPaymentFailure == nil {
		return
	}
	event := flow.event(x402.PaymentEventFailure, option)
	event.Error = err
	t.OnPaymentFailure(event)
}

// paymentFlow identifies one 402 answered by a payment.
type paymentFlow struct {
	id    string
	req   *http.Request
	start time.Time
}

func (f *paymentFlow) event(eventType x402.PaymentEventType, option *x402.PaymentOption) x402.PaymentEvent {
	event := x402.PaymentEvent{
		Type:      eventType,
		Timestamp: time.Now(),
		PaymentID: f.id,
		Method:    f.req.Method,
		URL:       f.req.URL.String(),
		Duration:  time.Since(f.start),
	}
	if option != nil {
		event.Network = option.Network
		event.Scheme = option.Scheme
		event.Amount = option.Amount
		event.Asset = option.Asset
		event.Recipient = option.PayTo
	}
	return event
}

// readPaymentRequirement normalizes the demand carried by a 402 response,
// from the body or, failing that, the PAYMENT-REQUIRED header. At most
// maxDemandBytes are parsed; the full body stays readable so the response
// can be returned to the caller unchanged.
func readPaymentRequirement(resp *http.Response) (*x402.PaymentRequirement, error) {
	original := resp.Body
	data, err := io.ReadAll(io.LimitReader(original, maxDemandBytes))
	if err != nil {
		original.Close()
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	resp.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(data), original), original}

	if req := x402.ParsePaymentRequired(data); req != nil {
		return req, nil
	}
	if header := resp.Header.Get(HeaderPaymentRequired); header != "" {
		if req, err := encoding.DecodeRequirements(header); err == nil {
			return req, nil
		}
	}
	return nil, nil
}

// buildPaymentHeader wraps the authorization in the envelope matching the
// demand's protocol generation and returns the header to attach.
func buildPaymentHeader(requirement *x402.PaymentRequirement, option *x402.PaymentOption, auth *x402.Authorization) (string, string, error) {
	if requirement.X402Version >= x402.X402VersionV2 {
		resource := requirement.Resource
		value, err := encoding.EncodePayment(x402.PaymentPayloadV2{
			X402Version: requirement.X402Version,
			Resource:    &resource,
			Accepted:    *option,
			Payload:     auth.Payload,
			Extensions:  requirement.Extensions,
		})
		return HeaderPaymentV2, value, err
	}

	value, err := encoding.EncodePayment(x402.PaymentPayloadV1{
		X402Version: x402.X402VersionV1,
		Scheme:      option.Scheme,
		Network:     option.Network,
		Payload:     auth.Payload,
	})
	return HeaderPaymentV1, value, err
}

// replayableBody lets one request be sent twice with the same body.
type replayableBody struct {
	data    []byte
	getBody func() (io.ReadCloser, error)
	used    bool
}

func newReplayableBody(req *http.Request) (*replayableBody, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return &replayableBody{}, nil
	}
	if req.GetBody != nil {
		return &replayableBody{getBody: req.GetBody}, nil
	}

	data, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, err
	}
	return &replayableBody{data: data}, nil
}

// request clones req with a fresh copy of the original body.
func (b *replayableBody) request(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	switch {
	case b.getBody != nil:
		if !b.used {
			// The caller's body is still unread on the first attempt.
			b.used = true
			return clone, nil
		}
		body, err := b.getBody()
		if err != nil {
			return nil, err
		}
		clone.Body = body
	case b.data != nil:
		clone.Body = io.NopCloser(bytes.NewReader(b.data))
		clone.ContentLength = int64(len(b.data))
		clone.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(b.data)), nil
		}
	}
	return clone, nil
}
