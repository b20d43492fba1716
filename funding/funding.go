// Package funding waits for a wallet balance to reach a threshold.
package funding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/auteng/x402-go"
	"github.com/benbjohnson/clock"
)

// DefaultPollInterval is the time between balance checks.
const DefaultPollInterval = 10 * time.Second

// BalanceReader returns the token balance of an address in minor units.
type BalanceReader interface {
	BalanceOf(ctx context.Context, address, network string) (*big.Int, error)
}

// Readers routes balance lookups to the reader for the network's chain family.
type Readers struct {
	EVM BalanceReader
	SVM BalanceReader
}

// BalanceOf implements BalanceReader.
func (r Readers) BalanceOf(ctx context.Context, address, network string) (*big.Int, error) {
	kind, err := x402.ValidateNetwork(network)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", x402.ErrInvalidNetwork, err)
	}

	var reader BalanceReader
	switch kind {
	case x402.NetworkTypeEVM:
		reader = r.EVM
	case x402.NetworkTypeSVM:
		reader = r.SVM
	}
	if reader == nil {
		return nil, fmt.Errorf("%w: no balance reader for %s", x402.ErrInvalidNetwork, network)
	}
	return reader.BalanceOf(ctx, address, network)
}

// Waiter polls a BalanceReader until an address is funded.
type Waiter struct {
	reader BalanceReader
	clock  clock.Clock
	logger *slog.Logger
}

// WaiterOption configures a Waiter.
type WaiterOption func(*Waiter)

// WithClock sets the clock used for deadlines and sleeps.
func WithClock(c clock.Clock) WaiterOption {
	return func(w *Waiter) {
		w.clock = c
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) WaiterOption {
	return func(w *Waiter) {
		w.logger = logger
	}
}

// NewWaiter creates a Waiter reading balances from reader.
func NewWaiter(reader BalanceReader, opts ...WaiterOption) *Waiter {
	w := &Waiter{reader: reader}
	for _, opt := range opts {
		opt(w)
	}
	if w.clock == nil {
		w.clock = clock.New()
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	return w
}

type waitConfig struct {
	pollInterval time.Duration
	timeout      time.Duration
}

// WaitOption configures a single WaitForFunding call.
type WaitOption func(*waitConfig)

// WithPollInterval sets the time between balance checks.
func WithPollInterval(d time.Duration) WaitOption {
	return func(c *waitConfig) {
		c.pollInterval = d
	}
}

// WithTimeout bounds the wait. Without it the wait only ends when the
// balance is reached or ctx is done.
func WithTimeout(d time.Duration) WaitOption {
	return func(c *waitConfig) {
		c.timeout = d
	}
}

// WaitForFunding returns nil once the balance of address on network is at
// least minAmount. A non-positive minAmount returns immediately.
//
// When the timeout elapses first it returns a *x402.FundingTimeoutError.
// When ctx is done it returns ctx.Err(), never a timeout. Balance lookup
// errors end the wait.
func (w *Waiter) WaitForFunding(ctx context.Context, address, network string, minAmount *big.Int, opts ...WaitOption) error {
	if minAmount == nil || minAmount.Sign() <= 0 {
		return nil
	}

	cfg := waitConfig{pollInterval: DefaultPollInterval}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.pollInterval <= 0 {
		cfg.pollInterval = DefaultPollInterval
	}

	logger := w.logger.With("address", address, "network", network, "required", minAmount.String())

	var deadline time.Time
	if cfg.timeout > 0 {
		deadline = w.clock.Now().Add(cfg.timeout)
	}

	for attempt := 1; ; attempt++ {
		balance, err := w.reader.BalanceOf(ctx, address, network)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("balance lookup failed: %w", err)
		}
		logger.Debug("funding poll", "attempt", attempt, "balance", balance.String())

		if balance.Cmp(minAmount) >= 0 {
			logger.Info("wallet funded", "balance", balance.String())
			return nil
		}

		sleep := cfg.pollInterval
		if !deadline.IsZero() {
			remaining := deadline.Sub(w.clock.Now())
			if remaining <= 0 {
				logger.Info("funding wait timed out", "balance", balance.String())
				return &x402.FundingTimeoutError{
					Balance:  balance,
					Required: new(big.Int).Set(minAmount),
				}
			}
			sleep = min(sleep, remaining)
		}

		if err := w.sleep(ctx, sleep); err != nil {
			return err
		}
	}
}

func (w *Waiter) sleep(ctx context.Context, d time.Duration) error {
	timer := w.clock.Timer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsTimeout reports whether err is a funding timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, x402.ErrFundingTimeout)
}
