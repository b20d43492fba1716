package funding

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/auteng/x402-go"
	"github.com/benbjohnson/clock"
)

const testAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

// fakeReader returns balances in order, repeating the last one.
type fakeReader struct {
	mu       sync.Mutex
	balances []int64
	err      error
	calls    int
	networks []string
}

func (f *fakeReader) BalanceOf(ctx context.Context, address, network string) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.networks = append(f.networks, network)
	if f.err != nil {
		return nil, f.err
	}
	i := min(f.calls-1, len(f.balances)-1)
	return big.NewInt(f.balances[i]), nil
}

func (f *fakeReader) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type result struct {
	err     error
	elapsed time.Duration
}

// run starts a wait in the background and advances the mock clock in steps
// until it returns.
func run(t *testing.T, w *Waiter, mock *clock.Mock, ctx context.Context, minAmount int64, opts ...WaitOption) result {
	t.Helper()

	done := make(chan result, 1)
	go func() {
		start := mock.Now()
		err := w.WaitForFunding(ctx, testAddress, "eip155:8453", big.NewInt(minAmount), opts...)
		done <- result{err: err, elapsed: mock.Now().Sub(start)}
	}()

	for i := 0; i < 10000; i++ {
		select {
		case r := <-done:
			return r
		default:
		}
		mock.Add(time.Second)
	}
	t.Fatal("wait did not finish")
	return result{}
}

func newTestWaiter(reader BalanceReader) (*Waiter, *clock.Mock) {
	mock := clock.NewMock()
	return NewWaiter(reader, WithClock(mock), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))), mock
}

func TestWaitForFunding_ZeroReturnsImmediately(t *testing.T) {
	reader := &fakeReader{balances: []int64{0}}
	w, _ := newTestWaiter(reader)

	if err := w.WaitForFunding(context.Background(), testAddress, "base", big.NewInt(0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := w.WaitForFunding(context.Background(), testAddress, "base", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reader.callCount() != 0 {
		t.Errorf("expected no balance lookups, got %d", reader.callCount())
	}
}

func TestWaitForFunding_AlreadyFunded(t *testing.T) {
	reader := &fakeReader{balances: []int64{1000}}
	w, _ := newTestWaiter(reader)

	// No clock advance needed: the first poll satisfies the threshold.
	if err := w.WaitForFunding(context.Background(), testAddress, "base", big.NewInt(1000)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reader.callCount() != 1 {
		t.Errorf("expected 1 lookup, got %d", reader.callCount())
	}
}

func TestWaitForFunding_FundedAfterPolls(t *testing.T) {
	reader := &fakeReader{balances: []int64{0, 5, 10}}
	w, mock := newTestWaiter(reader)

	r := run(t, w, mock, context.Background(), 10, WithPollInterval(10*time.Second))
	if r.err != nil {
		t.Fatalf("unexpected error: %v", r.err)
	}
	if reader.callCount() != 3 {
		t.Errorf("expected 3 lookups, got %d", reader.callCount())
	}
	if r.elapsed < 20*time.Second {
		t.Errorf("expected at least two poll intervals, got %v", r.elapsed)
	}
}

func TestWaitForFunding_Timeout(t *testing.T) {
	tests := []struct {
		name     string
		interval time.Duration
		timeout  time.Duration
	}{
		{name: "multiple of interval", interval: 10 * time.Second, timeout: 30 * time.Second},
		{name: "between polls", interval: 10 * time.Second, timeout: 25 * time.Second},
		{name: "shorter than interval", interval: time.Minute, timeout: 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := &fakeReader{balances: []int64{3}}
			w, mock := newTestWaiter(reader)

			r := run(t, w, mock, context.Background(), 10, WithPollInterval(tt.interval), WithTimeout(tt.timeout))

			var timeoutErr *x402.FundingTimeoutError
			if !errors.As(r.err, &timeoutErr) {
				t.Fatalf("expected FundingTimeoutError, got %v", r.err)
			}
			if !errors.Is(r.err, x402.ErrFundingTimeout) || !IsTimeout(r.err) {
				t.Error("timeout error should match ErrFundingTimeout")
			}
			if timeoutErr.Balance.Int64() != 3 || timeoutErr.Required.Int64() != 10 {
				t.Errorf("unexpected balances %s < %s", timeoutErr.Balance, timeoutErr.Required)
			}
			if r.elapsed < tt.timeout {
				t.Errorf("timed out early after %v (timeout %v)", r.elapsed, tt.timeout)
			}
			if r.elapsed > tt.timeout+5*time.Second {
				t.Errorf("timed out late after %v (timeout %v)", r.elapsed, tt.timeout)
			}
		})
	}
}

func TestWaitForFunding_CancelledIsNotTimeout(t *testing.T) {
	reader := &fakeReader{balances: []int64{0}}
	w, mock := newTestWaiter(reader)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- w.WaitForFunding(ctx, testAddress, "base", big.NewInt(1), WithTimeout(time.Hour))
	}()

	// Let the first poll happen, then cancel mid-sleep without advancing past the deadline.
	for reader.callCount() == 0 {
		mock.Add(time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if IsTimeout(err) {
			t.Fatal("cancellation must not be reported as a timeout")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("wait did not observe cancellation")
	}
}

func TestWaitForFunding_LookupError(t *testing.T) {
	lookupErr := io.ErrUnexpectedEOF
	reader := &fakeReader{err: lookupErr}
	w, _ := newTestWaiter(reader)

	err := w.WaitForFunding(context.Background(), testAddress, "base", big.NewInt(1))
	if !errors.Is(err, lookupErr) {
		t.Fatalf("expected lookup error, got %v", err)
	}
}

func TestReaders_Routing(t *testing.T) {
	evm := &fakeReader{balances: []int64{1}}
	svm := &fakeReader{balances: []int64{2}}
	readers := Readers{EVM: evm, SVM: svm}

	tests := []struct {
		network string
		want    int64
	}{
		{"eip155:8453", 1},
		{"base-sepolia", 1},
		{"eip155:1", 1},
		{"solana", 2},
		{x402.SolanaDevnet.NetworkID, 2},
	}
	for _, tt := range tests {
		got, err := readers.BalanceOf(context.Background(), testAddress, tt.network)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.network, err)
		}
		if got.Int64() != tt.want {
			t.Errorf("%s: routed to wrong reader (got %s)", tt.network, got)
		}
	}

	if _, err := readers.BalanceOf(context.Background(), testAddress, "cosmos:hub"); !errors.Is(err, x402.ErrInvalidNetwork) {
		t.Errorf("expected ErrInvalidNetwork, got %v", err)
	}
	if _, err := (Readers{EVM: evm}).BalanceOf(context.Background(), testAddress, "solana"); !errors.Is(err, x402.ErrInvalidNetwork) {
		t.Errorf("expected ErrInvalidNetwork for missing reader, got %v", err)
	}
}
