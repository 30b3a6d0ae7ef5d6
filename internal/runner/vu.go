// Package runner runs virtual users: each VU repeatedly builds its
// iteration's operations, sends them and records the outcome.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wesleyorama2/walletprobe/internal/check"
	"github.com/wesleyorama2/walletprobe/internal/identity"
	"github.com/wesleyorama2/walletprobe/internal/metrics"
	"github.com/wesleyorama2/walletprobe/internal/transport"
	"github.com/wesleyorama2/walletprobe/internal/workload"
)

// ErrVUStopped is returned by RunIteration once the VU was asked to stop.
var ErrVUStopped = errors.New("virtual user is stopping")

// VUState represents the lifecycle state of a Virtual User.
type VUState int32

const (
	// VUStateIdle indicates the VU is ready but not currently running.
	VUStateIdle VUState = iota
	// VUStateRunning indicates the VU is running an iteration.
	VUStateRunning
	// VUStateStopping indicates the VU has been requested to stop.
	VUStateStopping
	// VUStateStopped indicates the VU has fully stopped.
	VUStateStopped
)

func (s VUState) String() string {
	switch s {
	case VUStateIdle:
		return "idle"
	case VUStateRunning:
		return "running"
	case VUStateStopping:
		return "stopping"
	case VUStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Runtime is what every VU of a run shares. Builder, Tokens and Verifier
// hold no per-VU state; Tokens and Metrics are the only shared mutable
// state.
type Runtime struct {
	Builder   *workload.Builder
	Tokens    *identity.TokenCache
	Transport transport.Transport
	Verifier  *check.Verifier
	Metrics   *metrics.Engine
	Pacing    Pacing
	Logger    *slog.Logger
}

func (rt *Runtime) validate() error {
	switch {
	case rt.Builder == nil:
		return fmt.Errorf("runtime: builder is required")
	case rt.Tokens == nil:
		return fmt.Errorf("runtime: token cache is required")
	case rt.Transport == nil:
		return fmt.Errorf("runtime: transport is required")
	case rt.Metrics == nil:
		return fmt.Errorf("runtime: metrics engine is required")
	}
	return rt.Pacing.Validate()
}

// VirtualUser is one simulated client executing a sequential stream of
// iterations.
//
// The iteration counter is private to the VU and strictly increasing, and
// VU ids are never reused within a run, so (ID, iteration) is unique
// across the run. The stop signal is only observed between iterations and
// during pacing; an in-flight request is never interrupted by it.
type VirtualUser struct {
	// ID is unique within the run, starting at 1.
	ID int

	rt *Runtime

	state atomic.Int32

	stopCh   chan struct{}
	stopOnce sync.Once

	iteration atomic.Int64
}

func newVirtualUser(id int, rt *Runtime) *VirtualUser {
	return &VirtualUser{
		ID:     id,
		rt:     rt,
		stopCh: make(chan struct{}),
	}
}

// GetState returns the current VU state.
func (vu *VirtualUser) GetState() VUState {
	return VUState(vu.state.Load())
}

// GetIteration returns the number of iterations started.
func (vu *VirtualUser) GetIteration() int64 {
	return vu.iteration.Load()
}

// Stopping reports whether the VU was asked to stop.
func (vu *VirtualUser) Stopping() bool {
	s := vu.GetState()
	return s == VUStateStopping || s == VUStateStopped
}

// RunIteration executes one iteration: build the operations for the next
// iteration index, then for each one fetch a token, send, verify and
// record. The iteration ends with the configured pacing delay.
//
// Per-request failures are absorbed into metrics. The returned error is
// ErrVUStopped when the VU was already stopping, or ctx.Err() when the
// iteration was cut short by cancellation (it is then not counted).
func (vu *VirtualUser) RunIteration(ctx context.Context) error {
	if !vu.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateRunning)) {
		return ErrVUStopped
	}
	defer vu.state.CompareAndSwap(int32(VUStateRunning), int32(VUStateIdle))

	iter := vu.iteration.Add(1) - 1
	it := vu.rt.Builder.Build(vu.ID, iter)

	for _, op := range it.Operations {
		if err := ctx.Err(); err != nil {
			return err
		}
		vu.execute(ctx, op)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	vu.rt.Metrics.RecordIteration()

	if d := vu.rt.Pacing.Delay(); d > 0 {
		vu.sleep(ctx, d)
	}
	return nil
}

// execute sends one operation and records its outcome.
func (vu *VirtualUser) execute(ctx context.Context, op workload.Operation) {
	kind := string(op.Kind())

	res := vu.send(ctx, op)
	if res.Err != nil && ctx.Err() != nil {
		// Cancelled by the run, not a service failure.
		return
	}

	vu.rt.Metrics.RecordRequest(metrics.Sample{
		Operation:  kind,
		StatusCode: res.StatusCode,
		Latency:    res.Latency,
		Bytes:      int64(len(res.Body)),
		Err:        res.Err,
	})

	if vu.rt.Verifier != nil {
		for _, r := range vu.rt.Verifier.Verify(op.Kind(), res) {
			vu.rt.Metrics.RecordCheck(r.Name, r.Passed)
			if !r.Passed && vu.rt.Logger != nil {
				vu.rt.Logger.Debug("check failed",
					slog.Int("vu", vu.ID),
					slog.String("check", r.Name),
					slog.String("reason", r.Reason))
			}
		}
	}
}

func (vu *VirtualUser) send(ctx context.Context, op workload.Operation) *transport.Result {
	token, err := vu.rt.Tokens.Token(op.Scopes())
	if err != nil {
		return &transport.Result{Err: fmt.Errorf("mint token: %w", err)}
	}

	body, err := op.Body()
	if err != nil {
		return &transport.Result{Err: fmt.Errorf("encode %s body: %w", op.Kind(), err)}
	}

	headers := map[string]string{"Authorization": "Bearer " + token.Raw}
	if key := op.IdempotencyKey(); key != "" {
		headers["Idempotency-Key"] = key
	}

	res := vu.rt.Transport.Send(ctx, &transport.Request{
		Method:  op.Method(),
		Path:    op.Path(),
		Body:    body,
		Headers: headers,
	})
	if res == nil {
		return &transport.Result{Err: errors.New("transport returned no result")}
	}
	if res.Err != nil && vu.rt.Logger != nil {
		vu.rt.Logger.Debug("request failed",
			slog.Int("vu", vu.ID),
			slog.String("operation", string(op.Kind())),
			slog.Any("error", res.Err))
	}
	return res
}

// sleep waits for d, the stop signal or cancellation, whichever is first.
func (vu *VirtualUser) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-vu.stopCh:
	case <-timer.C:
	}
}

// RequestStop signals the VU to stop after completing the current
// iteration.
func (vu *VirtualUser) RequestStop() {
	for {
		s := vu.state.Load()
		if s == int32(VUStateStopping) || s == int32(VUStateStopped) {
			return
		}
		if vu.state.CompareAndSwap(s, int32(VUStateStopping)) {
			vu.stopOnce.Do(func() { close(vu.stopCh) })
			return
		}
	}
}

// MarkStopped marks the VU as fully stopped.
// The scheduler calls it when the VU's goroutine exits.
func (vu *VirtualUser) MarkStopped() {
	vu.state.Store(int32(VUStateStopped))
}
