package authguard

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/penwell/authguard/internal/limiters"
	"github.com/penwell/authguard/internal/rate"
)

// CheckResource reports whether identifier may perform one more kind action
// in the current window. It never mutates the counter. Any store failure
// returns false so the gated action is denied.
//
// Call CheckResource before the action and IncrementResource only after it
// succeeded.
func (e *Engine) CheckResource(ctx context.Context, kind, identifier string) (bool, error) {
	if !e.ready() {
		return false, ErrEngineNotReady
	}

	storeCtx, cancel := e.storeContext(ctx)
	defer cancel()

	ok, err := e.limiter.Check(storeCtx, kind, identifier)
	if err != nil {
		return false, e.resourceError(err)
	}
	if !ok {
		e.metricInc(MetricResourceLimitHit)
		e.emitResource(ctx, auditEventResourceLimitHit, kind, identifier, nil)
	}
	return ok, nil
}

// RequireResource is CheckResource as an error: nil when allowed,
// ErrResourceLimited when the cap is reached.
func (e *Engine) RequireResource(ctx context.Context, kind, identifier string) error {
	ok, err := e.CheckResource(ctx, kind, identifier)
	if err != nil {
		return err
	}
	if !ok {
		return ErrResourceLimited
	}
	return nil
}

// RemainingResource returns how many kind actions identifier has left in
// the current window.
func (e *Engine) RemainingResource(ctx context.Context, kind, identifier string) (int64, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}

	storeCtx, cancel := e.storeContext(ctx)
	defer cancel()

	n, err := e.limiter.Remaining(storeCtx, kind, identifier)
	if err != nil {
		return 0, e.resourceError(err)
	}
	return n, nil
}

// IncrementResource records one completed kind action. The gated action has
// already happened, so a failure here is logged and returned but must not
// be retried by the caller.
func (e *Engine) IncrementResource(ctx context.Context, kind, identifier string) (int64, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}

	storeCtx, cancel := e.storeContext(ctx)
	defer cancel()

	n, err := e.limiter.Increment(storeCtx, kind, identifier)
	if err != nil {
		err = e.resourceError(err)
		e.metricInc(MetricResourceIncrementFailure)
		e.log.Error().Err(err).
			Str("kind", kind).
			Str("identifier", identifier).
			Str("request_id", RequestIDFromContext(ctx)).
			Msg("resource counter increment failed")
		return 0, err
	}
	return n, nil
}

// RecordFailure registers one failed attempt of a sensitive kind operation
// (e.g. a wrong password) for identifier, which may be a user id or a
// client address.
func (e *Engine) RecordFailure(ctx context.Context, kind, identifier string) (LockStatus, error) {
	if !e.ready() {
		return LockStatus{}, ErrEngineNotReady
	}

	storeCtx, cancel := e.storeContext(ctx)
	defer cancel()

	st, err := e.locks.RecordFailure(storeCtx, kind, identifier)
	if err != nil {
		return LockStatus{}, e.resourceError(err)
	}

	e.metricInc(MetricLockFailureRecorded)
	status := LockStatus{Attempts: st.Attempts, Locked: st.Locked, RetryAfter: st.RetryAfter}
	if status.Locked {
		e.metricInc(MetricResourceLocked)
		e.emitResource(ctx, auditEventResourceLocked, kind, identifier, func() map[string]string {
			return map[string]string{"retry_after_ms": strconv.FormatInt(status.RetryAfter.Milliseconds(), 10)}
		})
	} else {
		e.emitResource(ctx, auditEventLockFailure, kind, identifier, func() map[string]string {
			return map[string]string{"attempts": strconv.FormatInt(status.Attempts, 10)}
		})
	}
	return status, nil
}

// ResourceLocked reports whether kind is locked for identifier and for how
// much longer. A store failure reports locked with the error, never
// unlocked.
func (e *Engine) ResourceLocked(ctx context.Context, kind, identifier string) (bool, time.Duration, error) {
	if !e.ready() {
		return true, 0, ErrEngineNotReady
	}

	storeCtx, cancel := e.storeContext(ctx)
	defer cancel()

	st, err := e.locks.Status(storeCtx, kind, identifier)
	if err != nil {
		return true, 0, e.resourceError(err)
	}
	return st.Locked, st.RetryAfter, nil
}

// ClearFailures resets the lock counter, typically after a successful
// attempt.
func (e *Engine) ClearFailures(ctx context.Context, kind, identifier string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	storeCtx, cancel := e.storeContext(ctx)
	defer cancel()

	return e.resourceError(e.locks.Reset(storeCtx, kind, identifier))
}

func (e *Engine) resourceError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrUnknownKind), errors.Is(err, limiters.ErrUnknownLockKind):
		return ErrUnknownResourceKind
	case errors.Is(err, rate.ErrInvalidIdentifier), errors.Is(err, limiters.ErrInvalidIdentifier):
		return ErrInvalidIdentifier
	default:
		return e.storeError(err)
	}
}
