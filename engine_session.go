package authguard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/penwell/authguard/internal"
	"github.com/penwell/authguard/session"
)

// Login issues a fresh session for userID and returns its key and signed
// cookie value.
//
// Device and location come from opts or are derived from the request
// context; a classifier or resolver failure is logged and the session is
// created without that field. When opts.PreviousCookie refers to a live
// session, that session is deleted first so a pre-login cookie can never be
// carried over into the authenticated state.
//
//	Flow: Anonymous -> Authenticated (unacknowledged)
//	Performance: 1 SET, plus 1 DEL when renewing.
func (e *Engine) Login(ctx context.Context, userID int64, opts LoginOptions) (*LoginResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if userID <= 0 {
		e.metricInc(MetricLoginFailure)
		return nil, ErrInvalidUserID
	}

	renewed, err := e.dropPreviousSession(ctx, opts.PreviousCookie)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLogin, false, userID, session.Key{}, err, nil)
		return nil, err
	}

	tok, err := internal.NewSessionToken()
	if err != nil {
		e.metricInc(MetricLoginFailure)
		return nil, fmt.Errorf("generate session token: %w", err)
	}
	key := session.Key{UserID: userID, Token: tok.String()}

	rec := session.Record{
		UserID:    userID,
		CreatedAt: e.now().Unix(),
		Device:    opts.Device,
		Location:  opts.Location,
	}
	if rec.Device == nil {
		rec.Device = e.classifyDevice(ctx, opts.UserAgent, userID)
	}
	if rec.Location == nil {
		rec.Location = e.resolveLocation(ctx, opts.ClientIP, userID)
	}

	storeCtx, cancel := e.storeContext(ctx)
	err = e.sessions.Set(storeCtx, key, &rec, e.config.Session.TTL)
	cancel()
	if err != nil {
		err = e.storeError(err)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLogin, false, userID, key, err, nil)
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	if renewed {
		e.metricInc(MetricSessionRenewed)
		e.emitAudit(ctx, auditEventSessionRenewed, true, userID, key, nil, nil)
	}
	e.emitAudit(ctx, auditEventLogin, true, userID, key, nil, func() map[string]string {
		if rec.Device == nil {
			return nil
		}
		return map[string]string{"device": rec.Device.Name}
	})

	return &LoginResult{
		Key:     key,
		Cookie:  e.codec.Encode(key),
		Record:  rec,
		Renewed: renewed,
	}, nil
}

// dropPreviousSession deletes the session behind a pre-login cookie. An
// unverifiable cookie is ignored.
func (e *Engine) dropPreviousSession(ctx context.Context, cookieValue string) (bool, error) {
	if cookieValue == "" {
		return false, nil
	}
	prev, ok := e.codec.Decode(cookieValue)
	if !ok {
		return false, nil
	}

	storeCtx, cancel := e.storeContext(ctx)
	defer cancel()

	existed, err := e.sessions.Delete(storeCtx, prev)
	if err != nil {
		return false, e.storeError(err)
	}
	return existed, nil
}

func (e *Engine) classifyDevice(ctx context.Context, userAgent string, userID int64) *session.Device {
	if e.devices == nil {
		return nil
	}
	if userAgent == "" {
		userAgent = userAgentFromContext(ctx)
	}
	if userAgent == "" {
		return nil
	}
	d, err := e.devices.Classify(userAgent)
	if err != nil {
		e.log.Warn().Err(err).Int64("user_id", userID).Msg("device classification failed")
		return nil
	}
	if d == nil {
		return nil
	}
	out := *d
	if name, cut := truncateField(out.Name); cut {
		e.log.Warn().Int64("user_id", userID).Int("len", len(out.Name)).Msg("device name truncated")
		out.Name = name
	}
	return &out
}

func (e *Engine) resolveLocation(ctx context.Context, clientIP string, userID int64) *session.Location {
	if e.locations == nil {
		return nil
	}
	if clientIP == "" {
		clientIP = clientIPFromContext(ctx)
	}
	if clientIP == "" {
		return nil
	}
	loc, err := e.locations.Resolve(ctx, clientIP)
	if err != nil {
		e.log.Warn().Err(err).Int64("user_id", userID).Msg("location lookup failed")
		return nil
	}
	if loc == nil {
		return nil
	}
	out := *loc
	if name, cut := truncateField(out.Name); cut {
		e.log.Warn().Int64("user_id", userID).Int("len", len(out.Name)).Msg("location name truncated")
		out.Name = name
	}
	return &out
}

// truncateField shortens s to at most session.MaxFieldLen bytes without
// splitting a UTF-8 sequence.
func truncateField(s string) (string, bool) {
	if len(s) <= session.MaxFieldLen {
		return s, false
	}
	n := session.MaxFieldLen
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n], true
}

// Identity resolves a cookie value into an [Identity].
//
// It returns ErrMissingIdentity when the cookie is empty or unverifiable,
// when the record is missing, when the record has no user id, or when the
// record's owner differs from the key's. A store failure is also reported
// as ErrMissingIdentity (joined with ErrStoreUnavailable) so callers that
// only check for a missing identity fail closed.
//
//	Performance: 1 GET.
func (e *Engine) Identity(ctx context.Context, cookieValue string) (Identity, error) {
	if !e.ready() {
		return Identity{}, ErrEngineNotReady
	}

	var start time.Time
	if e.metrics.LatencyEnabled() {
		start = time.Now()
		defer func() { e.metrics.Observe(MetricIdentityLatency, time.Since(start)) }()
	}

	key, ok := e.codec.Decode(cookieValue)
	if !ok {
		e.metricInc(MetricIdentityMissing)
		return Identity{}, ErrMissingIdentity
	}

	storeCtx, cancel := e.storeContext(ctx)
	rec, err := e.sessions.Get(storeCtx, key)
	cancel()
	if err != nil {
		e.metricInc(MetricIdentityMissing)
		e.log.Error().Err(err).Str("session", key.Fingerprint()).Msg("session lookup failed")
		return Identity{}, errors.Join(ErrMissingIdentity, e.storeError(err))
	}
	if rec == nil {
		e.metricInc(MetricIdentityMissing)
		return Identity{}, ErrMissingIdentity
	}
	if !rec.HasUserID() || rec.UserID != key.UserID {
		e.metricInc(MetricIdentityMissing)
		e.log.Warn().
			Str("session", key.Fingerprint()).
			Int64("key_user_id", key.UserID).
			Int64("record_user_id", rec.UserID).
			Msg("session record does not match its key")
		return Identity{}, ErrMissingIdentity
	}

	e.metricInc(MetricIdentityResolved)
	return Identity{
		UserID:       rec.UserID,
		Key:          key,
		CreatedAt:    time.Unix(rec.CreatedAt, 0).UTC(),
		Acknowledged: rec.Ack,
	}, nil
}

// IdentityFromRequest reads the session cookie of r and resolves it.
func (e *Engine) IdentityFromRequest(ctx context.Context, r *http.Request) (Identity, error) {
	if !e.ready() {
		return Identity{}, ErrEngineNotReady
	}
	return e.Identity(ctx, e.cookies.Read(r))
}

// Logout deletes the single session addressed by key. Other sessions of the
// same user are untouched. Logging out a session that is already gone is
// not an error.
//
//	Flow: Authenticated -> Terminated
func (e *Engine) Logout(ctx context.Context, key session.Key) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if key.IsZero() {
		return nil
	}

	storeCtx, cancel := e.storeContext(ctx)
	defer cancel()

	if _, err := e.sessions.Delete(storeCtx, key); err != nil {
		err = e.storeError(err)
		e.emitAudit(ctx, auditEventLogoutSession, false, key.UserID, key, err, nil)
		return err
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogoutSession, true, key.UserID, key, nil, nil)
	return nil
}

// LogoutAll deletes every session of userID and returns how many were
// removed. A session created while the purge is running may survive it; its
// TTL or the next purge removes it.
func (e *Engine) LogoutAll(ctx context.Context, userID int64) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	if userID <= 0 {
		return 0, ErrInvalidUserID
	}

	// The store bounds each SCAN page and DEL batch on its own.
	n, err := e.sessions.DeleteUser(nonNilContext(ctx), userID)
	if err != nil {
		err = e.storeError(err)
		e.emitAudit(ctx, auditEventLogoutAll, false, userID, session.Key{}, err, nil)
		return n, err
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, userID, session.Key{}, nil, func() map[string]string {
		return map[string]string{"sessions": strconv.Itoa(n)}
	})
	return n, nil
}

// PurgeUser removes everything this layer keeps about userID: all sessions
// plus the user's resource-limit and resource-lock counters. It is meant for
// account deletion or deactivation. Counters keyed by something other than
// the user id (e.g. a client address) are left to expire.
func (e *Engine) PurgeUser(ctx context.Context, userID int64) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if userID <= 0 {
		return ErrInvalidUserID
	}

	identifier := strconv.FormatInt(userID, 10)
	_, sessErr := e.sessions.DeleteUser(nonNilContext(ctx), userID)

	limitCtx, cancelLimit := e.storeContext(ctx)
	limitErr := e.limiter.Purge(limitCtx, identifier)
	cancelLimit()

	lockCtx, cancelLock := e.storeContext(ctx)
	lockErr := e.locks.Purge(lockCtx, identifier)
	cancelLock()

	err := errors.Join(e.storeError(sessErr), e.storeError(limitErr), e.storeError(lockErr))
	if err != nil {
		e.emitAudit(ctx, auditEventUserPurged, false, userID, session.Key{}, err, nil)
		return err
	}

	e.metricInc(MetricUserPurged)
	e.emitAudit(ctx, auditEventUserPurged, true, userID, session.Key{}, nil, nil)
	return nil
}

// WriteCookie sets the session cookie on w using the configured attributes.
func (e *Engine) WriteCookie(w http.ResponseWriter, value string) {
	e.cookies.Write(w, value)
}

// ClearCookie expires the session cookie on w.
func (e *Engine) ClearCookie(w http.ResponseWriter) {
	e.cookies.Clear(w)
}

// ReadCookie returns the raw session cookie value of r, or "".
func (e *Engine) ReadCookie(r *http.Request) string {
	return e.cookies.Read(r)
}
