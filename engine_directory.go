package authguard

import (
	"context"
	"time"

	"github.com/penwell/authguard/session"
)

// ListSessions returns every live session of userID, newest first. Records
// that fail to decode are skipped instead of failing the listing.
//
//	Performance: SCAN pages + 1 pipelined round trip of GETs.
func (e *Engine) ListSessions(ctx context.Context, userID int64) ([]session.Entry, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if userID <= 0 {
		return nil, ErrInvalidUserID
	}

	entries, err := e.sessions.List(nonNilContext(ctx), userID)
	if err != nil {
		return nil, e.storeError(err)
	}
	session.SortNewestFirst(entries)
	return entries, nil
}

// LoginActivity builds the "where you're logged in" view for identity. The
// session behind cookieValue is flagged Active. RecentUnacknowledged is the
// newest login the user has not confirmed yet, or nil.
func (e *Engine) LoginActivity(ctx context.Context, identity Identity, cookieValue string) (*LoginActivity, error) {
	entries, err := e.ListSessions(ctx, identity.UserID)
	if err != nil {
		return nil, err
	}

	current, hasCurrent := e.codec.Decode(cookieValue)

	out := &LoginActivity{Sessions: make([]SessionInfo, 0, len(entries))}
	for _, entry := range entries {
		out.Sessions = append(out.Sessions, SessionInfo{
			Key:          entry.Key,
			ID:           entry.Key.Fingerprint(),
			CreatedAt:    time.Unix(entry.Record.CreatedAt, 0).UTC(),
			Device:       entry.Record.Device,
			Location:     entry.Record.Location,
			Acknowledged: entry.Record.Ack,
			Active:       hasCurrent && entry.Key == current,
		})
	}

	if recent, ok := session.MostRecentUnacknowledged(entries); ok {
		for i := range out.Sessions {
			if out.Sessions[i].Key == recent.Key {
				info := out.Sessions[i]
				out.RecentUnacknowledged = &info
				break
			}
		}
	}
	return out, nil
}

// Acknowledge marks the session addressed by key as confirmed by its owner.
//
// The key must belong to identity's user. The write only succeeds if the
// session still exists and keeps its remaining TTL, so acknowledging never
// revives or extends a session. A session that is gone (or belongs to
// someone else) yields ErrSessionNotFound, which callers should treat as a
// normal outcome.
//
//	Flow: Authenticated (unacknowledged) -> Authenticated (acknowledged)
//	Performance: 1 GET + 1 SET XX KEEPTTL.
func (e *Engine) Acknowledge(ctx context.Context, identity Identity, key session.Key) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if identity.UserID <= 0 || key.UserID != identity.UserID || key.Token == "" {
		e.metricInc(MetricAcknowledgeNotFound)
		return ErrSessionNotFound
	}

	storeCtx, cancel := e.storeContext(ctx)
	defer cancel()

	rec, err := e.sessions.Get(storeCtx, key)
	if err != nil {
		return e.storeError(err)
	}
	if rec == nil || rec.UserID != key.UserID {
		e.metricInc(MetricAcknowledgeNotFound)
		return ErrSessionNotFound
	}

	rec.Ack = true
	ok, err := e.sessions.SetIfExistsKeepTTL(storeCtx, key, rec)
	if err != nil {
		return e.storeError(err)
	}
	if !ok {
		e.metricInc(MetricAcknowledgeNotFound)
		return ErrSessionNotFound
	}

	e.metricInc(MetricSessionAcknowledged)
	e.emitAudit(ctx, auditEventSessionAcknowledged, true, identity.UserID, key, nil, nil)
	return nil
}

// AcknowledgeByID acknowledges the session whose [SessionInfo.ID] is id.
// Clients only ever see fingerprints, so HTTP handlers use this variant.
func (e *Engine) AcknowledgeByID(ctx context.Context, identity Identity, id string) error {
	entries, err := e.ListSessions(ctx, identity.UserID)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.Key.Fingerprint() == id {
			return e.Acknowledge(ctx, identity, entry.Key)
		}
	}
	e.metricInc(MetricAcknowledgeNotFound)
	return ErrSessionNotFound
}

// IsActive reports whether candidate is the session carried by cookieValue.
// It is a pure equality check on the verified key.
func (e *Engine) IsActive(candidate session.Key, cookieValue string) bool {
	if !e.ready() {
		return false
	}
	current, ok := e.codec.Decode(cookieValue)
	return ok && current == candidate
}
