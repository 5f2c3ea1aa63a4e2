package authguard

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/penwell/authguard/session"
)

const (
	auditEventLogin               = "login"
	auditEventSessionRenewed      = "session_renewed"
	auditEventLogoutSession       = "logout_session"
	auditEventLogoutAll           = "logout_all"
	auditEventUserPurged          = "user_purged"
	auditEventSessionAcknowledged = "session_acknowledged"
	auditEventResourceLimitHit    = "resource_limit_hit"
	auditEventLockFailure         = "resource_lock_failure"
	auditEventResourceLocked      = "resource_locked"
)

// AuditErrorCode is the stable, client-safe error label stored in events.
type AuditErrorCode string

const (
	auditErrMissingIdentity AuditErrorCode = "missing_identity"
	auditErrSessionNotFound AuditErrorCode = "session_not_found"
	auditErrLimited         AuditErrorCode = "resource_limited"
	auditErrLocked          AuditErrorCode = "resource_locked"
	auditErrUnknownKind     AuditErrorCode = "unknown_resource_kind"
	auditErrInvalidInput    AuditErrorCode = "invalid_input"
	auditErrUnavailable     AuditErrorCode = "backend_unavailable"
	auditErrInternal        AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID int64,
	key session.Key,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		ID:        ulid.Make().String(),
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		RequestID: RequestIDFromContext(ctx),
		UserID:    userID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if !key.IsZero() {
		event.Session = key.Fingerprint()
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitResource(ctx context.Context, eventType, kind, identifier string, metadataBuilder func() map[string]string) {
	e.emitAudit(ctx, eventType, false, 0, session.Key{}, nil, func() map[string]string {
		base := map[string]string{
			"kind":       kind,
			"identifier": identifier,
		}
		if metadataBuilder == nil {
			return base
		}
		for k, v := range metadataBuilder() {
			base[k] = v
		}
		return base
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	case errors.Is(err, ErrMissingIdentity):
		return auditErrMissingIdentity
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrResourceLimited):
		return auditErrLimited
	case errors.Is(err, ErrResourceLocked):
		return auditErrLocked
	case errors.Is(err, ErrUnknownResourceKind):
		return auditErrUnknownKind
	case errors.Is(err, ErrInvalidUserID),
		errors.Is(err, ErrInvalidIdentifier):
		return auditErrInvalidInput
	default:
		return auditErrInternal
	}
}
