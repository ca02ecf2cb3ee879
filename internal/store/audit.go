// ABOUTME: Audit log entity and store methods for tracking conversation transitions
// ABOUTME: Records which rep or customer requested, claimed, completed, or released a conversation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents an auditable action.
type AuditAction string

const (
	AuditRequestSupport       AuditAction = "request_support"
	AuditClaimConversation    AuditAction = "claim_conversation"
	AuditCompleteConversation AuditAction = "complete_conversation"
	AuditReleaseConversation  AuditAction = "release_conversation"
)

// AuditTargetConversation is the target type of every conversation transition.
const AuditTargetConversation = "conversation"

// ValidAuditActions lists all valid audit actions.
var ValidAuditActions = []AuditAction{
	AuditRequestSupport,
	AuditClaimConversation,
	AuditCompleteConversation,
	AuditReleaseConversation,
}

// AuditEntry represents a single audit log entry.
type AuditEntry struct {
	ID         string         // UUID v4
	ActorID    string         // user who triggered the transition
	Action     AuditAction    // what happened
	TargetType string         // "conversation"
	TargetID   string         // customer id
	Timestamp  time.Time      // when it happened
	Detail     map[string]any // additional context
}

// AuditFilter specifies filtering options for listing audit entries.
type AuditFilter struct {
	Since      *time.Time   // entries at or after this time
	Until      *time.Time   // entries at or before this time
	ActorID    *string      // filter by actor
	Action     *AuditAction // filter by action type
	TargetType *string      // filter by target type
	TargetID   *string      // filter by target ID
	Limit      int          // max results (default 100, max 1000)
}

// AppendAuditLog records one transition. ID, Timestamp, and TargetType are
// filled in when empty.
func (s *SQLiteStore) AppendAuditLog(ctx context.Context, e *AuditEntry) error {
	prepareAuditEntry(e)

	var detail sql.NullString
	if len(e.Detail) > 0 {
		data, err := json.Marshal(e.Detail)
		if err != nil {
			return fmt.Errorf("marshaling audit detail: %w", err)
		}
		detail = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (audit_id, actor_id, action, target_type, target_id, ts, detail_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ActorID, string(e.Action), e.TargetType, e.TargetID, formatTime(e.Timestamp), detail,
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry %s for %s: %w", e.Action, e.TargetID, err)
	}

	s.logger.Debug("audit", "action", e.Action, "actor_id", e.ActorID, "customer_id", e.TargetID)
	return nil
}

func prepareAuditEntry(e *AuditEntry) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.TargetType == "" {
		e.TargetType = AuditTargetConversation
	}
}

// normalizeAuditLimit applies the default of 100 and the cap of 1000.
func normalizeAuditLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return min(limit, 1000)
}

// auditWhere renders the filter as a WHERE clause with its arguments.
func auditWhere(f AuditFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		conds = append(conds, cond)
		args = append(args, v)
	}

	if f.Since != nil {
		add("ts >= ?", formatTime(*f.Since))
	}
	if f.Until != nil {
		add("ts <= ?", formatTime(*f.Until))
	}
	if f.ActorID != nil {
		add("actor_id = ?", *f.ActorID)
	}
	if f.Action != nil {
		add("action = ?", string(*f.Action))
	}
	if f.TargetType != nil {
		add("target_type = ?", *f.TargetType)
	}
	if f.TargetID != nil {
		add("target_id = ?", *f.TargetID)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// ListAuditLog returns matching entries, newest first.
func (s *SQLiteStore) ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	where, args := auditWhere(f)
	query := `SELECT audit_id, actor_id, action, target_type, target_id, ts, detail_json
		FROM audit_log ` + where + ` ORDER BY ts DESC LIMIT ?`
	args = append(args, normalizeAuditLimit(f.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := []AuditEntry{}
	for rows.Next() {
		var (
			e      AuditEntry
			action string
			ts     string
			detail sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.ActorID, &action, &e.TargetType, &e.TargetID, &ts, &detail); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		e.Action = AuditAction(action)
		if e.Timestamp, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("parsing audit timestamp %q: %w", ts, err)
		}
		if detail.Valid {
			if err := json.Unmarshal([]byte(detail.String), &e.Detail); err != nil {
				return nil, fmt.Errorf("decoding audit detail of %s: %w", e.ID, err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}
	return entries, nil
}
