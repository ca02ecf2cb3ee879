// ABOUTME: SQLite methods for chat messages and support-request state transitions
// ABOUTME: Threads are keyed by customer id; claim, release, and completion update requesting_sales rows

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const messageColumns = `
	id, text, user_id, username, room, message_type,
	requesting_sales, is_sales_response, is_ai_response,
	sales_person_id, handled_by, handled_at, completed_at,
	status, priority, lang, response_time_ms, created_at`

// SaveMessage saves a message to the database, filling in ID, CreatedAt and column defaults.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *Message) error {
	applyMessageDefaults(msg)

	query := `
		INSERT INTO messages (` + messageColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var responseTime any
	if msg.ResponseTimeMS != nil {
		responseTime = *msg.ResponseTimeMS
	}

	_, err := s.db.ExecContext(ctx, query,
		msg.ID,
		msg.Text,
		msg.UserID,
		msg.Username,
		msg.Room,
		msg.MessageType,
		boolToInt(msg.RequestingSales),
		boolToInt(msg.IsSalesResponse),
		boolToInt(msg.IsAIResponse),
		nullString(msg.SalesPersonID),
		nullString(msg.HandledBy),
		nullTime(msg.HandledAt),
		nullTime(msg.CompletedAt),
		string(msg.Status),
		string(msg.Priority),
		msg.Lang,
		responseTime,
		formatTime(msg.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	s.logger.Debug("saved message",
		"id", msg.ID,
		"user_id", msg.UserID,
		"requesting_sales", msg.RequestingSales,
		"sales_response", msg.IsSalesResponse,
		"ai_response", msg.IsAIResponse,
	)
	return nil
}

// applyMessageDefaults fills the zero fields SaveMessage never stores empty.
func applyMessageDefaults(msg *Message) {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if msg.Room == "" {
		msg.Room = DefaultRoom
	}
	if msg.MessageType == "" {
		msg.MessageType = "text"
	}
	if msg.Status == "" {
		msg.Status = StatusWaiting
	}
	if msg.Priority == "" {
		msg.Priority = PriorityNormal
	}
	if msg.Lang == "" {
		msg.Lang = "en"
	}
}

// GetMessage retrieves a message by ID.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	msg, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return msg, err
}

// ListCustomerMessages returns up to limit messages of a thread in chronological order.
// If limit is 0 or negative, a default limit of 100 is used.
func (s *SQLiteStore) ListCustomerMessages(ctx context.Context, customerID string, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.queryMessages(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE user_id = ?
		ORDER BY created_at ASC
		LIMIT ?
	`, customerID, limit)
}

// ListRecentCustomerMessages returns the newest limit messages of a thread in chronological order.
func (s *SQLiteStore) ListRecentCustomerMessages(ctx context.Context, customerID string, limit int) ([]*Message, error) {
	if limit <= 0 {
		return []*Message{}, nil
	}
	// Get the N most recent messages, then return them oldest first
	return s.queryMessages(ctx, `
		SELECT `+messageColumns+`
		FROM (
			SELECT `+messageColumns+`
			FROM messages
			WHERE user_id = ?
			ORDER BY created_at DESC
			LIMIT ?
		)
		ORDER BY created_at ASC
	`, customerID, limit)
}

// ListMessagesPage returns one page of a thread, newest first, with the thread total.
// Page is 1-based; limit is clamped to [1, 100] with a default of 50.
func (s *SQLiteStore) ListMessagesPage(ctx context.Context, customerID string, page, limit int) (*MessagePage, error) {
	page, limit = normalizePage(page, limit)

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE user_id = ?`, customerID,
	).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting messages: %w", err)
	}

	messages, err := s.queryMessages(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, customerID, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}

	return &MessagePage{Messages: messages, Page: page, Limit: limit, Total: total}, nil
}

// normalizePage applies the pagination defaults shared by the store and its mock.
func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	switch {
	case limit <= 0:
		limit = 50
	case limit > 100:
		limit = 100
	}
	return page, limit
}

// LastCustomerMessageBefore finds the customer's newest own message created before the given time.
// Returns ErrNotFound when the customer has not written anything yet.
func (s *SQLiteStore) LastCustomerMessageBefore(ctx context.Context, customerID string, before time.Time) (*Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE user_id = ?
		  AND is_sales_response = 0
		  AND is_ai_response = 0
		  AND created_at < ?
		ORDER BY created_at DESC
		LIMIT 1
	`, customerID, formatTime(before))

	msg, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return msg, err
}

// ClaimSalesRequests marks the customer's unhandled support requests as handled by repID.
func (s *SQLiteStore) ClaimSalesRequests(ctx context.Context, customerID, repID string, at time.Time) (int64, error) {
	return s.execCount(ctx, "claiming sales requests", `
		UPDATE messages
		SET handled_by = ?, handled_at = ?, status = 'active'
		WHERE user_id = ?
		  AND requesting_sales = 1
		  AND handled_by IS NULL
		  AND status != 'completed'
	`, repID, formatTime(at), customerID)
}

// ReleaseSalesRequests clears an active claim so the conversation is waiting again.
func (s *SQLiteStore) ReleaseSalesRequests(ctx context.Context, customerID string) (int64, error) {
	return s.execCount(ctx, "releasing sales requests", `
		UPDATE messages
		SET handled_by = NULL, handled_at = NULL, status = 'waiting'
		WHERE user_id = ?
		  AND requesting_sales = 1
		  AND status = 'active'
	`, customerID)
}

// CompleteSalesRequests marks every not-yet-completed support request of the customer as completed.
func (s *SQLiteStore) CompleteSalesRequests(ctx context.Context, customerID, repID string, at time.Time) (int64, error) {
	return s.execCount(ctx, "completing sales requests", `
		UPDATE messages
		SET status = 'completed', handled_by = ?, completed_at = ?
		WHERE user_id = ?
		  AND requesting_sales = 1
		  AND status != 'completed'
	`, repID, formatTime(at), customerID)
}

func (s *SQLiteStore) execCount(ctx context.Context, op, query string, args ...any) (int64, error) {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	s.logger.Debug(op, "rows_affected", n)
	return n, nil
}

func (s *SQLiteStore) queryMessages(ctx context.Context, query string, args ...any) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	messages := []*Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}
	return messages, nil
}

// scanMessage returns sql.ErrNoRows unwrapped so callers can map it to ErrNotFound.
func scanMessage(scanner interface{ Scan(dest ...any) error }) (*Message, error) {
	var msg Message
	var status, priority, createdAt string
	var salesPersonID, handledBy, handledAt, completedAt sql.NullString
	var responseTime sql.NullInt64

	err := scanner.Scan(
		&msg.ID,
		&msg.Text,
		&msg.UserID,
		&msg.Username,
		&msg.Room,
		&msg.MessageType,
		&msg.RequestingSales,
		&msg.IsSalesResponse,
		&msg.IsAIResponse,
		&salesPersonID,
		&handledBy,
		&handledAt,
		&completedAt,
		&status,
		&priority,
		&msg.Lang,
		&responseTime,
		&createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning message: %w", err)
	}

	msg.Status = Status(status)
	msg.Priority = Priority(priority)
	msg.SalesPersonID = salesPersonID.String
	msg.HandledBy = handledBy.String
	if responseTime.Valid {
		v := responseTime.Int64
		msg.ResponseTimeMS = &v
	}

	if msg.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if msg.HandledAt, err = parseNullTime(handledAt); err != nil {
		return nil, fmt.Errorf("parsing handled_at: %w", err)
	}
	if msg.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return nil, fmt.Errorf("parsing completed_at: %w", err)
	}
	return &msg, nil
}
