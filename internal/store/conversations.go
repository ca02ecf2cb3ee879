// ABOUTME: SQLite aggregate queries for the sales dashboard and statistics
// ABOUTME: Support thread listings, unclaimed queue, sales counters, and per-user language breakdown

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const conversationQuery = `
	WITH requests AS (
		SELECT user_id,
			MAX(CASE priority WHEN 'urgent' THEN 3 WHEN 'high' THEN 2 WHEN 'normal' THEN 1 ELSE 0 END) AS prank,
			MAX(CASE status WHEN 'active' THEN 1 ELSE 0 END) AS is_active,
			MAX(handled_by) AS handled_by,
			MAX(handled_at) AS handled_at
		FROM messages
		WHERE requesting_sales = 1 AND status != 'completed'
		GROUP BY user_id
	),
	threads AS (
		SELECT user_id, COUNT(*) AS message_count, MAX(created_at) AS last_at
		FROM messages
		GROUP BY user_id
	)
	SELECT r.user_id,
		COALESCE(u.username, ''),
		COALESCE(u.email, ''),
		COALESCE((SELECT l.text FROM messages l WHERE l.user_id = r.user_id ORDER BY l.created_at DESC LIMIT 1), ''),
		t.last_at,
		t.message_count,
		r.prank,
		r.is_active,
		r.handled_by,
		r.handled_at
	FROM requests r
	JOIN threads t ON t.user_id = r.user_id
	LEFT JOIN users u ON u.id = r.user_id
	WHERE (? = 0 OR (r.is_active = 0 AND r.handled_by IS NULL))
	ORDER BY r.prank DESC, t.last_at DESC
`

var rankPriority = []Priority{PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent}

// ListSupportConversations returns every customer with an open support request.
func (s *SQLiteStore) ListSupportConversations(ctx context.Context) ([]*ConversationSummary, error) {
	return s.queryConversations(ctx, false)
}

// ListUnclaimedConversations returns open support requests nobody has claimed.
func (s *SQLiteStore) ListUnclaimedConversations(ctx context.Context) ([]*ConversationSummary, error) {
	return s.queryConversations(ctx, true)
}

func (s *SQLiteStore) queryConversations(ctx context.Context, unclaimedOnly bool) ([]*ConversationSummary, error) {
	rows, err := s.db.QueryContext(ctx, conversationQuery, boolToInt(unclaimedOnly))
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	summaries := []*ConversationSummary{}
	for rows.Next() {
		var c ConversationSummary
		var lastAt string
		var rank, active int
		var handledBy, handledAt sql.NullString

		if err := rows.Scan(
			&c.CustomerID,
			&c.Username,
			&c.Email,
			&c.LastMessage,
			&lastAt,
			&c.MessageCount,
			&rank,
			&active,
			&handledBy,
			&handledAt,
		); err != nil {
			return nil, fmt.Errorf("scanning conversation row: %w", err)
		}

		if c.LastMessageTime, err = parseTime(lastAt); err != nil {
			return nil, fmt.Errorf("parsing last message time: %w", err)
		}
		if c.HandledAt, err = parseNullTime(handledAt); err != nil {
			return nil, fmt.Errorf("parsing handled_at: %w", err)
		}
		if rank >= 0 && rank < len(rankPriority) {
			c.Priority = rankPriority[rank]
		}
		c.Status = StatusWaiting
		if active == 1 {
			c.Status = StatusActive
		}
		c.HandledBy = handledBy.String

		summaries = append(summaries, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversation rows: %w", err)
	}
	return summaries, nil
}

// GetSalesAggregates returns the persisted counters behind the statistics snapshot.
// Completions and response times are counted from since onwards.
func (s *SQLiteStore) GetSalesAggregates(ctx context.Context, since time.Time) (*SalesAggregates, error) {
	sinceStr := formatTime(since)
	var agg SalesAggregates

	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT user_id) FROM messages WHERE requesting_sales = 1
	`).Scan(&agg.TotalConversations); err != nil {
		return nil, fmt.Errorf("counting conversations: %w", err)
	}

	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT user_id)
		FROM messages
		WHERE requesting_sales = 1 AND completed_at IS NOT NULL AND completed_at >= ?
	`, sinceStr).Scan(&agg.CompletedSince); err != nil {
		return nil, fmt.Errorf("counting completed conversations: %w", err)
	}

	var avg sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, `
		SELECT AVG(response_time_ms), COUNT(response_time_ms)
		FROM messages
		WHERE is_sales_response = 1 AND response_time_ms > 0 AND created_at >= ?
	`, sinceStr).Scan(&avg, &agg.ResponseSamples); err != nil {
		return nil, fmt.Errorf("averaging response time: %w", err)
	}
	agg.AvgResponseMS = avg.Float64

	return &agg, nil
}

// GetLanguageBreakdown counts a customer's thread by language, most used first.
func (s *SQLiteStore) GetLanguageBreakdown(ctx context.Context, customerID string) ([]LanguageCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT lang, COUNT(*), COALESCE(SUM(is_ai_response), 0)
		FROM messages
		WHERE user_id = ?
		GROUP BY lang
		ORDER BY COUNT(*) DESC, lang ASC
	`, customerID)
	if err != nil {
		return nil, fmt.Errorf("querying language breakdown: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := []LanguageCount{}
	for rows.Next() {
		var lc LanguageCount
		if err := rows.Scan(&lc.Lang, &lc.Count, &lc.AIResponses); err != nil {
			return nil, fmt.Errorf("scanning language row: %w", err)
		}
		counts = append(counts, lc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating language rows: %w", err)
	}
	return counts, nil
}
