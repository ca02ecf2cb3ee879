// ABOUTME: Sales dashboard statistics computed from persisted messages plus the live claim count
// ABOUTME: "Today" starts at local midnight in the configured timezone

// Package stats computes the sales dashboard snapshot.
package stats

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/2389/salesdesk-gateway/internal/store"
)

// Source is the slice of the store the aggregator reads.
type Source interface {
	GetSalesAggregates(ctx context.Context, since time.Time) (*store.SalesAggregates, error)
}

// Snapshot is the payload of statsUpdate and GET /api/sales/stats.
type Snapshot struct {
	TotalConversations int     `json:"totalConversations"`
	ActiveChats        int     `json:"activeChats"`
	CompletedToday     int     `json:"completedToday"`
	AvgResponseTime    float64 `json:"avgResponseTime"` // minutes
}

// Aggregator computes snapshots.
type Aggregator struct {
	src Source
	loc *time.Location
	now func() time.Time
}

// NewAggregator creates an aggregator. A nil location means time.Local.
func NewAggregator(src Source, loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.Local
	}
	return &Aggregator{src: src, loc: loc, now: time.Now}
}

// Compute builds a snapshot. activeChats comes from the in-memory ownership
// table, which is authoritative for live claims.
func (a *Aggregator) Compute(ctx context.Context, activeChats int) (Snapshot, error) {
	since := a.midnight()
	agg, err := a.src.GetSalesAggregates(ctx, since)
	if err != nil {
		return Snapshot{}, fmt.Errorf("computing stats: %w", err)
	}

	return Snapshot{
		TotalConversations: agg.TotalConversations,
		ActiveChats:        activeChats,
		CompletedToday:     agg.CompletedSince,
		AvgResponseTime:    msToMinutes(agg.AvgResponseMS),
	}, nil
}

func (a *Aggregator) midnight() time.Time {
	now := a.now().In(a.loc)
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, a.loc)
}

// msToMinutes converts milliseconds to minutes rounded to one decimal.
func msToMinutes(ms float64) float64 {
	if ms <= 0 {
		return 0
	}
	return math.Round(ms/60000*10) / 10
}
