// ABOUTME: Bot responder adapter: the one place that decides bot reply vs. human escalation
// ABOUTME: Escalation keywords hand the customer to the router; everything else goes to the assistant

// Package bot sits between the conversation router and the automated
// assistant for customers nobody has claimed yet.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/2389/salesdesk-gateway/internal/assistant"
	"github.com/2389/salesdesk-gateway/internal/store"
)

// Escalator opens a support request on behalf of a customer.
type Escalator interface {
	RequestSupport(ctx context.Context, customerID, text string) error
}

// History loads the tail of a customer thread.
type History interface {
	ListRecentCustomerMessages(ctx context.Context, customerID string, limit int) ([]*store.Message, error)
}

// Request is one unowned customer message.
type Request struct {
	CustomerID string
	Text       string
	Language   string
	// MessageID is the already persisted message being answered; it is left out of the history.
	MessageID string
}

// Result tells the router what to deliver. Reply is nil when the message escalated.
type Result struct {
	Escalated bool
	Language  string
	Reply     *assistant.Reply
}

// Config wires an Adapter.
type Config struct {
	Responder    assistant.Responder
	History      History
	Keywords     []string
	HistoryLimit int
	Logger       *slog.Logger
}

// Adapter routes unowned customer text.
type Adapter struct {
	responder    assistant.Responder
	history      History
	keywords     []string
	historyLimit int
	logger       *slog.Logger
}

// NewAdapter creates an adapter. Keywords are matched lowercased.
func NewAdapter(cfg Config) *Adapter {
	keywords := make([]string, 0, len(cfg.Keywords))
	for _, k := range cfg.Keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			keywords = append(keywords, k)
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		responder:    cfg.Responder,
		history:      cfg.History,
		keywords:     keywords,
		historyLimit: cfg.HistoryLimit,
		logger:       logger.With("component", "bot"),
	}
}

// Handle escalates through esc or asks the responder for a reply.
func (a *Adapter) Handle(ctx context.Context, esc Escalator, req Request) (Result, error) {
	lang := req.Language
	if lang == "" {
		lang = assistant.DetectLanguage(req.Text)
	}

	if kw, ok := a.escalationKeyword(req.Text); ok {
		a.logger.Info("escalating to sales", "customer_id", req.CustomerID, "keyword", kw)
		if err := esc.RequestSupport(ctx, req.CustomerID, req.Text); err != nil {
			return Result{}, fmt.Errorf("escalating: %w", err)
		}
		return Result{Escalated: true, Language: lang}, nil
	}

	history, err := a.loadHistory(ctx, req)
	if err != nil {
		// a reply without context beats no reply
		a.logger.Warn("loading history", "customer_id", req.CustomerID, "error", err)
	}

	reply, err := a.responder.Respond(ctx, req.Text, lang, history)
	if err != nil {
		return Result{}, fmt.Errorf("generating reply: %w", err)
	}
	return Result{Language: lang, Reply: &reply}, nil
}

func (a *Adapter) escalationKeyword(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, k := range a.keywords {
		if strings.Contains(lower, k) {
			return k, true
		}
	}
	return "", false
}

func (a *Adapter) loadHistory(ctx context.Context, req Request) ([]assistant.Turn, error) {
	if a.history == nil || a.historyLimit <= 0 {
		return nil, nil
	}
	msgs, err := a.history.ListRecentCustomerMessages(ctx, req.CustomerID, a.historyLimit+1)
	if err != nil {
		return nil, err
	}

	turns := make([]assistant.Turn, 0, len(msgs))
	for _, m := range msgs {
		if m.ID == req.MessageID {
			continue
		}
		turns = append(turns, assistant.Turn{
			Text:    m.Text,
			FromBot: m.IsAIResponse || m.IsSalesResponse,
		})
	}
	if len(turns) > a.historyLimit {
		turns = turns[len(turns)-a.historyLimit:]
	}
	return turns, nil
}
