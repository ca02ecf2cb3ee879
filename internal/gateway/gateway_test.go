// ABOUTME: Tests for the Gateway orchestrator, HTTP API, and gRPC health service
// ABOUTME: Drives the chi handler with httptest and real JWTs against a MockStore

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/2389/salesdesk-gateway/internal/assistant"
	"github.com/2389/salesdesk-gateway/internal/config"
	"github.com/2389/salesdesk-gateway/internal/events"
	"github.com/2389/salesdesk-gateway/internal/routing"
	"github.com/2389/salesdesk-gateway/internal/store"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// testConfig creates a minimal config for testing with available ports.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{
			HTTPAddr: freeAddr(t),
		},
		Database: config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"},
		Auth:     config.AuthConfig{JWTSecret: testSecret, TokenTTL: time.Hour},
		Routing: config.RoutingConfig{
			EscalationKeywords: config.DefaultEscalationKeywords,
			UrgentKeywords:     config.DefaultUrgentKeywords,
			HighKeywords:       config.DefaultHighKeywords,
			DedupeTTL:          time.Minute,
		},
		Assistant: config.AssistantConfig{Provider: "rules", HistoryLimit: 10},
		RateLimit: config.RateLimitConfig{Backend: "memory", Requests: 100, Window: time.Minute},
	}
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find available port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

// testLogger creates a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testGateway struct {
	*Gateway
	store     *store.MockStore
	published *events.MemoryPublisher
}

func newTestGateway(t *testing.T, cfg *config.Config, opts ...Option) *testGateway {
	t.Helper()
	s := store.NewMockStore()
	pub := events.NewMemoryPublisher()
	opts = append([]Option{WithStore(s), WithPublisher(pub)}, opts...)

	gw, err := New(cfg, testLogger(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.Shutdown(context.Background()) })
	return &testGateway{Gateway: gw, store: s, published: pub}
}

// user creates a user and returns a bearer token for it.
func (tg *testGateway) user(t *testing.T, id, name string, role store.Role) string {
	t.Helper()
	require.NoError(t, tg.store.CreateUser(context.Background(), &store.User{
		ID: id, Username: name, Email: name + "@example.com", Role: role,
	}))
	tok, err := tg.verifier.Generate(id, time.Hour)
	require.NoError(t, err)
	return tok
}

func (tg *testGateway) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	tg.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}

func (tg *testGateway) seedRequest(t *testing.T, customerID, text string) {
	t.Helper()
	require.NoError(t, tg.router.RequestSupport(context.Background(), customerID, text))
}

func TestGatewayNew(t *testing.T) {
	cfg := testConfig(t)
	tg := newTestGateway(t, cfg)

	if tg.config != cfg {
		t.Error("gateway config mismatch")
	}
	if tg.router == nil {
		t.Error("router should not be nil")
	}
	if tg.websocket == nil {
		t.Error("websocket handler should not be nil")
	}
	if tg.grpcServer != nil {
		t.Error("gRPC server should not be created without grpc_addr")
	}
	if _, ok := tg.responder.(*assistant.RuleResponder); !ok {
		t.Errorf("responder = %T, want *assistant.RuleResponder", tg.responder)
	}
}

func TestGatewayNew_RejectsShortSecret(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.JWTSecret = "short"

	_, err := New(cfg, testLogger(), WithStore(store.NewMockStore()))
	require.Error(t, err)
}

func TestGatewayNew_RejectsBadTimezone(t *testing.T) {
	cfg := testConfig(t)
	cfg.Stats.Timezone = "Mars/Olympus_Mons"

	_, err := New(cfg, testLogger(), WithStore(store.NewMockStore()))
	require.Error(t, err)
}

func TestHealth(t *testing.T) {
	tg := newTestGateway(t, testConfig(t))

	rec := tg.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])
}

func TestReady(t *testing.T) {
	tg := newTestGateway(t, testConfig(t))

	rec := tg.do(t, http.MethodGet, "/health/ready", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[ReadyResponse](t, rec)
	assert.Equal(t, "ready", resp.Status)
	assert.Zero(t, resp.ActiveChats)
}

func TestAPI_RequiresToken(t *testing.T) {
	tg := newTestGateway(t, testConfig(t))

	rec := tg.do(t, http.MethodGet, "/api/chat/messages", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = tg.do(t, http.MethodGet, "/api/chat/messages", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSalesAPI_ForbiddenForCustomers(t *testing.T) {
	tg := newTestGateway(t, testConfig(t))
	tok := tg.user(t, "c1", "alice", store.RoleCustomer)

	rec := tg.do(t, http.MethodGet, "/api/sales/conversations", tok, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSalesAPI_ClaimMessageComplete(t *testing.T) {
	tg := newTestGateway(t, testConfig(t))
	tg.user(t, "c1", "alice", store.RoleCustomer)
	repTok := tg.user(t, "r1", "bob", store.RoleSales)
	otherTok := tg.user(t, "r2", "carol", store.RoleSales)
	tg.seedRequest(t, "c1", "I need pricing, urgent")

	rec := tg.do(t, http.MethodGet, "/api/sales/unclaimed", repTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	unclaimed := decode[[]ConversationResponse](t, rec)
	require.Len(t, unclaimed, 1)
	assert.Equal(t, "c1", unclaimed[0].CustomerID)
	assert.Equal(t, store.PriorityUrgent, unclaimed[0].Priority)

	rec = tg.do(t, http.MethodPost, "/api/sales/conversation/c1/claim", repTok, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = tg.do(t, http.MethodPost, "/api/sales/conversation/c1/claim", otherTok, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = tg.do(t, http.MethodGet, "/api/sales/unclaimed", repTok, nil)
	assert.Empty(t, decode[[]ConversationResponse](t, rec))

	rec = tg.do(t, http.MethodPost, "/api/sales/message", otherTok, SalesMessageRequest{CustomerID: "c1", Text: "hi"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = tg.do(t, http.MethodPost, "/api/sales/message", repTok, SalesMessageRequest{CustomerID: "c1", Text: "Hi Alice"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sent := decode[struct {
		Success bool            `json:"success"`
		Message MessageResponse `json:"message"`
	}](t, rec)
	assert.True(t, sent.Success)
	assert.True(t, sent.Message.IsSalesResponse)
	assert.Equal(t, "r1", sent.Message.SalesPersonID)

	rec = tg.do(t, http.MethodGet, "/api/sales/conversation/c1", repTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[ConversationDetailResponse](t, rec)
	assert.Equal(t, "alice", detail.Customer.Username)
	require.NotNil(t, detail.Owner)
	assert.Equal(t, "r1", detail.Owner.RepID)
	assert.Len(t, detail.Messages, 2)

	rec = tg.do(t, http.MethodPost, "/api/sales/conversation/c1/complete", otherTok, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = tg.do(t, http.MethodPost, "/api/sales/conversation/c1/complete", repTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	_, owned := tg.router.OwnerOf("c1")
	assert.False(t, owned)

	assert.Equal(t, []events.Type{
		events.TypeSupportRequested,
		events.TypeConversationClaimed,
		events.TypeConversationCompleted,
	}, tg.published.Types())
}

func TestSalesAPI_ClaimUnknownCustomer(t *testing.T) {
	tg := newTestGateway(t, testConfig(t))
	repTok := tg.user(t, "r1", "bob", store.RoleSales)

	rec := tg.do(t, http.MethodPost, "/api/sales/conversation/ghost/claim", repTok, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = tg.do(t, http.MethodGet, "/api/sales/conversation/ghost", repTok, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSalesAPI_MessageValidation(t *testing.T) {
	tg := newTestGateway(t, testConfig(t))
	repTok := tg.user(t, "r1", "bob", store.RoleSales)

	rec := tg.do(t, http.MethodPost, "/api/sales/message", repTok, SalesMessageRequest{Text: "hi"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/sales/message", bytes.NewBufferString("{not json"))
	req.Header.Set("Authorization", "Bearer "+repTok)
	raw := httptest.NewRecorder()
	tg.Handler().ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestSalesAPI_PersistenceFailureWarns(t *testing.T) {
	tg := newTestGateway(t, testConfig(t))
	tg.user(t, "c1", "alice", store.RoleCustomer)
	repTok := tg.user(t, "r1", "bob", store.RoleSales)
	tg.seedRequest(t, "c1", "help")

	rec := tg.do(t, http.MethodPost, "/api/sales/conversation/c1/claim", repTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	tg.store.SetFailSaves(true)
	rec = tg.do(t, http.MethodPost, "/api/sales/message", repTok, SalesMessageRequest{CustomerID: "c1", Text: "still here"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode[map[string]any](t, rec)["warning"])
}

func TestSalesAPI_AuditAndStats(t *testing.T) {
	tg := newTestGateway(t, testConfig(t))
	tg.user(t, "c1", "alice", store.RoleCustomer)
	repTok := tg.user(t, "r1", "bob", store.RoleSales)
	tg.seedRequest(t, "c1", "help")
	require.Equal(t, http.StatusOK, tg.do(t, http.MethodPost, "/api/sales/conversation/c1/claim", repTok, nil).Code)

	rec := tg.do(t, http.MethodGet, "/api/sales/conversation/c1/audit", repTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var actions []string
	for _, e := range decode[[]AuditResponse](t, rec) {
		actions = append(actions, e.Action)
	}
	assert.Contains(t, actions, string(store.AuditRequestSupport))
	assert.Contains(t, actions, string(store.AuditClaimConversation))

	rec = tg.do(t, http.MethodGet, "/api/sales/conversation/c1/audit?limit=0", repTok, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = tg.do(t, http.MethodGet, "/api/sales/stats", repTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[map[string]any](t, rec)
	assert.EqualValues(t, 1, snap["activeChats"])
	assert.EqualValues(t, 1, snap["totalConversations"])
}

func TestChatAPI_MessagesPagination(t *testing.T) {
	tg := newTestGateway(t, testConfig(t))
	tok := tg.user(t, "c1", "alice", store.RoleCustomer)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour).UTC()
	for i := range 5 {
		require.NoError(t, tg.store.SaveMessage(ctx, &store.Message{
			ID:        string(rune('a' + i)),
			Text:      "msg",
			UserID:    "c1",
			Username:  "alice",
			Lang:      "en",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	rec := tg.do(t, http.MethodGet, "/api/chat/messages?page=1&limit=2", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[MessagesPageResponse](t, rec)
	assert.Len(t, page.Messages, 2)
	assert.Equal(t, 5, page.Pagination.Total)
	assert.Equal(t, 3, page.Pagination.TotalPages)
	assert.True(t, page.Pagination.HasMore)

	rec = tg.do(t, http.MethodGet, "/api/chat/messages?page=3&limit=2", tok, nil)
	page = decode[MessagesPageResponse](t, rec)
	assert.Len(t, page.Messages, 1)
	assert.False(t, page.Pagination.HasMore)

	rec = tg.do(t, http.MethodGet, "/api/chat/messages?limit=5000", tok, nil)
	assert.Equal(t, maxPageLimit, decode[MessagesPageResponse](t, rec).Pagination.Limit)

	rec = tg.do(t, http.MethodGet, "/api/chat/messages?page=zero", tok, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatAPI_Analytics(t *testing.T) {
	tg := newTestGateway(t, testConfig(t))
	tok := tg.user(t, "c1", "alice", store.RoleCustomer)
	ctx := context.Background()
	now := time.Now().UTC()
	msgs := []*store.Message{
		{ID: "1", UserID: "c1", Lang: "es", Text: "hola", CreatedAt: now},
		{ID: "2", UserID: "c1", Lang: "es", Text: "respuesta", IsAIResponse: true, CreatedAt: now},
		{ID: "3", UserID: "c1", Lang: "en", Text: "hello", CreatedAt: now},
		{ID: "4", UserID: "c1", Lang: "en", Text: "reply", IsAIResponse: true, CreatedAt: now},
	}
	for _, m := range msgs {
		require.NoError(t, tg.store.SaveMessage(ctx, m))
	}

	rec := tg.do(t, http.MethodGet, "/api/chat/analytics", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[AnalyticsResponse](t, rec)
	assert.Equal(t, 4, resp.TotalMessages)
	assert.Equal(t, 2, resp.AIResponses)
	assert.InDelta(t, 0.5, resp.AIShare, 0.0001)
	assert.Len(t, resp.Languages, 2)
}

func TestChatAPI_ActiveUsers(t *testing.T) {
	tg := newTestGateway(t, testConfig(t))
	tok := tg.user(t, "c1", "alice", store.RoleCustomer)
	tg.user(t, "c2", "dave", store.RoleCustomer)
	tg.user(t, "c3", "erin", store.RoleCustomer)
	ctx := context.Background()
	require.NoError(t, tg.store.TouchLastSeen(ctx, "c2", time.Now().Add(-time.Minute)))
	require.NoError(t, tg.store.TouchLastSeen(ctx, "c3", time.Now().Add(-time.Hour)))

	rec := tg.do(t, http.MethodGet, "/api/chat/users/active", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	users := decode[[]ActiveUserResponse](t, rec)
	require.Len(t, users, 1)
	assert.Equal(t, "c2", users[0].UserID)
	assert.False(t, users[0].Online)
}

func TestChatAPI_Assistant(t *testing.T) {
	tg := newTestGateway(t, testConfig(t))
	tok := tg.user(t, "c1", "alice", store.RoleCustomer)

	rec := tg.do(t, http.MethodPost, "/api/chat/detect-language", tok, DetectLanguageRequest{Text: "hola, gracias"})
	require.Equal(t, http.StatusOK, rec.Code)
	detected := decode[map[string]any](t, rec)
	assert.Equal(t, "es", detected["language"])
	assert.InDelta(t, 0.85, detected["confidence"], 0.0001)

	rec = tg.do(t, http.MethodPost, "/api/chat/detect-language", tok, DetectLanguageRequest{Text: "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = tg.do(t, http.MethodPost, "/api/chat/translate", tok, TranslateRequest{Q: "hello", Source: "en", Target: "es"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode[map[string]any](t, rec)["translatedText"])

	rec = tg.do(t, http.MethodPost, "/api/chat/translate", tok, TranslateRequest{Target: "es"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = tg.do(t, http.MethodPost, "/api/chat/ai-response", tok, AIResponseRequest{Message: "what are your prices?"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode[map[string]any](t, rec)["text"])

	rec = tg.do(t, http.MethodPost, "/api/chat/ai-response", tok, AIResponseRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = tg.do(t, http.MethodPost, "/api/chat/smart-replies", tok, SmartRepliesRequest{LastMessage: "thanks", Language: "en"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[map[string][]string](t, rec)["suggestions"], smartReplyCount)
}

type failingResponder struct{}

func (failingResponder) Respond(context.Context, string, string, []assistant.Turn) (assistant.Reply, error) {
	return assistant.Reply{}, errors.New("upstream down")
}

func TestChatAPI_AssistantFailure(t *testing.T) {
	tg := newTestGateway(t, testConfig(t), WithResponder(failingResponder{}))
	tok := tg.user(t, "c1", "alice", store.RoleCustomer)

	rec := tg.do(t, http.MethodPost, "/api/chat/ai-response", tok, AIResponseRequest{Message: "hello"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.Requests = 2
	tg := newTestGateway(t, cfg)
	tok := tg.user(t, "c1", "alice", store.RoleCustomer)

	for i := range 2 {
		rec := tg.do(t, http.MethodGet, "/api/chat/analytics", tok, nil)
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i)
	}
	rec := tg.do(t, http.MethodGet, "/api/chat/analytics", tok, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// health is outside /api
	assert.Equal(t, http.StatusOK, tg.do(t, http.MethodGet, "/health", "", nil).Code)
}

func TestCORSPreflight(t *testing.T) {
	tg := newTestGateway(t, testConfig(t))

	req := httptest.NewRequest(http.MethodOptions, "/api/chat/messages", nil)
	req.Header.Set("Origin", "https://shop.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	tg.Handler().ServeHTTP(rec, req)

	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestGatewayRun_ServesHTTPAndGRPCHealth(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.GRPCAddr = freeAddr(t)
	gw, err := New(cfg, testLogger(), WithStore(store.NewMockStore()), WithPublisher(events.Nop{}))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gw.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + cfg.Server.HTTPAddr + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)

	conn, err := grpc.NewClient(cfg.Server.GRPCAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	checkCtx, checkCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer checkCancel()
	resp, err := healthpb.NewHealthClient(conn).Check(checkCtx, &healthpb.HealthCheckRequest{Service: HealthService})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRoutingStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"already claimed", fmt.Errorf("wrapped: %w", routing.ErrAlreadyClaimed), http.StatusConflict},
		{"not assigned", routing.ErrNotAssigned, http.StatusForbidden},
		{"access denied", routing.ErrAccessDenied, http.StatusForbidden},
		{"invalid reference", routing.ErrInvalidReference, http.StatusNotFound},
		{"invalid frame", routing.ErrInvalidFrame, http.StatusBadRequest},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := routingStatus(tt.err); got != tt.want {
				t.Errorf("routingStatus(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
