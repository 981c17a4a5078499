package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tbeaudouin05/billing-reconciler/api/bootstrap"
	"github.com/tbeaudouin05/billing-reconciler/api/config"
	"github.com/tbeaudouin05/billing-reconciler/api/database"
	billingapp "github.com/tbeaudouin05/billing-reconciler/api/services/billing/app"
	gwmock "github.com/tbeaudouin05/billing-reconciler/api/services/billing/gateway/mock"
	"github.com/tbeaudouin05/billing-reconciler/api/services/notify"
)

const webhookSecret = "whsec_router"

type env struct {
	t   *testing.T
	app *bootstrap.App
	srv *httptest.Server
	gw  *gwmock.MockProviderGateway
}

func newEnv(t *testing.T) *env {
	t.Helper()
	url := "sqlite://" + filepath.Join(t.TempDir(), "billing.db")
	require.NoError(t, database.Migrate(url))

	cfg := &config.Config{
		DatabaseURL:            url,
		ProviderPublishableKey: "pk_test",
		WebhookSecret:          webhookSecret,
		WebhookSignatureHeader: config.DefaultSignatureHeader,
		PlanBasic:              "plan_basic",
		PlanPro:                "plan_pro",
		JWTSecret:              "jwt-secret",
		ProviderTimeout:        time.Second,
		NotifyTimeout:          time.Second,
		NotifyWorkers:          2,
	}
	gw := gwmock.NewMockProviderGateway(gomock.NewController(t))
	app, err := bootstrap.New(cfg, zerolog.Nop(), bootstrap.WithGateway(gw), bootstrap.WithSender(notify.Discard{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	srv := httptest.NewServer(app.Handler)
	t.Cleanup(srv.Close)
	return &env{t: t, app: app, srv: srv, gw: gw}
}

type response struct {
	code   int
	header http.Header
	body   map[string]any
}

func (e *env) do(method, path, token string, body any) response {
	e.t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(e.t, err)
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, e.srv.URL+path, rdr)
	require.NoError(e.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return e.send(req)
}

func (e *env) send(req *http.Request) response {
	e.t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(e.t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(e.t, err)

	out := response{code: resp.StatusCode, header: resp.Header}
	if json.Valid(raw) {
		_ = json.Unmarshal(raw, &out.body)
	}
	return out
}

func (e *env) webhook(body, signature string) response {
	e.t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, e.srv.URL+"/api/webhooks/provider", strings.NewReader(body))
	require.NoError(e.t, err)
	if signature != "" {
		req.Header.Set(config.DefaultSignatureHeader, signature)
	}
	return e.send(req)
}

func sign(body string) string {
	return billingapp.NewSignatureVerifier(webhookSecret).Sign([]byte(body))
}

func (e *env) register(email string) (token, userID string) {
	e.t.Helper()
	res := e.do(http.MethodPost, "/api/auth/register", "", map[string]string{"email": email, "password": "correct horse"})
	require.Equal(e.t, http.StatusCreated, res.code, res.body)
	token, _ = res.body["token"].(string)
	require.NotEmpty(e.t, token)
	user := res.body["data"].(map[string]any)["user"].(map[string]any)
	return token, user["id"].(string)
}

func data(t *testing.T, res response) map[string]any {
	t.Helper()
	d, ok := res.body["data"].(map[string]any)
	require.True(t, ok, "response has no data object: %v", res.body)
	return d
}

func TestSubscriptionLifecycle(t *testing.T) {
	e := newEnv(t)
	token, userID := e.register("ada@example.com")

	res := e.do(http.MethodGet, "/api/premium/content", token, nil)
	assert.Equal(t, http.StatusForbidden, res.code, "free plan has no premium access")

	e.gw.EXPECT().CreateSubscription(gomock.Any(), "plan_pro", gomock.Any()).Return("sub_1", nil)
	res = e.do(http.MethodPost, "/api/billing/subscribe", token, map[string]string{"plan": "PRO"})
	require.Equal(t, http.StatusOK, res.code, res.body)
	assert.Equal(t, "success", res.body["status"])
	assert.Equal(t, "sub_1", data(t, res)["subscriptionId"])
	assert.Equal(t, "pk_test", data(t, res)["publishableKey"])

	res = e.do(http.MethodGet, "/api/premium/content", token, nil)
	assert.Equal(t, http.StatusOK, res.code, "pending checkout is entitled")

	activated := `{"event":"subscription.activated","payload":{"subscription":{"entity":{"id":"sub_1","current_end":1700000000}}}}`
	res = e.webhook(activated, sign(activated))
	require.Equal(t, http.StatusOK, res.code)
	assert.Equal(t, true, res.body["received"])

	res = e.do(http.MethodGet, "/api/billing/subscription", token, nil)
	require.Equal(t, http.StatusOK, res.code)
	sub := data(t, res)["subscription"].(map[string]any)
	assert.Equal(t, "ACTIVE", sub["status"])
	assert.Equal(t, "PRO", sub["plan"])
	assert.Equal(t, userID, sub["userId"])
	assert.Equal(t, "2023-11-14T22:13:20Z", sub["currentPeriodEnd"])

	charged := `{"event":"subscription.charged","payload":{"subscription":{"entity":{"id":"sub_1","current_end":1702592000}},"payment":{"entity":{"id":"pay_9","amount":999,"currency":"INR"}}}}`
	for i := 0; i < 2; i++ {
		res = e.webhook(charged, sign(charged))
		require.Equal(t, http.StatusOK, res.code)
	}
	res = e.do(http.MethodGet, "/api/billing/payments", token, nil)
	require.Equal(t, http.StatusOK, res.code)
	assert.Equal(t, float64(1), res.body["results"])
	payments := data(t, res)["payments"].([]any)
	require.Len(t, payments, 1)
	assert.Equal(t, float64(999), payments[0].(map[string]any)["amount"])

	res = e.do(http.MethodPost, "/api/billing/subscribe", token, map[string]string{"plan": "BASIC"})
	assert.Equal(t, http.StatusConflict, res.code)

	e.gw.EXPECT().CancelSubscription(gomock.Any(), "sub_1").Return(nil)
	res = e.do(http.MethodPost, "/api/billing/cancel", token, nil)
	require.Equal(t, http.StatusOK, res.code, res.body)
	assert.Equal(t, "Subscription canceled successfully", data(t, res)["message"])

	res = e.do(http.MethodGet, "/api/premium/content", token, nil)
	assert.Equal(t, http.StatusForbidden, res.code)
}

func TestWebhook_Rejections(t *testing.T) {
	e := newEnv(t)
	body := `{"event":"subscription.activated","payload":{"subscription":{"entity":{"id":"sub_1"}}}}`

	res := e.webhook(body, "")
	assert.Equal(t, http.StatusBadRequest, res.code)
	assert.Equal(t, "error", res.body["status"])

	res = e.webhook(body, sign(body+" "))
	assert.Equal(t, http.StatusBadRequest, res.code)

	res = e.webhook(`{"event":`, sign(`{"event":`))
	assert.Equal(t, http.StatusBadRequest, res.code)

	res = e.webhook(body, sign(body))
	assert.Equal(t, http.StatusOK, res.code, "unknown subscription is acknowledged")

	unknown := `{"event":"refund.created","payload":{}}`
	res = e.webhook(unknown, sign(unknown))
	assert.Equal(t, http.StatusOK, res.code)
}

func TestWebhook_StorageFailureAsksForRetry(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.app.DB.Close())

	body := `{"event":"subscription.pending","payload":{"subscription":{"entity":{"id":"sub_1"}}}}`
	res := e.webhook(body, sign(body))
	assert.Equal(t, http.StatusInternalServerError, res.code)
	assert.Equal(t, "internal server error", res.body["message"])
}

func TestAuth(t *testing.T) {
	e := newEnv(t)
	token, _ := e.register("ada@example.com")

	res := e.do(http.MethodPost, "/api/auth/register", "", map[string]string{"email": "ADA@example.com", "password": "correct horse"})
	assert.Equal(t, http.StatusBadRequest, res.code)

	res = e.do(http.MethodPost, "/api/auth/register", "", map[string]string{"email": "bob@example.com"})
	assert.Equal(t, http.StatusBadRequest, res.code)
	assert.Equal(t, "bad request: password is required", res.body["message"])

	res = e.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ada@example.com", "password": "wrong password"})
	assert.Equal(t, http.StatusUnauthorized, res.code)

	res = e.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ada@example.com", "password": "correct horse"})
	require.Equal(t, http.StatusOK, res.code)
	assert.NotEmpty(t, res.body["token"])

	res = e.do(http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, res.code)
	user := data(t, res)["user"].(map[string]any)
	assert.Equal(t, "ada@example.com", user["email"])
	assert.NotContains(t, user, "passwordHash")
	assert.Equal(t, "FREE", user["subscription"].(map[string]any)["plan"])

	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/api/auth/me", "", nil).code)
	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/api/billing/subscription", "garbage", nil).code)
}

func TestSubscribe_Errors(t *testing.T) {
	e := newEnv(t)
	token, _ := e.register("ada@example.com")

	res := e.do(http.MethodPost, "/api/billing/subscribe", token, map[string]string{"plan": "GOLD"})
	assert.Equal(t, http.StatusBadRequest, res.code)

	res = e.do(http.MethodPost, "/api/billing/subscribe", token, `{}`)
	assert.Equal(t, http.StatusBadRequest, res.code)

	res = e.do(http.MethodPost, "/api/billing/subscribe", token, `{"plan":`)
	assert.Equal(t, http.StatusBadRequest, res.code)

	e.gw.EXPECT().CreateSubscription(gomock.Any(), "plan_basic", gomock.Any()).Return("", errors.New("provider down"))
	res = e.do(http.MethodPost, "/api/billing/subscribe", token, map[string]string{"plan": "BASIC"})
	assert.Equal(t, http.StatusBadGateway, res.code)

	res = e.do(http.MethodPost, "/api/billing/cancel", token, nil)
	assert.Equal(t, http.StatusNotFound, res.code, "free subscription has nothing to cancel")
}

func TestOps(t *testing.T) {
	e := newEnv(t)

	req, err := http.NewRequest(http.MethodGet, e.srv.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "req-7")
	res := e.send(req)
	assert.Equal(t, http.StatusOK, res.code)
	assert.Equal(t, "req-7", res.header.Get("X-Request-ID"))

	body := `{"event":"subscription.pending","payload":{"subscription":{"entity":{"id":"sub_x"}}}}`
	e.webhook(body, sign(body))

	resp, err := http.Get(e.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), `billing_webhook_events_total{kind="subscription.pending",outcome="uncorrelated"} 1`)
	assert.Contains(t, string(raw), fmt.Sprintf(`billing_http_requests_total{code="200",method="POST",route=%q}`, "/api/webhooks/provider"))

	res = e.do(http.MethodGet, "/api/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, res.code)
	assert.Equal(t, "error", res.body["status"])

	e.app.Health.Shutdown()
	assert.NotEqual(t, http.StatusOK, e.do(http.MethodGet, "/healthz", "", nil).code)
}
