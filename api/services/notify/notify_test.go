package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tbeaudouin05/billing-reconciler/api/services/notify"
	"github.com/tbeaudouin05/billing-reconciler/api/services/notify/mock"
)

func TestRender_ActivationIncludesPlan(t *testing.T) {
	subject, html, err := notify.Render(notify.KindActivation, notify.Data{"plan": "PRO"})
	require.NoError(t, err)
	assert.Equal(t, "You're now on the PRO plan!", subject)
	assert.Contains(t, html, "<strong>PRO</strong>")
}

func TestRender_EscapesData(t *testing.T) {
	_, html, err := notify.Render(notify.KindActivation, notify.Data{"plan": "<script>"})
	require.NoError(t, err)
	assert.NotContains(t, html, "<script>")
}

func TestRender_UnknownKind(t *testing.T) {
	_, _, err := notify.Render("nope", nil)
	assert.ErrorIs(t, err, notify.ErrUnknownKind)
}

func TestResend_PostsMessage(t *testing.T) {
	var got struct {
		From    string   `json:"from"`
		To      []string `json:"to"`
		Subject string   `json:"subject"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer re_test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"email_1"}`))
	}))
	defer srv.Close()

	s := notify.NewResend("re_test", "billing@example.com", notify.WithEndpoint(srv.URL))
	require.NoError(t, s.Send(context.Background(), "ada@example.com", notify.KindCancellation, nil))

	assert.Equal(t, "billing@example.com", got.From)
	assert.Equal(t, []string{"ada@example.com"}, got.To)
	assert.Equal(t, "Subscription Canceled", got.Subject)
}

func TestResend_SurfacesErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid api key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := notify.NewResend("bad", "billing@example.com", notify.WithEndpoint(srv.URL))
	err := s.Send(context.Background(), "ada@example.com", notify.KindWelcome, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestAsync_SwallowsFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mock.NewMockSender(ctrl)
	sender.EXPECT().
		Send(gomock.Any(), "ada@example.com", notify.KindActivation, notify.Data{"plan": "PRO"}).
		Return(errors.New("smtp down"))

	reg := prometheus.NewRegistry()
	a := notify.NewAsync(sender, time.Second, 2, zerolog.Nop(), reg)
	a.Go("ada@example.com", notify.KindActivation, notify.Data{"plan": "PRO"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, a.Wait(ctx))

	n, err := testutil.GatherAndCount(reg, "billing_notifications_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAsync_SkipsEmptyRecipient(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mock.NewMockSender(ctrl)

	a := notify.NewAsync(sender, time.Second, 1, zerolog.Nop(), nil)
	a.Go("", notify.KindWelcome, nil)
	require.NoError(t, a.Wait(context.Background()))
}
