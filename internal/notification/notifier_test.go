package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/poswatch/internal/domain"
	"go.uber.org/zap"
)

func testEvent() domain.ChangeEvent {
	return domain.ChangeEvent{
		ID:        "evt-1",
		Seq:       3,
		Profile:   "alpha",
		ChangeID:  42,
		Timestamp: time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC),
		Summary:   "Positions Reduced (1)",
		Removed:   1,
	}
}

func TestWebhookNotifier_PostsEvent(t *testing.T) {
	var got domain.ChangeEvent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, zap.NewNop())
	require.NoError(t, n.Notify(context.Background(), testEvent()))
	assert.Equal(t, int64(42), got.ChangeID)
	assert.Equal(t, "Positions Reduced (1)", got.Summary)
}

func TestWebhookNotifier_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL, nil).Notify(context.Background(), testEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

type recordingNotifier struct {
	calls int
	err   error
}

func (r *recordingNotifier) Notify(context.Context, domain.ChangeEvent) error {
	r.calls++
	return r.err
}

func TestMulti_AttemptsAll(t *testing.T) {
	failing := &recordingNotifier{err: errors.New("boom")}
	ok := &recordingNotifier{}

	m := Multi{failing, nil, ok, NewLogNotifier(nil)}
	err := m.Notify(context.Background(), testEvent())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, ok.calls)
}

func TestMulti_Empty(t *testing.T) {
	require.NoError(t, Multi{}.Notify(context.Background(), testEvent()))
}
