package clients

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(url string) *SnapshotClient {
	return NewSnapshotClient(url+"/snapshot/{slug}", "poswatch-test", time.Second, 2, zap.NewNop())
}

func TestSnapshotClient_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/snapshot/alpha", r.URL.Path)
		assert.Equal(t, "poswatch-test", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"payload":{"position_snapshot_data":{"created_at":"2024-02-05T10:00:00+05:30","data":[{"trades":[{"trading_symbol":"NIFTY","quantity":50}]}]}}}`))
	}))
	defer srv.Close()

	snap, err := newTestClient(srv.URL).Fetch(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-05T10:00:00+05:30", snap.CreatedAt)
	assert.JSONEq(t, `{"created_at":"2024-02-05T10:00:00+05:30","data":[{"trades":[{"trading_symbol":"NIFTY","quantity":50}]}]}`, string(snap.Raw))
}

func TestSnapshotClient_NoData(t *testing.T) {
	bodies := []string{
		`{"success":false}`,
		`{"success":true,"payload":{}}`,
		`{"success":true,"payload":{"position_snapshot_data":null}}`,
	}

	for _, body := range bodies {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			_, _ = w.Write([]byte(body))
		}))

		_, err := newTestClient(srv.URL).Fetch(context.Background(), "alpha")
		assert.True(t, errors.Is(err, ErrNoData), "body %s: %v", body, err)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "no-data responses are not retried")
		srv.Close()
	}
}

func TestSnapshotClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"payload":{"position_snapshot_data":{"data":[]}}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Fetch(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestSnapshotClient_ClientErrorIsPermanent(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Fetch(context.Background(), "alpha")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "feed returned status 404")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSnapshotClient_EmptySlug(t *testing.T) {
	_, err := newTestClient("http://127.0.0.1:1").Fetch(context.Background(), "")
	assert.Error(t, err)
}
