package external

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/aegis-auth/aegis/internal/shared"
)

func testCache(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestFetchUsersCachesUpstreamResponse(t *testing.T) {
	var calls atomic.Int64
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.Equal(t, "/users", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":1,"name":"Leanne Graham"}]`))
	}))
	defer upstream.Close()

	cache, _ := testCache(t)
	client := NewClient(upstream.Client(), cache, upstream.URL, time.Minute, nil)

	first, err := client.FetchUsers(context.Background())
	require.NoError(t, err)
	require.JSONEq(t, `[{"id":1,"name":"Leanne Graham"}]`, string(first))

	second, err := client.FetchUsers(context.Background())
	require.NoError(t, err)
	require.JSONEq(t, string(first), string(second))
	require.EqualValues(t, 1, calls.Load(), "second read must come from cache")
}

func TestFetchUsersCacheExpires(t *testing.T) {
	var calls atomic.Int64
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer upstream.Close()

	cache, mr := testCache(t)
	client := NewClient(upstream.Client(), cache, upstream.URL, time.Minute, nil)

	_, err := client.FetchUsers(context.Background())
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = client.FetchUsers(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 2, calls.Load())
}

func TestFetchUsersUpstreamDown(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	upstream.Close()

	cache, _ := testCache(t)
	client := NewClient(nil, cache, upstream.URL, time.Minute, nil)

	_, err := client.FetchUsers(context.Background())
	require.ErrorIs(t, err, shared.ErrUpstreamUnavailable)
}

func TestFetchUsersUpstreamError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer upstream.Close()

	cache, _ := testCache(t)
	client := NewClient(upstream.Client(), cache, upstream.URL, time.Minute, nil)

	_, err := client.FetchUsers(context.Background())
	require.ErrorIs(t, err, shared.ErrUpstreamUnavailable)
}

func TestRefreshRepopulatesCache(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":2}]`))
	}))
	defer upstream.Close()

	cache, mr := testCache(t)
	client := NewClient(upstream.Client(), cache, upstream.URL, time.Minute, nil)

	require.NoError(t, client.Refresh(context.Background()))
	require.True(t, mr.Exists("external:users"))
}
