package main

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReqCacheReplaysCachedResponses(t *testing.T) {
	var hits atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		if r.URL.Path == "/broken" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"n":%d}`, n)
	}))
	defer upstream.Close()

	store := newTestStore(t)
	rc := NewReqCache(store, http.DefaultTransport, func(req *http.Request) time.Duration {
		if strings.HasPrefix(req.URL.Path, "/nocache") {
			return 0
		}
		return time.Hour
	})
	client := &http.Client{Transport: rc}

	get := func(path string) (int, string) {
		resp, err := client.Get(upstream.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(body)
	}

	_, first := get("/photo?id=1")
	_, second := get("/photo?id=1")
	assert.Equal(t, `{"n":1}`, first)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), hits.Load())

	_, other := get("/photo?id=2")
	assert.Equal(t, `{"n":2}`, other, "a different URL is a different entry")

	get("/nocache")
	get("/nocache")
	assert.Equal(t, int32(4), hits.Load())

	code, _ := get("/broken")
	assert.Equal(t, http.StatusBadGateway, code)
	get("/broken")
	assert.Equal(t, int32(6), hits.Load(), "failures are never cached")
}

func TestReqCacheExpiry(t *testing.T) {
	var hits atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, "ok")
	}))
	defer upstream.Close()

	now := time.Unix(1_700_000_000, 0)
	rc := NewReqCache(newTestStore(t), nil, func(*http.Request) time.Duration { return time.Minute })
	rc.now = func() time.Time { return now }
	client := &http.Client{Transport: rc}

	for i := 0; i < 2; i++ {
		resp, err := client.Get(upstream.URL)
		require.NoError(t, err)
		resp.Body.Close()
	}
	assert.Equal(t, int32(1), hits.Load())

	now = now.Add(2 * time.Minute)
	resp, err := client.Get(upstream.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, int32(2), hits.Load())
}

func TestRequestHashIgnoresHeaders(t *testing.T) {
	a, _ := http.NewRequest(http.MethodGet, "https://api.example/api/photo?id=1", nil)
	b, _ := http.NewRequest(http.MethodGet, "https://api.example/api/photo?id=1", nil)
	b.Header.Set("Traceparent", "00-abc-def-01")
	c, _ := http.NewRequest(http.MethodGet, "https://api.example/api/photo?id=2", nil)

	assert.Equal(t, requestHash(a), requestHash(b))
	assert.NotEqual(t, requestHash(a), requestHash(c))
}
