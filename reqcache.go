package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"net/http"
	"net/http/httputil"
	"time"

	"github.com/sirupsen/logrus"
	"lukechampine.com/blake3"
)

// CachePolicy returns how long a response to req may be served from disk. Zero
// means the request always goes upstream.
type CachePolicy func(req *http.Request) time.Duration

// ReqCache is an http.RoundTripper that stores successful GET responses in the
// Store and replays them until they expire.
type ReqCache struct {
	store  *Store
	next   http.RoundTripper
	policy CachePolicy
	now    func() time.Time
	log    *logrus.Entry
}

func NewReqCache(store *Store, next http.RoundTripper, policy CachePolicy) *ReqCache {
	if next == nil {
		next = http.DefaultTransport
	}
	return &ReqCache{
		store:  store,
		next:   next,
		policy: policy,
		now:    time.Now,
		log:    componentLogger("reqcache"),
	}
}

// PurgeExpired deletes expired responses every interval until ctx is done.
func (rc *ReqCache) PurgeExpired(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := rc.store.DeleteBefore(rc.now().Unix()); err != nil {
			rc.log.WithError(err).Warn("purge failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// requestHash keys on method and URL only; tracing and auth headers vary per
// request and must not split the cache.
func requestHash(req *http.Request) string {
	sum := blake3.Sum256([]byte(req.Method + " " + req.URL.String()))
	return hex.EncodeToString(sum[:])
}

func (rc *ReqCache) RoundTrip(req *http.Request) (*http.Response, error) {
	ttl := time.Duration(0)
	if req.Method == http.MethodGet && rc.policy != nil {
		ttl = rc.policy(req)
	}
	if ttl <= 0 {
		return rc.next.RoundTrip(req)
	}

	reqHash := requestHash(req)
	if data, ok := rc.store.GetResponse(reqHash, rc.now().Unix()); ok {
		res, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(data)), req)
		if err == nil {
			responseCacheLookups.WithLabelValues("hit").Inc()
			return res, nil
		}
		rc.log.WithError(err).Warn("problems decoding cached result")
	}
	responseCacheLookups.WithLabelValues("miss").Inc()

	resp, err := rc.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp, nil
	}
	respBytes, err := httputil.DumpResponse(resp, true)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}
	rc.log.WithFields(logrus.Fields{"host": req.URL.Host, "path": req.URL.Path}).Debug("MISS")
	if err := rc.store.StoreResponse(reqHash, respBytes, rc.now().Add(ttl).Unix()); err != nil {
		rc.log.WithError(err).Warn("could not cache response")
	}
	return http.ReadResponse(bufio.NewReader(bytes.NewReader(respBytes)), req)
}
