package main

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apibillme/cache"
	"github.com/google/uuid"
)

const (
	sessionCookie   = "doodoo_session"
	sessionCapacity = 4096
)

// Session is one browser's navigation state. Its pager shares the site-wide
// ResultCache; Location is the list URL the pager last navigated to.
type Session struct {
	Id    string
	Pager *Pager

	mu       sync.Mutex
	location string
}

func (s *Session) Navigate(url string) {
	s.mu.Lock()
	s.location = url
	s.mu.Unlock()
}

func (s *Session) Location() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.location
}

// Sessions keeps recently used sessions in an LRU with a sliding TTL.
type Sessions struct {
	mu      sync.Mutex
	table   cache.Cache
	ttl     time.Duration
	created atomic.Int64
	newFn   func(s *Session) *Pager
}

func NewSessions(ttl time.Duration, newPager func(s *Session) *Pager) *Sessions {
	return &Sessions{
		table: cache.New(sessionCapacity, cache.WithTTL(ttl)),
		ttl:   ttl,
		newFn: newPager,
	}
}

// Created counts sessions started since the process began.
func (ss *Sessions) Created() int64 {
	return ss.created.Load()
}

func (ss *Sessions) Lookup(id string) (*Session, bool) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	v, ok := ss.table.Get(id)
	if !ok {
		return nil, false
	}
	return v.(*Session), true
}

// Ensure returns the caller's session, starting a new one (and setting the
// cookie) when the request carries none or an expired one.
func (ss *Sessions) Ensure(w http.ResponseWriter, r *http.Request) *Session {
	if c, err := r.Cookie(sessionCookie); err == nil {
		if s, ok := ss.Lookup(c.Value); ok {
			return s
		}
	}

	s := &Session{Id: uuid.NewString()}
	s.Pager = ss.newFn(s)
	ss.mu.Lock()
	ss.table.Set(s.Id, s)
	ss.mu.Unlock()
	ss.created.Add(1)

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    s.Id,
		Path:     "/",
		MaxAge:   int(ss.ttl.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return s
}
