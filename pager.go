package main

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Navigator receives the list URL after every page change so the browser
// location stays in step with what the pager displays.
type Navigator interface {
	Navigate(url string)
}

type NavigatorFunc func(url string)

func (f NavigatorFunc) Navigate(url string) { f(url) }

// Pager holds the list view of one browsing session: the search context being
// shown, the page of images on screen, and whether a fetch is in progress.
//
// Page changes are served from the shared ResultCache when possible. Each state
// transition bumps a generation counter; a fetch only commits its result if no
// later transition happened while it was in flight.
type Pager struct {
	cache   *ResultCache
	api     ImageSearcher
	nav     Navigator
	perPage int
	log     *logrus.Entry

	mu      sync.Mutex
	mode    SearchMode
	term    string
	page    int
	images  []ImageSummary
	total   int
	loading bool
	gen     uint64
}

// PagerView is a consistent snapshot of a Pager.
type PagerView struct {
	Mode       SearchMode     `json:"mode"`
	Term       string         `json:"term"`
	Page       int            `json:"page"`
	PerPage    int            `json:"perPage"`
	TotalCount int            `json:"totalCount"`
	TotalPages int            `json:"totalPages"`
	Images     []ImageSummary `json:"images"`
	Loading    bool           `json:"loading"`
	NoResults  bool           `json:"noResults"`
	Url        string         `json:"url"`
}

func NewPager(cache *ResultCache, api ImageSearcher, nav Navigator, perPage int) *Pager {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if nav == nil {
		nav = NavigatorFunc(func(string) {})
	}
	return &Pager{
		cache:   cache,
		api:     api,
		nav:     nav,
		perPage: perPage,
		mode:    ModeQuery,
		log:     componentLogger("pager"),
	}
}

func (p *Pager) PerPage() int { return p.perPage }

func (p *Pager) ResolvePage(key SearchKey) (ResultPage, bool) {
	return p.cache.Get(key)
}

// FetchPage asks the search API for one page. A successful page is cached under
// its key before it is returned. On failure the page is empty, keeps the
// requested page number, and nothing is cached.
func (p *Pager) FetchPage(ctx context.Context, term string, mode SearchMode, page int) (ResultPage, error) {
	key := SearchKey{Mode: mode, Term: term, Page: page}
	result, err := p.api.Search(ctx, key, p.perPage)
	if err != nil {
		return ResultPage{Images: []ImageSummary{}, Page: page, PerPage: p.perPage}, err
	}
	p.cache.Put(key, result)
	return result, nil
}

// ReconcileExternalContext adopts a server-rendered context. When mode, term or
// page differ from what is displayed, the displayed state is replaced by initial
// and a non-empty initial page is cached. The same context is also re-adopted
// when it currently shows an empty list that is not loading and initial has
// images, so a page left empty by a failed fetch recovers on reload. It reports
// whether anything changed.
func (p *Pager) ReconcileExternalContext(term string, mode SearchMode, page int, initial ResultPage) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if mode == p.mode && term == p.term && page == p.page {
		if p.loading || len(p.images) > 0 || initial.Empty() {
			return false
		}
	}
	p.gen++
	p.mode, p.term, p.page = mode, term, page
	p.images = initial.Images
	p.total = initial.TotalCount
	p.loading = false
	if !initial.Empty() {
		p.cache.Put(SearchKey{Mode: mode, Term: term, Page: page}, initial)
	}
	p.log.WithFields(logrus.Fields{"mode": mode, "term": term, "page": page, "images": len(initial.Images)}).Debug("context replaced")
	return true
}

// RequestPageChange moves the displayed list to newPage in the current search
// context. It returns false without doing anything when newPage is already shown.
// A cache hit is applied immediately; a miss marks the pager loading and blocks
// on the fetch. The navigator is told the new URL in both cases.
func (p *Pager) RequestPageChange(ctx context.Context, newPage int) bool {
	p.mu.Lock()
	if newPage == p.page {
		p.mu.Unlock()
		return false
	}
	p.gen++
	gen := p.gen
	mode, term := p.mode, p.term
	key := SearchKey{Mode: mode, Term: term, Page: newPage}

	if cached, ok := p.cache.Get(key); ok {
		p.page = newPage
		p.images = cached.Images
		p.total = cached.TotalCount
		p.loading = false
		p.mu.Unlock()
		p.nav.Navigate(ListUrl(mode, term, newPage))
		return true
	}

	p.page = newPage
	p.images = nil
	p.loading = true
	p.mu.Unlock()
	p.nav.Navigate(ListUrl(mode, term, newPage))

	result, err := p.FetchPage(ctx, term, mode, newPage)

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen {
		staleFetchesDropped.Inc()
		p.log.WithField("key", key.String()).Debug("discarding superseded fetch")
		return true
	}
	p.loading = false
	if err != nil {
		p.log.WithError(err).WithField("key", key.String()).Warn("page fetch failed")
		p.images = []ImageSummary{}
		return true
	}
	p.images = result.Images
	p.total = result.TotalCount
	return true
}

func (p *Pager) View() PagerView {
	p.mu.Lock()
	defer p.mu.Unlock()
	images := p.images
	if images == nil {
		images = []ImageSummary{}
	}
	return PagerView{
		Mode:       p.mode,
		Term:       p.term,
		Page:       p.page,
		PerPage:    p.perPage,
		TotalCount: p.total,
		TotalPages: TotalPages(p.total, p.perPage),
		Images:     images,
		Loading:    p.loading,
		NoResults:  len(p.images) == 0 && !p.loading,
		Url:        ListUrl(p.mode, p.term, p.page),
	}
}
