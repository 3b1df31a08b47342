package main

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

//go:embed templates/*.html
var templateFS embed.FS

const defaultLicense = "Free to use under the doodoo License. No attribution required."

// Site serves the gallery pages.
type Site struct {
	cfg      *Config
	api      *WorkersApi
	results  *ResultCache
	sessions *Sessions
	store    *Store
	pages    map[string]*template.Template
	tracez   http.Handler
	log      *logrus.Entry
}

func NewSite(cfg *Config, api *WorkersApi, store *Store) (*Site, error) {
	pages, err := parsePages()
	if err != nil {
		return nil, err
	}
	site := &Site{
		cfg:     cfg,
		api:     api,
		results: NewResultCache(),
		store:   store,
		pages:   pages,
		log:     componentLogger("site"),
	}
	ttl := time.Duration(cfg.Site.SessionTTL) * time.Minute
	site.sessions = NewSessions(ttl, func(s *Session) *Pager {
		return NewPager(site.results, api, s, cfg.Site.PerPage)
	})
	return site, nil
}

var templateFuncs = template.FuncMap{
	"listUrl": func(mode SearchMode, term string, page int) string {
		return ListUrl(mode, term, page)
	},
	"categoryUrl": func(name string) string {
		return ListUrl(ModeCategory, strings.ToLower(name), 1)
	},
	"lower": strings.ToLower,
	"upper": strings.ToUpper,
}

func parsePages() (map[string]*template.Template, error) {
	pages := map[string]*template.Template{}
	for _, name := range []string{"home", "list", "photo", "error"} {
		t, err := template.New(name).Funcs(templateFuncs).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		pages[name] = t
	}
	return pages, nil
}

type CategoryLink struct {
	Name   string
	Value  string
	Active bool
}

type PageData struct {
	Title       string
	Description string
	Query       string
	Category    string
	Categories  []CategoryLink
}

type ListData struct {
	PageData
	Heading string
	View    PagerView
	Nav     PageNav
}

type DownloadLink struct {
	Label string
	Size  string
	Href  string
}

type PhotoData struct {
	PageData
	Photo     *ImageDetail
	Info      string
	License   string
	Downloads []DownloadLink
	Keywords  []CategoryLink
	Similar   []ImageSummary
}

type ErrorData struct {
	PageData
	Message string
}

func (site *Site) pageData(title string, query string, category string) PageData {
	if title == "" {
		title = site.cfg.Site.Title
	} else {
		title = title + " - doodoo"
	}
	links := make([]CategoryLink, len(Categories))
	for i, c := range Categories {
		links[i] = CategoryLink{Name: c, Value: strings.ToLower(c), Active: strings.EqualFold(c, category)}
	}
	return PageData{
		Title:       title,
		Description: site.cfg.Site.Description,
		Query:       query,
		Category:    category,
		Categories:  links,
	}
}

// searchContext picks the search mode from the list URL. q and category are
// treated as exclusive: a non-empty q wins, "all" means no category.
func searchContext(q string, category string) (SearchMode, string) {
	q = strings.TrimSpace(q)
	category = strings.ToLower(strings.TrimSpace(category))
	if q != "" || category == "" || category == "all" {
		return ModeQuery, q
	}
	return ModeCategory, category
}

func (site *Site) render(w http.ResponseWriter, r *http.Request, name string, status int, data any) {
	var buf bytes.Buffer
	if err := site.pages[name].ExecuteTemplate(&buf, "layout", data); err != nil {
		site.log.WithError(err).WithField("template", name).Error("render failed")
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	body := brotli.HTTPCompressor(w, r)
	defer body.Close()
	w.WriteHeader(status)
	body.Write(buf.Bytes())
}

func (site *Site) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	body := brotli.HTTPCompressor(w, r)
	defer body.Close()
	w.WriteHeader(status)
	enc := json.NewEncoder(body)
	if site.cfg.Debug.PrettyJson {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		site.log.WithError(err).Warn("encode response")
	}
}

func (site *Site) notFound(w http.ResponseWriter, r *http.Request, message string) {
	site.render(w, r, "error", http.StatusNotFound, ErrorData{
		PageData: site.pageData("Not Found", "", ""),
		Message:  message,
	})
}

func (site *Site) handleHome(w http.ResponseWriter, r *http.Request) {
	site.render(w, r, "home", http.StatusOK, site.pageData("", "", ""))
}

// initialResults is the server-side render of a list page: the shared cache
// first, the Workers API otherwise. Failures render as an empty page.
func (site *Site) initialResults(ctx context.Context, key SearchKey) ResultPage {
	if page, ok := site.results.Get(key); ok {
		return page
	}
	page, err := site.api.Search(ctx, key, site.cfg.Site.PerPage)
	if err != nil {
		return ResultPage{Images: []ImageSummary{}, Page: key.Page, PerPage: site.cfg.Site.PerPage}
	}
	return page
}

func listHeading(mode SearchMode, term string) string {
	switch {
	case term == "":
		return "Collage Gallery"
	case mode == ModeCategory:
		for _, c := range Categories {
			if strings.EqualFold(c, term) {
				return c
			}
		}
		return term
	default:
		return fmt.Sprintf("Results for \"%s\"", term)
	}
}

func (site *Site) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	mode, term := searchContext(query.Get("q"), query.Get("category"))
	page := ParsePage(query.Get("p"))

	sess := site.sessions.Ensure(w, r)
	initial := site.initialResults(r.Context(), SearchKey{Mode: mode, Term: term, Page: page})
	sess.Pager.ReconcileExternalContext(term, mode, page, initial)
	view := sess.Pager.View()

	var data ListData
	if mode == ModeCategory {
		data.PageData = site.pageData(listHeading(mode, term), "", term)
	} else {
		data.PageData = site.pageData(listHeading(mode, term), term, "")
	}
	data.Heading = listHeading(mode, term)
	data.View = view
	data.Nav = NewPageNav(view.Page, view.TotalPages)
	site.render(w, r, "list", http.StatusOK, data)
}

// handleListPage is the pagination action behind the list page's pager
// controls. The page sends its own search context (q or category, plus the
// page it shows as from) so a session browsing several searches in different
// tabs pages the one the click came from. It answers with the pager's new
// state and the URL to push.
func (site *Site) handleListPage(w http.ResponseWriter, r *http.Request) {
	sess := site.sessions.Ensure(w, r)
	query := r.URL.Query()
	if query.Has("q") || query.Has("category") {
		mode, term := searchContext(query.Get("q"), query.Get("category"))
		shown := sess.Pager.View()
		if shown.Page < 1 || shown.Mode != mode || shown.Term != term {
			from := ParsePage(query.Get("from"))
			initial := site.initialResults(r.Context(), SearchKey{Mode: mode, Term: term, Page: from})
			sess.Pager.ReconcileExternalContext(term, mode, from, initial)
		}
	}

	current := sess.Pager.View()
	if current.Page < 1 {
		// nothing listed yet in this session
		site.writeJSON(w, r, http.StatusOK, current)
		return
	}
	target := ClampPage(ParsePage(query.Get("p")), current.TotalPages)
	sess.Pager.RequestPageChange(r.Context(), target)
	site.writeJSON(w, r, http.StatusOK, sess.Pager.View())
}

func formatSize(mb float64) string {
	return strconv.FormatFloat(mb, 'f', 1, 64) + "MB"
}

func (site *Site) handlePhoto(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	photo, err := site.api.Photo(r.Context(), id)
	if err != nil {
		site.notFound(w, r, "We couldn't find that image.")
		return
	}
	similar, err := site.api.Similar(r.Context(), id)
	if err != nil {
		similar = nil
	}

	data := PhotoData{
		PageData: site.pageData(photo.Title, "", ""),
		Photo:    photo,
		Info:     fmt.Sprintf("%d*%d | %ddpi | %s", photo.Width, photo.Height, photo.Dpi, formatSize(photo.FileSizeMb)),
		License:  photo.License,
		Similar:  similar,
	}
	if data.License == "" {
		data.License = defaultLicense
	}
	if photo.Description != "" {
		data.Description = photo.Description
	}
	for _, opt := range photo.DownloadOptions {
		label := opt.Label
		if label == "" {
			label = strings.ToUpper(opt.Extension)
		}
		data.Downloads = append(data.Downloads, DownloadLink{
			Label: label,
			Size:  fmt.Sprintf("%s · %d×%d · %s", strings.ToUpper(opt.Extension), opt.Width, opt.Height, formatSize(opt.FileSizeMb)),
			Href:  "/download?id=" + url.QueryEscape(photo.Id) + "&type_id=" + strconv.Itoa(opt.FileTypeId),
		})
	}
	for _, kw := range photo.Keywords {
		data.Keywords = append(data.Keywords, CategoryLink{Name: kw, Value: ListUrl(ModeQuery, kw, 1)})
	}
	site.render(w, r, "photo", http.StatusOK, data)
}

func (site *Site) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	typeId, err := strconv.Atoi(r.URL.Query().Get("type_id"))
	if id == "" || err != nil || typeId < 0 {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, "Query parameters ?id= and ?type_id= are required")
		return
	}
	target, err := site.api.DownloadUrl(id, typeId)
	if err != nil {
		site.log.WithError(err).Error("download unavailable")
		http.Error(w, "Downloads are unavailable", http.StatusServiceUnavailable)
		return
	}
	downloadsRedirected.Inc()
	http.Redirect(w, r, target, http.StatusFound)
}

type cacheStats struct {
	ResultPages     int   `json:"resultPages"`
	StoredResponses int   `json:"storedResponses"`
	SessionsCreated int64 `json:"sessionsCreated"`
}

func (site *Site) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stored, err := site.store.CountResponses()
	if err != nil {
		site.log.WithError(err).Warn("count stored responses")
	}
	site.writeJSON(w, r, http.StatusOK, cacheStats{
		ResultPages:     site.results.Len(),
		StoredResponses: stored,
		SessionsCreated: site.sessions.Created(),
	})
}

func (site *Site) handleCachePurge(w http.ResponseWriter, r *http.Request) {
	site.results.Clear()
	if err := site.store.DeleteAllResponses(); err != nil {
		site.log.WithError(err).Error("purge response cache")
		http.Error(w, "purge failed", http.StatusInternalServerError)
		return
	}
	site.writeJSON(w, r, http.StatusOK, map[string]bool{"purged": true})
}

func (site *Site) requireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || !site.store.TestUser(user, pass) {
			w.Header().Set("WWW-Authenticate", `Basic realm="doodoo admin"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func instrument(name string, h http.Handler) http.Handler {
	return promhttp.InstrumentHandlerDuration(
		httpRequestDuration.MustCurryWith(prometheus.Labels{"handler": name}),
		promhttp.InstrumentHandlerCounter(
			httpRequestsTotal.MustCurryWith(prometheus.Labels{"handler": name}),
			h,
		),
	)
}

// Handler wires every route with metrics, tracing and access logging.
func (site *Site) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /{$}", instrument("home", http.HandlerFunc(site.handleHome)))
	mux.Handle("GET /list", instrument("list", http.HandlerFunc(site.handleList)))
	mux.Handle("GET /list/page", instrument("list_page", http.HandlerFunc(site.handleListPage)))
	mux.Handle("GET /photo/{id}", instrument("photo", http.HandlerFunc(site.handlePhoto)))
	mux.Handle("GET /download", instrument("download", http.HandlerFunc(site.handleDownload)))
	mux.Handle("GET /admin/cache", instrument("admin", site.requireUser(site.handleCacheStats)))
	mux.Handle("POST /admin/cache/purge", instrument("admin", site.requireUser(site.handleCachePurge)))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	})
	mux.Handle("GET /metrics", promhttp.Handler())
	if site.tracez != nil {
		mux.Handle("GET /tracez", site.tracez)
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		site.notFound(w, r, "Not Found")
	})
	return site.loggingMiddleware(otelhttp.NewHandler(mux, "request"))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (site *Site) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestId := uuid.NewString()
		w.Header().Set("X-Request-ID", requestId)
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		site.log.WithFields(logrus.Fields{
			"request_id": requestId,
			"status":     rw.status,
			"method":     r.Method,
			"path":       r.URL.Path,
			"query":      r.URL.RawQuery,
			"latency":    time.Since(start).String(),
		}).Info("")
	})
}

// Serve runs the site until ctx is cancelled.
func (site *Site) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           site.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		site.log.WithField("addr", addr).Info("Starting Server")
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
