package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"resty.dev/v3"
)

var (
	ErrNotConfigured  = errors.New("WORKERS_API_URL is not set")
	ErrInvalidPayload = errors.New("invalid workers api payload")
)

// StatusError is a non-2xx answer from the Workers API.
type StatusError struct {
	Endpoint string
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("workers api %s: HTTP error! status: %d", e.Endpoint, e.Code)
}

func invalidPayload(endpoint string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidPayload, endpoint, reason)
}

type searchPayload struct {
	Images     *[]ImageSummary `json:"images"`
	TotalCount *int            `json:"total_count"`
	Page       int             `json:"page"`
	Limit      int             `json:"limit"`
}

type similarPayload struct {
	Similar *[]ImageSummary `json:"similar"`
}

// WorkersApi talks to the remote search, detail and download service.
type WorkersApi struct {
	Http    *resty.Client
	baseUrl string
	log     *logrus.Entry
}

// NewWorkersApi builds the client. Detail and similar-image answers go through
// the on-disk response cache when one is given; search answers never do.
func NewWorkersApi(cfg *Config, cache *ReqCache) *WorkersApi {
	var transport http.RoundTripper = http.DefaultTransport
	if cache != nil {
		transport = cache
	}
	hc := &http.Client{
		Transport: otelhttp.NewTransport(transport),
		Timeout:   cfg.WorkersTimeout(),
	}
	baseUrl := strings.TrimRight(cfg.Workers.Url, "/")
	client := resty.NewWithClient(hc)
	if baseUrl != "" {
		client.SetBaseURL(baseUrl)
	}
	return &WorkersApi{
		Http:    client,
		baseUrl: baseUrl,
		log:     componentLogger("workers"),
	}
}

// WorkersCachePolicy keeps photo details for the configured detail TTL and
// similar-image lists for the similar TTL.
func WorkersCachePolicy(cfg *Config) CachePolicy {
	detail := time.Duration(cfg.Cache.DetailTTL) * time.Second
	similar := time.Duration(cfg.Cache.SimilarTTL) * time.Second
	return func(req *http.Request) time.Duration {
		switch req.URL.Path {
		case "/api/photo":
			return detail
		case "/api/similar":
			return similar
		}
		return 0
	}
}

func (api *WorkersApi) Close() error {
	return api.Http.Close()
}

func (api *WorkersApi) Configured() bool {
	return api.baseUrl != ""
}

// get performs a GET and lets resty decode a 2xx JSON body into out.
func (api *WorkersApi) get(ctx context.Context, endpoint string, params map[string]string, out any) error {
	if !api.Configured() {
		upstreamRequests.WithLabelValues(endpoint, "unconfigured").Inc()
		api.log.WithField("endpoint", endpoint).Error(ErrNotConfigured.Error())
		return ErrNotConfigured
	}
	resp, err := api.Http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetForceResponseContentType("application/json").
		SetResult(out).
		Get("/api/" + endpoint)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}

	code := 0
	if resp != nil {
		code = resp.StatusCode()
	}
	switch {
	case code == 0:
		upstreamRequests.WithLabelValues(endpoint, "transport").Inc()
		return fmt.Errorf("workers api %s: %w", endpoint, err)
	case code < 200 || code > 299:
		upstreamRequests.WithLabelValues(endpoint, "status").Inc()
		return &StatusError{Endpoint: endpoint, Code: code}
	case err != nil:
		upstreamRequests.WithLabelValues(endpoint, "invalid").Inc()
		return invalidPayload(endpoint, err.Error())
	}
	return nil
}

func validSummaries(endpoint string, images []ImageSummary) error {
	for i, img := range images {
		if img.Id == "" {
			return invalidPayload(endpoint, "image "+strconv.Itoa(i)+" has no id")
		}
	}
	return nil
}

// Search fetches one page of results. On any failure the returned page is empty
// and carries the requested page number.
func (api *WorkersApi) Search(ctx context.Context, key SearchKey, perPage int) (ResultPage, error) {
	empty := ResultPage{Images: []ImageSummary{}, Page: key.Page, PerPage: perPage}
	params := map[string]string{
		"p":     strconv.Itoa(key.Page),
		"limit": strconv.Itoa(perPage),
	}
	if key.Mode == ModeCategory {
		params["category"] = key.Term
	} else {
		params["q"] = key.Term
	}

	var data searchPayload
	if err := api.get(ctx, "search", params, &data); err != nil {
		api.log.WithError(err).WithField("key", key.String()).Warn("Error fetching images")
		return empty, err
	}
	var err error
	switch {
	case data.Images == nil:
		err = invalidPayload("search", "missing images")
	case data.TotalCount == nil:
		err = invalidPayload("search", "missing total_count")
	case *data.TotalCount < 0:
		err = invalidPayload("search", "negative total_count")
	default:
		err = validSummaries("search", *data.Images)
	}
	if err != nil {
		upstreamRequests.WithLabelValues("search", "invalid").Inc()
		api.log.WithError(err).WithField("key", key.String()).Warn("Error fetching images")
		return empty, err
	}

	limit := data.Limit
	if limit <= 0 {
		limit = perPage
	}
	upstreamRequests.WithLabelValues("search", "ok").Inc()
	return ResultPage{
		Images:     *data.Images,
		Page:       key.Page,
		PerPage:    limit,
		TotalCount: *data.TotalCount,
	}, nil
}

func (api *WorkersApi) Photo(ctx context.Context, id string) (*ImageDetail, error) {
	var data ImageDetail
	if err := api.get(ctx, "photo", map[string]string{"id": id}, &data); err != nil {
		api.log.WithError(err).WithField("id", id).Warn("Failed to fetch image detail")
		return nil, err
	}
	if data.Id == "" {
		err := invalidPayload("photo", "missing id")
		upstreamRequests.WithLabelValues("photo", "invalid").Inc()
		api.log.WithError(err).WithField("id", id).Warn("Failed to fetch image detail")
		return nil, err
	}
	data.FillFromPrimary()
	upstreamRequests.WithLabelValues("photo", "ok").Inc()
	return &data, nil
}

func (api *WorkersApi) Similar(ctx context.Context, id string) ([]ImageSummary, error) {
	var data similarPayload
	if err := api.get(ctx, "similar", map[string]string{"id": id}, &data); err != nil {
		api.log.WithError(err).WithField("id", id).Warn("Failed to fetch similar images")
		return nil, err
	}
	err := validSummaries("similar", derefSummaries(data.Similar))
	if data.Similar == nil {
		err = invalidPayload("similar", "missing similar")
	}
	if err != nil {
		upstreamRequests.WithLabelValues("similar", "invalid").Inc()
		api.log.WithError(err).WithField("id", id).Warn("Failed to fetch similar images")
		return nil, err
	}
	upstreamRequests.WithLabelValues("similar", "ok").Inc()
	return *data.Similar, nil
}

func derefSummaries(images *[]ImageSummary) []ImageSummary {
	if images == nil {
		return nil
	}
	return *images
}

// DownloadUrl is where the browser is sent to fetch one file variant. The site
// never downloads the file itself.
func (api *WorkersApi) DownloadUrl(id string, fileTypeId int) (string, error) {
	if !api.Configured() {
		return "", ErrNotConfigured
	}
	q := url.Values{}
	q.Set("id", id)
	q.Set("type_id", strconv.Itoa(fileTypeId))
	return api.baseUrl + "/api/download?" + q.Encode(), nil
}
