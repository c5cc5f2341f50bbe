package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/Avaneeshakrishna/cliniccall-AI/pkg/logging"
)

const (
	defaultNPIBaseURL = "https://npiregistry.cms.hhs.gov/api/"
	defaultZipBaseURL = "https://api.zippopotam.us/us/"
	defaultTimeout    = 10 * time.Second
	npiAPIVersion     = "2.1"
)

// NPIClient queries the NPI registry and a ZIP code lookup service.
type NPIClient struct {
	httpClient *http.Client
	npiURL     string
	zipURL     string
	limiter    *rate.Limiter
	logger     *logging.Logger
	tracer     trace.Tracer
}

// NPIClientOptions configures NPIClient. Zero values use the public endpoints.
type NPIClientOptions struct {
	NPIBaseURL string
	ZipBaseURL string
	Timeout    time.Duration
	// RatePerSec caps outbound requests; 0 disables the limiter.
	RatePerSec float64
}

func NewNPIClient(opts NPIClientOptions, logger *logging.Logger) *NPIClient {
	if strings.TrimSpace(opts.NPIBaseURL) == "" {
		opts.NPIBaseURL = defaultNPIBaseURL
	}
	if strings.TrimSpace(opts.ZipBaseURL) == "" {
		opts.ZipBaseURL = defaultZipBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = logging.Default()
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), 1)
	}
	return &NPIClient{
		httpClient: &http.Client{Timeout: opts.Timeout},
		npiURL:     opts.NPIBaseURL,
		zipURL:     strings.TrimRight(opts.ZipBaseURL, "/") + "/",
		limiter:    limiter,
		logger:     logger,
		tracer:     otel.Tracer("cliniccall.internal.providers"),
	}
}

// searchParams are the registry filters used by the tiered search.
type searchParams struct {
	PostalCode string
	City       string
	State      string
	Taxonomy   string
	Limit      int
}

// Search runs one registry query.
func (c *NPIClient) Search(ctx context.Context, p searchParams) ([]npiResult, error) {
	ctx, span := c.tracer.Start(ctx, "providers.npi_search")
	defer span.End()

	q := url.Values{}
	q.Set("version", npiAPIVersion)
	q.Set("limit", fmt.Sprintf("%d", p.Limit))
	if p.PostalCode != "" {
		q.Set("postal_code", p.PostalCode)
	}
	if p.State != "" {
		q.Set("state", p.State)
	}
	if p.City != "" {
		q.Set("city", p.City)
	}
	if p.Taxonomy != "" {
		q.Set("taxonomy_description", p.Taxonomy)
	}
	span.SetAttributes(
		attribute.String("npi.postal_code", p.PostalCode),
		attribute.String("npi.taxonomy", p.Taxonomy),
	)

	var out npiResponse
	if err := c.getJSON(ctx, c.npiURL+"?"+q.Encode(), &out); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "npi search failed")
		return nil, fmt.Errorf("npi search: %w", err)
	}
	span.SetAttributes(attribute.Int("npi.result_count", len(out.Results)))
	return out.Results, nil
}

// LookupZip resolves a US ZIP code to its first place name and state.
func (c *NPIClient) LookupZip(ctx context.Context, zip string) (city, state string, err error) {
	ctx, span := c.tracer.Start(ctx, "providers.zip_lookup")
	defer span.End()

	var out zipResponse
	if err := c.getJSON(ctx, c.zipURL+url.PathEscape(zip), &out); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "zip lookup failed")
		return "", "", fmt.Errorf("zip lookup: %w", err)
	}
	if len(out.Places) == 0 {
		return "", "", nil
	}
	return out.Places[0].PlaceName, out.Places[0].StateAbbreviation, nil
}

func (c *NPIClient) getJSON(ctx context.Context, endpoint string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
