package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Avaneeshakrishna/cliniccall-AI/internal/observability/metrics"
	"github.com/Avaneeshakrishna/cliniccall-AI/pkg/logging"
)

const defaultSearchLimit = 5

type registry interface {
	Search(ctx context.Context, p searchParams) ([]npiResult, error)
	LookupZip(ctx context.Context, zip string) (city, state string, err error)
}

type cachedSearch struct {
	providers []Provider
	tier      Tier
}

// Directory finds providers near a ZIP code, widening the search in tiers:
// exact specialty in the ZIP, then the same specialty in the ZIP's city and
// state, then any specialty there. Registry failures count as no results.
type Directory struct {
	registry registry
	cache    *lru.Cache[string, cachedSearch]
	logger   *logging.Logger
	metrics  *metrics.DialogMetrics
}

// NewDirectory builds a Directory. cacheSize <= 0 disables caching.
func NewDirectory(client *NPIClient, cacheSize int, logger *logging.Logger) (*Directory, error) {
	if client == nil {
		return nil, fmt.Errorf("providers: registry client is required")
	}
	return newDirectory(client, cacheSize, logger)
}

func newDirectory(reg registry, cacheSize int, logger *logging.Logger) (*Directory, error) {
	if reg == nil {
		return nil, fmt.Errorf("providers: registry client is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	d := &Directory{registry: reg, logger: logger}
	if cacheSize > 0 {
		cache, err := lru.New[string, cachedSearch](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("providers: create cache: %w", err)
		}
		d.cache = cache
	}
	return d, nil
}

func (d *Directory) WithMetrics(m *metrics.DialogMetrics) *Directory {
	d.metrics = m
	return d
}

// Search returns up to limit providers for department near zip, along with
// the tier that produced them. An empty department matches any specialty.
func (d *Directory) Search(ctx context.Context, department, zip string, limit int) ([]Provider, Tier) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	zip = strings.TrimSpace(zip)
	if zip == "" {
		return nil, TierNone
	}
	key := fmt.Sprintf("%s|%s|%d", department, zip, limit)
	if d.cache != nil {
		if hit, ok := d.cache.Get(key); ok {
			return hit.providers, hit.tier
		}
	}

	start := time.Now()
	providers, tier, failed := d.search(ctx, department, zip, limit)
	d.metrics.ObserveExternalCall("provider_directory", time.Since(start).Seconds())
	if failed {
		d.metrics.ObserveFallback("provider_directory", "error")
	} else if d.cache != nil {
		d.cache.Add(key, cachedSearch{providers: providers, tier: tier})
	}
	return providers, tier
}

func (d *Directory) search(ctx context.Context, department, zip string, limit int) ([]Provider, Tier, bool) {
	taxonomy := Taxonomy(department)
	params := searchParams{PostalCode: zip, Limit: max(limit*5, 20)}
	failed := false

	fetch := func(p searchParams, match string) []Provider {
		results, err := d.registry.Search(ctx, p)
		if err != nil {
			failed = true
			d.logger.Warn("provider search failed", "postal_code", zip, "error", err)
			return nil
		}
		return collectProviders(results, match, limit)
	}

	if found := fetch(params, taxonomy); len(found) > 0 {
		return found, TierNone, failed
	}

	city, state, err := d.registry.LookupZip(ctx, zip)
	if err != nil {
		d.logger.Warn("zip lookup failed", "postal_code", zip, "error", err)
		return nil, TierNone, true
	}
	if city == "" && state == "" {
		return nil, TierNone, failed
	}

	params = searchParams{City: city, State: state, Taxonomy: taxonomy, Limit: params.Limit}
	if found := fetch(params, taxonomy); len(found) > 0 {
		return found, TierNearby, failed
	}
	if taxonomy != "" {
		params.Taxonomy = ""
		if found := fetch(params, ""); len(found) > 0 {
			return found, TierBroader, failed
		}
	}
	return nil, TierNone, failed
}

func collectProviders(results []npiResult, taxonomy string, limit int) []Provider {
	var out []Provider
	for _, item := range results {
		if !matchesTaxonomy(item, taxonomy) {
			continue
		}
		p := Provider{NPI: item.Number.String(), Name: providerName(item)}
		if len(item.Addresses) > 0 {
			addr := item.Addresses[0]
			p.City, p.State, p.PostalCode = addr.City, addr.State, addr.PostalCode
		}
		out = append(out, p)
		if len(out) >= limit {
			break
		}
	}
	return out
}

func matchesTaxonomy(item npiResult, taxonomy string) bool {
	if taxonomy == "" {
		return true
	}
	target := strings.ToLower(taxonomy)
	for _, t := range item.Taxonomies {
		desc := t.Desc
		if desc == "" {
			desc = t.TaxonomyDescription
		}
		if strings.Contains(strings.ToLower(desc), target) {
			return true
		}
	}
	return false
}

func providerName(item npiResult) string {
	switch {
	case strings.TrimSpace(item.Basic.Name) != "":
		return item.Basic.Name
	case strings.TrimSpace(item.Basic.OrganizationName) != "":
		return item.Basic.OrganizationName
	case strings.TrimSpace(item.Basic.FirstName+item.Basic.LastName) != "":
		return strings.TrimSpace(item.Basic.FirstName + " " + item.Basic.LastName)
	}
	return "Provider"
}
