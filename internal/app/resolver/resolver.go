// Package resolver turns raw play requests into playable track references.
package resolver

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/MassimilianoBaglioni/soundboard-bot/internal/domain/track"
	"github.com/MassimilianoBaglioni/soundboard-bot/internal/infra/ytdlp"
)

var (
	// ErrMetadataUnavailable marks every failure to resolve a single request.
	ErrMetadataUnavailable = errors.New("metadata unavailable")
	ErrEmptyRequest        = errors.New("empty request")
)

// MetadataFetcher fetches display metadata for a URL or search query.
type MetadataFetcher interface {
	Metadata(ctx context.Context, locator string, search bool) (*ytdlp.Metadata, error)
}

// CatalogLookup turns a catalog track link into a search string.
type CatalogLookup interface {
	TrackQuery(ctx context.Context, link string) (string, error)
}

// Config holds resolver configuration.
type Config struct {
	MetadataTimeout time.Duration // Per-lookup timeout
	RatePerSecond   float64       // Lookups per second across all guilds (<= 0 disables)
	Burst           int
}

// Resolver resolves requests through the catalog and the metadata fetcher.
type Resolver struct {
	fetcher MetadataFetcher
	catalog CatalogLookup
	limiter *rate.Limiter
	timeout time.Duration
}

// New creates a new resolver. catalog may be nil when no catalog is configured.
func New(fetcher MetadataFetcher, catalog CatalogLookup, cfg Config) *Resolver {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	return &Resolver{
		fetcher: fetcher,
		catalog: catalog,
		limiter: limiter,
		timeout: cfg.MetadataTimeout,
	}
}

// Resolve classifies raw and fetches its metadata.
// Every failure is marked with ErrMetadataUnavailable.
func (r *Resolver) Resolve(ctx context.Context, raw string) (track.Track, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return track.Track{}, errors.Mark(ErrEmptyRequest, ErrMetadataUnavailable)
	}

	kind := track.Classify(raw)
	locator := raw
	search := kind != track.KindDirect

	if kind == track.KindCatalogTrack {
		query, err := r.catalogQuery(ctx, raw)
		if err != nil {
			return track.Track{}, err
		}
		locator = query
	}

	md, err := r.fetchMetadata(ctx, locator, search)
	if err != nil {
		return track.Track{}, err
	}

	url := md.URL
	if url == "" && !search {
		url = raw
	}

	zlog.Debug().Msgf("request resolved: kind=%s locator=%s title=%s", kind, locator, md.Title)
	return track.Track{
		Title:   md.Title,
		URL:     url,
		Locator: locator,
		Search:  search,
	}, nil
}

func (r *Resolver) catalogQuery(ctx context.Context, link string) (string, error) {
	if r.catalog == nil {
		return "", errors.Mark(errors.Newf("catalog is not configured: link=%s", link), ErrMetadataUnavailable)
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query, err := r.catalog.TrackQuery(ctx, link)
	if err != nil {
		return "", errors.Mark(errors.Wrapf(err, "catalog lookup failed: link=%s", link), ErrMetadataUnavailable)
	}
	return query, nil
}

func (r *Resolver) fetchMetadata(ctx context.Context, locator string, search bool) (*ytdlp.Metadata, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "rate limiter"), ErrMetadataUnavailable)
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	md, err := r.fetcher.Metadata(ctx, locator, search)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "metadata fetch failed: locator=%s", locator), ErrMetadataUnavailable)
	}
	return md, nil
}

func (r *Resolver) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}
