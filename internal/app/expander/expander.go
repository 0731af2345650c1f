// Package expander turns playlist and album references into a cancellable
// sequence of track requests.
package expander

import (
	"context"
	"iter"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/zmb3/spotify/v2"

	"github.com/MassimilianoBaglioni/soundboard-bot/internal/app/session/state"
	"github.com/MassimilianoBaglioni/soundboard-bot/internal/domain/playlist"
	spotifyclient "github.com/MassimilianoBaglioni/soundboard-bot/internal/infra/spotify"
)

var (
	// ErrPlaylistParseFailed is logged when a catalog link carries no usable ID.
	// The reference then falls back to the next classification tier.
	ErrPlaylistParseFailed = errors.New("playlist identifier could not be parsed")
	// ErrCancelled is returned by a Sink that observed the cancellation.
	ErrCancelled = errors.New("expansion cancelled")
)

// Lister lists generic video platform playlists.
type Lister interface {
	FlatPlaylist(ctx context.Context, url string, maxItems int) ([]string, error)
}

// Catalog enumerates catalog playlists and albums as search strings.
type Catalog interface {
	PlaylistQueries(ctx context.Context, id spotify.ID, maxItems int) iter.Seq2[string, error]
	AlbumQueries(ctx context.Context, id spotify.ID, maxItems int) iter.Seq2[string, error]
}

// Handles stores the per-guild cancellation handle.
type Handles interface {
	SetCancellation(guildID string, exp *state.Expansion) error
	ClearCancellation(guildID string, exp *state.Expansion) bool
}

// Sink resolves and enqueues one item. A non-nil error skips the item.
type Sink func(ctx context.Context, item string) error

// Stats summarizes one expansion run.
type Stats struct {
	Enqueued  int
	Failed    int
	Cancelled bool
}

// Expander expands playlist references.
type Expander struct {
	lister   Lister
	catalog  Catalog
	handles  Handles
	maxItems int
}

// New creates a new expander. catalog may be nil when no catalog is configured.
func New(lister Lister, catalog Catalog, handles Handles, maxItems int) *Expander {
	return &Expander{
		lister:   lister,
		catalog:  catalog,
		handles:  handles,
		maxItems: maxItems,
	}
}

// Normalize applies the classification fallbacks: a catalog playlist whose ID
// does not parse becomes a generic playlist, an album whose ID does not parse
// is not a playlist.
func (x *Expander) Normalize(ref playlist.Ref) playlist.Ref {
	switch ref.Kind {
	case playlist.KindCatalogPlaylist:
		if _, err := x.catalogID(ref, "playlist"); err != nil {
			zlog.Warn().Msgf("catalog playlist falls back to generic listing: url=%s err=%v", ref.URL, err)
			return ref.Generic()
		}
	case playlist.KindCatalogAlbum:
		if _, err := x.catalogID(ref, "album"); err != nil {
			zlog.Warn().Msgf("catalog album is not expandable: url=%s err=%v", ref.URL, err)
			return playlist.Ref{Kind: playlist.KindNone, URL: ref.URL}
		}
	}
	return ref
}

func (x *Expander) catalogID(ref playlist.Ref, resource string) (spotify.ID, error) {
	if x.catalog == nil {
		return "", errors.Wrap(ErrPlaylistParseFailed, "catalog is not configured")
	}
	id, err := spotifyclient.ParseID(ref.URL, resource)
	if err != nil {
		return "", errors.Mark(err, ErrPlaylistParseFailed)
	}
	return id, nil
}

// Items lazily enumerates the track requests of a normalized reference, in order.
func (x *Expander) Items(ctx context.Context, ref playlist.Ref) iter.Seq2[string, error] {
	ref = x.Normalize(ref)

	switch ref.Kind {
	case playlist.KindGeneric:
		return x.generic(ctx, ref.URL)
	case playlist.KindCatalogPlaylist:
		id, _ := x.catalogID(ref, "playlist")
		return x.catalog.PlaylistQueries(ctx, id, x.maxItems)
	case playlist.KindCatalogAlbum:
		id, _ := x.catalogID(ref, "album")
		return x.catalog.AlbumQueries(ctx, id, x.maxItems)
	default:
		return func(yield func(string, error) bool) {}
	}
}

func (x *Expander) generic(ctx context.Context, url string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		entries, err := x.lister.FlatPlaylist(ctx, url, x.maxItems)
		if err != nil {
			yield("", err)
			return
		}
		for i, entry := range entries {
			// The listing is capped again here in case the lister ignored the limit.
			if x.maxItems > 0 && i >= x.maxItems {
				return
			}
			if !yield(entry, nil) {
				return
			}
		}
	}
}

// Start registers a new cancellation handle for the guild and expands ref in
// the background, feeding every item to sink in enumeration order.
// onDone, if set, receives the run summary.
func (x *Expander) Start(ctx context.Context, guildID string, ref playlist.Ref, sink Sink, onDone func(Stats)) (*state.Expansion, error) {
	exp := state.NewExpansion(ctx, guildID)
	if err := x.handles.SetCancellation(guildID, exp); err != nil {
		exp.Finish()
		return nil, err
	}

	zlog.Info().Msgf("playlist expansion started: guild_id=%s expansion_id=%s kind=%s url=%s", guildID, exp.ID, ref.Kind, ref.URL)
	go x.run(exp, ref, sink, onDone)
	return exp, nil
}

func (x *Expander) run(exp *state.Expansion, ref playlist.Ref, sink Sink, onDone func(Stats)) {
	var stats Stats

	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("playlist expansion panicked: guild_id=%s expansion_id=%s err=%v", exp.GuildID, exp.ID, r)
		}
		x.handles.ClearCancellation(exp.GuildID, exp)
		exp.Finish()

		zlog.Info().Msgf("playlist expansion finished: guild_id=%s expansion_id=%s enqueued=%d failed=%d cancelled=%t",
			exp.GuildID, exp.ID, stats.Enqueued, stats.Failed, stats.Cancelled)
		if onDone != nil {
			onDone(stats)
		}
	}()

	ctx := exp.Context()
	for item, err := range x.Items(ctx, ref) {
		if exp.Cancelled() {
			stats.Cancelled = true
			return
		}
		if err != nil {
			stats.Failed++
			zlog.Warn().Msgf("playlist enumeration failed: guild_id=%s url=%s err=%v", exp.GuildID, ref.URL, err)
			continue
		}

		if err := sink(ctx, item); err != nil {
			if exp.Cancelled() || errors.Is(err, ErrCancelled) {
				stats.Cancelled = true
				return
			}
			stats.Failed++
			zlog.Warn().Msgf("playlist item skipped: guild_id=%s item=%s err=%v", exp.GuildID, item, err)
			continue
		}
		stats.Enqueued++
	}
	stats.Cancelled = exp.Cancelled()
}
