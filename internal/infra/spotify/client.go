// Package spotify provides a client for the Spotify catalog API.
package spotify

import (
	"context"
	"iter"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"
)

// ErrInvalidID is returned when a link does not carry a valid Spotify ID.
var ErrInvalidID = errors.New("invalid spotify id")

const (
	playlistPageSize = 100 // Spotify API max per page
	albumPageSize    = 50  // Spotify API max per page
)

// Client is a Spotify API client authenticated with client credentials.
type Client struct {
	client     *spotify.Client
	market     string
	maxRetries int
	retryDelay time.Duration
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	Market       string
	MaxRetries   int
}

// New creates a new Spotify client and checks the credentials by fetching a token.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("spotify credentials are required")
	}

	creds := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	if _, err := creds.Token(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to get client credentials token")
	}

	// The credentials client fetches a new token whenever the current one expires.
	httpClient := creds.Client(context.Background())

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	return &Client{
		client:     spotify.New(httpClient),
		market:     cfg.Market,
		maxRetries: maxRetries,
		retryDelay: time.Second,
	}, nil
}

// TrackQuery returns the "<name> <first artist>" search string for a track link, URI or ID.
func (c *Client) TrackQuery(ctx context.Context, link string) (string, error) {
	id, err := ParseID(link, "track")
	if err != nil {
		return "", err
	}

	var result *spotify.FullTrack
	err = c.retry(ctx, func() error {
		t, err := c.client.GetTrack(ctx, id, c.marketOpts()...)
		if err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to get track")
	}

	return searchQuery(result.Name, result.Artists), nil
}

// PlaylistQueries lazily enumerates a playlist as search strings.
// Pages are fetched on demand; enumeration stops after maxItems items when maxItems > 0.
func (c *Client) PlaylistQueries(ctx context.Context, id spotify.ID, maxItems int) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		offset := 0
		emitted := 0

		for {
			var page *spotify.PlaylistItemPage
			err := c.retry(ctx, func() error {
				p, err := c.client.GetPlaylistItems(ctx, id,
					append(c.marketOpts(),
						spotify.Limit(playlistPageSize),
						spotify.Offset(offset),
					)...,
				)
				if err != nil {
					return err
				}
				page = p
				return nil
			})
			if err != nil {
				yield("", errors.Wrap(err, "failed to get playlist items"))
				return
			}

			for _, item := range page.Items {
				// Only tracks, episodes are skipped
				if item.Track.Track == nil || item.Track.Track.ID == "" {
					continue
				}
				if !yield(searchQuery(item.Track.Track.Name, item.Track.Track.Artists), nil) {
					return
				}
				emitted++
				if maxItems > 0 && emitted >= maxItems {
					return
				}
			}

			if len(page.Items) < playlistPageSize {
				return
			}
			offset += playlistPageSize
		}
	}
}

// AlbumQueries lazily enumerates an album as search strings.
func (c *Client) AlbumQueries(ctx context.Context, id spotify.ID, maxItems int) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		offset := 0
		emitted := 0

		for {
			var page *spotify.SimpleTrackPage
			err := c.retry(ctx, func() error {
				p, err := c.client.GetAlbumTracks(ctx, id,
					append(c.marketOpts(),
						spotify.Limit(albumPageSize),
						spotify.Offset(offset),
					)...,
				)
				if err != nil {
					return err
				}
				page = p
				return nil
			})
			if err != nil {
				yield("", errors.Wrap(err, "failed to get album tracks"))
				return
			}

			for _, t := range page.Tracks {
				if !yield(searchQuery(t.Name, t.Artists), nil) {
					return
				}
				emitted++
				if maxItems > 0 && emitted >= maxItems {
					return
				}
			}

			if len(page.Tracks) < albumPageSize {
				return
			}
			offset += albumPageSize
		}
	}
}

func (c *Client) marketOpts() []spotify.RequestOption {
	if c.market == "" {
		return nil
	}
	return []spotify.RequestOption{spotify.Market(c.market)}
}

// retry retries an operation with linear backoff. The wait between
// attempts ends early when ctx is done.
func (c *Client) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			select {
			case <-ctx.Done():
				return errors.Wrapf(ctx.Err(), "retry aborted after %d attempts: last_err=%v", i+1, lastErr)
			case <-time.After(c.retryDelay * time.Duration(i+1)):
			}
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	// Rate limit errors and server errors are retryable
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}

// searchQuery builds the "<name> <first artist>" string used for video search.
func searchQuery(name string, artists []spotify.SimpleArtist) string {
	if len(artists) == 0 || artists[0].Name == "" {
		return name
	}
	return name + " " + artists[0].Name
}

// ParseID extracts and validates the ID of a resource ("track", "album",
// "playlist") from a Spotify URL, URI or bare ID.
func ParseID(input, resource string) (spotify.ID, error) {
	id := extractID(input, resource)
	if !isValidID(id) {
		return "", errors.Wrapf(ErrInvalidID, "resource=%s input=%q", resource, input)
	}
	return spotify.ID(id), nil
}

// extractID extracts the resource ID from a Spotify URL or URI.
func extractID(input, resource string) string {
	input = strings.TrimSpace(input)
	// Handle Spotify URI format: spotify:<resource>:ID
	prefix := "spotify:" + resource + ":"
	if strings.HasPrefix(input, prefix) {
		return strings.TrimPrefix(input, prefix)
	}

	// Handle URL format: https://open.spotify.com/<resource>/ID or https://open.spotify.com/intl-XX/<resource>/ID
	segment := "/" + resource + "/"
	if strings.Contains(input, "open.spotify.com") && strings.Contains(input, segment) {
		parts := strings.Split(input, segment)
		if len(parts) >= 2 {
			// Remove query parameters and trailing slashes
			id := strings.Split(parts[len(parts)-1], "?")[0]
			id = strings.TrimRight(id, "/")
			return id
		}
	}

	// Assume it's already an ID
	return input
}

// isValidID reports whether id is a 22 character base62 Spotify ID.
func isValidID(id string) bool {
	if len(id) != 22 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		default:
			return false
		}
	}
	return true
}
