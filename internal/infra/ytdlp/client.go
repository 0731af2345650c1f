// Package ytdlp wraps the yt-dlp binary for metadata, search and playlist listing.
package ytdlp

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/lrstanley/go-ytdlp"
	zlog "github.com/rs/zerolog/log"
)

// searchPrefix makes yt-dlp return the first search hit.
const searchPrefix = "ytsearch1:"

// ErrNoResult is returned when yt-dlp produced no usable output.
var ErrNoResult = errors.New("yt-dlp returned no result")

// Metadata is the display information of a single video.
type Metadata struct {
	Title string
	URL   string // Canonical page URL
}

// Client runs yt-dlp commands.
type Client struct {
	proxy string
}

// Config represents yt-dlp client configuration.
type Config struct {
	Proxy string
}

// New creates a new yt-dlp client.
func New(cfg Config) *Client {
	return &Client{proxy: cfg.Proxy}
}

// Install downloads a yt-dlp binary into the cache when none is usable.
func Install(ctx context.Context) error {
	resolved, err := ytdlp.Install(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to install yt-dlp")
	}
	zlog.Info().Msgf("yt-dlp ready: path=%s version=%s", resolved.Executable, resolved.Version)
	return nil
}

func (c *Client) command() *ytdlp.Command {
	cmd := ytdlp.New().
		NoWarnings().
		IgnoreConfig()
	if c.proxy != "" {
		cmd.Proxy(c.proxy)
	}
	return cmd
}

// target returns the yt-dlp input for a locator.
func target(locator string, search bool) string {
	if search {
		return searchPrefix + locator
	}
	return locator
}

// Metadata fetches title and canonical URL for a URL or search query.
func (c *Client) Metadata(ctx context.Context, locator string, search bool) (*Metadata, error) {
	res, err := c.command().
		Print("%(title)s\t%(webpage_url)s").
		NoPlaylist().
		Run(ctx, "--skip-download", target(locator, search))
	if err != nil {
		return nil, errors.Wrapf(err, "yt-dlp metadata failed: locator=%s%s", locator, stderrSuffix(res))
	}

	md, ok := parseMetadata(res.Stdout)
	if !ok {
		return nil, errors.Wrapf(ErrNoResult, "locator=%s", locator)
	}
	return md, nil
}

// FlatPlaylist lists the entry URLs of a playlist without resolving them.
// At most maxItems entries are requested and returned.
func (c *Client) FlatPlaylist(ctx context.Context, url string, maxItems int) ([]string, error) {
	res, err := c.command().
		FlatPlaylist().
		Print("%(url)s").
		PlaylistItems(fmt.Sprintf("1-%d", maxItems)).
		Run(ctx, url)
	if err != nil {
		return nil, errors.Wrapf(err, "yt-dlp playlist listing failed: url=%s%s", url, stderrSuffix(res))
	}
	return parseLines(res.Stdout, maxItems), nil
}

// StreamURL resolves the direct audio stream URL for a URL or search query.
func (c *Client) StreamURL(ctx context.Context, locator string, search bool) (string, error) {
	res, err := c.command().
		Format("bestaudio/best").
		Print("%(url)s").
		NoPlaylist().
		Run(ctx, "--skip-download", target(locator, search))
	if err != nil {
		return "", errors.Wrapf(err, "yt-dlp stream url failed: locator=%s%s", locator, stderrSuffix(res))
	}

	urls := parseLines(res.Stdout, 1)
	if len(urls) == 0 {
		return "", errors.Wrapf(ErrNoResult, "locator=%s", locator)
	}
	return urls[0], nil
}

// parseMetadata parses the first "title<TAB>url" line.
func parseMetadata(stdout string) (*Metadata, bool) {
	for _, l := range strings.Split(strings.TrimSpace(stdout), "\n") {
		ps := strings.Split(strings.TrimSpace(l), "\t")
		if len(ps) < 2 || ps[0] == "" {
			continue
		}
		url := ps[1]
		if url == "NA" {
			url = ""
		}
		return &Metadata{Title: ps[0], URL: url}, true
	}
	return nil, false
}

// parseLines returns up to maxItems non-empty lines, skipping yt-dlp "NA" placeholders.
func parseLines(stdout string, maxItems int) []string {
	lines := make([]string, 0)
	for _, l := range strings.Split(strings.TrimSpace(stdout), "\n") {
		l = strings.TrimSpace(l)
		if l == "" || l == "NA" {
			continue
		}
		lines = append(lines, l)
		if maxItems > 0 && len(lines) >= maxItems {
			break
		}
	}
	return lines
}

func stderrSuffix(res *ytdlp.Result) string {
	if res == nil || strings.TrimSpace(res.Stderr) == "" {
		return ""
	}
	return " stderr=" + strings.TrimSpace(res.Stderr)
}
