// Package track provides the Track domain entity.
package track

import (
	"fmt"
	"strings"
	"time"
)

// Track represents a resolved, playable audio source.
// Immutable once produced by the resolver.
type Track struct {
	Title   string // Display title
	URL     string // Canonical source URL shown to users
	Locator string // What the voice layer streams: URL, search query or file path
	Search  bool   // Locator must be resolved via search rather than fetched directly
	File    bool   // Locator is a local soundboard clip
}

// Markdown returns the track as a markdown link for chat messages.
func (t Track) Markdown() string {
	if t.URL == "" {
		return t.Title
	}
	return fmt.Sprintf("[%s](%s)", t.Title, t.URL)
}

// Requester represents the user who requested the track.
type Requester struct {
	ID   string // Discord user ID
	Name string // Display name
}

// QueuedTrack represents a track in a guild's playback queue.
type QueuedTrack struct {
	Track     Track         // Resolved track
	Requester Requester     // Requester info
	ChannelID string        // Text channel that receives notices for this track
	AddedAt   time.Time     // Time when added to queue
	Offset    time.Duration // Start position, set when an interrupted track is re-queued

	// OnStart is invoked when the voice layer reports that the track started.
	OnStart func()
}

// RequestKind classifies a raw play request.
type RequestKind int

const (
	KindSearch       RequestKind = iota // Free text
	KindDirect                          // Plain URL
	KindCatalogTrack                    // Spotify track link
)

// String returns the string representation of the request kind.
func (k RequestKind) String() string {
	switch k {
	case KindSearch:
		return "search"
	case KindDirect:
		return "direct"
	case KindCatalogTrack:
		return "catalog_track"
	default:
		return "unknown"
	}
}

// Classify decides how a raw request is resolved. First match wins.
func Classify(raw string) RequestKind {
	raw = strings.TrimSpace(raw)
	if IsCatalogTrackLink(raw) {
		return KindCatalogTrack
	}
	if IsURL(raw) {
		return KindDirect
	}
	return KindSearch
}

// IsURL reports whether s starts with an http(s) scheme prefix.
func IsURL(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// IsCatalogTrackLink reports whether s is a Spotify track link or URI.
func IsCatalogTrackLink(s string) bool {
	if strings.HasPrefix(s, "spotify:track:") {
		return true
	}
	return strings.Contains(s, "open.spotify.com") && strings.Contains(s, "/track/")
}
