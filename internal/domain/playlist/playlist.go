// Package playlist provides the playlist reference entity.
package playlist

import "strings"

// Kind represents the source of a playlist reference.
type Kind int

const (
	KindNone            Kind = iota // Not a playlist
	KindGeneric                     // Video platform playlist (list= marker)
	KindCatalogPlaylist             // Spotify playlist
	KindCatalogAlbum                // Spotify album
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindGeneric:
		return "generic"
	case KindCatalogPlaylist:
		return "catalog_playlist"
	case KindCatalogAlbum:
		return "catalog_album"
	default:
		return "unknown"
	}
}

// Ref is a classified playlist request.
type Ref struct {
	Kind Kind   // Classification result
	URL  string // Original link
}

// IsPlaylist returns true if the reference expands to multiple tracks.
func (r Ref) IsPlaylist() bool {
	return r.Kind != KindNone
}

// Generic returns the same link reclassified as a generic playlist.
func (r Ref) Generic() Ref {
	return Ref{Kind: KindGeneric, URL: r.URL}
}

// Classify classifies a raw request string. First match wins.
func Classify(raw string) Ref {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.Contains(raw, "list="):
		return Ref{Kind: KindGeneric, URL: raw}
	case isCatalogLink(raw, "playlist"):
		return Ref{Kind: KindCatalogPlaylist, URL: raw}
	case isCatalogLink(raw, "album"):
		return Ref{Kind: KindCatalogAlbum, URL: raw}
	default:
		return Ref{Kind: KindNone, URL: raw}
	}
}

func isCatalogLink(s, resource string) bool {
	if strings.HasPrefix(s, "spotify:"+resource+":") {
		return true
	}
	return strings.Contains(s, "open.spotify.com") && strings.Contains(s, "/"+resource+"/")
}
