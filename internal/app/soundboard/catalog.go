// Package soundboard provides the catalog of local soundboard clips.
package soundboard

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/MassimilianoBaglioni/soundboard-bot/internal/domain/track"
)

var (
	ErrUnknownSound = errors.New("unknown sound")
)

// Sound is one clip in the soundboard directory.
type Sound struct {
	ID       string // Stable index, used as button ID
	Label    string // File name without extension
	FileName string // File name inside the directory
}

// Catalog is an immutable list of sounds loaded at startup.
type Catalog struct {
	dir    string
	sounds []Sound
	byID   map[string]Sound
}

// Load scans dir for clip files. A missing directory yields an empty catalog.
func Load(dir string) (*Catalog, error) {
	c := &Catalog{dir: dir, byID: make(map[string]Sound)}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return c, nil
		}
		return nil, errors.Wrapf(err, "failed to read soundboard directory: %s", dir)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for i, name := range names {
		s := Sound{
			ID:       strconv.Itoa(i),
			Label:    strings.TrimSuffix(name, filepath.Ext(name)),
			FileName: name,
		}
		c.sounds = append(c.sounds, s)
		c.byID[s.ID] = s
	}
	return c, nil
}

// Dir returns the soundboard directory.
func (c *Catalog) Dir() string {
	return c.dir
}

// Sounds returns all sounds in display order.
func (c *Catalog) Sounds() []Sound {
	result := make([]Sound, len(c.sounds))
	copy(result, c.sounds)
	return result
}

// Len returns the number of sounds.
func (c *Catalog) Len() int {
	return len(c.sounds)
}

// Lookup returns the sound with the given ID.
func (c *Catalog) Lookup(id string) (Sound, error) {
	s, ok := c.byID[id]
	if !ok {
		return Sound{}, errors.Wrapf(ErrUnknownSound, "id=%s", id)
	}
	return s, nil
}

// Track returns the playable file track for a sound.
func (c *Catalog) Track(id string) (track.Track, error) {
	s, err := c.Lookup(id)
	if err != nil {
		return track.Track{}, err
	}
	return track.Track{
		Title:   s.Label,
		Locator: filepath.Join(c.dir, s.FileName),
		File:    true,
	}, nil
}

// Pages splits the sounds into pages of at most perPage entries.
func (c *Catalog) Pages(perPage int) [][]Sound {
	if perPage <= 0 {
		perPage = len(c.sounds)
	}

	var pages [][]Sound
	for start := 0; start < len(c.sounds); start += perPage {
		end := min(start+perPage, len(c.sounds))
		pages = append(pages, c.sounds[start:end])
	}
	return pages
}
