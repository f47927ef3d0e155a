// Package trackcache stores downloaded audio assets next to their metadata,
// keyed by video ID.
package trackcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	metadataExt = ".json"
	partExt     = ".part"
)

// Metadata describes a track. Duration is in whole seconds.
type Metadata struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Artist    string    `json:"artist,omitempty"`
	Channel   string    `json:"channel,omitempty"`
	Duration  int       `json:"duration"`
	SourceURL string    `json:"webpage_url"`
	Thumbnail string    `json:"thumbnail,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Cache is a directory holding <id>.json and <id>.<ext> pairs.
type Cache struct {
	dir string
	ext string
}

func New(dir, assetExt string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Cache{dir: dir, ext: strings.TrimPrefix(assetExt, ".")}, nil
}

func (c *Cache) Dir() string { return c.dir }

func (c *Cache) MetadataPath(id string) string {
	return filepath.Join(c.dir, id+metadataExt)
}

func (c *Cache) AssetPath(id string) string {
	return filepath.Join(c.dir, id+"."+c.ext)
}

// TempAssetPath returns a unique scratch path for a download in progress.
// Lookup never considers it.
func (c *Cache) TempAssetPath(id string) string {
	return filepath.Join(c.dir, id+"."+uuid.NewString()+partExt)
}

// Lookup returns the cached metadata and asset path for id. Both files must
// exist and the metadata must parse, anything less is a miss.
func (c *Cache) Lookup(id string) (Metadata, string, bool) {
	asset := c.AssetPath(id)
	if fi, err := os.Stat(asset); err != nil || fi.Size() == 0 {
		return Metadata{}, "", false
	}

	data, err := os.ReadFile(c.MetadataPath(id))
	if err != nil {
		return Metadata{}, "", false
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil || meta.Duration <= 0 {
		return Metadata{}, "", false
	}
	if meta.ID == "" {
		meta.ID = id
	}
	return meta, asset, true
}

// Publish moves a finished download into place. The metadata document is
// written first and the asset renamed last, so a concurrent Lookup sees
// either nothing or a complete entry.
func (c *Cache) Publish(id string, meta Metadata, tmpAsset string) error {
	if meta.FetchedAt.IsZero() {
		meta.FetchedAt = time.Now().UTC()
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}

	tmpMeta := filepath.Join(c.dir, id+"."+uuid.NewString()+metadataExt+partExt)
	if err := os.WriteFile(tmpMeta, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmpMeta, c.MetadataPath(id)); err != nil {
		_ = os.Remove(tmpMeta)
		return err
	}
	if err := os.Rename(tmpAsset, c.AssetPath(id)); err != nil {
		return err
	}
	return nil
}

// Remove deletes both files of an entry. Missing files are not an error.
func (c *Cache) Remove(id string) error {
	var errs []error
	for _, p := range []string{c.AssetPath(id), c.MetadataPath(id)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stats reports the number of complete entries and the bytes used by the directory.
func (c *Cache) Stats() (entries int, bytes int64, err error) {
	dirEntries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0, 0, err
	}
	for _, e := range dirEntries {
		if e.IsDir() {
			continue
		}
		if info, err := e.Info(); err == nil {
			bytes += info.Size()
		}
		if id, ok := strings.CutSuffix(e.Name(), "."+c.ext); ok && !strings.Contains(id, ".") {
			if _, err := os.Stat(c.MetadataPath(id)); err == nil {
				entries++
			}
		}
	}
	return entries, bytes, nil
}

// Sweep removes entries and leftover partial files whose last modification is
// older than olderThan. It returns the number of entries removed and the bytes freed.
func (c *Cache) Sweep(olderThan time.Duration) (removed int, freed int64, err error) {
	dirEntries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0, 0, err
	}
	cutoff := time.Now().Add(-olderThan)

	seen := make(map[string]bool)
	for _, e := range dirEntries {
		if e.IsDir() {
			continue
		}
		info, ierr := e.Info()
		if ierr != nil || info.ModTime().After(cutoff) {
			continue
		}
		name := e.Name()

		if strings.HasSuffix(name, partExt) {
			if os.Remove(filepath.Join(c.dir, name)) == nil {
				freed += info.Size()
			}
			continue
		}

		id := strings.TrimSuffix(name, filepath.Ext(name))
		if strings.Contains(id, ".") || seen[id] {
			continue
		}
		seen[id] = true

		paths := []string{c.AssetPath(id), c.MetadataPath(id)}
		fresh := false
		for _, p := range paths {
			if fi, serr := os.Stat(p); serr == nil && fi.ModTime().After(cutoff) {
				fresh = true
			}
		}
		if fresh {
			continue
		}

		for _, p := range paths {
			if fi, serr := os.Stat(p); serr == nil {
				if os.Remove(p) == nil {
					freed += fi.Size()
				}
			}
		}
		removed++
	}
	return removed, freed, nil
}
