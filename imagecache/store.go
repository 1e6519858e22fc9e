// Package imagecache implements the on-disk image cache backing local
// image references: an append-only, UUID-keyed flat directory with a
// two-threshold eviction sweep, plus upload ingestion (decode, resize,
// format normalization).
package imagecache

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Get when no cached file has the given name.
var ErrNotFound = errors.New("imagecache: not found")

// SignatureExt is the extension of the opaque thought-signature sibling
// files stored next to cached images.
const SignatureExt = ".sig"

var supportedExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".gif":  true,
}

// SupportedExt reports whether ext is one of the extensions stored verbatim.
func SupportedExt(ext string) bool {
	return supportedExts[strings.ToLower(ext)]
}

// Store is the only component that touches the cache directory.
// Files are never mutated after creation; they are removed only by the
// eviction sweep.
type Store struct {
	dir       string
	maxFiles  int
	keepFiles int
}

// NewStore creates the cache directory if needed and returns a store
// bounded by maxFiles (sweep trigger) and keepFiles (sweep survivor count).
func NewStore(dir string, maxFiles, keepFiles int) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Store{dir: dir, maxFiles: maxFiles, keepFiles: keepFiles}, nil
}

// Dir returns the cache directory path.
func (s *Store) Dir() string { return s.dir }

// Put stores data under a freshly generated id with the given extension
// and returns the resulting file name (<uuid><ext>). Unsupported
// extensions are normalized to .jpg. An eviction check runs first.
func (s *Store) Put(data []byte, ext string) (string, error) {
	s.EvictIfNeeded()

	ext = strings.ToLower(ext)
	if !supportedExts[ext] {
		ext = ".jpg"
	}
	name := uuid.NewString() + ext
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write cached image: %w", err)
	}
	return name, nil
}

// PutSignature stores an opaque thought signature as the .sig sibling of
// the image identified by id (the uuid part of a cached file name).
func (s *Store) PutSignature(id, signature string) (string, error) {
	name := id + SignatureExt
	if err := os.WriteFile(filepath.Join(s.dir, name), []byte(signature), 0o644); err != nil {
		return "", fmt.Errorf("write signature: %w", err)
	}
	return name, nil
}

// Get returns the bytes of a cached file by name. Names containing path
// separators or traversal elements are rejected so callers cannot escape
// the cache directory.
func (s *Store) Get(name string) ([]byte, error) {
	if !validName(name) {
		return nil, ErrNotFound
	}
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func validName(name string) bool {
	if name == "" || name != filepath.Base(name) {
		return false
	}
	return name != "." && name != ".."
}

// EvictIfNeeded runs the eviction sweep when the managed file count
// exceeds the ceiling: files are sorted oldest-first by modification
// time and deleted until only keepFiles remain. The sweep is
// best-effort; individual delete failures are logged and skipped.
func (s *Store) EvictIfNeeded() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		log.Printf("[CACHE] Sweep skipped, cannot read dir: %v", err)
		return
	}

	type fileAge struct {
		name string
		mod  int64
	}
	files := make([]fileAge, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, fileAge{name: e.Name(), mod: info.ModTime().UnixNano()})
	}

	if len(files) <= s.maxFiles {
		return
	}

	sort.Slice(files, func(i, j int) bool { return files[i].mod < files[j].mod })

	toDelete := files[:len(files)-s.keepFiles]
	log.Printf("[CACHE] Sweep: %d files, deleting %d oldest", len(files), len(toDelete))
	for _, f := range toDelete {
		if err := os.Remove(filepath.Join(s.dir, f.name)); err != nil {
			log.Printf("[CACHE] Failed to delete %s: %v", f.name, err)
		}
	}
}

// MimeForFilename infers the MIME type of a cached image from its
// extension. Anything unrecognized is treated as JPEG, matching how
// files land in the cache.
func MimeForFilename(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// ExtForMime returns the cache extension for a model-produced image MIME
// type. Only PNG is distinguished; everything else is stored as .jpg.
func ExtForMime(mime string) string {
	if mime == "image/png" {
		return ".png"
	}
	return ".jpg"
}
