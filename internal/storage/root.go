package storage

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/parcel/internal/utils"
)

// Root confines every destination and temp unit to one directory.
// Names passed to its methods are slash separated and relative to the root.
type Root struct {
	fs  billy.Filesystem
	dir string // empty when not backed by the OS filesystem

	// memfs keeps its namespace in unguarded maps
	mu sync.Mutex
}

func NewOS(dir string) (*Root, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving storage root %q: %v", utils.ErrInvalidInput, dir, err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("%w: creating storage root %q: %w", utils.ErrIO, abs, err)
	}
	return &Root{fs: osfs.New(abs), dir: abs}, nil
}

func NewMemory() *Root {
	return &Root{fs: memfs.New()}
}

func (r *Root) Dir() string {
	return r.dir
}

func (r *Root) FS() billy.Filesystem {
	return r.fs
}

// LocalPath maps a root-relative name onto the OS filesystem, for display only.
func (r *Root) LocalPath(name string) string {
	if r.dir == "" {
		return name
	}
	return filepath.Join(r.dir, filepath.FromSlash(name))
}

func (r *Root) Exists(name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.fs.Stat(name)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, wrap("stat", name, err)
}

func (r *Root) Size(name string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, err := r.fs.Stat(name)
	if err != nil {
		return 0, wrap("stat", name, err)
	}
	return info.Size(), nil
}

func (r *Root) MkdirAll(dir string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mkdirAll(dir)
}

func (r *Root) mkdirAll(dir string) error {
	if dir == "" || dir == "." || dir == "/" {
		return nil
	}
	if err := r.fs.MkdirAll(dir, 0755); err != nil {
		return wrap("mkdir", dir, err)
	}
	return nil
}

// CreateExclusive never truncates: an existing name fails with ErrAlreadyExists.
func (r *Root) CreateExclusive(name string) (billy.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.mkdirAll(path.Dir(name)); err != nil {
		return nil, err
	}
	f, err := r.fs.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %s", utils.ErrAlreadyExists, name)
		}
		return nil, wrap("create", name, err)
	}
	return f, nil
}

// CreateTemp opens a temp unit, discarding whatever a previous attempt left there.
func (r *Root) CreateTemp(name string) (billy.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.mkdirAll(path.Dir(name)); err != nil {
		return nil, err
	}
	f, err := r.fs.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, wrap("create", name, err)
	}
	return f, nil
}

func (r *Root) Open(name string) (billy.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, err := r.fs.Open(name)
	if err != nil {
		return nil, wrap("open", name, err)
	}
	return f, nil
}

// RemoveIfExists treats an already missing file as removed.
func (r *Root) RemoveIfExists(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeIfExists(name)
}

func (r *Root) removeIfExists(name string) error {
	err := r.fs.Remove(name)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return wrap("remove", name, err)
}

// PruneTempDir drops the temp directory next to name once nothing is left in it.
func (r *Root) PruneTempDir(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tempDir := path.Join(path.Dir(name), utils.TempDirName)
	entries, err := r.fs.ReadDir(tempDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return wrap("readdir", tempDir, err)
	}
	if len(entries) > 0 {
		return nil
	}
	return r.removeIfExists(tempDir)
}

// CleanTemp removes leftover temp units in dir. When base is non-empty only the
// units belonging to that destination are removed. Returns the number removed.
func (r *Root) CleanTemp(dir, base string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tempDir := path.Join(dir, utils.TempDirName)
	entries, err := r.fs.ReadDir(tempDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, wrap("readdir", tempDir, err)
	}
	removed := 0
	for _, entry := range entries {
		if base != "" && !strings.HasPrefix(entry.Name(), base+".part") {
			continue
		}
		name := path.Join(tempDir, entry.Name())
		if err := util.RemoveAll(r.fs, name); err != nil {
			return removed, wrap("remove", name, err)
		}
		log.Debug().Str("op", "storage/clean").Str("path", name).Msg("Removed temp unit")
		removed++
	}
	if base == "" || removed == len(entries) {
		if err := r.removeIfExists(tempDir); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

// Available reports free bytes for the root; ok is false when it cannot be known.
func (r *Root) Available() (free uint64, ok bool) {
	if r.dir == "" {
		return 0, false
	}
	free, err := diskFree(r.dir)
	if err != nil {
		log.Debug().Str("op", "storage/space").Err(err).Msg("Free space unavailable")
		return 0, false
	}
	return free, true
}

func wrap(op, name string, err error) error {
	if errors.Is(err, billy.ErrCrossedBoundary) {
		return fmt.Errorf("%w: %q escapes the storage root", utils.ErrInvalidInput, name)
	}
	return fmt.Errorf("%w: storage %s %q: %w", utils.ErrIO, op, name, err)
}
