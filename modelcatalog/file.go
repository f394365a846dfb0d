package modelcatalog

import (
	"context"
	"sync"

	"github.com/skosovsky/chatbridge"
)

// FileSource reads a catalog file on first use and caches it until Reload.
type FileSource struct {
	path  string
	mu    sync.RWMutex
	cache *Catalog
}

// NewFileSource returns a FileSource for path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Models implements Source.
func (f *FileSource) Models(ctx context.Context) ([]chatbridge.ModelInfo, error) {
	f.mu.RLock()
	c := f.cache
	f.mu.RUnlock()
	if c != nil {
		return c.ModelInfos(), nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cache != nil {
		return f.cache.ModelInfos(), nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, err := ParseFile(f.path)
	if err != nil {
		return nil, err
	}
	f.cache = c
	return c.ModelInfos(), nil
}

// Reload drops the cached catalog; the next Models call rereads the file.
func (f *FileSource) Reload() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cache = nil
}

var _ Source = (*FileSource)(nil)
