package image

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"

	"github.com/chazu/orca/vm"
)

// ---------------------------------------------------------------------------
// Cache: compiled programs keyed by source content
// ---------------------------------------------------------------------------

// Key is the SHA-256 of an image version, a toolchain identity and a source
// text.
type Key [32]byte

// KeyOf hashes src together with the image format version and toolchain.
func KeyOf(toolchain, src string) Key {
	h := sha256.New()
	fmt.Fprintf(h, "%d\x00%s\x00", Version, toolchain)
	h.Write([]byte(src))
	var k Key
	h.Sum(k[:0])
	return k
}

// ErrNotCached is returned by Get when no program is stored under a key.
var ErrNotCached = errors.New("image: program not cached")

// Cache stores linked programs by source key.
type Cache interface {
	Get(k Key) (*vm.Program, error)
	Put(k Key, p *vm.Program) error
	Len() (int, error)
}

// MemoryCache is an in-process Cache. Programs are stored as images so a
// cached program cannot be mutated through a returned pointer.
type MemoryCache struct {
	mu     sync.RWMutex
	images map[Key][]byte
}

// NewMemoryCache creates an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{images: make(map[Key][]byte)}
}

// Get returns a fresh copy of the program stored under k.
func (c *MemoryCache) Get(k Key) (*vm.Program, error) {
	c.mu.RLock()
	data, ok := c.images[k]
	c.mu.RUnlock()
	if !ok {
		return nil, ErrNotCached
	}
	return Unmarshal(data)
}

// Put stores p under k, replacing any previous entry.
func (c *MemoryCache) Put(k Key, p *vm.Program) error {
	data, err := Marshal(p)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.images[k] = data
	c.mu.Unlock()
	return nil
}

// Len returns the number of cached programs.
func (c *MemoryCache) Len() (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.images), nil
}

// Compiler compiles a source text to a linked program.
type Compiler func(src string) (*vm.Program, error)

// Compile returns the program cached for src under toolchain, compiling and
// storing it on a miss. Failed compiles are not cached.
func Compile(c Cache, toolchain, src string, compile Compiler) (*vm.Program, bool, error) {
	k := KeyOf(toolchain, src)
	p, err := c.Get(k)
	if err == nil {
		return p, true, nil
	}
	if !errors.Is(err, ErrNotCached) {
		log.Warningf("cache read failed, compiling: %s", err)
	}

	p, err = compile(src)
	if err != nil {
		return nil, false, err
	}
	if err := c.Put(k, p); err != nil {
		log.Warningf("cache write failed: %s", err)
	}
	return p, false, nil
}
