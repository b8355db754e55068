// Package membackend is an in-memory Backend, registered under the
// "mem" scheme. It exists primarily so the rrd core and its tests don't
// need a filesystem: spec.md §1 lists the in-memory backend as one of
// the collaborator variants the core only consumes an interface for.
package membackend

import (
	"sync"

	"github.com/grailbio/rrd/backend"
	"github.com/pkg/errors"
)

func init() {
	backend.RegisterFactory("mem", factory{})
}

var (
	storeMu sync.Mutex
	store   = map[string][]byte{}
)

type factory struct{}

func (factory) Open(uri backend.URI, readOnly bool) (backend.Backend, error) {
	storeMu.Lock()
	defer storeMu.Unlock()
	buf, ok := store[uri.Opaque]
	if !ok {
		return nil, backend.ErrNotExist
	}
	return &Backend{uri: uri, buf: buf, readOnly: readOnly}, nil
}

func (factory) Create(uri backend.URI, size int64) (backend.Backend, error) {
	storeMu.Lock()
	defer storeMu.Unlock()
	buf := make([]byte, size)
	store[uri.Opaque] = buf
	return &Backend{uri: uri, buf: buf}, nil
}

func (factory) Exists(uri backend.URI) bool {
	storeMu.Lock()
	defer storeMu.Unlock()
	_, ok := store[uri.Opaque]
	return ok
}

func (factory) ShouldValidateHeader(uri backend.URI) bool { return true }

// Backend is an in-memory Backend implementation. Its contents live in
// a process-wide map keyed by URI so that Open after Create observes
// the same data, the way a real file would.
type Backend struct {
	mu       sync.Mutex
	uri      backend.URI
	buf      []byte
	readOnly bool
	closed   bool
}

// New creates an unregistered, detached in-memory backend of size
// bytes, for callers that want a Backend value without going through
// the registry (e.g. unit tests of the rrd package itself).
func New(size int64) *Backend {
	return &Backend{buf: make([]byte, size)}
}

func (b *Backend) SetLength(n int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.New("membackend: closed")
	}
	if int64(len(b.buf)) == n {
		return nil
	}
	newBuf := make([]byte, n)
	copy(newBuf, b.buf)
	b.buf = newBuf
	b.sync()
	return nil
}

func (b *Backend) ReadAt(offset int64, buf []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.New("membackend: closed")
	}
	if offset < 0 || offset+int64(len(buf)) > int64(len(b.buf)) {
		return errors.Errorf("membackend: read [%d,%d) out of bounds (len=%d)", offset, offset+int64(len(buf)), len(b.buf))
	}
	copy(buf, b.buf[offset:offset+int64(len(buf))])
	return nil
}

func (b *Backend) WriteAt(offset int64, buf []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.New("membackend: closed")
	}
	if b.readOnly {
		return errors.New("membackend: read-only")
	}
	if offset < 0 || offset+int64(len(buf)) > int64(len(b.buf)) {
		return errors.Errorf("membackend: write [%d,%d) out of bounds (len=%d)", offset, offset+int64(len(buf)), len(b.buf))
	}
	copy(b.buf[offset:offset+int64(len(buf))], buf)
	b.sync()
	return nil
}

func (b *Backend) ReadAll() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errors.New("membackend: closed")
	}
	out := make([]byte, len(b.buf))
	copy(out, b.buf)
	return out, nil
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *Backend) Path() string    { return b.uri.String() }
func (b *Backend) URI() backend.URI { return b.uri }

// sync writes b.buf back into the shared store, for backends created
// through the registry (New-created detached backends have no entry to
// sync).
func (b *Backend) sync() {
	if b.uri.Opaque == "" {
		return
	}
	storeMu.Lock()
	store[b.uri.Opaque] = b.buf
	storeMu.Unlock()
}
