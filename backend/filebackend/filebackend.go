// Package filebackend is a local-file Backend, registered under the
// "file" scheme and installed as the default factory for bare paths.
//
// Grounded on the teacher's pamutil.Remove, which drives a whole file's
// lifecycle (open/remove) through a single URI-shaped path argument;
// here the same shape backs byte-range reads and writes instead of
// streaming.
package filebackend

import (
	"os"

	"github.com/grailbio/rrd/backend"
	"github.com/pkg/errors"
)

func init() {
	backend.RegisterFactory("file", factory{})
	// Bare paths (no "scheme://" prefix) resolve to the local filesystem
	// unless a caller picks a different default afterwards, before the
	// first backend.FindFactory call locks the default in.
	_ = backend.SetDefaultFactory("file")
}

type factory struct{}

func (factory) Open(uri backend.URI, readOnly bool) (backend.Backend, error) {
	flag := os.O_RDWR
	if readOnly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(uri.Opaque, flag, 0)
	if os.IsNotExist(err) {
		return nil, backend.ErrNotExist
	}
	if err != nil {
		return nil, errors.Wrapf(err, "filebackend: open %s", uri.Opaque)
	}
	return &Backend{uri: uri, f: f, readOnly: readOnly}, nil
}

func (factory) Create(uri backend.URI, size int64) (backend.Backend, error) {
	f, err := os.OpenFile(uri.Opaque, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "filebackend: create %s", uri.Opaque)
	}
	if err := f.Truncate(size); err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "filebackend: truncate %s to %d", uri.Opaque, size)
	}
	return &Backend{uri: uri, f: f}, nil
}

func (factory) Exists(uri backend.URI) bool {
	_, err := os.Stat(uri.Opaque)
	return err == nil
}

func (factory) ShouldValidateHeader(uri backend.URI) bool { return true }

// Backend is a Backend backed by a single local file opened with
// random-access read/write.
type Backend struct {
	uri      backend.URI
	f        *os.File
	readOnly bool
}

func (b *Backend) SetLength(n int64) error {
	if err := b.f.Truncate(n); err != nil {
		return errors.Wrapf(err, "filebackend: truncate %s", b.uri.Opaque)
	}
	return nil
}

func (b *Backend) ReadAt(offset int64, buf []byte) error {
	if _, err := b.f.ReadAt(buf, offset); err != nil {
		return errors.Wrapf(err, "filebackend: read %s at %d", b.uri.Opaque, offset)
	}
	return nil
}

func (b *Backend) WriteAt(offset int64, buf []byte) error {
	if b.readOnly {
		return errors.Errorf("filebackend: %s is read-only", b.uri.Opaque)
	}
	if _, err := b.f.WriteAt(buf, offset); err != nil {
		return errors.Wrapf(err, "filebackend: write %s at %d", b.uri.Opaque, offset)
	}
	return nil
}

func (b *Backend) ReadAll() ([]byte, error) {
	info, err := b.f.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "filebackend: stat %s", b.uri.Opaque)
	}
	buf := make([]byte, info.Size())
	if _, err := b.f.ReadAt(buf, 0); err != nil {
		return nil, errors.Wrapf(err, "filebackend: read all %s", b.uri.Opaque)
	}
	return buf, nil
}

func (b *Backend) Close() error {
	return b.f.Close()
}

func (b *Backend) Path() string     { return b.uri.Opaque }
func (b *Backend) URI() backend.URI { return b.uri }
