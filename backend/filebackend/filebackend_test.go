package filebackend

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/rrd/backend"
	"github.com/grailbio/testutil/expect"
)

// A database created, written, and closed survives a reopen: the file
// on disk round-trips exactly, the way encoding/pam's writer/reader
// pair is expected to.
func TestFilebackendCreateCloseReopenRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rrd.dat")
	uri := backend.ParseURI(path)

	f := factory{}
	be, err := f.Create(uri, 32)
	expect.NoError(t, err)
	want := []byte("0123456789abcdef0123456789abcdef")
	expect.NoError(t, be.WriteAt(0, want))
	expect.NoError(t, be.Close())

	expect.EQ(t, true, f.Exists(uri))

	reopened, err := f.Open(uri, false)
	expect.NoError(t, err)
	defer reopened.Close() // nolint: errcheck

	got, err := reopened.ReadAll()
	expect.NoError(t, err)
	expect.EQ(t, string(want), string(got))
}

func TestFilebackendOpenMissingFileReturnsErrNotExist(t *testing.T) {
	dir := t.TempDir()
	uri := backend.ParseURI(filepath.Join(dir, "missing.dat"))
	f := factory{}
	_, err := f.Open(uri, false)
	expect.EQ(t, backend.ErrNotExist, err)
}

func TestFilebackendReadOnlyRejectsWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rrd.dat")
	uri := backend.ParseURI(path)

	f := factory{}
	be, err := f.Create(uri, 8)
	expect.NoError(t, err)
	expect.NoError(t, be.Close())

	ro, err := f.Open(uri, true)
	expect.NoError(t, err)
	defer ro.Close() // nolint: errcheck

	err = ro.WriteAt(0, []byte{1, 2, 3})
	expect.NotNil(t, err)
}

func TestFilebackendSetLengthTruncatesAndExtends(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rrd.dat")
	uri := backend.ParseURI(path)

	f := factory{}
	be, err := f.Create(uri, 4)
	expect.NoError(t, err)
	expect.NoError(t, be.SetLength(8))

	info, err := os.Stat(path)
	expect.NoError(t, err)
	expect.EQ(t, int64(8), info.Size())

	expect.NoError(t, be.SetLength(2))
	info, err = os.Stat(path)
	expect.NoError(t, err)
	expect.EQ(t, int64(2), info.Size())
	expect.NoError(t, be.Close())
}
