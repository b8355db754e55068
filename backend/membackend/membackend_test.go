package membackend

import (
	"testing"

	"github.com/grailbio/rrd/backend"
	"github.com/grailbio/testutil/expect"
)

func TestMembackendCreateOpenRoundTrips(t *testing.T) {
	f := factory{}
	uri := backend.ParseURI("mem://roundtrip-test")

	be, err := f.Create(uri, 16)
	expect.NoError(t, err)
	expect.NoError(t, be.WriteAt(0, []byte("0123456789abcdef")))
	expect.NoError(t, be.Close())

	expect.EQ(t, true, f.Exists(uri))
	reopened, err := f.Open(uri, false)
	expect.NoError(t, err)
	got, err := reopened.ReadAll()
	expect.NoError(t, err)
	expect.EQ(t, "0123456789abcdef", string(got))
}

func TestMembackendOpenMissingReturnsErrNotExist(t *testing.T) {
	f := factory{}
	_, err := f.Open(backend.ParseURI("mem://does-not-exist"), false)
	expect.EQ(t, backend.ErrNotExist, err)
}

// New gives a detached backend not registered under any URI, for tests
// of the rrd core that don't want to go through the registry.
func TestNewDetachedBackendIsUsableDirectly(t *testing.T) {
	be := New(8)
	expect.NoError(t, be.WriteAt(0, []byte{1, 2, 3, 4, 5, 6, 7, 8}))
	got, err := be.ReadAll()
	expect.NoError(t, err)
	expect.EQ(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, got)
}
