package backend

import (
	"testing"

	"github.com/grailbio/testutil/expect"
)

func TestParseURI(t *testing.T) {
	u := ParseURI("s3://bucket/key")
	expect.EQ(t, "s3", u.Scheme)
	expect.EQ(t, "bucket/key", u.Opaque)
	expect.EQ(t, "s3://bucket/key", u.String())

	bare := ParseURI("/var/data/rrd.dat")
	expect.EQ(t, "", bare.Scheme)
	expect.EQ(t, "/var/data/rrd.dat", bare.Opaque)
	expect.EQ(t, "/var/data/rrd.dat", bare.String())
}

func TestBuildGenericURI(t *testing.T) {
	u := BuildGenericURI("/tmp/x.dat")
	expect.EQ(t, "", u.Scheme)
	expect.EQ(t, "/tmp/x.dat", u.Opaque)
}

type fakeFactory struct{}

func (fakeFactory) Open(uri URI, readOnly bool) (Backend, error) { return nil, nil }
func (fakeFactory) Create(uri URI, size int64) (Backend, error)  { return nil, nil }
func (fakeFactory) Exists(uri URI) bool                          { return false }
func (fakeFactory) ShouldValidateHeader(uri URI) bool            { return false }

func TestRegisterAndFindFactory(t *testing.T) {
	RegisterFactory("faketest", fakeFactory{})
	f, err := FindFactory(URI{Scheme: "faketest"})
	expect.NoError(t, err)
	expect.EQ(t, fakeFactory{}, f)

	_, err = FindFactory(URI{Scheme: "nosuchscheme"})
	expect.NotNil(t, err)
}

func TestFindFactoryWithNoSchemeAndNoDefaultFails(t *testing.T) {
	// A scheme-less URI with nothing registered as the default factory
	// (this test's own registered scheme above does not set a default).
	_, err := FindFactory(URI{})
	expect.NotNil(t, err)
}
