package cell

import (
	"math"
	"testing"

	"github.com/grailbio/rrd/backend/membackend"
	"github.com/grailbio/testutil/expect"
)

func TestInt64RoundTrip(t *testing.T) {
	be := membackend.New(64)
	c := BindInt64(be, 16)
	expect.NoError(t, c.Set(-42))
	got, err := c.Get()
	expect.NoError(t, err)
	expect.EQ(t, int64(-42), got)
}

func TestFloat64RoundTripIncludingNaN(t *testing.T) {
	be := membackend.New(64)
	c := BindFloat64(be, 8)
	expect.NoError(t, c.Set(math.NaN()))
	got, err := c.Get()
	expect.NoError(t, err)
	expect.EQ(t, true, math.IsNaN(got))

	expect.NoError(t, c.Set(3.5))
	got, err = c.Get()
	expect.NoError(t, err)
	expect.EQ(t, 3.5, got)
}

func TestStringPadAndTrim(t *testing.T) {
	be := membackend.New(64)
	c := BindString(be, 0, 20)
	expect.NoError(t, c.Set("ifOctets"))
	got, err := c.Get()
	expect.NoError(t, err)
	expect.EQ(t, "ifOctets", got)
}

func TestStringTruncatesOverCapacity(t *testing.T) {
	be := membackend.New(64)
	c := BindString(be, 0, 4)
	expect.NoError(t, c.Set("toolong"))
	got, err := c.Get()
	expect.NoError(t, err)
	expect.EQ(t, "tool", got)
}

func TestFloatArrayElementZeroAtBase(t *testing.T) {
	be := membackend.New(64)
	arr := BindFloatArray(be, 0, 5)
	for i := int64(0); i < 5; i++ {
		expect.NoError(t, arr.SetAt(i, float64(i)*1.5))
	}
	for i := int64(0); i < 5; i++ {
		v, err := arr.GetAt(i)
		expect.NoError(t, err)
		expect.EQ(t, float64(i)*1.5, v)
	}
}

func TestInt64BigEndianOnWire(t *testing.T) {
	be := membackend.New(8)
	expect.NoError(t, BindInt64(be, 0).Set(1))
	buf, err := be.ReadAll()
	expect.NoError(t, err)
	// Big-endian: the low byte of a small positive value is last.
	expect.EQ(t, byte(1), buf[7])
	expect.EQ(t, byte(0), buf[0])
}
