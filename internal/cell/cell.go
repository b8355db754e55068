// Package cell implements the primitive, persistent storage slots that
// every on-disk field of the rrd format is built from: a cell is bound
// once to a (backend, offset, width) triple and thereafter supports Get
// and Set, reading and writing through the backend on every access.
//
// Grounded on encoding/pam/fieldio/bytebuffer.go's get/put accessors,
// generalized from a single growable buffer to per-field random access
// and switched to big-endian encoding, since spec.md §6 fixes the
// on-disk byte order as part of the interop contract (the teacher's
// byteBuffer uses little-endian, which would be wrong here).
package cell

import (
	"encoding/binary"
	"math"
	"strings"

	"github.com/grailbio/rrd/backend"
)

// Int64 is an 8-byte signed integer cell.
type Int64 struct {
	be     backend.Backend
	offset int64
}

// Int64Width is the on-disk size of an Int64 cell.
const Int64Width = 8

// BindInt64 binds a new Int64 cell at offset.
func BindInt64(be backend.Backend, offset int64) Int64 {
	return Int64{be: be, offset: offset}
}

func (c Int64) Get() (int64, error) {
	var buf [Int64Width]byte
	if err := c.be.ReadAt(c.offset, buf[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(buf[:])), nil
}

func (c Int64) Set(v int64) error {
	var buf [Int64Width]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	return c.be.WriteAt(c.offset, buf[:])
}

// Float64 is an IEEE-754 double cell. NaN is the canonical "unknown" value.
type Float64 struct {
	be     backend.Backend
	offset int64
}

const Float64Width = 8

func BindFloat64(be backend.Backend, offset int64) Float64 {
	return Float64{be: be, offset: offset}
}

func (c Float64) Get() (float64, error) {
	var buf [Float64Width]byte
	if err := c.be.ReadAt(c.offset, buf[:]); err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(buf[:])), nil
}

func (c Float64) Set(v float64) error {
	var buf [Float64Width]byte
	binary.BigEndian.PutUint64(buf[:], math.Float64bits(v))
	return c.be.WriteAt(c.offset, buf[:])
}

// String is a fixed-capacity UTF-8 string cell. Values shorter than the
// declared capacity are NUL-padded on write and trimmed at the first NUL
// on read.
type String struct {
	be       backend.Backend
	offset   int64
	capacity int64
}

func BindString(be backend.Backend, offset, capacity int64) String {
	return String{be: be, offset: offset, capacity: capacity}
}

func (c String) Width() int64 { return c.capacity }

func (c String) Get() (string, error) {
	buf := make([]byte, c.capacity)
	if err := c.be.ReadAt(c.offset, buf); err != nil {
		return "", err
	}
	if i := strings.IndexByte(string(buf), 0); i >= 0 {
		buf = buf[:i]
	}
	return string(buf), nil
}

func (c String) Set(v string) error {
	if int64(len(v)) > c.capacity {
		v = v[:c.capacity]
	}
	buf := make([]byte, c.capacity)
	copy(buf, v)
	return c.be.WriteAt(c.offset, buf)
}

// FloatArray is a fixed-length array of float64, used for an archive's
// "robin" ring buffer. Element i lives at offset + i*8.
type FloatArray struct {
	be     backend.Backend
	offset int64
	length int64
}

func BindFloatArray(be backend.Backend, offset, length int64) FloatArray {
	return FloatArray{be: be, offset: offset, length: length}
}

func (c FloatArray) Len() int64    { return c.length }
func (c FloatArray) Width() int64  { return c.length * Float64Width }

func (c FloatArray) GetAt(i int64) (float64, error) {
	return BindFloat64(c.be, c.offset+i*Float64Width).Get()
}

func (c FloatArray) SetAt(i int64, v float64) error {
	return BindFloat64(c.be, c.offset+i*Float64Width).Set(v)
}

// Int64Array is a fixed-length array of int64.
type Int64Array struct {
	be     backend.Backend
	offset int64
	length int64
}

func BindInt64Array(be backend.Backend, offset, length int64) Int64Array {
	return Int64Array{be: be, offset: offset, length: length}
}

func (c Int64Array) Len() int64   { return c.length }
func (c Int64Array) Width() int64 { return c.length * Int64Width }

func (c Int64Array) GetAt(i int64) (int64, error) {
	return BindInt64(c.be, c.offset+i*Int64Width).Get()
}

func (c Int64Array) SetAt(i int64, v int64) error {
	return BindInt64(c.be, c.offset+i*Int64Width).Set(v)
}
