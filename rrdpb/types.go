// Package rrdpb defines the value objects that cross the boundary
// between the rrd core and its collaborators: samples going in, fetch
// requests and results coming out, and definitions used to create or
// clone a database.
//
// These are plain structs rather than generated protobuf messages: the
// engine's actual wire format is the big-endian fixed-offset binary
// layout described by the rrd package, not a protobuf encoding.
package rrdpb

import "math"

// DsType is the datasource type, controlling how a raw sample value is
// turned into a rate.
type DsType int

const (
	// Gauge datasources report a rate directly (e.g. temperature, queue depth).
	Gauge DsType = iota
	// Counter datasources report a monotonically increasing count that may
	// wrap; the rate is the first derivative, with wrap correction.
	Counter
	// Derive is like Counter but without wrap correction.
	Derive
	// Absolute datasources report a count accumulated since the last sample.
	Absolute
)

func (t DsType) String() string {
	switch t {
	case Gauge:
		return "GAUGE"
	case Counter:
		return "COUNTER"
	case Derive:
		return "DERIVE"
	case Absolute:
		return "ABSOLUTE"
	default:
		return "UNKNOWN"
	}
}

// ParseDsType parses the on-disk type tag produced by DsType.String.
func ParseDsType(s string) (DsType, bool) {
	switch s {
	case "GAUGE":
		return Gauge, true
	case "COUNTER":
		return Counter, true
	case "DERIVE":
		return Derive, true
	case "ABSOLUTE":
		return Absolute, true
	default:
		return 0, false
	}
}

// ConsolFun is the consolidation function an archive applies when
// folding primary data points into a row.
type ConsolFun int

const (
	Average ConsolFun = iota
	Min
	Max
	Last
	First
	Total
)

func (f ConsolFun) String() string {
	switch f {
	case Average:
		return "AVERAGE"
	case Min:
		return "MIN"
	case Max:
		return "MAX"
	case Last:
		return "LAST"
	case First:
		return "FIRST"
	case Total:
		return "TOTAL"
	default:
		return "UNKNOWN"
	}
}

// ParseConsolFun parses the on-disk cf tag produced by ConsolFun.String.
func ParseConsolFun(s string) (ConsolFun, bool) {
	switch s {
	case "AVERAGE":
		return Average, true
	case "MIN":
		return Min, true
	case "MAX":
		return Max, true
	case "LAST":
		return Last, true
	case "FIRST":
		return First, true
	case "TOTAL":
		return Total, true
	default:
		return 0, false
	}
}

// IsUnknown reports whether v is the "unknown"/NaN sentinel used
// throughout the engine for missing min/max bounds and unknown samples.
func IsUnknown(v float64) bool {
	return math.IsNaN(v)
}

// Unknown is the canonical NaN value stored for unknown min/max/pdp values.
var Unknown = math.NaN()

// Sample is one timestamped vector of raw datasource readings, delivered
// to Database.Update.
type Sample struct {
	Time   int64
	Values []float64
}

// FetchRequest describes a range query against a database.
type FetchRequest struct {
	Cf         ConsolFun
	Start      int64
	End        int64
	Resolution int64
}

// FetchData is the result of a fetch: row timestamps aligned to the
// selected archive's step, and one value vector per datasource, in
// chronological order.
type FetchData struct {
	ArcStep    int64
	Timestamps []int64
	// DsNames gives the column order; Values[i] corresponds to DsNames[i].
	DsNames []string
	Values  [][]float64
}

// DsDef declares one datasource at creation time.
type DsDef struct {
	Name      string
	Type      DsType
	Heartbeat int64
	Min       float64
	Max       float64
}

// ArcDef declares one archive at creation time.
type ArcDef struct {
	Cf    ConsolFun
	Xff   float64
	Steps int64
	Rows  int64
}

// RrdDef fully describes a database, sufficient to recreate an empty,
// structurally identical one. Returned by Database.GetRrdDef and
// consumed by Create.
type RrdDef struct {
	Path        string
	StartTime   int64
	Step        int64
	Version     int64
	Datasources []DsDef
	Archives    []ArcDef
}
