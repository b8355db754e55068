package rrdpb

import (
	"testing"

	"github.com/grailbio/testutil/expect"
)

func TestDsTypeStringRoundTrips(t *testing.T) {
	for _, typ := range []DsType{Gauge, Counter, Derive, Absolute} {
		got, ok := ParseDsType(typ.String())
		expect.EQ(t, true, ok)
		expect.EQ(t, typ, got)
	}
}

func TestParseDsTypeRejectsUnknownTag(t *testing.T) {
	_, ok := ParseDsType("NOPE")
	expect.EQ(t, false, ok)
}

func TestConsolFunStringRoundTrips(t *testing.T) {
	for _, cf := range []ConsolFun{Average, Min, Max, Last, First, Total} {
		got, ok := ParseConsolFun(cf.String())
		expect.EQ(t, true, ok)
		expect.EQ(t, cf, got)
	}
}

func TestParseConsolFunRejectsUnknownTag(t *testing.T) {
	_, ok := ParseConsolFun("NOPE")
	expect.EQ(t, false, ok)
}
