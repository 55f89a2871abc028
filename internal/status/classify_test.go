package status_test

import (
	"testing"

	"codeberg.org/mutker/apcupsd-exporter/internal/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sampleReport is a trimmed apcupsd status report from a Back-UPS unit.
var sampleReport = []string{
	"APC      : 001,036,0876",
	"DATE     : 2024-05-01 10:00:00 +0200",
	"HOSTNAME : ups01",
	"VERSION  : 3.14.14 (31 May 2016) debian",
	"UPSNAME  : rack",
	"CABLE    : USB Cable",
	"DRIVER   : USB UPS Driver",
	"UPSMODE  : Stand Alone",
	"STARTTIME: 2024-04-30 08:00:00 +0200",
	"MODEL    : Back-UPS XS 700U",
	"STATUS   : ONLINE",
	"LINEV    : 230.0 Volts",
	"LOADPCT  : 9.0 Percent",
	"BCHARGE  : 100.0 Percent",
	"TIMELEFT : 63.6 Minutes",
	"MBATTCHG : 5 Percent",
	"ALARMDEL : No alarm",
	"NUMXFERS : 0",
	"TONBATT  : 0 Seconds",
	"STATFLAG : 0x05000008",
	"SERIALNO : 3B1234X56789",
	"NOMPOWER : 390 Watts",
	"END APC  : 2024-05-01 10:00:05 +0200",
}

func TestClassifyEndToEndScenario(t *testing.T) {
	res := status.Classify([]string{
		"LINEV : 120.0 Volts",
		"LOADPCT : 12.3 Percent",
		"HOSTNAME : ups01",
	})

	assert.Equal(t, map[string]float64{"linev": 120.0, "loadpct": 12.3}, res.Gauges)
	assert.Equal(t, map[string]string{"hostname": "ups01"}, res.InfoLabels)
	assert.Empty(t, res.Warnings)
	assert.False(t, res.Empty())
}

func TestClassifySampleReport(t *testing.T) {
	res := status.Classify(sampleReport)

	assert.Equal(t, map[string]float64{
		"linev":    230.0,
		"loadpct":  9.0,
		"bcharge":  100.0,
		"timeleft": 63.6,
		"mbattchg": 5,
		"numxfers": 0,
		"tonbatt":  0,
		"statflag": 0x05000008,
		"nompower": 390,
	}, res.Gauges)

	assert.Equal(t, map[string]string{
		"apc":      "001,036,0876",
		"hostname": "ups01",
		"version":  "3.14.14 (31 May 2016) debian",
		"upsname":  "rack",
		"cable":    "USB Cable",
		"driver":   "USB UPS Driver",
		"upsmode":  "Stand Alone",
		"model":    "Back-UPS XS 700U",
	}, res.InfoLabels)

	dropped := map[string]status.WarningReason{}
	for _, w := range res.Warnings {
		dropped[w.Raw] = w.Reason
	}
	assert.Equal(t, map[string]status.WarningReason{
		"DATE     : 2024-05-01 10:00:00 +0200": status.ReasonNotNumeric,
		"STARTTIME: 2024-04-30 08:00:00 +0200": status.ReasonNotNumeric,
		"STATUS   : ONLINE":                    status.ReasonNotNumeric,
		"ALARMDEL : No alarm":                  status.ReasonNotNumeric,
		"SERIALNO : 3B1234X56789":              status.ReasonNotNumeric,
		"END APC  : 2024-05-01 10:00:05 +0200": status.ReasonNotNumeric,
	}, dropped)
}

func TestClassifyIsDeterministic(t *testing.T) {
	first := status.Classify(sampleReport)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, status.Classify(sampleReport))
	}
}

func TestClassifyDoesNotMutateInput(t *testing.T) {
	input := []string{" LINEV : 120.0 Volts ", "bogus"}
	snapshot := append([]string(nil), input...)

	status.Classify(input)
	assert.Equal(t, snapshot, input)
}

func TestIdentityKeysStayLabels(t *testing.T) {
	res := status.Classify([]string{
		"VERSION  : 3.14",
		"APC      : 001",
		"MODEL    : 1500",
		"UPSNAME  : 42",
	})

	assert.Empty(t, res.Gauges)
	assert.Equal(t, map[string]string{
		"version": "3.14",
		"apc":     "001",
		"model":   "1500",
		"upsname": "42",
	}, res.InfoLabels)
}

func TestNonNumericValuesAreDropped(t *testing.T) {
	res := status.Classify([]string{
		"LINEV    : invalid",
		"XOFFBATT : N/A",
		"STATUS   : ONLINE",
	})

	assert.Empty(t, res.Gauges)
	assert.Empty(t, res.InfoLabels, "unrecognized labels are not exported")
	require.Len(t, res.Warnings, 3)
	for _, w := range res.Warnings {
		assert.Equal(t, status.ReasonNotNumeric, w.Reason)
	}
	assert.True(t, res.Empty())
}

func TestMalformedLinesAreWarnings(t *testing.T) {
	res := status.Classify([]string{
		"LINEV    : 120.0 Volts",
		"no separator here",
		"   : 12",
		"",
		"   ",
		"LOADPCT  : 12.3 Percent",
	})

	assert.Equal(t, map[string]float64{"linev": 120.0, "loadpct": 12.3}, res.Gauges)
	assert.Equal(t, []status.Warning{
		{Index: 1, Raw: "no separator here", Reason: status.ReasonMissingSeparator},
		{Index: 2, Raw: "   : 12", Reason: status.ReasonEmptyKey},
	}, res.Warnings)
}

func TestDuplicateKeysLastWins(t *testing.T) {
	res := status.Classify([]string{
		"LINEV    : 120.0 Volts",
		"linev    : 121.5 Volts",
		"HOSTNAME : first",
		"HOSTNAME : second",
	})

	assert.Equal(t, map[string]float64{"linev": 121.5}, res.Gauges)
	assert.Equal(t, map[string]string{"hostname": "second"}, res.InfoLabels)
	require.Len(t, res.Warnings, 2)
	assert.Equal(t, status.ReasonDuplicateKey, res.Warnings[0].Reason)
	assert.Equal(t, 1, res.Warnings[0].Index)
}

func TestDuplicateKeyWithUnusableLastValueIsDropped(t *testing.T) {
	res := status.Classify([]string{
		"LINEV    : 120.0 Volts",
		"LOADPCT  : 12.0 Percent",
		"LINEV    : N/A",
	})

	assert.Equal(t, map[string]float64{"loadpct": 12}, res.Gauges)
	assert.Empty(t, res.InfoLabels)
	assert.Equal(t, []status.Warning{
		{Index: 2, Raw: "LINEV    : N/A", Reason: status.ReasonNotNumeric},
	}, res.Warnings)
}

func TestParseNumeric(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"120.0 Volts", 120.0, true},
		{"12.3 Percent", 12.3, true},
		{"100.0 Percent Load Capacity", 100.0, true},
		{"45.0 Minutes", 45.0, true},
		{"-3.5 C", -3.5, true},
		{"1e3", 1000, true},
		{"230V", 230, true},
		{"12%", 12, true},
		{"50.0 Hz", 50, true},
		{"0x05000008", 0x05000008, true},
		{"0XFF Status Flag", 255, true},
		{"7", 7, true},
		{"invalid", 0, false},
		{"N/A", 0, false},
		{"", 0, false},
		{"   ", 0, false},
		{"2024-05-01 10:00:00", 0, false},
		{"001,036,0876", 0, false},
		{"3B1234X", 0, false},
		{"0xZZ", 0, false},
		{"NaN", 0, false},
		{"Inf", 0, false},
		{"-", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := status.ParseNumeric(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

func TestParseLine(t *testing.T) {
	line, reason, ok := status.ParseLine("  LINEV    :  120.0 Volts  ")
	require.True(t, ok)
	assert.Empty(t, reason)
	assert.Equal(t, status.Line{
		Key:      "linev",
		RawValue: "120.0 Volts",
		Kind:     status.KindNumeric,
		Value:    120.0,
	}, line)

	line, _, ok = status.ParseLine("DATE     : 2024-05-01 10:00:00 +0200")
	assert.False(t, ok)
	assert.Equal(t, "date", line.Key)
	assert.Equal(t, "2024-05-01 10:00:00 +0200", line.RawValue, "only the first separator splits")
}

func TestIdentityKeys(t *testing.T) {
	assert.Equal(t, []string{
		"apc", "apcmodel", "cable", "driver", "hostname", "model", "upsmode", "upsname", "version",
	}, status.IdentityKeys())
	assert.True(t, status.IsIdentityKey("hostname"))
	assert.False(t, status.IsIdentityKey("linev"))
}
