package status

// Kind tells whether a status value is a numeric reading or descriptive text.
type Kind int

const (
	KindNumeric Kind = iota
	KindLabel
)

func (k Kind) String() string {
	switch k {
	case KindNumeric:
		return "numeric"
	case KindLabel:
		return "label"
	default:
		return "unknown"
	}
}

// Line is one parsed "KEY : VALUE [UNIT]" status line.
type Line struct {
	// Key is trimmed and lowercased.
	Key string
	// RawValue is the trimmed value text, unit suffix included.
	RawValue string
	Kind     Kind
	// Value is set for KindNumeric.
	Value float64
	// Text is set for KindLabel.
	Text string
}

// WarningReason explains why a line was left out of a Result.
type WarningReason string

const (
	ReasonMissingSeparator WarningReason = "missing_separator"
	ReasonEmptyKey         WarningReason = "empty_key"
	ReasonNotNumeric       WarningReason = "not_numeric"
	ReasonDuplicateKey     WarningReason = "duplicate_key"
)

// Warning records a non-fatal problem with a single input line.
type Warning struct {
	// Index is the zero-based position of the line in the input.
	Index  int
	Raw    string
	Reason WarningReason
}

// Result is the classified form of one status report.
type Result struct {
	Gauges     map[string]float64
	InfoLabels map[string]string
	Warnings   []Warning
}

// Empty reports whether the report produced no usable entries.
func (r Result) Empty() bool {
	return len(r.Gauges) == 0 && len(r.InfoLabels) == 0
}
