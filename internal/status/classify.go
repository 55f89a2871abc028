// Package status turns raw apcupsd status lines into gauges and identity labels.
package status

import (
	"sort"
	"strconv"
	"strings"
	"unicode"
)

const separator = ":"

// identityKeys describe the device rather than measure it. They are exported
// as labels of the info record even when their value looks numeric.
var identityKeys = map[string]struct{}{
	"apc":      {},
	"hostname": {},
	"upsname":  {},
	"version":  {},
	"cable":    {},
	"model":    {},
	"upsmode":  {},
	"driver":   {},
	"apcmodel": {},
}

// IdentityKeys returns the identity keys in sorted order.
func IdentityKeys() []string {
	keys := make([]string, 0, len(identityKeys))
	for k := range identityKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}

// IsIdentityKey reports whether key (already normalized) is an identity key.
func IsIdentityKey(key string) bool {
	_, ok := identityKeys[key]
	return ok
}

// NormalizeKey trims and lowercases a raw status key.
func NormalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// ParseLine splits and classifies a single status line. On failure the
// returned reason says why the line cannot be used; the Line is still
// populated as far as parsing got.
func ParseLine(raw string) (Line, WarningReason, bool) {
	rawKey, rawValue, found := strings.Cut(raw, separator)
	if !found {
		return Line{}, ReasonMissingSeparator, false
	}

	line := Line{
		Key:      NormalizeKey(rawKey),
		RawValue: strings.TrimSpace(rawValue),
	}
	if line.Key == "" {
		return line, ReasonEmptyKey, false
	}

	if IsIdentityKey(line.Key) {
		line.Kind = KindLabel
		line.Text = line.RawValue
		return line, "", true
	}

	v, ok := ParseNumeric(line.RawValue)
	if !ok {
		line.Kind = KindLabel
		line.Text = line.RawValue
		return line, ReasonNotNumeric, false
	}

	line.Kind = KindNumeric
	line.Value = v

	return line, "", true
}

// ParseNumeric reads the leading numeric token of a status value, ignoring
// any unit that follows it. "120.0 Volts" yields 120, "0x05000008" yields the
// flag word, "N/A" and dates fail.
func ParseNumeric(value string) (float64, bool) {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return 0, false
	}
	token := fields[0]

	if hex, ok := strings.CutPrefix(strings.ToLower(token), "0x"); ok {
		n, err := strconv.ParseUint(hex, 16, 64)
		if err != nil {
			return 0, false
		}
		return float64(n), true
	}

	end := 0
	for end < len(token) && isNumericByte(token[end]) {
		end++
	}
	if end == 0 || !isUnitSuffix(token[end:]) {
		return 0, false
	}

	v, err := strconv.ParseFloat(token[:end], 64)
	if err != nil {
		return 0, false
	}

	return v, true
}

func isNumericByte(b byte) bool {
	return (b >= '0' && b <= '9') || b == '+' || b == '-' || b == '.' || b == 'e' || b == 'E'
}

// isUnitSuffix accepts the empty string or a unit glued to the number, e.g.
// the "%" of "12%" or the "V" of "230V".
func isUnitSuffix(s string) bool {
	for _, r := range s {
		if r != '%' && !unicode.IsLetter(r) {
			return false
		}
	}

	return true
}

// Classify parses every line of a status report. Lines that cannot be used
// are dropped and reported as warnings. A repeated key keeps its last value,
// and when that last value is unusable the key is dropped altogether.
// Classify performs no I/O and depends only on its input.
func Classify(lines []string) Result {
	res := Result{
		Gauges:     make(map[string]float64),
		InfoLabels: make(map[string]string),
	}

	for i, raw := range lines {
		if strings.TrimSpace(raw) == "" {
			continue
		}

		line, reason, ok := ParseLine(raw)
		if !ok {
			// The daemon replaced any earlier value for this key.
			if line.Key != "" {
				delete(res.Gauges, line.Key)
				delete(res.InfoLabels, line.Key)
			}
			res.Warnings = append(res.Warnings, Warning{Index: i, Raw: raw, Reason: reason})
			continue
		}

		_, seenGauge := res.Gauges[line.Key]
		_, seenLabel := res.InfoLabels[line.Key]
		if seenGauge || seenLabel {
			res.Warnings = append(res.Warnings, Warning{Index: i, Raw: raw, Reason: ReasonDuplicateKey})
			delete(res.Gauges, line.Key)
			delete(res.InfoLabels, line.Key)
		}

		switch line.Kind {
		case KindNumeric:
			res.Gauges[line.Key] = line.Value
		case KindLabel:
			res.InfoLabels[line.Key] = line.Text
		}
	}

	return res
}
