// Package format turns raw statistics into display strings.
package format

import (
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// NoData is rendered in place of a missing or non-finite value.
const NoData = "N/A"

// Formatter renders numbers with the grouping rules of one locale.
type Formatter struct {
	printer *message.Printer
}

// New creates a Formatter for the given locale.
func New(tag language.Tag) *Formatter {
	return &Formatter{printer: message.NewPrinter(tag)}
}

var english = New(language.English)

// Stat formats a possibly-missing count, e.g. 1234567 -> "1,234,567".
func (f *Formatter) Stat(v *int64) string {
	if v == nil {
		return NoData
	}
	return f.printer.Sprintf("%d", *v)
}

// Number formats a float with no decimal places.
func (f *Formatter) Number(v float64) string {
	if !finite(v) {
		return NoData
	}
	r := math.Round(v)
	if math.Abs(r) >= math.MaxInt64 {
		return NoData
	}
	return f.printer.Sprintf("%d", int64(r))
}

// Signed formats a chart delta with an explicit sign and one decimal,
// e.g. 50 -> "+50.0", -20 -> "-20.0".
func (f *Formatter) Signed(v float64) string {
	if !finite(v) {
		return NoData
	}
	sign := "+"
	if v < 0 {
		sign = "-"
	}
	digits := strconv.FormatFloat(math.Abs(v), 'f', 1, 64)
	whole, frac, _ := strings.Cut(digits, ".")
	n, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return NoData
	}
	return sign + f.printer.Sprintf("%d", n) + "." + frac
}

// Stat formats v with English grouping.
func Stat(v *int64) string { return english.Stat(v) }

// Number formats v with English grouping.
func Number(v float64) string { return english.Number(v) }

// Signed formats v with English grouping and an explicit sign.
func Signed(v float64) string { return english.Signed(v) }

// SI prefixes reported by humanize mapped to the short-scale suffixes used on
// chart axes.
var compactSuffix = map[string]string{
	"":  "",
	"k": "k",
	"M": "m",
	"G": "b",
	"T": "t",
}

var nextPrefix = map[string]string{
	"":  "k",
	"k": "M",
	"M": "G",
	"G": "T",
	"T": "P",
}

// Compact abbreviates large values for axis ticks and marker labels:
// 950 -> "950", 12400 -> "12k", 3100000 -> "3m".
func Compact(v float64) string {
	if !finite(v) {
		return NoData
	}
	if r := math.Round(v); math.Abs(r) < 1000 {
		return strconv.FormatFloat(r, 'f', 0, 64)
	}
	value, prefix := humanize.ComputeSI(v)
	value = math.Round(value)
	if math.Abs(value) >= 1000 {
		// 999999 rounds to 1000k; carry into the next prefix.
		value, prefix = math.Copysign(1, value), nextPrefix[prefix]
	}
	suffix, ok := compactSuffix[prefix]
	if !ok {
		return strconv.FormatFloat(math.Round(v), 'e', 1, 64)
	}
	return strconv.FormatFloat(value, 'f', 0, 64) + suffix
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
