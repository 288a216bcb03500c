package propagation

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// Precision is the number of decimals used for each display.
type Precision struct {
	Headline int `json:"headline"`
	Detail   int `json:"detail"`
	Relative int `json:"relative"`
}

// DefaultPrecision matches the classic panel: one decimal in the headline,
// three in the breakdown, two for the percentage.
var DefaultPrecision = Precision{Headline: 1, Detail: 3, Relative: 2}

// RelativeErrorPct returns 100 * |error / value|. It is 0 when value is 0.
func RelativeErrorPct(r Result) float64 {
	if r.Value == 0 {
		return 0
	}
	return r.Error / math.Abs(r.Value) * 100
}

// FormatRelative renders the relative error percentage with the given
// decimals, or "0" when the value is 0 and the ratio is undefined.
func FormatRelative(r Result, decimals int) string {
	if r.Value == 0 {
		return "0"
	}
	return FormatFixed(RelativeErrorPct(r), decimals)
}

// Headline renders r as "[<value> <unit> ± <error> <unit>]".
func Headline(r Result, decimals int) string {
	return bracket(
		FormatFixed(r.Value, decimals),
		FormatFixed(r.Error, decimals),
		r.Unit,
	)
}

// Chip renders a single term the way the term list shows it, with the
// shortest exact form of each number.
func Chip(t Term) string {
	return bracket(
		strconv.FormatFloat(noNegZero(t.Value), 'f', -1, 64),
		strconv.FormatFloat(noNegZero(t.Error), 'f', -1, 64),
		t.Unit,
	)
}

func bracket(value, errStr, unit string) string {
	return fmt.Sprintf("[%s %s ± %s %s]", value, unit, errStr, unit)
}

// Breakdown is the detailed result panel.
type Breakdown struct {
	Headline string `json:"headline"`
	Value    string `json:"value"`
	Error    string `json:"error"`
	Relative string `json:"relative"`
}

// Detail renders every display string of r with precision p.
func Detail(r Result, p Precision) Breakdown {
	return Breakdown{
		Headline: Headline(r, p.Headline),
		Value:    FormatFixed(r.Value, p.Detail) + " " + r.Unit,
		Error:    "±" + FormatFixed(r.Error, p.Detail) + " " + r.Unit,
		Relative: "±" + FormatRelative(r, p.Relative) + "%",
	}
}

// FormatFixed renders x with exactly decimals digits after the point. The
// exact binary value of x is rounded, with ties going away from zero, so
// 0.25 gives "0.3" and 1.005 (really 1.00499...) gives "1.00". Negative zero
// renders as zero; other negative values keep their sign even when they
// round to zero.
func FormatFixed(x float64, decimals int) string {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return strconv.FormatFloat(x, 'f', decimals, 64)
	}
	if decimals < 0 {
		decimals = 0
	}
	neg := x < 0
	r := new(big.Rat).SetFloat64(math.Abs(x))
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	r.Mul(r, new(big.Rat).SetInt(scale))
	r.Add(r, big.NewRat(1, 2))
	digits := new(big.Int).Quo(r.Num(), r.Denom()).String()

	if decimals > 0 {
		if len(digits) <= decimals {
			digits = strings.Repeat("0", decimals-len(digits)+1) + digits
		}
		digits = digits[:len(digits)-decimals] + "." + digits[len(digits)-decimals:]
	}
	if neg {
		return "-" + digits
	}
	return digits
}

func noNegZero(x float64) float64 {
	if x == 0 {
		return 0
	}
	return x
}
