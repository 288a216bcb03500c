package propagation

// Result is the aggregate of a term sequence. It is always derived, never
// stored.
type Result struct {
	Value float64 `json:"value"`
	Error float64 `json:"error"`
	Unit  string  `json:"unit"`
}

// Aggregate folds terms into a Result.
//
// The first term anchors the expression unsigned; each following term is
// added or subtracted according to its Operation. The error is the plain sum
// of every term's Error, the first one included, whatever the signs. An empty
// slice yields the zero Result.
func Aggregate(terms []Term) Result {
	if len(terms) == 0 {
		return Result{}
	}

	value := terms[0].Value
	for _, t := range terms[1:] {
		if t.Operation == OpSub {
			value -= t.Value
		} else {
			value += t.Value
		}
	}

	var errSum float64
	for _, t := range terms {
		errSum += t.Error
	}

	return Result{
		Value: value,
		Error: errSum,
		Unit:  terms[0].Unit,
	}
}
