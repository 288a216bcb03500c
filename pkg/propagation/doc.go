// Package propagation implements linear error propagation for sums and
// differences of measured quantities.
//
// A calculation is an ordered Sequence of Terms. Aggregate folds it into a
// Result:
//
//	value = x₁ ± x₂ ± ... ± xₙ   (the first term's operation is never applied)
//	error = Δx₁ + Δx₂ + ... + Δxₙ (worst-case bound, signs never cancel)
//	unit  = unit of the first term
//
// Every partial derivative of a sum or difference has magnitude 1, so each
// absolute error reaches the result unchanged.
//
// Sequence owns the mutable list (Append, Remove, UpdateOperation) and keeps
// it non-empty. ParseTerm and ParseExpression turn free text into Inputs.
// Headline, Detail and FormatRelative render a Result for display.
//
// Sequence is not safe for concurrent use; callers that share one (the
// server's session store) must serialise access.
package propagation
