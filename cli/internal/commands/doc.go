// Package commands holds the cobra command tree of the errprop CLI.
//
//	errprop calc "3.2±0.5cm + 120±2cm"     aggregate an expression
//	errprop calc --json 10+-1 - 4+-0.5     same, as JSON
//	errprop slides                          print the explanatory deck
package commands
