package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/errprop/errprop/pkg/propagation"
)

const formula = "δR = δA + δB + δC + ..."

type calcOptions struct {
	unit                string
	json                bool
	strictUnits         bool
	allowNegativeErrors bool
	precision           propagation.Precision
}

// calcReport is the --json output.
type calcReport struct {
	Terms  []propagation.Term `json:"terms"`
	Result calcResult         `json:"result"`
}

type calcResult struct {
	Value            float64 `json:"value"`
	Error            float64 `json:"error"`
	Unit             string  `json:"unit"`
	RelativeErrorPct float64 `json:"relative_error_pct"`
	Headline         string  `json:"headline"`
	DetailValue      string  `json:"detail_value"`
	DetailError      string  `json:"detail_error"`
	Relative         string  `json:"relative"`
}

func newCalcCommand() *cobra.Command {
	opts := calcOptions{precision: propagation.DefaultPrecision}

	cmd := &cobra.Command{
		Use:   "calc [options] EXPRESSION...",
		Short: "Aggregate a sum or difference of measurements",
		Long: `Aggregate TERM (OP TERM)* where TERM is VALUE±ERROR[UNIT] ("+-" works too)
and OP is + or -. Values combine with their signs; absolute errors always add.`,
		Example: `  errprop calc "3.2±0.5cm + 120±2cm"
  errprop calc --unit mm 10+-1 - 4+-0.5`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCalc(cmd.OutOrStdout(), strings.Join(args, " "), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.unit, "unit", "", "Unit for terms that do not name one")
	flags.BoolVar(&opts.json, "json", false, "Print the terms and result as JSON")
	flags.BoolVar(&opts.strictUnits, "strict-units", false, "Reject terms whose unit differs from the first term")
	flags.BoolVar(&opts.allowNegativeErrors, "allow-negative-errors", false, "Accept negative absolute errors as typed")
	flags.IntVar(&opts.precision.Headline, "decimals", opts.precision.Headline, "Decimals of the headline result")
	flags.IntVar(&opts.precision.Detail, "detail-decimals", opts.precision.Detail, "Decimals of the value and error breakdown")
	flags.IntVar(&opts.precision.Relative, "relative-decimals", opts.precision.Relative, "Decimals of the relative error")
	return cmd
}

func runCalc(w io.Writer, expr string, opts calcOptions) error {
	inputs, err := propagation.ParseExpression(expr, opts.unit)
	if err != nil {
		return err
	}
	slog.Debug("calc: parsed expression", "expr", expr, "terms", len(inputs))

	seq, err := propagation.NewSequence(inputs[0], propagation.WithPolicy(propagation.Policy{
		StrictUnits:         opts.strictUnits,
		AllowNegativeErrors: opts.allowNegativeErrors,
	}))
	if err != nil {
		return fmt.Errorf("term 1: %w", err)
	}
	for i, in := range inputs[1:] {
		if _, err := seq.Append(in); err != nil {
			return fmt.Errorf("term %d: %w", i+2, err)
		}
	}

	terms := seq.Terms()
	r := seq.Result()
	d := propagation.Detail(r, opts.precision)

	if opts.json {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(calcReport{
			Terms: terms,
			Result: calcResult{
				Value:            r.Value,
				Error:            r.Error,
				Unit:             r.Unit,
				RelativeErrorPct: propagation.RelativeErrorPct(r),
				Headline:         d.Headline,
				DetailValue:      d.Value,
				DetailError:      d.Error,
				Relative:         d.Relative,
			},
		})
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tOP\tTERM")
	for i, t := range terms {
		op := string(t.Operation)
		if i == 0 {
			op = ""
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", strconv.Itoa(i+1), op, propagation.Chip(t))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nResult:         %s\n", d.Headline)
	fmt.Fprintf(w, "Value:          %s\n", d.Value)
	fmt.Fprintf(w, "Absolute error: %s\n", d.Error)
	fmt.Fprintf(w, "Relative error: %s\n", d.Relative)
	_, err = fmt.Fprintf(w, "\n%s\n", formula)
	return err
}
