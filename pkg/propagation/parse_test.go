package propagation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTerm(t *testing.T) {
	in, err := ParseTerm(" 3.2 ", "0.5", " cm ", "")
	require.NoError(t, err)
	assert.Equal(t, Input{Value: 3.2, Error: 0.5, Unit: "cm", Operation: OpAdd}, in)

	in, err = ParseTerm("-4e2", "1.5", "mm", "-")
	require.NoError(t, err)
	assert.Equal(t, Input{Value: -400, Error: 1.5, Unit: "mm", Operation: OpSub}, in)
}

func TestParseTerm_ReportsEveryField(t *testing.T) {
	_, err := ParseTerm("abc", "", "cm", "*")
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrInvalidTerm)
	assert.ErrorIs(t, err, ErrInvalidOperation)
	msg := err.Error()
	assert.Contains(t, msg, `value "abc" is not a number`)
	assert.Contains(t, msg, "error is required")
	assert.NotContains(t, msg, "\n", "single line for the form")
}

func TestParseOperation(t *testing.T) {
	op, err := ParseOperation("")
	require.NoError(t, err)
	assert.Equal(t, OpAdd, op)

	op, err = ParseOperation("-")
	require.NoError(t, err)
	assert.Equal(t, OpSub, op)

	_, err = ParseOperation("/")
	assert.ErrorIs(t, err, ErrInvalidOperation)
}

func TestParseExpression(t *testing.T) {
	tests := []struct {
		expr string
		want []Input
	}{
		{
			expr: "3.2±0.5cm + 120±2cm",
			want: []Input{
				{Value: 3.2, Error: 0.5, Unit: "cm", Operation: OpAdd},
				{Value: 120, Error: 2, Unit: "cm", Operation: OpAdd},
			},
		},
		{
			expr: "10 +- 1 cm - 4 ± 0.5 cm",
			want: []Input{
				{Value: 10, Error: 1, Unit: "cm", Operation: OpAdd},
				{Value: 4, Error: 0.5, Unit: "cm", Operation: OpSub},
			},
		},
		{
			expr: "-3±1 - 2±0.25",
			want: []Input{
				{Value: -3, Error: 1, Unit: "m", Operation: OpAdd},
				{Value: 2, Error: 0.25, Unit: "m", Operation: OpSub},
			},
		},
		{
			expr: "1.5e2±2.5e-1µm",
			want: []Input{
				{Value: 150, Error: 0.25, Unit: "µm", Operation: OpAdd},
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.expr, func(t *testing.T) {
			got, err := ParseExpression(tc.expr, "m")
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseExpression_Errors(t *testing.T) {
	for _, expr := range []string{
		"",
		"3.2",
		"3.2±0.5cm +",
		"3.2±0.5cm 120±2cm",
		"3.2±0.5cm * 1±1",
		"abc±1",
		"1±cm",
	} {
		t.Run(expr, func(t *testing.T) {
			_, err := ParseExpression(expr, "cm")
			require.Error(t, err)
		})
	}
}
