package slides

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	d, err := Load()
	require.NoError(t, err)

	require.NotEmpty(t, d.Title)
	keys := make([]string, 0, len(d.Slides))
	for _, s := range d.Slides {
		keys = append(keys, s.Key)
	}
	assert.Equal(t, []string{"intro", "sum-difference", "partial-derivatives", "total-error", "conclusion", "example"}, keys)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte("slides: [ {title: x} ]"))
	assert.ErrorContains(t, err, "key and title are required")

	_, err = Parse([]byte("slides:\n  - {key: a, title: A}\n  - {key: a, title: B}\n"))
	assert.ErrorContains(t, err, "duplicate key")

	_, err = Parse([]byte("slides: ["))
	assert.ErrorContains(t, err, "parse yaml")
}

func TestWriteText(t *testing.T) {
	d, err := Load()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, d.WriteText(&buf))

	out := buf.String()
	assert.Contains(t, out, "Δf = Δx₁ + Δx₂")
	assert.Contains(t, out, "[123.2 cm ± 2.5 cm]")
	assert.Contains(t, out, "Conclusion\n----------\n")
}

func TestFind(t *testing.T) {
	d, err := Load()
	require.NoError(t, err)

	s, ok := d.Find("example")
	require.True(t, ok)
	assert.Equal(t, "Worked example", s.Title)

	_, ok = d.Find("missing")
	assert.False(t, ok)
}
