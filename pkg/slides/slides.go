// Package slides holds the explanatory slide deck that accompanies the
// calculator. The deck is static content embedded from deck.yaml.
package slides

import (
	_ "embed"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed deck.yaml
var deckYAML []byte

// Deck is an ordered set of slides.
type Deck struct {
	Title  string  `yaml:"title" json:"title"`
	Slides []Slide `yaml:"slides" json:"slides"`
}

// Slide is one card of the deck. Kind is one of intro, slide, note,
// conclusion or example; renderers use it for styling only.
type Slide struct {
	Key    string  `yaml:"key" json:"key"`
	Title  string  `yaml:"title" json:"title"`
	Kind   string  `yaml:"kind" json:"kind"`
	Blocks []Block `yaml:"blocks" json:"blocks"`
}

// Block is either a paragraph of text or a centred formula.
type Block struct {
	Text     string `yaml:"text,omitempty" json:"text,omitempty"`
	Formula  string `yaml:"formula,omitempty" json:"formula,omitempty"`
	Emphasis bool   `yaml:"emphasis,omitempty" json:"emphasis,omitempty"`
}

// Load decodes the embedded deck.
func Load() (*Deck, error) {
	return Parse(deckYAML)
}

// Parse decodes a deck from YAML and checks that every slide has a key and
// a title.
func Parse(data []byte) (*Deck, error) {
	var d Deck
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("slides: parse yaml: %w", err)
	}
	seen := make(map[string]bool, len(d.Slides))
	for i, s := range d.Slides {
		if s.Key == "" || s.Title == "" {
			return nil, fmt.Errorf("slides: slide %d: key and title are required", i)
		}
		if seen[s.Key] {
			return nil, fmt.Errorf("slides: duplicate key %q", s.Key)
		}
		seen[s.Key] = true
	}
	return &d, nil
}

// WriteText renders the deck as plain text for terminals.
func (d *Deck) WriteText(w io.Writer) error {
	var b strings.Builder
	b.WriteString(d.Title + "\n")
	b.WriteString(strings.Repeat("=", len([]rune(d.Title))) + "\n")
	for _, s := range d.Slides {
		b.WriteString("\n" + s.Title + "\n")
		b.WriteString(strings.Repeat("-", len([]rune(s.Title))) + "\n")
		for _, blk := range s.Blocks {
			switch {
			case blk.Formula != "":
				b.WriteString("\n    " + blk.Formula + "\n\n")
			case blk.Text != "":
				b.WriteString(blk.Text + "\n")
			}
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// Find returns the slide with the given key.
func (d *Deck) Find(key string) (Slide, bool) {
	for _, s := range d.Slides {
		if s.Key == key {
			return s, true
		}
	}
	return Slide{}, false
}
