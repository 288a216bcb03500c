package commands

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/errprop/errprop/pkg/slides"
)

func newSlidesCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "slides",
		Short: "Print the explanatory slide deck",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			deck, err := slides.Load()
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(deck)
			}
			return deck.WriteText(cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the deck as JSON")
	return cmd
}
