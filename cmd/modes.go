package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smazurov/glcapture/internal/render"
)

// CreateModesCmd creates the modes command listing the program modes
// accepted by --usage.
func CreateModesCmd(registry *render.Registry) *cobra.Command {
	return &cobra.Command{
		Use:   "modes",
		Short: "List program modes",
		Args:  cobra.NoArgs,
		Run: func(c *cobra.Command, _ []string) {
			w := c.OutOrStdout()
			for _, m := range registry.All() {
				def := ""
				if m.Name == registry.Default() {
					def = " (default)"
				}
				fmt.Fprintf(w, "%-16s %s%s\n", m.Name, m.Description, def)
			}
		},
	}
}
