package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-learning/tileboard/pkg/tileboard"
)

const modulePath = "github.com/mesh-learning/tileboard"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the tileboard version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "tileboard v%s\nmodule: %s\n", tileboard.Version, modulePath)
			return nil
		},
	}
}
