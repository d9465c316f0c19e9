package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/helixml/vectable/infrastructure/provider"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "vectable version %s\n", version)
			fmt.Fprintf(out, "  commit:    %s\n", commit)
			fmt.Fprintf(out, "  built:     %s\n", date)
			fmt.Fprintf(out, "  inference: %s\n", provider.InferenceBackend)
		},
	}
}
