package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/helixml/vectable/internal/log"
)

func functionsCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:   "functions",
		Short: "List registered embedding functions",
		Long: `List the embedding functions a server started with the same configuration
would register: the built-in openai, sentence-transformers and hash functions
plus every entry of FUNCTIONS_FILE.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(envFile)
			if err != nil {
				return err
			}
			conn, err := connect(cfg, log.NewLogger(cfg).Slog())
			if err != nil {
				return err
			}
			defer func() { _ = conn.Close() }()

			out := cmd.OutOrStdout()
			for _, name := range conn.EmbeddingRegistry().Names() {
				fmt.Fprintln(out, name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file (default: .env in current directory)")

	return cmd
}
