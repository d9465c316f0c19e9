package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/helixml/vectable/infrastructure/provider"
)

const downloadAttempts = 4

func modelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Manage local sentence-transformers models",
	}

	var (
		envFile string
		dest    string
	)
	download := &cobra.Command{
		Use:   "download [repo]",
		Short: "Download a Hugging Face model for the sentence-transformers function",
		Long: `Download a Hugging Face model with its ONNX export into the model directory.

The default repository is ` + provider.DefaultSentenceTransformersModel + `. Pass
--dest infrastructure/provider/models before building with -tags embed_model
to compile the model into the binary.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo := provider.DefaultSentenceTransformersModel
			if len(args) == 1 {
				repo = args[0]
			}
			if dest == "" {
				cfg, err := loadConfig(envFile)
				if err != nil {
					return err
				}
				dest = cfg.ModelDir()
			}
			return downloadModel(cmd, repo, dest)
		},
	}
	download.Flags().StringVar(&envFile, "env-file", "", "Path to .env file (default: .env in current directory)")
	download.Flags().StringVar(&dest, "dest", "", "Target directory (default: MODEL_DIR)")
	cmd.AddCommand(download)

	return cmd
}

func downloadModel(cmd *cobra.Command, repo, dest string) error {
	out := cmd.OutOrStdout()

	existing := filepath.Join(dest, strings.ReplaceAll(repo, "/", "_"))
	if _, err := os.Stat(filepath.Join(existing, "tokenizer.json")); err == nil {
		fmt.Fprintf(out, "Model already present at %s\n", existing)
		return nil
	}

	fmt.Fprintf(out, "Downloading %s to %s...\n", repo, dest)

	var (
		path string
		err  error
	)
	delay := 2 * time.Second
	for i := range downloadAttempts {
		if i > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "retry in %s: %v\n", delay, err)
			select {
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		if path, err = provider.DownloadModel(repo, dest); err == nil {
			break
		}
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Model ready at %s\n", path)
	return nil
}
