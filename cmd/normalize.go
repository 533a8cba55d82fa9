package main

import (
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/intel-cli/internal/normalize"
	"github.com/sells-group/intel-cli/internal/provider"
)

var (
	normalizeMerge  bool
	normalizeOutput string
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize <file>",
	Short: "Normalize recorded provider payloads from a JSON or YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("normalize"); err != nil {
			return err
		}
		return runNormalize(cmd.OutOrStdout(), args[0], normalizeMerge, normalizeOutput)
	},
}

func runNormalize(w io.Writer, path string, merge bool, format string) error {
	data, err := provider.ReadDatums(path)
	if err != nil {
		return err
	}

	out := normalize.New().NormalizeResults(data)
	if merge {
		out = normalize.MergeEntityResults(out)
	}
	zap.L().Info("normalized payloads",
		zap.String("path", path),
		zap.Int("datums", len(data)),
		zap.Int("entities", len(out)),
	)
	return writeOutput(w, format, out)
}

func init() {
	normalizeCmd.Flags().BoolVar(&normalizeMerge, "merge", false, "also merge records sharing an entity key")
	normalizeCmd.Flags().StringVarP(&normalizeOutput, "output", "o", "json", "output format: json or yaml")
	rootCmd.AddCommand(normalizeCmd)
}
