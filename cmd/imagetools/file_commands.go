package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"imagemeta/internal/rename"
)

func newCleanCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clean <file-or-folder>...",
		Short: "Replace punctuation and digits in file names with spaces",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, skipped := rename.Expand(args, false)
			warnSkipped(cmd, skipped)

			outcomes := rename.New(rename.WithLogger(ctx.logger(cmd))).Clean(files)
			return reportOutcomes(cmd, outcomes)
		},
	}
}

func newExtractCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "extract <file-or-folder>...",
		Short: "Write file names, one per line, to a text file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, skipped := rename.Expand(args, false)
			warnSkipped(cmd, skipped)

			if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}
			out, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("create output file: %w", err)
			}
			written, err := rename.ExtractNames(files, out)
			if closeErr := out.Close(); err == nil {
				err = closeErr
			}
			if err != nil {
				return fmt.Errorf("write names: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d names to %s\n", written, output)
			if written == 0 {
				return errNothingProcessed
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Text file to write")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func newRenameCommand(ctx *commandContext) *cobra.Command {
	var base string
	var noSuffix bool

	cmd := &cobra.Command{
		Use:   "rename <file-or-folder>...",
		Short: "Rename files (and entries inside zip archives) to a common base name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, skipped := rename.Expand(args, true)
			warnSkipped(cmd, skipped)

			opts := []rename.Option{rename.WithLogger(ctx.logger(cmd))}
			if noSuffix {
				opts = append(opts, rename.WithoutSuffix())
			}
			outcomes, err := rename.New(opts...).Rename(files, base)
			if err != nil {
				return err
			}
			return reportOutcomes(cmd, outcomes)
		},
	}

	cmd.Flags().StringVarP(&base, "base", "b", "", "New base name")
	cmd.Flags().BoolVar(&noSuffix, "no-suffix", false, "Fail on collisions instead of appending _1, _2, ...")
	_ = cmd.MarkFlagRequired("base")
	return cmd
}

func warnSkipped(cmd *cobra.Command, skipped []string) {
	for _, path := range skipped {
		fmt.Fprintf(cmd.ErrOrStderr(), "skipping %s: not found\n", path)
	}
}

// reportOutcomes prints one row per path and fails when nothing succeeded.
func reportOutcomes(cmd *cobra.Command, outcomes []rename.Outcome) error {
	rows := make([][]string, 0, len(outcomes))
	succeeded := 0
	for _, out := range outcomes {
		status := "ok"
		if out.Err != nil {
			status = out.Err.Error()
		} else {
			succeeded++
		}
		entries := ""
		if out.Entries > 0 {
			entries = strconv.Itoa(out.Entries)
		}
		rows = append(rows, []string{filepath.Base(out.From), filepath.Base(out.To), entries, status})
	}
	if len(rows) > 0 {
		fmt.Fprintln(cmd.OutOrStdout(), renderTable(
			[]string{"From", "To", "Entries", "Status"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
		))
	}
	if succeeded == 0 {
		return errNothingProcessed
	}
	return nil
}
