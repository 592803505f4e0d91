package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"imagemeta/internal/batch"
	"imagemeta/internal/config"
	"imagemeta/internal/domain"
	"imagemeta/internal/embed"
	"imagemeta/internal/export"
	"imagemeta/internal/history"
	"imagemeta/internal/jobs"
	"imagemeta/internal/registry"
)

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var embedResults bool
	var exportPath string

	cmd := &cobra.Command{
		Use:   "generate <image-or-folder>...",
		Short: "Generate titles, keywords and descriptions with the configured model",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := ctx.logger(cmd)

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			adapter, closer, err := ctx.openAdapter(runCtx, logger)
			if err != nil {
				return err
			}
			defer closer.Close()

			reg := registry.New(registry.WithLogger(logger))
			if _, err := reg.Add(registry.ExpandPaths(args, true)); err != nil {
				return err
			}
			if reg.Len() == 0 {
				return fmt.Errorf("no decodable images in %v", args)
			}

			return ctx.withHistory(func(store *history.Store) error {
				opts := []batch.Option{
					batch.WithLogger(logger),
					batch.WithLimits(cfg.Generator.Limits),
					batch.WithPollInterval(cfg.Batch.PollInterval()),
					batch.WithModelName(cfg.Generator.Model),
					batch.WithStats(config.NewStatsStore(config.StatsPath())),
				}
				if embedResults {
					opts = append(opts, batch.WithEmbedder(embed.New(embed.WithLogger(logger))))
				}
				if store != nil {
					opts = append(opts, batch.WithResultSink(store))
				}
				sched := batch.New(reg, adapter, opts...)
				sched.Events().Subscribe(func(event jobs.Event) {
					printProgress(cmd, event)
				})

				if _, err := sched.Start(reg.IDs()); err != nil {
					return err
				}
				waitForSession(runCtx, sched)

				records := reg.List()
				printRecords(cmd, records)
				if exportPath != "" {
					if err := writeExport(exportPath, records); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Exported %d records to %s\n", len(records), exportPath)
				}
				if sched.Session().Processed == 0 {
					return errNothingProcessed
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&embedResults, "embed", false, "Write generated metadata into each file as it completes")
	cmd.Flags().StringVarP(&exportPath, "export", "o", "", "Also export results to a .csv or .xlsx file")
	return cmd
}

// waitForSession blocks until the worker exits. An interrupt stops the session
// after the in-flight item.
func waitForSession(ctx context.Context, sched *batch.Scheduler) {
	stopping := false
	for !sched.Wait(200 * time.Millisecond) {
		if !stopping && ctx.Err() != nil {
			stopping = true
			_ = sched.Stop()
		}
	}
}

func printProgress(cmd *cobra.Command, event jobs.Event) {
	switch event.Type {
	case jobs.EventTypeItem:
		if event.Record == nil || !event.Record.Status.Terminal() {
			return
		}
		line := fmt.Sprintf("[%d/%d] %s: %s", event.Processed, event.Total, event.Record.DisplayName, event.Record.Status)
		if event.Record.Reason != "" {
			line += " (" + event.Record.Reason + ")"
		}
		fmt.Fprintln(cmd.ErrOrStderr(), line)
	case jobs.EventTypeError:
		fmt.Fprintf(cmd.ErrOrStderr(), "batch halted: %s\n", event.Message)
	}
}

func printRecords(cmd *cobra.Command, records []domain.FileRecord) {
	rows := make([][]string, 0, len(records))
	for _, record := range records {
		status := string(record.Status)
		if record.Reason != "" {
			status += ": " + record.Reason
		}
		rows = append(rows, []string{record.DisplayName, status, record.Title, record.KeywordString()})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(
		[]string{"File", "Status", "Title", "Keywords"},
		rows,
		nil,
	))
}

func writeExport(path string, records []domain.FileRecord) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return export.Write(file, export.FormatFromPath(path), records)
}

func newEmbedCommand(ctx *commandContext) *cobra.Command {
	var fields domain.Fields
	var keywords string
	var rating int

	cmd := &cobra.Command{
		Use:   "embed <image>...",
		Short: "Write title, keywords, description and other fields into images",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields.Keywords = domain.SplitKeywords(keywords)
			if cmd.Flags().Changed("rating") {
				if rating < 0 || rating > 5 {
					return fmt.Errorf("rating must be between 0 and 5, got %d", rating)
				}
				fields.Rating = &rating
			}
			if fields.Empty() {
				return errors.New("nothing to write; pass at least one field flag")
			}

			embedder := embed.New(embed.WithLogger(ctx.logger(cmd)))
			written := 0
			for _, path := range args {
				if err := embedder.Apply(path, fields); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
					continue
				}
				written++
				fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", path)
			}
			if written == 0 {
				return errNothingProcessed
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&fields.Title, "title", "", "Title")
	flags.StringVar(&fields.Description, "description", "", "Description")
	flags.StringVar(&keywords, "keywords", "", "Comma-separated keywords")
	flags.StringVar(&fields.Artist, "artist", "", "Artist")
	flags.StringVar(&fields.Copyright, "copyright", "", "Copyright notice")
	flags.IntVar(&rating, "rating", 0, "Star rating, 0 to 5")
	return cmd
}

// inspectRow is the JSON shape printed by inspect --json.
type inspectRow struct {
	Path   string        `json:"path"`
	Fields domain.Fields `json:"fields"`
	Error  string        `json:"error,omitempty"`
}

func newInspectCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "inspect <image>...",
		Short: "Show the descriptive metadata stored in images",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			embedder := embed.New(embed.WithLogger(ctx.logger(cmd)))
			results := make([]inspectRow, 0, len(args))
			read := 0
			for _, path := range args {
				row := inspectRow{Path: path}
				fields, err := embedder.Read(path)
				if err != nil {
					row.Error = err.Error()
				} else {
					row.Fields = fields
					read++
				}
				results = append(results, row)
			}

			if asJSON {
				if err := writeJSON(cmd, results); err != nil {
					return err
				}
			} else {
				rows := make([][]string, 0, len(results))
				for _, r := range results {
					if r.Error != "" {
						rows = append(rows, []string{filepath.Base(r.Path), "error: " + r.Error, "", "", "", ""})
						continue
					}
					rating := ""
					if r.Fields.Rating != nil {
						rating = strconv.Itoa(*r.Fields.Rating)
					}
					rows = append(rows, []string{
						filepath.Base(r.Path),
						r.Fields.Title,
						domain.JoinKeywords(r.Fields.Keywords),
						r.Fields.Description,
						r.Fields.Artist,
						rating,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"File", "Title", "Keywords", "Description", "Artist", "Rating"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
				))
			}
			if read == 0 {
				return errNothingProcessed
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}
