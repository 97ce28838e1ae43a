package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/starford/picshelf/internal"
	"github.com/starford/picshelf/internal/annotate"
	"github.com/starford/picshelf/internal/catalog"
	"github.com/starford/picshelf/internal/export"
	"github.com/starford/picshelf/internal/models"
	"github.com/starford/picshelf/internal/sse"
	pkgconfig "github.com/starford/picshelf/pkg/config"
)

// openCatalog loads the config and opens the catalog for a one-shot command.
// Logs go to stderr so stdout stays clean for command output.
func openCatalog(cmd *cli.Command, opts ...catalog.Option) (*internal.Components, *internal.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger := internal.NewLogger(cfg.App.LogLevel, os.Stderr)
	comps, err := internal.NewComponents(cfg, logger, opts...)
	if err != nil {
		return nil, nil, err
	}
	return comps, cfg, nil
}

func queryFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "path", Usage: "Substring of the file path"},
		&cli.StringFlag{Name: "keywords", Usage: "Substring of the keywords"},
		&cli.StringFlag{Name: "used", Usage: "any, true or false"},
		&cli.StringFlag{Name: "date-mode", Usage: "none, before, after or between"},
		&cli.StringFlag{Name: "from", Usage: "Date in YYYY.MM.DD"},
		&cli.StringFlag{Name: "to", Usage: "Date in YYYY.MM.DD"},
		&cli.StringFlag{Name: "combinator", Usage: "AND or OR"},
		&cli.IntFlag{Name: "limit", Usage: "Maximum number of records"},
		&cli.StringFlag{Name: "order-by", Usage: "file_path, ai_keywords, used_date or used"},
		&cli.StringFlag{Name: "direction", Usage: "ASC or DESC"},
	}
}

// specFromFlags overlays the flags that were set on the configured default.
func specFromFlags(cmd *cli.Command, spec models.FilterSpec) models.FilterSpec {
	if cmd.IsSet("path") {
		spec.PathContains = cmd.String("path")
	}
	if cmd.IsSet("keywords") {
		spec.KeywordsContains = cmd.String("keywords")
	}
	if cmd.IsSet("used") {
		spec.Used = models.UsedFilter(strings.ToLower(cmd.String("used")))
	}
	if cmd.IsSet("date-mode") {
		spec.Date.Mode = models.DateMode(strings.ToLower(cmd.String("date-mode")))
	}
	if cmd.IsSet("from") {
		spec.Date.From = cmd.String("from")
	}
	if cmd.IsSet("to") {
		spec.Date.To = cmd.String("to")
	}
	if cmd.IsSet("combinator") {
		spec.Combinator = models.Combinator(strings.ToUpper(cmd.String("combinator")))
	}
	if cmd.IsSet("limit") {
		spec.Limit = int(cmd.Int("limit"))
	}
	if cmd.IsSet("order-by") {
		spec.OrderBy = cmd.String("order-by")
	}
	if cmd.IsSet("direction") {
		spec.Direction = models.Direction(strings.ToUpper(cmd.String("direction")))
	}
	return spec
}

func scanCommand() *cli.Command {
	return &cli.Command{
		Name:      "scan",
		Usage:     "Register new image files from folders",
		ArgsUsage: "[folder...]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			comps, _, err := openCatalog(cmd)
			if err != nil {
				return err
			}
			defer comps.Close()

			folders := cmd.Args().Slice()
			if len(folders) == 0 {
				folders = comps.Service.Folders()
			}
			if len(folders) == 0 {
				return errors.New("no folders given and none configured")
			}
			res := comps.Service.ScanFolders(ctx, folders)
			for _, line := range res.Report {
				fmt.Println(line)
			}
			return nil
		},
	}
}

func queryCommand() *cli.Command {
	return &cli.Command{
		Name:  "query",
		Usage: "Query records with the filter grammar",
		Flags: append(queryFlags(), &cli.StringFlag{
			Name:  "format",
			Usage: "json or csv",
			Value: "json",
		}),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			comps, _, err := openCatalog(cmd)
			if err != nil {
				return err
			}
			defer comps.Close()

			recs, err := comps.Service.Query(ctx, specFromFlags(cmd, comps.Service.DefaultSpec()))
			if err != nil {
				return err
			}
			return writeRecords(os.Stdout, cmd.String("format"), recs)
		},
	}
}

func writeRecords(w io.Writer, format string, recs []models.Record) error {
	switch format {
	case "csv":
		return export.WriteCSV(w, recs)
	case "json":
		if recs == nil {
			recs = []models.Record{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func deleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Permanently remove records (image files are kept)",
		ArgsUsage: "path...",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Confirm the deletion"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			paths := cmd.Args().Slice()
			if len(paths) == 0 {
				return errors.New("no paths given")
			}
			if !cmd.Bool("yes") {
				return fmt.Errorf("refusing to delete %d records without --yes", len(paths))
			}

			comps, _, err := openCatalog(cmd)
			if err != nil {
				return err
			}
			defer comps.Close()

			n, err := comps.Service.Delete(ctx, paths)
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d records.\n", n)
			return nil
		},
	}
}

// progressPrinter prints annotation progress for the annotate command.
type progressPrinter struct {
	w io.Writer
}

func (p progressPrinter) PublishAnnotation(ev annotate.Event) {
	switch ev.Kind {
	case annotate.EventAnnotated:
		fmt.Fprintf(p.w, "Annotated %s: %s\n", ev.Path, ev.Keywords)
	case annotate.EventSkipped:
		fmt.Fprintf(p.w, "Skipped %s: %s\n", ev.Path, ev.Error)
	case annotate.EventFailed:
		fmt.Fprintf(p.w, "Failed %s: %s\n", ev.Path, ev.Error)
	case annotate.EventCancelled:
		fmt.Fprintln(p.w, "Annotation cancelled.")
	}
}

func (progressPrinter) PublishRecords(sse.RecordKind, ...string) {}

func (progressPrinter) PublishBuffer(bool, int) {}

func annotateCommand() *cli.Command {
	return &cli.Command{
		Name:      "annotate",
		Usage:     "Generate keywords for records; without paths the query flags select them",
		ArgsUsage: "[path...]",
		Flags: append(queryFlags(), &cli.BoolFlag{
			Name:  "save",
			Usage: "Save the generated keywords when the run ends",
		}),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			comps, _, err := openCatalog(cmd, catalog.WithPublisher(progressPrinter{w: os.Stdout}))
			if err != nil {
				return err
			}
			defer comps.Close()
			svc := comps.Service

			paths := cmd.Args().Slice()
			if len(paths) == 0 {
				recs, err := svc.Query(ctx, specFromFlags(cmd, svc.DefaultSpec()))
				if err != nil {
					return err
				}
				for _, r := range recs {
					paths = append(paths, r.Path)
				}
			}

			if len(paths) == 0 {
				fmt.Println("Nothing to annotate.")
				return nil
			}

			sum, err := svc.RunAnnotation(ctx, paths)
			if err != nil {
				return err
			}
			fmt.Printf("Annotated %d of %d (skipped %d, failed %d).\n", sum.Annotated, sum.Total, sum.Skipped, sum.Failed)

			if !cmd.Bool("save") {
				if n := len(svc.Pending()); n > 0 {
					fmt.Printf("%d changes not saved; rerun with --save to keep them.\n", n)
				}
				return nil
			}
			// The run context may already be cancelled; saving must still happen.
			res := svc.Save(context.WithoutCancel(ctx))
			fmt.Printf("Saved %d of %d changes.\n", res.Succeeded, res.Attempted)
			if len(res.Failed) > 0 {
				return fmt.Errorf("failed to save %d records", len(res.Failed))
			}
			return nil
		},
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write every record as CSV",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "Output file, - for stdout",
				Value:   "image_catalog.csv",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			comps, _, err := openCatalog(cmd)
			if err != nil {
				return err
			}
			defer comps.Close()

			out := cmd.String("out")
			if out == "-" {
				return comps.Service.Export(ctx, os.Stdout)
			}
			if err := comps.Service.ExportFile(ctx, out); err != nil {
				return err
			}
			fmt.Printf("Exported to %s.\n", out)
			return nil
		},
	}
}

func initConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "init-config",
		Usage: "Write a config file with default values",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Value:   defaultConfigPath,
			},
			&cli.BoolFlag{Name: "force", Usage: "Overwrite an existing file"},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			out := cmd.String("out")
			if _, err := os.Stat(out); err == nil && !cmd.Bool("force") {
				return fmt.Errorf("%s already exists, use --force to overwrite", out)
			}
			if err := pkgconfig.Save(out, internal.NewDefaultConfig()); err != nil {
				return err
			}
			fmt.Printf("Wrote %s.\n", out)
			return nil
		},
	}
}
