package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"articulator/internal"
	"articulator/internal/config"
	"articulator/internal/judge"
	"articulator/internal/loader"
	"articulator/internal/logging"
	"articulator/internal/pipeline"
	"articulator/internal/publish"
	"articulator/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel)
	must(err)
	defer func() { _ = logger.Sync() }()

	profile, err := config.LoadProfile(cfg.ProfilePath)
	must(err)

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	switch cmd {
	case "run":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		input := fs.String("input", "", "saved agreement page")
		inType := fs.String("type", "", "html|mhtml|pdf|text (default: from extension)")
		source := fs.String("source", "", "source institution code")
		dest := fs.String("dest", "", "destination institution code")
		output := fs.String("output", "", "output csv path")
		xlsx := fs.String("xlsx", "", "optional review workbook path")
		semantic := fs.Bool("semantic", cfg.SemanticEnabled, "run the semantic check")
		_ = fs.Parse(os.Args[2:])
		if *input == "" || *output == "" {
			must(fmt.Errorf("--input --output are required"))
		}

		kind, err := loader.ParseKind(*inType, *input)
		must(err)
		doc, err := loader.LoadFile(*input, kind)
		must(err)
		runDocument(ctx, db, cfg, profile, logger, doc, *source, *dest, *output, *xlsx, *semantic)
	case "fetch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		url := fs.String("url", "", "agreement page url")
		source := fs.String("source", "", "source institution code")
		dest := fs.String("dest", "", "destination institution code")
		output := fs.String("output", "", "output csv path")
		xlsx := fs.String("xlsx", "", "optional review workbook path")
		semantic := fs.Bool("semantic", cfg.SemanticEnabled, "run the semantic check")
		_ = fs.Parse(os.Args[2:])
		if *url == "" || *output == "" {
			must(fmt.Errorf("--url --output are required"))
		}

		browser := loader.NewBrowser(loader.BrowserOptionsFromConfig(cfg), logger)
		doc, err := browser.Load(ctx, *url)
		_ = browser.Close()
		must(err)
		runDocument(ctx, db, cfg, profile, logger, doc, *source, *dest, *output, *xlsx, *semantic)
	case "detect":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		input := fs.String("input", "", "saved page")
		inType := fs.String("type", "", "html|mhtml|pdf|text")
		_ = fs.Parse(os.Args[2:])
		if *input == "" {
			must(fmt.Errorf("--input is required"))
		}
		kind, err := loader.ParseKind(*inType, *input)
		must(err)
		raw, err := loader.LoadFile(*input, kind)
		must(err)
		doc, err := pipeline.NewDocument(raw)
		must(err)
		res := pipeline.DetectArticulationPage(doc)
		fmt.Printf("articulation=%t score=%.2f reason=%s\n", res.IsArticulation, res.Score, res.Reason)
	case "export:csv":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		runID := fs.Int("runId", 0, "run id")
		out := fs.String("out", "", "output csv path")
		_ = fs.Parse(os.Args[2:])
		if *runID == 0 || strings.TrimSpace(*out) == "" {
			must(fmt.Errorf("--runId and --out are required"))
		}
		batch, _ := loadBatch(db, *runID)
		must(pipeline.WriteCSVFile(batch, *out))
		fmt.Printf("exported %d entries to %s\n", len(batch.Entries), *out)
	case "export:xlsx":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		runID := fs.Int("runId", 0, "run id")
		out := fs.String("out", "", "output xlsx path")
		_ = fs.Parse(os.Args[2:])
		if *runID == 0 || strings.TrimSpace(*out) == "" {
			must(fmt.Errorf("--runId and --out are required"))
		}
		batch, rejected := loadBatch(db, *runID)
		must(pipeline.ExportBatchToXLSX(batch, rejected, *out))
		fmt.Printf("exported %d entries (%d rejected) to %s\n", len(batch.Entries), len(rejected), *out)
	case "publish":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		runID := fs.Int("runId", 0, "run id")
		_ = fs.Parse(os.Args[2:])
		if *runID == 0 {
			must(fmt.Errorf("--runId is required"))
		}
		svc := publish.NewService(db, cfg, logger)
		res, err := svc.PublishRun(ctx, *runID)
		must(err)
		fmt.Printf("published run=%d batch=%s imported=%d skipped=%d\n", *runID, res.BatchID, res.Imported, res.Skipped)
	case "runs:list":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		limit := fs.Int("limit", 20, "max runs")
		_ = fs.Parse(os.Args[2:])
		runs, err := db.ListRuns(*limit)
		must(err)
		for _, r := range runs {
			fmt.Printf("%d\t%s\t%s->%s\t%s\t%s\t%s\n", r.ID, r.CreatedAt, r.SourceInstitution, r.DestInstitution, r.Status, r.InputRef, r.CountsJSON)
		}
	default:
		usage()
		os.Exit(1)
	}
}

func runDocument(ctx context.Context, db *storage.DB, cfg config.Config, profile *config.Profile, logger *zap.Logger, doc internal.RawDocument, source, dest, output, xlsx string, semantic bool) {
	var j pipeline.Judge
	if semantic {
		g, err := judge.New(ctx, cfg, logger)
		must(err)
		j = g
	}

	svc := pipeline.NewService(db, cfg, profile, j, logger)
	res, err := svc.Run(ctx, pipeline.RunRequest{
		Document:          doc,
		SourceInstitution: source,
		DestInstitution:   dest,
		InputRef:          doc.URL,
		Semantic:          semantic,
	})
	must(err)

	must(pipeline.WriteCSVFile(res.Batch, output))
	if xlsx != "" {
		must(pipeline.ExportBatchToXLSX(res.Batch, res.Rejected, xlsx))
	}

	summary, _ := json.MarshalIndent(res.Summary, "", "  ")
	fmt.Printf("run done id=%d trace=%s output=%s\n%s\n", res.RunID, res.TraceID, output, summary)
}

func loadBatch(db *storage.DB, runID int) (internal.ArticulationBatch, []internal.Rejection) {
	run, err := db.MustRun(runID)
	must(err)
	entries, err := db.ListEntries(runID)
	must(err)
	rejected, err := db.ListRejections(runID)
	must(err)
	return internal.ArticulationBatch{
		SourceInstitution: run.SourceInstitution,
		DestInstitution:   run.DestInstitution,
		Entries:           entries,
	}, rejected
}

func usage() {
	fmt.Println("usage: articulator <command>")
	fmt.Println("commands:")
	fmt.Println("  run --input=page.html [--type=html|mhtml|pdf|text] [--source=DAC] [--dest=UCB] --output=out.csv [--xlsx=out.xlsx] [--semantic]")
	fmt.Println("  fetch --url=https://... [--source=DAC] [--dest=UCB] --output=out.csv [--xlsx=out.xlsx] [--semantic]")
	fmt.Println("  detect --input=page.html [--type=...]")
	fmt.Println("  export:csv --runId=1 --out=./out/run.csv")
	fmt.Println("  export:xlsx --runId=1 --out=./out/run.xlsx")
	fmt.Println("  publish --runId=1")
	fmt.Println("  runs:list [--limit=20]")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
