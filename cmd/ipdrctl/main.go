package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"ipdr-backend/internal/client"
	"ipdr-backend/internal/core/utils"
	"ipdr-backend/pkg/api"

	"github.com/schollz/progressbar/v3"
)

const usage = `usage: ipdrctl [-server url] <command> [args]

commands:
  upload [-parallel n] <file>...   upload files for prediction
  list                             list stored uploads
  delete <file>...                 delete stored uploads
  summary                          print prediction counts by label
  export [-format f] [-o path]     write a csv, xlsx or pdf report
`

func upload(ctx context.Context, c *client.Client, args []string) error {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	parallel := fs.Int("parallel", 2, "number of concurrent uploads")
	if err := fs.Parse(args); err != nil {
		return err
	}

	paths := fs.Args()
	if len(paths) == 0 {
		return fmt.Errorf("upload requires at least one file")
	}

	bar := progressbar.NewOptions(len(paths),
		progressbar.OptionSetDescription("uploading"),
		progressbar.OptionSetWidth(30),
		progressbar.OptionClearOnFinish(),
	)

	uploadFile := func(path string) (api.PredictFileResponse, error) {
		return c.Upload(ctx, path)
	}

	results := make([]utils.CompletedTask[api.PredictFileResponse], len(paths))
	for task := range utils.RunInPool(paths, *parallel, uploadFile) {
		results[task.Index] = task
		_ = bar.Add(1)
	}

	failed := 0
	for i, res := range results {
		if res.Error != nil {
			failed++
			log.Printf("%s: %v", paths[i], res.Error)
			continue
		}
		log.Printf("%s: stored as %s with %d predictions", paths[i], res.Result.File, res.Result.N)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", failed, len(paths))
	}
	return nil
}

func export(ctx context.Context, c *client.Client, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	format := fs.String("format", "csv", "report format: csv, xlsx or pdf")
	output := fs.String("o", "", "output path (default report.<format>)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := *output
	if path == "" {
		path = "report." + *format
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating output file: %w", err)
	}
	defer file.Close()

	if err := c.Export(ctx, *format, file); err != nil {
		_ = os.Remove(path)
		return err
	}

	abs, _ := filepath.Abs(path)
	log.Printf("report written to %s", abs)
	return nil
}

func run(ctx context.Context, c *client.Client, command string, args []string) error {
	switch command {
	case "upload":
		return upload(ctx, c, args)

	case "list":
		files, err := c.List(ctx)
		if err != nil {
			return err
		}
		for _, f := range files {
			fmt.Println(f)
		}
		return nil

	case "delete":
		if len(args) == 0 {
			return fmt.Errorf("delete requires at least one file")
		}
		for _, f := range args {
			res, err := c.Delete(ctx, f)
			if err != nil {
				return fmt.Errorf("%s: %w", f, err)
			}
			fmt.Println(res.Message)
		}
		return nil

	case "summary":
		summary, err := c.Summary(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("total predictions: %d\n", summary.TotalPredictions)
		for label, count := range summary.ByLabel {
			fmt.Printf("  %s: %d\n", label, count)
		}
		return nil

	case "export":
		return export(ctx, c, args)

	default:
		return fmt.Errorf("unknown command '%s'", command)
	}
}

func main() {
	log.SetFlags(0)

	server := flag.String("server", envOr("IPDR_SERVER", "http://localhost:8000"), "backend base url")
	timeout := flag.Duration("timeout", 10*time.Minute, "overall timeout for the command")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, client.New(*server), flag.Arg(0), flag.Args()[1:]); err != nil {
		log.Fatalf("error: %v", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
