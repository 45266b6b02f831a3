// Command bidscore is the CLI driver for the real-time BIDS streaming
// core: it opens an archive rooted at --root and dispatches one of the
// query/mutation/extraction subcommands spec §4.5 names.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/openneuro/rtbids/internal/applog"
	"github.com/openneuro/rtbids/internal/archive"
	"github.com/openneuro/rtbids/internal/bidserrors"
	"github.com/openneuro/rtbids/internal/config"
	"github.com/openneuro/rtbids/internal/entity"
	"github.com/openneuro/rtbids/internal/incremental"
	"github.com/openneuro/rtbids/internal/layout"
	"github.com/openneuro/rtbids/internal/metrics"
	"github.com/openneuro/rtbids/internal/nifti"
	"github.com/openneuro/rtbids/internal/version"
	"github.com/openneuro/rtbids/pkg/pathutil"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	errColor = color.New(color.FgRed, color.Bold)
	okColor  = color.New(color.FgGreen)
	dimColor = color.New(color.FgHiBlack)
)

func loadConfigWithOverrides(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if root := c.String("root"); root != "" {
		cfg.Project.Root = root
	}
	if cfg.Project.Root == "" {
		cfg.Project.Root = "."
	}
	applog.Configure(cfg.Logging.Level, cfg.Logging.JSON)
	return cfg, nil
}

func openArchive(c *cli.Context) (*archive.Archive, *config.Config, error) {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return nil, nil, err
	}
	mc := metrics.New(prometheus.DefaultRegisterer)
	a, err := archive.Open(cfg.Project.Root, cfg, mc)
	if err != nil {
		return nil, nil, err
	}
	return a, cfg, nil
}

// entityFlagsToMap builds an entity.Map from the shared --subject,
// --session, --task, --run, --suffix flags, skipping any left empty.
func entityFlagsToMap(c *cli.Context) entity.Map {
	m := make(entity.Map)
	setString := func(flag, longName string) {
		if v := c.String(flag); v != "" {
			m[longName] = v
		}
	}
	setString("subject", "subject")
	setString("session", "session")
	setString("task", "task")
	setString("suffix", "suffix")
	if v := c.String("run"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			m["run"] = n
		} else {
			m["run"] = v
		}
	}
	return m
}

var entityFlags = []cli.Flag{
	&cli.StringFlag{Name: "subject", Usage: "sub-<value> entity"},
	&cli.StringFlag{Name: "session", Usage: "ses-<value> entity"},
	&cli.StringFlag{Name: "task", Usage: "task-<value> entity"},
	&cli.StringFlag{Name: "run", Usage: "run-<value> entity"},
	&cli.StringFlag{Name: "suffix", Usage: "BIDS suffix, e.g. bold"},
	&cli.BoolFlag{Name: "exact", Usage: "require an exact entity-map match instead of a subset match"},
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "bidscore",
		Usage:   "real-time BIDS streaming archive",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "dataset root directory",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "config file path (.kdl or .toml)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "append",
				Usage:     "append a NIfTI image and sidecar JSON to the archive",
				ArgsUsage: "<image.nii> <metadata.json>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "make-path", Value: true, Usage: "create the archive or a new file path if needed"},
				},
				Action: appendCommand,
			},
			{
				Name:   "get-images",
				Usage:  "list indexed image files matching the given entities",
				Flags:  entityFlags,
				Action: getImagesCommand,
			},
			{
				Name:   "get-events",
				Usage:  "list indexed events TSV files matching the given entities",
				Flags:  entityFlags,
				Action: getEventsCommand,
			},
			{
				Name:   "get-metadata",
				Usage:  "list indexed sidecar JSON files matching the given entities",
				Flags:  entityFlags,
				Action: getMetadataCommand,
			},
			{
				Name:  "get-incremental",
				Usage: "extract a single-frame incremental from the archive",
				Flags: append(append([]cli.Flag{}, entityFlags...),
					&cli.IntFlag{Name: "slice", Usage: "frame index to extract from a multi-frame series"},
				),
				Action: getIncrementalCommand,
			},
			{
				Name:   "get-run",
				Usage:  "extract every on-disk frame matching the given entities as a run",
				Flags:  entityFlags,
				Action: getRunCommand,
			},
			{
				Name:   "stat",
				Usage:  "print distinct subjects, sessions, tasks, and runs in the archive",
				Action: statCommand,
			},
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		errColor.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(bidserrors.ExitCode(err))
	}
}

func appendCommand(c *cli.Context) error {
	if c.NArg() < 2 {
		return bidserrors.Validation("cmd.append", "usage: bidscore append <image.nii> <metadata.json>")
	}
	imagePath := c.Args().Get(0)
	metadataPath := c.Args().Get(1)

	img, err := nifti.Open(imagePath)
	if err != nil {
		return bidserrors.IO("cmd.append", err)
	}

	data, err := os.ReadFile(metadataPath)
	if err != nil {
		return bidserrors.IO("cmd.append", err)
	}
	var md entity.Map
	if err := json.Unmarshal(data, &md); err != nil {
		return bidserrors.IO("cmd.append", err)
	}

	a, cfg, err := openArchive(c)
	if err != nil {
		return err
	}

	dd := entity.Map{"Name": cfg.Dataset.Name, "BIDSVersion": cfg.BIDSVersion}
	inc, err := incremental.New(img, md, dd)
	if err != nil {
		return err
	}
	inc = inc.WithDatasetPolicy(cfg.WriterExtension, cfg.Dataset.Authors)

	created, err := a.AppendIncremental(inc, c.Bool("make-path"))
	if err != nil {
		return err
	}
	if created {
		okColor.Println("created new file")
	} else {
		okColor.Println("extended existing image")
	}
	return nil
}

func getImagesCommand(c *cli.Context) error {
	a, _, err := openArchive(c)
	if err != nil {
		return err
	}
	entries, err := a.GetImages(entityFlagsToMap(c), c.Bool("exact"))
	if err != nil {
		return err
	}
	return printEntries(a, entries)
}

func getEventsCommand(c *cli.Context) error {
	a, _, err := openArchive(c)
	if err != nil {
		return err
	}
	entries, err := a.GetEvents(entityFlagsToMap(c), c.Bool("exact"))
	if err != nil {
		return err
	}
	return printEntries(a, entries)
}

func getMetadataCommand(c *cli.Context) error {
	a, _, err := openArchive(c)
	if err != nil {
		return err
	}
	entries, err := a.GetMetadata(entityFlagsToMap(c), c.Bool("exact"))
	if err != nil {
		return err
	}
	return printEntries(a, entries)
}

// displayPath resolves a path relative to the archive root to one
// relative to the current working directory, so output reads sensibly
// when --root points somewhere other than the directory bidscore was
// invoked from. Falls back to the archive-relative path if the working
// directory can't be determined.
func displayPath(a *archive.Archive, relPath string) string {
	wd, err := os.Getwd()
	if err != nil {
		return relPath
	}
	abs := filepath.Join(a.Root(), relPath)
	return pathutil.ToRelative(abs, wd)
}

func printEntries(a *archive.Archive, entries []layout.Entry) error {
	if len(entries) == 0 {
		dimColor.Println("no matches")
		return nil
	}
	for _, e := range entries {
		fmt.Println(displayPath(a, e.RelPath))
	}
	return nil
}

func getIncrementalCommand(c *cli.Context) error {
	a, _, err := openArchive(c)
	if err != nil {
		return err
	}
	inc, err := a.GetIncremental(c.Int("slice"), entityFlagsToMap(c))
	if err != nil {
		return err
	}
	imagePath, err := inc.ImageFilePath()
	if err != nil {
		return err
	}
	fmt.Printf("%s  dims=%v\n", displayPath(a, imagePath), inc.ImageDimensions())
	return nil
}

func getRunCommand(c *cli.Context) error {
	a, _, err := openArchive(c)
	if err != nil {
		return err
	}
	r, err := a.GetRun(entityFlagsToMap(c))
	if err != nil {
		return err
	}
	fmt.Printf("run with %d incrementals\n", r.Len())
	return nil
}

func statCommand(c *cli.Context) error {
	a, _, err := openArchive(c)
	if err != nil {
		return err
	}
	if a.IsEmpty() {
		dimColor.Println("archive is empty")
		return nil
	}
	subjects, err := a.GetSubjects()
	if err != nil {
		return err
	}
	tasks, err := a.GetTasks()
	if err != nil {
		return err
	}
	sessions, err := a.GetSessions()
	if err != nil {
		return err
	}
	runs, err := a.GetRuns()
	if err != nil {
		return err
	}
	fmt.Printf("subjects: %v\n", subjects)
	fmt.Printf("tasks:    %v\n", tasks)
	fmt.Printf("sessions: %v\n", sessions)
	fmt.Printf("runs:     %v\n", runs)
	return nil
}
