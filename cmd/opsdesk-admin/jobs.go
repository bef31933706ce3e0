package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/target/opsdesk/internal/domain/model"
)

// installFile is the YAML document accepted by the install command.
type installFile struct {
	Jobs []*model.InstallJobRequest `yaml:"jobs"`
}

type installOptions struct {
	File    string
	DryRun  bool
	Timeout time.Duration
}

func runInstall(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("install", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	opts := installOptions{}
	fs.StringVar(&opts.File, "f", "", "YAML file listing job definitions (required)")
	fs.BoolVar(&opts.DryRun, "dry-run", false, "Validate the file without writing to the database")
	fs.DurationVar(&opts.Timeout, "timeout", defaultCommandTimeout, "Command timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(opts.File) == "" {
		return errors.New("-f is required")
	}

	f, err := os.Open(opts.File)
	if err != nil {
		return fmt.Errorf("open %s: %w", opts.File, err)
	}
	defer f.Close()

	reqs, err := parseInstallFile(f)
	if err != nil {
		return fmt.Errorf("parse %s: %w", opts.File, err)
	}
	if opts.DryRun {
		return writef(cmdCtx.Out, "%d job definition(s) valid\n", len(reqs))
	}

	return withServices(cmdCtx, opts.Timeout, func(ctx context.Context, infra *adminInfra) error {
		defs, installErr := infra.Services.Registry.Install(ctx, reqs)
		if installErr != nil {
			return installErr
		}
		return printJobs(cmdCtx.Out, defs, nil)
	})
}

// parseInstallFile decodes and validates every job in r. Duplicate ids are rejected.
func parseInstallFile(r io.Reader) ([]*model.InstallJobRequest, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc installFile
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("file is empty")
		}
		return nil, err
	}
	if len(doc.Jobs) == 0 {
		return nil, errors.New("no jobs defined")
	}

	seen := make(map[int64]bool, len(doc.Jobs))
	for i, req := range doc.Jobs {
		if req == nil {
			return nil, fmt.Errorf("jobs[%d] is empty", i)
		}
		if err := req.Validate(); err != nil {
			return nil, fmt.Errorf("jobs[%d]: %w", i, err)
		}
		if seen[req.ID] {
			return nil, fmt.Errorf("jobs[%d]: duplicate job id %d", i, req.ID)
		}
		seen[req.ID] = true
	}
	return doc.Jobs, nil
}

func runListJobs(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("list-jobs", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	activeOnly := fs.Bool("active", false, "Only list active jobs")
	timeout := fs.Duration("timeout", defaultCommandTimeout, "Command timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withServices(cmdCtx, *timeout, func(ctx context.Context, infra *adminInfra) error {
		var (
			defs []*model.JobDefinition
			err  error
		)
		if *activeOnly {
			defs, err = infra.Services.Registry.ListActive(ctx, false)
		} else {
			defs, err = infra.Services.Registry.List(ctx)
		}
		if err != nil {
			return err
		}

		last := make(map[int64]*model.JobRun, len(defs))
		for _, def := range defs {
			run, runErr := infra.Services.Ledger.LastCompleted(ctx, def.ID)
			if runErr != nil {
				return runErr
			}
			if run != nil {
				last[def.ID] = run
			}
		}
		return printJobs(cmdCtx.Out, defs, last)
	})
}

func printJobs(w io.Writer, defs []*model.JobDefinition, last map[int64]*model.JobRun) error {
	if len(defs) == 0 {
		return writeln(w, "No job definitions found.")
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writef(tw, "ID\tNAME\tACTIVE\tSCHEDULABLE\tNOTIFY\tLAST COMPLETED\n"); err != nil {
		return err
	}
	for _, def := range defs {
		lastCompleted := "-"
		if run, ok := last[def.ID]; ok && run != nil {
			lastCompleted = run.CreatedAt.UTC().Format(time.RFC3339)
		}
		notify := "-"
		if def.NotifyOnCompletion {
			notify = strings.Join(def.NotifyRecipients, ",")
		}
		if err := writef(tw, "%d\t%s\t%t\t%t\t%s\t%s\n",
			def.ID, def.Name, def.Active, def.Schedulable, notify, lastCompleted); err != nil {
			return err
		}
	}
	return tw.Flush()
}

type jobIDOptions struct {
	ID      int64
	Timeout time.Duration
}

func parseJobID(name string, args []string, defaultTimeout time.Duration) (jobIDOptions, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	opts := jobIDOptions{}
	fs.Int64Var(&opts.ID, "id", 0, "Job definition id (required)")
	fs.DurationVar(&opts.Timeout, "timeout", defaultTimeout, "Command timeout")
	if err := fs.Parse(args); err != nil {
		return jobIDOptions{}, err
	}
	if opts.ID <= 0 {
		return jobIDOptions{}, errors.New("-id must be a positive job id")
	}
	if opts.Timeout <= 0 {
		return jobIDOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

func runActivate(cmdCtx *commandContext, args []string) error {
	return setJobActive(cmdCtx, "activate", args, true)
}

func runDeactivate(cmdCtx *commandContext, args []string) error {
	return setJobActive(cmdCtx, "deactivate", args, false)
}

func setJobActive(cmdCtx *commandContext, name string, args []string, active bool) error {
	opts, err := parseJobID(name, args, defaultCommandTimeout)
	if err != nil {
		return err
	}
	return withServices(cmdCtx, opts.Timeout, func(ctx context.Context, infra *adminInfra) error {
		var setErr error
		if active {
			setErr = infra.Services.Registry.Activate(ctx, opts.ID)
		} else {
			setErr = infra.Services.Registry.Deactivate(ctx, opts.ID)
		}
		if setErr != nil {
			return setErr
		}
		return writef(cmdCtx.Out, "job %d active=%t\n", opts.ID, active)
	})
}

func runListRuns(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("list-runs", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	id := fs.Int64("id", 0, "Job definition id (required)")
	limit := fs.Int("limit", 20, "Maximum number of runs to show")
	timeout := fs.Duration("timeout", defaultCommandTimeout, "Command timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id <= 0 {
		return errors.New("-id must be a positive job id")
	}

	return withServices(cmdCtx, *timeout, func(ctx context.Context, infra *adminInfra) error {
		runs, err := infra.Services.Ledger.History(ctx, *id, *limit)
		if err != nil {
			return err
		}
		return printRuns(cmdCtx.Out, runs)
	})
}

func printRuns(w io.Writer, runs []*model.JobRun) error {
	if len(runs) == 0 {
		return writeln(w, "No runs recorded.")
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writef(tw, "RUN\tSTATE\tCREATED\tFINISHED\tPAYLOAD\n"); err != nil {
		return err
	}
	for _, run := range runs {
		finished := "-"
		if run.FinishedAt != nil {
			finished = run.FinishedAt.UTC().Format(time.RFC3339)
		}
		payload := "-"
		if run.ResultPayload != nil {
			payload = abbreviate(*run.ResultPayload, 60)
		}
		if err := writef(tw, "%d\t%s\t%s\t%s\t%s\n",
			run.ID, run.State(), run.CreatedAt.UTC().Format(time.RFC3339), finished, payload); err != nil {
			return err
		}
	}
	return tw.Flush()
}

type runOptions struct {
	JSON    bool
	Timeout time.Duration
}

func addRunFlags(fs *flag.FlagSet, opts *runOptions) {
	fs.BoolVar(&opts.JSON, "json", false, "Print the batch report as JSON")
	fs.DurationVar(&opts.Timeout, "timeout", defaultRunTimeout, "Maximum duration for the batch")
}

func runJob(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("run-job", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var opts runOptions
	addRunFlags(fs, &opts)
	id := fs.Int64("id", 0, "Job definition id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id <= 0 {
		return errors.New("-id must be a positive job id")
	}

	return withServices(cmdCtx, opts.Timeout, func(ctx context.Context, infra *adminInfra) error {
		report, err := infra.Services.Batch.RunJob(ctx, *id)
		if err != nil {
			return err
		}
		return printReport(cmdCtx.Out, report, opts.JSON)
	})
}

func runAll(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("run-all", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var opts runOptions
	addRunFlags(fs, &opts)
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withServices(cmdCtx, opts.Timeout, func(ctx context.Context, infra *adminInfra) error {
		report, err := infra.Services.Batch.RunAllJobs(ctx)
		if err != nil {
			return err
		}
		return printReport(cmdCtx.Out, report, opts.JSON)
	})
}

func printReport(w io.Writer, report *model.BatchReport, asJSON bool) error {
	if report == nil {
		return writeln(w, "No report produced.")
	}
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	if err := writef(w, "Batch %s (%s): %d item(s), %d failed, took %s\n",
		report.BatchID, report.Selector, report.Items, report.Failed,
		report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond)); err != nil {
		return err
	}
	if len(report.Jobs) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writef(tw, "JOB\tRUN\tSTATUS\tDETAIL\n"); err != nil {
		return err
	}
	for _, out := range report.Jobs {
		status := "completed"
		detail := abbreviate(string(out.Payload), 60)
		if !out.Completed {
			status = "failed"
			detail = abbreviate(out.Error, 60)
		}
		if detail == "" {
			detail = "-"
		}
		if err := writef(tw, "%d\t%d\t%s\t%s\n", out.JobID, out.RunID, status, detail); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func abbreviate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
