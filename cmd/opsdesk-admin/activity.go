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

type entityFileEntry struct {
	Type string `yaml:"type"`
	Name string `yaml:"name"`
}

type entityFile struct {
	Entities []entityFileEntry `yaml:"entities"`
}

type entityScanOptions struct {
	File    string
	JSON    bool
	Timeout time.Duration
}

func runEntityScan(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("entity-scan", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	opts := entityScanOptions{}
	fs.StringVar(&opts.File, "f", "", "YAML file listing entities; the catalog is used when omitted")
	fs.BoolVar(&opts.JSON, "json", false, "Print the batch report as JSON")
	fs.DurationVar(&opts.Timeout, "timeout", defaultRunTimeout, "Maximum duration for the scan")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var entities []model.EntityKey
	if opts.File != "" {
		f, err := os.Open(opts.File)
		if err != nil {
			return fmt.Errorf("open %s: %w", opts.File, err)
		}
		entities, err = parseEntityFile(f)
		_ = f.Close()
		if err != nil {
			return fmt.Errorf("parse %s: %w", opts.File, err)
		}
	}

	return withServices(cmdCtx, opts.Timeout, func(ctx context.Context, infra *adminInfra) error {
		report, err := infra.Services.Batch.RunEntityScan(ctx, entities)
		if err != nil {
			return err
		}
		if opts.JSON {
			return printReport(cmdCtx.Out, report, true)
		}
		if printErr := printReport(cmdCtx.Out, report, false); printErr != nil {
			return printErr
		}
		return printSnapshot(cmdCtx.Out, report.Activity)
	})
}

// parseEntityFile reads entity keys from r. Unknown types are kept and reported per item by the scan.
func parseEntityFile(r io.Reader) ([]model.EntityKey, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc entityFile
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("file is empty")
		}
		return nil, err
	}
	if len(doc.Entities) == 0 {
		return nil, errors.New("no entities defined")
	}
	if len(doc.Entities) > model.MaxTriggerEntities {
		return nil, fmt.Errorf("entities exceeds maximum of %d", model.MaxTriggerEntities)
	}

	out := make([]model.EntityKey, 0, len(doc.Entities))
	for i, e := range doc.Entities {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			return nil, fmt.Errorf("entities[%d].name is required", i)
		}
		out = append(out, model.EntityKey{
			Type: model.EntityType(strings.ToLower(strings.TrimSpace(e.Type))),
			Name: name,
		})
	}
	return out, nil
}

func runShowActivity(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("show-activity", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	asJSON := fs.Bool("json", false, "Print the snapshot as JSON")
	timeout := fs.Duration("timeout", defaultCommandTimeout, "Command timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withServices(cmdCtx, *timeout, func(ctx context.Context, infra *adminInfra) error {
		snap, err := infra.Services.Batch.LatestActivity(ctx)
		if err != nil {
			if errors.Is(err, model.ErrSnapshotNotFound) {
				return writeln(cmdCtx.Out, "No entity scan has completed yet.")
			}
			return err
		}
		if *asJSON {
			enc := json.NewEncoder(cmdCtx.Out)
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		}
		return printSnapshot(cmdCtx.Out, snap)
	})
}

func printSnapshot(w io.Writer, snap *model.ActivitySnapshot) error {
	if snap == nil {
		return writeln(w, "No activity snapshot.")
	}
	if err := writef(w, "Snapshot finished %s: %d entit(ies), %d failed lookup(s)\n",
		snap.FinishedAt.UTC().Format(time.RFC3339), len(snap.Entries), snap.Failed); err != nil {
		return err
	}
	if len(snap.Entries) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writef(tw, "TYPE\tNAME\tLAST ACTIVITY\n"); err != nil {
		return err
	}
	for _, e := range snap.Entries {
		last := e.LastActivity
		if last == "" {
			last = "never"
		}
		if err := writef(tw, "%s\t%s\t%s\n", e.Key.Type, e.Key.Name, last); err != nil {
			return err
		}
	}
	return tw.Flush()
}
