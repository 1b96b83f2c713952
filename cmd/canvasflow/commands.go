package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-graphviz"
	"github.com/google/uuid"

	"github.com/rendis/canvasflow/internal/diagram"
	"github.com/rendis/canvasflow/internal/editor"
	"github.com/rendis/canvasflow/internal/engine"
	"github.com/rendis/canvasflow/internal/export"
	"github.com/rendis/canvasflow/internal/expressions"
	"github.com/rendis/canvasflow/internal/graph"
	"github.com/rendis/canvasflow/internal/logging"
	"github.com/rendis/canvasflow/internal/runtime"
	"github.com/rendis/canvasflow/internal/simulation"
	"github.com/rendis/canvasflow/internal/store"
	"github.com/rendis/canvasflow/internal/streaming"
	"github.com/rendis/canvasflow/internal/validation"
	"github.com/rendis/canvasflow/pkg/mcp"
	"github.com/rendis/canvasflow/pkg/schema"
)

// app carries what every subcommand needs.
type app struct {
	cfg    Config
	logger *slog.Logger
	stdout io.Writer
	stderr io.Writer
}

func (a *app) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

func (a *app) openStore(ctx context.Context) (*store.LibSQLStore, error) {
	s, err := store.NewLibSQLStore(a.cfg.DSN())
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate %s: %w", a.cfg.DBPath, err)
	}
	return s, nil
}

// loadCanvas opens the store and loads one workflow with its graph.
func (a *app) loadCanvas(ctx context.Context, id string) (*store.LibSQLStore, *store.Workflow, *graph.Graph, error) {
	s, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	wf, err := s.GetWorkflow(ctx, id)
	if err != nil {
		_ = s.Close()
		return nil, nil, nil, err
	}
	return s, wf, graph.FromSnapshot(wf.Snapshot), nil
}

func oneArg(fs *flag.FlagSet, what string) (string, error) {
	if fs.NArg() != 1 {
		return "", fmt.Errorf("expected exactly one %s", what)
	}
	return fs.Arg(0), nil
}

func newEngines() (*expressions.Conditions, *expressions.GoJQEngine, error) {
	conditions, err := expressions.NewConditions()
	if err != nil {
		return nil, nil, fmt.Errorf("init expression engines: %w", err)
	}
	return conditions, expressions.NewGoJQEngine(), nil
}

func newValidator() (*validation.GraphValidator, error) {
	v, err := validation.NewGraphValidator()
	if err != nil {
		return nil, fmt.Errorf("init validator: %w", err)
	}
	return v, nil
}

// serve runs the MCP server over stdio until ctx is cancelled.
func (a *app) serve(ctx context.Context, args []string) error {
	fs := a.flags("serve")
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	conditions, jq, err := newEngines()
	if err != nil {
		return err
	}

	srv, err := mcp.NewServer(mcp.ServerDeps{
		Store:           s,
		Logger:          a.logger,
		Conditions:      conditions,
		JQ:              jq,
		SimulationDelay: a.cfg.SimulationDelay(),
	})
	if err != nil {
		return err
	}
	a.logger.Info("serving MCP over stdio", "db", a.cfg.DBPath)
	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// importCanvas stores a snapshot file as a new revision of a workflow.
func (a *app) importCanvas(ctx context.Context, args []string) error {
	fs := a.flags("import")
	id := fs.String("id", "", "workflow id (default: a new UUID)")
	name := fs.String("name", "", "workflow name (default: file name)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := oneArg(fs, "snapshot file")
	if err != nil {
		return err
	}

	var data []byte
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	var snap schema.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	if *id == "" {
		*id = uuid.NewString()
	}
	if *name == "" && path != "-" {
		*name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	ctx = logging.WithWorkflowID(ctx, *id)
	log := logging.LogWith(ctx, a.logger)

	validator, err := newValidator()
	if err != nil {
		return err
	}
	result := validator.Validate(graph.FromSnapshot(snap))
	for _, issue := range result.Errors {
		log.Warn("importing invalid canvas", "code", issue.Code, "path", issue.Path, "message", issue.Message)
	}

	s, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	rec, err := s.Save(ctx, *id, snap)
	if err != nil {
		return err
	}
	if *name != "" {
		if err := s.UpdateWorkflow(ctx, *id, store.WorkflowUpdate{Name: name}); err != nil {
			return err
		}
	}
	fmt.Fprintf(a.stdout, "imported %s version %d (%d nodes, %d edges)\n", rec.WorkflowID, rec.Version, len(snap.Nodes), len(snap.Edges))
	return nil
}

func (a *app) list(ctx context.Context, args []string) error {
	fs := a.flags("list")
	name := fs.String("name", "", "only workflows whose name contains this text")
	limit := fs.Int("limit", 50, "maximum number of workflows")
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	workflows, err := s.ListWorkflows(ctx, store.WorkflowFilter{NameContains: *name, Limit: *limit})
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tVERSION\tNODES\tUPDATED")
	for _, wf := range workflows {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", wf.ID, wf.Name, wf.Version, wf.Nodes, wf.UpdatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func (a *app) order(ctx context.Context, args []string) error {
	fs := a.flags("order")
	mode := fs.String("mode", "export", "tie-breaking: export (canvas order) or simulation (position)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := oneArg(fs, "workflow id")
	if err != nil {
		return err
	}

	opts := engine.ExportOrder()
	switch *mode {
	case "export":
	case "simulation":
		opts = engine.SimulationOrder()
	default:
		return fmt.Errorf("unknown mode %q", *mode)
	}

	s, _, g, err := a.loadCanvas(ctx, id)
	if err != nil {
		return err
	}
	defer s.Close()

	plan := engine.BuildPlan(g, opts)
	for i, nodeID := range plan.Order {
		n, _ := g.Node(nodeID)
		fmt.Fprintf(a.stdout, "%d\t%s\t%s\t%s\n", i+1, nodeID, n.Kind, n.Label)
	}
	if !plan.Complete {
		fmt.Fprintln(a.stderr, "warning: the graph contains a cycle; order is best effort")
	}
	return nil
}

func (a *app) export(ctx context.Context, args []string) error {
	fs := a.flags("export")
	strict := fs.Bool("strict", true, "refuse to export an invalid workflow")
	out := fs.String("o", "", "output file (default: stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := oneArg(fs, "workflow id")
	if err != nil {
		return err
	}

	s, wf, g, err := a.loadCanvas(ctx, id)
	if err != nil {
		return err
	}
	defer s.Close()

	var def *schema.Definition
	if *strict {
		validator, verr := newValidator()
		if verr != nil {
			return verr
		}
		var result *schema.ValidationResult
		def, result, err = export.BuildStrict(wf.Meta(), g, validator)
		if result != nil {
			a.printIssues(result)
		}
	} else {
		def, err = export.Build(wf.Meta(), g)
	}
	if err != nil {
		return err
	}

	data, err := export.Marshal(def)
	if err != nil {
		return err
	}
	return a.writeOutput(*out, append(data, '\n'))
}

func (a *app) printIssues(result *schema.ValidationResult) {
	for _, issue := range result.Errors {
		fmt.Fprintf(a.stderr, "error    %s  %s: %s\n", issue.Code, issue.Path, issue.Message)
	}
	for _, issue := range result.Warnings {
		fmt.Fprintf(a.stderr, "warning  %s  %s: %s\n", issue.Code, issue.Path, issue.Message)
	}
}

func (a *app) simulate(ctx context.Context, args []string) error {
	fs := a.flags("simulate")
	stopOnError := fs.Bool("stop-on-error", false, "stop at the first failing node")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := oneArg(fs, "workflow id")
	if err != nil {
		return err
	}

	s, wf, g, err := a.loadCanvas(ctx, id)
	if err != nil {
		return err
	}
	defer s.Close()

	conditions, jq, err := newEngines()
	if err != nil {
		return err
	}

	hub := streaming.NewMemoryHub()
	defer hub.Close()
	events, unsubscribe, err := hub.Subscribe(ctx, streaming.EventFilter{
		WorkflowID: wf.ID,
		EventTypes: []string{schema.EventNodeSimulated},
	})
	if err != nil {
		return err
	}
	var printed sync.WaitGroup
	printed.Add(1)
	go func() {
		defer printed.Done()
		for ev := range events {
			if res, ok := ev.Payload.(schema.SimulationResult); ok {
				fmt.Fprintf(a.stdout, "%-7s %s: %s\n", resultTag(res.Status), res.NodeID, res.Summary)
			}
		}
	}()

	ed := editor.New(g, editor.Config{WorkflowID: wf.ID, Hub: hub, Logger: a.logger})
	defer ed.Close()
	sim := simulation.New(ed, simulation.Config{
		WorkflowID:  wf.ID,
		Delay:       a.cfg.SimulationDelay(),
		StopOnError: *stopOnError,
		Hub:         hub,
		Logger:      a.logger,
		Results:     s,
		Conditions:  conditions,
		JQ:          jq,
	})

	report, err := sim.Run(ctx)
	unsubscribe()
	printed.Wait()
	if err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "run %s: %d simulated, %d failed", report.RunID, len(report.Results), report.Failed())
	if report.Cancelled {
		fmt.Fprint(a.stdout, " (cancelled)")
	}
	fmt.Fprintln(a.stdout)
	return nil
}

func resultTag(st schema.NodeStatus) string {
	switch st {
	case schema.NodeStatusSuccess:
		return "[OK]"
	case schema.NodeStatusError:
		return "[FAIL]"
	case schema.NodeStatusSkipped:
		return "[SKIP]"
	}
	return "[" + string(st) + "]"
}

func (a *app) diagram(ctx context.Context, args []string) error {
	fs := a.flags("diagram")
	format := fs.String("format", "mermaid", "ascii, mermaid, svg or png")
	out := fs.String("o", "", "output file (default: stdout)")
	withResults := fs.Bool("results", true, "color nodes by their latest simulation result")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := oneArg(fs, "workflow id")
	if err != nil {
		return err
	}

	s, wf, g, err := a.loadCanvas(ctx, id)
	if err != nil {
		return err
	}
	defer s.Close()

	if *withResults {
		results, err := s.ListSimulationResults(ctx, wf.ID, store.ResultFilter{})
		if err != nil {
			return err
		}
		statuses := make(map[string]schema.NodeStatus, len(results))
		for _, r := range results {
			statuses[r.NodeID] = r.Status
		}
		g = g.WithStatuses(statuses)
	}

	model := diagram.Build(wf.Name, g)
	var data []byte
	switch *format {
	case "ascii":
		data = []byte(diagram.RenderASCII(model))
	case "mermaid":
		data = []byte(diagram.RenderMermaid(model))
	case "svg":
		data, err = diagram.RenderImage(ctx, model, graphviz.SVG)
	case "png":
		data, err = diagram.RenderImage(ctx, model, graphviz.PNG)
	default:
		return fmt.Errorf("unknown format %q", *format)
	}
	if err != nil {
		return err
	}
	return a.writeOutput(*out, data)
}

// watch follows one runtime execution and prints node status changes.
func (a *app) watch(ctx context.Context, args []string) error {
	fs := a.flags("watch")
	runtimeURL := fs.String("runtime-url", a.cfg.RuntimeURL, "base URL of the workflow runtime status API")
	interval := fs.Duration("interval", a.cfg.PollInterval(), "poll interval")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return errors.New("expected a workflow id and an execution id")
	}
	if *runtimeURL == "" {
		return errors.New("runtime URL is not configured (set -runtime-url or CANVASFLOW_RUNTIME_URL)")
	}
	id, executionID := fs.Arg(0), fs.Arg(1)

	s, wf, g, err := a.loadCanvas(ctx, id)
	if err != nil {
		return err
	}
	defer s.Close()

	hub := streaming.NewMemoryHub()
	defer hub.Close()
	events, unsubscribe, err := hub.Subscribe(ctx, streaming.EventFilter{
		WorkflowID: wf.ID,
		EventTypes: []string{schema.EventStatusChanged},
	})
	if err != nil {
		return err
	}
	var printed sync.WaitGroup
	printed.Add(1)
	go func() {
		defer printed.Done()
		for ev := range events {
			if payload, ok := ev.Payload.(map[string]any); ok {
				fmt.Fprintf(a.stdout, "%s -> %v\n", ev.NodeID, payload["status"])
			}
		}
	}()

	ed := editor.New(g, editor.Config{WorkflowID: wf.ID, Hub: hub, Logger: a.logger})
	defer ed.Close()

	w := runtime.NewWatcher(runtime.NewHTTPSource(*runtimeURL), ed, runtime.WatcherConfig{
		Interval: *interval,
		Logger:   a.logger,
	})
	final, err := w.Watch(logging.WithWorkflowID(ctx, wf.ID), executionID)
	unsubscribe()
	printed.Wait()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "execution %s %s\n", executionID, final.RuntimeStatus)
	return nil
}

func (a *app) writeOutput(path string, data []byte) error {
	if path == "" {
		_, err := a.stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(a.stderr, "wrote %s\n", path)
	return nil
}
