// Command reasongraph loads a knowledge graph from facts and YAML, runs
// forward-chaining inference and answers questions about the result.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cognicore/reasongraph/pkg/reasongraph"
	"github.com/cognicore/reasongraph/pkg/reasongraph/config"
	"github.com/cognicore/reasongraph/pkg/reasongraph/graph"
)

const version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type globalFlags struct {
	configPath   string
	facts        []string
	logLevel     string
	logFormat    string
	jsonOut      bool
	noInfer      bool
	fromSnapshot bool
}

func rootCmd() *cobra.Command {
	g := &globalFlags{}
	cmd := &cobra.Command{
		Use:   "reasongraph",
		Short: "Knowledge graph reasoner",
		Long: `reasongraph loads typed facts such as is_a(dog, mammal) 0.9, derives
new facts with transitive, inverse, symmetric, inheritance and composition
rules, and answers path, closure and explanation queries.`,
		SilenceUsage: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "Config file path (YAML)")
	pf.StringSliceVarP(&g.facts, "facts", "f", nil, "Facts file(s) to load")
	pf.StringVar(&g.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	pf.StringVar(&g.logFormat, "log-format", "text", "Log format (text, json)")
	pf.BoolVar(&g.jsonOut, "json", false, "Write results as JSON")
	pf.BoolVar(&g.noInfer, "no-infer", false, "Answer from asserted facts only")
	pf.BoolVar(&g.fromSnapshot, "from-snapshot", false, "Start from the saved snapshot instead of an empty graph")

	cmd.AddCommand(
		inferCmd(g),
		checkCmd(g),
		askCmd(g),
		pathCmd(g),
		closureCmd(g),
		explainCmd(g),
		exportCmd(g),
		demoCmd(g),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "reasongraph version %s\n", version)
			},
		},
	)
	return cmd
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn", "":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("unknown log format %q", format)
}

// session is one command invocation's reasoner and output settings.
type session struct {
	*reasongraph.Reasoner
	log  *slog.Logger
	out  io.Writer
	json bool
}

func (g *globalFlags) open(cmd *cobra.Command) (*session, error) {
	ctx := cmd.Context()
	logger, err := newLogger(cmd.ErrOrStderr(), g.logLevel, g.logFormat)
	if err != nil {
		return nil, err
	}

	comp, err := (&config.Loader{ConfigPath: g.configPath, FactsPaths: g.facts}).Load()
	if err != nil {
		return nil, err
	}
	snaps, err := reasongraph.OpenSnapshots(ctx, comp.Config.Store)
	if err != nil {
		return nil, err
	}
	r, err := reasongraph.New(reasongraph.Options{
		Config:    comp.Config,
		Rules:     comp.Rules,
		Snapshots: snaps,
		Logger:    logger,
	})
	if err != nil {
		snaps.Close()
		return nil, err
	}
	s := &session{Reasoner: r, log: logger, out: cmd.OutOrStdout(), json: g.jsonOut}

	if g.fromSnapshot {
		if err := r.Load(ctx); err != nil {
			r.Close()
			return nil, err
		}
	}
	if err := r.AddFacts(comp.Facts); err != nil {
		r.Close()
		return nil, err
	}
	logger.Debug("graph loaded", "nodes", r.Stats().Nodes, "edges", r.Stats().Edges, "rules", r.Rules().Len())
	return s, nil
}

// prepare opens a session and, unless --no-infer is set, runs inference.
func (g *globalFlags) prepare(cmd *cobra.Command) (*session, error) {
	s, err := g.open(cmd)
	if err != nil {
		return nil, err
	}
	if g.noInfer {
		return s, nil
	}
	res, err := s.Infer(cmd.Context())
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("inference: %w", err)
	}
	s.log.Info("inference finished", "status", res.Status.String(), "facts", len(res.Facts))
	return s, nil
}

// node resolves a label, or a numeric id written as "12" or "n12".
func (s *session) node(arg string) (graph.NodeID, error) {
	if n, ok := s.NodeByLabel(arg); ok {
		return n.ID, nil
	}
	if v, err := strconv.ParseInt(strings.TrimPrefix(arg, "n"), 10, 64); err == nil {
		if _, ok := s.Node(graph.NodeID(v)); ok {
			return graph.NodeID(v), nil
		}
	}
	return 0, fmt.Errorf("unknown node %q", arg)
}

func (s *session) label(id graph.NodeID) string {
	if n, ok := s.Node(id); ok && n.Label != "" {
		return n.Label
	}
	return fmt.Sprintf("n%d", id)
}

func (s *session) edge(e graph.Edge) string {
	return fmt.Sprintf("%s(%s, %s) %.4g [%s]", e.Relation, s.label(e.Source), s.label(e.Target), e.Confidence, e.Provenance)
}
