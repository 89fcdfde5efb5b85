package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cognicore/reasongraph/pkg/reasongraph/config"
	"github.com/cognicore/reasongraph/pkg/reasongraph/contradiction"
	"github.com/cognicore/reasongraph/pkg/reasongraph/graph"
	"github.com/cognicore/reasongraph/pkg/reasongraph/inference"
	"github.com/cognicore/reasongraph/pkg/reasongraph/reasoning"
)

var errContradictions = errors.New("contradictions found")

func (s *session) writeJSON(v any) error {
	enc := json.NewEncoder(s.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func inferCmd(g *globalFlags) *cobra.Command {
	var (
		save bool
		emit bool
	)
	cmd := &cobra.Command{
		Use:   "infer",
		Short: "Run inference to a fixpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			res, err := s.Infer(cmd.Context())
			if err != nil {
				return err
			}
			if save {
				if err := s.Save(cmd.Context()); err != nil {
					return err
				}
			}
			if s.json {
				return s.writeJSON(res)
			}
			s.printResult(res)
			if emit {
				facts := make([]config.Fact, 0, len(res.Facts))
				for _, f := range res.Facts {
					e := f.Edge
					facts = append(facts, config.Fact{Relation: e.Relation, Subject: s.label(e.Source), Object: s.label(e.Target), Confidence: e.Confidence})
				}
				return config.FormatFacts(s.out, facts)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "Save a snapshot after the run")
	cmd.Flags().BoolVar(&emit, "emit", false, "Print inferred facts in facts-file form")
	return cmd
}

func (s *session) printResult(res inference.Result) {
	fmt.Fprintf(s.out, "status: %s\niterations: %d\ninferred: %d\ncandidates: %d\n",
		res.Status, res.Iterations, len(res.Facts), res.Candidates)
	rulesFired := make([]string, 0, len(res.FireCounts))
	for id := range res.FireCounts {
		rulesFired = append(rulesFired, id)
	}
	slices.Sort(rulesFired)
	for _, id := range rulesFired {
		fmt.Fprintf(s.out, "  %-32s %d\n", id, res.FireCounts[id])
	}
}

func checkCmd(g *globalFlags) *cobra.Command {
	var (
		fail bool
		save bool
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Scan for contradictions and apply the conflict policy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.prepare(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			rep, err := s.Check(cmd.Context())
			if err != nil {
				return err
			}
			resolved, err := s.Resolve(rep)
			if err != nil {
				return err
			}
			if save {
				if err := s.Save(cmd.Context()); err != nil {
					return err
				}
			}

			if s.json {
				if err := s.writeJSON(rep); err != nil {
					return err
				}
			} else {
				s.printReport(rep, resolved)
			}
			if fail && rep.HasContradictions() {
				return errContradictions
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&fail, "fail", false, "Exit non-zero when contradictions are found")
	cmd.Flags().BoolVar(&save, "save", false, "Save a snapshot after resolving")
	return cmd
}

func (s *session) printReport(rep contradiction.Report, resolved int) {
	fmt.Fprintf(s.out, "report %s: %s\n", rep.ID, rep.Summary)
	for _, c := range rep.Contradictions {
		fmt.Fprintf(s.out, "  %-20s %.3f  %s\n", c.Kind, c.Severity, c.Description)
	}
	if resolved > 0 {
		fmt.Fprintf(s.out, "resolved %d conflicts (%s)\n", resolved, s.Policy())
	}
}

func askCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ask SOURCE RELATION TARGET",
		Short: "Ask whether RELATION(SOURCE, TARGET) holds",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.prepare(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			ans, err := s.exists(args)
			if err != nil {
				return err
			}
			if s.json {
				return s.writeJSON(ans)
			}
			if !ans.Found {
				fmt.Fprintln(s.out, "no")
				return nil
			}
			fmt.Fprintf(s.out, "yes (%s, confidence %.4g)\n", ans.Source, ans.Confidence)
			if ans.Path != nil {
				fmt.Fprintln(s.out, s.path(*ans.Path))
			}
			return nil
		},
	}
}

func (s *session) exists(args []string) (reasoning.Answer, error) {
	src, err := s.node(args[0])
	if err != nil {
		return reasoning.Answer{}, err
	}
	rel, err := graph.ParseRelation(args[1])
	if err != nil {
		return reasoning.Answer{}, err
	}
	tgt, err := s.node(args[2])
	if err != nil {
		return reasoning.Answer{}, err
	}
	return s.Exists(src, tgt, rel)
}

func pathCmd(g *globalFlags) *cobra.Command {
	var (
		maxHops   int
		relations []string
		direction string
		weighted  bool
		all       bool
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "path SOURCE TARGET",
		Short: "Find paths between two nodes",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.prepare(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			src, err := s.node(args[0])
			if err != nil {
				return err
			}
			tgt, err := s.node(args[1])
			if err != nil {
				return err
			}
			dir, err := graph.ParseDirection(direction)
			if err != nil {
				return err
			}
			opts := []reasoning.Option{reasoning.WithDirection(dir)}
			if len(relations) > 0 {
				rels := make([]graph.RelationType, 0, len(relations))
				for _, name := range relations {
					rel, err := graph.ParseRelation(name)
					if err != nil {
						return err
					}
					rels = append(rels, rel)
				}
				opts = append(opts, reasoning.WithRelations(rels...))
			}

			var paths []reasoning.Path
			switch {
			case all:
				paths, err = s.FindAllPaths(src, tgt, maxHops, limit, opts...)
			case weighted:
				var p reasoning.Path
				p, err = s.FindWeightedPath(src, tgt, append(opts, reasoning.WithMaxHops(maxHops))...)
				paths = []reasoning.Path{p}
			default:
				var p reasoning.Path
				p, err = s.FindPath(src, tgt, maxHops, opts...)
				paths = []reasoning.Path{p}
			}
			if errors.Is(err, reasoning.ErrNoPath) {
				fmt.Fprintln(s.out, "no path")
				return nil
			}
			if err != nil {
				return err
			}
			if s.json {
				return s.writeJSON(paths)
			}
			for _, p := range paths {
				fmt.Fprintln(s.out, s.path(p))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&maxHops, "max-hops", 6, "Maximum path length")
	cmd.Flags().StringSliceVar(&relations, "relations", nil, "Only follow these relations")
	cmd.Flags().StringVar(&direction, "direction", "out", "Edge direction (out, in, both)")
	cmd.Flags().BoolVar(&weighted, "weighted", false, "Maximise the confidence product instead of minimising hops")
	cmd.Flags().BoolVar(&all, "all", false, "List every simple path")
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum paths listed with --all")
	return cmd
}

func (s *session) path(p reasoning.Path) string {
	var b strings.Builder
	b.WriteString(s.label(p.Nodes[0]))
	for i, e := range p.Edges {
		if e.Source == p.Nodes[i] {
			fmt.Fprintf(&b, " -%s-> ", e.Relation)
		} else {
			fmt.Fprintf(&b, " <-%s- ", e.Relation)
		}
		b.WriteString(s.label(p.Nodes[i+1]))
	}
	fmt.Fprintf(&b, "  (%d hops, confidence %.4g)", p.Hops, p.Confidence)
	return b.String()
}

func closureCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "closure NODE RELATION",
		Short: "List everything NODE reaches over a transitive relation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.prepare(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			id, err := s.node(args[0])
			if err != nil {
				return err
			}
			rel, err := graph.ParseRelation(args[1])
			if err != nil {
				return err
			}
			ans, err := s.Closure(id, rel)
			if err != nil {
				return err
			}
			if s.json {
				return s.writeJSON(ans)
			}
			for _, c := range ans.Closure {
				fmt.Fprintf(s.out, "%-24s depth %-3d confidence %.4g\n", s.label(c.Target), c.Depth, c.Confidence)
			}
			return nil
		},
	}
}

func explainCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "explain SOURCE RELATION TARGET",
		Short: "Explain how RELATION(SOURCE, TARGET) was derived",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.prepare(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			ans, err := s.exists(args)
			if err != nil {
				return err
			}
			if !ans.Found {
				return fmt.Errorf("%s(%s, %s) does not hold", strings.ToUpper(args[1]), args[0], args[2])
			}
			var exp reasoning.Explanation
			if ans.Path != nil {
				exp, err = s.ExplainPath(*ans.Path)
			} else {
				exp, err = s.ExplainFact(ans.Facts[0].ID)
			}
			if err != nil {
				return err
			}
			if s.json {
				return s.writeJSON(exp)
			}
			s.printExplanation(exp)
			return nil
		},
	}
}

func (s *session) printExplanation(exp reasoning.Explanation) {
	for i, step := range exp.Steps {
		fmt.Fprintf(s.out, "%2d. %s  via %s\n", i+1, s.edge(step.Conclusion), step.Rule)
		for _, p := range step.Premises {
			fmt.Fprintf(s.out, "      <- %s\n", s.edge(p))
		}
	}
	fmt.Fprintf(s.out, "confidence %.4g, rules: %s\n", exp.Confidence, strings.Join(exp.Rules, ", "))
	if exp.Incomplete {
		fmt.Fprintln(s.out, "(incomplete: some supporting facts are missing)")
	}
}

func exportCmd(g *globalFlags) *cobra.Command {
	var inferred bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the graph as a facts file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if inferred && !g.noInfer {
				if _, err := s.Infer(cmd.Context()); err != nil {
					return err
				}
			}
			return config.FormatFacts(s.out, s.Facts(inferred))
		},
	}
	cmd.Flags().BoolVar(&inferred, "inferred", false, "Include inferred facts")
	return cmd
}
