package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cognicore/reasongraph/pkg/reasongraph/config"
	"github.com/cognicore/reasongraph/pkg/reasongraph/graph"
)

const demoFacts = `# taxonomy
is_a(dog, mammal) 0.95
is_a(cat, mammal) 0.95
is_a(mammal, animal) 0.9
is_a(animal, living thing)
instance_of(rex, dog)
has_property(mammal, warm blooded) 0.9
has_property(animal, needs food)

# structure and causality
part_of(wheel, car)
part_of(car, fleet) 0.9
causes(rain, wet ground) 0.8
causes(wet ground, slippery road) 0.7
uses(app, database)
depends_on(database, disk) 0.9

# a deliberate contradiction
opposite_of(hot, cold)
similar_to(hot, cold) 0.4
`

func demoCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Run inference, checks and explanations over a small built-in graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			facts, err := config.ParseFacts(strings.NewReader(demoFacts))
			if err != nil {
				return err
			}
			s, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.AddFacts(facts); err != nil {
				return err
			}

			fmt.Fprintf(s.out, "== %d facts loaded\n", len(facts))
			res, err := s.Infer(cmd.Context())
			if err != nil {
				return err
			}
			s.printResult(res)

			fmt.Fprintln(s.out, "\n== contradictions")
			rep, err := s.Check(cmd.Context())
			if err != nil {
				return err
			}
			s.printReport(rep, 0)

			fmt.Fprintln(s.out, "\n== does rex have warm blood?")
			ans, err := s.exists([]string{"rex", "has_property", "warm blooded"})
			if err != nil {
				return err
			}
			if ans.Found {
				exp, err := s.ExplainFact(ans.Facts[0].ID)
				if err != nil {
					return err
				}
				s.printExplanation(exp)
			}

			fmt.Fprintln(s.out, "\n== everything dog is")
			dog, err := s.node("dog")
			if err != nil {
				return err
			}
			closure, err := s.Closure(dog, graph.IsA)
			if err != nil {
				return err
			}
			for _, c := range closure.Closure {
				fmt.Fprintf(s.out, "  %-16s depth %d confidence %.4g\n", s.label(c.Target), c.Depth, c.Confidence)
			}

			fmt.Fprintln(s.out, "\n== rain to slippery road")
			rain, err := s.node("rain")
			if err != nil {
				return err
			}
			road, err := s.node("slippery road")
			if err != nil {
				return err
			}
			p, err := s.FindWeightedPath(rain, road)
			if err != nil {
				return err
			}
			fmt.Fprintln(s.out, s.path(p))
			return nil
		},
	}
}
