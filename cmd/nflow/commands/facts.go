package commands

import (
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/l3aro/go-nullflow/pkg/ast"
	"github.com/l3aro/go-nullflow/pkg/cfg"
	"github.com/l3aro/go-nullflow/pkg/smartcast"
)

// factsCmd represents the facts command
var factsCmd = &cobra.Command{
	Use:   "facts <file> <function>",
	Short: "Show what is known about every read in a function",
	Long: `Answers the nullability query for every variable and property read in one
function: not-null, null, unknown, or unreachable for reads in dead code.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		unit, err := analyzeUnit(cmd.Context(), conf, args[0], args[1])
		if err != nil {
			return err
		}

		facts := readFacts(unit)
		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			data, err := json.MarshalIndent(facts, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling JSON: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}
		return printFacts(cmd.OutOrStdout(), facts)
	},
}

func init() {
	factsCmd.Flags().BoolP("json", "j", false, "Output as JSON")
}

// readFact is the answer for one read.
type readFact struct {
	At    ast.Pos `json:"at"`
	Expr  string  `json:"expr"`
	Type  string  `json:"type,omitempty"`
	State string  `json:"state"`
}

// readFacts queries every read of unit, in source order.
func readFacts(unit *smartcast.Result) []readFact {
	g := unit.Graph()
	out := make([]readFact, 0, len(g.Reads))
	for e, n := range g.Reads {
		f := readFact{
			At:    g.Nodes[n].At.Start,
			Expr:  cfg.ExprString(e),
			State: unit.Query(e).String(),
		}
		if t := ast.TypeOf(e); t.Known() {
			f.Type = t.String()
		}
		out = append(out, f)
	}
	slices.SortFunc(out, func(a, b readFact) int {
		if c := cmp.Compare(a.At.Offset, b.At.Offset); c != 0 {
			return c
		}
		return cmp.Compare(a.Expr, b.Expr)
	})
	return out
}

func printFacts(w io.Writer, facts []readFact) error {
	rows := make([][4]string, 0, len(facts))
	var widths [3]int
	for _, f := range facts {
		row := [4]string{f.At.String(), f.Expr, f.Type, f.State}
		for i := range widths {
			widths[i] = max(widths[i], runewidth.StringWidth(row[i]))
		}
		rows = append(rows, row)
	}
	for _, row := range rows {
		line := ""
		for i, wd := range widths {
			line += runewidth.FillRight(row[i], wd) + "  "
		}
		if _, err := fmt.Fprintln(w, line+row[3]); err != nil {
			return err
		}
	}
	return nil
}
