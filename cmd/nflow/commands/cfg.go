package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-nullflow/internal/config"
	"github.com/l3aro/go-nullflow/pkg/extractor"
	"github.com/l3aro/go-nullflow/pkg/smartcast"
)

// cfgCmd represents the cfg command
var cfgCmd = &cobra.Command{
	Use:   "cfg <file> <function>",
	Short: "Print the control flow graph of a function",
	Long: `Prints the control flow graph nflow builds for one function: one node per
line, followed by its outgoing edges and the facts each edge assumes.
With --facts every node also shows what is known on entry to it.

Class initializers are named "<Class>.<init>", top-level initializers
"<top-level>" and methods "<Class>.<name>".`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		unit, err := analyzeUnit(cmd.Context(), cfg, args[0], args[1])
		if err != nil {
			return err
		}

		facts, _ := cmd.Flags().GetBool("facts")
		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			data, err := json.MarshalIndent(graphInfoOf(unit), "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling JSON: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}
		return printGraph(cmd.OutOrStdout(), unit, facts)
	},
}

func init() {
	cfgCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	cfgCmd.Flags().Bool("facts", false, "Annotate nodes with the facts holding on entry")
}

// analyzeUnit parses filePath and analyzes the named unit. A syntax error
// is tolerated as long as the unit was recovered.
func analyzeUnit(ctx context.Context, cfg *config.Config, filePath, name string) (*smartcast.Result, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory, expected a file: %s", filePath)
	}
	if !extractor.NewLanguageRegistry().IsSupported(filePath) {
		return nil, fmt.Errorf("unsupported file type: %s (only .kt and .kts files supported)", filePath)
	}

	file, err := extractor.ExtractFile(filePath)
	var syntaxErr *extractor.SyntaxError
	if err != nil && !errors.As(err, &syntaxErr) {
		return nil, fmt.Errorf("parsing %s: %w", filePath, err)
	}

	res, err := smartcast.AnalyzeFile(ctx, file, smartcast.Options{
		Policy:     cfg.StablePolicy(),
		Assertions: cfg.Assertions(),
		Workers:    cfg.EffectiveWorkers(),
	})
	if err != nil {
		return nil, err
	}

	if unit := res.Unit(name); unit != nil {
		return unit, nil
	}
	var names []string
	for _, u := range res.Units {
		names = append(names, u.Function().Name)
	}
	slices.Sort(names)
	if suggestion := closestName(name, names); suggestion != "" {
		return nil, fmt.Errorf("function %q not found in %s\nDid you mean: %s?", name, filePath, suggestion)
	}
	if syntaxErr != nil {
		return nil, fmt.Errorf("function %q not found in %s: %w", name, filePath, syntaxErr)
	}
	return nil, fmt.Errorf("function %q not found in %s\nAvailable: %s", name, filePath, strings.Join(names, ", "))
}

// closestName returns the candidate that contains name or is contained in
// it, ignoring case.
func closestName(name string, candidates []string) string {
	lower := strings.ToLower(name)
	for _, c := range candidates {
		lc := strings.ToLower(c)
		if strings.Contains(lc, lower) || strings.Contains(lower, lc) {
			return c
		}
	}
	return ""
}

func printGraph(w io.Writer, unit *smartcast.Result, facts bool) error {
	g := unit.Graph()
	sol := unit.Solution()
	fmt.Fprintf(w, "unit %s: %d nodes, %d edges, %d visits\n", unit.Function().Name, len(g.Nodes), len(g.Edges), sol.Visits)

	var annotate func(int) string
	if facts {
		annotate = func(n int) string {
			if !sol.Reachable(n) {
				return "{unreachable}"
			}
			return sol.Describe(n)
		}
	}
	return g.Format(w, annotate)
}

// graphInfo is the JSON form of a solved graph.
type graphInfo struct {
	Unit   string     `json:"unit"`
	Entry  int        `json:"entry"`
	Exit   int        `json:"exit"`
	Visits int        `json:"visits"`
	Nodes  []nodeInfo `json:"nodes"`
}

type nodeInfo struct {
	ID        int        `json:"id"`
	Label     string     `json:"label"`
	Reachable bool       `json:"reachable"`
	Facts     string     `json:"facts,omitempty"`
	Edges     []edgeInfo `json:"edges,omitempty"`
}

type edgeInfo struct {
	To    int    `json:"to"`
	Label string `json:"label"`
}

func graphInfoOf(unit *smartcast.Result) graphInfo {
	g := unit.Graph()
	sol := unit.Solution()
	info := graphInfo{
		Unit:   unit.Function().Name,
		Entry:  g.Entry,
		Exit:   g.Exit,
		Visits: sol.Visits,
		Nodes:  make([]nodeInfo, 0, len(g.Nodes)),
	}
	for i := range g.Nodes {
		n := nodeInfo{ID: i, Label: g.Label(i), Reachable: sol.Reachable(i)}
		if n.Reachable {
			n.Facts = sol.Describe(i)
		}
		for _, ei := range g.Nodes[i].Succs {
			n.Edges = append(n.Edges, edgeInfo{To: g.Edges[ei].To, Label: g.EdgeLabel(ei)})
		}
		info.Nodes = append(info.Nodes, n)
	}
	return info
}
