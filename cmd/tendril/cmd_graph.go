package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nvandessel/tendril/internal/constants"
	"github.com/nvandessel/tendril/internal/graph"
	"github.com/nvandessel/tendril/internal/program"
	"github.com/nvandessel/tendril/internal/visualization"
)

// formatHTML is only offered by the CLI; servers render HTML at "/".
const formatHTML = "html"

func newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph [program]",
		Short: "Render a program's graph",
		Long: `Build a program, optionally run it, and output the graph as a text table,
JSON, DOT (Graphviz), or a static HTML page.

Examples:
  tendril graph flip --format dot | dot -Kneato -Tsvg > flip.svg
  tendril graph boolean --ticks 4100 --format json
  tendril graph grid --format html -o grid.html`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, _ := cmd.Flags().GetInt64("seed")
			ticks, _ := cmd.Flags().GetInt("ticks")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			p, err := resolveProgram(programArg(args, "flip"), cfg)
			if err != nil {
				return err
			}
			if seed == 0 {
				seed = p.Seed
			}
			snap, err := buildSnapshot(cmd.Context(), p, seed, ticks)
			if err != nil {
				return err
			}
			return writeGraph(cmd, p.Name, snap)
		},
	}

	addGraphFlags(cmd)
	cmd.Flags().Int64("seed", 0, "Random seed (0 uses the program's own seed)")
	cmd.Flags().Int("ticks", 0, "Ticks to run before rendering")
	return cmd
}

func addGraphFlags(cmd *cobra.Command) {
	cmd.Flags().String("format", "text", "Output format: text, json, dot, or html")
	cmd.Flags().StringP("output", "o", "", "Output file path (html format only)")
	cmd.Flags().Bool("no-open", false, "Don't open browser after generating HTML")
}

// buildSnapshot builds p and steps it ticks times.
func buildSnapshot(ctx context.Context, p *program.Program, seed int64, ticks int) (*graph.Snapshot, error) {
	w, err := p.Build(seed)
	if err != nil {
		return nil, err
	}
	if ticks > 0 {
		if _, err := w.Run(ctx, ticks); err != nil {
			return nil, fmt.Errorf("run %s: %w", p.Name, err)
		}
	}
	return w.Snapshot(), nil
}

// writeGraph renders snap in the format chosen by --format, or JSON under
// --json.
func writeGraph(cmd *cobra.Command, name string, snap *graph.Snapshot) error {
	format, _ := cmd.Flags().GetString("format")
	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		format = string(constants.FormatJSON)
	}

	if format == formatHTML {
		output, _ := cmd.Flags().GetString("output")
		noOpen, _ := cmd.Flags().GetBool("no-open")
		return writeStaticHTML(cmd, name, snap, output, noOpen)
	}

	f := constants.Format(format)
	if !f.Valid() {
		return fmt.Errorf("unsupported format %q (use 'text', 'json', 'dot', or 'html')", format)
	}
	data, err := visualization.Render(cmd.Context(), snap, f)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

// writeStaticHTML renders the graph to a self-contained HTML file.
func writeStaticHTML(cmd *cobra.Command, name string, snap *graph.Snapshot, output string, noOpen bool) error {
	htmlBytes, err := visualization.RenderHTML(cmd.Context(), name, snap, 0)
	if err != nil {
		return fmt.Errorf("render HTML: %w", err)
	}

	outPath := output
	if outPath == "" {
		outPath = filepath.Join(os.TempDir(), "tendril-"+name+".html")
	}
	if err := os.WriteFile(outPath, htmlBytes, 0644); err != nil {
		return fmt.Errorf("write HTML file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Graph written to %s\n", outPath)

	if !noOpen {
		if err := visualization.OpenBrowser(outPath); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Could not open browser: %v\nOpen %s manually.\n", err, outPath)
		}
	}
	return nil
}
