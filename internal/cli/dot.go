package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/pvnkmrksk/magga/pkg/lingraph"
)

// renderDot renders the line graph as a nodelink SVG via graphviz, for
// inspecting the topology the embedder actually works on.
func renderDot(ctx context.Context, g *lingraph.Graph, path string) error {
	dot := buildDOT(g)

	gv, err := graphviz.New(ctx)
	if err != nil {
		return fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	graph, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return fmt.Errorf("parse dot: %w", err)
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, graphviz.SVG, &buf); err != nil {
		return fmt.Errorf("render svg: %w", err)
	}

	return os.WriteFile(path, buf.Bytes(), 0644)
}

// buildDOT serializes the graph in DOT format, one edge per line
// occurrence so parallel lines stay visible, colored with the line colors.
func buildDOT(g *lingraph.Graph) string {
	var b strings.Builder
	b.WriteString("graph lingraph {\n")
	b.WriteString("  node [shape=circle fontsize=10];\n")

	g.Nodes(func(id lingraph.NodeID, nd *lingraph.Node) {
		label := fmt.Sprintf("%d", id)
		if len(nd.Stops) > 0 && nd.Stops[0].Name != "" {
			label = nd.Stops[0].Name
		}
		fmt.Fprintf(&b, "  n%d [label=%q];\n", id, label)
	})

	g.Edges(func(_ lingraph.EdgeID, ed *lingraph.Edge) {
		if len(ed.Lines) == 0 {
			fmt.Fprintf(&b, "  n%d -- n%d;\n", ed.From, ed.To)
			return
		}
		for _, occ := range ed.Lines {
			color := "#888888"
			if meta, ok := g.Line(occ.Line); ok && meta.Color != "" {
				color = meta.Color
				if !strings.HasPrefix(color, "#") {
					color = "#" + color
				}
			}
			fmt.Fprintf(&b, "  n%d -- n%d [color=%q label=%q fontsize=8];\n",
				ed.From, ed.To, color, occ.Line)
		}
	})

	b.WriteString("}\n")
	return b.String()
}
