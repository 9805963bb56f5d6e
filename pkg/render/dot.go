package render

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	gographviz "github.com/awalterschulze/gographviz"

	"github.com/ravi-parthasarathy/agenttrace/pkg/trace"
)

const (
	graphName     = "trace"
	maxLabelRunes = 40
)

// DOT renders entries as a directed chain, one box per step in order.
func DOT(entries []trace.Entry) (string, error) {
	g := gographviz.NewGraph()
	if err := g.SetName(graphName); err != nil {
		return "", err
	}
	if err := g.SetDir(true); err != nil {
		return "", err
	}
	if err := g.AddAttr(graphName, "rankdir", "TB"); err != nil {
		return "", err
	}

	prev := ""
	for i, e := range entries {
		id := fmt.Sprintf("n%d", i)
		attrs := map[string]string{
			"shape": "box",
			"label": strconv.Quote(nodeLabel(e)),
		}
		if e.IsError {
			attrs["color"] = "red"
		}
		if e.Kind == trace.KindFinalResponse {
			attrs["style"] = "bold"
		}
		if err := g.AddNode(graphName, id, attrs); err != nil {
			return "", fmt.Errorf("dot node %d: %w", i, err)
		}
		if prev != "" {
			if err := g.AddEdge(prev, id, true, nil); err != nil {
				return "", fmt.Errorf("dot edge %d: %w", i, err)
			}
		}
		prev = id
	}
	return g.String(), nil
}

// nodeLabel is the kind followed by the first line of the text, shortened.
func nodeLabel(e trace.Entry) string {
	first, _, _ := strings.Cut(strings.TrimSpace(e.Text), "\n")
	if utf8.RuneCountInString(first) > maxLabelRunes {
		first = string([]rune(first)[:maxLabelRunes-1]) + "…"
	}
	if first == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + "\n" + first
}
