package workflow

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dominikbraun/graph"
	"github.com/dominikbraun/graph/draw"

	"github.com/me/balsamic/internal/filelock"
	"github.com/me/balsamic/pkg/model"
)

// stageEdges lists which stage feeds which. Every rule of the source stage
// precedes every rule of the target stage.
var stageEdges = [][2]Stage{
	{StageAlign, StageQC},
	{StageAlign, StageVarCall},
	{StageVarCall, StageAnnotate},
}

// BuildDAG builds the rule graph of a case or PON build. Vertices are rule
// names; each carries its stage as the "group" attribute.
func BuildDAG(doc *model.ConfigDocument) (graph.Graph[string, string], error) {
	rules, err := docRules(doc)
	if err != nil {
		return nil, err
	}

	g := graph.New(graph.StringHash, graph.Directed(), graph.Acyclic(), graph.PreventCycles())
	for _, s := range Stages {
		for _, r := range rules[s] {
			err := g.AddVertex(RuleName(r),
				graph.VertexAttribute("group", string(s)),
				graph.VertexAttribute("shape", "box"))
			if err != nil && !errors.Is(err, graph.ErrVertexAlreadyExists) {
				return nil, fmt.Errorf("add rule %s: %w", r, err)
			}
		}
	}
	for _, e := range stageEdges {
		for _, from := range rules[e[0]] {
			for _, to := range rules[e[1]] {
				err := g.AddEdge(RuleName(from), RuleName(to))
				if err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists) {
					return nil, fmt.Errorf("link %s -> %s: %w", RuleName(from), RuleName(to), err)
				}
			}
		}
	}
	return g, nil
}

func docRules(doc *model.ConfigDocument) (RuleSet, error) {
	if doc.Analysis.AnalysisType == model.AnalysisTypePON {
		return PONRules(doc.Analysis.PONWorkflow), nil
	}
	return Rules(doc.Analysis.AnalysisType, doc.Analysis.SequencingType)
}

// DOTPath returns the DOT companion of the dag path: same name, .dot
// extension.
func DOTPath(dag string) string {
	return strings.TrimSuffix(dag, filepath.Ext(dag)) + ".dot"
}

// GraphTitle is the label of a case's rule graph.
func GraphTitle(doc *model.ConfigDocument) string {
	return strings.Join([]string{"BALSAMIC", doc.Analysis.BalsamicVersion, doc.Analysis.CaseID}, "_")
}

// WriteDAG renders the rule graph of a case in DOT format next to its dag
// path and returns the written path.
func WriteDAG(doc *model.ConfigDocument) (string, error) {
	g, err := BuildDAG(doc)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := draw.DOT(g, &buf,
		draw.GraphAttribute("label", GraphTitle(doc)),
		draw.GraphAttribute("labelloc", "t")); err != nil {
		return "", fmt.Errorf("render rule graph: %w", err)
	}
	path := DOTPath(doc.Analysis.Dag)
	if err := filelock.AtomicWrite(path, buf.Bytes()); err != nil {
		return "", fmt.Errorf("write rule graph: %w", err)
	}
	return path, nil
}
