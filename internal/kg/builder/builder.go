package builder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/legalrag/backend/internal/domain"
	"github.com/legalrag/backend/internal/kg/neo4j"
	"github.com/legalrag/backend/pkg/logger"
)

// Graph is the subset of the neo4j client the builder writes through.
type Graph interface {
	MergeNode(ctx context.Context, node neo4j.Node) error
	MergeEdge(ctx context.Context, edge neo4j.Edge) error
	DeleteNode(ctx context.Context, label, key string) error
	Neighbours(ctx context.Context, label, key string, limit int) ([]neo4j.Neighbour, error)
}

// Builder turns ruling metadata into citation-graph nodes and edges.
type Builder struct {
	graph Graph
}

func NewBuilder(graph Graph) *Builder {
	return &Builder{graph: graph}
}

// BuildFromRuling writes the ruling node plus one edge per cited precedent,
// applied legislation section and newly set precedent. Edge failures are
// collected so one bad reference does not drop the rest.
func (b *Builder) BuildFromRuling(ctx context.Context, ref domain.SourceReference, meta *domain.RulingMetadata) error {
	logger.Info("Building citation graph from ruling", zap.String("citation", meta.Citation))

	err := b.graph.MergeNode(ctx, neo4j.Node{
		Label: neo4j.LabelRuling,
		Key:   meta.Citation,
		Properties: map[string]any{
			"name":         meta.Name,
			"court":        meta.Court,
			"date":         meta.Date,
			"jurisdiction": meta.Jurisdiction,
			"summary":      meta.Summary,
			"keywords":     meta.Keywords,
			"judges":       meta.Judges,
			"collection":   ref.Collection,
			"source_id":    ref.SourceID,
			"ingested":     true,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to write ruling node: %w", err)
	}

	edges := rulingEdges(meta)

	var errs []error
	for _, edge := range edges {
		if err := b.graph.MergeEdge(ctx, edge); err != nil {
			logger.Warn("Failed to write citation edge",
				zap.String("type", edge.Type),
				zap.String("to", edge.ToKey),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}

	logger.Info("Citation graph built from ruling",
		zap.String("citation", meta.Citation),
		zap.Int("edges", len(edges)-len(errs)),
		zap.Int("failed", len(errs)),
	)

	return errors.Join(errs...)
}

func rulingEdges(meta *domain.RulingMetadata) []neo4j.Edge {
	var edges []neo4j.Edge

	for _, cl := range meta.CaseLaw {
		key := strings.TrimSpace(cl.Citation)
		if key == "" || key == meta.Citation {
			continue
		}
		edges = append(edges, neo4j.Edge{
			FromLabel: neo4j.LabelRuling,
			FromKey:   meta.Citation,
			Type:      neo4j.RelCites,
			ToLabel:   neo4j.LabelRuling,
			ToKey:     key,
			Desc:      cl.Desc,
			Result:    cl.Result,
		})
	}

	for _, l := range meta.Legislation {
		key := strings.TrimSpace(l.Citation)
		if key == "" {
			continue
		}
		edges = append(edges, neo4j.Edge{
			FromLabel: neo4j.LabelRuling,
			FromKey:   meta.Citation,
			Type:      neo4j.RelApplies,
			ToLabel:   neo4j.LabelLegislation,
			ToKey:     key,
			Desc:      l.Desc,
			Result:    l.Result,
		})
	}

	for _, p := range meta.SetPrecedent {
		key := strings.TrimSpace(p.Precedent)
		if key == "" {
			continue
		}
		edges = append(edges, neo4j.Edge{
			FromLabel: neo4j.LabelRuling,
			FromKey:   meta.Citation,
			Type:      neo4j.RelEstablishes,
			ToLabel:   neo4j.LabelPrecedent,
			ToKey:     key,
			Desc:      p.Desc,
		})
	}

	return edges
}

// RemoveRuling drops a ruling node and its edges.
func (b *Builder) RemoveRuling(ctx context.Context, citation string) error {
	return b.graph.DeleteNode(ctx, neo4j.LabelRuling, citation)
}

func (b *Builder) Neighbours(ctx context.Context, citation string) ([]neo4j.Neighbour, error) {
	return b.graph.Neighbours(ctx, neo4j.LabelRuling, citation, 50)
}
