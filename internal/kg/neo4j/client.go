package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/legalrag/backend/pkg/circuitbreaker"
	"github.com/legalrag/backend/pkg/logger"
	"github.com/legalrag/backend/pkg/retry"
)

// Node labels of the citation graph.
const (
	LabelRuling      = "Ruling"
	LabelLegislation = "Legislation"
	LabelPrecedent   = "Precedent"
)

// Relationship types of the citation graph.
const (
	RelCites       = "CITES"
	RelApplies     = "APPLIES"
	RelEstablishes = "ESTABLISHES"
)

var (
	labels   = map[string]bool{LabelRuling: true, LabelLegislation: true, LabelPrecedent: true}
	relTypes = map[string]bool{RelCites: true, RelApplies: true, RelEstablishes: true}
)

// Node is keyed by citation for rulings and legislation and by the
// precedent statement for precedents.
type Node struct {
	Label      string
	Key        string
	Properties map[string]any
}

type Edge struct {
	FromLabel string
	FromKey   string
	Type      string
	ToLabel   string
	ToKey     string
	Desc      string
	Result    string
}

// Neighbour is a node adjacent to a ruling and the edge that joins them.
type Neighbour struct {
	Label    string `json:"label"`
	Key      string `json:"key"`
	Relation string `json:"relation"`
	Outgoing bool   `json:"outgoing"`
	Desc     string `json:"desc,omitempty"`
	Result   string `json:"result,omitempty"`
}

type Client struct {
	driver      neo4j.DriverWithContext
	database    string
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

func NewClient(uri, username, password, database string) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(
		uri,
		neo4j.BasicAuth(username, password, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = driver.VerifyConnectivity(ctx)
	if err != nil {
		driver.Close(context.Background())
		return nil, fmt.Errorf("failed to verify connectivity: %w", err)
	}

	cb := circuitbreaker.NewCircuitBreaker("neo4j", circuitbreaker.Config{
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          20 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   200 * time.Millisecond,
		MaxDelay:       3 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	if database == "" {
		database = "neo4j"
	}

	logger.Info("Neo4j client initialized", zap.String("uri", uri), zap.String("database", database))

	return &Client{
		driver:      driver,
		database:    database,
		cb:          cb,
		retryConfig: retryConfig,
	}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

func (c *Client) executeWithRetry(ctx context.Context, operation func(neo4j.SessionWithContext) error) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database})
			defer session.Close(ctx)
			return operation(session)
		})
	})
}

// MergeNode creates the node if needed and overwrites the given properties.
func (c *Client) MergeNode(ctx context.Context, node Node) error {
	if !labels[node.Label] {
		return fmt.Errorf("unknown node label %q", node.Label)
	}

	props := node.Properties
	if props == nil {
		props = map[string]any{}
	}

	query := fmt.Sprintf(`
		MERGE (n:%s {key: $key})
		SET n += $props,
		    n.updated_at = timestamp()
	`, node.Label)

	err := c.executeWithRetry(ctx, func(session neo4j.SessionWithContext) error {
		_, err := session.Run(ctx, query, map[string]any{
			"key":   node.Key,
			"props": props,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to merge node: %w", err)
	}

	logger.Debug("Node merged in citation graph", zap.String("label", node.Label), zap.String("key", node.Key))
	return nil
}

// MergeEdge creates both endpoints when missing and links them.
func (c *Client) MergeEdge(ctx context.Context, edge Edge) error {
	if !labels[edge.FromLabel] || !labels[edge.ToLabel] {
		return fmt.Errorf("unknown node label in edge %s -> %s", edge.FromLabel, edge.ToLabel)
	}
	if !relTypes[edge.Type] {
		return fmt.Errorf("unknown relationship type %q", edge.Type)
	}

	query := fmt.Sprintf(`
		MERGE (s:%s {key: $from})
		MERGE (o:%s {key: $to})
		MERGE (s)-[r:%s]->(o)
		SET r.desc = $desc,
		    r.result = $result,
		    r.created_at = timestamp()
	`, edge.FromLabel, edge.ToLabel, edge.Type)

	err := c.executeWithRetry(ctx, func(session neo4j.SessionWithContext) error {
		_, err := session.Run(ctx, query, map[string]any{
			"from":   edge.FromKey,
			"to":     edge.ToKey,
			"desc":   edge.Desc,
			"result": edge.Result,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to merge edge: %w", err)
	}

	logger.Debug("Edge merged in citation graph",
		zap.String("from", edge.FromKey),
		zap.String("type", edge.Type),
		zap.String("to", edge.ToKey),
	)
	return nil
}

// DeleteNode removes a node and its relationships.
func (c *Client) DeleteNode(ctx context.Context, label, key string) error {
	if !labels[label] {
		return fmt.Errorf("unknown node label %q", label)
	}

	query := fmt.Sprintf(`MATCH (n:%s {key: $key}) DETACH DELETE n`, label)

	err := c.executeWithRetry(ctx, func(session neo4j.SessionWithContext) error {
		_, err := session.Run(ctx, query, map[string]any{"key": key})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete node: %w", err)
	}

	logger.Info("Node deleted from citation graph", zap.String("label", label), zap.String("key", key))
	return nil
}

func (c *Client) Neighbours(ctx context.Context, label, key string, limit int) ([]Neighbour, error) {
	if !labels[label] {
		return nil, fmt.Errorf("unknown node label %q", label)
	}

	query := fmt.Sprintf(`
		MATCH (n:%s {key: $key})-[r]-(m)
		RETURN type(r) AS rel, labels(m)[0] AS label, m.key AS key,
		       r.desc AS desc, r.result AS result, startNode(r) = n AS outgoing
		ORDER BY rel, key
		LIMIT $limit
	`, label)

	var out []Neighbour
	err := c.executeWithRetry(ctx, func(session neo4j.SessionWithContext) error {
		out = out[:0]

		result, err := session.Run(ctx, query, map[string]any{"key": key, "limit": limit})
		if err != nil {
			return err
		}

		for result.Next(ctx) {
			record := result.Record()
			out = append(out, Neighbour{
				Relation: recordString(record, "rel"),
				Label:    recordString(record, "label"),
				Key:      recordString(record, "key"),
				Desc:     recordString(record, "desc"),
				Result:   recordString(record, "result"),
				Outgoing: recordBool(record, "outgoing"),
			})
		}

		return result.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get neighbours: %w", err)
	}

	return out, nil
}

func recordString(record *neo4j.Record, key string) string {
	v, _ := record.Get(key)
	s, _ := v.(string)
	return s
}

func recordBool(record *neo4j.Record, key string) bool {
	v, _ := record.Get(key)
	b, _ := v.(bool)
	return b
}
