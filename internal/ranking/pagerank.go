// Package ranking scores nodes of a simulation snapshot by structural
// importance.
package ranking

import (
	"context"
	"fmt"
	"math"

	"github.com/nvandessel/tendril/internal/graph"
)

// PageRankConfig holds configuration for PageRank computation.
type PageRankConfig struct {
	// DampingFactor (d) is the probability of following a flow vs. teleporting.
	// Standard value: 0.85.
	DampingFactor float64

	// MaxIterations is the maximum number of power iteration steps. Default: 100.
	MaxIterations int

	// Tolerance is the convergence threshold. Default: 1e-6.
	Tolerance float64

	// Undirected treats every flow as a link both ways.
	Undirected bool
}

// DefaultPageRankConfig returns the default PageRank configuration.
func DefaultPageRankConfig() PageRankConfig {
	return PageRankConfig{
		DampingFactor: 0.85,
		MaxIterations: 100,
		Tolerance:     1e-6,
	}
}

type link struct {
	from   graph.NodeID
	weight float64
}

// ComputePageRank calculates a weighted PageRank score for every node in
// snap, indexed by node id and normalized so the top node scores 1.
//
// Each flow is a link from A to B carrying |weight|; a node splits its score
// across its out-links in proportion to their weight. Score held by nodes
// with no out-links is spread evenly over all nodes.
func ComputePageRank(ctx context.Context, snap *graph.Snapshot, config PageRankConfig) ([]float64, error) {
	n := len(snap.Nodes)
	if n == 0 {
		return []float64{}, nil
	}

	inbound := make([][]link, n)
	outWeight := make([]float64, n)
	addLink := func(from, to graph.NodeID, w float64) {
		if from == to || w == 0 {
			return
		}
		inbound[to] = append(inbound[to], link{from: from, weight: w})
		outWeight[from] += w
	}
	for _, f := range snap.Flows {
		if int(f.A) >= n || int(f.B) >= n {
			return nil, fmt.Errorf("computing pagerank: flow %d references unknown node", f.ID)
		}
		w := math.Abs(f.Weight)
		addLink(f.A, f.B, w)
		if config.Undirected {
			addLink(f.B, f.A, w)
		}
	}

	d := config.DampingFactor
	nf := float64(n)
	scores := make([]float64, n)
	for i := range scores {
		scores[i] = 1.0 / nf
	}

	next := make([]float64, n)
	for iter := 0; iter < config.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("computing pagerank: %w", err)
		}

		dangling := 0.0
		for u, w := range outWeight {
			if w == 0 {
				dangling += scores[u]
			}
		}

		maxDelta := 0.0
		for v := range next {
			sum := 0.0
			for _, l := range inbound[v] {
				sum += scores[l.from] * l.weight / outWeight[l.from]
			}
			next[v] = (1.0-d)/nf + d*(sum+dangling/nf)
			maxDelta = math.Max(maxDelta, math.Abs(next[v]-scores[v]))
		}
		scores, next = next, scores

		if maxDelta < config.Tolerance {
			break
		}
	}

	maxScore := 0.0
	for _, s := range scores {
		maxScore = math.Max(maxScore, s)
	}
	if maxScore > 0 {
		for i := range scores {
			scores[i] /= maxScore
		}
	}
	return scores, nil
}
