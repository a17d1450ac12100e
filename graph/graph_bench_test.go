package graph_test

import (
	"context"
	"math/rand"
	"testing"

	"github.com/semafind/vamanadb/graph"
	"github.com/semafind/vamanadb/models"
	"github.com/semafind/vamanadb/nodestore"
	"github.com/semafind/vamanadb/utils"
)

func benchGraph(b *testing.B, size int) *graph.Graph {
	b.Helper()
	rng := rand.New(rand.NewSource(1))
	entries := make([]models.Entry, size)
	for i := range entries {
		entries[i] = models.Entry{Vector: []float32{rng.Float32() * 2000, rng.Float32() * 2000}}
	}
	ctx := context.Background()
	store := nodestore.NewInMemStore(2, 5)
	params := models.GraphParameters{RInit: 5, RMax: 5, Alpha: 1.2, SearchSize: 10}
	input := utils.ProduceWithContext(ctx, [][]models.Entry{entries})
	g, err := graph.NewGraph(ctx, input, params, store, nil)
	if err != nil {
		b.Fatal(err)
	}
	return g
}

func Benchmark_Index(b *testing.B) {
	ctx := context.Background()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		g := benchGraph(b, 500)
		b.StartTimer()
		if err := g.Index(ctx, 1.0); err != nil {
			b.Fatal(err)
		}
		if err := g.Index(ctx, 1.2); err != nil {
			b.Fatal(err)
		}
	}
}

func Benchmark_GreedySearch(b *testing.B) {
	ctx := context.Background()
	g := benchGraph(b, 500)
	if err := g.Index(ctx, 1.0); err != nil {
		b.Fatal(err)
	}
	if err := g.Index(ctx, 1.2); err != nil {
		b.Fatal(err)
	}
	rng := rand.New(rand.NewSource(2))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		query := []float32{rng.Float32() * 2000, rng.Float32() * 2000}
		if _, _, err := g.GreedySearchRandomStart(query, 3, 10); err != nil {
			b.Fatal(err)
		}
	}
}
