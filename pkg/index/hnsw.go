// Package index implements the Hierarchical Navigable Small World graph
// that backs approximate nearest-neighbor search.
package index

import (
	"container/heap"
	"errors"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/liliang-cn/vectorcore/pkg/scoring"
)

// ErrNodeNotFound is returned by operations addressing an internal index
// that was never inserted.
var ErrNodeNotFound = errors.New("index: node not found")

// Config holds the construction-time parameters of an HNSW graph.
type Config struct {
	M              int // bidirectional links per node above layer 0
	EfConstruction int // candidate list size during insertion
	Seed           int64
}

// DefaultConfig mirrors the teacher's NewHNSW defaults (M=16,
// efConstruction=200), which in turn match the values from the original
// HNSW paper's recommended operating point.
func DefaultConfig() Config {
	return Config{M: 16, EfConstruction: 200, Seed: 1}
}

// node is one point's graph state. Vector is the vector every distance
// computation uses, at insert and at search time alike; the graph never
// calls a codec. It is whatever the caller passed to Insert (pkg/core
// passes the codec's decoded reconstruction once the codec is trained).
type node struct {
	vector    []float32
	layer     int
	neighbors [][]uint32 // neighbors[l] is the sorted neighbor list at layer l
}

// Graph is the HNSW index over a dense space of internal uint32 IDs. It
// does not own ID allocation or liveness — pkg/payload does — but it
// consults an IsLive callback so that tombstoned nodes are skipped during
// traversal and never returned from Search, per the soft-delete
// invariant.
type Graph struct {
	mu sync.RWMutex

	cfg    Config
	metric scoring.Metric
	rng    *rand.Rand

	nodes      map[uint32]*node
	entryPoint uint32
	hasEntry   bool

	isLive func(internal uint32) bool
}

// New returns an empty graph. isLive is consulted during search and
// neighbor selection to exclude tombstoned points; pass a function that
// always returns true if the caller filters results itself.
func New(cfg Config, metric scoring.Metric, isLive func(uint32) bool) *Graph {
	return &Graph{
		cfg:    cfg,
		metric: metric,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		nodes:  make(map[uint32]*node),
		isLive: isLive,
	}
}

func (g *Graph) distance(a, b []float32) float32 {
	return scoring.Distance(g.metric, a, b)
}

// selectLevel draws a node's top layer from the standard HNSW geometric
// distribution, floor(-ln(U) / ln(M)) for U uniform in (0, 1], capped at
// layer 16. M values below 2 are treated as 2.
func (g *Graph) selectLevel() int {
	m := g.cfg.M
	if m < 2 {
		m = 2
	}
	level := int(math.Floor(-math.Log(1-g.rng.Float64()) / math.Log(float64(m))))
	if level > 16 {
		level = 16
	}
	return level
}

// Insert adds internal as a new graph node at vector's position. internal
// must not already exist.
func (g *Graph) Insert(internal uint32, vector []float32) {
	g.mu.Lock()
	defer g.mu.Unlock()

	level := g.selectLevel()
	n := &node{
		vector:    vector,
		layer:     level,
		neighbors: make([][]uint32, level+1),
	}
	for i := range n.neighbors {
		n.neighbors[i] = make([]uint32, 0)
	}
	g.nodes[internal] = n

	if !g.hasEntry {
		g.entryPoint = internal
		g.hasEntry = true
		return
	}

	entry := g.nodes[g.entryPoint]
	currNearest := []uint32{g.entryPoint}
	for lc := entry.layer; lc > level; lc-- {
		currNearest = g.searchLayer(vector, currNearest, 1, lc)
	}

	// Layers above the current entry point's have no other nodes to link
	// to; linking there would leave one-way edges.
	top := level
	if top > entry.layer {
		top = entry.layer
	}
	for lc := top; lc >= 0; lc-- {
		m := g.cfg.M
		if lc == 0 {
			m = g.cfg.M * 2
		}

		candidates := g.searchLayer(vector, currNearest, g.cfg.EfConstruction, lc)
		neighbors := g.selectNeighborsHeuristic(vector, candidates, m)

		n.neighbors[lc] = neighbors
		// Iterate a copy: pruneIfNeeded may drop a back-edge by removing the
		// neighbor from n.neighbors[lc] in place, which would shift the
		// slice being ranged over and skip the next neighbor's back-edge.
		for _, neighborID := range append([]uint32(nil), neighbors...) {
			g.addConnection(neighborID, internal, lc)
			g.pruneIfNeeded(neighborID, lc)
		}

		if len(candidates) > 0 {
			currNearest = candidates
		}
	}

	if level > entry.layer {
		g.entryPoint = internal
	}
}

func (g *Graph) addConnection(from, to uint32, layer int) {
	fromNode, ok := g.nodes[from]
	if !ok || layer >= len(fromNode.neighbors) {
		return
	}
	idx := sort.Search(len(fromNode.neighbors[layer]), func(i int) bool {
		return fromNode.neighbors[layer][i] >= to
	})
	if idx < len(fromNode.neighbors[layer]) && fromNode.neighbors[layer][idx] == to {
		return
	}
	neighbors := fromNode.neighbors[layer]
	neighbors = append(neighbors, 0)
	copy(neighbors[idx+1:], neighbors[idx:])
	neighbors[idx] = to
	fromNode.neighbors[layer] = neighbors
}

// pruneIfNeeded re-runs heuristic selection over internal's neighbor list
// at layer if it has grown past the connection cap, and removes the
// matching back-edge from every neighbor that gets dropped — without
// this, a node demoted out of internal's list would still point back at
// internal, breaking the bidirectional-edge invariant.
func (g *Graph) pruneIfNeeded(internal uint32, layer int) {
	n, ok := g.nodes[internal]
	if !ok || layer >= len(n.neighbors) {
		return
	}
	maxConn := g.cfg.M
	if layer == 0 {
		maxConn = g.cfg.M * 2
	}
	if len(n.neighbors[layer]) <= maxConn {
		return
	}

	before := n.neighbors[layer]
	trimmed := g.selectNeighborsHeuristic(n.vector, before, maxConn)
	sort.Slice(trimmed, func(i, j int) bool { return trimmed[i] < trimmed[j] })

	kept := make(map[uint32]bool, len(trimmed))
	for _, id := range trimmed {
		kept[id] = true
	}
	for _, old := range before {
		if !kept[old] {
			g.removeConnection(old, internal, layer)
		}
	}
	n.neighbors[layer] = trimmed
}

func (g *Graph) removeConnection(from, to uint32, layer int) {
	n, ok := g.nodes[from]
	if !ok || layer >= len(n.neighbors) {
		return
	}
	neighbors := n.neighbors[layer]
	idx := sort.Search(len(neighbors), func(i int) bool { return neighbors[i] >= to })
	if idx < len(neighbors) && neighbors[idx] == to {
		n.neighbors[layer] = append(neighbors[:idx], neighbors[idx+1:]...)
	}
}

// selectNeighborsHeuristic implements the HNSW paper's heuristic selection
// (Algorithm 4): a candidate is kept only if it is closer to the query
// than it is to every neighbor already selected, which biases the graph
// toward diverse directions instead of a tight cluster of near-duplicates.
// This replaces a plain nearest-m cut, which is what the teacher's
// same-named method actually does.
func (g *Graph) selectNeighborsHeuristic(query []float32, candidates []uint32, m int) []uint32 {
	type scored struct {
		id   uint32
		dist float32
	}
	pool := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		n, ok := g.nodes[c]
		if !ok {
			continue
		}
		pool = append(pool, scored{id: c, dist: g.distance(query, n.vector)})
	}
	sort.Slice(pool, func(i, j int) bool {
		if pool[i].dist != pool[j].dist {
			return pool[i].dist < pool[j].dist
		}
		return pool[i].id < pool[j].id
	})

	selected := make([]uint32, 0, m)
	for _, cand := range pool {
		if len(selected) >= m {
			break
		}
		candVec := g.nodes[cand.id].vector
		keep := true
		for _, s := range selected {
			if g.distance(candVec, g.nodes[s].vector) < cand.dist {
				keep = false
				break
			}
		}
		if keep {
			selected = append(selected, cand.id)
		}
	}
	sort.Slice(selected, func(i, j int) bool { return selected[i] < selected[j] })
	return selected
}

// searchLayer is the greedy beam search within a single layer, expanding
// through live neighbors only.
func (g *Graph) searchLayer(query []float32, entryPoints []uint32, ef int, layer int) []uint32 {
	visited := make(map[uint32]bool)
	candidates := &distHeap{}
	dynamic := &distHeap{}

	for _, p := range entryPoints {
		n, ok := g.nodes[p]
		if !ok {
			continue
		}
		dist := g.distance(query, n.vector)
		heap.Push(candidates, &heapItem{id: p, dist: dist})
		heap.Push(dynamic, &heapItem{id: p, dist: -dist})
		visited[p] = true
	}

	for candidates.Len() > 0 {
		if dynamic.Len() > 0 {
			lowerBound := (*candidates)[0].dist
			if lowerBound > -(*dynamic)[0].dist {
				break
			}
		}

		current := heap.Pop(candidates).(*heapItem)
		currentNode, ok := g.nodes[current.id]
		if !ok || layer >= len(currentNode.neighbors) {
			continue
		}

		for _, neighborID := range currentNode.neighbors[layer] {
			if visited[neighborID] {
				continue
			}
			visited[neighborID] = true

			neighborNode, ok := g.nodes[neighborID]
			if !ok {
				continue
			}
			dist := g.distance(query, neighborNode.vector)

			if dynamic.Len() < ef || dist < -(*dynamic)[0].dist {
				if g.isLive == nil || g.isLive(neighborID) {
					heap.Push(candidates, &heapItem{id: neighborID, dist: dist})
					heap.Push(dynamic, &heapItem{id: neighborID, dist: -dist})
					if dynamic.Len() > ef {
						heap.Pop(dynamic)
					}
				}
			}
		}
	}

	result := make([]uint32, 0, dynamic.Len())
	for dynamic.Len() > 0 {
		item := heap.Pop(dynamic).(*heapItem)
		result = append(result, item.id)
	}
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result
}

func (g *Graph) searchLayerClosest(query []float32, entryPoints []uint32, num, layer int) []uint32 {
	result := g.searchLayer(query, entryPoints, num, layer)
	if len(result) > num {
		return result[:num]
	}
	return result
}

// Neighbor is one search result: an internal index and its distance
// under the graph's metric.
type Neighbor struct {
	Internal uint32
	Distance float32
}

// Search returns up to k live nodes nearest to query, exploring with beam
// width ef at layer 0.
func (g *Graph) Search(query []float32, k, ef int) []Neighbor {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if !g.hasEntry {
		return nil
	}

	entry := g.nodes[g.entryPoint]
	currNearest := []uint32{g.entryPoint}
	for layer := entry.layer; layer > 0; layer-- {
		currNearest = g.searchLayerClosest(query, currNearest, 1, layer)
	}

	candidates := g.searchLayer(query, currNearest, ef, 0)

	results := make([]Neighbor, 0, len(candidates))
	for _, c := range candidates {
		n, ok := g.nodes[c]
		if !ok {
			continue
		}
		if g.isLive != nil && !g.isLive(c) {
			continue
		}
		results = append(results, Neighbor{Internal: c, Distance: g.distance(query, n.vector)})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].Internal < results[j].Internal
	})

	if k < len(results) {
		results = results[:k]
	}
	return results
}

// RangeSearch returns every live node within maxDistance of query,
// sorted closest-first, without a result-count cap. It reuses Search's
// layer-0 beam with ef widened to cover the live set, which is the
// teacher's own approach to "give me everything in a radius" on a
// structure built for top-k.
func (g *Graph) RangeSearch(query []float32, maxDistance float32, ef int) []Neighbor {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if !g.hasEntry {
		return nil
	}
	entry := g.nodes[g.entryPoint]
	currNearest := []uint32{g.entryPoint}
	for layer := entry.layer; layer > 0; layer-- {
		currNearest = g.searchLayerClosest(query, currNearest, 1, layer)
	}
	candidates := g.searchLayer(query, currNearest, ef, 0)

	results := make([]Neighbor, 0, len(candidates))
	for _, c := range candidates {
		n, ok := g.nodes[c]
		if !ok || (g.isLive != nil && !g.isLive(c)) {
			continue
		}
		dist := g.distance(query, n.vector)
		if dist <= maxDistance {
			results = append(results, Neighbor{Internal: c, Distance: dist})
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].Internal < results[j].Internal
	})
	return results
}

// Delete removes internal from the graph's adjacency lists entirely
// (full structural removal, not a tombstone flag — liveness bookkeeping
// belongs to pkg/payload). If internal was the entry point, a new one is
// chosen deterministically: the surviving node with the highest layer,
// ties broken by the lowest internal index, falling back to the
// lowest-indexed survivor if none remain at any layer above 0.
func (g *Graph) Delete(internal uint32) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[internal]; !ok {
		return ErrNodeNotFound
	}
	delete(g.nodes, internal)

	for _, n := range g.nodes {
		for layer, neighbors := range n.neighbors {
			idx := sort.Search(len(neighbors), func(i int) bool { return neighbors[i] >= internal })
			if idx < len(neighbors) && neighbors[idx] == internal {
				n.neighbors[layer] = append(neighbors[:idx], neighbors[idx+1:]...)
			}
		}
	}

	if g.entryPoint == internal {
		g.reassignEntryPoint()
	}
	return nil
}

func (g *Graph) reassignEntryPoint() {
	if len(g.nodes) == 0 {
		g.hasEntry = false
		g.entryPoint = 0
		return
	}
	bestID := uint32(0)
	bestLayer := -1
	first := true
	for id, n := range g.nodes {
		if first || n.layer > bestLayer || (n.layer == bestLayer && id < bestID) {
			bestID, bestLayer, first = id, n.layer, false
		}
	}
	g.entryPoint = bestID
	g.hasEntry = true
}

// Size returns the number of nodes currently in the graph.
func (g *Graph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// heapItem and distHeap implement a min-heap ordered by dist, reused for
// both the candidate frontier (ascending) and, with negated distances,
// the bounded "farthest first" dynamic result list.
type heapItem struct {
	id   uint32
	dist float32
}

type distHeap []*heapItem

func (h distHeap) Len() int            { return len(h) }
func (h distHeap) Less(i, j int) bool  { return h[i].dist < h[j].dist }
func (h distHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *distHeap) Push(x interface{}) { *h = append(*h, x.(*heapItem)) }
func (h *distHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// ExportedNode is one node's snapshot-relevant state, used by the
// collection layer to write graph.bin in the format internal/encoding
// defines (GraphHeader + one GraphNodeRecord per node).
type ExportedNode struct {
	Internal  uint32
	Vector    []float32
	Layer     int
	Neighbors [][]uint32
}

// Export returns every node in ascending internal-ID order along with
// the current entry point, giving the collection layer a stable
// enumeration to serialize without reaching into Graph internals.
func (g *Graph) Export() (entryPoint uint32, hasEntry bool, nodes []ExportedNode) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	nodes = make([]ExportedNode, 0, len(g.nodes))
	for id, n := range g.nodes {
		nodes = append(nodes, ExportedNode{Internal: id, Vector: n.vector, Layer: n.layer, Neighbors: n.neighbors})
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Internal < nodes[j].Internal })
	return g.entryPoint, g.hasEntry, nodes
}

// Rebuild replaces the graph's contents with exactly the given nodes and
// entry point, bypassing incremental Insert. The caller (Restore) is
// responsible for the nodes having come from a consistent Export, since
// Rebuild does not re-validate neighbor symmetry.
func (g *Graph) Rebuild(cfg Config, metric scoring.Metric, entryPoint uint32, hasEntry bool, nodes []ExportedNode, isLive func(uint32) bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.cfg = cfg
	g.metric = metric
	g.entryPoint = entryPoint
	g.hasEntry = hasEntry
	g.isLive = isLive
	g.rng = rand.New(rand.NewSource(cfg.Seed))
	g.nodes = make(map[uint32]*node, len(nodes))
	for _, n := range nodes {
		g.nodes[n.Internal] = &node{vector: n.Vector, layer: n.Layer, neighbors: n.Neighbors}
	}
}
