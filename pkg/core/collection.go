package core

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/liliang-cn/vectorcore/internal/encoding"
	"github.com/liliang-cn/vectorcore/pkg/index"
	"github.com/liliang-cn/vectorcore/pkg/payload"
	"github.com/liliang-cn/vectorcore/pkg/quantization"
	"github.com/liliang-cn/vectorcore/pkg/scoring"
)

// batchInsertConcurrency bounds how many goroutines InsertParallel runs at
// once; the HNSW writer lock serializes actual graph mutation regardless,
// so this only parallelizes validation, normalization, and payload-store
// bookkeeping ahead of the lock.
const batchInsertConcurrency = 8

// maxEf is the implementation ceiling on beam width, per spec.md §4.6
// ("the core documents this and clamps ef to an implementation maximum").
// A caller widening ef to compensate for an aggressive post-ANN filter
// cannot push the graph traversal past this bound.
const maxEf = 4096

// VectorInput is one point of an Insert batch.
type VectorInput struct {
	ID      string
	Vector  []float32
	Sparse  *scoring.SparseVector
	Payload encoding.Payload
}

// InsertFailure reports why one batch element did not commit, keeping its
// original ID so the caller can correlate it back to the request (spec.md
// §4.2: "Invariant-violating entries are reported with their original ID
// and the reason").
type InsertFailure struct {
	ID     string
	Reason error
}

// InsertResult is the outcome of a batch Insert: how many committed, and
// the per-element failures for the rest. A batch never rolls back valid
// entries because of invalid siblings.
type InsertResult struct {
	Inserted int
	Failed   []InsertFailure
}

// SearchResult is one hit returned by Search/HybridSearch/RangeSearch.
type SearchResult struct {
	ID      string
	Score   float32
	Payload encoding.Payload
}

// Stats is the collection's observability snapshot (spec.md §9 Open
// Question 1): useful for dashboards, never consulted by the engine
// itself for correctness.
type Stats struct {
	VectorCount     int
	TombstoneCount  int
	MaxLayer        int
	AvgDegree       float64
	Trained         bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// point is the collection's private record of a live vector's raw
// (decoded) representation, kept so training, re-encoding and Optimize's
// rebuild never need to reach back through the codec for a vector they
// already have in hand.
type point struct {
	vector []float32
	sparse *scoring.SparseVector
}

// Collection owns one HNSW index, one Codec, and one Payload Store, and
// enforces the configuration it was created with on every operation
// (spec.md §4.2). Its own state (timestamps, training backlog) is guarded
// by mu; the graph and payload store carry their own locks, acquired in
// that order when an operation needs both (spec.md §5).
type Collection struct {
	mu sync.RWMutex

	name   string
	cfg    CollectionConfig
	logger Logger

	graph    *index.Graph
	codec    quantization.Codec
	payloads *payload.Store

	points map[uint32]point // internal -> raw vector, for training/Optimize

	trainingBacklog []uint32 // internals buffered as the training sample until Train fires

	createdAt time.Time
	updatedAt time.Time
}

func newCollection(name string, cfg CollectionConfig, logger Logger) *Collection {
	hnswCfg := index.Config{M: cfg.HNSW.M, EfConstruction: cfg.HNSW.EfConstruction, Seed: seedOrDefault(cfg)}
	payloads := payload.New()
	c := &Collection{
		name:      name,
		cfg:       cfg,
		logger:    logger.With("collection", name),
		codec:     newCodec(cfg.Quantization, cfg.Metric),
		payloads:  payloads,
		points:    make(map[uint32]point),
		createdAt: time.Now(),
		updatedAt: time.Now(),
	}
	c.graph = index.New(hnswCfg, cfg.Metric, payloads.IsLive)
	return c
}

func seedOrDefault(cfg CollectionConfig) int64 {
	if cfg.HNSW.Seed == 0 {
		return 1
	}
	return cfg.HNSW.Seed
}

// Insert validates and commits a batch of vectors. Each entry is
// independently validated; invariant-violating entries are reported in
// Failed without blocking the rest of the batch from committing (spec.md
// §4.2, §7).
func (c *Collection) Insert(vectors []VectorInput) (InsertResult, error) {
	var result InsertResult

	for _, v := range vectors {
		internal, err := c.insertOne(v)
		if err != nil {
			result.Failed = append(result.Failed, InsertFailure{ID: v.ID, Reason: err})
			continue
		}
		_ = internal
		result.Inserted++
	}

	c.mu.Lock()
	c.updatedAt = time.Now()
	c.mu.Unlock()

	return result, nil
}

// InsertParallel is Insert's fan-out variant (spec.md §5: "When explicit
// parallel=true, ... partitioning the batch and performing independent
// HNSW inserts"). Each element is validated and linked on its own
// goroutine; the graph's writer lock still serializes the actual
// neighbor-list mutation, so this parallelizes the CPU-bound validation
// and codec work ahead of the lock rather than the lock itself.
func (c *Collection) InsertParallel(vectors []VectorInput) (InsertResult, error) {
	failures := make([]InsertFailure, len(vectors))
	committed := make([]bool, len(vectors))

	g := new(errgroup.Group)
	g.SetLimit(batchInsertConcurrency)
	for i, v := range vectors {
		i, v := i, v
		g.Go(func() error {
			if _, err := c.insertOne(v); err != nil {
				failures[i] = InsertFailure{ID: v.ID, Reason: err}
			} else {
				committed[i] = true
			}
			return nil
		})
	}
	_ = g.Wait()

	var result InsertResult
	for i := range vectors {
		if committed[i] {
			result.Inserted++
		} else {
			result.Failed = append(result.Failed, failures[i])
		}
	}

	c.mu.Lock()
	c.updatedAt = time.Now()
	c.mu.Unlock()

	return result, nil
}

func (c *Collection) insertOne(v VectorInput) (uint32, error) {
	if len(v.Vector) != c.cfg.Dim {
		return 0, ErrInvalidDimension
	}
	if err := encoding.ValidateVector(v.Vector); err != nil {
		return 0, err
	}
	vec := v.Vector
	if c.cfg.Metric == scoring.Cosine {
		normalized, zero := encoding.Normalize(vec)
		if zero {
			return 0, fmt.Errorf("%w: zero-norm vector rejected for cosine collection", ErrInvalidVector)
		}
		vec = normalized
	}
	if v.Sparse != nil {
		if err := scoring.ValidateSparse(*v.Sparse); err != nil {
			return 0, err
		}
	}

	// Checked against MaxVectors without holding the Payload Store's lock
	// across the Insert call below, so InsertParallel can overshoot the
	// bound by at most the number of goroutines racing the same check;
	// spec.md §7 only requires capacity be surfaced, not enforced exactly.
	if c.cfg.MaxVectors > 0 && c.payloads.Count() >= c.cfg.MaxVectors {
		return 0, ErrCapacity
	}

	internal, err := c.payloads.Insert(v.ID, v.Payload)
	if err != nil {
		if errors.Is(err, payload.ErrAlreadyExists) {
			return 0, fmt.Errorf("%w: %s", ErrPointExists, v.ID)
		}
		return 0, err
	}

	c.mu.Lock()
	c.points[internal] = point{vector: vec, sparse: v.Sparse}
	c.maybeTrainLocked(internal)
	codec := c.codec
	c.mu.Unlock()

	storeVec := vec
	if codec.Trained() {
		code, err := codec.Encode(vec)
		if err == nil {
			if decoded, derr := codec.Decode(code); derr == nil {
				storeVec = decoded
			}
		}
	}

	c.graph.Insert(internal, storeVec)
	return internal, nil
}

// maybeTrainLocked buffers internal into the training backlog (if the
// codec isn't trained yet) and fires Train once the backlog reaches
// TrainingSampleSize, then clears the backlog. Backlogged vectors are not
// re-encoded: their graph nodes keep the unquantized vectors they were
// linked with, and only points inserted after training are linked with
// the codec's decoded reconstruction. Callers hold c.mu.
func (c *Collection) maybeTrainLocked(internal uint32) {
	if c.codec.Trained() {
		return
	}
	c.trainingBacklog = append(c.trainingBacklog, internal)

	target := c.cfg.Quantization.TrainingSampleSize
	if target <= 0 || len(c.trainingBacklog) < target {
		return
	}

	sample := make([][]float32, 0, len(c.trainingBacklog))
	for _, id := range c.trainingBacklog {
		sample = append(sample, c.points[id].vector)
	}
	if err := c.codec.Train(sample); err != nil {
		c.logger.Warn("codec training failed", "error", err)
		return
	}
	c.logger.Info("codec trained", "sample_size", len(sample))
	c.trainingBacklog = nil
}

// Get returns a live point's decoded vector and payload.
func (c *Collection) Get(id string) ([]float32, encoding.Payload, error) {
	internal, rec, ok := c.payloads.GetByExternalID(id)
	if !ok {
		return nil, nil, ErrPointNotFound
	}
	c.mu.RLock()
	p, ok := c.points[internal]
	c.mu.RUnlock()
	if !ok {
		// The Payload Store reports id as live, so a missing points entry
		// means the two structures have fallen out of sync rather than
		// that the caller asked for something that was never there.
		return nil, nil, fmt.Errorf("%w: live point %q missing from in-memory vector cache", ErrInternal, id)
	}
	return p.vector, rec.Payload, nil
}

// Delete tombstones each ID in the Payload Store and removes its node
// from the graph; unknown IDs are silently skipped (spec.md §4.2:
// "never fails per-ID").
func (c *Collection) Delete(ids []string) int {
	deleted := 0
	for _, id := range ids {
		internal, _, ok := c.payloads.GetByExternalID(id)
		if !ok {
			continue
		}
		if err := c.payloads.Delete(id); err != nil {
			continue
		}
		_ = c.graph.Delete(internal)
		c.mu.Lock()
		delete(c.points, internal)
		c.mu.Unlock()
		deleted++
	}
	if deleted > 0 {
		c.mu.Lock()
		c.updatedAt = time.Now()
		c.mu.Unlock()
	}
	return deleted
}

// Update is delete-then-insert under the same external ID (spec.md §4.2):
// the old node is tombstoned and a new one linked, rather than mutated in
// place, so every invariant Insert enforces still holds.
func (c *Collection) Update(id string, vec []float32, p encoding.Payload) error {
	if _, _, ok := c.payloads.GetByExternalID(id); !ok {
		return ErrPointNotFound
	}
	c.Delete([]string{id})
	_, err := c.insertOne(VectorInput{ID: id, Vector: vec, Payload: p})
	return err
}

// Count returns the number of live points, optionally narrowed by filter.
func (c *Collection) Count(filter *payload.Expression) (int, error) {
	if filter == nil {
		return c.payloads.Count(), nil
	}
	matched, err := c.payloads.Filter(filter)
	if err != nil {
		return 0, err
	}
	return len(matched), nil
}

// searchEf computes the beam width a query runs with: at least k, at
// least the collection's configured ef_search, widened to requestedEf if
// the caller asked for more, and always clamped to maxEf.
func (c *Collection) searchEf(k int, requestedEf int) int {
	ef := c.cfg.HNSW.EfSearch
	if k > ef {
		ef = k
	}
	if requestedEf > ef {
		ef = requestedEf
	}
	if ef > maxEf {
		ef = maxEf
	}
	return ef
}

// Search runs dense ANN search for the k nearest live points to query,
// optionally narrowed by a post-ANN payload filter (spec.md §4.3, §4.6).
func (c *Collection) Search(query []float32, k, ef int, filter *payload.Expression) ([]SearchResult, error) {
	if len(query) != c.cfg.Dim {
		return nil, ErrInvalidDimension
	}
	if err := encoding.ValidateVector(query); err != nil {
		return nil, err
	}
	q := query
	if c.cfg.Metric == scoring.Cosine {
		normalized, zero := encoding.Normalize(q)
		if zero {
			return nil, fmt.Errorf("%w: zero-norm query rejected for cosine collection", ErrInvalidVector)
		}
		q = normalized
	}

	beam := c.searchEf(k, ef)
	// Widen the candidate pool when a filter is present: the caller's ef
	// is the only lever to guarantee k post-filter results (spec.md
	// §4.6), so a filtered search asks the graph for the full beam
	// instead of just k.
	fetch := k
	if filter != nil {
		fetch = beam
	}

	neighbors := c.graph.Search(q, fetch, beam)

	results := make([]SearchResult, 0, len(neighbors))
	for _, n := range neighbors {
		internal := n.Internal
		rec, ok := c.payloads.Get(internal)
		if !ok {
			continue
		}
		if filter != nil {
			match, err := payload.Match(filter, rec.Payload)
			if err != nil {
				return nil, err
			}
			if !match {
				continue
			}
		}
		dist := n.Distance
		score := scoring.Score(c.cfg.Metric, dist, c.cfg.EuclideanSqrt)
		results = append(results, SearchResult{ID: rec.ExternalID, Score: score, Payload: rec.Payload})
		if len(results) >= k {
			break
		}
	}
	return results, nil
}

// RangeSearch returns every live point within radius of query (spec.md
// §9 "Range search", supplemented from original_source/).
func (c *Collection) RangeSearch(query []float32, radius float32, ef int) ([]SearchResult, error) {
	if len(query) != c.cfg.Dim {
		return nil, ErrInvalidDimension
	}
	q := query
	if c.cfg.Metric == scoring.Cosine {
		normalized, zero := encoding.Normalize(q)
		if zero {
			return nil, fmt.Errorf("%w: zero-norm query rejected for cosine collection", ErrInvalidVector)
		}
		q = normalized
	}
	beam := c.searchEf(c.payloads.Count(), ef)
	neighbors := c.graph.RangeSearch(q, radius, beam)

	results := make([]SearchResult, 0, len(neighbors))
	for _, n := range neighbors {
		rec, ok := c.payloads.Get(n.Internal)
		if !ok {
			continue
		}
		score := scoring.Score(c.cfg.Metric, n.Distance, c.cfg.EuclideanSqrt)
		results = append(results, SearchResult{ID: rec.ExternalID, Score: score, Payload: rec.Payload})
	}
	return results, nil
}

// HybridSearch runs independent dense and sparse passes and fuses them
// per spec.md §4.5. denseK/sparseK are the per-modality candidate pool
// sizes (each may exceed finalK); fused results are truncated to finalK.
func (c *Collection) HybridSearch(dense []float32, sparse scoring.SparseVector, denseK, sparseK, finalK int, method scoring.FusionMethod, alpha float32) ([]scoring.FusedResult, error) {
	denseResults, err := c.Search(dense, denseK, 0, nil)
	if err != nil {
		return nil, err
	}
	denseRanked := make([]scoring.RankedResult, len(denseResults))
	for i, r := range denseResults {
		denseRanked[i] = scoring.RankedResult{ID: r.ID, Score: r.Score}
	}

	sparseRanked := c.sparseSearch(sparse, sparseK)

	return scoring.HybridFuse(denseRanked, sparseRanked, method, alpha, finalK), nil
}

// sparseSearch brute-force scores every live point's sparse companion
// against the query (spec.md §4.5: merge-walk is O(|q|+|v|) per pair;
// there is no ANN structure over the sparse space, so the full live set
// is scanned). Points without a sparse vector score zero.
func (c *Collection) sparseSearch(query scoring.SparseVector, k int) []scoring.RankedResult {
	type scored struct {
		id    string
		score float32
	}
	c.mu.RLock()
	pts := make(map[uint32]point, len(c.points))
	for k, v := range c.points {
		pts[k] = v
	}
	c.mu.RUnlock()

	out := make([]scored, 0, len(pts))
	for internal, p := range pts {
		rec, ok := c.payloads.Get(internal)
		if !ok || p.sparse == nil {
			continue
		}
		out = append(out, scored{id: rec.ExternalID, score: scoring.SparseDot(query, *p.sparse)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].score > out[j].score })
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	ranked := make([]scoring.RankedResult, len(out))
	for i, s := range out {
		ranked[i] = scoring.RankedResult{ID: s.id, Score: s.score}
	}
	return ranked
}

// Scroll iterates the Payload Store in ascending internal-index order,
// returning up to limit items after the given cursor and the cursor to
// resume from (spec.md §4.2). A zero-value Cursor starts from the
// beginning.
func (c *Collection) Scroll(cursor Cursor, limit int, filter *payload.Expression) ([]SearchResult, Cursor, error) {
	var internals []uint32
	var hasMore bool
	if cursor.started {
		internals, hasMore = c.payloads.Scroll(cursor.after, limit)
	} else {
		internals, hasMore = c.payloads.ScrollFromStart(limit)
	}

	results := make([]SearchResult, 0, len(internals))
	// The next cursor resumes after the last index this page examined,
	// whether or not that point passed the filter.
	last := cursor.after
	for _, internal := range internals {
		last = internal
		rec, ok := c.payloads.Get(internal)
		if !ok {
			continue
		}
		if filter != nil {
			match, err := payload.Match(filter, rec.Payload)
			if err != nil {
				return nil, Cursor{}, err
			}
			if !match {
				continue
			}
		}
		results = append(results, SearchResult{ID: rec.ExternalID, Payload: rec.Payload})
	}

	next := Cursor{started: true, after: last, done: !hasMore}
	return results, next, nil
}

// Optimize rebuilds the HNSW graph from only the surviving, non-deleted
// points, renumbering internal indices contiguously and resetting the
// Payload Store's tombstone bookkeeping (spec.md §4.3 "compaction pass").
// Grounded on the teacher's rebuildHNSWIndex: a fresh index and fresh
// payload store, re-populated by re-running Insert's core steps without
// re-validating already-accepted data.
func (c *Collection) Optimize() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.points
	fresh := payload.New()
	hnswCfg := index.Config{M: c.cfg.HNSW.M, EfConstruction: c.cfg.HNSW.EfConstruction, Seed: seedOrDefault(c.cfg)}
	freshGraph := index.New(hnswCfg, c.cfg.Metric, fresh.IsLive)
	freshPoints := make(map[uint32]point, len(old))

	ids, _ := func() ([]uint32, bool) {
		return c.payloads.ScrollFromStart(c.payloads.Count() + 1)
	}()
	for _, internal := range ids {
		rec, ok := c.payloads.Get(internal)
		if !ok {
			continue
		}
		p, ok := old[internal]
		if !ok {
			continue
		}
		newInternal, err := fresh.Insert(rec.ExternalID, rec.Payload)
		if err != nil {
			continue
		}
		freshPoints[newInternal] = p

		storeVec := p.vector
		if c.codec.Trained() {
			if code, err := c.codec.Encode(p.vector); err == nil {
				if decoded, err := c.codec.Decode(code); err == nil {
					storeVec = decoded
				}
			}
		}
		freshGraph.Insert(newInternal, storeVec)
	}

	c.payloads = fresh
	c.graph = freshGraph
	c.points = freshPoints
	c.updatedAt = time.Now()
	return nil
}

// Stats reports the collection's observability snapshot (spec.md §9 Open
// Question 1). Never consulted by the engine for correctness.
func (c *Collection) Stats() Stats {
	c.mu.RLock()
	created, updated := c.createdAt, c.updatedAt
	c.mu.RUnlock()

	entryPoint, hasEntry, nodes := c.graph.Export()
	_ = entryPoint
	maxLayer := 0
	totalDegree := 0
	for _, n := range nodes {
		if n.Layer > maxLayer {
			maxLayer = n.Layer
		}
		for _, neighbors := range n.Neighbors {
			totalDegree += len(neighbors)
		}
	}
	avgDegree := 0.0
	if len(nodes) > 0 {
		avgDegree = float64(totalDegree) / float64(len(nodes))
	}
	if !hasEntry {
		maxLayer = 0
	}

	return Stats{
		VectorCount:    c.payloads.Count(),
		TombstoneCount: c.payloads.TombstoneCount(),
		MaxLayer:       maxLayer,
		AvgDegree:      avgDegree,
		Trained:        c.codec.Trained(),
		CreatedAt:      created,
		UpdatedAt:      updated,
	}
}

// Config returns the collection's immutable configuration.
func (c *Collection) Config() CollectionConfig { return c.cfg }

// Name returns the collection's name.
func (c *Collection) Name() string { return c.name }
