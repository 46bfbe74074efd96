package core

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/liliang-cn/vectorcore/internal/encoding"
	"github.com/liliang-cn/vectorcore/pkg/index"
	"github.com/liliang-cn/vectorcore/pkg/payload"
	"github.com/liliang-cn/vectorcore/pkg/quantization"
	"github.com/liliang-cn/vectorcore/pkg/scoring"
)

// collectionMeta is the JSON shape of a collection's meta.json (spec.md
// §6). MetaVersion lets a future format change be detected on load; this
// build only understands version 1.
const metaVersion = 1

type collectionMeta struct {
	MetaVersion   int                      `json:"meta_version"`
	Dim           int                      `json:"dim"`
	Metric        scoring.Metric           `json:"metric"`
	HNSW          HNSWConfig               `json:"hnsw"`
	Quantization  QuantizationConfig       `json:"quantization"`
	EuclideanSqrt bool                     `json:"euclidean_sqrt"`
	MaxVectors    int                      `json:"max_vectors"`
	VectorCount   int                      `json:"vector_count"`
	CreatedAt     time.Time                `json:"created_at"`
	UpdatedAt     time.Time                `json:"updated_at"`
}

// writeCollectionSnapshot normalizes c (compacting tombstones by writing
// only live points, renumbered contiguously from 0) and writes its
// meta.json, vectors.bin, graph.bin, and (if quantized and trained)
// codec.bin into dir.
func writeCollectionSnapshot(dir string, c *Collection) error {
	c.mu.RLock()
	cfg := c.cfg
	created, updated := c.createdAt, c.updatedAt
	points := make(map[uint32]point, len(c.points))
	for k, v := range c.points {
		points[k] = v
	}
	codec := c.codec
	c.mu.RUnlock()

	liveOld, _ := c.payloads.ScrollFromStart(c.payloads.Count() + 1)
	sort.Slice(liveOld, func(i, j int) bool { return liveOld[i] < liveOld[j] })

	oldToNew := make(map[uint32]uint32, len(liveOld))
	for newID, oldID := range liveOld {
		oldToNew[oldID] = uint32(newID)
	}

	trained := codec.Trained() && cfg.Quantization.Mode != QuantizationNone
	tag := encoding.CodecNone
	if trained {
		tag = codec.Tag()
	}

	meta := collectionMeta{
		MetaVersion:   metaVersion,
		Dim:           cfg.Dim,
		Metric:        cfg.Metric,
		HNSW:          cfg.HNSW,
		Quantization:  cfg.Quantization,
		EuclideanSqrt: cfg.EuclideanSqrt,
		MaxVectors:    cfg.MaxVectors,
		VectorCount:   len(liveOld),
		CreatedAt:     created,
		UpdatedAt:     updated,
	}
	if err := writeMeta(filepath.Join(dir, "meta.json"), meta); err != nil {
		return err
	}

	if err := writeVectors(filepath.Join(dir, "vectors.bin"), cfg, liveOld, points, codec, trained, tag, c.payloads); err != nil {
		return err
	}

	if err := writeGraph(filepath.Join(dir, "graph.bin"), c.graph, oldToNew); err != nil {
		return err
	}

	codecPath := filepath.Join(dir, "codec.bin")
	if trained {
		f, err := os.Create(codecPath)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrIO, codecPath, err)
		}
		defer f.Close()
		if err := codec.Save(f); err != nil {
			return fmt.Errorf("%w: saving codec.bin: %v", ErrIO, err)
		}
	} else {
		os.Remove(codecPath)
	}

	return nil
}

func writeMeta(path string, meta collectionMeta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshaling meta.json: %v", ErrIO, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrIO, path, err)
	}
	return nil
}

func writeVectors(path string, cfg CollectionConfig, liveOld []uint32, points map[uint32]point, codec quantization.Codec, trained bool, tag encoding.CodecTag, payloads *payload.Store) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrIO, path, err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	header := encoding.VectorsHeader{
		Magic: encoding.VectorsMagic, Version: encoding.VectorsVersion,
		Dim: uint32(cfg.Dim), Count: uint32(len(liveOld)), CodecTag: tag,
	}
	if err := encoding.WriteVectorsHeader(w, header); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}

	for _, oldID := range liveOld {
		rec, ok := payloads.Get(oldID)
		if !ok {
			continue
		}
		p := points[oldID]
		var code []byte
		if trained {
			code, err = codec.Encode(p.vector)
		} else {
			code, err = encoding.EncodeVector(p.vector)
		}
		if err != nil {
			return fmt.Errorf("%w: encoding vector %q: %v", ErrIO, rec.ExternalID, err)
		}
		payloadJSON, err := encoding.EncodePayload(rec.Payload)
		if err != nil {
			return fmt.Errorf("%w: encoding payload for %q: %v", ErrIO, rec.ExternalID, err)
		}
		if err := encoding.WriteVectorRecord(w, encoding.VectorRecord{
			ExternalID: rec.ExternalID, Code: code, Payload: payloadJSON,
		}); err != nil {
			return fmt.Errorf("%w: %v", ErrIO, err)
		}
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("%w: flushing %s: %v", ErrIO, path, err)
	}
	return nil
}

func writeGraph(path string, g *index.Graph, oldToNew map[uint32]uint32) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrIO, path, err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	entryOld, hasEntry, nodes := g.Export()
	var entryNew uint32
	if hasEntry {
		entryNew = oldToNew[entryOld]
	}
	if err := encoding.WriteGraphHeader(w, encoding.GraphHeader{EntryPoint: entryNew, NodeCount: uint32(len(nodes))}); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}

	for _, n := range nodes {
		remapped := make([][]uint32, len(n.Neighbors))
		for l, layerNeighbors := range n.Neighbors {
			out := make([]uint32, 0, len(layerNeighbors))
			for _, old := range layerNeighbors {
				if newID, ok := oldToNew[old]; ok {
					out = append(out, newID)
				}
			}
			sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
			remapped[l] = out
		}
		if err := encoding.WriteGraphNode(w, encoding.GraphNodeRecord{Layer: uint8(n.Layer), Neighbors: remapped}); err != nil {
			return fmt.Errorf("%w: %v", ErrIO, err)
		}
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("%w: flushing %s: %v", ErrIO, path, err)
	}
	return nil
}

// readCollectionSnapshot loads one collection subdirectory written by
// writeCollectionSnapshot. It reads meta, then codec, then vectors
// (rebuilding the Payload Store), then graph (rebuilding the HNSW
// in-memory structures), per spec.md §6's prescribed order.
func readCollectionSnapshot(name, dir string, logger Logger) (*Collection, error) {
	meta, err := readMeta(filepath.Join(dir, "meta.json"))
	if err != nil {
		return nil, err
	}
	if meta.MetaVersion != metaVersion {
		return nil, fmt.Errorf("%w: meta.json version %d unsupported", ErrCorruptFormat, meta.MetaVersion)
	}

	cfg := CollectionConfig{
		Dim: meta.Dim, Metric: meta.Metric, HNSW: meta.HNSW,
		Quantization: meta.Quantization, EuclideanSqrt: meta.EuclideanSqrt,
		MaxVectors: meta.MaxVectors,
	}

	codec := newCodec(cfg.Quantization, cfg.Metric)
	codecPath := filepath.Join(dir, "codec.bin")
	if _, err := os.Stat(codecPath); err == nil {
		f, err := os.Open(codecPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrIO, codecPath, err)
		}
		defer f.Close()
		if err := codec.Load(f); err != nil {
			return nil, fmt.Errorf("%w: loading codec.bin: %v", ErrCorruptFormat, err)
		}
	}

	payloads := payload.New()
	pointsByNew := make(map[uint32][]float32)

	vectorsPath := filepath.Join(dir, "vectors.bin")
	vf, err := os.Open(vectorsPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrIO, vectorsPath, err)
	}
	defer vf.Close()

	header, err := encoding.ReadVectorsHeader(vf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptFormat, err)
	}
	if int(header.Dim) != cfg.Dim {
		return nil, fmt.Errorf("%w: vectors.bin dim %d disagrees with meta.json dim %d", ErrCorruptFormat, header.Dim, cfg.Dim)
	}

	for i := uint32(0); i < header.Count; i++ {
		rec, err := encoding.ReadVectorRecord(vf)
		if err != nil {
			return nil, fmt.Errorf("%w: reading vector record %d: %v", ErrCorruptFormat, i, err)
		}
		p, err := encoding.DecodePayload(rec.Payload)
		if err != nil {
			return nil, fmt.Errorf("%w: decoding payload for %q: %v", ErrCorruptFormat, rec.ExternalID, err)
		}
		internal, err := payloads.Insert(rec.ExternalID, p)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptFormat, err)
		}
		if internal != i {
			return nil, fmt.Errorf("%w: vectors.bin record %d did not receive sequential internal id", ErrCorruptFormat, i)
		}

		var vec []float32
		if header.CodecTag == encoding.CodecNone {
			vec, err = encoding.DecodeVector(rec.Code)
		} else {
			vec, err = codec.Decode(rec.Code)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: decoding vector %q: %v", ErrCorruptFormat, rec.ExternalID, err)
		}
		pointsByNew[internal] = vec
	}
	if payloads.Count() != int(header.Count) {
		return nil, fmt.Errorf("%w: vectors.bin count %d disagrees with loaded count %d", ErrCorruptFormat, header.Count, payloads.Count())
	}

	graphPath := filepath.Join(dir, "graph.bin")
	gf, err := os.Open(graphPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrIO, graphPath, err)
	}
	defer gf.Close()

	gheader, err := encoding.ReadGraphHeader(gf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptFormat, err)
	}
	if gheader.NodeCount != header.Count {
		return nil, fmt.Errorf("%w: graph.bin node count %d disagrees with vectors.bin count %d", ErrCorruptFormat, gheader.NodeCount, header.Count)
	}

	exported := make([]index.ExportedNode, 0, gheader.NodeCount)
	for i := uint32(0); i < gheader.NodeCount; i++ {
		nodeRec, err := encoding.ReadGraphNode(gf)
		if err != nil {
			return nil, fmt.Errorf("%w: reading graph node %d: %v", ErrCorruptFormat, i, err)
		}
		for _, layerNeighbors := range nodeRec.Neighbors {
			for _, n := range layerNeighbors {
				if n >= header.Count {
					return nil, fmt.Errorf("%w: graph.bin neighbor id %d out of range [0,%d)", ErrCorruptFormat, n, header.Count)
				}
			}
		}
		exported = append(exported, index.ExportedNode{
			Internal: i, Vector: pointsByNew[i], Layer: int(nodeRec.Layer), Neighbors: nodeRec.Neighbors,
		})
	}
	hasEntry := header.Count > 0
	if hasEntry && gheader.EntryPoint >= header.Count {
		return nil, fmt.Errorf("%w: graph.bin entry point %d out of range [0,%d)", ErrCorruptFormat, gheader.EntryPoint, header.Count)
	}

	c := &Collection{
		name:      name,
		cfg:       cfg,
		logger:    logger.With("collection", name),
		codec:     codec,
		payloads:  payloads,
		points:    make(map[uint32]point, len(pointsByNew)),
		createdAt: meta.CreatedAt,
		updatedAt: meta.UpdatedAt,
	}
	for id, vec := range pointsByNew {
		c.points[id] = point{vector: vec}
	}

	hnswCfg := index.Config{M: cfg.HNSW.M, EfConstruction: cfg.HNSW.EfConstruction, Seed: seedOrDefault(cfg)}
	c.graph = index.New(hnswCfg, cfg.Metric, payloads.IsLive)
	c.graph.Rebuild(hnswCfg, cfg.Metric, gheader.EntryPoint, hasEntry, exported, payloads.IsLive)

	return c, nil
}

func readMeta(path string) (collectionMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return collectionMeta{}, fmt.Errorf("%w: %s: %v", ErrIO, path, err)
	}
	var meta collectionMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return collectionMeta{}, fmt.Errorf("%w: parsing meta.json: %v", ErrCorruptFormat, err)
	}
	return meta, nil
}
