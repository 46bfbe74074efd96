// Command vectorcore is a thin CLI demonstration harness over the
// vectorcore engine — not a transport. It opens (or initializes) a
// snapshot directory on every invocation, performs one operation, and
// snapshots back to disk if the operation mutated state, the same
// open/operate/close-per-invocation shape the teacher's sqvect CLI uses
// around its SQLite file.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	vectorcore "github.com/liliang-cn/vectorcore"
)

var (
	dataDir  string
	logLevel string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "vectorcore",
	Short: "CLI for the vectorcore engine",
	Long:  `A command-line demonstration harness driving the vectorcore search engine: create collections, insert vectors, search, and manage snapshots.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "./vectorcore-data", "snapshot directory the CLI loads from and saves to")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug | info | warn | error (default: silent)")

	rootCmd.AddCommand(createCollectionCmd, listCollectionsCmd, deleteCollectionCmd, insertCmd, searchCmd, statsCmd, snapshotCmd, restoreCmd)

	createCollectionCmd.Flags().Int("dim", 0, "vector dimension (required)")
	createCollectionCmd.Flags().String("metric", "cosine", "cosine | euclidean | dot")
	createCollectionCmd.Flags().Int("m", 16, "HNSW M (neighbor degree cap)")
	createCollectionCmd.Flags().Int("ef-construction", 200, "HNSW construction beam width")
	createCollectionCmd.Flags().Int("ef-search", 50, "HNSW default search beam width")
	createCollectionCmd.Flags().String("quantization", "none", "none | scalar | product | binary")
	createCollectionCmd.Flags().Int("max-vectors", 0, "hard cap on live vectors, 0 = unbounded")
	_ = createCollectionCmd.MarkFlagRequired("dim")

	insertCmd.Flags().String("file", "", "JSON file: array of {id, vector, payload?} (required)")
	_ = insertCmd.MarkFlagRequired("file")

	searchCmd.Flags().String("vector", "", "comma-separated query vector (required)")
	searchCmd.Flags().Int("k", 10, "number of results")
	searchCmd.Flags().Int("ef", 0, "search beam width override (0 = collection default)")
	searchCmd.Flags().String("filter-field", "", "payload dot-path for an equality filter")
	searchCmd.Flags().String("filter-value", "", "value the filter field must equal")
	_ = searchCmd.MarkFlagRequired("vector")
}

func openStore() (*vectorcore.Store, error) {
	logger := vectorcore.NopLogger()
	if logLevel != "" {
		level, err := vectorcore.ParseLogLevel(logLevel)
		if err != nil {
			return nil, err
		}
		logger = vectorcore.NewStdLogger(level)
	}
	store := vectorcore.NewStore(logger)
	if _, err := os.Stat(dataDir); err == nil {
		if err := store.Restore(dataDir); err != nil {
			return nil, fmt.Errorf("restoring %s: %w", dataDir, err)
		}
	}
	return store, nil
}

func saveStore(store *vectorcore.Store) error {
	return store.SnapshotAll(dataDir)
}

var createCollectionCmd = &cobra.Command{
	Use:   "create-collection <name>",
	Short: "Create a new collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dim, _ := cmd.Flags().GetInt("dim")
		metricStr, _ := cmd.Flags().GetString("metric")
		m, _ := cmd.Flags().GetInt("m")
		efc, _ := cmd.Flags().GetInt("ef-construction")
		efs, _ := cmd.Flags().GetInt("ef-search")
		quantStr, _ := cmd.Flags().GetString("quantization")
		maxVectors, _ := cmd.Flags().GetInt("max-vectors")

		metric, err := parseMetric(metricStr)
		if err != nil {
			return err
		}
		quant, err := parseQuantization(quantStr)
		if err != nil {
			return err
		}

		cfg := vectorcore.DefaultCollectionConfig(dim)
		cfg.Metric = metric
		cfg.HNSW = vectorcore.HNSWConfig{M: m, EfConstruction: efc, EfSearch: efs, Seed: 1}
		cfg.Quantization.Mode = quant
		cfg.MaxVectors = maxVectors

		store, err := openStore()
		if err != nil {
			return err
		}
		if err := store.CreateCollection(args[0], cfg); err != nil {
			return err
		}
		if err := saveStore(store); err != nil {
			return err
		}
		fmt.Printf("collection %q created (dim=%d, metric=%s)\n", args[0], dim, metric)
		return nil
	},
}

var listCollectionsCmd = &cobra.Command{
	Use:   "list",
	Short: "List collections",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		for _, name := range store.ListCollections() {
			fmt.Println(name)
		}
		return nil
	},
}

var deleteCollectionCmd = &cobra.Command{
	Use:   "delete-collection <name>",
	Short: "Delete a collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		if err := store.DeleteCollection(args[0]); err != nil {
			return err
		}
		if err := saveStore(store); err != nil {
			return err
		}
		fmt.Printf("collection %q deleted\n", args[0])
		return nil
	},
}

type insertRecord struct {
	ID      string                 `json:"id"`
	Vector  []float32              `json:"vector"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

var insertCmd = &cobra.Command{
	Use:   "insert <collection>",
	Short: "Insert vectors from a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("reading %s: %w", file, err)
		}
		var records []insertRecord
		if err := json.Unmarshal(data, &records); err != nil {
			return fmt.Errorf("parsing %s: %w", file, err)
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		coll, err := store.GetCollection(args[0])
		if err != nil {
			return err
		}

		inputs := make([]vectorcore.VectorInput, len(records))
		for i, r := range records {
			inputs[i] = vectorcore.VectorInput{ID: r.ID, Vector: r.Vector, Payload: r.Payload}
		}
		result, err := coll.Insert(inputs)
		if err != nil {
			return err
		}
		if err := saveStore(store); err != nil {
			return err
		}

		fmt.Printf("inserted %s vectors", humanize.Comma(int64(result.Inserted)))
		if len(result.Failed) > 0 {
			fmt.Printf(", %d failed:\n", len(result.Failed))
			for _, f := range result.Failed {
				fmt.Printf("  %s: %v\n", f.ID, f.Reason)
			}
		} else {
			fmt.Println()
		}
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <collection>",
	Short: "Search a collection for nearest neighbors",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vectorStr, _ := cmd.Flags().GetString("vector")
		k, _ := cmd.Flags().GetInt("k")
		ef, _ := cmd.Flags().GetInt("ef")
		filterField, _ := cmd.Flags().GetString("filter-field")
		filterValue, _ := cmd.Flags().GetString("filter-value")

		query, err := parseVector(vectorStr)
		if err != nil {
			return err
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		coll, err := store.GetCollection(args[0])
		if err != nil {
			return err
		}

		var filter *vectorcore.Expression
		if filterField != "" {
			filter = vectorcore.EqExpr(filterField, filterValue)
		}

		results, err := coll.Search(query, k, ef, filter)
		if err != nil {
			return err
		}
		for _, r := range results {
			payloadJSON, _ := json.Marshal(r.Payload)
			fmt.Printf("%s\t%.6f\t%s\n", r.ID, r.Score, payloadJSON)
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats <collection>",
	Short: "Show collection statistics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		coll, err := store.GetCollection(args[0])
		if err != nil {
			return err
		}
		s := coll.Stats()
		fmt.Printf("vectors:    %s\n", humanize.Comma(int64(s.VectorCount)))
		fmt.Printf("tombstones: %s\n", humanize.Comma(int64(s.TombstoneCount)))
		fmt.Printf("max layer:  %d\n", s.MaxLayer)
		fmt.Printf("avg degree: %.2f\n", s.AvgDegree)
		fmt.Printf("trained:    %v\n", s.Trained)
		fmt.Printf("updated:    %s\n", s.UpdatedAt.Format("2006-01-02 15:04:05"))
		return nil
	},
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Write every collection to --data-dir",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		if err := saveStore(store); err != nil {
			return err
		}
		fmt.Printf("snapshot written to %s\n", dataDir)
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Validate that --data-dir loads cleanly",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		fmt.Printf("restored %d collection(s) from %s\n", len(store.ListCollections()), dataDir)
		return nil
	},
}

func parseMetric(s string) (vectorcore.Metric, error) {
	switch strings.ToLower(s) {
	case "cosine":
		return vectorcore.Cosine, nil
	case "euclidean":
		return vectorcore.Euclidean, nil
	case "dot", "dotproduct", "dot_product":
		return vectorcore.DotProduct, nil
	default:
		return 0, fmt.Errorf("unknown metric %q", s)
	}
}

func parseQuantization(s string) (vectorcore.QuantizationMode, error) {
	switch strings.ToLower(s) {
	case "none", "":
		return vectorcore.QuantizationNone, nil
	case "scalar", "sq8":
		return vectorcore.QuantizationScalar, nil
	case "product", "pq":
		return vectorcore.QuantizationProduct, nil
	case "binary":
		return vectorcore.QuantizationBinary, nil
	default:
		return 0, fmt.Errorf("unknown quantization mode %q", s)
	}
}

func parseVector(s string) ([]float32, error) {
	parts := strings.Split(s, ",")
	out := make([]float32, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vector component %q: %w", p, err)
		}
		out[i] = float32(v)
	}
	return out, nil
}
