package pipeline

import (
	"database/sql"
	"fmt"
	"os"
	"strconv"

	_ "github.com/mattn/go-sqlite3"
)

// A model pack is a SQLite container for a pipeline, laid out the way an
// MBTiles file holds tiles: a name/value metadata table beside data tables.
var packSchema = []string{
	`CREATE TABLE metadata (name TEXT PRIMARY KEY, value TEXT)`,
	`CREATE TABLE features (
		position INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		column_name TEXT NOT NULL,
		kind TEXT NOT NULL,
		category TEXT,
		center REAL,
		scale REAL,
		background REAL
	)`,
	`CREATE TABLE nodes (
		tree INTEGER NOT NULL,
		node INTEGER NOT NULL,
		feature INTEGER NOT NULL,
		threshold REAL,
		left_child INTEGER,
		right_child INTEGER,
		value REAL,
		cover REAL,
		PRIMARY KEY (tree, node)
	)`,
	`CREATE TABLE coefficients (position INTEGER PRIMARY KEY, weight REAL NOT NULL)`,
}

var requiredTables = []string{"metadata", "features", "nodes", "coefficients"}

// Metadata keys
const (
	metaFormat      = "format"
	metaVersion     = "version"
	metaDescription = "description"
	metaClassifier  = "classifier"
	metaBaseScore   = "base_score"
	metaIntercept   = "intercept"
	metaThreshold   = "threshold"
)

// loadModelPack reads a read-only SQLite model pack into a definition
func loadModelPack(path string) (*Definition, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, corrupt(path, "cannot open model pack", err)
	}
	defer db.Close()

	for _, table := range requiredTables {
		var count int
		err := db.QueryRow("SELECT count(*) FROM sqlite_master WHERE type IN ('table','view') AND name = ?", table).Scan(&count)
		if err != nil {
			return nil, corrupt(path, "not a readable model pack", err)
		}
		if count == 0 {
			return nil, corrupt(path, fmt.Sprintf("missing table %s", table), nil)
		}
	}

	meta, err := readMetadata(db)
	if err != nil {
		return nil, corrupt(path, "cannot read metadata", err)
	}

	def := &Definition{
		Metadata: MetadataDef{
			Format:      meta[metaFormat],
			Version:     meta[metaVersion],
			Description: meta[metaDescription],
		},
		Clf: ClassifierDef{Kind: meta[metaClassifier]},
	}
	if def.Metadata.Format == "" {
		return nil, corrupt(path, "metadata has no format", nil)
	}
	if def.Clf.Kind == "" {
		return nil, corrupt(path, "metadata has no classifier", nil)
	}

	if def.Clf.BaseScore, err = metaFloat(meta, metaBaseScore, 0); err != nil {
		return nil, corrupt(path, "bad base_score", err)
	}
	if def.Clf.Intercept, err = metaFloat(meta, metaIntercept, 0); err != nil {
		return nil, corrupt(path, "bad intercept", err)
	}
	if _, ok := meta[metaThreshold]; ok {
		t, err := metaFloat(meta, metaThreshold, DefaultThreshold)
		if err != nil {
			return nil, corrupt(path, "bad threshold", err)
		}
		def.Clf.Threshold = &t
	}

	if def.Pre.Features, err = readFeatures(db); err != nil {
		return nil, corrupt(path, "cannot read features", err)
	}
	if def.Clf.Trees, err = readTrees(db); err != nil {
		return nil, corrupt(path, "cannot read trees", err)
	}
	if def.Clf.Coefficients, err = readCoefficients(db); err != nil {
		return nil, corrupt(path, "cannot read coefficients", err)
	}

	return def, nil
}

func readMetadata(db *sql.DB) (map[string]string, error) {
	rows, err := db.Query("SELECT name, value FROM metadata")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var key string
		var value sql.NullString
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		meta[key] = value.String
	}
	return meta, rows.Err()
}

func metaFloat(meta map[string]string, key string, fallback float64) (float64, error) {
	v, ok := meta[key]
	if !ok || v == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(v, 64)
}

func readFeatures(db *sql.DB) ([]FeatureDef, error) {
	rows, err := db.Query(`SELECT position, name, column_name, kind, category, center, scale, background
		FROM features ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var features []FeatureDef
	for rows.Next() {
		var (
			pos                       int
			f                         FeatureDef
			category                  sql.NullString
			center, scale, background sql.NullFloat64
		)
		if err := rows.Scan(&pos, &f.Name, &f.Column, &f.Kind, &category, &center, &scale, &background); err != nil {
			return nil, err
		}
		if pos != len(features) {
			return nil, fmt.Errorf("feature positions are not contiguous at %d", pos)
		}
		f.Category = category.String
		f.Center = center.Float64
		f.Scale = scale.Float64
		f.Background = background.Float64
		features = append(features, f)
	}
	return features, rows.Err()
}

func readTrees(db *sql.DB) ([][]NodeDef, error) {
	rows, err := db.Query(`SELECT tree, node, feature, threshold, left_child, right_child, value, cover
		FROM nodes ORDER BY tree, node`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trees [][]NodeDef
	for rows.Next() {
		var (
			tree, node            int
			n                     NodeDef
			threshold, value, cov sql.NullFloat64
			left, right           sql.NullInt64
		)
		if err := rows.Scan(&tree, &node, &n.Feature, &threshold, &left, &right, &value, &cov); err != nil {
			return nil, err
		}
		if tree < 0 || node < 0 {
			return nil, fmt.Errorf("negative node id (%d, %d)", tree, node)
		}
		if tree == len(trees) {
			trees = append(trees, nil)
		}
		if tree != len(trees)-1 {
			return nil, fmt.Errorf("tree ids are not contiguous at %d", tree)
		}
		if node != len(trees[tree]) {
			return nil, fmt.Errorf("tree %d: node ids are not contiguous at %d", tree, node)
		}
		n.Threshold = threshold.Float64
		n.Left = int(left.Int64)
		n.Right = int(right.Int64)
		n.Value = value.Float64
		n.Cover = cov.Float64
		trees[tree] = append(trees[tree], n)
	}
	return trees, rows.Err()
}

func readCoefficients(db *sql.DB) ([]float64, error) {
	rows, err := db.Query("SELECT position, weight FROM coefficients ORDER BY position")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var weights []float64
	for rows.Next() {
		var pos int
		var w float64
		if err := rows.Scan(&pos, &w); err != nil {
			return nil, err
		}
		if pos != len(weights) {
			return nil, fmt.Errorf("coefficient positions are not contiguous at %d", pos)
		}
		weights = append(weights, w)
	}
	return weights, rows.Err()
}

// SaveModelPack writes a definition as a new SQLite model pack.
// An existing file at path is replaced.
func SaveModelPack(path string, def *Definition) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("failed to create model pack: %w", err)
	}
	defer db.Close()

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin model pack transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range packSchema {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	meta := map[string]string{
		metaFormat:      def.Metadata.Format,
		metaVersion:     def.Metadata.Version,
		metaDescription: def.Metadata.Description,
		metaClassifier:  def.Clf.Kind,
		metaBaseScore:   strconv.FormatFloat(def.Clf.BaseScore, 'g', -1, 64),
		metaIntercept:   strconv.FormatFloat(def.Clf.Intercept, 'g', -1, 64),
	}
	if def.Clf.Threshold != nil {
		meta[metaThreshold] = strconv.FormatFloat(*def.Clf.Threshold, 'g', -1, 64)
	}
	for k, v := range meta {
		if _, err := tx.Exec("INSERT INTO metadata (name, value) VALUES (?, ?)", k, v); err != nil {
			return fmt.Errorf("failed to write metadata %s: %w", k, err)
		}
	}

	for i, f := range def.Pre.Features {
		_, err := tx.Exec(`INSERT INTO features (position, name, column_name, kind, category, center, scale, background)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			i, f.Name, f.Column, f.Kind, f.Category, f.Center, f.Scale, f.Background)
		if err != nil {
			return fmt.Errorf("failed to write feature %s: %w", f.Name, err)
		}
	}

	for ti, tree := range def.Clf.Trees {
		for ni, n := range tree {
			_, err := tx.Exec(`INSERT INTO nodes (tree, node, feature, threshold, left_child, right_child, value, cover)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				ti, ni, n.Feature, n.Threshold, n.Left, n.Right, n.Value, n.Cover)
			if err != nil {
				return fmt.Errorf("failed to write tree %d node %d: %w", ti, ni, err)
			}
		}
	}

	for i, w := range def.Clf.Coefficients {
		if _, err := tx.Exec("INSERT INTO coefficients (position, weight) VALUES (?, ?)", i, w); err != nil {
			return fmt.Errorf("failed to write coefficient %d: %w", i, err)
		}
	}

	return tx.Commit()
}
