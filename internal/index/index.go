// Package index implements the persistent vector index: (id, vector,
// document, metadata) records in an embedded SQLite database, with exact
// nearest-neighbor search under conjunctive metadata filters.
//
// The distance metric is cosine distance (1 − cosine similarity) and is held
// fixed. Ranking is a brute-force scan, which is exact and comfortably fast
// at curriculum-corpus scale (tens of thousands of chunks).
//
// The index is designed for single-writer ingestion and multi-reader query
// traffic; record ids are assigned by the caller.
package index

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/sahayak-ai/sahayak/internal/database"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SearchResult holds ranked search output. The three slices are positionally
// aligned and ordered by ascending distance (most relevant first). An empty
// result has three empty slices, never nil maps inside.
type SearchResult struct {
	Documents []string            `json:"documents"`
	Metadatas []map[string]string `json:"metadatas"`
	Distances []float64           `json:"distances"`
}

// Stats is an aggregate view of the index for operational visibility.
type Stats struct {
	TotalDocuments int      `json:"total_documents"`
	Grades         []string `json:"grades"`
	Subjects       []string `json:"subjects"`
	DocTypes       []string `json:"doc_types"`
}

// Store is the SQLite-backed vector index. It is safe for concurrent readers;
// writers are expected to be externally serialized (one ingesting process).
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the index database at dbPath and applies schema
// migrations. The database survives process restarts and reopening an
// existing file is always safe.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := database.Open(dbPath)
	if err != nil {
		return nil, storageErr("open", err)
	}
	if err := database.Migrate(db, migrationsFS, "migrations"); err != nil {
		_ = db.Close()
		return nil, storageErr("migrate", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert appends a batch of records in a single transaction. The four lists
// must have equal length or the call fails with ErrBatchMismatch and no
// partial effect. Ids are assigned by the caller and must be unique within
// the index; vectors and documents are never mutated after insertion.
func (s *Store) Insert(ctx context.Context, ids []string, vectors [][]float32, documents []string, metadatas []map[string]string) error {
	n := len(ids)
	if len(vectors) != n || len(documents) != n || len(metadatas) != n {
		return fmt.Errorf("%w: ids=%d vectors=%d documents=%d metadatas=%d",
			ErrBatchMismatch, n, len(vectors), len(documents), len(metadatas))
	}
	if n == 0 {
		return nil
	}

	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("%w: vector %d has dimension %d, batch dimension is %d",
				ErrBatchMismatch, i, len(v), dim)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO chunks (id, document, embedding, metadata) VALUES (?, ?, ?, ?)")
	if err != nil {
		return storageErr("prepare", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	for i := range ids {
		md, err := json.Marshal(metadatas[i])
		if err != nil {
			return fmt.Errorf("failed to marshal metadata for %q: %w", ids[i], err)
		}
		if _, err := stmt.ExecContext(ctx, ids[i], documents[i], encodeVector(vectors[i]), md); err != nil {
			return storageErr("insert", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit", err)
	}

	s.logger.Debug("inserted batch", "records", n, "dimension", dim)
	return nil
}

// Search returns up to topK records nearest to queryVector by cosine
// distance, restricted to records whose metadata matches every key/value
// pair in filters. Filter keys absent from a record's metadata simply fail
// to match — an unknown key yields zero results, not an error. If fewer than
// topK records satisfy the filter, however many exist are returned.
func (s *Store) Search(ctx context.Context, queryVector []float32, topK int, filters map[string]string) (SearchResult, error) {
	empty := SearchResult{
		Documents: []string{},
		Metadatas: []map[string]string{},
		Distances: []float64{},
	}
	if topK <= 0 {
		return empty, nil
	}

	rows, err := s.db.QueryContext(ctx, "SELECT id, document, embedding, metadata FROM chunks")
	if err != nil {
		return empty, storageErr("search", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	type scored struct {
		document string
		metadata map[string]string
		distance float64
	}
	var matches []scored

	for rows.Next() {
		var (
			id       string
			document string
			blob     []byte
			mdJSON   []byte
		)
		if err := rows.Scan(&id, &document, &blob, &mdJSON); err != nil {
			return empty, storageErr("scan", err)
		}

		metadata := make(map[string]string)
		if err := json.Unmarshal(mdJSON, &metadata); err != nil {
			s.logger.Warn("failed to parse metadata, skipping record", "id", id, "error", err)
			continue
		}

		if !matchesFilters(metadata, filters) {
			continue
		}

		vec, err := decodeVector(blob)
		if err != nil {
			return empty, storageErr("decode", fmt.Errorf("record %q: %w", id, err))
		}
		if len(vec) != len(queryVector) {
			return empty, storageErr("search",
				fmt.Errorf("record %q has dimension %d, query has %d", id, len(vec), len(queryVector)))
		}

		matches = append(matches, scored{
			document: document,
			metadata: metadata,
			distance: cosineDistance(queryVector, vec),
		})
	}
	if err := rows.Err(); err != nil {
		return empty, storageErr("search", err)
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].distance < matches[j].distance
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}

	result := empty
	for _, m := range matches {
		result.Documents = append(result.Documents, m.document)
		result.Metadatas = append(result.Metadatas, m.metadata)
		result.Distances = append(result.Distances, m.distance)
	}
	return result, nil
}

// matchesFilters applies conjunctive equality: every filter key must be
// present in metadata with exactly the filter value.
func matchesFilters(metadata, filters map[string]string) bool {
	for k, want := range filters {
		if got, ok := metadata[k]; !ok || got != want {
			return false
		}
	}
	return true
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&count); err != nil {
		return 0, storageErr("count", err)
	}
	return count, nil
}

// DeleteAll removes every record. A subsequent Search on the emptied index
// returns three empty lists, not an error.
func (s *Store) DeleteAll(ctx context.Context) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM chunks")
	if err != nil {
		return storageErr("delete_all", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		s.logger.Info("deleted all records", "count", n)
	}
	return nil
}

// Stats reports the total record count and the distinct values observed for
// the designated metadata keys. Operational visibility only.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{Grades: []string{}, Subjects: []string{}, DocTypes: []string{}}

	rows, err := s.db.QueryContext(ctx, "SELECT metadata FROM chunks")
	if err != nil {
		return stats, storageErr("stats", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	grades := make(map[string]struct{})
	subjects := make(map[string]struct{})
	docTypes := make(map[string]struct{})

	for rows.Next() {
		var mdJSON []byte
		if err := rows.Scan(&mdJSON); err != nil {
			return stats, storageErr("scan", err)
		}
		stats.TotalDocuments++

		var metadata map[string]string
		if err := json.Unmarshal(mdJSON, &metadata); err != nil {
			continue
		}
		if v, ok := metadata["grade"]; ok {
			grades[v] = struct{}{}
		}
		if v, ok := metadata["subject"]; ok {
			subjects[v] = struct{}{}
		}
		if v, ok := metadata["doc_type"]; ok {
			docTypes[v] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return stats, storageErr("stats", err)
	}

	stats.Grades = sortedKeys(grades)
	stats.Subjects = sortedKeys(subjects)
	stats.DocTypes = sortedKeys(docTypes)
	return stats, nil
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
