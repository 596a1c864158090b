// Package retriever orchestrates the retrieval pipeline: chunking and
// embedding documents into the vector index on the ingestion path, and
// turning queries into ranked, formatted context on the query path.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/sahayak-ai/sahayak/internal/chunker"
	"github.com/sahayak-ai/sahayak/internal/index"
)

// NoContextFound is returned by ContextString when the search legitimately
// matched nothing. Callers must treat it as "low confidence, no grounding",
// not as an error — retrieval failures surface as errors instead, so the two
// are never conflated.
const NoContextFound = "No relevant curriculum content found."

// DefaultBatchSize bounds how many chunks are embedded and inserted per
// batch during ingestion, keeping peak memory independent of corpus size.
const DefaultBatchSize = 50

// DefaultTopK is the number of results returned when the caller does not ask
// for a specific count.
const DefaultTopK = 5

// Validation errors for ingestion metadata. Rejected before any side effect.
var (
	ErrMissingSourceID = errors.New("metadata missing source_id")
	ErrMissingSubject  = errors.New("metadata missing subject")
	ErrMissingDocType  = errors.New("metadata missing doc_type")
	ErrInvalidGrade    = errors.New("metadata grade must be positive")
	ErrReservedKey     = errors.New("metadata extra field uses a reserved key")
)

// reservedKeys are metadata keys owned by the pipeline itself.
var reservedKeys = map[string]struct{}{
	"source_id":   {},
	"grade":       {},
	"subject":     {},
	"chapter":     {},
	"doc_type":    {},
	"chunk_index": {},
	"start_char":  {},
	"end_char":    {},
}

// Metadata describes a source document at ingestion time. Required fields
// are validated up front rather than trusted at query time; Extra carries
// optional attributes.
//
// All string values are stored lower-cased and trimmed, and queries are
// normalized the same way, so filters never miss on formatting differences.
// The canonical document-type key is doc_type everywhere.
type Metadata struct {
	SourceID string
	Grade    int
	Subject  string
	Chapter  string
	DocType  string
	Extra    map[string]string
}

func (m Metadata) validate() error {
	if strings.TrimSpace(m.SourceID) == "" {
		return ErrMissingSourceID
	}
	if m.Grade <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidGrade, m.Grade)
	}
	if strings.TrimSpace(m.Subject) == "" {
		return ErrMissingSubject
	}
	if strings.TrimSpace(m.DocType) == "" {
		return ErrMissingDocType
	}
	for k := range m.Extra {
		if _, reserved := reservedKeys[normalize(k)]; reserved {
			return fmt.Errorf("%w: %q", ErrReservedKey, k)
		}
	}
	return nil
}

// flatten produces the normalized string metadata attached to every chunk.
func (m Metadata) flatten() map[string]string {
	md := make(map[string]string, len(m.Extra)+5)
	for k, v := range m.Extra {
		md[normalize(k)] = normalize(v)
	}
	md["source_id"] = normalize(m.SourceID)
	md["grade"] = strconv.Itoa(m.Grade)
	md["subject"] = normalize(m.Subject)
	md["doc_type"] = normalize(m.DocType)
	if chapter := normalize(m.Chapter); chapter != "" {
		md["chapter"] = chapter
	}
	return md
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Embedder converts texts to vectors. Satisfied by *embedding.Client.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Index is the vector index surface the retriever needs. Satisfied by
// *index.Store.
type Index interface {
	Insert(ctx context.Context, ids []string, vectors [][]float32, documents []string, metadatas []map[string]string) error
	Search(ctx context.Context, queryVector []float32, topK int, filters map[string]string) (index.SearchResult, error)
	Count(ctx context.Context) (int, error)
}

// Service wires the chunker, embedding client and vector index together.
type Service struct {
	chunker   *chunker.Chunker
	embedder  Embedder
	index     Index
	batchSize int
	logger    *slog.Logger
}

// New creates a retrieval Service. batchSize <= 0 selects DefaultBatchSize.
func New(ch *chunker.Chunker, embedder Embedder, idx Index, batchSize int, logger *slog.Logger) *Service {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		chunker:   ch,
		embedder:  embedder,
		index:     idx,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Ingest chunks text, embeds the chunks in bounded batches and inserts each
// batch into the index before embedding the next, so peak memory does not
// grow with document size.
//
// Batches are the unit of atomicity: if a later batch fails, the batches
// already inserted stay committed (at-least-once semantics). Re-running
// Ingest for a source that partially succeeded creates duplicate records
// unless the caller clears or deduplicates first.
func (s *Service) Ingest(ctx context.Context, text string, meta Metadata) error {
	if err := meta.validate(); err != nil {
		return err
	}

	chunks := s.chunker.Split(text, meta.flatten())
	if len(chunks) == 0 {
		s.logger.Info("nothing to ingest", "source_id", meta.SourceID)
		return nil
	}

	// Ids continue the current sequence; uniqueness holds because ingestion
	// is single-writer.
	base, err := s.index.Count(ctx)
	if err != nil {
		return fmt.Errorf("reading index count: %w", err)
	}

	total := len(chunks)
	s.logger.Info("ingesting document",
		"source_id", meta.SourceID,
		"chunks", total,
		"batch_size", s.batchSize)

	for start := 0; start < total; start += s.batchSize {
		end := min(start+s.batchSize, total)
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}

		vectors, err := s.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embedding batch at chunk %d: %w", start, err)
		}

		ids := make([]string, len(batch))
		documents := make([]string, len(batch))
		metadatas := make([]map[string]string, len(batch))
		for i, c := range batch {
			ids[i] = "chunk_" + strconv.Itoa(base+start+i)
			documents[i] = c.Content
			metadatas[i] = c.Metadata
		}

		if err := s.index.Insert(ctx, ids, vectors, documents, metadatas); err != nil {
			return fmt.Errorf("inserting batch at chunk %d: %w", start, err)
		}

		s.logger.Debug("batch ingested", "from", start, "to", end, "total", total)
	}

	s.logger.Info("ingestion complete", "source_id", meta.SourceID, "chunks", total)
	return nil
}

// Retrieve embeds the query and searches the index under the given options.
// Errors from the embedding client or the index propagate with their cause
// preserved; an empty result is returned only when the search genuinely
// found nothing.
func (s *Service) Retrieve(ctx context.Context, query string, opts ...SearchOption) (index.SearchResult, error) {
	cfg := buildSearchConfig(opts)

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return index.SearchResult{}, fmt.Errorf("embedding query: %w", err)
	}

	result, err := s.index.Search(ctx, vectors[0], cfg.topK, cfg.filters)
	if err != nil {
		return index.SearchResult{}, fmt.Errorf("searching index: %w", err)
	}

	s.logger.Debug("retrieved documents",
		"query_length", len(query),
		"results", len(result.Documents),
		"filters", cfg.filters)
	return result, nil
}

// ContextString retrieves and formats results as numbered, source-attributed
// blocks ready for prompt assembly. Returns NoContextFound when the search
// matched nothing.
func (s *Service) ContextString(ctx context.Context, query string, opts ...SearchOption) (string, error) {
	result, err := s.Retrieve(ctx, query, opts...)
	if err != nil {
		return "", err
	}

	if len(result.Documents) == 0 {
		s.logger.Warn("no documents found for query", "query_length", len(query))
		return NoContextFound, nil
	}

	var b strings.Builder
	for i, doc := range result.Documents {
		meta := result.Metadatas[i]
		grade := meta["grade"]
		if grade == "" {
			grade = "?"
		}
		subject := meta["subject"]
		if subject == "" {
			subject = "?"
		}
		fmt.Fprintf(&b, "[Source %d: Grade %s %s]\n%s\n", i+1, grade, titleCase(subject), doc)
		if i < len(result.Documents)-1 {
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}

// titleCase upper-cases the first letter of each space-separated word.
// Metadata is stored lower-cased; this is display formatting only.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
