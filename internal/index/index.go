package index

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strconv"

	"github.com/philippgille/chromem-go"

	"pdfreader/internal/embedding"
	"pdfreader/internal/models"
)

// ErrNotInitialized is returned when retrieval is attempted before a
// document has been indexed.
var ErrNotInitialized = errors.New("vector index not initialized")

// BuildError wraps a failure to build the index from a document.
type BuildError struct {
	Err error
}

func (e *BuildError) Error() string { return fmt.Sprintf("building index: %v", e.Err) }
func (e *BuildError) Unwrap() error { return e.Err }

// Retriever is the narrow read surface the conversation service
// depends on.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]models.PageRecord, error)
}

// Index is an in-memory nearest-neighbor store over one document's
// pages, backed by chromem-go. It is built once per document and
// replaced wholesale when a new document is processed.
type Index struct {
	embedder   embedding.Embedder
	collection *chromem.Collection
	records    []models.PageRecord
}

const collectionName = "document-pages"

func New(embedder embedding.Embedder) *Index {
	return &Index{embedder: embedder}
}

// Build embeds every record and stores (record, vector) pairs in a
// fresh collection. An empty record set or any embedding failure
// yields a BuildError; a failed build leaves the index uninitialized.
func (ix *Index) Build(ctx context.Context, records []models.PageRecord) error {
	if len(records) == 0 {
		return &BuildError{Err: errors.New("no page records")}
	}

	db := chromem.NewDB()
	collection, err := db.CreateCollection(collectionName, nil, nil)
	if err != nil {
		return &BuildError{Err: err}
	}

	docs := make([]chromem.Document, 0, len(records))
	for i, record := range records {
		vec, err := ix.embedder.EmbedQuery(ctx, record.Text)
		if err != nil {
			return &BuildError{Err: fmt.Errorf("embedding page %d: %w", record.PageIndex, err)}
		}
		docs = append(docs, chromem.Document{
			// ID encodes insertion order for stable tie-breaking.
			ID:      strconv.Itoa(i),
			Content: record.Text,
			Metadata: map[string]string{
				"page":   strconv.Itoa(record.PageIndex),
				"source": record.SourceID,
			},
			Embedding: vec,
		})
	}

	if err := collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return &BuildError{Err: err}
	}

	ix.collection = collection
	ix.records = append([]models.PageRecord(nil), records...)
	return nil
}

// Retrieve embeds the query and returns the min(k, n) closest records
// ordered by descending similarity, ties broken by insertion order.
func (ix *Index) Retrieve(ctx context.Context, query string, k int) ([]models.PageRecord, error) {
	if ix.collection == nil {
		return nil, ErrNotInitialized
	}
	if k < 1 {
		return nil, fmt.Errorf("retrieval k must be >= 1, got %d", k)
	}
	if n := ix.collection.Count(); k > n {
		k = n
	}

	queryVec, err := ix.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	results, err := ix.collection.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: queryVec,
		NResults:       k,
	})
	if err != nil {
		return nil, fmt.Errorf("querying index: %w", err)
	}

	type scored struct {
		pos        int
		similarity float32
	}
	hits := make([]scored, 0, len(results))
	for _, res := range results {
		pos, err := strconv.Atoi(res.ID)
		if err != nil || pos < 0 || pos >= len(ix.records) {
			return nil, fmt.Errorf("unexpected result id %q", res.ID)
		}
		hits = append(hits, scored{pos: pos, similarity: res.Similarity})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].similarity != hits[j].similarity {
			return hits[i].similarity > hits[j].similarity
		}
		return hits[i].pos < hits[j].pos
	})

	records := make([]models.PageRecord, 0, len(hits))
	for _, h := range hits {
		records = append(records, ix.records[h.pos])
	}
	return records, nil
}

// Size reports the number of indexed pages.
func (ix *Index) Size() int {
	if ix.collection == nil {
		return 0
	}
	return ix.collection.Count()
}
