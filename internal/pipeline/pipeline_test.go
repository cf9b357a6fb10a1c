package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"pdfreader/internal/config"
	"pdfreader/internal/conversation"
	"pdfreader/internal/index"
	"pdfreader/internal/models"
	"pdfreader/internal/ratelimit"
	"pdfreader/internal/session"
	"pdfreader/internal/storage"
)

type fakeEmbedder struct {
	vectors map[string][]float32
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 1, 0}, nil
}

type fakeModel struct {
	answer string
	err    error
	calls  int
}

func (f *fakeModel) GenerateContent(_ context.Context, _ []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.answer}}}, nil
}

func (f *fakeModel) Call(_ context.Context, _ string, _ ...llms.CallOption) (string, error) {
	return f.answer, f.err
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Addr:            ":0",
			MaxFileSizeMB:   20,
			CooldownSeconds: 0,
			MaxQueries:      10,
		},
		LLM: config.LLMConfig{Temperature: 0.2, MaxRetries: 0, TimeoutSeconds: 5},
		RAG: config.RAGConfig{RetrievalK: 2, MaxHistoryLength: 20},
		PDF: config.PDFConfig{ContextPagesBefore: 2, ContextPagesAfter: 2, DPI: 150},
	}
}

// newTestPipeline builds a pipeline with a deterministic embedder and
// model, plus a session holding a pre-built 10-page index whose page 6
// matches the query "where is it?".
func newTestPipeline(t *testing.T, cfg *config.Config, model llms.Model) (*Pipeline, *session.Session) {
	t.Helper()

	vectors := map[string][]float32{
		"where is it?": {1, 0, 0},
		"page six":     {1, 0, 0},
	}
	emb := &fakeEmbedder{vectors: vectors}

	records := make([]models.PageRecord, 10)
	for i := range records {
		records[i] = models.PageRecord{Text: fmt.Sprintf("page text %d", i), PageIndex: i, SourceID: "doc-a"}
	}
	records[6].Text = "page six"

	ix := index.New(emb)
	require.NoError(t, ix.Build(context.Background(), records))

	store, err := storage.New(t.TempDir())
	require.NoError(t, err)

	workDir, err := store.CreateWorkDir("test-session")
	require.NoError(t, err)
	pdfPath := filepath.Join(workDir, "doc.pdf")
	require.NoError(t, os.WriteFile(pdfPath, []byte("%PDF-stub"), 0o644))

	sess := &session.Session{
		ID:         "test-session",
		DocumentID: "doc-a",
		Filename:   "doc.pdf",
		PDFPath:    pdfPath,
		WorkDir:    workDir,
		PageCount:  10,
		Index:      ix,
	}

	p := New(cfg, emb, conversation.New(model, cfg), store)
	return p, sess
}

// stubRasterizer writes a fake pdftoppm that produces count blank
// images and returns its path.
func stubRasterizer(t *testing.T, count int) string {
	t.Helper()
	script := filepath.Join(t.TempDir(), "pdftoppm")
	var b strings.Builder
	b.WriteString("#!/bin/sh\nfor last; do :; done\n")
	for i := 1; i <= count; i++ {
		fmt.Fprintf(&b, ": > \"$last-%02d.png\"\n", i)
	}
	require.NoError(t, os.WriteFile(script, []byte(b.String()), 0o755))
	return script
}

func TestAskEmptyQuestion(t *testing.T) {
	p, sess := newTestPipeline(t, testConfig(), &fakeModel{answer: "never"})

	for _, q := range []string{"", "   ", "\n\t"} {
		_, err := p.Ask(context.Background(), sess, q)
		var validationErr *ValidationError
		require.True(t, errors.As(err, &validationErr), "question %q", q)
	}

	// no retrieval, no state change
	assert.Zero(t, sess.QueryCount)
	assert.Empty(t, sess.History)
}

func TestAskWithoutDocument(t *testing.T) {
	p, _ := newTestPipeline(t, testConfig(), &fakeModel{})
	sess := &session.Session{ID: "empty"}

	_, err := p.Ask(context.Background(), sess, "anything")
	assert.ErrorIs(t, err, index.ErrNotInitialized)
}

func TestAskSuccessUpdatesState(t *testing.T) {
	cfg := testConfig()
	model := &fakeModel{answer: "It is on page seven."}
	p, sess := newTestPipeline(t, cfg, model)
	p.renderer.Bin = stubRasterizer(t, 5)

	resp, err := p.Ask(context.Background(), sess, "where is it?")
	require.NoError(t, err)

	assert.Equal(t, "It is on page seven.", resp.Answer)
	assert.Equal(t, 6, resp.AnswerPage)
	assert.Equal(t, 6, sess.AnswerPage)
	require.Len(t, sess.History, 1)
	assert.Equal(t, "where is it?", sess.History[0].Question)
	assert.Equal(t, 1, sess.QueryCount)

	// page 6 of 10 with 2 pages either side: window (4, 8), answer at
	// offset 2 among 5 images
	require.NotNil(t, resp.Pages)
	assert.Nil(t, resp.Fallback)
	assert.Equal(t, 4, resp.Pages.Start)
	assert.Equal(t, 8, resp.Pages.End)
	assert.Equal(t, 10, resp.Pages.TotalPages)
	assert.Equal(t, 2, resp.Pages.AnswerOffset)
	assert.Len(t, resp.Pages.Images, 5)
}

func TestAskRenderFailureFallsBack(t *testing.T) {
	model := &fakeModel{answer: "still answered"}
	p, sess := newTestPipeline(t, testConfig(), model)
	p.renderer.Bin = "pdftoppm-does-not-exist"

	resp, err := p.Ask(context.Background(), sess, "where is it?")
	require.NoError(t, err)

	// answer survives, no partial image display
	assert.Equal(t, "still answered", resp.Answer)
	assert.Nil(t, resp.Pages)
	require.NotNil(t, resp.Fallback)
	assert.Equal(t, "/api/documents/current/file", resp.Fallback.DownloadURL)
}

func TestAskQuota(t *testing.T) {
	cfg := testConfig()
	cfg.Server.MaxQueries = 2
	p, sess := newTestPipeline(t, cfg, &fakeModel{answer: "ok"})
	p.renderer.Bin = stubRasterizer(t, 5)

	for i := 0; i < 2; i++ {
		_, err := p.Ask(context.Background(), sess, "where is it?")
		require.NoError(t, err)
	}

	_, err := p.Ask(context.Background(), sess, "where is it?")
	var denied *ratelimit.DeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, ratelimit.ReasonQuota, denied.Reason)
	assert.Equal(t, 2, sess.QueryCount)
}

func TestAskCooldown(t *testing.T) {
	cfg := testConfig()
	cfg.Server.CooldownSeconds = 2.0
	p, sess := newTestPipeline(t, cfg, &fakeModel{answer: "ok"})
	p.renderer.Bin = stubRasterizer(t, 5)

	now := time.Now()
	p.now = func() time.Time { return now }

	_, err := p.Ask(context.Background(), sess, "where is it?")
	require.NoError(t, err)

	// immediately again: denied with the cooldown reason
	_, err = p.Ask(context.Background(), sess, "where is it?")
	var denied *ratelimit.DeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, ratelimit.ReasonCooldown, denied.Reason)

	p.now = func() time.Time { return now.Add(3 * time.Second) }
	_, err = p.Ask(context.Background(), sess, "where is it?")
	assert.NoError(t, err)
}

func TestAskGenerationFailureStillCountsQuota(t *testing.T) {
	model := &fakeModel{err: errors.New("connection refused")}
	p, sess := newTestPipeline(t, testConfig(), model)

	_, err := p.Ask(context.Background(), sess, "where is it?")
	var genErr *conversation.GenerationError
	require.True(t, errors.As(err, &genErr))

	// the accepted query consumed quota even though generation failed,
	// and history stays unchanged
	assert.Equal(t, 1, sess.QueryCount)
	assert.Empty(t, sess.History)
}

func TestProcessDocumentValidation(t *testing.T) {
	p, sess := newTestPipeline(t, testConfig(), &fakeModel{})
	ctx := context.Background()

	_, err := p.ProcessDocument(ctx, sess, "notes.txt", 100, strings.NewReader("hello"))
	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr))

	_, err = p.ProcessDocument(ctx, sess, "big.pdf", 21*1024*1024, strings.NewReader("x"))
	require.True(t, errors.As(err, &validationErr))

	_, err = p.ProcessDocument(ctx, sess, "fake.pdf", 100, strings.NewReader("not a pdf at all"))
	require.True(t, errors.As(err, &validationErr))

	// failed uploads leave the previous document active
	assert.Equal(t, "doc-a", sess.DocumentID)
	assert.NotNil(t, sess.Index)
}
