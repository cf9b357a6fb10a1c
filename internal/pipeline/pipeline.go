package pipeline

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"pdfreader/internal/config"
	"pdfreader/internal/conversation"
	"pdfreader/internal/embedding"
	"pdfreader/internal/index"
	"pdfreader/internal/loader"
	"pdfreader/internal/models"
	"pdfreader/internal/ratelimit"
	"pdfreader/internal/render"
	"pdfreader/internal/session"
	"pdfreader/internal/storage"
)

// ValidationError rejects bad input before any state changes or
// external calls happen. Surfaced to the user as a warning.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Pipeline wires the components together: document processing builds a
// fresh index per upload, and each question flows rate limiter →
// retrieval → generation → history → page window → rasterization.
type Pipeline struct {
	cfg      *config.Config
	embedder embedding.Embedder
	conv     *conversation.Service
	limiter  *ratelimit.Limiter
	renderer *render.Renderer
	store    *storage.Store

	// now is swappable in tests
	now func() time.Time
}

func New(cfg *config.Config, embedder embedding.Embedder, conv *conversation.Service, store *storage.Store) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		embedder: embedder,
		conv:     conv,
		limiter:  ratelimit.New(cfg.Cooldown(), cfg.Server.MaxQueries),
		renderer: render.New(cfg.PDF.DPI),
		store:    store,
		now:      time.Now,
	}
}

// ProcessDocument validates and ingests an uploaded PDF: save to a
// fresh work dir, extract page text, build the vector index, then swap
// the session's active document. On any failure the session keeps its
// previous document and conversation.
func (p *Pipeline) ProcessDocument(ctx context.Context, sess *session.Session, filename string, size int64, data io.Reader) (*models.UploadResponse, error) {
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return nil, &ValidationError{Msg: "only PDF files are supported"}
	}
	if size > p.cfg.MaxFileSize() {
		return nil, &ValidationError{Msg: "file exceeds the maximum upload size"}
	}

	workDir, err := p.store.CreateWorkDir(sess.ID)
	if err != nil {
		return nil, err
	}
	pdfPath, err := p.store.SaveUpload(workDir, filename, data)
	if err != nil {
		p.store.Cleanup(workDir)
		return nil, err
	}

	docID := uuid.NewString()
	records, err := loader.LoadPDF(pdfPath, docID)
	if err != nil {
		p.store.Cleanup(workDir)
		return nil, &ValidationError{Msg: "file is not a readable PDF"}
	}
	pageCount, err := loader.PageCount(pdfPath)
	if err != nil {
		p.store.Cleanup(workDir)
		return nil, &ValidationError{Msg: "file is not a readable PDF"}
	}

	ix := index.New(p.embedder)
	if err := ix.Build(ctx, records); err != nil {
		p.store.Cleanup(workDir)
		return nil, err
	}

	// the new index is live; discard the previous document's artifacts
	p.store.Cleanup(sess.WorkDir)
	sess.ResetDocument(docID, filename, pdfPath, workDir, pageCount, ix)

	log.Info().Str("session", sess.ID).Str("document", docID).Int("pages", pageCount).Msg("document processed")
	return &models.UploadResponse{
		DocumentID: docID,
		Filename:   filename,
		PageCount:  pageCount,
	}, nil
}

// Ask answers one question against the session's active document. The
// query is counted against the quota once accepted, before generation,
// so a failed generation still consumes quota; history is only updated
// on success.
func (p *Pipeline) Ask(ctx context.Context, sess *session.Session, question string) (*models.AskResponse, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, &ValidationError{Msg: "question must not be empty"}
	}
	if sess.Index == nil {
		return nil, index.ErrNotInitialized
	}

	now := p.now()
	if err := p.limiter.Check(sess.QueryCount, sess.LastQueryAt, now); err != nil {
		return nil, err
	}
	sess.RecordQuery(now)

	result, err := p.conv.Answer(ctx, question, sess.History, sess.Index)
	if err != nil {
		return nil, err
	}

	sess.AppendTurn(models.ChatTurn{Question: question, Answer: result.Answer}, p.cfg.RAG.MaxHistoryLength)
	sess.AnswerPage = result.AnswerPage()

	resp := &models.AskResponse{
		Answer:     result.Answer,
		AnswerHTML: result.AnswerHTML,
		AnswerPage: sess.AnswerPage,
		Sources:    result.Sources,
	}

	start, end := render.Window(sess.AnswerPage, sess.PageCount, p.cfg.PDF.ContextPagesBefore, p.cfg.PDF.ContextPagesAfter)
	images, renderErr := p.renderer.Render(ctx, sess.PDFPath, start, end)
	if renderErr != nil {
		log.Error().Err(renderErr).Str("session", sess.ID).Msg("page rendering failed, offering raw download")
		resp.Fallback = &models.Fallback{
			Reason:      "page rendering failed",
			DownloadURL: "/api/documents/current/file",
		}
		return resp, nil
	}

	rel := make([]string, 0, len(images))
	for _, img := range images {
		r, err := filepath.Rel(p.store.Root(), img)
		if err != nil {
			r = filepath.Base(img)
		}
		rel = append(rel, filepath.ToSlash(r))
	}
	resp.Pages = &models.PageWindow{
		Start:        start,
		End:          end,
		TotalPages:   sess.PageCount,
		AnswerOffset: render.AnswerIndexWithinWindow(sess.AnswerPage, start),
		Images:       rel,
	}
	return resp, nil
}
