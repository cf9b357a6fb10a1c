package server

import (
	"github.com/gofiber/fiber/v2"

	"pdfreader/internal/models"
	"pdfreader/internal/pipeline"
)

// handleUpload processes a multipart PDF upload and rebuilds the
// session's index around it.
func (s *Server) handleUpload(c *fiber.Ctx) error {
	sess := currentSession(c)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return &pipeline.ValidationError{Msg: "missing file field in upload"}
	}

	f, err := fileHeader.Open()
	if err != nil {
		return &pipeline.ValidationError{Msg: "could not read uploaded file"}
	}
	defer f.Close()

	resp, err := s.pipe.ProcessDocument(c.Context(), sess, fileHeader.Filename, fileHeader.Size, f)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

// handleAsk answers one question against the active document.
func (s *Server) handleAsk(c *fiber.Ctx) error {
	sess := currentSession(c)

	var req models.AskRequest
	if err := c.BodyParser(&req); err != nil {
		return &pipeline.ValidationError{Msg: "invalid request body"}
	}
	if err := s.validate.Struct(&req); err != nil {
		return &pipeline.ValidationError{Msg: "question must not be empty"}
	}

	resp, err := s.pipe.Ask(c.Context(), sess, req.Question)
	if err != nil {
		return err
	}
	if resp.Pages != nil {
		for i, img := range resp.Pages.Images {
			resp.Pages.Images[i] = "/files/" + img
		}
	}
	return c.JSON(resp)
}

// handleSession returns a snapshot of the caller's session.
func (s *Server) handleSession(c *fiber.Ctx) error {
	sess := currentSession(c)

	remaining := s.cfg.Server.MaxQueries - sess.QueryCount
	if remaining < 0 {
		remaining = 0
	}
	history := sess.History
	if history == nil {
		history = []models.ChatTurn{}
	}
	return c.JSON(models.SessionResponse{
		DocumentID:       sess.DocumentID,
		Filename:         sess.Filename,
		PageCount:        sess.PageCount,
		AnswerPage:       sess.AnswerPage,
		History:          history,
		QueriesRemaining: remaining,
	})
}

// handleDownload serves the raw uploaded PDF, the fallback when page
// rendering fails.
func (s *Server) handleDownload(c *fiber.Ctx) error {
	sess := currentSession(c)
	if sess.PDFPath == "" {
		return fiber.NewError(fiber.StatusNotFound, "no document has been uploaded")
	}
	return c.Download(sess.PDFPath, sess.Filename)
}
