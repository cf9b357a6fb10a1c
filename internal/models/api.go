package models

// AskRequest is the question payload for POST /api/ask.
type AskRequest struct {
	Question string `json:"question" validate:"required"`
}

// PageWindow describes the rendered context window around the answer
// page. Start and End are 0-based inclusive page indexes; AnswerOffset
// is the answer page's position within Images.
type PageWindow struct {
	Start        int      `json:"start"`
	End          int      `json:"end"`
	TotalPages   int      `json:"total_pages"`
	AnswerOffset int      `json:"answer_offset"`
	Images       []string `json:"images"`
}

// Fallback is returned instead of a PageWindow when rasterization
// fails; the client should offer the raw document at DownloadURL.
type Fallback struct {
	Reason      string `json:"reason"`
	DownloadURL string `json:"download_url"`
}

// AskResponse is the answer payload for POST /api/ask.
type AskResponse struct {
	Answer     string       `json:"answer"`
	AnswerHTML string       `json:"answer_html"`
	AnswerPage int          `json:"answer_page"`
	Sources    []PageRecord `json:"sources"`
	Pages      *PageWindow  `json:"pages,omitempty"`
	Fallback   *Fallback    `json:"fallback,omitempty"`
}

// UploadResponse acknowledges a processed document.
type UploadResponse struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	PageCount  int    `json:"page_count"`
}

// SessionResponse is a snapshot of the caller's session.
type SessionResponse struct {
	DocumentID       string     `json:"document_id,omitempty"`
	Filename         string     `json:"filename,omitempty"`
	PageCount        int        `json:"page_count"`
	AnswerPage       int        `json:"answer_page"`
	History          []ChatTurn `json:"history"`
	QueriesRemaining int        `json:"queries_remaining"`
}
