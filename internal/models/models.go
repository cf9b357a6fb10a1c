package models

// PageRecord is one page of extracted text along with its position in
// the source document. PageIndex is 0-based.
type PageRecord struct {
	Text      string `json:"text"`
	PageIndex int    `json:"page_index"`
	SourceID  string `json:"source_id"`
}

// ChatTurn is a completed question/answer exchange.
type ChatTurn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// RetrievalResult is the outcome of one answered question: the
// generated text plus the retrieved pages ordered by descending
// relevance. The first source designates the answer page.
type RetrievalResult struct {
	Answer     string       `json:"answer"`
	AnswerHTML string       `json:"answer_html"`
	Sources    []PageRecord `json:"sources"`
}

// AnswerPage returns the page index of the most relevant source, or 0
// when no sources were retrieved.
func (r RetrievalResult) AnswerPage() int {
	if len(r.Sources) == 0 {
		return 0
	}
	return r.Sources[0].PageIndex
}
