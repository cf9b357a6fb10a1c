package loader

import (
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"

	"pdfreader/internal/models"
)

// LoadPDF extracts the text of every page in the document at path and
// returns one PageRecord per page, in page order. sourceID tags each
// record with the owning document's identity.
func LoadPDF(path, sourceID string) ([]models.PageRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat pdf: %w", err)
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("reading pdf: %w", err)
	}

	numPages := reader.NumPage()
	if numPages == 0 {
		return nil, fmt.Errorf("pdf has no pages")
	}

	records := make([]models.PageRecord, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extracting page %d: %w", i, err)
		}
		records = append(records, models.PageRecord{
			Text:      strings.TrimSpace(pageText),
			PageIndex: i - 1,
			SourceID:  sourceID,
		})
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("pdf has no readable pages")
	}
	return records, nil
}

// PageCount returns the number of pages in the document at path.
func PageCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat pdf: %w", err)
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return 0, fmt.Errorf("reading pdf: %w", err)
	}
	return reader.NumPage(), nil
}
