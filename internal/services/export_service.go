package services

import (
	"bytes"
	"strings"

	"vidscribe_go_backend/internal/models"

	"github.com/jung-kurt/gofpdf"
)

// RenderSummaryPDF renders a completed summary as a downloadable PDF.
// Markdown markup is flattened; faithful rendering is the web client's
// job, this export is a portable copy.
func RenderSummaryPDF(summary *models.Summary) ([]byte, error) {
	doc := gofpdf.New("P", "mm", "A4", "")
	doc.SetTitle(summary.Title, true)
	doc.AddPage()

	doc.SetFont("Helvetica", "B", 16)
	doc.MultiCell(0, 8, summary.Title, "", "L", false)

	doc.SetFont("Helvetica", "", 9)
	doc.SetTextColor(120, 120, 120)
	doc.MultiCell(0, 5, summary.SourceURL, "", "L", false)
	doc.Ln(4)

	doc.SetFont("Helvetica", "", 11)
	doc.SetTextColor(0, 0, 0)
	doc.MultiCell(0, 6, flattenMarkup(summary.Result), "", "L", false)

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func flattenMarkup(text string) string {
	replacer := strings.NewReplacer(
		"**", "",
		"__", "",
		"# ", "",
		"## ", "",
		"### ", "",
	)
	return replacer.Replace(text)
}
