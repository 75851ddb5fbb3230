package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/phpdave11/gofpdf"

	"github.com/pkordes/tripmate/internal/domain"
	"github.com/pkordes/tripmate/internal/repo"
)

// Export formats accepted by ExportService.Export.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatPDF  = "pdf"
)

// csvHeaders is the first row of the spends ledger CSV.
var csvHeaders = []string{"date", "area", "label", "currency", "amount", "amount_gbp", "notes"}

// ExportFile is a rendered export ready to be written to a response.
type ExportFile struct {
	ContentType string
	Filename    string
	Body        []byte
}

// ExportService renders one trip document as a downloadable file.
type ExportService struct {
	repo repo.StateRepo
}

func NewExportService(r repo.StateRepo) *ExportService {
	return &ExportService{repo: r}
}

// Export loads the document under key and renders it in format.
// An empty format means JSON. Unknown formats return domain.ErrValidation.
func (s *ExportService) Export(ctx context.Context, key, format string) (ExportFile, error) {
	format, err := parseFormat(format)
	if err != nil {
		return ExportFile{}, err
	}

	doc, err := s.repo.Get(ctx, key)
	if err != nil {
		return ExportFile{}, fmt.Errorf("service.ExportService.Export: %w", err)
	}
	return Render(doc, format)
}

// Render renders doc in format without touching storage. The device uses it
// to export its local copy.
func Render(doc domain.Document, format string) (ExportFile, error) {
	format, err := parseFormat(format)
	if err != nil {
		return ExportFile{}, err
	}

	var out ExportFile
	switch format {
	case FormatJSON:
		out.ContentType = "application/json"
		out.Body, err = json.MarshalIndent(doc.State, "", "  ")
	case FormatCSV:
		out.ContentType = "text/csv"
		out.Body, err = renderCSV(doc.State)
	case FormatPDF:
		out.ContentType = "application/pdf"
		out.Body, err = renderPDF(doc)
	}
	if err != nil {
		return ExportFile{}, fmt.Errorf("service.Render: %s: %w", format, err)
	}
	out.Filename = fmt.Sprintf("tripmate-%s.%s", strings.ReplaceAll(doc.Key, ":", "-"), format)
	return out, nil
}

func parseFormat(format string) (string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		return FormatJSON, nil
	}
	switch format {
	case FormatJSON, FormatCSV, FormatPDF:
		return format, nil
	}
	return "", fmt.Errorf("%w: unsupported export format %q", domain.ErrValidation, format)
}

func renderCSV(s domain.TripState) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeaders); err != nil {
		return nil, err
	}
	for _, r := range domain.Ledger(s) {
		rec := []string{
			r.Date, string(r.Area), r.Label, string(r.Currency),
			r.Amount.String(), r.AmountGBP.StringFixed(2), r.Notes,
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// renderPDF lays out the itinerary followed by the spends ledger on A4.
func renderPDF(doc domain.Document) ([]byte, error) {
	s := doc.State
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(0, 10, tr("TripMate: "+doc.Key))
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 11)
	pdf.Cell(0, 8, fmt.Sprintf("%s to %s",
		s.DateRange.Start.Time.Format("2 Jan 2006"), s.DateRange.End.Time.Format("2 Jan 2006")))
	pdf.Ln(12)

	pdf.SetFont("Arial", "B", 13)
	pdf.Cell(0, 8, "Itinerary")
	pdf.Ln(9)
	pdf.SetFont("Arial", "", 10)
	for _, p := range s.Plan {
		when := p.Date.Time.Format("Mon 2 Jan")
		if p.Time != "" {
			when += " " + p.Time
		}
		pdf.CellFormat(40, 6, when, "", 0, "L", false, 0, "")
		pdf.CellFormat(20, 6, string(p.Area), "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, tr(p.Title), "", 1, "L", false, 0, "")
	}
	pdf.Ln(6)

	pdf.SetFont("Arial", "B", 13)
	pdf.Cell(0, 8, "Spends")
	pdf.Ln(9)
	pdf.SetFont("Arial", "", 10)
	rows := domain.Ledger(s)
	if len(rows) == 0 {
		pdf.Cell(0, 6, "No spends recorded.")
		pdf.Ln(6)
	}
	for _, r := range rows {
		pdf.CellFormat(25, 6, r.Date, "", 0, "L", false, 0, "")
		pdf.CellFormat(20, 6, string(r.Area), "", 0, "L", false, 0, "")
		pdf.CellFormat(80, 6, tr(r.Label), "", 0, "L", false, 0, "")
		pdf.CellFormat(30, 6, r.Amount.String()+" "+string(r.Currency), "", 0, "R", false, 0, "")
		pdf.CellFormat(0, 6, tr("£"+r.AmountGBP.StringFixed(2)), "", 1, "R", false, 0, "")
	}
	sum := domain.Summarize(s.Spends, s.ExchangeRates)
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(0, 8, tr("Total £"+sum.TotalGBP.StringFixed(2)), "T", 1, "R", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
