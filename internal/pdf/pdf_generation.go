package pdf

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// Generator renders invoice PDFs; an interface so services can run with a
// mock (or nil) in tests.
type Generator interface {
	GenerateInvoice(data InvoiceData) (string, error)
}

type InvoiceData struct {
	InvoiceNumber string
	ClientName    string
	ClientTaxID   string
	InvoiceDate   time.Time
	TotalAmount   float64
	TotalHours    float64
	TaskCount     int
	Filename      string // basename only; generated when empty
}

// DocumentGenerator writes PDFs under RootDir.
type DocumentGenerator struct {
	RootDir  string
	FontPath string // optional TTF for non-latin client names
	fontName string
}

func NewDocumentGenerator(rootDir, fontPath string) *DocumentGenerator {
	return &DocumentGenerator{
		RootDir:  filepath.Clean(rootDir),
		FontPath: fontPath,
		fontName: "Helvetica",
	}
}

func (g *DocumentGenerator) ensureTarget(filename string) (string, error) {
	if err := os.MkdirAll(g.RootDir, 0o755); err != nil {
		return "", fmt.Errorf("create files root: %w", err)
	}
	return filepath.Join(g.RootDir, filepath.Base(filename)), nil
}

func (g *DocumentGenerator) addFont(pdf *gofpdf.Fpdf) {
	if g.FontPath == "" {
		return
	}
	if _, err := os.Stat(g.FontPath); err != nil {
		return
	}
	pdf.AddUTF8Font("custom", "", g.FontPath)
	pdf.AddUTF8Font("custom", "B", g.FontPath)
	g.fontName = "custom"
}

func (g *DocumentGenerator) hr(pdf *gofpdf.Fpdf) {
	x, y := pdf.GetXY()
	pageW, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	pdf.Line(left, y, pageW-right, y)
	pdf.SetXY(x, y+2)
}

func (g *DocumentGenerator) kvLine(pdf *gofpdf.Fpdf, key, value string) {
	pdf.SetFont(g.fontName, "B", 11)
	pdf.CellFormat(55, 7, key+":", "", 0, "L", false, 0, "")
	pdf.SetFont(g.fontName, "", 11)
	pdf.CellFormat(0, 7, value, "", 1, "L", false, 0, "")
}

func (g *DocumentGenerator) GenerateInvoice(data InvoiceData) (string, error) {
	filename := data.Filename
	if filename == "" {
		filename = fmt.Sprintf("invoice_%s.pdf", data.InvoiceNumber)
	}
	absPath, err := g.ensureTarget(filename)
	if err != nil {
		return "", err
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Invoice %s", data.InvoiceNumber), false)
	pdf.SetAuthor("CA-ERP", false)
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)

	g.addFont(pdf)
	pdf.AddPage()

	pdf.SetFont(g.fontName, "B", 18)
	pdf.CellFormat(0, 10, "INVOICE", "", 1, "C", false, 0, "")

	pdf.SetFont(g.fontName, "", 12)
	sub := fmt.Sprintf("%s  dated  %s", data.InvoiceNumber, data.InvoiceDate.Format("02.01.2006"))
	pdf.CellFormat(0, 7, sub, "", 1, "C", false, 0, "")
	g.hr(pdf)
	pdf.Ln(3)

	g.kvLine(pdf, "Billed to", data.ClientName)
	if data.ClientTaxID != "" {
		g.kvLine(pdf, "Tax ID", data.ClientTaxID)
	}
	pdf.Ln(2)
	g.hr(pdf)
	pdf.Ln(3)

	g.kvLine(pdf, "Tasks billed", fmt.Sprintf("%d", data.TaskCount))
	g.kvLine(pdf, "Hours", fmt.Sprintf("%.2f", data.TotalHours))
	pdf.Ln(2)

	pdf.SetFont(g.fontName, "B", 14)
	pdf.CellFormat(0, 10, fmt.Sprintf("Total due: %.2f", data.TotalAmount), "", 1, "R", false, 0, "")

	if err := pdf.OutputFileAndClose(absPath); err != nil {
		return "", fmt.Errorf("write invoice pdf: %w", err)
	}
	return "/" + filepath.Base(absPath), nil
}
