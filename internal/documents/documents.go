// Package documents renders receipt and invoice PDFs.
package documents

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/shopspring/decimal"
)

// ContentType is the MIME type of every rendered document.
const ContentType = "application/pdf"

// Receipt holds the values printed on a donation receipt.
type Receipt struct {
	Organization string
	Code         string
	IssuedAt     time.Time
	DonorName    string
	DonorEmail   string
	Anonymous    bool
	Amount       decimal.Decimal
	Currency     string
	Campaign     string
	PaymentRef   string
	DonatedAt    time.Time
	VerifyURL    string
}

// Invoice holds the values printed on a fiscal invoice.
type Invoice struct {
	Organization  string
	Number        string
	IssuedAt      time.Time
	TaxID         string
	LegalName     string
	FiscalAddress string
	Concept       string
	Subtotal      decimal.Decimal
	Taxes         decimal.Decimal
	Total         decimal.Decimal
	Currency      string
	DonationID    uint
}

// Renderer turns document data into PDF bytes.
type Renderer struct {
	compress bool
}

// NewRenderer creates a Renderer.
func NewRenderer() *Renderer {
	return &Renderer{compress: true}
}

// RenderReceipt renders a donation receipt.
func (r *Renderer) RenderReceipt(data Receipt) ([]byte, error) {
	pdf, tr := r.newDocument("Comprobante de donación " + data.Code)

	header(pdf, tr, data.Organization, "COMPROBANTE DE DONACIÓN")

	donor := data.DonorName
	if data.Anonymous || donor == "" {
		donor = "Donante anónimo"
	}
	campaign := data.Campaign
	if campaign == "" {
		campaign = "Donación general"
	}

	row(pdf, tr, "Código", data.Code)
	row(pdf, tr, "Fecha de emisión", data.IssuedAt.Format("02/01/2006"))
	row(pdf, tr, "Fecha de donación", data.DonatedAt.Format("02/01/2006 15:04"))
	row(pdf, tr, "Donante", donor)
	if !data.Anonymous && data.DonorEmail != "" {
		row(pdf, tr, "Correo", data.DonorEmail)
	}
	row(pdf, tr, "Campaña", campaign)
	row(pdf, tr, "Monto", money(data.Amount, data.Currency))
	if data.PaymentRef != "" {
		row(pdf, tr, "Referencia", data.PaymentRef)
	}

	pdf.Ln(10)
	pdf.SetFont("Helvetica", "I", 10)
	pdf.MultiCell(0, 6, tr("Gracias por su generosidad. Este documento certifica la recepción de su donación."), "", "L", false)
	if data.VerifyURL != "" {
		pdf.Ln(4)
		pdf.MultiCell(0, 6, tr("Verifique la autenticidad en: "+data.VerifyURL), "", "L", false)
	}

	return output(pdf)
}

// RenderInvoice renders a fiscal invoice.
func (r *Renderer) RenderInvoice(data Invoice) ([]byte, error) {
	pdf, tr := r.newDocument("Factura " + data.Number)

	header(pdf, tr, data.Organization, "FACTURA")

	row(pdf, tr, "Número", data.Number)
	row(pdf, tr, "Fecha de emisión", data.IssuedAt.Format("02/01/2006"))
	row(pdf, tr, "RFC", data.TaxID)
	row(pdf, tr, "Razón social", data.LegalName)
	if data.FiscalAddress != "" {
		row(pdf, tr, "Dirección fiscal", data.FiscalAddress)
	}

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "B", 11)
	pdf.SetFillColor(230, 230, 230)
	pdf.CellFormat(130, 8, tr("Concepto"), "1", 0, "L", true, 0, "")
	pdf.CellFormat(0, 8, tr("Importe"), "1", 1, "R", true, 0, "")

	concept := data.Concept
	if concept == "" {
		concept = fmt.Sprintf("Donación #%d", data.DonationID)
	}
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(130, 8, tr(concept), "1", 0, "L", false, 0, "")
	pdf.CellFormat(0, 8, money(data.Subtotal, data.Currency), "1", 1, "R", false, 0, "")

	pdf.Ln(2)
	totals := []struct {
		label string
		value decimal.Decimal
	}{
		{"Subtotal", data.Subtotal},
		{"Impuestos", data.Taxes},
		{"Total", data.Total},
	}
	for _, t := range totals {
		pdf.CellFormat(130, 7, tr(t.label), "", 0, "R", false, 0, "")
		pdf.CellFormat(0, 7, money(t.value, data.Currency), "", 1, "R", false, 0, "")
	}

	return output(pdf)
}

func (r *Renderer) newDocument(title string) (*fpdf.Fpdf, func(string) string) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(r.compress)
	pdf.SetTitle(title, true)
	pdf.SetCreator("sistema-donaciones", true)
	pdf.SetMargins(20, 20, 20)
	pdf.AddPage()
	return pdf, pdf.UnicodeTranslatorFromDescriptor("")
}

func header(pdf *fpdf.Fpdf, tr func(string) string, organization, title string) {
	if organization != "" {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(0, 8, tr(organization), "", 1, "L", false, 0, "")
	}
	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 12, tr(title), "", 1, "C", false, 0, "")
	pdf.Ln(6)
}

func row(pdf *fpdf.Fpdf, tr func(string) string, label, value string) {
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(50, 8, tr(label+":"), "", 0, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 8, tr(value), "", 1, "L", false, 0, "")
}

func money(amount decimal.Decimal, currency string) string {
	if currency == "" {
		currency = "USD"
	}
	return "$" + amount.StringFixed(2) + " " + currency
}

func output(pdf *fpdf.Fpdf) ([]byte, error) {
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
