// Package printer renders printable PDF sheets of product labels so a
// shelf label lost or damaged during a stock take can be reprinted.
package printer

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
	"github.com/skip2/go-qrcode"
	"github.com/xelth-com/stocktakego/internal/models"
)

// LabelConfig holds the sheet geometry for PDF generation.
type LabelConfig struct {
	Copies     int     `json:"copies"` // labels per product
	Cols       int     `json:"cols"`
	Rows       int     `json:"rows"`
	MarginTop  float64 `json:"marginTop"`
	MarginLeft float64 `json:"marginLeft"`
	GapX       float64 `json:"gapX"`
	GapY       float64 `json:"gapY"`
}

// DefaultLabelConfig is a 3x8 sheet on A4.
func DefaultLabelConfig() LabelConfig {
	return LabelConfig{
		Copies:     1,
		Cols:       3,
		Rows:       8,
		MarginTop:  10,
		MarginLeft: 7,
		GapX:       3,
		GapY:       3,
	}
}

// GenerateProductLabelsPDF creates an A4 PDF with one QR label per product
// copy: the QR encodes the product barcode, captioned with name and SKU.
// Products without a barcode are skipped.
func GenerateProductLabelsPDF(products []models.Product, cfg LabelConfig) ([]byte, error) {
	if cfg.Copies < 1 {
		cfg.Copies = 1
	}
	if cfg.Cols < 1 || cfg.Rows < 1 {
		return nil, fmt.Errorf("invalid label grid %dx%d", cfg.Cols, cfg.Rows)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetFont("Arial", "B", 8)

	pageWidth, pageHeight := 210.0, 297.0
	totalGapX := float64(cfg.Cols-1) * cfg.GapX
	totalGapY := float64(cfg.Rows-1) * cfg.GapY
	availW := pageWidth - (cfg.MarginLeft * 2)
	availH := pageHeight - (cfg.MarginTop * 2)
	labelW := (availW - totalGapX) / float64(cfg.Cols)
	labelH := (availH - totalGapY) / float64(cfg.Rows)

	labelsPerPage := cfg.Cols * cfg.Rows
	placed := 0

	for _, product := range products {
		if product.Barcode == "" {
			continue
		}

		qrPng, err := qrcode.Encode(product.Barcode, qrcode.Medium, 256)
		if err != nil {
			return nil, fmt.Errorf("failed to encode QR for %q: %w", product.Barcode, err)
		}
		imgName := fmt.Sprintf("qr-%d", product.ID)
		pdf.RegisterImageOptionsReader(imgName, gofpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(qrPng))

		for n := 0; n < cfg.Copies; n++ {
			if placed%labelsPerPage == 0 {
				pdf.AddPage()
			}

			indexOnPage := placed % labelsPerPage
			col := indexOnPage % cfg.Cols
			row := indexOnPage / cfg.Cols
			x := cfg.MarginLeft + float64(col)*(labelW+cfg.GapX)
			y := cfg.MarginTop + float64(row)*(labelH+cfg.GapY)

			// QR on the left, caption on the right.
			qrSize := labelH - 4
			if qrSize > labelW/2 {
				qrSize = labelW / 2
			}
			pdf.ImageOptions(imgName, x+2, y+2, qrSize, qrSize, false, gofpdf.ImageOptions{ImageType: "PNG"}, 0, "")

			textX := x + qrSize + 4
			pdf.SetXY(textX, y+3)
			pdf.CellFormat(labelW-qrSize-6, 4, product.Name, "", 2, "L", false, 0, "")
			pdf.SetFont("Arial", "", 7)
			pdf.CellFormat(labelW-qrSize-6, 3.5, product.DefaultCode, "", 2, "L", false, 0, "")
			pdf.CellFormat(labelW-qrSize-6, 3.5, product.Barcode, "", 2, "L", false, 0, "")
			pdf.SetFont("Arial", "B", 8)

			placed++
		}
	}

	if placed == 0 {
		return nil, fmt.Errorf("no products with barcodes to print")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
