package printer

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
	"github.com/skip2/go-qrcode"

	"github.com/vivero-tech/viverogo/internal/models"
)

// SheetConfig holds layout settings for a label sheet
type SheetConfig struct {
	FacilityName string  `json:"facilityName"` // Printed on every label
	Cols         int     `json:"cols"`
	Rows         int     `json:"rows"`
	MarginTop    float64 `json:"marginTop"`
	MarginLeft   float64 `json:"marginLeft"`
	GapX         float64 `json:"gapX"`
	GapY         float64 `json:"gapY"`
}

// DefaultSheetConfig returns the layout for a standard 3x8 A4 sticker sheet
func DefaultSheetConfig(facilityName string, cols, rows int) SheetConfig {
	if cols <= 0 {
		cols = 3
	}
	if rows <= 0 {
		rows = 8
	}
	return SheetConfig{
		FacilityName: facilityName,
		Cols:         cols,
		Rows:         rows,
		MarginTop:    10,
		MarginLeft:   7,
		GapX:         2.5,
		GapY:         0,
	}
}

// GenerateLocationLabels creates a printable A4 PDF with one QR label per
// storage location. The QR payload is the location's QR code, so a handheld
// scanner resolves it through the lookup endpoint.
func GenerateLocationLabels(cfg SheetConfig, locations []models.StorageLocation) ([]byte, error) {
	if len(locations) == 0 {
		return nil, fmt.Errorf("no locations to print")
	}
	if cfg.Cols <= 0 || cfg.Rows <= 0 {
		return nil, fmt.Errorf("invalid sheet layout: %dx%d", cfg.Cols, cfg.Rows)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetFont("Arial", "B", 10)

	// A4 dimensions
	pageWidth, pageHeight := 210.0, 297.0

	totalGapX := float64(cfg.Cols-1) * cfg.GapX
	totalGapY := float64(cfg.Rows-1) * cfg.GapY

	availW := pageWidth - (cfg.MarginLeft * 2)
	availH := pageHeight - (cfg.MarginTop * 2)

	labelW := (availW - totalGapX) / float64(cfg.Cols)
	labelH := (availH - totalGapY) / float64(cfg.Rows)

	labelsPerPage := cfg.Cols * cfg.Rows

	for i, loc := range locations {
		if i%labelsPerPage == 0 {
			pdf.AddPage()
		}

		indexOnPage := i % labelsPerPage
		col := indexOnPage % cfg.Cols
		row := indexOnPage / cfg.Cols

		x := cfg.MarginLeft + float64(col)*(labelW+cfg.GapX)
		y := cfg.MarginTop + float64(row)*(labelH+cfg.GapY)

		qrPng, err := qrcode.Encode(loc.QRCode, qrcode.Medium, 256)
		if err != nil {
			return nil, fmt.Errorf("failed to encode QR for %s: %w", loc.Code, err)
		}

		imgName := fmt.Sprintf("qr_%d", i)
		imgOptions := gofpdf.ImageOptions{
			ImageType: "PNG",
			ReadDpi:   true,
		}
		_ = pdf.RegisterImageOptionsReader(imgName, imgOptions, bytes.NewReader(qrPng))

		// QR centered, 70% of label height, shifted up for the code line
		qrSize := labelH * 0.7
		if qrSize > labelW {
			qrSize = labelW * 0.9
		}
		qrX := x + (labelW-qrSize)/2
		qrY := y + (labelH-qrSize)/2 - 2

		pdf.ImageOptions(imgName, qrX, qrY, qrSize, qrSize, false, imgOptions, 0, "")

		// Human-readable QR code below the symbol
		pdf.SetXY(x, y+labelH-6)
		pdf.SetFontSize(8)
		pdf.CellFormat(labelW, 5, loc.QRCode, "", 0, "C", false, 0, "")

		// Location code top left, facility name top right
		pdf.SetXY(x, y+1)
		pdf.SetFontSize(6)
		pdf.CellFormat(labelW/2, 3, loc.Code, "", 0, "L", false, 0, "")
		pdf.CellFormat(labelW/2, 3, cfg.FacilityName, "", 0, "R", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
