package raster_service

import (
	"bytes"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Pages whose embedded text layer carries fewer runes than this are
// treated as scanned and go through OCR.
const minTextLayerRunes = 16

// TextLayer returns the embedded text of each page that has a usable
// text layer, keyed by 1-indexed page number. Born-digital pages found
// here skip the OCR round-trip entirely. Extraction problems on a page
// just leave that page out; the caller falls back to OCR for it.
func (r *Rasterizer) TextLayer(data []byte) map[int]string {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		r.logger.Debug("No readable text layer in PDF",
			slog.String("error", err.Error()))
		return nil
	}

	layers := make(map[int]string)
	totalPages := reader.NumPage()
	for pageIndex := 1; pageIndex <= totalPages; pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			r.logger.Debug("Failed to extract text layer from page",
				slog.Int("page_number", pageIndex),
				slog.String("error", err.Error()))
			continue
		}

		trimmed := strings.TrimSpace(text)
		if len([]rune(trimmed)) < minTextLayerRunes {
			continue
		}
		layers[pageIndex] = text
	}

	if len(layers) > 0 {
		r.logger.Info("Found embedded text layers",
			slog.Int("pages_with_text", len(layers)),
			slog.Int("total_pages", totalPages))
	}
	return layers
}
