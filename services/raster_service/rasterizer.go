package raster_service

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"log/slog"

	"github.com/gen2brain/go-fitz"

	"github.com/serisow/docchat/pipeline_type"
)

// PageImage is one rasterized page, in document order. JPEG payload is
// what gets sent to the recognition service.
type PageImage struct {
	PageNumber int
	JPEG       []byte
}

type Rasterizer struct {
	dpi    int
	logger *slog.Logger
}

func NewRasterizer(dpi int, logger *slog.Logger) *Rasterizer {
	if dpi <= 0 {
		dpi = 300
	}
	return &Rasterizer{
		dpi:    dpi,
		logger: logger,
	}
}

// Rasterize converts each page of the PDF into a JPEG image. Corrupt or
// unparsable bytes yield ErrInvalidDocument, a zero-page PDF yields
// ErrEmptyDocument. No shared state is touched.
func (r *Rasterizer) Rasterize(data []byte) ([]PageImage, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		r.logger.Error("Failed to open PDF",
			slog.Int("data_size", len(data)),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %v", pipeline_type.ErrInvalidDocument, err)
	}
	defer doc.Close()

	totalPages := doc.NumPage()
	if totalPages == 0 {
		return nil, pipeline_type.ErrEmptyDocument
	}

	r.logger.Debug("Starting PDF rasterization",
		slog.Int("total_pages", totalPages),
		slog.Int("dpi", r.dpi))

	images := make([]PageImage, 0, totalPages)
	for pageIndex := 0; pageIndex < totalPages; pageIndex++ {
		img, err := doc.ImageDPI(pageIndex, float64(r.dpi))
		if err != nil {
			return nil, fmt.Errorf("%w: rendering page %d: %v",
				pipeline_type.ErrInvalidDocument, pageIndex+1, err)
		}

		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
			return nil, fmt.Errorf("failed to encode page %d: %w", pageIndex+1, err)
		}

		images = append(images, PageImage{
			PageNumber: pageIndex + 1,
			JPEG:       buf.Bytes(),
		})
	}

	r.logger.Info("Rasterized PDF",
		slog.Int("total_pages", totalPages))

	return images, nil
}
