package extraction

import (
	"bytes"
	"fmt"
	"image/jpeg"

	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"
)

// maxPages bounds how many document pages are sent to the vision model.
const maxPages = 2

// renderPages converts a raw document payload into JPEG page images for the
// vision request. JPEG and PNG payloads pass through as a single page; PDF
// payloads are rasterized with mupdf.
func renderPages(payload []byte, logger *zap.Logger) ([][]byte, error) {
	switch {
	case len(payload) >= 2 && payload[0] == 0xFF && payload[1] == 0xD8:
		// already JPEG
		return [][]byte{payload}, nil
	case len(payload) >= 8 && bytes.HasPrefix(payload, []byte("\x89PNG\r\n\x1a\n")):
		return [][]byte{payload}, nil
	case bytes.HasPrefix(payload, []byte("%PDF")):
		return renderPDF(payload, logger)
	default:
		return nil, fmt.Errorf("unsupported document payload: not a PDF, JPEG or PNG")
	}
}

func renderPDF(payload []byte, logger *zap.Logger) ([][]byte, error) {
	doc, err := fitz.NewFromMemory(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if pageCount > maxPages {
		pageCount = maxPages
	}

	var pages [][]byte
	for pageNum := 0; pageNum < pageCount; pageNum++ {
		img, err := doc.Image(pageNum)
		if err != nil {
			logger.Warn("Failed to rasterize PDF page",
				zap.Int("page", pageNum),
				zap.Error(err))
			continue
		}

		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
			logger.Warn("Failed to encode page to JPEG",
				zap.Int("page", pageNum),
				zap.Error(err))
			continue
		}
		pages = append(pages, buf.Bytes())
	}

	if len(pages) == 0 {
		return nil, fmt.Errorf("no renderable pages in PDF")
	}
	return pages, nil
}
