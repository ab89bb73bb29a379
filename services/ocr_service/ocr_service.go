package ocr_service

import "context"

// Result is the recognizer output for one page image. Text is empty for
// blank pages; that is not an error. Confidence is in [0,1].
type Result struct {
	Text       string
	Confidence float64
}

type Recognizer interface {
	Recognize(ctx context.Context, image []byte, pageNumber int) (Result, error)
}
