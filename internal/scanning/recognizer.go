package scanning

import (
	"errors"
	"image"
	"strings"
)

// Pipeline error kinds. Decode failures abort a single request, init
// failures mean no recognition can happen for the process lifetime, and
// recognition failures mean no text was recovered for that request.
var (
	ErrImageDecode    = errors.New("image decode failed")
	ErrRecognizerInit = errors.New("recognizer initialization failed")
	ErrRecognition    = errors.New("text recognition failed")
)

// Fragment is one unit of text emitted by a recognizer, in the engine's
// spatial emission order (typically top-to-bottom).
type Fragment struct {
	Text       string          `json:"text"`
	Confidence float64         `json:"confidence"`
	Box        image.Rectangle `json:"box"`
}

// Recognizer defines the interface for OCR engines. Engines are expensive
// to construct and are built once per process, then reused across calls.
type Recognizer interface {
	// Recognize extracts text fragments from a preprocessed image
	Recognize(img image.Image) ([]Fragment, error)
	// Close releases engine resources
	Close() error
}

// FullText joins all fragment texts with single spaces in emission order.
// This is the canonical text fed to ParseTicket.
func FullText(fragments []Fragment) string {
	parts := make([]string, 0, len(fragments))
	for _, f := range fragments {
		parts = append(parts, f.Text)
	}
	return strings.Join(parts, " ")
}
