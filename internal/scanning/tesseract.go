package scanning

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract implements the Recognizer interface using the local tesseract
// engine via gosseract. Construction loads the language models and is slow;
// build it once per process and reuse it.
type Tesseract struct {
	// gosseract clients are not safe for concurrent use
	mu     sync.Mutex
	client *gosseract.Client
}

// NewTesseract creates a new Tesseract recognizer. languages are tesseract
// language codes (e.g. "spa", "eng"); when empty, Spanish plus English is
// used to match typical receipts.
func NewTesseract(languages []string, tessdataDir string) (*Tesseract, error) {
	if len(languages) == 0 {
		languages = []string{"spa", "eng"}
	}

	client := gosseract.NewClient()
	if tessdataDir != "" {
		if err := client.SetTessdataPrefix(tessdataDir); err != nil {
			client.Close()
			return nil, fmt.Errorf("%w: setting tessdata dir: %v", ErrRecognizerInit, err)
		}
	}
	if err := client.SetLanguage(languages...); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: setting languages %v: %v", ErrRecognizerInit, languages, err)
	}

	return &Tesseract{client: client}, nil
}

// Recognize runs OCR over a preprocessed image and returns one fragment per
// recognized text line, in top-to-bottom order
func (t *Tesseract) Recognize(img image.Image) ([]Fragment, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("%w: encoding PNG: %v", ErrRecognition, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("%w: setting image: %v", ErrRecognition, err)
	}

	boxes, err := t.client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecognition, err)
	}

	fragments := make([]Fragment, 0, len(boxes))
	for _, box := range boxes {
		text := strings.TrimSpace(box.Word)
		if text == "" {
			continue
		}
		fragments = append(fragments, Fragment{
			Text:       text,
			Confidence: box.Confidence / 100,
			Box:        box.Box,
		})
	}
	return fragments, nil
}

// Close releases the underlying tesseract client
func (t *Tesseract) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client.Close()
}
