package purchase

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"compras-tracker/internal/scanning"
)

// ErrRecognizerUnavailable means the OCR engine failed to initialize at
// process start. Statistics and listing still work against existing data;
// only photo processing is refused.
var ErrRecognizerUnavailable = errors.New("recognizer unavailable")

// IDGenerator generates unique IDs for stored ticket images
type IDGenerator interface {
	Generate() string
}

// defaultIDGenerator generates IDs using UnixNano timestamp
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}

// Service runs the ticket pipeline: decode, preprocess, recognize, extract
// fields and register the purchase. Each inbound photo triggers exactly one
// run; the ledger serializes its own mutations.
type Service struct {
	ledger      *Ledger
	recognizer  scanning.Recognizer
	storage     Storage
	idGenerator IDGenerator
}

// NewService creates a new Service. recognizer may be nil when engine
// initialization failed; photo processing then returns
// ErrRecognizerUnavailable while read-only operations keep working.
func NewService(ledger *Ledger, recognizer scanning.Recognizer, storage Storage) *Service {
	return &Service{
		ledger:      ledger,
		recognizer:  recognizer,
		storage:     storage,
		idGenerator: &defaultIDGenerator{},
	}
}

// NewServiceWithDeps creates a new Service with a custom ID generator for testing
func NewServiceWithDeps(ledger *Ledger, recognizer scanning.Recognizer, storage Storage, idGen IDGenerator) *Service {
	return &Service{
		ledger:      ledger,
		recognizer:  recognizer,
		storage:     storage,
		idGenerator: idGen,
	}
}

var (
	specialChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	multiSpace   = regexp.MustCompile(`\s+`)
)

// sanitizeFilename cleans up a filename by removing special characters and
// truncating length, mostly to tame phone-generated names
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	base = specialChars.ReplaceAllString(base, "")
	base = multiSpace.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	maxLen := 50
	if len(base) > maxLen {
		base = base[:maxLen]
	}
	if base == "" {
		base = "ticket"
	}
	return base + ext
}

// ProcessTicket runs the full pipeline over an uploaded photo and registers
// the resulting purchase. A decode failure aborts the request; a
// recognition failure creates no record and removes the saved image; a
// persistence failure is soft, returning the purchase together with an
// error wrapping ErrPersist.
func (s *Service) ProcessTicket(filename string, data []byte, contentType string) (*Purchase, scanning.TicketFields, error) {
	var fields scanning.TicketFields

	if s.recognizer == nil {
		return nil, fields, ErrRecognizerUnavailable
	}

	img, err := scanning.Decode(data, contentType)
	if err != nil {
		return nil, fields, err
	}
	processed := scanning.Preprocess(img)

	savedPath, err := s.storage.Save(fmt.Sprintf("%s_%s", s.idGenerator.Generate(), sanitizeFilename(filename)), data)
	if err != nil {
		return nil, fields, fmt.Errorf("saving image: %w", err)
	}

	fragments, err := s.recognizer.Recognize(processed)
	if err != nil {
		slog.Error("Failed to recognize ticket",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		// No record without recognized text; drop the saved image too
		s.storage.Delete(savedPath)
		return nil, fields, err
	}

	fields = scanning.ParseTicket(scanning.FullText(fragments))

	p, err := s.ledger.Add(fields, savedPath)
	if err != nil {
		// The purchase is in memory but may not be on disk; surface the
		// soft failure with the record attached
		return p, fields, err
	}
	return p, fields, nil
}

// Stats returns aggregate statistics, nil when the ledger is empty
func (s *Service) Stats() *Stats {
	return s.ledger.Stats()
}

// Recent returns the last n purchases in insertion order
func (s *Service) Recent(n int) []*Purchase {
	return s.ledger.Recent(n)
}

// GetPurchase retrieves a purchase by its sequential ID
func (s *Service) GetPurchase(id int) (*Purchase, error) {
	return s.ledger.Get(id)
}

// GetTicketImage retrieves the stored image for a purchase
func (s *Service) GetTicketImage(id int) ([]byte, error) {
	p, err := s.ledger.Get(id)
	if err != nil {
		return nil, err
	}
	data, err := s.storage.Get(p.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("getting ticket image: %w", err)
	}
	return data, nil
}

// Summary renders a plain-text recap of a processed ticket. Presentation
// markup is the caller's concern.
func Summary(p *Purchase, fields scanning.TicketFields) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Purchase #%d registered\n", p.ID))
	b.WriteString("Vendor: " + orUnknown(fields.Vendor) + "\n")
	b.WriteString("Date: " + orUnknown(fields.Date) + "\n")
	b.WriteString("Time: " + orUnknown(fields.Time) + "\n")
	b.WriteString(fmt.Sprintf("Total: %.2f\n", p.Total))
	b.WriteString(fmt.Sprintf("Products found: %d\n", len(fields.Products)))
	for i, product := range fields.Products {
		if i == 5 {
			break
		}
		b.WriteString(fmt.Sprintf("- %s: %s\n", product.Name, product.Price))
	}
	return b.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "not identified"
	}
	return s
}
