package purchase

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"compras-tracker/internal/scanning"
)

// mockRecognizer is a mock implementation of scanning.Recognizer
type mockRecognizer struct {
	fragments    []scanning.Fragment
	recognizeErr error
	closed       bool
}

func newMockRecognizer() *mockRecognizer {
	return &mockRecognizer{}
}

func (m *mockRecognizer) Recognize(img image.Image) ([]scanning.Fragment, error) {
	if m.recognizeErr != nil {
		return nil, m.recognizeErr
	}
	return m.fragments, nil
}

func (m *mockRecognizer) Close() error {
	m.closed = true
	return nil
}

// mockStorage is a mock implementation of Storage
type mockStorage struct {
	files     map[string][]byte
	saveErr   error
	getErr    error
	deleteErr error
}

func newMockStorage() *mockStorage {
	return &mockStorage{files: make(map[string][]byte)}
}

func (m *mockStorage) Save(filename string, data []byte) (string, error) {
	if m.saveErr != nil {
		return "", m.saveErr
	}
	m.files[filename] = data
	return filename, nil
}

func (m *mockStorage) Get(path string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	data, ok := m.files[path]
	if !ok {
		return nil, errors.New("file not found")
	}
	return data, nil
}

func (m *mockStorage) Delete(path string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.files, path)
	return nil
}

// fixedIDGenerator returns a fixed ID for deterministic filenames
type fixedIDGenerator struct {
	id string
}

func (g *fixedIDGenerator) Generate() string {
	return g.id
}

// ticketPNG builds a valid PNG so Decode succeeds in service tests
func ticketPNG() []byte {
	img := image.NewGray(image.Rect(0, 0, 20, 30))
	for y := 0; y < 30; y++ {
		for x := 0; x < 20; x++ {
			v := uint8(230)
			if y > 10 && y < 15 {
				v = 20
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	var buf bytes.Buffer
	Expect(png.Encode(&buf, img)).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("Service", func() {
	var (
		store      *mockStore
		ledger     *Ledger
		recognizer *mockRecognizer
		storage    *mockStorage
		service    *Service

		imageData []byte
		p         *Purchase
		fields    scanning.TicketFields
		err       error
	)

	BeforeEach(func() {
		store = newMockStore()
		var ledgerErr error
		ledger, ledgerErr = NewLedger(store)
		Expect(ledgerErr).NotTo(HaveOccurred())

		recognizer = newMockRecognizer()
		recognizer.fragments = []scanning.Fragment{
			{Text: "SUPER MERCADO", Confidence: 0.95},
			{Text: "12/05/2024 18:45", Confidence: 0.90},
			{Text: "TOTAL: 23,50", Confidence: 0.85},
		}
		storage = newMockStorage()
		service = NewServiceWithDeps(ledger, recognizer, storage, &fixedIDGenerator{id: "42"})
		imageData = ticketPNG()
	})

	Describe("ProcessTicket", func() {
		JustBeforeEach(func() {
			p, fields, err = service.ProcessTicket("ticket.jpg", imageData, "image/png")
		})

		When("the pipeline succeeds", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should register a purchase with ID 1", func() {
				Expect(p.ID).To(Equal(1))
			})

			It("should extract the date and time", func() {
				Expect(fields.Date).To(Equal("12/05/2024"))
				Expect(fields.Time).To(Equal("18:45"))
			})

			It("should extract and coerce the total", func() {
				Expect(fields.Total).To(Equal("23.50"))
				Expect(p.Total).To(Equal(23.50))
			})

			It("should save the image under a generated name", func() {
				Expect(storage.files).To(HaveKey("42_ticket.jpg"))
			})

			It("should reference the saved image from the purchase", func() {
				Expect(p.ImagePath).To(Equal("42_ticket.jpg"))
			})

			It("should persist the ledger", func() {
				Expect(store.saved).To(HaveLen(1))
			})
		})

		When("the image cannot be decoded", func() {
			BeforeEach(func() {
				imageData = []byte("not an image")
			})

			It("should return an error wrapping scanning.ErrImageDecode", func() {
				Expect(err).To(MatchError(scanning.ErrImageDecode))
			})

			It("should not save anything", func() {
				Expect(storage.files).To(BeEmpty())
				Expect(ledger.Count()).To(BeZero())
			})
		})

		When("recognition fails", func() {
			BeforeEach(func() {
				recognizer.recognizeErr = scanning.ErrRecognition
			})

			It("should return the recognition error", func() {
				Expect(err).To(MatchError(scanning.ErrRecognition))
			})

			It("should create no purchase record", func() {
				Expect(ledger.Count()).To(BeZero())
				Expect(ledger.Stats()).To(BeNil())
			})

			It("should clean up the saved image", func() {
				Expect(storage.files).To(BeEmpty())
			})
		})

		When("no recognizer is available", func() {
			BeforeEach(func() {
				service = NewServiceWithDeps(ledger, nil, storage, &fixedIDGenerator{id: "42"})
			})

			It("should return ErrRecognizerUnavailable", func() {
				Expect(err).To(MatchError(ErrRecognizerUnavailable))
			})

			It("should leave the ledger untouched", func() {
				Expect(ledger.Count()).To(BeZero())
			})
		})

		When("persistence fails", func() {
			BeforeEach(func() {
				store.saveErr = errors.New("disk full")
			})

			It("should surface a soft failure", func() {
				Expect(err).To(MatchError(ErrPersist))
			})

			It("should still return the purchase", func() {
				Expect(p).NotTo(BeNil())
				Expect(p.ID).To(Equal(1))
			})

			It("should keep the record in memory", func() {
				Expect(ledger.Count()).To(Equal(1))
			})
		})
	})

	Describe("GetTicketImage", func() {
		When("the purchase exists", func() {
			BeforeEach(func() {
				_, _, procErr := service.ProcessTicket("ticket.jpg", imageData, "image/png")
				Expect(procErr).NotTo(HaveOccurred())
			})

			It("should return the stored bytes", func() {
				data, err := service.GetTicketImage(1)
				Expect(err).NotTo(HaveOccurred())
				Expect(data).To(Equal(imageData))
			})
		})

		When("the purchase does not exist", func() {
			It("should return an error", func() {
				_, err := service.GetTicketImage(7)
				Expect(err).To(HaveOccurred())
			})
		})
	})
})

var _ = Describe("sanitizeFilename", func() {
	It("should strip special characters and keep the extension", func() {
		Expect(sanitizeFilename("IMG_2024!!*(05).jpg")).To(Equal("IMG_202405.jpg"))
	})

	It("should collapse runs of whitespace", func() {
		Expect(sanitizeFilename("mi    ticket.png")).To(Equal("mi ticket.png"))
	})

	It("should fall back to a default for fully special names", func() {
		Expect(sanitizeFilename("€€€.pdf")).To(Equal("ticket.pdf"))
	})
})

var _ = Describe("Summary", func() {
	It("should recap the registered purchase", func() {
		p := &Purchase{ID: 3, Total: 23.5}
		fields := scanning.TicketFields{
			Vendor: "SUPER X",
			Date:   "12/05/2024",
			Products: []scanning.Product{
				{Name: "LECHE", Price: "1.25"},
			},
		}
		summary := Summary(p, fields)
		Expect(summary).To(ContainSubstring("Purchase #3"))
		Expect(summary).To(ContainSubstring("SUPER X"))
		Expect(summary).To(ContainSubstring("23.50"))
		Expect(summary).To(ContainSubstring("LECHE: 1.25"))
	})

	It("should mark missing fields as not identified", func() {
		summary := Summary(&Purchase{ID: 1}, scanning.TicketFields{})
		Expect(summary).To(ContainSubstring("not identified"))
	})
})
