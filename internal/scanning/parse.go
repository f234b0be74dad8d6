package scanning

import (
	"regexp"
	"strings"
)

// TicketFields holds the structured fields recovered from a receipt. All
// values are kept as the raw matched strings; an empty string (or empty
// slice) means the field was not found. At most one value is assigned per
// field: the first matching pattern wins.
type TicketFields struct {
	Date     string    `json:"date,omitempty"`
	Time     string    `json:"time,omitempty"`
	Total    string    `json:"total,omitempty"`
	Vendor   string    `json:"vendor,omitempty"`
	Products []Product `json:"products"`
}

// Product is one best-effort line item from a receipt
type Product struct {
	Name  string `json:"name"`
	Price string `json:"price"`
}

const maxVendorLength = 50

var (
	// dd/mm/yyyy or dd-mm-yy style, no calendar validation
	datePattern = regexp.MustCompile(`\d{1,2}[/-]\d{1,2}[/-]\d{2,4}`)
	timePattern = regexp.MustCompile(`\d{1,2}:\d{2}`)

	// Ordered by confidence: an explicit "total:" label beats a bare
	// currency amount. Matched against the lowercased text.
	totalPatterns = []*regexp.Regexp{
		regexp.MustCompile(`total[\s:]*\$?\s*(\d+[.,]\d+)`),
		regexp.MustCompile(`total[\s:]*\$?\s*(\d+)`),
		regexp.MustCompile(`importe[\s:]*\$?\s*(\d+[.,]\d+)`),
		regexp.MustCompile(`[$€]\s*(\d+[.,]\d+)`),
		regexp.MustCompile(`final[\s:]*\$?\s*(\d+[.,]\d+)`),
	}

	productPattern = regexp.MustCompile(`([A-Za-z\s]+)\s+(\d+[.,]\d+)`)

	// Lines carrying these markers belong to the totals/timestamp block,
	// not the header where the vendor name lives
	vendorSkipWords = []string{"total", "fecha", "hora"}
)

// ParseTicket extracts receipt fields from recognized text. Parsing never
// fails; fields with no matching pattern stay unset and the pipeline
// carries on with whatever was found.
func ParseTicket(text string) TicketFields {
	fields := TicketFields{Products: []Product{}}

	fields.Date = datePattern.FindString(text)
	fields.Time = timePattern.FindString(text)

	lower := strings.ToLower(text)
	for _, pattern := range totalPatterns {
		if match := pattern.FindStringSubmatch(lower); match != nil {
			fields.Total = strings.ReplaceAll(match[1], ",", ".")
			break
		}
	}

	lines := strings.Split(text, "\n")
	fields.Vendor = findVendor(lines)

	// Best-effort: depends on the recognizer preserving line breaks
	for _, line := range lines {
		if match := productPattern.FindStringSubmatch(line); match != nil {
			name := strings.TrimSpace(match[1])
			if len(name) > 2 {
				fields.Products = append(fields.Products, Product{
					Name:  name,
					Price: strings.ReplaceAll(match[2], ",", "."),
				})
			}
		}
	}

	return fields
}

// findVendor scans at most the first 3 lines for a header line long enough
// to be a business name, skipping date/time/total marker lines
func findVendor(lines []string) string {
	limit := 3
	if len(lines) < limit {
		limit = len(lines)
	}
	for _, line := range lines[:limit] {
		trimmed := strings.TrimSpace(line)
		if len(trimmed) <= 5 {
			continue
		}
		if containsAny(strings.ToLower(trimmed), vendorSkipWords) {
			continue
		}
		if len(trimmed) > maxVendorLength {
			trimmed = trimmed[:maxVendorLength]
		}
		return trimmed
	}
	return ""
}

func containsAny(s string, words []string) bool {
	for _, word := range words {
		if strings.Contains(s, word) {
			return true
		}
	}
	return false
}
