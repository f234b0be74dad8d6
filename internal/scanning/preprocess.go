package scanning

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// maxDimension caps the longer side of a photo before binarization.
// Modern phone photos are far larger than OCR needs and slow tesseract down.
const maxDimension = 2000

// medianKernel is the neighborhood size of the denoising median blur.
const medianKernel = 5

// Decode turns raw upload bytes into an in-memory raster. PDFs are rendered
// to their first page (most receipts are single page), HEIC/HEIF photos
// (common on iPhones) go through the pure Go HEIC decoder, everything else
// through the standard image decoders.
func Decode(data []byte, contentType string) (image.Image, error) {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))

	var img image.Image
	var err error
	switch {
	case mimeType == "application/pdf":
		img, err = pdfToImage(data)
	case isHEICFormat(data) || isHEICMimeType(mimeType):
		img, err = heic.Decode(bytes.NewReader(data))
	default:
		img, _, err = image.Decode(bytes.NewReader(data))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}

	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, fmt.Errorf("%w: zero-dimension image", ErrImageDecode)
	}
	return img, nil
}

// pdfToImage renders the first page of a PDF to a raster
func pdfToImage(pdfData []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return img, nil
}

// isHEICFormat checks the ftyp box brands HEIC files start with
func isHEICFormat(data []byte) bool {
	if len(data) < 12 {
		return false
	}
	if string(data[4:8]) != "ftyp" {
		return false
	}
	brand := string(data[8:12])
	return brand == "heic" || brand == "heif" || brand == "mif1" || brand == "msf1"
}

func isHEICMimeType(mimeType string) bool {
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}

// Preprocess converts a decoded raster into a binarized grayscale image
// optimized for text recognition: luminance grayscale, a median blur to
// suppress salt-and-pepper noise without smearing glyph edges, then Otsu's
// automatic threshold so receipts with uneven exposure still binarize well.
// The output contains only the values 0 and 255.
func Preprocess(img image.Image) *image.Gray {
	bounds := img.Bounds()
	if bounds.Dx() > maxDimension || bounds.Dy() > maxDimension {
		img = imaging.Fit(img, maxDimension, maxDimension, imaging.Lanczos)
	}

	gray := grayscale(img)
	denoised := medianBlur(gray, medianKernel)
	return binarize(denoised, otsuThreshold(denoised))
}

// grayscale converts to single-channel using the standard luminance weights
func grayscale(img image.Image) *image.Gray {
	bounds := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			gray.Set(x-bounds.Min.X, y-bounds.Min.Y, color.GrayModel.Convert(img.At(x, y)))
		}
	}
	return gray
}

// medianBlur replaces each pixel with the median of its kernel×kernel
// neighborhood, clamped at the image borders
func medianBlur(img *image.Gray, kernel int) *image.Gray {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := image.NewGray(bounds)
	radius := kernel / 2
	window := make([]uint8, 0, kernel*kernel)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			window = window[:0]
			for dy := -radius; dy <= radius; dy++ {
				for dx := -radius; dx <= radius; dx++ {
					nx, ny := clamp(x+dx, 0, w-1), clamp(y+dy, 0, h-1)
					window = append(window, img.GrayAt(nx, ny).Y)
				}
			}
			sort.Slice(window, func(i, j int) bool { return window[i] < window[j] })
			out.SetGray(x, y, color.Gray{Y: window[len(window)/2]})
		}
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// otsuThreshold picks the global threshold that maximizes the between-class
// variance of the intensity histogram
func otsuThreshold(img *image.Gray) uint8 {
	var histogram [256]int
	bounds := img.Bounds()
	total := bounds.Dx() * bounds.Dy()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			histogram[img.GrayAt(x, y).Y]++
		}
	}

	var sum float64
	for i, count := range histogram {
		sum += float64(i) * float64(count)
	}

	var sumBackground, weightBackground float64
	var maxVariance float64
	var threshold uint8
	for t := 0; t < 256; t++ {
		weightBackground += float64(histogram[t])
		if weightBackground == 0 {
			continue
		}
		weightForeground := float64(total) - weightBackground
		if weightForeground == 0 {
			break
		}
		sumBackground += float64(t) * float64(histogram[t])

		meanBackground := sumBackground / weightBackground
		meanForeground := (sum - sumBackground) / weightForeground
		diff := meanBackground - meanForeground
		variance := weightBackground * weightForeground * diff * diff
		if variance > maxVariance {
			maxVariance = variance
			threshold = uint8(t)
		}
	}
	return threshold
}

// binarize maps every pixel to 0 or 255 against the threshold
func binarize(img *image.Gray, threshold uint8) *image.Gray {
	bounds := img.Bounds()
	out := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if img.GrayAt(x, y).Y > threshold {
				out.SetGray(x, y, color.Gray{Y: 255})
			} else {
				out.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}
	return out
}
