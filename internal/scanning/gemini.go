package scanning

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// transcribePrompt is the shared prompt used by the LLM-backed recognizers.
// The pipeline does its own field extraction, so the engines are asked for a
// plain transcription only.
const transcribePrompt = `You are transcribing a purchase receipt. Read every piece of text visible in the image and return it as plain text, one receipt line per output line, top to bottom.

Important:
- Transcribe exactly what is printed, including numbers, dates and currency symbols
- Keep the original language of the receipt
- Do not summarize, translate, interpret or reorder anything
- Do not add any commentary before or after the transcription
- Do not use markdown code blocks`

// Gemini implements the Recognizer interface using Google Gemini vision
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini creates a new Gemini recognizer
func NewGemini(apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: gemini api key is required", ErrRecognizerInit)
	}
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("%w: creating gemini client: %v", ErrRecognizerInit, err)
	}

	return &Gemini{
		client: client,
		model:  client.GenerativeModel(modelName),
	}, nil
}

// Recognize transcribes the image and returns one fragment per line. The
// API reports no per-line confidence or geometry, so fragments carry a
// confidence of 1 and a zero box.
func (g *Gemini) Recognize(img image.Image) ([]Fragment, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("%w: encoding PNG: %v", ErrRecognition, err)
	}

	parts := []genai.Part{
		genai.ImageData("png", buf.Bytes()),
		genai.Text(transcribePrompt),
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("%w: generating content: %v", ErrRecognition, err)
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("%w: no response from gemini", ErrRecognition)
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	return transcriptFragments(responseText.String()), nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}

// transcriptFragments splits an LLM transcription into line fragments,
// stripping markdown fences the models sometimes add anyway
func transcriptFragments(text string) []Fragment {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```text")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	var fragments []Fragment
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fragments = append(fragments, Fragment{Text: line, Confidence: 1})
	}
	return fragments
}
