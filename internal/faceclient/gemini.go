package faceclient

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

var matchSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"matches": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"name":       {Type: genai.TypeString},
					"confidence": {Type: genai.TypeNumber},
				},
				Required: []string{"name", "confidence"},
			},
		},
	},
	Required: []string{"matches"},
}

// GeminiRecognizer asks a Gemini vision model to match the probe against the gallery.
type GeminiRecognizer struct {
	client *genai.Client
	model  string
}

// NewGeminiRecognizer creates a Gemini-backed recognizer.
func NewGeminiRecognizer(ctx context.Context, apiKey, model string) (*GeminiRecognizer, error) {
	if model == "" {
		model = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiRecognizer{client: client, model: model}, nil
}

func (g *GeminiRecognizer) Name() string { return g.model }

// Identify implements Recognizer.
func (g *GeminiRecognizer) Identify(ctx context.Context, probe []byte, gallery []GalleryEntry) ([]Match, error) {
	contents := []*genai.Content{
		{Role: "user", Parts: buildGeminiParts(probe, gallery)},
	}
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemInstruction}}},
		ResponseMIMEType:  "application/json",
		ResponseSchema:    matchSchema,
		Temperature:       genai.Ptr[float32](0.1),
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("%w: gemini API error: %w", ErrRecognizer, err)
	}
	content := result.Text()
	if content == "" {
		return nil, fmt.Errorf("%w: no response from Gemini", ErrMalformedResponse)
	}
	return ParseMatches([]byte(content))
}

func buildGeminiParts(probe []byte, gallery []GalleryEntry) []*genai.Part {
	parts := []*genai.Part{
		{Text: probeCaption},
		{InlineData: &genai.Blob{Data: probe, MIMEType: "image/jpeg"}},
		{Text: galleryCaption},
	}
	for _, e := range gallery {
		parts = append(parts,
			&genai.Part{Text: entryCaption(e.Label)},
			&genai.Part{InlineData: &genai.Blob{Data: e.Image, MIMEType: "image/jpeg"}},
		)
	}
	return parts
}
