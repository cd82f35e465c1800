package faceclient

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

const openAIModel = openai.ChatModelGPT4_1Mini

// OpenAIRecognizer runs the same gallery prompt against an OpenAI vision model.
type OpenAIRecognizer struct {
	client *openai.Client
}

// NewOpenAIRecognizer creates an OpenAI-backed recognizer.
func NewOpenAIRecognizer(apiKey string, opts ...option.RequestOption) *OpenAIRecognizer {
	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &OpenAIRecognizer{client: &client}
}

func (o *OpenAIRecognizer) Name() string { return openAIModel }

// Identify implements Recognizer.
func (o *OpenAIRecognizer) Identify(ctx context.Context, probe []byte, gallery []GalleryEntry) ([]Match, error) {
	messages := []openai.ChatCompletionMessageParamUnion{
		{
			OfSystem: &openai.ChatCompletionSystemMessageParam{
				Content: openai.ChatCompletionSystemMessageParamContentUnion{
					OfString: openai.String(systemInstruction + ` Respond with JSON: {"matches":[{"name":string,"confidence":number}]}.`),
				},
			},
		},
		{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{
					OfArrayOfContentParts: buildOpenAIParts(probe, gallery),
				},
			},
		},
	}

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openAIModel,
		Messages: messages,
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
		Temperature: openai.Float(0.1),
		MaxTokens:   openai.Int(500),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: OpenAI API error: %w", ErrRecognizer, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no response from OpenAI", ErrMalformedResponse)
	}
	return ParseMatches([]byte(resp.Choices[0].Message.Content))
}

func buildOpenAIParts(probe []byte, gallery []GalleryEntry) []openai.ChatCompletionContentPartUnionParam {
	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(probeCaption),
		openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: jpegDataURL(probe)}),
		openai.TextContentPart(galleryCaption),
	}
	for _, e := range gallery {
		parts = append(parts,
			openai.TextContentPart(entryCaption(e.Label)),
			openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: jpegDataURL(e.Image)}),
		)
	}
	return parts
}

func jpegDataURL(data []byte) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data)
}
