package faceclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRecognizer wraps any failure of the remote recognition call.
	ErrRecognizer = errors.New("recognizer failure")
	// ErrMalformedResponse means the recognizer answered with something we cannot use.
	ErrMalformedResponse = errors.New("malformed recognizer response")
	// ErrDecode means an image could not be decoded.
	ErrDecode = errors.New("image decode failed")
)

// GalleryEntry is one enrolled reference image sent with a probe.
type GalleryEntry struct {
	Label string
	Image []byte
}

// Match is a recognizer hit.
type Match struct {
	Label      string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// Recognizer identifies the person in a probe frame against a gallery.
type Recognizer interface {
	Name() string
	Identify(ctx context.Context, probe []byte, gallery []GalleryEntry) ([]Match, error)
}

const systemInstruction = "You are a professional face recognition system. Your task is to identify if the person in the 'Current Frame' matches any person in the 'Reference Gallery'. Analyze facial features meticulously. Return a list of matches with the exact name and a confidence score between 0 and 1."

const (
	probeCaption   = "Current Frame to check:"
	galleryCaption = "Reference Gallery of enrolled users:"
)

func entryCaption(label string) string { return "User: " + label }

// ParseMatches decodes a `{"matches":[{"name":..,"confidence":..}]}` payload.
func ParseMatches(data []byte) ([]Match, error) {
	trimmed := strings.TrimSpace(string(data))
	// Some models wrap JSON in a markdown fence.
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedResponse)
	}

	var out struct {
		Matches *[]struct {
			Name       *string  `json:"name"`
			Confidence *float64 `json:"confidence"`
		} `json:"matches"`
	}
	if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if out.Matches == nil {
		return nil, fmt.Errorf("%w: missing matches", ErrMalformedResponse)
	}

	matches := make([]Match, 0, len(*out.Matches))
	for i, m := range *out.Matches {
		if m.Name == nil || m.Confidence == nil {
			return nil, fmt.Errorf("%w: match %d missing name or confidence", ErrMalformedResponse, i)
		}
		if *m.Confidence < 0 || *m.Confidence > 1 {
			return nil, fmt.Errorf("%w: match %d confidence %v out of range", ErrMalformedResponse, i, *m.Confidence)
		}
		matches = append(matches, Match{Label: *m.Name, Confidence: *m.Confidence})
	}
	return matches, nil
}
