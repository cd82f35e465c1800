package faceclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := range width {
		for y := range height {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestParseMatches(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    []Match
		wantErr bool
	}{
		{"single", `{"matches":[{"name":"Bob","confidence":0.95}]}`, []Match{{"Bob", 0.95}}, false},
		{"order kept", `{"matches":[{"name":"B","confidence":0.8},{"name":"A","confidence":0.9}]}`, []Match{{"B", 0.8}, {"A", 0.9}}, false},
		{"empty list", `{"matches":[]}`, []Match{}, false},
		{"fenced", "```json\n{\"matches\":[]}\n```", []Match{}, false},
		{"missing matches", `{"other":1}`, nil, true},
		{"missing confidence", `{"matches":[{"name":"Bob"}]}`, nil, true},
		{"confidence out of range", `{"matches":[{"name":"Bob","confidence":1.5}]}`, nil, true},
		{"not json", `Bob looks familiar`, nil, true},
		{"empty", ``, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMatches([]byte(tt.body))
			if tt.wantErr {
				require.ErrorIs(t, err, ErrMalformedResponse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrepareImage(t *testing.T) {
	t.Run("downscales landscape", func(t *testing.T) {
		out, err := PrepareImage(encodePNG(t, createTestImage(400, 200)), 100)
		require.NoError(t, err)

		img, format, err := image.Decode(bytes.NewReader(out))
		require.NoError(t, err)
		assert.Equal(t, "jpeg", format)
		assert.Equal(t, 100, img.Bounds().Dx())
		assert.Equal(t, 50, img.Bounds().Dy())
	})

	t.Run("keeps small images", func(t *testing.T) {
		out, err := PrepareImage(encodePNG(t, createTestImage(40, 60)), 100)
		require.NoError(t, err)
		img, err := jpeg.Decode(bytes.NewReader(out))
		require.NoError(t, err)
		assert.Equal(t, 40, img.Bounds().Dx())
	})

	t.Run("rejects garbage", func(t *testing.T) {
		_, err := PrepareImage([]byte("not an image"), 100)
		assert.ErrorIs(t, err, ErrDecode)
	})

	t.Run("rejects empty", func(t *testing.T) {
		_, err := PrepareImage(nil, 100)
		assert.ErrorIs(t, err, ErrDecode)
	})
}

func TestDecodeDataURL(t *testing.T) {
	raw := []byte("hello")
	enc := base64.StdEncoding.EncodeToString(raw)

	got, err := DecodeDataURL("data:image/jpeg;base64," + enc)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	got, err = DecodeDataURL(enc)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	_, err = DecodeDataURL("data:image/jpeg;base64")
	assert.ErrorIs(t, err, ErrDecode)

	_, err = DecodeDataURL("%%%")
	assert.ErrorIs(t, err, ErrDecode)
}

func TestClientIdentify(t *testing.T) {
	var got identifyRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/identify", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"matches":[{"name":"Bob","confidence":0.91}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, false)
	matches, err := c.Identify(context.Background(), []byte("probe"), []GalleryEntry{{Label: "Bob", Image: []byte("ref")}})
	require.NoError(t, err)
	assert.Equal(t, []Match{{Label: "Bob", Confidence: 0.91}}, matches)

	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("probe")), got.Probe)
	require.Len(t, got.Gallery, 1)
	assert.Equal(t, "Bob", got.Gallery[0].Label)
}

func TestClientIdentifyServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL, false).Identify(context.Background(), []byte("probe"), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRecognizer))
}

func TestClientIdentifyMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"nope":true}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, false).Identify(context.Background(), []byte("probe"), nil)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestClientSkipMode(t *testing.T) {
	c := New("http://unused", true)
	require.NoError(t, c.Health(context.Background()))

	matches, err := c.Identify(context.Background(), nil, []GalleryEntry{{Label: "Ann"}, {Label: "Bob"}})
	require.NoError(t, err)
	assert.Equal(t, []Match{{Label: "Ann", Confidence: 0.95}}, matches)

	matches, err = c.Identify(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestClientHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	assert.Error(t, New(srv.URL, false).Health(context.Background()))
}

func TestBuildGeminiParts(t *testing.T) {
	parts := buildGeminiParts([]byte("probe"), []GalleryEntry{
		{Label: "Ann", Image: []byte("a")},
		{Label: "Bob", Image: []byte("b")},
	})
	require.Len(t, parts, 7)
	assert.Equal(t, probeCaption, parts[0].Text)
	assert.Equal(t, []byte("probe"), parts[1].InlineData.Data)
	assert.Equal(t, galleryCaption, parts[2].Text)
	assert.Equal(t, "User: Ann", parts[3].Text)
	assert.Equal(t, "User: Bob", parts[5].Text)
	assert.Equal(t, "image/jpeg", parts[6].InlineData.MIMEType)
}

func TestOpenAIRecognizerIdentify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		content, _ := json.Marshal(`{"matches":[{"name":"Ann","confidence":0.88}]}`)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cmpl-1","object":"chat.completion","created":0,"model":"gpt-4.1-mini","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":` + string(content) + `}}]}`))
	}))
	defer srv.Close()

	r := NewOpenAIRecognizer("test-key", option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	matches, err := r.Identify(context.Background(), []byte("probe"), []GalleryEntry{{Label: "Ann", Image: []byte("a")}})
	require.NoError(t, err)
	assert.Equal(t, []Match{{Label: "Ann", Confidence: 0.88}}, matches)
}
