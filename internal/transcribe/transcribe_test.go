package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/zapagent/zapagent/internal/log"
)

func TestClient_Transcribe(t *testing.T) {
	var gotAuth, gotModel, gotLang, gotFilename string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")

		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
		}
		gotModel = r.FormValue("model")
		gotLang = r.FormValue("language")

		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
		} else {
			gotFilename = header.Filename
			_, _ = io.ReadAll(file)
			_ = file.Close()
		}

		_ = json.NewEncoder(w).Encode(map[string]string{"text": "  bom dia, tudo bem?  "})
	}))
	defer srv.Close()

	client := NewClient(Config{
		URL:      srv.URL,
		APIKey:   "test-key",
		Model:    "whisper-large-v3",
		Language: "pt",
	}, log.NewNop())

	text, err := client.Transcribe(context.Background(), Audio{
		Data: []byte("fake-ogg-bytes"),
		MIME: "audio/ogg; codecs=opus",
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if text != "bom dia, tudo bem?" {
		t.Errorf("text = %q, want trimmed transcript", text)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotModel != "whisper-large-v3" {
		t.Errorf("model = %q", gotModel)
	}
	if gotLang != "pt" {
		t.Errorf("language = %q", gotLang)
	}
	if gotFilename != "audio.ogg" {
		t.Errorf("filename = %q, want audio.ogg (codecs parameter must be stripped)", gotFilename)
	}
}

func TestClient_TranscribeErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid file"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewClient(Config{URL: srv.URL, APIKey: "k", Model: "whisper-1"}, log.NewNop())
	ctx := context.Background()

	if _, err := client.Transcribe(ctx, Audio{}); !errors.Is(err, ErrNoAudio) {
		t.Errorf("empty audio = %v, want ErrNoAudio", err)
	}

	noKey := NewClient(Config{URL: srv.URL, Model: "whisper-1"}, log.NewNop())
	if _, err := noKey.Transcribe(ctx, Audio{Data: []byte("x")}); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("missing key = %v, want ErrMissingAPIKey", err)
	}

	_, err := client.Transcribe(ctx, Audio{Data: []byte("x"), MIME: "audio/ogg"})
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Errorf("non-2xx should surface status, got %v", err)
	}
}

func TestFileExt(t *testing.T) {
	tests := []struct {
		mime string
		want string
	}{
		{"audio/ogg; codecs=opus", "ogg"},
		{"audio/mpeg", "mp3"},
		{"audio/mp4", "m4a"},
		{"audio/wav", "wav"},
		{"", "ogg"},
		{"audio/unknown", "ogg"},
	}
	for _, tt := range tests {
		if got := fileExt(tt.mime); got != tt.want {
			t.Errorf("fileExt(%q) = %q, want %q", tt.mime, got, tt.want)
		}
	}
}
