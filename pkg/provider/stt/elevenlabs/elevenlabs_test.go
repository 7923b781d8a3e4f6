package elevenlabs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/asaficontact/reflective-resonance/pkg/provider/stt"
)

func TestTranscribeSendsScribeForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("xi-api-key"); got != "xi-test" {
			t.Errorf("xi-api-key = %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parsing form: %v", err)
		}
		if got := r.FormValue("model_id"); got != "scribe_v1" {
			t.Errorf("model_id = %q", got)
		}
		if got := r.FormValue("language_code"); got != "en" {
			t.Errorf("language_code = %q", got)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer file.Close()
		if header.Filename != "input.webm" {
			t.Errorf("filename = %q", header.Filename)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"hello water","language_code":"en","transcription_id":"t1"}`))
	}))
	defer srv.Close()

	tr, err := New("xi-test", WithEndpoint(srv.URL), WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := tr.Transcribe(context.Background(), stt.Request{
		Audio:        []byte{0x1a, 0x45},
		Filename:     "input.webm",
		LanguageCode: "en",
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got.Text != "hello water" || got.LanguageCode != "en" {
		t.Errorf("transcript = %+v", got)
	}
	if len(got.Raw) == 0 {
		t.Error("raw vendor response should be preserved")
	}
}

func TestTranscribeSurfacesVendorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	tr, _ := New("xi-test", WithEndpoint(srv.URL), WithHTTPClient(srv.Client()))
	_, err := tr.Transcribe(context.Background(), stt.Request{Audio: []byte{1}, Filename: "input.wav"})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d", apiErr.StatusCode)
	}
}

func TestTranscribeRejectsEmptyAudio(t *testing.T) {
	tr, _ := New("xi-test")
	if _, err := tr.Transcribe(context.Background(), stt.Request{Filename: "input.wav"}); err == nil {
		t.Error("expected error for empty audio")
	}
}
