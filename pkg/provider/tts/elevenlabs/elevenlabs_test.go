package elevenlabs

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/asaficontact/reflective-resonance/pkg/provider/tts"
)

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestBuildURLForVoice(t *testing.T) {
	got := buildURLForVoice("21m00Tcm4TlvDq8ikWAM", "eleven_flash_v2_5", "pcm_24000")
	want := "wss://api.elevenlabs.io/v1/text-to-speech/21m00Tcm4TlvDq8ikWAM/stream-input?model_id=eleven_flash_v2_5&output_format=pcm_24000"
	if got != want {
		t.Errorf("url = %q, want %q", got, want)
	}
}

func TestBOIPayloadShape(t *testing.T) {
	vs := settingsFor(tts.VoiceProfile{
		Settings: tts.VoiceSettings{Stability: 0.65, SimilarityBoost: 0.75, Style: 0.05, UseSpeakerBoost: true, Speed: 0.92},
	})
	data, err := json.Marshal(boiMessage{Text: " ", VoiceSettings: &vs, XiAPIKey: "xi-test"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	payload := string(data)
	for _, want := range []string{`"xi_api_key":"xi-test"`, `"stability":0.65`, `"speed":0.92`, `"use_speaker_boost":true`} {
		if !strings.Contains(payload, want) {
			t.Errorf("BOI payload missing %s: %s", want, payload)
		}
	}
}

func TestEndOfInputOmitsFlush(t *testing.T) {
	data, err := json.Marshal(textMessage{Text: ""})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"text":""}` {
		t.Errorf("EOI payload = %s", data)
	}
}

func TestAudioResponseDecodes(t *testing.T) {
	var resp audioResponse
	err := json.Unmarshal([]byte(`{"audio":"AAAA","isFinal":true}`), &resp)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Audio != "AAAA" || !resp.IsFinal {
		t.Errorf("decoded = %+v", resp)
	}
}
