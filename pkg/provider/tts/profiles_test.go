package tts

import (
	"slices"
	"testing"
)

func TestCatalogueComplete(t *testing.T) {
	names := ProfileNames()
	slices.Sort(names)
	want := []string{
		"calm_soothing",
		"confident_charming",
		"energetic_upbeat",
		"friendly_casual",
		"playful_expressive",
		"warm_professional",
	}
	if !slices.Equal(names, want) {
		t.Errorf("profiles = %v, want %v", names, want)
	}
}

func TestProfileBindsVendorVoice(t *testing.T) {
	p, err := Profile("calm_soothing")
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if p.VoiceID != "21m00Tcm4TlvDq8ikWAM" || p.VoiceName != "Rachel" {
		t.Errorf("calm_soothing = %+v", p)
	}
	if p.Settings.Stability != 0.65 || p.Settings.Speed != 0.92 {
		t.Errorf("calm_soothing settings = %+v", p.Settings)
	}
}

func TestProfileUnknown(t *testing.T) {
	if _, err := Profile("whale_song"); err == nil {
		t.Error("expected error for unknown profile")
	}
}

func TestProfileOrFallback(t *testing.T) {
	p := ProfileOrFallback("whale_song", "friendly_casual")
	if p.Name != "friendly_casual" {
		t.Errorf("fallback profile = %q", p.Name)
	}
	p = ProfileOrFallback("energetic_upbeat", "friendly_casual")
	if p.Name != "energetic_upbeat" {
		t.Errorf("known profile = %q", p.Name)
	}
}

func TestEverySettingsHasSpeakerBoost(t *testing.T) {
	for _, name := range ProfileNames() {
		p, _ := Profile(name)
		if !p.Settings.UseSpeakerBoost {
			t.Errorf("%s: use_speaker_boost should be set", name)
		}
		if p.Settings.SimilarityBoost != 0.75 {
			t.Errorf("%s: similarity_boost = %v", name, p.Settings.SimilarityBoost)
		}
	}
}
