package tts

import "fmt"

// profiles is the fixed catalogue. Profile names are part of the structured
// output contract with the agents, so entries are never renamed.
var profiles = map[string]VoiceProfile{
	"friendly_casual": {
		Name:        "friendly_casual",
		VoiceID:     "cgSgspJ2msm6clMCkdW9",
		VoiceName:   "Jessica",
		Description: "Young female, American, expressive, conversational",
		Settings:    VoiceSettings{Stability: 0.45, SimilarityBoost: 0.75, Style: 0.15, UseSpeakerBoost: true, Speed: 1.0},
	},
	"warm_professional": {
		Name:        "warm_professional",
		VoiceID:     "cjVigY5qzO86Huf0OWal",
		VoiceName:   "Eric",
		Description: "Middle-aged male, American, friendly, professional",
		Settings:    VoiceSettings{Stability: 0.55, SimilarityBoost: 0.75, Style: 0.1, UseSpeakerBoost: true, Speed: 0.95},
	},
	"energetic_upbeat": {
		Name:        "energetic_upbeat",
		VoiceID:     "FGY2WhTYpPnrIDTdsKH5",
		VoiceName:   "Laura",
		Description: "Young female, American, upbeat, bright",
		Settings:    VoiceSettings{Stability: 0.35, SimilarityBoost: 0.75, Style: 0.25, UseSpeakerBoost: true, Speed: 1.05},
	},
	"calm_soothing": {
		Name:        "calm_soothing",
		VoiceID:     "21m00Tcm4TlvDq8ikWAM",
		VoiceName:   "Rachel",
		Description: "Young female, American, calm, pleasant",
		Settings:    VoiceSettings{Stability: 0.65, SimilarityBoost: 0.75, Style: 0.05, UseSpeakerBoost: true, Speed: 0.92},
	},
	"confident_charming": {
		Name:        "confident_charming",
		VoiceID:     "JBFqnCBsd6RMkjVDRZzb",
		VoiceName:   "George",
		Description: "Middle-aged male, British, warm, articulate",
		Settings:    VoiceSettings{Stability: 0.50, SimilarityBoost: 0.75, Style: 0.15, UseSpeakerBoost: true, Speed: 0.98},
	},
	"playful_expressive": {
		Name:        "playful_expressive",
		VoiceID:     "EXAVITQu4vr4xnSDxMaL",
		VoiceName:   "Sarah",
		Description: "Young female, expressive, dynamic range",
		Settings:    VoiceSettings{Stability: 0.30, SimilarityBoost: 0.75, Style: 0.30, UseSpeakerBoost: true, Speed: 1.0},
	},
}

// Profile returns the profile for name.
func Profile(name string) (VoiceProfile, error) {
	p, ok := profiles[name]
	if !ok {
		return VoiceProfile{}, fmt.Errorf("tts: unknown voice profile %q", name)
	}
	return p, nil
}

// ProfileOrFallback returns the profile for name, or the fallback profile
// when name is unknown or empty. Models sometimes invent profile names;
// synthesis still proceeds with the fallback voice.
func ProfileOrFallback(name, fallback string) VoiceProfile {
	if p, ok := profiles[name]; ok {
		return p
	}
	return profiles[fallback]
}

// ProfileNames lists the catalogue keys in no particular order.
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	return names
}
