package session

import (
	"testing"

	"github.com/asaficontact/reflective-resonance/pkg/types"
)

func TestTurnDirName(t *testing.T) {
	cases := []struct {
		turnIndex int
		want      string
	}{
		{1, "turn_1"},
		{2, "turn_2"},
		{3, "turn_3"},
		{types.SummaryTurnIndex, "summary"},
	}
	for _, tc := range cases {
		if got := TurnDirName(tc.turnIndex); got != tc.want {
			t.Errorf("TurnDirName(%d) = %q, want %q", tc.turnIndex, got, tc.want)
		}
	}
}

func TestBasenames(t *testing.T) {
	if got := Turn1Basename(3, "gpt-4o", "calm_soothing"); got != "slot-3_gpt-4o_calm_soothing" {
		t.Errorf("Turn1Basename = %q", got)
	}
	if got := Turn2Basename(2, 5, "gemini-3", "playful_expressive"); got != "slot-2_comment_to_slot-5_gemini-3_playful_expressive" {
		t.Errorf("Turn2Basename = %q", got)
	}
	if got := Turn3Basename(5, "claude-opus-4-5", "warm_professional"); got != "slot-5_reply_claude-opus-4-5_warm_professional" {
		t.Errorf("Turn3Basename = %q", got)
	}
	if got := SummaryBasename("friendly_casual"); got != "summary_friendly_casual" {
		t.Errorf("SummaryBasename = %q", got)
	}
}

func TestTTSRelPath(t *testing.T) {
	got := TTSRelPath("abc-123", 2, "slot-1_comment_to_slot-2_gpt-4o_friendly_casual")
	want := "tts/sessions/abc-123/turn_2/slot-1_comment_to_slot-2_gpt-4o_friendly_casual.wav"
	if got != want {
		t.Errorf("TTSRelPath = %q, want %q", got, want)
	}
}

func TestWaveRelPath(t *testing.T) {
	got := WaveRelPath("abc-123", 1, "slot-4_gpt-5.1_calm_soothing", 2)
	want := "waves/sessions/abc-123/turn_1/slot-4_gpt-5.1_calm_soothing_v3_wave2.wav"
	if got != want {
		t.Errorf("WaveRelPath = %q, want %q", got, want)
	}

	got = WaveRelPath("abc-123", types.SummaryTurnIndex, "summary_friendly_casual", 6)
	want = "waves/sessions/abc-123/summary/summary_friendly_casual_v3_wave6.wav"
	if got != want {
		t.Errorf("summary WaveRelPath = %q, want %q", got, want)
	}
}
