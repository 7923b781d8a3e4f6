// Package session allocates per-broadcast sessions, owns the artifact
// filesystem layout, and accumulates the session manifest.
//
// All path derivation is deterministic and pure: the orchestrator re-derives
// wave paths from slot metadata and they must match the files the worker
// pool writes byte for byte.
package session

import (
	"fmt"
	"path/filepath"

	"github.com/asaficontact/reflective-resonance/pkg/types"
)

// TurnDirName returns the per-turn directory name: "turn_<N>" for turns 1-3
// and "summary" for the Turn-4 sentinel.
func TurnDirName(turnIndex int) string {
	if turnIndex == types.SummaryTurnIndex {
		return "summary"
	}
	return fmt.Sprintf("turn_%d", turnIndex)
}

// Turn1Basename is "slot-<N>_<agent>_<voice>".
func Turn1Basename(slotID int, agentID, voiceProfile string) string {
	return fmt.Sprintf("slot-%d_%s_%s", slotID, agentID, voiceProfile)
}

// Turn2Basename is "slot-<N>_comment_to_slot-<T>_<agent>_<voice>".
func Turn2Basename(slotID, targetSlotID int, agentID, voiceProfile string) string {
	return fmt.Sprintf("slot-%d_comment_to_slot-%d_%s_%s", slotID, targetSlotID, agentID, voiceProfile)
}

// Turn3Basename is "slot-<N>_reply_<agent>_<voice>".
func Turn3Basename(slotID int, agentID, voiceProfile string) string {
	return fmt.Sprintf("slot-%d_reply_%s_%s", slotID, agentID, voiceProfile)
}

// SummaryBasename is "summary_<voice>".
func SummaryBasename(voiceProfile string) string {
	return "summary_" + voiceProfile
}

// TTSRelPath returns the TTS audio path relative to the artifacts root,
// always slash-separated: "tts/sessions/<sid>/<turnDir>/<basename>.wav".
func TTSRelPath(sessionID string, turnIndex int, basename string) string {
	return fmt.Sprintf("tts/sessions/%s/%s/%s.wav", sessionID, TurnDirName(turnIndex), basename)
}

// WavesRelDir returns the wave output directory relative to the artifacts
// root: "waves/sessions/<sid>/<turnDir>".
func WavesRelDir(sessionID string, turnIndex int) string {
	return fmt.Sprintf("waves/sessions/%s/%s", sessionID, TurnDirName(turnIndex))
}

// WaveBasename is "<basename>_v3_wave<k>" for k starting at 1.
func WaveBasename(basename string, k int) string {
	return fmt.Sprintf("%s_v3_wave%d", basename, k)
}

// WaveRelPath returns the k-th wave file path relative to the artifacts root.
func WaveRelPath(sessionID string, turnIndex int, basename string, k int) string {
	return fmt.Sprintf("%s/%s.wav", WavesRelDir(sessionID, turnIndex), WaveBasename(basename, k))
}

// AbsPath joins a slash-separated artifact-relative path onto the artifacts
// root using the platform separator.
func AbsPath(root, relPath string) string {
	return filepath.Join(root, filepath.FromSlash(relPath))
}
