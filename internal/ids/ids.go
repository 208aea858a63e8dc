// Package ids derives the deterministic identifiers for every entity the
// pipeline writes. An ID is a pure function of its parent ID and index so
// that re-running a stage after a crash reinserts the same rows instead of
// duplicating them.
package ids

import "fmt"

// Kind names the derived-entity namespace an index belongs to.
type Kind string

const (
	KindScene   Kind = "scene"
	KindFrame   Kind = "frame"
	KindSegment Kind = "segment"
)

// Derive returns "{videoID}_{kind}_{idx:03d}", zero-padded to at least three
// digits and wider for idx >= 1000. No randomness, no clock reads.
func Derive(videoID string, kind Kind, idx int) string {
	return fmt.Sprintf("%s_%s_%03d", videoID, kind, idx)
}

// Scene derives a Scene ID.
func Scene(videoID string, idx int) string { return Derive(videoID, KindScene, idx) }

// Frame derives a Frame ID.
func Frame(videoID string, idx int) string { return Derive(videoID, KindFrame, idx) }

// Segment derives a TranscriptSegment ID.
func Segment(videoID string, idx int) string { return Derive(videoID, KindSegment, idx) }

// Caption derives the FrameCaption ID owned by a given frame ID.
func Caption(frameID string) string { return frameID + "_caption" }
