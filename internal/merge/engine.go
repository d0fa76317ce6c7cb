// Package merge aligns speaker diarization segments with word-level
// speech-to-text output and renders the result as a speaker-annotated
// transcript.
//
// The engine is pure: no I/O and no logging. Every token of the transcription
// ends up in exactly one output block, and the same input and options always
// produce the same blocks.
package merge

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// DefaultUnknownSpeaker labels tokens no diarization segment accounts for.
const DefaultUnknownSpeaker = "Unknown speaker"

// ErrValidation is matched by every *ValidationError.
var ErrValidation = errors.New("invalid merge input")

// SpeakerSegment is one diarization turn, [StartMs, EndMs).
type SpeakerSegment struct {
	Speaker string `json:"speaker"`
	StartMs int64  `json:"start_ms"`
	EndMs   int64  `json:"end_ms"`
}

// Token is one transcribed word.
type Token struct {
	Text    string `json:"text"`
	StartMs int64  `json:"start_ms"`
	EndMs   int64  `json:"end_ms"`
}

// Block is a run of consecutive tokens attributed to one speaker.
type Block struct {
	Speaker string `json:"speaker"`
	StartMs int64  `json:"start_ms"`
	EndMs   int64  `json:"end_ms"`
	Text    string `json:"text"`
}

// ValidationError describes malformed merge input.
type ValidationError struct {
	Kind   string // "segment" or "token"
	Index  int
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %d: %s", e.Kind, e.Index, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Options are the tuning knobs of the engine, all in milliseconds.
type Options struct {
	// GapBridgeMs is how far a token may sit outside every segment and still
	// be given to the nearest one.
	GapBridgeMs int64
	// PauseSplitMs is the longest silence between two tokens of the same
	// speaker that still keeps them in one block.
	PauseSplitMs int64
	// Inclusive makes a distance equal to a threshold count as within it.
	Inclusive bool
	// UnknownSpeaker labels tokens beyond GapBridgeMs of any segment.
	UnknownSpeaker string
}

// Engine merges diarization and transcription results.
type Engine struct {
	opts Options
}

// New creates an engine with the given options.
func New(opts Options) *Engine {
	if opts.UnknownSpeaker == "" {
		opts.UnknownSpeaker = DefaultUnknownSpeaker
	}
	return &Engine{opts: opts}
}

// Merge attributes every token to a speaker and collapses consecutive tokens
// of the same speaker into blocks.
func (e *Engine) Merge(segments []SpeakerSegment, tokens []Token) ([]Block, error) {
	if err := validateSegments(segments); err != nil {
		return nil, err
	}
	if err := validateTokens(tokens); err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return []Block{}, nil
	}

	ordered := make([]SpeakerSegment, len(segments))
	copy(ordered, segments)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].StartMs < ordered[j].StartMs
	})

	tl := newTimeline(ordered)
	var (
		blocks []Block
		words  []string
		prev   Token
	)
	flush := func() {
		if len(blocks) == 0 {
			return
		}
		blocks[len(blocks)-1].Text = strings.Join(words, " ")
		words = words[:0]
	}
	for i, tok := range tokens {
		speaker := e.speakerFor(tl, tok.StartMs)
		if i == 0 || speaker != blocks[len(blocks)-1].Speaker || e.exceeds(tok.StartMs-prev.EndMs, e.opts.PauseSplitMs) {
			flush()
			blocks = append(blocks, Block{Speaker: speaker, StartMs: tok.StartMs})
		}
		cur := &blocks[len(blocks)-1]
		if tok.EndMs > cur.EndMs {
			cur.EndMs = tok.EndMs
		}
		words = append(words, strings.Fields(tok.Text)...)
		prev = tok
	}
	flush()
	return blocks, nil
}

// timeline is the start-ordered diarization with, for every prefix, the
// earliest segment that ends last. It is built once per merge.
type timeline struct {
	segments []SpeakerSegment
	// latest[i] indexes the segment in [0, i] with the greatest EndMs; ties
	// keep the lower index.
	latest []int
}

func newTimeline(ordered []SpeakerSegment) timeline {
	latest := make([]int, len(ordered))
	for i := range ordered {
		latest[i] = i
		if i > 0 && ordered[latest[i-1]].EndMs >= ordered[i].EndMs {
			latest[i] = latest[i-1]
		}
	}
	return timeline{segments: ordered, latest: latest}
}

// speakerFor picks the segment containing t; among overlapping segments the
// one that started last wins. Otherwise the nearest segment within the gap
// bridge is used, preferring the earlier one on a tie.
func (e *Engine) speakerFor(tl timeline, t int64) string {
	segments := tl.segments
	// First segment starting after t.
	next := sort.Search(len(segments), func(i int) bool {
		return segments[i].StartMs > t
	})

	best, bestDist := -1, int64(0)
	if next > 0 {
		prev := tl.latest[next-1]
		if segments[prev].EndMs > t {
			// Some segment in [0, next) contains t.
			for i := next - 1; i >= 0; i-- {
				if t < segments[i].EndMs {
					return segments[i].Speaker
				}
			}
		}
		best, bestDist = prev, t-segments[prev].EndMs
	}
	if next < len(segments) {
		if d := segments[next].StartMs - t; best == -1 || d < bestDist {
			best, bestDist = next, d
		}
	}
	if best == -1 || e.exceeds(bestDist, e.opts.GapBridgeMs) {
		return e.opts.UnknownSpeaker
	}
	return segments[best].Speaker
}

func (e *Engine) exceeds(d, threshold int64) bool {
	if e.opts.Inclusive {
		return d > threshold
	}
	return d >= threshold
}

func validateSegments(segments []SpeakerSegment) error {
	for i, s := range segments {
		switch {
		case s.StartMs < 0 || s.EndMs < 0:
			return &ValidationError{Kind: "segment", Index: i, Reason: "negative timestamp"}
		case s.EndMs < s.StartMs:
			return &ValidationError{Kind: "segment", Index: i, Reason: fmt.Sprintf("ends at %d before it starts at %d", s.EndMs, s.StartMs)}
		}
	}
	return nil
}

func validateTokens(tokens []Token) error {
	for i, t := range tokens {
		switch {
		case t.StartMs < 0 || t.EndMs < 0:
			return &ValidationError{Kind: "token", Index: i, Reason: "negative timestamp"}
		case t.EndMs < t.StartMs:
			return &ValidationError{Kind: "token", Index: i, Reason: fmt.Sprintf("ends at %d before it starts at %d", t.EndMs, t.StartMs)}
		case i > 0 && t.StartMs < tokens[i-1].StartMs:
			return &ValidationError{Kind: "token", Index: i, Reason: "tokens are not ordered by start time"}
		}
	}
	return nil
}
