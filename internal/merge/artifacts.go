package merge

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

var thousand = decimal.NewFromInt(1000)

type (
	diarizationFile struct {
		Segments []diarizationSegment `json:"segments"`
	}

	diarizationSegment struct {
		Speaker string          `json:"speaker"`
		Start   decimal.Decimal `json:"start"`
		End     decimal.Decimal `json:"end"`
	}

	transcriptionFile struct {
		Segments []transcriptionSegment `json:"segments"`
	}

	transcriptionSegment struct {
		Text  string           `json:"text"`
		Start decimal.Decimal  `json:"start"`
		End   decimal.Decimal  `json:"end"`
		Words []transcriptWord `json:"words"`
	}

	transcriptWord struct {
		Text  string           `json:"word"`
		Start *decimal.Decimal `json:"start"`
		End   *decimal.Decimal `json:"end"`
	}
)

// DecodeDiarization parses a diarization result. Both a bare JSON array of
// {speaker, start, end} and an object with a "segments" array are accepted;
// times are in seconds.
func DecodeDiarization(body []byte) ([]SpeakerSegment, error) {
	var raw []diarizationSegment
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, fmt.Errorf("decoding diarization json result: %w", err)
		}
	} else {
		var f diarizationFile
		if err := json.Unmarshal(trimmed, &f); err != nil {
			return nil, fmt.Errorf("decoding diarization json result: %w", err)
		}
		raw = f.Segments
	}

	res := make([]SpeakerSegment, len(raw))
	for n, s := range raw {
		res[n] = SpeakerSegment{
			Speaker: s.Speaker,
			StartMs: secondsToMs(s.Start),
			EndMs:   secondsToMs(s.End),
		}
	}
	return res, nil
}

// DecodeTranscription parses a whisper style speech-to-text result into word
// tokens. Segments without word timings become a single token. Words without
// timings (whisperx leaves numerals unaligned) start where the previous word
// ended.
func DecodeTranscription(body []byte) ([]Token, error) {
	var f transcriptionFile
	if err := json.Unmarshal(body, &f); err != nil {
		return nil, fmt.Errorf("decoding transcription json result: %w", err)
	}

	var tokens []Token
	for _, s := range f.Segments {
		segStart, segEnd := secondsToMs(s.Start), secondsToMs(s.End)
		if len(s.Words) == 0 {
			tokens = append(tokens, Token{Text: s.Text, StartMs: segStart, EndMs: segEnd})
			continue
		}
		cursor := segStart
		for _, w := range s.Words {
			tok := Token{Text: w.Text, StartMs: cursor, EndMs: cursor}
			if w.Start != nil {
				tok.StartMs = secondsToMs(*w.Start)
			}
			if w.End != nil {
				tok.EndMs = secondsToMs(*w.End)
			} else if tok.StartMs > tok.EndMs {
				tok.EndMs = tok.StartMs
			}
			tokens = append(tokens, tok)
			cursor = tok.EndMs
		}
	}
	return tokens, nil
}

func secondsToMs(d decimal.Decimal) int64 {
	return d.Mul(thousand).Round(0).IntPart()
}
