package service

import (
	"encoding/json"
	"errors"
	"math"
	"regexp"
	"strings"

	"github.com/filmgrid/hub/internal/huberrors"
)

var (
	// flatArrayPattern matches the first non-greedy bracketed span; enough for an array of IDs.
	flatArrayPattern = regexp.MustCompile(`\[[\s\S]*?\]`)
	quotedTokenRe    = regexp.MustCompile(`"([^"]+)"`)
	codeFenceRe      = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")
)

var errNoArray = errors.New("no JSON array found in response")

const maxArrayCandidates = 8

// RankingEntry is one item parsed from a ranking response.
// Score is set only when the model returned scored objects.
type RankingEntry struct {
	ID               string
	Score            *int
	Explanation      string
	MatchingElements []string
}

type scoredItem struct {
	ID               string   `json:"id"`
	RelevanceScore   *float64 `json:"relevanceScore"`
	Score            *float64 `json:"score"`
	Explanation      string   `json:"explanation"`
	MatchingElements []string `json:"matchingElements"`
}

// ParseRanking extracts ranking entries from a model response.
//
// Stage 1 decodes the whole (fence-stripped) response as JSON. Stage 2 extracts the first
// bracketed array from surrounding prose. Stage 3, fast mode only, collects quoted tokens
// that are known candidate IDs. Each decode tries the mode's shape first and the other
// shape second. A response matching none of these yields a ParseError.
func ParseRanking(response string, mode RerankMode, knownIDs map[string]bool) ([]RankingEntry, error) {
	text := strings.TrimSpace(response)
	if m := codeFenceRe.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}

	if entries, err := decodeRanking([]byte(text), mode); err == nil {
		return entries, nil
	}

	for _, span := range arrayCandidates(text) {
		if entries, err := decodeRanking([]byte(span), mode); err == nil {
			return entries, nil
		}
	}

	if mode != RerankModeDetailed {
		if entries := knownQuotedIDs(text, knownIDs); len(entries) > 0 {
			return entries, nil
		}
	}

	return nil, huberrors.NewParseError("ranking response is not a JSON array of ids or scored objects", errNoArray)
}

func decodeRanking(raw []byte, mode RerankMode) ([]RankingEntry, error) {
	decoders := []func([]byte) ([]RankingEntry, error){decodeIDArray, decodeScoredArray}
	if mode == RerankModeDetailed {
		decoders = []func([]byte) ([]RankingEntry, error){decodeScoredArray, decodeIDArray}
	}

	var firstErr error

	for _, decode := range decoders {
		entries, err := decode(raw)
		if err == nil {
			return entries, nil
		}

		if firstErr == nil {
			firstErr = err
		}
	}

	return nil, firstErr
}

func decodeIDArray(raw []byte) ([]RankingEntry, error) {
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, err
	}

	if ids == nil {
		return nil, errNoArray
	}

	entries := make([]RankingEntry, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, RankingEntry{ID: id})
	}

	return entries, nil
}

func decodeScoredArray(raw []byte) ([]RankingEntry, error) {
	var items []scoredItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}

	if items == nil {
		return nil, errNoArray
	}

	entries := make([]RankingEntry, 0, len(items))

	for _, it := range items {
		if it.ID == "" {
			continue
		}

		e := RankingEntry{
			ID:               it.ID,
			Explanation:      strings.TrimSpace(it.Explanation),
			MatchingElements: it.MatchingElements,
		}

		score := it.RelevanceScore
		if score == nil {
			score = it.Score
		}

		if score != nil && !math.IsNaN(*score) {
			s := int(math.Round(*score))
			e.Score = &s
		}

		entries = append(entries, e)
	}

	if len(entries) == 0 && len(items) > 0 {
		return nil, errNoArray
	}

	return entries, nil
}

// arrayCandidates returns the balanced arrays found in text, in order of appearance, followed by
// the regex match when it is not one of them.
func arrayCandidates(text string) []string {
	var out []string

	seen := map[string]bool{}
	rest := text

	for range maxArrayCandidates {
		span, ok := firstBalancedArray(rest)
		if !ok {
			break
		}

		if !seen[span] {
			seen[span] = true
			out = append(out, span)
		}

		rest = rest[strings.Index(rest, span)+len(span):]
	}

	if m := flatArrayPattern.FindString(text); m != "" && !seen[m] {
		out = append(out, m)
	}

	return out
}

// firstBalancedArray scans for the first '[' and returns the span up to its matching ']',
// ignoring brackets inside JSON strings.
func firstBalancedArray(text string) (string, bool) {
	start := strings.IndexByte(text, '[')
	if start < 0 {
		return "", false
	}

	var (
		depth    int
		inString bool
		escaped  bool
	)

	for i := start; i < len(text); i++ {
		c := text[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}

			continue
		}

		switch c {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}

	return "", false
}

// knownQuotedIDs collects quoted tokens that are candidate IDs, in order of appearance.
func knownQuotedIDs(text string, knownIDs map[string]bool) []RankingEntry {
	var entries []RankingEntry

	for _, m := range quotedTokenRe.FindAllStringSubmatch(text, -1) {
		if knownIDs[normalizeID(m[1])] {
			entries = append(entries, RankingEntry{ID: m[1]})
		}
	}

	return entries
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
