package service

import (
	"fmt"
	"strings"
)

const (
	reasonSeparator   = " • "
	aiRankedLabel     = "AI-ranked for relevance"
	vectorMatchLabel  = "Vector similarity match"
	variousThemes     = "Various themes"
	topPositionLimit  = 3
	reasonGenresLimit = 2
)

// rankedReason is the short reason for a model-ranked item at 1-based position.
func rankedReason(position, score int, genres []string) string {
	parts := []string{positionLabel(position), scoreLabel(score)}
	if g := genreLabel(genres); g != "" {
		parts = append(parts, g)
	}

	parts = append(parts, aiRankedLabel)

	return strings.Join(parts, reasonSeparator)
}

// fallbackReason is the generic reason used when ordering came from vector similarity alone.
func fallbackReason(position int, genres []string) string {
	g := genreLabel(genres)
	if g == "" {
		g = variousThemes
	}

	return strings.Join([]string{fmt.Sprintf("Rank #%d", position), vectorMatchLabel, g}, reasonSeparator)
}

func positionLabel(position int) string {
	if position <= topPositionLimit {
		return fmt.Sprintf("Top %d", position)
	}

	return fmt.Sprintf("#%d", position)
}

func scoreLabel(score int) string {
	switch {
	case score >= 90:
		return "Perfect Match"
	case score >= 75:
		return "Excellent Match"
	case score >= 60:
		return "Great Match"
	default:
		return "Good Match"
	}
}

func genreLabel(genres []string) string {
	n := min(len(genres), reasonGenresLimit)

	return strings.Join(genres[:n], " & ")
}
