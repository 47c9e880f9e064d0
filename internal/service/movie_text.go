package service

import (
	"strconv"
	"strings"

	"github.com/filmgrid/hub/internal/models"
)

const embeddingCastLimit = 10

// MovieEmbeddingText is the labelled text a movie's embedding is computed from.
// Empty fields are omitted; at most the first ten cast members are included.
func MovieEmbeddingText(m models.Movie) string {
	parts := make([]string, 0, 8)

	if m.Title != "" {
		parts = append(parts, "Title: "+m.Title)
	}

	if m.Plot != "" {
		parts = append(parts, "Plot: "+m.Plot)
	}

	if m.FullPlot != "" {
		parts = append(parts, "Full Plot: "+m.FullPlot)
	}

	if len(m.Genres) > 0 {
		parts = append(parts, "Genres: "+strings.Join(m.Genres, ", "))
	}

	if len(m.Directors) > 0 {
		parts = append(parts, "Directors: "+strings.Join(m.Directors, ", "))
	}

	if len(m.Cast) > 0 {
		parts = append(parts, "Cast: "+strings.Join(m.Cast[:min(len(m.Cast), embeddingCastLimit)], ", "))
	}

	if m.Year != nil {
		parts = append(parts, "Year: "+strconv.Itoa(*m.Year))
	}

	if m.Rated != nil && *m.Rated != "" {
		parts = append(parts, "Rating: "+*m.Rated)
	}

	return strings.Join(parts, ". ")
}
