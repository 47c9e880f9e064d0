package service

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/filmgrid/hub/internal/models"
)

// RerankMode selects the response shape the reranker asks the model for.
type RerankMode string

// Rerank modes.
const (
	// RerankModeFast asks for an ordered array of movie IDs.
	RerankModeFast RerankMode = "fast"
	// RerankModeDetailed asks for scored objects with an explanation each.
	RerankModeDetailed RerankMode = "detailed"
)

const promptPlotLimit = 200

const fastRankingInstructions = `Instructions:
1. Analyze each movie's relevance to the user query
2. Consider plot, genres, themes, and vector similarity
3. Return ONLY a JSON array with movie IDs ranked by relevance (most relevant first)
4. Format: ["movie_id_1", "movie_id_2", "movie_id_3", ...]
5. Include ALL movies in the ranking, just reorder them

Example:
User Query: "space adventure with robots"
Response: ["star_wars_id", "wall_e_id", "interstellar_id", "blade_runner_id"]

Return only the JSON array, no other text:`

const detailedRankingInstructions = `Instructions:
1. Analyze each movie's relevance to the user query
2. Consider plot, genres, themes, and vector similarity
3. Score every movie from 0 to 100 (100 = perfect match)
4. Return ONLY a JSON array of objects ordered by relevanceScore (highest first)
5. Format: [{"id": "movie_id", "relevanceScore": 87, "explanation": "one sentence", "matchingElements": ["theme", "setting"]}, ...]
6. Include ALL movies, use the exact IDs listed above

Return only the JSON array, no other text:`

// buildRankingPrompt renders the single ranking prompt for all candidates.
func buildRankingPrompt(query string, candidates []models.CandidateMovie, mode RerankMode) string {
	var b strings.Builder

	b.WriteString("You are a movie recommendation AI. Your task is to rank movies by relevance to a user query.\n\n")
	fmt.Fprintf(&b, "User Query: %q\n\n", query)
	b.WriteString("Movies to rank (with vector similarity scores):\n")

	for i, c := range candidates {
		if i > 0 {
			b.WriteString("\n")
		}

		writeCandidate(&b, i+1, c)
	}

	b.WriteString("\n")

	if mode == RerankModeDetailed {
		b.WriteString(detailedRankingInstructions)
	} else {
		b.WriteString(fastRankingInstructions)
	}

	b.WriteString("\n")

	return b.String()
}

func writeCandidate(b *strings.Builder, n int, c models.CandidateMovie) {
	year := "Unknown year"
	if c.Year != nil {
		year = strconv.Itoa(*c.Year)
	}

	plot := c.FullPlot
	if plot == "" {
		plot = c.Plot
	}

	if plot == "" {
		plot = "No plot available"
	}

	genres := "Unknown genres"
	if len(c.Genres) > 0 {
		genres = strings.Join(c.Genres, ", ")
	}

	fmt.Fprintf(b, "%d. ID: %s\n", n, c.ID)
	fmt.Fprintf(b, "Title: %s (%s)\n", c.Title, year)
	fmt.Fprintf(b, "Plot: %s...\n", truncateRunes(plot, promptPlotLimit))
	fmt.Fprintf(b, "Genres: %s\n", genres)
	fmt.Fprintf(b, "Vector Similarity: %.1f%%\n", c.SimilarityScore*100)
}

// buildExplanationPrompt asks for a one-sentence explanation of a single match.
func buildExplanationPrompt(query string, rec models.RankedRecommendation) string {
	year := ""
	if rec.Movie.Year != nil {
		year = fmt.Sprintf(" (%d)", *rec.Movie.Year)
	}

	return fmt.Sprintf(`You are a movie recommendation AI.
User Query: %q

Movie: %s%s
Plot: %s
Genres: %s

In one sentence, explain why this movie matches the user query. Return only the sentence.
`, query, rec.Movie.Title, year, truncateRunes(rec.Movie.Plot, promptPlotLimit*2), strings.Join(rec.Movie.Genres, ", "))
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}

	return string(r[:n])
}
