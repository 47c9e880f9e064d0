package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filmgrid/hub/internal/models"
)

func rankedIDs(ranked []models.RankedRecommendation) []string {
	ids := make([]string, len(ranked))
	for i, r := range ranked {
		ids[i] = r.Movie.ID.String()
	}

	return ids
}

func candidateIDs(cs []models.CandidateMovie, order ...int) []string {
	ids := make([]string, len(order))
	for i, idx := range order {
		ids[i] = cs[idx].ID.String()
	}

	return ids
}

func assertMonotonic(t *testing.T, ranked []models.RankedRecommendation) {
	t.Helper()

	for i := 1; i < len(ranked); i++ {
		assert.GreaterOrEqual(t, ranked[i-1].RelevanceScore, ranked[i].RelevanceScore,
			"relevance must not increase at position %d", i)
	}
}

func TestReranker_Rank_FastMode(t *testing.T) {
	cs := []models.CandidateMovie{
		candidate("Heat", 0.7, "Crime", "Drama", "Thriller"),
		candidate("Alien", 0.6, "Horror", "Sci-Fi"),
		candidate("Up", 0.5),
		candidate("Cars", 0.4, "Animation"),
	}
	gen := &fakeGenerator{response: quotedIDs(cs, 2, 0, 1, 3)}
	r := NewReranker(RerankerParams{Generator: gen})

	ranked := r.Rank(context.Background(), "something", cs)

	require.Len(t, ranked, 4)
	assert.Equal(t, candidateIDs(cs, 2, 0, 1, 3), rankedIDs(ranked))
	assert.Equal(t, []int{95, 90, 85, 80}, []int{
		ranked[0].RelevanceScore, ranked[1].RelevanceScore, ranked[2].RelevanceScore, ranked[3].RelevanceScore,
	})
	assert.Equal(t, "Top 1 • Perfect Match • AI-ranked for relevance", ranked[0].Reason)
	assert.Equal(t, "Top 2 • Perfect Match • Crime & Drama • AI-ranked for relevance", ranked[1].Reason)
	assert.Equal(t, "Top 3 • Excellent Match • Horror & Sci-Fi • AI-ranked for relevance", ranked[2].Reason)
	assert.Equal(t, "#4 • Excellent Match • Animation • AI-ranked for relevance", ranked[3].Reason)
	assert.Equal(t, 1, ranked[0].Rank)
	assert.Equal(t, 4, ranked[3].Rank)
	assert.InDelta(t, 0.5, ranked[0].SimilarityScore, 1e-9)
	assert.Equal(t, 1, gen.callCount(), "one generation call per Rank")
}

func TestReranker_Rank_Completeness(t *testing.T) {
	cs := candidates(6)

	tests := []struct {
		name     string
		response string
		err      error
	}{
		{"full ranking", quotedIDs(cs, 5, 4, 3, 2, 1, 0), nil},
		{"partial ranking", quotedIDs(cs, 3, 1), nil},
		{"duplicates", quotedIDs(cs, 2, 2, 2, 0), nil},
		{"unknown ids", `["not-a-movie", "` + cs[4].ID.String() + `", "also-unknown"]`, nil},
		{"empty array", `[]`, nil},
		{"prose only", "I am unable to help with that.", nil},
		{"call failure", "", errors.New("upstream down")},
		{"scored objects", `[{"id":"` + cs[1].ID.String() + `","relevanceScore":140},{"id":"` + cs[0].ID.String() + `","relevanceScore":-3}]`, nil},
	}

	for _, mode := range []RerankMode{RerankModeFast, RerankModeDetailed} {
		for _, tt := range tests {
			t.Run(string(mode)+"/"+tt.name, func(t *testing.T) {
				r := NewReranker(RerankerParams{
					Generator: &fakeGenerator{response: tt.response, err: tt.err},
					Mode:      mode,
				})

				ranked := r.Rank(context.Background(), "query", cs)

				require.Len(t, ranked, len(cs))
				assert.ElementsMatch(t, candidateIDs(cs, 0, 1, 2, 3, 4, 5), rankedIDs(ranked))
				assertMonotonic(t, ranked)

				for i, rec := range ranked {
					assert.Equal(t, i+1, rec.Rank)
					assert.NotEmpty(t, rec.Reason)
					assert.GreaterOrEqual(t, rec.RelevanceScore, 0)
					assert.LessOrEqual(t, rec.RelevanceScore, 100)
				}
			})
		}
	}
}

func TestReranker_Rank_UnmentionedAppendedInInputOrder(t *testing.T) {
	cs := candidates(5)
	r := NewReranker(RerankerParams{Generator: &fakeGenerator{response: quotedIDs(cs, 3, 3, 1)}})

	ranked := r.Rank(context.Background(), "query", cs)

	assert.Equal(t, candidateIDs(cs, 3, 1, 0, 2, 4), rankedIDs(ranked))
	assert.Equal(t, 95, ranked[0].RelevanceScore)
	assert.Equal(t, 90, ranked[1].RelevanceScore)

	for _, rec := range ranked[2:] {
		assert.Equal(t, unrankedScore, rec.RelevanceScore)
	}
}

func TestReranker_Rank_ScoreFloor(t *testing.T) {
	cs := candidates(30)
	order := make([]int, len(cs))

	for i := range order {
		order[i] = i
	}

	r := NewReranker(RerankerParams{Generator: &fakeGenerator{response: quotedIDs(cs, order...)}})
	ranked := r.Rank(context.Background(), "query", cs)

	require.Len(t, ranked, 30)
	assert.Equal(t, 20, ranked[15].RelevanceScore)
	assert.Equal(t, 20, ranked[29].RelevanceScore)
	assert.Equal(t, 25, ranked[14].RelevanceScore)
}

func TestReranker_Rank_DetailedMode(t *testing.T) {
	cs := candidates(3)
	response := "Ranking:\n[" +
		`{"id":"` + cs[2].ID.String() + `","relevanceScore":64,"explanation":"Quiet drama."},` +
		`{"id":"` + cs[0].ID.String() + `","relevanceScore":120,"explanation":"","matchingElements":["family"]}` +
		"]"
	gen := &fakeGenerator{response: response}
	r := NewReranker(RerankerParams{Generator: gen, Mode: RerankModeDetailed})

	ranked := r.Rank(context.Background(), "query", cs)

	assert.Equal(t, candidateIDs(cs, 0, 2, 1), rankedIDs(ranked))
	assert.Equal(t, 100, ranked[0].RelevanceScore)
	assert.Equal(t, []string{"family"}, ranked[0].MatchingElements)
	assert.Equal(t, "Top 1 • Perfect Match • Drama • AI-ranked for relevance", ranked[0].Reason)
	assert.Equal(t, 64, ranked[1].RelevanceScore)
	assert.Equal(t, "Quiet drama.", ranked[1].Reason)
	assert.Equal(t, unrankedScore, ranked[2].RelevanceScore)
	assert.Contains(t, gen.prompts[0], `"relevanceScore"`)
}

func TestReranker_Rank_DetailedModeUnscoredKeepsModelOrder(t *testing.T) {
	cs := candidates(4)
	response := `[` +
		`{"id":"` + cs[1].ID.String() + `"},` +
		`{"id":"` + cs[0].ID.String() + `","relevanceScore":80,"explanation":"best"},` +
		`{"id":"` + cs[3].ID.String() + `"},` +
		`{"id":"` + cs[2].ID.String() + `","relevanceScore":70}` +
		`]`
	r := NewReranker(RerankerParams{Generator: &fakeGenerator{response: response}, Mode: RerankModeDetailed})

	ranked := r.Rank(context.Background(), "query", cs)

	assert.Equal(t, candidateIDs(cs, 1, 0, 3, 2), rankedIDs(ranked))
	assert.Equal(t, []int{80, 80, 80, 70}, []int{
		ranked[0].RelevanceScore, ranked[1].RelevanceScore, ranked[2].RelevanceScore, ranked[3].RelevanceScore,
	})
	assert.Equal(t, "best", ranked[1].Reason)
	assertMonotonic(t, ranked)
}

func TestReranker_Rank_NoKnownIDsFallsBack(t *testing.T) {
	cs := []models.CandidateMovie{
		candidate("Weak", 0.10),
		candidate("Middling", 0.50),
		candidate("Strong", 0.99),
	}

	for name, response := range map[string]string{
		"empty array":  `[]`,
		"invented ids": `["tt0000001", "tt0000002"]`,
	} {
		t.Run(name, func(t *testing.T) {
			r := NewReranker(RerankerParams{Generator: &fakeGenerator{response: response}})

			ranked := r.Rank(context.Background(), "query", cs)

			assert.Equal(t, candidateIDs(cs, 2, 1, 0), rankedIDs(ranked))
			assert.Equal(t, 95, ranked[0].RelevanceScore)
			assert.Equal(t, "Rank #1 • Vector similarity match • Various themes", ranked[0].Reason)
		})
	}
}

func TestReranker_FallbackDeterminism(t *testing.T) {
	cs := []models.CandidateMovie{
		candidate("B", 0.5),
		candidate("A", 0.9),
		candidate("C", 0.5),
		candidate("D", 0.7),
		candidate("E", 0.5),
	}
	r := NewReranker(RerankerParams{Generator: &fakeGenerator{err: errors.New("timeout")}})

	first := r.Rank(context.Background(), "query", cs)
	second := r.Rank(context.Background(), "query", cs)

	// Similarity descending, ties in input order.
	assert.Equal(t, candidateIDs(cs, 1, 3, 0, 2, 4), rankedIDs(first))
	assert.Equal(t, rankedIDs(first), rankedIDs(second))
	assert.Equal(t, []int{95, 90, 85, 80, 75}, []int{
		first[0].RelevanceScore, first[1].RelevanceScore, first[2].RelevanceScore,
		first[3].RelevanceScore, first[4].RelevanceScore,
	})
	assert.Equal(t, "Rank #1 • Vector similarity match • Various themes", first[0].Reason)

	// Input is not reordered in place.
	assert.Equal(t, "B", cs[0].Title)
}

func TestReranker_NilGeneratorFallsBack(t *testing.T) {
	cs := []models.CandidateMovie{candidate("Low", 0.2, "Western"), candidate("High", 0.8, "Comedy", "Family", "Music")}
	r := NewReranker(RerankerParams{})

	ranked := r.Rank(context.Background(), "query", cs)

	require.Len(t, ranked, 2)
	assert.Equal(t, "High", ranked[0].Movie.Title)
	assert.Equal(t, "Rank #1 • Vector similarity match • Comedy & Family", ranked[0].Reason)
	assert.Equal(t, "Rank #2 • Vector similarity match • Western", ranked[1].Reason)
}

func TestReranker_EmptyCandidates(t *testing.T) {
	gen := &fakeGenerator{}
	r := NewReranker(RerankerParams{Generator: gen})

	ranked := r.Rank(context.Background(), "query", nil)

	assert.NotNil(t, ranked)
	assert.Empty(t, ranked)
	assert.Zero(t, gen.callCount())
}

func TestReranker_ToyStoryFallbackScenario(t *testing.T) {
	cs := []models.CandidateMovie{
		candidate("Heat", 0.41, "Crime"),
		candidate("Alien", 0.38, "Horror"),
		candidate("Toy Story", 0.81, "Animation", "Adventure", "Comedy"),
		candidate("Casablanca", 0.22, "Drama"),
		candidate("Jaws", 0.35, "Thriller"),
		candidate("Rocky", 0.49, "Sport"),
	}
	r := NewReranker(RerankerParams{Generator: &fakeGenerator{err: errors.New("rate limited")}})

	ranked := r.Rank(context.Background(), "a story where a cowboy and astronaut become friends", cs)

	require.Len(t, ranked, 6)
	assert.Equal(t, "Toy Story", ranked[0].Movie.Title)
	assert.Equal(t, 95, ranked[0].RelevanceScore)
	assert.Equal(t, "Rank #1 • Vector similarity match • Animation & Adventure", ranked[0].Reason)
}

func TestReranker_Enrich(t *testing.T) {
	page := []models.RankedRecommendation{
		{Movie: models.MovieSummary{Title: "High"}, RelevanceScore: 95, Reason: "short"},
		{Movie: models.MovieSummary{Title: "Edge"}, RelevanceScore: 70, Reason: "short"},
		{Movie: models.MovieSummary{Title: "Broken"}, RelevanceScore: 90, Reason: "short"},
	}

	gen := &fakeGenerator{respond: func(prompt string) (string, error) {
		if strings.Contains(prompt, "Movie: Broken") {
			return "", errors.New("boom")
		}

		return "\"A cowboy toy meets a space ranger.\"\nExtra line", nil
	}}
	r := NewReranker(RerankerParams{Generator: gen, EnrichExplanations: true})

	r.Enrich(context.Background(), "friends", page)

	assert.Equal(t, "A cowboy toy meets a space ranger.", page[0].Reason)
	assert.Equal(t, "short", page[1].Reason, "threshold is exclusive")
	assert.Equal(t, "short", page[2].Reason, "failure keeps the short reason")
	assert.Equal(t, 2, gen.callCount())
}

func TestReranker_EnrichDisabled(t *testing.T) {
	gen := &fakeGenerator{response: "nope"}
	r := NewReranker(RerankerParams{Generator: gen})

	page := []models.RankedRecommendation{{RelevanceScore: 95, Reason: "short"}}
	r.Enrich(context.Background(), "q", page)

	assert.Equal(t, "short", page[0].Reason)
	assert.Zero(t, gen.callCount())
}

func TestBuildRankingPrompt(t *testing.T) {
	year := 1995
	c := candidate("Toy Story", 0.8123, "Animation", "Comedy")
	c.Year = &year
	c.FullPlot = strings.Repeat("x", 300)

	prompt := buildRankingPrompt("cowboy and astronaut", []models.CandidateMovie{c, candidate("Untitled", 0.1)}, RerankModeFast)

	assert.Contains(t, prompt, `User Query: "cowboy and astronaut"`)
	assert.Contains(t, prompt, "1. ID: "+c.ID.String())
	assert.Contains(t, prompt, "Title: Toy Story (1995)")
	assert.Contains(t, prompt, "Plot: "+strings.Repeat("x", 200)+"...\n")
	assert.Contains(t, prompt, "Genres: Animation, Comedy")
	assert.Contains(t, prompt, "Vector Similarity: 81.2%")
	assert.Contains(t, prompt, "Title: Untitled (Unknown year)")
	assert.Contains(t, prompt, "Genres: Unknown genres")
	assert.Contains(t, prompt, "Return only the JSON array")
}

func TestPositionScore(t *testing.T) {
	prev := positionScore(0)
	assert.Equal(t, 95, prev)

	for rank := 1; rank < 40; rank++ {
		s := positionScore(rank)
		assert.GreaterOrEqual(t, s, minRankedScore)
		assert.Greater(t, s, unrankedScore)

		if prev > minRankedScore {
			assert.Less(t, s, prev)
		}

		prev = s
	}
}
