package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/filmgrid/hub/internal/models"
	"github.com/filmgrid/hub/internal/repository"
)

type fakeEmbedder struct {
	mu       sync.Mutex
	vector   []float32
	err      error
	batchErr error
	calls    int
	inputs   []string
}

func (f *fakeEmbedder) CreateEmbedding(_ context.Context, input string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	f.inputs = append(f.inputs, input)

	if f.err != nil {
		return nil, f.err
	}

	if f.vector != nil {
		return f.vector, nil
	}

	return []float32{1, 0, 0}, nil
}

func (f *fakeEmbedder) CreateEmbeddings(ctx context.Context, inputs []string) ([][]float32, error) {
	if f.batchErr != nil {
		return nil, f.batchErr
	}

	out := make([][]float32, 0, len(inputs))

	for _, in := range inputs {
		v, err := f.CreateEmbedding(ctx, in)
		if err != nil {
			return nil, err
		}

		out = append(out, v)
	}

	return out, nil
}

type fakeGenerator struct {
	mu       sync.Mutex
	response string
	err      error
	respond  func(prompt string) (string, error)
	prompts  []string
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.prompts = append(f.prompts, prompt)

	if f.respond != nil {
		return f.respond(prompt)
	}

	return f.response, f.err
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.prompts)
}

type fakeRetriever struct {
	candidates []models.CandidateMovie
	err        error
	calls      int
	lastLimit  int
}

func (f *fakeRetriever) Retrieve(
	_ context.Context, _ []float32, limit int, _ models.MovieFilters,
) ([]models.CandidateMovie, error) {
	f.calls++
	f.lastLimit = limit

	if f.err != nil {
		return nil, f.err
	}

	return f.candidates, nil
}

type fakeSampler struct {
	movies []repository.MovieWithEmbedding
	err    error
}

func (f *fakeSampler) SampleMovies(
	_ context.Context, _ models.MovieFilters, limit int,
) ([]repository.MovieWithEmbedding, error) {
	if f.err != nil {
		return nil, f.err
	}

	return f.movies[:min(limit, len(f.movies))], nil
}

// fakeBackfillStore mimics the claim semantics of the movies table in memory.
type fakeBackfillStore struct {
	mu         sync.Mutex
	movies     []models.Movie
	embeddings map[uuid.UUID][]float32
	claimedAt  map[uuid.UUID]time.Time
	updateErr  map[uuid.UUID]error
	claims     []int
}

func newFakeBackfillStore(n int) *fakeBackfillStore {
	s := &fakeBackfillStore{
		embeddings: map[uuid.UUID][]float32{},
		claimedAt:  map[uuid.UUID]time.Time{},
		updateErr:  map[uuid.UUID]error{},
	}

	for i := range n {
		year := 1990 + i
		s.movies = append(s.movies, models.Movie{
			ID:     uuid.Must(uuid.NewV7()),
			Title:  fmt.Sprintf("Movie %02d", i),
			Plot:   "A plot",
			Genres: []string{"Drama"},
			Year:   &year,
		})
	}

	return s
}

func (s *fakeBackfillStore) ClaimMoviesForEmbedding(
	_ context.Context, limit int, staleBefore time.Time,
) ([]models.Movie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Movie

	for _, m := range s.movies {
		if len(out) == limit {
			break
		}

		if _, done := s.embeddings[m.ID]; done {
			continue
		}

		if at, ok := s.claimedAt[m.ID]; ok && !at.Before(staleBefore) {
			continue
		}

		s.claimedAt[m.ID] = time.Now()
		out = append(out, m)
	}

	s.claims = append(s.claims, len(out))

	return out, nil
}

func (s *fakeBackfillStore) UpdateEmbedding(_ context.Context, id uuid.UUID, _ string, embedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.updateErr[id]; err != nil {
		return err
	}

	s.embeddings[id] = embedding
	delete(s.claimedAt, id)

	return nil
}

func (s *fakeBackfillStore) CountMoviesWithoutEmbedding(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return int64(len(s.movies) - len(s.embeddings)), nil
}

func candidate(title string, similarity float64, genres ...string) models.CandidateMovie {
	return models.CandidateMovie{
		Movie: models.Movie{
			ID:     uuid.Must(uuid.NewV7()),
			Title:  title,
			Plot:   title + " plot",
			Genres: genres,
		},
		SimilarityScore: similarity,
	}
}

func candidates(n int) []models.CandidateMovie {
	out := make([]models.CandidateMovie, n)
	for i := range n {
		out[i] = candidate(fmt.Sprintf("Movie %02d", i), 0.9-float64(i)*0.01, "Drama")
	}

	return out
}

func quotedIDs(cs []models.CandidateMovie, order ...int) string {
	s := "["

	for i, idx := range order {
		if i > 0 {
			s += ", "
		}

		s += fmt.Sprintf("%q", cs[idx].ID.String())
	}

	return s + "]"
}
