// Package repository provides data access for movies and their embeddings.
package repository

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/filmgrid/hub/internal/huberrors"
	"github.com/filmgrid/hub/internal/models"
)

// ErrVectorIndexUnavailable marks errors caused by a missing vector table, extension, operator or index,
// as opposed to transient query failures. Callers may switch to a degraded ranking path on it.
var ErrVectorIndexUnavailable = errors.New("vector index unavailable")

// SQLSTATE codes that mean the vector index cannot be queried at all.
var vectorUnavailableCodes = map[string]bool{
	"42P01": true, // undefined_table
	"42883": true, // undefined_function (operator <=> missing)
	"42703": true, // undefined_column
	"42704": true, // undefined_object (halfvec type missing)
	"58P01": true, // undefined_file (extension library missing)
}

// votesOrder sorts by IMDb vote count, tolerating missing or empty values in imported data.
const votesOrder = `NULLIF(imdb->>'votes', '')::numeric DESC NULLS LAST`

// sortColumns maps the sortBy values accepted by the list endpoint to SQL expressions.
var sortColumns = map[string]string{
	"title":    "title",
	"year":     "year",
	"released": "released",
	"runtime":  "runtime",
	"rating":   "NULLIF(imdb->>'rating', '')::numeric",
	"votes":    "NULLIF(imdb->>'votes', '')::numeric",
}

const movieColumns = `id, title, coalesce(plot, ''), coalesce(fullplot, ''), genres, runtime,
	cast_members, directors, poster, languages, countries, released, rated,
	awards, imdb, tomatoes, year, type, created_at, updated_at`

// MovieWithEmbedding pairs a movie with its stored embedding; Embedding is nil when none is stored.
type MovieWithEmbedding struct {
	Movie     models.Movie
	Embedding []float32
}

// MoviesRepository handles data access for the movies table.
type MoviesRepository struct {
	db *pgxpool.Pool
}

// NewMoviesRepository creates a new movies repository.
func NewMoviesRepository(db *pgxpool.Pool) *MoviesRepository {
	return &MoviesRepository{db: db}
}

func movieScanTargets(m *models.Movie) []any {
	return []any{
		&m.ID, &m.Title, &m.Plot, &m.FullPlot, &m.Genres, &m.Runtime,
		&m.Cast, &m.Directors, &m.Poster, &m.Languages, &m.Countries, &m.Released, &m.Rated,
		&m.Awards, &m.IMDb, &m.Tomatoes, &m.Year, &m.Type, &m.CreatedAt, &m.UpdatedAt,
	}
}

// buildMovieFilterConditions builds WHERE conditions for the structured movie filters.
// Placeholders start at $startArg. Array filters match on overlap (any shared element).
func buildMovieFilterConditions(filters models.MovieFilters, startArg int) (conditions []string, args []any) {
	argCount := startArg

	if len(filters.Genres) > 0 {
		conditions = append(conditions, fmt.Sprintf("genres && $%d::text[]", argCount))
		args = append(args, filters.Genres)
		argCount++
	}

	if filters.Rated != nil {
		conditions = append(conditions, fmt.Sprintf("rated = $%d", argCount))
		args = append(args, *filters.Rated)
		argCount++
	}

	if filters.YearFrom != nil {
		conditions = append(conditions, fmt.Sprintf("year >= $%d", argCount))
		args = append(args, *filters.YearFrom)
		argCount++
	}

	if filters.YearTo != nil {
		conditions = append(conditions, fmt.Sprintf("year <= $%d", argCount))
		args = append(args, *filters.YearTo)
		argCount++
	}

	if len(filters.Languages) > 0 {
		conditions = append(conditions, fmt.Sprintf("languages && $%d::text[]", argCount))
		args = append(args, filters.Languages)
		argCount++
	}

	if len(filters.Countries) > 0 {
		conditions = append(conditions, fmt.Sprintf("countries && $%d::text[]", argCount))
		args = append(args, filters.Countries)
	}

	return conditions, args
}

// buildNearestQuery returns the nearest-neighbour query: cosine distance (<=>) on the halfvec column,
// score = 1 - distance, rows without an embedding excluded.
func buildNearestQuery(filters models.MovieFilters) string {
	conditions, _ := buildMovieFilterConditions(filters, 3)
	conditions = append([]string{"embedding IS NOT NULL"}, conditions...)

	return `SELECT ` + movieColumns + `, (1 - (embedding <=> $1)) AS score
		FROM movies
		WHERE ` + strings.Join(conditions, " AND ") + `
		ORDER BY embedding <=> $1
		LIMIT $2`
}

// pgvector HNSW search bounds: ef_search defaults to 40 and accepts at most 1000.
const (
	defaultEfSearch = 40
	maxEfSearch     = 1000
)

// hnswEfSearch sizes the HNSW candidate list so an index scan can yield limit rows.
func hnswEfSearch(limit int) int {
	return min(max(limit, defaultEfSearch), maxEfSearch)
}

// NearestMovies returns up to limit movies nearest to queryEmbedding that match filters, most similar first.
// When exact is true the planner is told not to use the approximate index, forcing an exact scan.
// Otherwise the HNSW scan is widened to limit and, on pgvector 0.8+, iterates until enough rows pass
// the filters, so selective filters do not starve the result.
// Errors caused by a missing table/extension/operator wrap ErrVectorIndexUnavailable.
func (r *MoviesRepository) NearestMovies(
	ctx context.Context, queryEmbedding []float32, limit int, filters models.MovieFilters, exact bool,
) ([]models.CandidateMovie, error) {
	query := buildNearestQuery(filters)
	_, filterArgs := buildMovieFilterConditions(filters, 3)
	args := append([]any{pgvector.NewHalfVector(queryEmbedding), limit}, filterArgs...)

	var candidates []models.CandidateMovie

	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if err := configureVectorScan(ctx, tx, limit, exact); err != nil {
			return err
		}

		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("nearest movies: %w", err)
		}

		candidates, err = collectCandidates(rows)

		return err
	})
	if err != nil {
		return nil, classifyVectorError(err)
	}

	// relaxed_order may return rows slightly out of distance order.
	slices.SortStableFunc(candidates, func(a, b models.CandidateMovie) int {
		return cmp.Compare(b.SimilarityScore, a.SimilarityScore)
	})

	return candidates, nil
}

func configureVectorScan(ctx context.Context, tx pgx.Tx, limit int, exact bool) error {
	if exact {
		if _, err := tx.Exec(ctx, `SET LOCAL enable_indexscan = off`); err != nil {
			return fmt.Errorf("disable index scan: %w", err)
		}

		return nil
	}

	if _, err := tx.Exec(ctx, `SELECT set_config('hnsw.ef_search', $1, true)`,
		strconv.Itoa(hnswEfSearch(limit))); err != nil {
		return fmt.Errorf("set hnsw.ef_search: %w", err)
	}

	// Iterative scans need pgvector 0.8; older versions reject the setting, which only rolls back the savepoint.
	sp, err := tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}

	if _, err := sp.Exec(ctx, `SET LOCAL hnsw.iterative_scan = relaxed_order`); err != nil {
		if rbErr := sp.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("rollback savepoint: %w", rbErr)
		}

		return nil
	}

	if err := sp.Commit(ctx); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}

	return nil
}

func collectCandidates(rows pgx.Rows) ([]models.CandidateMovie, error) {
	defer rows.Close()

	candidates := []models.CandidateMovie{}

	for rows.Next() {
		var c models.CandidateMovie

		targets := append(movieScanTargets(&c.Movie), &c.SimilarityScore)
		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("scan candidate movie: %w", err)
		}

		candidates = append(candidates, c)
	}

	if err := rows.Err(); err != nil {
		return nil, classifyVectorError(fmt.Errorf("iterating nearest movies: %w", err))
	}

	return candidates, nil
}

func classifyVectorError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && vectorUnavailableCodes[pgErr.Code] {
		return fmt.Errorf("%w: %w", ErrVectorIndexUnavailable, err)
	}

	return err
}

// SampleMovies returns up to limit movies matching filters only (no semantic ordering), with their
// stored embedding when present. Rows with an embedding come first so callers embed as little as possible.
func (r *MoviesRepository) SampleMovies(
	ctx context.Context, filters models.MovieFilters, limit int,
) ([]MovieWithEmbedding, error) {
	conditions, args := buildMovieFilterConditions(filters, 2)

	query := `SELECT ` + movieColumns + `, embedding FROM movies`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += ` ORDER BY (embedding IS NULL), ` + votesOrder + `, id
		LIMIT $1`

	args = append([]any{limit}, args...)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sample movies: %w", err)
	}
	defer rows.Close()

	var out []MovieWithEmbedding

	for rows.Next() {
		var (
			m   MovieWithEmbedding
			emb *pgvector.HalfVector
		)

		targets := append(movieScanTargets(&m.Movie), &emb)
		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("scan sampled movie: %w", err)
		}

		if emb != nil {
			m.Embedding = emb.Slice()
		}

		out = append(out, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sampled movies: %w", err)
	}

	return out, nil
}

// ClaimMoviesForEmbedding atomically claims up to limit movies without an embedding by stamping
// embedding_claimed_at. Rows claimed after staleBefore are skipped, as are rows locked by a
// concurrent claimer (SKIP LOCKED), so two backfill runs never receive the same movie.
func (r *MoviesRepository) ClaimMoviesForEmbedding(
	ctx context.Context, limit int, staleBefore time.Time,
) ([]models.Movie, error) {
	query := `
		UPDATE movies SET embedding_claimed_at = now()
		WHERE id IN (
			SELECT id FROM movies
			WHERE embedding IS NULL
			  AND (embedding_claimed_at IS NULL OR embedding_claimed_at < $2)
			ORDER BY id
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + movieColumns

	rows, err := r.db.Query(ctx, query, limit, staleBefore)
	if err != nil {
		return nil, fmt.Errorf("claim movies for embedding: %w", err)
	}
	defer rows.Close()

	movies := []models.Movie{}

	for rows.Next() {
		var m models.Movie
		if err := rows.Scan(movieScanTargets(&m)...); err != nil {
			return nil, fmt.Errorf("scan claimed movie: %w", err)
		}

		movies = append(movies, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating claimed movies: %w", err)
	}

	return movies, nil
}

// UpdateEmbedding stores the embedding and model for a movie and releases its claim.
// Uses halfvec storage (2 bytes per dimension); pgvector-go converts float32 to float16 when encoding.
func (r *MoviesRepository) UpdateEmbedding(ctx context.Context, id uuid.UUID, model string, embedding []float32) error {
	result, err := r.db.Exec(ctx, `
		UPDATE movies
		SET embedding = $1, embedding_model = $2, embedding_claimed_at = NULL, updated_at = $3
		WHERE id = $4`,
		pgvector.NewHalfVector(embedding), model, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update movie embedding: %w", err)
	}

	if result.RowsAffected() == 0 {
		return huberrors.NewNotFoundError("movie", "movie not found")
	}

	return nil
}

// CountMoviesWithoutEmbedding returns how many movies still need an embedding.
func (r *MoviesRepository) CountMoviesWithoutEmbedding(ctx context.Context) (int64, error) {
	var count int64

	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM movies WHERE embedding IS NULL`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count movies without embedding: %w", err)
	}

	return count, nil
}

// GetByID retrieves a single movie by ID.
func (r *MoviesRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Movie, error) {
	var m models.Movie

	err := r.db.QueryRow(ctx, `SELECT `+movieColumns+` FROM movies WHERE id = $1`, id).Scan(movieScanTargets(&m)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, huberrors.NewNotFoundError("movie", "movie not found")
		}

		return nil, fmt.Errorf("failed to get movie: %w", err)
	}

	return &m, nil
}

// buildListConditions extends the structured filters with the title search of the list endpoint.
func buildListConditions(filters *models.ListMoviesFilters) (whereClause string, args []any) {
	conditions, args := buildMovieFilterConditions(filters.MovieFilters, 1)

	if filters.Title != nil {
		conditions = append(conditions, fmt.Sprintf("title ILIKE $%d", len(args)+1))
		args = append(args, "%"+escapeLike(*filters.Title)+"%")
	}

	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	return whereClause, args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// listOrder returns the ORDER BY expression for a list request. Unknown columns fall back to votes.
func listOrder(sortBy, sortOrder string) string {
	column, ok := sortColumns[sortBy]
	if !ok {
		return votesOrder
	}

	if strings.EqualFold(sortOrder, "desc") {
		return column + " DESC NULLS LAST"
	}

	return column + " ASC NULLS LAST"
}

// List returns movies matching filters in the requested order (IMDb votes, most popular first, by default).
func (r *MoviesRepository) List(ctx context.Context, filters *models.ListMoviesFilters) ([]models.Movie, error) {
	query := `SELECT ` + movieColumns + ` FROM movies`

	whereClause, args := buildListConditions(filters)
	query += whereClause
	argCount := len(args) + 1

	query += ` ORDER BY ` + listOrder(filters.SortBy, filters.SortOrder) + `, title, id`

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argCount)

		args = append(args, filters.Limit)
		argCount++
	}

	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argCount)

		args = append(args, filters.Offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list movies: %w", err)
	}
	defer rows.Close()

	movies := []models.Movie{} // Initialize as empty slice, not nil

	for rows.Next() {
		var m models.Movie
		if err := rows.Scan(movieScanTargets(&m)...); err != nil {
			return nil, fmt.Errorf("failed to scan movie: %w", err)
		}

		movies = append(movies, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating movies: %w", err)
	}

	return movies, nil
}

// Count returns the total count of movies matching the filters.
func (r *MoviesRepository) Count(ctx context.Context, filters *models.ListMoviesFilters) (int64, error) {
	query := `SELECT COUNT(*) FROM movies`

	whereClause, args := buildListConditions(filters)
	query += whereClause

	var count int64

	if err := r.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count movies: %w", err)
	}

	return count, nil
}

// GetFilterOptions returns the distinct genres, ratings, languages and countries plus the year span.
func (r *MoviesRepository) GetFilterOptions(ctx context.Context) (*models.MovieFilterOptions, error) {
	opts := &models.MovieFilterOptions{}

	err := r.db.QueryRow(ctx, `
		SELECT
			coalesce((SELECT array_agg(DISTINCT g ORDER BY g) FROM movies, unnest(genres) g), '{}'),
			coalesce((SELECT array_agg(DISTINCT rated ORDER BY rated) FROM movies WHERE rated IS NOT NULL), '{}'),
			coalesce((SELECT array_agg(DISTINCT l ORDER BY l) FROM movies, unnest(languages) l), '{}'),
			coalesce((SELECT array_agg(DISTINCT c ORDER BY c) FROM movies, unnest(countries) c), '{}'),
			(SELECT min(year) FROM movies),
			(SELECT max(year) FROM movies)`,
	).Scan(&opts.Genres, &opts.Ratings, &opts.Languages, &opts.Countries, &opts.MinYear, &opts.MaxYear)
	if err != nil {
		return nil, fmt.Errorf("failed to get movie filter options: %w", err)
	}

	return opts, nil
}
