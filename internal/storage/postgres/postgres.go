package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ButyrinIA/fritter/internal/models"
	"github.com/ButyrinIA/fritter/internal/storage"
	"github.com/ButyrinIA/fritter/internal/storage/migrations"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

type PostgresStorage struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, dsn string) (*PostgresStorage, error) {
	if err := migrations.Postgres(dsn); err != nil {
		return nil, fmt.Errorf("failed to migrate postgres: %w", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return &PostgresStorage{pool: pool}, nil
}

// mapError translates driver errors into storage sentinels.
func mapError(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, storage.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return fmt.Errorf("%s: %w", what, storage.ErrConflict)
		case foreignKeyViolation:
			return fmt.Errorf("%s: owner %w", what, storage.ErrNotFound)
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func affected(tag pgconn.CommandTag, what string) error {
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", what, storage.ErrNotFound)
	}
	return nil
}

const userColumns = `id, username, password, date_joined`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Username, &u.Password, &u.DateJoined); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *PostgresStorage) CreateUser(ctx context.Context, user *models.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, username, password, date_joined)
		VALUES ($1, $2, $3, $4)`,
		user.ID, user.Username, user.Password, user.DateJoined)
	return mapError(err, "create user "+user.Username)
}

func (s *PostgresStorage) GetUser(ctx context.Context, id string) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
	return u, mapError(err, "user "+id)
}

func (s *PostgresStorage) GetUsers(ctx context.Context, ids []string) ([]*models.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, mapError(err, "users")
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *PostgresStorage) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `
		SELECT `+userColumns+` FROM users WHERE lower(username) = lower($1)`, username))
	return u, mapError(err, "username "+username)
}

func (s *PostgresStorage) GetUserByCredentials(ctx context.Context, username, password string) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `
		SELECT `+userColumns+` FROM users WHERE lower(username) = lower($1) AND password = $2`,
		username, password))
	return u, mapError(err, "credentials for "+username)
}

func (s *PostgresStorage) UpdateUser(ctx context.Context, user *models.User) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET username=$2, password=$3 WHERE id=$1`,
		user.ID, user.Username, user.Password)
	if err != nil {
		return mapError(err, "update user "+user.ID)
	}
	return affected(tag, "user "+user.ID)
}

func (s *PostgresStorage) DeleteUser(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id=$1`, id)
	if err != nil {
		return mapError(err, "delete user "+id)
	}
	return affected(tag, "user "+id)
}

const postColumns = `id, author_id, content, date_created, date_modified, expansion_id, citations_id, similar_link_id`

func scanPost(row pgx.Row) (*models.Post, error) {
	var p models.Post
	var expansionID, citationsID, similarID *string
	err := row.Scan(&p.ID, &p.AuthorID, &p.Content, &p.DateCreated, &p.DateModified,
		&expansionID, &citationsID, &similarID)
	if err != nil {
		return nil, err
	}
	p.ExpansionID, p.CitationsID, p.SimilarLinkID = deref(expansionID), deref(citationsID), deref(similarID)
	return &p, nil
}

func collectPosts(rows pgx.Rows) ([]*models.Post, error) {
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func (s *PostgresStorage) CreatePost(ctx context.Context, post *models.Post) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO posts (`+postColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		post.ID, post.AuthorID, post.Content, post.DateCreated, post.DateModified,
		nullable(post.ExpansionID), nullable(post.CitationsID), nullable(post.SimilarLinkID))
	return mapError(err, "create post "+post.ID)
}

func (s *PostgresStorage) GetPost(ctx context.Context, id string) (*models.Post, error) {
	p, err := scanPost(s.pool.QueryRow(ctx, `SELECT `+postColumns+` FROM posts WHERE id=$1`, id))
	return p, mapError(err, "post "+id)
}

func (s *PostgresStorage) UpdatePost(ctx context.Context, post *models.Post) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE posts
		SET content=$2, date_modified=$3, expansion_id=$4, citations_id=$5, similar_link_id=$6
		WHERE id=$1`,
		post.ID, post.Content, post.DateModified,
		nullable(post.ExpansionID), nullable(post.CitationsID), nullable(post.SimilarLinkID))
	if err != nil {
		return mapError(err, "update post "+post.ID)
	}
	return affected(tag, "post "+post.ID)
}

// DeletePost relies on ON DELETE CASCADE to remove the satellites in the same statement.
func (s *PostgresStorage) DeletePost(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM posts WHERE id=$1`, id)
	if err != nil {
		return mapError(err, "delete post "+id)
	}
	return affected(tag, "post "+id)
}

func (s *PostgresStorage) ListPosts(ctx context.Context, limit int, cursor *string) (*models.PaginatedPosts, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit %d: %w", limit, storage.ErrInvalidLimit)
	}
	// Подсчет общего количества
	var totalCount int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM posts`).Scan(&totalCount); err != nil {
		return nil, err
	}

	var (
		afterTime *time.Time
		afterID   *string
	)
	if cursor != nil {
		c, err := storage.DecodeCursor(*cursor)
		if err != nil {
			return nil, err
		}
		afterTime, afterID = &c.DateModified, &c.ID
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+postColumns+`
		FROM posts
		WHERE ($1::TIMESTAMPTZ IS NULL OR (date_modified, id) < ($1, $2))
		ORDER BY date_modified DESC, id DESC
		LIMIT $3`, afterTime, afterID, limit+1)
	if err != nil {
		return nil, err
	}
	posts, err := collectPosts(rows)
	if err != nil {
		return nil, err
	}

	var nextCursor *string
	if len(posts) > limit {
		posts = posts[:limit]
		cursorVal := storage.EncodeCursor(posts[limit-1])
		nextCursor = &cursorVal
	}

	return &models.PaginatedPosts{
		Posts:      posts,
		TotalCount: totalCount,
		NextCursor: nextCursor,
	}, nil
}

func (s *PostgresStorage) ListAllPosts(ctx context.Context) ([]*models.Post, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+postColumns+` FROM posts ORDER BY date_modified DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	return collectPosts(rows)
}

func (s *PostgresStorage) ListPostsByAuthor(ctx context.Context, authorID string) ([]*models.Post, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+postColumns+` FROM posts
		WHERE author_id=$1
		ORDER BY date_modified DESC, id DESC`, authorID)
	if err != nil {
		return nil, err
	}
	return collectPosts(rows)
}

func (s *PostgresStorage) DeletePostsByAuthor(ctx context.Context, authorID string) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM posts WHERE author_id=$1`, authorID)
	if err != nil {
		return 0, mapError(err, "delete posts by "+authorID)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStorage) CreateExpansion(ctx context.Context, e *models.Expansion) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO expansions (id, post_id, content) VALUES ($1, $2, $3)`,
		e.ID, e.PostID, e.Content)
	return mapError(err, "expansion for post "+e.PostID)
}

func (s *PostgresStorage) GetExpansionByOwner(ctx context.Context, postID string) (*models.Expansion, error) {
	var e models.Expansion
	err := s.pool.QueryRow(ctx, `
		SELECT id, post_id, content FROM expansions WHERE post_id=$1`, postID).
		Scan(&e.ID, &e.PostID, &e.Content)
	if err != nil {
		return nil, mapError(err, "expansion for post "+postID)
	}
	return &e, nil
}

func (s *PostgresStorage) DeleteExpansionByOwner(ctx context.Context, postID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM expansions WHERE post_id=$1`, postID)
	return mapError(err, "delete expansion for post "+postID)
}

func (s *PostgresStorage) CreateCitations(ctx context.Context, c *models.Citations) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO citations (id, post_id, source_one, source_two, source_three)
		VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.PostID, c.SourceOne, c.SourceTwo, c.SourceThree)
	return mapError(err, "citations for post "+c.PostID)
}

func (s *PostgresStorage) GetCitationsByOwner(ctx context.Context, postID string) (*models.Citations, error) {
	var c models.Citations
	err := s.pool.QueryRow(ctx, `
		SELECT id, post_id, source_one, source_two, source_three FROM citations WHERE post_id=$1`, postID).
		Scan(&c.ID, &c.PostID, &c.SourceOne, &c.SourceTwo, &c.SourceThree)
	if err != nil {
		return nil, mapError(err, "citations for post "+postID)
	}
	return &c, nil
}

func (s *PostgresStorage) DeleteCitationsByOwner(ctx context.Context, postID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM citations WHERE post_id=$1`, postID)
	return mapError(err, "delete citations for post "+postID)
}

func (s *PostgresStorage) CreateSimilarLink(ctx context.Context, l *models.SimilarLink) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO similar_links (id, post_id, similar_one, similar_two)
		VALUES ($1, $2, $3, $4)`,
		l.ID, l.PostID, nullable(l.SimilarOneID), nullable(l.SimilarTwoID))
	return mapError(err, "similar link for post "+l.PostID)
}

func (s *PostgresStorage) GetSimilarLinkByOwner(ctx context.Context, postID string) (*models.SimilarLink, error) {
	var (
		l        models.SimilarLink
		one, two *string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, post_id, similar_one, similar_two FROM similar_links WHERE post_id=$1`, postID).
		Scan(&l.ID, &l.PostID, &one, &two)
	if err != nil {
		return nil, mapError(err, "similar link for post "+postID)
	}
	l.SimilarOneID, l.SimilarTwoID = deref(one), deref(two)
	return &l, nil
}

func (s *PostgresStorage) DeleteSimilarLinkByOwner(ctx context.Context, postID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM similar_links WHERE post_id=$1`, postID)
	return mapError(err, "delete similar link for post "+postID)
}

func (s *PostgresStorage) Close() error {
	s.pool.Close()
	return nil
}
