package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ButyrinIA/fritter/internal/models"
	"github.com/ButyrinIA/fritter/internal/storage"
	"github.com/ButyrinIA/fritter/internal/storage/migrations"
	"github.com/mattn/go-sqlite3"
)

type SQLiteStorage struct {
	db *sql.DB
}

// New opens (or creates) the database at path and migrates it.
// path may be ":memory:".
func New(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer; a single connection also keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if err := migrations.SQLite(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate sqlite: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func mapError(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, storage.ErrNotFound)
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%s: %w", what, storage.ErrConflict)
		case sqlite3.ErrConstraintForeignKey:
			return fmt.Errorf("%s: owner %w", what, storage.ErrNotFound)
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func affected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, storage.ErrNotFound)
	}
	return nil
}

const userColumns = `id, username, password, date_joined`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Username, &u.Password, &u.DateJoined); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *SQLiteStorage) CreateUser(ctx context.Context, user *models.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password, date_joined) VALUES (?, ?, ?, ?)`,
		user.ID, user.Username, user.Password, user.DateJoined.UTC())
	return mapError(err, "create user "+user.Username)
}

func (s *SQLiteStorage) GetUser(ctx context.Context, id string) (*models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id))
	return u, mapError(err, "user "+id)
}

func (s *SQLiteStorage) GetUsers(ctx context.Context, ids []string) ([]*models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE id IN (`+placeholders+`)`, args...)
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

func (s *SQLiteStorage) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE username = ? COLLATE NOCASE`, username))
	return u, mapError(err, "username "+username)
}

func (s *SQLiteStorage) GetUserByCredentials(ctx context.Context, username, password string) (*models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE username = ? COLLATE NOCASE AND password = ?`,
		username, password))
	return u, mapError(err, "credentials for "+username)
}

func (s *SQLiteStorage) UpdateUser(ctx context.Context, user *models.User) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET username=?, password=? WHERE id=?`,
		user.Username, user.Password, user.ID)
	if err != nil {
		return mapError(err, "update user "+user.ID)
	}
	return affected(res, "user "+user.ID)
}

func (s *SQLiteStorage) DeleteUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id=?`, id)
	if err != nil {
		return mapError(err, "delete user "+id)
	}
	return affected(res, "user "+id)
}

const postColumns = `id, author_id, content, date_created, date_modified, expansion_id, citations_id, similar_link_id`

func scanPost(row interface{ Scan(...any) error }) (*models.Post, error) {
	var p models.Post
	var expansionID, citationsID, similarID sql.NullString
	err := row.Scan(&p.ID, &p.AuthorID, &p.Content, &p.DateCreated, &p.DateModified,
		&expansionID, &citationsID, &similarID)
	if err != nil {
		return nil, err
	}
	p.ExpansionID, p.CitationsID, p.SimilarLinkID = expansionID.String, citationsID.String, similarID.String
	return &p, nil
}

func (s *SQLiteStorage) queryPosts(ctx context.Context, query string, args ...any) ([]*models.Post, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
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

func (s *SQLiteStorage) CreatePost(ctx context.Context, post *models.Post) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO posts (`+postColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		post.ID, post.AuthorID, post.Content, post.DateCreated.UTC(), post.DateModified.UTC(),
		nullable(post.ExpansionID), nullable(post.CitationsID), nullable(post.SimilarLinkID))
	return mapError(err, "create post "+post.ID)
}

func (s *SQLiteStorage) GetPost(ctx context.Context, id string) (*models.Post, error) {
	p, err := scanPost(s.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id=?`, id))
	return p, mapError(err, "post "+id)
}

func (s *SQLiteStorage) UpdatePost(ctx context.Context, post *models.Post) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE posts
		SET content=?, date_modified=?, expansion_id=?, citations_id=?, similar_link_id=?
		WHERE id=?`,
		post.Content, post.DateModified.UTC(),
		nullable(post.ExpansionID), nullable(post.CitationsID), nullable(post.SimilarLinkID), post.ID)
	if err != nil {
		return mapError(err, "update post "+post.ID)
	}
	return affected(res, "post "+post.ID)
}

// DeletePost relies on ON DELETE CASCADE to remove the satellites.
func (s *SQLiteStorage) DeletePost(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id=?`, id)
	if err != nil {
		return mapError(err, "delete post "+id)
	}
	return affected(res, "post "+id)
}

func (s *SQLiteStorage) ListPosts(ctx context.Context, limit int, cursor *string) (*models.PaginatedPosts, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit %d: %w", limit, storage.ErrInvalidLimit)
	}
	var totalCount int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`).Scan(&totalCount); err != nil {
		return nil, err
	}

	var (
		posts []*models.Post
		err   error
	)
	if cursor == nil {
		posts, err = s.queryPosts(ctx, `
			SELECT `+postColumns+` FROM posts
			ORDER BY date_modified DESC, id DESC LIMIT ?`, limit+1)
	} else {
		c, cerr := storage.DecodeCursor(*cursor)
		if cerr != nil {
			return nil, cerr
		}
		posts, err = s.queryPosts(ctx, `
			SELECT `+postColumns+` FROM posts
			WHERE (date_modified, id) < (?, ?)
			ORDER BY date_modified DESC, id DESC LIMIT ?`, c.DateModified.UTC(), c.ID, limit+1)
	}
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

func (s *SQLiteStorage) ListAllPosts(ctx context.Context) ([]*models.Post, error) {
	return s.queryPosts(ctx, `SELECT `+postColumns+` FROM posts ORDER BY date_modified DESC, id DESC`)
}

func (s *SQLiteStorage) ListPostsByAuthor(ctx context.Context, authorID string) ([]*models.Post, error) {
	return s.queryPosts(ctx, `
		SELECT `+postColumns+` FROM posts WHERE author_id=?
		ORDER BY date_modified DESC, id DESC`, authorID)
}

func (s *SQLiteStorage) DeletePostsByAuthor(ctx context.Context, authorID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE author_id=?`, authorID)
	if err != nil {
		return 0, mapError(err, "delete posts by "+authorID)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *SQLiteStorage) CreateExpansion(ctx context.Context, e *models.Expansion) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO expansions (id, post_id, content) VALUES (?, ?, ?)`,
		e.ID, e.PostID, e.Content)
	return mapError(err, "expansion for post "+e.PostID)
}

func (s *SQLiteStorage) GetExpansionByOwner(ctx context.Context, postID string) (*models.Expansion, error) {
	var e models.Expansion
	err := s.db.QueryRowContext(ctx, `SELECT id, post_id, content FROM expansions WHERE post_id=?`, postID).
		Scan(&e.ID, &e.PostID, &e.Content)
	if err != nil {
		return nil, mapError(err, "expansion for post "+postID)
	}
	return &e, nil
}

func (s *SQLiteStorage) DeleteExpansionByOwner(ctx context.Context, postID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM expansions WHERE post_id=?`, postID)
	return mapError(err, "delete expansion for post "+postID)
}

func (s *SQLiteStorage) CreateCitations(ctx context.Context, c *models.Citations) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO citations (id, post_id, source_one, source_two, source_three) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.PostID, c.SourceOne, c.SourceTwo, c.SourceThree)
	return mapError(err, "citations for post "+c.PostID)
}

func (s *SQLiteStorage) GetCitationsByOwner(ctx context.Context, postID string) (*models.Citations, error) {
	var c models.Citations
	err := s.db.QueryRowContext(ctx, `
		SELECT id, post_id, source_one, source_two, source_three FROM citations WHERE post_id=?`, postID).
		Scan(&c.ID, &c.PostID, &c.SourceOne, &c.SourceTwo, &c.SourceThree)
	if err != nil {
		return nil, mapError(err, "citations for post "+postID)
	}
	return &c, nil
}

func (s *SQLiteStorage) DeleteCitationsByOwner(ctx context.Context, postID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM citations WHERE post_id=?`, postID)
	return mapError(err, "delete citations for post "+postID)
}

func (s *SQLiteStorage) CreateSimilarLink(ctx context.Context, l *models.SimilarLink) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO similar_links (id, post_id, similar_one, similar_two) VALUES (?, ?, ?, ?)`,
		l.ID, l.PostID, nullable(l.SimilarOneID), nullable(l.SimilarTwoID))
	return mapError(err, "similar link for post "+l.PostID)
}

func (s *SQLiteStorage) GetSimilarLinkByOwner(ctx context.Context, postID string) (*models.SimilarLink, error) {
	var l models.SimilarLink
	var one, two sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, post_id, similar_one, similar_two FROM similar_links WHERE post_id=?`, postID).
		Scan(&l.ID, &l.PostID, &one, &two)
	if err != nil {
		return nil, mapError(err, "similar link for post "+postID)
	}
	l.SimilarOneID, l.SimilarTwoID = one.String, two.String
	return &l, nil
}

func (s *SQLiteStorage) DeleteSimilarLinkByOwner(ctx context.Context, postID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM similar_links WHERE post_id=?`, postID)
	return mapError(err, "delete similar link for post "+postID)
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
