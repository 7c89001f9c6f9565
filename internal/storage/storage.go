package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ButyrinIA/fritter/internal/models"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrConflict     = errors.New("record already exists")
	ErrInvalidLimit = errors.New("page limit must be positive")
)

type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUsers(ctx context.Context, ids []string) ([]*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByCredentials(ctx context.Context, username, password string) (*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
	DeleteUser(ctx context.Context, id string) error
}

// PostStore deletes cascade to every satellite owned by the removed posts.
type PostStore interface {
	CreatePost(ctx context.Context, post *models.Post) error
	GetPost(ctx context.Context, id string) (*models.Post, error)
	UpdatePost(ctx context.Context, post *models.Post) error
	DeletePost(ctx context.Context, id string) error
	ListPosts(ctx context.Context, limit int, cursor *string) (*models.PaginatedPosts, error)
	ListAllPosts(ctx context.Context) ([]*models.Post, error)
	ListPostsByAuthor(ctx context.Context, authorID string) ([]*models.Post, error)
	DeletePostsByAuthor(ctx context.Context, authorID string) (int, error)
}

// Satellite stores hold at most one record per owning post. Creating a
// second record for the same owner fails with ErrConflict, creating one for
// a missing post fails with ErrNotFound.
type ExpansionStore interface {
	CreateExpansion(ctx context.Context, expansion *models.Expansion) error
	GetExpansionByOwner(ctx context.Context, postID string) (*models.Expansion, error)
	DeleteExpansionByOwner(ctx context.Context, postID string) error
}

type CitationsStore interface {
	CreateCitations(ctx context.Context, citations *models.Citations) error
	GetCitationsByOwner(ctx context.Context, postID string) (*models.Citations, error)
	DeleteCitationsByOwner(ctx context.Context, postID string) error
}

type SimilarLinkStore interface {
	CreateSimilarLink(ctx context.Context, link *models.SimilarLink) error
	GetSimilarLinkByOwner(ctx context.Context, postID string) (*models.SimilarLink, error)
	DeleteSimilarLinkByOwner(ctx context.Context, postID string) error
}

type Storage interface {
	UserStore
	PostStore
	ExpansionStore
	CitationsStore
	SimilarLinkStore
	Close() error
}

// Cursor identifies a position in the (dateModified desc, id desc) post order.
type Cursor struct {
	DateModified time.Time
	ID           string
}

func EncodeCursor(post *models.Post) string {
	raw := post.DateModified.UTC().Format(time.RFC3339Nano) + "|" + post.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func DecodeCursor(cursor string) (*Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor: %w", err)
	}
	ts, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return nil, errors.New("invalid cursor: missing id")
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor: %w", err)
	}
	return &Cursor{DateModified: t, ID: id}, nil
}

// After reports whether post sorts strictly after the cursor position.
func (c *Cursor) After(post *models.Post) bool {
	if post.DateModified.Equal(c.DateModified) {
		return post.ID < c.ID
	}
	return post.DateModified.Before(c.DateModified)
}
