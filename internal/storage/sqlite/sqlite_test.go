package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ButyrinIA/fritter/internal/models"
	"github.com/ButyrinIA/fritter/internal/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStorage {
	t.Helper()

	store, err := New(filepath.Join(t.TempDir(), "fritter.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedAuthor(t *testing.T, store *SQLiteStorage, username string) *models.User {
	t.Helper()

	user := &models.User{ID: uuid.New().String(), Username: username, Password: "pw", DateJoined: time.Now()}
	require.NoError(t, store.CreateUser(context.Background(), user))
	return user
}

func seedPost(t *testing.T, store *SQLiteStorage, authorID string, modified time.Time) *models.Post {
	t.Helper()

	post := &models.Post{
		ID:           uuid.New().String(),
		AuthorID:     authorID,
		Content:      "hello world",
		DateCreated:  modified,
		DateModified: modified,
	}
	require.NoError(t, store.CreatePost(context.Background(), post))
	return post
}

func TestSQLiteStorage_Users(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	user := seedAuthor(t, store, "Alice")

	err := store.CreateUser(ctx, &models.User{ID: uuid.New().String(), Username: "ALICE", Password: "x", DateJoined: time.Now()})
	assert.ErrorIs(t, err, storage.ErrConflict)

	found, err := store.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	_, err = store.GetUserByCredentials(ctx, "alice", "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	user.Username = "bob"
	require.NoError(t, store.UpdateUser(ctx, user))
	found, err = store.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob", found.Username)

	users, err := store.GetUsers(ctx, []string{user.ID, "missing"})
	require.NoError(t, err)
	assert.Len(t, users, 1)

	require.NoError(t, store.DeleteUser(ctx, user.ID))
	assert.ErrorIs(t, store.DeleteUser(ctx, user.ID), storage.ErrNotFound)
}

func TestSQLiteStorage_PostsAndSatellites(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	author := seedAuthor(t, store, "author")
	post := seedPost(t, store, author.ID, time.Now())

	t.Run("satellites are unique per owner", func(t *testing.T) {
		exp := &models.Expansion{ID: uuid.New().String(), PostID: post.ID, Content: "more"}
		require.NoError(t, store.CreateExpansion(ctx, exp))
		err := store.CreateExpansion(ctx, &models.Expansion{ID: uuid.New().String(), PostID: post.ID, Content: "x"})
		assert.ErrorIs(t, err, storage.ErrConflict)

		err = store.CreateCitations(ctx, &models.Citations{ID: uuid.New().String(), PostID: "missing"})
		assert.ErrorIs(t, err, storage.ErrNotFound)

		got, err := store.GetExpansionByOwner(ctx, post.ID)
		require.NoError(t, err)
		assert.Equal(t, exp, got)
	})

	t.Run("update stores references", func(t *testing.T) {
		link := &models.SimilarLink{ID: uuid.New().String(), PostID: post.ID, SimilarOneID: "x", SimilarTwoID: "y"}
		require.NoError(t, store.CreateSimilarLink(ctx, link))

		post.SimilarLinkID = link.ID
		post.Content = "edited"
		require.NoError(t, store.UpdatePost(ctx, post))

		got, err := store.GetPost(ctx, post.ID)
		require.NoError(t, err)
		assert.Equal(t, "edited", got.Content)
		assert.Equal(t, link.ID, got.SimilarLinkID)
		assert.Empty(t, got.CitationsID)
	})

	t.Run("delete cascades", func(t *testing.T) {
		require.NoError(t, store.DeletePost(ctx, post.ID))

		_, err := store.GetExpansionByOwner(ctx, post.ID)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = store.GetSimilarLinkByOwner(ctx, post.ID)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		assert.ErrorIs(t, store.DeletePost(ctx, post.ID), storage.ErrNotFound)
	})
}

func TestSQLiteStorage_ListPosts(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	author := seedAuthor(t, store, "author")
	other := seedAuthor(t, store, "other")

	base := time.Now()
	oldest := seedPost(t, store, author.ID, base.Add(-2*time.Hour))
	middle := seedPost(t, store, other.ID, base.Add(-time.Hour))
	newest := seedPost(t, store, author.ID, base)

	page, err := store.ListPosts(ctx, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, page.TotalCount)
	require.Len(t, page.Posts, 2)
	assert.Equal(t, newest.ID, page.Posts[0].ID)
	assert.Equal(t, middle.ID, page.Posts[1].ID)
	require.NotNil(t, page.NextCursor)

	rest, err := store.ListPosts(ctx, 2, page.NextCursor)
	require.NoError(t, err)
	require.Len(t, rest.Posts, 1)
	assert.Equal(t, oldest.ID, rest.Posts[0].ID)
	assert.Nil(t, rest.NextCursor)

	_, err = store.ListPosts(ctx, 0, nil)
	assert.ErrorIs(t, err, storage.ErrInvalidLimit)

	mine, err := store.ListPostsByAuthor(ctx, author.ID)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, newest.ID, mine[0].ID)

	n, err := store.DeletePostsByAuthor(ctx, author.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	all, err := store.ListAllPosts(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, middle.ID, all[0].ID)
}
