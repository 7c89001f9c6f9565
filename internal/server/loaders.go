package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/ButyrinIA/fritter/internal/models"
	"github.com/ButyrinIA/fritter/internal/storage"
	"github.com/graph-gophers/dataloader/v7"
)

// newAuthorLoader batches author lookups for one response. Loaders cache
// per instance, so a fresh one is built for every request.
func newAuthorLoader(users storage.UserStore) *dataloader.Loader[string, *models.User] {
	return dataloader.NewBatchedLoader(
		func(ctx context.Context, keys []string) []*dataloader.Result[*models.User] {
			results := make([]*dataloader.Result[*models.User], len(keys))

			found, err := users.GetUsers(ctx, keys)
			if err != nil {
				for i := range keys {
					results[i] = &dataloader.Result[*models.User]{Error: err}
				}
				return results
			}

			byID := make(map[string]*models.User, len(found))
			for _, u := range found {
				byID[u.ID] = u
			}
			for i, key := range keys {
				if u, ok := byID[key]; ok {
					results[i] = &dataloader.Result[*models.User]{Data: u}
				} else {
					results[i] = &dataloader.Result[*models.User]{Error: fmt.Errorf("author %s: %w", key, storage.ErrNotFound)}
				}
			}
			return results
		},
	)
}

// resolveAuthors fills Post.Author for every post with a single batch. A post
// whose author no longer exists keeps a nil Author.
func resolveAuthors(ctx context.Context, users storage.UserStore, posts []*models.Post) error {
	if len(posts) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(posts))
	var ids []string
	for _, p := range posts {
		if p.Author == nil && !seen[p.AuthorID] {
			seen[p.AuthorID] = true
			ids = append(ids, p.AuthorID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	loader := newAuthorLoader(users)
	authors, errs := loader.LoadMany(ctx, ids)()
	byID := make(map[string]*models.User, len(ids))
	for i, id := range ids {
		if len(errs) > i && errs[i] != nil {
			if errors.Is(errs[i], storage.ErrNotFound) {
				continue
			}
			return errs[i]
		}
		byID[id] = authors[i]
	}
	for _, p := range posts {
		if p.Author == nil {
			p.Author = byID[p.AuthorID]
		}
	}
	return nil
}
