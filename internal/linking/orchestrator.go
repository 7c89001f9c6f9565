// Package linking creates, updates and deletes posts together with the
// satellite records they own.
package linking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ButyrinIA/fritter/internal/metrics"
	"github.com/ButyrinIA/fritter/internal/models"
	"github.com/ButyrinIA/fritter/internal/similarity"
	"github.com/ButyrinIA/fritter/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PostInput is the author-supplied part of a post. Sources are optional.
type PostInput struct {
	Content       string
	ExpandContent string
	SourceOne     string
	SourceTwo     string
	SourceThree   string
}

type Orchestrator struct {
	store   storage.Storage
	oracle  similarity.Oracle
	logger  *zap.Logger
	metrics *metrics.Collector

	now   func() time.Time
	newID func() string
}

func New(store storage.Storage, oracle similarity.Oracle, logger *zap.Logger, m *metrics.Collector) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		store:   store,
		oracle:  oracle,
		logger:  logger,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   func() string { return uuid.New().String() },
	}
}

func (o *Orchestrator) run(ctx context.Context, saga *Saga) error {
	err := saga.Execute(ctx)
	if err != nil && saga.State() == SagaStateCompensated && saga.Undone() > 0 {
		o.metrics.SagaCompensated(saga.name)
	}
	return err
}

// Create stores a new post with its expansion, citations and similar link.
// Either all four records exist afterwards or none do.
func (o *Orchestrator) Create(ctx context.Context, authorID string, in PostInput) (post *models.Post, err error) {
	defer func() { o.metrics.PostMutation("create", err) }()

	author, err := o.store.GetUser(ctx, authorID)
	if err != nil {
		return nil, fmt.Errorf("loading author %s: %w", authorID, err)
	}

	now := o.now()
	post = &models.Post{
		ID:           o.newID(),
		AuthorID:     authorID,
		Content:      in.Content,
		DateCreated:  now,
		DateModified: now,
	}
	expansion := &models.Expansion{ID: o.newID(), PostID: post.ID, Content: in.ExpandContent}
	citations := &models.Citations{
		ID:          o.newID(),
		PostID:      post.ID,
		SourceOne:   in.SourceOne,
		SourceTwo:   in.SourceTwo,
		SourceThree: in.SourceThree,
	}
	link := &models.SimilarLink{ID: o.newID(), PostID: post.ID}

	saga := NewSaga("create-post", o.logger).
		AddStep(Step{
			Name: "resolve-similar",
			Execute: func(ctx context.Context) error {
				pair, err := o.oracle.MostSimilarFromContent(ctx, in.Content)
				if err != nil {
					return err
				}
				link.SimilarOneID, link.SimilarTwoID = pair.First, pair.Second
				return nil
			},
		}).
		AddStep(Step{
			Name:       "insert-post",
			Execute:    func(ctx context.Context) error { return o.store.CreatePost(ctx, post) },
			Compensate: func(ctx context.Context) error { return o.store.DeletePost(ctx, post.ID) },
		}).
		AddStep(Step{
			Name:       "create-expansion",
			Execute:    func(ctx context.Context) error { return o.store.CreateExpansion(ctx, expansion) },
			Compensate: func(ctx context.Context) error { return o.store.DeleteExpansionByOwner(ctx, post.ID) },
		}).
		AddStep(Step{
			Name:       "create-citations",
			Execute:    func(ctx context.Context) error { return o.store.CreateCitations(ctx, citations) },
			Compensate: func(ctx context.Context) error { return o.store.DeleteCitationsByOwner(ctx, post.ID) },
		}).
		AddStep(Step{
			Name:       "create-similar-link",
			Execute:    func(ctx context.Context) error { return o.store.CreateSimilarLink(ctx, link) },
			Compensate: func(ctx context.Context) error { return o.store.DeleteSimilarLinkByOwner(ctx, post.ID) },
		}).
		AddStep(Step{
			Name: "link-post",
			Execute: func(ctx context.Context) error {
				post.ExpansionID = expansion.ID
				post.CitationsID = citations.ID
				post.SimilarLinkID = link.ID
				return o.store.UpdatePost(ctx, post)
			},
		})

	if err := o.run(ctx, saga); err != nil {
		return nil, err
	}

	o.logger.Info("post created", zap.String("post_id", post.ID), zap.String("author_id", authorID))
	post.Author = author
	return post, nil
}

// Update replaces the content of a post and re-creates all three
// satellites. The old satellite ids are no longer referenced afterwards.
func (o *Orchestrator) Update(ctx context.Context, postID string, in PostInput) (post *models.Post, err error) {
	defer func() { o.metrics.PostMutation("update", err) }()

	post, err = o.store.GetPost(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("loading post %s: %w", postID, err)
	}
	author, err := o.store.GetUser(ctx, post.AuthorID)
	if err != nil {
		return nil, fmt.Errorf("loading author %s: %w", post.AuthorID, err)
	}
	original := *post

	oldExpansion, err := optional(o.store.GetExpansionByOwner(ctx, postID))
	if err != nil {
		return nil, err
	}
	oldCitations, err := optional(o.store.GetCitationsByOwner(ctx, postID))
	if err != nil {
		return nil, err
	}
	oldLink, err := optional(o.store.GetSimilarLinkByOwner(ctx, postID))
	if err != nil {
		return nil, err
	}

	expansion := &models.Expansion{ID: o.newID(), PostID: postID, Content: in.ExpandContent}
	citations := &models.Citations{
		ID:          o.newID(),
		PostID:      postID,
		SourceOne:   in.SourceOne,
		SourceTwo:   in.SourceTwo,
		SourceThree: in.SourceThree,
	}
	link := &models.SimilarLink{ID: o.newID(), PostID: postID}

	saga := NewSaga("update-post", o.logger).
		AddStep(replace("replace-expansion",
			o.store.DeleteExpansionByOwner, o.store.CreateExpansion, postID, expansion, oldExpansion)).
		AddStep(replace("replace-citations",
			o.store.DeleteCitationsByOwner, o.store.CreateCitations, postID, citations, oldCitations)).
		AddStep(Step{
			Name: "save-content",
			Execute: func(ctx context.Context) error {
				post.Content = in.Content
				post.DateModified = o.now()
				post.ExpansionID = expansion.ID
				post.CitationsID = citations.ID
				return o.store.UpdatePost(ctx, post)
			},
			Compensate: func(ctx context.Context) error { return o.store.UpdatePost(ctx, &original) },
		}).
		// Ranked after the content save so the new text is what gets compared.
		AddStep(Step{
			Name: "resolve-similar",
			Execute: func(ctx context.Context) error {
				pair, err := o.oracle.MostSimilarToExisting(ctx, postID)
				if err != nil {
					return err
				}
				link.SimilarOneID, link.SimilarTwoID = pair.First, pair.Second
				return nil
			},
		}).
		AddStep(replace("replace-similar-link",
			o.store.DeleteSimilarLinkByOwner, o.store.CreateSimilarLink, postID, link, oldLink)).
		AddStep(Step{
			Name: "link-post",
			Execute: func(ctx context.Context) error {
				post.SimilarLinkID = link.ID
				return o.store.UpdatePost(ctx, post)
			},
		})

	if err := o.run(ctx, saga); err != nil {
		return nil, err
	}

	o.logger.Info("post updated", zap.String("post_id", postID))
	post.Author = author
	return post, nil
}

// replace builds a step that swaps the satellite owned by postID for next.
// Owners are unique, so the old record goes first; restoring puts prev back
// under its old id. A failed create restores prev before returning.
func replace[T any](
	name string,
	deleteByOwner func(context.Context, string) error,
	create func(context.Context, *T) error,
	postID string,
	next, prev *T,
) Step {
	restore := func(ctx context.Context) error {
		if err := deleteByOwner(ctx, postID); err != nil {
			return err
		}
		if prev == nil {
			return nil
		}
		return create(ctx, prev)
	}
	return Step{
		Name: name,
		Execute: func(ctx context.Context) error {
			if err := deleteByOwner(ctx, postID); err != nil {
				return err
			}
			if err := create(ctx, next); err != nil {
				if rerr := restore(context.WithoutCancel(ctx)); rerr != nil {
					return errors.Join(err, fmt.Errorf("restoring %s: %w", name, rerr))
				}
				return err
			}
			return nil
		},
		Compensate: restore,
	}
}

func optional[T any](v *T, err error) (*T, error) {
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return v, err
}

// Delete removes the post. The store drops its satellites with it.
func (o *Orchestrator) Delete(ctx context.Context, postID string) (err error) {
	defer func() { o.metrics.PostMutation("delete", err) }()

	if err := o.store.DeletePost(ctx, postID); err != nil {
		return fmt.Errorf("deleting post %s: %w", postID, err)
	}
	o.logger.Info("post deleted", zap.String("post_id", postID))
	return nil
}

func (o *Orchestrator) DeleteAllByAuthor(ctx context.Context, authorID string) (n int, err error) {
	defer func() { o.metrics.PostMutation("delete-by-author", err) }()

	n, err = o.store.DeletePostsByAuthor(ctx, authorID)
	if err != nil {
		return 0, fmt.Errorf("deleting posts of %s: %w", authorID, err)
	}
	o.logger.Info("posts deleted", zap.String("author_id", authorID), zap.Int("count", n))
	return n, nil
}

// FindOne returns the post with its author resolved.
func (o *Orchestrator) FindOne(ctx context.Context, postID string) (*models.Post, error) {
	post, err := o.store.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	post.Author, err = o.store.GetUser(ctx, post.AuthorID)
	if err != nil {
		return nil, fmt.Errorf("loading author %s: %w", post.AuthorID, err)
	}
	return post, nil
}

func (o *Orchestrator) FindAll(ctx context.Context, limit int, cursor *string) (*models.PaginatedPosts, error) {
	return o.store.ListPosts(ctx, limit, cursor)
}

// FindAllByUsername lists the author's posts, most recently modified first.
func (o *Orchestrator) FindAllByUsername(ctx context.Context, username string) ([]*models.Post, error) {
	author, err := o.store.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	posts, err := o.store.ListPostsByAuthor(ctx, author.ID)
	if err != nil {
		return nil, err
	}
	for _, p := range posts {
		p.Author = author
	}
	return posts, nil
}
