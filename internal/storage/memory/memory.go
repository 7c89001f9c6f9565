package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ButyrinIA/fritter/internal/models"
	"github.com/ButyrinIA/fritter/internal/storage"
)

type MemoryStorage struct {
	users        map[string]*models.User
	usernames    map[string]string
	posts        map[string]*models.Post
	expansions   map[string]*models.Expansion
	citations    map[string]*models.Citations
	similarLinks map[string]*models.SimilarLink
	mu           sync.RWMutex
}

func New() *MemoryStorage {
	return &MemoryStorage{
		users:        make(map[string]*models.User),
		usernames:    make(map[string]string),
		posts:        make(map[string]*models.Post),
		expansions:   make(map[string]*models.Expansion),
		citations:    make(map[string]*models.Citations),
		similarLinks: make(map[string]*models.SimilarLink),
	}
}

func usernameKey(username string) string {
	return strings.ToLower(username)
}

func copyUser(u *models.User) *models.User {
	c := *u
	return &c
}

func copyPost(p *models.Post) *models.Post {
	c := *p
	c.Author = nil
	return &c
}

func (s *MemoryStorage) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := usernameKey(user.Username)
	if _, exists := s.usernames[key]; exists {
		return fmt.Errorf("username %q: %w", user.Username, storage.ErrConflict)
	}
	if _, exists := s.users[user.ID]; exists {
		return fmt.Errorf("user %s: %w", user.ID, storage.ErrConflict)
	}
	s.users[user.ID] = copyUser(user)
	s.usernames[key] = user.ID
	return nil
}

func (s *MemoryStorage) GetUser(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.users[id]
	if !exists {
		return nil, fmt.Errorf("user %s: %w", id, storage.ErrNotFound)
	}
	return copyUser(user), nil
}

func (s *MemoryStorage) GetUsers(ctx context.Context, ids []string) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]*models.User, 0, len(ids))
	for _, id := range ids {
		if user, exists := s.users[id]; exists {
			users = append(users, copyUser(user))
		}
	}
	return users, nil
}

func (s *MemoryStorage) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.usernames[usernameKey(username)]
	if !exists {
		return nil, fmt.Errorf("username %q: %w", username, storage.ErrNotFound)
	}
	return copyUser(s.users[id]), nil
}

func (s *MemoryStorage) GetUserByCredentials(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user.Password != password {
		return nil, fmt.Errorf("credentials for %q: %w", username, storage.ErrNotFound)
	}
	return user, nil
}

func (s *MemoryStorage) UpdateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.users[user.ID]
	if !exists {
		return fmt.Errorf("user %s: %w", user.ID, storage.ErrNotFound)
	}
	oldKey, newKey := usernameKey(current.Username), usernameKey(user.Username)
	if oldKey != newKey {
		if _, taken := s.usernames[newKey]; taken {
			return fmt.Errorf("username %q: %w", user.Username, storage.ErrConflict)
		}
		delete(s.usernames, oldKey)
		s.usernames[newKey] = user.ID
	}
	s.users[user.ID] = copyUser(user)
	return nil
}

func (s *MemoryStorage) DeleteUser(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.users[id]
	if !exists {
		return fmt.Errorf("user %s: %w", id, storage.ErrNotFound)
	}
	delete(s.usernames, usernameKey(user.Username))
	delete(s.users, id)
	return nil
}

func (s *MemoryStorage) CreatePost(ctx context.Context, post *models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.posts[post.ID]; exists {
		return fmt.Errorf("post %s: %w", post.ID, storage.ErrConflict)
	}
	s.posts[post.ID] = copyPost(post)
	return nil
}

func (s *MemoryStorage) GetPost(ctx context.Context, id string) (*models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	post, exists := s.posts[id]
	if !exists {
		return nil, fmt.Errorf("post %s: %w", id, storage.ErrNotFound)
	}
	return copyPost(post), nil
}

func (s *MemoryStorage) UpdatePost(ctx context.Context, post *models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.posts[post.ID]; !exists {
		return fmt.Errorf("post %s: %w", post.ID, storage.ErrNotFound)
	}
	s.posts[post.ID] = copyPost(post)
	return nil
}

// deletePostLocked removes the post and everything it owns. Caller holds mu.
func (s *MemoryStorage) deletePostLocked(id string) {
	delete(s.expansions, id)
	delete(s.citations, id)
	delete(s.similarLinks, id)
	delete(s.posts, id)
}

func (s *MemoryStorage) DeletePost(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.posts[id]; !exists {
		return fmt.Errorf("post %s: %w", id, storage.ErrNotFound)
	}
	s.deletePostLocked(id)
	return nil
}

// sortPosts orders by modification date, newest first.
func sortPosts(posts []*models.Post) {
	sort.Slice(posts, func(i, j int) bool {
		if posts[i].DateModified.Equal(posts[j].DateModified) {
			return posts[i].ID > posts[j].ID
		}
		return posts[i].DateModified.After(posts[j].DateModified)
	})
}

func (s *MemoryStorage) snapshot(keep func(*models.Post) bool) []*models.Post {
	s.mu.RLock()
	defer s.mu.RUnlock()

	posts := make([]*models.Post, 0, len(s.posts))
	for _, post := range s.posts {
		if keep == nil || keep(post) {
			posts = append(posts, copyPost(post))
		}
	}
	sortPosts(posts)
	return posts
}

func (s *MemoryStorage) ListPosts(ctx context.Context, limit int, cursor *string) (*models.PaginatedPosts, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit %d: %w", limit, storage.ErrInvalidLimit)
	}
	posts := s.snapshot(nil)
	totalCount := len(posts)

	// Применение курсора
	startIdx := 0
	if cursor != nil {
		c, err := storage.DecodeCursor(*cursor)
		if err != nil {
			return nil, err
		}
		startIdx = len(posts)
		for i, post := range posts {
			if c.After(post) {
				startIdx = i
				break
			}
		}
	}

	endIdx := startIdx + limit
	if endIdx > len(posts) {
		endIdx = len(posts)
	}

	var nextCursor *string
	if endIdx < len(posts) {
		cursorVal := storage.EncodeCursor(posts[endIdx-1])
		nextCursor = &cursorVal
	}

	return &models.PaginatedPosts{
		Posts:      posts[startIdx:endIdx],
		TotalCount: totalCount,
		NextCursor: nextCursor,
	}, nil
}

func (s *MemoryStorage) ListAllPosts(ctx context.Context) ([]*models.Post, error) {
	return s.snapshot(nil), nil
}

func (s *MemoryStorage) ListPostsByAuthor(ctx context.Context, authorID string) ([]*models.Post, error) {
	return s.snapshot(func(p *models.Post) bool { return p.AuthorID == authorID }), nil
}

func (s *MemoryStorage) DeletePostsByAuthor(ctx context.Context, authorID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for id, post := range s.posts {
		if post.AuthorID == authorID {
			s.deletePostLocked(id)
			deleted++
		}
	}
	return deleted, nil
}

// checkOwnerLocked verifies a satellite can be attached to postID. Caller holds mu.
func (s *MemoryStorage) checkOwnerLocked(kind, postID string, taken bool) error {
	if _, exists := s.posts[postID]; !exists {
		return fmt.Errorf("%s owner post %s: %w", kind, postID, storage.ErrNotFound)
	}
	if taken {
		return fmt.Errorf("%s for post %s: %w", kind, postID, storage.ErrConflict)
	}
	return nil
}

func (s *MemoryStorage) CreateExpansion(ctx context.Context, expansion *models.Expansion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, taken := s.expansions[expansion.PostID]
	if err := s.checkOwnerLocked("expansion", expansion.PostID, taken); err != nil {
		return err
	}
	c := *expansion
	s.expansions[expansion.PostID] = &c
	return nil
}

func (s *MemoryStorage) GetExpansionByOwner(ctx context.Context, postID string) (*models.Expansion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expansion, exists := s.expansions[postID]
	if !exists {
		return nil, fmt.Errorf("expansion for post %s: %w", postID, storage.ErrNotFound)
	}
	c := *expansion
	return &c, nil
}

func (s *MemoryStorage) DeleteExpansionByOwner(ctx context.Context, postID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.expansions, postID)
	return nil
}

func (s *MemoryStorage) CreateCitations(ctx context.Context, citations *models.Citations) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, taken := s.citations[citations.PostID]
	if err := s.checkOwnerLocked("citations", citations.PostID, taken); err != nil {
		return err
	}
	c := *citations
	s.citations[citations.PostID] = &c
	return nil
}

func (s *MemoryStorage) GetCitationsByOwner(ctx context.Context, postID string) (*models.Citations, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	citations, exists := s.citations[postID]
	if !exists {
		return nil, fmt.Errorf("citations for post %s: %w", postID, storage.ErrNotFound)
	}
	c := *citations
	return &c, nil
}

func (s *MemoryStorage) DeleteCitationsByOwner(ctx context.Context, postID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.citations, postID)
	return nil
}

func (s *MemoryStorage) CreateSimilarLink(ctx context.Context, link *models.SimilarLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, taken := s.similarLinks[link.PostID]
	if err := s.checkOwnerLocked("similar link", link.PostID, taken); err != nil {
		return err
	}
	c := *link
	s.similarLinks[link.PostID] = &c
	return nil
}

func (s *MemoryStorage) GetSimilarLinkByOwner(ctx context.Context, postID string) (*models.SimilarLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	link, exists := s.similarLinks[postID]
	if !exists {
		return nil, fmt.Errorf("similar link for post %s: %w", postID, storage.ErrNotFound)
	}
	c := *link
	return &c, nil
}

func (s *MemoryStorage) DeleteSimilarLinkByOwner(ctx context.Context, postID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.similarLinks, postID)
	return nil
}

func (s *MemoryStorage) Close() error {
	return nil
}
