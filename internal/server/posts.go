package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ButyrinIA/fritter/internal/feed"
	"github.com/ButyrinIA/fritter/internal/gate"
	"github.com/ButyrinIA/fritter/internal/linking"
	"github.com/ButyrinIA/fritter/internal/models"
	"github.com/ButyrinIA/fritter/internal/storage"
	"github.com/go-chi/chi/v5"
)

const maxPageSize = 100

type postRequest struct {
	Content       string `json:"content"`
	ExpandContent string `json:"expandContent"`
	SourceOne     string `json:"sourceOne"`
	SourceTwo     string `json:"sourceTwo"`
	SourceThree   string `json:"sourceThree"`
}

func (p postRequest) input() linking.PostInput {
	return linking.PostInput{
		Content:       p.Content,
		ExpandContent: p.ExpandContent,
		SourceOne:     p.SourceOne,
		SourceTwo:     p.SourceTwo,
		SourceThree:   p.SourceThree,
	}
}

type postResponse struct {
	ID               string `json:"_id"`
	Author           string `json:"author"`
	Content          string `json:"content"`
	DateCreated      string `json:"dateCreated"`
	DateModified     string `json:"dateModified"`
	ExpandContentID  string `json:"expandContentId"`
	SourceCitationID string `json:"sourceCitationId"`
	SimilarLinkID    string `json:"similarLinkId"`
}

func newPostResponse(p *models.Post) postResponse {
	resp := postResponse{
		ID:               p.ID,
		Content:          p.Content,
		DateCreated:      p.DateCreated.Format(time.RFC3339),
		DateModified:     p.DateModified.Format(time.RFC3339),
		ExpandContentID:  p.ExpansionID,
		SourceCitationID: p.CitationsID,
		SimilarLinkID:    p.SimilarLinkID,
	}
	if p.Author != nil {
		resp.Author = p.Author.Username
	}
	return resp
}

func newPostResponses(posts []*models.Post) []postResponse {
	out := make([]postResponse, 0, len(posts))
	for _, p := range posts {
		out = append(out, newPostResponse(p))
	}
	return out
}

// GET /api/posts and GET /api/posts?author=username
func (s *Server) listPosts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if query.Has("author") {
		s.listPostsByAuthor(w, r, query.Get("author"))
		return
	}

	if f := s.gate.ReadAll().Run(r.Context(), &gate.Input{Identity: s.identity(r)}); f != nil {
		s.respondFailure(w, f)
		return
	}

	limit := s.cfg.Server.PageSize
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxPageSize {
			s.respondError(w, http.StatusBadRequest, "Limit must be an integer between 1 and 100.")
			return
		}
		limit = n
	}
	var cursor *string
	if raw := query.Get("cursor"); raw != "" {
		if _, err := storage.DecodeCursor(raw); err != nil {
			s.respondError(w, http.StatusBadRequest, "Invalid cursor.")
			return
		}
		cursor = &raw
	}

	page, err := s.posts.FindAll(r.Context(), limit, cursor)
	if err != nil {
		s.respondInternal(w, r, err)
		return
	}
	if err := resolveAuthors(r.Context(), s.storage, page.Posts); err != nil {
		s.respondInternal(w, r, err)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"posts":      newPostResponses(page.Posts),
		"totalCount": page.TotalCount,
		"nextCursor": page.NextCursor,
	})
}

func (s *Server) listPostsByAuthor(w http.ResponseWriter, r *http.Request, author string) {
	in := &gate.Input{Identity: s.identity(r), Author: author}
	if f := s.gate.ListByAuthor().Run(r.Context(), in); f != nil {
		s.respondFailure(w, f)
		return
	}

	posts, err := s.posts.FindAllByUsername(r.Context(), author)
	if err != nil {
		s.respondInternal(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, newPostResponses(posts))
}

// GET /api/posts/{postID}
func (s *Server) getPost(w http.ResponseWriter, r *http.Request) {
	in := &gate.Input{Identity: s.identity(r), PostID: chi.URLParam(r, "postID")}
	if f := s.gate.ReadPost().Run(r.Context(), in); f != nil {
		s.respondFailure(w, f)
		return
	}

	post, err := s.posts.FindOne(r.Context(), in.PostID)
	if err != nil {
		s.respondInternal(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, newPostResponse(post))
}

// POST /api/posts
func (s *Server) createPost(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	in := &gate.Input{Identity: s.identity(r), Content: req.Content, ExpandContent: req.ExpandContent}
	if f := s.gate.CreatePost().Run(r.Context(), in); f != nil {
		s.respondFailure(w, f)
		return
	}

	post, err := s.posts.Create(r.Context(), in.Identity, req.input())
	if err != nil {
		s.respondInternal(w, r, err)
		return
	}
	s.hub.Publish(feed.Event{Type: feed.PostCreated, PostID: post.ID, Post: post})

	s.respondJSON(w, http.StatusCreated, map[string]any{
		"message": "Your freet was created successfully.",
		"post":    newPostResponse(post),
	})
}

// PUT /api/posts/{postID}
func (s *Server) updatePost(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	in := &gate.Input{
		Identity:      s.identity(r),
		PostID:        chi.URLParam(r, "postID"),
		Content:       req.Content,
		ExpandContent: req.ExpandContent,
	}
	if f := s.gate.UpdatePost().Run(r.Context(), in); f != nil {
		s.respondFailure(w, f)
		return
	}

	post, err := s.posts.Update(r.Context(), in.PostID, req.input())
	if err != nil {
		s.respondInternal(w, r, err)
		return
	}
	s.hub.Publish(feed.Event{Type: feed.PostUpdated, PostID: post.ID, Post: post})

	s.respondJSON(w, http.StatusOK, map[string]any{
		"message": "Your freet was updated successfully.",
		"post":    newPostResponse(post),
	})
}

// DELETE /api/posts/{postID}
func (s *Server) deletePost(w http.ResponseWriter, r *http.Request) {
	in := &gate.Input{Identity: s.identity(r), PostID: chi.URLParam(r, "postID")}
	if f := s.gate.DeletePost().Run(r.Context(), in); f != nil {
		s.respondFailure(w, f)
		return
	}

	if err := s.posts.Delete(r.Context(), in.PostID); err != nil {
		s.respondInternal(w, r, err)
		return
	}
	s.hub.Publish(feed.Event{Type: feed.PostDeleted, PostID: in.PostID})

	s.respondJSON(w, http.StatusOK, map[string]string{"message": "Your freet was deleted successfully."})
}

// serveSatellite answers GET /api/posts/{postID}/<kind> with the record
// that find returns for the post.
func serveSatellite[T any](
	s *Server,
	w http.ResponseWriter,
	r *http.Request,
	kind string,
	find func(ctx context.Context, postID string) (*T, error),
) {
	in := &gate.Input{Identity: s.identity(r), PostID: chi.URLParam(r, "postID")}
	if f := s.gate.ReadSatellite().Run(r.Context(), in); f != nil {
		s.respondFailure(w, f)
		return
	}

	record, err := find(r.Context(), in.PostID)
	if errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "Post has no "+kind+".")
		return
	}
	if err != nil {
		s.respondInternal(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{kind: record})
}

func (s *Server) getExpansion(w http.ResponseWriter, r *http.Request) {
	serveSatellite(s, w, r, "expansion", s.storage.GetExpansionByOwner)
}

func (s *Server) getCitations(w http.ResponseWriter, r *http.Request) {
	serveSatellite(s, w, r, "citations", s.storage.GetCitationsByOwner)
}

func (s *Server) getSimilar(w http.ResponseWriter, r *http.Request) {
	serveSatellite(s, w, r, "similar", s.storage.GetSimilarLinkByOwner)
}
