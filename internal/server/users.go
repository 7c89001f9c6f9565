package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ButyrinIA/fritter/internal/feed"
	"github.com/ButyrinIA/fritter/internal/gate"
	"github.com/ButyrinIA/fritter/internal/models"
	"github.com/ButyrinIA/fritter/internal/storage"
	"github.com/google/uuid"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type updateUserRequest struct {
	Username *string `json:"username"`
	Password *string `json:"password"`
}

type userResponse struct {
	ID         string `json:"_id"`
	Username   string `json:"username"`
	DateJoined string `json:"dateJoined"`
}

func newUserResponse(u *models.User) userResponse {
	return userResponse{ID: u.ID, Username: u.Username, DateJoined: u.DateJoined.Format(time.RFC3339)}
}

// POST /api/users
func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	in := &gate.Input{Identity: s.identity(r), Username: req.Username, Password: req.Password}
	if f := s.gate.CreateUser().Run(r.Context(), in); f != nil {
		s.respondFailure(w, f)
		return
	}

	user := &models.User{
		ID:         uuid.New().String(),
		Username:   req.Username,
		Password:   req.Password,
		DateJoined: time.Now().UTC(),
	}
	if err := s.storage.CreateUser(r.Context(), user); err != nil {
		s.respondUserWrite(w, r, err)
		return
	}
	token, err := s.issuer.Issue(user.ID)
	if err != nil {
		s.respondInternal(w, r, err)
		return
	}

	s.respondJSON(w, http.StatusCreated, map[string]any{
		"message": fmt.Sprintf("Your account was created successfully. You have been logged in as %s", user.Username),
		"user":    newUserResponse(user),
		"token":   token,
	})
}

// PATCH /api/users
func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	in := &gate.Input{Identity: s.identity(r)}
	if req.Username != nil {
		in.Username = *req.Username
	}
	if req.Password != nil {
		in.Password = *req.Password
	}
	if f := s.gate.UpdateUser(req.Username != nil, req.Password != nil).Run(r.Context(), in); f != nil {
		s.respondFailure(w, f)
		return
	}

	user, err := s.storage.GetUser(r.Context(), in.Identity)
	if err != nil {
		s.respondInternal(w, r, err)
		return
	}
	if req.Username != nil {
		user.Username = *req.Username
	}
	if req.Password != nil {
		user.Password = *req.Password
	}
	if err := s.storage.UpdateUser(r.Context(), user); err != nil {
		s.respondUserWrite(w, r, err)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"message": "Your profile was updated successfully.",
		"user":    newUserResponse(user),
	})
}

// DELETE /api/users removes the account together with all of its posts.
func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	in := &gate.Input{Identity: s.identity(r)}
	if f := s.gate.DeleteUser().Run(r.Context(), in); f != nil {
		s.respondFailure(w, f)
		return
	}

	owned, err := s.storage.ListPostsByAuthor(r.Context(), in.Identity)
	if err != nil {
		s.respondInternal(w, r, err)
		return
	}
	if _, err := s.posts.DeleteAllByAuthor(r.Context(), in.Identity); err != nil {
		s.respondInternal(w, r, err)
		return
	}
	if err := s.storage.DeleteUser(r.Context(), in.Identity); err != nil {
		s.respondInternal(w, r, err)
		return
	}
	for _, p := range owned {
		s.hub.Publish(feed.Event{Type: feed.PostDeleted, PostID: p.ID})
	}

	s.respondJSON(w, http.StatusOK, map[string]string{"message": "Your account has been deleted successfully."})
}

// POST /api/users/session
func (s *Server) signIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	in := &gate.Input{Identity: s.identity(r), Username: req.Username, Password: req.Password}
	if f := s.gate.SignIn().Run(r.Context(), in); f != nil {
		s.respondFailure(w, f)
		return
	}

	user, err := s.storage.GetUserByCredentials(r.Context(), req.Username, req.Password)
	if err != nil {
		s.respondInternal(w, r, err)
		return
	}
	token, err := s.issuer.Issue(user.ID)
	if err != nil {
		s.respondInternal(w, r, err)
		return
	}

	s.respondJSON(w, http.StatusCreated, map[string]any{
		"message": "You have logged in successfully",
		"user":    newUserResponse(user),
		"token":   token,
	})
}

// DELETE /api/users/session. Tokens are stateless; the client drops its copy.
func (s *Server) signOut(w http.ResponseWriter, r *http.Request) {
	in := &gate.Input{Identity: s.identity(r)}
	if f := s.gate.SignOut().Run(r.Context(), in); f != nil {
		s.respondFailure(w, f)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"message": "You have been logged out successfully."})
}

// respondUserWrite answers a failed user insert or update. A unique violation
// means another request claimed the username after username-available ran.
func (s *Server) respondUserWrite(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, storage.ErrConflict) {
		s.respondFailure(w, gate.UsernameTaken())
		return
	}
	s.respondInternal(w, r, err)
}
