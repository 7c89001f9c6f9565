package gate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ButyrinIA/fritter/internal/storage"
	"github.com/google/uuid"
)

const (
	MaxPostLength      = 140
	MaxExpansionLength = 1400
)

var usernamePattern = regexp.MustCompile(`^\w+$`)

// SessionUserExists fails when the request carries an identity whose user
// has since been deleted.
func (g *Gate) SessionUserExists() Check {
	return Check{Name: "session-identity-exists", Run: func(ctx context.Context, in *Input) *Failure {
		if in.Identity == "" {
			return nil
		}
		_, err := g.users.GetUser(ctx, in.Identity)
		if errors.Is(err, storage.ErrNotFound) {
			return &Failure{
				Status:  http.StatusInternalServerError,
				Key:     "userNotFound",
				Message: "User session was not recognized.",
			}
		}
		if err != nil {
			return internalFailure(err)
		}
		return nil
	}}
}

func (g *Gate) UsernameWellFormed() Check {
	return Check{Name: "username-well-formed", Run: func(_ context.Context, in *Input) *Failure {
		if !usernamePattern.MatchString(in.Username) {
			return &Failure{
				Status:  http.StatusBadRequest,
				Key:     "username",
				Message: "Username must be a nonempty alphanumeric string.",
			}
		}
		return nil
	}}
}

func (g *Gate) PasswordWellFormed() Check {
	return Check{Name: "password-well-formed", Run: func(_ context.Context, in *Input) *Failure {
		// Any Unicode space counts, including \v, U+00A0 and U+3000.
		if in.Password == "" || strings.IndexFunc(in.Password, unicode.IsSpace) >= 0 {
			return &Failure{
				Status:  http.StatusBadRequest,
				Key:     "password",
				Message: "Password must be a nonempty string.",
			}
		}
		return nil
	}}
}

func (g *Gate) CredentialsMatch() Check {
	return Check{Name: "credentials-match", Run: func(ctx context.Context, in *Input) *Failure {
		if in.Username == "" || in.Password == "" {
			missing := "username"
			if in.Username != "" {
				missing = "password"
			}
			return &Failure{
				Status:  http.StatusBadRequest,
				Message: fmt.Sprintf("Missing %s credentials for sign in.", missing),
			}
		}
		_, err := g.users.GetUserByCredentials(ctx, in.Username, in.Password)
		if errors.Is(err, storage.ErrNotFound) {
			return &Failure{Status: http.StatusUnauthorized, Message: "Invalid user login credentials provided."}
		}
		if err != nil {
			return internalFailure(err)
		}
		return nil
	}}
}

// UsernameAvailable lets users keep their own username in any letter case.
func (g *Gate) UsernameAvailable() Check {
	return Check{Name: "username-available", Run: func(ctx context.Context, in *Input) *Failure {
		user, err := g.users.GetUserByUsername(ctx, in.Username)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return internalFailure(err)
		}
		if in.Identity != "" && user.ID == in.Identity {
			return nil
		}
		return UsernameTaken()
	}}
}

// UsernameTaken is the username-available rejection. Writers that lose a
// race for a username after the check passed report it too.
func UsernameTaken() *Failure {
	return &Failure{
		Check:   "username-available",
		Status:  http.StatusConflict,
		Key:     "username",
		Message: "An account with this username already exists.",
	}
}

func (g *Gate) LoggedIn() Check {
	return Check{Name: "must-be-logged-in", Run: func(_ context.Context, in *Input) *Failure {
		if in.Identity == "" {
			return &Failure{
				Status:  http.StatusForbidden,
				Key:     "auth",
				Message: "You must be logged in to complete this action.",
			}
		}
		return nil
	}}
}

func (g *Gate) LoggedOut() Check {
	return Check{Name: "must-be-logged-out", Run: func(_ context.Context, in *Input) *Failure {
		if in.Identity != "" {
			return &Failure{Status: http.StatusForbidden, Message: "You are already signed in."}
		}
		return nil
	}}
}

func (g *Gate) AuthorExists() Check {
	return Check{Name: "author-exists", Run: func(ctx context.Context, in *Input) *Failure {
		if in.Author == "" {
			return &Failure{Status: http.StatusBadRequest, Message: "Provided author username must be nonempty."}
		}
		_, err := g.users.GetUserByUsername(ctx, in.Author)
		if errors.Is(err, storage.ErrNotFound) {
			return &Failure{
				Status:  http.StatusNotFound,
				Message: fmt.Sprintf("A user with username %s does not exist.", in.Author),
			}
		}
		if err != nil {
			return internalFailure(err)
		}
		return nil
	}}
}

func (g *Gate) TargetPostExists() Check {
	return Check{Name: "target-post-exists", Run: func(ctx context.Context, in *Input) *Failure {
		if in.PostID == "" {
			return &Failure{Status: http.StatusBadRequest, Message: "Missing post id."}
		}
		_, err := g.posts.GetPost(ctx, in.PostID)
		if errors.Is(err, storage.ErrNotFound) {
			return &Failure{Status: http.StatusUnauthorized, Message: "Invalid post"}
		}
		if err != nil {
			return internalFailure(err)
		}
		return nil
	}}
}

func (g *Gate) PostContentWellFormed() Check {
	return Check{Name: "post-content-well-formed", Run: func(_ context.Context, in *Input) *Failure {
		if strings.TrimSpace(in.Content) == "" {
			return &Failure{Status: http.StatusBadRequest, Message: "Freet content must be at least one character long."}
		}
		if utf8.RuneCountInString(in.Content) > MaxPostLength {
			return &Failure{
				Status:  http.StatusRequestEntityTooLarge,
				Message: fmt.Sprintf("Freet content must be no more than %d characters.", MaxPostLength),
			}
		}
		return nil
	}}
}

func (g *Gate) ExpandedContentWellFormed() Check {
	return Check{Name: "expanded-content-well-formed", Run: func(_ context.Context, in *Input) *Failure {
		if strings.TrimSpace(in.ExpandContent) == "" {
			return &Failure{Status: http.StatusBadRequest, Message: "Expanded content must be at least one character long."}
		}
		if utf8.RuneCountInString(in.ExpandContent) > MaxExpansionLength {
			return &Failure{
				Status:  http.StatusRequestEntityTooLarge,
				Message: fmt.Sprintf("Expand content must be no more than %d characters.", MaxExpansionLength),
			}
		}
		return nil
	}}
}

// PostExists also rejects ids that are not well-formed UUIDs without
// touching storage.
func (g *Gate) PostExists() Check {
	return Check{Name: "freet-exists-by-id", Run: func(ctx context.Context, in *Input) *Failure {
		notFound := &Failure{
			Status:  http.StatusNotFound,
			Key:     "freetNotFound",
			Message: fmt.Sprintf("Freet with freet ID %s does not exist.", in.PostID),
		}
		if _, err := uuid.Parse(in.PostID); err != nil {
			return notFound
		}
		_, err := g.posts.GetPost(ctx, in.PostID)
		if errors.Is(err, storage.ErrNotFound) {
			return notFound
		}
		if err != nil {
			return internalFailure(err)
		}
		return nil
	}}
}

// AuthorMatchesIdentity is reported as 500 userNotFound: an edit of someone
// else's post is treated as an inconsistent session, not a client mistake.
func (g *Gate) AuthorMatchesIdentity() Check {
	return Check{Name: "author-matches-identity", Run: func(ctx context.Context, in *Input) *Failure {
		if in.Identity == "" {
			return nil
		}
		post, err := g.posts.GetPost(ctx, in.PostID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return internalFailure(err)
		}
		if post.AuthorID != in.Identity {
			return &Failure{
				Status:  http.StatusInternalServerError,
				Key:     "userNotFound",
				Message: "User attempting to edit another users post.",
			}
		}
		return nil
	}}
}
