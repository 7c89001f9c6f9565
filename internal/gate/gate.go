// Package gate holds the ordered precondition checks that run before any
// mutation. A chain stops at the first failing check.
package gate

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ButyrinIA/fritter/internal/models"
)

// Failure is the structured rejection produced by a check. With a Key the
// response body is {"error": {Key: Message}}, otherwise {"error": Message}.
type Failure struct {
	Check   string
	Status  int
	Key     string
	Message string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %d %s", f.Check, f.Status, f.Message)
}

func (f *Failure) Body() map[string]any {
	if f.Key == "" {
		return map[string]any{"error": f.Message}
	}
	return map[string]any{"error": map[string]string{f.Key: f.Message}}
}

// Input carries everything a check may look at. Identity is the
// authenticated user id and is empty for anonymous requests.
type Input struct {
	Identity      string
	Username      string
	Password      string
	Author        string
	PostID        string
	Content       string
	ExpandContent string
}

type Check struct {
	Name string
	Run  func(ctx context.Context, in *Input) *Failure
}

type Chain []Check

// Run evaluates the checks in order and returns the first failure, or nil.
func (c Chain) Run(ctx context.Context, in *Input) *Failure {
	for _, check := range c {
		if f := check.Run(ctx, in); f != nil {
			f.Check = check.Name
			return f
		}
	}
	return nil
}

type UserDirectory interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByCredentials(ctx context.Context, username, password string) (*models.User, error)
}

type PostFinder interface {
	GetPost(ctx context.Context, id string) (*models.Post, error)
}

type Gate struct {
	users UserDirectory
	posts PostFinder
}

func New(users UserDirectory, posts PostFinder) *Gate {
	return &Gate{users: users, posts: posts}
}

func internalFailure(err error) *Failure {
	return &Failure{Status: http.StatusInternalServerError, Message: err.Error()}
}

func (g *Gate) CreatePost() Chain {
	return Chain{g.SessionUserExists(), g.LoggedIn(), g.PostContentWellFormed(), g.ExpandedContentWellFormed()}
}

func (g *Gate) UpdatePost() Chain {
	return Chain{
		g.SessionUserExists(),
		g.LoggedIn(),
		g.PostExists(),
		g.AuthorMatchesIdentity(),
		g.PostContentWellFormed(),
		g.ExpandedContentWellFormed(),
	}
}

func (g *Gate) DeletePost() Chain {
	return Chain{g.SessionUserExists(), g.LoggedIn(), g.PostExists(), g.AuthorMatchesIdentity()}
}

func (g *Gate) ReadAll() Chain {
	return Chain{g.SessionUserExists()}
}

func (g *Gate) ReadPost() Chain {
	return Chain{g.SessionUserExists(), g.PostExists()}
}

func (g *Gate) ReadSatellite() Chain {
	return Chain{g.SessionUserExists(), g.TargetPostExists()}
}

func (g *Gate) ListByAuthor() Chain {
	return Chain{g.SessionUserExists(), g.AuthorExists()}
}

func (g *Gate) CreateUser() Chain {
	return Chain{
		g.SessionUserExists(),
		g.LoggedOut(),
		g.UsernameWellFormed(),
		g.PasswordWellFormed(),
		g.UsernameAvailable(),
	}
}

func (g *Gate) SignIn() Chain {
	return Chain{
		g.SessionUserExists(),
		g.LoggedOut(),
		g.UsernameWellFormed(),
		g.PasswordWellFormed(),
		g.CredentialsMatch(),
	}
}

func (g *Gate) SignOut() Chain {
	return Chain{g.SessionUserExists(), g.LoggedIn()}
}

// UpdateUser only checks the fields the caller actually supplied.
func (g *Gate) UpdateUser(hasUsername, hasPassword bool) Chain {
	chain := Chain{g.SessionUserExists(), g.LoggedIn()}
	if hasUsername {
		chain = append(chain, g.UsernameWellFormed(), g.UsernameAvailable())
	}
	if hasPassword {
		chain = append(chain, g.PasswordWellFormed())
	}
	return chain
}

func (g *Gate) DeleteUser() Chain {
	return Chain{g.SessionUserExists(), g.LoggedIn()}
}
