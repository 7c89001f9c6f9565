package gate

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/ButyrinIA/fritter/internal/models"
	"github.com/ButyrinIA/fritter/internal/storage/memory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	gate  *Gate
	store *memory.MemoryStorage
	alice *models.User
	bob   *models.User
	post  *models.Post
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ctx := context.Background()
	store := memory.New()
	alice := &models.User{ID: uuid.New().String(), Username: "Alice", Password: "secret", DateJoined: time.Now()}
	bob := &models.User{ID: uuid.New().String(), Username: "bob", Password: "hunter2", DateJoined: time.Now()}
	require.NoError(t, store.CreateUser(ctx, alice))
	require.NoError(t, store.CreateUser(ctx, bob))

	post := &models.Post{ID: uuid.New().String(), AuthorID: alice.ID, Content: "hi", DateCreated: time.Now(), DateModified: time.Now()}
	require.NoError(t, store.CreatePost(ctx, post))

	return &fixture{gate: New(store, store), store: store, alice: alice, bob: bob, post: post}
}

func counting(check Check, calls map[string]int) Check {
	return Check{Name: check.Name, Run: func(ctx context.Context, in *Input) *Failure {
		calls[check.Name]++
		return check.Run(ctx, in)
	}}
}

func TestChain_ShortCircuits(t *testing.T) {
	f := newFixture(t)
	calls := map[string]int{}

	var chain Chain
	for _, c := range f.gate.UpdatePost() {
		chain = append(chain, counting(c, calls))
	}

	// bob is logged in, the post exists, but it is alice's.
	failure := chain.Run(context.Background(), &Input{
		Identity:      f.bob.ID,
		PostID:        f.post.ID,
		Content:       "edited",
		ExpandContent: "more",
	})
	require.NotNil(t, failure)
	assert.Equal(t, "author-matches-identity", failure.Check)
	assert.Equal(t, http.StatusInternalServerError, failure.Status)
	assert.Equal(t, "userNotFound", failure.Key)

	assert.Equal(t, 1, calls["session-identity-exists"])
	assert.Equal(t, 1, calls["must-be-logged-in"])
	assert.Equal(t, 1, calls["freet-exists-by-id"])
	assert.Equal(t, 1, calls["author-matches-identity"])
	assert.Zero(t, calls["post-content-well-formed"])
	assert.Zero(t, calls["expanded-content-well-formed"])
}

func TestChain_Passes(t *testing.T) {
	f := newFixture(t)

	failure := f.gate.UpdatePost().Run(context.Background(), &Input{
		Identity:      f.alice.ID,
		PostID:        f.post.ID,
		Content:       "edited",
		ExpandContent: "more",
	})
	assert.Nil(t, failure)
}

func TestChecks(t *testing.T) {
	f := newFixture(t)
	g := f.gate
	ghost := uuid.New().String()

	tests := []struct {
		name   string
		check  Check
		input  Input
		status int
		key    string
		msg    string
	}{
		{
			name:   "vanished session user",
			check:  g.SessionUserExists(),
			input:  Input{Identity: ghost},
			status: http.StatusInternalServerError,
			key:    "userNotFound",
			msg:    "User session was not recognized.",
		},
		{name: "anonymous session passes", check: g.SessionUserExists(), input: Input{}},
		{
			name:   "username with dash",
			check:  g.UsernameWellFormed(),
			input:  Input{Username: "al-ice"},
			status: http.StatusBadRequest,
			key:    "username",
			msg:    "Username must be a nonempty alphanumeric string.",
		},
		{name: "username with underscore", check: g.UsernameWellFormed(), input: Input{Username: "al_ice9"}},
		{
			name:   "password with space",
			check:  g.PasswordWellFormed(),
			input:  Input{Password: "two words"},
			status: http.StatusBadRequest,
			key:    "password",
			msg:    "Password must be a nonempty string.",
		},
		{
			name:   "password with vertical tab",
			check:  g.PasswordWellFormed(),
			input:  Input{Password: "a\vb"},
			status: http.StatusBadRequest,
			key:    "password",
			msg:    "Password must be a nonempty string.",
		},
		{
			name:   "password with no-break space",
			check:  g.PasswordWellFormed(),
			input:  Input{Password: "a\u00a0b"},
			status: http.StatusBadRequest,
			key:    "password",
			msg:    "Password must be a nonempty string.",
		},
		{
			name:   "password with ideographic space",
			check:  g.PasswordWellFormed(),
			input:  Input{Password: "a\u3000b"},
			status: http.StatusBadRequest,
			key:    "password",
			msg:    "Password must be a nonempty string.",
		},
		{
			name:   "empty password",
			check:  g.PasswordWellFormed(),
			input:  Input{},
			status: http.StatusBadRequest,
			key:    "password",
			msg:    "Password must be a nonempty string.",
		},
		{name: "password with symbols", check: g.PasswordWellFormed(), input: Input{Password: "p@ss#w0rd!"}},
		{
			name:   "missing password",
			check:  g.CredentialsMatch(),
			input:  Input{Username: "Alice"},
			status: http.StatusBadRequest,
			msg:    "Missing password credentials for sign in.",
		},
		{
			name:   "missing username",
			check:  g.CredentialsMatch(),
			input:  Input{Password: "secret"},
			status: http.StatusBadRequest,
			msg:    "Missing username credentials for sign in.",
		},
		{
			name:   "wrong password",
			check:  g.CredentialsMatch(),
			input:  Input{Username: "Alice", Password: "nope"},
			status: http.StatusUnauthorized,
			msg:    "Invalid user login credentials provided.",
		},
		{name: "right credentials", check: g.CredentialsMatch(), input: Input{Username: "Alice", Password: "secret"}},
		{
			name:   "username taken by another user",
			check:  g.UsernameAvailable(),
			input:  Input{Identity: f.bob.ID, Username: "ALICE"},
			status: http.StatusConflict,
			key:    "username",
			msg:    "An account with this username already exists.",
		},
		{name: "self rename in another case", check: g.UsernameAvailable(), input: Input{Identity: f.alice.ID, Username: "aLiCe"}},
		{name: "free username", check: g.UsernameAvailable(), input: Input{Username: "carol"}},
		{
			name:   "anonymous must log in",
			check:  g.LoggedIn(),
			input:  Input{},
			status: http.StatusForbidden,
			key:    "auth",
			msg:    "You must be logged in to complete this action.",
		},
		{
			name:   "signed in must log out",
			check:  g.LoggedOut(),
			input:  Input{Identity: f.alice.ID},
			status: http.StatusForbidden,
			msg:    "You are already signed in.",
		},
		{
			name:   "empty author",
			check:  g.AuthorExists(),
			input:  Input{},
			status: http.StatusBadRequest,
			msg:    "Provided author username must be nonempty.",
		},
		{
			name:   "unknown author",
			check:  g.AuthorExists(),
			input:  Input{Author: "carol"},
			status: http.StatusNotFound,
			msg:    "A user with username carol does not exist.",
		},
		{
			name:   "unknown target post",
			check:  g.TargetPostExists(),
			input:  Input{PostID: ghost},
			status: http.StatusUnauthorized,
			msg:    "Invalid post",
		},
		{
			name:   "malformed post id",
			check:  g.PostExists(),
			input:  Input{PostID: "not-a-uuid"},
			status: http.StatusNotFound,
			key:    "freetNotFound",
			msg:    "Freet with freet ID not-a-uuid does not exist.",
		},
		{
			name:   "well formed but missing post id",
			check:  g.PostExists(),
			input:  Input{PostID: ghost},
			status: http.StatusNotFound,
			key:    "freetNotFound",
			msg:    "Freet with freet ID " + ghost + " does not exist.",
		},
		{name: "existing post", check: g.PostExists(), input: Input{PostID: f.post.ID}},
		{name: "author edits own post", check: g.AuthorMatchesIdentity(), input: Input{Identity: f.alice.ID, PostID: f.post.ID}},
		{
			name:   "post content too long",
			check:  g.PostContentWellFormed(),
			input:  Input{Content: strings.Repeat("x", MaxPostLength+1)},
			status: http.StatusRequestEntityTooLarge,
			msg:    "Freet content must be no more than 140 characters.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.input
			failure := tt.check.Run(context.Background(), &in)
			if tt.status == 0 {
				assert.Nil(t, failure)
				return
			}
			require.NotNil(t, failure)
			assert.Equal(t, tt.status, failure.Status)
			assert.Equal(t, tt.key, failure.Key)
			assert.Equal(t, tt.msg, failure.Message)
		})
	}
}

func TestExpandedContentBoundary(t *testing.T) {
	check := newFixture(t).gate.ExpandedContentWellFormed()
	run := func(content string) *Failure {
		return check.Run(context.Background(), &Input{ExpandContent: content})
	}

	assert.Nil(t, run(strings.Repeat("a", 1400)))
	assert.Nil(t, run(strings.Repeat("ё", 1400)))

	failure := run(strings.Repeat("a", 1401))
	require.NotNil(t, failure)
	assert.Equal(t, http.StatusRequestEntityTooLarge, failure.Status)

	for _, blank := range []string{"", " ", "\t\n", strings.Repeat(" ", 2000)} {
		failure := run(blank)
		require.NotNil(t, failure)
		assert.Equal(t, http.StatusBadRequest, failure.Status)
		assert.Equal(t, "Expanded content must be at least one character long.", failure.Message)
	}
}

func TestFailure_Body(t *testing.T) {
	keyed, err := json.Marshal((&Failure{Key: "auth", Message: "nope"}).Body())
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":{"auth":"nope"}}`, string(keyed))

	plain, err := json.Marshal((&Failure{Message: "nope"}).Body())
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"nope"}`, string(plain))
}

func TestUpdateUser_OnlySuppliedFields(t *testing.T) {
	f := newFixture(t)

	assert.Len(t, f.gate.UpdateUser(false, false), 2)
	assert.Len(t, f.gate.UpdateUser(true, true), 5)

	failure := f.gate.UpdateUser(false, true).Run(context.Background(), &Input{Identity: f.alice.ID, Password: "new pass"})
	require.NotNil(t, failure)
	assert.Equal(t, "password-well-formed", failure.Check)
}
