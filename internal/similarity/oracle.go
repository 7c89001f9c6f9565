// Package similarity ranks posts by topical closeness.
package similarity

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ButyrinIA/fritter/internal/models"
	"golang.org/x/text/cases"
)

// NoMatch fills a Pair slot when the corpus has no candidate left for it.
const NoMatch = ""

// Pair holds the two most similar post ids, most similar first. The ids are
// distinct unless both are NoMatch.
type Pair struct {
	First  string
	Second string
}

type Oracle interface {
	// MostSimilarFromContent ranks the whole corpus against content that is not stored yet.
	MostSimilarFromContent(ctx context.Context, content string) (Pair, error)
	// MostSimilarToExisting ranks every other post against the stored post postID.
	MostSimilarToExisting(ctx context.Context, postID string) (Pair, error)
}

type Corpus interface {
	GetPost(ctx context.Context, id string) (*models.Post, error)
	ListAllPosts(ctx context.Context) ([]*models.Post, error)
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true, "not": true,
	"you": true, "all": true, "can": true, "was": true, "one": true, "our": true,
	"has": true, "have": true, "this": true, "that": true, "with": true, "from": true,
	"they": true, "will": true, "what": true, "when": true, "your": true, "there": true,
}

// KeywordOracle scores posts with the Jaccard index of their keyword sets.
// Ties go to the more recently modified post.
type KeywordOracle struct {
	corpus        Corpus
	minWordLength int
}

func NewKeywordOracle(corpus Corpus) *KeywordOracle {
	return &KeywordOracle{corpus: corpus, minWordLength: 3}
}

func (o *KeywordOracle) MostSimilarFromContent(ctx context.Context, content string) (Pair, error) {
	return o.rank(ctx, content, "")
}

func (o *KeywordOracle) MostSimilarToExisting(ctx context.Context, postID string) (Pair, error) {
	post, err := o.corpus.GetPost(ctx, postID)
	if err != nil {
		return Pair{}, fmt.Errorf("loading post %s: %w", postID, err)
	}
	return o.rank(ctx, post.Content, postID)
}

type candidate struct {
	post  *models.Post
	score float64
}

func (o *KeywordOracle) rank(ctx context.Context, content, excludeID string) (Pair, error) {
	posts, err := o.corpus.ListAllPosts(ctx)
	if err != nil {
		return Pair{}, fmt.Errorf("loading corpus: %w", err)
	}

	subject := o.keywords(content)
	candidates := make([]candidate, 0, len(posts))
	for _, p := range posts {
		if p.ID == excludeID {
			continue
		}
		candidates = append(candidates, candidate{post: p, score: jaccard(subject, o.keywords(p.Content))})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if !a.post.DateModified.Equal(b.post.DateModified) {
			return a.post.DateModified.After(b.post.DateModified)
		}
		return a.post.ID > b.post.ID
	})

	pair := Pair{First: NoMatch, Second: NoMatch}
	if len(candidates) > 0 {
		pair.First = candidates[0].post.ID
	}
	if len(candidates) > 1 {
		pair.Second = candidates[1].post.ID
	}
	return pair, nil
}

// keywords case-folds text and drops stop words and short words.
func (o *KeywordOracle) keywords(text string) map[string]bool {
	folded := cases.Fold().String(text)
	words := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	set := make(map[string]bool, len(words))
	for _, w := range words {
		if utf8.RuneCountInString(w) < o.minWordLength || stopWords[w] {
			continue
		}
		set[w] = true
	}
	return set
}

// jaccard returns |A ∩ B| / |A ∪ B|, or 0 for two empty sets.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for w := range a {
		if b[w] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}
