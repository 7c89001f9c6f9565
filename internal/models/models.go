package models

import "time"

type User struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	Password   string    `json:"-"`
	DateJoined time.Time `json:"dateJoined"`
}

// Post is the root entity. Satellite references stay empty until the
// linking saga has created the owned records.
type Post struct {
	ID            string    `json:"id"`
	AuthorID      string    `json:"authorId"`
	Content       string    `json:"content"`
	DateCreated   time.Time `json:"dateCreated"`
	DateModified  time.Time `json:"dateModified"`
	ExpansionID   string    `json:"expandContentId"`
	CitationsID   string    `json:"sourceCitationId"`
	SimilarLinkID string    `json:"similarLinkId"`

	// Author is populated on read and never persisted.
	Author *User `json:"-"`
}

// Expansion is the expanded commentary attached to a post.
type Expansion struct {
	ID      string `json:"id"`
	PostID  string `json:"postId"`
	Content string `json:"content"`
}

type Citations struct {
	ID          string `json:"id"`
	PostID      string `json:"postId"`
	SourceOne   string `json:"sourceOne"`
	SourceTwo   string `json:"sourceTwo"`
	SourceThree string `json:"sourceThree"`
}

// SimilarLink stores the two most similar other posts. An empty id means
// the corpus had no candidate for that slot.
type SimilarLink struct {
	ID           string `json:"id"`
	PostID       string `json:"postId"`
	SimilarOneID string `json:"similarPostIdOne"`
	SimilarTwoID string `json:"similarPostIdTwo"`
}

type PaginatedPosts struct {
	Posts      []*Post `json:"posts"`
	TotalCount int     `json:"totalCount"`
	NextCursor *string `json:"nextCursor"`
}
