package backend

import (
	"fmt"
	"strings"
)

// PageType identifies which kind of content page a comment thread hangs off.
type PageType string

const (
	PageNovel   PageType = "novel"
	PageChapter PageType = "chapter"
)

// Valid reports whether p is one of the known page types.
func (p PageType) Valid() bool {
	return p == PageNovel || p == PageChapter
}

// PageRef identifies one content page: a page type plus the item id.
type PageRef struct {
	Type PageType
	ID   int64
}

func (r PageRef) String() string {
	return fmt.Sprintf("%s/%d", r.Type, r.ID)
}

// ReactionKind is the kind of reaction a viewer can put on a comment.
type ReactionKind string

const (
	ReactionLike    ReactionKind = "like"
	ReactionDislike ReactionKind = "dislike"
)

// Comment is one comment plus its reply subtree. Replies nest recursively
// with no depth limit; their order is server-defined and must be preserved.
type Comment struct {
	ID           int64     `json:"id"`
	User         string    `json:"user"`
	Image        string    `json:"image"`
	Date         string    `json:"date"`
	Body         string    `json:"comment"`
	LikeCount    int       `json:"likesCount"`
	DislikeCount int       `json:"dislikesCount"`
	Liked        bool      `json:"liked"`
	Disliked     bool      `json:"disliked"`
	Replies      []Comment `json:"replies"`
}

// Paragraphs splits the comment body for rendering. Every line is its own
// paragraph, so "a\n\nb" yields three paragraphs with an empty middle one.
func (c *Comment) Paragraphs() []string {
	return strings.Split(c.Body, "\n")
}

// PageSnapshot is one page of top-level comments exactly as the server
// returned it. The panels replace it wholesale after every mutation; they
// never patch it in place.
type PageSnapshot struct {
	Comments    []Comment `json:"comments"`
	PageNumbers []int     `json:"num"`
	CurrentPage int       `json:"current"`
	Viewer      string    `json:"user"`
}

// HasPage reports whether n is one of the available page numbers.
func (s *PageSnapshot) HasPage(n int) bool {
	for _, p := range s.PageNumbers {
		if p == n {
			return true
		}
	}
	return false
}

// LoggedIn reports whether the server resolved a viewer for this snapshot.
// This only gates UI affordances; authorization happens server-side.
func (s *PageSnapshot) LoggedIn() bool {
	return s.Viewer != ""
}

// RatingScores is the four-axis submission payload. Each score is 1..10;
// the server is the source of truth for validation.
type RatingScores struct {
	Story      int `json:"story" validate:"required,min=1,max=10"`
	Writing    int `json:"writing" validate:"required,min=1,max=10"`
	World      int `json:"world" validate:"required,min=1,max=10"`
	Characters int `json:"characters" validate:"required,min=1,max=10"`
}

// RatingState is the rating aggregate for one item. The per-axis scores are
// display values (0 = unknown); Average and Count span all raters, and
// HasRated is specific to the requesting viewer.
type RatingState struct {
	Story      int     `json:"story"`
	Writing    int     `json:"writing"`
	World      int     `json:"world"`
	Characters int     `json:"characters"`
	Average    float64 `json:"average"`
	Count      int     `json:"count"`
	HasRated   bool    `json:"madeRating"`
}
