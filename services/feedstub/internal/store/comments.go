package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFoundOrForbidden hides whether a comment exists from non-authors.
	ErrNotFoundOrForbidden = errors.New("comment not found or not owned by user")
	ErrNotFound            = errors.New("comment not found")
)

// Comment is a stored post comment. ParentID is nil for root comments.
type Comment struct {
	ID        string     `json:"id"`
	PostID    string     `json:"post_id"`
	ParentID  *string    `json:"parent_id,omitempty"`
	UserID    string     `json:"user_id"`
	UserName  string     `json:"user_name,omitempty"`
	Content   string     `json:"content"`
	Likes     []string   `json:"likes,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`

	// RepliesCount is computed on read.
	RepliesCount int `json:"-"`
}

// Page is one slice of a newest-first (roots) or oldest-first (replies) listing.
type Page struct {
	Items   []Comment
	Total   int
	HasMore bool
}

// CommentStore defines the contract for the dev feed's comment persistence.
type CommentStore interface {
	Create(ctx context.Context, c Comment) (Comment, error)
	Get(ctx context.Context, commentID string) (Comment, error)
	ListComments(ctx context.Context, postID string, page, limit int) (Page, error)
	ListReplies(ctx context.Context, commentID string, page, limit int) (Page, error)
	UpdateContent(ctx context.Context, commentID, userID, content string) (Comment, error)
	Delete(ctx context.Context, commentID, userID string) ([]string, error)
	SetLike(ctx context.Context, commentID, userID string, liked bool) (Comment, error)
}

const (
	DefaultLimit = 5
	MaxLimit     = 100
)

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > MaxLimit {
		limit = DefaultLimit
	}
	return page, limit
}
