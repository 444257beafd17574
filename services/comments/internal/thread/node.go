// Package thread is the per-post comment node store.
//
// A Tree is an immutable snapshot: every nodes-by-id entry lives in a
// persistent radix index, and child relations are plain id lists. Every
// structural operation returns a new *Tree and leaves the receiver untouched,
// so snapshots can be kept for rollback or compared for re-rendering.
// Unknown ids are never an error for structural updates; the tree is returned
// unchanged.
package thread

import (
	"errors"
	"time"

	"github.com/example/feed-platform/internal/platform/ids"
)

// ErrNotFound is returned by lookups for ids not materialized in the tree.
var ErrNotFound = errors.New("comment not found")

// Pagination is the load state of one child list (a node's replies or the
// post's root comments).
type Pagination struct {
	NextPage int  `json:"next_page"`
	HasMore  bool `json:"has_more"`
	Loading  bool `json:"loading"`
}

// FirstPage is the state of a list that has never been fetched.
func FirstPage() Pagination {
	return Pagination{NextPage: 1, HasMore: true}
}

// Exhausted is the state of a list with nothing left on the server, e.g. the
// replies of a comment that was just created.
func Exhausted() Pagination {
	return Pagination{NextPage: 1}
}

// Node is one comment. Children holds reply ids in display order: locally
// added replies first, then fetched pages in server order.
type Node struct {
	ID         string     `json:"id"`
	PostID     string     `json:"post_id"`
	ParentID   string     `json:"parent_id,omitempty"`
	AuthorID   string     `json:"author_id"`
	AuthorName string     `json:"author_name,omitempty"`
	Content    string     `json:"content"`
	CreatedAt  time.Time  `json:"created_at"`
	EditedAt   *time.Time `json:"edited_at,omitempty"`

	// LikesCount is the server-reported counter and is what gets displayed.
	// LikeUserIDs may be a partial liker list; it only answers "does this
	// user like it".
	LikesCount  int      `json:"likes_count"`
	LikeUserIDs []string `json:"like_user_ids,omitempty"`

	// RepliesCount counts direct children on the server and can exceed
	// len(Children).
	RepliesCount int        `json:"replies_count"`
	Children     []string   `json:"children"`
	Pagination   Pagination `json:"pagination"`

	// Provisional is set while the node carries a client-generated id.
	Provisional bool `json:"provisional,omitempty"`
}

// IsRoot reports whether the node is a top-level comment.
func (n Node) IsRoot() bool {
	return ids.IsRoot(n.ParentID)
}

// LikedBy reports whether userID is in the known liker set.
func (n Node) LikedBy(userID string) bool {
	return userID != "" && ids.Contains(n.LikeUserIDs, userID)
}

func (n *Node) clone() *Node {
	c := *n
	c.Children = ids.Clone(n.Children)
	c.LikeUserIDs = ids.Clone(n.LikeUserIDs)
	if n.EditedAt != nil {
		e := *n.EditedAt
		c.EditedAt = &e
	}
	return &c
}
