// Package engine applies comment mutations to thread.Tree snapshots.
//
// Every operation is a pure function from a tree and its arguments to a new
// tree plus a Change describing what happened. Operations that cannot apply
// (unknown id, parent not loaded) return the input tree with Applied=false and
// the reason attached; they never fail loudly, because deletes and edits
// routinely race with each other across network round-trips.
package engine

import (
	"errors"

	"github.com/example/feed-platform/services/comments/internal/thread"
)

var (
	// ErrNoUser is the refusal reason for a like toggle without a user id.
	ErrNoUser = errors.New("no current user")
	// ErrParentNotLoaded is the refusal reason for a reply to a parent that is
	// not materialized in this tree.
	ErrParentNotLoaded = errors.New("parent comment not loaded")
	// ErrDuplicateID is the refusal reason for adding an id the tree holds.
	ErrDuplicateID = errors.New("comment id already present")
)

// Kind names a mutation.
type Kind string

const (
	KindAdd       Kind = "add"
	KindConfirm   Kind = "confirm"
	KindEdit      Kind = "edit"
	KindDelete    Kind = "delete"
	KindRestore   Kind = "restore"
	KindLike      Kind = "like"
	KindReconcile Kind = "reconcile"
	KindPage      Kind = "page"
)

// Change describes the visible effect of one operation, so a renderer can
// redraw only what moved.
type Change struct {
	Kind     Kind
	PostID   string
	ID       string
	ParentID string
	Applied  bool
	Reason   error

	// Added lists ids linked into a child list; Removed lists every id that
	// left the tree.
	Added   []string
	Removed []string

	// Liked is the current user's like state after a toggle.
	Liked bool
	// Detached carries a deleted branch so the delete can be undone.
	Detached *thread.Subtree
	// Previous is the node as it was before an edit.
	Previous *thread.Node
}

func refused(kind Kind, t *thread.Tree, id string, reason error) Change {
	return Change{Kind: kind, PostID: t.PostID(), ID: id, Reason: reason}
}
