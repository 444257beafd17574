package engine

import (
	"time"

	"github.com/example/feed-platform/internal/platform/ids"
	"github.com/example/feed-platform/services/comments/internal/thread"
)

// Add describes an optimistic comment or reply.
type Add struct {
	ParentID   string
	AuthorID   string
	AuthorName string
	Content    string
	// Provisional is the client-generated id; one is generated when empty.
	Provisional string
	CreatedAt   time.Time
}

// AddComment inserts a new root comment at the head of the root list and
// bumps commentsCount.
func AddComment(t *thread.Tree, a Add) (*thread.Tree, Change) {
	a.ParentID = ids.None
	return add(t, a)
}

// AddReply inserts a reply at the head of its parent's children and bumps
// the parent's repliesCount. The parent has to be materialized in t.
func AddReply(t *thread.Tree, a Add) (*thread.Tree, Change) {
	if ids.IsRoot(a.ParentID) || !t.Has(a.ParentID) {
		return t, refused(KindAdd, t, a.Provisional, ErrParentNotLoaded)
	}
	return add(t, a)
}

func add(t *thread.Tree, a Add) (*thread.Tree, Change) {
	if a.Provisional == "" {
		a.Provisional = ids.NewProvisional()
	}
	if t.Has(a.Provisional) {
		return t, refused(KindAdd, t, a.Provisional, ErrDuplicateID)
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	n := thread.Node{
		ID:          a.Provisional,
		AuthorID:    a.AuthorID,
		AuthorName:  a.AuthorName,
		Content:     a.Content,
		CreatedAt:   a.CreatedAt,
		LikeUserIDs: []string{},
		Pagination:  thread.Exhausted(),
		Provisional: true,
	}
	next := t.InsertChild(a.ParentID, n)
	if next == t {
		return t, refused(KindAdd, t, a.Provisional, thread.ErrNotFound)
	}
	return next, Change{
		Kind:     KindAdd,
		PostID:   t.PostID(),
		ID:       a.Provisional,
		ParentID: a.ParentID,
		Applied:  true,
		Added:    []string{a.Provisional},
	}
}

// ConfirmAdd renames a provisional node to its server id and takes the
// server's identity and timestamp fields. Content keeps what the user typed.
// Nested state keyed by the node (replies, pagination) moves with it.
func ConfirmAdd(t *thread.Tree, provisionalID string, r Record) (*thread.Tree, Change) {
	if !t.Has(provisionalID) || r.ID == "" {
		return t, refused(KindConfirm, t, provisionalID, thread.ErrNotFound)
	}
	next := t.Rename(provisionalID, r.ID)
	next = next.ReplaceNode(r.ID, func(n *thread.Node) {
		if n.Provisional {
			n.Provisional = false
			if !r.CreatedAt.IsZero() {
				n.CreatedAt = r.CreatedAt
			}
			if r.AuthorID != "" {
				n.AuthorID = r.AuthorID
			}
			if r.AuthorName != "" {
				n.AuthorName = r.AuthorName
			}
		}
	})
	n, _ := next.Locate(r.ID)
	return next, Change{
		Kind:     KindConfirm,
		PostID:   t.PostID(),
		ID:       r.ID,
		ParentID: n.ParentID,
		Applied:  true,
		Added:    []string{r.ID},
		Removed:  []string{provisionalID},
	}
}

// Edit replaces a comment's content.
type Edit struct {
	ID      string
	Content string
	// EditedAt is stored as the edit timestamp; the zero time clears it.
	EditedAt time.Time
}

// EditComment changes content and edit timestamp only.
func EditComment(t *thread.Tree, e Edit) (*thread.Tree, Change) {
	prev, err := t.Locate(e.ID)
	if err != nil {
		return t, refused(KindEdit, t, e.ID, err)
	}
	next := t.ReplaceNode(e.ID, func(n *thread.Node) {
		n.Content = e.Content
		n.EditedAt = nil
		if !e.EditedAt.IsZero() {
			at := e.EditedAt
			n.EditedAt = &at
		}
	})
	return next, Change{
		Kind:     KindEdit,
		PostID:   t.PostID(),
		ID:       e.ID,
		ParentID: prev.ParentID,
		Applied:  true,
		Previous: &prev,
	}
}

// RevertEdit puts back the content and edit timestamp captured in prev.
func RevertEdit(t *thread.Tree, prev thread.Node) (*thread.Tree, Change) {
	e := Edit{ID: prev.ID, Content: prev.Content}
	if prev.EditedAt != nil {
		e.EditedAt = *prev.EditedAt
	}
	return EditComment(t, e)
}

// Refresh overwrites the payload fields of an existing node with a server
// record (last write wins). Children and pagination are left alone and
// repliesCount never drops below the loaded reply count.
func Refresh(t *thread.Tree, r Record) (*thread.Tree, Change) {
	if !t.Has(r.ID) {
		return t, refused(KindReconcile, t, r.ID, thread.ErrNotFound)
	}
	next := t.ReplaceNode(r.ID, func(n *thread.Node) {
		n.Content = r.Content
		n.EditedAt = r.EditedAt
		if r.AuthorID != "" {
			n.AuthorID = r.AuthorID
		}
		if r.AuthorName != "" {
			n.AuthorName = r.AuthorName
		}
		if !r.CreatedAt.IsZero() {
			n.CreatedAt = r.CreatedAt
		}
		n.LikesCount = r.LikesCount
		if r.LikeUserIDs != nil {
			n.LikeUserIDs = ids.Dedup(r.LikeUserIDs)
		}
		n.RepliesCount = r.RepliesCount
		n.Provisional = false
	})
	return next, Change{Kind: KindReconcile, PostID: t.PostID(), ID: r.ID, Applied: true}
}

// DeleteComment removes a comment and its replies. Root deletes decrement
// commentsCount, nested deletes the direct parent's repliesCount.
func DeleteComment(t *thread.Tree, id string) (*thread.Tree, Change) {
	next, sub := t.Detach(id)
	if sub == nil {
		return t, refused(KindDelete, t, id, thread.ErrNotFound)
	}
	removed := make([]string, 0, len(sub.Nodes))
	for _, n := range sub.Nodes {
		removed = append(removed, n.ID)
	}
	return next, Change{
		Kind:     KindDelete,
		PostID:   t.PostID(),
		ID:       id,
		ParentID: sub.ParentID,
		Applied:  true,
		Removed:  removed,
		Detached: sub,
	}
}

// Restore undoes DeleteComment using the branch it detached.
func Restore(t *thread.Tree, sub *thread.Subtree) (*thread.Tree, Change) {
	next := t.Reattach(sub)
	if next == t {
		return t, refused(KindRestore, t, sub.RootID(), thread.ErrNotFound)
	}
	return next, Change{
		Kind:     KindRestore,
		PostID:   t.PostID(),
		ID:       sub.RootID(),
		ParentID: sub.ParentID,
		Applied:  true,
		Added:    []string{sub.RootID()},
	}
}

// ToggleLike flips userID's like on a comment and moves the displayed counter
// by one. The counter is provisional until ReconcileLikes overwrites it.
func ToggleLike(t *thread.Tree, id, userID string) (*thread.Tree, Change) {
	if userID == "" {
		return t, refused(KindLike, t, id, ErrNoUser)
	}
	n, err := t.Locate(id)
	if err != nil {
		return t, refused(KindLike, t, id, err)
	}
	liked := !n.LikedBy(userID)
	next := t.ReplaceNode(id, func(n *thread.Node) {
		if liked {
			n.LikeUserIDs = ids.Prepend(n.LikeUserIDs, userID)
			n.LikesCount++
			return
		}
		n.LikeUserIDs, _ = ids.Remove(n.LikeUserIDs, userID)
		n.LikesCount--
	})
	return next, Change{
		Kind:     KindLike,
		PostID:   t.PostID(),
		ID:       id,
		ParentID: n.ParentID,
		Applied:  true,
		Liked:    liked,
	}
}

// ReconcileLikes stores the server's like snapshot, replacing whatever the
// optimistic toggles produced. A record without a liker list keeps the local
// membership and only takes the counter.
func ReconcileLikes(t *thread.Tree, r Record) (*thread.Tree, Change) {
	if !t.Has(r.ID) {
		return t, refused(KindReconcile, t, r.ID, thread.ErrNotFound)
	}
	next := t.ReplaceNode(r.ID, func(n *thread.Node) {
		n.LikesCount = r.LikesCount
		if r.LikeUserIDs != nil {
			n.LikeUserIDs = ids.Dedup(r.LikeUserIDs)
		}
	})
	return next, Change{Kind: KindReconcile, PostID: t.PostID(), ID: r.ID, Applied: true}
}
