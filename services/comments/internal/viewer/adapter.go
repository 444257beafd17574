// Package viewer binds comment trees to presentation contexts: a feed of
// posts, a single post page and a profile's post list.
//
// Each Adapter owns exactly one tree for one post. Adapters never share
// trees, even for the same post, so a feed and a single-post page showing the
// same discussion stay independent and converge only by refetching.
//
// Network calls run without holding the adapter's lock. Every mutation is
// applied optimistically, sent to the Client, then confirmed or rolled back
// with the inverse engine operation.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/feed-platform/internal/platform/events"
	"github.com/example/feed-platform/internal/platform/ids"
	"github.com/example/feed-platform/services/comments/internal/engine"
	"github.com/example/feed-platform/services/comments/internal/paging"
	"github.com/example/feed-platform/services/comments/internal/thread"
)

// DefaultPageSize is the number of comments or replies requested per page.
const DefaultPageSize = 5

var (
	ErrClosed          = errors.New("viewer closed")
	ErrInFlight        = errors.New("mutation already in flight")
	ErrUnauthenticated = errors.New("sign in required")
	ErrForbidden       = errors.New("only the author can change this comment")
	ErrNotLoaded       = errors.New("comment not loaded in this viewer")
	ErrEmptyContent    = errors.New("comment content is empty")
)

// Kind names the presentation context an adapter serves.
type Kind string

const (
	KindFeed    Kind = "feed"
	KindPost    Kind = "post"
	KindProfile Kind = "profile"
)

// Client is the remote comments API.
type Client interface {
	PaginatedComments(ctx context.Context, postID string, page, limit int) (engine.Page, error)
	PaginatedReplies(ctx context.Context, commentID string, page, limit int) (engine.Page, error)
	// AddComment creates a root comment when parentID is empty.
	AddComment(ctx context.Context, postID, parentID, content string) (engine.Record, error)
	UpdateComment(ctx context.Context, commentID, content string) (engine.Record, error)
	DeleteComment(ctx context.Context, commentID string) error
	LikeComment(ctx context.Context, commentID string) (engine.Record, error)
	UnlikeComment(ctx context.Context, commentID string) (engine.Record, error)
}

// Session supplies the current user.
type Session interface {
	UserID() (string, bool)
}

// Notifier receives confirmed mutations. *events.Publisher implements it.
type Notifier interface {
	Publish(subject, eventName, userID string, props map[string]any)
}

type Options struct {
	Kind    Kind
	PostID  string
	Client  Client
	Session Session
	Logger  *zap.Logger
	Policy  paging.Policy
	// PageSize and ReplyPageSize default to DefaultPageSize.
	PageSize      int
	ReplyPageSize int
	Notifier      Notifier
	// OnChange is called after every applied change, outside the adapter's
	// lock.
	OnChange func(engine.Change)
}

// Adapter is one viewer's comment state for one post. Safe for concurrent use.
type Adapter struct {
	kind     Kind
	postID   string
	client   Client
	session  Session
	log      *zap.Logger
	coord    paging.Coordinator
	pageSize int
	replySz  int
	notifier Notifier
	onChange func(engine.Change)
	ledger   *engine.Ledger

	mu     sync.Mutex
	tree   *thread.Tree
	epoch  uint64
	closed bool
}

func New(o Options) (*Adapter, error) {
	if strings.TrimSpace(o.PostID) == "" {
		return nil, errors.New("viewer: post id is required")
	}
	if o.Client == nil {
		return nil, errors.New("viewer: client is required")
	}
	if o.Kind == "" {
		o.Kind = KindPost
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.PageSize < 1 {
		o.PageSize = DefaultPageSize
	}
	if o.ReplyPageSize < 1 {
		o.ReplyPageSize = DefaultPageSize
	}
	return &Adapter{
		kind:     o.Kind,
		postID:   o.PostID,
		client:   o.Client,
		session:  o.Session,
		log:      o.Logger.With(zap.String("post_id", o.PostID), zap.String("viewer", string(o.Kind))),
		coord:    paging.Coordinator{Policy: o.Policy},
		pageSize: o.PageSize,
		replySz:  o.ReplyPageSize,
		notifier: o.Notifier,
		onChange: o.OnChange,
		ledger:   engine.NewLedger(),
		tree:     thread.New(o.PostID),
	}, nil
}

func (a *Adapter) PostID() string { return a.postID }
func (a *Adapter) Kind() Kind     { return a.kind }

// Tree returns the current snapshot, nil once closed.
func (a *Adapter) Tree() *thread.Tree {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tree
}

// Close discards the tree. Fetches and mutations still in flight finish
// against the server but their results are dropped.
func (a *Adapter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.closed = true
	a.epoch++
	a.tree = nil
	a.log.Debug("viewer closed")
}

// Reload discards loaded comments and fetches the first page again, as a
// remount does.
func (a *Adapter) Reload(ctx context.Context) (engine.Change, error) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return engine.Change{}, ErrClosed
	}
	a.epoch++
	a.tree = thread.New(a.postID)
	a.mu.Unlock()
	return a.LoadMoreComments(ctx)
}

// LoadMoreComments fetches the next page of root comments. A refused request
// (already loading, or nothing more to load) is not an error: the returned
// change has Applied=false and the paging reason.
func (a *Adapter) LoadMoreComments(ctx context.Context) (engine.Change, error) {
	return a.loadPage(ctx, ids.None, 0)
}

// LoadPage fetches an explicit root page, as a page-at-a-time list does.
func (a *Adapter) LoadPage(ctx context.Context, page int) (engine.Change, error) {
	if page < 1 {
		page = 1
	}
	return a.loadPage(ctx, ids.None, page)
}

// LoadMoreReplies fetches the next page of a loaded comment's replies.
func (a *Adapter) LoadMoreReplies(ctx context.Context, commentID string) (engine.Change, error) {
	if ids.IsRoot(commentID) {
		return engine.Change{}, ErrNotLoaded
	}
	return a.loadPage(ctx, commentID, 0)
}

func (a *Adapter) loadPage(ctx context.Context, parentID string, page int) (engine.Change, error) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return engine.Change{}, ErrClosed
	}
	var req paging.Request
	if page > 0 {
		a.tree, req = paging.RequestPageAt(a.tree, parentID, page)
	} else {
		a.tree, req = paging.RequestPage(a.tree, parentID)
	}
	epoch := a.epoch
	a.mu.Unlock()

	if !req.ShouldFetch {
		a.log.Debug("page request refused", zap.String("parent_id", parentID), zap.Error(req.Reason))
		return a.pageChange(parentID, req.Reason), nil
	}

	var (
		p   engine.Page
		err error
	)
	if ids.IsRoot(parentID) {
		p, err = a.client.PaginatedComments(ctx, a.postID, req.Page, a.pageSize)
	} else {
		p, err = a.client.PaginatedReplies(ctx, parentID, req.Page, a.replySz)
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return engine.Change{}, ErrClosed
	}
	if a.epoch != epoch {
		a.mu.Unlock()
		return a.pageChange(parentID, paging.ErrStale), nil
	}
	if err != nil {
		a.tree = paging.ResetOnFailure(a.tree, parentID)
		a.mu.Unlock()
		a.log.Warn("page fetch failed", zap.String("parent_id", parentID), zap.Int("page", req.Page), zap.Error(err))
		return a.pageChange(parentID, err), fmt.Errorf("load page %d: %w", req.Page, err)
	}
	var ch engine.Change
	a.tree, ch = a.coord.Complete(a.tree, engine.FromPage(parentID, req.Page, p))
	a.mu.Unlock()

	a.log.Debug("page merged",
		zap.String("parent_id", parentID),
		zap.Int("page", req.Page),
		zap.Int("added", len(ch.Added)),
		zap.Bool("has_more", p.HasMore),
		zap.NamedError("reason", ch.Reason),
	)
	a.emit(ch)
	return ch, nil
}

func (a *Adapter) pageChange(parentID string, reason error) engine.Change {
	return engine.Change{Kind: engine.KindPage, PostID: a.postID, ID: parentID, ParentID: parentID, Reason: reason}
}

// AddComment adds a root comment.
func (a *Adapter) AddComment(ctx context.Context, content string) (engine.Change, error) {
	return a.add(ctx, ids.None, content)
}

// AddReply adds a reply to a comment loaded in this viewer. The owning post
// is this viewer's post; other viewers' trees are never consulted.
func (a *Adapter) AddReply(ctx context.Context, parentID, content string) (engine.Change, error) {
	if ids.IsRoot(parentID) {
		return engine.Change{}, ErrNotLoaded
	}
	if _, _, err := a.authorize(parentID, false); err != nil {
		return engine.Change{}, err
	}
	return a.add(ctx, parentID, content)
}

func (a *Adapter) add(ctx context.Context, parentID, content string) (engine.Change, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return engine.Change{}, ErrEmptyContent
	}
	uid, ok := a.userID()
	if !ok {
		return engine.Change{}, ErrUnauthenticated
	}
	in := engine.Add{ParentID: parentID, AuthorID: uid, AuthorName: a.userName(), Content: content}

	ch, err := a.update(func(t *thread.Tree) (*thread.Tree, engine.Change) {
		if ids.IsRoot(parentID) {
			return engine.AddComment(t, in)
		}
		return engine.AddReply(t, in)
	})
	if err != nil {
		return ch, err
	}
	if !ch.Applied {
		return ch, ErrNotLoaded
	}
	provisional := ch.ID
	a.ledger.Begin(provisional, engine.KindAdd)

	rec, err := a.client.AddComment(ctx, a.postID, parentID, content)
	if err != nil {
		a.ledger.RollBack(provisional, engine.KindAdd)
		rb, _ := a.update(func(t *thread.Tree) (*thread.Tree, engine.Change) {
			return engine.DeleteComment(t, provisional)
		})
		a.log.Warn("add rolled back", zap.String("parent_id", parentID), zap.Error(err))
		return rb, err
	}

	a.ledger.Confirm(provisional, engine.KindAdd, rec.ID)
	a.publish(events.SubjectCommentCreated, "comment_created", uid, rec.ID, parentID)
	return a.update(func(t *thread.Tree) (*thread.Tree, engine.Change) {
		return engine.ConfirmAdd(t, provisional, rec)
	})
}

// EditComment replaces the content of one of the current user's comments.
func (a *Adapter) EditComment(ctx context.Context, id, content string) (engine.Change, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return engine.Change{}, ErrEmptyContent
	}
	uid, n, err := a.authorize(id, true)
	if err != nil {
		return engine.Change{}, err
	}
	if !a.ledger.Begin(id, engine.KindEdit) {
		return engine.Change{}, ErrInFlight
	}

	editedAt := time.Now().UTC()
	ch, err := a.update(func(t *thread.Tree) (*thread.Tree, engine.Change) {
		return engine.EditComment(t, engine.Edit{ID: id, Content: content, EditedAt: editedAt})
	})
	if err != nil || !ch.Applied {
		a.ledger.RollBack(id, engine.KindEdit)
		return ch, err
	}

	rec, err := a.client.UpdateComment(ctx, id, content)
	if err != nil {
		a.ledger.RollBack(id, engine.KindEdit)
		prev := n
		if ch.Previous != nil {
			prev = *ch.Previous
		}
		rb, _ := a.update(func(t *thread.Tree) (*thread.Tree, engine.Change) {
			return engine.RevertEdit(t, prev)
		})
		a.log.Warn("edit rolled back", zap.String("comment_id", id), zap.Error(err))
		return rb, err
	}

	a.ledger.Confirm(id, engine.KindEdit)
	a.publish(events.SubjectCommentUpdated, "comment_updated", uid, id, n.ParentID)

	confirmed := engine.Edit{ID: id, Content: content, EditedAt: editedAt}
	if rec.Content != "" {
		confirmed.Content = rec.Content
	}
	if rec.EditedAt != nil {
		confirmed.EditedAt = *rec.EditedAt
	}
	return a.update(func(t *thread.Tree) (*thread.Tree, engine.Change) {
		return engine.EditComment(t, confirmed)
	})
}

// DeleteComment removes one of the current user's comments with its replies.
func (a *Adapter) DeleteComment(ctx context.Context, id string) (engine.Change, error) {
	uid, n, err := a.authorize(id, true)
	if err != nil {
		return engine.Change{}, err
	}
	if !a.ledger.Begin(id, engine.KindDelete) {
		return engine.Change{}, ErrInFlight
	}

	ch, err := a.update(func(t *thread.Tree) (*thread.Tree, engine.Change) {
		return engine.DeleteComment(t, id)
	})
	if err != nil || !ch.Applied {
		a.ledger.RollBack(id, engine.KindDelete)
		return ch, err
	}

	if err := a.client.DeleteComment(ctx, id); err != nil {
		a.ledger.RollBack(id, engine.KindDelete)
		rb, _ := a.update(func(t *thread.Tree) (*thread.Tree, engine.Change) {
			return engine.Restore(t, ch.Detached)
		})
		a.log.Warn("delete rolled back", zap.String("comment_id", id), zap.Error(err))
		return rb, err
	}

	a.ledger.Confirm(id, engine.KindDelete)
	a.publish(events.SubjectCommentDeleted, "comment_deleted", uid, id, n.ParentID)
	return ch, nil
}

// ToggleLike likes or unlikes a comment for the current user. The server's
// answer replaces the optimistic counter.
func (a *Adapter) ToggleLike(ctx context.Context, id string) (engine.Change, error) {
	uid, n, err := a.authorize(id, false)
	if err != nil {
		return engine.Change{}, err
	}
	if !a.ledger.Begin(id, engine.KindLike) {
		return engine.Change{}, ErrInFlight
	}

	ch, err := a.update(func(t *thread.Tree) (*thread.Tree, engine.Change) {
		return engine.ToggleLike(t, id, uid)
	})
	if err != nil || !ch.Applied {
		a.ledger.RollBack(id, engine.KindLike)
		return ch, err
	}

	var rec engine.Record
	if ch.Liked {
		rec, err = a.client.LikeComment(ctx, id)
	} else {
		rec, err = a.client.UnlikeComment(ctx, id)
	}
	if err != nil {
		a.ledger.RollBack(id, engine.KindLike)
		rb, _ := a.update(func(t *thread.Tree) (*thread.Tree, engine.Change) {
			cur, lerr := t.Locate(id)
			if lerr != nil || cur.LikedBy(uid) != ch.Liked {
				return t, engine.Change{Kind: engine.KindLike, PostID: a.postID, ID: id, Reason: lerr}
			}
			return engine.ToggleLike(t, id, uid)
		})
		a.log.Warn("like rolled back", zap.String("comment_id", id), zap.Bool("liked", ch.Liked), zap.Error(err))
		return rb, err
	}

	a.ledger.Confirm(id, engine.KindLike)
	if ch.Liked {
		a.publish(events.SubjectCommentLiked, "comment_liked", uid, id, n.ParentID)
	} else {
		a.publish(events.SubjectCommentUnliked, "comment_unliked", uid, id, n.ParentID)
	}
	if rec.ID == "" {
		return ch, nil
	}
	done, err := a.update(func(t *thread.Tree) (*thread.Tree, engine.Change) {
		return engine.ReconcileLikes(t, rec)
	})
	done.Liked = ch.Liked
	return done, err
}

// Pending reports whether id has a mutation awaiting the server.
func (a *Adapter) Pending(id string) bool {
	return ids.IsProvisional(id) || a.ledger.Pending(id)
}

// authorize checks that a user is signed in and that id is a confirmed node
// of this tree; with own set it also has to be the user's comment.
func (a *Adapter) authorize(id string, own bool) (string, thread.Node, error) {
	uid, ok := a.userID()
	if !ok {
		return "", thread.Node{}, ErrUnauthenticated
	}
	n, err := a.locate(id)
	if err != nil {
		return "", thread.Node{}, err
	}
	if n.Provisional {
		return "", thread.Node{}, ErrInFlight
	}
	if own && !ids.Equal(n.AuthorID, uid) {
		return "", thread.Node{}, ErrForbidden
	}
	return uid, n, nil
}

func (a *Adapter) locate(id string) (thread.Node, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return thread.Node{}, ErrClosed
	}
	n, err := a.tree.Locate(id)
	if err != nil {
		return thread.Node{}, ErrNotLoaded
	}
	return n, nil
}

// update applies fn to the current tree under the lock and emits the change.
func (a *Adapter) update(fn func(t *thread.Tree) (*thread.Tree, engine.Change)) (engine.Change, error) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return engine.Change{}, ErrClosed
	}
	next, ch := fn(a.tree)
	a.tree = next
	a.mu.Unlock()

	if !ch.Applied {
		a.log.Debug("change refused", zap.String("kind", string(ch.Kind)), zap.String("id", ch.ID), zap.NamedError("reason", ch.Reason))
	}
	a.emit(ch)
	return ch, nil
}

func (a *Adapter) emit(ch engine.Change) {
	if a.onChange != nil && ch.Applied {
		a.onChange(ch)
	}
}

func (a *Adapter) publish(subject, name, uid, commentID, parentID string) {
	if a.notifier == nil {
		return
	}
	props := map[string]any{
		"post_id":    a.postID,
		"comment_id": commentID,
		"viewer":     string(a.kind),
	}
	if !ids.IsRoot(parentID) {
		props["parent_id"] = parentID
	}
	a.notifier.Publish(subject, name, uid, props)
}

func (a *Adapter) userID() (string, bool) {
	if a.session == nil {
		return "", false
	}
	uid, ok := a.session.UserID()
	return uid, ok && uid != ""
}

func (a *Adapter) userName() string {
	if s, ok := a.session.(interface{ Name() string }); ok {
		return s.Name()
	}
	return ""
}
