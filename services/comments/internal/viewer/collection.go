package viewer

import (
	"context"
	"sync"

	"github.com/example/feed-platform/services/comments/internal/engine"
	"github.com/example/feed-platform/services/comments/internal/paging"
)

// Collection is a multi-post context (the feed, a profile's post list). It
// mounts one Adapter per post on first use and routes comment-id based calls
// to the post whose tree holds the comment.
type Collection struct {
	base Options

	mu       sync.Mutex
	adapters map[string]*Adapter
	order    []string
}

// NewFeed returns the feed collection. Feed items show one page of comments
// at a time.
func NewFeed(base Options) *Collection {
	base.Kind = KindFeed
	base.Policy = paging.PolicyReplace
	return newCollection(base)
}

// NewProfile returns a profile's post list, which scrolls comments
// incrementally.
func NewProfile(base Options) *Collection {
	base.Kind = KindProfile
	base.Policy = paging.PolicyAppend
	return newCollection(base)
}

// NewSinglePost returns the adapter for a single post page.
func NewSinglePost(o Options) (*Adapter, error) {
	o.Kind = KindPost
	o.Policy = paging.PolicyAppend
	return New(o)
}

func newCollection(base Options) *Collection {
	base.PostID = ""
	return &Collection{base: base, adapters: make(map[string]*Adapter)}
}

// Mount returns the adapter for postID, creating it on first use.
func (c *Collection) Mount(postID string) (*Adapter, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if a, ok := c.adapters[postID]; ok {
		return a, nil
	}
	o := c.base
	o.PostID = postID
	a, err := New(o)
	if err != nil {
		return nil, err
	}
	c.adapters[postID] = a
	c.order = append(c.order, postID)
	return a, nil
}

// Adapter returns the mounted adapter for postID.
func (c *Collection) Adapter(postID string) (*Adapter, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.adapters[postID]
	return a, ok
}

// Posts lists mounted posts in mount order.
func (c *Collection) Posts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Unmount closes and forgets postID's adapter.
func (c *Collection) Unmount(postID string) {
	c.mu.Lock()
	a, ok := c.adapters[postID]
	if ok {
		delete(c.adapters, postID)
		for i, id := range c.order {
			if id == postID {
				c.order = append(c.order[:i:i], c.order[i+1:]...)
				break
			}
		}
	}
	c.mu.Unlock()
	if ok {
		a.Close()
	}
}

// Close unmounts every post.
func (c *Collection) Close() {
	for _, id := range c.Posts() {
		c.Unmount(id)
	}
}

// Resolve finds the mounted post whose tree holds commentID. Only this
// collection's own trees are searched.
func (c *Collection) Resolve(commentID string) (*Adapter, bool) {
	c.mu.Lock()
	adapters := make([]*Adapter, 0, len(c.order))
	for _, id := range c.order {
		adapters = append(adapters, c.adapters[id])
	}
	c.mu.Unlock()

	for _, a := range adapters {
		t := a.Tree()
		if t != nil && t.Has(commentID) {
			return a, true
		}
	}
	return nil, false
}

func (c *Collection) resolve(commentID string) (*Adapter, error) {
	a, ok := c.Resolve(commentID)
	if !ok {
		return nil, ErrNotLoaded
	}
	return a, nil
}

// AddReply replies to commentID in whichever post holds it.
func (c *Collection) AddReply(ctx context.Context, commentID, content string) (engine.Change, error) {
	a, err := c.resolve(commentID)
	if err != nil {
		return engine.Change{}, err
	}
	return a.AddReply(ctx, commentID, content)
}

func (c *Collection) EditComment(ctx context.Context, commentID, content string) (engine.Change, error) {
	a, err := c.resolve(commentID)
	if err != nil {
		return engine.Change{}, err
	}
	return a.EditComment(ctx, commentID, content)
}

func (c *Collection) DeleteComment(ctx context.Context, commentID string) (engine.Change, error) {
	a, err := c.resolve(commentID)
	if err != nil {
		return engine.Change{}, err
	}
	return a.DeleteComment(ctx, commentID)
}

func (c *Collection) ToggleLike(ctx context.Context, commentID string) (engine.Change, error) {
	a, err := c.resolve(commentID)
	if err != nil {
		return engine.Change{}, err
	}
	return a.ToggleLike(ctx, commentID)
}

func (c *Collection) LoadMoreReplies(ctx context.Context, commentID string) (engine.Change, error) {
	a, err := c.resolve(commentID)
	if err != nil {
		return engine.Change{}, err
	}
	return a.LoadMoreReplies(ctx, commentID)
}
