// Package paging decides when a child list needs another page and feeds
// fetched pages into the merge engine.
//
// Each list (the root comment list or a comment's replies) cycles
// idle -> loading -> idle(hasMore). At most one fetch per list is in flight:
// a request while loading, or after the server reported no more items, is
// refused rather than queued.
package paging

import (
	"errors"

	"github.com/example/feed-platform/internal/platform/ids"
	"github.com/example/feed-platform/services/comments/internal/engine"
	"github.com/example/feed-platform/services/comments/internal/thread"
)

var (
	ErrAlreadyLoading = errors.New("page already loading")
	ErrExhausted      = errors.New("no more pages")
	// ErrStale marks a completed fetch whose list is no longer waiting for
	// it (reset after a failure, or the parent was deleted meanwhile).
	ErrStale = errors.New("stale page result")
)

// Request is the coordinator's answer to "should this list load a page".
type Request struct {
	ShouldFetch bool
	Page        int
	// Reason is set when ShouldFetch is false.
	Reason error
}

// RequestPage returns the next page to fetch for parentID's list and marks the
// list loading. The caller must follow up with Complete/MergePage or
// ResetOnFailure.
func RequestPage(t *thread.Tree, parentID string) (*thread.Tree, Request) {
	p, ok := t.Pagination(parentID)
	if !ok {
		return t, Request{Reason: thread.ErrNotFound}
	}
	if p.Loading {
		return t, Request{Reason: ErrAlreadyLoading}
	}
	if !p.HasMore {
		return t, Request{Reason: ErrExhausted}
	}
	p.Loading = true
	return t.SetPagination(parentID, p), Request{ShouldFetch: true, Page: p.NextPage}
}

// RequestPageAt marks the list loading for an explicit page number, as a
// page-at-a-time view does when moving back and forth. Only an in-flight
// fetch refuses it.
func RequestPageAt(t *thread.Tree, parentID string, page int) (*thread.Tree, Request) {
	p, ok := t.Pagination(parentID)
	if !ok {
		return t, Request{Reason: thread.ErrNotFound}
	}
	if p.Loading {
		return t, Request{Reason: ErrAlreadyLoading}
	}
	if page < 1 {
		page = 1
	}
	p.Loading = true
	return t.SetPagination(parentID, p), Request{ShouldFetch: true, Page: page}
}

// ResetOnFailure clears the loading flag without advancing NextPage, so a
// retry asks for the same page again.
func ResetOnFailure(t *thread.Tree, parentID string) *thread.Tree {
	p, ok := t.Pagination(parentID)
	if !ok || !p.Loading {
		return t
	}
	p.Loading = false
	return t.SetPagination(parentID, p)
}

// Loading reports whether parentID's list has a fetch in flight.
func Loading(t *thread.Tree, parentID string) bool {
	p, ok := t.Pagination(parentID)
	return ok && p.Loading
}

// Policy selects how a fetched root page is shown.
type Policy int

const (
	// PolicyAppend is the infinite-scroll behavior: a new page extends the
	// visible list.
	PolicyAppend Policy = iota
	// PolicyReplace shows one page at a time: fetching page N drops the
	// previously visible root comments first.
	PolicyReplace
)

func (p Policy) String() string {
	if p == PolicyReplace {
		return "replace"
	}
	return "append"
}

// ParsePolicy maps "replace"/"offset" and "append"/"cursor" to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "append", "cursor":
		return PolicyAppend, nil
	case "replace", "offset":
		return PolicyReplace, nil
	default:
		return PolicyAppend, errors.New("unknown paging policy: " + s)
	}
}

// Coordinator drives page requests for one tree under a policy.
type Coordinator struct {
	Policy Policy
}

// Complete merges a fetched page. Results for lists that are no longer
// loading are dropped with ErrStale so a late response cannot resurrect state
// the viewer already moved past. Under PolicyReplace the root list is cleared
// before the merge; reply lists always append.
func (c Coordinator) Complete(t *thread.Tree, m engine.PageMerge) (*thread.Tree, engine.Change) {
	if !Loading(t, m.ParentID) {
		return t, engine.Change{Kind: engine.KindPage, PostID: t.PostID(), ID: m.ParentID, ParentID: m.ParentID, Reason: ErrStale}
	}
	if c.Policy == PolicyReplace && ids.IsRoot(m.ParentID) {
		t = t.ClearLevel(ids.None)
	}
	return engine.MergePage(t, m)
}
