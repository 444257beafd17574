package engine

import (
	"github.com/example/feed-platform/services/comments/internal/thread"
)

// PageMerge is a fetched page for one child list.
type PageMerge struct {
	// ParentID selects the list: ids.None for root comments.
	ParentID string
	Page     int
	Records  []Record
	HasMore  bool
	// TotalCount is the server total for the list; only used when TotalKnown.
	TotalCount int
	TotalKnown bool
}

// FromPage builds a PageMerge from a page result.
func FromPage(parentID string, page int, p Page) PageMerge {
	return PageMerge{
		ParentID:   parentID,
		Page:       page,
		Records:    p.Items,
		HasMore:    p.HasMore,
		TotalCount: p.TotalCount,
		TotalKnown: true,
	}
}

// MergePage appends a fetched page to the tail of the target list, skipping
// ids already present anywhere in the tree (optimistic adds that the server
// now returns, or the same page fetched twice). Records already present are
// refreshed in place. Embedded replies are registered recursively, each node
// getting its own pagination. The list's pagination becomes
// {NextPage: page+1, HasMore: p.HasMore, Loading: false}.
//
// Merging the same page twice yields the same child lists as merging it once.
func MergePage(t *thread.Tree, p PageMerge) (*thread.Tree, Change) {
	if _, ok := t.Pagination(p.ParentID); !ok {
		return t, refused(KindPage, t, p.ParentID, thread.ErrNotFound)
	}
	next, added := mergeRecords(t, p.ParentID, p.Records)

	if p.Page < 1 {
		p.Page = 1
	}
	next = next.SetPagination(p.ParentID, thread.Pagination{
		NextPage: p.Page + 1,
		HasMore:  p.HasMore,
	})

	count, _ := next.Count(p.ParentID)
	if p.TotalKnown {
		count = p.TotalCount
	}
	// SetCount clamps to the loaded length
	next = next.SetCount(p.ParentID, count)

	return next, Change{
		Kind:     KindPage,
		PostID:   t.PostID(),
		ID:       p.ParentID,
		ParentID: p.ParentID,
		Applied:  true,
		Added:    added,
	}
}

func mergeRecords(t *thread.Tree, parentID string, records []Record) (*thread.Tree, []string) {
	records = dedupRecords(records)

	fresh := make([]thread.Node, 0, len(records))
	for _, r := range records {
		if t.Has(r.ID) {
			t, _ = Refresh(t, r)
			continue
		}
		fresh = append(fresh, r.node())
	}
	t, added := t.AppendChildren(parentID, fresh)

	for _, r := range records {
		if len(r.Replies) == 0 {
			continue
		}
		t, _ = mergeRecords(t, r.ID, r.Replies)
	}
	return t, added
}
