package engine

import (
	"time"

	"github.com/example/feed-platform/internal/platform/ids"
	"github.com/example/feed-platform/services/comments/internal/thread"
)

// Record is a comment as delivered by the remote API. Replies, when present,
// are an embedded first slice of the comment's direct children.
type Record struct {
	ID           string     `json:"id"`
	PostID       string     `json:"postId,omitempty"`
	ParentID     string     `json:"parentId,omitempty"`
	AuthorID     string     `json:"authorId"`
	AuthorName   string     `json:"authorName,omitempty"`
	Content      string     `json:"content"`
	CreatedAt    time.Time  `json:"createdAt"`
	EditedAt     *time.Time `json:"editedAt,omitempty"`
	LikesCount   int        `json:"likesCount"`
	LikeUserIDs  []string   `json:"likeUserIds,omitempty"`
	RepliesCount int        `json:"repliesCount"`
	Replies      []Record   `json:"replies,omitempty"`
	// HasMore, when set, overrides the len(Replies) < RepliesCount guess.
	HasMore *bool `json:"hasMore,omitempty"`
}

// Page is one page of a paginated child list.
type Page struct {
	Items      []Record `json:"items"`
	TotalCount int      `json:"totalCount"`
	HasMore    bool     `json:"hasMore"`
}

// node converts r into a detached tree node with its own reply pagination.
func (r Record) node() thread.Node {
	replies := len(dedupRecords(r.Replies))
	total := max(r.RepliesCount, replies)
	hasMore := replies < total
	if r.HasMore != nil {
		hasMore = *r.HasMore
	}
	return thread.Node{
		ID:           r.ID,
		PostID:       r.PostID,
		ParentID:     r.ParentID,
		AuthorID:     r.AuthorID,
		AuthorName:   r.AuthorName,
		Content:      r.Content,
		CreatedAt:    r.CreatedAt,
		EditedAt:     r.EditedAt,
		LikesCount:   max(r.LikesCount, 0),
		LikeUserIDs:  ids.Dedup(r.LikeUserIDs),
		RepliesCount: total,
		// Embedded replies are a preview, not a numbered page; the first
		// reply fetch starts at page 1 and dedup absorbs the overlap.
		Pagination: thread.Pagination{NextPage: 1, HasMore: hasMore},
	}
}

func dedupRecords(rs []Record) []Record {
	seen := make(map[string]struct{}, len(rs))
	out := make([]Record, 0, len(rs))
	for _, r := range rs {
		if r.ID == "" {
			continue
		}
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	return out
}
