package viewer

import (
	"time"

	"github.com/example/feed-platform/internal/platform/ids"
	"github.com/example/feed-platform/services/comments/internal/thread"
)

// CommentView is one comment as a presentation context renders it.
type CommentView struct {
	ID           string        `json:"id"`
	ParentID     string        `json:"parentId,omitempty"`
	AuthorID     string        `json:"authorId"`
	AuthorName   string        `json:"authorName,omitempty"`
	Content      string        `json:"content"`
	CreatedAt    time.Time     `json:"createdAt"`
	EditedAt     *time.Time    `json:"editedAt,omitempty"`
	LikesCount   int           `json:"likesCount"`
	LikedByMe    bool          `json:"likedByMe"`
	Mine         bool          `json:"mine"`
	Pending      bool          `json:"pending"`
	RepliesCount int           `json:"repliesCount"`
	HasMore      bool          `json:"hasMoreReplies"`
	Loading      bool          `json:"loadingReplies"`
	Replies      []CommentView `json:"replies,omitempty"`
}

// ThreadView is the whole loaded discussion of one post.
type ThreadView struct {
	PostID        string        `json:"postId"`
	Viewer        Kind          `json:"viewer"`
	CommentsCount int           `json:"commentsCount"`
	NextPage      int           `json:"nextPage"`
	HasMore       bool          `json:"hasMore"`
	Loading       bool          `json:"loading"`
	Comments      []CommentView `json:"comments"`
}

// View projects the current tree for rendering. A closed viewer yields an
// empty view.
func (a *Adapter) View() ThreadView {
	t := a.Tree()
	v := ThreadView{PostID: a.postID, Viewer: a.kind, Comments: []CommentView{}}
	if t == nil {
		return v
	}
	uid, _ := a.userID()
	rp := t.RootPagination()
	v.CommentsCount = t.CommentsCount()
	v.NextPage = rp.NextPage
	v.HasMore = rp.HasMore
	v.Loading = rp.Loading
	v.Comments = a.project(t, t.RootIDs(), uid)
	return v
}

func (a *Adapter) project(t *thread.Tree, list []string, uid string) []CommentView {
	out := make([]CommentView, 0, len(list))
	for _, id := range list {
		n, err := t.Locate(id)
		if err != nil {
			continue
		}
		cv := CommentView{
			ID:           n.ID,
			ParentID:     n.ParentID,
			AuthorID:     n.AuthorID,
			AuthorName:   n.AuthorName,
			Content:      n.Content,
			CreatedAt:    n.CreatedAt,
			EditedAt:     n.EditedAt,
			LikesCount:   n.LikesCount,
			LikedByMe:    uid != "" && n.LikedBy(uid),
			Mine:         uid != "" && ids.Equal(n.AuthorID, uid),
			Pending:      n.Provisional || a.ledger.Pending(n.ID),
			RepliesCount: n.RepliesCount,
			HasMore:      n.Pagination.HasMore,
			Loading:      n.Pagination.Loading,
		}
		if len(n.Children) > 0 {
			cv.Replies = a.project(t, n.Children, uid)
		}
		out = append(out, cv)
	}
	return out
}
