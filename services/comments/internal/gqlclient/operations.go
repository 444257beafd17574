package gqlclient

import (
	"context"
	"time"

	"github.com/example/feed-platform/services/comments/internal/engine"
)

// DefaultPageSize matches the page size the web client requests.
const DefaultPageSize = 5

const commentFields = `
  _id
  content
  postId
  parentId
  createdAt
  updatedAt
  creator { _id name avatar }
  likes { _id }
  likesCount
  repliesCount`

var (
	OpPaginatedComments = Operation{
		Name: "PaginatedComments",
		Document: `query PaginatedComments($postId: ID!, $page: Int!, $limit: Int!) {
  paginatedComments(postId: $postId, page: $page, limit: $limit) {
    comments {` + commentFields + `
      replies {` + commentFields + ` }
      hasMoreReplies
    }
    totalComments
    hasMore
  }
}`,
	}

	OpPaginatedReplies = Operation{
		Name: "PaginatedReplies",
		Document: `query PaginatedReplies($commentId: ID!, $page: Int!, $limit: Int!) {
  paginatedReplies(commentId: $commentId, page: $page, limit: $limit) {
    replies {` + commentFields + ` }
    totalReplies
    hasMore
  }
}`,
	}

	OpAddComment = Operation{
		Name: "AddComment",
		Document: `mutation AddComment($commentInput: CommentInput!) {
  addComment(commentInput: $commentInput) {` + commentFields + ` }
}`,
	}

	OpUpdateComment = Operation{
		Name: "UpdateComment",
		Document: `mutation UpdateComment($commentId: ID!, $content: String!) {
  updateComment(commentId: $commentId, content: $content) {` + commentFields + ` }
}`,
	}

	OpDeleteComment = Operation{
		Name: "DeleteComment",
		Document: `mutation DeleteComment($commentId: ID!) {
  deleteComment(commentId: $commentId)
}`,
	}

	OpLikeComment = Operation{
		Name: "LikeComment",
		Document: `mutation LikeComment($commentId: ID!) {
  likeComment(commentId: $commentId) {` + commentFields + ` }
}`,
	}

	OpUnlikeComment = Operation{
		Name: "UnlikeComment",
		Document: `mutation UnlikeComment($commentId: ID!) {
  unlikeComment(commentId: $commentId) {` + commentFields + ` }
}`,
	}
)

// WireUser is the creator object embedded in comments.
type WireUser struct {
	ID     string `json:"_id"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// WireRef is an object reference that only carries an id.
type WireRef struct {
	ID string `json:"_id"`
}

// WireComment is a comment as the posts API serializes it.
type WireComment struct {
	ID             string        `json:"_id"`
	Content        string        `json:"content"`
	PostID         string        `json:"postId,omitempty"`
	ParentID       *string       `json:"parentId"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      *time.Time    `json:"updatedAt,omitempty"`
	Creator        *WireUser     `json:"creator"`
	Likes          []WireRef     `json:"likes"`
	LikesCount     *int          `json:"likesCount,omitempty"`
	RepliesCount   *int          `json:"repliesCount,omitempty"`
	Replies        []WireComment `json:"replies,omitempty"`
	HasMoreReplies *bool         `json:"hasMoreReplies,omitempty"`
}

// Record maps w to the engine's record shape. The liker list is nil when the
// payload carried no likes field, so reconciliation keeps local membership.
func (w WireComment) Record() engine.Record {
	r := engine.Record{
		ID:       w.ID,
		PostID:   w.PostID,
		Content:  w.Content,
		HasMore:  w.HasMoreReplies,
		EditedAt: w.UpdatedAt,
	}
	if w.ParentID != nil {
		r.ParentID = *w.ParentID
	}
	if !w.CreatedAt.IsZero() {
		r.CreatedAt = w.CreatedAt
	}
	if w.Creator != nil {
		r.AuthorID = w.Creator.ID
		r.AuthorName = w.Creator.Name
	}
	if w.Likes != nil {
		r.LikeUserIDs = make([]string, 0, len(w.Likes))
		for _, l := range w.Likes {
			r.LikeUserIDs = append(r.LikeUserIDs, l.ID)
		}
	}
	switch {
	case w.LikesCount != nil:
		r.LikesCount = *w.LikesCount
	default:
		r.LikesCount = len(w.Likes)
	}
	if len(w.Replies) > 0 {
		r.Replies = make([]engine.Record, 0, len(w.Replies))
		for _, c := range w.Replies {
			rr := c.Record()
			if rr.ParentID == "" {
				rr.ParentID = w.ID
			}
			if rr.PostID == "" {
				rr.PostID = w.PostID
			}
			r.Replies = append(r.Replies, rr)
		}
	}
	r.RepliesCount = len(r.Replies)
	if w.RepliesCount != nil {
		r.RepliesCount = max(*w.RepliesCount, len(r.Replies))
	}
	return r
}

func records(ws []WireComment, postID, parentID string) []engine.Record {
	out := make([]engine.Record, 0, len(ws))
	for _, w := range ws {
		r := w.Record()
		if r.PostID == "" {
			r.PostID = postID
		}
		if r.ParentID == "" {
			r.ParentID = parentID
		}
		out = append(out, r)
	}
	return out
}

func pageVars(idKey, id string, page, limit int) map[string]any {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	return map[string]any{idKey: id, "page": page, "limit": limit}
}

// PaginatedComments fetches one page of a post's root comments, newest first.
func (c *Client) PaginatedComments(ctx context.Context, postID string, page, limit int) (engine.Page, error) {
	var out struct {
		PaginatedComments struct {
			Comments      []WireComment `json:"comments"`
			TotalComments int           `json:"totalComments"`
			HasMore       bool          `json:"hasMore"`
		} `json:"paginatedComments"`
	}
	if err := c.Query(ctx, OpPaginatedComments, pageVars("postId", postID, page, limit), &out); err != nil {
		return engine.Page{}, err
	}
	p := out.PaginatedComments
	return engine.Page{
		Items:      records(p.Comments, postID, ""),
		TotalCount: p.TotalComments,
		HasMore:    p.HasMore,
	}, nil
}

// PaginatedReplies fetches one page of a comment's direct replies.
func (c *Client) PaginatedReplies(ctx context.Context, commentID string, page, limit int) (engine.Page, error) {
	var out struct {
		PaginatedReplies struct {
			Replies      []WireComment `json:"replies"`
			TotalReplies int           `json:"totalReplies"`
			HasMore      bool          `json:"hasMore"`
		} `json:"paginatedReplies"`
	}
	if err := c.Query(ctx, OpPaginatedReplies, pageVars("commentId", commentID, page, limit), &out); err != nil {
		return engine.Page{}, err
	}
	p := out.PaginatedReplies
	return engine.Page{
		Items:      records(p.Replies, "", commentID),
		TotalCount: p.TotalReplies,
		HasMore:    p.HasMore,
	}, nil
}

// AddComment creates a comment; parentID is empty for a root comment.
func (c *Client) AddComment(ctx context.Context, postID, parentID, content string) (engine.Record, error) {
	in := map[string]any{"postId": postID, "content": content}
	if parentID != "" {
		in["parentId"] = parentID
	}
	var out struct {
		AddComment WireComment `json:"addComment"`
	}
	if err := c.Query(ctx, OpAddComment, map[string]any{"commentInput": in}, &out); err != nil {
		return engine.Record{}, err
	}
	r := out.AddComment.Record()
	if r.PostID == "" {
		r.PostID = postID
	}
	if r.ParentID == "" {
		r.ParentID = parentID
	}
	return r, nil
}

func (c *Client) UpdateComment(ctx context.Context, commentID, content string) (engine.Record, error) {
	var out struct {
		UpdateComment WireComment `json:"updateComment"`
	}
	vars := map[string]any{"commentId": commentID, "content": content}
	if err := c.Query(ctx, OpUpdateComment, vars, &out); err != nil {
		return engine.Record{}, err
	}
	return out.UpdateComment.Record(), nil
}

func (c *Client) DeleteComment(ctx context.Context, commentID string) error {
	return c.Query(ctx, OpDeleteComment, map[string]any{"commentId": commentID}, nil)
}

func (c *Client) LikeComment(ctx context.Context, commentID string) (engine.Record, error) {
	var out struct {
		LikeComment WireComment `json:"likeComment"`
	}
	if err := c.Query(ctx, OpLikeComment, map[string]any{"commentId": commentID}, &out); err != nil {
		return engine.Record{}, err
	}
	return out.LikeComment.Record(), nil
}

func (c *Client) UnlikeComment(ctx context.Context, commentID string) (engine.Record, error) {
	var out struct {
		UnlikeComment WireComment `json:"unlikeComment"`
	}
	if err := c.Query(ctx, OpUnlikeComment, map[string]any{"commentId": commentID}, &out); err != nil {
		return engine.Record{}, err
	}
	return out.UnlikeComment.Record(), nil
}
