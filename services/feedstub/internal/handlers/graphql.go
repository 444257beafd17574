package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/feed-platform/internal/platform/api"
	"github.com/example/feed-platform/internal/platform/auth"
	"github.com/example/feed-platform/internal/platform/httpserver"
	"github.com/example/feed-platform/services/feedstub/internal/store"
)

// embeddedReplies is how many replies a root comment carries inline.
const embeddedReplies = 2

var errUnauthenticated = errors.New("authentication required")

type gqlRequest struct {
	OperationName string          `json:"operationName"`
	Query         string          `json:"query"`
	Variables     json.RawMessage `json:"variables"`
}

type gqlError struct {
	Message string `json:"message"`
}

type gqlResponse struct {
	Data   any        `json:"data"`
	Errors []gqlError `json:"errors,omitempty"`
}

type wireUser struct {
	ID   string `json:"_id"`
	Name string `json:"name,omitempty"`
}

type wireRef struct {
	ID string `json:"_id"`
}

type wireComment struct {
	ID             string        `json:"_id"`
	Content        string        `json:"content"`
	PostID         string        `json:"postId"`
	ParentID       *string       `json:"parentId"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      *time.Time    `json:"updatedAt,omitempty"`
	Creator        wireUser      `json:"creator"`
	Likes          []wireRef     `json:"likes"`
	LikesCount     int           `json:"likesCount"`
	RepliesCount   int           `json:"repliesCount"`
	Replies        []wireComment `json:"replies,omitempty"`
	HasMoreReplies *bool         `json:"hasMoreReplies,omitempty"`
}

func toWire(c store.Comment) wireComment {
	w := wireComment{
		ID:           c.ID,
		Content:      c.Content,
		PostID:       c.PostID,
		ParentID:     c.ParentID,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		Creator:      wireUser{ID: c.UserID, Name: c.UserName},
		Likes:        make([]wireRef, 0, len(c.Likes)),
		LikesCount:   len(c.Likes),
		RepliesCount: c.RepliesCount,
	}
	for _, uid := range c.Likes {
		w.Likes = append(w.Likes, wireRef{ID: uid})
	}
	return w
}

type resolver func(ctx context.Context, cs store.CommentStore, vars json.RawMessage) (any, error)

var resolvers = map[string]resolver{
	"PaginatedComments": paginatedComments,
	"PaginatedReplies":  paginatedReplies,
	"AddComment":        addComment,
	"UpdateComment":     updateComment,
	"DeleteComment":     deleteComment,
	"LikeComment":       likeComment(true),
	"UnlikeComment":     likeComment(false),
}

// Operations lists the operation names GraphQL dispatches.
func Operations() []string {
	out := make([]string, 0, len(resolvers))
	for name := range resolvers {
		out = append(out, name)
	}
	return out
}

// GraphQL handles POST /graphql. Requests are dispatched on operationName;
// the query document is accepted but not parsed.
func GraphQL(cs store.CommentStore, log *zap.Logger) http.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		var req gqlRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			api.BadRequest(w, api.CodeInvalidJSON, "invalid JSON", rid, nil)
			return
		}
		op := strings.TrimSpace(req.OperationName)
		resolve, ok := resolvers[op]
		if !ok {
			api.BadRequest(w, api.CodeUnknownOperation, "unknown operationName", rid, map[string]any{"operationName": op})
			return
		}

		data, err := resolve(r.Context(), cs, req.Variables)
		if err != nil {
			log.Debug("graphql operation failed", zap.String("op", op), zap.String("request_id", rid), zap.Error(err))
			api.WriteJSON(w, http.StatusOK, gqlResponse{Errors: []gqlError{{Message: err.Error()}}})
			return
		}
		log.Debug("graphql operation", zap.String("op", op), zap.String("request_id", rid))
		api.WriteJSON(w, http.StatusOK, gqlResponse{Data: data})
	}
}

func decodeVars(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return errors.New("variables are required")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.New("invalid variables")
	}
	return nil
}

func requireUser(ctx context.Context) (string, error) {
	uid, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return "", errUnauthenticated
	}
	return uid, nil
}

type pageVars struct {
	PostID    string `json:"postId"`
	CommentID string `json:"commentId"`
	Page      int    `json:"page"`
	Limit     int    `json:"limit"`
}

func paginatedComments(ctx context.Context, cs store.CommentStore, raw json.RawMessage) (any, error) {
	var v pageVars
	if err := decodeVars(raw, &v); err != nil {
		return nil, err
	}
	if strings.TrimSpace(v.PostID) == "" {
		return nil, errors.New("postId is required")
	}
	p, err := cs.ListComments(ctx, v.PostID, v.Page, v.Limit)
	if err != nil {
		return nil, err
	}

	comments := make([]wireComment, 0, len(p.Items))
	for _, c := range p.Items {
		wc := toWire(c)
		if c.RepliesCount > 0 {
			replies, err := cs.ListReplies(ctx, c.ID, 1, embeddedReplies)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return nil, err
			}
			for _, rc := range replies.Items {
				wc.Replies = append(wc.Replies, toWire(rc))
			}
		}
		more := c.RepliesCount > len(wc.Replies)
		wc.HasMoreReplies = &more
		comments = append(comments, wc)
	}

	type result struct {
		Comments      []wireComment `json:"comments"`
		TotalComments int           `json:"totalComments"`
		HasMore       bool          `json:"hasMore"`
	}
	return map[string]any{"paginatedComments": result{Comments: comments, TotalComments: p.Total, HasMore: p.HasMore}}, nil
}

func paginatedReplies(ctx context.Context, cs store.CommentStore, raw json.RawMessage) (any, error) {
	var v pageVars
	if err := decodeVars(raw, &v); err != nil {
		return nil, err
	}
	if strings.TrimSpace(v.CommentID) == "" {
		return nil, errors.New("commentId is required")
	}
	p, err := cs.ListReplies(ctx, v.CommentID, v.Page, v.Limit)
	if err != nil {
		return nil, err
	}
	replies := make([]wireComment, 0, len(p.Items))
	for _, c := range p.Items {
		replies = append(replies, toWire(c))
	}

	type result struct {
		Replies      []wireComment `json:"replies"`
		TotalReplies int           `json:"totalReplies"`
		HasMore      bool          `json:"hasMore"`
	}
	return map[string]any{"paginatedReplies": result{Replies: replies, TotalReplies: p.Total, HasMore: p.HasMore}}, nil
}

func addComment(ctx context.Context, cs store.CommentStore, raw json.RawMessage) (any, error) {
	uid, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	var v struct {
		CommentInput struct {
			PostID   string  `json:"postId"`
			ParentID *string `json:"parentId"`
			Content  string  `json:"content"`
		} `json:"commentInput"`
	}
	if err := decodeVars(raw, &v); err != nil {
		return nil, err
	}
	in := v.CommentInput
	if strings.TrimSpace(in.Content) == "" {
		return nil, errors.New("content must not be empty")
	}
	if in.ParentID == nil && strings.TrimSpace(in.PostID) == "" {
		return nil, errors.New("postId is required")
	}
	if in.ParentID != nil && strings.TrimSpace(*in.ParentID) == "" {
		in.ParentID = nil
	}
	name, _ := auth.UserNameFromContext(ctx)

	created, err := cs.Create(ctx, store.Comment{
		PostID:   in.PostID,
		ParentID: in.ParentID,
		UserID:   uid,
		UserName: name,
		Content:  in.Content,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"addComment": toWire(created)}, nil
}

func updateComment(ctx context.Context, cs store.CommentStore, raw json.RawMessage) (any, error) {
	uid, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	var v struct {
		CommentID string `json:"commentId"`
		Content   string `json:"content"`
	}
	if err := decodeVars(raw, &v); err != nil {
		return nil, err
	}
	if strings.TrimSpace(v.Content) == "" {
		return nil, errors.New("content must not be empty")
	}
	updated, err := cs.UpdateContent(ctx, v.CommentID, uid, v.Content)
	if err != nil {
		return nil, err
	}
	return map[string]any{"updateComment": toWire(updated)}, nil
}

func deleteComment(ctx context.Context, cs store.CommentStore, raw json.RawMessage) (any, error) {
	uid, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	var v struct {
		CommentID string `json:"commentId"`
	}
	if err := decodeVars(raw, &v); err != nil {
		return nil, err
	}
	if _, err := cs.Delete(ctx, v.CommentID, uid); err != nil {
		return nil, err
	}
	return map[string]any{"deleteComment": v.CommentID}, nil
}

func likeComment(liked bool) resolver {
	field := "likeComment"
	if !liked {
		field = "unlikeComment"
	}
	return func(ctx context.Context, cs store.CommentStore, raw json.RawMessage) (any, error) {
		uid, err := requireUser(ctx)
		if err != nil {
			return nil, err
		}
		var v struct {
			CommentID string `json:"commentId"`
		}
		if err := decodeVars(raw, &v); err != nil {
			return nil, err
		}
		c, err := cs.SetLike(ctx, v.CommentID, uid, liked)
		if err != nil {
			return nil, err
		}
		return map[string]any{field: toWire(c)}, nil
	}
}
