package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/example/feed-platform/internal/platform/auth"
	"github.com/example/feed-platform/services/feedstub/internal/store"
)

// setupReq builds a GraphQL POST with an optional user_id in context.
func setupReq(op string, vars any, userID string) *http.Request {
	body, _ := json.Marshal(map[string]any{"operationName": op, "query": "# ignored", "variables": vars})
	req := httptest.NewRequest(http.MethodPost, "/graphql", bytes.NewReader(body))
	if userID != "" {
		req = req.WithContext(auth.WithUserID(req.Context(), userID))
	}
	return req
}

type response struct {
	Data   map[string]json.RawMessage `json:"data"`
	Errors []gqlError                 `json:"errors"`
}

func serve(t *testing.T, cs store.CommentStore, req *http.Request) response {
	t.Helper()
	rr := httptest.NewRecorder()
	GraphQL(cs, nil).ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var out response
	if err := json.NewDecoder(rr.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func seeded(t *testing.T) *store.InMemoryCommentStore {
	t.Helper()
	cs := store.NewInMemoryCommentStore()
	_, err := cs.Seed(strings.NewReader(`[
	  {"id":"c1","post_id":"p1","user_id":"u1","user_name":"Ann","content":"first","likes":["u2"],
	   "replies":[
	     {"id":"r1","user_id":"u2","content":"a"},
	     {"id":"r2","user_id":"u2","content":"b"},
	     {"id":"r3","user_id":"u3","content":"c"}]},
	  {"id":"c2","post_id":"p1","user_id":"u2","content":"second"}
	]`))
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return cs
}

func TestGraphQL_PaginatedComments(t *testing.T) {
	cs := seeded(t)
	out := serve(t, cs, setupReq("PaginatedComments", map[string]any{"postId": "p1", "page": 1, "limit": 5}, ""))
	if len(out.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", out.Errors)
	}

	var page struct {
		Comments      []wireComment `json:"comments"`
		TotalComments int           `json:"totalComments"`
		HasMore       bool          `json:"hasMore"`
	}
	if err := json.Unmarshal(out.Data["paginatedComments"], &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if page.TotalComments != 2 || page.HasMore || len(page.Comments) != 2 {
		t.Fatalf("unexpected page: %+v", page)
	}
	c1 := page.Comments[1]
	if c1.ID != "c1" || c1.Creator.ID != "u1" || c1.Creator.Name != "Ann" {
		t.Fatalf("unexpected c1: %+v", c1)
	}
	if c1.LikesCount != 1 || len(c1.Likes) != 1 || c1.Likes[0].ID != "u2" {
		t.Fatalf("unexpected likes: %+v", c1.Likes)
	}
	if c1.RepliesCount != 3 || len(c1.Replies) != embeddedReplies || c1.Replies[0].ID != "r1" {
		t.Fatalf("unexpected embedded replies: %+v", c1.Replies)
	}
	if c1.HasMoreReplies == nil || !*c1.HasMoreReplies {
		t.Fatal("expected hasMoreReplies=true")
	}
	if c2 := page.Comments[0]; c2.HasMoreReplies == nil || *c2.HasMoreReplies {
		t.Fatal("expected hasMoreReplies=false for a comment without replies")
	}
}

func TestGraphQL_PaginatedReplies(t *testing.T) {
	cs := seeded(t)
	out := serve(t, cs, setupReq("PaginatedReplies", map[string]any{"commentId": "c1", "page": 2, "limit": 2}, ""))

	var page struct {
		Replies      []wireComment `json:"replies"`
		TotalReplies int           `json:"totalReplies"`
		HasMore      bool          `json:"hasMore"`
	}
	if err := json.Unmarshal(out.Data["paginatedReplies"], &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if page.TotalReplies != 3 || page.HasMore || len(page.Replies) != 1 || page.Replies[0].ID != "r3" {
		t.Fatalf("unexpected replies page: %+v", page)
	}
	if page.Replies[0].ParentID == nil || *page.Replies[0].ParentID != "c1" {
		t.Fatal("expected parentId c1")
	}
}

func TestGraphQL_AddComment_Unauthenticated(t *testing.T) {
	cs := seeded(t)
	vars := map[string]any{"commentInput": map[string]any{"postId": "p1", "content": "hi"}}
	out := serve(t, cs, setupReq("AddComment", vars, ""))
	if len(out.Errors) != 1 || out.Errors[0].Message != errUnauthenticated.Error() {
		t.Fatalf("expected authentication error, got %+v", out.Errors)
	}
}

func TestGraphQL_AddReply(t *testing.T) {
	cs := seeded(t)
	vars := map[string]any{"commentInput": map[string]any{"postId": "p1", "parentId": "c2", "content": "hi"}}
	out := serve(t, cs, setupReq("AddComment", vars, "u9"))
	if len(out.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", out.Errors)
	}
	var c wireComment
	if err := json.Unmarshal(out.Data["addComment"], &c); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if c.ID == "" || c.Creator.ID != "u9" || c.ParentID == nil || *c.ParentID != "c2" || c.PostID != "p1" {
		t.Fatalf("unexpected created reply: %+v", c)
	}

	parent, _ := cs.Get(context.Background(), "c2")
	if parent.RepliesCount != 1 {
		t.Fatalf("expected 1 reply on c2, got %d", parent.RepliesCount)
	}
}

func TestGraphQL_AddComment_EmptyContent(t *testing.T) {
	cs := seeded(t)
	vars := map[string]any{"commentInput": map[string]any{"postId": "p1", "content": "   "}}
	out := serve(t, cs, setupReq("AddComment", vars, "u1"))
	if len(out.Errors) != 1 {
		t.Fatalf("expected one error, got %+v", out.Errors)
	}
}

func TestGraphQL_UpdateComment_AuthorOnly(t *testing.T) {
	cs := seeded(t)
	vars := map[string]any{"commentId": "c1", "content": "edited"}

	out := serve(t, cs, setupReq("UpdateComment", vars, "u2"))
	if len(out.Errors) != 1 || out.Errors[0].Message != store.ErrNotFoundOrForbidden.Error() {
		t.Fatalf("expected forbidden error, got %+v", out.Errors)
	}

	out = serve(t, cs, setupReq("UpdateComment", vars, "u1"))
	var c wireComment
	if err := json.Unmarshal(out.Data["updateComment"], &c); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if c.Content != "edited" || c.UpdatedAt == nil {
		t.Fatalf("unexpected updated comment: %+v", c)
	}
}

func TestGraphQL_DeleteComment(t *testing.T) {
	cs := seeded(t)
	out := serve(t, cs, setupReq("DeleteComment", map[string]any{"commentId": "c1"}, "u1"))
	if len(out.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", out.Errors)
	}
	if _, err := cs.Get(context.Background(), "r2"); err != store.ErrNotFound {
		t.Fatalf("expected replies removed with c1, got %v", err)
	}
}

func TestGraphQL_LikeUnlike(t *testing.T) {
	cs := seeded(t)
	out := serve(t, cs, setupReq("LikeComment", map[string]any{"commentId": "c2"}, "u1"))
	var c wireComment
	if err := json.Unmarshal(out.Data["likeComment"], &c); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if c.LikesCount != 1 || c.Likes[0].ID != "u1" {
		t.Fatalf("unexpected like result: %+v", c)
	}

	out = serve(t, cs, setupReq("UnlikeComment", map[string]any{"commentId": "c2"}, "u1"))
	if err := json.Unmarshal(out.Data["unlikeComment"], &c); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if c.LikesCount != 0 || len(c.Likes) != 0 {
		t.Fatalf("unexpected unlike result: %+v", c)
	}
}

func TestGraphQL_BadRequests(t *testing.T) {
	cs := seeded(t)

	rr := httptest.NewRecorder()
	GraphQL(cs, nil).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader("{")))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid JSON, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	GraphQL(cs, nil).ServeHTTP(rr, setupReq("DropTables", nil, ""))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown operation, got %d", rr.Code)
	}

	out := serve(t, cs, setupReq("PaginatedComments", nil, ""))
	if len(out.Errors) != 1 {
		t.Fatalf("expected error for missing variables, got %+v", out.Errors)
	}
}

func TestOperations(t *testing.T) {
	if got := len(Operations()); got != 7 {
		t.Fatalf("expected 7 operations, got %d", got)
	}
}
