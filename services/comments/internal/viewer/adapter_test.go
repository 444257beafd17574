package viewer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/feed-platform/internal/platform/events"
	"github.com/example/feed-platform/internal/platform/ids"
	"github.com/example/feed-platform/services/comments/internal/engine"
	"github.com/example/feed-platform/services/comments/internal/paging"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

var errBoom = errors.New("boom")

type session string

func (s session) UserID() (string, bool) { return string(s), s != "" }

type addCall struct{ postID, parentID, content string }

type fakeClient struct {
	mu      sync.Mutex
	roots   map[string][]engine.Page
	replies map[string][]engine.Page
	errs    map[string]error
	hooks   map[string]func()
	calls   []string
	adds    []addCall
	likers  map[string][]string
	seq     int
	user    string
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		roots:   map[string][]engine.Page{},
		replies: map[string][]engine.Page{},
		errs:    map[string]error{},
		hooks:   map[string]func(){},
		likers:  map[string][]string{},
		user:    "u1",
	}
}

// enter records op, runs its hook and returns its one-shot error.
func (f *fakeClient) enter(op string) error {
	f.mu.Lock()
	f.calls = append(f.calls, op)
	h := f.hooks[op]
	err := f.errs[op]
	delete(f.errs, op)
	f.mu.Unlock()
	if h != nil {
		h()
	}
	return err
}

func (f *fakeClient) failNext(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[op] = err
}

func (f *fakeClient) hook(op string, fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks[op] = fn
}

func (f *fakeClient) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == op {
			n++
		}
	}
	return n
}

func pageAt(pages []engine.Page, page int) engine.Page {
	if page < 1 || page > len(pages) {
		return engine.Page{}
	}
	return pages[page-1]
}

func (f *fakeClient) PaginatedComments(_ context.Context, postID string, page, _ int) (engine.Page, error) {
	if err := f.enter("PaginatedComments"); err != nil {
		return engine.Page{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return pageAt(f.roots[postID], page), nil
}

func (f *fakeClient) PaginatedReplies(_ context.Context, commentID string, page, _ int) (engine.Page, error) {
	if err := f.enter("PaginatedReplies"); err != nil {
		return engine.Page{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return pageAt(f.replies[commentID], page), nil
}

func (f *fakeClient) AddComment(_ context.Context, postID, parentID, content string) (engine.Record, error) {
	if err := f.enter("AddComment"); err != nil {
		return engine.Record{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.adds = append(f.adds, addCall{postID, parentID, content})
	return engine.Record{
		ID:        fmt.Sprintf("srv-%d", f.seq),
		PostID:    postID,
		ParentID:  parentID,
		AuthorID:  f.user,
		Content:   content,
		CreatedAt: t0.Add(time.Hour),
	}, nil
}

func (f *fakeClient) UpdateComment(_ context.Context, commentID, content string) (engine.Record, error) {
	if err := f.enter("UpdateComment"); err != nil {
		return engine.Record{}, err
	}
	at := t0.Add(2 * time.Hour)
	return engine.Record{ID: commentID, Content: content, EditedAt: &at}, nil
}

func (f *fakeClient) DeleteComment(_ context.Context, _ string) error {
	return f.enter("DeleteComment")
}

func (f *fakeClient) LikeComment(_ context.Context, commentID string) (engine.Record, error) {
	if err := f.enter("LikeComment"); err != nil {
		return engine.Record{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.likers[commentID], _ = ids.AppendUnique(f.likers[commentID], f.user)
	l := ids.Clone(f.likers[commentID])
	return engine.Record{ID: commentID, LikesCount: len(l), LikeUserIDs: l}, nil
}

func (f *fakeClient) UnlikeComment(_ context.Context, commentID string) (engine.Record, error) {
	if err := f.enter("UnlikeComment"); err != nil {
		return engine.Record{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.likers[commentID], _ = ids.Remove(f.likers[commentID], f.user)
	l := ids.Clone(f.likers[commentID])
	return engine.Record{ID: commentID, LikesCount: len(l), LikeUserIDs: l}, nil
}

type published struct {
	subject string
	name    string
	props   map[string]any
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []published
}

func (n *fakeNotifier) Publish(subject, eventName, _ string, props map[string]any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, published{subject, eventName, props})
}

func rec(id, author string, replies ...engine.Record) engine.Record {
	return engine.Record{
		ID:           id,
		AuthorID:     author,
		Content:      "content " + id,
		CreatedAt:    t0,
		RepliesCount: len(replies),
		Replies:      replies,
	}
}

func newAdapter(t *testing.T, fc *fakeClient, user string, opts ...func(*Options)) *Adapter {
	t.Helper()
	o := Options{PostID: "p1", Client: fc, Session: session(user)}
	for _, fn := range opts {
		fn(&o)
	}
	a, err := New(o)
	require.NoError(t, err)
	return a
}

func loadedAdapter(t *testing.T, fc *fakeClient, user string) *Adapter {
	t.Helper()
	fc.roots["p1"] = []engine.Page{{
		Items: []engine.Record{
			rec("c1", "u1", rec("r1", "u2")),
			rec("c2", "u2"),
		},
		TotalCount: 2,
	}}
	a := newAdapter(t, fc, user)
	ch, err := a.LoadMoreComments(context.Background())
	require.NoError(t, err)
	require.True(t, ch.Applied)
	return a
}

func TestNew_Validates(t *testing.T) {
	_, err := New(Options{Client: newFakeClient()})
	require.Error(t, err)
	_, err = New(Options{PostID: "p1"})
	require.Error(t, err)
}

func TestLoadMoreComments_MergesAndStops(t *testing.T) {
	fc := newFakeClient()
	a := loadedAdapter(t, fc, "u1")

	tr := a.Tree()
	assert.Equal(t, []string{"c1", "c2"}, tr.RootIDs())
	assert.Equal(t, 2, tr.CommentsCount())
	assert.False(t, tr.RootPagination().HasMore)
	kids, ok := tr.Children("c1")
	require.True(t, ok)
	assert.Equal(t, []string{"r1"}, kids)

	ch, err := a.LoadMoreComments(context.Background())
	require.NoError(t, err)
	assert.False(t, ch.Applied)
	assert.ErrorIs(t, ch.Reason, paging.ErrExhausted)
	assert.Equal(t, 1, fc.count("PaginatedComments"))
}

func TestLoadMoreComments_FailureAllowsRetrySamePage(t *testing.T) {
	fc := newFakeClient()
	fc.roots["p1"] = []engine.Page{{Items: []engine.Record{rec("c1", "u2")}, TotalCount: 1}}
	a := newAdapter(t, fc, "u1")

	fc.failNext("PaginatedComments", errBoom)
	_, err := a.LoadMoreComments(context.Background())
	require.ErrorIs(t, err, errBoom)

	p := a.Tree().RootPagination()
	assert.False(t, p.Loading)
	assert.Equal(t, 1, p.NextPage)

	_, err = a.LoadMoreComments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, a.Tree().RootIDs())
}

func TestLoadMoreReplies(t *testing.T) {
	fc := newFakeClient()
	fc.roots["p1"] = []engine.Page{{Items: []engine.Record{
		{ID: "c1", AuthorID: "u2", CreatedAt: t0, RepliesCount: 3, Replies: []engine.Record{rec("r1", "u2")}},
	}, TotalCount: 1}}
	fc.replies["c1"] = []engine.Page{{Items: []engine.Record{rec("r1", "u2"), rec("r2", "u3"), rec("r3", "u3")}, TotalCount: 3}}
	a := newAdapter(t, fc, "u1")
	_, err := a.LoadMoreComments(context.Background())
	require.NoError(t, err)

	ch, err := a.LoadMoreReplies(context.Background(), "c1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"r2", "r3"}, ch.Added)

	kids, _ := a.Tree().Children("c1")
	assert.Equal(t, []string{"r1", "r2", "r3"}, kids)
	n, err := a.Tree().Locate("c1")
	require.NoError(t, err)
	assert.Equal(t, 3, n.RepliesCount)
	assert.False(t, n.Pagination.HasMore)

	_, err = a.LoadMoreReplies(context.Background(), ids.None)
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestAddComment_ConfirmRenames(t *testing.T) {
	fc := newFakeClient()
	notes := &fakeNotifier{}
	a := loadedAdapter(t, fc, "u1")
	a.notifier = notes

	ch, err := a.AddComment(context.Background(), "  hello  ")
	require.NoError(t, err)
	assert.Equal(t, engine.KindConfirm, ch.Kind)
	assert.Equal(t, "srv-1", ch.ID)

	tr := a.Tree()
	assert.Equal(t, []string{"srv-1", "c1", "c2"}, tr.RootIDs())
	assert.Equal(t, 3, tr.CommentsCount())
	assert.Equal(t, 4, tr.Len())

	n, err := tr.Locate("srv-1")
	require.NoError(t, err)
	assert.Equal(t, "hello", n.Content)
	assert.False(t, n.Provisional)
	assert.Equal(t, t0.Add(time.Hour), n.CreatedAt)
	assert.False(t, a.Pending("srv-1"))

	require.Len(t, notes.sent, 1)
	assert.Equal(t, events.SubjectCommentCreated, notes.sent[0].subject)
	assert.Equal(t, "srv-1", notes.sent[0].props["comment_id"])
}

func TestAddComment_FailureRollsBack(t *testing.T) {
	fc := newFakeClient()
	a := loadedAdapter(t, fc, "u1")
	before := a.View()

	fc.failNext("AddComment", errBoom)
	_, err := a.AddComment(context.Background(), "hello")
	require.ErrorIs(t, err, errBoom)

	assert.Equal(t, before, a.View())
	assert.Equal(t, 0, a.ledger.InFlight())
}

func TestAddComment_Validation(t *testing.T) {
	fc := newFakeClient()
	a := loadedAdapter(t, fc, "")

	_, err := a.AddComment(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	a.session = session("u1")
	_, err = a.AddComment(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyContent)
	assert.Equal(t, 0, fc.count("AddComment"))
}

func TestAddReply(t *testing.T) {
	fc := newFakeClient()
	a := loadedAdapter(t, fc, "u1")

	_, err := a.AddReply(context.Background(), "missing", "hi")
	require.ErrorIs(t, err, ErrNotLoaded)

	ch, err := a.AddReply(context.Background(), "c2", "hi")
	require.NoError(t, err)
	require.Len(t, fc.adds, 1)
	assert.Equal(t, addCall{"p1", "c2", "hi"}, fc.adds[0])

	kids, _ := a.Tree().Children("c2")
	assert.Equal(t, []string{ch.ID}, kids)
	n, _ := a.Tree().Locate("c2")
	assert.Equal(t, 1, n.RepliesCount)
	assert.Equal(t, 2, a.Tree().CommentsCount())
}

func TestAddReply_ToPendingCommentRefused(t *testing.T) {
	fc := newFakeClient()
	a := loadedAdapter(t, fc, "u1")

	entered, release := make(chan struct{}), make(chan struct{})
	fc.hook("AddComment", func() { close(entered); <-release })

	done := make(chan engine.Change, 1)
	go func() {
		ch, _ := a.AddComment(context.Background(), "first")
		done <- ch
	}()
	<-entered

	provisional := a.Tree().RootIDs()[0]
	require.True(t, ids.IsProvisional(provisional))
	assert.True(t, a.View().Comments[0].Pending)

	_, err := a.AddReply(context.Background(), provisional, "too early")
	assert.ErrorIs(t, err, ErrInFlight)

	fc.hook("AddComment", nil)
	close(release)
	ch := <-done
	assert.Equal(t, "srv-1", ch.ID)
	assert.False(t, a.View().Comments[0].Pending)
}

func TestEditComment(t *testing.T) {
	fc := newFakeClient()
	a := loadedAdapter(t, fc, "u1")

	_, err := a.EditComment(context.Background(), "c2", "mine now")
	require.ErrorIs(t, err, ErrForbidden)

	ch, err := a.EditComment(context.Background(), "c1", "edited")
	require.NoError(t, err)
	assert.True(t, ch.Applied)

	n, _ := a.Tree().Locate("c1")
	assert.Equal(t, "edited", n.Content)
	require.NotNil(t, n.EditedAt)
	assert.Equal(t, t0.Add(2*time.Hour), *n.EditedAt)
	kids, _ := a.Tree().Children("c1")
	assert.Equal(t, []string{"r1"}, kids)
}

func TestEditComment_FailureReverts(t *testing.T) {
	fc := newFakeClient()
	a := loadedAdapter(t, fc, "u1")

	fc.failNext("UpdateComment", errBoom)
	_, err := a.EditComment(context.Background(), "c1", "edited")
	require.ErrorIs(t, err, errBoom)

	n, _ := a.Tree().Locate("c1")
	assert.Equal(t, "content c1", n.Content)
	assert.Nil(t, n.EditedAt)
	assert.False(t, a.Pending("c1"))
}

func TestDeleteComment(t *testing.T) {
	fc := newFakeClient()
	a := loadedAdapter(t, fc, "u1")

	ch, err := a.DeleteComment(context.Background(), "c1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"c1", "r1"}, ch.Removed)

	tr := a.Tree()
	assert.Equal(t, []string{"c2"}, tr.RootIDs())
	assert.Equal(t, 1, tr.CommentsCount())
	assert.False(t, tr.Has("r1"))
}

func TestDeleteComment_FailureRestores(t *testing.T) {
	fc := newFakeClient()
	a := loadedAdapter(t, fc, "u1")
	before := a.View()

	fc.failNext("DeleteComment", errBoom)
	_, err := a.DeleteComment(context.Background(), "c1")
	require.ErrorIs(t, err, errBoom)

	assert.Equal(t, before, a.View())
}

func TestToggleLike_RoundTrip(t *testing.T) {
	fc := newFakeClient()
	a := loadedAdapter(t, fc, "u1")
	before := a.View()

	ch, err := a.ToggleLike(context.Background(), "c2")
	require.NoError(t, err)
	assert.True(t, ch.Liked)
	v := a.View().Comments[1]
	assert.True(t, v.LikedByMe)
	assert.Equal(t, 1, v.LikesCount)

	ch, err = a.ToggleLike(context.Background(), "c2")
	require.NoError(t, err)
	assert.False(t, ch.Liked)
	assert.Equal(t, before, a.View())
}

func TestToggleLike_FailureRollsBack(t *testing.T) {
	fc := newFakeClient()
	a := loadedAdapter(t, fc, "u1")

	fc.failNext("LikeComment", errBoom)
	_, err := a.ToggleLike(context.Background(), "c2")
	require.ErrorIs(t, err, errBoom)

	v := a.View().Comments[1]
	assert.False(t, v.LikedByMe)
	assert.Equal(t, 0, v.LikesCount)
}

func TestToggleLike_SecondToggleWhilePendingRefused(t *testing.T) {
	fc := newFakeClient()
	a := loadedAdapter(t, fc, "u1")

	entered, release := make(chan struct{}), make(chan struct{})
	fc.hook("LikeComment", func() { close(entered); <-release })

	done := make(chan error, 1)
	go func() {
		_, err := a.ToggleLike(context.Background(), "c2")
		done <- err
	}()
	<-entered

	_, err := a.ToggleLike(context.Background(), "c2")
	assert.ErrorIs(t, err, ErrInFlight)
	assert.True(t, a.View().Comments[1].Pending)

	close(release)
	require.NoError(t, <-done)

	v := a.View().Comments[1]
	assert.Equal(t, 1, v.LikesCount)
	assert.True(t, v.LikedByMe)
	assert.False(t, v.Pending)
}

func TestClose_DropsInFlightPage(t *testing.T) {
	fc := newFakeClient()
	fc.roots["p1"] = []engine.Page{{Items: []engine.Record{rec("c1", "u2")}, TotalCount: 1}}
	a := newAdapter(t, fc, "u1")

	entered, release := make(chan struct{}), make(chan struct{})
	fc.hook("PaginatedComments", func() { close(entered); <-release })

	done := make(chan error, 1)
	go func() {
		_, err := a.LoadMoreComments(context.Background())
		done <- err
	}()
	<-entered
	a.Close()
	close(release)

	assert.ErrorIs(t, <-done, ErrClosed)
	assert.Nil(t, a.Tree())
	assert.Empty(t, a.View().Comments)

	_, err := a.AddComment(context.Background(), "late")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestReload_DropsStalePage(t *testing.T) {
	fc := newFakeClient()
	fc.roots["p1"] = []engine.Page{{Items: []engine.Record{rec("c1", "u2")}, TotalCount: 1}}
	a := newAdapter(t, fc, "u1")

	entered, release := make(chan struct{}), make(chan struct{})
	fc.hook("PaginatedComments", func() { close(entered); <-release })

	done := make(chan engine.Change, 1)
	go func() {
		ch, _ := a.LoadMoreComments(context.Background())
		done <- ch
	}()
	<-entered
	fc.hook("PaginatedComments", nil)

	_, err := a.Reload(context.Background())
	require.NoError(t, err)
	close(release)

	ch := <-done
	assert.ErrorIs(t, ch.Reason, paging.ErrStale)
	assert.Equal(t, []string{"c1"}, a.Tree().RootIDs())
}

func TestOnChange_ReceivesAppliedChanges(t *testing.T) {
	fc := newFakeClient()
	fc.roots["p1"] = []engine.Page{{Items: []engine.Record{rec("c1", "u1")}, TotalCount: 1}}

	var (
		mu    sync.Mutex
		kinds []engine.Kind
	)
	a := newAdapter(t, fc, "u1", func(o *Options) {
		o.OnChange = func(ch engine.Change) {
			mu.Lock()
			defer mu.Unlock()
			kinds = append(kinds, ch.Kind)
		}
	})
	_, err := a.LoadMoreComments(context.Background())
	require.NoError(t, err)
	_, err = a.AddComment(context.Background(), "x")
	require.NoError(t, err)

	assert.Equal(t, []engine.Kind{engine.KindPage, engine.KindAdd, engine.KindConfirm}, kinds)
}

func TestDeleteDuringReplyLoad_FailureLeavesRepliesLoadable(t *testing.T) {
	fc := newFakeClient()
	fc.roots["p1"] = []engine.Page{{Items: []engine.Record{
		{ID: "c1", AuthorID: "u1", CreatedAt: t0, RepliesCount: 3, Replies: []engine.Record{rec("r1", "u2")}},
	}, TotalCount: 1}}
	fc.replies["c1"] = []engine.Page{{Items: []engine.Record{rec("r1", "u2"), rec("r2", "u3"), rec("r3", "u3")}, TotalCount: 3}}
	a := newAdapter(t, fc, "u1")
	_, err := a.LoadMoreComments(context.Background())
	require.NoError(t, err)

	deleting, release := make(chan struct{}), make(chan struct{})
	fc.hook("DeleteComment", func() { close(deleting); <-release })
	fc.failNext("DeleteComment", errBoom)

	deleted := make(chan error, 1)
	fc.hook("PaginatedReplies", func() {
		go func() {
			_, err := a.DeleteComment(context.Background(), "c1")
			deleted <- err
		}()
		<-deleting
	})

	ch, err := a.LoadMoreReplies(context.Background(), "c1")
	require.NoError(t, err)
	assert.False(t, ch.Applied)
	assert.ErrorIs(t, ch.Reason, paging.ErrStale)

	fc.hook("PaginatedReplies", nil)
	close(release)
	require.ErrorIs(t, <-deleted, errBoom)

	n, err := a.Tree().Locate("c1")
	require.NoError(t, err)
	assert.False(t, n.Pagination.Loading)
	assert.True(t, n.Pagination.HasMore)
	assert.Equal(t, 1, n.Pagination.NextPage)

	ch, err = a.LoadMoreReplies(context.Background(), "c1")
	require.NoError(t, err)
	require.True(t, ch.Applied)
	kids, _ := a.Tree().Children("c1")
	assert.Equal(t, []string{"r1", "r2", "r3"}, kids)
}

func TestAddComment_PageBringsServerCopyFirst(t *testing.T) {
	fc := newFakeClient()
	fc.roots["p1"] = []engine.Page{
		{Items: []engine.Record{rec("c1", "u2")}, TotalCount: 1, HasMore: true},
		{Items: []engine.Record{rec("srv-1", "u1"), rec("c1", "u2")}, TotalCount: 2},
	}
	a := newAdapter(t, fc, "u1")
	_, err := a.LoadMoreComments(context.Background())
	require.NoError(t, err)

	var merged engine.Change
	fc.hook("AddComment", func() {
		merged, _ = a.LoadMoreComments(context.Background())
	})

	ch, err := a.AddComment(context.Background(), "hello")
	require.NoError(t, err)
	require.True(t, merged.Applied)
	assert.Equal(t, []string{"srv-1"}, merged.Added)
	assert.Equal(t, "srv-1", ch.ID)

	tr := a.Tree()
	assert.Equal(t, []string{"srv-1", "c1"}, tr.RootIDs())
	assert.Equal(t, 2, tr.CommentsCount())
	assert.Equal(t, 2, tr.Len())
	assert.False(t, a.Pending("srv-1"))
}
