package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryCommentStore is a development-only in-memory implementation.
type InMemoryCommentStore struct {
	mu       sync.RWMutex
	comments map[string]Comment  // id -> comment
	children map[string][]string // parent id -> reply ids
	last     time.Time
}

func NewInMemoryCommentStore() *InMemoryCommentStore {
	return &InMemoryCommentStore{
		comments: make(map[string]Comment),
		children: make(map[string][]string),
	}
}

func (s *InMemoryCommentStore) Create(_ context.Context, c Comment) (Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ParentID != nil {
		parent, ok := s.comments[*c.ParentID]
		if !ok {
			return Comment{}, ErrNotFound
		}
		c.PostID = parent.PostID
	}
	c.ID = uuid.New().String()
	c.CreatedAt = s.now()
	c.UpdatedAt = nil
	c.Likes = nil
	s.insert(c)
	return s.read(c.ID), nil
}

// now is strictly increasing so creation order survives coarse clocks.
func (s *InMemoryCommentStore) now() time.Time {
	t := time.Now().UTC()
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t
	return t
}

func (s *InMemoryCommentStore) insert(c Comment) {
	s.comments[c.ID] = c
	if c.CreatedAt.After(s.last) {
		s.last = c.CreatedAt
	}
	if c.ParentID != nil {
		s.children[*c.ParentID] = append(s.children[*c.ParentID], c.ID)
	}
}

// read returns a copy with computed fields. Callers hold at least the read lock.
func (s *InMemoryCommentStore) read(id string) Comment {
	c := s.comments[id]
	c.Likes = slices.Clone(c.Likes)
	c.RepliesCount = len(s.children[id])
	return c
}

func (s *InMemoryCommentStore) Get(_ context.Context, commentID string) (Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.comments[commentID]; !ok {
		return Comment{}, ErrNotFound
	}
	return s.read(commentID), nil
}

func (s *InMemoryCommentStore) ListComments(_ context.Context, postID string, page, limit int) (Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var roots []Comment
	for id, c := range s.comments {
		if c.PostID == postID && c.ParentID == nil {
			roots = append(roots, s.read(id))
		}
	}
	sort.Slice(roots, func(i, j int) bool {
		if !roots[i].CreatedAt.Equal(roots[j].CreatedAt) {
			return roots[i].CreatedAt.After(roots[j].CreatedAt)
		}
		return roots[i].ID > roots[j].ID
	})
	return slicePage(roots, page, limit), nil
}

func (s *InMemoryCommentStore) ListReplies(_ context.Context, commentID string, page, limit int) (Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.comments[commentID]; !ok {
		return Page{}, ErrNotFound
	}
	replies := make([]Comment, 0, len(s.children[commentID]))
	for _, id := range s.children[commentID] {
		replies = append(replies, s.read(id))
	}
	sort.SliceStable(replies, func(a, b int) bool {
		return replies[a].CreatedAt.Before(replies[b].CreatedAt)
	})
	return slicePage(replies, page, limit), nil
}

func slicePage(all []Comment, page, limit int) Page {
	page, limit = normalizePage(page, limit)
	start := (page - 1) * limit
	p := Page{Items: []Comment{}, Total: len(all)}
	if start >= len(all) {
		return p
	}
	end := min(start+limit, len(all))
	p.Items = all[start:end]
	p.HasMore = end < len(all)
	return p
}

func (s *InMemoryCommentStore) UpdateContent(_ context.Context, commentID, userID, content string) (Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.comments[commentID]
	if !ok || c.UserID != userID {
		return Comment{}, ErrNotFoundOrForbidden
	}
	c.Content = content
	now := time.Now().UTC()
	c.UpdatedAt = &now
	s.comments[commentID] = c
	return s.read(commentID), nil
}

// Delete removes the comment and every reply beneath it. It returns the
// removed ids, the target first.
func (s *InMemoryCommentStore) Delete(_ context.Context, commentID, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.comments[commentID]
	if !ok || c.UserID != userID {
		return nil, ErrNotFoundOrForbidden
	}
	if c.ParentID != nil {
		siblings := s.children[*c.ParentID]
		if i := slices.Index(siblings, commentID); i >= 0 {
			s.children[*c.ParentID] = slices.Delete(siblings, i, i+1)
		}
	}

	removed := []string{}
	stack := []string{commentID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		removed = append(removed, id)
		stack = append(stack, s.children[id]...)
		delete(s.children, id)
		delete(s.comments, id)
	}
	return removed, nil
}

// SetLike adds or removes userID from the comment's likers. Repeating the
// current state is a no-op.
func (s *InMemoryCommentStore) SetLike(_ context.Context, commentID, userID string, liked bool) (Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.comments[commentID]
	if !ok {
		return Comment{}, ErrNotFound
	}
	i := slices.Index(c.Likes, userID)
	switch {
	case liked && i < 0:
		c.Likes = append(slices.Clone(c.Likes), userID)
	case !liked && i >= 0:
		c.Likes = slices.Delete(slices.Clone(c.Likes), i, i+1)
	}
	s.comments[commentID] = c
	return s.read(commentID), nil
}

// SeedComment is one entry of a seed file. Replies nest; ids are optional.
type SeedComment struct {
	ID        string        `json:"id"`
	PostID    string        `json:"post_id"`
	UserID    string        `json:"user_id"`
	UserName  string        `json:"user_name"`
	Content   string        `json:"content"`
	Likes     []string      `json:"likes"`
	CreatedAt time.Time     `json:"created_at"`
	Replies   []SeedComment `json:"replies"`
}

// Seed loads a JSON array of SeedComment. Missing timestamps are spaced one
// second apart in file order so listings are deterministic.
func (s *InMemoryCommentStore) Seed(r io.Reader) (int, error) {
	var items []SeedComment
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return 0, fmt.Errorf("decode seed: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	clock := time.Now().UTC().Add(-time.Duration(countSeed(items)) * time.Second)
	n := 0
	var load func(sc SeedComment, postID string, parent *string) error
	load = func(sc SeedComment, postID string, parent *string) error {
		if sc.PostID != "" {
			postID = sc.PostID
		}
		if strings.TrimSpace(postID) == "" {
			return fmt.Errorf("seed comment %q: post_id is required", sc.ID)
		}
		id := sc.ID
		if id == "" {
			id = uuid.New().String()
		}
		if _, dup := s.comments[id]; dup {
			return fmt.Errorf("seed comment %q: duplicate id", id)
		}
		created := sc.CreatedAt
		if created.IsZero() {
			clock = clock.Add(time.Second)
			created = clock
		}
		s.insert(Comment{
			ID: id, PostID: postID, ParentID: parent,
			UserID: sc.UserID, UserName: sc.UserName, Content: sc.Content,
			Likes: slices.Clone(sc.Likes), CreatedAt: created.UTC(),
		})
		n++
		for _, reply := range sc.Replies {
			if err := load(reply, postID, &id); err != nil {
				return err
			}
		}
		return nil
	}
	for _, sc := range items {
		if err := load(sc, "", nil); err != nil {
			return n, err
		}
	}
	return n, nil
}

func countSeed(items []SeedComment) int {
	n := len(items)
	for _, sc := range items {
		n += countSeed(sc.Replies)
	}
	return n
}
