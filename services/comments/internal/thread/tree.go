package thread

import (
	iradix "github.com/hashicorp/go-immutable-radix/v2"

	"github.com/example/feed-platform/internal/platform/ids"
)

// Tree is one viewer's snapshot of a post's comment discussion.
type Tree struct {
	postID string
	nodes  *iradix.Tree[*Node]

	rootIDs        []string
	rootPagination Pagination
	// commentsCount counts top-level comments only.
	commentsCount int
}

// New returns an empty tree whose root list has not been fetched yet.
func New(postID string) *Tree {
	return &Tree{
		postID:         postID,
		nodes:          iradix.New[*Node](),
		rootIDs:        []string{},
		rootPagination: FirstPage(),
	}
}

func (t *Tree) PostID() string             { return t.postID }
func (t *Tree) Len() int                   { return t.nodes.Len() }
func (t *Tree) RootIDs() []string          { return ids.Clone(t.rootIDs) }
func (t *Tree) RootPagination() Pagination { return t.rootPagination }
func (t *Tree) CommentsCount() int         { return t.commentsCount }

// Has reports whether id is materialized anywhere in the tree.
func (t *Tree) Has(id string) bool {
	_, ok := t.get(id)
	return ok
}

// Locate returns a copy of the node with the given id.
func (t *Tree) Locate(id string) (Node, error) {
	n, ok := t.get(id)
	if !ok {
		return Node{}, ErrNotFound
	}
	return *n.clone(), nil
}

// PathToRoot returns id followed by its ancestors, ending at the root comment.
func (t *Tree) PathToRoot(id string) ([]string, error) {
	n, ok := t.get(id)
	if !ok {
		return nil, ErrNotFound
	}
	path := []string{n.ID}
	for !n.IsRoot() {
		parent, ok := t.get(n.ParentID)
		if !ok {
			// parent dropped by a concurrent delete; the path ends here
			break
		}
		path = append(path, parent.ID)
		n = parent
	}
	return path, nil
}

// Children returns the child id list of parentID (ids.None for the root list).
func (t *Tree) Children(parentID string) ([]string, bool) {
	if ids.IsRoot(parentID) {
		return ids.Clone(t.rootIDs), true
	}
	n, ok := t.get(parentID)
	if !ok {
		return nil, false
	}
	return ids.Clone(n.Children), true
}

// Pagination returns the load state of parentID's child list.
func (t *Tree) Pagination(parentID string) (Pagination, bool) {
	if ids.IsRoot(parentID) {
		return t.rootPagination, true
	}
	n, ok := t.get(parentID)
	if !ok {
		return Pagination{}, false
	}
	return n.Pagination, true
}

// Count returns the server-side child total of parentID: commentsCount for
// the root, repliesCount for a node.
func (t *Tree) Count(parentID string) (int, bool) {
	if ids.IsRoot(parentID) {
		return t.commentsCount, true
	}
	n, ok := t.get(parentID)
	if !ok {
		return 0, false
	}
	return n.RepliesCount, true
}

// SetPagination replaces the load state of parentID's child list.
func (t *Tree) SetPagination(parentID string, p Pagination) *Tree {
	if p.NextPage < 1 {
		p.NextPage = 1
	}
	if ids.IsRoot(parentID) {
		c := t.copy()
		c.rootPagination = p
		return c
	}
	return t.update(parentID, func(n *Node) { n.Pagination = p })
}

// SetCount sets the child total of parentID. The value is clamped so it never
// drops below the number of loaded children.
func (t *Tree) SetCount(parentID string, count int) *Tree {
	if ids.IsRoot(parentID) {
		c := t.copy()
		c.commentsCount = max(count, len(c.rootIDs))
		return c
	}
	return t.update(parentID, func(n *Node) {
		n.RepliesCount = max(count, len(n.Children))
	})
}

// ReplaceNode applies patch to a copy of the node and stores it. Identity and
// structure (ID, PostID, ParentID, Children) are kept as they were; use the
// structural operations to change those. Missing ids leave the tree as is.
func (t *Tree) ReplaceNode(id string, patch func(n *Node)) *Tree {
	return t.update(id, func(n *Node) {
		keepID, keepPost, keepParent, keepChildren := n.ID, n.PostID, n.ParentID, n.Children
		patch(n)
		n.ID, n.PostID, n.ParentID, n.Children = keepID, keepPost, keepParent, keepChildren
		if n.LikesCount < 0 {
			n.LikesCount = 0
		}
		n.RepliesCount = max(n.RepliesCount, len(n.Children))
	})
}

// InsertChild puts n at the head of parentID's child list and bumps that
// list's counter by one. The parent must be materialized and n.ID must be new.
// n.Children is ignored: a fresh node has no materialized replies.
func (t *Tree) InsertChild(parentID string, n Node) *Tree {
	if n.ID == "" || t.Has(n.ID) {
		return t
	}
	node := n.clone()
	node.PostID = t.postID
	node.ParentID = parentID
	node.Children = []string{}

	if ids.IsRoot(parentID) {
		c := t.copy()
		c.nodes, _, _ = c.nodes.Insert([]byte(node.ID), node)
		c.rootIDs = ids.Prepend(c.rootIDs, node.ID)
		c.commentsCount = max(c.commentsCount+1, len(c.rootIDs))
		return c
	}

	parent, ok := t.get(parentID)
	if !ok {
		return t
	}
	p := parent.clone()
	p.Children = ids.Prepend(p.Children, node.ID)
	p.RepliesCount = max(p.RepliesCount+1, len(p.Children))

	txn := t.nodes.Txn()
	txn.Insert([]byte(node.ID), node)
	txn.Insert([]byte(p.ID), p)
	c := t.copy()
	c.nodes = txn.Commit()
	return c
}

// AppendChildren registers nodes at the tail of parentID's child list in the
// given order, skipping ids the tree already holds. Counters are not touched.
// Child lists of the given nodes are ignored; register their replies with a
// further AppendChildren call on each node.
// It returns the new tree and the ids that were appended.
func (t *Tree) AppendChildren(parentID string, nodes []Node) (*Tree, []string) {
	var list []string
	if ids.IsRoot(parentID) {
		list = t.rootIDs
	} else {
		parent, ok := t.get(parentID)
		if !ok {
			return t, nil
		}
		list = parent.Children
	}

	txn := t.nodes.Txn()
	var fresh []string
	for _, n := range nodes {
		if n.ID == "" || ids.Contains(fresh, n.ID) {
			continue
		}
		if _, exists := txn.Get([]byte(n.ID)); exists {
			continue
		}
		node := n.clone()
		node.PostID = t.postID
		node.ParentID = parentID
		node.Children = []string{}
		txn.Insert([]byte(node.ID), node)
		fresh = append(fresh, node.ID)
	}
	if len(fresh) == 0 {
		return t, nil
	}
	list, added := ids.AppendUnique(list, fresh...)

	c := t.copy()
	if ids.IsRoot(parentID) {
		c.rootIDs = list
	} else {
		parent, _ := txn.Get([]byte(parentID))
		p := parent.clone()
		p.Children = list
		p.RepliesCount = max(p.RepliesCount, len(list))
		txn.Insert([]byte(p.ID), p)
	}
	c.nodes = txn.Commit()
	return c, added
}

// RemoveSubtree deletes id and all of its descendants, unlinks id from its
// parent list and decrements the direct parent's counter by one.
func (t *Tree) RemoveSubtree(id string) *Tree {
	c, _ := t.Detach(id)
	return c
}

// ClearLevel drops every subtree hanging off parentID's child list without
// touching its counter. The offset/replace paging policy uses it on the root
// list before merging the requested page.
func (t *Tree) ClearLevel(parentID string) *Tree {
	list, ok := t.Children(parentID)
	if !ok || len(list) == 0 {
		return t
	}
	txn := t.nodes.Txn()
	for _, id := range list {
		t.deleteDescendants(txn, id)
		txn.Delete([]byte(id))
	}
	c := t.copy()
	if ids.IsRoot(parentID) {
		c.rootIDs = []string{}
	} else {
		parent, _ := txn.Get([]byte(parentID))
		p := parent.clone()
		p.Children = []string{}
		txn.Insert([]byte(p.ID), p)
	}
	c.nodes = txn.Commit()
	return c
}

// Walk visits nodes depth-first in display order (root list first, each node
// followed by its replies). Returning false stops the walk.
func (t *Tree) Walk(fn func(depth int, n Node) bool) {
	var visit func(list []string, depth int) bool
	visit = func(list []string, depth int) bool {
		for _, id := range list {
			n, ok := t.get(id)
			if !ok {
				continue
			}
			if !fn(depth, *n.clone()) {
				return false
			}
			if !visit(n.Children, depth+1) {
				return false
			}
		}
		return true
	}
	visit(t.rootIDs, 0)
}

func (t *Tree) get(id string) (*Node, bool) {
	if id == "" {
		return nil, false
	}
	return t.nodes.Get([]byte(id))
}

func (t *Tree) copy() *Tree {
	c := *t
	c.rootIDs = ids.Clone(t.rootIDs)
	return &c
}

func (t *Tree) update(id string, fn func(n *Node)) *Tree {
	n, ok := t.get(id)
	if !ok {
		return t
	}
	updated := n.clone()
	fn(updated)
	c := t.copy()
	c.nodes, _, _ = c.nodes.Insert([]byte(id), updated)
	return c
}

func (t *Tree) deleteDescendants(txn *iradix.Txn[*Node], id string) []*Node {
	n, ok := txn.Get([]byte(id))
	if !ok {
		return nil
	}
	var removed []*Node
	for _, child := range n.Children {
		cn, ok := txn.Get([]byte(child))
		if !ok {
			continue
		}
		removed = append(removed, cn)
		removed = append(removed, t.deleteDescendants(txn, child)...)
		txn.Delete([]byte(child))
	}
	return removed
}
