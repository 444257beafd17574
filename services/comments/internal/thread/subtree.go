package thread

import (
	"github.com/example/feed-platform/internal/platform/ids"
)

// Subtree is a detached branch: enough to put it back exactly where it was.
type Subtree struct {
	ParentID string
	// Index is the position the root node held in its parent list.
	Index int
	// Nodes holds the branch in pre-order; Nodes[0] is the detached node.
	Nodes []Node
}

// RootID returns the id of the detached node.
func (s *Subtree) RootID() string {
	if s == nil || len(s.Nodes) == 0 {
		return ""
	}
	return s.Nodes[0].ID
}

// Detach removes id with its descendants and returns the removed branch.
// The direct parent's counter drops by exactly one; grandparents are not
// touched since counters model direct children only. A nil Subtree means id
// was not in the tree.
func (t *Tree) Detach(id string) (*Tree, *Subtree) {
	n, ok := t.get(id)
	if !ok {
		return t, nil
	}

	txn := t.nodes.Txn()
	removed := append([]*Node{n}, t.deleteDescendants(txn, id)...)
	txn.Delete([]byte(id))

	// A fetch in flight for a detached node is dropped as stale, so the
	// snapshot must not carry its loading flag back in.
	sub := &Subtree{ParentID: n.ParentID, Nodes: make([]Node, 0, len(removed))}
	for _, r := range removed {
		cp := *r.clone()
		cp.Pagination.Loading = false
		sub.Nodes = append(sub.Nodes, cp)
	}

	c := t.copy()
	if n.IsRoot() {
		c.rootIDs, sub.Index = ids.Remove(c.rootIDs, id)
		c.commentsCount = max(c.commentsCount-1, len(c.rootIDs), 0)
	} else if parent, ok := txn.Get([]byte(n.ParentID)); ok {
		p := parent.clone()
		p.Children, sub.Index = ids.Remove(p.Children, id)
		p.RepliesCount = max(p.RepliesCount-1, len(p.Children), 0)
		txn.Insert([]byte(p.ID), p)
	}
	c.nodes = txn.Commit()
	return c, sub
}

// Reattach puts a detached branch back at its recorded position and restores
// the parent's counter. Nodes that reappeared in the meantime (for example via
// a page fetch) are kept as they are. If the parent is gone or the branch root
// is already present the tree is returned unchanged.
func (t *Tree) Reattach(s *Subtree) *Tree {
	if s == nil || len(s.Nodes) == 0 || t.Has(s.RootID()) {
		return t
	}
	if !ids.IsRoot(s.ParentID) && !t.Has(s.ParentID) {
		return t
	}

	txn := t.nodes.Txn()
	for i := range s.Nodes {
		n := s.Nodes[i]
		if _, exists := txn.Get([]byte(n.ID)); exists {
			continue
		}
		restored := n.clone()
		restored.Pagination.Loading = false
		txn.Insert([]byte(n.ID), restored)
	}
	// drop child references to nodes that did not make it back
	for i := range s.Nodes {
		n, _ := txn.Get([]byte(s.Nodes[i].ID))
		kept := n.Children[:0:0]
		for _, child := range n.Children {
			if cn, ok := txn.Get([]byte(child)); ok && cn.ParentID == n.ID {
				kept = append(kept, child)
			}
		}
		if len(kept) != len(n.Children) {
			fixed := n.clone()
			fixed.Children = kept
			txn.Insert([]byte(fixed.ID), fixed)
		}
	}

	c := t.copy()
	root := s.RootID()
	if ids.IsRoot(s.ParentID) {
		c.rootIDs = ids.InsertAt(c.rootIDs, s.Index, root)
		c.commentsCount = max(c.commentsCount+1, len(c.rootIDs))
	} else {
		parent, _ := txn.Get([]byte(s.ParentID))
		p := parent.clone()
		p.Children = ids.InsertAt(p.Children, s.Index, root)
		p.RepliesCount = max(p.RepliesCount+1, len(p.Children))
		txn.Insert([]byte(p.ID), p)
	}
	c.nodes = txn.Commit()
	return c
}

// Rename moves a node to a new id in place: same list position, same
// children, same pagination. Used when a provisional id is confirmed.
//
// If newID is already materialized (the confirmed comment arrived through a
// page fetch first) the existing node wins: it takes the provisional node's
// list position and the provisional node is dropped. A counter pinned to its
// loaded length counted both nodes, so it follows the shorter list; a counter
// above that came from the server total and already counts the comment once.
// Otherwise counters are unchanged.
func (t *Tree) Rename(oldID, newID string) *Tree {
	if oldID == newID || newID == "" {
		return t
	}
	old, ok := t.get(oldID)
	if !ok {
		return t
	}

	txn := t.nodes.Txn()
	c := t.copy()

	if existing, clash := txn.Get([]byte(newID)); clash {
		t.deleteDescendants(txn, oldID)
		txn.Delete([]byte(oldID))
		moveInList := func(list []string) []string {
			if existing.ParentID != old.ParentID {
				out, _ := ids.Remove(list, oldID)
				return out
			}
			without, _ := ids.Remove(list, newID)
			return ids.Replace(without, oldID, newID)
		}
		settle := func(count, loaded int, list []string) int {
			if count <= loaded {
				return len(list)
			}
			return count
		}
		if old.IsRoot() {
			loaded := len(c.rootIDs)
			c.rootIDs = moveInList(c.rootIDs)
			c.commentsCount = settle(c.commentsCount, loaded, c.rootIDs)
		} else if parent, ok := txn.Get([]byte(old.ParentID)); ok {
			p := parent.clone()
			p.Children = moveInList(p.Children)
			p.RepliesCount = settle(p.RepliesCount, len(parent.Children), p.Children)
			txn.Insert([]byte(p.ID), p)
		}
		c.nodes = txn.Commit()
		return c
	}

	renamed := old.clone()
	renamed.ID = newID
	txn.Delete([]byte(oldID))
	txn.Insert([]byte(newID), renamed)
	for _, child := range renamed.Children {
		if cn, ok := txn.Get([]byte(child)); ok {
			moved := cn.clone()
			moved.ParentID = newID
			txn.Insert([]byte(child), moved)
		}
	}
	if old.IsRoot() {
		c.rootIDs = ids.Replace(c.rootIDs, oldID, newID)
	} else if parent, ok := txn.Get([]byte(old.ParentID)); ok {
		p := parent.clone()
		p.Children = ids.Replace(p.Children, oldID, newID)
		txn.Insert([]byte(p.ID), p)
	}
	c.nodes = txn.Commit()
	return c
}
