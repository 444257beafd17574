// Package ids holds identifier helpers shared by the comment cache and the
// development API: provisional id generation, id comparison, newest-first
// ordering and the small list/set operations every tree update relies on.
//
// All list helpers return fresh slices and never write into their inputs, so
// callers can hand them slices that are shared between tree snapshots.
package ids

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// None is the parent id of a root-level comment.
const None = ""

const provisionalPrefix = "tmp-"

// NewProvisional returns a client-generated id for an optimistically added node.
func NewProvisional() string {
	return provisionalPrefix + uuid.NewString()
}

// IsProvisional reports whether id was produced by NewProvisional.
func IsProvisional(id string) bool {
	return strings.HasPrefix(id, provisionalPrefix)
}

// IsRoot reports whether parentID denotes the post itself.
func IsRoot(parentID string) bool {
	return parentID == None
}

// Equal compares two ids. Ids are opaque and compared byte for byte, the
// same rule Index and Contains use; callers trim user input at the edge.
func Equal(a, b string) bool {
	return a == b
}

// Compare orders two comments newest first. Ties on the timestamp fall back to
// the id, descending, so the order is total and stable across fetches.
func Compare(aCreated time.Time, aID string, bCreated time.Time, bID string) int {
	switch {
	case aCreated.After(bCreated):
		return -1
	case aCreated.Before(bCreated):
		return 1
	case aID > bID:
		return -1
	case aID < bID:
		return 1
	default:
		return 0
	}
}

// Index returns the position of id in list or -1.
func Index(list []string, id string) int {
	return slices.Index(list, id)
}

// Contains reports whether id is in list.
func Contains(list []string, id string) bool {
	return slices.Contains(list, id)
}

// Prepend returns a new list with id at the head. If id is already present
// the list is returned as a copy, unchanged.
func Prepend(list []string, id string) []string {
	if Contains(list, id) {
		return Clone(list)
	}
	out := make([]string, 0, len(list)+1)
	out = append(out, id)
	return append(out, list...)
}

// AppendUnique appends every id from add that is not already in list (or
// earlier in add). It returns the new list and the ids actually appended.
func AppendUnique(list []string, add ...string) ([]string, []string) {
	out := make([]string, len(list), len(list)+len(add))
	copy(out, list)
	var added []string
	for _, id := range add {
		if Contains(out, id) {
			continue
		}
		out = append(out, id)
		added = append(added, id)
	}
	return out, added
}

// Remove returns a new list without id and the index id was found at (-1 if
// it was absent).
func Remove(list []string, id string) ([]string, int) {
	i := Index(list, id)
	if i < 0 {
		return Clone(list), -1
	}
	return slices.Delete(slices.Clone(list), i, i+1), i
}

// InsertAt returns a new list with id inserted at i (clamped to the list
// bounds). A no-op copy if id is already present.
func InsertAt(list []string, i int, id string) []string {
	if Contains(list, id) {
		return Clone(list)
	}
	if i < 0 {
		i = 0
	}
	if i > len(list) {
		i = len(list)
	}
	return slices.Insert(slices.Clone(list), i, id)
}

// Replace returns a new list with old swapped for repl in place.
func Replace(list []string, old, repl string) []string {
	out := Clone(list)
	if i := Index(out, old); i >= 0 {
		out[i] = repl
	}
	return out
}

// Dedup returns list without repeated ids, keeping first occurrences.
func Dedup(list []string) []string {
	out, _ := AppendUnique(nil, list...)
	return out
}

// Clone copies list. A nil list stays nil.
func Clone(list []string) []string {
	return slices.Clone(list)
}
