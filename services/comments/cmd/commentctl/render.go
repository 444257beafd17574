package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/example/feed-platform/services/comments/internal/engine"
	"github.com/example/feed-platform/services/comments/internal/viewer"
)

func renderView(w io.Writer, v viewer.ThreadView, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	more := "end"
	if v.HasMore {
		more = fmt.Sprintf("next page %d", v.NextPage)
	}
	if _, err := fmt.Fprintf(w, "post %s (%s viewer): %d comments, %s\n", v.PostID, v.Viewer, v.CommentsCount, more); err != nil {
		return err
	}
	return renderComments(w, v.Comments, 0)
}

func renderComments(w io.Writer, list []viewer.CommentView, depth int) error {
	indent := strings.Repeat("  ", depth)
	for _, c := range list {
		if _, err := fmt.Fprintf(w, "%s- %s\n", indent, commentLine(c)); err != nil {
			return err
		}
		if err := renderComments(w, c.Replies, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func commentLine(c viewer.CommentView) string {
	var b strings.Builder
	author := c.AuthorName
	if author == "" {
		author = c.AuthorID
	}
	fmt.Fprintf(&b, "[%s] %s: %s", c.ID, author, c.Content)

	var tags []string
	if c.LikesCount > 0 || c.LikedByMe {
		like := fmt.Sprintf("%d likes", c.LikesCount)
		if c.LikedByMe {
			like += ", liked"
		}
		tags = append(tags, like)
	}
	if c.RepliesCount > 0 {
		r := fmt.Sprintf("%d replies", c.RepliesCount)
		if c.HasMore {
			r += " +more"
		}
		tags = append(tags, r)
	}
	if c.EditedAt != nil {
		tags = append(tags, "edited")
	}
	if c.Mine {
		tags = append(tags, "mine")
	}
	if c.Pending {
		tags = append(tags, "pending")
	}
	if len(tags) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(tags, "; "))
	}
	return b.String()
}

func renderChange(w io.Writer, ch engine.Change) error {
	status := "applied"
	if !ch.Applied {
		status = "skipped"
		if ch.Reason != nil {
			status += ": " + ch.Reason.Error()
		}
	}
	parts := []string{string(ch.Kind)}
	if ch.ID != "" {
		parts = append(parts, ch.ID)
	}
	parts = append(parts, status)
	_, err := fmt.Fprintln(w, strings.Join(parts, " "))
	return err
}
