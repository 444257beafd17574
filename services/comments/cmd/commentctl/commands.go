package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/example/feed-platform/internal/platform/events"
	"github.com/example/feed-platform/services/comments/internal/engine"
	"github.com/example/feed-platform/services/comments/internal/thread"
	"github.com/example/feed-platform/services/comments/internal/viewer"
)

// maxExpandRounds bounds the search for a comment that is not on the
// pages already loaded.
const maxExpandRounds = 50

var (
	threadCmd = &cobra.Command{
		Use:   "thread",
		Short: "Load and print a post's comment thread",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, closeFn, err := env.mount(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			return renderView(cmd.OutOrStdout(), a.View(), flagJSON)
		},
	}

	commentCmd = &cobra.Command{
		Use:   "comment [text]",
		Short: "Add a root comment to a post",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdapter(cmd, "", func(ctx context.Context, a *viewer.Adapter) (engine.Change, error) {
				return a.AddComment(ctx, strings.Join(args, " "))
			})
		},
	}

	parentID string
	replyCmd = &cobra.Command{
		Use:   "reply --parent ID [text]",
		Short: "Reply to a comment",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parent := strings.TrimSpace(parentID)
			if parent == "" {
				return fmt.Errorf("--parent is required")
			}
			return withAdapter(cmd, parent, func(ctx context.Context, a *viewer.Adapter) (engine.Change, error) {
				return a.AddReply(ctx, parent, strings.Join(args, " "))
			})
		},
	}

	editCmd = &cobra.Command{
		Use:   "edit ID [text]",
		Short: "Replace the content of one of your comments",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			return withAdapter(cmd, id, func(ctx context.Context, a *viewer.Adapter) (engine.Change, error) {
				return a.EditComment(ctx, id, strings.Join(args[1:], " "))
			})
		},
	}

	deleteCmd = &cobra.Command{
		Use:   "delete ID",
		Short: "Delete one of your comments and its replies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			return withAdapter(cmd, id, func(ctx context.Context, a *viewer.Adapter) (engine.Change, error) {
				return a.DeleteComment(ctx, id)
			})
		},
	}

	likeCmd = &cobra.Command{
		Use:   "like ID",
		Short: "Toggle your like on a comment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			return withAdapter(cmd, id, func(ctx context.Context, a *viewer.Adapter) (engine.Change, error) {
				ch, err := a.ToggleLike(ctx, id)
				if err == nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "liked=%t\n", ch.Liked)
				}
				return ch, err
			})
		},
	}

	compareCmd = &cobra.Command{
		Use:   "compare",
		Short: "Mount the feed, post and profile viewers on one post side by side",
		Long: `compare loads the same post in all three viewers concurrently. Each
viewer keeps its own cache, so the output shows how paging policy shapes
what each screen holds.`,
		Args: cobra.NoArgs,
		RunE: runCompare,
	}

	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Print confirmed comment events as they are published",
		Args:  cobra.NoArgs,
		RunE:  runWatch,
	}
)

func init() {
	replyCmd.Flags().StringVar(&parentID, "parent", "", "comment id to reply to")
}

// withAdapter mounts the selected viewer, makes sure target (when set) is
// loaded, runs op and prints the change followed by the thread.
func withAdapter(cmd *cobra.Command, target string, op func(context.Context, *viewer.Adapter) (engine.Change, error)) error {
	ctx := cmd.Context()
	a, closeFn, err := env.mount(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	if target != "" {
		if err := ensureLoaded(ctx, a, target); err != nil {
			return err
		}
	}
	ch, err := op(ctx, a)
	if ch.Kind != "" {
		if rerr := renderChange(cmd.ErrOrStderr(), ch); rerr != nil {
			return rerr
		}
	}
	if err != nil {
		return err
	}
	return renderView(cmd.OutOrStdout(), a.View(), flagJSON)
}

// preload loads up to pages root pages and, when replies is set, the first
// page of replies under every loaded comment that has more.
func preload(ctx context.Context, a *viewer.Adapter, pages int, replies bool) error {
	for i := 0; i < pages; i++ {
		ch, err := a.LoadMoreComments(ctx)
		if err != nil {
			return err
		}
		if !ch.Applied {
			break
		}
	}
	if !replies {
		return nil
	}
	for _, id := range expandable(a.Tree()) {
		if _, err := a.LoadMoreReplies(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// ensureLoaded pages through the post until id is in the tree: root pages
// first, then reply pages level by level.
func ensureLoaded(ctx context.Context, a *viewer.Adapter, id string) error {
	for round := 0; round < maxExpandRounds; round++ {
		t := a.Tree()
		if t == nil {
			return viewer.ErrClosed
		}
		if t.Has(id) {
			return nil
		}

		if t.RootPagination().HasMore {
			ch, err := a.LoadMoreComments(ctx)
			if err != nil {
				return err
			}
			if ch.Applied {
				continue
			}
		}

		progressed := false
		for _, parent := range expandable(t) {
			ch, err := a.LoadMoreReplies(ctx, parent)
			if err != nil {
				return err
			}
			progressed = progressed || ch.Applied
			if cur := a.Tree(); cur != nil && cur.Has(id) {
				return nil
			}
		}
		if !progressed {
			break
		}
	}
	return fmt.Errorf("%w: %s", viewer.ErrNotLoaded, id)
}

func expandable(t *thread.Tree) []string {
	if t == nil {
		return nil
	}
	var out []string
	t.Walk(func(_ int, n thread.Node) bool {
		if n.Pagination.HasMore && !n.Pagination.Loading {
			out = append(out, n.ID)
		}
		return true
	})
	return out
}

func runCompare(cmd *cobra.Command, _ []string) error {
	if flagPostID == "" {
		return errNoPost
	}
	kinds := []viewer.Kind{viewer.KindFeed, viewer.KindPost, viewer.KindProfile}
	views := make([]viewer.ThreadView, len(kinds))

	g, ctx := errgroup.WithContext(cmd.Context())
	for i, kind := range kinds {
		g.Go(func() error {
			a, closeFn, err := env.open(kind, flagPostID)
			if err != nil {
				return fmt.Errorf("%s: %w", kind, err)
			}
			defer closeFn()
			if err := preload(ctx, a, flagPages, flagReplies); err != nil {
				return fmt.Errorf("%s: %w", kind, err)
			}
			views[i] = a.View()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, v := range views {
		if err := renderView(out, v, flagJSON); err != nil {
			return err
		}
		if !flagJSON {
			fmt.Fprintln(out)
		}
	}
	return nil
}

func runWatch(cmd *cobra.Command, _ []string) error {
	var mu sync.Mutex
	out := cmd.OutOrStdout()
	sub, err := events.Subscribe(env.nc, events.SubjectAllComments, env.log, func(subject string, ev events.Event) {
		mu.Lock()
		defer mu.Unlock()
		_ = printEvent(out, subject, ev)
	})
	if err != nil {
		return err
	}
	defer func() { _ = sub.Unsubscribe() }()

	fmt.Fprintf(cmd.ErrOrStderr(), "watching %s, Ctrl-C to stop\n", events.SubjectAllComments)
	<-cmd.Context().Done()
	return nil
}

func printEvent(w io.Writer, subject string, ev events.Event) error {
	var props []string
	for _, k := range []string{"post_id", "comment_id", "parent_id", "viewer"} {
		if v, ok := ev.Properties[k]; ok && v != "" {
			props = append(props, fmt.Sprintf("%s=%v", k, v))
		}
	}
	_, err := fmt.Fprintf(w, "%s %s user=%s %s\n",
		ev.OccurredAt.Format("15:04:05"), subject, ev.UserID, strings.Join(props, " "))
	return err
}
