package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/feed-platform/internal/platform/auth"
	"github.com/example/feed-platform/internal/platform/events"
	"github.com/example/feed-platform/internal/platform/logging"
	"github.com/example/feed-platform/internal/platform/natsconn"
	"github.com/example/feed-platform/services/comments/internal/gqlclient"
	"github.com/example/feed-platform/services/comments/internal/paging"
	"github.com/example/feed-platform/services/comments/internal/viewer"
)

var (
	rootCmd = &cobra.Command{
		Use:   "commentctl",
		Short: "Browse and change post comments through the cached viewers",
		Long: `commentctl mounts the same comment viewers the feed, post and profile
screens use, runs one operation against the remote API and prints the
resulting thread.`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
		PersistentPostRun: teardown,
	}

	configPath  string
	flagURL     string
	flagToken   string
	flagViewer  string
	flagPolicy  string
	flagPostID  string
	flagPages   int
	flagReplies bool
	flagJSON    bool

	env *appEnv
)

// appEnv is what setup builds once per invocation.
type appEnv struct {
	cfg      cliConfig
	log      *zap.Logger
	client   *gqlclient.Client
	session  auth.Session
	notifier viewer.Notifier
	nc       *nats.Conn
	js       nats.JetStreamContext
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "YAML config file (overrides COMMENTS_* env)")
	pf.StringVar(&flagURL, "url", "", "GraphQL endpoint")
	pf.StringVar(&flagToken, "token", "", "bearer token for the signed-in user")
	pf.StringVar(&flagViewer, "viewer", string(viewer.KindPost), "viewer to mount: feed, post or profile")
	pf.StringVar(&flagPolicy, "policy", "", "root paging policy: append or replace (default per viewer)")
	pf.StringVarP(&flagPostID, "post", "p", "", "post id")
	pf.IntVar(&flagPages, "pages", 1, "root pages to load before the operation")
	pf.BoolVar(&flagReplies, "replies", false, "load one page of replies under every loaded comment")
	pf.BoolVar(&flagJSON, "json", false, "print the thread view as JSON")

	rootCmd.AddCommand(threadCmd, commentCmd, replyCmd, editCmd, deleteCmd, likeCmd, compareCmd, watchCmd)
}

func setup(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(configPath, os.Getenv)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("url") {
		cfg.GraphQLURL = flagURL
	}
	if cmd.Flags().Changed("token") {
		cfg.Token = flagToken
	}

	log, err := logging.NewConsole(cfg.LogLevel)
	if err != nil {
		return err
	}

	var verifier *auth.JWTVerifier
	if cfg.JWTSecret != "" {
		verifier = &auth.JWTVerifier{Secret: []byte(cfg.JWTSecret)}
	}
	session, err := auth.NewSession(cfg.Token, verifier)
	if err != nil {
		return fmt.Errorf("token: %w", err)
	}

	e := &appEnv{
		cfg:     cfg,
		log:     log,
		session: session,
		client: gqlclient.New(cfg.GraphQLURL,
			gqlclient.WithTokens(session),
			gqlclient.WithRateLimit(cfg.RPS, cfg.Burst),
		),
	}
	if cfg.Publish || cmd == watchCmd {
		if err := e.connectNATS(); err != nil {
			if cmd == watchCmd {
				return err
			}
			log.Warn("nats unavailable, change events disabled", zap.Error(err))
		}
	}
	env = e
	return nil
}

func (e *appEnv) connectNATS() error {
	nc, err := natsconn.Connect(natsconn.Options{URL: e.cfg.NATSURL, Name: "commentctl"})
	if err != nil {
		return err
	}
	e.nc = nc
	if !e.cfg.Publish {
		return nil
	}
	js, err := nc.JetStream()
	if err != nil {
		return err
	}
	e.js = js
	e.notifier = events.New(js, e.log)
	return nil
}

func teardown(_ *cobra.Command, _ []string) {
	if env == nil {
		return
	}
	if env.js != nil {
		select {
		case <-env.js.PublishAsyncComplete():
		case <-time.After(3 * time.Second):
			env.log.Warn("events: publish still pending at exit")
		}
	}
	if env.nc != nil {
		env.nc.Close()
	}
	_ = env.log.Sync()
}

var errNoPost = errors.New("--post is required")

// viewerOptions builds adapter options for kind from the resolved env.
func (e *appEnv) viewerOptions(kind viewer.Kind, postID string) (viewer.Options, error) {
	o := viewer.Options{
		Kind:          kind,
		PostID:        postID,
		Client:        e.client,
		Session:       e.session,
		Logger:        e.log,
		PageSize:      e.cfg.PageSize,
		ReplyPageSize: e.cfg.ReplyPageSize,
		Notifier:      e.notifier,
	}
	if flagPolicy != "" {
		p, err := paging.ParsePolicy(flagPolicy)
		if err != nil {
			return viewer.Options{}, err
		}
		o.Policy = p
	}
	return o, nil
}

// mount opens the viewer selected by --viewer on --post and loads the
// requested pages. Feed and profile viewers go through their collection so
// they carry the same defaults the screens use.
func (e *appEnv) mount(ctx context.Context) (*viewer.Adapter, func(), error) {
	if flagPostID == "" {
		return nil, nil, errNoPost
	}
	a, closeFn, err := e.open(viewer.Kind(flagViewer), flagPostID)
	if err != nil {
		return nil, nil, err
	}
	if err := preload(ctx, a, flagPages, flagReplies); err != nil {
		closeFn()
		return nil, nil, err
	}
	return a, closeFn, nil
}

func (e *appEnv) open(kind viewer.Kind, postID string) (*viewer.Adapter, func(), error) {
	switch kind {
	case viewer.KindFeed, viewer.KindPost, viewer.KindProfile:
	default:
		return nil, nil, fmt.Errorf("unknown viewer %q", kind)
	}
	o, err := e.viewerOptions(kind, postID)
	if err != nil {
		return nil, nil, err
	}
	switch {
	case flagPolicy != "":
		// an explicit policy bypasses the per-screen defaults
		a, err := viewer.New(o)
		if err != nil {
			return nil, nil, err
		}
		return a, a.Close, nil
	case kind == viewer.KindPost:
		a, err := viewer.NewSinglePost(o)
		if err != nil {
			return nil, nil, err
		}
		return a, a.Close, nil
	default:
		var c *viewer.Collection
		if kind == viewer.KindFeed {
			c = viewer.NewFeed(o)
		} else {
			c = viewer.NewProfile(o)
		}
		a, err := c.Mount(postID)
		if err != nil {
			c.Close()
			return nil, nil, err
		}
		return a, c.Close, nil
	}
}
