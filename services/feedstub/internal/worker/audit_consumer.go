package worker

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/feed-platform/internal/platform/events"
)

// Tally counts confirmed comment events by name and remembers the most
// recent ones. It is safe for concurrent use.
type Tally struct {
	mu     sync.Mutex
	counts map[string]int
	recent []events.Event
	keep   int
}

func NewTally(keep int) *Tally {
	if keep <= 0 {
		keep = 50
	}
	return &Tally{counts: make(map[string]int), keep: keep}
}

func (t *Tally) Record(ev events.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[ev.EventName]++
	t.recent = append(t.recent, ev)
	if len(t.recent) > t.keep {
		t.recent = t.recent[len(t.recent)-t.keep:]
	}
}

// Snapshot returns copies of the counters and the recent events, newest last.
func (t *Tally) Snapshot() (map[string]int, []events.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	counts := make(map[string]int, len(t.counts))
	for k, v := range t.counts {
		counts[k] = v
	}
	return counts, append([]events.Event(nil), t.recent...)
}

var errUnknownSubject = errors.New("unknown subject")

// handle decodes one message body. Subjects outside social.comments.* are
// rejected so a misrouted stream is visible in the logs.
func handle(t *Tally, subject string, data []byte) error {
	if !strings.HasPrefix(subject, "social.comments.") {
		return errUnknownSubject
	}
	ev, err := events.Decode(data)
	if err != nil {
		return err
	}
	if ev.EventName == "" {
		ev.EventName = strings.TrimPrefix(subject, "social.comments.")
	}
	t.Record(ev)
	return nil
}

// StartAuditConsumer pulls social.comments.* from JetStream into t until ctx
// is done. Undecodable messages are terminated, never redelivered.
func StartAuditConsumer(ctx context.Context, nc *nats.Conn, t *Tally, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	js, err := nc.JetStream()
	if err != nil {
		log.Error("audit_consumer: jetstream", zap.Error(err))
		return
	}

	sub, err := js.PullSubscribe(events.SubjectAllComments, "feedstub_audit")
	if err != nil {
		log.Error("audit_consumer: subscribe", zap.Error(err))
		return
	}

	go func() {
		batchSize := envInt("WORKER_BATCH_SIZE", 100)
		batchInterval := envInt("WORKER_BATCH_INTERVAL_MS", 2000)
		for {
			select {
			case <-ctx.Done():
				_ = sub.Drain()
				return
			default:
			}

			msgs, err := sub.Fetch(batchSize, nats.MaxWait(time.Duration(batchInterval)*time.Millisecond))
			if err != nil {
				if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
					continue
				}
				log.Warn("audit_consumer: fetch", zap.Error(err))
				time.Sleep(1 * time.Second)
				continue
			}

			for _, m := range msgs {
				if err := handle(t, m.Subject, m.Data); err != nil {
					log.Warn("audit_consumer: invalid event", zap.String("subject", m.Subject), zap.Error(err))
					if err := m.Term(); err != nil {
						log.Warn("audit_consumer: term", zap.Error(err))
					}
					continue
				}
				if err := m.Ack(); err != nil {
					log.Warn("audit_consumer: ack", zap.Error(err))
				}
			}
		}
	}()
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
