package run

import (
	"context"
	"errors"
	"net/http"
	"testing"
)

func TestRun_ExitCodes(t *testing.T) {
	r := New(nil)
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"clean", nil, 0},
		{"server closed", http.ErrServerClosed, 0},
		{"failure", errors.New("listen: address in use"), 1},
	}
	for _, tc := range cases {
		got := r.Run(context.Background(), func(context.Context) error { return tc.err })
		if got != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, got)
		}
	}
}

func TestRun_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	block := make(chan struct{})
	defer close(block)

	got := New(nil).Run(ctx, func(context.Context) error {
		<-block
		return nil
	})
	if got != 0 {
		t.Fatalf("expected 0 on shutdown, got %d", got)
	}
}

func TestGraceful(t *testing.T) {
	called := false
	New(nil).Graceful(func(ctx context.Context) error {
		called = true
		if _, ok := ctx.Deadline(); !ok {
			t.Fatal("expected a deadline")
		}
		return errors.New("ignored")
	})
	if !called {
		t.Fatal("expected shutdown to be called")
	}
}
