package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"redline-go/internal/ingress"
)

func testLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, nil))
}

func TestSource_PublishAndConsume(t *testing.T) {
	src := NewSource(10, testLogger(io.Discard))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i := 0; i < 3; i++ {
		if err := src.Publish(ctx, &ingress.Record{Value: []byte(`{}`)}); err != nil {
			t.Fatalf("Publish error: %v", err)
		}
	}
	if src.Len() != 3 {
		t.Errorf("Len = %v, want 3", src.Len())
	}

	var (
		mu       sync.Mutex
		received int
	)
	done := make(chan error, 1)
	go func() {
		done <- src.Start(ctx, func(ctx context.Context, rec *ingress.Record) error {
			mu.Lock()
			received++
			mu.Unlock()
			return nil
		})
	}()

	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		n := received
		mu.Unlock()
		if n == 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("received = %v, want 3", n)
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := src.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if err := <-done; err != nil {
		t.Errorf("Start error = %v, want nil after Close", err)
	}
}

func TestSource_PublishAfterClose(t *testing.T) {
	src := NewSource(1, testLogger(io.Discard))
	_ = src.Close()

	err := src.Publish(context.Background(), &ingress.Record{})
	if !errors.Is(err, ErrSourceClosed) {
		t.Errorf("Publish error = %v, want ErrSourceClosed", err)
	}
	if err := src.Close(); err != nil {
		t.Errorf("second Close error = %v", err)
	}
}

func TestSource_PublishRespectsContext(t *testing.T) {
	src := NewSource(1, testLogger(io.Discard))
	defer src.Close()

	if err := src.Publish(context.Background(), &ingress.Record{}); err != nil {
		t.Fatalf("Publish error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := src.Publish(ctx, &ingress.Record{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Publish error = %v, want DeadlineExceeded", err)
	}
}

func TestSource_CloseReleasesBlockedPublish(t *testing.T) {
	src := NewSource(1, testLogger(io.Discard))

	if err := src.Publish(context.Background(), &ingress.Record{}); err != nil {
		t.Fatalf("Publish error: %v", err)
	}

	published := make(chan error, 1)
	go func() {
		published <- src.Publish(context.Background(), &ingress.Record{})
	}()
	time.Sleep(20 * time.Millisecond)

	closed := make(chan error, 1)
	go func() { closed <- src.Close() }()

	select {
	case err := <-closed:
		if err != nil {
			t.Fatalf("Close error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked behind a pending Publish")
	}

	select {
	case err := <-published:
		if !errors.Is(err, ErrSourceClosed) {
			t.Errorf("Publish error = %v, want ErrSourceClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Publish still blocked after Close")
	}
}

func TestSource_LogsHandlerErrors(t *testing.T) {
	var buf bytes.Buffer
	src := NewSource(1, testLogger(&buf))
	ctx := context.Background()

	handled := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- src.Start(ctx, func(ctx context.Context, rec *ingress.Record) error {
			defer close(handled)
			return errors.New("store unavailable")
		})
	}()

	if err := src.Publish(ctx, &ingress.Record{Key: []byte("k1")}); err != nil {
		t.Fatalf("Publish error: %v", err)
	}

	select {
	case <-handled:
	case <-time.After(time.Second):
		t.Fatal("record was not handled")
	}

	if err := src.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if err := <-done; err != nil {
		t.Errorf("Start error = %v, want nil", err)
	}

	out := buf.String()
	if !strings.Contains(out, "failed to handle record") || !strings.Contains(out, "store unavailable") {
		t.Errorf("log output = %q, want handler failure", out)
	}
}
