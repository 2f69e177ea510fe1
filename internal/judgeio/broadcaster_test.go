package judgeio_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/kkloberdanz/judgerun/internal/judgeio"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSubscribeReturnsCurrentValueImmediately(t *testing.T) {
	b := judgeio.New(1)
	sub := b.Subscribe()
	defer sub.Close()

	v, ok, err := sub.Next(context.Background())
	if err != nil || !ok {
		t.Fatalf("expected immediate value, got v=%v ok=%v err=%v", v, ok, err)
	}
	if v != 1 {
		t.Fatalf("expected 1, got %v", v)
	}
}

func TestPublishWakesBlockedSubscriber(t *testing.T) {
	b := judgeio.New(0)
	sub := b.Subscribe()
	defer sub.Close()

	if _, _, err := sub.Next(context.Background()); err != nil {
		t.Fatalf("initial Next: %v", err)
	}

	result := make(chan int, 1)
	go func() {
		v, ok, err := sub.Next(context.Background())
		if err != nil || !ok {
			t.Errorf("unexpected Next result: v=%v ok=%v err=%v", v, ok, err)
			return
		}
		result <- v
	}()

	time.Sleep(20 * time.Millisecond)
	if err := b.Publish(42); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case v := <-result:
		if v != 42 {
			t.Fatalf("expected 42, got %v", v)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for blocked Next to wake up")
	}
}

func TestCloseUnblocksSubscribersWithNoNewValue(t *testing.T) {
	b := judgeio.New("start")
	sub := b.Subscribe()
	defer sub.Close()

	if _, _, err := sub.Next(context.Background()); err != nil {
		t.Fatalf("initial Next: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, ok, err := sub.Next(context.Background())
		if err != nil {
			t.Errorf("expected no error on close, got %v", err)
		}
		if ok {
			t.Error("expected ok=false once the broadcaster is closed with nothing new")
		}
	}()

	time.Sleep(20 * time.Millisecond)
	b.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Next to unblock after Close")
	}
}

func TestPublishAfterCloseReturnsErrClosed(t *testing.T) {
	b := judgeio.New(0)
	b.Close()
	if err := b.Publish(1); !errors.Is(err, judgeio.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestNextRespectsContextCancellation(t *testing.T) {
	b := judgeio.New(0)
	sub := b.Subscribe()
	defer sub.Close()
	if _, _, err := sub.Next(context.Background()); err != nil {
		t.Fatalf("initial Next: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, _, err := sub.Next(ctx)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Next to respect cancellation")
	}
}

func TestSubscriberCloseUnblocksNext(t *testing.T) {
	b := judgeio.New(0)
	sub := b.Subscribe()
	if _, _, err := sub.Next(context.Background()); err != nil {
		t.Fatalf("initial Next: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, _, err := sub.Next(context.Background())
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	sub.Close()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected an error once the subscriber is closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Next to unblock after subscriber Close")
	}
}

func TestCurrentReflectsLatestPublish(t *testing.T) {
	b := judgeio.New("a")
	if b.Current() != "a" {
		t.Fatalf("expected initial value, got %q", b.Current())
	}
	if err := b.Publish("b"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if b.Current() != "b" {
		t.Fatalf("expected updated value, got %q", b.Current())
	}
}
