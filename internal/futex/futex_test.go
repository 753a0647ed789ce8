package futex

import (
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc/codes"

	"pkt.systems/hwmcore/internal/rterror"
)

func TestPostAndTryWaitAreBinary(t *testing.T) {
	var word uint32
	f := New(&word)

	if f.TryWait() {
		t.Fatalf("TryWait on unposted futex returned true")
	}
	if err := f.Post(); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if !f.TryWait() {
		t.Fatalf("TryWait after Post returned false")
	}
	if f.TryWait() {
		t.Fatalf("TryWait consumed the semaphore twice")
	}

	// Double post collapses to one token.
	if err := f.Post(); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if err := f.Post(); err != nil {
		t.Fatalf("second Post: %v", err)
	}
	if !f.TryWait() {
		t.Fatalf("TryWait after double Post returned false")
	}
	if f.TryWait() {
		t.Fatalf("double Post yielded two tokens")
	}
}

func TestWaitBlocksUntilPosted(t *testing.T) {
	var word uint32
	f := New(&word)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(10 * time.Millisecond)
		if err := f.Post(); err != nil {
			t.Errorf("Post: %v", err)
		}
	}()

	if err := f.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	wg.Wait()
	if f.TryWait() {
		t.Fatalf("Wait did not consume the semaphore")
	}
}

func TestWaitForExpires(t *testing.T) {
	var word uint32
	f := New(&word)

	started := time.Now()
	ok, err := f.WaitFor(20 * time.Millisecond)
	if err != nil {
		t.Fatalf("WaitFor: %v", err)
	}
	if ok {
		t.Fatalf("WaitFor consumed an unposted semaphore")
	}
	if elapsed := time.Since(started); elapsed < 15*time.Millisecond {
		t.Fatalf("WaitFor returned after %v, expected to wait near 20ms", elapsed)
	}
}

func TestWaitForConsumesPendingPost(t *testing.T) {
	var word uint32
	f := New(&word)
	if err := f.Post(); err != nil {
		t.Fatalf("Post: %v", err)
	}
	ok, err := f.WaitFor(time.Second)
	if err != nil {
		t.Fatalf("WaitFor: %v", err)
	}
	if !ok {
		t.Fatalf("WaitFor missed a pending post")
	}
}

func TestWaitForWakesOnConcurrentPost(t *testing.T) {
	var word uint32
	f := New(&word)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(10 * time.Millisecond)
		if err := f.Post(); err != nil {
			t.Errorf("Post: %v", err)
		}
	}()

	ok, err := f.WaitFor(5 * time.Second)
	if err != nil {
		t.Fatalf("WaitFor: %v", err)
	}
	if !ok {
		t.Fatalf("WaitFor missed a concurrent post")
	}
	wg.Wait()
}

func TestFromSegmentRejectsNil(t *testing.T) {
	if _, err := FromSegment(nil); rterror.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected invalid argument for nil segment, got %v", err)
	}
}
