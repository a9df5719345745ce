package stream

import (
	"sync"
	"testing"
	"time"
)

func TestStopRegistryRequestAndTake(t *testing.T) {
	r := NewStopRegistry(0)

	if r.Has("c1") {
		t.Fatal("Has reported a stop before any request")
	}
	r.RequestStop("c1")
	if !r.Has("c1") {
		t.Fatal("Has missed a pending stop")
	}
	if r.Has("c2") {
		t.Fatal("stop leaked to another channel")
	}
	if !r.Take("c1") {
		t.Fatal("Take missed a pending stop")
	}
	if r.Take("c1") {
		t.Fatal("Take consumed the same stop twice")
	}
}

func TestStopRegistryClearIsIdempotent(t *testing.T) {
	r := NewStopRegistry(0)
	r.RequestStop("c1")
	r.Clear("c1")
	r.Clear("c1")
	if r.Has("c1") {
		t.Fatal("stop survived Clear")
	}
}

func TestStopRegistryRepeatedRequests(t *testing.T) {
	r := NewStopRegistry(0)
	r.RequestStop("c1")
	r.RequestStop("c1")
	if r.Count() != 1 {
		t.Fatalf("Count = %d, want 1", r.Count())
	}
}

func TestStopRegistryCleanupOld(t *testing.T) {
	r := NewStopRegistry(10 * time.Millisecond)
	r.RequestStop("old")
	time.Sleep(20 * time.Millisecond)
	r.RequestStop("fresh")

	if dropped := r.CleanupOld(); dropped != 1 {
		t.Fatalf("dropped = %d, want 1", dropped)
	}
	if r.Has("old") {
		t.Fatal("expired stop survived cleanup")
	}
	if !r.Has("fresh") {
		t.Fatal("fresh stop was swept")
	}
}

func TestStopRegistryExpiredNotReported(t *testing.T) {
	r := NewStopRegistry(10 * time.Millisecond)
	r.RequestStop("c1")
	time.Sleep(20 * time.Millisecond)
	if r.Has("c1") {
		t.Fatal("Has reported an expired stop")
	}
	if r.Take("c1") {
		t.Fatal("Take honored an expired stop")
	}
}

func TestStopRegistryConcurrentAccess(t *testing.T) {
	r := NewStopRegistry(0)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.RequestStop("c1")
				r.Has("c1")
				r.Take("c1")
				r.CleanupOld()
			}
		}()
	}
	wg.Wait()
}
