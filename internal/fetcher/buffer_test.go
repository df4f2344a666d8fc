package fetcher

import (
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/ppiankov/skytap/internal/source"
)

func TestBuffer_DrainEmpty(t *testing.T) {
	var b Buffer
	got := b.Drain()
	if got == nil || len(got) != 0 {
		t.Errorf("Drain = %#v, want empty non-nil", got)
	}
}

func TestBuffer_AppendDrainOrder(t *testing.T) {
	var b Buffer
	b.Append(source.Post{CID: "1"}, source.Post{CID: "2"})
	b.Append(source.Post{CID: "3"})

	if b.Len() != 3 {
		t.Fatalf("Len = %d, want 3", b.Len())
	}
	got := b.Drain()
	for i, want := range []string{"1", "2", "3"} {
		if got[i].CID != want {
			t.Errorf("got[%d] = %s, want %s", i, got[i].CID, want)
		}
	}
	if b.Len() != 0 {
		t.Errorf("Len after drain = %d", b.Len())
	}
}

func TestBuffer_ConcurrentAppendDrain(t *testing.T) {
	var b Buffer
	const producers, perProducer = 8, 200

	var wg sync.WaitGroup
	for p := range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perProducer {
				b.Append(source.Post{CID: strconv.Itoa(p) + "-" + strconv.Itoa(i)})
			}
		}()
	}

	seen := make(map[string]int)
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	collect := func() {
		for _, post := range b.Drain() {
			seen[post.CID]++
		}
	}
loop:
	for {
		select {
		case <-done:
			break loop
		default:
			collect()
		}
	}
	collect()

	if len(seen) != producers*perProducer {
		t.Fatalf("seen %d distinct posts, want %d", len(seen), producers*perProducer)
	}
	for cid, n := range seen {
		if n != 1 {
			t.Errorf("post %s drained %d times", cid, n)
		}
	}
}

func TestErrorSlot(t *testing.T) {
	var s ErrorSlot
	if s.Err() != nil {
		t.Fatal("new slot should be empty")
	}

	first := errors.New("first")
	second := errors.New("second")
	s.Record(first)
	s.Record(nil)
	if !errors.Is(s.Err(), first) {
		t.Errorf("Err = %v, want first", s.Err())
	}
	s.Record(second)
	if !errors.Is(s.Err(), second) {
		t.Errorf("Err = %v, want second", s.Err())
	}
	if !errors.Is(s.Err(), second) {
		t.Error("reading cleared the slot")
	}
	s.Reset()
	if s.Err() != nil {
		t.Errorf("Err after Reset = %v", s.Err())
	}
}
