package fetcher

import (
	"sync"

	"github.com/ppiankov/skytap/internal/source"
)

// Buffer holds fetched posts until the consumer drains them.
type Buffer struct {
	mu    sync.Mutex
	posts []source.Post
}

// Append adds posts at the tail in the given order.
func (b *Buffer) Append(posts ...source.Post) {
	if len(posts) == 0 {
		return
	}
	b.mu.Lock()
	b.posts = append(b.posts, posts...)
	b.mu.Unlock()
}

// Drain removes and returns everything buffered. It never returns nil.
func (b *Buffer) Drain() []source.Post {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.posts
	b.posts = nil
	if out == nil {
		out = []source.Post{}
	}
	return out
}

// Len returns the number of buffered posts.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.posts)
}
