// Package paging turns unbounded result sets into bounded pages.
package paging

import "iter"

// Pager accumulates items and hands back a page each time it reaches its size.
type Pager[T any] struct {
	size int
	buf  []T
}

// New returns a pager emitting pages of at most size items. Sizes below one mean one.
func New[T any](size int) *Pager[T] {
	if size < 1 {
		size = 1
	}
	return &Pager[T]{size: size, buf: make([]T, 0, size)}
}

// Add appends v and returns the completed page once the pager is full.
func (p *Pager[T]) Add(v T) ([]T, bool) {
	p.buf = append(p.buf, v)
	if len(p.buf) < p.size {
		return nil, false
	}
	page := p.buf
	p.buf = make([]T, 0, p.size)
	return page, true
}

// Flush returns whatever is buffered, possibly nothing.
func (p *Pager[T]) Flush() []T {
	page := p.buf
	p.buf = make([]T, 0, p.size)
	return page
}

func (p *Pager[T]) Size() int { return p.size }

// Collect drains a stream, stopping at the first error.
func Collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	var out []T
	for v, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
	return out, nil
}
