package core

import "context"

// SliceStream is a DataStream over an in-memory slice.
type SliceStream[T any] struct {
	items   []T
	index   int
	current T
	closed  bool
}

func NewSliceStream[T any](items []T) *SliceStream[T] {
	return &SliceStream[T]{items: items, index: -1}
}

func (s *SliceStream[T]) Next(ctx context.Context) bool {
	if s.closed {
		return false
	}
	if ctx != nil && ctx.Err() != nil {
		return false
	}
	if s.index+1 >= len(s.items) {
		return false
	}
	s.index++
	s.current = s.items[s.index]
	return true
}

func (s *SliceStream[T]) Value() T {
	return s.current
}

func (s *SliceStream[T]) Err() error {
	return nil
}

func (s *SliceStream[T]) Close() error {
	s.closed = true
	s.items = nil
	return nil
}

// Collect drains stream into a slice and closes it.
func Collect[T any](ctx context.Context, stream DataStream[T]) ([]T, error) {
	if stream == nil {
		return nil, nil
	}
	defer stream.Close()
	var out []T
	for stream.Next(ctx) {
		out = append(out, stream.Value())
	}
	if err := stream.Err(); err != nil {
		return out, err
	}
	if ctx != nil && ctx.Err() != nil {
		return out, ctx.Err()
	}
	return out, nil
}
