package device

import (
	"errors"
	"fmt"
)

var ErrSizeMismatch = errors.New("device: array size mismatch")

// Array is a typed device buffer. Host code moves data with Upload and
// Download; kernels access the backing store directly. Arrays are sized once
// and never reallocated during a kernel's lifetime.
type Array[T any] struct {
	name string
	data []T
}

func NewArray[T any](name string, n int) *Array[T] {
	return &Array[T]{name: name, data: make([]T, n)}
}

func (a *Array[T]) Len() int  { return len(a.data) }
func (a *Array[T]) Data() []T { return a.data }

func (a *Array[T]) Upload(src []T) error {
	if len(src) != len(a.data) {
		return fmt.Errorf("%w: upload %d into %q of size %d", ErrSizeMismatch, len(src), a.name, len(a.data))
	}
	copy(a.data, src)
	return nil
}

func (a *Array[T]) Download(dst []T) error {
	if len(dst) != len(a.data) {
		return fmt.Errorf("%w: download %d from %q of size %d", ErrSizeMismatch, len(dst), a.name, len(a.data))
	}
	copy(dst, a.data)
	return nil
}

// Clear zeroes the buffer. Reused grids are cleared, not reallocated.
func (a *Array[T]) Clear() {
	var zero T
	for i := range a.data {
		a.data[i] = zero
	}
}
