// Package scratch hands out work areas for secret material. Every buffer is
// wiped and released on every exit path, and the backing strategy is chosen
// by configuration.
package scratch

import (
	"errors"
	"fmt"
	"sync"

	"github.com/TheusHen/hushlink/hushlink/crypto"
	"github.com/awnumar/memguard"
)

// Strategy selects where scratch buffers live.
type Strategy string

const (
	// Heap allocates a fresh slice per buffer.
	Heap Strategy = "heap"
	// Static reuses one fixed, preallocated area.
	Static Strategy = "static"
	// Locked uses guarded memory that is locked out of swap.
	Locked Strategy = "locked"
)

// DefaultStaticSize is the size of the static area.
const DefaultStaticSize = 4096

var (
	ErrUnknownStrategy = errors.New("scratch: unknown allocation strategy")
	ErrTooLarge        = errors.New("scratch: request exceeds static area")
	ErrBusy            = errors.New("scratch: static area already in use")
	ErrInvalidSize     = errors.New("scratch: invalid size")
)

// Allocator acquires scratch buffers.
type Allocator interface {
	Acquire(n int) (*Buffer, error)
}

// Buffer is an acquired work area.
type Buffer struct {
	once    sync.Once
	b       []byte
	release func()
}

// Bytes returns the work area. It must not be used after Release.
func (b *Buffer) Bytes() []byte { return b.b }

// Release wipes and returns the work area. It is safe to call more than once.
func (b *Buffer) Release() {
	b.once.Do(func() {
		crypto.Wipe(b.b)
		if b.release != nil {
			b.release()
		}
		b.b = nil
	})
}

// New returns the allocator for s.
func New(s Strategy) (Allocator, error) {
	switch s {
	case Heap, "":
		return HeapAllocator{}, nil
	case Static:
		return NewStaticAllocator(DefaultStaticSize), nil
	case Locked:
		return LockedAllocator{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}

// With acquires n bytes, runs fn on them and releases the buffer whatever fn
// returns.
func With(a Allocator, n int, fn func(b []byte) error) error {
	buf, err := a.Acquire(n)
	if err != nil {
		return err
	}
	defer buf.Release()
	return fn(buf.Bytes())
}

type HeapAllocator struct{}

func (HeapAllocator) Acquire(n int) (*Buffer, error) {
	if n <= 0 {
		return nil, ErrInvalidSize
	}
	return &Buffer{b: make([]byte, n)}, nil
}

// StaticAllocator owns a single preallocated area. Only one buffer may be
// outstanding at a time.
type StaticAllocator struct {
	mu   sync.Mutex
	area []byte
	busy bool
}

func NewStaticAllocator(size int) *StaticAllocator {
	return &StaticAllocator{area: make([]byte, size)}
}

func (s *StaticAllocator) Acquire(n int) (*Buffer, error) {
	if n <= 0 {
		return nil, ErrInvalidSize
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > len(s.area) {
		return nil, ErrTooLarge
	}
	if s.busy {
		return nil, ErrBusy
	}
	s.busy = true
	return &Buffer{
		b: s.area[:n:n],
		release: func() {
			s.mu.Lock()
			s.busy = false
			s.mu.Unlock()
		},
	}, nil
}

type LockedAllocator struct{}

func (LockedAllocator) Acquire(n int) (*Buffer, error) {
	if n <= 0 {
		return nil, ErrInvalidSize
	}
	lb := memguard.NewBuffer(n)
	return &Buffer{b: lb.Bytes(), release: lb.Destroy}, nil
}
