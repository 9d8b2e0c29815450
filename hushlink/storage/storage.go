// Package storage models the endpoint's flash: a small byte image that is read
// by range and written a sector at a time. Persisted configuration is laid out
// by a tagged-record Schema rather than by raw offsets.
package storage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/TheusHen/hushlink/hushlink/fault"
)

const (
	// SectorSize is the erase unit.
	SectorSize = 4096
	// Erased is the value of every byte of an erased sector.
	Erased byte = 0xff
)

var (
	ErrOutOfRange = errors.New("storage: range outside image")
	ErrUnaligned  = errors.New("storage: write not sector aligned")
	ErrCorrupt    = errors.New("storage: image corrupt beyond repair")
)

// Store is the storage collaborator.
type Store interface {
	ReadRange(offset, length int) ([]byte, error)
	EraseAndWrite(offset int, data []byte) error
}

// image is the in-memory flash shared by the Memory and File stores.
type image struct {
	mu   sync.RWMutex
	data []byte
}

func newImage(size int) *image {
	data := make([]byte, size)
	for i := range data {
		data[i] = Erased
	}
	return &image{data: data}
}

func (im *image) readRange(offset, length int) ([]byte, error) {
	im.mu.RLock()
	defer im.mu.RUnlock()
	if offset < 0 || length < 0 || offset+length > len(im.data) {
		return nil, fault.E(fault.KindStorage, "storage.ReadRange",
			fmt.Errorf("%w: [%d,+%d)", ErrOutOfRange, offset, length))
	}
	out := make([]byte, length)
	copy(out, im.data[offset:offset+length])
	return out, nil
}

// eraseAndWrite erases every sector touched by the write and programs data.
func (im *image) eraseAndWrite(offset int, data []byte) error {
	if offset%SectorSize != 0 {
		return fault.E(fault.KindStorage, "storage.EraseAndWrite", ErrUnaligned)
	}
	end := offset + len(data)
	if offset < 0 || end > len(im.data) {
		return fault.E(fault.KindStorage, "storage.EraseAndWrite",
			fmt.Errorf("%w: [%d,+%d)", ErrOutOfRange, offset, len(data)))
	}
	eraseEnd := (end + SectorSize - 1) / SectorSize * SectorSize
	eraseEnd = min(eraseEnd, len(im.data))

	im.mu.Lock()
	defer im.mu.Unlock()
	for i := offset; i < eraseEnd; i++ {
		im.data[i] = Erased
	}
	copy(im.data[offset:], data)
	return nil
}

// Memory is a volatile Store.
type Memory struct {
	im *image
}

// NewMemory returns an erased in-memory store of size bytes.
func NewMemory(size int) *Memory {
	return &Memory{im: newImage(size)}
}

func (m *Memory) ReadRange(offset, length int) ([]byte, error) {
	return m.im.readRange(offset, length)
}

func (m *Memory) EraseAndWrite(offset int, data []byte) error {
	return m.im.eraseAndWrite(offset, data)
}

// IsErased reports whether b holds no programmed data.
func IsErased(b []byte) bool {
	for _, c := range b {
		if c != Erased {
			return false
		}
	}
	return true
}
