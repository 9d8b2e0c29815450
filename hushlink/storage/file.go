package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/TheusHen/hushlink/hushlink/fault"
	"github.com/TheusHen/hushlink/hushlink/logging"
	"github.com/sirupsen/logrus"
)

const (
	defaultDataShards   = 4
	defaultParityShards = 2
	paritySuffix        = ".parity"
)

// File is a Store backed by an image file and a parity side file. Corrupted
// regions of the image are repaired from parity when the store is opened.
type File struct {
	path  string
	im    *image
	codec *parityCodec
	log   *logrus.Entry
}

// OpenFile opens or creates the image at path.
func OpenFile(path string, size int, log *logrus.Entry) (*File, error) {
	log = logging.For(log, "storage", "File")
	codec, err := newParityCodec(defaultDataShards, defaultParityShards)
	if err != nil {
		return nil, fault.E(fault.KindStorage, "storage.OpenFile", err)
	}
	f := &File{path: path, codec: codec, log: log.WithField("image", path)}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		f.im = newImage(size)
		f.log.Info("creating erased flash image")
		return f, f.persist()
	case err != nil:
		return nil, fault.E(fault.KindStorage, "storage.OpenFile", err)
	case len(data) != size:
		return nil, fault.E(fault.KindStorage, "storage.OpenFile",
			fmt.Errorf("%w: image is %d bytes, want %d", ErrCorrupt, len(data), size))
	}

	repaired, err := f.check(data)
	if err != nil {
		return nil, fault.E(fault.KindStorage, "storage.OpenFile", err)
	}
	f.im = &image{data: data}
	if repaired != nil {
		f.im.data = repaired
		f.log.Warn("flash image repaired from parity")
		return f, f.persist()
	}
	return f, nil
}

// check compares the image against the stored parity. It returns a repaired
// image, or nil when the image is intact.
func (f *File) check(data []byte) ([]byte, error) {
	side, err := os.ReadFile(f.path + paritySuffix)
	if errors.Is(err, fs.ErrNotExist) {
		f.log.Warn("parity missing, regenerating from image")
		return nil, f.writeParity(data)
	}
	if err != nil {
		return nil, err
	}

	total := f.codec.totalShards()
	shardSize := f.codec.shardSize(len(data))
	if len(side) != total*32+f.codec.parityShards*shardSize {
		return nil, fmt.Errorf("%w: parity file has wrong size", ErrCorrupt)
	}
	sums := side[:total*32]
	parity := side[total*32:]

	shards, err := f.codec.encode(data)
	if err != nil {
		return nil, err
	}
	for i := 0; i < f.codec.parityShards; i++ {
		shards[f.codec.dataShards+i] = parity[i*shardSize : (i+1)*shardSize]
	}

	lost := 0
	for i, shard := range shards {
		sum := shardSum(shard)
		if !bytes.Equal(sum[:], sums[i*32:(i+1)*32]) {
			shards[i] = nil
			lost++
		}
	}
	if lost == 0 {
		return nil, nil
	}
	f.log.WithField("lost_shards", lost).Warn("flash image damaged")
	if err := f.codec.repair(shards); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return f.codec.join(shards, len(data)), nil
}

func (f *File) ReadRange(offset, length int) ([]byte, error) {
	return f.im.readRange(offset, length)
}

func (f *File) EraseAndWrite(offset int, data []byte) error {
	if err := f.im.eraseAndWrite(offset, data); err != nil {
		return err
	}
	return f.persist()
}

func (f *File) persist() error {
	f.im.mu.RLock()
	data := append([]byte(nil), f.im.data...)
	f.im.mu.RUnlock()

	if err := writeAtomic(f.path, data); err != nil {
		return fault.E(fault.KindStorage, "storage.persist", err)
	}
	if err := f.writeParity(data); err != nil {
		return fault.E(fault.KindStorage, "storage.persist", err)
	}
	return nil
}

func (f *File) writeParity(data []byte) error {
	shards, err := f.codec.encode(data)
	if err != nil {
		return err
	}
	var side []byte
	for _, shard := range shards {
		sum := shardSum(shard)
		side = append(side, sum[:]...)
	}
	for _, shard := range shards[f.codec.dataShards:] {
		side = append(side, shard...)
	}
	return writeAtomic(f.path+paritySuffix, side)
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
