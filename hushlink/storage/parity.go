package storage

import (
	"errors"

	"github.com/klauspost/reedsolomon"
	"golang.org/x/crypto/blake2b"
)

var (
	ErrTooManyLost   = errors.New("storage: too many shards lost, cannot recover")
	ErrInvalidConfig = errors.New("storage: invalid data/parity configuration")
)

// parityCodec protects a flash image with Reed-Solomon parity shards. Each
// shard carries a checksum so silently corrupted shards can be treated as
// erasures.
type parityCodec struct {
	enc          reedsolomon.Encoder
	dataShards   int
	parityShards int
}

func newParityCodec(dataShards, parityShards int) (*parityCodec, error) {
	if dataShards <= 0 || parityShards <= 0 {
		return nil, ErrInvalidConfig
	}
	enc, err := reedsolomon.New(dataShards, parityShards)
	if err != nil {
		return nil, err
	}
	return &parityCodec{enc: enc, dataShards: dataShards, parityShards: parityShards}, nil
}

func (c *parityCodec) totalShards() int { return c.dataShards + c.parityShards }

// shardSize returns the shard size for an image of size bytes.
func (c *parityCodec) shardSize(size int) int {
	return (size + c.dataShards - 1) / c.dataShards
}

// encode splits data and computes parity. The returned data shards alias a
// padded copy of data, never data itself.
func (c *parityCodec) encode(data []byte) ([][]byte, error) {
	shards, err := c.enc.Split(append([]byte(nil), data...))
	if err != nil {
		return nil, err
	}
	if err := c.enc.Encode(shards); err != nil {
		return nil, err
	}
	return shards, nil
}

// repair reconstructs nil shards.
func (c *parityCodec) repair(shards [][]byte) error {
	if err := c.enc.Reconstruct(shards); err != nil {
		if errors.Is(err, reedsolomon.ErrTooFewShards) {
			return ErrTooManyLost
		}
		return err
	}
	ok, err := c.enc.Verify(shards)
	if err != nil {
		return err
	}
	if !ok {
		return ErrTooManyLost
	}
	return nil
}

// join concatenates the data shards back into an image of size bytes.
func (c *parityCodec) join(shards [][]byte, size int) []byte {
	out := make([]byte, 0, size)
	for i := 0; i < c.dataShards && len(out) < size; i++ {
		n := min(len(shards[i]), size-len(out))
		out = append(out, shards[i][:n]...)
	}
	return out
}

func shardSum(shard []byte) [32]byte {
	return blake2b.Sum256(shard)
}
