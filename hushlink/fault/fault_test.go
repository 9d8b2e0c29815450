package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestEClassifies(t *testing.T) {
	err := E(KindIO, "read", errBoom)
	require.Error(t, err)
	assert.Equal(t, KindIO, KindOf(err))
	assert.True(t, Is(err, KindIO))
	assert.True(t, errors.Is(err, errBoom))
	assert.Equal(t, "read: io error: boom", err.Error())
}

func TestEKeepsInnerKind(t *testing.T) {
	inner := E(KindProtocol, "verify", errBoom)
	outer := E(KindIO, "handshake", inner)
	assert.Equal(t, KindProtocol, KindOf(outer))

	wrapped := fmt.Errorf("session: %w", outer)
	assert.Equal(t, KindProtocol, KindOf(wrapped))
	assert.True(t, errors.Is(wrapped, errBoom))
}

func TestENil(t *testing.T) {
	assert.NoError(t, E(KindIO, "noop", nil))
	assert.Equal(t, KindUnknown, KindOf(nil))
	assert.False(t, Is(nil, KindUnknown))
}

func TestRestartable(t *testing.T) {
	cases := map[Kind]bool{
		KindInput:      false,
		KindProtocol:   false,
		KindSize:       false,
		KindRandomness: false,
		KindStorage:    true,
		KindConnection: true,
		KindIO:         true,
	}
	for k, want := range cases {
		t.Run(k.String(), func(t *testing.T) {
			assert.Equal(t, want, k.Restartable())
		})
	}
}
