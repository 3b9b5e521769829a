package b6

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenHIDKeepsInitError(t *testing.T) {
	origInit := hidInit
	t.Cleanup(func() {
		hidInit = origInit
		hidInitOnce = sync.Once{}
		hidInitErr = nil
	})
	hidInitOnce = sync.Once{}
	hidInitErr = nil

	calls := 0
	hidInit = func() error {
		calls++
		return errors.New("no hid backend")
	}

	for i := 0; i < 2; i++ {
		conn, err := OpenHID(DefaultVendorID, DefaultProductID)
		require.Error(t, err, "call %d", i+1)
		assert.Nil(t, conn)
		assert.Contains(t, err.Error(), "no hid backend")
	}
	assert.Equal(t, 1, calls)
}
