package registry

import (
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestTreeCacheSnapshot(t *testing.T) {
	tc := newTreeCache(nil, "/dc1/prod", log.StandardLogger())

	_, ok := tc.Get("orders")
	assert.False(t, ok)

	tc.replace(map[string][]byte{
		"orders":  []byte("host1:3306"),
		"billing": []byte("host2:3306"),
	})

	data, ok := tc.Get("orders")
	assert.True(t, ok)
	assert.Equal(t, "host1:3306", string(data))

	tc.clear()
	_, ok = tc.Get("orders")
	assert.False(t, ok)
}

func TestTreeCacheRebuildSignalDoesNotBlock(t *testing.T) {
	tc := newTreeCache(nil, "/dc1/prod", log.StandardLogger())

	// a second concurrent request coalesces into the pending one
	tc.Rebuild()
	tc.Rebuild()

	select {
	case <-tc.reload:
	default:
		t.Fatal("expected a pending reload signal")
	}
	select {
	case <-tc.reload:
		t.Fatal("reload signals should coalesce")
	default:
	}
}
