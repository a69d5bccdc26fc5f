package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishAfterCloseFails(t *testing.T) {
	p := NewProducer([]string{"127.0.0.1:1"}, "order.created", 4, nil)
	require.NoError(t, p.Publish([]byte("o-1"), []byte(`{}`)))
	assert.Len(t, p.inbox, 1)

	p.Close()
	p.Close()
	assert.NotPanics(t, func() {
		assert.ErrorIs(t, p.Publish([]byte("o-2"), []byte(`{}`)), ErrProducerClosed)
	})

	m, ok := <-p.inbox
	require.True(t, ok)
	assert.Equal(t, []byte("o-1"), m.Key)
	_, ok = <-p.inbox
	assert.False(t, ok)
}
