package task

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	bodies [][]byte
}

func (p *capturePublisher) PublishTask(_ context.Context, body []byte) error {
	p.bodies = append(p.bodies, body)
	return nil
}

func TestDispatchReclaim(t *testing.T) {
	pub := &capturePublisher{}
	require.NoError(t, DispatchReclaim(context.Background(), pub, 42))
	require.Len(t, pub.bodies, 1)

	var msg ReclaimMessage
	require.NoError(t, json.Unmarshal(pub.bodies[0], &msg))
	assert.Equal(t, ReclaimMessage{OwnerUserID: 42, Attempt: 0}, msg)

	assert.ErrorIs(t, DispatchReclaim(context.Background(), pub, 0), ErrInvalidMessage)
	assert.Len(t, pub.bodies, 1)
}

func TestDecodeReclaimMessage(t *testing.T) {
	msg, err := DecodeReclaimMessage([]byte(`{"owner_user_id":7,"attempt":2}`))
	require.NoError(t, err)
	assert.Equal(t, ReclaimMessage{OwnerUserID: 7, Attempt: 2}, msg)

	_, err = DecodeReclaimMessage([]byte(`not json`))
	assert.ErrorIs(t, err, ErrInvalidMessage)

	_, err = DecodeReclaimMessage([]byte(`{"attempt":1}`))
	assert.ErrorIs(t, err, ErrInvalidMessage)
}
