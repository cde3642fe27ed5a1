package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrInvalidMessage = errors.New("invalid reclaim message")

// ReclaimMessage is the payload sent to the reclaim worker.
type ReclaimMessage struct {
	OwnerUserID uint64 `json:"owner_user_id"`
	Attempt     int    `json:"attempt"`
}

// Publisher is the part of the MQ client task dispatch needs.
type Publisher interface {
	PublishTask(ctx context.Context, body []byte) error
}

// DispatchReclaim enqueues a sweep of ownerUserID's uncommitted objects.
// The application calls it after a document create or update.
func DispatchReclaim(ctx context.Context, pub Publisher, ownerUserID uint64) error {
	if ownerUserID == 0 {
		return fmt.Errorf("%w: owner_user_id required", ErrInvalidMessage)
	}
	body, err := json.Marshal(ReclaimMessage{OwnerUserID: ownerUserID})
	if err != nil {
		return err
	}
	return pub.PublishTask(ctx, body)
}

// DecodeReclaimMessage parses and validates a delivery body.
func DecodeReclaimMessage(body []byte) (ReclaimMessage, error) {
	var msg ReclaimMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return msg, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if msg.OwnerUserID == 0 {
		return msg, fmt.Errorf("%w: owner_user_id required", ErrInvalidMessage)
	}
	return msg, nil
}
