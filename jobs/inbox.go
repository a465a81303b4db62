package jobs

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const defaultInboxSize = 100

// Inbox keeps the most recent notifications of every user in a Redis list.
type Inbox struct {
	client *redis.Client
	size   int64
}

// NewInbox constructs an inbox keeping at most size entries per user.
func NewInbox(client *redis.Client, size int64) *Inbox {
	if size <= 0 {
		size = defaultInboxSize
	}
	return &Inbox{client: client, size: size}
}

// Deliver prepends n to the recipient's list and trims the tail.
func (i *Inbox) Deliver(ctx context.Context, n NotifyPayload) error {
	raw, err := json.Marshal(n)
	if err != nil {
		return err
	}
	key := inboxKey(n.RecipientID)
	pipe := i.client.TxPipeline()
	pipe.LPush(ctx, key, raw)
	pipe.LTrim(ctx, key, 0, i.size-1)
	_, err = pipe.Exec(ctx)
	return err
}

// List returns up to limit notifications for the user, newest first.
func (i *Inbox) List(ctx context.Context, userID int64, limit int64) ([]NotifyPayload, error) {
	if limit <= 0 || limit > i.size {
		limit = i.size
	}
	rows, err := i.client.LRange(ctx, inboxKey(userID), 0, limit-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]NotifyPayload, 0, len(rows))
	for _, row := range rows {
		var n NotifyPayload
		if err := json.Unmarshal([]byte(row), &n); err != nil {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func inboxKey(userID int64) string {
	return "notifications:" + strconv.FormatInt(userID, 10)
}
