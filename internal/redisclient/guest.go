package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"storefront-service/internal/models"

	"github.com/go-redis/redis/v8"
)

// GuestLists keeps guest carts and saved lists in Redis, standing in for the
// browser's local storage. Keys expire after ttl of inactivity.
type GuestLists struct {
	rdb *redis.Client
	ttl time.Duration
}

type guestListRecord struct {
	Items     []models.CartItem `json:"items"`
	Version   int64             `json:"version"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// GuestLists returns the guest list repository backed by this client
func (c *Client) GuestLists(ttl time.Duration) *GuestLists {
	return &GuestLists{rdb: c.rdb, ttl: ttl}
}

func guestListKey(guestID string, kind models.ListKind) string {
	return fmt.Sprintf("guest:%s:%s", guestID, kind)
}

// GetList returns the stored list or an empty one
func (g *GuestLists) GetList(ctx context.Context, ownerID string, kind models.ListKind) (*models.ItemList, error) {
	data, err := g.rdb.Get(ctx, guestListKey(ownerID, kind)).Bytes()
	if err == redis.Nil {
		return models.NewItemList(ownerID, kind), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read guest %s: %w", kind, err)
	}

	var rec guestListRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode guest %s: %w", kind, err)
	}
	if rec.Items == nil {
		rec.Items = []models.CartItem{}
	}

	return &models.ItemList{
		OwnerID:   ownerID,
		Kind:      kind,
		Items:     rec.Items,
		Version:   rec.Version,
		UpdatedAt: rec.UpdatedAt,
	}, nil
}

// PutList replaces the list if the stored version still matches list.Version.
// On success list.Version is advanced.
func (g *GuestLists) PutList(ctx context.Context, list *models.ItemList) error {
	key := guestListKey(list.OwnerID, list.Kind)
	rec := guestListRecord{
		Items:     list.Items,
		Version:   list.Version + 1,
		UpdatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode guest %s: %w", list.Kind, err)
	}

	err = g.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := storedVersion(ctx, tx, key)
		if err != nil {
			return err
		}
		if current != list.Version {
			return models.ErrVersionConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, g.ttl)
			return nil
		})
		return err
	}, key)

	switch {
	case err == redis.TxFailedErr:
		return models.ErrVersionConflict
	case err == models.ErrVersionConflict:
		return err
	case err != nil:
		return fmt.Errorf("failed to write guest %s: %w", list.Kind, err)
	}

	list.Version = rec.Version
	list.UpdatedAt = rec.UpdatedAt
	return nil
}

// DeleteList removes the guest list
func (g *GuestLists) DeleteList(ctx context.Context, ownerID string, kind models.ListKind) error {
	if err := g.rdb.Del(ctx, guestListKey(ownerID, kind)).Err(); err != nil {
		return fmt.Errorf("failed to delete guest %s: %w", kind, err)
	}
	return nil
}

func storedVersion(ctx context.Context, tx *redis.Tx, key string) (int64, error) {
	data, err := tx.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var rec guestListRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return 0, err
	}
	return rec.Version, nil
}
