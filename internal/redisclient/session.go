package redisclient

import (
	"context"
	"fmt"
	"time"

	"storefront-service/internal/models"

	"github.com/go-redis/redis/v8"
)

func checkoutKey(principalKey string) string {
	return fmt.Sprintf("checkout:%s", principalKey)
}

func draftKey(intentID string) string {
	return fmt.Sprintf("intent_draft:%s", intentID)
}

func guestEmailKey(guestID string) string {
	return fmt.Sprintf("guest:%s:email", guestID)
}

// GetCheckoutSession returns nil when no session exists
func (c *Client) GetCheckoutSession(ctx context.Context, principalKey string) (*models.CheckoutSession, error) {
	var session models.CheckoutSession
	found, err := c.getJSON(ctx, checkoutKey(principalKey), &session)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkout session: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &session, nil
}

func (c *Client) SaveCheckoutSession(ctx context.Context, session *models.CheckoutSession, ttl time.Duration) error {
	if err := c.setJSON(ctx, checkoutKey(session.PrincipalKey), session, ttl); err != nil {
		return fmt.Errorf("failed to save checkout session: %w", err)
	}
	return nil
}

func (c *Client) DeleteCheckoutSession(ctx context.Context, principalKey string) error {
	return c.rdb.Del(ctx, checkoutKey(principalKey)).Err()
}

// SaveOrderDraft keeps the order snapshot for an intent so the webhook can
// write the order even if the confirming request never completes.
func (c *Client) SaveOrderDraft(ctx context.Context, intentID string, draft *models.OrderDraft, ttl time.Duration) error {
	if err := c.setJSON(ctx, draftKey(intentID), draft, ttl); err != nil {
		return fmt.Errorf("failed to save order draft: %w", err)
	}
	return nil
}

// GetOrderDraft returns nil when the draft expired or never existed
func (c *Client) GetOrderDraft(ctx context.Context, intentID string) (*models.OrderDraft, error) {
	var draft models.OrderDraft
	found, err := c.getJSON(ctx, draftKey(intentID), &draft)
	if err != nil {
		return nil, fmt.Errorf("failed to read order draft: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &draft, nil
}

func (c *Client) SetGuestEmail(ctx context.Context, guestID, email string, ttl time.Duration) error {
	return c.rdb.Set(ctx, guestEmailKey(guestID), email, ttl).Err()
}

// GetGuestEmail returns "" when nothing is cached
func (c *Client) GetGuestEmail(ctx context.Context, guestID string) (string, error) {
	email, err := c.rdb.Get(ctx, guestEmailKey(guestID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return email, err
}
