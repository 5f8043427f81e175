package service

import (
	"context"
	"fmt"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

// CartMerger folds a guest's lists into a user's lists after sign-in
type CartMerger struct {
	carts     *CartService
	idem      IdempotencyStore
	publisher EventPublisher
	markerTTL time.Duration
	logger    *zap.Logger
}

func NewCartMerger(carts *CartService, idem IdempotencyStore, publisher EventPublisher, markerTTL time.Duration) *CartMerger {
	return &CartMerger{
		carts:     carts,
		idem:      idem,
		publisher: publisher,
		markerTTL: markerTTL,
		logger:    util.GetLogger(),
	}
}

func mergeMarker(guestID string, kind models.ListKind) string {
	return fmt.Sprintf("cart_merge:%s:%s", guestID, kind)
}

// MergeGuestIntoUser adds the guest cart to the user cart, summing quantities,
// and adds guest saved items the user has neither saved nor in the cart. Each
// list is marked once merged, so a retry after a partial failure does not
// count it twice. Guest lists and markers are deleted once both lists are in.
func (m *CartMerger) MergeGuestIntoUser(ctx context.Context, guestID, userID string) (*models.CartView, error) {
	ctx, span := util.StartSpan(ctx, "CartMerger.MergeGuestIntoUser")
	defer span.End()

	guest := models.GuestPrincipal(guestID)
	user := models.UserPrincipal(userID, "")

	guestView, err := m.carts.LoadCart(ctx, guest)
	if err != nil {
		util.CartMergesTotal.WithLabelValues("error").Inc()
		return nil, util.RecordError(span, err)
	}
	if guestView.Cart.IsEmpty() && guestView.Saved.IsEmpty() {
		util.CartMergesTotal.WithLabelValues("noop").Inc()
		return m.carts.LoadCart(ctx, user)
	}

	lists := []struct {
		source *models.ItemList
		merge  func(context.Context, models.Principal, string, []models.CartItem) (*models.ItemList, error)
	}{
		{guestView.Cart, m.carts.addToCart},
		{guestView.Saved, m.carts.saveAll},
	}

	for _, l := range lists {
		if err := m.mergeList(ctx, guestID, user, l.source, l.merge); err != nil {
			util.CartMergesTotal.WithLabelValues("error").Inc()
			m.logger.Error("Cart merge failed",
				zap.String("guest_id", guestID),
				zap.String("user_id", userID),
				zap.String("list", string(l.source.Kind)),
				zap.Error(err))
			return nil, util.RecordError(span, err)
		}
	}

	for _, kind := range []models.ListKind{models.ListCart, models.ListSaved} {
		if err := m.carts.guestLists.DeleteList(ctx, guestID, kind); err != nil {
			m.logger.Warn("Failed to delete merged guest list",
				zap.String("guest_id", guestID),
				zap.String("list", string(kind)),
				zap.Error(err))
		}
	}
	// The guest id outlives sign-in, so a later merge of new guest items must not see these.
	if err := m.idem.DeleteIdempotencyKey(ctx, mergeMarker(guestID, models.ListCart), mergeMarker(guestID, models.ListSaved)); err != nil {
		m.logger.Warn("Failed to delete merge markers", zap.String("guest_id", guestID), zap.Error(err))
	}

	util.CartMergesTotal.WithLabelValues("merged").Inc()
	m.logger.Info("Guest cart merged",
		zap.String("guest_id", guestID),
		zap.String("user_id", userID),
		zap.Int("cart_items", len(guestView.Cart.Items)),
		zap.Int("saved_items", len(guestView.Saved.Items)))

	event := &models.CartMergedEvent{
		BaseEvent:  models.NewBaseEvent(models.EventTypeCartMerged),
		UserID:     userID,
		GuestID:    guestID,
		CartItems:  len(guestView.Cart.Items),
		SavedItems: len(guestView.Saved.Items),
	}
	if err := m.publisher.PublishCartMerged(ctx, event); err != nil {
		m.logger.Error("Failed to publish CartMerged event", zap.Error(err))
	}

	return m.carts.LoadCart(ctx, user)
}

func (m *CartMerger) mergeList(ctx context.Context, guestID string, user models.Principal, source *models.ItemList, merge func(context.Context, models.Principal, string, []models.CartItem) (*models.ItemList, error)) error {
	if source.IsEmpty() {
		return nil
	}

	marker := mergeMarker(guestID, source.Kind)
	done, err := m.idem.CheckIdempotencyKey(ctx, marker)
	if err != nil {
		return fmt.Errorf("failed to check merge marker: %w", err)
	}
	if done {
		m.logger.Info("Guest list already merged", zap.String("marker", marker))
		return nil
	}

	if _, err := merge(ctx, user, "merge_"+string(source.Kind), source.Items); err != nil {
		return err
	}

	if err := m.idem.SetIdempotencyKey(ctx, marker, user.ID, m.markerTTL); err != nil {
		return fmt.Errorf("failed to record merge marker: %w", err)
	}
	return nil
}
