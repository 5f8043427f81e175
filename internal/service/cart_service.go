package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const maxConflictRetries = 3

// errNoChange short-circuits a mutation that leaves the list as it was
var errNoChange = errors.New("no change")

// CartService owns the cart and saved lists of every principal. Guest lists
// and user lists live in different stores behind the same ListRepository.
type CartService struct {
	guestLists ListRepository
	userLists  ListRepository
	locker     Locker
	lockTTL    time.Duration
	lockWait   time.Duration
	logger     *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(guestLists, userLists ListRepository, locker Locker, lockTTL, lockWait time.Duration) *CartService {
	return &CartService{
		guestLists: guestLists,
		userLists:  userLists,
		locker:     locker,
		lockTTL:    lockTTL,
		lockWait:   lockWait,
		logger:     util.GetLogger(),
	}
}

func (s *CartService) repo(p models.Principal) ListRepository {
	if p.IsGuest() {
		return s.guestLists
	}
	return s.userLists
}

// LoadCart reads both lists concurrently
func (s *CartService) LoadCart(ctx context.Context, p models.Principal) (*models.CartView, error) {
	ctx, span := util.StartSpan(ctx, "CartService.LoadCart")
	defer span.End()

	repo := s.repo(p)
	view := &models.CartView{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		list, err := repo.GetList(gctx, p.ID, models.ListCart)
		view.Cart = list
		return err
	})
	g.Go(func() error {
		list, err := repo.GetList(gctx, p.ID, models.ListSaved)
		view.Saved = list
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, util.RecordError(span, fmt.Errorf("failed to load cart: %w", err))
	}
	return view, nil
}

// GetList reads a single list
func (s *CartService) GetList(ctx context.Context, p models.Principal, kind models.ListKind) (*models.ItemList, error) {
	return s.repo(p).GetList(ctx, p.ID, kind)
}

// AddItem adds item to the cart, summing quantity with an existing entry. A
// saved entry with the same id leaves the saved list.
func (s *CartService) AddItem(ctx context.Context, p models.Principal, item models.CartItem) (*models.ItemList, error) {
	if item.ID == "" || item.Quantity < 1 {
		return nil, ErrInvalidItem
	}
	return s.addToCart(ctx, p, "add", []models.CartItem{item})
}

// RemoveItem drops id from the cart. A missing id is not an error.
func (s *CartService) RemoveItem(ctx context.Context, p models.Principal, id string) (*models.ItemList, error) {
	return s.mutate(ctx, p, models.ListCart, "remove", func(list *models.ItemList) error {
		if _, ok := list.Remove(id); !ok {
			return errNoChange
		}
		return nil
	})
}

// UpdateQuantity sets the quantity of id. quantity < 1 leaves the list untouched.
func (s *CartService) UpdateQuantity(ctx context.Context, p models.Principal, id string, quantity int) (*models.ItemList, error) {
	if quantity < 1 {
		return s.repo(p).GetList(ctx, p.ID, models.ListCart)
	}
	return s.mutate(ctx, p, models.ListCart, "update_quantity", func(list *models.ItemList) error {
		i := list.Index(id)
		if i < 0 {
			return ErrItemNotFound
		}
		if list.Items[i].Quantity == quantity {
			return errNoChange
		}
		list.Items[i].Quantity = quantity
		return nil
	})
}

func (s *CartService) Clear(ctx context.Context, p models.Principal) (*models.ItemList, error) {
	return s.mutate(ctx, p, models.ListCart, "clear", func(list *models.ItemList) error {
		if list.IsEmpty() {
			return errNoChange
		}
		list.Items = []models.CartItem{}
		return nil
	})
}

func (s *CartService) RemoveSaved(ctx context.Context, p models.Principal, id string) (*models.ItemList, error) {
	return s.mutate(ctx, p, models.ListSaved, "remove_saved", func(list *models.ItemList) error {
		if _, ok := list.Remove(id); !ok {
			return errNoChange
		}
		return nil
	})
}

// MoveToSaved moves id from the cart to the saved list. Saved keeps a single
// entry per id, so moving an item that is already saved just removes it from the cart.
func (s *CartService) MoveToSaved(ctx context.Context, p models.Principal, id string) (*models.CartView, error) {
	return s.move(ctx, p, models.ListCart, models.ListSaved, id, "move_to_saved", func(dst *models.ItemList, item models.CartItem) {
		dst.AddUnique(item)
	})
}

// MoveToCart moves id from the saved list back to the cart with quantity 1
func (s *CartService) MoveToCart(ctx context.Context, p models.Principal, id string) (*models.CartView, error) {
	return s.move(ctx, p, models.ListSaved, models.ListCart, id, "move_to_cart", func(dst *models.ItemList, item models.CartItem) {
		item.Quantity = 1
		dst.Add(item)
	})
}

// mutate applies fn to one list under the principal lock
func (s *CartService) mutate(ctx context.Context, p models.Principal, kind models.ListKind, op string, fn func(*models.ItemList) error) (*models.ItemList, error) {
	ctx, span := util.StartSpan(ctx, "CartService."+op)
	defer span.End()

	var result *models.ItemList
	err := s.withLock(ctx, p, func(ctx context.Context) error {
		var err error
		result, err = s.apply(ctx, s.repo(p), p, kind, fn)
		return err
	})
	if err := s.done(span, op, p, kind, err); err != nil {
		return nil, err
	}
	return result, nil
}

// addToCart adds items to the cart and drops their ids from the saved list.
// Saved is written first and put back if the cart write fails.
func (s *CartService) addToCart(ctx context.Context, p models.Principal, op string, items []models.CartItem) (*models.ItemList, error) {
	ctx, span := util.StartSpan(ctx, "CartService."+op)
	defer span.End()

	repo := s.repo(p)
	var cart *models.ItemList

	err := s.withLock(ctx, p, func(ctx context.Context) error {
		var original *models.ItemList
		_, err := s.apply(ctx, repo, p, models.ListSaved, func(saved *models.ItemList) error {
			original = nil
			before := saved.Clone()
			removed := false
			for _, item := range items {
				if _, ok := saved.Remove(item.ID); ok {
					removed = true
				}
			}
			if !removed {
				return errNoChange
			}
			original = before
			return nil
		})
		if err != nil {
			return err
		}

		cart, err = s.apply(ctx, repo, p, models.ListCart, func(list *models.ItemList) error {
			for _, item := range items {
				list.Add(item)
			}
			return nil
		})
		if err != nil && original != nil {
			s.restore(ctx, repo, original)
		}
		return err
	})
	if err := s.done(span, op, p, models.ListCart, err); err != nil {
		return nil, err
	}
	return cart, nil
}

// saveAll adds items to the saved list, skipping ids that are already saved
// or sitting in the cart.
func (s *CartService) saveAll(ctx context.Context, p models.Principal, op string, items []models.CartItem) (*models.ItemList, error) {
	ctx, span := util.StartSpan(ctx, "CartService."+op)
	defer span.End()

	repo := s.repo(p)
	var saved *models.ItemList

	err := s.withLock(ctx, p, func(ctx context.Context) error {
		cart, err := repo.GetList(ctx, p.ID, models.ListCart)
		if err != nil {
			return err
		}
		saved, err = s.apply(ctx, repo, p, models.ListSaved, func(list *models.ItemList) error {
			added := false
			for _, item := range items {
				if !cart.Contains(item.ID) && list.AddUnique(item) {
					added = true
				}
			}
			if !added {
				return errNoChange
			}
			return nil
		})
		return err
	})
	if err := s.done(span, op, p, models.ListSaved, err); err != nil {
		return nil, err
	}
	return saved, nil
}

// apply runs fn on a copy of the stored list and writes it back, re-reading
// on version conflicts. The caller holds the principal lock.
func (s *CartService) apply(ctx context.Context, repo ListRepository, p models.Principal, kind models.ListKind, fn func(*models.ItemList) error) (*models.ItemList, error) {
	var result *models.ItemList
	err := retryOnConflict(func() error {
		current, err := repo.GetList(ctx, p.ID, kind)
		if err != nil {
			return err
		}
		next := current.Clone()
		if err := fn(next); err != nil {
			if errors.Is(err, errNoChange) {
				result = current
				return nil
			}
			return err
		}
		if err := repo.PutList(ctx, next); err != nil {
			return err
		}
		result = next
		return nil
	})
	return result, err
}

// done records the outcome of op
func (s *CartService) done(span trace.Span, op string, p models.Principal, kind models.ListKind, err error) error {
	s.observe(op, p, err)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrItemNotFound) {
		s.logger.Error("Cart mutation failed",
			zap.String("op", op),
			zap.String("principal", p.Key()),
			zap.String("list", string(kind)),
			zap.Error(err))
	}
	return util.RecordError(span, err)
}

// move removes id from one list and adds it to the other. If the destination
// write fails the source list is put back.
func (s *CartService) move(ctx context.Context, p models.Principal, from, to models.ListKind, id, op string, add func(*models.ItemList, models.CartItem)) (*models.CartView, error) {
	ctx, span := util.StartSpan(ctx, "CartService."+op)
	defer span.End()

	repo := s.repo(p)
	view := &models.CartView{}

	err := s.withLock(ctx, p, func(ctx context.Context) error {
		var original *models.ItemList
		var item models.CartItem

		err := retryOnConflict(func() error {
			src, err := repo.GetList(ctx, p.ID, from)
			if err != nil {
				return err
			}
			next := src.Clone()
			removed, ok := next.Remove(id)
			if !ok {
				return ErrItemNotFound
			}
			if err := repo.PutList(ctx, next); err != nil {
				return err
			}
			original, item = src, removed
			setView(view, next)
			return nil
		})
		if err != nil {
			return err
		}

		err = retryOnConflict(func() error {
			dst, err := repo.GetList(ctx, p.ID, to)
			if err != nil {
				return err
			}
			next := dst.Clone()
			add(next, item)
			if err := repo.PutList(ctx, next); err != nil {
				return err
			}
			setView(view, next)
			return nil
		})
		if err != nil {
			s.restore(ctx, repo, original)
			return err
		}
		return nil
	})

	s.observe(op, p, err)
	if err != nil {
		if !errors.Is(err, ErrItemNotFound) {
			s.logger.Error("Cart move failed",
				zap.String("op", op),
				zap.String("principal", p.Key()),
				zap.String("item_id", id),
				zap.Error(err))
		}
		return nil, util.RecordError(span, err)
	}
	return view, nil
}

// restore writes the pre-move items back over the source list
func (s *CartService) restore(ctx context.Context, repo ListRepository, original *models.ItemList) {
	err := retryOnConflict(func() error {
		current, err := repo.GetList(ctx, original.OwnerID, original.Kind)
		if err != nil {
			return err
		}
		next := current.Clone()
		next.Items = original.Clone().Items
		return repo.PutList(ctx, next)
	})
	if err != nil {
		s.logger.Error("Failed to restore list after move",
			zap.String("owner_id", original.OwnerID),
			zap.String("list", string(original.Kind)),
			zap.Error(err))
	}
}

// withLock serializes cart writes per principal. The lock is polled with
// backoff until lockWait runs out.
func (s *CartService) withLock(ctx context.Context, p models.Principal, fn func(context.Context) error) error {
	key := "cart:" + p.Key()
	start := time.Now()
	deadline := start.Add(s.lockWait)
	backoff := 10 * time.Millisecond

	for {
		token, ok, err := s.locker.AcquireLock(ctx, key, s.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire cart lock: %w", err)
		}
		if ok {
			util.CartLockWaitLatency.Observe(time.Since(start).Seconds())
			defer func() {
				if err := s.locker.ReleaseLock(context.WithoutCancel(ctx), key, token); err != nil {
					s.logger.Warn("Failed to release cart lock", zap.String("key", key), zap.Error(err))
				}
			}()
			return fn(ctx)
		}

		if time.Now().Add(backoff).After(deadline) {
			return ErrCartBusy
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 200*time.Millisecond {
			backoff *= 2
		}
	}
}

func (s *CartService) observe(op string, p models.Principal, err error) {
	result := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrItemNotFound):
		result = "not_found"
	case errors.Is(err, ErrCartBusy):
		result = "busy"
	default:
		result = "error"
	}
	util.CartMutationsTotal.WithLabelValues(op, string(p.Kind), result).Inc()
}

func retryOnConflict(fn func() error) error {
	var err error
	for attempt := 0; attempt <= maxConflictRetries; attempt++ {
		err = fn()
		if !errors.Is(err, models.ErrVersionConflict) {
			return err
		}
		util.CartConflictRetriesTotal.Inc()
	}
	return fmt.Errorf("%w: %v", ErrConcurrentModification, err)
}

func setView(view *models.CartView, list *models.ItemList) {
	if list.Kind == models.ListSaved {
		view.Saved = list
		return
	}
	view.Cart = list
}
