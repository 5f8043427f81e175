package service

import (
	"context"
	"errors"
	"testing"

	"storefront-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeSumsCartAndSkipsSavedDuplicates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	guest := newGuest()
	user := models.UserPrincipal("u-1", "")

	_, err := env.carts.AddItem(ctx, user, item("a", "20", 1))
	require.NoError(t, err)
	_, err = env.carts.AddItem(ctx, user, item("s", "30", 1))
	require.NoError(t, err)
	_, err = env.carts.MoveToSaved(ctx, user, "s")
	require.NoError(t, err)

	_, err = env.carts.AddItem(ctx, guest, item("a", "20", 2))
	require.NoError(t, err)
	_, err = env.carts.AddItem(ctx, guest, item("b", "10", 1))
	require.NoError(t, err)
	_, err = env.carts.AddItem(ctx, guest, item("s", "30", 5))
	require.NoError(t, err)
	_, err = env.carts.MoveToSaved(ctx, guest, "s")
	require.NoError(t, err)
	_, err = env.carts.AddItem(ctx, guest, item("t", "40", 1))
	require.NoError(t, err)
	_, err = env.carts.MoveToSaved(ctx, guest, "t")
	require.NoError(t, err)

	view, err := env.merger.MergeGuestIntoUser(ctx, guest.ID, user.ID)
	require.NoError(t, err)

	require.Len(t, view.Cart.Items, 2)
	assert.Equal(t, 3, view.Cart.Items[0].Quantity)
	assert.Equal(t, "b", view.Cart.Items[1].ID)

	require.Len(t, view.Saved.Items, 2)
	assert.Equal(t, "s", view.Saved.Items[0].ID)
	assert.Equal(t, 1, view.Saved.Items[0].Quantity)
	assert.Equal(t, "t", view.Saved.Items[1].ID)

	assert.False(t, env.mr.Exists("guest:"+guest.ID+":cart"))
	assert.False(t, env.mr.Exists("guest:"+guest.ID+":saved"))
	assert.False(t, env.mr.Exists("idempotency:cart_merge:"+guest.ID+":cart"))

	require.Len(t, env.publisher.merged, 1)
	assert.Equal(t, 2, env.publisher.merged[0].CartItems)
	assert.Equal(t, 2, env.publisher.merged[0].SavedItems)
}

func TestMergeWithEmptyGuestIsNoop(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := models.UserPrincipal("u-1", "")

	_, err := env.carts.AddItem(ctx, user, item("a", "20", 1))
	require.NoError(t, err)

	view, err := env.merger.MergeGuestIntoUser(ctx, NewGuestID(), user.ID)
	require.NoError(t, err)
	require.Len(t, view.Cart.Items, 1)
	assert.Equal(t, 1, view.Cart.Items[0].Quantity)
	assert.Empty(t, env.publisher.merged)
}

func TestMergeRetryDoesNotDoubleCount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	guest := newGuest()
	user := models.UserPrincipal("u-1", "")

	_, err := env.carts.AddItem(ctx, guest, item("a", "20", 2))
	require.NoError(t, err)
	_, err = env.carts.AddItem(ctx, guest, item("s", "30", 1))
	require.NoError(t, err)
	_, err = env.carts.MoveToSaved(ctx, guest, "s")
	require.NoError(t, err)

	boom := errors.New("mongo down")
	env.userLists.set(models.ListSaved, boom)

	_, err = env.merger.MergeGuestIntoUser(ctx, guest.ID, user.ID)
	assert.ErrorIs(t, err, boom)
	assert.True(t, env.mr.Exists("guest:"+guest.ID+":cart"))
	assert.True(t, env.mr.Exists("idempotency:cart_merge:"+guest.ID+":cart"))

	env.userLists.set("", nil)
	view, err := env.merger.MergeGuestIntoUser(ctx, guest.ID, user.ID)
	require.NoError(t, err)

	require.Len(t, view.Cart.Items, 1)
	assert.Equal(t, 2, view.Cart.Items[0].Quantity)
	require.Len(t, view.Saved.Items, 1)
	assert.False(t, env.mr.Exists("guest:"+guest.ID+":cart"))
	assert.False(t, env.mr.Exists("idempotency:cart_merge:"+guest.ID+":cart"))
}

func TestSecondSignInMergesNewGuestItems(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	guest := newGuest()
	user := models.UserPrincipal("u-1", "")

	_, err := env.carts.AddItem(ctx, guest, item("a", "20", 1))
	require.NoError(t, err)
	_, err = env.merger.MergeGuestIntoUser(ctx, guest.ID, user.ID)
	require.NoError(t, err)

	// same guest id after signing out
	_, err = env.carts.AddItem(ctx, guest, item("b", "10", 3))
	require.NoError(t, err)
	view, err := env.merger.MergeGuestIntoUser(ctx, guest.ID, user.ID)
	require.NoError(t, err)

	require.Len(t, view.Cart.Items, 2)
	assert.Equal(t, "a", view.Cart.Items[0].ID)
	assert.Equal(t, 1, view.Cart.Items[0].Quantity)
	assert.Equal(t, "b", view.Cart.Items[1].ID)
	assert.Equal(t, 3, view.Cart.Items[1].Quantity)
	assert.False(t, env.mr.Exists("guest:"+guest.ID+":cart"))
	assert.Len(t, env.publisher.merged, 2)
}

func TestMergeKeepsCartAndSavedDisjoint(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	guest := newGuest()
	user := models.UserPrincipal("u-1", "")

	// user saved a and has c in the cart
	_, err := env.carts.AddItem(ctx, user, item("a", "20", 1))
	require.NoError(t, err)
	_, err = env.carts.MoveToSaved(ctx, user, "a")
	require.NoError(t, err)
	_, err = env.carts.AddItem(ctx, user, item("c", "15", 1))
	require.NoError(t, err)

	// guest has a in the cart and saved c
	_, err = env.carts.AddItem(ctx, guest, item("a", "20", 2))
	require.NoError(t, err)
	_, err = env.carts.AddItem(ctx, guest, item("c", "15", 1))
	require.NoError(t, err)
	_, err = env.carts.MoveToSaved(ctx, guest, "c")
	require.NoError(t, err)

	view, err := env.merger.MergeGuestIntoUser(ctx, guest.ID, user.ID)
	require.NoError(t, err)

	assert.True(t, view.Cart.Contains("a"))
	assert.True(t, view.Cart.Contains("c"))
	assert.Empty(t, view.Saved.Items)
	assert.Equal(t, 2, view.Cart.Items[view.Cart.Index("a")].Quantity)
}
