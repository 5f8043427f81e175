package service

import (
	"context"
	"errors"
	"testing"

	"storefront-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeginPrefillsFromProfile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := &models.User{ID: "u-1", Email: "ada@example.com", Name: "Ada", Address: "12 Analytical Way", City: "London", ZipCode: "10001"}
	require.NoError(t, env.users.CreateUser(ctx, user))

	session, err := env.checkout.Begin(ctx, models.UserPrincipal("u-1", "ada@example.com"))
	require.NoError(t, err)
	assert.Equal(t, models.StepCollectingInfo, session.Step)
	assert.Equal(t, "Ada", session.Customer.Name)
	assert.Equal(t, "London", session.Customer.City)
	assert.Equal(t, "standard", session.ShippingTier)
}

func TestBeginPrefillsGuestEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	guest := newGuest()

	require.NoError(t, env.redis.SetGuestEmail(ctx, guest.ID, "guest@example.com", 0))

	session, err := env.checkout.Begin(ctx, guest)
	require.NoError(t, err)
	assert.Equal(t, "guest@example.com", session.Customer.Email)
	assert.Empty(t, session.Customer.Name)
}

func TestSubmitCustomerInfoValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	guest := newGuest()

	info := validCustomer()
	info.Email = "not-an-email"
	info.Phone = "   "

	_, err := env.checkout.SubmitCustomerInfo(ctx, guest, info)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Fields, 2)
	assert.Contains(t, verr.Fields, "email")
	assert.Contains(t, verr.Fields, "phone")

	session, err := env.checkout.Begin(ctx, guest)
	require.NoError(t, err)
	assert.Equal(t, models.StepCollectingInfo, session.Step)
}

func TestSubmitBackKeepsValues(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	guest := newGuest()

	info := validCustomer()
	info.Name = "  Ada Lovelace  "
	session, err := env.checkout.SubmitCustomerInfo(ctx, guest, info)
	require.NoError(t, err)
	assert.Equal(t, models.StepShippingAndPay, session.Step)
	assert.Equal(t, "Ada Lovelace", session.Customer.Name)

	email, err := env.redis.GetGuestEmail(ctx, guest.ID)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", email)

	session, err = env.checkout.Back(ctx, guest)
	require.NoError(t, err)
	assert.Equal(t, models.StepCollectingInfo, session.Step)
	assert.Equal(t, validCustomer(), session.Customer)
}

func TestShippingOptions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	guest := newGuest()

	_, err := env.checkout.ShippingOptions(ctx, guest)
	assert.ErrorIs(t, err, ErrEmptyCart)

	_, err = env.carts.AddItem(ctx, guest, item("a", "20", 3))
	require.NoError(t, err)

	options, err := env.checkout.ShippingOptions(ctx, guest)
	require.NoError(t, err)
	require.Len(t, options, 2)
	assert.True(t, decimal.RequireFromString("12.99").Equal(options[0].Price))
	assert.True(t, decimal.RequireFromString("32.99").Equal(options[1].Price))
}

func TestSelectShipping(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	guest := newGuest()

	_, err := env.carts.AddItem(ctx, guest, item("a", "20", 2))
	require.NoError(t, err)

	_, err = env.checkout.SelectShipping(ctx, guest, "express")
	assert.ErrorIs(t, err, ErrInvalidCheckoutStep)

	_, err = env.checkout.SubmitCustomerInfo(ctx, guest, validCustomer())
	require.NoError(t, err)

	_, err = env.checkout.SelectShipping(ctx, guest, "drone")
	assert.ErrorIs(t, err, ErrUnknownShippingTier)

	quote, err := env.checkout.Quote(ctx, guest)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("52.99").Equal(quote.Total))
	assert.Equal(t, int64(5299), quote.AmountCents)
	assert.Equal(t, "usd", quote.Currency)

	intent, err := env.coordinator.CreateIntent(ctx, guest)
	require.NoError(t, err)
	assert.Equal(t, int64(5299), intent.Quote.AmountCents)

	quote, err = env.checkout.SelectShipping(ctx, guest, "express")
	require.NoError(t, err)
	assert.Equal(t, "express", quote.Shipping.ID)
	assert.True(t, decimal.RequireFromString("72.99").Equal(quote.Total))

	session, err := env.checkout.Begin(ctx, guest)
	require.NoError(t, err)
	assert.Equal(t, "express", session.ShippingTier)
	assert.Nil(t, session.Intent)
}

func TestFreeStandardShippingOverThreshold(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	guest := newGuest()

	env.readyToPay(t, guest, item("a", "100", 2))

	quote, err := env.checkout.Quote(ctx, guest)
	require.NoError(t, err)
	assert.True(t, quote.Shipping.Price.IsZero())
	assert.True(t, decimal.NewFromInt(200).Equal(quote.Total))
}
