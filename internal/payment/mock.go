package payment

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Test payment methods understood by MockProvider. Anything else succeeds.
const (
	TestCardVisa           = "pm_card_visa"
	TestCardDeclined       = "pm_card_chargeDeclined"
	TestCardAuthRequired   = "pm_card_authenticationRequired"
	TestCardStillPending   = "pm_card_processing"
	TestCardNetworkFailure = "pm_card_networkFailure"
)

// MockProvider keeps intents in memory. It backs local development and tests.
type MockProvider struct {
	mu          sync.Mutex
	intents     map[string]*Intent
	unavailable bool
	calls       map[string]int
}

func NewMockProvider() *MockProvider {
	return &MockProvider{
		intents: make(map[string]*Intent),
		calls:   make(map[string]int),
	}
}

// SetUnavailable makes every call fail as if the provider were unreachable
func (m *MockProvider) SetUnavailable(down bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unavailable = down
}

// Calls returns how many times method was invoked
func (m *MockProvider) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// MarkSucceeded flips an intent to succeeded, as an out-of-band capture would
func (m *MockProvider) MarkSucceeded(intentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if in, ok := m.intents[intentID]; ok {
		in.Status = StatusSucceeded
	}
}

func (m *MockProvider) begin(method string) error {
	m.calls[method]++
	if m.unavailable {
		return fmt.Errorf("%w: mock provider is down", ErrProviderUnavailable)
	}
	return nil
}

func (m *MockProvider) CreateIntent(_ context.Context, params CreateParams) (*Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.begin("CreateIntent"); err != nil {
		return nil, err
	}
	if params.AmountCents <= 0 {
		return nil, ErrInvalidAmount
	}

	id := "pi_mock_" + strings.ReplaceAll(uuid.New().String(), "-", "")
	in := &Intent{
		ID:           id,
		ClientSecret: id + "_secret_" + uuid.New().String()[:8],
		Status:       StatusRequiresPaymentMethod,
		Amount:       params.AmountCents,
		Currency:     params.Currency,
		Created:      time.Now().UTC(),
		Metadata:     params.Metadata,
	}
	m.intents[id] = in

	c := *in
	return &c, nil
}

func (m *MockProvider) ConfirmIntent(_ context.Context, intentID, paymentMethod string, _ BillingDetails) (*Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.begin("ConfirmIntent"); err != nil {
		return nil, err
	}
	in, ok := m.intents[intentID]
	if !ok {
		return nil, ErrIntentNotFound
	}
	if in.Status == StatusSucceeded {
		c := *in
		return &c, nil
	}

	in.PaymentMethod = paymentMethod
	switch paymentMethod {
	case TestCardDeclined:
		in.Status = StatusRequiresPaymentMethod
		return nil, &CardError{Code: "card_declined", DeclineCode: "generic_decline", Message: "Your card was declined."}
	case TestCardNetworkFailure:
		return nil, fmt.Errorf("%w: connection reset", ErrProviderUnavailable)
	case TestCardAuthRequired:
		in.Status = StatusRequiresAction
	case TestCardStillPending:
		in.Status = StatusProcessing
	default:
		in.Status = StatusSucceeded
	}

	c := *in
	return &c, nil
}

func (m *MockProvider) GetIntent(_ context.Context, intentID string) (*Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.begin("GetIntent"); err != nil {
		return nil, err
	}
	in, ok := m.intents[intentID]
	if !ok {
		return nil, ErrIntentNotFound
	}
	c := *in
	return &c, nil
}
