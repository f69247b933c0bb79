package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"vidscribe_go_backend/internal/models"
	"vidscribe_go_backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
)

type webhookLedger struct {
	mock.Mock
}

func (m *webhookLedger) Debit(ctx context.Context, userID uuid.UUID, amount float64, kind, description, reference string) error {
	args := m.Called(ctx, userID, amount, kind, description, reference)
	return args.Error(0)
}

func (m *webhookLedger) Credit(ctx context.Context, userID uuid.UUID, amount float64, kind, description, reference string) error {
	args := m.Called(ctx, userID, amount, kind, description, reference)
	return args.Error(0)
}

func (m *webhookLedger) CreditOnce(ctx context.Context, userID uuid.UUID, amount float64, kind, description, reference string) error {
	args := m.Called(ctx, userID, amount, kind, description, reference)
	return args.Error(0)
}

func (m *webhookLedger) RefundOnce(ctx context.Context, userID uuid.UUID, reference, description string) (float64, error) {
	args := m.Called(ctx, userID, reference, description)
	return args.Get(0).(float64), args.Error(1)
}

func (m *webhookLedger) Balance(ctx context.Context, userID uuid.UUID) (float64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(float64), args.Error(1)
}

func (m *webhookLedger) Transactions(ctx context.Context, userID uuid.UUID) ([]models.CreditTransaction, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.CreditTransaction), args.Error(1)
}

func webhookTestContext(t *testing.T) *gin.Context {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(w)
	req, err := http.NewRequest("POST", "/api/stripe/webhook", nil)
	require.NoError(t, err)
	ctx.Request = req
	return ctx
}

func TestApplyCompletedCheckoutCreditsPurchase(t *testing.T) {
	ledger := new(webhookLedger)
	userID := uuid.New()
	session := stripe.CheckoutSession{
		ID:                "cs_test_123",
		ClientReferenceID: userID.String(),
		Metadata:          map[string]string{"credits": "25.00"},
	}

	ledger.On("CreditOnce", mock.Anything, userID, 25.0, models.TransactionPurchase, "credit purchase", "cs_test_123").Return(nil).Once()

	err := applyCompletedCheckout(webhookTestContext(t), session, ledger)
	require.NoError(t, err)
	ledger.AssertExpectations(t)
	ledger.AssertNotCalled(t, "Credit", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestApplyCompletedCheckoutRedeliveryAcksWithoutCrediting(t *testing.T) {
	ledger := new(webhookLedger)
	userID := uuid.New()
	session := stripe.CheckoutSession{
		ID:                "cs_test_replay",
		ClientReferenceID: userID.String(),
		Metadata:          map[string]string{"credits": "10.00"},
	}

	ledger.On("CreditOnce", mock.Anything, userID, 10.0, models.TransactionPurchase, "credit purchase", "cs_test_replay").Return(nil).Once()
	ledger.On("CreditOnce", mock.Anything, userID, 10.0, models.TransactionPurchase, "credit purchase", "cs_test_replay").Return(services.ErrAlreadyCredited).Once()

	require.NoError(t, applyCompletedCheckout(webhookTestContext(t), session, ledger))
	// The redelivered event is acknowledged as success so the sender
	// stops retrying, but no second credit lands.
	require.NoError(t, applyCompletedCheckout(webhookTestContext(t), session, ledger))

	ledger.AssertExpectations(t)
	ledger.AssertNumberOfCalls(t, "CreditOnce", 2)
}

func TestApplyCompletedCheckoutRejectsBadPayloads(t *testing.T) {
	ledger := new(webhookLedger)

	err := applyCompletedCheckout(webhookTestContext(t), stripe.CheckoutSession{
		ID:                "cs_test_bad_user",
		ClientReferenceID: "not-a-uuid",
		Metadata:          map[string]string{"credits": "10.00"},
	}, ledger)
	assert.Error(t, err)

	err = applyCompletedCheckout(webhookTestContext(t), stripe.CheckoutSession{
		ID:                "cs_test_bad_credits",
		ClientReferenceID: uuid.New().String(),
		Metadata:          map[string]string{"credits": "lots"},
	}, ledger)
	assert.Error(t, err)

	ledger.AssertNotCalled(t, "CreditOnce", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
