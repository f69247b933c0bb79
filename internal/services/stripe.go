package services

import (
	"fmt"
	"os"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/webhook"
)

type StripeService struct {
	publicKey string
	secretKey string
}

func NewStripeService(publicKey, secretKey string) *StripeService {
	stripe.Key = secretKey
	return &StripeService{
		publicKey: publicKey,
		secretKey: secretKey,
	}
}

// CreateCheckoutSession opens a payment session for a credit pack. The
// credit amount rides along in metadata and is applied to the ledger by
// the webhook once the payment completes.
func (s *StripeService) CreateCheckoutSession(userID string, credits float64, amountCents int64) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{
			"card",
		}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String("usd"),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(fmt.Sprintf("%.1f credits", credits)),
					},
					UnitAmount: &amountCents,
				},
				Quantity: stripe.Int64(1),
			},
		},
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(os.Getenv("CHECKOUT_SUCCESS_URL")),
		CancelURL:         stripe.String(os.Getenv("CHECKOUT_CANCEL_URL")),
		ClientReferenceID: stripe.String(userID),
		Metadata: map[string]string{
			"credits": fmt.Sprintf("%.2f", credits),
		},
	}

	return session.New(params)
}

func (s *StripeService) HandleWebhook(payload []byte, signatureHeader string) (stripe.Event, error) {
	endpointSecret := os.Getenv("STRIPE_WEBHOOK_SECRET")
	return webhook.ConstructEvent(payload, signatureHeader, endpointSecret)
}
