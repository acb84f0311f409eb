package server

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"expertline/internal/domain"
	"expertline/internal/engine"
)

// registerPayments wires the inbound payment processor callback. The route
// bypasses user auth; the processor authenticates with a shared secret
// header instead.
func registerPayments(api huma.API, e engine.Engine, auth AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "payment-callback",
		Method:      http.MethodPost,
		Path:        "/payments/callback",
		Summary:     "Payment processor status callback",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Signature string              `header:"X-Callback-Secret"`
		Body      PaymentCallbackBody `json:"body"`
	}) (*struct {
		Body domain.Payment `json:"body"`
	}, error) {
		if auth.PaymentCallbackSecret == "" ||
			subtle.ConstantTimeCompare([]byte(input.Signature), []byte(auth.PaymentCallbackSecret)) != 1 {
			return nil, newAPIError(http.StatusUnauthorized, "AUTH_FAILED", "invalid callback secret", nil)
		}
		pay, err := e.ApplyPaymentStatus(ctx, input.Body.BookingID, input.Body.Status, input.Body.ProviderRef)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Payment `json:"body"`
		}{Body: pay}, nil
	})
}
