package handler

import (
	"context"
	"encoding/json"
	"net/http"

	logger "github.com/sirupsen/logrus"

	"walletexchange/src/auth"
	"walletexchange/src/model"
)

type dynamicPricingDisabler interface {
	DisableForOrder(ctx context.Context, user *model.User, orderID uint) (*model.Order, error)
}

// DisableDynamicPricingHandler returns a handler that turns dynamic
// pricing off for one of the authenticated user's orders. Repeating the
// call is a no-op.
func DisableDynamicPricingHandler(svc dynamicPricingDisabler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := auth.GetUserFromContext(r.Context())
		if !ok || user == nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			http.Error(w, "invalid order id", http.StatusBadRequest)
			return
		}

		order, err := svc.DisableForOrder(r.Context(), user, orderID)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(order); err != nil {
			logger.WithError(err).Error("failed to encode disable dynamic pricing response")
		}
	}
}
