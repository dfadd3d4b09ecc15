package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"walletexchange/src/auth"
	"walletexchange/src/book"
	"walletexchange/src/model"
	"walletexchange/src/repository"
)

type orderPlacer interface {
	PlaceOrder(ctx context.Context, user *model.User, req book.PlaceOrderRequest) (*model.Order, error)
}

type orderCanceller interface {
	Cancel(ctx context.Context, user *model.User, orderID uint) (*model.Order, error)
}

type orderHistorian interface {
	History(ctx context.Context, user *model.User, options repository.OrderSearchOptions) ([]model.Order, error)
}

type placeOrderPayload struct {
	Side                  string  `json:"side"`
	Type                  string  `json:"type"`
	BaseCurrency          string  `json:"base_currency"`
	QuoteCurrency         string  `json:"quote_currency"`
	Quantity              string  `json:"quantity"`
	Price                 string  `json:"price"`
	DynamicPricingEnabled bool    `json:"dynamic_pricing_enabled"`
	SlippageLimit         *string `json:"slippage_limit"`
}

// PlaceOrderHandler returns a handler that places a limit or market
// order for the authenticated user.
func PlaceOrderHandler(svc orderPlacer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := auth.GetUserFromContext(r.Context())
		if !ok || user == nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		var payload placeOrderPayload
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&payload); err != nil {
			logger.WithError(err).Warn("invalid place order payload")
			http.Error(w, "Invalid payload", http.StatusBadRequest)
			return
		}

		quantity, err := decimal.NewFromString(payload.Quantity)
		if err != nil {
			http.Error(w, "invalid quantity", http.StatusBadRequest)
			return
		}

		price := decimal.Zero
		if payload.Price != "" {
			price, err = decimal.NewFromString(payload.Price)
			if err != nil {
				http.Error(w, "invalid price", http.StatusBadRequest)
				return
			}
		}

		var slippageLimit *decimal.Decimal
		if payload.SlippageLimit != nil {
			parsed, err := decimal.NewFromString(*payload.SlippageLimit)
			if err != nil {
				http.Error(w, "invalid slippage_limit", http.StatusBadRequest)
				return
			}
			slippageLimit = &parsed
		}

		order, err := svc.PlaceOrder(r.Context(), user, book.PlaceOrderRequest{
			Side:                  payload.Side,
			Type:                  payload.Type,
			BaseCurrency:          payload.BaseCurrency,
			QuoteCurrency:         payload.QuoteCurrency,
			Quantity:              quantity,
			Price:                 price,
			DynamicPricingEnabled: payload.DynamicPricingEnabled,
			SlippageLimit:         slippageLimit,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		if err := json.NewEncoder(w).Encode(order); err != nil {
			logger.WithError(err).Error("failed to encode place order response")
		}
	}
}

// CancelOrderHandler returns a handler that cancels one of the
// authenticated user's open orders.
func CancelOrderHandler(svc orderCanceller) http.HandlerFunc {
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

		order, err := svc.Cancel(r.Context(), user, orderID)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(order); err != nil {
			logger.WithError(err).Error("failed to encode cancel order response")
		}
	}
}

// SearchOrdersHandler returns a handler that lists orders for the
// authenticated user. Supports pagination and filters (status, base,
// quote, createdFrom, createdTo).
func SearchOrdersHandler(svc orderHistorian) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := auth.GetUserFromContext(r.Context())
		if !ok || user == nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		var status *string
		if statusParam := r.URL.Query().Get("status"); statusParam != "" {
			status = &statusParam
		}

		var base, quote *string
		if baseParam := r.URL.Query().Get("base"); baseParam != "" {
			base = &baseParam
		}
		if quoteParam := r.URL.Query().Get("quote"); quoteParam != "" {
			quote = &quoteParam
		}

		var createdFrom, createdTo *time.Time
		if createdFromParam := r.URL.Query().Get("createdFrom"); createdFromParam != "" {
			parsed, err := time.Parse(time.RFC3339, createdFromParam)
			if err != nil {
				http.Error(w, "invalid createdFrom", http.StatusBadRequest)
				return
			}
			createdFrom = &parsed
		}

		if createdToParam := r.URL.Query().Get("createdTo"); createdToParam != "" {
			parsed, err := time.Parse(time.RFC3339, createdToParam)
			if err != nil {
				http.Error(w, "invalid createdTo", http.StatusBadRequest)
				return
			}
			createdTo = &parsed
		}

		page := 1
		if pageParam := r.URL.Query().Get("page"); pageParam != "" {
			parsedPage, err := strconv.Atoi(pageParam)
			if err != nil || parsedPage <= 0 {
				http.Error(w, "invalid page", http.StatusBadRequest)
				return
			}
			page = parsedPage
		}

		pageSize := 20
		if sizeParam := r.URL.Query().Get("pageSize"); sizeParam != "" {
			parsedSize, err := strconv.Atoi(sizeParam)
			if err != nil || parsedSize <= 0 {
				http.Error(w, "invalid pageSize", http.StatusBadRequest)
				return
			}
			pageSize = parsedSize
		}

		offset := (page - 1) * pageSize

		orders, err := svc.History(r.Context(), user, repository.OrderSearchOptions{
			Status:        status,
			BaseCurrency:  base,
			QuoteCurrency: quote,
			CreatedAfter:  createdFrom,
			CreatedBefore: createdTo,
			Limit:         pageSize,
			Offset:        offset,
		})
		if err != nil {
			logger.WithError(err).Error("failed to search orders")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(orders); err != nil {
			logger.WithError(err).Error("failed to encode order search response")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
	}
}

func parseOrderID(r *http.Request) (uint, error) {
	raw := chi.URLParam(r, "orderID")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}
