package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	logger "github.com/sirupsen/logrus"

	"walletexchange/src/auth"
	"walletexchange/src/book"
	"walletexchange/src/model"
)

type depthReader interface {
	Depth(ctx context.Context, baseCurrency, quoteCurrency string, levels int) (*book.DepthSnapshot, error)
}

type priceHistorian interface {
	PriceHistory(ctx context.Context, user *model.User, orderID uint, limit, offset int) (*book.PriceHistoryResult, error)
}

// DepthHandler returns a handler serving the aggregated order book for
// a pair. The snapshot is public market data, no identity required.
func DepthHandler(svc depthReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		base := r.URL.Query().Get("base")
		quote := r.URL.Query().Get("quote")

		levels := 0
		if levelsParam := r.URL.Query().Get("levels"); levelsParam != "" {
			parsed, err := strconv.Atoi(levelsParam)
			if err != nil || parsed <= 0 {
				http.Error(w, "invalid levels", http.StatusBadRequest)
				return
			}
			levels = parsed
		}

		snapshot, err := svc.Depth(r.Context(), base, quote, levels)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(snapshot); err != nil {
			logger.WithError(err).Error("failed to encode depth response")
		}
	}
}

// PriceHistoryHandler returns a handler serving the dynamic price trail
// of one of the authenticated user's orders.
func PriceHistoryHandler(svc priceHistorian) http.HandlerFunc {
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

		page := 1
		if pageParam := r.URL.Query().Get("page"); pageParam != "" {
			parsedPage, err := strconv.Atoi(pageParam)
			if err != nil || parsedPage <= 0 {
				http.Error(w, "invalid page", http.StatusBadRequest)
				return
			}
			page = parsedPage
		}

		pageSize := 50
		if sizeParam := r.URL.Query().Get("pageSize"); sizeParam != "" {
			parsedSize, err := strconv.Atoi(sizeParam)
			if err != nil || parsedSize <= 0 {
				http.Error(w, "invalid pageSize", http.StatusBadRequest)
				return
			}
			pageSize = parsedSize
		}

		result, err := svc.PriceHistory(r.Context(), user, orderID, pageSize, (page-1)*pageSize)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(result); err != nil {
			logger.WithError(err).Error("failed to encode price history response")
		}
	}
}
