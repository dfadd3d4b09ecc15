package handler

import (
	"errors"
	"net/http"

	logger "github.com/sirupsen/logrus"

	"walletexchange/src/exchange"
)

// writeDomainError translates the engine's sentinel errors to HTTP
// statuses. Anything unrecognised is logged and hidden behind a 500.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, exchange.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, exchange.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, exchange.ErrInvalidStateTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, exchange.ErrInsufficientFunds),
		errors.Is(err, exchange.ErrLiquidityUnavailable),
		errors.Is(err, exchange.ErrSlippageExceeded):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		logger.WithError(err).Error("unexpected error handling request")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
