package router

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Renal37/fulfillment-connector/internal/middlewares"
	"github.com/Renal37/fulfillment-connector/internal/models"
	"github.com/Renal37/fulfillment-connector/internal/services"
)

func Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func GetOrders(w http.ResponseWriter, r *http.Request) {
	recordService := middlewares.GetServiceFromContext[models.RecordService](w, r, middlewares.RecordServiceKey)

	status := r.URL.Query().Get("status")

	records, err := (*recordService).GetRecords(r.Context(), status)
	if err != nil {
		if errors.Is(err, services.ErrUnknownStatus) {
			http.Error(w, fmt.Sprintf("Unknown status filter %q", status), http.StatusBadRequest)
			return
		}

		http.Error(w, fmt.Sprintf("Error occurred during getting orders: %s", err.Error()), http.StatusInternalServerError)
		return
	}

	if len(records) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	middlewares.EncodeJSONResponse(w, records)
}

func GetOrder(w http.ResponseWriter, r *http.Request) {
	recordService := middlewares.GetServiceFromContext[models.RecordService](w, r, middlewares.RecordServiceKey)
	orderID := chi.URLParam(r, "orderID")

	record, err := (*recordService).GetRecord(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, services.ErrUnknownOrder) {
			http.Error(w, "Order is not known to the connector", http.StatusNotFound)
			return
		}

		http.Error(w, fmt.Sprintf("Error occurred during getting order: %s", err.Error()), http.StatusInternalServerError)
		return
	}

	middlewares.EncodeJSONResponse(w, record)
}

func GetOrderHistory(w http.ResponseWriter, r *http.Request) {
	recordService := middlewares.GetServiceFromContext[models.RecordService](w, r, middlewares.RecordServiceKey)
	orderID := chi.URLParam(r, "orderID")

	history, err := (*recordService).GetHistory(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, services.ErrUnknownOrder) {
			http.Error(w, "Order is not known to the connector", http.StatusNotFound)
			return
		}

		http.Error(w, fmt.Sprintf("Error occurred during getting order history: %s", err.Error()), http.StatusInternalServerError)
		return
	}

	middlewares.EncodeJSONResponse(w, history)
}
