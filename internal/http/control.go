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

// controlOperation runs one operator action and maps the pipeline errors to
// HTTP statuses the same way for redrive, cancel and resume.
func controlOperation(w http.ResponseWriter, r *http.Request, operation func(models.PipelineControlService, string) error) {
	pipelineService := middlewares.GetServiceFromContext[models.PipelineControlService](w, r, middlewares.PipelineServiceKey)
	orderID := chi.URLParam(r, "orderID")

	if err := operation(*pipelineService, orderID); err != nil {
		if errors.Is(err, services.ErrUnknownOrder) {
			http.Error(w, "Order is not known to the connector", http.StatusNotFound)
			return
		}

		if errors.Is(err, services.ErrInvalidOperation) {
			http.Error(w, "Operation is not valid for the current order status", http.StatusConflict)
			return
		}

		http.Error(w, fmt.Sprintf("Error occurred during operation: %s", err.Error()), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func RedriveOrder(w http.ResponseWriter, r *http.Request) {
	controlOperation(w, r, func(pipeline models.PipelineControlService, orderID string) error {
		return pipeline.Redrive(r.Context(), orderID)
	})
}

func CancelOrder(w http.ResponseWriter, r *http.Request) {
	controlOperation(w, r, func(pipeline models.PipelineControlService, orderID string) error {
		return pipeline.Cancel(r.Context(), orderID)
	})
}

func ResumeOrder(w http.ResponseWriter, r *http.Request) {
	controlOperation(w, r, func(pipeline models.PipelineControlService, orderID string) error {
		return pipeline.Resume(r.Context(), orderID)
	})
}
