package middlewares

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Renal37/fulfillment-connector/internal/models"
)

type key int

const (
	RecordServiceKey key = iota
	PipelineServiceKey
)

func ServiceInjectorMiddleware(
	recordService models.RecordService,
	pipelineService models.PipelineControlService,
) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), RecordServiceKey, recordService)
			ctx = context.WithValue(ctx, PipelineServiceKey, pipelineService)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetServiceFromContext[Service interface{}](w http.ResponseWriter, r *http.Request, serviceKey key) *Service {
	foundService, ok := r.Context().Value(serviceKey).(Service)

	if !ok {
		http.Error(w, fmt.Sprintf("Service wasn't found in context by key %v", serviceKey), http.StatusInternalServerError)
		return nil
	}

	return &foundService
}
