package handlers

import (
	"context"

	"github.com/polkiloo/orderpipeline/internal/domain/model"
)

// OrderFacade encapsulates order operations exposed via HTTP.
type OrderFacade interface {
	CreateOrder(ctx context.Context, intent model.OrderIntent, requestKey string) (*model.Order, error)
	Order(ctx context.Context, id string) (*model.Order, error)
}

// HealthFacade reports readiness of backing services.
type HealthFacade interface {
	Health(ctx context.Context) error
}

// PipelineFacade aggregates the operations used across handlers.
type PipelineFacade interface {
	OrderFacade
	HealthFacade
}
