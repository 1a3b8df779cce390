package main

import (
	"context"
	"log"

	"github.com/Renal37/fulfillment-connector/internal/clients"
	"github.com/Renal37/fulfillment-connector/internal/database"
	router "github.com/Renal37/fulfillment-connector/internal/http"
	"github.com/Renal37/fulfillment-connector/internal/logger"
	"github.com/Renal37/fulfillment-connector/internal/services"
	"github.com/Renal37/fulfillment-connector/internal/skumap"
	"github.com/Renal37/fulfillment-connector/internal/utils"
)

func main() {
	ctx := context.Background()
	config := NewConfig()

	if err := config.Validate(); err != nil {
		log.Fatalf("Configuration is invalid: %s", err)
	}

	if err := logger.Initialize(config.logLevel, config.env); err != nil {
		log.Fatalf("Logger wasn't initialized due to %s", err)
	}

	db, err := database.New(ctx, config.dsn)

	if err != nil {
		log.Fatalf("Database wasn't initialized due to %s", err)
	}

	if err := db.RunMigrations(); err != nil {
		log.Fatalf("Migrations weren't run due to %s", err)
	}

	skus, err := skumap.Load(config.skuMapPath)
	if err != nil {
		log.Fatalf("SKU mapping wasn't loaded due to %s", err)
	}

	eventBus := services.NewEventBus(services.LogSink{})

	if config.webhookURL != "" {
		eventBus.AddSink(services.NewWebhookSink(config.webhookURL))
	}

	var natsSink *services.NATSSink
	if config.natsURL != "" {
		natsSink, err = services.NewNATSSink(config.natsURL)
		if err != nil {
			log.Fatalf("NATS sink wasn't initialized due to %s", err)
		}
		eventBus.AddSink(natsSink)
	}

	retryPolicy := clients.RetryPolicy{
		MaxAttempts:    config.clientMaxAttempts,
		InitialDelay:   config.retryInitialDelay,
		Multiplier:     config.retryMultiplier,
		MaxDelay:       config.retryMaxDelay,
		PerCallTimeout: config.callTimeout,
	}
	marketplaceClient := clients.NewMarketplaceClient(config.marketplaceEndpoint, config.marketplaceRPS, retryPolicy)
	fulfillmentClient := clients.NewFulfillmentClient(config.fulfillmentEndpoint, config.fulfillmentRPS, retryPolicy)

	// Пул заказов держит основную нагрузку; у трекинга и остатков свои
	// воркеры, чтобы троттлинг одного провайдера не останавливал остальные
	// циклы.
	ordersQueue := services.NewJobQueueService(ctx, config.queueCapacity, config.workers)
	trackingQueue := services.NewJobQueueService(ctx, 1, 1)
	inventoryQueue := services.NewJobQueueService(ctx, 1, 1)

	inventoryService := services.NewInventoryService(fulfillmentClient)

	pipelineService := services.NewPipelineService(
		db,
		services.NewValidationService(skus),
		services.NewTransformService(skus),
		inventoryService,
		fulfillmentClient,
		eventBus,
		ordersQueue,
		services.PipelineConfig{
			MaxRetryAttempts: config.maxRetryAttempts,
			RetryDelay:       config.retryDelay,
			MaxHoldCycles:    config.maxHoldCycles,
			InventoryGuardOn: config.inventoryGuard,
		},
	)

	trackingService := services.NewTrackingService(
		db,
		fulfillmentClient,
		marketplaceClient,
		eventBus,
		config.stalenessThreshold,
	)

	scheduler := services.NewScheduler(
		services.SchedulerConfig{
			OrderPollInterval:     config.orderPollInterval,
			TrackingSyncInterval:  config.trackingSyncInterval,
			InventorySyncInterval: config.inventorySyncInterval,
			PageSize:              config.pageSize,
		},
		services.SchedulerQueues{
			Orders:    ordersQueue,
			Tracking:  trackingQueue,
			Inventory: inventoryQueue,
		},
		marketplaceClient,
		pipelineService,
		trackingService,
		inventoryService,
		skus,
	)

	if err := scheduler.Start(ctx); err != nil {
		log.Fatalf("Scheduler wasn't started due to %s", err)
	}

	log.Printf("Running operator API on %s\n", config.endpoint)

	utils.HandleTerminationProcess(func() {
		ordersQueue.Shutdown()
		trackingQueue.Shutdown()
		inventoryQueue.Shutdown()
		if natsSink != nil {
			natsSink.Close()
		}
		logger.Sync()
	})

	router.New(
		router.Config{Endpoint: config.endpoint, AuthSecretKey: config.authSecretKey},
		services.NewRecordQueryService(db),
		pipelineService,
	).Run()
}
