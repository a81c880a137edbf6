package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v3"

	campaignsvc "github.com/Jose00521/Raffle-sub003/internal/api/campaign/service"
	invhdl "github.com/Jose00521/Raffle-sub003/internal/api/inventory/handler"
	invsvc "github.com/Jose00521/Raffle-sub003/internal/api/inventory/service"
	statshdl "github.com/Jose00521/Raffle-sub003/internal/api/stats/handler"
	statssvc "github.com/Jose00521/Raffle-sub003/internal/api/stats/service"
	"github.com/Jose00521/Raffle-sub003/internal/database"
	"github.com/Jose00521/Raffle-sub003/internal/global"
	"github.com/Jose00521/Raffle-sub003/internal/logger"
	"github.com/Jose00521/Raffle-sub003/internal/worker"
)

// initLogger khởi tạo logger cho toàn bộ ứng dụng
func initLogger() {
	if err := logger.Init(nil); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	logger.GetAppLogger().Info("Logger system initialized successfully")
}

// initStatsPipeline nối các mảnh của pipeline thống kê: session pool ->
// update processor -> batch processor -> change stream monitor.
// Trả về notifier (cho HTTP handler) và hàm dừng pipeline.
func initStatsPipeline(ctx context.Context) (*statssvc.Notifier, func(), error) {
	cfg := global.ServerConfig
	log := logger.GetAppLogger()

	pool, err := statssvc.NewSessionPool(global.MongoDB_Session, cfg.Stats_SessionPoolSize)
	if err != nil {
		return nil, nil, err
	}

	notifier := statssvc.NewNotifier()
	processor, err := statssvc.NewStatsUpdateProcessor(pool, notifier)
	if err != nil {
		pool.Close(ctx)
		return nil, nil, err
	}

	batcher := statssvc.NewBatchProcessor(statssvc.BatchConfig{
		BatchSize:       cfg.Stats_BatchSize,
		Debounce:        time.Duration(cfg.Stats_DebounceMs) * time.Millisecond,
		BacklogWarnSize: cfg.Stats_BacklogWarnSize,
	}, processor.HandleBatch)

	paymentCol, err := global.RegistryCollections.MustGet(global.MongoDB_ColNames.Payments)
	if err != nil {
		pool.Close(ctx)
		return nil, nil, err
	}

	// Thanh toán xác nhận chốt number_statuses sang sold trước khi vào batch,
	// để worker thu hồi giữ chỗ không thả lại các số đã bán.
	numberStatuses, err := campaignsvc.NewNumberStatusService()
	if err != nil {
		pool.Close(ctx)
		return nil, nil, err
	}
	monitor := statssvc.NewPaymentMonitor(paymentCol,
		time.Duration(cfg.Stats_MonitorCooldown)*time.Second,
		statssvc.NewConfirmationSink(ctx, numberStatuses, batcher.Enqueue),
	)

	go monitor.Start(ctx)
	log.Info("📈 [STATS] Stats pipeline started successfully")

	stop := func() {
		batcher.Stop()
		notifier.Close()
		pool.Close(context.Background())
	}
	return notifier, stop, nil
}

// main_thread khởi tạo và chạy Fiber server trên main thread
func main_thread(inventoryHandler *invhdl.InventoryHandler, statsHandler *statshdl.StatsHandler) {
	app := InitFiberApp(inventoryHandler, statsHandler)

	address := global.ServerConfig.Address
	log := logger.GetAppLogger()
	log.WithFields(map[string]interface{}{
		"address":  address,
		"protocol": "HTTP",
	}).Info("Starting Fiber server...")

	if err := app.Listen(address, fiber.ListenConfig{}); err != nil {
		log.Fatalf("Error in Fiber Listen: %v", err)
	}
}

// Hàm main
func main() {
	// Khởi tạo logger
	initLogger()

	// Khởi tạo các biến toàn cục
	InitGlobal()

	// Khởi tạo registry
	InitRegistry()

	log := logger.GetAppLogger()
	cfg := global.ServerConfig

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Allocation engine dùng chung cho HTTP handler và worker
	engine, err := invsvc.NewAllocationEngine()
	if err != nil {
		log.Fatalf("Failed to create allocation engine: %v", err)
	}

	// Pipeline thống kê (change stream -> batch -> snapshot -> notifier)
	notifier, stopStats, err := initStatsPipeline(ctx)
	if err != nil {
		log.Fatalf("Failed to start stats pipeline: %v", err)
	}
	defer stopStats()

	// Worker thu hồi giữ chỗ hết hạn
	expiryWorker, err := worker.NewReservationExpiryWorker(engine,
		time.Duration(cfg.Worker_ExpiryIntervalSec)*time.Second, 500)
	if err != nil {
		log.Fatalf("Failed to create reservation expiry worker: %v", err)
	}
	go expiryWorker.Start(ctx)

	// Worker reconcile thống kê từ ledger
	reconcileWorker, err := worker.NewStatsReconcileWorker(
		time.Duration(cfg.Worker_ReconcileIntervalSec)*time.Second, 20)
	if err != nil {
		log.Fatalf("Failed to create stats reconcile worker: %v", err)
	}
	go reconcileWorker.Start(ctx)

	// HTTP handlers
	inventoryHandler, err := invhdl.NewInventoryHandler(engine)
	if err != nil {
		log.Fatalf("Failed to create inventory handler: %v", err)
	}
	statsHandler, err := statshdl.NewStatsHandler(notifier)
	if err != nil {
		log.Fatalf("Failed to create stats handler: %v", err)
	}

	defer func() {
		if err := database.CloseInstance(global.MongoDB_Session); err != nil {
			log.WithError(err).Warn("Error closing MongoDB connection")
		}
	}()

	// Chạy Fiber server trên main thread
	main_thread(inventoryHandler, statsHandler)
}
