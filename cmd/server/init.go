package main

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/Jose00521/Raffle-sub003/config"
	campaignmodels "github.com/Jose00521/Raffle-sub003/internal/api/campaign/models"
	invmodels "github.com/Jose00521/Raffle-sub003/internal/api/inventory/models"
	paymentmodels "github.com/Jose00521/Raffle-sub003/internal/api/payment/models"
	statsmodels "github.com/Jose00521/Raffle-sub003/internal/api/stats/models"
	"github.com/Jose00521/Raffle-sub003/internal/database"
	"github.com/Jose00521/Raffle-sub003/internal/global"
)

// Hàm khởi tạo các biến toàn cục
func InitGlobal() {
	initColNames()         // Khởi tạo tên các collection trong database
	initValidator()        // Khởi tạo validator
	initConfig()           // Khởi tạo cấu hình server
	initDatabase_MongoDB() // Khởi tạo kết nối database
}

// Hàm khởi tạo tên các collection trong database
func initColNames() {
	global.MongoDB_ColNames.Campaigns = "campaigns"
	global.MongoDB_ColNames.NumberStatuses = "number_statuses"

	// Inventory: index khả dụng của số vé
	global.MongoDB_ColNames.NumberSingleIndexes = "number_single_indexes"
	global.MongoDB_ColNames.NumberShards = "number_shards"
	global.MongoDB_ColNames.NumberShardMeta = "number_shard_meta"

	// Stats: ledger thanh toán và dẫn xuất
	global.MongoDB_ColNames.Payments = "payments"
	global.MongoDB_ColNames.StatsSnapshots = "stats_snapshots"
	global.MongoDB_ColNames.StatsReconcileQueue = "stats_reconcile_queue"

	logrus.Info("Initialized collection names")
}

// Hàm khởi tạo validator
func initValidator() {
	global.InitValidator()
	logrus.Info("Initialized validator")
}

// Hàm khởi tạo cấu hình server
func initConfig() {
	global.ServerConfig = config.NewConfig()
	if global.ServerConfig == nil {
		logrus.Fatalf("Failed to initialize config: config is nil")
	}
	logrus.Info("Initialized server config")
}

// Hàm khởi tạo kết nối database
func initDatabase_MongoDB() {
	var err error
	global.MongoDB_Session, err = database.GetInstance(global.ServerConfig)
	if err != nil {
		logrus.Fatalf("Failed to get database instance: %v", err)
	}
	logrus.Info("Connected to MongoDB")

	// Khởi tạo các db và collections nếu chưa có
	if err := database.EnsureDatabaseAndCollections(global.MongoDB_Session); err != nil {
		logrus.Fatalf("Failed to ensure database and collections: %v", err)
	}
	logrus.Info("Ensured database and collections")

	// Khởi tạo các index cho các collection. Index unique của shard/meta là
	// chốt chặn cuối của bất biến shard set nên build lỗi phải dừng hẳn.
	dbName := global.ServerConfig.MongoDB_DBName
	db := global.MongoDB_Session.Database(dbName)
	indexTargets := []struct {
		name  string
		model interface{}
	}{
		{global.MongoDB_ColNames.Campaigns, campaignmodels.Campaign{}},
		{global.MongoDB_ColNames.NumberStatuses, campaignmodels.NumberStatus{}},
		{global.MongoDB_ColNames.NumberSingleIndexes, invmodels.NumberSingleIndex{}},
		{global.MongoDB_ColNames.NumberShards, invmodels.NumberShard{}},
		{global.MongoDB_ColNames.NumberShardMeta, invmodels.NumberShardMeta{}},
		{global.MongoDB_ColNames.Payments, paymentmodels.Payment{}},
		{global.MongoDB_ColNames.StatsSnapshots, statsmodels.StatsSnapshot{}},
		{global.MongoDB_ColNames.StatsReconcileQueue, statsmodels.StatsReconcileItem{}},
	}
	for _, target := range indexTargets {
		if err := database.CreateIndexes(context.TODO(), db.Collection(target.name), target.model); err != nil {
			logrus.Fatalf("Failed to create indexes for collection %s: %v", target.name, err)
		}
	}
}
