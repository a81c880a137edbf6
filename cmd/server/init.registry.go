package main

import (
	"github.com/sirupsen/logrus"

	"github.com/Jose00521/Raffle-sub003/internal/global"
)

// InitRegistry đăng ký các *mongo.Collection vào registry toàn cục để các
// service lấy theo tên thay vì giữ tham chiếu database trực tiếp.
func InitRegistry() {
	dbName := global.ServerConfig.MongoDB_DBName
	db := global.MongoDB_Session.Database(dbName)

	names := []string{
		global.MongoDB_ColNames.Campaigns,
		global.MongoDB_ColNames.NumberStatuses,
		global.MongoDB_ColNames.NumberSingleIndexes,
		global.MongoDB_ColNames.NumberShards,
		global.MongoDB_ColNames.NumberShardMeta,
		global.MongoDB_ColNames.Payments,
		global.MongoDB_ColNames.StatsSnapshots,
		global.MongoDB_ColNames.StatsReconcileQueue,
	}

	for _, name := range names {
		if _, err := global.RegistryCollections.Register(name, db.Collection(name)); err != nil {
			logrus.Fatalf("Failed to register collection %s: %v", name, err)
		}
	}

	logrus.Infof("Registered %d collections", len(names))
}
