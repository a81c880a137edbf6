// Package global giữ các biến toàn cục của ứng dụng: cấu hình server,
// client MongoDB, tên các collection và registry collections.
package global

import (
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/Jose00521/Raffle-sub003/config"
	"github.com/Jose00521/Raffle-sub003/internal/registry"
)

// ColNames chứa tên các collection trong database.
type ColNames struct {
	Campaigns           string // Campaign (creator, totalNumbers, trạng thái)
	NumberSingleIndexes string // Index số dạng single document
	NumberShards        string // Shard bitmap (campaignId + shardIndex)
	NumberShardMeta     string // Metadata của shard set (1 / campaign)
	NumberStatuses      string // Trạng thái từng số đã giữ (ai giữ, hết hạn khi nào)
	Payments            string // Ledger thanh toán (nguồn của change stream)
	StatsSnapshots      string // Snapshot thống kê theo ngày (campaign/creator/participant)
	StatsReconcileQueue string // Hàng đợi recompute thống kê từ ledger
}

var (
	// MongoDB_ColNames tên các collection, gán giá trị ở cmd/server/init.go
	MongoDB_ColNames ColNames

	// ServerConfig cấu hình server hiện hành
	ServerConfig *config.Configuration

	// MongoDB_Session client MongoDB dùng chung
	MongoDB_Session *mongo.Client

	// RegistryCollections registry các *mongo.Collection theo tên
	RegistryCollections = registry.NewRegistry[*mongo.Collection]()
)
