// Package models - snapshot thống kê và hàng đợi reconcile.
package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Loại thực thể của snapshot.
const (
	EntityCampaign    = "campaign"
	EntityCreator     = "creator"
	EntityParticipant = "participant"
)

// StatsTotals là nhóm bộ đếm cộng dồn dùng cho cả cumulative lẫn
// bộ đếm phát sinh trong ngày.
type StatsTotals struct {
	PaymentCount        int64   `json:"paymentCount" bson:"paymentCount"`               // Số thanh toán xác nhận
	NumbersSold         int64   `json:"numbersSold" bson:"numbersSold"`                 // Số vé đã bán
	Revenue             float64 `json:"revenue" bson:"revenue"`                         // Doanh thu
	UniqueParticipants  int64   `json:"uniqueParticipants" bson:"uniqueParticipants"`   // Người tham gia duy nhất
}

// TopBuyer là một mục trong danh sách top người mua của campaign.
type TopBuyer struct {
	UserID      primitive.ObjectID `json:"userId" bson:"userId"`
	NumberCount int64              `json:"numberCount" bson:"numberCount"`
	Revenue     float64            `json:"revenue" bson:"revenue"`
}

// StatsSnapshot là snapshot thống kê theo ngày (stats_snapshots), một bản ghi
// cho mỗi (entityType, entityId, campaignId, dayKey). Với entity campaign và
// creator, CampaignID trùng EntityID hoặc là campaign gốc; với participant,
// EntityID là user và CampaignID là campaign tham gia.
type StatsSnapshot struct {
	ID primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`

	EntityType string             `json:"entityType" bson:"entityType" index:"compound:stats_snapshot_entity_day_unique"`
	EntityID   primitive.ObjectID `json:"entityId" bson:"entityId" index:"compound:stats_snapshot_entity_day_unique"`
	CampaignID primitive.ObjectID `json:"campaignId" bson:"campaignId" index:"compound:stats_snapshot_entity_day_unique"`
	DayKey     string             `json:"dayKey" bson:"dayKey" index:"compound:stats_snapshot_entity_day_unique"` // "2006-01-02" UTC

	Cumulative StatsTotals `json:"cumulative" bson:"cumulative"` // Từ đầu campaign đến hết ngày này
	Today      StatsTotals `json:"today" bson:"today"`           // Phát sinh trong ngày

	// Tỷ lệ dẫn xuất, tính lại sau mỗi update.
	PercentComplete float64 `json:"percentComplete" bson:"percentComplete"` // numbersSold / totalNumbers
	AvgTicket       float64 `json:"avgTicket" bson:"avgTicket"`             // revenue / paymentCount
	ConversionRate  float64 `json:"conversionRate" bson:"conversionRate"`   // paymentCount xác nhận / tổng payment

	TopBuyers []TopBuyer `json:"topBuyers,omitempty" bson:"topBuyers,omitempty"`

	CreatedAt int64 `json:"createdAt" bson:"createdAt"`
	UpdatedAt int64 `json:"updatedAt" bson:"updatedAt"`
}

// StatsReconcileItem là một yêu cầu recompute thống kê từ ledger
// (stats_reconcile_queue). Được enqueue khi một batch thất bại và được
// worker reconcile xử lý định kỳ.
type StatsReconcileItem struct {
	ID primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`

	CampaignID  primitive.ObjectID `json:"campaignId" bson:"campaignId" index:"unique"`
	Reason      string             `json:"reason" bson:"reason"`
	ProcessedAt int64              `json:"processedAt,omitempty" bson:"processedAt,omitempty" index:"single:1,sparse"`

	CreatedAt int64 `json:"createdAt" bson:"createdAt"`
	UpdatedAt int64 `json:"updatedAt" bson:"updatedAt"`
}
