package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NumberShardMeta là metadata của một shard set (number_shard_meta), một bản
// ghi cho mỗi campaign ở chế độ sharded. AvailableCount là tổng availableCount
// của các shard và phải luôn khớp sau mỗi thao tác hoàn tất.
type NumberShardMeta struct {
	ID primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`

	CampaignID     primitive.ObjectID `json:"campaignId" bson:"campaignId" index:"unique"`
	TotalNumbers   int64              `json:"totalNumbers" bson:"totalNumbers"`
	ShardSize      int64              `json:"shardSize" bson:"shardSize"`
	ShardCount     int64              `json:"shardCount" bson:"shardCount"`
	AvailableCount int64              `json:"availableCount" bson:"availableCount"`

	CreatedAt int64 `json:"createdAt" bson:"createdAt"`
	UpdatedAt int64 `json:"updatedAt" bson:"updatedAt"`
}
