package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NumberShard là một khoảng con liên tục của không gian số, lưu bitmap riêng
// (number_shards). Các shard của một campaign phủ kín [0, totalNumbers)
// không chồng lấn: shard i giữ [StartNumber, EndNumber) theo chỉ số 0-based.
type NumberShard struct {
	ID primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`

	CampaignID     primitive.ObjectID `json:"campaignId" bson:"campaignId" index:"compound:number_shard_campaign_index_unique"`
	ShardIndex     int64              `json:"shardIndex" bson:"shardIndex" index:"compound:number_shard_campaign_index_unique"`
	StartNumber    int64              `json:"startNumber" bson:"startNumber"` // 0-based, inclusive
	EndNumber      int64              `json:"endNumber" bson:"endNumber"`     // 0-based, exclusive
	Bitmap         []byte             `json:"-" bson:"bitmap"`
	AvailableCount int64              `json:"availableCount" bson:"availableCount"`

	CreatedAt int64 `json:"createdAt" bson:"createdAt"`
	UpdatedAt int64 `json:"updatedAt" bson:"updatedAt"`
}

// Capacity trả về số lượng số mà shard này quản lý.
func (s *NumberShard) Capacity() int64 {
	return s.EndNumber - s.StartNumber
}
