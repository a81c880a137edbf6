// Package models - các document lưu index khả dụng của số vé.
// Quy ước bit: 1 = còn trống, 0 = đã giữ/đã bán. Số đánh cho người dùng là
// 1-based; bit trong buffer là 0-based.
package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NumberSingleIndex là index dạng một document duy nhất
// (number_single_indexes), dùng khi totalNumbers nhỏ hơn ngưỡng single-segment.
type NumberSingleIndex struct {
	ID primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`

	CampaignID     primitive.ObjectID `json:"campaignId" bson:"campaignId" index:"unique"`
	TotalNumbers   int64              `json:"totalNumbers" bson:"totalNumbers"`
	Bitmap         []byte             `json:"-" bson:"bitmap"`
	AvailableCount int64              `json:"availableCount" bson:"availableCount"`

	CreatedAt int64 `json:"createdAt" bson:"createdAt"`
	UpdatedAt int64 `json:"updatedAt" bson:"updatedAt"`
}
