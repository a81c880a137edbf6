package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Trạng thái của một số đã giữ.
const (
	NumberStatusReserved = "reserved" // Đang giữ chỗ, hết hạn theo ExpiresAt
	NumberStatusSold     = "sold"     // Đã bán (thanh toán xác nhận)
)

// NumberStatus lưu ai đang giữ một số (number_statuses). Đây là nguồn sự thật
// cho "ai giữ số nào"; bitmap chỉ trả lời "số còn trống hay không".
// Bit của số là 0 khi và chỉ khi tồn tại bản ghi này.
type NumberStatus struct {
	ID primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`

	CampaignID primitive.ObjectID `json:"campaignId" bson:"campaignId" index:"compound:number_status_campaign_number_unique"`
	Number     int64              `json:"number" bson:"number" index:"compound:number_status_campaign_number_unique"` // Số vé, 1-based
	UserID     primitive.ObjectID `json:"userId" bson:"userId" index:"single:1"`
	Status     string             `json:"status" bson:"status" index:"single:1"`
	ExpiresAt  int64              `json:"expiresAt,omitempty" bson:"expiresAt,omitempty" index:"single:1,sparse"` // UnixMilli, chỉ có khi reserved

	CreatedAt int64 `json:"createdAt" bson:"createdAt"`
	UpdatedAt int64 `json:"updatedAt" bson:"updatedAt"`
}
