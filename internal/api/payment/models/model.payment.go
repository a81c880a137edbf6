// Package models - ledger thanh toán, nguồn dữ liệu của pipeline thống kê.
package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Trạng thái thanh toán. Chỉ các chuyển trạng thái vào StatusApproved
// mới được pipeline thống kê xử lý.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRefused  = "refused"
	StatusRefunded = "refunded"
)

// Payment là một bản ghi thanh toán (payments). Hệ thống thanh toán bên ngoài
// ghi và cập nhật collection này; engine chỉ đọc (change stream + reconcile).
type Payment struct {
	ID primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`

	CampaignID primitive.ObjectID `json:"campaignId" bson:"campaignId" index:"single:1;compound:payment_campaign_user_status"`
	UserID     primitive.ObjectID `json:"userId" bson:"userId" index:"compound:payment_campaign_user_status"`
	Amount     float64            `json:"amount" bson:"amount"`
	Method     string             `json:"method" bson:"method"`
	Status     string             `json:"status" bson:"status" index:"single:1;compound:payment_campaign_user_status"`
	Numbers    []int64            `json:"numbers" bson:"numbers"` // Số vé 1-based trong thanh toán này
	ApprovedAt int64              `json:"approvedAt,omitempty" bson:"approvedAt,omitempty"`

	CreatedAt int64 `json:"createdAt" bson:"createdAt"`
	UpdatedAt int64 `json:"updatedAt" bson:"updatedAt"`
}
