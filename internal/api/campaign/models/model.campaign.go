// Package models - Campaign và trạng thái từng số đã giữ.
package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Trạng thái campaign.
const (
	CampaignStatusActive   = "active"
	CampaignStatusFinished = "finished"
	CampaignStatusDeleted  = "deleted"
)

// Campaign là bản ghi tối thiểu của một chiến dịch bán số (campaigns).
// Metadata hướng người dùng (tiêu đề, mô tả, giải thưởng) thuộc hệ thống khác.
type Campaign struct {
	ID primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`

	CreatorID    primitive.ObjectID `json:"creatorId" bson:"creatorId" index:"single:1"`
	TotalNumbers int64              `json:"totalNumbers" bson:"totalNumbers"`
	TicketPrice  float64            `json:"ticketPrice" bson:"ticketPrice"`
	Status       string             `json:"status" bson:"status" index:"single:1"`

	CreatedAt int64 `json:"createdAt" bson:"createdAt"`
	UpdatedAt int64 `json:"updatedAt" bson:"updatedAt"`
}
