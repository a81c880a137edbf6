// Package campaignsvc - nghiệp vụ campaign và trạng thái số đã giữ.
package campaignsvc

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	basesvc "github.com/Jose00521/Raffle-sub003/internal/api/base/service"
	"github.com/Jose00521/Raffle-sub003/internal/api/campaign/models"
	"github.com/Jose00521/Raffle-sub003/internal/global"
)

// CampaignService quản lý bản ghi campaign tối thiểu. Phần metadata hướng
// người dùng nằm ngoài hệ thống này; ở đây chỉ cần những trường mà inventory
// và stats phụ thuộc vào.
type CampaignService struct {
	*basesvc.BaseServiceMongoImpl[models.Campaign]
}

// NewCampaignService tạo CampaignService từ registry collection.
func NewCampaignService() (*CampaignService, error) {
	collection, err := global.RegistryCollections.MustGet(global.MongoDB_ColNames.Campaigns)
	if err != nil {
		return nil, err
	}
	return &CampaignService{
		BaseServiceMongoImpl: basesvc.NewBaseServiceMongo[models.Campaign](collection),
	}, nil
}

// Create tạo bản ghi campaign ở trạng thái active. campaignID là id campaign
// dùng xuyên suốt inventory và stats, nên ghi thẳng làm _id.
func (s *CampaignService) Create(ctx context.Context, campaignID, creatorID primitive.ObjectID, totalNumbers int64, ticketPrice float64) (models.Campaign, error) {
	return s.InsertOne(ctx, models.Campaign{
		ID:           campaignID,
		CreatorID:    creatorID,
		TotalNumbers: totalNumbers,
		TicketPrice:  ticketPrice,
		Status:       models.CampaignStatusActive,
	})
}

// MarkDeleted chuyển campaign sang trạng thái deleted (soft delete); dữ liệu
// index của nó được engine teardown riêng.
func (s *CampaignService) MarkDeleted(ctx context.Context, campaignID primitive.ObjectID) error {
	return s.UpdateOne(ctx,
		bson.M{"_id": campaignID},
		bson.M{"$set": bson.M{"status": models.CampaignStatusDeleted}},
		nil,
	)
}

// NumberStatusService quản lý các bản ghi "ai giữ số nào".
type NumberStatusService struct {
	*basesvc.BaseServiceMongoImpl[models.NumberStatus]
}

// NewNumberStatusService tạo NumberStatusService từ registry collection.
func NewNumberStatusService() (*NumberStatusService, error) {
	collection, err := global.RegistryCollections.MustGet(global.MongoDB_ColNames.NumberStatuses)
	if err != nil {
		return nil, err
	}
	return &NumberStatusService{
		BaseServiceMongoImpl: basesvc.NewBaseServiceMongo[models.NumberStatus](collection),
	}, nil
}

// FindExpiredReservations quét các số đang reserved đã quá hạn giữ chỗ,
// giới hạn limit bản ghi mỗi lượt để worker xử lý theo đợt.
func (s *NumberStatusService) FindExpiredReservations(ctx context.Context, limit int64) ([]models.NumberStatus, error) {
	return s.Find(ctx, bson.M{
		"status":    models.NumberStatusReserved,
		"expiresAt": bson.M{"$gt": 0, "$lt": time.Now().UnixMilli()},
	}, options.Find().SetLimit(limit).SetSort(bson.M{"expiresAt": 1}))
}

// MarkSold chuyển các số của một user từ reserved sang sold và bỏ hạn giữ
// chỗ. Gọi khi thanh toán được xác nhận; trả về số bản ghi đã chuyển.
func (s *NumberStatusService) MarkSold(ctx context.Context, campaignID, userID primitive.ObjectID, numbers []int64) (int64, error) {
	return s.UpdateMany(ctx,
		bson.M{
			"campaignId": campaignID,
			"userId":     userID,
			"number":     bson.M{"$in": numbers},
			"status":     models.NumberStatusReserved,
		},
		bson.M{
			"$set":   bson.M{"status": models.NumberStatusSold},
			"$unset": bson.M{"expiresAt": ""},
		},
		nil,
	)
}

// FindByUser liệt kê các số một user đang giữ trong campaign.
func (s *NumberStatusService) FindByUser(ctx context.Context, campaignID, userID primitive.ObjectID) ([]models.NumberStatus, error) {
	return s.Find(ctx, bson.M{
		"campaignId": campaignID,
		"userId":     userID,
	}, options.Find().SetSort(bson.M{"number": 1}))
}
