package invsvc

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	basesvc "github.com/Jose00521/Raffle-sub003/internal/api/base/service"
	"github.com/Jose00521/Raffle-sub003/internal/api/inventory/models"
	"github.com/Jose00521/Raffle-sub003/internal/common"
	"github.com/Jose00521/Raffle-sub003/internal/global"
)

// SingleIndexService quản lý index dạng một document duy nhất cho các
// campaign nhỏ (totalNumbers dưới ngưỡng single-segment). Toàn bộ bitmap nằm
// trong một bản ghi number_single_indexes nên mọi thao tác chỉ chạm một document.
type SingleIndexService struct {
	*basesvc.BaseServiceMongoImpl[models.NumberSingleIndex]
}

// NewSingleIndexService tạo SingleIndexService từ registry collection.
func NewSingleIndexService() (*SingleIndexService, error) {
	collection, err := global.RegistryCollections.MustGet(global.MongoDB_ColNames.NumberSingleIndexes)
	if err != nil {
		return nil, err
	}
	return &SingleIndexService{
		BaseServiceMongoImpl: basesvc.NewBaseServiceMongo[models.NumberSingleIndex](collection),
	}, nil
}

// Create khởi tạo index cho campaign với totalNumbers số, tất cả còn trống.
func (s *SingleIndexService) Create(ctx context.Context, campaignID primitive.ObjectID, totalNumbers int64) error {
	seg := NewBitSegment(totalNumbers, true)
	_, err := s.InsertOne(ctx, models.NumberSingleIndex{
		CampaignID:     campaignID,
		TotalNumbers:   totalNumbers,
		Bitmap:         seg.Bytes(),
		AvailableCount: totalNumbers,
	})
	return err
}

// load đọc document index của campaign và bọc bitmap thành BitSegment.
func (s *SingleIndexService) load(ctx context.Context, campaignID primitive.ObjectID) (models.NumberSingleIndex, *BitSegment, error) {
	doc, err := s.FindOne(ctx, bson.M{"campaignId": campaignID}, nil)
	if err != nil {
		return doc, nil, err
	}
	seg, err := BitSegmentFromBytes(doc.Bitmap, doc.TotalNumbers)
	if err != nil {
		return doc, nil, err
	}
	return doc, seg, nil
}

// persist ghi lại bitmap và điều chỉnh availableCount theo delta đã tính
// từ số bit thực sự đổi trạng thái.
func (s *SingleIndexService) persist(ctx context.Context, campaignID primitive.ObjectID, seg *BitSegment, countDelta int64) error {
	return s.UpdateOne(ctx,
		bson.M{"campaignId": campaignID},
		bson.M{
			"$set": bson.M{"bitmap": seg.Bytes()},
			"$inc": bson.M{"availableCount": countDelta},
		},
		nil,
	)
}

// IsAvailable kiểm tra một số (index 0-based) còn trống không.
func (s *SingleIndexService) IsAvailable(ctx context.Context, campaignID primitive.ObjectID, index int64) (bool, error) {
	_, seg, err := s.load(ctx, campaignID)
	if err != nil {
		return false, err
	}
	return seg.Test(index), nil
}

// CheckAvailability kiểm tra một loạt index, kết quả giữ nguyên thứ tự đầu vào.
// Index ngoài phạm vi trả về false, không lỗi.
func (s *SingleIndexService) CheckAvailability(ctx context.Context, campaignID primitive.ObjectID, indexes []int64) ([]bool, error) {
	_, seg, err := s.load(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	results := make([]bool, len(indexes))
	for i, idx := range indexes {
		results[i] = seg.Test(idx)
	}
	return results, nil
}

// MarkTaken đánh dấu các index đã giữ. Trả về delta: số bit thực sự chuyển
// 1->0. Index đã tắt sẵn không đóng góp vào delta (idempotent).
func (s *SingleIndexService) MarkTaken(ctx context.Context, campaignID primitive.ObjectID, indexes []int64) (int64, error) {
	_, seg, err := s.load(ctx, campaignID)
	if err != nil {
		return 0, err
	}
	delta := seg.ApplyClear(indexes)
	if delta == 0 {
		return 0, nil
	}
	if err := s.persist(ctx, campaignID, seg, -delta); err != nil {
		return 0, err
	}
	return delta, nil
}

// MarkAvailable đánh dấu các index trống trở lại. Trả về delta: số bit thực
// sự chuyển 0->1.
func (s *SingleIndexService) MarkAvailable(ctx context.Context, campaignID primitive.ObjectID, indexes []int64) (int64, error) {
	_, seg, err := s.load(ctx, campaignID)
	if err != nil {
		return 0, err
	}
	delta := seg.ApplySet(indexes)
	if delta == 0 {
		return 0, nil
	}
	if err := s.persist(ctx, campaignID, seg, delta); err != nil {
		return 0, err
	}
	return delta, nil
}

// SelectRandom chọn quantity index trống phân bố đều, không mutate gì.
// Không đủ số trống: ErrInsufficientAvailability, kèm số còn lại thực tế.
func (s *SingleIndexService) SelectRandom(ctx context.Context, campaignID primitive.ObjectID, quantity int) ([]int64, error) {
	doc, seg, err := s.load(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if int64(quantity) > doc.AvailableCount {
		return nil, common.WithDetails(common.ErrInsufficientAvailability, map[string]interface{}{
			"requested": quantity,
			"available": doc.AvailableCount,
		})
	}
	selected, err := sampleSegment(seg, quantity, doc.AvailableCount)
	if err != nil {
		return nil, err
	}
	fisherYatesShuffle(selected)
	return selected, nil
}

// Diagnostics trả về trạng thái index: đếm lại bitmap và so với
// availableCount đã lưu để phát hiện lệch.
func (s *SingleIndexService) Diagnostics(ctx context.Context, campaignID primitive.ObjectID) (*IndexDiagnostics, error) {
	doc, seg, err := s.load(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	recounted := seg.CountAvailable()
	var shardsWithAvailability int64
	if doc.AvailableCount > 0 {
		shardsWithAvailability = 1
	}
	return finishDiagnostics(&IndexDiagnostics{
		Mode:                   LayoutSingle,
		TotalNumbers:           doc.TotalNumbers,
		AvailableCount:         doc.AvailableCount,
		RecountedTotal:         recounted,
		Consistent:             recounted == doc.AvailableCount,
		ShardCount:             1,
		ShardsWithAvailability: shardsWithAvailability,
		BitmapBytes:            int64(len(doc.Bitmap)),
	}), nil
}

// Teardown xóa index của campaign (khi campaign bị xóa).
func (s *SingleIndexService) Teardown(ctx context.Context, campaignID primitive.ObjectID) error {
	err := s.DeleteOne(ctx, bson.M{"campaignId": campaignID})
	if errors.Is(err, common.ErrNotFound) {
		return nil
	}
	return err
}
