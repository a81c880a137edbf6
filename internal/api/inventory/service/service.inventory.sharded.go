package invsvc

import (
	"context"
	"errors"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	basesvc "github.com/Jose00521/Raffle-sub003/internal/api/base/service"
	"github.com/Jose00521/Raffle-sub003/internal/api/inventory/models"
	"github.com/Jose00521/Raffle-sub003/internal/common"
	"github.com/Jose00521/Raffle-sub003/internal/global"
)

// Số shard tối đa insert trong một lần khi khởi tạo campaign lớn.
const shardInsertChunk = 50

// ShardSetService quản lý index dạng nhiều shard cho các campaign lớn.
// Bất biến: tổng availableCount của các shard luôn bằng availableCount
// trong number_shard_meta sau khi mỗi thao tác hoàn tất.
type ShardSetService struct {
	shards *basesvc.BaseServiceMongoImpl[models.NumberShard]
	meta   *basesvc.BaseServiceMongoImpl[models.NumberShardMeta]

	fetchChunk int // số shard tải mỗi lượt khi thao tác trải trên nhiều shard
}

// NewShardSetService tạo ShardSetService từ registry collections.
func NewShardSetService() (*ShardSetService, error) {
	shardCol, err := global.RegistryCollections.MustGet(global.MongoDB_ColNames.NumberShards)
	if err != nil {
		return nil, err
	}
	metaCol, err := global.RegistryCollections.MustGet(global.MongoDB_ColNames.NumberShardMeta)
	if err != nil {
		return nil, err
	}

	fetchChunk := 20
	if global.ServerConfig != nil && global.ServerConfig.Inventory_ShardFetchChunk > 0 {
		fetchChunk = global.ServerConfig.Inventory_ShardFetchChunk
	}

	return &ShardSetService{
		shards:     basesvc.NewBaseServiceMongo[models.NumberShard](shardCol),
		meta:       basesvc.NewBaseServiceMongo[models.NumberShardMeta](metaCol),
		fetchChunk: fetchChunk,
	}, nil
}

// Create khởi tạo meta và toàn bộ shard cho campaign theo layout đã resolve.
// Mỗi shard khởi tạo toàn bit 1; shard cuối được mask phần đuôi.
func (s *ShardSetService) Create(ctx context.Context, campaignID primitive.ObjectID, totalNumbers int64, layout ShardLayout) error {
	_, err := s.meta.InsertOne(ctx, models.NumberShardMeta{
		CampaignID:     campaignID,
		TotalNumbers:   totalNumbers,
		ShardSize:      layout.ShardSize,
		ShardCount:     layout.ShardCount,
		AvailableCount: totalNumbers,
	})
	if err != nil {
		return err
	}

	batch := make([]models.NumberShard, 0, shardInsertChunk)
	for shardIndex := int64(0); shardIndex < layout.ShardCount; shardIndex++ {
		start, end := ShardRange(shardIndex, layout.ShardSize, totalNumbers)
		seg := NewBitSegment(end-start, true)
		batch = append(batch, models.NumberShard{
			CampaignID:     campaignID,
			ShardIndex:     shardIndex,
			StartNumber:    start,
			EndNumber:      end,
			Bitmap:         seg.Bytes(),
			AvailableCount: end - start,
		})

		if len(batch) == shardInsertChunk || shardIndex == layout.ShardCount-1 {
			if _, err := s.shards.InsertMany(ctx, batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	return nil
}

// Meta trả về metadata shard set của campaign.
func (s *ShardSetService) Meta(ctx context.Context, campaignID primitive.ObjectID) (models.NumberShardMeta, error) {
	return s.meta.FindOne(ctx, bson.M{"campaignId": campaignID}, nil)
}

// groupByShard gom các index 0-based theo shard chứa chúng, index trong nhóm
// đổi sang tọa độ cục bộ của shard.
func groupByShard(indexes []int64, shardSize int64) map[int64][]int64 {
	groups := make(map[int64][]int64)
	for _, idx := range indexes {
		shardIndex := ShardIndexFor(idx, shardSize)
		groups[shardIndex] = append(groups[shardIndex], idx-shardIndex*shardSize)
	}
	return groups
}

// fetchShards tải các shard theo danh sách shardIndex, chia lượt theo
// fetchChunk để không kéo quá nhiều bitmap lớn trong một query.
func (s *ShardSetService) fetchShards(ctx context.Context, campaignID primitive.ObjectID, shardIndexes []int64) (map[int64]models.NumberShard, error) {
	result := make(map[int64]models.NumberShard, len(shardIndexes))
	for offset := 0; offset < len(shardIndexes); offset += s.fetchChunk {
		limit := offset + s.fetchChunk
		if limit > len(shardIndexes) {
			limit = len(shardIndexes)
		}
		chunk := shardIndexes[offset:limit]

		docs, err := s.shards.Find(ctx, bson.M{
			"campaignId": campaignID,
			"shardIndex": bson.M{"$in": chunk},
		}, nil)
		if err != nil {
			return nil, err
		}
		for _, doc := range docs {
			result[doc.ShardIndex] = doc
		}
	}

	if len(result) != len(shardIndexes) {
		return nil, common.NewError(
			common.ErrCodeInventoryInvariant,
			"Thiếu shard trong shard set của campaign",
			common.StatusConflict,
			map[string]interface{}{"expected": len(shardIndexes), "found": len(result)},
		)
	}
	return result, nil
}

func sortedShardIndexes(groups map[int64][]int64) []int64 {
	indexes := make([]int64, 0, len(groups))
	for shardIndex := range groups {
		indexes = append(indexes, shardIndex)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })
	return indexes
}

// IsAvailable kiểm tra một số (index 0-based) còn trống không.
func (s *ShardSetService) IsAvailable(ctx context.Context, campaignID primitive.ObjectID, index int64) (bool, error) {
	results, err := s.CheckAvailability(ctx, campaignID, []int64{index})
	if err != nil {
		return false, err
	}
	return results[0], nil
}

// CheckAvailability kiểm tra một loạt index trải trên nhiều shard. Kết quả
// giữ nguyên thứ tự đầu vào; index ngoài phạm vi trả về false, không lỗi.
func (s *ShardSetService) CheckAvailability(ctx context.Context, campaignID primitive.ObjectID, indexes []int64) ([]bool, error) {
	meta, err := s.Meta(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	results := make([]bool, len(indexes))
	inRange := make([]int64, 0, len(indexes))
	for _, idx := range indexes {
		if idx >= 0 && idx < meta.TotalNumbers {
			inRange = append(inRange, idx)
		}
	}
	if len(inRange) == 0 {
		return results, nil
	}

	groups := groupByShard(inRange, meta.ShardSize)
	shards, err := s.fetchShards(ctx, campaignID, sortedShardIndexes(groups))
	if err != nil {
		return nil, err
	}

	segments := make(map[int64]*BitSegment, len(shards))
	for shardIndex, doc := range shards {
		seg, err := BitSegmentFromBytes(doc.Bitmap, doc.Capacity())
		if err != nil {
			return nil, err
		}
		segments[shardIndex] = seg
	}

	for i, idx := range indexes {
		if idx < 0 || idx >= meta.TotalNumbers {
			continue
		}
		shardIndex := ShardIndexFor(idx, meta.ShardSize)
		results[i] = segments[shardIndex].Test(idx - shardIndex*meta.ShardSize)
	}
	return results, nil
}

// applyMarks chạy một thao tác bit (clear hoặc set) trên từng shard liên quan,
// persist shard kèm delta cục bộ rồi cộng dồn delta tổng vào meta.
func (s *ShardSetService) applyMarks(ctx context.Context, campaignID primitive.ObjectID, indexes []int64, clear bool) (int64, error) {
	meta, err := s.Meta(ctx, campaignID)
	if err != nil {
		return 0, err
	}

	groups := groupByShard(indexes, meta.ShardSize)
	shardIndexes := sortedShardIndexes(groups)
	shards, err := s.fetchShards(ctx, campaignID, shardIndexes)
	if err != nil {
		return 0, err
	}

	var totalDelta int64
	for _, shardIndex := range shardIndexes {
		doc := shards[shardIndex]
		seg, err := BitSegmentFromBytes(doc.Bitmap, doc.Capacity())
		if err != nil {
			return 0, err
		}

		var delta int64
		if clear {
			delta = seg.ApplyClear(groups[shardIndex])
		} else {
			delta = seg.ApplySet(groups[shardIndex])
		}
		if delta == 0 {
			continue
		}

		countDelta := delta
		if clear {
			countDelta = -delta
		}
		err = s.shards.UpdateOne(ctx,
			bson.M{"campaignId": campaignID, "shardIndex": shardIndex},
			bson.M{
				"$set": bson.M{"bitmap": seg.Bytes()},
				"$inc": bson.M{"availableCount": countDelta},
			},
			nil,
		)
		if err != nil {
			return 0, err
		}
		totalDelta += delta
	}

	if totalDelta > 0 {
		metaDelta := totalDelta
		if clear {
			metaDelta = -totalDelta
		}
		err = s.meta.UpdateOne(ctx,
			bson.M{"campaignId": campaignID},
			bson.M{"$inc": bson.M{"availableCount": metaDelta}},
			nil,
		)
		if err != nil {
			return 0, err
		}
	}
	return totalDelta, nil
}

// MarkTaken đánh dấu các index đã giữ trên các shard liên quan. Delta trả về
// là tổng bit thực sự chuyển 1->0 và đã được trừ vào meta.availableCount.
func (s *ShardSetService) MarkTaken(ctx context.Context, campaignID primitive.ObjectID, indexes []int64) (int64, error) {
	return s.applyMarks(ctx, campaignID, indexes, true)
}

// MarkAvailable đánh dấu các index trống trở lại trên các shard liên quan.
func (s *ShardSetService) MarkAvailable(ctx context.Context, campaignID primitive.ObjectID, indexes []int64) (int64, error) {
	return s.applyMarks(ctx, campaignID, indexes, false)
}

// SelectRandom chọn quantity index trống từ toàn bộ shard set: chia quota
// theo tỷ lệ availableCount từng shard, chọn trong từng shard rồi xáo trộn
// kết quả gộp để thứ tự không lộ ranh giới shard. Không mutate gì.
func (s *ShardSetService) SelectRandom(ctx context.Context, campaignID primitive.ObjectID, quantity int) ([]int64, error) {
	meta, err := s.Meta(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if int64(quantity) > meta.AvailableCount {
		return nil, common.WithDetails(common.ErrInsufficientAvailability, map[string]interface{}{
			"requested": quantity,
			"available": meta.AvailableCount,
		})
	}

	// Lấy availableCount từng shard trước, không kéo bitmap.
	counts, err := s.shards.Find(ctx,
		bson.M{"campaignId": campaignID},
		options.Find().SetProjection(bson.M{"bitmap": 0}),
	)
	if err != nil {
		return nil, err
	}
	availableByShard := make(map[int64]int64, len(counts))
	for _, doc := range counts {
		availableByShard[doc.ShardIndex] = doc.AvailableCount
	}

	quotas := distributeProportionally(availableByShard, quantity)

	selected := make([]int64, 0, quantity)
	for _, quota := range quotas {
		shard, err := s.fetchShards(ctx, campaignID, []int64{quota.ShardIndex})
		if err != nil {
			return nil, err
		}
		doc := shard[quota.ShardIndex]
		seg, err := BitSegmentFromBytes(doc.Bitmap, doc.Capacity())
		if err != nil {
			return nil, err
		}

		local, err := sampleSegment(seg, quota.Count, doc.AvailableCount)
		if err != nil {
			return nil, err
		}
		for _, idx := range local {
			selected = append(selected, doc.StartNumber+idx)
		}
	}

	fisherYatesShuffle(selected)
	return selected, nil
}

// Diagnostics đối chiếu meta với tổng availableCount các shard và đếm lại
// bitmap từng shard (theo lượt fetchChunk) để phát hiện lệch.
func (s *ShardSetService) Diagnostics(ctx context.Context, campaignID primitive.ObjectID) (*IndexDiagnostics, error) {
	meta, err := s.Meta(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	var shardSum, recounted, bitmapBytes, shardsWithAvailability int64
	for shardIndex := int64(0); shardIndex < meta.ShardCount; shardIndex += int64(s.fetchChunk) {
		indexes := make([]int64, 0, s.fetchChunk)
		for i := shardIndex; i < shardIndex+int64(s.fetchChunk) && i < meta.ShardCount; i++ {
			indexes = append(indexes, i)
		}
		shards, err := s.fetchShards(ctx, campaignID, indexes)
		if err != nil {
			return nil, err
		}
		for _, doc := range shards {
			seg, err := BitSegmentFromBytes(doc.Bitmap, doc.Capacity())
			if err != nil {
				return nil, err
			}
			shardSum += doc.AvailableCount
			recounted += seg.CountAvailable()
			bitmapBytes += int64(len(doc.Bitmap))
			if doc.AvailableCount > 0 {
				shardsWithAvailability++
			}
		}
	}

	return finishDiagnostics(&IndexDiagnostics{
		Mode:                   LayoutSharded,
		TotalNumbers:           meta.TotalNumbers,
		AvailableCount:         meta.AvailableCount,
		RecountedTotal:         recounted,
		Consistent:             recounted == meta.AvailableCount && shardSum == meta.AvailableCount,
		ShardCount:             meta.ShardCount,
		ShardsWithAvailability: shardsWithAvailability,
		ShardSize:              meta.ShardSize,
		BitmapBytes:            bitmapBytes,
	}), nil
}

// Teardown xóa toàn bộ shard và meta của campaign.
func (s *ShardSetService) Teardown(ctx context.Context, campaignID primitive.ObjectID) error {
	if _, err := s.shards.DeleteMany(ctx, bson.M{"campaignId": campaignID}); err != nil {
		return err
	}
	err := s.meta.DeleteOne(ctx, bson.M{"campaignId": campaignID})
	if errors.Is(err, common.ErrNotFound) {
		return nil
	}
	return err
}
