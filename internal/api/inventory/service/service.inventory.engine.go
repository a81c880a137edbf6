package invsvc

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	basesvc "github.com/Jose00521/Raffle-sub003/internal/api/base/service"
	campaignmodels "github.com/Jose00521/Raffle-sub003/internal/api/campaign/models"
	"github.com/Jose00521/Raffle-sub003/internal/common"
	"github.com/Jose00521/Raffle-sub003/internal/global"
	"github.com/Jose00521/Raffle-sub003/internal/logger"
)

// NumberIndex là interface chung cho hai cách biểu diễn index khả dụng
// (single document và shard set). Caller không phân biệt chế độ; mọi index
// ở đây đều là 0-based nội bộ.
type NumberIndex interface {
	IsAvailable(ctx context.Context, campaignID primitive.ObjectID, index int64) (bool, error)
	CheckAvailability(ctx context.Context, campaignID primitive.ObjectID, indexes []int64) ([]bool, error)
	MarkTaken(ctx context.Context, campaignID primitive.ObjectID, indexes []int64) (int64, error)
	MarkAvailable(ctx context.Context, campaignID primitive.ObjectID, indexes []int64) (int64, error)
	SelectRandom(ctx context.Context, campaignID primitive.ObjectID, quantity int) ([]int64, error)
	Diagnostics(ctx context.Context, campaignID primitive.ObjectID) (*IndexDiagnostics, error)
	Teardown(ctx context.Context, campaignID primitive.ObjectID) error
}

// IndexDiagnostics là ảnh chụp trạng thái index của một campaign, dùng cho
// endpoint chẩn đoán và worker đối soát.
type IndexDiagnostics struct {
	Mode                   string  `json:"mode"`
	TotalNumbers           int64   `json:"totalNumbers"`
	AvailableCount         int64   `json:"availableCount"`
	TakenCount             int64   `json:"takenCount"`
	PercentAvailable       float64 `json:"percentAvailable"`
	PercentTaken           float64 `json:"percentTaken"`
	RecountedTotal         int64   `json:"recountedTotal"`
	Consistent             bool    `json:"consistent"`
	ShardCount             int64   `json:"shardCount"`
	ShardsWithAvailability int64   `json:"shardsWithAvailability"`
	ShardSize              int64   `json:"shardSize,omitempty"`
	BitmapBytes            int64   `json:"bitmapBytes"`
}

// finishDiagnostics điền các trường dẫn xuất từ total/available.
func finishDiagnostics(d *IndexDiagnostics) *IndexDiagnostics {
	d.TakenCount = d.TotalNumbers - d.AvailableCount
	if d.TotalNumbers > 0 {
		d.PercentAvailable = float64(d.AvailableCount) / float64(d.TotalNumbers) * 100
		d.PercentTaken = float64(d.TakenCount) / float64(d.TotalNumbers) * 100
	}
	return d
}

// ReservationResult là kết quả reserve theo danh sách số cụ thể.
// Số ở đây là số 1-based người dùng thấy.
type ReservationResult struct {
	Reserved    []int64 `json:"reserved"`
	Unavailable []int64 `json:"unavailable"`
}

// AllocationEngine là mặt tiền của inventory: quyết định chế độ biểu diễn
// khi khởi tạo, và ghép check + mark + ghi number_statuses vào cùng một
// transaction MongoDB cho reserve/release.
type AllocationEngine struct {
	single   *SingleIndexService
	sharded  *ShardSetService
	statuses *basesvc.BaseServiceMongoImpl[campaignmodels.NumberStatus]

	policy         PolicyConfig
	reservationTTL time.Duration
}

// NewAllocationEngine tạo engine từ registry collections và config hiện hành.
func NewAllocationEngine() (*AllocationEngine, error) {
	single, err := NewSingleIndexService()
	if err != nil {
		return nil, err
	}
	sharded, err := NewShardSetService()
	if err != nil {
		return nil, err
	}
	statusCol, err := global.RegistryCollections.MustGet(global.MongoDB_ColNames.NumberStatuses)
	if err != nil {
		return nil, err
	}

	cfg := global.ServerConfig
	return &AllocationEngine{
		single:   single,
		sharded:  sharded,
		statuses: basesvc.NewBaseServiceMongo[campaignmodels.NumberStatus](statusCol),
		policy: PolicyConfig{
			SingleSegmentThreshold: cfg.Inventory_SingleSegmentThreshold,
			DefaultShardSize:       cfg.Inventory_DefaultShardSize,
			ShardByteCeiling:       cfg.Inventory_ShardByteCeiling,
		},
		reservationTTL: time.Duration(cfg.Reservation_TTLMinutes) * time.Minute,
	}, nil
}

// Initialize tạo index cho campaign theo sharding policy. Campaign đã có
// index: ErrDuplicate.
func (e *AllocationEngine) Initialize(ctx context.Context, campaignID primitive.ObjectID, totalNumbers int64) (*ShardLayout, error) {
	if totalNumbers <= 0 {
		return nil, common.ErrInvalidInput
	}
	if _, err := e.resolveIndex(ctx, campaignID); err == nil {
		return nil, common.ErrDuplicate
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	layout := ResolveLayout(totalNumbers, e.policy)
	logger.GetAppLogger().WithFields(map[string]interface{}{
		"campaignId":   campaignID.Hex(),
		"totalNumbers": totalNumbers,
		"mode":         layout.Mode,
		"shardCount":   layout.ShardCount,
	}).Info("Khởi tạo number index cho campaign")

	var err error
	if layout.Mode == LayoutSingle {
		err = e.single.Create(ctx, campaignID, totalNumbers)
	} else {
		// Meta và toàn bộ shard đi chung một transaction: lỗi giữa chừng
		// không để lại meta kèm shard set dở dang chặn Initialize lần sau.
		_, err = e.withTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
			return nil, e.sharded.Create(sc, campaignID, totalNumbers, layout)
		})
	}
	if err != nil {
		return nil, err
	}
	return &layout, nil
}

// resolveIndex xác định chế độ của campaign: meta tồn tại -> sharded,
// single index tồn tại -> single, không có gì -> ErrNotFound.
func (e *AllocationEngine) resolveIndex(ctx context.Context, campaignID primitive.ObjectID) (NumberIndex, error) {
	hasMeta, err := e.sharded.meta.DocumentExists(ctx, bson.M{"campaignId": campaignID})
	if err != nil {
		return nil, err
	}
	if hasMeta {
		return e.sharded, nil
	}
	hasSingle, err := e.single.DocumentExists(ctx, bson.M{"campaignId": campaignID})
	if err != nil {
		return nil, err
	}
	if hasSingle {
		return e.single, nil
	}
	return nil, common.ErrNotFound
}

// toInternal đổi số 1-based sang index 0-based.
func toInternal(numbers []int64) []int64 {
	indexes := make([]int64, len(numbers))
	for i, n := range numbers {
		indexes[i] = n - 1
	}
	return indexes
}

// toExternal đổi index 0-based sang số 1-based.
func toExternal(indexes []int64) []int64 {
	numbers := make([]int64, len(indexes))
	for i, idx := range indexes {
		numbers[i] = idx + 1
	}
	return numbers
}

// withTransaction chạy fn trong một transaction MongoDB; lỗi từ fn làm
// abort toàn bộ, không thay đổi nào được giữ lại.
func (e *AllocationEngine) withTransaction(ctx context.Context, fn func(sc mongo.SessionContext) (interface{}, error)) (interface{}, error) {
	session, err := global.MongoDB_Session.StartSession()
	if err != nil {
		return nil, common.ConvertMongoError(err)
	}
	defer session.EndSession(ctx)

	result, err := session.WithTransaction(ctx, fn)
	if err != nil {
		var cErr *common.Error
		if errors.As(err, &cErr) {
			return nil, err
		}
		return nil, common.ConvertMongoError(err)
	}
	return result, nil
}

// insertStatuses ghi các bản ghi number_statuses trạng thái reserved cho
// các index vừa giữ, trong cùng transaction với MarkTaken.
func (e *AllocationEngine) insertStatuses(ctx context.Context, campaignID, userID primitive.ObjectID, indexes []int64) error {
	expiresAt := time.Now().Add(e.reservationTTL).UnixMilli()
	docs := make([]campaignmodels.NumberStatus, len(indexes))
	for i, idx := range indexes {
		docs[i] = campaignmodels.NumberStatus{
			CampaignID: campaignID,
			Number:     idx + 1,
			UserID:     userID,
			Status:     campaignmodels.NumberStatusReserved,
			ExpiresAt:  expiresAt,
		}
	}
	_, err := e.statuses.InsertMany(ctx, docs)
	return err
}

// ReserveRandom giữ quantity số ngẫu nhiên cho userID. Chọn số, đánh dấu đã
// giữ và ghi number_statuses trong một transaction; trả về danh sách số
// 1-based. Không đủ số trống: lỗi, không có gì bị thay đổi.
func (e *AllocationEngine) ReserveRandom(ctx context.Context, campaignID, userID primitive.ObjectID, quantity int) ([]int64, error) {
	if quantity <= 0 {
		return nil, common.ErrInvalidInput
	}

	result, err := e.withTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		index, err := e.resolveIndex(sc, campaignID)
		if err != nil {
			return nil, err
		}
		selected, err := index.SelectRandom(sc, campaignID, quantity)
		if err != nil {
			return nil, err
		}
		delta, err := index.MarkTaken(sc, campaignID, selected)
		if err != nil {
			return nil, err
		}
		// SelectRandom chỉ trả index đang trống trong cùng transaction,
		// delta thấp hơn nghĩa là trạng thái đã lệch.
		if delta != int64(len(selected)) {
			return nil, common.ErrInvariantViolation
		}
		if err := e.insertStatuses(sc, campaignID, userID, selected); err != nil {
			return nil, err
		}
		return toExternal(selected), nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]int64), nil
}

// ReserveSpecific giữ đúng các số người dùng yêu cầu (1-based).
// allowPartial=false: chỉ cần một số không trống là toàn bộ thất bại với
// ErrInsufficientAvailability, không có gì bị thay đổi. allowPartial=true:
// giữ phần trống được, phần còn lại trả về trong Unavailable.
func (e *AllocationEngine) ReserveSpecific(ctx context.Context, campaignID, userID primitive.ObjectID, numbers []int64, allowPartial bool) (*ReservationResult, error) {
	if len(numbers) == 0 {
		return nil, common.ErrInvalidInput
	}

	result, err := e.withTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		index, err := e.resolveIndex(sc, campaignID)
		if err != nil {
			return nil, err
		}

		indexes := toInternal(numbers)
		availability, err := index.CheckAvailability(sc, campaignID, indexes)
		if err != nil {
			return nil, err
		}

		reserved := make([]int64, 0, len(numbers))
		unavailable := make([]int64, 0)
		for i, ok := range availability {
			if ok {
				reserved = append(reserved, indexes[i])
			} else {
				unavailable = append(unavailable, numbers[i])
			}
		}

		if len(unavailable) > 0 && !allowPartial {
			return nil, common.WithDetails(common.ErrInsufficientAvailability,
				map[string]interface{}{"unavailable": unavailable})
		}

		if len(reserved) > 0 {
			delta, err := index.MarkTaken(sc, campaignID, reserved)
			if err != nil {
				return nil, err
			}
			if delta != int64(len(reserved)) {
				return nil, common.ErrInvariantViolation
			}
			if err := e.insertStatuses(sc, campaignID, userID, reserved); err != nil {
				return nil, err
			}
		}

		return &ReservationResult{
			Reserved:    toExternal(reserved),
			Unavailable: unavailable,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*ReservationResult), nil
}

// Release trả các số (1-based) về trạng thái trống và xóa bản ghi
// number_statuses tương ứng, trong một transaction. Số đã trống sẵn được
// bỏ qua (idempotent).
func (e *AllocationEngine) Release(ctx context.Context, campaignID primitive.ObjectID, numbers []int64) (int64, error) {
	if len(numbers) == 0 {
		return 0, common.ErrInvalidInput
	}

	result, err := e.withTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		index, err := e.resolveIndex(sc, campaignID)
		if err != nil {
			return nil, err
		}
		delta, err := index.MarkAvailable(sc, campaignID, toInternal(numbers))
		if err != nil {
			return nil, err
		}
		_, err = e.statuses.DeleteMany(sc, bson.M{
			"campaignId": campaignID,
			"number":     bson.M{"$in": numbers},
		})
		if err != nil {
			return nil, err
		}
		return delta, nil
	})
	if err != nil {
		return 0, err
	}
	return result.(int64), nil
}

// CheckAvailability kiểm tra các số 1-based, kết quả theo thứ tự đầu vào.
func (e *AllocationEngine) CheckAvailability(ctx context.Context, campaignID primitive.ObjectID, numbers []int64) ([]bool, error) {
	index, err := e.resolveIndex(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	return index.CheckAvailability(ctx, campaignID, toInternal(numbers))
}

// Diagnostics trả về ảnh chụp trạng thái index của campaign.
func (e *AllocationEngine) Diagnostics(ctx context.Context, campaignID primitive.ObjectID) (*IndexDiagnostics, error) {
	index, err := e.resolveIndex(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	return index.Diagnostics(ctx, campaignID)
}

// Teardown xóa toàn bộ dữ liệu index và number_statuses của campaign.
func (e *AllocationEngine) Teardown(ctx context.Context, campaignID primitive.ObjectID) error {
	index, err := e.resolveIndex(ctx, campaignID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil
		}
		return err
	}
	if err := index.Teardown(ctx, campaignID); err != nil {
		return err
	}
	_, err = e.statuses.DeleteMany(ctx, bson.M{"campaignId": campaignID})
	return err
}
