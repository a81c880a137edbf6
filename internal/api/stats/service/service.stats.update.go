package statssvc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	basesvc "github.com/Jose00521/Raffle-sub003/internal/api/base/service"
	campaignmodels "github.com/Jose00521/Raffle-sub003/internal/api/campaign/models"
	paymentmodels "github.com/Jose00521/Raffle-sub003/internal/api/payment/models"
	"github.com/Jose00521/Raffle-sub003/internal/api/stats/models"
	"github.com/Jose00521/Raffle-sub003/internal/common"
	"github.com/Jose00521/Raffle-sub003/internal/global"
	"github.com/Jose00521/Raffle-sub003/internal/logger"
)

// DayKey trả về khóa ngày UTC "2006-01-02" của một mốc UnixMilli.
func DayKey(unixMilli int64) string {
	return time.UnixMilli(unixMilli).UTC().Format("2006-01-02")
}

// addTotals cộng delta vào totals.
func addTotals(t *models.StatsTotals, delta models.StatsTotals) {
	t.PaymentCount += delta.PaymentCount
	t.NumbersSold += delta.NumbersSold
	t.Revenue += delta.Revenue
	t.UniqueParticipants += delta.UniqueParticipants
}

// StatsUpdateProcessor biến một batch PaymentEvent thành các cập nhật
// snapshot cho campaign, creator và từng participant. Mỗi thực thể được cập
// nhật trong một transaction riêng lấy từ session pool; campaign này lỗi
// không ảnh hưởng campaign khác trong cùng batch.
type StatsUpdateProcessor struct {
	snapshots *basesvc.BaseServiceMongoImpl[models.StatsSnapshot]
	payments  *basesvc.BaseServiceMongoImpl[paymentmodels.Payment]
	campaigns *basesvc.BaseServiceMongoImpl[campaignmodels.Campaign]
	reconcile *basesvc.BaseServiceMongoImpl[models.StatsReconcileItem]

	pool      *SessionPool
	publisher EventPublisher
	topLimit  int
}

// NewStatsUpdateProcessor tạo processor từ registry collections.
func NewStatsUpdateProcessor(pool *SessionPool, publisher EventPublisher) (*StatsUpdateProcessor, error) {
	names := global.MongoDB_ColNames
	snapshotCol, err := global.RegistryCollections.MustGet(names.StatsSnapshots)
	if err != nil {
		return nil, err
	}
	paymentCol, err := global.RegistryCollections.MustGet(names.Payments)
	if err != nil {
		return nil, err
	}
	campaignCol, err := global.RegistryCollections.MustGet(names.Campaigns)
	if err != nil {
		return nil, err
	}
	reconcileCol, err := global.RegistryCollections.MustGet(names.StatsReconcileQueue)
	if err != nil {
		return nil, err
	}

	return &StatsUpdateProcessor{
		snapshots: basesvc.NewBaseServiceMongo[models.StatsSnapshot](snapshotCol),
		payments:  basesvc.NewBaseServiceMongo[paymentmodels.Payment](paymentCol),
		campaigns: basesvc.NewBaseServiceMongo[campaignmodels.Campaign](campaignCol),
		reconcile: basesvc.NewBaseServiceMongo[models.StatsReconcileItem](reconcileCol),
		pool:      pool,
		publisher: publisher,
		topLimit:  global.ServerConfig.Stats_TopBuyersLimit,
	}, nil
}

// HandleBatch xử lý một batch (hàm handler của BatchProcessor). Event được
// gom theo campaign; campaign lỗi được enqueue vào hàng reconcile rồi bỏ qua.
func (p *StatsUpdateProcessor) HandleBatch(ctx context.Context, events []PaymentEvent) error {
	byCampaign := make(map[primitive.ObjectID][]PaymentEvent)
	for _, event := range events {
		byCampaign[event.CampaignID] = append(byCampaign[event.CampaignID], event)
	}

	var failed int
	for campaignID, group := range byCampaign {
		if err := p.processCampaignGroup(ctx, campaignID, group); err != nil {
			failed++
			logger.GetErrorLogger().WithError(err).Errorf(
				"Cập nhật thống kê campaign %s thất bại, đưa vào hàng reconcile", campaignID.Hex())
			p.EnqueueReconcile(ctx, campaignID, err.Error())
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d/%d nhóm campaign trong batch thất bại", failed, len(byCampaign))
	}
	return nil
}

// batchDelta là phần đóng góp của một nhóm event, tách theo ngày.
type batchDelta struct {
	dayKey string
	totals models.StatsTotals
	byUser map[primitive.ObjectID]models.StatsTotals
}

// splitByDay gom event theo khóa ngày của approvedAt, tính tổng theo nhóm
// và theo từng user trong nhóm.
func splitByDay(events []PaymentEvent) []batchDelta {
	byDay := make(map[string]*batchDelta)
	order := make([]string, 0, 1)
	for _, event := range events {
		key := DayKey(event.ApprovedAt)
		delta, ok := byDay[key]
		if !ok {
			delta = &batchDelta{dayKey: key, byUser: make(map[primitive.ObjectID]models.StatsTotals)}
			byDay[key] = delta
			order = append(order, key)
		}

		eventTotals := models.StatsTotals{
			PaymentCount: 1,
			NumbersSold:  int64(len(event.Numbers)),
			Revenue:      event.Amount,
		}
		addTotals(&delta.totals, eventTotals)

		userTotals := delta.byUser[event.UserID]
		addTotals(&userTotals, eventTotals)
		delta.byUser[event.UserID] = userTotals
	}

	result := make([]batchDelta, 0, len(order))
	for _, key := range order {
		result = append(result, *byDay[key])
	}
	return result
}

// processCampaignGroup cập nhật đủ ba loại thực thể cho một campaign rồi
// phát sự kiện cho subscriber.
func (p *StatsUpdateProcessor) processCampaignGroup(ctx context.Context, campaignID primitive.ObjectID, events []PaymentEvent) error {
	campaign, err := p.campaigns.FindOneById(ctx, campaignID)
	if err != nil {
		return err
	}

	newParticipants, err := p.findNewParticipants(ctx, campaignID, events)
	if err != nil {
		return err
	}

	for _, delta := range splitByDay(events) {
		campaignDelta := delta.totals
		for userID := range delta.byUser {
			if newParticipants[userID] {
				campaignDelta.UniqueParticipants++
				// Một user chỉ được tính mới một lần dù batch trải nhiều ngày.
				newParticipants[userID] = false
			}
		}

		if err := p.applyEntityDelta(ctx, models.EntityCampaign, campaignID, campaignID, delta.dayKey, campaignDelta, &campaign); err != nil {
			return err
		}
		if err := p.applyEntityDelta(ctx, models.EntityCreator, campaign.CreatorID, campaignID, delta.dayKey, campaignDelta, nil); err != nil {
			return err
		}
		for userID, userDelta := range delta.byUser {
			if err := p.applyEntityDelta(ctx, models.EntityParticipant, userID, campaignID, delta.dayKey, userDelta, nil); err != nil {
				return err
			}
		}
	}

	p.publishGroup(ctx, campaign, events)
	return nil
}

// newParticipants phân loại các user của batch: user là mới khi seen trả về
// false. Mỗi user chỉ được hỏi một lần dù xuất hiện trong nhiều event.
func newParticipants(events []PaymentEvent, seen func(userID primitive.ObjectID) (bool, error)) (map[primitive.ObjectID]bool, error) {
	result := make(map[primitive.ObjectID]bool)
	for _, event := range events {
		if _, ok := result[event.UserID]; ok {
			continue
		}
		exists, err := seen(event.UserID)
		if err != nil {
			return nil, err
		}
		result[event.UserID] = !exists
	}
	return result, nil
}

// findNewParticipants xác định user lần đầu tham gia campaign. Căn cứ là
// snapshot participant đã tồn tại hay chưa: user được xử lý ở một batch trước
// luôn đã có snapshot, nên cùng một payment giao lại ở batch sau (feed
// at-least-once) không làm UniqueParticipants tăng lần hai.
func (p *StatsUpdateProcessor) findNewParticipants(ctx context.Context, campaignID primitive.ObjectID, events []PaymentEvent) (map[primitive.ObjectID]bool, error) {
	return newParticipants(events, func(userID primitive.ObjectID) (bool, error) {
		return p.snapshots.DocumentExists(ctx, bson.M{
			"entityType": models.EntityParticipant,
			"entityId":   userID,
			"campaignId": campaignID,
		})
	})
}

// applyEntityDelta cập nhật snapshot của một thực thể trong một transaction
// từ pool: cộng vào bản ghi của ngày nếu đã có, ngược lại mở bản ghi ngày mới
// với cumulative kế thừa từ snapshot gần nhất.
func (p *StatsUpdateProcessor) applyEntityDelta(ctx context.Context, entityType string, entityID, campaignID primitive.ObjectID, dayKey string, delta models.StatsTotals, campaign *campaignmodels.Campaign) error {
	_, err := p.pool.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		entityFilter := bson.M{
			"entityType": entityType,
			"entityId":   entityID,
			"campaignId": campaignID,
		}

		latest, err := p.snapshots.FindOne(sc, entityFilter,
			options.FindOne().SetSort(bson.M{"dayKey": -1}))
		switch {
		case err == nil && latest.DayKey == dayKey:
			addTotals(&latest.Cumulative, delta)
			addTotals(&latest.Today, delta)
		case err == nil && latest.DayKey < dayKey:
			// Ngày mới: kế thừa cumulative, mở bộ đếm ngày từ 0.
			latest = models.StatsSnapshot{
				EntityType: entityType,
				EntityID:   entityID,
				CampaignID: campaignID,
				DayKey:     dayKey,
				Cumulative: latest.Cumulative,
				Today:      models.StatsTotals{},
			}
			addTotals(&latest.Cumulative, delta)
			addTotals(&latest.Today, delta)
		case err == nil:
			// Event trễ thuộc ngày cũ hơn snapshot mới nhất: chỉ cộng vào
			// đúng ngày của nó, worker reconcile chữa cumulative các ngày sau.
			latest, err = p.snapshots.FindOne(sc, bson.M{
				"entityType": entityType,
				"entityId":   entityID,
				"campaignId": campaignID,
				"dayKey":     dayKey,
			}, nil)
			if err != nil {
				if !errors.Is(err, common.ErrNotFound) {
					return nil, err
				}
				latest = models.StatsSnapshot{
					EntityType: entityType,
					EntityID:   entityID,
					CampaignID: campaignID,
					DayKey:     dayKey,
				}
			}
			addTotals(&latest.Cumulative, delta)
			addTotals(&latest.Today, delta)
		default:
			if !errors.Is(err, common.ErrNotFound) {
				return nil, err
			}
			latest = models.StatsSnapshot{
				EntityType: entityType,
				EntityID:   entityID,
				CampaignID: campaignID,
				DayKey:     dayKey,
			}
			addTotals(&latest.Cumulative, delta)
			addTotals(&latest.Today, delta)
		}

		p.deriveRatios(sc, &latest, campaign)

		if entityType == models.EntityCampaign {
			topBuyers, err := p.computeTopBuyers(sc, campaignID)
			if err != nil {
				return nil, err
			}
			latest.TopBuyers = topBuyers
		}

		return nil, p.snapshots.Upsert(sc, bson.M{
			"entityType": entityType,
			"entityId":   entityID,
			"campaignId": campaignID,
			"dayKey":     dayKey,
		}, bson.M{"$set": bson.M{
			"cumulative":      latest.Cumulative,
			"today":           latest.Today,
			"percentComplete": latest.PercentComplete,
			"avgTicket":       latest.AvgTicket,
			"conversionRate":  latest.ConversionRate,
			"topBuyers":       latest.TopBuyers,
		}})
	})
	return err
}

// deriveRatios tính lại các tỷ lệ dẫn xuất từ cumulative hiện tại.
// percentComplete và conversionRate chỉ có nghĩa cho thực thể campaign.
func (p *StatsUpdateProcessor) deriveRatios(ctx context.Context, snapshot *models.StatsSnapshot, campaign *campaignmodels.Campaign) {
	if snapshot.Cumulative.PaymentCount > 0 {
		snapshot.AvgTicket = snapshot.Cumulative.Revenue / float64(snapshot.Cumulative.PaymentCount)
	}

	if campaign == nil {
		return
	}
	if campaign.TotalNumbers > 0 {
		snapshot.PercentComplete = float64(snapshot.Cumulative.NumbersSold) / float64(campaign.TotalNumbers) * 100
	}

	totalPayments, err := p.payments.CountDocuments(ctx, bson.M{"campaignId": campaign.ID})
	if err != nil || totalPayments == 0 {
		return
	}
	snapshot.ConversionRate = float64(snapshot.Cumulative.PaymentCount) / float64(totalPayments) * 100
}

// computeTopBuyers tính danh sách top người mua của campaign bằng aggregation
// trên ledger thanh toán: nhóm theo user, cộng số vé và doanh thu.
func (p *StatsUpdateProcessor) computeTopBuyers(ctx context.Context, campaignID primitive.ObjectID) ([]models.TopBuyer, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{
			"campaignId": campaignID,
			"status":     paymentmodels.StatusApproved,
		}}},
		bson.D{{Key: "$group", Value: bson.M{
			"_id":         "$userId",
			"numberCount": bson.M{"$sum": bson.M{"$size": bson.M{"$ifNull": bson.A{"$numbers", bson.A{}}}}},
			"revenue":     bson.M{"$sum": "$amount"},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{
			{Key: "numberCount", Value: -1},
			{Key: "revenue", Value: -1},
		}}},
		bson.D{{Key: "$limit", Value: p.topLimit}},
	}

	cursor, err := p.payments.Collection().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, common.ConvertMongoError(err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		UserID      primitive.ObjectID `bson:"_id"`
		NumberCount int64              `bson:"numberCount"`
		Revenue     float64            `bson:"revenue"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, common.ConvertMongoError(err)
	}

	topBuyers := make([]models.TopBuyer, len(rows))
	for i, row := range rows {
		topBuyers[i] = models.TopBuyer{
			UserID:      row.UserID,
			NumberCount: row.NumberCount,
			Revenue:     row.Revenue,
		}
	}
	return topBuyers, nil
}

// publishGroup phát sự kiện cập nhật cho subscriber sau khi mọi snapshot của
// nhóm đã ghi xong: một sự kiện campaign công khai, một cho creator và một
// cho từng participant có mặt trong nhóm.
func (p *StatsUpdateProcessor) publishGroup(ctx context.Context, campaign campaignmodels.Campaign, events []PaymentEvent) {
	if p.publisher == nil {
		return
	}

	now := time.Now().UnixMilli()
	dayKey := DayKey(now)

	campaignSnapshot, err := p.snapshots.FindOne(ctx, bson.M{
		"entityType": models.EntityCampaign,
		"entityId":   campaign.ID,
		"campaignId": campaign.ID,
	}, options.FindOne().SetSort(bson.M{"dayKey": -1}))
	if err == nil {
		p.publisher.Publish(StatsEventPayload{
			EventType: models.EntityCampaign,
			EntityID:  campaign.ID,
			Timestamp: now,
			Data:      campaignSnapshot,
		})
	}

	p.publisher.Publish(StatsEventPayload{
		EventType: models.EntityCreator,
		EntityID:  campaign.CreatorID,
		Timestamp: now,
		Data: map[string]interface{}{
			"campaignId": campaign.ID,
			"dayKey":     dayKey,
		},
	})

	seen := make(map[primitive.ObjectID]bool)
	for _, event := range events {
		if seen[event.UserID] {
			continue
		}
		seen[event.UserID] = true
		p.publisher.Publish(StatsEventPayload{
			EventType: models.EntityParticipant,
			EntityID:  event.UserID,
			Timestamp: now,
			Data: map[string]interface{}{
				"campaignId": campaign.ID,
				"dayKey":     dayKey,
			},
		})
	}
}

// EnqueueReconcile đưa campaign vào hàng đợi recompute. Upsert theo
// campaignId: campaign đã nằm trong hàng chỉ được cập nhật lý do.
func (p *StatsUpdateProcessor) EnqueueReconcile(ctx context.Context, campaignID primitive.ObjectID, reason string) {
	err := p.reconcile.Upsert(ctx, bson.M{"campaignId": campaignID}, bson.M{
		"$set": bson.M{
			"reason":      reason,
			"processedAt": 0,
		},
	})
	if err != nil {
		logger.GetErrorLogger().WithError(err).Errorf(
			"Không enqueue được campaign %s vào hàng reconcile", campaignID.Hex())
	}
}
