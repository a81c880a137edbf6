package statssvc

import (
	"context"
	"sort"
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

// StatsReconcileService tính lại toàn bộ snapshot của một campaign từ ledger
// thanh toán. Đây là đường chữa cho các batch bị bỏ: ledger luôn là nguồn
// sự thật, snapshot chỉ là dẫn xuất.
type StatsReconcileService struct {
	payments  *basesvc.BaseServiceMongoImpl[paymentmodels.Payment]
	snapshots *basesvc.BaseServiceMongoImpl[models.StatsSnapshot]
	campaigns *basesvc.BaseServiceMongoImpl[campaignmodels.Campaign]
	queue     *basesvc.BaseServiceMongoImpl[models.StatsReconcileItem]
	topLimit  int
}

// NewStatsReconcileService tạo service từ registry collections.
func NewStatsReconcileService() (*StatsReconcileService, error) {
	names := global.MongoDB_ColNames
	paymentCol, err := global.RegistryCollections.MustGet(names.Payments)
	if err != nil {
		return nil, err
	}
	snapshotCol, err := global.RegistryCollections.MustGet(names.StatsSnapshots)
	if err != nil {
		return nil, err
	}
	campaignCol, err := global.RegistryCollections.MustGet(names.Campaigns)
	if err != nil {
		return nil, err
	}
	queueCol, err := global.RegistryCollections.MustGet(names.StatsReconcileQueue)
	if err != nil {
		return nil, err
	}
	return &StatsReconcileService{
		payments:  basesvc.NewBaseServiceMongo[paymentmodels.Payment](paymentCol),
		snapshots: basesvc.NewBaseServiceMongo[models.StatsSnapshot](snapshotCol),
		campaigns: basesvc.NewBaseServiceMongo[campaignmodels.Campaign](campaignCol),
		queue:     basesvc.NewBaseServiceMongo[models.StatsReconcileItem](queueCol),
		topLimit:  global.ServerConfig.Stats_TopBuyersLimit,
	}, nil
}

// PendingItems trả về các yêu cầu reconcile chưa xử lý, cũ nhất trước.
func (s *StatsReconcileService) PendingItems(ctx context.Context, limit int64) ([]models.StatsReconcileItem, error) {
	return s.queue.Find(ctx,
		bson.M{"processedAt": bson.M{"$in": bson.A{0, nil}}},
		options.Find().SetLimit(limit).SetSort(bson.M{"createdAt": 1}),
	)
}

// MarkProcessed đánh dấu một yêu cầu reconcile đã hoàn tất.
func (s *StatsReconcileService) MarkProcessed(ctx context.Context, item models.StatsReconcileItem) error {
	return s.queue.UpdateOne(ctx,
		bson.M{"_id": item.ID},
		bson.M{"$set": bson.M{"processedAt": time.Now().UnixMilli()}},
		nil,
	)
}

// dayRow là một dòng kết quả aggregation: tổng của một (ngày, user).
type dayRow struct {
	DayKey      string             `bson:"dayKey"`
	UserID      primitive.ObjectID `bson:"userId"`
	PaymentRows int64              `bson:"paymentCount"`
	NumbersSold int64              `bson:"numbersSold"`
	Revenue     float64            `bson:"revenue"`
}

// ledgerRows gom ledger đã xác nhận của campaign theo (ngày UTC, user).
func (s *StatsReconcileService) ledgerRows(ctx context.Context, campaignID primitive.ObjectID) ([]dayRow, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{
			"campaignId": campaignID,
			"status":     paymentmodels.StatusApproved,
		}}},
		bson.D{{Key: "$addFields", Value: bson.M{
			"dayKey": bson.M{"$dateToString": bson.M{
				"format": "%Y-%m-%d",
				"date":   bson.M{"$toDate": bson.M{"$ifNull": bson.A{"$approvedAt", "$createdAt"}}},
			}},
		}}},
		bson.D{{Key: "$group", Value: bson.M{
			"_id":          bson.M{"dayKey": "$dayKey", "userId": "$userId"},
			"paymentCount": bson.M{"$sum": 1},
			"numbersSold":  bson.M{"$sum": bson.M{"$size": bson.M{"$ifNull": bson.A{"$numbers", bson.A{}}}}},
			"revenue":      bson.M{"$sum": "$amount"},
		}}},
		bson.D{{Key: "$project", Value: bson.M{
			"_id":          0,
			"dayKey":       "$_id.dayKey",
			"userId":       "$_id.userId",
			"paymentCount": 1,
			"numbersSold":  1,
			"revenue":      1,
		}}},
		bson.D{{Key: "$sort", Value: bson.M{"dayKey": 1}}},
	}

	cursor, err := s.payments.Collection().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, common.ConvertMongoError(err)
	}
	defer cursor.Close(ctx)

	var rows []dayRow
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, common.ConvertMongoError(err)
	}
	return rows, nil
}

// ReconcileCampaign tính lại từ đầu mọi snapshot campaign/creator/participant
// của một campaign và ghi đè kết quả hiện có.
func (s *StatsReconcileService) ReconcileCampaign(ctx context.Context, campaignID primitive.ObjectID) error {
	campaign, err := s.campaigns.FindOneById(ctx, campaignID)
	if err != nil {
		return err
	}

	rows, err := s.ledgerRows(ctx, campaignID)
	if err != nil {
		return err
	}

	// Gom theo ngày; đồng thời tìm ngày đầu tiên của mỗi user để tính
	// uniqueParticipants đúng một lần cho một user.
	dayKeys := make([]string, 0)
	byDay := make(map[string][]dayRow)
	firstDayOfUser := make(map[primitive.ObjectID]string)
	for _, row := range rows {
		if _, ok := byDay[row.DayKey]; !ok {
			dayKeys = append(dayKeys, row.DayKey)
		}
		byDay[row.DayKey] = append(byDay[row.DayKey], row)
		if first, ok := firstDayOfUser[row.UserID]; !ok || row.DayKey < first {
			firstDayOfUser[row.UserID] = row.DayKey
		}
	}
	sort.Strings(dayKeys)

	totalPayments, err := s.payments.CountDocuments(ctx, bson.M{"campaignId": campaignID})
	if err != nil {
		return err
	}

	// Xóa snapshot cũ của campaign rồi dựng lại tuần tự theo ngày.
	if _, err := s.snapshots.DeleteMany(ctx, bson.M{"campaignId": campaignID}); err != nil {
		return err
	}

	var cumulative models.StatsTotals
	userCumulative := make(map[primitive.ObjectID]models.StatsTotals)

	for _, dayKey := range dayKeys {
		var today models.StatsTotals
		for _, row := range byDay[dayKey] {
			today.PaymentCount += row.PaymentRows
			today.NumbersSold += row.NumbersSold
			today.Revenue += row.Revenue
			if firstDayOfUser[row.UserID] == dayKey {
				today.UniqueParticipants++
			}
		}
		addTotals(&cumulative, today)

		campaignSnapshot := models.StatsSnapshot{
			EntityType: models.EntityCampaign,
			EntityID:   campaignID,
			CampaignID: campaignID,
			DayKey:     dayKey,
			Cumulative: cumulative,
			Today:      today,
		}
		s.derive(&campaignSnapshot, campaign.TotalNumbers, totalPayments)

		creatorSnapshot := campaignSnapshot
		creatorSnapshot.EntityType = models.EntityCreator
		creatorSnapshot.EntityID = campaign.CreatorID

		if _, err := s.snapshots.InsertMany(ctx, []models.StatsSnapshot{campaignSnapshot, creatorSnapshot}); err != nil {
			return err
		}

		participantSnapshots := make([]models.StatsSnapshot, 0, len(byDay[dayKey]))
		for _, row := range byDay[dayKey] {
			userTotals := userCumulative[row.UserID]
			rowTotals := models.StatsTotals{
				PaymentCount: row.PaymentRows,
				NumbersSold:  row.NumbersSold,
				Revenue:      row.Revenue,
			}
			addTotals(&userTotals, rowTotals)
			userCumulative[row.UserID] = userTotals

			snap := models.StatsSnapshot{
				EntityType: models.EntityParticipant,
				EntityID:   row.UserID,
				CampaignID: campaignID,
				DayKey:     dayKey,
				Cumulative: userTotals,
				Today:      rowTotals,
			}
			if snap.Cumulative.PaymentCount > 0 {
				snap.AvgTicket = snap.Cumulative.Revenue / float64(snap.Cumulative.PaymentCount)
			}
			participantSnapshots = append(participantSnapshots, snap)
		}
		if len(participantSnapshots) > 0 {
			if _, err := s.snapshots.InsertMany(ctx, participantSnapshots); err != nil {
				return err
			}
		}
	}

	// Top buyers chỉ gắn vào snapshot campaign mới nhất.
	if len(dayKeys) > 0 {
		topBuyers, err := s.topBuyers(ctx, campaignID)
		if err != nil {
			return err
		}
		err = s.snapshots.UpdateOne(ctx, bson.M{
			"entityType": models.EntityCampaign,
			"entityId":   campaignID,
			"campaignId": campaignID,
			"dayKey":     dayKeys[len(dayKeys)-1],
		}, bson.M{"$set": bson.M{"topBuyers": topBuyers}}, nil)
		if err != nil {
			return err
		}
	}

	logger.GetStatsLogger().Infof(
		"Đã reconcile thống kê campaign %s: %d ngày, %d thanh toán xác nhận",
		campaignID.Hex(), len(dayKeys), cumulative.PaymentCount)
	return nil
}

func (s *StatsReconcileService) derive(snapshot *models.StatsSnapshot, totalNumbers, totalPayments int64) {
	if snapshot.Cumulative.PaymentCount > 0 {
		snapshot.AvgTicket = snapshot.Cumulative.Revenue / float64(snapshot.Cumulative.PaymentCount)
	}
	if totalNumbers > 0 {
		snapshot.PercentComplete = float64(snapshot.Cumulative.NumbersSold) / float64(totalNumbers) * 100
	}
	if totalPayments > 0 {
		snapshot.ConversionRate = float64(snapshot.Cumulative.PaymentCount) / float64(totalPayments) * 100
	}
}

// topBuyers dùng chung pipeline với StatsUpdateProcessor.
func (s *StatsReconcileService) topBuyers(ctx context.Context, campaignID primitive.ObjectID) ([]models.TopBuyer, error) {
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
		bson.D{{Key: "$limit", Value: s.topLimit}},
	}

	cursor, err := s.payments.Collection().Aggregate(ctx, pipeline)
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

	result := make([]models.TopBuyer, len(rows))
	for i, row := range rows {
		result[i] = models.TopBuyer{UserID: row.UserID, NumberCount: row.NumberCount, Revenue: row.Revenue}
	}
	return result, nil
}
