// Package worker - các vòng lặp nền: thu hồi giữ chỗ hết hạn và reconcile
// thống kê từ ledger.
package worker

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	campaignsvc "github.com/Jose00521/Raffle-sub003/internal/api/campaign/service"
	invsvc "github.com/Jose00521/Raffle-sub003/internal/api/inventory/service"
	"github.com/Jose00521/Raffle-sub003/internal/logger"
)

// ReservationExpiryWorker thu hồi các số đang reserved đã quá hạn giữ chỗ:
// gom theo campaign rồi gọi Release để bit trống trở lại và bản ghi
// number_statuses bị xóa trong cùng transaction.
type ReservationExpiryWorker struct {
	statusService *campaignsvc.NumberStatusService
	engine        *invsvc.AllocationEngine
	interval      time.Duration // Khoảng thời gian giữa các lần quét
	batchSize     int64         // Số bản ghi hết hạn tối đa mỗi lần quét
}

// NewReservationExpiryWorker tạo mới ReservationExpiryWorker.
func NewReservationExpiryWorker(engine *invsvc.AllocationEngine, interval time.Duration, batchSize int64) (*ReservationExpiryWorker, error) {
	statusService, err := campaignsvc.NewNumberStatusService()
	if err != nil {
		return nil, err
	}
	if interval < time.Second {
		interval = time.Minute
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	return &ReservationExpiryWorker{
		statusService: statusService,
		engine:        engine,
		interval:      interval,
		batchSize:     batchSize,
	}, nil
}

// Start chạy worker trong vòng lặp: mỗi interval quét một batch giữ chỗ hết
// hạn, gom theo campaign và release từng nhóm.
func (w *ReservationExpiryWorker) Start(ctx context.Context) {
	log := logger.GetAppLogger()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	log.WithFields(map[string]interface{}{
		"interval":  w.interval.String(),
		"batchSize": w.batchSize,
	}).Info("⏰ [RESERVATION_EXPIRY] Starting Reservation Expiry Worker...")

	for {
		select {
		case <-ctx.Done():
			log.Info("⏰ [RESERVATION_EXPIRY] Reservation Expiry Worker stopped")
			return
		case <-ticker.C:
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.WithFields(map[string]interface{}{
							"panic": r,
						}).Error("⏰ [RESERVATION_EXPIRY] Panic khi thu hồi giữ chỗ, sẽ tiếp tục ở lần chạy tiếp theo")
					}
				}()

				expired, err := w.statusService.FindExpiredReservations(ctx, w.batchSize)
				if err != nil {
					log.WithError(err).Error("⏰ [RESERVATION_EXPIRY] Lỗi quét giữ chỗ hết hạn")
					return
				}
				if len(expired) == 0 {
					return
				}

				byCampaign := make(map[primitive.ObjectID][]int64)
				for _, status := range expired {
					byCampaign[status.CampaignID] = append(byCampaign[status.CampaignID], status.Number)
				}

				var released int64
				for campaignID, numbers := range byCampaign {
					delta, err := w.engine.Release(ctx, campaignID, numbers)
					if err != nil {
						log.WithError(err).WithFields(map[string]interface{}{
							"campaignId": campaignID.Hex(),
							"numbers":    len(numbers),
						}).Warn("⏰ [RESERVATION_EXPIRY] Release thất bại, bỏ qua và sẽ thử lại lần sau")
						continue
					}
					released += delta
				}

				if released > 0 {
					log.WithFields(map[string]interface{}{
						"released":  released,
						"campaigns": len(byCampaign),
					}).Info("⏰ [RESERVATION_EXPIRY] Đã thu hồi giữ chỗ hết hạn")
				}
			}()
		}
	}
}
