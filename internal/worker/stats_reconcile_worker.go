package worker

import (
	"context"
	"time"

	statssvc "github.com/Jose00521/Raffle-sub003/internal/api/stats/service"
	"github.com/Jose00521/Raffle-sub003/internal/logger"
)

// StatsReconcileWorker đọc hàng đợi stats_reconcile_queue (processedAt chưa
// set), recompute snapshot của từng campaign từ ledger thanh toán rồi đánh
// dấu processedAt. Đây là đường bù cho các batch thống kê bị bỏ.
type StatsReconcileWorker struct {
	reconcileService *statssvc.StatsReconcileService
	interval         time.Duration // Khoảng thời gian giữa các lần chạy
	batchSize        int64         // Số campaign tối đa mỗi lần chạy
}

// NewStatsReconcileWorker tạo mới StatsReconcileWorker.
func NewStatsReconcileWorker(interval time.Duration, batchSize int64) (*StatsReconcileWorker, error) {
	reconcileService, err := statssvc.NewStatsReconcileService()
	if err != nil {
		return nil, err
	}
	if interval < time.Second {
		interval = 5 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = 20
	}
	return &StatsReconcileWorker{
		reconcileService: reconcileService,
		interval:         interval,
		batchSize:        batchSize,
	}, nil
}

// Start chạy worker trong vòng lặp: mỗi interval xử lý một batch yêu cầu
// reconcile, mỗi campaign độc lập với nhau.
func (w *StatsReconcileWorker) Start(ctx context.Context) {
	log := logger.GetStatsLogger()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	log.WithFields(map[string]interface{}{
		"interval":  w.interval.String(),
		"batchSize": w.batchSize,
	}).Info("🔄 [STATS_RECONCILE] Starting Stats Reconcile Worker...")

	for {
		select {
		case <-ctx.Done():
			log.Info("🔄 [STATS_RECONCILE] Stats Reconcile Worker stopped")
			return
		case <-ticker.C:
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.WithFields(map[string]interface{}{
							"panic": r,
						}).Error("🔄 [STATS_RECONCILE] Panic khi reconcile, sẽ tiếp tục ở lần chạy tiếp theo")
					}
				}()

				items, err := w.reconcileService.PendingItems(ctx, w.batchSize)
				if err != nil {
					log.WithError(err).Error("🔄 [STATS_RECONCILE] Lỗi đọc hàng đợi reconcile")
					return
				}
				if len(items) == 0 {
					return
				}

				processed := 0
				for _, item := range items {
					if err := w.reconcileService.ReconcileCampaign(ctx, item.CampaignID); err != nil {
						log.WithError(err).WithFields(map[string]interface{}{
							"campaignId": item.CampaignID.Hex(),
							"reason":     item.Reason,
						}).Warn("🔄 [STATS_RECONCILE] Reconcile thất bại, bỏ qua và sẽ thử lại lần sau")
						continue
					}
					if err := w.reconcileService.MarkProcessed(ctx, item); err != nil {
						log.WithError(err).WithFields(map[string]interface{}{
							"campaignId": item.CampaignID.Hex(),
						}).Warn("🔄 [STATS_RECONCILE] MarkProcessed thất bại")
						continue
					}
					processed++
				}

				if processed > 0 {
					log.WithFields(map[string]interface{}{
						"processed": processed,
						"total":     len(items),
					}).Info("🔄 [STATS_RECONCILE] Đã reconcile thống kê")
				}
			}()
		}
	}
}
