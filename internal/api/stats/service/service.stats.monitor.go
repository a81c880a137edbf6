package statssvc

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	paymentmodels "github.com/Jose00521/Raffle-sub003/internal/api/payment/models"
	"github.com/Jose00521/Raffle-sub003/internal/logger"
)

// PaymentEvent là một thanh toán đã xác nhận, trích từ change stream và đưa
// vào batch processor.
type PaymentEvent struct {
	PaymentID  primitive.ObjectID
	CampaignID primitive.ObjectID
	UserID     primitive.ObjectID
	Amount     float64
	Numbers    []int64
	ApprovedAt int64
}

// changeDoc là hình dạng document change stream trả về sau fullDocument lookup.
type changeDoc struct {
	OperationType string                `bson:"operationType"`
	FullDocument  paymentmodels.Payment `bson:"fullDocument"`
	UpdateFields  bson.M                `bson:"updateDescription,omitempty"`
}

// SoldMarker chốt trạng thái sold cho các số của một thanh toán xác nhận.
// Phía campaign cung cấp implementation thật (NumberStatusService).
type SoldMarker interface {
	MarkSold(ctx context.Context, campaignID, userID primitive.ObjectID, numbers []int64) (int64, error)
}

// NewConfirmationSink bọc sink kế tiếp (thường BatchProcessor.Enqueue): chốt
// number_statuses của thanh toán từ reserved sang sold trước khi event đi vào
// pipeline thống kê. Không chốt thì worker thu hồi giữ chỗ sẽ coi các số đã
// trả tiền là giữ chỗ hết hạn và thả chúng ra lại. Chốt lỗi chỉ log; event
// vẫn đi tiếp để thống kê không mất thanh toán.
func NewConfirmationSink(ctx context.Context, marker SoldMarker, next func(PaymentEvent)) func(PaymentEvent) {
	return func(event PaymentEvent) {
		if len(event.Numbers) > 0 {
			if _, err := marker.MarkSold(ctx, event.CampaignID, event.UserID, event.Numbers); err != nil {
				logger.GetErrorLogger().WithError(err).Errorf(
					"Không chốt được trạng thái sold cho payment %s", event.PaymentID.Hex())
			}
		}
		next(event)
	}
}

// PaymentMonitor theo dõi change stream của collection payments và chuyển
// các thanh toán vừa sang trạng thái approved thành PaymentEvent. Stream lỗi
// thì log, chờ cooldown rồi subscribe lại; monitor không bao giờ làm chết
// process.
type PaymentMonitor struct {
	payments *mongo.Collection
	sink     func(event PaymentEvent)
	cooldown time.Duration

	// Token của change cuối đã xử lý; subscribe lại tiếp tục từ đây để
	// không mất event xảy ra trong khoảng cooldown.
	resumeToken bson.Raw
}

// NewPaymentMonitor tạo monitor đẩy event vào sink (thường là
// BatchProcessor.Enqueue).
func NewPaymentMonitor(payments *mongo.Collection, cooldown time.Duration, sink func(event PaymentEvent)) *PaymentMonitor {
	return &PaymentMonitor{
		payments: payments,
		sink:     sink,
		cooldown: cooldown,
	}
}

// watchPipeline lọc ngay tại server: insert đã approved, hoặc update đổi
// status sang approved. fullDocument được lookup để luôn có bản ghi đầy đủ.
func watchPipeline() mongo.Pipeline {
	return mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{
			"$or": bson.A{
				bson.M{
					"operationType":       "insert",
					"fullDocument.status": paymentmodels.StatusApproved,
				},
				bson.M{
					"operationType":                          "update",
					"updateDescription.updatedFields.status": paymentmodels.StatusApproved,
				},
			},
		}}},
	}
}

// watchOptions dựng options cho Watch; có resume token thì tiếp tục từ đó.
func (m *PaymentMonitor) watchOptions() *options.ChangeStreamOptions {
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	if m.resumeToken != nil {
		opts.SetResumeAfter(m.resumeToken)
	}
	return opts
}

// Start chạy vòng lặp subscribe-consume-resubscribe cho tới khi ctx bị hủy.
// Gọi trong goroutine riêng.
func (m *PaymentMonitor) Start(ctx context.Context) {
	log := logger.GetStatsLogger()

	for {
		if ctx.Err() != nil {
			return
		}

		if err := m.consume(ctx); err != nil && ctx.Err() == nil {
			log.WithError(err).Warnf("Change stream thanh toán gián đoạn, subscribe lại sau %s", m.cooldown)
			select {
			case <-time.After(m.cooldown):
			case <-ctx.Done():
				return
			}
		}
	}
}

// consume mở change stream và đọc tới khi lỗi hoặc ctx bị hủy.
func (m *PaymentMonitor) consume(ctx context.Context) error {
	defer func() {
		if r := recover(); r != nil {
			logger.GetErrorLogger().Errorf("Panic trong payment monitor: %v", r)
		}
	}()

	stream, err := m.payments.Watch(ctx, watchPipeline(), m.watchOptions())
	if err != nil {
		if m.resumeToken != nil {
			// Token có thể đã rời khỏi oplog; lần sau subscribe mới từ hiện tại.
			logger.GetStatsLogger().Warn("Không resume được change stream thanh toán từ token cũ")
			m.resumeToken = nil
		}
		return err
	}
	defer stream.Close(ctx)

	logger.GetStatsLogger().Info("Đã subscribe change stream thanh toán")

	for stream.Next(ctx) {
		var change changeDoc
		if err := stream.Decode(&change); err != nil {
			logger.GetErrorLogger().WithError(err).Warn("Bỏ qua change document không decode được")
			m.resumeToken = stream.ResumeToken()
			continue
		}
		if event, ok := toPaymentEvent(change.FullDocument); ok {
			m.sink(event)
		}
		m.resumeToken = stream.ResumeToken()
	}
	return stream.Err()
}

// toPaymentEvent đổi payment document thành event; bỏ qua document thiếu
// trường bắt buộc (bản ghi cũ hoặc update lookup trả về sau một update khác).
func toPaymentEvent(doc paymentmodels.Payment) (PaymentEvent, bool) {
	if doc.ID.IsZero() || doc.CampaignID.IsZero() || doc.UserID.IsZero() {
		return PaymentEvent{}, false
	}
	if doc.Status != paymentmodels.StatusApproved {
		return PaymentEvent{}, false
	}

	approvedAt := doc.ApprovedAt
	if approvedAt == 0 {
		approvedAt = time.Now().UnixMilli()
	}
	return PaymentEvent{
		PaymentID:  doc.ID,
		CampaignID: doc.CampaignID,
		UserID:     doc.UserID,
		Amount:     doc.Amount,
		Numbers:    doc.Numbers,
		ApprovedAt: approvedAt,
	}, true
}
