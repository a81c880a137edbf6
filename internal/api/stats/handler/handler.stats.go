// Package statshdl - HTTP handlers cho stats API: đọc snapshot và đăng ký
// nhận sự kiện qua SSE.
package statshdl

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v3"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	basehdl "github.com/Jose00521/Raffle-sub003/internal/api/base/handler"
	basesvc "github.com/Jose00521/Raffle-sub003/internal/api/base/service"
	"github.com/Jose00521/Raffle-sub003/internal/api/middleware"
	"github.com/Jose00521/Raffle-sub003/internal/api/stats/models"
	statssvc "github.com/Jose00521/Raffle-sub003/internal/api/stats/service"
	"github.com/Jose00521/Raffle-sub003/internal/common"
	"github.com/Jose00521/Raffle-sub003/internal/global"
	"github.com/Jose00521/Raffle-sub003/internal/logger"
)

// Chu kỳ gửi comment keep-alive trên kết nối SSE.
const sseKeepAlive = 25 * time.Second

// StatsHandler phục vụ các route thống kê.
type StatsHandler struct {
	snapshots *basesvc.BaseServiceMongoImpl[models.StatsSnapshot]
	notifier  *statssvc.Notifier
}

// NewStatsHandler tạo handler từ registry collection và notifier dùng chung.
func NewStatsHandler(notifier *statssvc.Notifier) (*StatsHandler, error) {
	collection, err := global.RegistryCollections.MustGet(global.MongoDB_ColNames.StatsSnapshots)
	if err != nil {
		return nil, err
	}
	return &StatsHandler{
		snapshots: basesvc.NewBaseServiceMongo[models.StatsSnapshot](collection),
		notifier:  notifier,
	}, nil
}

// parseEntity đọc entityType + entityId từ query và kiểm tra quyền đọc:
// campaign công khai, creator/participant chỉ chủ thể.
func parseEntity(c fiber.Ctx) (string, primitive.ObjectID, error) {
	entityType := c.Query("entityType", models.EntityCampaign)
	entityID, err := primitive.ObjectIDFromHex(c.Query("entityId"))
	if err != nil {
		return "", primitive.NilObjectID, common.NewError(
			common.ErrCodeValidationInput,
			"entityId không phải ObjectID hợp lệ",
			common.StatusBadRequest,
			nil,
		)
	}

	switch entityType {
	case models.EntityCampaign:
	case models.EntityCreator, models.EntityParticipant:
		identity, ok := middleware.IdentityFromContext(c)
		if !ok || identity.UserID != entityID.Hex() {
			return "", primitive.NilObjectID, common.ErrUnauthorized
		}
	default:
		return "", primitive.NilObjectID, common.ErrInvalidInput
	}
	return entityType, entityID, nil
}

// GetSnapshot xử lý GET /stats/snapshot: snapshot mới nhất của một thực thể,
// hoặc của đúng một ngày nếu query có dayKey.
func (h *StatsHandler) GetSnapshot(c fiber.Ctx) error {
	return basehdl.SafeHandlerWrapper(c, func() error {
		entityType, entityID, err := parseEntity(c)
		if err != nil {
			return basehdl.RespondError(c, err)
		}

		filter := bson.M{
			"entityType": entityType,
			"entityId":   entityID,
		}
		if campaignID, err := primitive.ObjectIDFromHex(c.Query("campaignId")); err == nil {
			filter["campaignId"] = campaignID
		}
		if dayKey := c.Query("dayKey"); dayKey != "" {
			filter["dayKey"] = dayKey
		}

		snapshot, err := h.snapshots.FindOne(c.Context(), filter,
			options.FindOne().SetSort(bson.M{"dayKey": -1}))
		if err != nil {
			return basehdl.RespondError(c, err)
		}
		return basehdl.RespondSuccess(c, snapshot)
	})
}

// Subscribe xử lý GET /stats/subscribe: giữ kết nối SSE và đẩy
// StatsEventPayload của kênh đã đăng ký cho tới khi client ngắt.
func (h *StatsHandler) Subscribe(c fiber.Ctx) error {
	entityType := c.Query("eventType", models.EntityCampaign)
	entityID, err := primitive.ObjectIDFromHex(c.Query("entityId"))
	if err != nil {
		return basehdl.RespondError(c, common.NewError(
			common.ErrCodeValidationInput,
			"entityId không phải ObjectID hợp lệ",
			common.StatusBadRequest,
			nil,
		))
	}

	callerUserID := ""
	if identity, ok := middleware.IdentityFromContext(c); ok {
		callerUserID = identity.UserID
	}

	sub, err := h.notifier.Subscribe(entityType, entityID, callerUserID)
	if err != nil {
		return basehdl.RespondError(c, err)
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	return c.SendStreamWriter(func(w *bufio.Writer) {
		defer h.notifier.Unsubscribe(sub)

		keepAlive := time.NewTicker(sseKeepAlive)
		defer keepAlive.Stop()

		for {
			select {
			case payload, ok := <-sub.Events():
				if !ok {
					return
				}
				body, err := json.Marshal(payload)
				if err != nil {
					logger.GetErrorLogger().WithError(err).Warn("Không serialize được stats event")
					continue
				}
				if _, err := fmt.Fprintf(w, "event: stats\ndata: %s\n\n", body); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			case <-keepAlive.C:
				if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	})
}
