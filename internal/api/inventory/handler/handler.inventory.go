// Package invhdl - HTTP handlers cho inventory API.
package invhdl

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"go.mongodb.org/mongo-driver/bson/primitive"

	basehdl "github.com/Jose00521/Raffle-sub003/internal/api/base/handler"
	campaignsvc "github.com/Jose00521/Raffle-sub003/internal/api/campaign/service"
	"github.com/Jose00521/Raffle-sub003/internal/api/inventory/dto"
	invsvc "github.com/Jose00521/Raffle-sub003/internal/api/inventory/service"
	"github.com/Jose00521/Raffle-sub003/internal/api/middleware"
	"github.com/Jose00521/Raffle-sub003/internal/common"
	"github.com/Jose00521/Raffle-sub003/internal/global"
)

// InventoryHandler phục vụ các route số vé của một campaign.
type InventoryHandler struct {
	engine    *invsvc.AllocationEngine
	campaigns *campaignsvc.CampaignService
	statuses  *campaignsvc.NumberStatusService
}

// NewInventoryHandler tạo handler với engine đã khởi tạo.
func NewInventoryHandler(engine *invsvc.AllocationEngine) (*InventoryHandler, error) {
	campaigns, err := campaignsvc.NewCampaignService()
	if err != nil {
		return nil, err
	}
	statuses, err := campaignsvc.NewNumberStatusService()
	if err != nil {
		return nil, err
	}
	return &InventoryHandler{
		engine:    engine,
		campaigns: campaigns,
		statuses:  statuses,
	}, nil
}

// campaignIDFromParams đọc và validate :campaignId.
func campaignIDFromParams(c fiber.Ctx) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(c.Params("campaignId"))
	if err != nil {
		return primitive.NilObjectID, common.NewError(
			common.ErrCodeValidationInput,
			"campaignId không phải ObjectID hợp lệ",
			common.StatusBadRequest,
			nil,
		)
	}
	return id, nil
}

// parseBody bind + validate body request.
func parseBody(c fiber.Ctx, out interface{}) error {
	if err := c.Bind().Body(out); err != nil {
		return common.ErrInvalidFormat
	}
	if err := global.GetValidator().Struct(out); err != nil {
		return common.NewError(
			common.ErrCodeValidationInput,
			"Dữ liệu request không hợp lệ",
			common.StatusBadRequest,
			err.Error(),
		)
	}
	return nil
}

// Initialize xử lý POST /campaigns/:campaignId/numbers/init: tạo index số và
// bản ghi campaign tối thiểu mà stats phụ thuộc (creator, totalNumbers, giá vé).
func (h *InventoryHandler) Initialize(c fiber.Ctx) error {
	return basehdl.SafeHandlerWrapper(c, func() error {
		campaignID, err := campaignIDFromParams(c)
		if err != nil {
			return basehdl.RespondError(c, err)
		}
		identity, ok := middleware.IdentityFromContext(c)
		if !ok {
			return basehdl.RespondError(c, common.ErrTokenMissing)
		}
		creatorID, err := primitive.ObjectIDFromHex(identity.UserID)
		if err != nil {
			return basehdl.RespondError(c, common.ErrTokenInvalid)
		}

		var req invdto.InitRequest
		if err := parseBody(c, &req); err != nil {
			return basehdl.RespondError(c, err)
		}

		layout, err := h.engine.Initialize(c.Context(), campaignID, req.TotalNumbers)
		if err != nil {
			return basehdl.RespondError(c, err)
		}
		// Init lần nữa sau khi campaign record đã có bị engine chặn bằng
		// ErrDuplicate ở trên, nên duplicate ở đây chỉ là ghi lại record cũ.
		if _, err := h.campaigns.Create(c.Context(), campaignID, creatorID, req.TotalNumbers, req.TicketPrice); err != nil && !errors.Is(err, common.ErrDuplicate) {
			return basehdl.RespondError(c, err)
		}
		return basehdl.RespondSuccess(c, fiber.Map{
			"campaignId":   campaignID,
			"totalNumbers": req.TotalNumbers,
			"mode":         layout.Mode,
			"shardSize":    layout.ShardSize,
			"shardCount":   layout.ShardCount,
		})
	})
}

// Reserve xử lý POST /campaigns/:campaignId/numbers/reserve. Body có
// quantity thì chọn ngẫu nhiên, có numbers thì giữ đúng các số đó.
func (h *InventoryHandler) Reserve(c fiber.Ctx) error {
	return basehdl.SafeHandlerWrapper(c, func() error {
		campaignID, err := campaignIDFromParams(c)
		if err != nil {
			return basehdl.RespondError(c, err)
		}
		identity, ok := middleware.IdentityFromContext(c)
		if !ok {
			return basehdl.RespondError(c, common.ErrTokenMissing)
		}
		userID, err := primitive.ObjectIDFromHex(identity.UserID)
		if err != nil {
			return basehdl.RespondError(c, common.ErrTokenInvalid)
		}

		var req invdto.ReserveRequest
		if err := parseBody(c, &req); err != nil {
			return basehdl.RespondError(c, err)
		}
		if (req.Quantity > 0) == (len(req.Numbers) > 0) {
			return basehdl.RespondError(c, common.NewError(
				common.ErrCodeValidationInput,
				"Request phải có đúng một trong hai trường: quantity hoặc numbers",
				common.StatusBadRequest,
				nil,
			))
		}

		if req.Quantity > 0 {
			reserved, err := h.engine.ReserveRandom(c.Context(), campaignID, userID, req.Quantity)
			if err != nil {
				return basehdl.RespondError(c, err)
			}
			return basehdl.RespondSuccess(c, fiber.Map{
				"reserved":    reserved,
				"unavailable": []int64{},
			})
		}

		result, err := h.engine.ReserveSpecific(c.Context(), campaignID, userID, req.Numbers, req.AllowPartial)
		if err != nil {
			return basehdl.RespondError(c, err)
		}
		return basehdl.RespondSuccess(c, result)
	})
}

// Release xử lý POST /campaigns/:campaignId/numbers/release.
func (h *InventoryHandler) Release(c fiber.Ctx) error {
	return basehdl.SafeHandlerWrapper(c, func() error {
		campaignID, err := campaignIDFromParams(c)
		if err != nil {
			return basehdl.RespondError(c, err)
		}

		var req invdto.ReleaseRequest
		if err := parseBody(c, &req); err != nil {
			return basehdl.RespondError(c, err)
		}

		released, err := h.engine.Release(c.Context(), campaignID, req.Numbers)
		if err != nil {
			return basehdl.RespondError(c, err)
		}
		return basehdl.RespondSuccess(c, fiber.Map{"released": released})
	})
}

// Check xử lý POST /campaigns/:campaignId/numbers/check.
func (h *InventoryHandler) Check(c fiber.Ctx) error {
	return basehdl.SafeHandlerWrapper(c, func() error {
		campaignID, err := campaignIDFromParams(c)
		if err != nil {
			return basehdl.RespondError(c, err)
		}

		var req invdto.CheckRequest
		if err := parseBody(c, &req); err != nil {
			return basehdl.RespondError(c, err)
		}

		availability, err := h.engine.CheckAvailability(c.Context(), campaignID, req.Numbers)
		if err != nil {
			return basehdl.RespondError(c, err)
		}

		items := make([]invdto.CheckResponseItem, len(req.Numbers))
		for i, number := range req.Numbers {
			items[i] = invdto.CheckResponseItem{Number: number, Available: availability[i]}
		}
		return basehdl.RespondSuccess(c, items)
	})
}

// Diagnostics xử lý GET /campaigns/:campaignId/numbers/diagnostics.
func (h *InventoryHandler) Diagnostics(c fiber.Ctx) error {
	return basehdl.SafeHandlerWrapper(c, func() error {
		campaignID, err := campaignIDFromParams(c)
		if err != nil {
			return basehdl.RespondError(c, err)
		}

		diagnostics, err := h.engine.Diagnostics(c.Context(), campaignID)
		if err != nil {
			return basehdl.RespondError(c, err)
		}
		return basehdl.RespondSuccess(c, diagnostics)
	})
}

// MyNumbers xử lý GET /campaigns/:campaignId/numbers/my: các số user đang giữ
// (reserved lẫn sold) trong campaign.
func (h *InventoryHandler) MyNumbers(c fiber.Ctx) error {
	return basehdl.SafeHandlerWrapper(c, func() error {
		campaignID, err := campaignIDFromParams(c)
		if err != nil {
			return basehdl.RespondError(c, err)
		}
		identity, ok := middleware.IdentityFromContext(c)
		if !ok {
			return basehdl.RespondError(c, common.ErrTokenMissing)
		}
		userID, err := primitive.ObjectIDFromHex(identity.UserID)
		if err != nil {
			return basehdl.RespondError(c, common.ErrTokenInvalid)
		}

		statuses, err := h.statuses.FindByUser(c.Context(), campaignID, userID)
		if err != nil {
			return basehdl.RespondError(c, err)
		}
		return basehdl.RespondSuccess(c, statuses)
	})
}

// Teardown xử lý DELETE /campaigns/:campaignId/numbers: dọn index số và đánh
// dấu campaign đã xóa.
func (h *InventoryHandler) Teardown(c fiber.Ctx) error {
	return basehdl.SafeHandlerWrapper(c, func() error {
		campaignID, err := campaignIDFromParams(c)
		if err != nil {
			return basehdl.RespondError(c, err)
		}

		if err := h.engine.Teardown(c.Context(), campaignID); err != nil {
			return basehdl.RespondError(c, err)
		}
		if err := h.campaigns.MarkDeleted(c.Context(), campaignID); err != nil && !errors.Is(err, common.ErrNotFound) {
			return basehdl.RespondError(c, err)
		}
		return basehdl.RespondSuccess(c, fiber.Map{"campaignId": campaignID})
	})
}
