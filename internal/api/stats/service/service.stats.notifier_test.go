package statssvc

import (
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Jose00521/Raffle-sub003/internal/api/stats/models"
	"github.com/Jose00521/Raffle-sub003/internal/common"
)

func TestNotifier_SubscribeAuthz(t *testing.T) {
	n := NewNotifier()
	defer n.Close()

	campaignID := primitive.NewObjectID()
	userID := primitive.NewObjectID()

	// Kênh campaign công khai, không cần trùng chủ thể
	if _, err := n.Subscribe(models.EntityCampaign, campaignID, ""); err != nil {
		t.Errorf("Kênh campaign phải mở công khai, nhận lỗi %v", err)
	}

	// Kênh creator/participant chỉ mở cho đúng chủ thể
	if _, err := n.Subscribe(models.EntityCreator, userID, userID.Hex()); err != nil {
		t.Errorf("Creator đăng ký kênh của chính mình phải được, nhận lỗi %v", err)
	}
	if _, err := n.Subscribe(models.EntityCreator, userID, primitive.NewObjectID().Hex()); !errors.Is(err, common.ErrUnauthorized) {
		t.Errorf("User khác đăng ký kênh creator phải bị ErrUnauthorized, nhận %v", err)
	}
	if _, err := n.Subscribe(models.EntityParticipant, userID, ""); !errors.Is(err, common.ErrUnauthorized) {
		t.Errorf("Kênh participant không danh tính phải bị ErrUnauthorized, nhận %v", err)
	}

	if _, err := n.Subscribe("leaderboard", campaignID, ""); !errors.Is(err, common.ErrInvalidInput) {
		t.Errorf("Loại kênh lạ phải bị ErrInvalidInput, nhận %v", err)
	}
}

func TestNotifier_PublishFanout(t *testing.T) {
	n := NewNotifier()
	defer n.Close()

	campaignA := primitive.NewObjectID()
	campaignB := primitive.NewObjectID()

	subA1, _ := n.Subscribe(models.EntityCampaign, campaignA, "")
	subA2, _ := n.Subscribe(models.EntityCampaign, campaignA, "")
	subB, _ := n.Subscribe(models.EntityCampaign, campaignB, "")

	n.Publish(StatsEventPayload{EventType: models.EntityCampaign, EntityID: campaignA, Timestamp: time.Now().UnixMilli()})

	for i, sub := range []*Subscription{subA1, subA2} {
		select {
		case got := <-sub.Events():
			if got.EntityID != campaignA {
				t.Errorf("Subscriber %d nhận sai entity: %s", i, got.EntityID.Hex())
			}
		default:
			t.Errorf("Subscriber %d của campaignA phải nhận được event", i)
		}
	}

	select {
	case got := <-subB.Events():
		t.Errorf("Subscriber của campaignB không được nhận event của campaignA: %+v", got)
	default:
	}
}

func TestNotifier_SlowSubscriberDropped(t *testing.T) {
	n := NewNotifier()
	defer n.Close()

	campaignID := primitive.NewObjectID()
	sub, _ := n.Subscribe(models.EntityCampaign, campaignID, "")

	// Không ai đọc: quá buffer thì event thừa bị bỏ, Publish không được block
	for i := 0; i < subscriberBuffer+5; i++ {
		n.Publish(StatsEventPayload{EventType: models.EntityCampaign, EntityID: campaignID, Timestamp: int64(i)})
	}

	if got := len(sub.ch); got != subscriberBuffer {
		t.Errorf("Buffer phải giữ đúng %d event đầu, nhận %d", subscriberBuffer, got)
	}
	first := <-sub.Events()
	if first.Timestamp != 0 {
		t.Errorf("Event bị bỏ phải là event mới, event cũ giữ nguyên; đầu buffer là %d", first.Timestamp)
	}
}

func TestNotifier_UnsubscribeClosesChannel(t *testing.T) {
	n := NewNotifier()
	defer n.Close()

	campaignID := primitive.NewObjectID()
	sub, _ := n.Subscribe(models.EntityCampaign, campaignID, "")
	if n.SubscriberCount() != 1 {
		t.Fatalf("Phải có 1 subscription, nhận %d", n.SubscriberCount())
	}

	n.Unsubscribe(sub)
	if n.SubscriberCount() != 0 {
		t.Errorf("Sau Unsubscribe phải còn 0 subscription, nhận %d", n.SubscriberCount())
	}
	if _, open := <-sub.Events(); open {
		t.Error("Channel của subscription phải bị đóng sau Unsubscribe")
	}

	// Unsubscribe lặp lại không được panic
	n.Unsubscribe(sub)
}

func TestNotifier_CloseStopsEverything(t *testing.T) {
	n := NewNotifier()
	campaignID := primitive.NewObjectID()
	sub, _ := n.Subscribe(models.EntityCampaign, campaignID, "")

	n.Close()
	if _, open := <-sub.Events(); open {
		t.Error("Close phải đóng channel của mọi subscription")
	}
	if _, err := n.Subscribe(models.EntityCampaign, campaignID, ""); err == nil {
		t.Error("Subscribe sau Close phải trả lỗi")
	}

	// Publish sau Close là no-op
	n.Publish(StatsEventPayload{EventType: models.EntityCampaign, EntityID: campaignID})
}
