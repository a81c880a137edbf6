package statssvc

import (
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Jose00521/Raffle-sub003/internal/api/stats/models"
	"github.com/Jose00521/Raffle-sub003/internal/common"
	"github.com/Jose00521/Raffle-sub003/internal/logger"
)

// StatsEventPayload là một sự kiện thống kê đẩy tới subscriber.
type StatsEventPayload struct {
	EventType string             `json:"eventType"` // campaign | creator | participant
	EntityID  primitive.ObjectID `json:"entityId"`
	Timestamp int64              `json:"timestamp"` // UnixMilli
	Data      interface{}        `json:"data,omitempty"`
}

// EventPublisher là phía phát của notifier, dùng bởi StatsUpdateProcessor.
type EventPublisher interface {
	Publish(payload StatsEventPayload)
}

// Kích thước buffer mỗi subscriber; subscriber đọc chậm bị bỏ event thay vì
// chặn pipeline.
const subscriberBuffer = 16

// Subscription là một kết nối đang lắng nghe một kênh sự kiện.
type Subscription struct {
	id        uint64
	eventType string
	entityID  primitive.ObjectID
	ch        chan StatsEventPayload
}

// Events trả về channel nhận sự kiện của subscription.
func (s *Subscription) Events() <-chan StatsEventPayload {
	return s.ch
}

// Notifier phát StatsEventPayload tới các subscription đang mở. Kênh
// campaign là công khai; kênh creator và participant chỉ mở cho đúng chủ
// thể đã xác thực.
type Notifier struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool
}

// NewNotifier tạo notifier rỗng.
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[uint64]*Subscription)}
}

// Subscribe mở một subscription cho (eventType, entityID) sau khi kiểm tra
// quyền: kênh campaign mở cho mọi user đã xác thực; kênh creator/participant
// yêu cầu callerUserID trùng entityID, ngược lại ErrUnauthorized.
func (n *Notifier) Subscribe(eventType string, entityID primitive.ObjectID, callerUserID string) (*Subscription, error) {
	switch eventType {
	case models.EntityCampaign:
		// Công khai.
	case models.EntityCreator, models.EntityParticipant:
		if callerUserID == "" || callerUserID != entityID.Hex() {
			return nil, common.ErrUnauthorized
		}
	default:
		return nil, common.ErrInvalidInput
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil, common.ErrConnection
	}

	n.nextID++
	sub := &Subscription{
		id:        n.nextID,
		eventType: eventType,
		entityID:  entityID,
		ch:        make(chan StatsEventPayload, subscriberBuffer),
	}
	n.subs[sub.id] = sub
	return sub, nil
}

// Unsubscribe đóng subscription và ngừng nhận sự kiện.
func (n *Notifier) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.subs[sub.id]; ok {
		delete(n.subs, sub.id)
		close(sub.ch)
	}
}

// Publish phát sự kiện tới mọi subscription khớp (eventType, entityID).
// Không bao giờ block: subscriber đầy buffer bị bỏ event đó.
func (n *Notifier) Publish(payload StatsEventPayload) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return
	}

	for _, sub := range n.subs {
		if sub.eventType != payload.EventType || sub.entityID != payload.EntityID {
			continue
		}
		select {
		case sub.ch <- payload:
		default:
			logger.GetStatsLogger().Debugf(
				"Subscriber %d đọc chậm, bỏ event %s", sub.id, payload.EventType)
		}
	}
}

// SubscriberCount trả về số subscription đang mở (phục vụ test/diagnostics).
func (n *Notifier) SubscriberCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs)
}

// Close đóng mọi subscription; Publish sau đó là no-op.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	for id, sub := range n.subs {
		delete(n.subs, id)
		close(sub.ch)
	}
}
