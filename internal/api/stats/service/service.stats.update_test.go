package statssvc

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Jose00521/Raffle-sub003/internal/api/stats/models"
)

func TestDayKey_UTC(t *testing.T) {
	// 2026-03-15 23:30 UTC — khóa ngày không được lệch theo múi giờ máy chạy
	ts := time.Date(2026, 3, 15, 23, 30, 0, 0, time.UTC).UnixMilli()
	if got := DayKey(ts); got != "2026-03-15" {
		t.Errorf("DayKey = %q, cần 2026-03-15", got)
	}

	// 00:00:00.000 thuộc về ngày mới
	midnight := time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC).UnixMilli()
	if got := DayKey(midnight); got != "2026-03-16" {
		t.Errorf("DayKey tại nửa đêm = %q, cần 2026-03-16", got)
	}
}

func TestAddTotals(t *testing.T) {
	totals := models.StatsTotals{PaymentCount: 2, NumbersSold: 10, Revenue: 50, UniqueParticipants: 1}
	addTotals(&totals, models.StatsTotals{PaymentCount: 1, NumbersSold: 3, Revenue: 15.5, UniqueParticipants: 2})

	if totals.PaymentCount != 3 || totals.NumbersSold != 13 || totals.Revenue != 65.5 || totals.UniqueParticipants != 3 {
		t.Errorf("addTotals cộng sai: %+v", totals)
	}
}

func TestNewParticipants_OneCheckPerUser(t *testing.T) {
	userA := primitive.NewObjectID()
	userB := primitive.NewObjectID()
	events := []PaymentEvent{
		{PaymentID: primitive.NewObjectID(), UserID: userA},
		{PaymentID: primitive.NewObjectID(), UserID: userA},
		{PaymentID: primitive.NewObjectID(), UserID: userB},
	}

	calls := make(map[primitive.ObjectID]int)
	result, err := newParticipants(events, func(userID primitive.ObjectID) (bool, error) {
		calls[userID]++
		return userID == userB, nil // userB đã có snapshot từ trước
	})
	if err != nil {
		t.Fatalf("lỗi không mong đợi: %v", err)
	}

	if !result[userA] || result[userB] {
		t.Errorf("userA phải là mới, userB thì không: %v", result)
	}
	if calls[userA] != 1 || calls[userB] != 1 {
		t.Errorf("Mỗi user chỉ được kiểm tra một lần, nhận %v", calls)
	}
}

func TestNewParticipants_ReplayedPaymentCountedOnce(t *testing.T) {
	// Feed at-least-once: cùng một payment được giao ở hai batch. Sau batch
	// đầu user đã có snapshot participant, nên batch replay không coi user
	// là mới lần nữa.
	user := primitive.NewObjectID()
	payment := PaymentEvent{PaymentID: primitive.NewObjectID(), UserID: user}

	hasSnapshot := false
	seen := func(userID primitive.ObjectID) (bool, error) { return hasSnapshot, nil }

	first, err := newParticipants([]PaymentEvent{payment}, seen)
	if err != nil {
		t.Fatalf("lỗi không mong đợi: %v", err)
	}
	if !first[user] {
		t.Fatal("Batch đầu tiên phải coi user là participant mới")
	}

	// Batch đầu xử lý xong: snapshot participant của user đã được ghi
	hasSnapshot = true

	replay, err := newParticipants([]PaymentEvent{payment}, seen)
	if err != nil {
		t.Fatalf("lỗi không mong đợi: %v", err)
	}
	if replay[user] {
		t.Error("Payment giao lại ở batch sau không được tính user là mới lần hai")
	}
}

func TestSplitByDay(t *testing.T) {
	userA := primitive.NewObjectID()
	userB := primitive.NewObjectID()
	day1 := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC).UnixMilli()
	day1Evening := time.Date(2026, 5, 1, 22, 0, 0, 0, time.UTC).UnixMilli()
	day2 := time.Date(2026, 5, 2, 1, 0, 0, 0, time.UTC).UnixMilli()

	events := []PaymentEvent{
		{UserID: userA, Amount: 100, Numbers: []int64{1, 2, 3}, ApprovedAt: day1},
		{UserID: userB, Amount: 40, Numbers: []int64{7}, ApprovedAt: day1Evening},
		{UserID: userA, Amount: 60, Numbers: []int64{9, 10}, ApprovedAt: day1Evening},
		{UserID: userA, Amount: 20, Numbers: []int64{11}, ApprovedAt: day2},
	}

	deltas := splitByDay(events)
	if len(deltas) != 2 {
		t.Fatalf("4 event trải trên 2 ngày, nhận %d nhóm", len(deltas))
	}

	first := deltas[0]
	if first.dayKey != "2026-05-01" {
		t.Errorf("Nhóm đầu phải là ngày của event đầu tiên, nhận %q", first.dayKey)
	}
	if first.totals.PaymentCount != 3 || first.totals.NumbersSold != 6 || first.totals.Revenue != 200 {
		t.Errorf("Tổng ngày 01/05 sai: %+v", first.totals)
	}
	if got := first.byUser[userA]; got.PaymentCount != 2 || got.NumbersSold != 5 || got.Revenue != 160 {
		t.Errorf("Tổng của userA ngày 01/05 sai: %+v", got)
	}
	if got := first.byUser[userB]; got.PaymentCount != 1 || got.NumbersSold != 1 || got.Revenue != 40 {
		t.Errorf("Tổng của userB ngày 01/05 sai: %+v", got)
	}

	second := deltas[1]
	if second.dayKey != "2026-05-02" {
		t.Errorf("Nhóm hai phải là 2026-05-02, nhận %q", second.dayKey)
	}
	if second.totals.PaymentCount != 1 || len(second.byUser) != 1 {
		t.Errorf("Ngày 02/05 chỉ có 1 event của userA: %+v", second)
	}

	// UniqueParticipants không được suy ra từ event thô
	if first.totals.UniqueParticipants != 0 {
		t.Errorf("splitByDay không tự đếm participant mới, nhận %d", first.totals.UniqueParticipants)
	}
}
