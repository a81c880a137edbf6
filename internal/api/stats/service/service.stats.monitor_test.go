package statssvc

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type soldMarkerCall struct {
	campaignID primitive.ObjectID
	userID     primitive.ObjectID
	numbers    []int64
}

type fakeSoldMarker struct {
	calls []soldMarkerCall
	err   error
}

func (f *fakeSoldMarker) MarkSold(ctx context.Context, campaignID, userID primitive.ObjectID, numbers []int64) (int64, error) {
	f.calls = append(f.calls, soldMarkerCall{campaignID: campaignID, userID: userID, numbers: numbers})
	if f.err != nil {
		return 0, f.err
	}
	return int64(len(numbers)), nil
}

func TestConfirmationSink_MarksSoldThenForwards(t *testing.T) {
	marker := &fakeSoldMarker{}
	var forwarded []PaymentEvent
	sink := NewConfirmationSink(context.Background(), marker, func(event PaymentEvent) {
		forwarded = append(forwarded, event)
	})

	event := PaymentEvent{
		PaymentID:  primitive.NewObjectID(),
		CampaignID: primitive.NewObjectID(),
		UserID:     primitive.NewObjectID(),
		Amount:     75,
		Numbers:    []int64{4, 8, 15},
		ApprovedAt: time.Now().UnixMilli(),
	}
	sink(event)

	if len(marker.calls) != 1 {
		t.Fatalf("Thanh toán xác nhận phải chốt sold đúng một lần, nhận %d", len(marker.calls))
	}
	call := marker.calls[0]
	if call.campaignID != event.CampaignID || call.userID != event.UserID {
		t.Errorf("MarkSold nhận sai campaign/user: %+v", call)
	}
	if len(call.numbers) != 3 || call.numbers[0] != 4 || call.numbers[2] != 15 {
		t.Errorf("MarkSold phải nhận đúng các số của thanh toán, nhận %v", call.numbers)
	}
	if len(forwarded) != 1 || forwarded[0].PaymentID != event.PaymentID {
		t.Errorf("Event phải được chuyển tiếp vào pipeline: %+v", forwarded)
	}
}

func TestConfirmationSink_ForwardsEvenWhenMarkFails(t *testing.T) {
	marker := &fakeSoldMarker{err: fmt.Errorf("mongo tạm thời không phản hồi")}
	var forwarded int
	sink := NewConfirmationSink(context.Background(), marker, func(event PaymentEvent) {
		forwarded++
	})

	sink(PaymentEvent{
		PaymentID:  primitive.NewObjectID(),
		CampaignID: primitive.NewObjectID(),
		UserID:     primitive.NewObjectID(),
		Numbers:    []int64{7},
	})

	if forwarded != 1 {
		t.Error("Chốt sold lỗi thì thống kê vẫn phải nhận event")
	}
}

func TestConfirmationSink_SkipsMarkWithoutNumbers(t *testing.T) {
	marker := &fakeSoldMarker{}
	sink := NewConfirmationSink(context.Background(), marker, func(event PaymentEvent) {})

	sink(PaymentEvent{
		PaymentID:  primitive.NewObjectID(),
		CampaignID: primitive.NewObjectID(),
		UserID:     primitive.NewObjectID(),
	})

	if len(marker.calls) != 0 {
		t.Errorf("Thanh toán không kèm số thì không có gì để chốt, nhận %d lần gọi", len(marker.calls))
	}
}

func TestWatchOptions_ResumeToken(t *testing.T) {
	m := NewPaymentMonitor(nil, time.Second, nil)

	if opts := m.watchOptions(); opts.ResumeAfter != nil {
		t.Error("Chưa có token thì không được set ResumeAfter")
	}

	raw, err := bson.Marshal(bson.M{"_data": "8263AB12E4"})
	if err != nil {
		t.Fatalf("không marshal được token mẫu: %v", err)
	}
	m.resumeToken = bson.Raw(raw)

	if opts := m.watchOptions(); opts.ResumeAfter == nil {
		t.Error("Có token thì subscribe lại phải tiếp tục từ ResumeAfter")
	}
}
