package statssvc

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func makeEvents(n int) []PaymentEvent {
	events := make([]PaymentEvent, n)
	for i := range events {
		events[i] = PaymentEvent{Amount: float64(i + 1)}
	}
	return events
}

func waitBatch(t *testing.T, ch <-chan []PaymentEvent) []PaymentEvent {
	t.Helper()
	select {
	case batch := <-ch:
		return batch
	case <-time.After(2 * time.Second):
		t.Fatal("Hết 2s mà handler chưa nhận được batch nào")
		return nil
	}
}

func TestBatchProcessor_FlushWhenBatchSizeReached(t *testing.T) {
	batches := make(chan []PaymentEvent, 4)
	p := NewBatchProcessor(BatchConfig{BatchSize: 5, Debounce: time.Hour, BacklogWarnSize: 100}, func(ctx context.Context, events []PaymentEvent) error {
		batches <- events
		return nil
	})
	defer p.Stop()

	for _, ev := range makeEvents(10) {
		p.Enqueue(ev)
	}

	first := waitBatch(t, batches)
	second := waitBatch(t, batches)
	if len(first) != 5 || len(second) != 5 {
		t.Errorf("10 event với BatchSize=5 phải thành 2 batch 5, nhận %d và %d", len(first), len(second))
	}
	if first[0].Amount != 1 || second[0].Amount != 6 {
		t.Errorf("Batch phải giữ thứ tự enqueue, nhận đầu batch là %v và %v", first[0].Amount, second[0].Amount)
	}
}

func TestBatchProcessor_FlushOnDebounce(t *testing.T) {
	batches := make(chan []PaymentEvent, 1)
	p := NewBatchProcessor(BatchConfig{BatchSize: 100, Debounce: 20 * time.Millisecond, BacklogWarnSize: 100}, func(ctx context.Context, events []PaymentEvent) error {
		batches <- events
		return nil
	})
	defer p.Stop()

	for _, ev := range makeEvents(3) {
		p.Enqueue(ev)
	}

	got := waitBatch(t, batches)
	if len(got) != 3 {
		t.Errorf("Debounce phải flush cả backlog 3 event, nhận %d", len(got))
	}
}

func TestBatchProcessor_SingleInFlight(t *testing.T) {
	gate := make(chan struct{})
	batches := make(chan []PaymentEvent, 2)
	p := NewBatchProcessor(BatchConfig{BatchSize: 5, Debounce: time.Hour, BacklogWarnSize: 100}, func(ctx context.Context, events []PaymentEvent) error {
		<-gate
		batches <- events
		return nil
	})
	defer p.Stop()

	// Batch đầu bị chặn bởi gate, 5 event tiếp theo phải nằm lại backlog
	for _, ev := range makeEvents(10) {
		p.Enqueue(ev)
	}

	deadline := time.Now().Add(time.Second)
	for p.BacklogSize() != 5 {
		if time.Now().After(deadline) {
			t.Fatalf("Khi batch đầu đang chạy, backlog phải giữ 5 event, nhận %d", p.BacklogSize())
		}
		time.Sleep(time.Millisecond)
	}

	close(gate)
	first := waitBatch(t, batches)
	second := waitBatch(t, batches)
	if len(first) != 5 || len(second) != 5 {
		t.Errorf("Sau khi mở gate phải lần lượt có 2 batch 5 event, nhận %d và %d", len(first), len(second))
	}
}

func TestBatchProcessor_FailedBatchDroppedAndContinues(t *testing.T) {
	batches := make(chan []PaymentEvent, 2)
	calls := 0
	p := NewBatchProcessor(BatchConfig{BatchSize: 3, Debounce: time.Hour, BacklogWarnSize: 100}, func(ctx context.Context, events []PaymentEvent) error {
		calls++
		if calls == 1 {
			return fmt.Errorf("mongo tạm thời không phản hồi")
		}
		batches <- events
		return nil
	})
	defer p.Stop()

	for _, ev := range makeEvents(6) {
		p.Enqueue(ev)
	}

	got := waitBatch(t, batches)
	if len(got) != 3 {
		t.Errorf("Batch sau batch lỗi phải được xử lý đủ 3 event, nhận %d", len(got))
	}
	if got[0].Amount != 4 {
		t.Errorf("Batch lỗi phải bị bỏ hẳn, batch kế bắt đầu từ event 4, nhận %v", got[0].Amount)
	}
}

func TestBatchProcessor_StopFlushesRemainder(t *testing.T) {
	batches := make(chan []PaymentEvent, 1)
	p := NewBatchProcessor(BatchConfig{BatchSize: 100, Debounce: time.Hour, BacklogWarnSize: 100}, func(ctx context.Context, events []PaymentEvent) error {
		batches <- events
		return nil
	})

	for _, ev := range makeEvents(2) {
		p.Enqueue(ev)
	}
	p.Stop()

	got := waitBatch(t, batches)
	if len(got) != 2 {
		t.Errorf("Stop phải flush nốt 2 event còn lại, nhận %d", len(got))
	}
	if p.BacklogSize() != 0 {
		t.Errorf("Sau Stop backlog phải rỗng, còn %d", p.BacklogSize())
	}
}
