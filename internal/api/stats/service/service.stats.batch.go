package statssvc

import (
	"context"
	"sync"
	"time"

	"github.com/Jose00521/Raffle-sub003/internal/logger"
)

// BatchConfig là các ngưỡng của batch processor, lấy từ config.
type BatchConfig struct {
	BatchSize       int           // Flush khi backlog đạt kích thước này
	Debounce        time.Duration // Flush khi im ắng quá khoảng này kể từ event đầu backlog
	BacklogWarnSize int           // Cảnh báo khi backlog vượt ngưỡng
}

// BatchHandler xử lý một batch event; lỗi trả về làm batch bị bỏ
// (dữ liệu gốc vẫn nằm trong ledger thanh toán, worker reconcile bù lại sau).
type BatchHandler func(ctx context.Context, events []PaymentEvent) error

// BatchProcessor gom PaymentEvent thành batch: flush khi đủ BatchSize hoặc
// khi hết debounce, tùy cái nào đến trước. Chỉ một batch được xử lý tại một
// thời điểm; event mới vẫn được nhận trong lúc batch trước đang chạy.
type BatchProcessor struct {
	cfg     BatchConfig
	handler BatchHandler

	mu       sync.Mutex
	backlog  []PaymentEvent
	timer    *time.Timer
	inFlight bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBatchProcessor tạo processor; gọi Stop khi shutdown để flush phần còn lại.
func NewBatchProcessor(cfg BatchConfig, handler BatchHandler) *BatchProcessor {
	ctx, cancel := context.WithCancel(context.Background())
	return &BatchProcessor{
		cfg:     cfg,
		handler: handler,
		backlog: make([]PaymentEvent, 0, cfg.BatchSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Enqueue thêm event vào backlog. Không bao giờ block: flush chạy ở
// goroutine riêng.
func (p *BatchProcessor) Enqueue(event PaymentEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx.Err() != nil {
		return
	}

	p.backlog = append(p.backlog, event)

	if len(p.backlog) > p.cfg.BacklogWarnSize {
		logger.GetStatsLogger().Warnf("Backlog thống kê đạt %d event, xử lý không theo kịp", len(p.backlog))
	}

	if len(p.backlog) >= p.cfg.BatchSize {
		p.flushLocked()
		return
	}

	// Debounce tính từ event đầu tiên của backlog hiện tại.
	if p.timer == nil {
		p.timer = time.AfterFunc(p.cfg.Debounce, p.flushByTimer)
	}
}

func (p *BatchProcessor) flushByTimer() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timer = nil
	p.flushLocked()
}

// flushLocked cắt backlog hiện tại và đưa cho worker nếu chưa có batch đang
// chạy. Đang có batch chạy: backlog giữ nguyên, batch kế chạy ngay khi batch
// trước xong. Caller phải giữ p.mu.
func (p *BatchProcessor) flushLocked() {
	if p.inFlight || len(p.backlog) == 0 {
		return
	}

	batch := p.backlog
	if len(batch) > p.cfg.BatchSize {
		batch = p.backlog[:p.cfg.BatchSize]
		p.backlog = append(make([]PaymentEvent, 0, p.cfg.BatchSize), p.backlog[p.cfg.BatchSize:]...)
	} else {
		p.backlog = make([]PaymentEvent, 0, p.cfg.BatchSize)
	}

	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}

	p.inFlight = true
	p.wg.Add(1)
	go p.process(batch)
}

// process chạy handler cho một batch rồi kiểm tra backlog còn lại.
func (p *BatchProcessor) process(batch []PaymentEvent) {
	defer p.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			logger.GetErrorLogger().Errorf("Panic khi xử lý batch thống kê: %v", r)
		}

		p.mu.Lock()
		p.inFlight = false
		if len(p.backlog) >= p.cfg.BatchSize {
			p.flushLocked()
		} else if len(p.backlog) > 0 && p.timer == nil {
			p.timer = time.AfterFunc(p.cfg.Debounce, p.flushByTimer)
		}
		p.mu.Unlock()
	}()

	start := time.Now()
	if err := p.handler(p.ctx, batch); err != nil {
		// Batch lỗi bị bỏ: ledger thanh toán vẫn là nguồn sự thật,
		// handler đã enqueue campaign liên quan vào hàng reconcile.
		logger.GetErrorLogger().WithError(err).Errorf("Bỏ batch thống kê %d event", len(batch))
		return
	}
	logger.GetStatsLogger().Debugf("Đã xử lý batch %d event trong %s", len(batch), time.Since(start))
}

// Stop flush phần backlog còn lại và chờ batch đang chạy kết thúc.
func (p *BatchProcessor) Stop() {
	p.mu.Lock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	for len(p.backlog) > 0 || p.inFlight {
		if !p.inFlight {
			p.flushLocked()
		}
		p.mu.Unlock()
		p.wg.Wait()
		p.mu.Lock()
	}
	p.mu.Unlock()
	p.cancel()
}

// BacklogSize trả về số event đang chờ (phục vụ test và diagnostics).
func (p *BatchProcessor) BacklogSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.backlog)
}
