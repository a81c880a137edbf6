// Package statssvc - pipeline thống kê: theo dõi change stream thanh toán,
// gom batch, cập nhật aggregate và đẩy sự kiện tới subscriber.
package statssvc

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/Jose00521/Raffle-sub003/internal/common"
)

// SessionPool giữ một số lượng cố định mongo.Session tái sử dụng cho các
// transaction cập nhật thống kê, tránh chi phí tạo session cho từng batch.
type SessionPool struct {
	client   *mongo.Client
	sessions chan mongo.Session
	size     int
}

// NewSessionPool tạo pool với size session mở sẵn.
func NewSessionPool(client *mongo.Client, size int) (*SessionPool, error) {
	if size <= 0 {
		return nil, common.ErrInvalidInput
	}

	pool := &SessionPool{
		client:   client,
		sessions: make(chan mongo.Session, size),
		size:     size,
	}
	for i := 0; i < size; i++ {
		session, err := client.StartSession()
		if err != nil {
			pool.Close(context.Background())
			return nil, common.ConvertMongoError(err)
		}
		pool.sessions <- session
	}
	return pool, nil
}

// Acquire lấy một session từ pool, chờ tới khi có hoặc ctx bị hủy.
// Session lấy ra PHẢI được trả lại bằng Release, kể cả khi transaction lỗi.
func (p *SessionPool) Acquire(ctx context.Context) (mongo.Session, error) {
	select {
	case session, ok := <-p.sessions:
		if !ok {
			return nil, common.ErrConnection
		}
		return session, nil
	case <-ctx.Done():
		return nil, common.NewError(
			common.ErrCodeDatabaseTransient,
			"Hết thời gian chờ session từ pool",
			common.StatusServiceUnavailable,
			ctx.Err(),
		)
	}
}

// Release trả session về pool. Pool đã đóng: session được kết thúc luôn.
func (p *SessionPool) Release(session mongo.Session) {
	if session == nil {
		return
	}
	defer func() {
		// Trả vào channel đã đóng: kết thúc session thay vì panic.
		if recover() != nil {
			session.EndSession(context.Background())
		}
	}()
	select {
	case p.sessions <- session:
	default:
		session.EndSession(context.Background())
	}
}

// WithTransaction mượn một session, chạy fn trong transaction rồi trả lại
// session, kể cả trên đường lỗi.
func (p *SessionPool) WithTransaction(ctx context.Context, fn func(sc mongo.SessionContext) (interface{}, error)) (interface{}, error) {
	session, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.Release(session)

	result, err := session.WithTransaction(ctx, fn)
	if err != nil {
		return nil, common.ConvertMongoError(err)
	}
	return result, nil
}

// Close kết thúc mọi session còn trong pool. Các session đang mượn được
// kết thúc khi Release sau đó.
func (p *SessionPool) Close(ctx context.Context) {
	close(p.sessions)
	for session := range p.sessions {
		session.EndSession(ctx)
	}
}
