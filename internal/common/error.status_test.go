package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestErrorIs_SentinelMatching(t *testing.T) {
	// Sentinel so khớp theo mã lỗi + message, không theo pointer
	err := NewError(ErrCodeDatabaseQuery, "Không tìm thấy dữ liệu", StatusNotFound, map[string]interface{}{"campaignId": "abc"})
	assert.True(t, errors.Is(err, ErrNotFound), "Lỗi cùng mã và message phải khớp sentinel dù details khác")

	wrapped := fmt.Errorf("load index: %w", ErrNotFound)
	assert.True(t, errors.Is(wrapped, ErrNotFound), "Sentinel bị wrap vẫn phải khớp qua errors.Is")

	other := NewError(ErrCodeDatabaseQuery, "Dữ liệu đã tồn tại", StatusConflict, nil)
	assert.False(t, errors.Is(other, ErrNotFound), "Khác message không được khớp sentinel")
	assert.False(t, errors.Is(errors.New("raw"), ErrNotFound), "Lỗi ngoài taxonomy không được khớp")
}

func TestConvertMongoError(t *testing.T) {
	transientCmd := mongo.CommandError{Code: 112, Message: "WriteConflict", Labels: []string{"TransientTransactionError"}}
	plainCmd := mongo.CommandError{Code: 2, Message: "BadValue"}
	dupWrite := mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000, Message: "E11000 duplicate key"}}}

	tests := []struct {
		name       string
		in         error
		wantCode   string
		wantStatus int
	}{
		{"không có document", mongo.ErrNoDocuments, ErrCodeDatabaseQuery.Code, StatusNotFound},
		{"không có document (wrapped)", fmt.Errorf("find: %w", mongo.ErrNoDocuments), ErrCodeDatabaseQuery.Code, StatusNotFound},
		{"trùng khóa", dupWrite, ErrCodeDatabaseQuery.Code, StatusConflict},
		{"transaction tạm thời", transientCmd, ErrCodeDatabaseTransient.Code, StatusServiceUnavailable},
		{"command error thường", plainCmd, ErrCodeDatabaseQuery.Code, StatusInternalServerError},
		{"lỗi lạ", errors.New("something broke"), ErrCodeDatabase.Code, StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			converted := ConvertMongoError(tt.in)
			var appErr *Error
			require.True(t, errors.As(converted, &appErr), "Kết quả convert phải thuộc taxonomy")
			assert.Equal(t, tt.wantCode, appErr.Code.Code)
			assert.Equal(t, tt.wantStatus, appErr.StatusCode)
		})
	}
}

func TestWithDetails_PreservesSentinelIdentity(t *testing.T) {
	detailed := WithDetails(ErrInsufficientAvailability, map[string]interface{}{"requested": 10, "available": 3})
	assert.True(t, errors.Is(detailed, ErrInsufficientAvailability), "Thêm details không được làm mất khớp sentinel")

	var appErr *Error
	require.True(t, errors.As(detailed, &appErr))
	assert.Equal(t, ErrInsufficientAvailability.StatusCode, appErr.StatusCode)
	assert.NotNil(t, appErr.Details, "Details phải được gắn vào bản sao")
	assert.Nil(t, ErrInsufficientAvailability.Details, "Sentinel gốc không được bị ghi đè details")

	raw := errors.New("not taxonomy")
	assert.Same(t, raw, WithDetails(raw, "x"), "Lỗi ngoài taxonomy phải đi qua nguyên vẹn")
}

func TestConvertMongoError_NetworkMapsToTransient(t *testing.T) {
	netErr := mongo.CommandError{Code: 6, Message: "HostUnreachable", Labels: []string{"NetworkError"}}
	converted := ConvertMongoError(netErr)
	assert.True(t, errors.Is(converted, ErrTransientIO), "Lỗi mạng phải khớp sentinel transient")

	var appErr *Error
	require.True(t, errors.As(converted, &appErr))
	assert.Equal(t, StatusServiceUnavailable, appErr.StatusCode)
	assert.NotNil(t, appErr.Details, "Lỗi gốc phải được giữ lại trong details")
}

func TestConvertMongoError_Passthrough(t *testing.T) {
	assert.Nil(t, ConvertMongoError(nil), "nil phải giữ nguyên nil")

	// Lỗi đã thuộc taxonomy không bị convert lại
	original := NewError(ErrCodeInventoryAvailability, "Không đủ số khả dụng", StatusUnprocessable, map[string]interface{}{"requested": 10})
	assert.Same(t, original, ConvertMongoError(original), "Lỗi taxonomy phải đi qua nguyên vẹn")
}
