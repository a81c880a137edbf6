// Package invsvc - engine phân bổ số vé: bit buffer, sharding policy,
// chọn số ngẫu nhiên và các thao tác reserve/release transactional.
package invsvc

import (
	"fmt"

	"github.com/Jose00521/Raffle-sub003/internal/common"
)

// Bảng tra cứu tính sẵn cho từng giá trị byte 0-255:
//   - bitCountTable[b]: số bit 1 trong b
//   - bitPositionsTable[b]: vị trí (0-7, LSB trước) các bit 1 trong b
//
// Tính một lần khi khởi động, bất biến sau đó.
var (
	bitCountTable     [256]int
	bitPositionsTable [256][]int
)

func init() {
	for b := 0; b < 256; b++ {
		positions := []int{}
		for bit := 0; bit < 8; bit++ {
			if b&(1<<bit) != 0 {
				positions = append(positions, bit)
			}
		}
		bitCountTable[b] = len(positions)
		bitPositionsTable[b] = positions
	}
}

// BitSegment là một bit buffer dung lượng cố định lưu trạng thái khả dụng:
// bit 1 = số còn trống, bit 0 = số đã giữ. Index bit là 0-based.
type BitSegment struct {
	buf      []byte
	capacity int64
}

// NewBitSegment tạo segment với capacity bit. allAvailable=true set tất cả
// bit trong [0, capacity) thành 1; các bit thừa ở byte cuối luôn là 0.
func NewBitSegment(capacity int64, allAvailable bool) *BitSegment {
	byteLen := (capacity + 7) / 8
	seg := &BitSegment{
		buf:      make([]byte, byteLen),
		capacity: capacity,
	}
	if allAvailable {
		for i := range seg.buf {
			seg.buf[i] = 0xFF
		}
		seg.maskTrailing()
	}
	return seg
}

// BitSegmentFromBytes bọc một buffer đã có (đọc từ storage) với capacity bit.
func BitSegmentFromBytes(buf []byte, capacity int64) (*BitSegment, error) {
	expected := (capacity + 7) / 8
	if int64(len(buf)) != expected {
		return nil, common.NewError(
			common.ErrCodeInventoryInvariant,
			fmt.Sprintf("bitmap dài %d bytes, cần %d bytes cho %d số", len(buf), expected, capacity),
			common.StatusConflict,
			nil,
		)
	}
	return &BitSegment{buf: buf, capacity: capacity}, nil
}

// maskTrailing xóa các bit thừa của byte cuối (ngoài capacity).
// Mask cho r bit hợp lệ cuối cùng là (1<<r)-1.
func (s *BitSegment) maskTrailing() {
	remainder := s.capacity % 8
	if remainder == 0 || len(s.buf) == 0 {
		return
	}
	s.buf[len(s.buf)-1] &= byte((1 << remainder) - 1)
}

// Capacity trả về số bit segment quản lý.
func (s *BitSegment) Capacity() int64 {
	return s.capacity
}

// Bytes trả về buffer bên dưới (để persist).
func (s *BitSegment) Bytes() []byte {
	return s.buf
}

// Test trả về true nếu bit index đang là 1 (số còn trống).
// Index ngoài [0, capacity) luôn trả về false.
func (s *BitSegment) Test(index int64) bool {
	if index < 0 || index >= s.capacity {
		return false
	}
	return s.buf[index/8]&(1<<(index%8)) != 0
}

// Set bật bit index (đánh dấu còn trống). Trả về true nếu bit đổi trạng thái.
func (s *BitSegment) Set(index int64) bool {
	if index < 0 || index >= s.capacity {
		return false
	}
	mask := byte(1 << (index % 8))
	if s.buf[index/8]&mask != 0 {
		return false
	}
	s.buf[index/8] |= mask
	return true
}

// Clear tắt bit index (đánh dấu đã giữ). Trả về true nếu bit đổi trạng thái.
func (s *BitSegment) Clear(index int64) bool {
	if index < 0 || index >= s.capacity {
		return false
	}
	mask := byte(1 << (index % 8))
	if s.buf[index/8]&mask == 0 {
		return false
	}
	s.buf[index/8] &^= mask
	return true
}

// CountAvailable đếm số bit 1 qua bảng tra cứu.
func (s *BitSegment) CountAvailable() int64 {
	var count int64
	for _, b := range s.buf {
		count += int64(bitCountTable[b])
	}
	return count
}

// ForEachAvailable duyệt các vị trí bit 1 theo thứ tự tăng dần qua bảng
// bitPositionsTable. fn trả về false để dừng sớm.
func (s *BitSegment) ForEachAvailable(fn func(index int64) bool) {
	for byteIdx, b := range s.buf {
		if b == 0 {
			continue
		}
		base := int64(byteIdx) * 8
		for _, bit := range bitPositionsTable[b] {
			if !fn(base + int64(bit)) {
				return
			}
		}
	}
}

// AvailablePositions trả về toàn bộ vị trí bit 1 (tăng dần).
func (s *BitSegment) AvailablePositions() []int64 {
	positions := make([]int64, 0, s.CountAvailable())
	s.ForEachAvailable(func(index int64) bool {
		positions = append(positions, index)
		return true
	})
	return positions
}

// ApplyClear tắt các bit trong indexes và trả về số bit thực sự đổi trạng
// thái. Bit đã tắt sẵn đóng góp 0 vào delta — thao tác idempotent.
func (s *BitSegment) ApplyClear(indexes []int64) int64 {
	var delta int64
	for _, idx := range indexes {
		if s.Clear(idx) {
			delta++
		}
	}
	return delta
}

// ApplySet bật các bit trong indexes và trả về số bit thực sự đổi trạng thái.
func (s *BitSegment) ApplySet(indexes []int64) int64 {
	var delta int64
	for _, idx := range indexes {
		if s.Set(idx) {
			delta++
		}
	}
	return delta
}
