// Package invsvc - Test bit buffer: mask đuôi, đếm, idempotency của mark.
package invsvc

import (
	"testing"
)

func TestNewBitSegment_AllAvailable(t *testing.T) {
	seg := NewBitSegment(1000, true)
	if got := seg.CountAvailable(); got != 1000 {
		t.Fatalf("segment 1000 số khởi tạo trống phải đếm được 1000, nhận %d", got)
	}
	if !seg.Test(0) || !seg.Test(999) {
		t.Error("bit đầu và bit cuối phải là 1 sau khi khởi tạo")
	}
}

func TestNewBitSegment_TrailingBitsMasked(t *testing.T) {
	// 1003 không chia hết cho 8: byte cuối có 3 bit hợp lệ, 5 bit thừa phải là 0
	seg := NewBitSegment(1003, true)
	if got := seg.CountAvailable(); got != 1003 {
		t.Fatalf("bit thừa ở byte cuối bị tính vào availableCount: đếm được %d, cần 1003", got)
	}
	if seg.Test(1003) || seg.Test(1004) {
		t.Error("index ngoài capacity không bao giờ được báo là trống")
	}

	buf := seg.Bytes()
	last := buf[len(buf)-1]
	if last != 0b00000111 {
		t.Errorf("byte cuối phải chỉ giữ 3 bit thấp (0x07), nhận %#08b", last)
	}
}

func TestBitSegment_SetClearTest(t *testing.T) {
	seg := NewBitSegment(64, true)

	if changed := seg.Clear(10); !changed {
		t.Error("Clear bit đang 1 phải trả về changed=true")
	}
	if seg.Test(10) {
		t.Error("bit 10 vẫn trống sau khi Clear")
	}
	if changed := seg.Clear(10); changed {
		t.Error("Clear bit đã 0 phải trả về changed=false")
	}

	if changed := seg.Set(10); !changed {
		t.Error("Set bit đang 0 phải trả về changed=true")
	}
	if !seg.Test(10) {
		t.Error("bit 10 chưa trống lại sau khi Set")
	}
	if changed := seg.Set(10); changed {
		t.Error("Set bit đã 1 phải trả về changed=false")
	}
}

func TestBitSegment_OutOfRangeSafe(t *testing.T) {
	seg := NewBitSegment(16, true)
	if seg.Test(-1) || seg.Test(16) {
		t.Error("index ngoài phạm vi phải trả về false")
	}
	if seg.Set(-1) || seg.Set(16) || seg.Clear(-1) || seg.Clear(16) {
		t.Error("Set/Clear ngoài phạm vi phải là no-op (changed=false)")
	}
	if got := seg.CountAvailable(); got != 16 {
		t.Errorf("thao tác ngoài phạm vi làm đổi count: %d", got)
	}
}

func TestBitSegment_ApplyClearDelta_Idempotent(t *testing.T) {
	seg := NewBitSegment(100, true)

	delta := seg.ApplyClear([]int64{1, 5, 9})
	if delta != 3 {
		t.Fatalf("ApplyClear lần đầu 3 bit phải có delta=3, nhận %d", delta)
	}

	// Lặp lại cùng indexes: không bit nào đổi trạng thái nữa
	delta = seg.ApplyClear([]int64{1, 5, 9})
	if delta != 0 {
		t.Errorf("ApplyClear lặp lại phải có delta=0, nhận %d", delta)
	}

	// Một phần đã tắt, một phần còn trống
	delta = seg.ApplyClear([]int64{5, 9, 20})
	if delta != 1 {
		t.Errorf("chỉ bit 20 đổi trạng thái, delta phải là 1, nhận %d", delta)
	}
	if got := seg.CountAvailable(); got != 96 {
		t.Errorf("sau khi tắt 4 bit phải còn 96, nhận %d", got)
	}
}

func TestBitSegment_RoundTripRestoresState(t *testing.T) {
	seg := NewBitSegment(250, true)
	indexes := []int64{0, 7, 8, 100, 249}

	if delta := seg.ApplyClear(indexes); delta != int64(len(indexes)) {
		t.Fatalf("mark delta = %d, cần %d", delta, len(indexes))
	}
	if delta := seg.ApplySet(indexes); delta != int64(len(indexes)) {
		t.Fatalf("unmark delta = %d, cần %d", delta, len(indexes))
	}

	if got := seg.CountAvailable(); got != 250 {
		t.Errorf("round-trip mark/unmark phải khôi phục đúng trạng thái: count=%d", got)
	}
	for _, idx := range indexes {
		if !seg.Test(idx) {
			t.Errorf("bit %d không trống lại sau round-trip", idx)
		}
	}
}

func TestBitSegment_AvailablePositions(t *testing.T) {
	seg := NewBitSegment(20, false)
	seg.Set(3)
	seg.Set(8)
	seg.Set(19)

	positions := seg.AvailablePositions()
	expected := []int64{3, 8, 19}
	if len(positions) != len(expected) {
		t.Fatalf("AvailablePositions trả về %d vị trí, cần %d", len(positions), len(expected))
	}
	for i, want := range expected {
		if positions[i] != want {
			t.Errorf("positions[%d] = %d, cần %d (thứ tự phải tăng dần)", i, positions[i], want)
		}
	}
}

func TestBitSegment_ForEachAvailableEarlyStop(t *testing.T) {
	seg := NewBitSegment(64, true)
	var visited int
	seg.ForEachAvailable(func(index int64) bool {
		visited++
		return visited < 5
	})
	if visited != 5 {
		t.Errorf("ForEachAvailable phải dừng khi fn trả về false: visited=%d", visited)
	}
}

func TestBitSegmentFromBytes_LengthValidation(t *testing.T) {
	if _, err := BitSegmentFromBytes(make([]byte, 10), 100); err == nil {
		t.Error("buffer 10 bytes không thể chứa 100 bit với 13 bytes cần thiết, phải trả về lỗi")
	}
	seg, err := BitSegmentFromBytes(make([]byte, 13), 100)
	if err != nil {
		t.Fatalf("buffer đúng kích thước bị từ chối: %v", err)
	}
	if got := seg.CountAvailable(); got != 0 {
		t.Errorf("buffer rỗng phải đếm được 0, nhận %d", got)
	}
}

func TestBitCountTable(t *testing.T) {
	cases := map[byte]int{0x00: 0, 0xFF: 8, 0x01: 1, 0x80: 1, 0xAA: 4, 0x07: 3}
	for b, want := range cases {
		if got := bitCountTable[b]; got != want {
			t.Errorf("bitCountTable[%#02x] = %d, cần %d", b, got, want)
		}
	}
	for b := 0; b < 256; b++ {
		if len(bitPositionsTable[b]) != bitCountTable[b] {
			t.Fatalf("bitPositionsTable[%d] có %d vị trí nhưng bitCountTable báo %d",
				b, len(bitPositionsTable[b]), bitCountTable[b])
		}
	}
}
