package invsvc

import (
	"testing"
)

func TestNumberConversion_OneBasedExternal(t *testing.T) {
	// Người dùng thấy số 1..N, nội bộ lưu index 0..N-1
	numbers := []int64{1, 2, 100, 1_000_000}
	indexes := toInternal(numbers)

	expected := []int64{0, 1, 99, 999_999}
	for i, want := range expected {
		if indexes[i] != want {
			t.Errorf("toInternal(%d) = %d, cần %d", numbers[i], indexes[i], want)
		}
	}

	back := toExternal(indexes)
	for i, want := range numbers {
		if back[i] != want {
			t.Errorf("round-trip số %d thành %d", want, back[i])
		}
	}
}

func TestFinishDiagnostics_DerivedFields(t *testing.T) {
	d := finishDiagnostics(&IndexDiagnostics{
		TotalNumbers:   1000,
		AvailableCount: 250,
	})

	if d.TakenCount != 750 {
		t.Errorf("takenCount = total - available: cần 750, nhận %d", d.TakenCount)
	}
	if d.PercentAvailable != 25.0 || d.PercentTaken != 75.0 {
		t.Errorf("Tỷ lệ phải là 25%%/75%%, nhận %v/%v", d.PercentAvailable, d.PercentTaken)
	}

	// Total 0 không được chia cho 0
	empty := finishDiagnostics(&IndexDiagnostics{})
	if empty.PercentAvailable != 0 || empty.PercentTaken != 0 || empty.TakenCount != 0 {
		t.Errorf("Diagnostics rỗng phải toàn 0, nhận %+v", empty)
	}
}

func TestGroupByShard_LocalCoordinates(t *testing.T) {
	// Index toàn cục đổi sang tọa độ cục bộ trong shard chứa nó
	groups := groupByShard([]int64{0, 999_999, 1_000_000, 2_500_000}, 1_000_000)

	if len(groups) != 3 {
		t.Fatalf("4 index trải trên 3 shard, nhận %d nhóm", len(groups))
	}
	if got := groups[0]; len(got) != 2 || got[0] != 0 || got[1] != 999_999 {
		t.Errorf("shard 0 phải chứa [0, 999999] cục bộ, nhận %v", got)
	}
	if got := groups[1]; len(got) != 1 || got[0] != 0 {
		t.Errorf("index 1_000_000 là vị trí 0 của shard 1, nhận %v", got)
	}
	if got := groups[2]; len(got) != 1 || got[0] != 500_000 {
		t.Errorf("index 2_500_000 là vị trí 500_000 của shard 2, nhận %v", got)
	}
}
