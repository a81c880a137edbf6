package invsvc

import (
	"errors"
	"testing"

	"github.com/Jose00521/Raffle-sub003/internal/common"
)

func TestFisherYatesShuffle_PreservesElements(t *testing.T) {
	numbers := make([]int64, 100)
	for i := range numbers {
		numbers[i] = int64(i)
	}

	fisherYatesShuffle(numbers)

	seen := make(map[int64]bool, len(numbers))
	for _, n := range numbers {
		if seen[n] {
			t.Fatalf("shuffle tạo ra phần tử trùng lặp: %d", n)
		}
		seen[n] = true
	}
	if len(seen) != 100 {
		t.Errorf("shuffle làm mất phần tử: còn %d/100", len(seen))
	}
}

func TestSampleSegment_DistinctAndAvailable(t *testing.T) {
	seg := NewBitSegment(1000, true)
	seg.ApplyClear([]int64{10, 20, 30}) // 997 còn trống

	selected, err := sampleSegment(seg, 50, 997)
	if err != nil {
		t.Fatalf("lỗi không mong đợi: %v", err)
	}
	if len(selected) != 50 {
		t.Fatalf("cần 50 index, nhận %d", len(selected))
	}

	seen := make(map[int64]bool)
	for _, idx := range selected {
		if seen[idx] {
			t.Fatalf("index %d bị chọn hai lần", idx)
		}
		seen[idx] = true
		if !seg.Test(idx) {
			t.Fatalf("index %d được chọn nhưng không còn trống", idx)
		}
	}
}

func TestSampleSegment_TakesAll(t *testing.T) {
	seg := NewBitSegment(64, false)
	for _, idx := range []int64{1, 3, 5, 7} {
		seg.Set(idx)
	}

	selected, err := sampleSegment(seg, 4, 4)
	if err != nil {
		t.Fatalf("lỗi không mong đợi: %v", err)
	}
	if len(selected) != 4 {
		t.Fatalf("chọn toàn bộ 4 số trống phải trả về 4, nhận %d", len(selected))
	}
	seen := make(map[int64]bool)
	for _, idx := range selected {
		seen[idx] = true
	}
	for _, want := range []int64{1, 3, 5, 7} {
		if !seen[want] {
			t.Errorf("thiếu index %d khi chọn toàn bộ", want)
		}
	}
}

func TestSampleSegment_StoredCountHigherThanBitmap(t *testing.T) {
	// availableCount đã lưu nói 10 nhưng bitmap chỉ còn 3 bit 1: phải trả
	// ErrInvariantViolation chứ không panic hay trả thiếu phần tử.
	seg := NewBitSegment(64, false)
	for _, idx := range []int64{2, 9, 17} {
		seg.Set(idx)
	}

	_, err := sampleSegment(seg, 5, 10)
	if !errors.Is(err, common.ErrInvariantViolation) {
		t.Fatalf("trạng thái lệch phải trả ErrInvariantViolation, nhận %v", err)
	}

	// Đường reservoir cũng phải phát hiện lệch thay vì trả thiếu.
	sparse := NewBitSegment(100_000, false)
	for idx := int64(0); idx < 3000; idx++ {
		sparse.Set(idx)
	}
	_, err = sampleSegment(sparse, 4000, 20_000)
	if !errors.Is(err, common.ErrInvariantViolation) {
		t.Fatalf("reservoir với bitmap thiếu bit phải trả ErrInvariantViolation, nhận %v", err)
	}
}

func TestReservoirSample_CountAndRange(t *testing.T) {
	seg := NewBitSegment(10_000, true)

	selected := reservoirSample(seg, 100)
	if len(selected) != 100 {
		t.Fatalf("reservoir phải trả về đúng 100, nhận %d", len(selected))
	}
	seen := make(map[int64]bool)
	for _, idx := range selected {
		if idx < 0 || idx >= 10_000 {
			t.Fatalf("index %d ngoài phạm vi", idx)
		}
		if seen[idx] {
			t.Fatalf("index %d trùng lặp trong reservoir", idx)
		}
		seen[idx] = true
	}
}

func TestReservoirSample_LooseUniformity(t *testing.T) {
	// Chọn 1 từ 1000 nhiều lần: nửa đầu phải được chọn xấp xỉ một nửa.
	// Ngưỡng rất lỏng để test không flaky.
	seg := NewBitSegment(1000, true)
	const rounds = 2000

	firstHalf := 0
	for i := 0; i < rounds; i++ {
		selected := reservoirSample(seg, 1)
		if selected[0] < 500 {
			firstHalf++
		}
	}

	if firstHalf < rounds/4 || firstHalf > rounds*3/4 {
		t.Errorf("phân bố lệch nặng: nửa đầu được chọn %d/%d lần", firstHalf, rounds)
	}
}

func TestDistributeProportionally_SumEqualsQuantity(t *testing.T) {
	available := map[int64]int64{0: 1000, 1: 3000, 2: 6000}

	quotas := distributeProportionally(available, 500)
	var sum int
	for _, q := range quotas {
		sum += q.Count
		if int64(q.Count) > available[q.ShardIndex] {
			t.Errorf("shard %d nhận quota %d vượt availableCount %d", q.ShardIndex, q.Count, available[q.ShardIndex])
		}
	}
	if sum != 500 {
		t.Errorf("tổng quota phải bằng 500, nhận %d", sum)
	}
}

func TestDistributeProportionally_Proportional(t *testing.T) {
	// Shard 2 có gấp 6 lần shard 0: quota của nó phải lớn hơn rõ rệt
	available := map[int64]int64{0: 1000, 1: 3000, 2: 6000}
	quotas := distributeProportionally(available, 1000)

	byShard := make(map[int64]int)
	for _, q := range quotas {
		byShard[q.ShardIndex] = q.Count
	}
	if byShard[2] <= byShard[0] {
		t.Errorf("shard nhiều chỗ trống hơn phải nhận quota lớn hơn: shard0=%d shard2=%d", byShard[0], byShard[2])
	}
	// Tỷ lệ 10%/30%/60% với sai số do phần nguyên
	if byShard[2] < 550 || byShard[2] > 650 {
		t.Errorf("shard 2 (60%% chỗ trống) phải nhận ~600, nhận %d", byShard[2])
	}
}

func TestDistributeProportionally_MinOnePerShardWhenRoom(t *testing.T) {
	// 5 shard còn chỗ, xin 10: mỗi shard phải có ít nhất 1 dù shard 4 chỉ
	// chiếm phần rất nhỏ
	available := map[int64]int64{0: 10_000, 1: 10_000, 2: 10_000, 3: 10_000, 4: 2}
	quotas := distributeProportionally(available, 10)

	byShard := make(map[int64]int)
	var sum int
	for _, q := range quotas {
		byShard[q.ShardIndex] = q.Count
		sum += q.Count
	}
	if sum != 10 {
		t.Fatalf("tổng quota phải bằng 10, nhận %d", sum)
	}
	for shardIndex := int64(0); shardIndex < 5; shardIndex++ {
		if byShard[shardIndex] < 1 {
			t.Errorf("shard %d còn chỗ trống nhưng không nhận quota nào", shardIndex)
		}
	}
}

func TestDistributeProportionally_FewerThanShards(t *testing.T) {
	// Xin ít hơn số shard: không áp tối thiểu 1, tổng vẫn phải đúng
	available := map[int64]int64{0: 100, 1: 100, 2: 100, 3: 100, 4: 100}
	quotas := distributeProportionally(available, 3)

	var sum int
	for _, q := range quotas {
		sum += q.Count
	}
	if sum != 3 {
		t.Errorf("tổng quota phải bằng 3, nhận %d", sum)
	}
}

func TestDistributeProportionally_SkipsEmptyShards(t *testing.T) {
	available := map[int64]int64{0: 0, 1: 500, 2: 0, 3: 500}
	quotas := distributeProportionally(available, 100)

	var sum int
	for _, q := range quotas {
		if q.ShardIndex == 0 || q.ShardIndex == 2 {
			t.Errorf("shard %d hết chỗ nhưng vẫn nhận quota %d", q.ShardIndex, q.Count)
		}
		sum += q.Count
	}
	if sum != 100 {
		t.Errorf("tổng quota phải bằng 100, nhận %d", sum)
	}
}

func TestDistributeProportionally_ZeroQuantity(t *testing.T) {
	quotas := distributeProportionally(map[int64]int64{0: 100}, 0)
	if len(quotas) != 0 {
		t.Errorf("quantity=0 phải trả về quota rỗng, nhận %d phần tử", len(quotas))
	}
}
