package invsvc

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/Jose00521/Raffle-sub003/internal/common"
)

// rng dùng chung cho mọi lựa chọn ngẫu nhiên. Chỉ cần độ đều thống kê,
// không cần độ mạnh mật mã.
var (
	rng   = rand.New(rand.NewSource(time.Now().UnixNano()))
	rngMu sync.Mutex
)

func randIntn(n int) int {
	rngMu.Lock()
	defer rngMu.Unlock()
	return rng.Intn(n)
}

func randInt63n(n int64) int64 {
	rngMu.Lock()
	defer rngMu.Unlock()
	return rng.Int63n(n)
}

// Trên ngưỡng này, chọn k phần tử từ một segment dùng reservoir sampling
// (một lượt duyệt, O(k) bộ nhớ) thay vì materialize toàn bộ vị trí trống.
const reservoirMinAvailable = 4096

// fisherYatesShuffle xáo trộn slice tại chỗ.
func fisherYatesShuffle(numbers []int64) {
	for i := len(numbers) - 1; i > 0; i-- {
		j := randIntn(i + 1)
		numbers[i], numbers[j] = numbers[j], numbers[i]
	}
}

// sampleSegment chọn k vị trí bit 1 phân bố đều từ segment.
// availableCount là số bit 1 đã biết của segment; caller đảm bảo k <= availableCount.
// Bitmap có ít bit 1 hơn availableCount đã lưu (trạng thái lệch):
// ErrInvariantViolation kèm số lượng thực tế.
//
// Tập trống lớn so với yêu cầu: reservoir sampling một lượt duyệt.
// Tập nhỏ/dày: gom toàn bộ vị trí rồi Fisher–Yates, lấy k phần tử đầu.
func sampleSegment(seg *BitSegment, k int, availableCount int64) ([]int64, error) {
	if k <= 0 {
		return []int64{}, nil
	}

	if availableCount >= reservoirMinAvailable && int64(k) <= availableCount/4 {
		sampled := reservoirSample(seg, k)
		if len(sampled) < k {
			return nil, segmentDriftError(k, len(sampled))
		}
		return sampled, nil
	}

	positions := seg.AvailablePositions()
	if len(positions) < k {
		return nil, segmentDriftError(k, len(positions))
	}
	fisherYatesShuffle(positions)
	return positions[:k], nil
}

// segmentDriftError báo availableCount đã lưu cao hơn số bit 1 thực tế trong
// bitmap; Diagnostics sẽ chỉ ra segment lệch.
func segmentDriftError(requested, actual int) error {
	return common.WithDetails(common.ErrInvariantViolation, map[string]interface{}{
		"requested": requested,
		"actual":    actual,
	})
}

// reservoirSample chọn k vị trí bit 1 bằng reservoir sampling (thuật toán R):
// k vị trí đầu vào reservoir, vị trí thứ i (i > k) thay một ô ngẫu nhiên với
// xác suất k/i.
func reservoirSample(seg *BitSegment, k int) []int64 {
	reservoir := make([]int64, 0, k)
	var seen int64

	seg.ForEachAvailable(func(index int64) bool {
		seen++
		if len(reservoir) < k {
			reservoir = append(reservoir, index)
			return true
		}
		j := randInt63n(seen)
		if j < int64(k) {
			reservoir[j] = index
		}
		return true
	})

	return reservoir
}

// shardQuota là số lượng cần lấy từ một shard trong lựa chọn sharded.
type shardQuota struct {
	ShardIndex int64
	Count      int
}

// distributeProportionally chia quantity cho các shard theo tỷ lệ
// availableCount của từng shard (availability density). Khi quantity đủ lớn,
// mỗi shard còn số trống nhận tối thiểu 1 để không shard nào bị bỏ quên.
// availableByShard: shardIndex -> availableCount (>0 mới được xét).
// Caller đảm bảo quantity <= tổng availableCount.
func distributeProportionally(availableByShard map[int64]int64, quantity int) []shardQuota {
	if quantity <= 0 {
		return []shardQuota{}
	}

	// Thứ tự shard ổn định để phần dư được gán deterministic theo shard,
	// còn bias thứ tự bị loại ở bước shuffle cuối.
	indexes := make([]int64, 0, len(availableByShard))
	var totalAvailable int64
	for shardIndex, available := range availableByShard {
		if available > 0 {
			indexes = append(indexes, shardIndex)
			totalAvailable += available
		}
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })

	quotas := make(map[int64]int, len(indexes))
	assigned := 0

	// Vòng 1: phần nguyên theo tỷ lệ, kèm tối thiểu 1 khi còn chỗ trong quantity.
	guaranteeMin := quantity >= len(indexes)
	for _, shardIndex := range indexes {
		available := availableByShard[shardIndex]
		share := int(int64(quantity) * available / totalAvailable)
		if share > int(available) {
			share = int(available)
		}
		if guaranteeMin && share == 0 {
			share = 1
		}
		quotas[shardIndex] = share
		assigned += share
	}

	// Vòng 2: phân phối phần dư (hoặc thu hồi phần thừa do tối thiểu 1)
	// lần lượt qua các shard còn/không còn dư địa.
	for assigned < quantity {
		progressed := false
		for _, shardIndex := range indexes {
			if assigned >= quantity {
				break
			}
			if int64(quotas[shardIndex]) < availableByShard[shardIndex] {
				quotas[shardIndex]++
				assigned++
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}
	for assigned > quantity {
		for _, shardIndex := range indexes {
			if assigned <= quantity {
				break
			}
			if quotas[shardIndex] > 0 {
				quotas[shardIndex]--
				assigned--
			}
		}
	}

	result := make([]shardQuota, 0, len(indexes))
	for _, shardIndex := range indexes {
		if quotas[shardIndex] > 0 {
			result = append(result, shardQuota{ShardIndex: shardIndex, Count: quotas[shardIndex]})
		}
	}

	// Xáo trộn thứ tự xử lý shard để không ưu tiên hệ thống shard thấp.
	for i := len(result) - 1; i > 0; i-- {
		j := randIntn(i + 1)
		result[i], result[j] = result[j], result[i]
	}
	return result
}
