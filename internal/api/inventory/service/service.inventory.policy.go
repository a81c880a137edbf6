package invsvc

// Chế độ biểu diễn index của một campaign.
const (
	LayoutSingle  = "single"  // Một document duy nhất
	LayoutSharded = "sharded" // Nhiều shard + metadata
)

// PolicyConfig là các ngưỡng của sharding policy, lấy từ config.
type PolicyConfig struct {
	SingleSegmentThreshold int64 // totalNumbers <= ngưỡng này dùng single index
	DefaultShardSize       int64 // Kích thước shard khi bitmap tổng còn nhỏ
	ShardByteCeiling       int64 // Trần byte an toàn cho một bitmap document
}

// ShardLayout là kết quả của policy: chế độ và kích thước shard.
type ShardLayout struct {
	Mode       string
	ShardSize  int64 // 0 ở chế độ single
	ShardCount int64 // 1 ở chế độ single
}

// ResolveLayout quyết định biểu diễn cho totalNumbers số:
//   - <= SingleSegmentThreshold: một segment duy nhất.
//   - Bitmap tổng (ceil(total/8) bytes) dưới trần: shard size mặc định.
//   - Trên trần: shard size lớn nhất có footprint dưới trần (ceiling*8 bit),
//     làm tròn xuống bậc thập phân để ranh giới shard dễ dự đoán.
func ResolveLayout(totalNumbers int64, cfg PolicyConfig) ShardLayout {
	if totalNumbers <= cfg.SingleSegmentThreshold {
		return ShardLayout{Mode: LayoutSingle, ShardCount: 1}
	}

	shardSize := cfg.DefaultShardSize
	totalBytes := (totalNumbers + 7) / 8
	maxBits := cfg.ShardByteCeiling * 8

	if totalBytes > cfg.ShardByteCeiling || shardSize > maxBits {
		shardSize = roundDownToMagnitude(maxBits)
		if shardSize < cfg.DefaultShardSize {
			shardSize = cfg.DefaultShardSize
		}
		if shardSize > maxBits {
			shardSize = maxBits
		}
	}

	shardCount := (totalNumbers + shardSize - 1) / shardSize
	return ShardLayout{Mode: LayoutSharded, ShardSize: shardSize, ShardCount: shardCount}
}

// ShardRange trả về khoảng [start, end) 0-based của shard shardIndex.
// Shard cuối có thể ngắn hơn shardSize khi totalNumbers không chia hết.
func ShardRange(shardIndex, shardSize, totalNumbers int64) (start, end int64) {
	start = shardIndex * shardSize
	end = start + shardSize
	if end > totalNumbers {
		end = totalNumbers
	}
	return start, end
}

// ShardIndexFor trả về shard chứa index 0-based.
func ShardIndexFor(index, shardSize int64) int64 {
	return index / shardSize
}

// roundDownToMagnitude làm tròn n xuống bội của lũy thừa 10 lớn nhất <= n.
// Ví dụ: 100_663_296 -> 100_000_000; 7_340_032 -> 7_000_000.
func roundDownToMagnitude(n int64) int64 {
	if n < 10 {
		return n
	}
	magnitude := int64(1)
	for magnitude*10 <= n {
		magnitude *= 10
	}
	return (n / magnitude) * magnitude
}
