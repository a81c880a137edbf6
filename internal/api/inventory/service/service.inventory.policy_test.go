package invsvc

import (
	"testing"
)

var testPolicy = PolicyConfig{
	SingleSegmentThreshold: 100_000,
	DefaultShardSize:       1_000_000,
	ShardByteCeiling:       12 * 1024 * 1024,
}

func TestResolveLayout_SmallCampaignSingle(t *testing.T) {
	// Kịch bản campaign nhỏ: 1000 số nằm gọn trong một document
	layout := ResolveLayout(1000, testPolicy)
	if layout.Mode != LayoutSingle {
		t.Fatalf("1000 số phải dùng single index, nhận mode=%s", layout.Mode)
	}
	if layout.ShardCount != 1 {
		t.Errorf("single index có shardCount=1, nhận %d", layout.ShardCount)
	}
}

func TestResolveLayout_ThresholdBoundary(t *testing.T) {
	if layout := ResolveLayout(100_000, testPolicy); layout.Mode != LayoutSingle {
		t.Errorf("đúng ngưỡng 100_000 vẫn là single, nhận %s", layout.Mode)
	}
	if layout := ResolveLayout(100_001, testPolicy); layout.Mode != LayoutSharded {
		t.Errorf("vượt ngưỡng một đơn vị phải chuyển sharded, nhận %s", layout.Mode)
	}
}

func TestResolveLayout_DefaultShardSize(t *testing.T) {
	// 5 triệu số: bitmap tổng ~625KB dưới trần, dùng shard size mặc định
	layout := ResolveLayout(5_000_000, testPolicy)
	if layout.Mode != LayoutSharded {
		t.Fatalf("5M số phải sharded, nhận %s", layout.Mode)
	}
	if layout.ShardSize != 1_000_000 {
		t.Errorf("bitmap dưới trần dùng shard size mặc định 1M, nhận %d", layout.ShardSize)
	}
	if layout.ShardCount != 5 {
		t.Errorf("5M / 1M = 5 shard, nhận %d", layout.ShardCount)
	}
}

func TestResolveLayout_LargeCampaignDerivedShardSize(t *testing.T) {
	// Kịch bản campaign lớn: 25 triệu số. Bitmap tổng ~3.125MB vẫn dưới trần
	// 12MB nên vẫn dùng shard size mặc định.
	layout := ResolveLayout(25_000_000, testPolicy)
	if layout.Mode != LayoutSharded {
		t.Fatalf("25M số phải sharded, nhận %s", layout.Mode)
	}
	if layout.ShardSize != 1_000_000 {
		t.Errorf("bitmap 25M số (~3.1MB) dưới trần, shard size phải là 1M, nhận %d", layout.ShardSize)
	}
	if layout.ShardCount != 25 {
		t.Errorf("25M / 1M = 25 shard, nhận %d", layout.ShardCount)
	}
}

func TestResolveLayout_OverCeilingRoundsToMagnitude(t *testing.T) {
	// 200 triệu số: bitmap tổng 25MB vượt trần, shard size dẫn xuất từ trần
	// 12MB*8 = 100_663_296 bit, làm tròn xuống bậc thập phân = 100_000_000.
	layout := ResolveLayout(200_000_000, testPolicy)
	if layout.Mode != LayoutSharded {
		t.Fatalf("200M số phải sharded, nhận %s", layout.Mode)
	}
	if layout.ShardSize != 100_000_000 {
		t.Errorf("shard size dẫn xuất phải là 100M, nhận %d", layout.ShardSize)
	}
	if layout.ShardCount != 2 {
		t.Errorf("200M / 100M = 2 shard, nhận %d", layout.ShardCount)
	}

	// Footprint mỗi shard phải nằm dưới trần byte
	shardBytes := (layout.ShardSize + 7) / 8
	if shardBytes > testPolicy.ShardByteCeiling {
		t.Errorf("bitmap một shard %d bytes vượt trần %d", shardBytes, testPolicy.ShardByteCeiling)
	}
}

func TestShardRange_LastShardShort(t *testing.T) {
	// 2_500_000 số với shard size 1M: shard cuối chỉ còn 500_000
	start, end := ShardRange(0, 1_000_000, 2_500_000)
	if start != 0 || end != 1_000_000 {
		t.Errorf("shard 0 phải là [0, 1_000_000), nhận [%d, %d)", start, end)
	}
	start, end = ShardRange(2, 1_000_000, 2_500_000)
	if start != 2_000_000 || end != 2_500_000 {
		t.Errorf("shard cuối phải là [2_000_000, 2_500_000), nhận [%d, %d)", start, end)
	}
}

func TestShardIndexFor(t *testing.T) {
	cases := []struct {
		index, shardSize, want int64
	}{
		{0, 1_000_000, 0},
		{999_999, 1_000_000, 0},
		{1_000_000, 1_000_000, 1},
		{2_499_999, 1_000_000, 2},
	}
	for _, c := range cases {
		if got := ShardIndexFor(c.index, c.shardSize); got != c.want {
			t.Errorf("ShardIndexFor(%d, %d) = %d, cần %d", c.index, c.shardSize, got, c.want)
		}
	}
}

func TestRoundDownToMagnitude(t *testing.T) {
	cases := []struct{ in, want int64 }{
		{100_663_296, 100_000_000},
		{7_340_032, 7_000_000},
		{999, 900},
		{10, 10},
		{9, 9},
		{1_000_000, 1_000_000},
	}
	for _, c := range cases {
		if got := roundDownToMagnitude(c.in); got != c.want {
			t.Errorf("roundDownToMagnitude(%d) = %d, cần %d", c.in, got, c.want)
		}
	}
}

func TestResolveLayout_ShardsCoverTotalExactly(t *testing.T) {
	totals := []int64{100_001, 2_500_000, 25_000_000, 200_000_000}
	for _, total := range totals {
		layout := ResolveLayout(total, testPolicy)
		var covered int64
		for i := int64(0); i < layout.ShardCount; i++ {
			start, end := ShardRange(i, layout.ShardSize, total)
			if start >= end {
				t.Fatalf("total=%d: shard %d có khoảng rỗng [%d, %d)", total, i, start, end)
			}
			if start != covered {
				t.Fatalf("total=%d: shard %d bắt đầu tại %d, cần %d (phủ liên tục không chồng lấn)", total, i, start, covered)
			}
			covered = end
		}
		if covered != total {
			t.Errorf("total=%d: các shard phủ đến %d, thiếu phần đuôi", total, covered)
		}
	}
}
