package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env"
	"github.com/joho/godotenv"
)

// Configuration chứa thông tin tĩnh cần thiết để chạy engine:
// kết nối cơ sở dữ liệu, các ngưỡng của sharding policy và
// các tham số của pipeline thống kê.
type Configuration struct {
	Address               string `env:"ADDRESS" envDefault:":8080"`      // Địa chỉ server
	JwtSecret             string `env:"JWT_SECRET,required"`             // Bí mật JWT (xác thực kênh thống kê)
	MongoDB_ConnectionURI string `env:"MONGODB_CONNECTION_URI,required"` // URL kết nối cơ sở dữ liệu
	MongoDB_DBName        string `env:"MONGODB_DBNAME,required"`         // Tên cơ sở dữ liệu

	CORS_Origins     string `env:"CORS_ORIGINS" envDefault:"*"`      // Origins được phép (phân cách bởi dấu phẩy)
	RateLimit_Max    int    `env:"RATE_LIMIT_MAX" envDefault:"100"`  // Số request tối đa trong window (0 = disable)
	RateLimit_Window int    `env:"RATE_LIMIT_WINDOW" envDefault:"60"` // Thời gian window (giây)

	// Sharding policy cho index số.
	// Một campaign có totalNumbers <= SingleSegmentThreshold dùng một document duy nhất.
	// ShardByteCeiling là trần an toàn cho bitmap trong một document (dưới giới hạn 16MB của MongoDB).
	Inventory_SingleSegmentThreshold int64 `env:"INVENTORY_SINGLE_SEGMENT_THRESHOLD" envDefault:"100000"` // Ngưỡng số dùng single index
	Inventory_DefaultShardSize       int64 `env:"INVENTORY_DEFAULT_SHARD_SIZE" envDefault:"1000000"`      // Kích thước shard mặc định
	Inventory_ShardByteCeiling       int64 `env:"INVENTORY_SHARD_BYTE_CEILING" envDefault:"12582912"`     // Trần byte cho một bitmap (12MB)
	Inventory_ShardFetchChunk        int   `env:"INVENTORY_SHARD_FETCH_CHUNK" envDefault:"20"`            // Số shard tối đa mỗi lượt fetch khi check batch

	// Pipeline thống kê.
	Stats_BatchSize       int `env:"STATS_BATCH_SIZE" envDefault:"200"`        // Số event tối đa mỗi batch
	Stats_DebounceMs      int `env:"STATS_DEBOUNCE_MS" envDefault:"500"`       // Debounce flush (ms)
	Stats_BacklogWarnSize int `env:"STATS_BACKLOG_WARN_SIZE" envDefault:"2000"` // Ngưỡng cảnh báo backlog
	Stats_SessionPoolSize int `env:"STATS_SESSION_POOL_SIZE" envDefault:"10"`  // Số session transactional trong pool
	Stats_MonitorCooldown int `env:"STATS_MONITOR_COOLDOWN_SEC" envDefault:"5"` // Cooldown trước khi resubscribe change stream (giây)
	Stats_TopBuyersLimit  int `env:"STATS_TOP_BUYERS_LIMIT" envDefault:"10"`   // Kích thước danh sách top buyers

	// Workers.
	Reservation_TTLMinutes    int `env:"RESERVATION_TTL_MINUTES" envDefault:"15"`  // Thời gian giữ số khi reserve
	Worker_ExpiryIntervalSec  int `env:"WORKER_EXPIRY_INTERVAL_SEC" envDefault:"60"`  // Chu kỳ quét reservation hết hạn
	Worker_ReconcileIntervalSec int `env:"WORKER_RECONCILE_INTERVAL_SEC" envDefault:"300"` // Chu kỳ recompute thống kê từ ledger
}

// getEnvPath trả về đường dẫn đến file env dựa trên môi trường (GO_ENV).
func getEnvPath() string {
	environment := os.Getenv("GO_ENV")
	if environment == "" {
		environment = "development"
	}

	currentDir, err := os.Getwd()
	if err != nil {
		fmt.Printf("Không thể lấy được thư mục hiện tại: %v\n", err)
		return ""
	}

	// Đi lên từ working directory tìm thư mục config/env
	for {
		envDir := filepath.Join(currentDir, "config", "env")
		if _, err := os.Stat(envDir); err == nil {
			return filepath.Join(envDir, fmt.Sprintf("%s.env", environment))
		}
		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return ""
		}
		currentDir = parentDir
	}
}

// NewConfig đọc cấu hình từ file env (nếu có) rồi parse environment variables.
func NewConfig() *Configuration {
	envPath := getEnvPath()
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil {
			// Dùng fmt vì logger có thể chưa được init ở đây
			fmt.Printf("Không thể load file env tại %s: %v\n", envPath, err)
		}
	}

	cfg := Configuration{}
	if err := env.Parse(&cfg); err != nil {
		fmt.Printf("Lỗi khi parse config: %+v\n", err)
		return nil
	}

	return &cfg
}
