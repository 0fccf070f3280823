package models

// Config 结构体定义了 watchdash 的所有配置参数
type Config struct {
	Params    StrategyParams  `json:"params" yaml:"params"`
	Data      DataConfig      `json:"data" yaml:"data"`
	Watchlist WatchlistConfig `json:"watchlist" yaml:"watchlist"`
	Store     StoreConfig     `json:"store" yaml:"store"`
	Notify    NotifyConfig    `json:"notify" yaml:"notify"`
	Server    ServerConfig    `json:"server" yaml:"server"`
	Timezone  string          `json:"timezone" yaml:"timezone"` // 入场/清仓日期使用的时区, 默认 Asia/Seoul
	LogConfig LogConfig       `json:"log" yaml:"log"`
}

// StrategyParams 策略参数 (指标窗口与三个触发条件的阈值)
type StrategyParams struct {
	LookbackBars int     `json:"lookback_bars" yaml:"lookback_bars"` // 最近高点的滚动窗口长度
	DDEntryPct   float64 `json:"dd_entry_pct" yaml:"dd_entry_pct"`   // 入场所需的最小回撤百分比
	RSILen       int     `json:"rsi_len" yaml:"rsi_len"`             // RSI 周期
	RSIEntryMax  float64 `json:"rsi_entry_max" yaml:"rsi_entry_max"` // 入场要求 RSI 低于该值
	TPMin        float64 `json:"tp_min" yaml:"tp_min"`               // 止盈区间下限 (%)
	TPMax        float64 `json:"tp_max" yaml:"tp_max"`               // 止盈区间上限 (%)
	TrailDrop    float64 `json:"trail_drop" yaml:"trail_drop"`       // 移动止损回落百分比
}

// DataConfig 行情数据获取相关配置
type DataConfig struct {
	Period           string `json:"period" yaml:"period"`                       // e.g. "3y"
	Interval         string `json:"interval" yaml:"interval"`                   // e.g. "1d"
	MinBars          int    `json:"min_bars" yaml:"min_bars"`                   // 少于该数量的K线视为 NO DATA
	FetchTimeoutSec  int    `json:"fetch_timeout_sec" yaml:"fetch_timeout_sec"` // 单次请求超时
	FetchConcurrency int    `json:"fetch_concurrency" yaml:"fetch_concurrency"` // 并发拉取的标的数量
	Cache            string `json:"cache" yaml:"cache"`                         // "memory" 或 "redis"
	CacheTTLSec      int    `json:"cache_ttl_sec" yaml:"cache_ttl_sec"`
	RedisAddr        string `json:"redis_addr" yaml:"redis_addr"`
	RedisPassword    string `json:"redis_password" yaml:"redis_password"`
}

// WatchlistConfig 关注列表文件位置
type WatchlistConfig struct {
	Path string `json:"path" yaml:"path"`
}

// StoreConfig 持仓记录的存储后端
type StoreConfig struct {
	Driver string `json:"driver" yaml:"driver"` // "csv", "badger" 或 "sqlite"
	Path   string `json:"path" yaml:"path"`
}

// NotifyConfig 通知相关配置
type NotifyConfig struct {
	Telegram TelegramConfig `json:"telegram" yaml:"telegram"`
	OnSignal bool           `json:"on_signal" yaml:"on_signal"` // 信号变化时自动推送
}

// TelegramConfig Telegram 机器人配置
type TelegramConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	BotToken string `json:"bot_token" yaml:"bot_token"`
	ChatID   string `json:"chat_id" yaml:"chat_id"`
}

// ServerConfig serve 模式下的 HTTP 服务配置
type ServerConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Schedule string `json:"schedule" yaml:"schedule"` // cron 表达式, e.g. "@every 5m"
}

// LogConfig 定义了日志相关的配置
type LogConfig struct {
	Level      string `json:"level" yaml:"level"`             // 日志级别, e.g., "debug", "info", "warn", "error"
	Output     string `json:"output" yaml:"output"`           // 输出模式: "console", "file", "both"
	File       string `json:"file" yaml:"file"`               // 日志文件路径
	MaxSize    int    `json:"max_size" yaml:"max_size"`       // 单个日志文件的最大大小 (MB)
	MaxBackups int    `json:"max_backups" yaml:"max_backups"` // 保留的旧日志文件最大数量
	MaxAge     int    `json:"max_age" yaml:"max_age"`         // 旧日志文件的最大保留天数
	Compress   bool   `json:"compress" yaml:"compress"`       // 是否压缩旧日志文件
}
