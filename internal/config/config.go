package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata" // 保证没有系统时区库时也能加载 Asia/Seoul

	"watchdash/internal/models"

	"gopkg.in/yaml.v3"
)

// 默认参数, 与最初的 config.yaml 保持一致
const (
	DefaultLookbackBars = 252
	DefaultDDEntryPct   = 15.0
	DefaultRSILen       = 14
	DefaultRSIEntryMax  = 35.0
	DefaultTPMin        = 12.0
	DefaultTPMax        = 15.0
	DefaultTrailDrop    = 5.0
	DefaultPeriod       = "3y"
	DefaultInterval     = "1d"
	DefaultMinBars      = 30
	DefaultTimezone     = "Asia/Seoul"
)

// LoadConfig 从指定路径加载配置文件 (JSON 或 YAML) 并解析到Config结构体中
func LoadConfig(path string) (*models.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &models.Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
	}

	ApplyDefaults(cfg)
	ApplyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults 为未设置的字段填充默认值
func ApplyDefaults(cfg *models.Config) {
	p := &cfg.Params
	if p.LookbackBars == 0 {
		p.LookbackBars = DefaultLookbackBars
	}
	if p.DDEntryPct == 0 {
		p.DDEntryPct = DefaultDDEntryPct
	}
	if p.RSILen == 0 {
		p.RSILen = DefaultRSILen
	}
	if p.RSIEntryMax == 0 {
		p.RSIEntryMax = DefaultRSIEntryMax
	}
	if p.TPMin == 0 && p.TPMax == 0 {
		p.TPMin, p.TPMax = DefaultTPMin, DefaultTPMax
	}
	if p.TrailDrop == 0 {
		p.TrailDrop = DefaultTrailDrop
	}

	d := &cfg.Data
	if d.Period == "" {
		d.Period = DefaultPeriod
	}
	if d.Interval == "" {
		d.Interval = DefaultInterval
	}
	if d.MinBars == 0 {
		d.MinBars = DefaultMinBars
	}
	if d.FetchTimeoutSec == 0 {
		d.FetchTimeoutSec = 15
	}
	if d.FetchConcurrency == 0 {
		d.FetchConcurrency = 4
	}
	if d.Cache == "" {
		d.Cache = "memory"
	}
	if d.CacheTTLSec == 0 {
		d.CacheTTLSec = 300
	}

	if cfg.Watchlist.Path == "" {
		cfg.Watchlist.Path = "data/watchlist.csv"
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "csv"
	}
	if cfg.Store.Path == "" {
		switch cfg.Store.Driver {
		case "badger":
			cfg.Store.Path = "data/positions.badger"
		case "sqlite":
			cfg.Store.Path = "data/positions.db"
		default:
			cfg.Store.Path = "data/positions.csv"
		}
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.Schedule == "" {
		cfg.Server.Schedule = "@every 5m"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = DefaultTimezone
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.LogConfig.Output == "" {
		cfg.LogConfig.Output = "console"
	}
}

// ApplyEnv 使用环境变量覆盖敏感或部署相关的配置
func ApplyEnv(cfg *models.Config) {
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Notify.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Notify.Telegram.ChatID = v
	}
	if v := os.Getenv("WATCHDASH_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Data.RedisAddr = v
	}
}

// Validate 检查配置是否合法
func Validate(cfg *models.Config) error {
	p := cfg.Params
	if p.LookbackBars < 1 {
		return fmt.Errorf("params.lookback_bars 必须 >= 1, 当前 %d", p.LookbackBars)
	}
	if p.RSILen < 1 {
		return fmt.Errorf("params.rsi_len 必须 >= 1, 当前 %d", p.RSILen)
	}
	if p.DDEntryPct < 0 || p.TPMin < 0 || p.TPMax < 0 || p.TrailDrop < 0 {
		return fmt.Errorf("params 中的百分比不能为负数")
	}
	if p.TPMin > p.TPMax {
		return fmt.Errorf("params.tp_min (%.2f) 不能大于 tp_max (%.2f)", p.TPMin, p.TPMax)
	}
	switch cfg.Store.Driver {
	case "csv", "badger", "sqlite":
	default:
		return fmt.Errorf("未知的 store.driver: %q", cfg.Store.Driver)
	}
	switch cfg.Data.Cache {
	case "memory", "redis", "none":
	default:
		return fmt.Errorf("未知的 data.cache: %q", cfg.Data.Cache)
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return fmt.Errorf("无法加载时区 %q: %w", cfg.Timezone, err)
	}
	return nil
}

// Location 返回配置的时区
func Location(cfg *models.Config) *time.Location {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
