package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// 环境变量覆盖
const (
	EnvOptimizerURL     = "FACTORYFLOW_OPTIMIZER_URL"
	EnvOptimizerTimeout = "FACTORYFLOW_OPTIMIZER_TIMEOUT"
	EnvDataDir          = "FACTORYFLOW_DATA_DIR"
)

// DefaultFileName 默认配置文件名（位于可执行文件同目录）
const DefaultFileName = "config.toml"

// AppConfig 应用配置
type AppConfig struct {
	Server    ServerConfig    `toml:"server" yaml:"server"`
	Data      DataConfig      `toml:"data" yaml:"data"`
	Optimizer OptimizerConfig `toml:"optimizer" yaml:"optimizer"`
	Upload    UploadConfig    `toml:"upload" yaml:"upload"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port    int  `toml:"port" yaml:"port"`
	DevMode bool `toml:"dev_mode" yaml:"dev_mode"`
}

// DataConfig 数据配置
type DataConfig struct {
	DataDir string `toml:"data_dir" yaml:"data_dir"`
}

// OptimizerConfig 远端排产优化服务
type OptimizerConfig struct {
	URL string `toml:"url" yaml:"url"`
	// Timeout 形如 "3m"、"90s"
	Timeout   Duration `toml:"timeout" yaml:"timeout"`
	FieldName string   `toml:"field_name" yaml:"field_name"`
}

// UploadConfig 上传限制
type UploadConfig struct {
	MaxBytes   int64    `toml:"max_bytes" yaml:"max_bytes"`
	Extensions []string `toml:"extensions" yaml:"extensions"`
}

// Duration 以字符串形式读写的时长
type Duration time.Duration

// UnmarshalText 解析 "3m" 形式的时长
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(b), err)
	}
	*d = Duration(v)
	return nil
}

// MarshalText 输出 "3m0s" 形式
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std 转为 time.Duration
func (d Duration) Std() time.Duration { return time.Duration(d) }

// LoadConfigInfo 配置加载元信息
type LoadConfigInfo struct {
	Path          string
	Found         bool
	PortSpecified bool
}

// DefaultConfig 默认配置
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:    20261,
			DevMode: false,
		},
		Data: DataConfig{
			DataDir: "data",
		},
		Optimizer: OptimizerConfig{
			URL:       "https://wood-scheduler.onrender.com/optimize",
			Timeout:   Duration(3 * time.Minute),
			FieldName: "files",
		},
		Upload: UploadConfig{
			MaxBytes:   10 << 20,
			Extensions: []string{".csv", ".xlsx", ".xls"},
		},
	}
}

// GetExeDir 获取可执行文件所在目录
func GetExeDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Dir(exe), nil
}

// DefaultPath 可执行文件同目录下的 config.toml
func DefaultPath() string {
	exeDir, err := GetExeDir()
	if err != nil {
		// 无法获取可执行文件目录，使用当前目录
		exeDir = "."
	}
	return filepath.Join(exeDir, DefaultFileName)
}

// Load 加载配置；path 为空时读取默认位置，文件不存在则使用默认配置
func Load(path string) (*AppConfig, LoadConfigInfo, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	info := LoadConfigInfo{Path: path}
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		info.Found = true
	case os.IsNotExist(err) && !explicit:
		applyEnv(cfg)
		return cfg, info, nil
	default:
		return nil, info, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if isYAML(path) {
		info.PortSpecified = isPortSpecifiedInYAML(data)
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, info, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	} else {
		info.PortSpecified = isPortSpecifiedInToml(data)
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, info, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, info, err
	}
	return cfg, info, nil
}

// applyEnv 环境变量覆盖（用于部署 / 本地运行）
func applyEnv(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvOptimizerURL)); v != "" {
		cfg.Optimizer.URL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvOptimizerTimeout)); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Optimizer.Timeout = Duration(d)
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvDataDir)); v != "" {
		cfg.Data.DataDir = v
	}
}

// Validate 检查配置取值
func (c *AppConfig) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if strings.TrimSpace(c.Optimizer.URL) == "" {
		return fmt.Errorf("optimizer url is required")
	}
	if c.Optimizer.Timeout <= 0 {
		return fmt.Errorf("optimizer timeout must be positive")
	}
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("upload max_bytes must be positive")
	}
	for i, ext := range c.Upload.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		c.Upload.Extensions[i] = ext
	}
	return nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func isPortSpecifiedInToml(data []byte) bool {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return false
	}
	return hasServerPort(raw)
}

func isPortSpecifiedInYAML(data []byte) bool {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return false
	}
	return hasServerPort(raw)
}

func hasServerPort(raw map[string]any) bool {
	serverMap, ok := raw["server"].(map[string]any)
	if !ok {
		return false
	}
	_, ok = serverMap["port"]
	return ok
}

// Save 保存配置（按扩展名选择 TOML 或 YAML）
func Save(cfg *AppConfig, path string) error {
	if path == "" {
		path = DefaultPath()
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = toml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ResolveDataDir 相对路径以可执行文件所在目录为基准
func ResolveDataDir(cfg *AppConfig) string {
	if filepath.IsAbs(cfg.Data.DataDir) {
		return cfg.Data.DataDir
	}
	exeDir, err := GetExeDir()
	if err != nil {
		exeDir = "."
	}
	return filepath.Join(exeDir, cfg.Data.DataDir)
}

// EnsureDataDir 确保数据目录存在
func EnsureDataDir(cfg *AppConfig) (string, error) {
	dataDir := ResolveDataDir(cfg)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", err
	}
	return dataDir, nil
}
