package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ConfigFileName is the JSON file read from the extension directory.
const ConfigFileName = "culling.cfg.json"

// CullingConfig holds the visibility pipeline settings
type CullingConfig struct {
	MaxCharacters         int           `json:"maxCharacters" mapstructure:"maxCharacters"`
	TickRate              int           `json:"tickRate" mapstructure:"tickRate"`
	SimulatedLatencyTicks int           `json:"simulatedLatencyTicks" mapstructure:"simulatedLatencyTicks"`
	Period                int           `json:"period" mapstructure:"period"`
	TimerMax              int           `json:"timerMax" mapstructure:"timerMax"`
	CacheSize             int           `json:"cacheSize" mapstructure:"cacheSize"`
	MaxLookahead          time.Duration `json:"maxLookahead" mapstructure:"maxLookahead"`
	MaxSpeed              float64       `json:"maxSpeed" mapstructure:"maxSpeed"`
	SpeedMargin           float64       `json:"speedMargin" mapstructure:"speedMargin"`
	VerticalDisplacement  float64       `json:"verticalDisplacement" mapstructure:"verticalDisplacement"`
	ScalarGeometry        bool          `json:"scalarGeometry" mapstructure:"scalarGeometry"`
	SphereOccluders       bool          `json:"sphereOccluders" mapstructure:"sphereOccluders"`
	MapsDir               string        `json:"mapsDir" mapstructure:"mapsDir"`
}

// EffectiveTimerMax returns the hysteresis length, defaulting to three culling periods.
func (c CullingConfig) EffectiveTimerMax() int {
	if c.TimerMax > 0 {
		return c.TimerMax
	}
	return 3 * c.Period
}

// SimulatedLatency converts the configured latency ticks into a duration.
func (c CullingConfig) SimulatedLatency() time.Duration {
	if c.TickRate <= 0 {
		return 0
	}
	return time.Duration(c.SimulatedLatencyTicks) * time.Second / time.Duration(c.TickRate)
}

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds SQLite storage backend settings
type SQLiteConfig struct {
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
}

// WebSocketConfig holds streaming backend settings
type WebSocketConfig struct {
	URL    string `json:"url" mapstructure:"url"`
	Secret string `json:"secret" mapstructure:"secret"`
}

// StorageConfig selects and configures the storage backends
type StorageConfig struct {
	Type      string          `json:"type" mapstructure:"type"`
	Memory    MemoryConfig    `json:"memory" mapstructure:"memory"`
	SQLite    SQLiteConfig    `json:"sqlite" mapstructure:"sqlite"`
	WebSocket WebSocketConfig `json:"websocket" mapstructure:"websocket"`
}

// Types splits the comma separated backend list.
func (c StorageConfig) Types() []string {
	var out []string
	for _, t := range strings.Split(c.Type, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// DBConfig holds Postgres connection settings
type DBConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// InfluxConfig holds InfluxDB settings
type InfluxConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
	Bucket   string `json:"bucket" mapstructure:"bucket"`
}

// URL returns the server address in protocol://host:port form.
func (c InfluxConfig) URL() string {
	return fmt.Sprintf("%s://%s:%s", c.Protocol, c.Host, c.Port)
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// MonitorConfig holds performance sampling settings
type MonitorConfig struct {
	Enabled  bool          `json:"enabled" mapstructure:"enabled"`
	Interval time.Duration `json:"interval" mapstructure:"interval"`
}

// setDefaults registers every default value.
func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./cullinglogs")

	viper.SetDefault("culling.maxCharacters", 65)
	viper.SetDefault("culling.tickRate", 120)
	viper.SetDefault("culling.simulatedLatencyTicks", 12)
	viper.SetDefault("culling.period", 4)
	viper.SetDefault("culling.timerMax", 0)
	viper.SetDefault("culling.cacheSize", 3)
	viper.SetDefault("culling.maxLookahead", "250ms")
	viper.SetDefault("culling.maxSpeed", 450.0)
	viper.SetDefault("culling.speedMargin", 100.0)
	viper.SetDefault("culling.verticalDisplacement", 20.0)
	viper.SetDefault("culling.scalarGeometry", false)
	viper.SetDefault("culling.sphereOccluders", false)
	viper.SetDefault("culling.mapsDir", "./maps")

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./cullingstats")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.websocket.url", "ws://localhost:5000/api/culling")
	viper.SetDefault("storage.websocket.secret", "")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "culling")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "culling-metrics")
	viper.SetDefault("influx.bucket", "culling_performance")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "corner-culling")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("monitor.enabled", true)
	viper.SetDefault("monitor.interval", "1s")
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	setDefaults()

	viper.SetConfigName(ConfigFileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// Reload re-reads the config file found by Load. Values not present in the
// file keep their defaults.
func Reload() error {
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reloading config file: %w", err)
	}
	return nil
}

// LoadDefaults registers defaults without reading a file, for tools and
// tests that run without an extension directory.
func LoadDefaults() {
	setDefaults()
}

// GetCullingConfig returns the culling section.
func GetCullingConfig() CullingConfig {
	return CullingConfig{
		MaxCharacters:         viper.GetInt("culling.maxCharacters"),
		TickRate:              viper.GetInt("culling.tickRate"),
		SimulatedLatencyTicks: viper.GetInt("culling.simulatedLatencyTicks"),
		Period:                viper.GetInt("culling.period"),
		TimerMax:              viper.GetInt("culling.timerMax"),
		CacheSize:             viper.GetInt("culling.cacheSize"),
		MaxLookahead:          viper.GetDuration("culling.maxLookahead"),
		MaxSpeed:              viper.GetFloat64("culling.maxSpeed"),
		SpeedMargin:           viper.GetFloat64("culling.speedMargin"),
		VerticalDisplacement:  viper.GetFloat64("culling.verticalDisplacement"),
		ScalarGeometry:        viper.GetBool("culling.scalarGeometry"),
		SphereOccluders:       viper.GetBool("culling.sphereOccluders"),
		MapsDir:               viper.GetString("culling.mapsDir"),
	}
}

// GetStorageConfig returns the storage section.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
		},
		WebSocket: WebSocketConfig{
			URL:    viper.GetString("storage.websocket.url"),
			Secret: viper.GetString("storage.websocket.secret"),
		},
	}
}

// GetDBConfig returns the Postgres connection section.
func GetDBConfig() DBConfig {
	return DBConfig{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: viper.GetString("db.password"),
		Database: viper.GetString("db.database"),
	}
}

// GetInfluxConfig returns the InfluxDB section.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Protocol: viper.GetString("influx.protocol"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

// GetOTelConfig returns the OpenTelemetry section.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetMonitorConfig returns the performance monitor section.
func GetMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Enabled:  viper.GetBool("monitor.enabled"),
		Interval: viper.GetDuration("monitor.interval"),
	}
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}
