package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/relabs-tech/thrust_magcal/internal/magcal"
)

// Feed names accepted by SAMPLE_FEED.
const (
	FeedMQTT   = "mqtt"
	FeedSerial = "serial"
)

// Result formats accepted by RESULT_FORMAT.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker              string
	MQTTClientIDCalibration string
	MQTTClientIDWeb         string
	MQTTClientIDSimulator   string
	MQTTClientIDLogger      string

	// Topics
	TopicMag      string // raw magnetometer samples from the vehicle
	TopicSetpoint string // setpoints to the vehicle
	TopicResult   string // finished calibration results

	// Sample feed
	SampleFeed     string // "mqtt" or "serial"
	FeedSerialPort string
	FeedBaudRate   uint

	// Calibration sequence, one setpoint per level, level 0 = no thrust
	ThrustLevels []uint16

	// Static hard/soft iron correction from the ellipsoid fit
	MagEllipsoidCenter    magcal.Vec3
	MagEllipsoidTransform magcal.Mat3

	// Timing (milliseconds)
	KeepAliveInterval int
	SettleDelay       int
	ShutdownDelay     int

	// Web Server
	WebServerPort int

	// Output
	StoragePath  string // sqlite capture log, empty disables it
	ResultDir    string
	ResultFormat string // "json" or "yaml"

	// Simulator
	SimSampleInterval int // milliseconds
	SimNoise          float64
	SimRadius         float64
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: unexported so other packages cannot modify it without locking.
//   - configOnce: ensures InitGlobal() only runs once, even if called multiple times.
//   - configMu: RWMutex, write lock for initialization, read lock for Get().
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns a Config with every optional value filled in.
func Default() *Config {
	return &Config{
		MQTTClientIDCalibration: "thrust-magcal-session",
		MQTTClientIDWeb:         "thrust-magcal-web",
		MQTTClientIDSimulator:   "thrust-magcal-sim",
		MQTTClientIDLogger:      "thrust-magcal-logger",

		TopicMag:      "inertial/mag/left",
		TopicSetpoint: "vehicle/setpoint",
		TopicResult:   "calibration/thrust_mag",

		SampleFeed:   FeedMQTT,
		FeedBaudRate: 115200,

		ThrustLevels: []uint16{0, 10001, 20001, 30001, 40001, 50001, 60000},

		MagEllipsoidCenter:    magcal.DefaultStaticCorrection.Center,
		MagEllipsoidTransform: magcal.DefaultStaticCorrection.Transform,

		KeepAliveInterval: 100,
		SettleDelay:       500,
		ShutdownDelay:     500,

		WebServerPort: 8080,

		ResultDir:    ".",
		ResultFormat: FormatJSON,

		SimSampleInterval: 10,
		SimNoise:          1.5,
		SimRadius:         420,
	}
}

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Default()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_CALIBRATION":
		c.MQTTClientIDCalibration = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_SIMULATOR":
		c.MQTTClientIDSimulator = value
	case "MQTT_CLIENT_ID_LOGGER":
		c.MQTTClientIDLogger = value

	// Topics
	case "TOPIC_MAG":
		c.TopicMag = value
	case "TOPIC_SETPOINT":
		c.TopicSetpoint = value
	case "TOPIC_RESULT":
		c.TopicResult = value

	// Sample feed
	case "SAMPLE_FEED":
		v := strings.ToLower(value)
		if v != FeedMQTT && v != FeedSerial {
			return fmt.Errorf("SAMPLE_FEED must be %q or %q, got %q", FeedMQTT, FeedSerial, value)
		}
		c.SampleFeed = v
	case "FEED_SERIAL_PORT":
		c.FeedSerialPort = value
	case "FEED_BAUD_RATE":
		rate, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid FEED_BAUD_RATE %q: %w", value, err)
		}
		c.FeedBaudRate = uint(rate)

	// Calibration sequence
	case "THRUST_LEVELS":
		levels, err := parseThrustLevels(value)
		if err != nil {
			return fmt.Errorf("invalid THRUST_LEVELS %q: %w", value, err)
		}
		c.ThrustLevels = levels

	// Static correction
	case "MAG_ELLIPSOID_CENTER":
		v, err := parseFloats(value, 3)
		if err != nil {
			return fmt.Errorf("invalid MAG_ELLIPSOID_CENTER %q: %w", value, err)
		}
		c.MagEllipsoidCenter = magcal.Vec3{X: v[0], Y: v[1], Z: v[2]}
	case "MAG_ELLIPSOID_TRANSFORM":
		v, err := parseFloats(value, 9)
		if err != nil {
			return fmt.Errorf("invalid MAG_ELLIPSOID_TRANSFORM %q: %w", value, err)
		}
		c.MagEllipsoidTransform, _ = magcal.Mat3FromFlat(v)

	// Timing
	case "KEEPALIVE_INTERVAL":
		return setPositiveMillis(&c.KeepAliveInterval, key, value)
	case "SETTLE_DELAY":
		return setMillis(&c.SettleDelay, key, value)
	case "SHUTDOWN_DELAY":
		return setMillis(&c.ShutdownDelay, key, value)

	// Web Server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		if port < 1 || port > 65535 {
			return fmt.Errorf("WEB_SERVER_PORT must be 1-65535, got %d", port)
		}
		c.WebServerPort = port

	// Output
	case "STORAGE_PATH":
		c.StoragePath = value
	case "RESULT_DIR":
		c.ResultDir = value
	case "RESULT_FORMAT":
		v := strings.ToLower(value)
		if v != FormatJSON && v != FormatYAML {
			return fmt.Errorf("RESULT_FORMAT must be %q or %q, got %q", FormatJSON, FormatYAML, value)
		}
		c.ResultFormat = v

	// Simulator
	case "SIM_SAMPLE_INTERVAL":
		return setPositiveMillis(&c.SimSampleInterval, key, value)
	case "SIM_NOISE":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil || v < 0 {
			return fmt.Errorf("invalid SIM_NOISE %q", value)
		}
		c.SimNoise = v
	case "SIM_RADIUS":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil || v <= 0 {
			return fmt.Errorf("invalid SIM_RADIUS %q", value)
		}
		c.SimRadius = v

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

func setMillis(dst *int, key, value string) error {
	ms, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if ms < 0 {
		return fmt.Errorf("%s must not be negative, got %d", key, ms)
	}
	*dst = ms
	return nil
}

func setPositiveMillis(dst *int, key, value string) error {
	if err := setMillis(dst, key, value); err != nil {
		return err
	}
	if *dst == 0 {
		return fmt.Errorf("%s must be positive", key)
	}
	return nil
}

// parseFloats parses exactly n comma or space separated numbers.
func parseFloats(value string, n int) ([]float64, error) {
	fields := splitList(value)
	if len(fields) != n {
		return nil, fmt.Errorf("expected %d values, got %d", n, len(fields))
	}
	out := make([]float64, n)
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func parseThrustLevels(value string) ([]uint16, error) {
	fields := splitList(value)
	if len(fields) != magcal.LevelCount {
		return nil, fmt.Errorf("expected %d levels, got %d", magcal.LevelCount, len(fields))
	}
	out := make([]uint16, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseUint(f, 10, 16)
		if err != nil {
			return nil, err
		}
		out[i] = uint16(v)
	}
	return out, nil
}

func splitList(value string) []string {
	return strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
}

// validate checks that all required fields are set and consistent.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.SampleFeed == FeedSerial && c.FeedSerialPort == "" {
		return fmt.Errorf("FEED_SERIAL_PORT is required when SAMPLE_FEED=serial")
	}
	if len(c.ThrustLevels) != magcal.LevelCount {
		return fmt.Errorf("THRUST_LEVELS must have %d entries", magcal.LevelCount)
	}
	if c.ThrustLevels[0] != 0 {
		return fmt.Errorf("THRUST_LEVELS must start at 0, got %d", c.ThrustLevels[0])
	}
	for i := 1; i < len(c.ThrustLevels); i++ {
		if c.ThrustLevels[i] <= c.ThrustLevels[i-1] {
			return fmt.Errorf("THRUST_LEVELS must be strictly increasing (level %d: %d after %d)",
				i, c.ThrustLevels[i], c.ThrustLevels[i-1])
		}
	}
	if _, err := c.StaticCorrection(); err != nil {
		return err
	}
	return nil
}

// StaticCorrection returns the validated hard/soft iron correction.
func (c *Config) StaticCorrection() (magcal.StaticCorrection, error) {
	return magcal.NewStaticCorrection(c.MagEllipsoidCenter, c.MagEllipsoidTransform)
}

// Millis converts one of the millisecond settings to a duration.
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
