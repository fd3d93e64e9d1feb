package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Config holds all application configuration values.
type Config struct {
	// Acquisition
	Source      string // "serial", "radio" or "mock"
	SensorCount int

	// Serial (wired) transport
	SerialPort   string
	SerialBaud   int
	SerialFormat string // "csv" or "nmea"

	// Radio (MQTT) transport
	MQTTBroker         string
	MQTTClientID       string
	TopicFrames        string
	TopicEvents        string
	TopicProcessed     string
	TopicCommands      string
	RadioPollInterval  int // milliseconds; 0 means push on receive
	PollErrorLogWindow int // milliseconds between logged poll failures

	// Filtering
	FilterKind         string // "butterworth", "kalman" or "savgol"
	SampleRateHz       float64
	ButterCutoffHz     float64
	ButterOrder        int
	KalmanProcessVar   float64
	KalmanMeasureVar   float64
	SavgolWindow       int
	SavgolPolyOrder    int
	EnhancementEnabled bool

	// Sample buffer
	WindowSize int

	// Fan-out
	DisplayRateHz   float64
	TelemetryRateHz float64

	// Stage engine
	AlertDebounce int // milliseconds

	// Calibration
	EventsFile     string
	PresetsFile    string
	SpineType      string // "C" or "S"
	SpineDirection string

	// Telemetry
	UDPHost    string
	UDPPort    int
	DoctorMode bool

	// Export
	ExportDir string

	// Monitor web server
	MonitorPort int
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: unexported so other packages cannot access it directly.
//   - configOnce: ensures InitGlobal() only runs once, even if called multiple times.
//   - configMu: RWMutex protects concurrent access. Write lock for initialization,
//     read lock for Get() allows multiple concurrent readers.
//
// External code must use InitGlobal() to set and Get() to read.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Defaults returns a Config with every optional knob at its default value.
// Load starts from these, so a config file only needs to name what it changes.
func Defaults() *Config {
	return &Config{
		Source:             "serial",
		SensorCount:        7,
		SerialBaud:         115200,
		SerialFormat:       "csv",
		MQTTClientID:       "spine-trainer",
		TopicFrames:        "spine/frames",
		TopicEvents:        "spine/events",
		TopicProcessed:     "spine/processed",
		TopicCommands:      "spine/commands",
		PollErrorLogWindow: 5000,
		FilterKind:         "butterworth",
		SampleRateHz:       100.0,
		ButterCutoffHz:     2.0,
		ButterOrder:        4,
		KalmanProcessVar:   0.01,
		KalmanMeasureVar:   0.1,
		SavgolWindow:       11,
		SavgolPolyOrder:    3,
		WindowSize:         5000,
		DisplayRateHz:      30.0,
		TelemetryRateHz:    50.0,
		AlertDebounce:      2000,
		SpineType:          "C",
		SpineDirection:     "left",
		UDPHost:            "127.0.0.1",
		UDPPort:            5005,
		ExportDir:          "saving_data",
		MonitorPort:        8080,
	}
}

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Defaults()
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

func parseIntIn(key, value string, min, max int) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if v < min || v > max {
		return 0, fmt.Errorf("%s must be %d-%d, got %d", key, min, max, v)
	}
	return v, nil
}

func parseFloat(key, value string) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

func parseBool(key, value string) (bool, error) {
	v, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// Acquisition
	case "SOURCE":
		if value != "serial" && value != "radio" && value != "mock" {
			return fmt.Errorf("SOURCE must be serial, radio or mock, got %q", value)
		}
		c.Source = value
	case "SENSOR_COUNT":
		c.SensorCount, err = parseIntIn(key, value, 1, 64)

	// Serial transport
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD_RATE":
		c.SerialBaud, err = parseIntIn(key, value, 300, 4000000)
	case "SERIAL_FORMAT":
		if value != "csv" && value != "nmea" {
			return fmt.Errorf("SERIAL_FORMAT must be csv or nmea, got %q", value)
		}
		c.SerialFormat = value

	// Radio transport
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID":
		c.MQTTClientID = value
	case "TOPIC_FRAMES":
		c.TopicFrames = value
	case "TOPIC_EVENTS":
		c.TopicEvents = value
	case "TOPIC_PROCESSED":
		c.TopicProcessed = value
	case "TOPIC_COMMANDS":
		c.TopicCommands = value
	case "RADIO_POLL_INTERVAL":
		c.RadioPollInterval, err = parseIntIn(key, value, 0, 60000)
	case "POLL_ERROR_LOG_WINDOW":
		c.PollErrorLogWindow, err = parseIntIn(key, value, 100, 600000)

	// Filtering
	case "FILTER_KIND":
		if value != "butterworth" && value != "kalman" && value != "savgol" {
			return fmt.Errorf("FILTER_KIND must be butterworth, kalman or savgol, got %q", value)
		}
		c.FilterKind = value
	case "SAMPLE_RATE_HZ":
		c.SampleRateHz, err = parseFloat(key, value)
	case "BUTTER_CUTOFF_HZ":
		c.ButterCutoffHz, err = parseFloat(key, value)
	case "BUTTER_ORDER":
		c.ButterOrder, err = parseIntIn(key, value, 2, 12)
	case "KALMAN_PROCESS_NOISE":
		c.KalmanProcessVar, err = parseFloat(key, value)
	case "KALMAN_MEASUREMENT_NOISE":
		c.KalmanMeasureVar, err = parseFloat(key, value)
	case "SAVGOL_WINDOW":
		c.SavgolWindow, err = parseIntIn(key, value, 3, 255)
	case "SAVGOL_POLY_ORDER":
		c.SavgolPolyOrder, err = parseIntIn(key, value, 1, 10)
	case "ENHANCEMENT_ENABLED":
		c.EnhancementEnabled, err = parseBool(key, value)

	// Sample buffer
	case "WINDOW_SIZE":
		c.WindowSize, err = parseIntIn(key, value, 10, 1000000)

	// Fan-out
	case "DISPLAY_RATE_HZ":
		c.DisplayRateHz, err = parseFloat(key, value)
	case "TELEMETRY_RATE_HZ":
		c.TelemetryRateHz, err = parseFloat(key, value)

	// Stage engine
	case "ALERT_DEBOUNCE_MS":
		c.AlertDebounce, err = parseIntIn(key, value, 0, 600000)

	// Calibration
	case "EVENTS_FILE":
		c.EventsFile = value
	case "PRESETS_FILE":
		c.PresetsFile = value
	case "SPINE_TYPE":
		if value != "C" && value != "S" {
			return fmt.Errorf("SPINE_TYPE must be C or S, got %q", value)
		}
		c.SpineType = value
	case "SPINE_DIRECTION":
		c.SpineDirection = value

	// Telemetry
	case "UDP_HOST":
		c.UDPHost = value
	case "UDP_PORT":
		c.UDPPort, err = parseIntIn(key, value, 1, 65535)
	case "DOCTOR_MODE":
		c.DoctorMode, err = parseBool(key, value)

	// Export
	case "EXPORT_DIR":
		c.ExportDir = value

	// Monitor web server
	case "MONITOR_PORT":
		c.MonitorPort, err = parseIntIn(key, value, 1, 65535)

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

// validate checks that all required fields are set and consistent.
func (c *Config) validate() error {
	switch c.Source {
	case "serial":
		if c.SerialPort == "" {
			return fmt.Errorf("SERIAL_PORT is required when SOURCE=serial")
		}
	case "radio":
		if c.MQTTBroker == "" {
			return fmt.Errorf("MQTT_BROKER is required when SOURCE=radio")
		}
	}
	if c.SensorCount <= 0 {
		return fmt.Errorf("SENSOR_COUNT must be positive")
	}
	if c.SampleRateHz <= 0 {
		return fmt.Errorf("SAMPLE_RATE_HZ must be positive")
	}
	if c.DisplayRateHz <= 0 || c.TelemetryRateHz <= 0 {
		return fmt.Errorf("DISPLAY_RATE_HZ and TELEMETRY_RATE_HZ must be positive")
	}
	return nil
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
