package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Config holds all application configuration values. Validation runs
// before any bus access, so a bad value can never reach the hardware.
type Config struct {
	// IMU bus binding. Bus enumeration is delegated to platform
	// tooling (i2cdetect); we only carry the identifier and address.
	I2CBus  string // e.g. "2", "/dev/i2c-2", or "" for first available
	I2CAddr uint16 // 7-bit, 0x28 or 0x29 for the BNO055

	// Acquisition loop
	PollPeriodMS     int // cycle period in milliseconds
	FailureThreshold int // consecutive bus failures before recovery
	SinkStallMS      int // max time a websocket write may block

	// Web server
	WebServerPort int

	// MQTT (optional; empty broker disables publishing)
	MQTTBroker          string
	MQTTClientIDViewer  string
	MQTTClientIDConsole string
	MQTTClientIDDisplay string

	// Topics
	TopicOrientation string
	TopicCalibration string

	// OLED display subscriber
	DisplayI2CAddr        uint16
	DisplayUpdateInterval int // milliseconds

	// Console subscriber
	ConsoleLogInterval int // milliseconds
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

// defaults returns a Config pre-filled with the values a bench setup
// usually wants; the file only needs to override what differs.
func defaults() *Config {
	return &Config{
		I2CBus:                "",
		I2CAddr:               0x29,
		PollPeriodMS:          20,
		FailureThreshold:      10,
		SinkStallMS:           250,
		WebServerPort:         8080,
		MQTTClientIDViewer:    "imu-viewer",
		MQTTClientIDConsole:   "imu-console-subscriber",
		MQTTClientIDDisplay:   "imu-display-subscriber",
		TopicOrientation:      "imu/orientation",
		TopicCalibration:      "imu/calibration",
		DisplayI2CAddr:        0x3C,
		DisplayUpdateInterval: 200,
		ConsoleLogInterval:    500,
	}
}

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := defaults()
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
	// IMU bus binding
	case "I2C_BUS":
		c.I2CBus = value
	case "I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid I2C_ADDR %q: %w", value, err)
		}
		c.I2CAddr = uint16(addr)

	// Acquisition loop
	case "POLL_PERIOD_MS":
		period, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid POLL_PERIOD_MS %q: %w", value, err)
		}
		c.PollPeriodMS = period
	case "FAILURE_THRESHOLD":
		threshold, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid FAILURE_THRESHOLD %q: %w", value, err)
		}
		c.FailureThreshold = threshold
	case "SINK_STALL_MS":
		stall, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SINK_STALL_MS %q: %w", value, err)
		}
		c.SinkStallMS = stall

	// Web server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		c.WebServerPort = port

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_VIEWER":
		c.MQTTClientIDViewer = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value

	// Topics
	case "TOPIC_ORIENTATION":
		c.TopicOrientation = value
	case "TOPIC_CALIBRATION":
		c.TopicCalibration = value

	// Display
	case "DISPLAY_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_I2C_ADDR %q: %w", value, err)
		}
		c.DisplayI2CAddr = uint16(addr)
	case "DISPLAY_UPDATE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_UPDATE_INTERVAL %q: %w", value, err)
		}
		c.DisplayUpdateInterval = interval

	// Console
	case "CONSOLE_LOG_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid CONSOLE_LOG_INTERVAL %q: %w", value, err)
		}
		c.ConsoleLogInterval = interval

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

// validate checks ranges. Violations are fatal at startup.
func (c *Config) validate() error {
	if c.I2CAddr < 0x08 || c.I2CAddr > 0x77 {
		return fmt.Errorf("I2C_ADDR must be a 7-bit address in 0x08-0x77, got 0x%02X", c.I2CAddr)
	}
	if c.PollPeriodMS <= 0 {
		return fmt.Errorf("POLL_PERIOD_MS must be positive, got %d", c.PollPeriodMS)
	}
	if c.FailureThreshold <= 0 {
		return fmt.Errorf("FAILURE_THRESHOLD must be positive, got %d", c.FailureThreshold)
	}
	if c.SinkStallMS <= 0 {
		return fmt.Errorf("SINK_STALL_MS must be positive, got %d", c.SinkStallMS)
	}
	if c.WebServerPort <= 0 || c.WebServerPort > 65535 {
		return fmt.Errorf("WEB_SERVER_PORT must be 1-65535, got %d", c.WebServerPort)
	}
	if c.TopicOrientation == "" {
		return fmt.Errorf("TOPIC_ORIENTATION is required")
	}
	if c.TopicCalibration == "" {
		return fmt.Errorf("TOPIC_CALIBRATION is required")
	}
	if c.DisplayUpdateInterval <= 0 {
		return fmt.Errorf("DISPLAY_UPDATE_INTERVAL must be positive, got %d", c.DisplayUpdateInterval)
	}
	if c.ConsoleLogInterval <= 0 {
		return fmt.Errorf("CONSOLE_LOG_INTERVAL must be positive, got %d", c.ConsoleLogInterval)
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
