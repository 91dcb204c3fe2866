package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/rafio1020/project-aeras/internal/geo"
)

// KioskConfig is the environment-driven configuration of a kiosk node.
type KioskConfig struct {
	NodeID         string
	BackendURL     string
	RedisHost      string
	RedisPort      int
	MetricsAddr    string
	PickupBlock    string
	Destination    string
	LightThreshold int
	SignalSource   string // "gpio" or "redis"

	StatusPollInterval time.Duration
	RequestTimeout     time.Duration
}

// RickshawConfig is the environment-driven configuration of a rickshaw node.
type RickshawConfig struct {
	NodeID      string
	DisplayName string
	BackendURL  string
	RedisHost   string
	RedisPort   int
	MetricsAddr string
	Start       geo.Position
	SpeedKmh    float64

	PendingPollInterval  time.Duration
	MoveTickInterval     time.Duration
	PositionReportPeriod time.Duration
}

// LoadKiosk reads kiosk configuration from the environment, loading a .env
// file first if one is present.
func LoadKiosk() (*KioskConfig, error) {
	_ = godotenv.Load()

	cfg := &KioskConfig{}

	cfg.NodeID = getenvDefault("NODE_ID", "KIOSK_1")
	cfg.BackendURL = getenvDefault("BACKEND_URL", "http://127.0.0.1:8080")
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	host, port, err := redisAddr()
	if err != nil {
		return nil, err
	}
	cfg.RedisHost, cfg.RedisPort = host, port

	cfg.PickupBlock = getenvDefault("KIOSK_WAYPOINT", "CUET_CAMPUS")
	if _, ok := geo.LookupWaypoint(cfg.PickupBlock); !ok {
		return nil, fmt.Errorf("unknown KIOSK_WAYPOINT: %q", cfg.PickupBlock)
	}
	cfg.Destination = getenvDefault("KIOSK_DESTINATION", "PAHARTOLI")
	if _, ok := geo.LookupWaypoint(cfg.Destination); !ok {
		return nil, fmt.Errorf("unknown KIOSK_DESTINATION: %q", cfg.Destination)
	}

	cfg.LightThreshold, err = intEnv("LIGHT_THRESHOLD", 3000)
	if err != nil {
		return nil, err
	}

	cfg.SignalSource = getenvDefault("SIGNAL_SOURCE", "redis")
	switch cfg.SignalSource {
	case "gpio", "redis":
	default:
		return nil, fmt.Errorf("invalid SIGNAL_SOURCE: %q (want gpio or redis)", cfg.SignalSource)
	}

	cfg.StatusPollInterval, err = msEnv("POLL_STATUS_MS")
	if err != nil {
		return nil, err
	}
	cfg.RequestTimeout, err = msEnv("REQUEST_TIMEOUT_MS")
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadRickshaw reads rickshaw configuration from the environment, loading a
// .env file first if one is present.
func LoadRickshaw() (*RickshawConfig, error) {
	_ = godotenv.Load()

	cfg := &RickshawConfig{}

	cfg.NodeID = getenvDefault("NODE_ID", "RICKSHAW_1")
	cfg.DisplayName = getenvDefault("DISPLAY_NAME", cfg.NodeID)
	cfg.BackendURL = getenvDefault("BACKEND_URL", "http://127.0.0.1:8080")
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	host, port, err := redisAddr()
	if err != nil {
		return nil, err
	}
	cfg.RedisHost, cfg.RedisPort = host, port

	cfg.Start.Lat, err = floatEnv("START_LAT", 22.4600)
	if err != nil {
		return nil, err
	}
	cfg.Start.Lng, err = floatEnv("START_LNG", 91.9700)
	if err != nil {
		return nil, err
	}

	cfg.SpeedKmh, err = floatEnv("SPEED_KMH", 0)
	if err != nil {
		return nil, err
	}
	if cfg.SpeedKmh < 0 {
		return nil, fmt.Errorf("invalid SPEED_KMH: %v", cfg.SpeedKmh)
	}

	cfg.PendingPollInterval, err = msEnv("POLL_PENDING_MS")
	if err != nil {
		return nil, err
	}
	cfg.MoveTickInterval, err = msEnv("MOVE_TICK_MS")
	if err != nil {
		return nil, err
	}
	cfg.PositionReportPeriod, err = msEnv("BROADCAST_MS")
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// redisAddr parses REDIS_ADDR ("host:port") into its parts.
func redisAddr() (string, int, error) {
	addr := getenvDefault("REDIS_ADDR", "127.0.0.1:6379")
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid REDIS_ADDR: %q", addr)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 {
		return "", 0, fmt.Errorf("invalid REDIS_ADDR port: %q", portStr)
	}
	return host, port, nil
}

// msEnv parses a millisecond tunable. An absent variable yields zero, which
// selects the caller's default.
func msEnv(key string) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, nil
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}

func floatEnv(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return f, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
