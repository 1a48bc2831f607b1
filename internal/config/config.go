package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config 应用配置
type Config struct {
	Port      string `yaml:"port" validate:"required"`
	DBPath    string `yaml:"db_path" validate:"required"`
	JWTSecret string `yaml:"jwt_secret" validate:"required"`

	// Live vehicle positions. An empty URL disables ingestion and live matching.
	VehiclePositionsURL string            `yaml:"gtfs_vehicle_positions_url" validate:"omitempty,url"`
	VehiclePollInterval time.Duration     `yaml:"vehicle_poll_interval" validate:"gt=0"`
	VehicleRetention    time.Duration     `yaml:"vehicle_retention" validate:"gt=0"`
	RouteTypes          map[string]string `yaml:"route_types" validate:"dive,keys,required,endkeys,oneof=BUS TRAM SUBWAY RAIL FERRY"`

	// Journey planner. An empty URL disables planner matching.
	PlannerURL            string        `yaml:"planner_url" validate:"omitempty,url"`
	PlannerTimeout        time.Duration `yaml:"planner_timeout" validate:"gt=0"`
	PlannerNumItineraries int           `yaml:"planner_num_itineraries" validate:"min=1,max=10"`
	PlannerCacheSize      int           `yaml:"planner_cache_size" validate:"min=1"`

	LegGenerationInterval time.Duration `yaml:"leg_generation_interval" validate:"gt=0"`
	ClusterInterval       time.Duration `yaml:"cluster_interval" validate:"gt=0"`
	Workers               int           `yaml:"workers" validate:"min=1,max=64"`

	// Timezone is the planner's local time zone, used to shift queries into the current week
	Timezone string         `yaml:"timezone" validate:"required"`
	Location *time.Location `yaml:"-" validate:"-"`
}

// Load 加载配置: .env, then environment variables with defaults, then the
// optional YAML file named by LEGS_CONFIG_FILE. The result is validated.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[Config] Failed to load .env: %v", err)
	}

	cfg := &Config{
		Port:      getEnv("PORT", ":8080"),
		DBPath:    getEnv("DB_PATH", "./data/legs.db"),
		JWTSecret: getEnv("JWT_SECRET", "your-secret-key-change-in-production"),

		VehiclePositionsURL: getEnv("GTFS_VEHICLE_POSITIONS_URL", ""),
		VehiclePollInterval: getEnvDuration("VEHICLE_POLL_INTERVAL", 30*time.Second),
		VehicleRetention:    getEnvDuration("VEHICLE_RETENTION", 48*time.Hour),
		RouteTypes:          parseRouteTypes(getEnv("ROUTE_TYPES", "")),

		PlannerURL:            getEnv("PLANNER_URL", ""),
		PlannerTimeout:        getEnvDuration("PLANNER_TIMEOUT", 50*time.Second),
		PlannerNumItineraries: getEnvInt("PLANNER_NUM_ITINERARIES", 3),
		PlannerCacheSize:      getEnvInt("PLANNER_CACHE_SIZE", 1000),

		LegGenerationInterval: getEnvDuration("LEG_GENERATION_INTERVAL", time.Hour),
		ClusterInterval:       getEnvDuration("CLUSTER_INTERVAL", 24*time.Hour),
		Workers:               getEnvInt("WORKERS", 4),

		Timezone: getEnv("TIMEZONE", "Europe/Helsinki"),
	}

	if path := os.Getenv("LEGS_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		log.Printf("[Config] Ignoring invalid %s=%q", key, value)
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Printf("[Config] Ignoring invalid %s=%q", key, value)
	}
	return defaultValue
}

// parseRouteTypes reads "prefix=TYPE,prefix=TYPE"
func parseRouteTypes(s string) map[string]string {
	types := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		prefix, lineType, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || prefix == "" {
			continue
		}
		types[prefix] = strings.ToUpper(lineType)
	}
	return types
}
