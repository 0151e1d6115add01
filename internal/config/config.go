package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Environment
	Environment string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// Server
	Port        string
	FrontendURL string

	// Session settings
	DefaultDurationSecs int
	MinDurationSecs     int
	MaxDurationSecs     int
	DefaultMaxPlayers   int
	MinPlayers          int
	MaxPlayers          int
	CountdownSecs       int

	// Simulation settings
	TickRate        int // simulator ticks per second
	PollIntervalMS  int // client poll period when change notification is unavailable
	ExpirySweepSecs int // how often the expiry checker scans running sessions
	LaneCount       int
	ShotForwardSecs float64 // nominal forward-phase flight time
	ShotReturnSecs  float64 // return-phase flight time

	// Court geometry (normalized percentage space, 0-100)
	RimX            float64
	RimY            float64
	RimWidth        float64
	RimDepth        float64 // z-plane of the rim, 0=spawn 1=back wall
	BackboardY      float64
	BackboardHeight float64

	// Physics tuning
	Gravity          float64
	Drag             float64
	RimRestitution   float64
	BoardRestitution float64
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	return &Config{
		// Environment
		Environment: getEnv("APP_ENV", "development"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", "postgres://localhost:5432/faninteract?sslmode=disable"),

		// Redis
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		// Server
		Port:        getEnv("APP_PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),

		// Session settings
		DefaultDurationSecs: getEnvInt("DEFAULT_DURATION_SECONDS", 60),
		MinDurationSecs:     getEnvInt("MIN_DURATION_SECONDS", 20),
		MaxDurationSecs:     getEnvInt("MAX_DURATION_SECONDS", 180),
		DefaultMaxPlayers:   getEnvInt("DEFAULT_MAX_PLAYERS", 10),
		MinPlayers:          getEnvInt("MIN_PLAYERS", 2),
		MaxPlayers:          getEnvInt("MAX_PLAYERS", 10),
		CountdownSecs:       getEnvInt("COUNTDOWN_SECONDS", 10),

		// Simulation
		TickRate:        getEnvInt("SIM_TICK_RATE", 60),
		PollIntervalMS:  getEnvInt("POLL_INTERVAL_MS", 1200),
		ExpirySweepSecs: getEnvInt("EXPIRY_SWEEP_SECONDS", 1),
		LaneCount:       getEnvInt("LANE_COUNT", 10),
		ShotForwardSecs: getEnvFloat("SHOT_FORWARD_SECONDS", 1.1),
		ShotReturnSecs:  getEnvFloat("SHOT_RETURN_SECONDS", 0.9),

		// Court geometry
		RimX:            getEnvFloat("RIM_X", 50.0),
		RimY:            getEnvFloat("RIM_Y", 22.0),
		RimWidth:        getEnvFloat("RIM_WIDTH", 11.0),
		RimDepth:        getEnvFloat("RIM_DEPTH", 0.88),
		BackboardY:      getEnvFloat("BACKBOARD_Y", 14.0),
		BackboardHeight: getEnvFloat("BACKBOARD_HEIGHT", 13.0),

		// Physics
		Gravity:          getEnvFloat("GRAVITY", 165.0),
		Drag:             getEnvFloat("DRAG", 0.992),
		RimRestitution:   getEnvFloat("RIM_RESTITUTION", 0.55),
		BoardRestitution: getEnvFloat("BOARD_RESTITUTION", 0.45),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
