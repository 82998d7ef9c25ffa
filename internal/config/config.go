// Package config loads the demo client's environment-driven configuration,
// following the same getEnv(key, fallback) pattern every teacher
// cmd/*-service/internal/config package uses: a flat struct, no file
// parser, no viper/koanf.
package config

import "os"

// Config is the parrhesia-client demo binary's runtime configuration.
type Config struct {
	// RoomServerURL is the base URL of the REST collaborator (§6.3).
	RoomServerURL string
	// WebSocketURL is the server's bidirectional frame stream endpoint.
	WebSocketURL string
	// IdentityPath is where the local signing keypair is persisted (§6.2).
	IdentityPath string
	// TofuPath is where the TOFU store is persisted.
	TofuPath string
	// HistoryPath is where encrypted message history is persisted.
	HistoryPath string
	// Password unlocks a password-wrapped signing keypair, if any.
	Password string
	// DebugPort serves a local debug endpoint for inspecting session state.
	DebugPort string
}

// Load populates a Config from the environment, falling back to the
// demo binary's defaults.
func Load() *Config {
	return &Config{
		RoomServerURL: getEnv("PARRHESIA_ROOM_SERVER_URL", "http://localhost:8080"),
		WebSocketURL:  getEnv("PARRHESIA_WS_URL", "ws://localhost:8080/ws"),
		IdentityPath:  getEnv("PARRHESIA_IDENTITY_PATH", "./parrhesia-identity.json"),
		TofuPath:      getEnv("PARRHESIA_TOFU_PATH", "./parrhesia-tofu.json"),
		HistoryPath:   getEnv("PARRHESIA_HISTORY_PATH", "./parrhesia-history.json"),
		Password:      getEnv("PARRHESIA_PASSWORD", ""),
		DebugPort:     getEnv("PARRHESIA_DEBUG_PORT", "8081"),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
