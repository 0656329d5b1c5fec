package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables
const (
	EnvRPCURL          = "INFURA_URL"
	EnvPrivateKey      = "PRIVATE_KEY"
	EnvChainID         = "CHAIN_ID"
	EnvUniswapRouter   = "UNISWAP_ROUTER"
	EnvSushiswapRouter = "SUSHISWAP_ROUTER"
	EnvUniswapPair     = "UNISWAP_PAIR"
	EnvSushiswapPair   = "SUSHISWAP_PAIR"
	EnvTokenA          = "TOKEN_A"
	EnvTokenB          = "TOKEN_B"
)

// LoadEnv loads environment variables from the .env file, if present.
// Variables already set in the environment win.
func LoadEnv(files ...string) error {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// GetEnvWithDefault gets an environment variable with a default value
func GetEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
