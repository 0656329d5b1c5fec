package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v2"

	"github.com/michaelpento.lv/dexarb/audit"
	"github.com/michaelpento.lv/dexarb/gas"
	"github.com/michaelpento.lv/dexarb/ledger"
	"github.com/michaelpento.lv/dexarb/types"
	"github.com/michaelpento.lv/dexarb/utils"
)

const gwei = 9

type Config struct {
	// Chain and network settings
	RPCEndpoint         string          `yaml:"rpc_endpoint"`
	ChainID             uint64          `yaml:"chain_id"`
	PrivateKey          string          `yaml:"-"`
	ConfirmationTimeout time.Duration   `yaml:"confirmation_timeout"`
	RPCRateLimit        RateLimitConfig `yaml:"rpc_rate_limit"`

	// Trading pair and venues
	TokenA    TokenConfig `yaml:"token_a"`
	TokenB    TokenConfig `yaml:"token_b"`
	Uniswap   VenueConfig `yaml:"uniswap"`
	Sushiswap VenueConfig `yaml:"sushiswap"`

	// Arbitrage settings
	Amount   string        `yaml:"amount"`
	Interval time.Duration `yaml:"interval"` // zero runs a single cycle
	Gas      GasConfig     `yaml:"gas"`

	// Bootstrap settings
	MintA string `yaml:"mint_a"`
	MintB string `yaml:"mint_b"`

	// Outputs
	AuditLog    string `yaml:"audit_log"`
	MetricsAddr string `yaml:"metrics_addr"`
}

type TokenConfig struct {
	Symbol  string `yaml:"symbol"`
	Address string `yaml:"address"`
}

type VenueConfig struct {
	Name   string `yaml:"name"`
	Router string `yaml:"router"`
	Pair   string `yaml:"pair"`

	// Bootstrap liquidity and price, in whole tokens
	LiquidityA string `yaml:"liquidity_a"`
	LiquidityB string `yaml:"liquidity_b"`
	Price      string `yaml:"price"`
}

type GasConfig struct {
	// Prices in gwei. An empty PriceGwei uses the node's suggestion.
	PriceGwei    string            `yaml:"price_gwei"`
	MaxPriceGwei string            `yaml:"max_price_gwei"`
	Limits       map[string]uint64 `yaml:"limits"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size"`
}

func DefaultConfig() *Config {
	return &Config{
		ConfirmationTimeout: 2 * time.Minute,
		RPCRateLimit: RateLimitConfig{
			RequestsPerSecond: 10,
			BurstSize:         20,
		},
		TokenA:    TokenConfig{Symbol: "WETH"},
		TokenB:    TokenConfig{Symbol: "DAI"},
		Uniswap:   VenueConfig{Name: "Uniswap", LiquidityA: "3000", LiquidityB: "3600000", Price: "1200"},
		Sushiswap: VenueConfig{Name: "Sushiswap", LiquidityA: "1000", LiquidityB: "1000000", Price: "1000"},
		Amount:    "1",
		MintA:     "40000",
		MintB:     "40000000",
		AuditLog:  audit.DefaultPath,
	}
}

// LoadConfig reads the optional YAML file at cfgFile, then the .env file,
// then overrides from the environment
func LoadConfig(cfgFile string) (*Config, error) {
	cfg := DefaultConfig()

	if cfgFile != "" {
		raw, err := os.ReadFile(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.UnmarshalStrict(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	if err := LoadEnv(); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	overrides := map[string]*string{
		EnvRPCURL:          &c.RPCEndpoint,
		EnvPrivateKey:      &c.PrivateKey,
		EnvUniswapRouter:   &c.Uniswap.Router,
		EnvSushiswapRouter: &c.Sushiswap.Router,
		EnvUniswapPair:     &c.Uniswap.Pair,
		EnvSushiswapPair:   &c.Sushiswap.Pair,
		EnvTokenA:          &c.TokenA.Address,
		EnvTokenB:          &c.TokenB.Address,
	}
	for key, field := range overrides {
		*field = GetEnvWithDefault(key, *field)
	}

	if v := os.Getenv(EnvChainID); v != "" {
		var id uint64
		if _, err := fmt.Sscan(v, &id); err != nil {
			return fmt.Errorf("%w: %s=%q is not a chain id", types.ErrInvalidConfiguration, EnvChainID, v)
		}
		c.ChainID = id
	}
	return nil
}

// Validate reports every configuration problem at once. It performs no
// network calls.
func (c *Config) Validate() error {
	var problems []string
	add := func(err error) {
		if err != nil {
			problems = append(problems, strings.TrimPrefix(err.Error(), types.ErrInvalidConfiguration.Error()+": "))
		}
	}

	if c.RPCEndpoint == "" {
		problems = append(problems, EnvRPCURL+" must be specified")
	}
	if _, err := c.privateKey(); err != nil {
		add(err)
	}

	addresses := []struct{ name, value string }{
		{EnvTokenA, c.TokenA.Address},
		{EnvTokenB, c.TokenB.Address},
		{EnvUniswapRouter, c.Uniswap.Router},
		{EnvSushiswapRouter, c.Sushiswap.Router},
		{EnvUniswapPair, c.Uniswap.Pair},
		{EnvSushiswapPair, c.Sushiswap.Pair},
	}
	for _, a := range addresses {
		_, err := types.ParseAddress(a.name, a.value)
		add(err)
	}
	if strings.EqualFold(c.TokenA.Address, c.TokenB.Address) && c.TokenA.Address != "" {
		problems = append(problems, "token_a and token_b must differ")
	}

	if amount, err := c.AmountIn(); err != nil {
		add(err)
	} else if amount.Sign() <= 0 {
		problems = append(problems, "amount must be positive")
	}
	if _, err := c.GasConfig(); err != nil {
		add(err)
	}

	if c.ConfirmationTimeout <= 0 {
		problems = append(problems, "confirmation_timeout must be positive")
	}
	if c.Interval < 0 {
		problems = append(problems, "interval must not be negative")
	}
	if c.RPCRateLimit.RequestsPerSecond < 0 || c.RPCRateLimit.BurstSize < 0 {
		problems = append(problems, "rpc_rate_limit must not be negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", types.ErrInvalidConfiguration, strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) privateKey() (string, error) {
	key := strings.TrimPrefix(c.PrivateKey, "0x")
	if key == "" {
		return "", fmt.Errorf("%w: %s must be specified", types.ErrInvalidConfiguration, EnvPrivateKey)
	}
	if _, err := crypto.HexToECDSA(key); err != nil {
		return "", fmt.Errorf("%w: %s is not a valid key", types.ErrInvalidConfiguration, EnvPrivateKey)
	}
	return key, nil
}

// LedgerContext builds the connection settings for ledger.Dial
func (c *Config) LedgerContext() (ledger.Context, error) {
	key, err := c.privateKey()
	if err != nil {
		return ledger.Context{}, err
	}
	pk, err := crypto.HexToECDSA(key)
	if err != nil {
		return ledger.Context{}, fmt.Errorf("%w: %s", types.ErrInvalidConfiguration, EnvPrivateKey)
	}

	lctx := ledger.Context{
		Endpoint:            c.RPCEndpoint,
		PrivateKey:          pk,
		ConfirmationTimeout: c.ConfirmationTimeout,
		RateLimit:           rate.Inf,
		Burst:               c.RPCRateLimit.BurstSize,
	}
	if c.ChainID != 0 {
		lctx.ChainID = new(big.Int).SetUint64(c.ChainID)
	}
	if c.RPCRateLimit.RequestsPerSecond > 0 {
		lctx.RateLimit = rate.Limit(c.RPCRateLimit.RequestsPerSecond)
	}
	if lctx.Burst <= 0 {
		lctx.Burst = 1
	}
	return lctx, nil
}

// Tokens returns the validated trading pair
func (c *Config) Tokens() (types.Token, types.Token, error) {
	a, err := c.token(EnvTokenA, c.TokenA)
	if err != nil {
		return types.Token{}, types.Token{}, err
	}
	b, err := c.token(EnvTokenB, c.TokenB)
	if err != nil {
		return types.Token{}, types.Token{}, err
	}
	return a, b, nil
}

func (c *Config) token(name string, tc TokenConfig) (types.Token, error) {
	addr, err := types.ParseAddress(name, tc.Address)
	if err != nil {
		return types.Token{}, err
	}
	symbol := tc.Symbol
	if symbol == "" {
		symbol = name
	}
	return types.NewToken(symbol, addr)
}

// Venues returns the validated uniswap and sushiswap venues
func (c *Config) Venues() (types.Venue, types.Venue, error) {
	uni, err := venue(c.Uniswap, EnvUniswapRouter, EnvUniswapPair)
	if err != nil {
		return types.Venue{}, types.Venue{}, err
	}
	sushi, err := venue(c.Sushiswap, EnvSushiswapRouter, EnvSushiswapPair)
	if err != nil {
		return types.Venue{}, types.Venue{}, err
	}
	return uni, sushi, nil
}

func venue(vc VenueConfig, routerName, pairName string) (types.Venue, error) {
	router, err := types.ParseAddress(routerName, vc.Router)
	if err != nil {
		return types.Venue{}, err
	}
	pair, err := types.ParseAddress(pairName, vc.Pair)
	if err != nil {
		return types.Venue{}, err
	}
	return types.NewVenue(vc.Name, router, pair)
}

// AmountIn returns the per-trade input amount in base units
func (c *Config) AmountIn() (*big.Int, error) {
	return parseAmount("amount", c.Amount, types.TokenDecimals)
}

// GasConfig converts the gas section for gas.NewEstimator
func (c *Config) GasConfig() (gas.Config, error) {
	cfg := gas.Config{Limits: make(map[gas.Operation]uint64)}

	if c.Gas.PriceGwei != "" {
		price, err := parseAmount("gas.price_gwei", c.Gas.PriceGwei, gwei)
		if err != nil {
			return gas.Config{}, err
		}
		cfg.GasPrice = price
	}
	if c.Gas.MaxPriceGwei != "" {
		price, err := parseAmount("gas.max_price_gwei", c.Gas.MaxPriceGwei, gwei)
		if err != nil {
			return gas.Config{}, err
		}
		cfg.MaxGasPrice = price
	}

	for op, limit := range c.Gas.Limits {
		if _, ok := gas.DefaultLimits[gas.Operation(op)]; !ok {
			return gas.Config{}, fmt.Errorf("%w: unknown gas operation %q", types.ErrInvalidConfiguration, op)
		}
		cfg.Limits[gas.Operation(op)] = limit
	}
	return cfg, nil
}

// VenueFunding is the bootstrap liquidity and price of one venue in base units
type VenueFunding struct {
	LiquidityA *big.Int
	LiquidityB *big.Int
	Price      *big.Int
}

// Funding parses the bootstrap amounts for vc
func (c *Config) Funding(vc VenueConfig) (VenueFunding, error) {
	var (
		f    VenueFunding
		err  error
		errs []error
	)
	if f.LiquidityA, err = parseAmount(vc.Name+".liquidity_a", vc.LiquidityA, types.TokenDecimals); err != nil {
		errs = append(errs, err)
	}
	if f.LiquidityB, err = parseAmount(vc.Name+".liquidity_b", vc.LiquidityB, types.TokenDecimals); err != nil {
		errs = append(errs, err)
	}
	if f.Price, err = parseAmount(vc.Name+".price", vc.Price, types.TokenDecimals); err != nil {
		errs = append(errs, err)
	}
	return f, errors.Join(errs...)
}

// Mints parses the bootstrap mint amounts
func (c *Config) Mints() (*big.Int, *big.Int, error) {
	a, err := parseAmount("mint_a", c.MintA, types.TokenDecimals)
	if err != nil {
		return nil, nil, err
	}
	b, err := parseAmount("mint_b", c.MintB, types.TokenDecimals)
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

func parseAmount(name, value string, decimals int32) (*big.Int, error) {
	amount, err := utils.ParseUnits(value, decimals)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", types.ErrInvalidConfiguration, name, err)
	}
	return amount, nil
}
