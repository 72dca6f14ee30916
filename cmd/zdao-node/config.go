package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/zdao/zdao-node/internal"
)

const (
	defaultAPIHost         = "0.0.0.0"
	defaultAPIPort         = 9090
	defaultLogLevel        = "info"
	defaultLogOutput       = "stdout"
	defaultDatadir         = ".zdao" // Will be prefixed with user's home directory
	defaultChainID         = 11155111
	defaultContractAddr    = "0xC6831B0F3a4F745F5875137a57a37585BCF31F20"
	defaultVerifierAddr    = "0xb6E160B1ff80D67Bfe90A85eE06Ce0A2613607D1"
	defaultRelayerURL      = "https://relayer.testnet.zama.cloud"
	defaultRelayerTimeout  = 30 * time.Second
	defaultMonitorInterval = 30 * time.Second
	defaultSettleDelay     = 3 * time.Second
)

// Config holds the application configuration
type Config struct {
	Web3    Web3Config
	Relayer RelayerConfig
	API     APIConfig
	Log     LogConfig
	Tally   TallyConfig
	Datadir string
}

// Web3Config holds Ethereum-related configuration
type Web3Config struct {
	PrivKey  string `mapstructure:"privkey"`
	Rpc      string `mapstructure:"rpc"`
	ChainID  int64  `mapstructure:"chainid"`
	Contract string `mapstructure:"contract"`
}

// RelayerConfig holds the confidential compute relayer configuration
type RelayerConfig struct {
	URL      string        `mapstructure:"url"`
	Verifier string        `mapstructure:"verifier"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// APIConfig holds the API-specific configuration
type APIConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Output string `mapstructure:"output"`
}

// TallyConfig holds reveal and reconciliation configuration
type TallyConfig struct {
	SettleDelay     time.Duration `mapstructure:"settledelay"`
	MismatchPolicy  string        `mapstructure:"mismatchpolicy"`
	MonitorInterval time.Duration `mapstructure:"monitorinterval"`
}

// loadConfig loads configuration from flags, environment variables, and defaults
func loadConfig() (*Config, error) {
	v := viper.New()

	// Get user's home directory for default datadir
	userHomeDir, err := os.UserHomeDir()
	if err != nil {
		userHomeDir = "."
	}
	defaultDatadirPath := filepath.Join(userHomeDir, defaultDatadir)

	v.SetDefault("web3.chainid", defaultChainID)
	v.SetDefault("web3.contract", defaultContractAddr)
	v.SetDefault("relayer.url", defaultRelayerURL)
	v.SetDefault("relayer.verifier", defaultVerifierAddr)
	v.SetDefault("relayer.timeout", defaultRelayerTimeout)
	v.SetDefault("api.host", defaultAPIHost)
	v.SetDefault("api.port", defaultAPIPort)
	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("log.output", defaultLogOutput)
	v.SetDefault("tally.settledelay", defaultSettleDelay)
	v.SetDefault("tally.mismatchpolicy", "observe")
	v.SetDefault("tally.monitorinterval", defaultMonitorInterval)
	v.SetDefault("datadir", defaultDatadirPath)

	// Configure flags
	flag.StringP("web3.privkey", "k", "", "private key to use for the Ethereum account (required)")
	flag.StringP("web3.rpc", "w", "", "web3 rpc endpoint (required)")
	flag.Int64("web3.chainid", defaultChainID, "chain ID the voting contract is deployed on")
	flag.StringP("web3.contract", "c", defaultContractAddr, "voting contract address")
	flag.StringP("relayer.url", "r", defaultRelayerURL, "confidential compute relayer base URL")
	flag.String("relayer.verifier", defaultVerifierAddr, "decryption verifier contract address")
	flag.Duration("relayer.timeout", defaultRelayerTimeout, "HTTP timeout for relayer requests")
	flag.StringP("api.host", "a", defaultAPIHost, "API host")
	flag.IntP("api.port", "p", defaultAPIPort, "API port")
	flag.StringP("log.level", "l", defaultLogLevel, "log level (debug, info, warn, error, fatal)")
	flag.StringP("log.output", "o", defaultLogOutput, "log output (stdout, stderr or filepath)")
	flag.Duration("tally.settledelay", defaultSettleDelay, "pause between publishing counts and re-reading them")
	flag.String("tally.mismatchpolicy", "observe", "tally mismatch policy (observe or resubmit)")
	flag.Duration("tally.monitorinterval", defaultMonitorInterval, "proposal monitor polling interval")
	flag.StringP("datadir", "d", defaultDatadirPath, "data directory for the decryption cache database")

	// Configure usage information
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "zdao-node v%s\n\n", internal.Version)
		fmt.Fprintf(os.Stderr, "Usage: zdao-node [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment variables are also available with the same name as flags,\n")
		fmt.Fprintf(os.Stderr, "  except for dashes (-) and dots (.) which are replaced by underscores (_).\n")
		fmt.Fprintf(os.Stderr, "  For example, ZDAO_WEB3_PRIVKEY or ZDAO_API_HOST\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Start against sepolia with the default contract\n")
		fmt.Fprintf(os.Stderr, "  zdao-node --web3.privkey=0x123... --web3.rpc=https://rpc.sepolia.org\n\n")
		fmt.Fprintf(os.Stderr, "  # Start with a custom contract and resubmit policy\n")
		fmt.Fprintf(os.Stderr, "  zdao-node --web3.privkey=0x123... --web3.rpc=https://rpc.sepolia.org --web3.contract=0x456... --tally.mismatchpolicy=resubmit\n")
	}

	// Parse flags
	flag.CommandLine.SortFlags = false
	flag.Parse()

	// Configure Viper to use environment variables
	v.SetEnvPrefix("ZDAO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind flags to Viper
	if err := v.BindPFlags(flag.CommandLine); err != nil {
		return nil, fmt.Errorf("error binding flags: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return cfg, nil
}

// validateConfig validates the loaded configuration
func validateConfig(cfg *Config) error {
	if cfg.Web3.PrivKey == "" {
		return fmt.Errorf("private key is required (use --web3.privkey flag or ZDAO_WEB3_PRIVKEY environment variable)")
	}
	if cfg.Web3.Rpc == "" {
		return fmt.Errorf("web3 rpc endpoint is required (use --web3.rpc flag or ZDAO_WEB3_RPC environment variable)")
	}
	if !common.IsHexAddress(cfg.Web3.Contract) {
		return fmt.Errorf("invalid contract address %q", cfg.Web3.Contract)
	}
	if !common.IsHexAddress(cfg.Relayer.Verifier) {
		return fmt.Errorf("invalid verifier address %q", cfg.Relayer.Verifier)
	}
	if cfg.Tally.MismatchPolicy != "observe" && cfg.Tally.MismatchPolicy != "resubmit" {
		return fmt.Errorf("invalid mismatch policy %q, must be observe or resubmit", cfg.Tally.MismatchPolicy)
	}
	return nil
}
