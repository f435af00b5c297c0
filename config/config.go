package config

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"nftmarketplace-onchain/model"
)

// Secret は秘密鍵などの機密文字列。ログやフォーマット出力では伏せ字になる
type Secret string

const redacted = "[REDACTED]"

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

func (s Secret) GoString() string { return s.String() }

// LogValue は構造化ログ (slog) 出力時に値を伏せる
func (s Secret) LogValue() slog.Value { return slog.StringValue(s.String()) }

// Reveal は生の値を返す。署名鍵の読み込みとAPIトークンの照合以外で使わないこと
func (s Secret) Reveal() string { return string(s) }

// Config はプロセス全体の設定。起動時に1度だけ読み込み、以後変更しない
type Config struct {
	Endpoint        string // JSON-RPCエンドポイント (http/https/ws/wss)
	PrivateKey      Secret // 16進の秘密鍵
	PrivateKeyFile  string // 秘密鍵を格納したファイル (PrivateKey が空の場合)
	ContractAddress string
	ABIFile         string // 空なら組み込みのJaguarPlace ABI
	TokenAddress    string // buyWithToken で使うERC-20 (任意)

	JournalPath    string
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
	Confirmations  uint64
	GasLimit       uint64
	AutoApprove    bool

	// HTTP API (serve)
	ListenHost     string   // 既定は 127.0.0.1
	Port           string
	APIToken       Secret   // POST に必要な Bearer トークン
	AllowedOrigins []string // CORSで許可するオリジン。空ならクロスオリジンを許可しない
}

// minAPITokenLen は API_TOKEN に求める最低の長さ
const minAPITokenLen = 16

// Load は環境変数から設定を読み込む
func Load() (*Config, error) {
	cfg := &Config{
		Endpoint:        os.Getenv("RPC_URL"),
		PrivateKey:      Secret(os.Getenv("PRIVATE_KEY")),
		PrivateKeyFile:  os.Getenv("PRIVATE_KEY_FILE"),
		ContractAddress: os.Getenv("MARKETPLACE_CONTRACT_ADDRESS"),
		ABIFile:         os.Getenv("MARKETPLACE_ABI_FILE"),
		TokenAddress:    os.Getenv("PAYMENT_TOKEN_ADDRESS"),
		JournalPath:     os.Getenv("JOURNAL_PATH"),
		ListenHost:      os.Getenv("LISTEN_HOST"),
		Port:            os.Getenv("PORT"),
		APIToken:        Secret(os.Getenv("API_TOKEN")),
		AllowedOrigins:  splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
		PollInterval:    2 * time.Second,
		Confirmations:   1,
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = os.Getenv("INFURA_SEPOLIA_URL")
	}
	if cfg.ListenHost == "" {
		cfg.ListenHost = "127.0.0.1"
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}

	var err error
	if cfg.ConfirmTimeout, err = envDuration("CONFIRM_TIMEOUT", 0); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = envDuration("POLL_INTERVAL", cfg.PollInterval); err != nil {
		return nil, err
	}
	if cfg.Confirmations, err = envUint("CONFIRMATIONS", cfg.Confirmations); err != nil {
		return nil, err
	}
	if cfg.GasLimit, err = envUint("GAS_LIMIT", 0); err != nil {
		return nil, err
	}
	if v := os.Getenv("AUTO_APPROVE"); v != "" {
		if cfg.AutoApprove, err = strconv.ParseBool(v); err != nil {
			return nil, configErr("AUTO_APPROVE: %v", err)
		}
	}
	return cfg, nil
}

func envDuration(name string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, configErr("%s: %v", name, err)
	}
	return d, nil
}

func envUint(name string, def uint64) (uint64, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, configErr("%s: %v", name, err)
	}
	return n, nil
}

// splitList はカンマ区切りの値を空要素を除いて分割する
func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func configErr(format string, args ...interface{}) error {
	return model.ConfigError("config", format, args...)
}

// Validate はネットワークに触れる前に設定の不備を検出する
func (c *Config) Validate(requireKey bool) error {
	var errs []error
	if c.Endpoint == "" {
		errs = append(errs, errors.New("RPC endpoint is not set (RPC_URL or INFURA_SEPOLIA_URL)"))
	} else if !validEndpoint(c.Endpoint) {
		errs = append(errs, fmt.Errorf("malformed RPC endpoint %q", c.Endpoint))
	}
	if !common.IsHexAddress(c.ContractAddress) {
		errs = append(errs, fmt.Errorf("MARKETPLACE_CONTRACT_ADDRESS is missing or malformed: %q", c.ContractAddress))
	}
	if c.TokenAddress != "" && !common.IsHexAddress(c.TokenAddress) {
		errs = append(errs, fmt.Errorf("PAYMENT_TOKEN_ADDRESS is malformed: %q", c.TokenAddress))
	}
	if c.ABIFile != "" {
		if _, err := os.Stat(c.ABIFile); err != nil {
			errs = append(errs, fmt.Errorf("ABI file: %v", err))
		}
	}
	if requireKey {
		if _, err := c.Key(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll interval must be positive"))
	}
	if c.ConfirmTimeout < 0 {
		errs = append(errs, fmt.Errorf("confirm timeout must not be negative"))
	}
	if len(errs) > 0 {
		return &model.CallError{Kind: model.ErrConfiguration, Operation: "config", Err: errors.Join(errs...)}
	}
	return nil
}

// ValidateServe はHTTP APIを公開する前に認証とCORSの設定を検証する
func (c *Config) ValidateServe() error {
	var errs []error
	if len(c.APIToken.Reveal()) < minAPITokenLen {
		errs = append(errs, fmt.Errorf("API_TOKEN must be set to at least %d characters to serve the HTTP API", minAPITokenLen))
	}
	for _, origin := range c.AllowedOrigins {
		if origin == "*" {
			errs = append(errs, errors.New("CORS_ALLOWED_ORIGINS must list origins explicitly, not \"*\""))
			continue
		}
		if u, err := url.Parse(origin); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, fmt.Errorf("malformed CORS origin %q", origin))
		}
	}
	if c.Port == "" {
		errs = append(errs, errors.New("listen port is not set"))
	}
	if len(errs) > 0 {
		return &model.CallError{Kind: model.ErrConfiguration, Operation: "config", Err: errors.Join(errs...)}
	}
	return nil
}

// validEndpoint は ethclient.Dial が扱える形式かを判定する
func validEndpoint(endpoint string) bool {
	if strings.HasSuffix(endpoint, ".ipc") {
		return true
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return false
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
		return true
	}
	return false
}

// Key は署名用の秘密鍵を読み込む
func (c *Config) Key() (*ecdsa.PrivateKey, error) {
	raw := c.PrivateKey.Reveal()
	if raw == "" && c.PrivateKeyFile != "" {
		data, err := os.ReadFile(c.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read private key file: %w", err)
		}
		raw = string(data)
	}
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if raw == "" {
		return nil, errors.New("private key is not set (PRIVATE_KEY or PRIVATE_KEY_FILE)")
	}
	key, err := crypto.HexToECDSA(raw)
	if err != nil {
		// 鍵の内容をエラーに含めない
		return nil, errors.New("private key is malformed")
	}
	return key, nil
}

// ABI は使用するABI JSONを返す。ファイル未指定なら def
func (c *Config) ABI(def string) (string, error) {
	if c.ABIFile == "" {
		return def, nil
	}
	data, err := os.ReadFile(c.ABIFile)
	if err != nil {
		return "", configErr("read ABI file: %v", err)
	}
	return string(data), nil
}
