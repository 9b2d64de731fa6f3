// Package vault loads API secrets from HashiCorp Vault at boot.
package vault

import (
	"context"
	"fmt"

	vaultapi "github.com/hashicorp/vault/api"

	"trading-advisor-bot/config"
	"trading-advisor-bot/internal/logging"
)

// Secrets are the keys the service may load from Vault. Empty fields mean
// the key was absent; env/config values stay in effect.
type Secrets struct {
	TelegramBotToken string
	LLMAPIKey        string
	BinanceAPIKey    string
	BybitAPIKey      string
}

// Client reads the KV v2 secret holding the service credentials.
type Client struct {
	api        *vaultapi.Client
	mountPath  string
	secretPath string
	logger     *logging.Logger
}

// NewClient connects to Vault. Returns nil when Vault is disabled.
func NewClient(cfg config.VaultConfig, logger *logging.Logger) (*Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if logger == nil {
		logger = logging.WithComponent("vault")
	}

	apiCfg := vaultapi.DefaultConfig()
	apiCfg.Address = cfg.Address

	client, err := vaultapi.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	mountPath := cfg.MountPath
	if mountPath == "" {
		mountPath = "secret"
	}

	return &Client{
		api:        client,
		mountPath:  mountPath,
		secretPath: cfg.SecretPath,
		logger:     logger,
	}, nil
}

// LoadSecrets reads the configured secret path.
func (c *Client) LoadSecrets(ctx context.Context) (*Secrets, error) {
	kv := c.api.KVv2(c.mountPath)
	secret, err := kv.Get(ctx, c.secretPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read vault secret %s/%s: %w", c.mountPath, c.secretPath, err)
	}

	get := func(key string) string {
		if v, ok := secret.Data[key].(string); ok {
			return v
		}
		return ""
	}

	s := &Secrets{
		TelegramBotToken: get("telegram_bot_token"),
		LLMAPIKey:        get("llm_api_key"),
		BinanceAPIKey:    get("binance_api_key"),
		BybitAPIKey:      get("bybit_api_key"),
	}
	c.logger.Info("vault secrets loaded", "path", c.secretPath)
	return s, nil
}

// Apply overlays loaded secrets onto the config, leaving unset keys alone.
func (s *Secrets) Apply(cfg *config.Config) {
	if s == nil {
		return
	}
	if s.TelegramBotToken != "" {
		cfg.TelegramConfig.BotToken = s.TelegramBotToken
	}
	if s.LLMAPIKey != "" {
		cfg.LLMConfig.APIKey = s.LLMAPIKey
	}
	if s.BinanceAPIKey != "" {
		cfg.ExchangeConfig.BinanceAPIKey = s.BinanceAPIKey
	}
	if s.BybitAPIKey != "" {
		cfg.ExchangeConfig.BybitAPIKey = s.BybitAPIKey
	}
}
