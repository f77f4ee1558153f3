// Package secrets supplies the two pieces of sensitive configuration the
// rest of the module needs at composition-root wiring time: the risk
// blacklist and the broker's API credentials. Grounded on the teacher's
// internal/config/secrets.go HashiCorp Vault section (same SDK client
// construction, same KV-v2-aware path handling, same token/auth-method
// switch), generalized from the teacher's fixed database/redis/exchange/
// LLM secret names to this module's own two consumers, with a plain
// environment-variable fallback when Vault is disabled — the same
// fallback the teacher's LoadSecretsFromVault leaves in place when
// cfg.Enabled is false.
package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"

	vault "github.com/hashicorp/vault/api"
	"github.com/rs/zerolog/log"
)

// Config mirrors the teacher's VaultConfig shape.
type Config struct {
	Enabled    bool
	Address    string
	Token      string
	AuthMethod string // "token" (default), "kubernetes", "approle"
	MountPath  string // default "secret"
	SecretPath string // e.g. "warroom/production"
	Namespace  string
}

// BrokerCredentials is the API key/secret pair for authenticating against
// a real venue. internal/broker has no live-venue adapter that reads it.
type BrokerCredentials struct {
	APIKey    string
	APISecret string
}

// Provider resolves the blacklist and broker credentials, either from
// Vault (when Config.Enabled) or from environment variables.
type Provider struct {
	cfg    Config
	client *vault.Client
}

// New builds a Provider. When cfg.Enabled is false the returned Provider
// only ever reads from the environment, matching the teacher's "Vault
// integration disabled - using environment variables for secrets" path.
func New(cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		log.Info().Msg("secrets: vault integration disabled, reading from environment")
		return &Provider{cfg: cfg}, nil
	}

	vaultCfg := vault.DefaultConfig()
	vaultCfg.Address = cfg.Address
	client, err := vault.NewClient(vaultCfg)
	if err != nil {
		return nil, fmt.Errorf("secrets: create vault client: %w", err)
	}
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	switch cfg.AuthMethod {
	case "token", "":
		token := cfg.Token
		if token == "" {
			token = os.Getenv("VAULT_TOKEN")
		}
		if token == "" {
			return nil, fmt.Errorf("secrets: VAULT_TOKEN not set for token authentication")
		}
		client.SetToken(token)
	case "kubernetes":
		if err := authenticateKubernetes(client, cfg); err != nil {
			return nil, fmt.Errorf("secrets: kubernetes authentication failed: %w", err)
		}
	case "approle":
		if err := authenticateAppRole(client, cfg); err != nil {
			return nil, fmt.Errorf("secrets: approle authentication failed: %w", err)
		}
	default:
		return nil, fmt.Errorf("secrets: unsupported vault auth method %q", cfg.AuthMethod)
	}

	if cfg.MountPath == "" {
		cfg.MountPath = "secret"
	}

	log.Info().Str("address", cfg.Address).Str("auth_method", cfg.AuthMethod).Str("secret_path", cfg.SecretPath).Msg("secrets: vault client initialized")
	return &Provider{cfg: cfg, client: client}, nil
}

// Blacklist returns the tickers the Order Validator's blacklist rule
// (spec §4.4) must reject, sourced from Vault's "blacklist" secret (a
// comma-separated "tickers" value) or, failing that, WARROOM_BLACKLIST.
func (p *Provider) Blacklist(ctx context.Context) ([]string, error) {
	if p.client != nil {
		data, err := p.getSecret(ctx, "blacklist")
		if err != nil {
			log.Warn().Err(err).Msg("secrets: failed to load blacklist from vault, falling back to environment")
		} else if raw, ok := data["tickers"].(string); ok {
			return splitCSV(raw), nil
		}
	}
	return splitCSV(os.Getenv("WARROOM_BLACKLIST")), nil
}

// BrokerCredentials returns the broker API key/secret, sourced from
// Vault's "broker" secret or WARROOM_BROKER_API_KEY/WARROOM_BROKER_API_SECRET.
func (p *Provider) BrokerCredentials(ctx context.Context) (BrokerCredentials, error) {
	if p.client != nil {
		data, err := p.getSecret(ctx, "broker")
		if err != nil {
			log.Warn().Err(err).Msg("secrets: failed to load broker credentials from vault, falling back to environment")
		} else {
			key, _ := data["api_key"].(string)
			secret, _ := data["api_secret"].(string)
			if key != "" {
				return BrokerCredentials{APIKey: key, APISecret: secret}, nil
			}
		}
	}
	return BrokerCredentials{
		APIKey:    os.Getenv("WARROOM_BROKER_API_KEY"),
		APISecret: os.Getenv("WARROOM_BROKER_API_SECRET"),
	}, nil
}

// getSecret reads path relative to cfg.SecretPath, KV-v2 aware exactly
// like the teacher's VaultClient.GetSecret.
func (p *Provider) getSecret(ctx context.Context, path string) (map[string]interface{}, error) {
	fullPath := fmt.Sprintf("%s/data/%s/%s", p.cfg.MountPath, p.cfg.SecretPath, path)
	secret, err := p.client.Logical().ReadWithContext(ctx, fullPath)
	if err != nil {
		return nil, fmt.Errorf("secrets: read %s: %w", fullPath, err)
	}
	if secret == nil {
		return nil, fmt.Errorf("secrets: nothing found at %s", fullPath)
	}
	if data, ok := secret.Data["data"].(map[string]interface{}); ok {
		return data, nil
	}
	return secret.Data, nil
}

func authenticateKubernetes(client *vault.Client, cfg Config) error {
	jwt, err := os.ReadFile("/var/run/secrets/kubernetes.io/serviceaccount/token")
	if err != nil {
		return fmt.Errorf("read service account token: %w", err)
	}
	role := os.Getenv("VAULT_K8S_ROLE")
	resp, err := client.Logical().Write("auth/kubernetes/login", map[string]interface{}{
		"jwt":  string(jwt),
		"role": role,
	})
	if err != nil {
		return err
	}
	if resp == nil || resp.Auth == nil {
		return fmt.Errorf("no auth info returned from kubernetes login")
	}
	client.SetToken(resp.Auth.ClientToken)
	return nil
}

func authenticateAppRole(client *vault.Client, cfg Config) error {
	roleID := os.Getenv("VAULT_ROLE_ID")
	secretID := os.Getenv("VAULT_SECRET_ID")
	if roleID == "" || secretID == "" {
		return fmt.Errorf("VAULT_ROLE_ID/VAULT_SECRET_ID not set")
	}
	resp, err := client.Logical().Write("auth/approle/login", map[string]interface{}{
		"role_id":   roleID,
		"secret_id": secretID,
	})
	if err != nil {
		return err
	}
	if resp == nil || resp.Auth == nil {
		return fmt.Errorf("no auth info returned from approle login")
	}
	client.SetToken(resp.Auth.ClientToken)
	return nil
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
