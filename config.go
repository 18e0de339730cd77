package identity

import (
	"time"

	"github.com/caarlos0/env/v11"
	goerrors "github.com/goliatone/go-errors"
	"github.com/joho/godotenv"
)

// EnvConfig is a Config implementation loaded from the environment.
type EnvConfig struct {
	SigningKey                string        `env:"AUTH_SIGNING_KEY"`
	SigningMethod             string        `env:"AUTH_SIGNING_METHOD" envDefault:"HS256"`
	ContextKey                string        `env:"AUTH_CONTEXT_KEY" envDefault:"user"`
	TokenExpiration           int           `env:"AUTH_TOKEN_EXPIRATION" envDefault:"24"`
	ExtendedTokenDuration     int           `env:"AUTH_EXTENDED_TOKEN_DURATION" envDefault:"168"`
	TokenLookup               string        `env:"AUTH_TOKEN_LOOKUP" envDefault:"header:Authorization,cookie:jwt"`
	AuthScheme                string        `env:"AUTH_SCHEME" envDefault:"Bearer"`
	Issuer                    string        `env:"AUTH_ISSUER"`
	Audience                  []string      `env:"AUTH_AUDIENCE" envSeparator:","`
	RejectedRouteKey          string        `env:"AUTH_REJECTED_ROUTE_KEY" envDefault:"rejected_route"`
	RejectedRouteDefault      string        `env:"AUTH_REJECTED_ROUTE_DEFAULT" envDefault:"/"`
	PasswordHashCost          int           `env:"AUTH_PASSWORD_HASH_COST" envDefault:"14"`
	PasswordResetTokenTTL     time.Duration `env:"AUTH_PASSWORD_RESET_TOKEN_TTL" envDefault:"48h"`
	EmailVerificationTokenTTL time.Duration `env:"AUTH_EMAIL_VERIFICATION_TOKEN_TTL" envDefault:"48h"`
}

var _ Config = (*EnvConfig)(nil)

// LoadConfigFromEnv reads configuration from the environment, loading .env
// files first when present. A missing .env file is not an error.
func LoadConfigFromEnv(filenames ...string) (*EnvConfig, error) {
	_ = godotenv.Load(filenames...)

	cfg := &EnvConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to parse auth configuration")
	}

	if cfg.SigningKey == "" {
		return nil, goerrors.New("AUTH_SIGNING_KEY is required", goerrors.CategoryOperation)
	}

	return cfg, nil
}

func (c *EnvConfig) GetSigningKey() string    { return c.SigningKey }
func (c *EnvConfig) GetSigningMethod() string { return c.SigningMethod }
func (c *EnvConfig) GetContextKey() string    { return c.ContextKey }

func (c *EnvConfig) GetTokenExpiration() int       { return c.TokenExpiration }
func (c *EnvConfig) GetExtendedTokenDuration() int { return c.ExtendedTokenDuration }

func (c *EnvConfig) GetTokenLookup() string { return c.TokenLookup }
func (c *EnvConfig) GetAuthScheme() string  { return c.AuthScheme }
func (c *EnvConfig) GetIssuer() string      { return c.Issuer }
func (c *EnvConfig) GetAudience() []string  { return c.Audience }

func (c *EnvConfig) GetRejectedRouteKey() string     { return c.RejectedRouteKey }
func (c *EnvConfig) GetRejectedRouteDefault() string { return c.RejectedRouteDefault }

func (c *EnvConfig) GetPasswordHashCost() int { return c.PasswordHashCost }

func (c *EnvConfig) GetPasswordResetTokenTTL() time.Duration     { return c.PasswordResetTokenTTL }
func (c *EnvConfig) GetEmailVerificationTokenTTL() time.Duration { return c.EmailVerificationTokenTTL }
