package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile             = ".env"
	defaultPort                = "8080"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 30 * time.Second
	defaultIdleTimeout         = 120 * time.Second
	defaultEnvironment         = "local"
	defaultCatalogCollection   = "products"
	defaultRetryAttempts       = 2
	defaultRetryDelay          = 350 * time.Millisecond
	defaultPlaceholderImage    = "https://via.placeholder.com/800x1000?text=No+Image"
	defaultPriceLocale         = "en-IN"
	defaultBillingPath         = "billing.html"
	defaultSignedURLTTL        = 15 * time.Minute
	defaultConnectivityTarget  = "firestore.googleapis.com:443"
	defaultConnectivityTimeout = time.Second
	defaultSecretsFallbackFile = ".secrets.local"
)

// Config captures the runtime configuration of the web service.
type Config struct {
	Environment  string
	Server       ServerConfig
	Templates    TemplatesConfig
	Firebase     FirebaseConfig
	Firestore    FirestoreConfig
	Catalog      CatalogConfig
	Product      ProductConfig
	Checkout     CheckoutConfig
	Session      SessionConfig
	Storage      StorageConfig
	PubSub       PubSubConfig
	Connectivity ConnectivityConfig
	Secrets      SecretsConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// TemplatesConfig selects where page templates come from.
type TemplatesConfig struct {
	// Dir overrides the embedded templates with files on disk when set.
	Dir string
	// DevMode reparses templates on every request.
	DevMode bool
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// CatalogConfig selects the product source.
type CatalogConfig struct {
	Collection string
	// FixtureFile switches the store to a YAML file instead of Firestore.
	FixtureFile string
}

// ProductConfig tunes the product page.
type ProductConfig struct {
	RetryAttempts    int
	RetryDelay       time.Duration
	PlaceholderImage string
	PriceLocale      string
}

// CheckoutConfig controls the hand-off to billing.
type CheckoutConfig struct {
	BillingPath string
}

// SessionConfig holds cookie signing material.
type SessionConfig struct {
	SigningKey string
}

// StorageConfig configures signed URLs for gs:// images.
type StorageConfig struct {
	SignerKey    string
	SignedURLTTL time.Duration
}

// PubSubConfig configures purchase-intent publishing.
type PubSubConfig struct {
	ProjectID   string
	IntentTopic string
}

// ConnectivityConfig configures the offline probe.
type ConnectivityConfig struct {
	Target  string
	Timeout time.Duration
}

// SecretsConfig configures Secret Manager lookups.
type SecretsConfig struct {
	ProjectID    string
	FallbackFile string
}

// SecretResolver resolves secret:// references.
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret calls f.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes a failed secret reference.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// WithEnvFile overrides the .env file path. An empty path disables it.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects explicit values that take precedence over the process environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv stops Load from reading the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// and sm:// values.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// Lookup exposes the same precedence rules as Load (dotenv < OS env < explicit map) so callers can
// read bootstrap values, such as the secrets project, before the full load.
func Lookup(key string, opts ...Option) (string, error) {
	options := newLoaderOptions(opts)
	lookup, err := options.lookupFunc()
	if err != nil {
		return "", err
	}
	value, _ := lookup(key)
	return value, nil
}

// Load assembles the configuration from defaults, the .env file, the environment and secret references.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)
	lookup, err := options.lookupFunc()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Environment: strings.ToLower(stringWithDefault(lookup, "WEB_ENV", defaultEnvironment)),
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "WEB_SERVER_PORT", stringWithDefault(lookup, "PORT", defaultPort)),
			ReadTimeout:  durationWithDefault(lookup, "WEB_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "WEB_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "WEB_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Templates: TemplatesConfig{
			Dir:     stringWithDefault(lookup, "WEB_TEMPLATES_DIR", ""),
			DevMode: boolWithDefault(lookup, "WEB_DEV", false),
		},
		Firebase: FirebaseConfig{
			ProjectID:       stringWithDefault(lookup, "WEB_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: stringWithDefault(lookup, "WEB_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "WEB_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "WEB_FIRESTORE_EMULATOR_HOST", ""),
		},
		Catalog: CatalogConfig{
			Collection:  stringWithDefault(lookup, "WEB_CATALOG_COLLECTION", defaultCatalogCollection),
			FixtureFile: stringWithDefault(lookup, "WEB_CATALOG_FIXTURE", ""),
		},
		Product: ProductConfig{
			RetryAttempts:    intWithDefault(lookup, "WEB_PRODUCT_RETRY_ATTEMPTS", defaultRetryAttempts),
			RetryDelay:       durationWithDefault(lookup, "WEB_PRODUCT_RETRY_DELAY", defaultRetryDelay),
			PlaceholderImage: stringWithDefault(lookup, "WEB_PRODUCT_PLACEHOLDER_IMAGE", defaultPlaceholderImage),
			PriceLocale:      stringWithDefault(lookup, "WEB_PRODUCT_PRICE_LOCALE", defaultPriceLocale),
		},
		Checkout: CheckoutConfig{
			BillingPath: stringWithDefault(lookup, "WEB_CHECKOUT_BILLING_PATH", defaultBillingPath),
		},
		Session: SessionConfig{
			SigningKey: stringWithDefault(lookup, "WEB_SESSION_SIGNING_KEY", ""),
		},
		Storage: StorageConfig{
			SignerKey:    stringWithDefault(lookup, "WEB_STORAGE_SIGNER_KEY", ""),
			SignedURLTTL: durationWithDefault(lookup, "WEB_STORAGE_SIGNED_URL_TTL", defaultSignedURLTTL),
		},
		PubSub: PubSubConfig{
			ProjectID:   stringWithDefault(lookup, "WEB_PUBSUB_PROJECT_ID", ""),
			IntentTopic: stringWithDefault(lookup, "WEB_PUBSUB_INTENT_TOPIC", ""),
		},
		Connectivity: ConnectivityConfig{
			Target:  stringWithDefault(lookup, "WEB_CONNECTIVITY_TARGET", defaultConnectivityTarget),
			Timeout: durationWithDefault(lookup, "WEB_CONNECTIVITY_TIMEOUT", defaultConnectivityTimeout),
		},
		Secrets: SecretsConfig{
			ProjectID:    stringWithDefault(lookup, "WEB_SECRETS_PROJECT_ID", ""),
			FallbackFile: stringWithDefault(lookup, "WEB_SECRETS_FALLBACK_FILE", defaultSecretsFallbackFile),
		},
	}

	// Dependent projects default to the Firebase project.
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
	}
	if cfg.Secrets.ProjectID == "" {
		cfg.Secrets.ProjectID = cfg.Firebase.ProjectID
	}

	secretFields := []*string{
		&cfg.Session.SigningKey,
		&cfg.Storage.SignerKey,
	}
	for _, field := range secretFields {
		resolved, err := resolveSecret(ctx, *field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*field = resolved
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func newLoaderOptions(opts []Option) loaderOptions {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return options
}

func (o loaderOptions) lookupFunc() (func(string) (string, bool), error) {
	dotEnvValues, err := loadDotEnv(o.envFile)
	if err != nil {
		return nil, err
	}
	return func(key string) (string, bool) {
		if value, ok := o.envMap[key]; ok {
			return value, true
		}
		if o.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		value, ok := dotEnvValues[key]
		return value, ok
	}, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" || !isSecretReference(value) {
		return value, nil
	}
	normalized := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return strings.TrimSpace(secret), nil
}

func validateConfig(cfg Config) error {
	var invalid []string

	if cfg.Server.Port == "" {
		invalid = append(invalid, "Server.Port")
	}
	if strings.TrimSpace(cfg.Catalog.FixtureFile) == "" && cfg.Firestore.ProjectID == "" {
		invalid = append(invalid, "Firestore.ProjectID")
	}
	if strings.TrimSpace(cfg.Catalog.Collection) == "" {
		invalid = append(invalid, "Catalog.Collection")
	}
	if cfg.Product.RetryAttempts < 1 {
		invalid = append(invalid, "Product.RetryAttempts")
	}
	if cfg.Product.RetryDelay < 0 {
		invalid = append(invalid, "Product.RetryDelay")
	}
	if strings.TrimSpace(cfg.Product.PlaceholderImage) == "" {
		invalid = append(invalid, "Product.PlaceholderImage")
	}
	if strings.TrimSpace(cfg.Checkout.BillingPath) == "" {
		invalid = append(invalid, "Checkout.BillingPath")
	}
	if cfg.Environment == "prod" && cfg.Session.SigningKey == "" {
		invalid = append(invalid, "Session.SigningKey")
	}

	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}
