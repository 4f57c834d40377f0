package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values must come from env (or a .env file loaded by the process before Load).
// No business logic should depend on raw environment variables.
type Config struct {
	App     AppConfig
	DB      DBConfig
	Redis   RedisConfig
	Records RecordsConfig
	Auth    AuthConfig
	Agent   AgentConfig
	Calls   CallsConfig
}

type AppConfig struct {
	Env  string
	Port int
}

// DBConfig describes the banking records store.
type DBConfig struct {
	// Store selects the banking store: "postgres" or "memory".
	Store string

	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode is kept explicit for production posture.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

// RedisConfig is optional outside production. An empty Host disables the
// shared call cap and the live-call mirror.
type RedisConfig struct {
	Host string
	Port int
}

// RecordsConfig selects the gorm backend for call history and tickets.
type RecordsConfig struct {
	Driver string
	DSN    string
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	AdminUsername string
	AdminPassword string

	// Supervisor credentials are optional; supervisors get read-only access.
	SupervisorUsername string
	SupervisorPassword string
}

type AgentConfig struct {
	OpenAIAPIKey  string
	OpenAIBaseURL string

	LLMModel       string
	LLMTemperature float64

	STTModel    string
	STTLanguage string
	STTPrompt   string

	TTSModel  string
	TTSVoice  string
	TTSFormat string

	ProviderTimeout time.Duration

	GreetingMessage string
	FlowsFile       string
	CustomersFile   string

	// MaxToolRounds bounds tool-dispatch re-entries within one turn.
	MaxToolRounds int
}

type CallsConfig struct {
	MaxConcurrent int

	// InboundPolicy decides what happens to a frame that arrives while a turn
	// is in flight: "reject" or "fifo".
	InboundPolicy    string
	InboundQueueSize int

	MinAudioBytes  int
	MaxIdleNudges  int
	WSReadLimit    int64
	AllowedOrigins []string
	EndCallGrace   time.Duration
}

const (
	InboundPolicyReject = "reject"
	InboundPolicyFIFO   = "fifo"
)

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Store = strings.ToLower(strings.TrimSpace(os.Getenv("BANK_STORE")))
	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := optInt("DB_PORT", 5432)
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := optInt("REDIS_PORT", 6379)
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Records.Driver = strings.ToLower(strings.TrimSpace(os.Getenv("RECORDS_DRIVER")))
	c.Records.DSN = strings.TrimSpace(os.Getenv("RECORDS_DSN"))

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate().
	c.Auth.AccessTokenTTL = mustDuration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = mustDuration("JWT_REFRESH_TTL")
	c.Auth.AdminUsername = strings.TrimSpace(os.Getenv("ADMIN_USERNAME"))
	c.Auth.AdminPassword = os.Getenv("ADMIN_PASSWORD")
	c.Auth.SupervisorUsername = strings.TrimSpace(os.Getenv("SUPERVISOR_USERNAME"))
	c.Auth.SupervisorPassword = os.Getenv("SUPERVISOR_PASSWORD")

	c.Agent.OpenAIAPIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	c.Agent.OpenAIBaseURL = strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
	c.Agent.LLMModel = strings.TrimSpace(os.Getenv("LLM_MODEL"))
	{
		f, err := optFloat("LLM_TEMPERATURE", 0)
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		c.Agent.LLMTemperature = f
	}
	c.Agent.STTModel = strings.TrimSpace(os.Getenv("STT_MODEL"))
	c.Agent.STTLanguage = strings.TrimSpace(os.Getenv("STT_LANGUAGE"))
	c.Agent.STTPrompt = os.Getenv("STT_PROMPT")
	c.Agent.TTSModel = strings.TrimSpace(os.Getenv("TTS_MODEL"))
	c.Agent.TTSVoice = strings.TrimSpace(os.Getenv("TTS_VOICE"))
	c.Agent.TTSFormat = strings.TrimSpace(os.Getenv("TTS_FORMAT"))
	c.Agent.ProviderTimeout = mustDuration("PROVIDER_TIMEOUT")
	c.Agent.GreetingMessage = strings.TrimSpace(os.Getenv("GREETING_MESSAGE"))
	c.Agent.FlowsFile = strings.TrimSpace(os.Getenv("FLOWS_FILE"))
	c.Agent.CustomersFile = strings.TrimSpace(os.Getenv("CUSTOMERS_FILE"))
	{
		n, err := optInt("MAX_TOOL_ROUNDS", 0)
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Agent.MaxToolRounds = n
	}

	{
		n, err := optInt("MAX_CONCURRENT_CALLS", 0)
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Calls.MaxConcurrent = n
	}
	c.Calls.InboundPolicy = strings.ToLower(strings.TrimSpace(os.Getenv("INBOUND_POLICY")))
	{
		n, err := optInt("INBOUND_QUEUE_SIZE", 0)
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Calls.InboundQueueSize = n
	}
	{
		n, err := optInt("MIN_AUDIO_BYTES", 0)
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Calls.MinAudioBytes = n
	}
	{
		n, err := optInt("MAX_IDLE_NUDGES", 0)
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Calls.MaxIdleNudges = n
	}
	{
		n, err := optInt("WS_READ_LIMIT", 0)
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Calls.WSReadLimit = int64(n)
	}
	c.Calls.AllowedOrigins = splitList(os.Getenv("ALLOWED_ORIGINS"))
	c.Calls.EndCallGrace = mustDuration("END_CALL_GRACE")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// applyDefaults fills optional values. Production-only requirements are left
// empty on purpose so Validate can report them.
func (c *Config) applyDefaults() {
	if c.DB.Store == "" && !c.IsProduction() {
		c.DB.Store = "memory"
	}
	if c.DB.SSLMode == "" && !c.IsProduction() {
		// Local-friendly default; production must be explicit.
		c.DB.SSLMode = "disable"
	}
	if c.Records.Driver == "" {
		c.Records.Driver = "sqlite"
	}
	if c.Records.DSN == "" && c.Records.Driver == "sqlite" {
		c.Records.DSN = "data/records.db"
	}

	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 7 * 24 * time.Hour
	}

	a := &c.Agent
	if a.OpenAIBaseURL == "" {
		a.OpenAIBaseURL = "https://api.openai.com/v1"
	}
	if a.LLMModel == "" {
		a.LLMModel = "gpt-4o"
	}
	if a.STTModel == "" {
		a.STTModel = "whisper-1"
	}
	if a.STTLanguage == "" {
		a.STTLanguage = "en"
	}
	if a.TTSModel == "" {
		a.TTSModel = "tts-1"
	}
	if a.TTSVoice == "" {
		a.TTSVoice = "alloy"
	}
	if a.TTSFormat == "" {
		a.TTSFormat = "pcm"
	}
	if a.ProviderTimeout <= 0 {
		a.ProviderTimeout = 30 * time.Second
	}
	if a.GreetingMessage == "" {
		a.GreetingMessage = "Welcome to Bank ABC. How can I help you?"
	}
	if a.FlowsFile == "" {
		a.FlowsFile = "config/flows.yaml"
	}
	if a.MaxToolRounds <= 0 {
		a.MaxToolRounds = 5
	}

	k := &c.Calls
	if k.MaxConcurrent <= 0 {
		k.MaxConcurrent = 50
	}
	if k.InboundPolicy == "" {
		k.InboundPolicy = InboundPolicyReject
	}
	if k.InboundQueueSize <= 0 {
		k.InboundQueueSize = 4
	}
	if k.MinAudioBytes <= 0 {
		k.MinAudioBytes = 500
	}
	if k.MaxIdleNudges <= 0 {
		k.MaxIdleNudges = 2
	}
	if k.WSReadLimit <= 0 {
		k.WSReadLimit = 10 << 20
	}
	if k.EndCallGrace <= 0 {
		k.EndCallGrace = 500 * time.Millisecond
	}
}

func (c Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	switch c.DB.Store {
	case "postgres":
		if c.DB.Host == "" {
			errs = append(errs, errors.New("DB_HOST is required for BANK_STORE=postgres"))
		}
		if c.DB.Port <= 0 || c.DB.Port > 65535 {
			errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
		}
		if c.DB.User == "" {
			errs = append(errs, errors.New("DB_USER is required for BANK_STORE=postgres"))
		}
		if c.DB.Name == "" {
			errs = append(errs, errors.New("DB_NAME is required for BANK_STORE=postgres"))
		}
		if c.DB.SSLMode == "" {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else if !isValidSSLMode(c.DB.SSLMode) {
			errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
		}
	case "memory":
		if c.IsProduction() {
			errs = append(errs, errors.New("BANK_STORE=memory is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("BANK_STORE must be one of postgres, memory, got %q", c.DB.Store))
	}

	if c.Redis.Host == "" && c.IsProduction() {
		errs = append(errs, errors.New("REDIS_HOST is required in production"))
	}
	if c.Redis.Host != "" && (c.Redis.Port <= 0 || c.Redis.Port > 65535) {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	switch c.Records.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("RECORDS_DRIVER must be one of sqlite, postgres, got %q", c.Records.Driver))
	}
	if c.Records.Driver == "postgres" && c.Records.DSN == "" {
		errs = append(errs, errors.New("RECORDS_DSN is required for RECORDS_DRIVER=postgres"))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
		if c.Auth.AdminUsername == "" || c.Auth.AdminPassword == "" {
			errs = append(errs, errors.New("ADMIN_USERNAME and ADMIN_PASSWORD are required in production"))
		}
		if c.Agent.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required in production"))
		}
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if c.Agent.LLMTemperature < 0 || c.Agent.LLMTemperature > 2 {
		errs = append(errs, fmt.Errorf("LLM_TEMPERATURE must be within [0, 2], got %v", c.Agent.LLMTemperature))
	}
	switch c.Agent.TTSFormat {
	case "pcm", "mp3", "wav", "opus", "aac", "flac":
	default:
		errs = append(errs, fmt.Errorf("TTS_FORMAT %q is not supported", c.Agent.TTSFormat))
	}

	switch c.Calls.InboundPolicy {
	case InboundPolicyReject, InboundPolicyFIFO:
	default:
		errs = append(errs, fmt.Errorf("INBOUND_POLICY must be one of reject, fifo, got %q", c.Calls.InboundPolicy))
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	if c.Redis.Host == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optFloat(key string, def float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def, fmt.Errorf("%s must be a number, got %q", key, v)
	}
	return f, nil
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
