package config

import (
	"os"
	"reflect"
	"strings"
	"testing"
	"time"
)

// --- MustLoad ---

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose") // invalid -> Load() error
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

// --- Load success + normalization + parsing ---

func TestLoad_Success_DefaultsAndOverrides(t *testing.T) {
	// Server timeouts / sizes (valid)
	t.Setenv("PORT", "8088")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("READ_HEADER_TIMEOUT", "1s")
	t.Setenv("WRITE_TIMEOUT", "3s")
	t.Setenv("IDLE_TIMEOUT", "4s")
	t.Setenv("MAX_HEADER_BYTES", "8192")
	t.Setenv("GIN_MODE", "weird") // will normalize to "release"

	// Logging / Docs
	t.Setenv("LOG_LEVEL", "warning") // will normalize to "warn"
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("SWAGGER_ENABLED", "on")
	t.Setenv("GZIP_ENABLED", "1")
	t.Setenv("API_BASE_PATH", "api/v1/") // no leading slash + trailing slash -> "/api/v1"

	// Storage
	t.Setenv("DB_DRIVER", "PostgreSQL")
	t.Setenv("DB_DSN", "host=db user=app dbname=messaging")

	// Rate limiting (use invalids for parse to fall back to defaults)
	t.Setenv("RATE_RPS", "2.5")
	t.Setenv("RATE_BURST", " 4 ")

	// Web protection
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.com , , http://b ")
	t.Setenv("ENABLE_HSTS", "TRUE")
	t.Setenv("HSTS_MAX_AGE", "24h")
	t.Setenv("AUTH_JWT_SECRET", "s3cret")
	t.Setenv("AUTH_REQUIRED", "true")
	t.Setenv("BOOTSTRAP_ADMIN_ID", " admin-1 ")

	// Idempotency
	t.Setenv("IDEMPOTENCY_TTL", "48h")

	// Pub/sub + messaging
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("REDIS_CHANNEL_PREFIX", "feed.")
	t.Setenv("MAX_CONTENT_RUNES", "280")
	t.Setenv("OUTREACH_CATEGORY", "support")
	t.Setenv("REQUIRE_APPROVED_POST", "on")
	t.Setenv("NOTIFICATIONS_MAX_LIMIT", "100")

	// OTEL
	t.Setenv("OTEL_ENABLED", "1")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "0")
	t.Setenv("OTEL_SERVICE_NAME", "svc")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	// Server
	if cfg.Port != "8088" ||
		cfg.ReadTimeout != 2*time.Second ||
		cfg.ReadHeaderTimeout != 1*time.Second ||
		cfg.WriteTimeout != 3*time.Second ||
		cfg.IdleTimeout != 4*time.Second ||
		cfg.MaxHeaderBytes != 8192 ||
		cfg.GinMode != "release" {
		t.Fatalf("server fields unexpected: %+v", cfg)
	}

	// Logging / Docs
	if cfg.LogLevel != "warn" || !cfg.LogPretty || !cfg.SwaggerEnabled || !cfg.GzipEnabled || cfg.APIBasePath != "/api/v1" {
		t.Fatalf("logging/docs unexpected: %+v", cfg)
	}

	// Storage
	if cfg.DB.Driver != "postgres" || cfg.DB.Target() != "host=db user=app dbname=messaging" {
		t.Fatalf("db config unexpected: %+v", cfg.DB)
	}

	// Rate limiting
	if cfg.RateRPS != 2.5 || cfg.RateBurst != 4 {
		t.Fatalf("rate limiting unexpected: %+v", cfg)
	}

	// Web protection
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}) {
		t.Fatalf("cors origins unexpected: %#v", cfg.CORS.AllowedOrigins)
	}
	if !cfg.Security.EnableHSTS || cfg.Security.HSTSMaxAge != 24*time.Hour {
		t.Fatalf("security unexpected: %+v", cfg.Security)
	}
	if cfg.Auth.JWTSecret != "s3cret" || !cfg.Auth.Required || cfg.Auth.BootstrapAdminID != "admin-1" {
		t.Fatalf("auth unexpected: %+v", cfg.Auth)
	}

	// Idempotency
	if cfg.IdempotencyTTL != 48*time.Hour {
		t.Fatalf("idempotency ttl unexpected: %v", cfg.IdempotencyTTL)
	}

	// Pub/sub + messaging
	if cfg.Redis.Addr != "redis:6379" || cfg.Redis.DB != 2 || cfg.Redis.ChannelPrefix != "feed." {
		t.Fatalf("redis unexpected: %+v", cfg.Redis)
	}
	if cfg.Messaging.MaxContentRunes != 280 || cfg.Messaging.OutreachCategory != "support" ||
		!cfg.Messaging.RequireApprovedPost || cfg.Messaging.NotificationsMaxLimit != 100 {
		t.Fatalf("messaging unexpected: %+v", cfg.Messaging)
	}

	// OTEL
	if !cfg.OTEL.Enabled || cfg.OTEL.Endpoint != "otel:4317" || cfg.OTEL.Insecure || cfg.OTEL.ServiceName != "svc" || cfg.OTEL.SampleRatio != 0.75 {
		t.Fatalf("otel unexpected: %+v", cfg.OTEL)
	}
}

func TestLoad_OutreachCategory_DefaultAndExplicitEmpty(t *testing.T) {
	os.Unsetenv("OUTREACH_CATEGORY")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Messaging.OutreachCategory != "vent" {
		t.Fatalf("default outreach category = %q, want vent", cfg.Messaging.OutreachCategory)
	}

	t.Setenv("OUTREACH_CATEGORY", "")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Messaging.OutreachCategory != "" {
		t.Fatalf("explicit empty should disable the check, got %q", cfg.Messaging.OutreachCategory)
	}
}

// --- Load validations (each case triggers exactly one validation error) ---

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"invalid LOG_LEVEL", map[string]string{"LOG_LEVEL": "verbose"}, "LOG_LEVEL"},
		{"empty PORT via spaces", map[string]string{"PORT": "   "}, "PORT must not be empty"},
		{"non-positive timeouts", map[string]string{"READ_TIMEOUT": "0s"}, "timeouts must be positive"},
		{"max header bytes <= 0", map[string]string{"MAX_HEADER_BYTES": "0"}, "MAX_HEADER_BYTES"},
		{"empty DB_PATH", map[string]string{"DB_PATH": "   "}, "DB_PATH must not be empty"},
		{"unknown DB_DRIVER", map[string]string{"DB_DRIVER": "oracle"}, "DB_DRIVER"},
		{"postgres without DSN", map[string]string{"DB_DRIVER": "postgres"}, "DB_DSN"},
		{"rate rps negative", map[string]string{"RATE_RPS": "-1"}, "RATE_RPS"},
		{"rate burst < 1", map[string]string{"RATE_BURST": "0"}, "RATE_BURST"},
		{"hsts max age negative", map[string]string{"HSTS_MAX_AGE": "-1s"}, "HSTS_MAX_AGE"},
		{"auth required without secret", map[string]string{"AUTH_REQUIRED": "true"}, "AUTH_JWT_SECRET"},
		{"idempotency ttl non-positive", map[string]string{"IDEMPOTENCY_TTL": "0s"}, "IDEMPOTENCY_TTL"},
		{"redis db negative", map[string]string{"REDIS_DB": "-1"}, "REDIS_DB"},
		{"content runes < 1", map[string]string{"MAX_CONTENT_RUNES": "0"}, "MAX_CONTENT_RUNES"},
		{"notifications limit < 1", map[string]string{"NOTIFICATIONS_MAX_LIMIT": "0"}, "NOTIFICATIONS_MAX_LIMIT"},
		{"otel sample ratio out of range", map[string]string{"OTEL_TRACES_SAMPLER_ARG": "1.5"}, "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			for k, v := range c.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil || !containsErr(err, c.want) {
				t.Fatalf("expected error containing %q, got: %v", c.want, err)
			}
		})
	}
}

func TestDBConfig_Target(t *testing.T) {
	if got := (DBConfig{Driver: "sqlite", Path: "a.db", DSN: "x"}).Target(); got != "a.db" {
		t.Fatalf("sqlite target = %q", got)
	}
	if got := (DBConfig{Driver: "mysql", Path: "a.db", DSN: "u:p@/db"}).Target(); got != "u:p@/db" {
		t.Fatalf("mysql target = %q", got)
	}
}

// --- env reader ---

func TestLoad_MalformedValuesReportedTogether(t *testing.T) {
	t.Setenv("RATE_RPS", "x")
	t.Setenv("RATE_BURST", "nope")
	t.Setenv("IDEMPOTENCY_TTL", "forever")
	t.Setenv("LOG_PRETTY", "maybe")

	_, err := Load()
	if err == nil {
		t.Fatal("expected malformed values to fail Load")
	}
	for _, want := range []string{`RATE_RPS="x": not a number`, `RATE_BURST="nope": not an integer`,
		`IDEMPOTENCY_TTL="forever": not a duration`, `LOG_PRETTY="maybe": not a boolean`} {
		if !containsErr(err, want) {
			t.Fatalf("missing %q in %v", want, err)
		}
	}
}

func TestValidate_JoinsAllViolations(t *testing.T) {
	err := Config{LogLevel: "info", DB: DBConfig{Driver: "sqlite"}}.Validate()
	for _, want := range []string{"PORT must not be empty", "timeouts must be positive", "DB_PATH", "RATE_BURST", "IDEMPOTENCY_TTL"} {
		if !containsErr(err, want) {
			t.Fatalf("missing %q in %v", want, err)
		}
	}
}

func TestEnv_TypedReads(t *testing.T) {
	var e env
	t.Setenv("X_EMPTY", "")
	t.Setenv("X_SET", "val")
	t.Setenv("F_VALID", "3.14")
	t.Setenv("I_VALID", " 42 ")
	t.Setenv("D_VALID", "150ms")

	if e.str("X_EMPTY", "d") != "d" || e.str("X_UNSET_FOR_TEST", "d") != "d" || e.str("X_SET", "d") != "val" {
		t.Fatalf("str fallback/read failed")
	}
	if e.number("F_VALID", 0) != 3.14 || e.integer("I_VALID", 0) != 42 || e.dur("D_VALID", time.Second) != 150*time.Millisecond {
		t.Fatalf("typed reads failed")
	}
	if len(e.errs) != 0 {
		t.Fatalf("unexpected errors: %v", e.errs)
	}

	t.Setenv("I_BAD", "x")
	if e.integer("I_BAD", 7) != 7 || len(e.errs) != 1 {
		t.Fatalf("bad integer should keep default and record an error")
	}
}

func TestEnv_Flag(t *testing.T) {
	var e env
	for i, v := range []string{"1", "true", "TRUE", " yes ", "Y", "on", "On"} {
		k := "B_T_" + keySuffix(i)
		t.Setenv(k, v)
		if !e.flag(k, false) {
			t.Fatalf("flag(%q) = false; want true", v)
		}
	}
	for i, v := range []string{"0", "false", "FALSE", " no ", "N", "off", "Off"} {
		k := "B_F_" + keySuffix(i)
		t.Setenv(k, v)
		if e.flag(k, true) {
			t.Fatalf("flag(%q) = true; want false", v)
		}
	}
	t.Setenv("B_EMPTY", "")
	if !e.flag("B_EMPTY", true) || e.flag("B_EMPTY", false) {
		t.Fatalf("flag default behavior unexpected")
	}
	if len(e.errs) != 0 {
		t.Fatalf("unexpected errors: %v", e.errs)
	}
}

func TestHelpers_splitCSV_and_normalizeBasePath(t *testing.T) {
	if out := splitCSV(""); out != nil {
		t.Fatalf("splitCSV empty should return nil")
	}
	if got := splitCSV(" a, ,b ,  c  ,"); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("splitCSV mismatch: got %#v", got)
	}

	for in, want := range map[string]string{"": "/", "v1": "/v1", "/v1/": "/v1", " / ": "/", "api/v1/": "/api/v1"} {
		if got := normalizeBasePath(in); got != want {
			t.Fatalf("normalizeBasePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func keySuffix(i int) string { return string('a' + rune(i)) }

func TestMain(m *testing.M) {
	os.Unsetenv("PORT")
	os.Exit(m.Run())
}

// containsErr reports whether err's message contains the given substring.
func containsErr(err error, want string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), want)
}

func TestMustLoad_Success_NoPanic(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("MustLoad should not panic on valid defaults, got: %v", r)
		}
	}()
	cfg := MustLoad()
	if cfg.APIBasePath != "/api/v1" || cfg.DB.Driver != "sqlite" || cfg.Redis.ChannelPrefix != "notifications:" {
		t.Fatalf("unexpected defaults from MustLoad: %+v", cfg)
	}
}
