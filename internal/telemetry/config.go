package telemetry

import (
	"strconv"
	"strings"
	"time"

	"github.com/unkn0wn-root/reqflow/internal/errdef"
)

const (
	envEndpoint    = "OTEL_EXPORTER_OTLP_ENDPOINT"
	envInsecure    = "OTEL_EXPORTER_OTLP_INSECURE"
	envService     = "OTEL_SERVICE_NAME"
	envDialTimeout = "REQFLOW_OTEL_DIAL_TIMEOUT"
	envHeaders     = "OTEL_EXPORTER_OTLP_HEADERS"

	defaultServiceName = "reqflow"
)

type Config struct {
	Endpoint    string
	Insecure    bool
	ServiceName string
	Version     string
	DialTimeout time.Duration
	Headers     map[string]string
}

func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

// ConfigFromEnv reads the standard OTLP variables through getenv.
// Malformed values fall back to defaults.
func ConfigFromEnv(getenv func(string) string) Config {
	cfg := Config{ServiceName: defaultServiceName}
	if getenv == nil {
		return cfg
	}
	cfg.Endpoint = strings.TrimSpace(getenv(envEndpoint))
	if v := strings.TrimSpace(getenv(envInsecure)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Insecure = b
		}
	}
	if v := strings.TrimSpace(getenv(envService)); v != "" {
		cfg.ServiceName = v
	}
	if v := strings.TrimSpace(getenv(envDialTimeout)); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.DialTimeout = d
		}
	}
	if headers, err := ParseHeaders(getenv(envHeaders)); err == nil {
		cfg.Headers = headers
	}
	return cfg
}

// ParseHeaders parses "k=v, k2=v2". Blank input yields nil.
func ParseHeaders(raw string) (map[string]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	out := make(map[string]string)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, errdef.New(errdef.CodeConfig, "invalid telemetry header %q", part)
		}
		out[key] = strings.TrimSpace(value)
	}
	return out, nil
}
