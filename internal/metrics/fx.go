package metrics

import (
	"os"
	"strings"

	"github.com/caresignal/adherence/internal/config"
	"go.uber.org/fx"
)

// LoadConfig derives metrics configuration from the environment.
func LoadConfig(cfg config.Config) Config {
	enabled := true
	switch strings.ToLower(strings.TrimSpace(os.Getenv("OTEL_ENABLED"))) {
	case "0", "false", "no", "off":
		enabled = false
	}

	return Config{
		Enabled:          enabled,
		ExporterEndpoint: strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		ExporterProtocol: strings.ToLower(strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL"))),
		ServiceName:      cfg.AppName,
		Environment:      cfg.Environment,
	}
}

// Module wires the meter provider and domain instruments.
var Module = fx.Module("metrics",
	fx.Provide(
		LoadConfig,
		NewProvider,
		New,
	),
)
