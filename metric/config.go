package metric

// Config defines where the metrics endpoint is served. Signal servers and
// peer clients each run their own.
type Config struct {
	Port int    // Port for metrics server
	Path string // Path for metrics endpoint
}

// Default values for metrics configuration.
const (
	DefaultMetricsPort = 9090
	DefaultMetricsPath = "/metrics"
)

func (c Config) withDefaults() Config {
	if c.Port == 0 {
		c.Port = DefaultMetricsPort
	}
	if c.Path == "" {
		c.Path = DefaultMetricsPath
	}
	return c
}
