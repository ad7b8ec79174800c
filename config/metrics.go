package config

// MetricsConfig selects the metrics sinks.
type MetricsConfig struct {
	// PromAddr exposes /metrics when non-empty.
	PromAddr string `json:"prom_addr"`
	// Influx forwards transition points to InfluxDB when URL is set.
	Influx InfluxConfig `json:"influx"`
}

// InfluxConfig holds the InfluxDB connection parameters.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
}

func (c *MetricsConfig) SetDefaults() {
	if c.PromAddr == "" {
		c.PromAddr = ":9090"
	}
}
