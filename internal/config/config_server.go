package config

// ServerConfig controls the gateway's HTTP listener.
type ServerConfig struct {
	Host        string `yaml:"host"`
	HTTPPort    int    `yaml:"http_port"`
	MetricsPort int    `yaml:"metrics_port"`
}

func (s ServerConfig) withDefaults() ServerConfig {
	if s.Host == "" {
		s.Host = "0.0.0.0"
	}
	if s.HTTPPort == 0 {
		s.HTTPPort = 8080
	}
	return s
}
