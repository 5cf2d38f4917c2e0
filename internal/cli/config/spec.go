package config

// CLIConfig is the configuration for vaultkv-cli.
type CLIConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	CAFile     string `yaml:"ca_file"`
	ServerName string `yaml:"server_name"`
	ClientID   string `yaml:"client_id"`
	// Output is text, json or yaml.
	Output string `yaml:"output"`
}

// Default values.
const (
	DefaultHost   = "localhost"
	DefaultPort   = 7443
	DefaultOutput = "text"
)

// Default returns the default CLI configuration.
func Default() *CLIConfig {
	return &CLIConfig{
		Host:   DefaultHost,
		Port:   DefaultPort,
		Output: DefaultOutput,
	}
}
