// internal/stages/classify-documents/config.go
package classifydocuments

type Config struct {
	// ConfidenceThreshold below which a label defaults to "other".
	ConfidenceThreshold float64
}

func LoadConfig() *Config {
	return &Config{
		ConfidenceThreshold: 0.5,
	}
}
