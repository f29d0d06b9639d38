// Package config handles tool configuration loading and management.
package config

// Config holds all unpacker settings.
type Config struct {
	Data    DataConfig    `yaml:"data"`
	Export  ExportConfig  `yaml:"export"`
	Preview PreviewConfig `yaml:"preview"`
	Batch   BatchConfig   `yaml:"batch"`
	Logging LoggingConfig `yaml:"logging"`
}

// DataConfig holds archive search paths.
type DataConfig struct {
	PakPaths []string `yaml:"pak_paths"` // Extra EPK archives mounted on every run
}

// ExportConfig holds OBJ export settings.
type ExportConfig struct {
	OutputDir string `yaml:"output_dir"`
	WriteMTL  bool   `yaml:"write_mtl"`
}

// PreviewConfig holds thumbnail rendering settings.
type PreviewConfig struct {
	Size        int `yaml:"size"`        // Output image edge in pixels
	Supersample int `yaml:"supersample"` // Raster scale before downsampling
}

// BatchConfig holds batch processing settings.
type BatchConfig struct {
	Workers int `yaml:"workers"` // 0 means one worker per CPU
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Data: DataConfig{
			PakPaths: nil,
		},
		Export: ExportConfig{
			OutputDir: "export",
			WriteMTL:  true,
		},
		Preview: PreviewConfig{
			Size:        512,
			Supersample: 2,
		},
		Batch: BatchConfig{
			Workers: 0,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}
