package config

import (
	"log"
	"os"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var (
	once sync.Once
	cfg  *Config
)

// Config aggregates every tunable of the ingestion pipeline. Values come
// from fiscalflow.yaml (path in FISCALFLOW_CONFIG, default
// "fiscalflow.yaml") layered over the defaults below; connection
// settings come from the environment (.env supported).
type Config struct {
	Pipeline PipelineConfig `yaml:"pipeline"`
	Batch    BatchConfig    `yaml:"batch"`
	Export   ExportConfig   `yaml:"export"`
}

// PipelineConfig tunes the text-extraction strategy chain.
type PipelineConfig struct {
	// MinTextLength is the minimum usable text length; shorter output
	// counts as a strategy failure.
	MinTextLength int `yaml:"minTextLength"`
	// MojibakeThreshold is the maximum tolerated fraction of
	// non-printable/replacement runes before a result is treated as a
	// logical failure (default 0.40, pending calibration).
	MojibakeThreshold float64 `yaml:"mojibakeThreshold"`
	// OCRDPI is the target rasterization density for OCR input.
	OCRDPI int `yaml:"ocrDpi"`
	// OCRLanguages are the tesseract language packs, joined with "+".
	OCRLanguages []string `yaml:"ocrLanguages"`
	// OCRConcurrency bounds simultaneous OCR invocations across all
	// batches (rasterization dominates CPU cost).
	OCRConcurrency int `yaml:"ocrConcurrency"`
	// Hybrid concatenates native and OCR output instead of treating OCR
	// as a replacement, recovering fields split across a text layer and
	// an embedded image.
	Hybrid bool `yaml:"hybrid"`
}

// BatchConfig tunes batch-level orchestration.
type BatchConfig struct {
	// Concurrency bounds batches processed in parallel.
	Concurrency int `yaml:"concurrency"`
	// Timeout is the wall-clock budget per batch.
	Timeout time.Duration `yaml:"timeout"`
	// ValueTolerance is the absolute monetary tolerance used when
	// matching invoice and slip values (default 0.01).
	ValueTolerance float64 `yaml:"valueTolerance"`
}

// ExportConfig tunes the report writer.
type ExportConfig struct {
	OutputPath string `yaml:"outputPath"`
}

// Get returns the process-wide configuration, loading it on first use.
func Get() *Config {
	once.Do(func() {
		cfg = defaults()

		path := os.Getenv("FISCALFLOW_CONFIG")
		if path == "" {
			path = "fiscalflow.yaml"
		}
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				log.Printf("Warning: can't read config file %s: %v", path, err)
			}
			return
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			log.Printf("Warning: can't parse config file %s: %v, using defaults", path, err)
			cfg = defaults()
		}
	})
	return cfg
}

func defaults() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			MinTextLength:     50,
			MojibakeThreshold: 0.40,
			OCRDPI:            300,
			OCRLanguages:      []string{"por", "eng"},
			OCRConcurrency:    2,
			Hybrid:            false,
		},
		Batch: BatchConfig{
			Concurrency:    4,
			Timeout:        5 * time.Minute,
			ValueTolerance: 0.01,
		},
		Export: ExportConfig{
			OutputPath: "out/fiscalflow_report.xlsx",
		},
	}
}

var envOnce sync.Once

// loadEnv loads .env once, falling back to the plain environment.
func loadEnv() {
	envOnce.Do(func() {
		if err := godotenv.Load(); err != nil {
			log.Printf("Warning: .env file not found, falling back to environment variables")
		}
	})
}

func envOr(key, fallback string) string {
	loadEnv()
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
