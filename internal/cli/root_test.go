package cli

import (
	"testing"

	"graphetl/internal/config"
)

func TestOverrideStaging(t *testing.T) {
	cfg := &config.Config{Staging: config.StagingConfig{Path: "pubgraph-1.0.db"}}

	overrideStaging(cfg, "")
	if cfg.Staging.Path != "pubgraph-1.0.db" {
		t.Errorf("Expected configured path to stand without a flag, got %s", cfg.Staging.Path)
	}

	overrideStaging(cfg, "/tmp/alt.db")
	if cfg.Staging.Path != "/tmp/alt.db" {
		t.Errorf("Expected flag to override staging path, got %s", cfg.Staging.Path)
	}
}

func TestGateEventSink(t *testing.T) {
	cfg := &config.Config{Kafka: &config.KafkaConfig{Brokers: []string{"localhost:9092"}}}

	gateEventSink(cfg, false)
	if cfg.Kafka != nil {
		t.Error("Expected kafka sink to be disabled without --events")
	}

	cfg.Kafka = &config.KafkaConfig{Brokers: []string{"localhost:9092"}}
	gateEventSink(cfg, true)
	if cfg.Kafka == nil {
		t.Error("Expected kafka sink to survive with --events")
	}
}
