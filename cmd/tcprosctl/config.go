package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// runConfig holds the [talk] and [listen] tables of the node config file.
type runConfig struct {
	Talk   talkConfig
	Listen listenConfig
}

type talkConfig struct {
	Topic    string
	Message  string
	Rate     time.Duration
	Latching bool
	Push     []string
}

type listenConfig struct {
	Topic  string
	Accept string
	Count  int
}

type fileRunConfig struct {
	Talk struct {
		Topic    string   `toml:"topic"`
		Message  string   `toml:"message"`
		Rate     string   `toml:"rate"`
		Latching bool     `toml:"latching"`
		Push     []string `toml:"push"`
	} `toml:"talk"`
	Listen struct {
		Topic  string `toml:"topic"`
		Accept string `toml:"accept"`
		Count  int    `toml:"count"`
	} `toml:"listen"`
}

func defaultRunConfig() runConfig {
	return runConfig{
		Talk: talkConfig{
			Topic:   "/chatter",
			Message: "hello world",
			Rate:    time.Second,
		},
		Listen: listenConfig{
			Topic: "/chatter",
		},
	}
}

func loadRunConfig(path string) (runConfig, error) {
	cfg := defaultRunConfig()

	var raw fileRunConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return runConfig{}, fmt.Errorf("load run config: %w", err)
	}

	if meta.IsDefined("talk", "topic") {
		cfg.Talk.Topic = strings.TrimSpace(raw.Talk.Topic)
	}
	if meta.IsDefined("talk", "message") {
		cfg.Talk.Message = raw.Talk.Message
	}
	if meta.IsDefined("talk", "rate") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Talk.Rate))
		if err != nil {
			return runConfig{}, fmt.Errorf("parse talk.rate: %w", err)
		}
		if d <= 0 {
			return runConfig{}, fmt.Errorf("talk.rate must be positive")
		}
		cfg.Talk.Rate = d
	}
	if meta.IsDefined("talk", "latching") {
		cfg.Talk.Latching = raw.Talk.Latching
	}
	if meta.IsDefined("talk", "push") {
		cfg.Talk.Push = normalizeAddrs(raw.Talk.Push)
	}

	if meta.IsDefined("listen", "topic") {
		cfg.Listen.Topic = strings.TrimSpace(raw.Listen.Topic)
	}
	if meta.IsDefined("listen", "accept") {
		cfg.Listen.Accept = strings.TrimSpace(raw.Listen.Accept)
	}
	if meta.IsDefined("listen", "count") {
		if raw.Listen.Count < 0 {
			return runConfig{}, fmt.Errorf("listen.count must not be negative")
		}
		cfg.Listen.Count = raw.Listen.Count
	}

	if cfg.Talk.Topic == "" || cfg.Listen.Topic == "" {
		return runConfig{}, fmt.Errorf("topic must not be empty")
	}
	return cfg, nil
}

func normalizeAddrs(in []string) []string {
	out := make([]string, 0, len(in))
	for _, addr := range in {
		v := strings.TrimSpace(addr)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
