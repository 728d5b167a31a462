package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/danmuck/tcpros/internal/config"
	"github.com/danmuck/tcpros/internal/directory"
	"github.com/danmuck/tcpros/internal/observability"
	"github.com/rs/zerolog/log"
)

func defaultPath(kind string) (string, error) {
	switch kind {
	case "node":
		return "cmd/tcprosctl/config.toml", nil
	case "directory":
		return "cmd/tcprosctl/directory.toml", nil
	default:
		return "", fmt.Errorf("unknown kind: %s", kind)
	}
}

func validate(kind, path string) error {
	switch kind {
	case "node":
		_, err := config.LoadNodeConfig(path)
		return err
	case "directory":
		dir, err := directory.LoadFile(path)
		if err != nil {
			return err
		}
		return dir.Close()
	default:
		return fmt.Errorf("unknown kind: %s", kind)
	}
}

func main() {
	kind := flag.String("kind", "node", "config kind: node|directory")
	output := flag.String("output", "", "output path for config template")
	check := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (defaults to per-kind path)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()
	observability.InitLogger("/configgen")

	if *check {
		path := *input
		if path == "" {
			p, err := defaultPath(*kind)
			if err != nil {
				log.Fatal().Err(err).Msg("validate")
			}
			path = p
		}
		if err := validate(*kind, path); err != nil {
			log.Fatal().Err(err).Str("path", path).Msg("config invalid")
		}
		log.Info().Str("kind", *kind).Str("path", path).Msg("config valid")
		return
	}

	target := *output
	if target == "" {
		p, err := defaultPath(*kind)
		if err != nil {
			log.Fatal().Err(err).Msg("generate")
		}
		target = p
	}
	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		fmt.Fprintf(os.Stderr, "configgen: %v\n", err)
		os.Exit(1)
	}
	log.Info().Str("kind", *kind).Str("path", target).Msg("wrote config template")
}
