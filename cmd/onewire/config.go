package main

import (
	"github.com/warthog618/config"
	"github.com/warthog618/config/blob"
	"github.com/warthog618/config/blob/decoder/json"
	"github.com/warthog618/config/dict"
	"github.com/warthog618/config/env"
	"github.com/warthog618/config/pflag"

	"github.com/onewirenet/ds2480/adapters/ds2480"
)

// loadAdapterConfig merges, highest priority first, command-line flags
// ("--port", "--bytebang-read", "--default-baud", "--config.file"),
// ONEWIRE_-prefixed environment variables, an optional "onewire.json"
// config file, and these defaults into a ds2480.Config.
func loadAdapterConfig() ds2480.Config {
	defaultConfig := map[string]interface{}{
		"port":            "/dev/ttyUSB0",
		"bytebang-read":   false,
		"default-baud":    0,
		"pullup-microamp": 0,
	}
	def := dict.New(dict.WithMap(defaultConfig))
	cfg := config.New(
		pflag.New(),
		env.New(env.WithEnvPrefix("ONEWIRE_")),
		config.WithDefault(def),
	)
	cfg.Append(blob.NewConfigFile(cfg, "config.file", "onewire.json", json.NewDecoder()))
	final := cfg.GetConfig("", config.WithMust)

	return ds2480.Config{
		Port:           final.MustGet("port").String(),
		ByteBangRead:   final.MustGet("bytebang-read").Bool(),
		DefaultBaud:    int(final.MustGet("default-baud").Int()),
		PullupMicroamp: int(final.MustGet("pullup-microamp").Int()),
	}
}
