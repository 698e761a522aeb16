// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"net/http"
	"time"

	"github.com/spf13/viper"

	"github.com/pdiddy/census-collector/internal/collect"
	"github.com/pdiddy/census-collector/internal/resolve"
	"github.com/pdiddy/census-collector/internal/search"
	"github.com/pdiddy/census-collector/pkg/types"
)

const (
	defaultTimeout    = 60 * time.Second
	defaultBatchDelay = 1 * time.Second
	defaultUserAgent  = "census-collector/0.1"
)

// stringSetting returns the flag value when set, else the viper config value.
func stringSetting(flagValue, viperKey string) string {
	if flagValue != "" {
		return flagValue
	}
	return viper.GetString(viperKey)
}

// newHTTPConfig assembles the shared HTTP settings from flags, config,
// and loaded secrets.
func newHTTPConfig(timeout time.Duration) types.HTTPConfig {
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return types.HTTPConfig{
		Timeout:   timeout,
		UserAgent: defaultUserAgent,
		APIKey:    secretDefault("census-api-key", viper.GetString("api_key")),
	}
}

// newPipeline wires the fetch client, resolver, and search aggregator the
// pipeline commands share.
func newPipeline(httpCfg types.HTTPConfig, searchCfg types.SearchConfig) (*collect.Client, *resolve.Resolver, *search.Aggregator) {
	httpClient := &http.Client{Timeout: httpCfg.Timeout}

	client := &collect.Client{HTTP: httpClient, Cfg: httpCfg}
	resolver := &resolve.Resolver{Prober: client}
	aggregator := &search.Aggregator{
		Backends: []search.Backend{
			&search.CensusBackend{Client: httpClient, Cfg: httpCfg},
			&search.ReporterBackend{Client: httpClient, Cfg: httpCfg},
		},
		Resolver: resolver,
		Cfg:      searchCfg,
	}
	return client, resolver, aggregator
}
