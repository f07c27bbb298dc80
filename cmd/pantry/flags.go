package main

import (
	"errors"
	"flag"
	"fmt"

	"github.com/maruel/pantry/internal/advisor"
)

// options holds the command line configuration.
type options struct {
	httpAddr           string
	dataDir            string
	logLevel           string
	baseURL            string
	googleClientID     string
	googleClientSecret string
	geminiAPIKey       string
	geminiModel        string
	scope              string
	driver             string
	history            bool
	seed               string
	geoDB              string
	web                string
}

// envKeys maps flag names to the .env keys that can provide them.
var envKeys = map[string]string{
	"http":                 "HTTP",
	"log-level":            "LOG_LEVEL",
	"base-url":             "BASE_URL",
	"google-client-id":     "GOOGLE_CLIENT_ID",
	"google-client-secret": "GOOGLE_CLIENT_SECRET",
	"gemini-api-key":       "GEMINI_API_KEY",
	"gemini-model":         "GEMINI_MODEL",
	"scope":                "SCOPE",
	"driver":               "DRIVER",
	"history":              "HISTORY",
	"seed":                 "SEED",
	"geo-db":               "GEO_DB",
	"web":                  "WEB",
}

func registerFlags(fs *flag.FlagSet) *options {
	o := &options{}
	fs.StringVar(&o.httpAddr, "http", "localhost:8080", "Address to listen on (e.g., localhost:8080, :8080, 0.0.0.0:8080)")
	fs.StringVar(&o.dataDir, "data-dir", "./data", "Data directory")
	fs.StringVar(&o.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	fs.StringVar(&o.baseURL, "base-url", "http://localhost", "Base URL for OAuth callbacks (e.g., https://example.com)")
	fs.StringVar(&o.googleClientID, "google-client-id", "", "Google OAuth client ID")
	fs.StringVar(&o.googleClientSecret, "google-client-secret", "", "Google OAuth client secret")
	fs.StringVar(&o.geminiAPIKey, "gemini-api-key", "", "Gemini API key for recipe suggestions (optional)")
	fs.StringVar(&o.geminiModel, "gemini-model", advisor.DefaultModel, "Gemini model for recipe suggestions")
	fs.StringVar(&o.scope, "scope", "user", "Pantry scope: user (one pantry per user) or global (shared)")
	fs.StringVar(&o.driver, "driver", "jsonl", "Item store: jsonl or sqlite")
	fs.BoolVar(&o.history, "history", false, "Record pantry changes in a git repository in the data directory (jsonl only)")
	fs.StringVar(&o.seed, "seed", "", "YAML file of item: quantity created in new pantries (optional)")
	fs.StringVar(&o.geoDB, "geo-db", "", "Path to MaxMind MMDB file for IP geolocation (optional)")
	fs.StringVar(&o.web, "web", "", "Directory of a built web UI to serve at / (optional)")
	return o
}

// applyEnv sets every flag not in explicit from its .env key, when present.
func applyEnv(fs *flag.FlagSet, env map[string]string, explicit map[string]bool) error {
	for name, key := range envKeys {
		v := env[key]
		if v == "" || explicit[name] {
			continue
		}
		if err := fs.Set(name, v); err != nil {
			return fmt.Errorf("invalid %s in .env: %w", key, err)
		}
	}
	return nil
}

func (o *options) validate() error {
	// Both ID and secret must be set, or neither.
	if (o.googleClientID == "") != (o.googleClientSecret == "") {
		return errors.New("google-client-id and google-client-secret must both be set or both be empty")
	}
	switch o.scope {
	case "user", "global":
	default:
		return fmt.Errorf("unknown scope: %q", o.scope)
	}
	switch o.driver {
	case "jsonl", "sqlite":
	default:
		return fmt.Errorf("unknown driver: %q", o.driver)
	}
	if o.history && o.driver != "jsonl" {
		return errors.New("-history requires -driver=jsonl")
	}
	return nil
}
