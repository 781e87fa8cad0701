// Package config loads, normalizes, and validates newsgraph configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// NEWSGRAPH_LLM_API_KEY and OPENROUTER_API_KEY. The Config type centralizes
// every knob the daemon and CLI need: database locations, LLM admission
// limits, worker pool sizing, resolver thresholds, and scoring fallbacks.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
