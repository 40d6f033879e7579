// Package config loads and validates Flowline configuration.
//
// Values come from three layers, later layers winning:
//
//  1. Built-in defaults (Default)
//  2. The YAML config file
//  3. FLOWLINE_* environment variables (secrets and deployment hosts)
//
// Secrets such as the MQTT password, InfluxDB token, SMTP password and
// Slack webhook URL should be supplied through the environment rather
// than committed to the config file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
package config
