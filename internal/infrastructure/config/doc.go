// Package config handles loading and validating lidarlink configuration.
//
// Values are resolved in order: built-in defaults, the YAML file,
// LIDARLINK_* environment variables, then command-line overrides (the
// instrument URL and --rate). Validation runs last, so a URL given on the
// command line satisfies the required instrument.url.
//
// Sensitive values (MQTT password, InfluxDB token) should come from the
// environment rather than the file.
//
// Usage:
//
//	rate := 1.0
//	cfg, err := config.LoadWithOverrides("lidarlink.yaml", config.Overrides{
//	    URL:      "opc.tcp://10.0.0.5:4840",
//	    PollRate: &rate,
//	})
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.PollInterval())
package config
