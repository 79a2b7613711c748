// Package config handles loading and validating smart-home configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (SMARTHOME_* prefix via envconfig)
//   - Validation of required fields and channel-name conflicts
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (broker passwords, InfluxDB tokens) should be set via
//     environment variables rather than committed to the config file
//   - The config file should have restricted permissions (0600)
//
// Performance Characteristics:
//   - Configuration is loaded once at startup
//   - No runtime overhead after initial load
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Realtime.Channels.Control)
package config
