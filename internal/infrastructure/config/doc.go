// Package config handles loading and validating the supervisor configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (CHIMERA_*)
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Broker passwords, the InfluxDB token and the JWT secret should be set via environment variables
//   - The control API refuses to start without a JWT secret, since it can move hardware
//
// Usage:
//
//	cfg, err := config.Load("configs/supervisor.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.WakeInterval())
package config
