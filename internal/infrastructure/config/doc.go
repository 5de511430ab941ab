// Package config handles loading and validating mysa-core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (MYSA_*)
//   - Validation of required fields
//   - Default vendor endpoints and timing constants
//
// Security Considerations:
//   - The account password should be set via MYSA_PASSWORD, not the file
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Sync.PollIntervalDuration())
package config
