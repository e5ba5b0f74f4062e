// Package config provides configuration management for poeadmin.
//
// Configuration is read from config.yaml in a single directory, by default
// ~/.config/poeadmin, and then overlaid by environment variables. Command-line
// flags are applied last by the cmd package.
//
// # Configuration File
//
// Example config.yaml:
//
//	endpoint: https://poe.example.com
//	identity_provider_path: /auth/linuxdo
//	log_level: info
//	http:
//	  timeout: 30s
//	handshake:
//	  timeout: 2m
//	  poll_interval: 1s
//	  relay_port: 0
//	session:
//	  verify_path: /api/users
//	  retry_delay: 2s
//	roster:
//	  page_size: 10
//	  filtering: server   # or client
//	  account_id: 0       # your own account id, 0 if unknown
//
// # Environment
//
// Every key has an environment variable prefixed with POEADMIN_, nested keys
// joined by underscores, for example POEADMIN_ENDPOINT, POEADMIN_HTTP_TIMEOUT
// and POEADMIN_ROSTER_ACCOUNT_ID.
package config
