// Package config provides 12-factor configuration management for CodeLive.
//
// Configuration is loaded from environment variables with sensible defaults.
// An optional TOML file overlays the environment, and CLI flags override
// both.
//
// Configuration Sections:
//   - Server: HTTP listener, CORS origins and shutdown timeout
//   - Storage: Session persistence driver, path, key and write breaker
//   - Preview: Auto-run and debounce delay
//   - Sandbox: Script time budget, call stack and DOM toggle
//   - Console: Panel line limit
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting configuration
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Server running on %s\n", cfg.Address())
//
// Environment Variables:
//   - PORT, HOST, CORS_ORIGINS, SHUTDOWN_TIMEOUT
//   - STORAGE_DRIVER, STORAGE_PATH, STORAGE_KEY
//   - STORAGE_BREAKER_FAILURES, STORAGE_BREAKER_TIMEOUT
//   - PREVIEW_AUTO_RUN, PREVIEW_DELAY
//   - SANDBOX_TIMEOUT, SANDBOX_MAX_CALL_STACK, SANDBOX_MAX_CONSOLE, SANDBOX_ENABLE_DOM
//   - CONSOLE_MAX_LINES
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
package config
