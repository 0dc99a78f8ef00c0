// Package config handles configuration loading for parley-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	bot:
//	  headers:
//	    X-Api-Key: "${PARLEY_BOT_API_KEY}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	session:
//	  waiting_timeout: "5s"
//	  message_delay: "800ms"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: ":8090"
//
// Bot webhook target and verbatim request headers:
//
//	bot:
//	  host: "http://localhost:5005"
//	  headers:
//	    X-Api-Key: "secret"
//
// Attendant channel (empty endpoint selects the in-process broker):
//
//	channel:
//	  endpoint: "localhost:6379"
//
// Session pipeline behavior:
//
//	session:
//	  title: "Support"
//	  welcome_message: "Hello!"
//	  handoff_intent: "handoff"
//	  message_blacklist: ["_restart", "_start", "/restart", "/start"]
//	  waiting_timeout: "5s"
//	  message_delay: "800ms"
//	  external_role: true
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text or json
package config
