// Package config handles configuration loading for agentdesk.
//
// # Configuration File
//
// The file is chosen in this order:
//
//  1. The --config flag
//  2. The AGENTDESK_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/agentdesk/config.yaml (~/.config when unset)
//
// A missing file at the default location is not an error; Default() is used.
// Files ending in .toml are parsed as TOML, everything else as YAML. Before
// loading, .env files are read into the environment with godotenv.
//
// # Environment Variable Expansion
//
//	backend:
//	  token: "${AGENTDESK_TOKEN}"
//
// # Configuration Sections
//
//	backend:
//	  url: "http://localhost:8000"
//	  token_file: "~/.config/agentdesk/token"
//	  language: "en"
//
//	persistence:
//	  backend: "sqlite"      # sqlite, remote, none
//	  path: "~/.local/share/agentdesk/agentdesk.db"
//	  url: ""                # conversation service for the remote backend
//	  write_timeout: "5s"
//	  queue_size: 256
//
//	agents:
//	  default: "general"
//	  enabled: ["general", "kb", "ims", "code"]
//
//	messages:
//	  placeholder: "Analyzing your request..."
//	  fallback: "I couldn't generate a response."
//	  failure: "Something went wrong. Please try again."
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//	  file: ""        # the chat UI logs here instead of stderr
package config
