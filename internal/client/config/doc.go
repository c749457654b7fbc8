// Package config loads runtime configuration for the chat CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// # JSON schema
//
//	{
//	  "server_url": "http://127.0.0.1:3000",
//	  "username": "alice",
//	  "conversation_id": 5,
//	  "request_timeout": "10s"
//	}
package config
