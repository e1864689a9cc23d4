// Package config loads the mediacid TOML configuration.
//
// Sections:
//   - transcoder: transcoding service endpoint, credentials and poll timing
//   - store: metadata store backend (memory, sqlite, fs) and identity scope
//   - cas: content network backends, see storage/casconfig
//   - keys: local keystore directory and identity
//   - log: level and format
//   - http: read API bind address
package config
