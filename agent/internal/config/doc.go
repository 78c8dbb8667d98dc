// Package config loads and watches the agent configuration file (config.yaml).
//
// Top-level types:
//   - Config{Agent}: full config tree parsed from YAML
//   - AgentConfig: sink_address, sink_timeout, collect_interval, sources [],
//     status
//   - Source: id, type (ecowaste|owlet|xemtec), name, endpoint, auth, tls,
//     site fields (country, city), adapter fields (weight_flows, devices,
//     readers) and the naming convention tables
//   - AuthConfig: mode (session|basic|mtls|none), cert/key/ca files,
//     username, password_env, token header; Password() resolves from the
//     environment
//   - StatusConfig: listen address, report TTL and API-key auth
//
// Load(path) reads the YAML file, applies defaults (60s collect interval,
// 5s sink timeout, 10m status TTL), then validates required fields and enums.
//
// Watch(ctx, path, onChange) uses fsnotify on the parent directory to detect
// rewrites of the file (including rename-based atomic saves) and calls
// onChange with the newly parsed Config.
package config
