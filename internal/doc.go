// Package internal contains helper utilities that are intentionally private to labkit,
// including session token generation and token fingerprints.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - rate: Redis counters throttling failed authentication per address
//   - logging: zap logger construction
//   - settings: viper-backed process settings
//
// # What this package must NOT do
//
//   - Export types that appear in the public labkit API.
//   - Be imported by any package outside the labkit module.
package internal
