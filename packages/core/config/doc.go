// Package config loads testforge settings from .testforge.json or
// testforge.config.json.
//
// Unset fields fall back to DefaultConfig. Command line flags are applied on
// top with Merge.
package config
