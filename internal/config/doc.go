// Package config loads the operator configuration.
//
// Configuration comes from an optional YAML file, overlaid on Default() and
// then on a small set of APPSYNC_* environment variables. The result is
// validated before use.
package config
