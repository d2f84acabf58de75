// Package command defines the openaio-api CLI. It wires flags from the
// command line, the environment and the config file into the caches and the
// HTTP server.
package command
