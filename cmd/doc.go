// Package cmd implements the command-line interface of netlevel. It provides
// a hierarchical command structure for running the server and for one-shot
// client operations against it.
//
// The package is organized into several subpackages:
//
//   - serve: Starts and configures the netlevel server
//   - base: Key-value operations on a base (get, put, del, list, clear, stat, drop)
//   - user: User administration (list, add, del, pass, perm, base)
//   - util: Shared utilities for flags, environment and client setup (internal use)
//
// Every flag can also be set as environment variable NETLEVEL_<FLAG>, or in
// a .env / .env.local file in the working directory.
//
// See netlevel --help for a list of all commands.
package cmd
