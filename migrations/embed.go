// Package migrations embeds the CQL schema applied at startup.
package migrations

import "embed"

//go:embed cassandra/*.cql
var Cassandra embed.FS
