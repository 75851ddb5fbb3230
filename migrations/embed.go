// Package migrations embeds the SQL migration files so they can be used
// by the goose programmatic API in tests, server bootstrap and the device.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed postgres/*.sql sqlite/*.sql
var files embed.FS

// Postgres holds the server schema: the trip_state table and its change
// notification trigger. Pass it to goose.NewProvider with DialectPostgres.
var Postgres = sub("postgres")

// SQLite holds the device's local key/value schema.
var SQLite = sub("sqlite")

func sub(dir string) fs.FS {
	f, err := fs.Sub(files, dir)
	if err != nil {
		panic("migrations: " + err.Error())
	}
	return f
}
