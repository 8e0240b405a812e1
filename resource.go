package relq

import (
	"fmt"
	"strings"
)

// Resource is a parsed resource address of the form
//
//	<scheme>://<host>/<database>::<table-name>
//
// The portion before the `::` separator is the connection string handed to
// the backend driver untouched; the portion after names a table within that
// database. The compiler core treats the whole string as opaque; only the
// provider packages resolve it.
type Resource struct {
	Scheme string
	DSN    string
	Table  string
}

// ParseResource splits a resource address into its connection string and
// table name. The separator is the last `::`, since connection strings may
// themselves contain double colons (sqlite's :memory:, for one).
func ParseResource(s string) (Resource, error) {
	sep := strings.LastIndex(s, "::")
	if sep < 0 || sep+2 == len(s) {
		return Resource{}, fmt.Errorf("resource %q: missing ::<table-name> suffix", s)
	}
	dsn, table := s[:sep], s[sep+2:]
	scheme, _, ok := strings.Cut(dsn, "://")
	if !ok || scheme == "" {
		return Resource{}, fmt.Errorf("resource %q: missing <scheme>:// prefix", s)
	}
	return Resource{Scheme: scheme, DSN: dsn, Table: table}, nil
}
