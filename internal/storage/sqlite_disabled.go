//go:build !sqlite
// +build !sqlite

package storage

import (
	"errors"

	"leadsweep/pkg/logx"
)

// Built without the sqlite tag: keep the binary free of the cgo-less SQLite
// engine unless the deployment actually wants it.
func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	_ = cfg
	_ = log
	return nil, errors.New("sqlite storage not built in (rebuild with -tags sqlite)")
}
