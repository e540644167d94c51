package db

import "errors"

var errDBUnavailable = errors.New("db unavailable")

// byteOrder makes PostgreSQL sort client ids the way the other backends do,
// independent of the database collation.
const byteOrder = `client_id COLLATE "C" ASC`
