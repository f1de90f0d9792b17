package store

import (
	"bytes"
	"time"

	"github.com/gocql/gocql"
)

// NewTimeUUID returns a fresh version 1 time UUID, the ordering key of every
// timeline row. Two ids generated in the same instant still differ.
func NewTimeUUID() string {
	return gocql.TimeUUID().String()
}

// ValidTimeUUID reports whether s parses as a version 1 time UUID.
func ValidTimeUUID(s string) bool {
	u, err := gocql.ParseUUID(s)
	return err == nil && u.Version() == 1
}

// TimeOf returns the wall-clock instant embedded in a time UUID, or the zero
// time when s is not one.
func TimeOf(s string) time.Time {
	u, err := gocql.ParseUUID(s)
	if err != nil || u.Version() != 1 {
		return time.Time{}
	}
	return u.Time()
}

// CompareTimeUUID orders time UUIDs the way Cassandra orders timeuuid
// columns: by embedded timestamp, then by raw bytes.
func CompareTimeUUID(a, b string) int {
	ua, errA := gocql.ParseUUID(a)
	ub, errB := gocql.ParseUUID(b)
	if errA != nil || errB != nil {
		return bytes.Compare([]byte(a), []byte(b))
	}
	ta, tb := ua.Timestamp(), ub.Timestamp()
	switch {
	case ta < tb:
		return -1
	case ta > tb:
		return 1
	}
	return bytes.Compare(ua.Bytes(), ub.Bytes())
}
