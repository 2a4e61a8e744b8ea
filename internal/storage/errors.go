package storage

import "errors"

var (
	// ErrNotFound is returned when a snapshot, account or transaction does not exist
	ErrNotFound = errors.New("not found")
	// ErrSnapshotExists is returned by Put when the snapshot key is already taken
	ErrSnapshotExists = errors.New("snapshot already exists")
	// ErrCorruptSnapshot is returned when a snapshot payload cannot be decoded
	ErrCorruptSnapshot = errors.New("corrupt snapshot payload")
)
