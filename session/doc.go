// Package session builds and caches configured handles to the table engine.
//
// A Session owns the tuning parameters of a process: how many files are read
// concurrently (sql.shuffle.partitions), the largest table a read may return
// (driver.maxResultSize), the compression of Arrow IPC files (serializer) and
// whether IPC files may be used at all (sql.execution.arrow.enabled, with
// sql.execution.arrow.fallback.enabled selecting CSV instead). It performs
// every schema-enforced file read and write of the pipeline.
//
// Sessions are memoized: GetOrCreate with the same Conf and application name
// returns the same *Session, and concurrent first calls construct it once.
// Sessions are never torn down.
package session
