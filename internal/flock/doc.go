// Package flock provides cross-platform file locking utilities.
//
// The run store uses these locks to guard run state files against concurrent
// writers, and the run command uses them for the project-level lock that
// serializes pipeline runs. Locks are exclusive and non-blocking on both
// Unix and Windows systems.
//
// Usage:
//
//	file, _ := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
//	if err := flock.Exclusive(file.Fd()); err != nil {
//	    // Lock not acquired - file is in use
//	}
//	defer flock.Unlock(file.Fd())
package flock
