//go:build !unix

package tokencache

// lockDir is a no-op where flock(2) is unavailable; writes still rely on
// rename being atomic and the in-process mutex.
func lockDir(string, bool) (func(), error) {
	return func() {}, nil
}
