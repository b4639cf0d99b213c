package binutil

// Releaser releases the daemon context (pid file) on exit
type Releaser interface {
	Release() error
}

type nopReleaser struct{}

func (nopReleaser) Release() error { return nil }
