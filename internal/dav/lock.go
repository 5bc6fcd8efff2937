package dav

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/webdav"
)

// statelessLockSystem satisfies webdav.LockSystem without tracking any
// state: every lock request succeeds, every confirmation succeeds, and
// unlock always succeeds. Interoperability with clients that require
// locks to actually be honored is explicitly out of scope.
type statelessLockSystem struct{}

func newLockSystem() webdav.LockSystem { return statelessLockSystem{} }

func (statelessLockSystem) Confirm(now time.Time, name0, name1 string, conditions ...webdav.Condition) (func(), error) {
	return func() {}, nil
}

func (statelessLockSystem) Create(now time.Time, details webdav.LockDetails) (string, error) {
	return "opaquelocktoken:" + uuid.NewString(), nil
}

func (statelessLockSystem) Refresh(now time.Time, token string, duration time.Duration) (webdav.LockDetails, error) {
	return webdav.LockDetails{Duration: duration}, nil
}

func (statelessLockSystem) Unlock(now time.Time, token string) error {
	return nil
}
