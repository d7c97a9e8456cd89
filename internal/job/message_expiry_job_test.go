package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingExpirer struct {
	calls int
	err   error
}

func (c *countingExpirer) ExpireMessages(context.Context) (int, error) {
	c.calls++
	return 1, c.err
}

type stubLocker struct {
	granted  bool
	err      error
	released int
}

func (l *stubLocker) TryLock(context.Context, string, interface{}, time.Duration, int) (bool, error) {
	return l.granted, l.err
}

func (l *stubLocker) UnLock(context.Context, string, interface{}) {
	l.released++
}

func TestMessageExpiryJob(t *testing.T) {
	t.Run("without locker", func(t *testing.T) {
		e := &countingExpirer{}
		NewMessageExpiryJob(e, nil).Run()
		assert.Equal(t, 1, e.calls)
	})

	t.Run("lock held elsewhere", func(t *testing.T) {
		e := &countingExpirer{}
		l := &stubLocker{}
		NewMessageExpiryJob(e, l).Run()
		assert.Zero(t, e.calls)
		assert.Zero(t, l.released)
	})

	t.Run("lock error", func(t *testing.T) {
		e := &countingExpirer{}
		NewMessageExpiryJob(e, &stubLocker{err: errors.New("redis down")}).Run()
		assert.Zero(t, e.calls)
	})

	t.Run("lock acquired and released", func(t *testing.T) {
		e := &countingExpirer{err: errors.New("mongo down")}
		l := &stubLocker{granted: true}
		NewMessageExpiryJob(e, l).Run()
		assert.Equal(t, 1, e.calls)
		assert.Equal(t, 1, l.released)
	})
}
