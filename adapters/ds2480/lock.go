package ds2480

import (
	"context"
	"sync"

	"github.com/onewirenet/ds2480"
)

// lockTokenKey is the context.Value key an exclusiveLock stamps onto the
// context it hands back from Acquire, and checks for on re-entry.
type lockTokenKey struct{}

// exclusiveLock serializes access to the one serial resource every
// operation on this adapter ultimately shares. Re-entrancy can't be keyed
// off goroutine identity the way a thread-based implementation would key
// it off the calling thread, since Go has no safe way to introspect a
// goroutine's identity; instead it's carried explicitly as a token stashed
// in the context the first Acquire call returns. A caller that already
// holds the lock passes that same context back in and is let through
// without blocking; nesting depth is tracked so only the outermost Release
// actually frees the resource.
//
// The resource itself is a capacity-1 channel rather than a sync.Mutex: a
// mutex has no cancellable Lock, so a context deadline firing while blocked
// would either leave a goroutine parked forever waiting on Lock() or hand
// ownership to an abandoned waiter with nobody left to unlock it. A channel
// send/receive can be selected against ctx.Done() cleanly.
type exclusiveLock struct {
	sem  chan struct{}
	once sync.Once

	meta  sync.Mutex
	token int
	depth int
}

func (l *exclusiveLock) init() {
	l.once.Do(func() {
		l.sem = make(chan struct{}, 1)
	})
}

// Acquire blocks until the lock is free (or ctx is done), then returns a
// derived context carrying the lock's current token. A call already
// carrying that token — i.e. a re-entrant call made while this lock is
// held — returns immediately without touching the channel.
func (l *exclusiveLock) Acquire(ctx context.Context) (context.Context, error) {
	l.init()

	l.meta.Lock()
	if tok, ok := ctx.Value(lockTokenKey{}).(int); ok && tok == l.token && l.depth > 0 {
		l.depth++
		l.meta.Unlock()
		return ctx, nil
	}
	l.meta.Unlock()

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ds2480Err("beginExclusive", onewire.KindIO, ctx.Err())
	}

	l.meta.Lock()
	l.token++
	l.depth = 1
	tok := l.token
	l.meta.Unlock()

	return context.WithValue(ctx, lockTokenKey{}, tok), nil
}

// Release gives up one level of ownership. Only when the nesting depth
// drops to zero does it actually free the resource. Calling it with a
// context that never acquired the lock is a no-op.
func (l *exclusiveLock) Release(ctx context.Context) {
	tok, ok := ctx.Value(lockTokenKey{}).(int)

	l.meta.Lock()
	if !ok || tok != l.token || l.depth == 0 {
		l.meta.Unlock()
		return
	}
	l.depth--
	unlock := l.depth == 0
	l.meta.Unlock()

	if unlock {
		<-l.sem
	}
}
