// Package await resolves the first of several redundant readiness signals.
package await

import (
	"context"
	"sync"
	"time"
)

// First waits for readiness announced by any of signals, re-polling check
// every interval as a fallback for at most maxPolls ticks. onReady is called
// at most once, on the first signal or poll for which check holds. Later
// signals are ignored. Cancelling ctx abandons the wait without calling
// onReady. A nil check treats every signal as valid.
//
// First does not block; it returns a stop function that abandons the wait.
func First(ctx context.Context, signals []<-chan struct{}, check func() bool, interval time.Duration, maxPolls int, onReady func()) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)

	var once sync.Once
	resolve := func() bool {
		if ctx.Err() != nil {
			return true
		}
		if check != nil && !check() {
			return false
		}
		once.Do(func() {
			cancel()
			onReady()
		})
		return true
	}

	for _, sig := range signals {
		if sig == nil {
			continue
		}
		go func(sig <-chan struct{}) {
			select {
			case <-ctx.Done():
			case <-sig:
				resolve()
			}
		}(sig)
	}

	if interval > 0 && maxPolls > 0 {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for polls := 0; polls < maxPolls; polls++ {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if resolve() {
						return
					}
				}
			}
		}()
	}

	return cancel
}
