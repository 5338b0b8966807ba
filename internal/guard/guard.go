// Package guard keeps the process alive while a transmission cycle is in
// flight. The daemon drains the guard before exiting, so a SIGTERM never
// cuts a cycle off mid-post.
package guard

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Token represents one held acquisition. Releasing a token twice is safe.
type Token struct {
	once  sync.Once
	timer *time.Timer
}

// Shutdown is an execution guard backed by a wait group the daemon drains
// on shutdown. A token held longer than maxHold expires and self-releases
// so a wedged cycle cannot block shutdown forever.
type Shutdown struct {
	wg      sync.WaitGroup
	maxHold time.Duration
	logger  *zap.Logger
}

func NewShutdown(maxHold time.Duration, logger *zap.Logger) *Shutdown {
	return &Shutdown{maxHold: maxHold, logger: logger}
}

func (g *Shutdown) Acquire() *Token {
	g.wg.Add(1)
	t := &Token{}
	if g.maxHold > 0 {
		t.timer = time.AfterFunc(g.maxHold, func() {
			g.logger.Warn("guard hold expired, releasing",
				zap.Duration("maxHold", g.maxHold),
			)
			g.Release(t)
		})
	}
	return t
}

func (g *Shutdown) Release(t *Token) {
	if t == nil {
		return
	}
	t.once.Do(func() {
		if t.timer != nil {
			t.timer.Stop()
		}
		g.wg.Done()
	})
}

// Wait blocks until every outstanding token has been released.
func (g *Shutdown) Wait() {
	g.wg.Wait()
}

// Noop is the guard used where nothing outlives the caller anyway, such as
// one-shot CLI commands and tests.
type Noop struct{}

func (Noop) Acquire() *Token  { return &Token{} }
func (Noop) Release(t *Token) {}
