package replay

import (
	"context"
	"time"

	"github.com/tphakala/parrot-tester/internal/engine"
	"github.com/tphakala/parrot-tester/internal/logger"
	"github.com/tphakala/parrot-tester/internal/scheduler"
)

// Poster runs a function on the pipeline's execution context and waits
// for it. scheduler.Loop implements it.
type Poster interface {
	Do(ctx context.Context, fn func()) error
}

// Player feeds a recording into a delegate in real time.
type Player struct {
	poster Poster
	host   *Delegate
	speed  float64
	log    logger.Logger
}

// NewPlayer creates a player. speed scales playback; values <= 0 play at
// real time.
func NewPlayer(poster Poster, host *Delegate, speed float64, log logger.Logger) *Player {
	if speed <= 0 {
		speed = 1
	}
	if log == nil {
		log = logger.Global().Module("replay")
	}
	return &Player{poster: poster, host: host, speed: speed, log: log}
}

// Play delivers frames, spacing them by their timestamp differences. It
// returns when all frames were delivered or ctx is done.
func (p *Player) Play(ctx context.Context, frames []engine.RawFrame) error {
	if len(frames) == 0 {
		return nil
	}
	start := time.Now()
	first := frames[0].Ts
	p.log.Info("playback started", logger.Int("frames", len(frames)), logger.Float64("speed", p.speed))

	for i := range frames {
		raw := frames[i]
		offset := time.Duration((raw.Ts - first) / p.speed * float64(time.Second))
		if wait := time.Until(start.Add(offset)); wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		if err := p.poster.Do(ctx, func() { p.host.Feed(raw) }); err != nil {
			return err
		}
	}
	p.log.Info("playback finished", logger.Duration("elapsed", time.Since(start)))
	return nil
}

// PlayVirtual delivers frames on a manual clock: before each frame the
// clock advances to the frame time, firing any capture timeouts due in
// between. After the last frame the clock runs on by drain so pending
// captures finalize.
func PlayVirtual(clock *scheduler.Manual, host *Delegate, frames []engine.RawFrame, drain time.Duration) {
	if len(frames) == 0 {
		return
	}
	first := frames[0].Ts
	base := clock.Now()
	for _, raw := range frames {
		target := base + time.Duration((raw.Ts-first)*float64(time.Second))
		if d := target - clock.Now(); d > 0 {
			clock.Advance(d)
		}
		host.Feed(raw)
	}
	clock.Advance(drain)
}
