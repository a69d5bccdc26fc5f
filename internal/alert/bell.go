package alert

import (
	"context"
	"errors"
	"os/exec"
	"sync"
	"time"
)

type Playback interface {
	Stop() error
}

type Player interface {
	Start() (Playback, error)
}

// Bell owns the single alert tone. Ring stops and releases whatever is
// playing before starting again; each ring stops itself after Duration.
type Bell struct {
	player   Player
	duration time.Duration

	mu  sync.Mutex
	cur Playback
	gen uint64
}

func NewBell(p Player, duration time.Duration) *Bell {
	if duration <= 0 {
		duration = 5 * time.Second
	}
	return &Bell{player: p, duration: duration}
}

func (b *Bell) Ring(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.releaseLocked()
	pb, err := b.player.Start()
	if err != nil {
		return err
	}
	b.cur = pb
	b.gen++
	gen := b.gen
	time.AfterFunc(b.duration, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.gen == gen {
			b.releaseLocked()
		}
	})
	return nil
}

// Silence stops the current tone, if any.
func (b *Bell) Silence() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.releaseLocked()
}

func (b *Bell) Playing() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cur != nil
}

func (b *Bell) releaseLocked() {
	if b.cur == nil {
		return
	}
	_ = b.cur.Stop()
	b.cur = nil
}

// ExecPlayer loops an external audio command (aplay, afplay, paplay) on
// the sound file until stopped.
type ExecPlayer struct {
	Command string
	Args    []string
	Sound   string
}

func (p ExecPlayer) Start() (Playback, error) {
	if p.Command == "" {
		return nil, errors.New("no bell command configured")
	}
	if _, err := exec.LookPath(p.Command); err != nil {
		return nil, err
	}
	pb := &execPlayback{stop: make(chan struct{}), done: make(chan struct{})}
	go pb.loop(p)
	return pb, nil
}

type execPlayback struct {
	mu   sync.Mutex
	cmd  *exec.Cmd
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func (pb *execPlayback) loop(p ExecPlayer) {
	defer close(pb.done)
	for {
		cmd := exec.Command(p.Command, append(append([]string(nil), p.Args...), p.Sound)...)
		pb.mu.Lock()
		select {
		case <-pb.stop:
			pb.mu.Unlock()
			return
		default:
		}
		if err := cmd.Start(); err != nil {
			pb.mu.Unlock()
			return
		}
		pb.cmd = cmd
		pb.mu.Unlock()
		_ = cmd.Wait()

		select {
		case <-pb.stop:
			return
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func (pb *execPlayback) Stop() error {
	pb.once.Do(func() {
		pb.mu.Lock()
		close(pb.stop)
		if pb.cmd != nil && pb.cmd.Process != nil {
			_ = pb.cmd.Process.Kill()
		}
		pb.mu.Unlock()
		<-pb.done
	})
	return nil
}
