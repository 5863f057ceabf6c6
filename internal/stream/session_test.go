package stream

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/chatsim/internal/chatgen"
	"github.com/MrWong99/chatsim/internal/phrase"
)

type fakeTransport struct {
	mu      sync.Mutex
	sent    []chatgen.Message
	pings   int
	closes  int
	sendErr error
	sentCh  chan struct{}
	pingCh  chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{sentCh: make(chan struct{}, 100), pingCh: make(chan struct{}, 100)}
}

func (f *fakeTransport) Name() string { return "fake" }

func (f *fakeTransport) Send(_ context.Context, msg chatgen.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, msg)
	f.sentCh <- struct{}{}
	return nil
}

func (f *fakeTransport) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings++
	f.pingCh <- struct{}{}
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeTransport) counts() (sent, pings, closes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent), f.pings, f.closes
}

type fakeSource struct {
	mu    sync.Mutex
	calls int
}

func (s *fakeSource) Generate(_ context.Context, topic string, _ phrase.Mode) chatgen.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return chatgen.Message{ID: "id", Username: "Viewer42", Content: topic, Category: phrase.CategoryComments}
}

func (s *fakeSource) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

var fastPacing = Pacing{Min: MinInterval, Max: MinInterval + 10*time.Millisecond}

func newTestSession(src Source, keepAlive time.Duration, opts ...Option) *Session {
	opts = append([]Option{WithRand(rand.New(rand.NewPCG(3, 4)))}, opts...)
	return NewSession(src, Config{
		Topic:     "minecraft",
		Mode:      phrase.ModeGame,
		Pacing:    fastPacing,
		KeepAlive: keepAlive,
	}, opts...)
}

func waitFor(t *testing.T, ch <-chan struct{}, n int, timeout time.Duration) {
	t.Helper()
	deadline := time.After(timeout)
	for i := 0; i < n; i++ {
		select {
		case <-ch:
		case <-deadline:
			t.Fatalf("timed out after %d of %d events", i, n)
		}
	}
}

func runAsync(ctx context.Context, s *Session, tr Transport) <-chan error {
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, tr) }()
	return done
}

func TestSession_EmitsMessages(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	tr := newFakeTransport()
	s := newTestSession(src, time.Hour)

	done := runAsync(context.Background(), s, tr)
	waitFor(t, tr.sentCh, 2, 5*time.Second)

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	sent, _, closes := tr.counts()
	if sent < 2 {
		t.Errorf("sent = %d, want >= 2", sent)
	}
	if closes != 1 {
		t.Errorf("closes = %d, want 1", closes)
	}
	if s.State() != StateStopped {
		t.Errorf("state = %s, want stopped", s.State())
	}
	if s.Emitted() != sent {
		t.Errorf("Emitted() = %d, transport saw %d", s.Emitted(), sent)
	}
}

func TestSession_CancelBeforeFirstMessage(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	tr := newFakeTransport()
	s := newTestSession(src, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, s, tr)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Outlast the first scheduled emission.
	time.Sleep(MinInterval + 200*time.Millisecond)

	sent, pings, closes := tr.counts()
	if sent != 0 || pings != 0 {
		t.Errorf("sent = %d pings = %d after cancel, want none", sent, pings)
	}
	if src.count() != 0 {
		t.Errorf("source called %d times after cancel", src.count())
	}
	if closes != 1 {
		t.Errorf("closes = %d, want 1", closes)
	}
	if s.State() != StateStopped {
		t.Errorf("state = %s, want stopped", s.State())
	}
}

func TestSession_NoEmissionAfterStop(t *testing.T) {
	t.Parallel()

	tr := newFakeTransport()
	s := newTestSession(&fakeSource{}, time.Hour)

	done := runAsync(context.Background(), s, tr)
	waitFor(t, tr.sentCh, 1, 5*time.Second)
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	<-done
	before, _, _ := tr.counts()

	time.Sleep(2 * fastPacing.Max)

	after, _, closes := tr.counts()
	if after != before {
		t.Errorf("sent grew from %d to %d after Stop", before, after)
	}
	if closes != 1 {
		t.Errorf("closes = %d, want 1", closes)
	}
}

func TestSession_KeepAlive(t *testing.T) {
	t.Parallel()

	tr := newFakeTransport()
	s := NewSession(&fakeSource{}, Config{
		Topic:     "charla",
		Mode:      phrase.ModeJustChatting,
		Pacing:    Pacing{Min: 20 * time.Second, Max: 30 * time.Second},
		KeepAlive: 20 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, s, tr)
	waitFor(t, tr.pingCh, 3, 5*time.Second)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	sent, pings, _ := tr.counts()
	if sent != 0 {
		t.Errorf("sent = %d, want 0 with a long message delay", sent)
	}
	if pings < 3 {
		t.Errorf("pings = %d, want >= 3", pings)
	}
}

func TestSession_SendFailureEndsStream(t *testing.T) {
	t.Parallel()

	tr := newFakeTransport()
	tr.sendErr = errors.New("broken pipe")
	s := newTestSession(&fakeSource{}, time.Hour)

	err := s.Run(context.Background(), tr)
	if !errors.Is(err, ErrTransportClosed) {
		t.Fatalf("Run = %v, want ErrTransportClosed", err)
	}
	if _, _, closes := tr.counts(); closes != 1 {
		t.Errorf("closes = %d, want 1", closes)
	}
	if s.State() != StateStopped {
		t.Errorf("state = %s, want stopped", s.State())
	}
}

func TestSession_PauseResume(t *testing.T) {
	t.Parallel()

	s := newTestSession(&fakeSource{}, time.Hour)

	first := newFakeTransport()
	done := runAsync(context.Background(), s, first)
	waitFor(t, first.sentCh, 1, 5*time.Second)

	if err := s.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s.State() != StatePaused {
		t.Fatalf("state = %s, want paused", s.State())
	}
	if _, _, closes := first.counts(); closes != 1 {
		t.Errorf("first transport closes = %d, want 1", closes)
	}

	second := newFakeTransport()
	resumed := make(chan error, 1)
	go func() { resumed <- s.Resume(context.Background(), second) }()
	waitFor(t, second.sentCh, 1, 5*time.Second)

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := <-resumed; err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if s.State() != StateStopped {
		t.Errorf("state = %s, want stopped", s.State())
	}
}

// stallingTransport blocks its first Send until release is closed, ignoring
// cancellation, so a paused run can be held open across Resume.
type stallingTransport struct {
	*fakeTransport
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (s *stallingTransport) Send(ctx context.Context, msg chatgen.Message) error {
	s.once.Do(func() {
		close(s.entered)
		<-s.release
	})
	return s.fakeTransport.Send(ctx, msg)
}

func TestSession_ResumeBeforePausedRunReturns(t *testing.T) {
	t.Parallel()

	s := newTestSession(&fakeSource{}, time.Hour)
	first := &stallingTransport{
		fakeTransport: newFakeTransport(),
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
	}
	done := runAsync(context.Background(), s, first)
	select {
	case <-first.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first send never started")
	}

	if err := s.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	second := newFakeTransport()
	resumed := make(chan error, 1)
	go func() { resumed <- s.Resume(context.Background(), second) }()

	deadline := time.Now().Add(5 * time.Second)
	for s.State() != StateStreaming {
		if time.Now().After(deadline) {
			t.Fatal("Resume did not start streaming")
		}
		time.Sleep(time.Millisecond)
	}

	// The paused run finishes only now, after the resumed run took over.
	close(first.release)
	if err := <-done; err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if got := s.State(); got != StateStreaming {
		t.Fatalf("state after paused run returned = %s, want streaming", got)
	}
	waitFor(t, second.sentCh, 1, 5*time.Second)

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case err := <-resumed:
		if err != nil {
			t.Fatalf("Resume: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("resumed run did not end after Stop")
	}
	if got := s.State(); got != StateStopped {
		t.Errorf("state = %s, want stopped", got)
	}
}

func TestSession_InvalidTransitions(t *testing.T) {
	t.Parallel()

	s := newTestSession(&fakeSource{}, time.Hour)

	if err := s.Resume(context.Background(), newFakeTransport()); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Resume from idle = %v, want ErrInvalidTransition", err)
	}
	if err := s.Pause(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Pause from idle = %v, want ErrInvalidTransition", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Run(ctx, newFakeTransport()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := s.Run(context.Background(), newFakeTransport()); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second Run = %v, want ErrInvalidTransition", err)
	}
	if err := s.Stop(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Stop when stopped = %v, want ErrInvalidTransition", err)
	}
}

func TestSession_DelaysWithinPacing(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var delays []time.Duration
	tr := newFakeTransport()
	s := newTestSession(&fakeSource{}, time.Hour, WithDelayHook(func(d time.Duration) {
		mu.Lock()
		delays = append(delays, d)
		mu.Unlock()
	}))

	done := runAsync(context.Background(), s, tr)
	waitFor(t, tr.sentCh, 2, 5*time.Second)
	_ = s.Stop()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(delays) < 2 {
		t.Fatalf("observed %d delays, want >= 2", len(delays))
	}
	for _, d := range delays {
		if d < fastPacing.Min || d >= fastPacing.Max {
			t.Errorf("delay %v outside %v", d, fastPacing)
		}
	}
}

func TestNewSession_Defaults(t *testing.T) {
	t.Parallel()

	s := NewSession(&fakeSource{}, Config{Topic: "x", Pacing: Pacing{Min: time.Millisecond, Max: time.Hour}})
	cfg := s.Config()
	if cfg.Pacing != DefaultPacing {
		t.Errorf("Pacing = %v, want default", cfg.Pacing)
	}
	if cfg.KeepAlive != DefaultKeepAlive {
		t.Errorf("KeepAlive = %v, want %v", cfg.KeepAlive, DefaultKeepAlive)
	}
	if cfg.Mode != phrase.ModeGame {
		t.Errorf("Mode = %q, want game", cfg.Mode)
	}
	if s.State() != StateIdle {
		t.Errorf("state = %s, want idle", s.State())
	}
}
