package transport

import (
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/austinkregel/local-media/soundboardd/internal/audio"
	"github.com/austinkregel/local-media/soundboardd/internal/catalog"
	"github.com/austinkregel/local-media/soundboardd/internal/playback"
)

// fakeElement is an in-memory audio.Element. Tests drive readiness and
// playback events explicitly.
type fakeElement struct {
	mu        sync.Mutex
	id        uint64
	path      string
	signals   map[uint64]map[audio.SignalKind]chan struct{}
	duration  float64
	current   float64
	paused    bool
	volume    float64
	blocked   bool
	activated bool
	handler   audio.EventHandler
	plays     int
}

func newFakeElement() *fakeElement {
	return &fakeElement{
		signals:  make(map[uint64]map[audio.SignalKind]chan struct{}),
		duration: math.NaN(),
		paused:   true,
	}
}

func (f *fakeElement) SetSource(path string) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.id++
	f.path = path
	f.duration = math.NaN()
	f.current = 0
	f.paused = true
	sigs := make(map[audio.SignalKind]chan struct{})
	for _, k := range audio.ReadySignals {
		sigs[k] = make(chan struct{})
	}
	f.signals[f.id] = sigs
	return f.id
}

func (f *fakeElement) Signal(kind audio.SignalKind) <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signals[f.id][kind]
}

func (f *fakeElement) Play() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.blocked && !f.activated {
		return audio.ErrAutoplayBlocked
	}
	f.paused = false
	f.plays++
	return nil
}

func (f *fakeElement) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = true
}

func (f *fakeElement) Paused() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused
}

func (f *fakeElement) CurrentTime() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *fakeElement) SetCurrentTime(seconds float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = seconds
}

func (f *fakeElement) Duration() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.duration
}

func (f *fakeElement) SetVolume(v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volume = v
}

func (f *fakeElement) Volume() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.volume
}

func (f *fakeElement) UserActivation() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activated = true
}

func (f *fakeElement) SetEventHandler(h audio.EventHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
}

func (f *fakeElement) Close() error { return nil }

// ready makes the current source report duration and fires its signals
func (f *fakeElement) ready(duration float64) {
	f.mu.Lock()
	f.duration = duration
	sigs := f.signals[f.id]
	f.mu.Unlock()
	for _, k := range audio.ReadySignals {
		close(sigs[k])
	}
}

// fireSignals closes the signals of an older source without touching duration
func (f *fakeElement) fireSignals(id uint64) {
	f.mu.Lock()
	sigs := f.signals[id]
	f.mu.Unlock()
	for _, k := range audio.ReadySignals {
		close(sigs[k])
	}
}

func (f *fakeElement) setCurrent(seconds float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = seconds
}

func (f *fakeElement) emit(kind audio.EventKind, id uint64) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	h(audio.Event{Kind: kind, SourceID: id})
}

func (f *fakeElement) currentID() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.id
}

func (f *fakeElement) currentPath() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.path
}

func testCatalog() *catalog.Catalog {
	return catalog.New([]catalog.Track{
		{Filename: "alpha.mp3", DisplayName: "Alpha"},
		{Filename: "desk.mp3", DisplayName: "Winston's Desk"},
		{Filename: "zeta.mp3", DisplayName: "Zeta"},
	}, nil, catalog.DefaultOptions())
}

type fixture struct {
	el        *fakeElement
	storage   *playback.MemoryStorage
	persister *playback.Persister
	ctrl      *Controller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		el:      newFakeElement(),
		storage: playback.NewMemoryStorage(),
	}
	f.persister = playback.NewPersister(f.storage, time.Hour)
	f.ctrl = New(f.el, f.persister, Options{
		AssetPath:    func(name string) string { return "Music/" + name },
		PollInterval: 5 * time.Millisecond,
		MaxPolls:     20,
		Rand:         rand.New(rand.NewSource(1)),
	})
	f.persister.SetProvider(f.ctrl.Snapshot)
	t.Cleanup(func() {
		f.ctrl.Close()
		f.persister.Close()
	})
	return f
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func (f *fixture) phaseIs(p Phase) func() bool {
	return func() bool { return f.ctrl.Status().Phase == p }
}

// playing selects and starts name, then marks it ready
func (f *fixture) playing(t *testing.T, name string) {
	t.Helper()
	if err := f.ctrl.ToggleTrack(name); err != nil {
		t.Fatalf("ToggleTrack(%s) failed: %v", name, err)
	}
	f.el.ready(120)
	waitFor(t, "playing", f.phaseIs(PhasePlaying))
}

func TestSelectTrackLoadsThenReady(t *testing.T) {
	f := newFixture(t)
	f.ctrl.AttachCatalog(testCatalog())

	if err := f.ctrl.SelectTrack("zeta.mp3"); err != nil {
		t.Fatalf("SelectTrack failed: %v", err)
	}
	st := f.ctrl.Status()
	if st.Phase != PhaseLoading || st.Track == nil || st.Track.Filename != "zeta.mp3" {
		t.Fatalf("Expected loading zeta, got %+v", st)
	}
	if f.el.currentPath() != "Music/zeta.mp3" {
		t.Errorf("Expected asset path Music/zeta.mp3, got %s", f.el.currentPath())
	}

	f.el.ready(90)
	waitFor(t, "ready", f.phaseIs(PhaseReady))
	if d := f.ctrl.Status().Duration; d != 90 {
		t.Errorf("Expected duration 90, got %v", d)
	}
}

func TestSelectUnknownTrack(t *testing.T) {
	f := newFixture(t)
	f.ctrl.AttachCatalog(testCatalog())

	if err := f.ctrl.SelectTrack("missing.mp3"); !errors.Is(err, ErrUnknownTrack) {
		t.Errorf("Expected ErrUnknownTrack, got %v", err)
	}
	if f.ctrl.Status().Phase != PhaseIdle {
		t.Error("Expected unknown track to leave the controller idle")
	}
}

func TestMetadataByPollingWithoutSignals(t *testing.T) {
	f := newFixture(t)
	f.ctrl.AttachCatalog(testCatalog())
	f.ctrl.SelectTrack("alpha.mp3")

	// Duration becomes known but no readiness signal ever fires
	f.el.mu.Lock()
	f.el.duration = 30
	f.el.mu.Unlock()

	waitFor(t, "ready by polling", f.phaseIs(PhaseReady))
}

func TestStaleMetadataIsDiscarded(t *testing.T) {
	f := newFixture(t)
	f.ctrl.AttachCatalog(testCatalog())

	f.ctrl.SelectTrack("alpha.mp3")
	idA := f.el.currentID()
	f.ctrl.SelectTrack("zeta.mp3")

	// Late readiness for alpha, plus a late event tagged with alpha's source
	f.el.fireSignals(idA)
	f.el.emit(audio.EventEnded, idA)
	time.Sleep(30 * time.Millisecond)

	st := f.ctrl.Status()
	if st.Track == nil || st.Track.Filename != "zeta.mp3" {
		t.Fatalf("Expected zeta to stay current, got %+v", st.Track)
	}
	if st.Phase != PhaseLoading {
		t.Errorf("Expected zeta still loading, got %s", st.Phase)
	}

	f.el.ready(60)
	waitFor(t, "zeta ready", f.phaseIs(PhaseReady))
	if st := f.ctrl.Status(); st.Track.Filename != "zeta.mp3" {
		t.Errorf("Expected zeta, got %s", st.Track.Filename)
	}
}

func TestPlayWhileLoadingStartsWhenReady(t *testing.T) {
	f := newFixture(t)
	f.ctrl.AttachCatalog(testCatalog())
	f.ctrl.SelectTrack("alpha.mp3")

	if err := f.ctrl.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if f.ctrl.Status().Phase != PhaseLoading {
		t.Fatal("Expected play to wait for metadata")
	}

	f.el.ready(10)
	waitFor(t, "playing", f.phaseIs(PhasePlaying))
	if f.el.Paused() {
		t.Error("Expected element to be playing")
	}
}

func TestPlayWithoutTrack(t *testing.T) {
	f := newFixture(t)
	f.ctrl.AttachCatalog(testCatalog())

	if err := f.ctrl.Play(); !errors.Is(err, ErrNoTrack) {
		t.Errorf("Expected ErrNoTrack, got %v", err)
	}
	if err := f.ctrl.TogglePause(); !errors.Is(err, ErrNoTrack) {
		t.Errorf("Expected ErrNoTrack from TogglePause, got %v", err)
	}
}

func TestAutoplayBlockedRetriesOnGesture(t *testing.T) {
	f := newFixture(t)
	f.el.blocked = true
	f.ctrl.AttachCatalog(testCatalog())
	f.ctrl.SelectTrack("alpha.mp3")
	f.el.ready(10)
	waitFor(t, "ready", f.phaseIs(PhaseReady))

	if err := f.ctrl.Play(); err != nil {
		t.Fatalf("Blocked play should not be an error, got %v", err)
	}
	st := f.ctrl.Status()
	if st.Phase != PhaseReady || !st.AwaitGesture {
		t.Fatalf("Expected ready with armed retry, got %+v", st)
	}

	// Non-qualifying input does nothing
	f.ctrl.Gesture("hover")
	if f.ctrl.Status().Phase != PhaseReady {
		t.Fatal("Expected hover to be ignored")
	}

	f.ctrl.Gesture(GestureClick)
	st = f.ctrl.Status()
	if st.Phase != PhasePlaying || st.AwaitGesture {
		t.Fatalf("Expected playing after click, got %+v", st)
	}

	// The retry fires at most once
	f.ctrl.Pause()
	f.ctrl.Gesture(GestureKey)
	if f.ctrl.Status().Phase != PhasePaused {
		t.Error("Expected no second retry")
	}
}

func TestPauseDisarmsGestureRetry(t *testing.T) {
	f := newFixture(t)
	f.el.blocked = true
	f.ctrl.AttachCatalog(testCatalog())
	f.ctrl.SelectTrack("alpha.mp3")
	f.el.ready(10)
	waitFor(t, "ready", f.phaseIs(PhaseReady))

	f.ctrl.Play()
	f.ctrl.Pause()
	f.ctrl.Gesture(GestureClick)

	if f.ctrl.Status().Phase == PhasePlaying {
		t.Error("Expected pause to cancel the deferred play")
	}
}

func TestTogglePause(t *testing.T) {
	f := newFixture(t)
	f.ctrl.AttachCatalog(testCatalog())
	f.playing(t, "alpha.mp3")

	f.el.setCurrent(42)
	if err := f.ctrl.TogglePause(); err != nil {
		t.Fatalf("TogglePause failed: %v", err)
	}
	st := f.ctrl.Status()
	if st.Phase != PhasePaused || !st.Paused || st.Position != 42 {
		t.Errorf("Expected paused at 42, got %+v", st)
	}

	f.ctrl.TogglePause()
	if f.ctrl.Status().Phase != PhasePlaying {
		t.Error("Expected resume")
	}
}

func TestToggleTrackStopsPlayingTrack(t *testing.T) {
	f := newFixture(t)
	f.ctrl.AttachCatalog(testCatalog())
	f.playing(t, "alpha.mp3")

	if err := f.ctrl.ToggleTrack("alpha.mp3"); err != nil {
		t.Fatalf("ToggleTrack failed: %v", err)
	}
	st := f.ctrl.Status()
	if st.Phase != PhaseIdle || st.Track != nil || st.Position != 0 {
		t.Errorf("Expected idle with no track, got %+v", st)
	}
}

func TestSeekClampsAndRequiresMetadata(t *testing.T) {
	f := newFixture(t)
	f.ctrl.AttachCatalog(testCatalog())
	f.ctrl.SelectTrack("alpha.mp3")

	if err := f.ctrl.Seek(5); !errors.Is(err, ErrNotSeekable) {
		t.Errorf("Expected ErrNotSeekable while loading, got %v", err)
	}

	f.el.ready(100)
	waitFor(t, "ready", f.phaseIs(PhaseReady))

	tests := []struct {
		target float64
		want   float64
	}{
		{30, 30},
		{-5, 0},
		{500, 100},
	}
	for _, tt := range tests {
		if err := f.ctrl.Seek(tt.target); err != nil {
			t.Fatalf("Seek(%v) failed: %v", tt.target, err)
		}
		if got := f.el.CurrentTime(); got != tt.want {
			t.Errorf("Seek(%v): element at %v, want %v", tt.target, got, tt.want)
		}
		if got := f.ctrl.Status().Position; got != tt.want {
			t.Errorf("Seek(%v): status at %v, want %v", tt.target, got, tt.want)
		}
	}
}

func TestDragSeekIsNotOverwrittenByTimeUpdates(t *testing.T) {
	f := newFixture(t)
	f.ctrl.AttachCatalog(testCatalog())
	f.playing(t, "alpha.mp3")

	f.el.setCurrent(10)
	f.el.emit(audio.EventTimeUpdate, f.el.currentID())

	if err := f.ctrl.BeginSeekDrag(); err != nil {
		t.Fatalf("BeginSeekDrag failed: %v", err)
	}
	f.ctrl.DragSeek(80)

	f.el.setCurrent(11)
	f.el.emit(audio.EventTimeUpdate, f.el.currentID())
	if got := f.ctrl.Status().Position; got != 80 {
		t.Fatalf("Expected dragged position 80 during drag, got %v", got)
	}

	if err := f.ctrl.EndSeekDrag(80); err != nil {
		t.Fatalf("EndSeekDrag failed: %v", err)
	}
	f.el.emit(audio.EventTimeUpdate, f.el.currentID())
	st := f.ctrl.Status()
	if st.Dragging || st.Position != 80 {
		t.Errorf("Expected committed position 80 after release, got %+v", st)
	}
}

func TestVolumeAndMute(t *testing.T) {
	f := newFixture(t)
	f.ctrl.AttachCatalog(testCatalog())

	f.ctrl.SetVolume(0.7)
	if f.el.Volume() != 0.7 {
		t.Errorf("Expected element volume 0.7, got %v", f.el.Volume())
	}

	f.ctrl.ToggleMute()
	if f.el.Volume() != 0 {
		t.Errorf("Expected muted element volume 0, got %v", f.el.Volume())
	}

	f.ctrl.ToggleMute()
	if f.el.Volume() != 0.7 {
		t.Errorf("Expected unmute to restore 0.7, got %v", f.el.Volume())
	}
}

func TestEndedWithoutModesGoesToEnded(t *testing.T) {
	f := newFixture(t)
	f.ctrl.AttachCatalog(testCatalog())
	f.playing(t, "alpha.mp3")

	f.el.emit(audio.EventEnded, f.el.currentID())
	st := f.ctrl.Status()
	if st.Phase != PhaseEnded || st.Track != nil {
		t.Errorf("Expected ended with no track, got %+v", st)
	}
}

func TestLoopBeatsShuffleAtEnd(t *testing.T) {
	f := newFixture(t)
	f.ctrl.AttachCatalog(testCatalog())
	f.playing(t, "alpha.mp3")
	f.ctrl.SetShuffle(true)
	f.ctrl.SetLoop(true)
	cursor := f.ctrl.Status().ShuffleCursor

	f.el.setCurrent(119)
	f.el.emit(audio.EventEnded, f.el.currentID())

	st := f.ctrl.Status()
	if st.Track == nil || st.Track.Filename != "alpha.mp3" {
		t.Fatalf("Expected alpha to replay, got %+v", st.Track)
	}
	if st.Position != 0 || f.el.CurrentTime() != 0 {
		t.Errorf("Expected restart at 0, got %v", st.Position)
	}
	if st.ShuffleCursor != cursor {
		t.Errorf("Expected shuffle cursor to stay at %d, got %d", cursor, st.ShuffleCursor)
	}
	if st.Phase != PhasePlaying {
		t.Errorf("Expected playing, got %s", st.Phase)
	}
}

func TestShuffleAdvancesAtEnd(t *testing.T) {
	f := newFixture(t)
	f.ctrl.AttachCatalog(testCatalog())
	f.playing(t, "alpha.mp3")
	f.ctrl.SetShuffle(true)

	st := f.ctrl.Status()
	f.el.emit(audio.EventEnded, f.el.currentID())

	next := f.ctrl.Status()
	if next.ShuffleCursor != (st.ShuffleCursor+1)%3 {
		t.Errorf("Expected cursor to advance from %d, got %d", st.ShuffleCursor, next.ShuffleCursor)
	}
	if next.Phase != PhaseLoading || next.Track == nil || next.Track.Filename == "alpha.mp3" {
		t.Fatalf("Expected next shuffle track loading, got %+v", next)
	}

	f.el.ready(50)
	waitFor(t, "next playing", f.phaseIs(PhasePlaying))
}

func TestToggleShuffleTwiceRestoresEmptyQueue(t *testing.T) {
	f := newFixture(t)
	f.ctrl.AttachCatalog(testCatalog())
	f.ctrl.SelectTrack("zeta.mp3")

	f.ctrl.SetShuffle(true)
	if st := f.ctrl.Status(); st.ShuffleLength != 3 {
		t.Fatalf("Expected 3-track shuffle order, got %d", st.ShuffleLength)
	}
	f.ctrl.SetShuffle(false)

	st := f.ctrl.Status()
	if st.Shuffling || st.ShuffleLength != 0 || st.ShuffleCursor != 0 {
		t.Errorf("Expected empty queue and cursor 0, got %+v", st)
	}
	if st.Track == nil || st.Track.Filename != "zeta.mp3" {
		t.Errorf("Expected current track unchanged, got %+v", st.Track)
	}
}

func TestSkipWithoutShufflePlaysDefaultTrack(t *testing.T) {
	f := newFixture(t)
	f.ctrl.AttachCatalog(testCatalog())
	f.playing(t, "zeta.mp3")

	if err := f.ctrl.Skip(); err != nil {
		t.Fatalf("Skip failed: %v", err)
	}
	st := f.ctrl.Status()
	if st.Track == nil || st.Track.Filename != "desk.mp3" {
		t.Errorf("Expected highlighted desk track, got %+v", st.Track)
	}
}

func TestSkipWithEmptyCatalog(t *testing.T) {
	f := newFixture(t)
	f.ctrl.AttachCatalog(nil)

	if err := f.ctrl.Skip(); !errors.Is(err, ErrNoTrack) {
		t.Errorf("Expected ErrNoTrack, got %v", err)
	}
	if err := f.ctrl.SetShuffle(true); err != nil {
		t.Errorf("Expected shuffle over an empty catalog to succeed, got %v", err)
	}
	if f.ctrl.Catalog() != nil {
		t.Error("Expected unavailable catalog to be reported as nil")
	}
}

func TestLoadErrorStaysLoading(t *testing.T) {
	f := newFixture(t)
	f.ctrl.AttachCatalog(testCatalog())
	f.ctrl.ToggleTrack("alpha.mp3")

	h := f.el.handler
	h(audio.Event{Kind: audio.EventError, SourceID: f.el.currentID(), Err: audio.ErrAssetLoad})

	st := f.ctrl.Status()
	if st.Phase != PhaseLoading || st.LoadError == "" {
		t.Errorf("Expected loading with error, got %+v", st)
	}
	if st.Track == nil || st.Track.Filename != "alpha.mp3" {
		t.Error("Expected no fallback track")
	}

	// Recoverable by picking another track
	f.ctrl.ToggleTrack("zeta.mp3")
	f.el.ready(10)
	waitFor(t, "zeta playing", f.phaseIs(PhasePlaying))
}

func TestRestoreFromSnapshot(t *testing.T) {
	f := newFixture(t)
	f.storage.SaveItem(playback.KeyMusicState, []byte(
		`{"currentSong":"zeta.mp3","currentTime":33,"paused":false,"volume":0.8,"muted":false,"isShuffling":false,"currentSongIndex":0,"shuffleQueue":null}`))
	f.storage.SaveItem(playback.KeyMusicLoopState, []byte("true"))

	f.ctrl.AttachCatalog(testCatalog())
	st := f.ctrl.Status()
	if st.Track == nil || st.Track.Filename != "zeta.mp3" || !st.Looping || st.Volume != 0.8 {
		t.Fatalf("Expected restored zeta with loop at 0.8, got %+v", st)
	}

	f.el.ready(100)
	waitFor(t, "restored playing", f.phaseIs(PhasePlaying))
	if f.el.CurrentTime() != 33 {
		t.Errorf("Expected seek to 33, got %v", f.el.CurrentTime())
	}
}

func TestPersistsDiscreteActions(t *testing.T) {
	f := newFixture(t)
	f.ctrl.AttachCatalog(testCatalog())

	before := f.storage.Writes(playback.KeyMusicState)
	f.ctrl.SetVolume(0.3)
	f.ctrl.ToggleMute()
	if got := f.storage.Writes(playback.KeyMusicState) - before; got != 2 {
		t.Errorf("Expected 2 immediate writes, got %d", got)
	}

	restored, found, err := f.persister.LoadState(testCatalog())
	if err != nil || !found {
		t.Fatalf("LoadState: found=%v err=%v", found, err)
	}
	if restored.State.Volume != 0.3 || !restored.State.Muted {
		t.Errorf("Expected volume 0.3 muted, got %+v", restored.State)
	}
}

func TestListenersNotified(t *testing.T) {
	f := newFixture(t)
	f.ctrl.AttachCatalog(testCatalog())

	var got []Phase
	f.ctrl.OnChange(func(s Status) { got = append(got, s.Phase) })
	f.ctrl.SelectTrack("alpha.mp3")
	f.ctrl.Stop()

	if len(got) != 2 || got[0] != PhaseLoading || got[1] != PhaseIdle {
		t.Errorf("Expected [loading idle], got %v", got)
	}
}
