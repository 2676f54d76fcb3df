package playback

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type versionedSource struct {
	mu      sync.Mutex
	state   State
	version uint64
}

func (v *versionedSource) set(mutate func(*State)) (State, uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	mutate(&v.state)
	v.version++
	return v.state.Clone(), v.version
}

func (v *versionedSource) get() (State, uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state.Clone(), v.version
}

func savedSnapshot(t *testing.T, s Storage, c func(Restored)) {
	t.Helper()
	data, err := s.LoadItem(KeyMusicState)
	if err != nil || data == nil {
		t.Fatalf("Expected saved state, err=%v", err)
	}
	r, _ := Restore(data, testCatalog("a", "b"))
	c(r)
}

func TestFileStorageRoundtrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	s := NewFileStorage(dir)

	data, err := s.LoadItem(KeyMusicState)
	if err != nil || data != nil {
		t.Fatalf("Expected nil data for missing key, got %q, %v", data, err)
	}

	if err := s.SaveItem(KeyMusicState, []byte(`{"volume":0.3}`)); err != nil {
		t.Fatalf("SaveItem failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "musicState.json")); err != nil {
		t.Fatalf("Expected state file: %v", err)
	}

	data, err = s.LoadItem(KeyMusicState)
	if err != nil {
		t.Fatalf("LoadItem failed: %v", err)
	}
	if string(data) != `{"volume":0.3}` {
		t.Errorf("Unexpected data %q", data)
	}
}

func TestFileStorageSanitizesKeys(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStorage(dir)

	if err := s.SaveItem("../escape", []byte("x")); err != nil {
		t.Fatalf("SaveItem failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ".._escape.json")); err != nil {
		t.Errorf("Expected sanitized file inside storage dir: %v", err)
	}
}

func TestSaveNowWritesImmediately(t *testing.T) {
	store := NewMemoryStorage()
	p := NewPersister(store, time.Hour)
	src := &versionedSource{state: NewState()}

	st, ver := src.set(func(s *State) { s.SetVolume(0.9) })
	if err := p.SaveNow(st, ver); err != nil {
		t.Fatalf("SaveNow failed: %v", err)
	}

	if n := store.Writes(KeyMusicState); n != 1 {
		t.Errorf("Expected 1 write, got %d", n)
	}
	savedSnapshot(t, store, func(r Restored) {
		if r.State.Volume != 0.9 {
			t.Errorf("Expected 0.9, got %f", r.State.Volume)
		}
	})
}

func TestRequestSaveCoalesces(t *testing.T) {
	store := NewMemoryStorage()
	p := NewPersister(store, 40*time.Millisecond)
	src := &versionedSource{state: NewState()}
	p.SetProvider(src.get)

	for i := 0; i < 20; i++ {
		src.set(func(s *State) { s.Position = float64(i) })
		p.RequestSave()
	}
	time.Sleep(100 * time.Millisecond)

	if n := store.Writes(KeyMusicState); n != 1 {
		t.Errorf("Expected 1 coalesced write, got %d", n)
	}
}

func TestFlushWritesPending(t *testing.T) {
	store := NewMemoryStorage()
	p := NewPersister(store, time.Hour)
	src := &versionedSource{state: NewState()}
	p.SetProvider(src.get)

	src.set(func(s *State) { s.Position = 42 })
	p.RequestSave()
	p.Flush()

	if n := store.Writes(KeyMusicState); n != 1 {
		t.Fatalf("Expected 1 write after flush, got %d", n)
	}
	savedSnapshot(t, store, func(r Restored) {
		if r.State.Position != 42 {
			t.Errorf("Expected position 42, got %f", r.State.Position)
		}
	})
}

func TestStaleVersionNotWritten(t *testing.T) {
	store := NewMemoryStorage()
	p := NewPersister(store, time.Hour)
	src := &versionedSource{state: NewState()}

	old, oldVer := src.set(func(s *State) { s.SetVolume(0.2) })
	fresh, freshVer := src.set(func(s *State) { s.SetVolume(0.7) })

	if err := p.SaveNow(fresh, freshVer); err != nil {
		t.Fatalf("SaveNow failed: %v", err)
	}
	if err := p.SaveNow(old, oldVer); err != nil {
		t.Fatalf("SaveNow failed: %v", err)
	}

	savedSnapshot(t, store, func(r Restored) {
		if r.State.Volume != 0.7 {
			t.Errorf("Expected newest volume 0.7, got %f", r.State.Volume)
		}
	})
}

func TestCloseFlushes(t *testing.T) {
	store := NewMemoryStorage()
	p := NewPersister(store, time.Hour)
	src := &versionedSource{state: NewState()}
	p.SetProvider(src.get)

	src.set(func(s *State) { s.Muted = true })
	p.RequestSave()
	p.Close()

	savedSnapshot(t, store, func(r Restored) {
		if !r.State.Muted {
			t.Error("Expected teardown write to include muted")
		}
	})
}

func TestLoadStateRewritesZeroVolume(t *testing.T) {
	store := NewMemoryStorage()
	store.SaveItem(KeyMusicState, []byte(`{"volume":0,"muted":true}`))
	p := NewPersister(store, time.Hour)

	r, found, err := p.LoadState(testCatalog("a"))
	if err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if !found {
		t.Fatal("Expected snapshot to be found")
	}
	if r.State.Volume != 0.5 {
		t.Errorf("Expected 0.5, got %f", r.State.Volume)
	}

	data, _ := store.LoadItem(KeyMusicState)
	fixed, err := Restore(data, testCatalog("a"))
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if fixed.VolumeReset || !fixed.State.Muted {
		t.Errorf("Expected stored snapshot to be rewritten with volume 0.5, got %s", data)
	}
}

func TestLoadStateNothingSaved(t *testing.T) {
	p := NewPersister(NewMemoryStorage(), time.Hour)

	r, found, err := p.LoadState(testCatalog("a"))
	if err != nil || found {
		t.Fatalf("Expected nothing found, got found=%v err=%v", found, err)
	}
	if r.State.Volume != DefaultVolume {
		t.Errorf("Expected defaults, got %+v", r.State)
	}
}

func TestLoopAndEffectsVolumeKeys(t *testing.T) {
	store := NewMemoryStorage()
	p := NewPersister(store, time.Hour)

	if p.LoadLoop() {
		t.Error("Expected loop off by default")
	}
	if err := p.SaveLoop(true); err != nil {
		t.Fatalf("SaveLoop failed: %v", err)
	}
	if !p.LoadLoop() {
		t.Error("Expected loop on after save")
	}

	if v := p.LoadEffectsVolume(0.5); v != 0.5 {
		t.Errorf("Expected default 0.5, got %f", v)
	}
	if err := p.SaveEffectsVolume(0.25); err != nil {
		t.Fatalf("SaveEffectsVolume failed: %v", err)
	}
	if v := p.LoadEffectsVolume(0.5); v != 0.25 {
		t.Errorf("Expected 0.25, got %f", v)
	}

	for _, bad := range []string{"abc", "1.5", "-0.1"} {
		store.SaveItem(KeySoundEffectsVolume, []byte(bad))
		if v := p.LoadEffectsVolume(0.5); v != 0.5 {
			t.Errorf("Expected default for %q, got %f", bad, v)
		}
	}
}
