package service

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"covod-recorder/dto"
)

// TimestampRecorder keeps an independent one-tick-per-second clock while a
// recording is active and logs page changes against it. Completed sequences
// are archived under the session key so multiple finished sessions stay
// distinguishable.
type TimestampRecorder struct {
	mu        sync.Mutex
	timer     int
	recording bool
	events    []dto.TimeStamp
	archived  map[string][]dto.TimeStamp
	stop      chan struct{}

	interval time.Duration
}

func NewTimestampRecorder() *TimestampRecorder {
	return &TimestampRecorder{
		archived: make(map[string][]dto.TimeStamp),
		interval: time.Second,
	}
}

// OnRecordingStart resets the timer and enters the recording state. Calling
// it while already recording is a no-op: the timer keeps running and
// in-flight events are kept.
func (r *TimestampRecorder) OnRecordingStart() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recording {
		return
	}
	r.timer = 0
	r.events = nil
	r.recording = true
	r.stop = make(chan struct{})
	go r.tickLoop(r.stop)
}

func (r *TimestampRecorder) tickLoop(stop chan struct{}) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if !r.tick() {
				return
			}
		case <-stop:
			return
		}
	}
}

// tick advances the elapsed-seconds counter. Reports false once the
// recorder has left the recording state.
func (r *TimestampRecorder) tick() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return false
	}
	r.timer++
	return true
}

// OnPageChanged appends a (time, page) event to the working sequence.
// Dropped silently when not recording.
func (r *TimestampRecorder) OnPageChanged(page int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return
	}
	r.events = append(r.events, dto.TimeStamp{Time: r.timer, Page: page})
}

// OnRecordingStop exits the recording state and archives the working
// sequence under sessionKey. Page changes arriving after the stop are
// dropped until the next recording starts.
func (r *TimestampRecorder) OnRecordingStop(sessionKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return
	}
	r.recording = false
	close(r.stop)
	events := r.events
	if events == nil {
		events = []dto.TimeStamp{}
	}
	r.archived[sessionKey] = events
	r.events = nil
}

// Archived returns the completed sequence for a session key.
func (r *TimestampRecorder) Archived(sessionKey string) []dto.TimeStamp {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.archived[sessionKey]
}

// Timer returns the current elapsed-seconds counter.
func (r *TimestampRecorder) Timer() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timer
}

// Recording reports whether the recorder is in the recording state.
func (r *TimestampRecorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// WriteLog persists the archived sequence for sessionKey as
// time-<key>.json in dir and returns the written path.
func (r *TimestampRecorder) WriteLog(sessionKey, dir string) (string, error) {
	events := r.Archived(sessionKey)
	if events == nil {
		return "", fmt.Errorf("no archived timestamps for session %s", sessionKey)
	}

	data, err := json.MarshalIndent(events, "", "   ")
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, TimestampLogName(sessionKey))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write timestamp log: %w", err)
	}
	return path, nil
}

// TimestampLogName returns the persisted log filename for a session key.
func TimestampLogName(sessionKey string) string {
	return fmt.Sprintf("time-%s.json", sessionKey)
}
