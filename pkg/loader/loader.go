// Package loader owns the currently displayed model. At most one parse runs
// at a time: a new request cancels and supersedes the one in flight, and a
// result is published only if no newer request arrived meanwhile.
//
// Copyright (C) 2026 Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.
package loader

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	lverrors "layerview/pkg/errors"
	"layerview/pkg/log"
	"layerview/pkg/metrics"
	"layerview/pkg/model"
	"layerview/pkg/parse"
)

// EventType names a load lifecycle event.
type EventType string

const (
	EventStarted   EventType = "started"
	EventProgress  EventType = "progress"
	EventFinished  EventType = "finished"
	EventFailed    EventType = "failed"
	EventCancelled EventType = "cancelled"
	EventCleared   EventType = "cleared"
)

// Event is delivered to subscribers.
type Event struct {
	Type       EventType `json:"type"`
	Generation uint64    `json:"generation"`
	Source     string    `json:"source,omitempty"`
	// Progress is the completed fraction, -1 when the size is unknown.
	Progress float64 `json:"progress,omitempty"`
	Lines    int     `json:"lines,omitempty"`
	Layers   int     `json:"layers,omitempty"`
	Warnings int     `json:"warnings,omitempty"`
	Error    string  `json:"error,omitempty"`
	Code     string  `json:"code,omitempty"`
}

// Loaded is a published model with the data of the load that produced it.
// It is never modified after publication.
type Loaded struct {
	Generation   uint64
	Source       string
	Model        *model.Model
	Warnings     []parse.Warning
	WarningCount int
	LoadedAt     time.Time
	Duration     time.Duration
}

// Service serializes loads and publishes their models.
type Service struct {
	opts    parse.Options
	metrics *metrics.LoadMetrics
	log     *log.Logger

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	subs   map[int]chan Event
	nextID int

	current atomic.Pointer[Loaded]
	history *History
	wg      sync.WaitGroup
}

// New creates a service. lm may be nil.
func New(opts parse.Options, lm *metrics.LoadMetrics) *Service {
	return &Service{
		opts:    opts,
		metrics: lm,
		log:     log.GetLogger("loader"),
		subs:    make(map[int]chan Event),
		history: NewHistory(DefaultHistorySize),
	}
}

// History returns the log of finished, failed and cancelled loads.
func (s *Service) History() *History {
	return s.history
}

// Current returns the published model, or nil.
func (s *Service) Current() *Loaded {
	return s.current.Load()
}

// Subscribe registers for events. Delivery never blocks the loader: events
// are dropped for a subscriber whose buffer is full. The returned function
// unsubscribes and closes the channel.
func (s *Service) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

func (s *Service) emit(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emitLocked(ev)
}

func (s *Service) emitLocked(ev Event) {
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// begin supersedes any load in flight and returns the new generation.
func (s *Service) begin(parent context.Context) (context.Context, uint64) {
	ctx, cancel := context.WithCancel(parent)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.gen++
	s.cancel = cancel
	return ctx, s.gen
}

// Load parses the file at path and publishes the model. It returns
// LOAD_CANCELLED if ctx is cancelled or a newer request supersedes it.
func (s *Service) Load(ctx context.Context, path string) (*Loaded, error) {
	ctx, gen := s.begin(ctx)
	return s.run(ctx, gen, path, func(ctx context.Context, progress parse.ProgressFunc) (*parse.Result, error) {
		return parse.File(ctx, path, s.opts, progress)
	})
}

// LoadReader is Load for an already open stream. name identifies the source
// in events.
func (s *Service) LoadReader(ctx context.Context, name string, r io.Reader) (*Loaded, error) {
	ctx, gen := s.begin(ctx)
	return s.run(ctx, gen, name, func(ctx context.Context, progress parse.ProgressFunc) (*parse.Result, error) {
		return parse.Parse(ctx, r, s.opts, progress)
	})
}

// LoadAsync starts Load on a new goroutine and returns its generation. The
// outcome is reported through events.
func (s *Service) LoadAsync(path string) uint64 {
	ctx, gen := s.begin(context.Background())
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx, gen, path, func(ctx context.Context, progress parse.ProgressFunc) (*parse.Result, error) {
			return parse.File(ctx, path, s.opts, progress)
		})
	}()
	return gen
}

// Wait blocks until all loads started with LoadAsync have returned.
func (s *Service) Wait() {
	s.wg.Wait()
}

type parseFunc func(context.Context, parse.ProgressFunc) (*parse.Result, error)

func (s *Service) run(ctx context.Context, gen uint64, source string, fn parseFunc) (*Loaded, error) {
	end := func(string) {}
	if s.metrics != nil {
		end = s.metrics.Started()
	}
	rec := Record{Generation: gen, Source: source, StartTime: time.Now()}
	defer func() {
		rec.EndTime = time.Now()
		rec.Duration = rec.EndTime.Sub(rec.StartTime).Seconds()
		s.history.add(rec)
	}()
	s.emit(Event{Type: EventStarted, Generation: gen, Source: source})

	res, err := fn(ctx, func(p parse.Progress) {
		s.emit(Event{Type: EventProgress, Generation: gen, Source: source, Progress: p.Fraction(), Lines: p.Lines})
	})
	if res != nil {
		rec.Warnings = res.WarningCount
	}
	if res != nil && s.metrics != nil {
		for _, w := range res.Warnings {
			s.metrics.Warning(string(w.Code), 1)
		}
		s.metrics.Warning("dropped", res.WarningCount-len(res.Warnings))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		res, err = nil, lverrors.CancelledError(context.Canceled)
	} else if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}

	switch {
	case lverrors.IsCancelled(err):
		end(metrics.OutcomeCancelled)
		rec.Status, rec.Code = EventCancelled, string(lverrors.ErrLoadCancelled)
		s.log.WithField("source", source).Debug("load %d superseded or cancelled", gen)
		s.emitLocked(Event{Type: EventCancelled, Generation: gen, Source: source})
		return nil, err
	case err != nil:
		outcome := metrics.OutcomeFailed
		if lverrors.Is(err, lverrors.ErrModelEmpty) {
			outcome = metrics.OutcomeEmpty
		}
		end(outcome)
		rec.Status, rec.Code = EventFailed, string(lverrors.CodeOf(err))
		s.log.WithField("source", source).WithError(err).Warn("load failed")
		ev := Event{Type: EventFailed, Generation: gen, Source: source, Error: err.Error(), Code: string(lverrors.CodeOf(err))}
		if res != nil {
			ev.Warnings = res.WarningCount
		}
		s.emitLocked(ev)
		return nil, err
	}

	loaded := &Loaded{
		Generation:   gen,
		Source:       source,
		Model:        res.Model,
		Warnings:     res.Warnings,
		WarningCount: res.WarningCount,
		LoadedAt:     time.Now(),
		Duration:     res.Duration,
	}
	s.current.Store(loaded)
	end(metrics.OutcomeFinished)
	st := res.Model.Stats
	rec.Status, rec.Lines, rec.Layers = EventFinished, st.Lines, res.Model.LayerCount()
	if s.metrics != nil {
		s.metrics.Published(st.Lines, res.Model.LayerCount(), st.PrintSegments, st.TravelSegments)
	}
	s.log.WithFields(log.Fields{
		"source":   source,
		"layers":   res.Model.LayerCount(),
		"segments": res.Model.SegmentCount(),
		"warnings": res.WarningCount,
	}).Info("model loaded in %s", res.Duration.Round(time.Millisecond))
	s.emitLocked(Event{
		Type:       EventFinished,
		Generation: gen,
		Source:     source,
		Progress:   1,
		Lines:      st.Lines,
		Layers:     res.Model.LayerCount(),
		Warnings:   res.WarningCount,
	})
	return loaded, nil
}

// Clear cancels any load in flight and drops the published model.
func (s *Service) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.gen++
	s.current.Store(nil)
	if s.metrics != nil {
		s.metrics.Cleared()
	}
	s.emitLocked(Event{Type: EventCleared, Generation: s.gen})
}

// Close cancels any load in flight and waits for background loads. A load
// still running when Close is called ends as cancelled.
func (s *Service) Close() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.gen++
	s.mu.Unlock()
	s.wg.Wait()
}
