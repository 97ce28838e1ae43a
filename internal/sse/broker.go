// Package sse streams live catalog state to browsers as Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"sync/atomic"
	"time"

	"github.com/starford/picshelf/internal/annotate"
)

// RecordKind names a change to catalog records.
type RecordKind string

// Record change kinds.
const (
	RecordsCreated RecordKind = "created"
	RecordsUpdated RecordKind = "updated"
	RecordsDeleted RecordKind = "deleted"
)

// Event types written on the stream. Annotation events are
// TypeAnnotationPrefix followed by the annotate.EventKind.
const (
	TypeRecordsCreated   = "records.created"
	TypeRecordsUpdated   = "records.updated"
	TypeRecordsDeleted   = "records.deleted"
	TypeBufferChanged    = "buffer.changed"
	TypeAnnotationPrefix = "annotation."
)

const (
	clientBuffer      = 64
	keepAliveInterval = 25 * time.Second
)

// Event is one message on the stream.
type Event struct {
	Type string
	Data any
}

// RecordBatch is the payload of the records.* events.
type RecordBatch struct {
	Paths []string `json:"paths"`
	Count int      `json:"count"`
}

// BufferState is the payload of buffer.changed.
type BufferState struct {
	Dirty   bool `json:"dirty"`
	Records int  `json:"records"`
}

type recordReq struct {
	kind  RecordKind
	paths []string
}

// Broker fans catalog events out to connected clients.
//
// One goroutine owns the client set, the pending record batches, the last
// buffer state and the progress of the active annotation run. Record
// changes are collected for one window and sent as a single batch per kind,
// so a folder scan produces one records.created event instead of one per
// file. New clients are sent the buffer state and, during a run, the latest
// annotation event.
type Broker struct {
	window time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	recordCh      chan recordReq
	bufferCh      chan BufferState
	annotationCh  chan annotate.Event
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker that batches record changes over window.
func NewBroker(window time.Duration) *Broker {
	if window <= 0 {
		window = 500 * time.Millisecond
	}

	b := &Broker{
		window:        window,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		recordCh:      make(chan recordReq, 256),
		bufferCh:      make(chan BufferState, 16),
		annotationCh:  make(chan annotate.Event, 64),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	var (
		clients  = make(map[chan []byte]struct{})
		pending  = make(map[RecordKind][]string)
		seq      uint64
		timer    *time.Timer
		flush    <-chan time.Time
		buffer   *BufferState
		progress *Event
	)

	encode := func(e Event) []byte {
		payload, err := json.Marshal(e.Data)
		if err != nil {
			return nil
		}
		seq++
		return []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", seq, e.Type, payload))
	}
	send := func(ch chan []byte, msg []byte) {
		select {
		case ch <- msg:
		default:
			// Slow client; drop rather than stall the loop.
		}
	}
	broadcast := func(e Event) {
		msg := encode(e)
		if msg == nil {
			return
		}
		for ch := range clients {
			send(ch, msg)
		}
	}
	flushRecords := func() {
		for _, kind := range []RecordKind{RecordsCreated, RecordsUpdated, RecordsDeleted} {
			paths := pending[kind]
			if len(paths) == 0 {
				continue
			}
			slices.Sort(paths)
			paths = slices.Compact(paths)
			broadcast(Event{Type: "records." + string(kind), Data: RecordBatch{Paths: paths, Count: len(paths)}})
		}
		clear(pending)
		flush = nil
	}

	for {
		select {
		case <-b.stopCh:
			if timer != nil {
				timer.Stop()
			}
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}
			if buffer != nil {
				send(ch, encode(Event{Type: TypeBufferChanged, Data: *buffer}))
			}
			if progress != nil {
				send(ch, encode(*progress))
			}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case req := <-b.recordCh:
			pending[req.kind] = append(pending[req.kind], req.paths...)
			if flush == nil {
				timer = time.NewTimer(b.window)
				flush = timer.C
			}

		case <-flush:
			flushRecords()

		case st := <-b.bufferCh:
			buffer = &st
			broadcast(Event{Type: TypeBufferChanged, Data: st})

		case ev := <-b.annotationCh:
			e := Event{Type: TypeAnnotationPrefix + string(ev.Kind), Data: ev}
			if ev.Kind == annotate.EventCompleted {
				progress = nil
			} else {
				progress = &e
			}
			broadcast(e)

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the loop and closes every client channel. Pending record
// batches are dropped.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a client. The channel is closed by Unsubscribe or Close.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// PublishRecords queues record changes for the next batch.
func (b *Broker) PublishRecords(kind RecordKind, paths ...string) {
	if len(paths) == 0 || b.closed.Load() {
		return
	}
	select {
	case b.recordCh <- recordReq{kind: kind, paths: slices.Clone(paths)}:
	case <-b.stopped:
	}
}

// PublishBuffer sends the dirty buffer state and keeps it for new clients.
func (b *Broker) PublishBuffer(dirty bool, records int) {
	if b.closed.Load() {
		return
	}
	select {
	case b.bufferCh <- BufferState{Dirty: dirty, Records: records}:
	case <-b.stopped:
	}
}

// PublishAnnotation sends annotation progress. Until the run completes the
// latest event is replayed to new clients.
func (b *Broker) PublishAnnotation(ev annotate.Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.annotationCh <- ev:
	case <-b.stopped:
	}
}

// ServeHTTP streams events to one client (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			_, _ = w.Write([]byte(": keepalive\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
