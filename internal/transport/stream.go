package transport

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/TheMichaelB/chatsync/internal/events"
	"github.com/TheMichaelB/chatsync/internal/models"
)

// streamEvent is one push from the bridge's history event stream.
type streamEvent struct {
	TargetID string          `json:"target_id"`
	Records  []models.Record `json:"records"`
}

// DefaultMaxBuffered bounds each target's replay buffer.
const DefaultMaxBuffered = 10000

// StreamFetcher adapts the bridge's event-push websocket into the
// pull-shaped Fetcher contract. The source delivers history implicitly as
// events; records are buffered per target and served in cursor order, so a
// refetch of the same cursor always yields the same batch. Each buffer is
// capped at MaxBuffered records: once the cap is exceeded the oldest
// records are dropped and cursors pointing before the drop expire.
type StreamFetcher struct {
	url         string
	dialer      *websocket.Dialer
	logger      *events.Logger
	waitTimeout time.Duration

	// MaxBuffered caps each target's buffer. Set before Connect.
	MaxBuffered int

	mu      sync.Mutex
	cond    *sync.Cond
	buffers map[string][]models.Record
	base    map[string]int // absolute offset of buffers[target][0]
	conn    *websocket.Conn
	closed  bool
}

// NewStreamFetcher creates a fetcher that buffers the websocket stream at
// streamURL. waitTimeout bounds how long FetchBatch blocks for more events
// before reporting the buffer exhausted.
func NewStreamFetcher(streamURL string, waitTimeout time.Duration, logger *events.Logger) *StreamFetcher {
	f := &StreamFetcher{
		url:         streamURL,
		dialer:      websocket.DefaultDialer,
		logger:      logger.WithField("component", "stream_fetcher"),
		waitTimeout: waitTimeout,
		MaxBuffered: DefaultMaxBuffered,
		buffers:     make(map[string][]models.Record),
		base:        make(map[string]int),
	}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Connect dials the stream and starts buffering events.
func (f *StreamFetcher) Connect(ctx context.Context) error {
	conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return &models.TransientError{Op: "fetch", Err: fmt.Errorf("dial stream: %w", err)}
	}

	f.mu.Lock()
	f.conn = conn
	f.closed = false
	f.mu.Unlock()

	go f.readLoop(conn)
	return nil
}

func (f *StreamFetcher) readLoop(conn *websocket.Conn) {
	for {
		var ev streamEvent
		if err := conn.ReadJSON(&ev); err != nil {
			f.logger.WithError(err).Debug("Stream closed")
			f.mu.Lock()
			f.closed = true
			f.cond.Broadcast()
			f.mu.Unlock()
			return
		}

		if ev.TargetID == "" || len(ev.Records) == 0 {
			continue
		}

		f.buffer(ev.TargetID, ev.Records)
	}
}

// Push adds records to a target's buffer directly. Used by tests and by
// in-process event sources that bypass the websocket.
func (f *StreamFetcher) Push(targetID string, records ...models.Record) {
	f.buffer(targetID, records)
}

// buffer appends records and enforces the retention cap, sliding the base
// offset forward past any dropped records.
func (f *StreamFetcher) buffer(targetID string, records []models.Record) {
	f.mu.Lock()
	buf := append(f.buffers[targetID], records...)
	if over := len(buf) - f.MaxBuffered; over > 0 {
		buf = buf[over:]
		f.base[targetID] += over
	}
	f.buffers[targetID] = buf
	f.cond.Broadcast()
	f.mu.Unlock()
}

// CloseStream marks the stream exhausted so pending fetches drain.
func (f *StreamFetcher) CloseStream() {
	f.mu.Lock()
	f.closed = true
	f.cond.Broadcast()
	conn := f.conn
	f.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

// FetchBatch serves buffered records in arrival order. The cursor encodes
// the buffer offset, which keeps refetches of the same cursor identical.
// An empty batch means the stream delivered nothing new within the wait
// window.
func (f *StreamFetcher) FetchBatch(ctx context.Context, targetID string, batchSize int, cursor string) (*models.RecordBatch, error) {
	offset := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: malformed cursor %q", models.ErrValidation, cursor)
		}
		offset = n
	}

	deadline := time.Now().Add(f.waitTimeout)
	wake := time.AfterFunc(f.waitTimeout, f.cond.Broadcast)
	defer wake.Stop()

	stop := context.AfterFunc(ctx, f.cond.Broadcast)
	defer stop()

	f.mu.Lock()
	defer f.mu.Unlock()

	for f.base[targetID]+len(f.buffers[targetID]) <= offset && !f.closed {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !time.Now().Before(deadline) {
			break
		}
		f.cond.Wait()
	}

	base := f.base[targetID]
	if offset < base {
		return nil, fmt.Errorf("%w: cursor %q expired, oldest buffered offset is %d",
			models.ErrValidation, cursor, base)
	}

	buf := f.buffers[targetID]
	rel := offset - base
	if len(buf) <= rel {
		return &models.RecordBatch{}, nil
	}

	end := rel + batchSize
	if end > len(buf) {
		end = len(buf)
	}

	records := make([]models.Record, end-rel)
	copy(records, buf[rel:end])

	return &models.RecordBatch{
		Records:    records,
		NextCursor: strconv.Itoa(base + end),
	}, nil
}
