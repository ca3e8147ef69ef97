package changes

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
	"github.com/vadiminshakov/poswatch/internal/domain"
)

const (
	DefaultDir      = "./wal/changes"
	segmentLimit    = 1000
	maxSegments     = 100
	changeKeyPrefix = "change_event_"
)

// WALStore is an append-only feed of detected position changes.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore opens the change feed under dir.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = DefaultDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "change_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init change feed WAL")
	}

	return &WALStore{wal: wal}, nil
}

// Save appends event to the feed. The stored event, with its id and sequence
// number assigned, is returned.
func (s *WALStore) Save(event domain.ChangeEvent) (domain.ChangeEvent, error) {
	if s == nil || s.wal == nil {
		return domain.ChangeEvent{}, errors.New("change feed is not initialized")
	}
	if event.Profile == "" {
		return domain.ChangeEvent{}, errors.New("change event profile is required")
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	event.Seq = nextIndex

	payload, err := json.Marshal(event)
	if err != nil {
		return domain.ChangeEvent{}, errors.Wrap(err, "marshal change event")
	}

	if err := s.wal.Write(nextIndex, changeKeyPrefix+event.Profile, payload); err != nil {
		return domain.ChangeEvent{}, errors.Wrap(err, "write change event")
	}

	return event, nil
}

// EventsAfter returns every stored change event with a sequence number greater than seq.
func (s *WALStore) EventsAfter(seq uint64) ([]domain.ChangeEvent, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("change feed is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.wal.CurrentIndex() <= seq {
		return nil, nil
	}

	var events []domain.ChangeEvent
	for msg := range s.wal.Iterator() {
		if !strings.HasPrefix(msg.Key, changeKeyPrefix) {
			continue
		}
		var event domain.ChangeEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return nil, errors.Wrap(err, "decode change event")
		}
		if event.Seq > seq {
			events = append(events, event)
		}
	}

	return events, nil
}

// CurrentIndex returns the sequence number of the latest event.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("change feed is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
