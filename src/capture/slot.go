package capture

import (
	"sync"

	"tooltip-ocr/src/window"
)

// Slot is a single-frame mailbox for push-model capture. Publish overwrites
// the unread frame; Take hands it out once and then serves it as the backup
// until a newer one arrives.
type Slot struct {
	mu     sync.Mutex
	frame  *Frame // unread
	info   window.Info
	backup *Frame
	bInfo  window.Info

	published uint64
	dropped   uint64
}

// Publish stores f as the newest frame. A previous frame nobody took is
// counted as dropped and kept as the backup.
func (s *Slot) Publish(f *Frame, info window.Info) {
	if f == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame != nil {
		s.dropped++
		s.backup, s.bInfo = s.frame, s.info
	}
	s.frame, s.info = f, info
	s.published++
}

// Take returns the newest unread frame, else the backup, else nil.
func (s *Slot) Take() (f *Frame, info window.Info, fresh bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame != nil {
		f, info = s.frame, s.info
		s.backup, s.bInfo = f, info
		s.frame, s.info = nil, window.Info{}
		return f, info, true
	}
	return s.backup, s.bInfo, false
}

// Reset forgets all frames, e.g. after the window disappears.
func (s *Slot) Reset() {
	s.mu.Lock()
	s.frame, s.backup = nil, nil
	s.info, s.bInfo = window.Info{}, window.Info{}
	s.mu.Unlock()
}

type SlotStats struct {
	Published uint64
	Dropped   uint64
}

func (s *Slot) Stats() SlotStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SlotStats{Published: s.published, Dropped: s.dropped}
}
