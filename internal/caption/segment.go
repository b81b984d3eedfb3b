package caption

import "time"

// Segment is one unit of text attributed to a language and a stable id.
// Segments for the same id may arrive repeatedly with growing or revised
// text; the later arrival supersedes the earlier one.
type Segment struct {
	// ID is unique within a language stream and stable across updates to
	// the same spoken unit.
	ID string

	// Language is the ISO-style language code. The empty string is
	// normalised to the aggregator's source language during ingestion.
	Language string

	// Text is the (possibly partial) transcript or translation text.
	Text string

	// FirstReceived records when the first payload for this id arrived.
	// Preserved across updates.
	FirstReceived time.Time

	// arrival is a monotonic insertion index assigned by the Store, used to
	// order segments whose FirstReceived timestamps are equal.
	arrival uint64
}

// Store maps (language, id) to the latest segment payload received for that
// id. Updates overwrite, never duplicate.
//
// Store is not safe for concurrent use on its own; [Aggregator] serialises
// all access under its lock.
type Store struct {
	segments map[string]map[string]Segment
	seq      uint64
	now      func() time.Time
}

// NewStore creates an empty segment store.
func NewStore() *Store {
	return &Store{
		segments: make(map[string]map[string]Segment),
		now:      time.Now,
	}
}

// Upsert inserts seg or replaces the stored payload for its (language, id)
// pair. FirstReceived and the arrival index are preserved from the first
// insert so that late revisions do not reorder the stream.
func (s *Store) Upsert(seg Segment) {
	byID := s.segments[seg.Language]
	if byID == nil {
		byID = make(map[string]Segment)
		s.segments[seg.Language] = byID
	}

	if prev, ok := byID[seg.ID]; ok {
		seg.FirstReceived = prev.FirstReceived
		seg.arrival = prev.arrival
	} else {
		if seg.FirstReceived.IsZero() {
			seg.FirstReceived = s.now()
		}
		s.seq++
		seg.arrival = s.seq
	}
	byID[seg.ID] = seg
}

// Latest returns the most recently arrived segment for lang, judged by
// FirstReceived with the arrival index as tie-breaker. The second return
// value is false when no segment exists for lang.
func (s *Store) Latest(lang string) (Segment, bool) {
	var (
		best  Segment
		found bool
	)
	for _, seg := range s.segments[lang] {
		if !found || seg.FirstReceived.After(best.FirstReceived) ||
			(seg.FirstReceived.Equal(best.FirstReceived) && seg.arrival > best.arrival) {
			best = seg
			found = true
		}
	}
	return best, found
}

// Len returns the number of stored segments for lang.
func (s *Store) Len(lang string) int {
	return len(s.segments[lang])
}

// Languages returns the codes of all languages with at least one segment.
func (s *Store) Languages() []string {
	out := make([]string, 0, len(s.segments))
	for lang, byID := range s.segments {
		if len(byID) > 0 {
			out = append(out, lang)
		}
	}
	return out
}

// Clear removes all segments for all languages.
func (s *Store) Clear() {
	s.segments = make(map[string]map[string]Segment)
}
