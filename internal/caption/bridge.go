package caption

import (
	"fmt"
	"sync/atomic"

	"github.com/overtitle/overtitle/internal/transport"
)

// Bridge converts parsed transport events into caption segments. It is the
// boundary where language codes are checked against the supported set, so
// unchecked strings never propagate into the aggregator.
//
// Legacy translation messages carry no stable id; the bridge synthesises a
// fresh id per message so each one behaves as a single implicit segment.
type Bridge struct {
	sourceLang string
	legacySeq  atomic.Uint64
}

// NewBridge creates a [Bridge] that attributes id-less source segments to
// sourceLang. An empty sourceLang defaults to [DefaultSourceLanguage].
func NewBridge(sourceLang string) *Bridge {
	if sourceLang == "" {
		sourceLang = DefaultSourceLanguage
	}
	return &Bridge{sourceLang: sourceLang}
}

// Segments maps ev to the segments it contributes. Unknown events contribute
// nothing. A non-empty language code outside the supported set returns
// [ErrUnsupportedLanguage]; the caller logs and drops the event.
func (b *Bridge) Segments(ev transport.Event) ([]Segment, error) {
	switch e := ev.(type) {
	case transport.TranscriptionEvent:
		lang := e.Language
		if lang == "" {
			lang = b.sourceLang
		}
		if _, err := Lookup(lang); err != nil {
			return nil, err
		}
		return []Segment{{
			ID:       e.ID,
			Language: lang,
			Text:     e.Text,
		}}, nil

	case transport.TranslationEvent:
		if _, err := Lookup(e.Language); err != nil {
			return nil, err
		}
		return []Segment{{
			ID:       fmt.Sprintf("legacy-%d", b.legacySeq.Add(1)),
			Language: e.Language,
			Text:     e.Text,
		}}, nil

	case transport.UnknownEvent:
		return nil, nil

	default:
		return nil, nil
	}
}
