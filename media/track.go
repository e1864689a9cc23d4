package media

import "fmt"

// Track is the classified form of an Entry: Primary, AudioTrack or SubtitleTrack.
type Track interface {
	Source() Entry
	isTrack()
}

type Primary struct{ Entry }

type AudioTrack struct{ Entry }

type SubtitleTrack struct{ Entry }

func (t Primary) Source() Entry       { return t.Entry }
func (t AudioTrack) Source() Entry    { return t.Entry }
func (t SubtitleTrack) Source() Entry { return t.Entry }

func (Primary) isTrack()       {}
func (AudioTrack) isTrack()    {}
func (SubtitleTrack) isTrack() {}

// ToTrack classifies e by its kind. Unknown kinds are an error.
func ToTrack(e Entry) (Track, error) {
	switch e.Kind {
	case KindPrimary:
		return Primary{e}, nil
	case KindAudio:
		return AudioTrack{e}, nil
	case KindSubtitles:
		return SubtitleTrack{e}, nil
	default:
		return nil, fmt.Errorf("media: unknown entry kind %q", e.Kind)
	}
}

// Classified partitions a record for a playback layer.
type Classified struct {
	Primary   []Primary
	Audio     []AudioTrack
	Subtitles []SubtitleTrack
	// Other holds entries with an unrecognized kind. They are auxiliary, never primary.
	Other []Entry
}

// Classify partitions entries, preserving record order inside each group.
func Classify(entries []Entry) Classified {
	var c Classified
	for _, e := range entries {
		t, err := ToTrack(e)
		if err != nil {
			c.Other = append(c.Other, e)
			continue
		}
		switch t := t.(type) {
		case Primary:
			c.Primary = append(c.Primary, t)
		case AudioTrack:
			c.Audio = append(c.Audio, t)
		case SubtitleTrack:
			c.Subtitles = append(c.Subtitles, t)
		}
	}
	return c
}

// Videos returns primary renditions with a video/ MIME type.
func (c Classified) Videos() []Primary { return c.primaryWithPrefix("video/") }

// AudioStreams returns primary renditions with an audio/ MIME type.
func (c Classified) AudioStreams() []Primary { return c.primaryWithPrefix("audio/") }

// Images returns primary renditions with an image/ MIME type.
func (c Classified) Images() []Primary { return c.primaryWithPrefix("image/") }

func (c Classified) primaryWithPrefix(prefix string) []Primary {
	var out []Primary
	for _, p := range c.Primary {
		if hasMIMEPrefix(p.Type, prefix) {
			out = append(out, p)
		}
	}
	return out
}
