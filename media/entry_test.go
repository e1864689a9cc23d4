package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasPrimaryMedia(t *testing.T) {
	assert.False(t, HasPrimaryMedia([]Entry{{Kind: KindSubtitles, CID: "s1", Type: "text/vtt"}}))
	assert.True(t, HasPrimaryMedia([]Entry{{Type: "video/mp4"}}))
	assert.False(t, HasPrimaryMedia(nil))
	assert.True(t, HasPrimaryMedia([]Entry{{Kind: KindAudio}, {Type: "audio/mpeg"}}))
}

func TestMergeOrdering(t *testing.T) {
	a := Entry{CID: "A", Type: "video/mp4"}
	b := Entry{CID: "B", Type: "video/webm"}
	assert.Equal(t, []Entry{a, b}, Merge([]Entry{b}, []Entry{a}))
	assert.Equal(t, []Entry{a}, Merge(nil, []Entry{a}))
	assert.Equal(t, []Entry{b}, Merge([]Entry{b}, nil))
}

func TestMergeDoesNotDeduplicate(t *testing.T) {
	a := Entry{CID: "A", Type: "video/mp4"}
	assert.Len(t, Merge([]Entry{a}, []Entry{a}), 2)
}

func TestMergeDoesNotAliasInputs(t *testing.T) {
	existing := make([]Entry, 1, 4)
	existing[0] = Entry{CID: "B"}
	out := Merge(existing, []Entry{{CID: "A"}})
	out[1].CID = "changed"
	assert.Equal(t, "B", existing[0].CID)
}

func TestClassify(t *testing.T) {
	entries := []Entry{
		{CID: "v1", Type: "video/mp4", Label: "1080p"},
		{CID: "s1", Type: "text/vtt", Kind: KindSubtitles, Language: "en"},
		{CID: "a1", Type: "audio/mp4", Kind: KindAudio, Language: "de"},
		{CID: "m1", Type: "audio/mpeg", Label: "mp3"},
		{CID: "v2", Type: "Video/WebM", Label: "720p"},
		{CID: "x1", Type: "text/plain", Kind: "chapters"},
	}
	c := Classify(entries)

	require.Len(t, c.Primary, 3)
	assert.Equal(t, "v1", c.Primary[0].CID)
	require.Len(t, c.Audio, 1)
	assert.Equal(t, "a1", c.Audio[0].CID)
	require.Len(t, c.Subtitles, 1)
	assert.Equal(t, "en", c.Subtitles[0].Language)
	require.Len(t, c.Other, 1)

	videos := c.Videos()
	require.Len(t, videos, 2)
	assert.Equal(t, "v2", videos[1].CID)
	streams := c.AudioStreams()
	require.Len(t, streams, 1)
	assert.Equal(t, "m1", streams[0].CID)
	assert.Empty(t, c.Images())
}

func TestToTrackExhaustive(t *testing.T) {
	for _, tc := range []struct {
		kind Kind
		want Track
	}{
		{KindPrimary, Primary{Entry{Kind: KindPrimary}}},
		{KindAudio, AudioTrack{Entry{Kind: KindAudio}}},
		{KindSubtitles, SubtitleTrack{Entry{Kind: KindSubtitles}}},
	} {
		got, err := ToTrack(Entry{Kind: tc.kind})
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
		assert.Equal(t, tc.kind, got.Source().Kind)
	}
	_, err := ToTrack(Entry{Kind: "bogus"})
	assert.Error(t, err)
}

func TestStripKeys(t *testing.T) {
	in := []Entry{{CID: "r1", Key: "SECRET"}}
	out := StripKeys(in)
	assert.Empty(t, out[0].Key)
	assert.Equal(t, "SECRET", in[0].Key, "input must not be mutated")
	assert.Nil(t, StripKeys(nil))
}

func TestContainsAll(t *testing.T) {
	record := []Entry{
		{CID: "a", Type: "video/mp4"},
		{CID: "s", Type: "text/vtt", Kind: KindSubtitles},
	}
	assert.True(t, ContainsAll(record, []Entry{{CID: "a", Type: "video/mp4", Key: "k"}}))
	assert.True(t, ContainsAll(record, nil))
	assert.False(t, ContainsAll(record, []Entry{{CID: "a", Type: "video/mp4"}, {CID: "b", Type: "video/mp4"}}))
	assert.False(t, ContainsAll(record, []Entry{{CID: "s", Type: "text/vtt"}}), "kind must match")
	assert.False(t, ContainsAll(nil, []Entry{{CID: "a", Type: "video/mp4"}}))
}
