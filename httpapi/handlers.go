package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"xdao.co/mediacid/media"
)

// MediaResponse is the body of GET /media/:cid.
type MediaResponse struct {
	StoreKey     string        `json:"storeKey"`
	HasMedia     bool          `json:"hasMedia"`
	Videos       []media.Entry `json:"videos"`
	AudioStreams []media.Entry `json:"audioStreams"`
	Images       []media.Entry `json:"images"`
	AudioTracks  []media.Entry `json:"audioTracks"`
	Subtitles    []media.Entry `json:"subtitles"`
	Other        []media.Entry `json:"other,omitempty"`
}

// TranscodeResponse is the body of the /transcode/:cid routes.
type TranscodeResponse struct {
	StoreKey    string `json:"storeKey"`
	Pending     bool   `json:"pending"`
	TaskID      string `json:"taskId,omitempty"`
	Encrypted   bool   `json:"isEncrypted,omitempty"`
	Created     bool   `json:"created,omitempty"`
	Watching    bool   `json:"watching"`
	Progress    *int   `json:"progress,omitempty"`
	HasMedia    bool   `json:"hasMedia"`
	LastOutcome string `json:"lastOutcome,omitempty"`
}

func (s *Server) getMedia(c *gin.Context) {
	ref, ok := s.parseRef(c)
	if !ok {
		return
	}
	entries, err := s.merger.Load(c.Request.Context(), ref)
	if err != nil {
		s.fail(c, err)
		return
	}
	if entries == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no record", "storeKey": ref.StoreKey()})
		return
	}
	cl := media.Classify(entries)
	c.JSON(http.StatusOK, MediaResponse{
		StoreKey:     ref.StoreKey(),
		HasMedia:     media.HasPrimaryMedia(entries),
		Videos:       sources(cl.Videos()),
		AudioStreams: sources(cl.AudioStreams()),
		Images:       sources(cl.Images()),
		AudioTracks:  sources(cl.Audio),
		Subtitles:    sources(cl.Subtitles),
		Other:        cl.Other,
	})
}

func (s *Server) submitTranscode(c *gin.Context) {
	if !s.requireTranscoder(c) {
		return
	}
	ref, ok := s.parseRef(c)
	if !ok {
		return
	}
	job, created, err := s.pipeline.Submit(c.Request.Context(), ref)
	if err != nil {
		s.fail(c, err)
		return
	}
	resp := TranscodeResponse{
		StoreKey:  ref.StoreKey(),
		Pending:   true,
		TaskID:    job.TaskID,
		Encrypted: job.Encrypted,
		Created:   created,
	}
	if s.poller != nil {
		s.poller.Start(s.baseCtx, ref)
		resp.Watching = true
	}
	status := http.StatusOK
	if created {
		status = http.StatusAccepted
	}
	c.JSON(status, resp)
}

func (s *Server) getTranscode(c *gin.Context) {
	if !s.requireTranscoder(c) {
		return
	}
	ref, ok := s.parseRef(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	key := ref.StoreKey()
	job, pending, err := s.pipeline.Tracker().Pending(ctx, key)
	if err != nil {
		s.fail(c, err)
		return
	}
	hasMedia, err := s.pipeline.Merger().HasMedia(ctx, ref)
	if err != nil {
		s.fail(c, err)
		return
	}
	resp := TranscodeResponse{
		StoreKey:  key,
		Pending:   pending,
		TaskID:    job.TaskID,
		Encrypted: job.Encrypted,
		HasMedia:  hasMedia,
	}
	if s.poller != nil && s.poller.Active(key) {
		resp.Watching = true
		if p, ok := s.poller.Progress(key); ok {
			resp.Progress = &p
		}
	} else if p, ok := s.pipeline.Tracker().Progress(key); ok {
		resp.Progress = &p
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) stopTranscode(c *gin.Context) {
	if !s.requireTranscoder(c) {
		return
	}
	ref, ok := s.parseRef(c)
	if !ok {
		return
	}
	if s.poller != nil {
		s.poller.Stop(ref.StoreKey())
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) requireTranscoder(c *gin.Context) bool {
	if s.pipeline == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "no transcoding service configured"})
		return false
	}
	return true
}

func sources[T media.Track](tracks []T) []media.Entry {
	out := make([]media.Entry, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, t.Source())
	}
	return out
}
