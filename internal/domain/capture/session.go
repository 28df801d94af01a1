package capture

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Floyd-Pinto/ApnaGhar-sub000/pkg/common/timeutil"
)

// Session is an aggregate root that tracks one scan-to-upload cycle of the
// secure capture workflow. It owns the stage state machine, the accumulated
// media selections and description, and the authorization issued for the
// scanned code. All invariants are enforced at this boundary: stages only
// move forward (except the explicit upload-failure return to capture),
// completed stages are append-only, and media never exceeds the authorized
// limits.
type Session struct {
	// Identity.
	id uuid.UUID

	// Current state.
	stage       Stage
	completed   map[Stage]time.Time
	lastUpdated time.Time
	lastFailure string

	// Accumulated submission.
	scannedPayload string
	authorization  Authorization
	images         []MediaFile
	videos         []MediaFile
	description    string

	// In-flight flags. At most one of these is set; both clear is idle.
	scanningActive bool
	uploading      bool

	timeProvider timeutil.Provider
}

// SessionOption configures a Session during construction.
type SessionOption func(*Session)

// WithSessionTimeProvider overrides the clock used for stage timestamps.
func WithSessionTimeProvider(tp timeutil.Provider) SessionOption {
	return func(s *Session) { s.timeProvider = tp }
}

// NewSession creates a new capture session in the scan stage. The domain owns
// identity generation so every cycle is distinguishable in logs and metrics.
func NewSession(opts ...SessionOption) *Session {
	s := &Session{
		id:           uuid.New(),
		stage:        StageScan,
		completed:    make(map[Stage]time.Time),
		timeProvider: timeutil.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lastUpdated = s.timeProvider.Now()
	return s
}

// Getters for Session.
func (s *Session) ID() uuid.UUID                { return s.id }
func (s *Session) Stage() Stage                 { return s.stage }
func (s *Session) ScannedPayload() string       { return s.scannedPayload }
func (s *Session) Authorization() Authorization { return s.authorization }
func (s *Session) Description() string          { return s.description }
func (s *Session) LastUpdated() time.Time       { return s.lastUpdated }
func (s *Session) LastFailure() string          { return s.lastFailure }
func (s *Session) IsScanningActive() bool       { return s.scanningActive }
func (s *Session) IsUploading() bool            { return s.uploading }

// Images returns a copy of the selected images in selection order.
func (s *Session) Images() []MediaFile { return append([]MediaFile(nil), s.images...) }

// Videos returns a copy of the selected videos in selection order.
func (s *Session) Videos() []MediaFile { return append([]MediaFile(nil), s.videos...) }

// MediaCount returns the total number of selected files.
func (s *Session) MediaCount() int { return len(s.images) + len(s.videos) }

// CompletedStages returns the stages this session has completed, in workflow
// order. The set is append-only for the lifetime of one session.
func (s *Session) CompletedStages() []Stage {
	out := make([]Stage, 0, len(s.completed))
	for _, st := range stageOrder {
		if _, ok := s.completed[st]; ok {
			out = append(out, st)
		}
	}
	return out
}

// HasCompleted reports whether the given stage finished during this session.
func (s *Session) HasCompleted(stage Stage) bool {
	_, ok := s.completed[stage]
	return ok
}

// CanTransitionTo validates if a stage transition is allowed.
func (s *Session) CanTransitionTo(target Stage) bool {
	allowed, exists := validTransitions[s.stage]
	if !exists {
		return false
	}
	for _, a := range allowed {
		if target == a {
			return true
		}
	}
	return false
}

// BeginScanning flags that a live camera stream is running for this session.
// It is rejected while an upload is in flight, and rejected while a scan is
// already running so a duplicate start can never touch the camera and then
// clear the flag of the scan it collided with.
func (s *Session) BeginScanning() error {
	if s.uploading {
		return newSessionBusyError("cannot start scanning while an upload is in flight")
	}
	if s.scanningActive {
		return newSessionBusyError("scanning is already in progress")
	}
	s.scanningActive = true
	s.touch()
	return nil
}

// EndScanning clears the live-stream flag. Safe to call when not scanning.
func (s *Session) EndScanning() {
	s.scanningActive = false
	s.touch()
}

// RecordScan stores the decoded payload of a successful scan. Only valid
// during the scan stage; a later rescan replaces the previous payload.
func (s *Session) RecordScan(payload string) error {
	if s.stage != StageScan {
		return newInvalidStageTransitionError(s.stage, StageScan)
	}
	s.scannedPayload = payload
	s.touch()
	return nil
}

// BeginCapture transitions the session to the capture stage once the backend
// has exchanged the scanned payload for an authorization. Scan is marked
// complete; the mark is never removed even if the user later clears media.
func (s *Session) BeginCapture(auth Authorization) error {
	if !s.CanTransitionTo(StageCapture) {
		return newInvalidStageTransitionError(s.stage, StageCapture)
	}
	if auth.IsZero() {
		return newMissingAuthorizationError("cannot begin capture without a verified authorization")
	}

	s.authorization = auth
	s.markCompleted(StageScan)
	s.setStage(StageCapture)
	return nil
}

// AddImage appends a camera-captured image, rejecting additions beyond the
// authorized limit. The selection is never silently truncated.
func (s *Session) AddImage(m MediaFile) error {
	if err := s.canAddMedia(); err != nil {
		return err
	}
	if len(s.images) >= s.authorization.Limits().MaxImages {
		return newQuotaExceededError(MediaKindImage, s.authorization.Limits().MaxImages)
	}
	s.images = append(s.images, m)
	s.touch()
	return nil
}

// AddVideo appends a camera-captured video, rejecting additions beyond the
// authorized limit.
func (s *Session) AddVideo(m MediaFile) error {
	if err := s.canAddMedia(); err != nil {
		return err
	}
	if len(s.videos) >= s.authorization.Limits().MaxVideos {
		return newQuotaExceededError(MediaKindVideo, s.authorization.Limits().MaxVideos)
	}
	s.videos = append(s.videos, m)
	s.touch()
	return nil
}

// RemoveImage drops the image at the given selection index.
func (s *Session) RemoveImage(i int) error {
	if s.stage != StageCapture {
		return newInvalidStageTransitionError(s.stage, StageCapture)
	}
	if i < 0 || i >= len(s.images) {
		return fmt.Errorf("no image at selection index %d", i)
	}
	s.images = append(s.images[:i], s.images[i+1:]...)
	s.touch()
	return nil
}

// RemoveVideo drops the video at the given selection index.
func (s *Session) RemoveVideo(i int) error {
	if s.stage != StageCapture {
		return newInvalidStageTransitionError(s.stage, StageCapture)
	}
	if i < 0 || i >= len(s.videos) {
		return fmt.Errorf("no video at selection index %d", i)
	}
	s.videos = append(s.videos[:i], s.videos[i+1:]...)
	s.touch()
	return nil
}

// SetDescription replaces the free-text description.
func (s *Session) SetDescription(text string) error {
	if s.stage != StageCapture {
		return newInvalidStageTransitionError(s.stage, StageCapture)
	}
	s.description = text
	s.touch()
	return nil
}

// BeginUpload transitions the session to the upload stage. An empty
// submission, no media and no description, is rejected here before any
// network call is made. Capture is marked complete.
//
// Note the gate is deliberately weaker than the uploader's: a description
// alone advances the stage, while the upload itself still requires at least
// one file.
func (s *Session) BeginUpload() error {
	if !s.CanTransitionTo(StageUpload) {
		return newInvalidStageTransitionError(s.stage, StageUpload)
	}
	if s.description == "" && s.MediaCount() == 0 {
		return newEmptySubmissionError()
	}
	if s.scanningActive {
		return newSessionBusyError("cannot upload while the camera is active")
	}

	s.markCompleted(StageCapture)
	s.setStage(StageUpload)
	s.uploading = true
	s.touch()
	return nil
}

// RequireUploadable enforces the uploader's stricter preconditions: a present
// authorization and at least one media file.
func (s *Session) RequireUploadable() error {
	if s.authorization.IsZero() {
		return newMissingAuthorizationError("upload requires a verified authorization")
	}
	if s.MediaCount() == 0 {
		return newNoMediaSelectedError()
	}
	return nil
}

// CompleteUpload marks the upload stage finished after the backend confirmed
// the submission. The session is then ready to be reset by its owner.
func (s *Session) CompleteUpload() error {
	if s.stage != StageUpload {
		return newInvalidStageTransitionError(s.stage, StageUpload)
	}
	s.markCompleted(StageUpload)
	s.uploading = false
	s.touch()
	return nil
}

// FailUpload returns the session to the capture stage after a failed
// submission. Media selections, description and authorization are all
// preserved so the user can retry without rescanning. The same single-use
// token is reused on the retry; rejecting a consumed token is the backend's
// job.
func (s *Session) FailUpload(reason string) error {
	if !s.CanTransitionTo(StageCapture) {
		return newInvalidStageTransitionError(s.stage, StageCapture)
	}
	s.lastFailure = reason
	s.uploading = false
	s.setStage(StageCapture)
	return nil
}

// Reset clears every field and returns the session to a fresh scan stage.
// Used on successful completion, explicit cancellation, and teardown. The
// owning workflow must stop any live camera stream before calling this.
func (s *Session) Reset() {
	s.stage = StageScan
	s.completed = make(map[Stage]time.Time)
	s.scannedPayload = ""
	s.authorization = Authorization{}
	s.images = nil
	s.videos = nil
	s.description = ""
	s.lastFailure = ""
	s.scanningActive = false
	s.uploading = false
	s.touch()
}

func (s *Session) canAddMedia() error {
	if s.stage != StageCapture {
		return newInvalidStageTransitionError(s.stage, StageCapture)
	}
	if s.authorization.IsZero() {
		return newMissingAuthorizationError("cannot add media without a verified authorization")
	}
	return nil
}

func (s *Session) setStage(stage Stage) {
	s.stage = stage
	s.touch()
}

func (s *Session) markCompleted(stage Stage) {
	if _, ok := s.completed[stage]; ok {
		return
	}
	s.completed[stage] = s.timeProvider.Now()
}

func (s *Session) touch() { s.lastUpdated = s.timeProvider.Now() }
