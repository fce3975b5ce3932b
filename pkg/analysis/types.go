package analysis

import "encoding/json"

// Job kind constants. Label, face and moderation jobs are submitted for
// every video; tracking is submitted only when the capability provider
// supports it.
const (
	KindLabel      = "label"
	KindFace       = "face"
	KindModeration = "moderation"
	KindTrack      = "track"
)

// RequiredKinds returns the job kinds submitted for every video.
func RequiredKinds() []string {
	return []string{KindLabel, KindFace, KindModeration}
}

// Job status constants, the last known state of one external analysis job.
const (
	JobPending   = "pending"
	JobSucceeded = "succeeded"
	JobFailed    = "failed"
)

// BoundingRegion is a normalized spatial region within a frame.
type BoundingRegion struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// LabelDetection is one label observed at a point in the video.
type LabelDetection struct {
	TimestampMillis int64            `json:"timestamp_ms"`
	Name            string           `json:"name"`
	Confidence      float64          `json:"confidence"`
	Regions         []BoundingRegion `json:"regions,omitempty"`
}

// FaceDetection is one face observed at a point in the video. Faces are
// retained on the ticket for diagnostics but do not feed the merged report.
type FaceDetection struct {
	TimestampMillis int64           `json:"timestamp_ms"`
	Confidence      float64         `json:"confidence"`
	Region          *BoundingRegion `json:"region,omitempty"`
}

// ModerationLabel is one content-moderation finding.
type ModerationLabel struct {
	TimestampMillis int64   `json:"timestamp_ms"`
	Name            string  `json:"name"`
	Confidence      float64 `json:"confidence"`
}

// TrackedEntity is one sighting of a tracked person/player.
type TrackedEntity struct {
	TimestampMillis int64           `json:"timestamp_ms"`
	TrackIndex      int             `json:"track_index"`
	Region          *BoundingRegion `json:"region,omitempty"`
}

// JobPayload is the raw result of one succeeded job. It is a tagged
// union: Kind selects which detection slice is populated.
type JobPayload struct {
	Kind       string            `json:"kind"`
	Labels     []LabelDetection  `json:"labels,omitempty"`
	Faces      []FaceDetection   `json:"faces,omitempty"`
	Moderation []ModerationLabel `json:"moderation,omitempty"`
	Tracks     []TrackedEntity   `json:"tracks,omitempty"`
}

// Scene is one second-level bucket of domain-relevant labels.
type Scene struct {
	Timestamp   int64    `json:"timestamp"`
	Labels      []string `json:"labels"`
	Description string   `json:"description"`
}

// ActivityInstance is one occurrence of an activity.
type ActivityInstance struct {
	Timestamp      float64         `json:"timestamp"`
	BoundingRegion *BoundingRegion `json:"boundingRegion,omitempty"`
}

// Activity aggregates every occurrence of one activity label. Confidence
// is the value from the first occurrence.
type Activity struct {
	Label      string             `json:"label"`
	Confidence float64            `json:"confidence"`
	Instances  []ActivityInstance `json:"instances"`
}

// KeyMoment is one high-confidence detection worth surfacing.
type KeyMoment struct {
	Timestamp   float64 `json:"timestamp"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
	Source      string  `json:"source"` // "label" or "activity"
}

// Interval is a time span in seconds.
type Interval struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Player summarizes one tracked entity across the video.
type Player struct {
	TrackID     int        `json:"trackId"`
	Appearances int        `json:"appearances"`
	Timeline    []Interval `json:"timeline"`
}

// Report is the merged, human-consumable analysis artifact.
type Report struct {
	Summary         string      `json:"summary"`
	Scenes          []Scene     `json:"scenes"`
	Activities      []Activity  `json:"activities"`
	KeyMoments      []KeyMoment `json:"keyMoments"`
	Players         []Player    `json:"players"`
	ContentWarnings int         `json:"contentWarnings"`
}

// SubmitRequest is the upload-completion trigger: a storage object
// reference plus hints. It is all the core needs to start analysis.
type SubmitRequest struct {
	VideoKey string `json:"video_key"`
	SizeHint int64  `json:"size_hint,omitempty"`
	NameHint string `json:"name_hint,omitempty"`
}

// SubmitResponse acknowledges an accepted upload event.
type SubmitResponse struct {
	VideoID         string `json:"video_id"`
	RunID           string `json:"run_id"`
	DedupeSeenCount int    `json:"dedupe_seen_count"`
}

// Notification is an out-of-band job status event from the provider's
// push channel. VideoID is the job tag chosen at submission time.
type Notification struct {
	VideoID string `json:"video_id"`
	JobID   string `json:"job_id"`
	Kind    string `json:"kind"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// RecordResponse is the polling view of one analysis record.
type RecordResponse struct {
	VideoID     string          `json:"videoId"`
	VideoKey    string          `json:"videoKey,omitempty"`
	Status      string          `json:"status"`
	CreatedAt   string          `json:"createdAt"`
	CompletedAt string          `json:"completedAt,omitempty"`
	Error       string          `json:"error,omitempty"`
	Report      json.RawMessage `json:"analysisResults,omitempty"`
}

// Summary is the listing view of one analysis record.
type Summary struct {
	VideoID     string `json:"videoId"`
	VideoKey    string `json:"videoKey,omitempty"`
	Status      string `json:"status"`
	CreatedAt   string `json:"createdAt"`
	CompletedAt string `json:"completedAt,omitempty"`
}

// ListResponse is the listing surface payload, newest first.
type ListResponse struct {
	Analyses []Summary `json:"analyses"`
	Total    int       `json:"total"`
}
