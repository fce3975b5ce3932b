package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pauxiel/goalwhisper/pkg/analysis"
)

// SimulatedProvider is an in-process capability provider for local runs.
// Every job succeeds after a fixed number of polls and returns canned
// soccer detections, so the full lifecycle can be exercised without a
// real inference backend.
type SimulatedProvider struct {
	mu           sync.Mutex
	jobs         map[string]*simulatedJob
	pollsToReady int
	withTracking bool
}

type simulatedJob struct {
	kind  string
	polls int
}

// NewSimulatedProvider creates a simulated provider. Jobs report pending
// for pollsToReady polls before succeeding.
func NewSimulatedProvider(pollsToReady int, withTracking bool) *SimulatedProvider {
	if pollsToReady < 0 {
		pollsToReady = 0
	}
	return &SimulatedProvider{
		jobs:         make(map[string]*simulatedJob),
		pollsToReady: pollsToReady,
		withTracking: withTracking,
	}
}

func (p *SimulatedProvider) Kinds() []string {
	kinds := analysis.RequiredKinds()
	if p.withTracking {
		kinds = append(kinds, analysis.KindTrack)
	}
	return kinds
}

func (p *SimulatedProvider) Submit(ctx context.Context, kind, videoKey, tag string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	jobID := uuid.New().String()
	p.jobs[jobID] = &simulatedJob{kind: kind}
	return jobID, nil
}

func (p *SimulatedProvider) Poll(ctx context.Context, kind, jobID string) (*PollResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	job, ok := p.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("unknown job %s", jobID)
	}
	if job.kind != kind {
		return nil, fmt.Errorf("job %s is a %s job, not %s", jobID, job.kind, kind)
	}

	job.polls++
	if job.polls <= p.pollsToReady {
		return &PollResult{Status: analysis.JobPending}, nil
	}

	return &PollResult{
		Status:  analysis.JobSucceeded,
		Payload: simulatedPayload(kind),
	}, nil
}

// simulatedPayload returns canned soccer detections for one kind.
func simulatedPayload(kind string) *analysis.JobPayload {
	switch kind {
	case analysis.KindLabel:
		return &analysis.JobPayload{
			Kind: analysis.KindLabel,
			Labels: []analysis.LabelDetection{
				{TimestampMillis: 0, Name: "Soccer", Confidence: 97.1},
				{TimestampMillis: 200, Name: "Field", Confidence: 93.4},
				{TimestampMillis: 8200, Name: "Playing", Confidence: 96.8},
				{TimestampMillis: 12500, Name: "Running", Confidence: 94.2},
				{TimestampMillis: 23400, Name: "Kicking", Confidence: 91.7, Regions: []analysis.BoundingRegion{{Left: 0.41, Top: 0.33, Width: 0.12, Height: 0.28}}},
				{TimestampMillis: 30000, Name: "Ball", Confidence: 89.5},
				{TimestampMillis: 60000, Name: "Goal", Confidence: 95.1},
				{TimestampMillis: 60400, Name: "Celebration", Confidence: 92.5},
				{TimestampMillis: 60800, Name: "Crowd", Confidence: 88.2},
				{TimestampMillis: 90000, Name: "Stadium", Confidence: 90.8},
			},
		}
	case analysis.KindFace:
		return &analysis.JobPayload{
			Kind: analysis.KindFace,
			Faces: []analysis.FaceDetection{
				{TimestampMillis: 15500, Confidence: 99.2, Region: &analysis.BoundingRegion{Left: 0.52, Top: 0.18, Width: 0.05, Height: 0.09}},
				{TimestampMillis: 61000, Confidence: 98.4},
			},
		}
	case analysis.KindModeration:
		return &analysis.JobPayload{Kind: analysis.KindModeration}
	case analysis.KindTrack:
		return &analysis.JobPayload{
			Kind: analysis.KindTrack,
			Tracks: []analysis.TrackedEntity{
				{TimestampMillis: 0, TrackIndex: 1},
				{TimestampMillis: 12000, TrackIndex: 1},
				{TimestampMillis: 5000, TrackIndex: 2},
				{TimestampMillis: 20000, TrackIndex: 2},
				{TimestampMillis: 45000, TrackIndex: 2},
			},
		}
	}
	return nil
}
