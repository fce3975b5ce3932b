// Package provider defines the contract with the external capability
// provider that runs the actual detection jobs, plus adapters for it.
package provider

import (
	"context"
	"fmt"

	"github.com/pauxiel/goalwhisper/pkg/analysis"
)

// PollResult is the provider's view of one job.
type PollResult struct {
	Status  string
	Payload *analysis.JobPayload
	Message string
}

// Provider starts and polls detection jobs. Submit tags the job with the
// videoID so asynchronous notifications can be correlated back to the
// record.
type Provider interface {
	// Kinds returns the job kinds this provider supports.
	Kinds() []string

	// Submit starts one detection job and returns its external handle.
	Submit(ctx context.Context, kind, videoKey, tag string) (string, error)

	// Poll fetches the current status of one job, with its payload once
	// succeeded.
	Poll(ctx context.Context, kind, jobID string) (*PollResult, error)
}

// ValidatePayload checks a succeeded job's payload at the provider
// boundary before it reaches aggregation: the union tag must match the
// job kind, exactly the tagged slice may be populated, and confidences
// must be percentages.
func ValidatePayload(kind string, p *analysis.JobPayload) error {
	if p == nil {
		return fmt.Errorf("missing payload for succeeded %s job", kind)
	}
	if p.Kind != kind {
		return fmt.Errorf("payload kind %q does not match job kind %q", p.Kind, kind)
	}

	switch kind {
	case analysis.KindLabel:
		if p.Faces != nil || p.Moderation != nil || p.Tracks != nil {
			return fmt.Errorf("label payload carries foreign detections")
		}
		for _, d := range p.Labels {
			if d.Name == "" {
				return fmt.Errorf("label detection with empty name at %dms", d.TimestampMillis)
			}
			if err := checkDetection(d.TimestampMillis, d.Confidence); err != nil {
				return err
			}
		}
	case analysis.KindFace:
		if p.Labels != nil || p.Moderation != nil || p.Tracks != nil {
			return fmt.Errorf("face payload carries foreign detections")
		}
		for _, d := range p.Faces {
			if err := checkDetection(d.TimestampMillis, d.Confidence); err != nil {
				return err
			}
		}
	case analysis.KindModeration:
		if p.Labels != nil || p.Faces != nil || p.Tracks != nil {
			return fmt.Errorf("moderation payload carries foreign detections")
		}
		for _, d := range p.Moderation {
			if d.Name == "" {
				return fmt.Errorf("moderation label with empty name at %dms", d.TimestampMillis)
			}
			if err := checkDetection(d.TimestampMillis, d.Confidence); err != nil {
				return err
			}
		}
	case analysis.KindTrack:
		if p.Labels != nil || p.Faces != nil || p.Moderation != nil {
			return fmt.Errorf("track payload carries foreign detections")
		}
		for _, d := range p.Tracks {
			if d.TimestampMillis < 0 {
				return fmt.Errorf("negative timestamp %dms", d.TimestampMillis)
			}
			if d.TrackIndex < 0 {
				return fmt.Errorf("negative track index %d", d.TrackIndex)
			}
		}
	default:
		return fmt.Errorf("unknown job kind %q", kind)
	}

	return nil
}

func checkDetection(tsMillis int64, confidence float64) error {
	if tsMillis < 0 {
		return fmt.Errorf("negative timestamp %dms", tsMillis)
	}
	if confidence < 0 || confidence > 100 {
		return fmt.Errorf("confidence %.2f out of range at %dms", confidence, tsMillis)
	}
	return nil
}
