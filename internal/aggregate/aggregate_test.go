package aggregate

import (
	"reflect"
	"testing"

	"github.com/pauxiel/goalwhisper/internal/model"
	"github.com/pauxiel/goalwhisper/pkg/analysis"
)

func ticket(kind, status string, withPayload bool) *model.Ticket {
	t := &model.Ticket{JobID: "job-" + kind, Kind: kind, Status: status}
	if withPayload {
		t.Payload = &analysis.JobPayload{Kind: kind}
	}
	return t
}

func TestEvaluate(t *testing.T) {
	kinds := analysis.RequiredKinds()

	cases := []struct {
		name        string
		tickets     map[string]*model.Ticket
		want        Decision
		wantFailed  []string
		wantMerged  int
	}{
		{
			name: "all pending",
			tickets: map[string]*model.Ticket{
				analysis.KindLabel:      ticket(analysis.KindLabel, analysis.JobPending, false),
				analysis.KindFace:       ticket(analysis.KindFace, analysis.JobPending, false),
				analysis.KindModeration: ticket(analysis.KindModeration, analysis.JobPending, false),
			},
			want: StillPending,
		},
		{
			name: "one pending blocks finalize",
			tickets: map[string]*model.Ticket{
				analysis.KindLabel:      ticket(analysis.KindLabel, analysis.JobSucceeded, true),
				analysis.KindFace:       ticket(analysis.KindFace, analysis.JobSucceeded, true),
				analysis.KindModeration: ticket(analysis.KindModeration, analysis.JobPending, false),
			},
			want:       StillPending,
			wantMerged: 2,
		},
		{
			name: "all succeeded",
			tickets: map[string]*model.Ticket{
				analysis.KindLabel:      ticket(analysis.KindLabel, analysis.JobSucceeded, true),
				analysis.KindFace:       ticket(analysis.KindFace, analysis.JobSucceeded, true),
				analysis.KindModeration: ticket(analysis.KindModeration, analysis.JobSucceeded, true),
			},
			want:       ReadyToFinalize,
			wantMerged: 3,
		},
		{
			name: "partial failure still finalizes",
			tickets: map[string]*model.Ticket{
				analysis.KindLabel:      ticket(analysis.KindLabel, analysis.JobSucceeded, true),
				analysis.KindFace:       ticket(analysis.KindFace, analysis.JobFailed, false),
				analysis.KindModeration: ticket(analysis.KindModeration, analysis.JobFailed, false),
			},
			want:       ReadyToFinalize,
			wantFailed: []string{analysis.KindFace, analysis.KindModeration},
			wantMerged: 1,
		},
		{
			name: "all failed",
			tickets: map[string]*model.Ticket{
				analysis.KindLabel:      ticket(analysis.KindLabel, analysis.JobFailed, false),
				analysis.KindFace:       ticket(analysis.KindFace, analysis.JobFailed, false),
				analysis.KindModeration: ticket(analysis.KindModeration, analysis.JobFailed, false),
			},
			want:       AllFailed,
			wantFailed: []string{analysis.KindFace, analysis.KindLabel, analysis.KindModeration},
		},
		{
			name: "absent ticket counts as failed",
			tickets: map[string]*model.Ticket{
				analysis.KindLabel: ticket(analysis.KindLabel, analysis.JobSucceeded, true),
				analysis.KindFace:  ticket(analysis.KindFace, analysis.JobFailed, false),
			},
			want:       ReadyToFinalize,
			wantFailed: []string{analysis.KindFace, analysis.KindModeration},
			wantMerged: 1,
		},
		{
			name: "succeeded without payload counts as pending",
			tickets: map[string]*model.Ticket{
				analysis.KindLabel:      ticket(analysis.KindLabel, analysis.JobSucceeded, false),
				analysis.KindFace:       ticket(analysis.KindFace, analysis.JobSucceeded, true),
				analysis.KindModeration: ticket(analysis.KindModeration, analysis.JobSucceeded, true),
			},
			want:       StillPending,
			wantMerged: 2,
		},
		{
			name:       "no tickets at all",
			tickets:    map[string]*model.Ticket{},
			want:       AllFailed,
			wantFailed: []string{analysis.KindFace, analysis.KindLabel, analysis.KindModeration},
		},
	}

	for _, tc := range cases {
		got := Evaluate(kinds, tc.tickets)
		if got.Decision != tc.want {
			t.Fatalf("%s: decision = %v, want %v", tc.name, got.Decision, tc.want)
		}
		if len(got.Succeeded) != tc.wantMerged {
			t.Fatalf("%s: merged %d payloads, want %d", tc.name, len(got.Succeeded), tc.wantMerged)
		}
		if tc.wantFailed != nil && !reflect.DeepEqual(got.FailedKinds, tc.wantFailed) {
			t.Fatalf("%s: failed kinds = %v, want %v", tc.name, got.FailedKinds, tc.wantFailed)
		}
	}
}

func TestEvaluate_OptionalTrackingKind(t *testing.T) {
	kinds := append(analysis.RequiredKinds(), analysis.KindTrack)

	tickets := map[string]*model.Ticket{
		analysis.KindLabel:      ticket(analysis.KindLabel, analysis.JobSucceeded, true),
		analysis.KindFace:       ticket(analysis.KindFace, analysis.JobSucceeded, true),
		analysis.KindModeration: ticket(analysis.KindModeration, analysis.JobSucceeded, true),
		analysis.KindTrack:      ticket(analysis.KindTrack, analysis.JobPending, false),
	}

	if got := Evaluate(kinds, tickets); got.Decision != StillPending {
		t.Fatalf("pending tracking job should block finalize, got %v", got.Decision)
	}

	tickets[analysis.KindTrack] = ticket(analysis.KindTrack, analysis.JobFailed, false)
	got := Evaluate(kinds, tickets)
	if got.Decision != ReadyToFinalize {
		t.Fatalf("failed tracking job should not block finalize, got %v", got.Decision)
	}
}
