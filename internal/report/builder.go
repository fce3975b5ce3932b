// Package report builds the merged soccer report from raw job payloads.
// Build is a pure transformation: identical payloads always produce an
// identical report.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pauxiel/goalwhisper/pkg/analysis"
)

// Soccer-specific labels to look for.
var soccerLabels = []string{
	"Soccer", "Football", "Ball", "Goal", "Field", "Grass", "Stadium",
	"Player", "Athlete", "Running", "Kicking", "Sport", "Team Sport",
	"Referee", "Crowd", "Audience", "Celebration", "Score",
}

var soccerActivities = []string{
	"Running", "Kicking", "Jumping", "Celebrating", "Playing",
	"Dribbling", "Passing", "Shooting", "Defending", "Goalkeeping",
}

// keyMomentThreshold is the minimum confidence for a detection to count
// as a key moment.
const keyMomentThreshold = 85.0

// maxKeyMoments caps the key moment list.
const maxKeyMoments = 10

// Build merges the succeeded payloads into the domain report. Failed or
// absent kinds are simply omitted from the merge.
func Build(payloads map[string]*analysis.JobPayload) analysis.Report {
	rep := analysis.Report{
		Scenes:     []analysis.Scene{},
		Activities: []analysis.Activity{},
		KeyMoments: []analysis.KeyMoment{},
		Players:    []analysis.Player{},
	}

	var labels []analysis.LabelDetection
	if p, ok := payloads[analysis.KindLabel]; ok {
		labels = p.Labels
	}

	rep.Scenes = extractScenes(labels)
	rep.Activities = extractActivities(labels)
	rep.KeyMoments = extractKeyMoments(labels, rep.Activities)

	tracks, hasTracks := trackDetections(payloads)
	rep.Players = extractPlayers(tracks)

	if p, ok := payloads[analysis.KindModeration]; ok {
		rep.ContentWarnings = len(p.Moderation)
	}

	rep.Summary = summarize(&rep, hasTracks, payloads)
	return rep
}

// matchesVocabulary reports whether a label name contains any vocabulary
// entry, case-insensitively.
func matchesVocabulary(name string, vocabulary []string) bool {
	lower := strings.ToLower(name)
	for _, v := range vocabulary {
		if strings.Contains(lower, strings.ToLower(v)) {
			return true
		}
	}
	return false
}

// extractScenes buckets domain-relevant labels by floor-second timestamp.
// Labels within a bucket keep first-seen order; scenes are ordered by
// timestamp.
func extractScenes(labels []analysis.LabelDetection) []analysis.Scene {
	buckets := make(map[int64][]string)
	var order []int64

	for _, d := range labels {
		if !matchesVocabulary(d.Name, soccerLabels) {
			continue
		}
		second := d.TimestampMillis / 1000
		if _, ok := buckets[second]; !ok {
			order = append(order, second)
		}
		if !containsString(buckets[second], d.Name) {
			buckets[second] = append(buckets[second], d.Name)
		}
	}

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	scenes := make([]analysis.Scene, 0, len(order))
	for _, second := range order {
		names := buckets[second]
		scenes = append(scenes, analysis.Scene{
			Timestamp:   second,
			Labels:      names,
			Description: fmt.Sprintf("Scene at %ds: %s", second, strings.Join(names, ", ")),
		})
	}
	return scenes
}

// extractActivities groups activity-vocabulary labels by exact name. The
// stored confidence is the first occurrence's; repeats only append
// instances.
func extractActivities(labels []analysis.LabelDetection) []analysis.Activity {
	activities := []analysis.Activity{}
	index := make(map[string]int)

	for _, d := range labels {
		if !matchesVocabulary(d.Name, soccerActivities) {
			continue
		}

		instance := analysis.ActivityInstance{
			Timestamp: float64(d.TimestampMillis) / 1000,
		}
		if len(d.Regions) > 0 {
			region := d.Regions[0]
			instance.BoundingRegion = &region
		}

		if i, ok := index[d.Name]; ok {
			activities[i].Instances = append(activities[i].Instances, instance)
			continue
		}
		index[d.Name] = len(activities)
		activities = append(activities, analysis.Activity{
			Label:      d.Name,
			Confidence: d.Confidence,
			Instances:  []analysis.ActivityInstance{instance},
		})
	}

	return activities
}

// extractKeyMoments merges every label detection and every activity
// instance into one candidate list, drops candidates at or below the
// confidence threshold, keeps the top ten by confidence, and presents
// them in timestamp order. Confidence ties keep merge order: labels
// first, then activities.
func extractKeyMoments(labels []analysis.LabelDetection, activities []analysis.Activity) []analysis.KeyMoment {
	candidates := make([]analysis.KeyMoment, 0, len(labels))

	for _, d := range labels {
		candidates = append(candidates, analysis.KeyMoment{
			Timestamp:   float64(d.TimestampMillis) / 1000,
			Description: fmt.Sprintf("%s detected", d.Name),
			Confidence:  d.Confidence,
			Source:      "label",
		})
	}
	for _, a := range activities {
		for _, inst := range a.Instances {
			candidates = append(candidates, analysis.KeyMoment{
				Timestamp:   inst.Timestamp,
				Description: fmt.Sprintf("%s activity", a.Label),
				Confidence:  a.Confidence,
				Source:      "activity",
			})
		}
	}

	kept := candidates[:0]
	for _, c := range candidates {
		if c.Confidence > keyMomentThreshold {
			kept = append(kept, c)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Confidence > kept[j].Confidence })
	if len(kept) > maxKeyMoments {
		kept = kept[:maxKeyMoments]
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Timestamp < kept[j].Timestamp })

	out := make([]analysis.KeyMoment, len(kept))
	copy(out, kept)
	return out
}

func trackDetections(payloads map[string]*analysis.JobPayload) ([]analysis.TrackedEntity, bool) {
	p, ok := payloads[analysis.KindTrack]
	if !ok {
		return nil, false
	}
	return p.Tracks, true
}

// extractPlayers groups tracked entities by track index. Each timeline
// interval uses a fixed one-second placeholder width, an approximation
// rather than the real track duration.
func extractPlayers(tracks []analysis.TrackedEntity) []analysis.Player {
	if len(tracks) == 0 {
		return []analysis.Player{}
	}

	groups := make(map[int][]analysis.Interval)
	for _, d := range tracks {
		start := float64(d.TimestampMillis) / 1000
		groups[d.TrackIndex] = append(groups[d.TrackIndex], analysis.Interval{
			Start: start,
			End:   start + 1,
		})
	}

	ids := make([]int, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	players := make([]analysis.Player, 0, len(ids))
	for _, id := range ids {
		players = append(players, analysis.Player{
			TrackID:     id,
			Appearances: len(groups[id]),
			Timeline:    groups[id],
		})
	}
	return players
}

// summarize produces the single templated summary sentence.
func summarize(rep *analysis.Report, hasTracks bool, payloads map[string]*analysis.JobPayload) string {
	top := topActivities(rep.Activities, 3)
	activityText := "none"
	if len(top) > 0 {
		activityText = strings.Join(top, ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Soccer video analysis: detected %d scenes. ", len(rep.Scenes))
	fmt.Fprintf(&b, "Key activities include: %s. ", activityText)
	fmt.Fprintf(&b, "Found %d significant moments with high confidence.", len(rep.KeyMoments))

	if hasTracks {
		fmt.Fprintf(&b, " Tracked %d players across the match.", len(rep.Players))
	} else {
		b.WriteString(" Note: player tracking unavailable.")
	}

	if _, ok := payloads[analysis.KindModeration]; ok {
		fmt.Fprintf(&b, " Flagged %d content warnings.", rep.ContentWarnings)
	}

	return b.String()
}

// topActivities returns up to n activity labels by instance count,
// descending; ties keep first-occurrence order.
func topActivities(activities []analysis.Activity, n int) []string {
	sorted := make([]analysis.Activity, len(activities))
	copy(sorted, activities)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Instances) > len(sorted[j].Instances)
	})

	if len(sorted) > n {
		sorted = sorted[:n]
	}
	out := make([]string, 0, len(sorted))
	for _, a := range sorted {
		out = append(out, a.Label)
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
