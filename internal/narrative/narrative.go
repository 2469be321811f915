// Package narrative links clusters across days into evolving story threads
// and classifies how their sentiment is drifting.
package narrative

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"marketintel/internal/core"
	"marketintel/internal/logger"
)

const (
	// historyWindowDays is how far back candidate clusters are considered.
	historyWindowDays = 7
	// maxThreadAgeDays caps how old a thread may be and still be extended.
	maxThreadAgeDays = 14
	// staleAfterDays resolves a thread that stops receiving updates.
	staleAfterDays = 5

	// Admission gates.
	minEntityOverlap   = 2
	minKeywordOverlap  = 2
	maxSentimentDelta  = 80
	minAdmissionScore  = 10
	escalationDeadband = 10
)

// Store is the persistence surface the engine needs.
type Store interface {
	GetClustersSince(days int) ([]core.Cluster, error)
	GetNarrativeThreads(days int, status core.ThreadStatus) ([]core.NarrativeThread, error)
	SaveNarrativeThreads(threads []core.NarrativeThread) error
}

// Engine threads today's clusters onto history.
type Engine struct {
	store Store
}

// New creates a narrative engine.
func New(store Store) *Engine {
	return &Engine{store: store}
}

// Process links today's clusters to recent history: extend matched active
// threads, open new two-node threads for fresh matches, and resolve stale
// threads. Returns every thread that changed.
func (e *Engine) Process(today []core.Cluster, date string) ([]core.NarrativeThread, error) {
	history, err := e.store.GetClustersSince(historyWindowDays)
	if err != nil {
		return nil, fmt.Errorf("failed to load cluster history: %w", err)
	}
	active, err := e.store.GetNarrativeThreads(maxThreadAgeDays, core.ThreadActive)
	if err != nil {
		return nil, fmt.Errorf("failed to load active threads: %w", err)
	}

	// Historical candidates exclude today's own clusters.
	todayIDs := make(map[string]bool, len(today))
	for _, c := range today {
		todayIDs[c.ID] = true
	}
	var candidates []core.Cluster
	for _, c := range history {
		if !todayIDs[c.ID] && c.Date < date {
			candidates = append(candidates, c)
		}
	}

	threadByCluster := make(map[string]*core.NarrativeThread)
	for i := range active {
		for _, cid := range active[i].ClusterIDs {
			threadByCluster[cid] = &active[i]
		}
	}

	changed := make(map[string]*core.NarrativeThread)
	claimed := make(map[string]bool) // thread IDs already extended this run

	for _, cluster := range today {
		match, ok := bestMatch(cluster, candidates)
		if !ok {
			continue
		}

		if thread, exists := threadByCluster[match.ID]; exists && !claimed[thread.ID] &&
			threadAgeDays(*thread, date) <= maxThreadAgeDays {
			extendThread(thread, cluster, date)
			claimed[thread.ID] = true
			changed[thread.ID] = thread
			continue
		}

		t := newThread(match, cluster, date)
		changed[t.ID] = &t
	}

	resolved := e.resolveStale(active, changed, date)

	var out []core.NarrativeThread
	for _, t := range changed {
		out = append(out, *t)
	}
	out = append(out, resolved...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	if len(out) > 0 {
		if err := e.store.SaveNarrativeThreads(out); err != nil {
			return nil, fmt.Errorf("failed to persist narrative threads: %w", err)
		}
	}

	logger.Info("narrative pass complete",
		"today_clusters", len(today), "threads_changed", len(out))
	return out, nil
}

// bestMatch scores every candidate and returns the winner, if any passes all
// admission gates.
func bestMatch(cluster core.Cluster, candidates []core.Cluster) (core.Cluster, bool) {
	var best core.Cluster
	bestScore := -1

	for _, candidate := range candidates {
		entityOverlap := overlap(cluster.Entities, candidate.Entities)
		keywordOverlap := overlap(cluster.Keywords, candidate.Keywords)
		categoryBit := 0
		if categoryOverlap(cluster.Categories, candidate.Categories) {
			categoryBit = 1
		}

		score := 3*entityOverlap + 2*keywordOverlap + 2*categoryBit

		if entityOverlap < minEntityOverlap || keywordOverlap < minKeywordOverlap {
			continue
		}
		if categoryBit == 0 {
			continue
		}
		if math.Abs(cluster.AggregateSentiment-candidate.AggregateSentiment) > maxSentimentDelta {
			continue
		}
		if score < minAdmissionScore {
			continue
		}
		if score > bestScore {
			best, bestScore = candidate, score
		}
	}
	return best, bestScore >= 0
}

// extendThread appends today's cluster to an existing thread. A thread whose
// last entry is already from this date was extended by an earlier run of the
// same day; its tail is replaced instead of appended so reruns stay
// idempotent and cluster_ids keeps one entry per date.
func extendThread(t *core.NarrativeThread, cluster core.Cluster, date string) {
	if t.LastSeen == date && len(t.ClusterIDs) > 0 {
		t.ClusterIDs[len(t.ClusterIDs)-1] = cluster.ID
		t.SentimentArc[len(t.SentimentArc)-1] = cluster.AggregateSentiment
	} else {
		t.ClusterIDs = append(t.ClusterIDs, cluster.ID)
		t.SentimentArc = append(t.SentimentArc, cluster.AggregateSentiment)
		t.LastSeen = date
	}
	t.DurationDays = durationDays(t.FirstSeen, t.LastSeen)
	t.Entities = mergeEntities(t.Entities, cluster.Entities)
	t.Title = fmt.Sprintf("%s (%d days developing)", cluster.Topic, t.DurationDays)
	t.Escalation = classifyEscalation(t.SentimentArc)
	t.Status = core.ThreadActive
}

// newThread opens a two-node thread from a historical match and today's
// cluster.
func newThread(historical, today core.Cluster, date string) core.NarrativeThread {
	t := core.NarrativeThread{
		ID:           uuid.NewSHA1(uuid.NameSpaceOID, []byte(historical.ID+"|"+today.ID)).String(),
		FirstSeen:    historical.Date,
		LastSeen:     date,
		ClusterIDs:   []string{historical.ID, today.ID},
		SentimentArc: []float64{historical.AggregateSentiment, today.AggregateSentiment},
		Entities:     mergeEntities(historical.Entities, today.Entities),
		Status:       core.ThreadActive,
	}
	t.DurationDays = durationDays(t.FirstSeen, t.LastSeen)
	t.Title = fmt.Sprintf("%s (%d days developing)", today.Topic, t.DurationDays)
	t.Escalation = classifyEscalation(t.SentimentArc)
	return t
}

// resolveStale flips active threads with no update in staleAfterDays to
// resolved. Resolution is one-way.
func (e *Engine) resolveStale(active []core.NarrativeThread, changed map[string]*core.NarrativeThread, date string) []core.NarrativeThread {
	var resolved []core.NarrativeThread
	for _, t := range active {
		if _, updatedNow := changed[t.ID]; updatedNow {
			continue
		}
		if daysBetween(t.LastSeen, date) >= staleAfterDays {
			t.Status = core.ThreadResolved
			resolved = append(resolved, t)
		}
	}
	return resolved
}

// classifyEscalation reads the drift of the sentiment arc. Negative drift
// means tension rising.
func classifyEscalation(arc []float64) core.Escalation {
	if len(arc) < 2 {
		return core.EscalationStable
	}
	diff := arc[len(arc)-1] - arc[0]
	switch {
	case diff < -escalationDeadband:
		return core.EscalationRising
	case diff > escalationDeadband:
		return core.EscalationDeclining
	default:
		return core.EscalationStable
	}
}

func overlap(a, b []string) int {
	set := make(map[string]bool, len(a))
	for _, v := range a {
		set[strings.ToLower(v)] = true
	}
	count := 0
	seen := make(map[string]bool)
	for _, v := range b {
		lower := strings.ToLower(v)
		if set[lower] && !seen[lower] {
			seen[lower] = true
			count++
		}
	}
	return count
}

func categoryOverlap(a, b []core.Category) bool {
	set := make(map[core.Category]bool, len(a))
	for _, c := range a {
		set[c] = true
	}
	for _, c := range b {
		if set[c] {
			return true
		}
	}
	return false
}

func mergeEntities(a, b []string) []string {
	seen := make(map[string]bool)
	var merged []string
	for _, list := range [][]string{a, b} {
		for _, v := range list {
			lower := strings.ToLower(v)
			if !seen[lower] {
				seen[lower] = true
				merged = append(merged, v)
			}
		}
	}
	sort.Strings(merged)
	return merged
}

// durationDays is the whole-day difference between two YYYY-MM-DD dates.
func durationDays(first, last string) int {
	return daysBetween(first, last)
}

func daysBetween(from, to string) int {
	a, errA := time.Parse("2006-01-02", from)
	b, errB := time.Parse("2006-01-02", to)
	if errA != nil || errB != nil {
		return 0
	}
	days := int(math.Ceil(b.Sub(a).Hours() / 24))
	if days < 0 {
		return 0
	}
	return days
}

// threadAgeDays measures a thread's total age as of the given date.
func threadAgeDays(t core.NarrativeThread, date string) int {
	return daysBetween(t.FirstSeen, date)
}
