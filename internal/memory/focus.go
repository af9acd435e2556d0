package memory

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// FOCUS EPISODES
// =============================================================================

// Episode is a bounded unit of work grouping related notes under a label.
type Episode struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Objective string    `json:"objective,omitempty"`
	Started   time.Time `json:"started"`
	Notes     []string  `json:"notes"`
}

// EpisodeRecord is an archived, completed episode.
type EpisodeRecord struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Objective string    `json:"objective,omitempty"`
	Started   time.Time `json:"started"`
	Completed time.Time `json:"completed"`
	Notes     []string  `json:"notes"`
	Outcome   string    `json:"outcome,omitempty"`
	Summary   string    `json:"summary,omitempty"`
	Persisted bool      `json:"persisted"`
}

// EpisodeStats aggregates episode lifecycle history.
type EpisodeStats struct {
	TotalEpisodes int `json:"total_episodes"`
	Started       int `json:"started"`
	Completed     int `json:"completed"`
	Persisted     int `json:"persisted"`

	LastStartedAt   time.Time `json:"last_started_at,omitempty"`
	LastCompletedAt time.Time `json:"last_completed_at,omitempty"`
	LastSummary     string    `json:"last_summary,omitempty"`
}

// StartFocus opens a focus episode with the given label and objective.
// Starting while an episode is already active is idempotent: the active
// episode is returned unchanged and no second id is minted.
func (s *Store) StartFocus(label, objective string) *Episode {
	label = strings.TrimSpace(label)
	if label == "" {
		label = "untitled"
	}
	objective = strings.TrimSpace(objective)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.focus != nil {
		s.log.Debugw("focus already active", "active", s.focus.Label, "requested", label)
		return copyEpisode(s.focus)
	}

	now := time.Now()
	s.focus = &Episode{
		ID:        uuid.NewString(),
		Label:     label,
		Objective: objective,
		Started:   now,
	}
	s.episodes.TotalEpisodes++
	s.episodes.Started++
	s.episodes.LastStartedAt = now
	return copyEpisode(s.focus)
}

// AppendFocus adds a note to the active episode. Without an active episode
// the note is dropped and false is returned.
func (s *Store) AppendFocus(note string) bool {
	note = strings.TrimSpace(note)
	if note == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.focus == nil {
		return false
	}
	s.focus.Notes = append(s.focus.Notes, note)
	return true
}

// ActiveFocus returns a copy of the active episode, or nil when none.
func (s *Store) ActiveFocus() *Episode {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.focus == nil {
		return nil
	}
	return copyEpisode(s.focus)
}

// CompleteFocus closes the active episode. The record is always archived,
// whether or not persist is set. With persist, an episode slice summarizing
// label, objective and outcome is stored, and any structured facts found in
// the objective and notes are extracted into slices of their own type.
// Returns the archived record, or nil when no episode was active.
func (s *Store) CompleteFocus(outcome string, persist bool) *EpisodeRecord {
	outcome = strings.TrimSpace(outcome)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.focus == nil {
		return nil
	}

	rec := EpisodeRecord{
		ID:        s.focus.ID,
		Label:     s.focus.Label,
		Objective: s.focus.Objective,
		Started:   s.focus.Started,
		Completed: time.Now(),
		Notes:     s.focus.Notes,
		Outcome:   outcome,
		Persisted: persist,
	}
	s.focus = nil

	parts := []string{rec.Label}
	if rec.Objective != "" {
		parts = append(parts, rec.Objective)
	}
	if outcome != "" {
		parts = append(parts, outcome)
	}
	rec.Summary = summarize(strings.Join(parts, ": "), summaryLimit)

	s.archive = append(s.archive, rec)
	s.episodes.Completed++
	s.episodes.LastCompletedAt = rec.Completed
	s.episodes.LastSummary = rec.Summary

	if persist {
		s.episodes.Persisted++
		s.storeSlice(buildSlice(TypeEpisode, rec.Summary, defaultConfidence, Metadata{}))

		combined := rec.Objective + "\n" + strings.Join(rec.Notes, "\n")
		for _, f := range extractStructured(combined) {
			s.storeSlice(buildSlice(f.typ, f.text, defaultConfidence, Metadata{}))
		}
	}

	s.log.Debugw("focus complete", "label", rec.Label, "notes", len(rec.Notes), "persisted", persist)
	out := rec
	return &out
}

// EpisodeArchive returns copies of all archived episode records.
func (s *Store) EpisodeArchive() []EpisodeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EpisodeRecord, len(s.archive))
	copy(out, s.archive)
	return out
}

// Stats returns the episode lifecycle aggregates.
func (s *Store) Stats() EpisodeStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.episodes
}

func copyEpisode(e *Episode) *Episode {
	cp := *e
	cp.Notes = append([]string(nil), e.Notes...)
	return &cp
}
