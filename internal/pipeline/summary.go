package pipeline

import (
	"time"

	"github.com/JakeFAU/analytica/internal/social"
)

// Summary is the message published after each run.
type Summary struct {
	RunID      string                    `json:"run_id"`
	JobName    string                    `json:"job_name,omitempty"`
	Kind       social.TargetKind         `json:"kind"`
	Target     string                    `json:"target"`
	Status     string                    `json:"status"`
	Collected  int                       `json:"collected"`
	Partial    bool                      `json:"partial"`
	Labels     map[string]map[string]int `json:"labels"`
	Languages  map[string]int            `json:"languages"`
	StartedAt  time.Time                 `json:"started_at"`
	FinishedAt time.Time                 `json:"finished_at"`
	ArchiveURI string                    `json:"archive_uri,omitempty"`
}

// Attributes implements the publisher's attribute hook.
func (s Summary) Attributes() map[string]string {
	return map[string]string{
		"run_id": s.RunID,
		"kind":   string(s.Kind),
		"target": s.Target,
		"status": s.Status,
	}
}

// Summarize counts labels per dimension and languages across a run.
func Summarize(res Result) Summary {
	s := Summary{
		RunID:      res.RunID,
		JobName:    res.JobName,
		Kind:       res.Request.Kind,
		Target:     res.Request.Target,
		Status:     string(res.Status()),
		Collected:  len(res.Posts),
		Partial:    res.Partial,
		Labels:     make(map[string]map[string]int, len(res.Dimensions)),
		Languages:  map[string]int{},
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
		ArchiveURI: res.ArchiveURI,
	}
	for _, d := range res.Dimensions {
		s.Labels[d] = map[string]int{}
	}
	for _, p := range res.Posts {
		s.Languages[p.Language]++
		for dim, label := range p.Labels {
			if s.Labels[dim] == nil {
				s.Labels[dim] = map[string]int{}
			}
			s.Labels[dim][label]++
		}
	}
	return s
}
