package pipeline

import (
	"sort"
	"time"

	"cinepulse/pkg/contracts/domain"
)

// Cleaned is the committed output of the clean stage. Exactly one of the
// domain slices is populated.
type Cleaned struct {
	Catalog  []domain.CatalogRow  `json:"catalog,omitempty"`
	Region   []domain.RegionPoint `json:"region,omitempty"`
	Comments []string             `json:"comments,omitempty"`
	Report   domain.CleanReport   `json:"report"`
}

// Len returns the number of cleaned rows or comments
func (c *Cleaned) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Catalog) + len(c.Region) + len(c.Comments)
}

// Result is the committed output of the analysis stage. Exactly one field is set.
type Result struct {
	Clusters *domain.ClusterSummary  `json:"clusters,omitempty"`
	Forecast *domain.ForecastSummary `json:"forecast,omitempty"`
	Tokens   *domain.TokenTable      `json:"tokens,omitempty"`
}

// Artifact is a rendered blob cached on a record under its type
type Artifact struct {
	Type        string    `json:"type"`
	ContentType string    `json:"content_type"`
	Data        []byte    `json:"-"`
	Digest      string    `json:"digest"`
	Size        int       `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

// Record is the pipeline state of one (domain, key). Values reachable from a
// Record returned by the store are shared snapshots and must not be mutated.
type Record struct {
	Domain    Domain
	Key       string
	Raw       *domain.Payload
	Cleaned   *Cleaned
	Result    *Result
	Artifacts map[string]Artifact
	Version   uint64
	LoadedAt  time.Time
	CleanedAt time.Time
	ResultAt  time.Time
}

// Has reports whether a stage has been committed
func (r *Record) Has(s Stage) bool {
	switch s {
	case StageRaw:
		return r.Raw != nil
	case StageCleaned:
		return r.Cleaned != nil
	case StageResult:
		return r.Result != nil
	case StageArtifact:
		return len(r.Artifacts) > 0
	}
	return false
}

// Stages lists the committed stages in pipeline order
func (r *Record) Stages() []Stage {
	var out []Stage
	for _, s := range []Stage{StageRaw, StageCleaned, StageResult, StageArtifact} {
		if r.Has(s) {
			out = append(out, s)
		}
	}
	return out
}

// ArtifactTypes returns the cached artifact types in sorted order
func (r *Record) ArtifactTypes() []string {
	types := make([]string, 0, len(r.Artifacts))
	for t := range r.Artifacts {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// copyOnWrite returns a new record sharing the immutable stage values but
// owning its own artifact map.
func (r *Record) copyOnWrite() *Record {
	out := *r
	out.Artifacts = make(map[string]Artifact, len(r.Artifacts))
	for k, v := range r.Artifacts {
		out.Artifacts[k] = v
	}
	return &out
}

// RecordSummary is the JSON view of a record
type RecordSummary struct {
	Domain      Domain              `json:"domain"`
	Key         string              `json:"key"`
	Stages      []Stage             `json:"stages"`
	Version     uint64              `json:"version"`
	RawRows     int                 `json:"raw_rows"`
	Source      string              `json:"source,omitempty"`
	CleanedRows int                 `json:"cleaned_rows"`
	CleanReport *domain.CleanReport `json:"clean_report,omitempty"`
	Artifacts   []Artifact          `json:"artifacts"`
	LoadedAt    *time.Time          `json:"loaded_at,omitempty"`
	CleanedAt   *time.Time          `json:"cleaned_at,omitempty"`
	ResultAt    *time.Time          `json:"result_at,omitempty"`
}

// Summary builds the JSON view of the record
func (r *Record) Summary() RecordSummary {
	s := RecordSummary{
		Domain:    r.Domain,
		Key:       r.Key,
		Stages:    r.Stages(),
		Version:   r.Version,
		Artifacts: make([]Artifact, 0, len(r.Artifacts)),
		LoadedAt:  timePtr(r.LoadedAt),
		CleanedAt: timePtr(r.CleanedAt),
		ResultAt:  timePtr(r.ResultAt),
	}
	if r.Raw != nil {
		s.RawRows = r.Raw.Len()
		s.Source = r.Raw.Source
	}
	if r.Cleaned != nil {
		s.CleanedRows = r.Cleaned.Len()
		report := r.Cleaned.Report
		s.CleanReport = &report
	}
	for _, t := range r.ArtifactTypes() {
		s.Artifacts = append(s.Artifacts, r.Artifacts[t])
	}
	return s
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
