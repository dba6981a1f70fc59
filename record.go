package crystal

import (
	"cmp"
	"encoding/json"
	"math"
	"slices"
	"time"
)

// Known categories. Category values are not validated; any string works.
const (
	CategoryHyperfocus  = "hyperfocus"
	CategoryWorkflow    = "workflow"
	CategoryAchievement = "achievement"
	CategoryDebug       = "debug"
	CategoryCreative    = "creative"
	CategorySocial      = "social"

	// CategoryGeneral is used when Put is called with an empty category.
	CategoryGeneral = "general"
)

var categoryDescriptions = map[string]string{
	CategoryHyperfocus:  "Deep focus session patterns",
	CategoryWorkflow:    "Productivity workflow optimizations",
	CategoryAchievement: "Success pattern crystallization",
	CategoryDebug:       "Problem-solving breakthrough patterns",
	CategoryCreative:    "Creative flow state patterns",
	CategorySocial:      "Communication and collaboration patterns",
	CategoryGeneral:     "Uncategorized patterns",
}

// Category is a known category and its description.
type Category struct {
	Name        string
	Description string
}

// Categories returns the known categories sorted by name.
func Categories() []Category {
	out := make([]Category, 0, len(categoryDescriptions))
	for name, desc := range categoryDescriptions {
		out = append(out, Category{Name: name, Description: desc})
	}
	slices.SortFunc(out, func(a, b Category) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return out
}

// Record is a stored crystal.
type Record struct {
	// ID is the fingerprint of Category and Pattern.
	ID string `json:"crystal_id"`

	// Category groups related crystals.
	Category string `json:"category"`

	// Pattern is the crystal content as canonical JSON.
	Pattern json.RawMessage `json:"pattern_data"`

	// Metadata is caller data stored alongside the pattern. It does not
	// contribute to the ID and is not searchable.
	Metadata json.RawMessage `json:"metadata"`

	// CreatedAt is when the crystal was first written.
	CreatedAt time.Time `json:"created_at"`

	// LastAccessed is the time of the most recent write or read.
	LastAccessed time.Time `json:"last_accessed"`

	// AccessCount is the number of successful reads.
	AccessCount int64 `json:"access_count"`

	// EfficiencyScore rates how frequently and recently the crystal is
	// read, from 0 to 100.
	EfficiencyScore float64 `json:"efficiency_score"`
}

// recencyWindow is the age at which recency stops contributing above its floor.
const recencyWindow = 7 * 24 * time.Hour

// Score rates a crystal read accessCount times, the last time age ago.
//
//	100 × (0.6 × min(1, accessCount/10) + 0.4 × max(0.1, 1 − age/7d))
func Score(accessCount int64, age time.Duration) float64 {
	if age < 0 {
		age = 0
	}
	frequency := math.Min(1, float64(accessCount)/10)
	recency := math.Max(0.1, 1-age.Seconds()/recencyWindow.Seconds())
	return (0.6*frequency + 0.4*recency) * 100
}

// touch records a read at now.
func (r *Record) touch(now time.Time) {
	age := now.Sub(r.LastAccessed)
	r.AccessCount++
	r.LastAccessed = now
	r.EfficiencyScore = Score(r.AccessCount, age)
}
