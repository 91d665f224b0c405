package assessment

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

// Marketing constants stamped on every payload.
const (
	Version  = "FlowMaster-Pro-V4"
	Source   = "flowmaster-assessment"
	Campaign = "technical-recruitment-v4"
	Medium   = "assessment-form"
)

// TimestampFormat is the wire format of payload timestamps.
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// Payload is the canonical document delivered to every endpoint.
// It contains only value fields so copies never share state.
type Payload struct {
	Bedrijf    Company          `json:"bedrijf"`
	Contact    Contact          `json:"contact"`
	LeadScore  LeadScoreSummary `json:"lead_score"`
	Assessment Metadata         `json:"assessment"`
	Marketing  Marketing        `json:"marketing"`
	Technical  Technical        `json:"technical"`
}

// Company describes the participant's organisation.
type Company struct {
	Naam                  string `json:"naam,omitempty"`
	Sector                string `json:"sector,omitempty"`
	SectorNaam            string `json:"sectorNaam"`
	Werknemers            string `json:"werknemers,omitempty"`
	AssessmentCompletedAt string `json:"assessment_completed_at"`
}

// LeadScoreSummary is the lead score as sent to CRMs.
type LeadScoreSummary struct {
	Total           int    `json:"total"`
	Grade           Grade  `json:"grade"`
	SizeScore       int    `json:"size_score"`
	SectorScore     int    `json:"sector_score"`
	EngagementScore int    `json:"engagement_score"`
	Urgency         string `json:"urgency"`
	Potential       string `json:"potential"`
}

// Metadata describes the assessment run itself.
type Metadata struct {
	Version           string `json:"version"`
	DurationSeconds   int    `json:"duration_seconds"`
	QuestionsAnswered int    `json:"questions_answered"`
	CompletionRate    int    `json:"completion_rate"`
}

// Marketing carries attribution data.
type Marketing struct {
	Source    string `json:"source"`
	Campaign  string `json:"campaign"`
	Medium    string `json:"medium"`
	Timestamp string `json:"timestamp"`
	SessionID string `json:"session_id"`
}

// Option configures a Builder.
type Option func(*Builder)

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		b.now = now
	}
}

// WithSessionIDs sets the session id generator.
func WithSessionIDs(gen func(time.Time) string) Option {
	return func(b *Builder) {
		b.sessionID = gen
	}
}

// Builder builds payloads. It performs no I/O; the clock and the session id
// generator are its only inputs besides the assessment data.
type Builder struct {
	now       func() time.Time
	sessionID func(time.Time) string
}

// NewBuilder returns a Builder using the wall clock and random session ids.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		now:       time.Now,
		sessionID: NewSessionID,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build maps d to a payload. Missing fields map to their zero values and an
// unknown sector maps to the "Onbekend" label.
func (b *Builder) Build(d Data) Payload {
	now := b.now().UTC()
	ts := now.Format(TimestampFormat)
	score := ScoreLead(d)

	var tech Technical
	if d.Technical != nil {
		tech = *d.Technical
	}

	return Payload{
		Bedrijf: Company{
			Naam:                  d.Bedrijfsnaam,
			Sector:                d.Sector,
			SectorNaam:            SectorName(d.Sector),
			Werknemers:            d.Werknemers,
			AssessmentCompletedAt: ts,
		},
		Contact: d.Contact,
		LeadScore: LeadScoreSummary{
			Total:           score.Total,
			Grade:           score.Grade,
			SizeScore:       score.SizeScore,
			SectorScore:     score.SectorScore,
			EngagementScore: score.EngagementScore,
			Urgency:         Urgency(d),
			Potential:       Potential(score.Total),
		},
		Assessment: Metadata{
			Version:           Version,
			DurationSeconds:   d.Duration,
			QuestionsAnswered: len(d.Antwoorden),
			CompletionRate:    CompletionRate(d),
		},
		Marketing: Marketing{
			Source:    Source,
			Campaign:  Campaign,
			Medium:    Medium,
			Timestamp: ts,
			SessionID: b.sessionID(now),
		},
		Technical: tech,
	}
}

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewSessionID returns an id of the form fm_<unix millis>_<9 base36 chars>.
func NewSessionID(now time.Time) string {
	var sb strings.Builder
	for i := 0; i < 9; i++ {
		sb.WriteByte(base36[rand.IntN(len(base36))])
	}
	return fmt.Sprintf("fm_%d_%s", now.UnixMilli(), sb.String())
}
