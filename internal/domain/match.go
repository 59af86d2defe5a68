package domain

// Outcome is the tagged result of matching one reference.
type Outcome int

// Match outcomes.
const (
	OutcomeUnmatched Outcome = iota
	OutcomeMatched
	OutcomeAmbiguous
)

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeMatched:
		return "matched"
	case OutcomeAmbiguous:
		return "ambiguous"
	default:
		return "unmatched"
	}
}

// Unmatched reasons.
const (
	ReasonBlacklisted  = "blacklisted"
	ReasonMissingYear  = "missing year"
	ReasonNoCandidates = "no candidates"
	ReasonUnrecognized = "unrecognized name"
	ReasonAmbiguous    = "ambiguous"
)

// MatchResult is produced once per reference per pass.
// Entry is set for Matched, Candidates (tie-break ordered) for Ambiguous.
type MatchResult struct {
	Reference      CoverReference `json:"reference"`
	Outcome        Outcome        `json:"outcome"`
	Entry          *LibraryEntry  `json:"entry,omitempty"`
	Candidates     []LibraryEntry `json:"candidates,omitempty"`
	ResolvedTitles []string       `json:"resolved_titles,omitempty"`
	Reason         string         `json:"reason,omitempty"`
}

// Preferred returns the entry a placement would target: the matched entry,
// or the first tie-break candidate of an ambiguous result.
func (m MatchResult) Preferred() *LibraryEntry {
	switch m.Outcome {
	case OutcomeMatched:
		return m.Entry
	case OutcomeAmbiguous:
		if len(m.Candidates) > 0 {
			return &m.Candidates[0]
		}
	}
	return nil
}
