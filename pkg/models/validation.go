package models

// Severity grades a validation finding.
type Severity string

const (
	SeverityError   Severity = "error"   // hard failure, IsValid becomes false
	SeverityWarning Severity = "warning" // soft signal, reported but never blocking
	SeverityInfo    Severity = "info"    // a check could not run
)

// Issue is one structured validation finding.
type Issue struct {
	Check    string   `json:"check"`
	Field    Field    `json:"field,omitempty"`
	Year     string   `json:"year,omitempty"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// OutlierFlag is a point flagged by the detector ensemble.
type OutlierFlag struct {
	Field Field    `json:"field"`
	Year  string   `json:"year"`
	Value float64  `json:"value"`
	Votes []string `json:"votes"` // detectors that flagged the point
}

// ValidationResult is the outcome of validating one FinancialData.
type ValidationResult struct {
	IsValid           bool          `json:"is_valid"`
	Issues            []Issue       `json:"issues"`
	Warnings          []string      `json:"warnings"`
	Notes             []string      `json:"notes,omitempty"`
	CompletenessScore float64       `json:"completeness_score"`
	Outliers          []OutlierFlag `json:"outliers,omitempty"`
}

// HardIssues returns the issues that make the record invalid.
func (r *ValidationResult) HardIssues() []Issue {
	var out []Issue
	for _, is := range r.Issues {
		if is.Severity == SeverityError {
			out = append(out, is)
		}
	}
	return out
}

// IssuesFor returns all issues raised by one check.
func (r *ValidationResult) IssuesFor(check string) []Issue {
	var out []Issue
	for _, is := range r.Issues {
		if is.Check == check {
			out = append(out, is)
		}
	}
	return out
}
