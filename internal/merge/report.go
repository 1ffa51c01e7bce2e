package merge

// Warning reasons. Both are recovered degradations: the run continues and
// the affected record is reported rather than failed.
const (
	// WarnUnresolvedReference marks a foreign-key value with no translation
	// entry. The source-side value is kept as-is, which may not resolve in
	// the destination store.
	WarnUnresolvedReference = "unresolved_reference"
	// WarnUnmappedDuplicate marks a record rejected by a unique constraint
	// stricter than its duplicate-detection key, where no existing row
	// matched the key. The record is skipped and no id translation is
	// recorded for it.
	WarnUnmappedDuplicate = "unmapped_duplicate"
)

// Warning records one recovered degradation during a merge run.
type Warning struct {
	Table  string `json:"table"`
	Column string `json:"column,omitempty"`
	Value  int64  `json:"value,omitempty"`
	Reason string `json:"reason"`
}

// Counts tallies what happened to one table's source records.
type Counts struct {
	Read       int `json:"read"`
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
	Recovered  int `json:"recovered"`
}

// TableCounts pairs a table name with its counts, in merge order.
type TableCounts struct {
	Table string `json:"table"`
	Counts
}

// Result is the outcome of one merge run.
type Result struct {
	Tables   []TableCounts `json:"tables"`
	Warnings []Warning     `json:"warnings,omitempty"`
}

// CountsFor returns the counts recorded for table, or zero counts if the
// table has not merged.
func (r *Result) CountsFor(table string) Counts {
	for _, tc := range r.Tables {
		if tc.Table == table {
			return tc.Counts
		}
	}
	return Counts{}
}
