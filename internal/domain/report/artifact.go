package report

// Category identifies an independent output stream with its own file and
// done marker per day. The empty category selects the flat single-report
// file layout used by forced-mode runs.
type Category string

const (
	CategoryWeekly  Category = "weekly"
	CategoryMonthly Category = "monthly"
)

// ResultSet is an ordered tabular query result: column names in query
// order, one string slice per row.
type ResultSet struct {
	Columns []string
	Rows    [][]string
}

func (r *ResultSet) RowCount() int {
	return len(r.Rows)
}

// OutputArtifact is the durable result of one successful query+write for
// one category on one day. Its existence on disk is the idempotency signal
// for later runs on the same day.
type OutputArtifact struct {
	Category   Category
	DateString string
	RowCount   int
	FilePath   string
}

// Section is one block of the summary email, derived from an artifact and
// the window that produced it. Never persisted.
type Section struct {
	Title             string
	WindowDescription string
	RowCount          int
}
