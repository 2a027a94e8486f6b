package index

// FragmentKind tags what a metadata fragment describes.
type FragmentKind string

const (
	KindSheetSummary FragmentKind = "sheet_summary"
	KindColumnInfo   FragmentKind = "column_info"
	KindRelationship FragmentKind = "relationships"
)

// Tags scope a fragment to its dataset, sheet and (optionally) column.
type Tags struct {
	Kind       FragmentKind
	DatasetID  string
	SheetName  string
	ColumnName string
	Category   string
}

// Fragment is one unit of indexed descriptive text. Fragments are
// immutable once created; re-ingesting a dataset regenerates them
// wholesale.
type Fragment struct {
	Text string
	Tags Tags
}

// TagFilter restricts a query to fragments whose tags match every
// non-empty field exactly.
type TagFilter struct {
	Kind       FragmentKind
	SheetName  string
	ColumnName string
}

func (f TagFilter) matches(t Tags) bool {
	if f.Kind != "" && f.Kind != t.Kind {
		return false
	}
	if f.SheetName != "" && f.SheetName != t.SheetName {
		return false
	}
	if f.ColumnName != "" && f.ColumnName != t.ColumnName {
		return false
	}
	return true
}
