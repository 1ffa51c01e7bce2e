// Package schema describes the shape of the userData.db store carried by a
// backup archive: the fixed set of entity kinds, the merge-relevant columns
// of each kind, the foreign keys between kinds, and the order in which kinds
// must be merged so that references resolve.
package schema

// Kind identifies one of the fixed record types carried by a backup store.
type Kind string

const (
	KindLocation     Kind = "Location"
	KindUserMark     Kind = "UserMark"
	KindBlockRange   Kind = "BlockRange"
	KindNote         Kind = "Note"
	KindPlaylistItem Kind = "PlaylistItem"
	KindTag          Kind = "Tag"
	KindInputField   Kind = "InputField"
	KindTagMap       Kind = "TagMap"
)

// ForeignKey declares a column that holds another kind's surrogate id.
type ForeignKey struct {
	Column     string
	References Kind
}

// Table describes the merge-relevant shape of one kind's table. Columns
// excludes the surrogate id; IDColumn is empty for tables keyed only by
// their natural columns.
type Table struct {
	Kind        Kind
	IDColumn    string
	Columns     []string
	ForeignKeys []ForeignKey
}

// Name returns the SQL table name, which matches the kind.
func (t Table) Name() string { return string(t.Kind) }

// HasID reports whether the table carries a surrogate id column.
func (t Table) HasID() bool { return t.IDColumn != "" }

// ColumnIndex returns the position of name in Columns, or -1.
func (t Table) ColumnIndex(name string) int {
	for i, col := range t.Columns {
		if col == name {
			return i
		}
	}
	return -1
}

var tables = map[Kind]Table{
	KindLocation: {
		Kind:     KindLocation,
		IDColumn: "LocationId",
		Columns: []string{
			"BookNumber", "ChapterNumber", "DocumentId", "Track",
			"IssueTagNumber", "KeySymbol", "MepsLanguage", "Type", "Title",
		},
	},
	KindUserMark: {
		Kind:     KindUserMark,
		IDColumn: "UserMarkId",
		Columns: []string{
			"ColorIndex", "LocationId", "StyleIndex", "UserMarkGuid", "Version",
		},
		ForeignKeys: []ForeignKey{
			{Column: "LocationId", References: KindLocation},
		},
	},
	KindBlockRange: {
		Kind:     KindBlockRange,
		IDColumn: "BlockRangeId",
		Columns: []string{
			"BlockType", "Identifier", "StartToken", "EndToken", "UserMarkId",
		},
		ForeignKeys: []ForeignKey{
			{Column: "UserMarkId", References: KindUserMark},
		},
	},
	KindNote: {
		Kind:     KindNote,
		IDColumn: "NoteId",
		Columns: []string{
			"Guid", "UserMarkId", "LocationId", "Title", "Content",
			"LastModified", "Created", "BlockType", "BlockIdentifier",
		},
		ForeignKeys: []ForeignKey{
			{Column: "UserMarkId", References: KindUserMark},
			{Column: "LocationId", References: KindLocation},
		},
	},
	KindPlaylistItem: {
		Kind:     KindPlaylistItem,
		IDColumn: "PlaylistItemId",
		Columns: []string{
			"Label", "StartTrimOffsetTicks", "EndTrimOffsetTicks",
			"Accuracy", "EndAction", "ThumbnailFilePath",
		},
	},
	KindTag: {
		Kind:     KindTag,
		IDColumn: "TagId",
		Columns:  []string{"Type", "Name"},
	},
	KindInputField: {
		Kind:    KindInputField,
		Columns: []string{"LocationId", "TextTag", "Value"},
		ForeignKeys: []ForeignKey{
			{Column: "LocationId", References: KindLocation},
		},
	},
	KindTagMap: {
		Kind:     KindTagMap,
		IDColumn: "TagMapId",
		Columns: []string{
			"PlaylistItemId", "LocationId", "NoteId", "TagId", "Position",
		},
		ForeignKeys: []ForeignKey{
			{Column: "PlaylistItemId", References: KindPlaylistItem},
			{Column: "LocationId", References: KindLocation},
			{Column: "NoteId", References: KindNote},
			{Column: "TagId", References: KindTag},
		},
	},
}

// TableFor returns the descriptor for kind.
func TableFor(kind Kind) (Table, bool) {
	t, ok := tables[kind]
	return t, ok
}

// Step is one slot in the merge schedule: a table plus the progress range
// and status label reported while it merges.
type Step struct {
	Table Table
	Start int
	End   int
	Label string
}

// Schedule returns the fixed merge order. Every kind appears after all kinds
// it references, so id translations for references are always populated
// before they are read.
func Schedule() []Step {
	return []Step{
		{Table: tables[KindLocation], Start: 35, End: 45, Label: "Merging locations..."},
		{Table: tables[KindUserMark], Start: 45, End: 55, Label: "Merging user marks..."},
		{Table: tables[KindBlockRange], Start: 55, End: 60, Label: "Merging block ranges..."},
		{Table: tables[KindNote], Start: 60, End: 70, Label: "Merging notes..."},
		{Table: tables[KindPlaylistItem], Start: 70, End: 75, Label: "Merging playlist items..."},
		{Table: tables[KindTag], Start: 75, End: 78, Label: "Merging tags..."},
		{Table: tables[KindInputField], Start: 78, End: 80, Label: "Merging input fields..."},
		{Table: tables[KindTagMap], Start: 80, End: 85, Label: "Merging tag mappings..."},
	}
}
