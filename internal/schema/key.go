package schema

// Location Type value for a document with a media track; rows of this type
// are unique by publication issue and track rather than book and chapter.
const locationTypeDocumentTrack = 3

var (
	locationTrackKey    = []string{"KeySymbol", "IssueTagNumber", "MepsLanguage", "DocumentId", "Track", "Type"}
	locationDocumentKey = []string{"BookNumber", "ChapterNumber", "KeySymbol", "MepsLanguage", "Type", "DocumentId"}
	locationChapterKey  = []string{"BookNumber", "ChapterNumber", "KeySymbol", "MepsLanguage", "Type"}
)

// DuplicateKeyColumns returns the columns whose NULL-aware equality decides
// whether a row with these values already exists in the destination table.
// For most kinds that is every merge column. Location mirrors the store's
// conditional unique constraints, which vary with the Type discriminant.
func DuplicateKeyColumns(t Table, values []any) []string {
	if t.Kind != KindLocation {
		return t.Columns
	}
	if n, ok := intValue(values[t.ColumnIndex("Type")]); ok && n == locationTypeDocumentTrack {
		return locationTrackKey
	}
	if values[t.ColumnIndex("DocumentId")] != nil {
		return locationDocumentKey
	}
	return locationChapterKey
}

func intValue(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	}
	return 0, false
}
