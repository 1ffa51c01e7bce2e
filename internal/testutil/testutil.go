package testutil

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rfletcher/jwlsync/internal/archive"
	"github.com/rfletcher/jwlsync/internal/manifest"
)

// BackupSchema is the userData.db shape the merge operates on: the eight
// merged tables with the unique constraints that drive duplicate detection
// and constraint recovery.
const BackupSchema = `
CREATE TABLE Location (
	LocationId INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
	BookNumber INTEGER,
	ChapterNumber INTEGER,
	DocumentId INTEGER,
	Track INTEGER,
	IssueTagNumber INTEGER NOT NULL DEFAULT 0,
	KeySymbol TEXT,
	MepsLanguage INTEGER,
	Type INTEGER NOT NULL DEFAULT 0,
	Title TEXT,
	UNIQUE (BookNumber, ChapterNumber, KeySymbol, MepsLanguage, Type),
	UNIQUE (KeySymbol, IssueTagNumber, MepsLanguage, DocumentId, Track, Type)
);

CREATE TABLE UserMark (
	UserMarkId INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
	ColorIndex INTEGER NOT NULL,
	LocationId INTEGER NOT NULL,
	StyleIndex INTEGER NOT NULL,
	UserMarkGuid TEXT NOT NULL UNIQUE,
	Version INTEGER NOT NULL,
	FOREIGN KEY (LocationId) REFERENCES Location (LocationId)
);

CREATE TABLE BlockRange (
	BlockRangeId INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
	BlockType INTEGER NOT NULL,
	Identifier INTEGER NOT NULL,
	StartToken INTEGER,
	EndToken INTEGER,
	UserMarkId INTEGER NOT NULL,
	FOREIGN KEY (UserMarkId) REFERENCES UserMark (UserMarkId)
);

CREATE TABLE Note (
	NoteId INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
	Guid TEXT NOT NULL UNIQUE,
	UserMarkId INTEGER,
	LocationId INTEGER,
	Title TEXT,
	Content TEXT,
	LastModified TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
	Created TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
	BlockType INTEGER NOT NULL DEFAULT 0,
	BlockIdentifier INTEGER,
	FOREIGN KEY (UserMarkId) REFERENCES UserMark (UserMarkId),
	FOREIGN KEY (LocationId) REFERENCES Location (LocationId)
);

CREATE TABLE PlaylistItem (
	PlaylistItemId INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
	Label TEXT NOT NULL,
	StartTrimOffsetTicks INTEGER,
	EndTrimOffsetTicks INTEGER,
	Accuracy INTEGER NOT NULL DEFAULT 0,
	EndAction INTEGER NOT NULL DEFAULT 0,
	ThumbnailFilePath TEXT
);

CREATE TABLE Tag (
	TagId INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
	Type INTEGER NOT NULL DEFAULT 0,
	Name TEXT NOT NULL,
	UNIQUE (Type, Name)
);

CREATE TABLE InputField (
	LocationId INTEGER NOT NULL,
	TextTag TEXT NOT NULL,
	Value TEXT NOT NULL,
	PRIMARY KEY (LocationId, TextTag),
	FOREIGN KEY (LocationId) REFERENCES Location (LocationId)
);

CREATE TABLE TagMap (
	TagMapId INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
	PlaylistItemId INTEGER,
	LocationId INTEGER,
	NoteId INTEGER,
	TagId INTEGER NOT NULL,
	Position INTEGER NOT NULL,
	UNIQUE (TagId, Position),
	FOREIGN KEY (PlaylistItemId) REFERENCES PlaylistItem (PlaylistItemId),
	FOREIGN KEY (LocationId) REFERENCES Location (LocationId),
	FOREIGN KEY (NoteId) REFERENCES Note (NoteId),
	FOREIGN KEY (TagId) REFERENCES Tag (TagId)
);
`

// CreateBackupStore creates a userData.db with the backup schema under dir
// and returns an open handle for seeding plus the file path.
func CreateBackupStore(t *testing.T, dir string) (*sql.DB, string) {
	t.Helper()

	path := filepath.Join(dir, "userData.db")
	store, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("Failed to create test store: %v", err)
	}
	if _, err := store.Exec(BackupSchema); err != nil {
		store.Close()
		t.Fatalf("Failed to apply backup schema: %v", err)
	}

	t.Cleanup(func() {
		store.Close()
	})

	return store, path
}

// DefaultManifest returns a valid backup manifest for tests.
func DefaultManifest(device string, schemaVersion int) *manifest.Manifest {
	return &manifest.Manifest{
		Name:         "UserdataBackup_2024-03-01_" + device,
		CreationDate: "2024-03-01",
		Version:      1,
		UserDataBackup: manifest.UserDataBackup{
			LastModifiedDate: "2024-03-01T17:10:09Z",
			DeviceName:       device,
			DatabaseName:     "userData.db",
			Hash:             "0000000000000000000000000000000000000000000000000000000000000000",
			SchemaVersion:    schemaVersion,
		},
	}
}

// BuildBackupArchive assembles a complete backup archive from a seeded
// userData.db and the given manifest, and returns the archive path.
func BuildBackupArchive(t *testing.T, m *manifest.Manifest, seed func(t *testing.T, store *sql.DB)) string {
	t.Helper()

	workDir := t.TempDir()
	store, _ := CreateBackupStore(t, workDir)
	if seed != nil {
		seed(t, store)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Failed to close seeded store: %v", err)
	}

	if err := m.Save(filepath.Join(workDir, manifest.Filename)); err != nil {
		t.Fatalf("Failed to write manifest: %v", err)
	}

	archivePath := filepath.Join(t.TempDir(), m.Name+".jwlibrary")
	if err := archive.PackFile(workDir, archivePath); err != nil {
		t.Fatalf("Failed to pack archive: %v", err)
	}
	return archivePath
}

// MustExec runs stmt against store and fails the test on error.
func MustExec(t *testing.T, store *sql.DB, stmt string, args ...any) {
	t.Helper()
	if _, err := store.Exec(stmt, args...); err != nil {
		t.Fatalf("Failed to exec %q: %v", stmt, err)
	}
}

// CountRows returns the number of rows in table.
func CountRows(t *testing.T, store *sql.DB, table string) int {
	t.Helper()
	var n int
	if err := store.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("Failed to count %s rows: %v", table, err)
	}
	return n
}

// WriteFile writes content to a file in a temporary directory
func WriteFile(t *testing.T, dir, filename, content string) string {
	t.Helper()
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write file %s: %v", path, err)
	}
	return path
}

// ReadFile reads content from a file
func ReadFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(data)
}

// AssertNoError asserts that an error is nil
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
}

// AssertError asserts that an error is not nil
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
}

// AssertEqual asserts that two values are equal
func AssertEqual(t *testing.T, expected, actual interface{}) {
	t.Helper()
	if expected != actual {
		t.Fatalf("Expected %v, got %v", expected, actual)
	}
}

// AssertStringContains asserts that a string contains a substring
func AssertStringContains(t *testing.T, str, substr string) {
	t.Helper()
	if !strings.Contains(str, substr) {
		t.Fatalf("Expected string to contain %q, got %q", substr, str)
	}
}
