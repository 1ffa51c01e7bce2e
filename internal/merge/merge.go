// Package merge reconciles the records of a source backup store into a
// destination store. Kinds merge in dependency order inside one destination
// transaction; duplicates are detected by NULL-aware value equality, never by
// surrogate id, and surrogate ids are translated through per-kind maps as
// referencing kinds merge.
package merge

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/rfletcher/jwlsync/internal/idmap"
	"github.com/rfletcher/jwlsync/internal/progress"
	"github.com/rfletcher/jwlsync/internal/schema"
)

// Run merges every entity kind from source into dest inside one destination
// transaction, reporting progress through sink. Either every kind commits or
// none do. The returned result carries per-table counts plus the warnings
// for degradations that were recovered rather than failed.
func Run(dest, source *sql.DB, sink progress.Func) (*Result, error) {
	if sink == nil {
		sink = progress.Nop
	}

	tx, err := dest.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin merge transaction: %w", err)
	}
	defer tx.Rollback()

	result := &Result{}
	translations := idmap.NewSet()

	for _, step := range schema.Schedule() {
		sink(step.Start, step.Label)

		counts, err := mergeTable(tx, source, step.Table, translations, result)
		if err != nil {
			return nil, &KindError{Kind: step.Table.Kind, Err: err}
		}
		result.Tables = append(result.Tables, TableCounts{Table: step.Table.Name(), Counts: counts})

		sink(step.End, "")
	}

	if err := tx.Commit(); err != nil {
		return nil, &CommitError{Err: err}
	}
	return result, nil
}

// mergeTable reconciles one table's source records into the destination
// transaction, extending the kind's translation table as it goes.
func mergeTable(tx *sql.Tx, source *sql.DB, table schema.Table, translations idmap.Set, result *Result) (Counts, error) {
	var counts Counts

	columnList := strings.Join(table.Columns, ", ")
	placeholders := strings.TrimRight(strings.Repeat("?,", len(table.Columns)), ",")
	insertSQL := "INSERT INTO " + table.Name() + " (" + columnList + ") VALUES (" + placeholders + ")"

	selectSQL := "SELECT " + columnList + " FROM " + table.Name() + " ORDER BY rowid"
	if table.HasID() {
		selectSQL = "SELECT " + table.IDColumn + ", " + columnList +
			" FROM " + table.Name() + " ORDER BY " + table.IDColumn
	}

	rows, err := source.Query(selectSQL)
	if err != nil {
		return counts, fmt.Errorf("failed to read source rows: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var oldID int64
		values := make([]any, len(table.Columns))

		scan := make([]any, 0, len(values)+1)
		if table.HasID() {
			scan = append(scan, &oldID)
		}
		for i := range values {
			scan = append(scan, &values[i])
		}
		if err := rows.Scan(scan...); err != nil {
			return counts, fmt.Errorf("failed to scan source row: %w", err)
		}
		counts.Read++

		// Text scans as []byte through the driver; rebinding []byte would
		// store a blob, so text values go back to string before reuse.
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}

		remapReferences(table, values, translations, result)

		keyCols := schema.DuplicateKeyColumns(table, values)
		where, args := nullAwareWhere(table, keyCols, values)

		existingID, found, err := findExisting(tx, table, where, args)
		if err != nil {
			return counts, err
		}
		if found {
			counts.Duplicates++
			if table.HasID() {
				translations.For(table.Kind).Put(oldID, existingID)
			}
			continue
		}

		res, err := tx.Exec(insertSQL, values...)
		if err != nil {
			if !isConstraintViolation(err) {
				return counts, fmt.Errorf("failed to insert row: %w", err)
			}

			// A unique constraint stricter than the detection key fired.
			// Adopt the conflicting row's id when the key can find it;
			// otherwise skip the record and report it.
			counts.Recovered++
			if table.HasID() {
				existingID, found, ferr := findExisting(tx, table, where, args)
				if ferr != nil {
					return counts, ferr
				}
				if found {
					translations.For(table.Kind).Put(oldID, existingID)
					continue
				}
			}
			result.Warnings = append(result.Warnings, Warning{
				Table:  table.Name(),
				Column: table.IDColumn,
				Value:  oldID,
				Reason: WarnUnmappedDuplicate,
			})
			continue
		}

		counts.Inserted++
		if table.HasID() {
			newID, err := res.LastInsertId()
			if err != nil {
				return counts, fmt.Errorf("failed to read inserted id: %w", err)
			}
			translations.For(table.Kind).Put(oldID, newID)
		}
	}
	if err := rows.Err(); err != nil {
		return counts, fmt.Errorf("failed to iterate source rows: %w", err)
	}

	return counts, nil
}

// remapReferences rewrites foreign-key values through the translation set.
// NULL passes through. A non-NULL value with no translation is kept as-is
// and reported; the destination row may then reference an id only the source
// store knows.
func remapReferences(table schema.Table, values []any, translations idmap.Set, result *Result) {
	for _, fk := range table.ForeignKeys {
		i := table.ColumnIndex(fk.Column)
		if values[i] == nil {
			continue
		}
		oldRef, ok := values[i].(int64)
		if !ok {
			continue
		}
		if newRef, ok := translations.For(fk.References).Resolve(oldRef); ok {
			values[i] = newRef
			continue
		}
		result.Warnings = append(result.Warnings, Warning{
			Table:  table.Name(),
			Column: fk.Column,
			Value:  oldRef,
			Reason: WarnUnresolvedReference,
		})
	}
}

// nullAwareWhere builds a WHERE clause that matches keyCols by value, using
// IS NULL for NULL values so that NULL compares as itself rather than as no
// match.
func nullAwareWhere(table schema.Table, keyCols []string, values []any) (string, []any) {
	conditions := make([]string, 0, len(keyCols))
	args := make([]any, 0, len(keyCols))
	for _, col := range keyCols {
		v := values[table.ColumnIndex(col)]
		if v == nil {
			conditions = append(conditions, col+" IS NULL")
		} else {
			conditions = append(conditions, col+" = ?")
			args = append(args, v)
		}
	}
	return strings.Join(conditions, " AND "), args
}

// findExisting looks up a destination row matching the duplicate key. For
// tables with a surrogate id it returns that id; keyless tables only report
// presence.
func findExisting(tx *sql.Tx, table schema.Table, where string, args []any) (int64, bool, error) {
	if table.HasID() {
		var id int64
		err := tx.QueryRow("SELECT "+table.IDColumn+" FROM "+table.Name()+" WHERE "+where, args...).Scan(&id)
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		if err != nil {
			return 0, false, fmt.Errorf("failed to query existing row: %w", err)
		}
		return id, true, nil
	}

	var n int
	if err := tx.QueryRow("SELECT COUNT(*) FROM "+table.Name()+" WHERE "+where, args...).Scan(&n); err != nil {
		return 0, false, fmt.Errorf("failed to query existing row: %w", err)
	}
	return 0, n > 0, nil
}

func isConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}
