// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package postgresql

import "time"

// Audit column names. A column participates in stamping only when the table lists it.
const (
	ColumnID             = "id"
	ColumnCreateDatetime = "create_datetime"
	ColumnUpdateDatetime = "update_datetime"
	ColumnDeleteDatetime = "delete_datetime"
	ColumnIsDelete       = "is_delete"
	ColumnCreateUser     = "create_user"
	ColumnUpdateUser     = "update_user"
	ColumnDeleteUser     = "delete_user"
)

// AuditColumns is the full set embedded through Audit.
var AuditColumns = []string{
	ColumnID, ColumnCreateDatetime, ColumnUpdateDatetime, ColumnDeleteDatetime,
	ColumnIsDelete, ColumnCreateUser, ColumnUpdateUser, ColumnDeleteUser,
}

// Audit is embedded by models stored in soft-deletable tables.
type Audit struct {
	ID             int64      `db:"id" json:"id"`
	CreateDatetime time.Time  `db:"create_datetime" json:"create_datetime"`
	UpdateDatetime time.Time  `db:"update_datetime" json:"update_datetime"`
	DeleteDatetime *time.Time `db:"delete_datetime" json:"delete_datetime"`
	IsDelete       bool       `db:"is_delete" json:"is_delete"`
	CreateUser     *int64     `db:"create_user" json:"create_user"`
	UpdateUser     *int64     `db:"update_user" json:"update_user"`
	DeleteUser     *int64     `db:"delete_user" json:"delete_user"`
}

// Table describes the relational shape a Repository works against.
type Table struct {
	Name string
	// Columns lists every column callers may filter on, order by or write. Audit columns
	// that should be stamped must be listed too (see AuditColumns).
	Columns []string
	// Associations are many-to-many join rows owned by this entity; they are removed before
	// any delete of the owner.
	Associations []Association
	// Guards block deletion while other rows still reference the entity.
	Guards []Reference
}

// Association is a join table and its column holding this entity's id.
type Association struct {
	Table  string
	Column string
}

// Reference is a column in another table pointing at this entity. SoftDelete limits the
// check to rows that are not soft-deleted.
type Reference struct {
	Table      string
	Column     string
	SoftDelete bool
}

// WithAudit returns columns followed by AuditColumns.
func WithAudit(columns ...string) []string {
	out := make([]string, 0, len(columns)+len(AuditColumns))
	out = append(out, columns...)
	return append(out, AuditColumns...)
}
