package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// dialect holds the column fragments that differ between MySQL and SQLite.
type dialect struct {
	pk    string
	id    string
	str   string
	ts    string
	table string
}

var dialects = map[string]dialect{
	MySQL: {
		pk:    "BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY",
		id:    "BIGINT UNSIGNED",
		str:   "VARCHAR(255)",
		ts:    "DATETIME(6)",
		table: " ENGINE=InnoDB DEFAULT CHARSET=utf8mb4",
	},
	SQLite: {
		pk:  "INTEGER PRIMARY KEY AUTOINCREMENT",
		id:  "INTEGER",
		str: "TEXT",
		ts:  "DATETIME",
	},
}

// Task assignees and creators deliberately carry no foreign key: a user
// deleted by the auth provider leaves its tasks pointing at a missing row
// until the orphan repair resets them.
var tables = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id {{pk}},
		external_id {{str}} NOT NULL,
		email {{str}} NOT NULL,
		name {{str}} NOT NULL,
		role VARCHAR(32) NOT NULL,
		skills TEXT NOT NULL,
		experience INTEGER NOT NULL,
		tier VARCHAR(32) NOT NULL,
		credits INTEGER NOT NULL,
		created_at {{ts}} NOT NULL,
		updated_at {{ts}} NOT NULL,
		UNIQUE (external_id)
	){{table}}`,
	`CREATE TABLE IF NOT EXISTS teams (
		id {{pk}},
		name {{str}} NOT NULL,
		leader_id {{id}} NULL,
		created_at {{ts}} NOT NULL,
		updated_at {{ts}} NOT NULL
	){{table}}`,
	`CREATE TABLE IF NOT EXISTS team_members (
		team_id {{id}} NOT NULL,
		user_id {{id}} NOT NULL,
		created_at {{ts}} NOT NULL,
		PRIMARY KEY (team_id, user_id),
		FOREIGN KEY (team_id) REFERENCES teams(id) ON DELETE CASCADE,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	){{table}}`,
	`CREATE TABLE IF NOT EXISTS projects (
		id {{pk}},
		name {{str}} NOT NULL,
		description TEXT NOT NULL,
		status VARCHAR(32) NOT NULL,
		progress INTEGER NOT NULL,
		derive_progress INTEGER NOT NULL,
		manager_id {{id}} NOT NULL,
		client_id {{id}} NULL,
		team_id {{id}} NULL,
		created_at {{ts}} NOT NULL,
		updated_at {{ts}} NOT NULL,
		FOREIGN KEY (team_id) REFERENCES teams(id) ON DELETE SET NULL
	){{table}}`,
	`CREATE TABLE IF NOT EXISTS tasks (
		id {{pk}},
		title {{str}} NOT NULL,
		description TEXT NOT NULL,
		status VARCHAR(32) NOT NULL,
		priority VARCHAR(16) NOT NULL,
		deadline {{ts}} NULL,
		assigned_to_id {{id}} NULL,
		creator_id {{id}} NOT NULL,
		project_id {{id}} NULL,
		required_skills TEXT NOT NULL,
		accepted INTEGER NOT NULL,
		decline_reason TEXT NOT NULL,
		created_at {{ts}} NOT NULL,
		updated_at {{ts}} NOT NULL,
		FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE{{keys:tasks}}
	){{table}}`,
	`CREATE TABLE IF NOT EXISTS comments (
		id {{pk}},
		project_id {{id}} NOT NULL,
		author_id {{id}} NOT NULL,
		content TEXT NOT NULL,
		rating INTEGER NULL,
		created_at {{ts}} NOT NULL,
		FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE,
		FOREIGN KEY (author_id) REFERENCES users(id) ON DELETE CASCADE
	){{table}}`,
	`CREATE TABLE IF NOT EXISTS meetings (
		id {{pk}},
		project_id {{id}} NOT NULL,
		organizer_id {{id}} NOT NULL,
		title {{str}} NOT NULL,
		starts_at {{ts}} NOT NULL,
		ends_at {{ts}} NOT NULL,
		status VARCHAR(32) NOT NULL,
		created_at {{ts}} NOT NULL,
		updated_at {{ts}} NOT NULL,
		FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
	){{table}}`,
	`CREATE TABLE IF NOT EXISTS meeting_attendees (
		meeting_id {{id}} NOT NULL,
		user_id {{id}} NOT NULL,
		PRIMARY KEY (meeting_id, user_id),
		FOREIGN KEY (meeting_id) REFERENCES meetings(id) ON DELETE CASCADE,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	){{table}}`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id {{pk}},
		user_id {{id}} NOT NULL,
		title {{str}} NOT NULL,
		message TEXT NOT NULL,
		type VARCHAR(32) NOT NULL,
		is_read INTEGER NOT NULL,
		link {{str}} NULL,
		created_at {{ts}} NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE{{keys:notifications}}
	){{table}}`,
	`CREATE TABLE IF NOT EXISTS connections (
		id {{pk}},
		user_id {{id}} NOT NULL,
		provider VARCHAR(32) NOT NULL,
		account_id {{str}} NOT NULL,
		account_name {{str}} NOT NULL,
		token_ciphertext TEXT NOT NULL,
		scopes {{str}} NOT NULL,
		created_at {{ts}} NOT NULL,
		UNIQUE (user_id, provider),
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	){{table}}`,
}

// At most one open entry per user is a database guarantee: MySQL indexes a
// generated column that is only non-NULL while the entry is open, SQLite
// uses a partial unique index.
var timeEntries = map[string][]string{
	MySQL: {
		`CREATE TABLE IF NOT EXISTS time_entries (
			id {{pk}},
			user_id {{id}} NOT NULL,
			task_id {{id}} NOT NULL,
			started_at {{ts}} NOT NULL,
			ended_at {{ts}} NULL,
			description TEXT NOT NULL,
			open_user_id {{id}} GENERATED ALWAYS AS (CASE WHEN ended_at IS NULL THEN user_id ELSE NULL END) STORED,
			UNIQUE KEY uq_time_entries_open (open_user_id),
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
			FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE
		){{table}}`,
	},
	SQLite: {
		`CREATE TABLE IF NOT EXISTS time_entries (
			id {{pk}},
			user_id {{id}} NOT NULL,
			task_id {{id}} NOT NULL,
			started_at {{ts}} NOT NULL,
			ended_at {{ts}} NULL,
			description TEXT NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
			FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_time_entries_open ON time_entries(user_id) WHERE ended_at IS NULL`,
	},
}

// index is a secondary index shared by both dialects.  MySQL has no
// CREATE INDEX IF NOT EXISTS, so it declares them inside CREATE TABLE.
type index struct {
	table, name, columns string
}

var indexes = []index{
	{"tasks", "idx_tasks_project", "project_id"},
	{"tasks", "idx_tasks_assignee", "assigned_to_id"},
	{"notifications", "idx_notifications_user", "user_id, is_read"},
}

// indexStatements renders indexes for driver: the inline key clauses per
// table, and the standalone statements run after the tables.
func indexStatements(driver string) (inline map[string]string, standalone []string) {
	inline = map[string]string{}
	for _, ix := range indexes {
		if driver == MySQL {
			inline[ix.table] += fmt.Sprintf(",\n\t\tKEY %s (%s)", ix.name, ix.columns)
			continue
		}
		standalone = append(standalone,
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)", ix.name, ix.table, ix.columns))
	}
	return inline, standalone
}

// Statements renders the schema for a driver.
func Statements(driver string) ([]string, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	inline, standalone := indexStatements(driver)
	r := strings.NewReplacer("{{pk}}", d.pk, "{{id}}", d.id, "{{str}}", d.str, "{{ts}}", d.ts, "{{table}}", d.table,
		"{{keys:tasks}}", inline["tasks"], "{{keys:notifications}}", inline["notifications"])
	all := append(append(append([]string{}, tables...), timeEntries[driver]...), standalone...)
	out := make([]string, 0, len(all))
	for _, s := range all {
		out = append(out, r.Replace(s))
	}
	return out, nil
}

// Migrate creates every table that does not exist yet.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	stmts, err := Statements(driver)
	if err != nil {
		return err
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migration error: %w\nSQL: %s", err, s)
		}
	}
	return nil
}
