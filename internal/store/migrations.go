package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create clients",
		SQL: `
			CREATE TABLE clients (
				id          TEXT PRIMARY KEY,
				name        TEXT NOT NULL,
				type        TEXT NOT NULL CHECK (type IN ('CPF', 'CNPJ')),
				identifier  TEXT NOT NULL,
				certificate TEXT NOT NULL DEFAULT '',
				created_at  TEXT NOT NULL
			);
		`,
	},
	{
		Version: 2,
		Name:    "create transcripts",
		SQL: `
			CREATE TABLE transcripts (
				id          TEXT PRIMARY KEY,
				provider    TEXT NOT NULL DEFAULT '',
				started_at  TEXT NOT NULL,
				last_error  TEXT NOT NULL DEFAULT ''
			);

			CREATE TABLE transcript_messages (
				transcript_id TEXT NOT NULL REFERENCES transcripts(id) ON DELETE CASCADE,
				seq           INTEGER NOT NULL,
				role          TEXT NOT NULL,
				content       TEXT NOT NULL,
				timestamp     TEXT NOT NULL,
				PRIMARY KEY (transcript_id, seq)
			);
		`,
	},
}
