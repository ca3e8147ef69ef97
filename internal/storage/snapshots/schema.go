package snapshots

const schema = `
CREATE TABLE IF NOT EXISTS profiles (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	slug      TEXT UNIQUE NOT NULL,
	name      TEXT NOT NULL DEFAULT '',
	is_active INTEGER NOT NULL DEFAULT 1,
	added_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshots (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	profile_id        INTEGER NOT NULL REFERENCES profiles (id),
	timestamp         TEXT NOT NULL,
	raw_data          TEXT NOT NULL,
	created_at_source TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_snapshots_profile ON snapshots (profile_id, id);
CREATE INDEX IF NOT EXISTS idx_snapshots_timestamp ON snapshots (timestamp);

CREATE TABLE IF NOT EXISTS position_changes (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	snapshot_id  INTEGER NOT NULL REFERENCES snapshots (id),
	profile_id   INTEGER NOT NULL REFERENCES profiles (id),
	timestamp    TEXT NOT NULL,
	diff_summary TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_changes_profile ON position_changes (profile_id, timestamp);

CREATE TABLE IF NOT EXISTS latest_snapshots (
	profile_id INTEGER PRIMARY KEY REFERENCES profiles (id),
	raw_data   TEXT NOT NULL,
	timestamp  TEXT NOT NULL
);
`
