package store

const schema = `
-- Recorded tier episodes and confirmed pauses
CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    tier INTEGER NOT NULL CHECK(tier >= 1 AND tier <= 3),
    start_ns INTEGER NOT NULL,
    duration_ns INTEGER NOT NULL,
    peak_score INTEGER NOT NULL CHECK(peak_score >= 0 AND peak_score <= 100),
    categories TEXT NOT NULL DEFAULT '',
    rogues TEXT NOT NULL DEFAULT '[]',
    reviewed INTEGER NOT NULL DEFAULT 0,
    created_ns INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_start ON events(start_ns);
CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind);
CREATE INDEX IF NOT EXISTS idx_events_tier ON events(tier);

-- Forensic capture bundles, keyed by event id
CREATE TABLE IF NOT EXISTS captures (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    event_id TEXT NOT NULL,
    captured_ns INTEGER NOT NULL,
    blob BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_captures_event ON captures(event_id);
`
