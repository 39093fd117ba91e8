package storage

const schema = `
-- The 'cards' table stores the scheduling history of each card identity.
-- Rows are never deleted: a card removed from its deck keeps its history
-- in case the same text comes back.
CREATE TABLE IF NOT EXISTS cards (
    identity TEXT PRIMARY KEY,         -- lowercase hex sha256
    state INTEGER NOT NULL DEFAULT 0,  -- 0: New, 1: Learning, 2: Review, 3: Relearning
    stability REAL NOT NULL,
    difficulty REAL NOT NULL,
    due_date TEXT,                     -- YYYY-MM-DD, NULL until first review
    last_reviewed_at TEXT,             -- RFC 3339, NULL until first review
    reps INTEGER NOT NULL DEFAULT 0,
    lapses INTEGER NOT NULL DEFAULT 0,
    added_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS cards_due_date ON cards(due_date);

-- The 'sources' table tracks the deck roots that have been scanned, either
-- a local path or a git repository.
CREATE TABLE IF NOT EXISTS sources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL UNIQUE,
    kind TEXT NOT NULL,                -- 'local' or 'git'
    last_scanned TEXT NOT NULL
);
`
