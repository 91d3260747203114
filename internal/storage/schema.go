package storage

const schema = `
-- The 'sources' table tracks where notes come from, either a local directory or a git repository.
CREATE TABLE IF NOT EXISTS sources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL UNIQUE,
    last_scanned DATETIME
);

-- The 'notes' table stores the parsed question/answer content, keyed by content hash.
CREATE TABLE IF NOT EXISTS notes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    hash TEXT NOT NULL UNIQUE,
    question TEXT NOT NULL,
    answer TEXT NOT NULL DEFAULT '',
    context TEXT NOT NULL DEFAULT '',
    reversible INTEGER NOT NULL DEFAULT 0,
    source_id INTEGER,

    FOREIGN KEY(source_id) REFERENCES sources(id)
);

-- Deck config presets. The body is the JSON encoded DeckConfig.
CREATE TABLE IF NOT EXISTS deck_configs (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    body TEXT NOT NULL
);

-- Home decks have a NULL 'filtered' column; filtered decks store their options as JSON.
CREATE TABLE IF NOT EXISTS decks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    config_id INTEGER NOT NULL DEFAULT 1,
    filtered TEXT
);

-- The 'cards' table stores the scheduling state of each card.
-- due_kind: 0 none, 1 position, 2 day index, 3 epoch seconds.
-- original_deck_id is 0 unless the card is borrowed by a filtered deck.
CREATE TABLE IF NOT EXISTS cards (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    note_id INTEGER NOT NULL,
    deck_id INTEGER NOT NULL,
    ord INTEGER NOT NULL DEFAULT 0,
    queue INTEGER NOT NULL DEFAULT 0,
    type INTEGER NOT NULL DEFAULT 0,
    due_kind INTEGER NOT NULL DEFAULT 0,
    due INTEGER NOT NULL DEFAULT 0,
    ivl INTEGER NOT NULL DEFAULT 0,
    factor INTEGER NOT NULL DEFAULT 0,
    reps INTEGER NOT NULL DEFAULT 0,
    lapses INTEGER NOT NULL DEFAULT 0,
    steps_remaining INTEGER NOT NULL DEFAULT 0,
    steps_total INTEGER NOT NULL DEFAULT 0,
    original_deck_id INTEGER NOT NULL DEFAULT 0,
    original_due_kind INTEGER NOT NULL DEFAULT 0,
    original_due INTEGER NOT NULL DEFAULT 0,
    mod INTEGER NOT NULL DEFAULT 0,

    FOREIGN KEY(note_id) REFERENCES notes(id),
    FOREIGN KEY(deck_id) REFERENCES decks(id)
);

CREATE INDEX IF NOT EXISTS idx_cards_deck_queue ON cards(deck_id, queue, due);
CREATE INDEX IF NOT EXISTS idx_cards_note ON cards(note_id);

-- Cards studied per deck and day, used for the daily limits.
CREATE TABLE IF NOT EXISTS deck_counters (
    deck_id INTEGER NOT NULL,
    day INTEGER NOT NULL,
    new_count INTEGER NOT NULL DEFAULT 0,
    review_count INTEGER NOT NULL DEFAULT 0,

    PRIMARY KEY(deck_id, day)
);

-- The append-only answer history. Intervals are stored in seconds.
CREATE TABLE IF NOT EXISTS revlog (
    id TEXT PRIMARY KEY,
    card_id INTEGER NOT NULL,
    reviewed_at INTEGER NOT NULL,
    ease INTEGER NOT NULL,
    ivl INTEGER NOT NULL,
    last_ivl INTEGER NOT NULL,
    factor INTEGER NOT NULL,
    time_taken INTEGER NOT NULL,
    kind INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_revlog_card ON revlog(card_id);

-- Collection-wide integers such as the last day buried cards were restored.
CREATE TABLE IF NOT EXISTS meta (
    key TEXT PRIMARY KEY,
    value INTEGER NOT NULL
);
`
