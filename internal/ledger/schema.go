package ledger

// Schema is applied on every Open. Money columns hold exact decimal text.
const Schema = `
CREATE TABLE IF NOT EXISTS bars (
	instrument TEXT NOT NULL,
	date       TEXT NOT NULL,
	open       REAL NOT NULL,
	high       REAL NOT NULL,
	low        REAL NOT NULL,
	close      REAL NOT NULL,
	volume     REAL NOT NULL,
	PRIMARY KEY (instrument, date)
);

CREATE TABLE IF NOT EXISTS trades (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	instrument TEXT NOT NULL,
	date       TEXT NOT NULL,
	action     TEXT NOT NULL CHECK (action IN ('buy', 'sell')),
	quantity   INTEGER NOT NULL CHECK (quantity > 0),
	exec_price TEXT NOT NULL,
	fee        TEXT NOT NULL,
	cash_after TEXT NOT NULL,
	cause      TEXT NOT NULL,
	reasoning  TEXT NOT NULL DEFAULT '',
	stop_loss_pct   REAL NOT NULL DEFAULT 0,
	take_profit_pct REAL NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS trades_date ON trades (date);

CREATE TABLE IF NOT EXISTS decisions (
	seq             INTEGER PRIMARY KEY AUTOINCREMENT,
	instrument      TEXT NOT NULL,
	date            TEXT NOT NULL,
	action          TEXT NOT NULL,
	confidence      REAL NOT NULL,
	reasoning       TEXT NOT NULL DEFAULT '',
	position_pct    REAL NOT NULL DEFAULT 0,
	rule_action     TEXT NOT NULL DEFAULT '',
	judgment_action TEXT NOT NULL DEFAULT '',
	judgment_model  TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS decisions_date ON decisions (date);

CREATE TABLE IF NOT EXISTS equity (
	date            TEXT PRIMARY KEY,
	cash            TEXT NOT NULL,
	positions_value TEXT NOT NULL,
	total_equity    TEXT NOT NULL,
	stale           INTEGER NOT NULL DEFAULT 0,
	suspect         INTEGER NOT NULL DEFAULT 0
);
`
