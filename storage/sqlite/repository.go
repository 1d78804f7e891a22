package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/awakari/fedistatus/model"
	"github.com/awakari/fedistatus/storage"
	"github.com/bytedance/sonic"
	_ "modernc.org/sqlite"
)

// Repository implements every storage port on an embedded SQLite
// database. Statuses, edits, filters and blocks are stored as JSON
// documents with the lookup keys lifted into indexed columns; edit
// history order is the insertion rowid.
type Repository struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS statuses (
	id TEXT PRIMARY KEY,
	uri TEXT,
	data TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_statuses_uri ON statuses (uri) WHERE uri != '';
CREATE TABLE IF NOT EXISTS status_edits (
	id TEXT PRIMARY KEY,
	status_id TEXT NOT NULL,
	data TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_status_edits_status ON status_edits (status_id);
CREATE TABLE IF NOT EXISTS accounts (
	id TEXT PRIMARY KEY,
	acct TEXT,
	data TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_acct ON accounts (acct) WHERE acct != '';
CREATE TABLE IF NOT EXISTS attachments (
	id TEXT PRIMARY KEY,
	data TEXT NOT NULL,
	content BLOB
);
CREATE TABLE IF NOT EXISTS filters (
	account_id TEXT NOT NULL,
	id TEXT NOT NULL,
	data TEXT NOT NULL,
	PRIMARY KEY (account_id, id)
);
CREATE TABLE IF NOT EXISTS follows (
	follower_id TEXT NOT NULL,
	followee_id TEXT NOT NULL,
	PRIMARY KEY (follower_id, followee_id)
);
CREATE TABLE IF NOT EXISTS recipients (
	account_id TEXT PRIMARY KEY,
	domain TEXT NOT NULL,
	inbox TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS tombstones (
	status_id TEXT NOT NULL,
	domain TEXT NOT NULL,
	PRIMARY KEY (status_id, domain)
);
CREATE TABLE IF NOT EXISTS domain_blocks (
	domain TEXT PRIMARY KEY,
	data TEXT NOT NULL
);
`

// NewRepository opens the SQLite database at the given path, verifies the
// connection and applies the schema. The caller should call Close when
// the repository is no longer needed.
func NewRepository(path string) (*Repository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err = db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Repository{db: db}, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) GetStatus(ctx context.Context, id string) (st model.Status, err error) {
	row := r.db.QueryRowContext(ctx, `SELECT data FROM statuses WHERE id = ?`, id)
	err = scanJson(row, &st)
	if err != nil {
		err = fmt.Errorf("status %s: %w", id, err)
	}
	return
}

func (r *Repository) GetStatusByUri(ctx context.Context, uri string) (st model.Status, err error) {
	row := r.db.QueryRowContext(ctx, `SELECT data FROM statuses WHERE uri = ?`, uri)
	err = scanJson(row, &st)
	if err != nil {
		err = fmt.Errorf("status uri %s: %w", uri, err)
	}
	return
}

func (r *Repository) SaveStatus(ctx context.Context, st model.Status) (err error) {
	var data []byte
	data, err = sonic.Marshal(st)
	if err == nil {
		_, err = r.db.ExecContext(
			ctx,
			`INSERT INTO statuses (id, uri, data) VALUES (?, ?, ?)
			 ON CONFLICT (id) DO UPDATE SET uri = excluded.uri, data = excluded.data`,
			st.Id, st.Uri, string(data),
		)
	}
	if err != nil {
		err = fmt.Errorf("save status %s: %w", st.Id, err)
	}
	return
}

func (r *Repository) DeleteStatus(ctx context.Context, id string) (err error) {
	var tx *sql.Tx
	tx, err = r.db.BeginTx(ctx, nil)
	if err == nil {
		defer tx.Rollback()
		_, err = tx.ExecContext(ctx, `DELETE FROM statuses WHERE id = ?`, id)
	}
	if err == nil {
		_, err = tx.ExecContext(ctx, `DELETE FROM status_edits WHERE status_id = ?`, id)
	}
	if err == nil {
		_, err = tx.ExecContext(ctx, `DELETE FROM tombstones WHERE status_id = ?`, id)
	}
	if err == nil {
		err = tx.Commit()
	}
	if err != nil {
		err = fmt.Errorf("delete status %s: %w", id, err)
	}
	return
}

func (r *Repository) AppendEdit(ctx context.Context, e model.StatusEdit) (err error) {
	var data []byte
	data, err = sonic.Marshal(e)
	if err == nil {
		_, err = r.db.ExecContext(
			ctx,
			`INSERT INTO status_edits (id, status_id, data) VALUES (?, ?, ?)`,
			e.Id, e.StatusId, string(data),
		)
	}
	if err != nil {
		err = fmt.Errorf("append edit %s: %w", e.Id, err)
	}
	return
}

func (r *Repository) ListEdits(ctx context.Context, statusId string) (edits []model.StatusEdit, err error) {
	var rows *sql.Rows
	rows, err = r.db.QueryContext(
		ctx,
		`SELECT data FROM status_edits WHERE status_id = ? ORDER BY rowid`,
		statusId,
	)
	if err != nil {
		err = fmt.Errorf("list edits of %s: %w", statusId, err)
		return
	}
	defer rows.Close()
	for rows.Next() {
		var data string
		err = rows.Scan(&data)
		if err != nil {
			return
		}
		var e model.StatusEdit
		err = sonic.UnmarshalString(data, &e)
		if err != nil {
			return
		}
		edits = append(edits, e)
	}
	err = rows.Err()
	return
}

func (r *Repository) GetAccount(ctx context.Context, id string) (a model.Account, err error) {
	row := r.db.QueryRowContext(ctx, `SELECT data FROM accounts WHERE id = ?`, id)
	err = scanJson(row, &a)
	if err != nil {
		err = fmt.Errorf("account %s: %w", id, err)
	}
	return
}

func (r *Repository) GetAccountByAcct(ctx context.Context, acct string) (a model.Account, err error) {
	row := r.db.QueryRowContext(ctx, `SELECT data FROM accounts WHERE acct = ?`, acct)
	err = scanJson(row, &a)
	if err != nil {
		err = fmt.Errorf("account acct %s: %w", acct, err)
	}
	return
}

func (r *Repository) SaveAccount(ctx context.Context, a model.Account) (err error) {
	var data []byte
	data, err = sonic.Marshal(a)
	if err == nil {
		_, err = r.db.ExecContext(
			ctx,
			`INSERT INTO accounts (id, acct, data) VALUES (?, ?, ?)
			 ON CONFLICT (id) DO UPDATE SET acct = excluded.acct, data = excluded.data`,
			a.Id, a.Acct, string(data),
		)
	}
	if err != nil {
		err = fmt.Errorf("save account %s: %w", a.Id, err)
	}
	return
}

func (r *Repository) SaveAttachment(ctx context.Context, a model.MediaAttachment) (err error) {
	var data []byte
	data, err = sonic.Marshal(a)
	if err == nil {
		_, err = r.db.ExecContext(
			ctx,
			`INSERT INTO attachments (id, data) VALUES (?, ?)
			 ON CONFLICT (id) DO UPDATE SET data = excluded.data`,
			a.Id, string(data),
		)
	}
	if err != nil {
		err = fmt.Errorf("save attachment %s: %w", a.Id, err)
	}
	return
}

func (r *Repository) StoreFetched(ctx context.Context, id string, data []byte) (err error) {
	var a model.MediaAttachment
	row := r.db.QueryRowContext(ctx, `SELECT data FROM attachments WHERE id = ?`, id)
	err = scanJson(row, &a)
	if err != nil {
		err = fmt.Errorf("attachment %s: %w", id, err)
		return
	}
	a.Pending = false
	var doc []byte
	doc, err = sonic.Marshal(a)
	if err == nil {
		_, err = r.db.ExecContext(
			ctx,
			`UPDATE attachments SET data = ?, content = ? WHERE id = ?`,
			string(doc), data, id,
		)
	}
	if err != nil {
		err = fmt.Errorf("store attachment %s content: %w", id, err)
	}
	return
}

func (r *Repository) ListFilters(ctx context.Context, accountId string) (fs []model.Filter, err error) {
	var rows *sql.Rows
	rows, err = r.db.QueryContext(ctx, `SELECT data FROM filters WHERE account_id = ?`, accountId)
	if err != nil {
		err = fmt.Errorf("list filters of %s: %w", accountId, err)
		return
	}
	defer rows.Close()
	for rows.Next() {
		var data string
		err = rows.Scan(&data)
		if err != nil {
			return
		}
		var f model.Filter
		err = sonic.UnmarshalString(data, &f)
		if err != nil {
			return
		}
		fs = append(fs, f)
	}
	err = rows.Err()
	return
}

func (r *Repository) SaveFilter(ctx context.Context, f model.Filter) (err error) {
	var data []byte
	data, err = sonic.Marshal(f)
	if err == nil {
		_, err = r.db.ExecContext(
			ctx,
			`INSERT INTO filters (account_id, id, data) VALUES (?, ?, ?)
			 ON CONFLICT (account_id, id) DO UPDATE SET data = excluded.data`,
			f.AccountId, f.Id, string(data),
		)
	}
	if err != nil {
		err = fmt.Errorf("save filter %s: %w", f.Id, err)
	}
	return
}

func (r *Repository) DeleteFilter(ctx context.Context, accountId, id string) (err error) {
	var res sql.Result
	res, err = r.db.ExecContext(ctx, `DELETE FROM filters WHERE account_id = ? AND id = ?`, accountId, id)
	if err == nil {
		var n int64
		n, err = res.RowsAffected()
		if err == nil && n == 0 {
			err = fmt.Errorf("filter %s: %w", id, storage.ErrNotFound)
		}
	}
	return
}

func (r *Repository) Following(ctx context.Context, followerId, followeeId string) (following bool, err error) {
	row := r.db.QueryRowContext(
		ctx,
		`SELECT COUNT(*) FROM follows WHERE follower_id = ? AND followee_id = ?`,
		followerId, followeeId,
	)
	var n int
	err = row.Scan(&n)
	following = n > 0
	return
}

func (r *Repository) SaveFollow(ctx context.Context, followerId, followeeId string) (err error) {
	_, err = r.db.ExecContext(
		ctx,
		`INSERT INTO follows (follower_id, followee_id) VALUES (?, ?) ON CONFLICT DO NOTHING`,
		followerId, followeeId,
	)
	return
}

func (r *Repository) FollowerRecipients(ctx context.Context, accountId string) (rcpts []model.Recipient, err error) {
	var rows *sql.Rows
	rows, err = r.db.QueryContext(
		ctx,
		`SELECT r.account_id, r.domain, r.inbox
		 FROM recipients r JOIN follows f ON f.follower_id = r.account_id
		 WHERE f.followee_id = ?`,
		accountId,
	)
	if err != nil {
		err = fmt.Errorf("follower recipients of %s: %w", accountId, err)
		return
	}
	defer rows.Close()
	for rows.Next() {
		var rcpt model.Recipient
		err = rows.Scan(&rcpt.AccountId, &rcpt.Domain, &rcpt.Inbox)
		if err != nil {
			return
		}
		rcpts = append(rcpts, rcpt)
	}
	err = rows.Err()
	return
}

func (r *Repository) Recipient(ctx context.Context, accountId string) (rcpt model.Recipient, err error) {
	row := r.db.QueryRowContext(
		ctx,
		`SELECT account_id, domain, inbox FROM recipients WHERE account_id = ?`,
		accountId,
	)
	err = row.Scan(&rcpt.AccountId, &rcpt.Domain, &rcpt.Inbox)
	if errors.Is(err, sql.ErrNoRows) {
		err = fmt.Errorf("recipient %s: %w", accountId, storage.ErrNotFound)
	}
	return
}

func (r *Repository) SaveRecipient(ctx context.Context, rcpt model.Recipient) (err error) {
	_, err = r.db.ExecContext(
		ctx,
		`INSERT INTO recipients (account_id, domain, inbox) VALUES (?, ?, ?)
		 ON CONFLICT (account_id) DO UPDATE SET domain = excluded.domain, inbox = excluded.inbox`,
		rcpt.AccountId, rcpt.Domain, rcpt.Inbox,
	)
	return
}

func (r *Repository) HasTombstone(ctx context.Context, statusId, domain string) (sent bool, err error) {
	row := r.db.QueryRowContext(
		ctx,
		`SELECT COUNT(*) FROM tombstones WHERE status_id = ? AND domain = ?`,
		statusId, domain,
	)
	var n int
	err = row.Scan(&n)
	sent = n > 0
	return
}

func (r *Repository) SetTombstone(ctx context.Context, statusId, domain string) (err error) {
	_, err = r.db.ExecContext(
		ctx,
		`INSERT INTO tombstones (status_id, domain) VALUES (?, ?) ON CONFLICT DO NOTHING`,
		statusId, domain,
	)
	return
}

func (r *Repository) ListDomainBlocks(ctx context.Context) (blocks []model.DomainBlock, err error) {
	var rows *sql.Rows
	rows, err = r.db.QueryContext(ctx, `SELECT data FROM domain_blocks`)
	if err != nil {
		err = fmt.Errorf("list domain blocks: %w", err)
		return
	}
	defer rows.Close()
	for rows.Next() {
		var data string
		err = rows.Scan(&data)
		if err != nil {
			return
		}
		var b model.DomainBlock
		err = sonic.UnmarshalString(data, &b)
		if err != nil {
			return
		}
		blocks = append(blocks, b)
	}
	err = rows.Err()
	return
}

func (r *Repository) GetDomainBlock(ctx context.Context, domain string) (block model.DomainBlock, err error) {
	row := r.db.QueryRowContext(ctx, `SELECT data FROM domain_blocks WHERE domain = ?`, domain)
	err = scanJson(row, &block)
	if err != nil {
		err = fmt.Errorf("domain block %s: %w", domain, err)
	}
	return
}

func (r *Repository) SaveDomainBlock(ctx context.Context, b model.DomainBlock) (err error) {
	var data []byte
	data, err = sonic.Marshal(b)
	if err == nil {
		_, err = r.db.ExecContext(
			ctx,
			`INSERT INTO domain_blocks (domain, data) VALUES (?, ?)
			 ON CONFLICT (domain) DO UPDATE SET data = excluded.data`,
			b.Domain, string(data),
		)
	}
	if err != nil {
		err = fmt.Errorf("save domain block %s: %w", b.Domain, err)
	}
	return
}

func scanJson(row *sql.Row, dst any) (err error) {
	var data string
	err = row.Scan(&data)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		err = storage.ErrNotFound
	case err == nil:
		err = sonic.UnmarshalString(data, dst)
	}
	return
}
