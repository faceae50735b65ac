// Package store provides persistent server state backed by an embedded
// SQLite database: accounts/permissions, channels, news, bans, trusts, and
// offline messages. It owns the database lifecycle and exposes a minimal,
// entity-oriented API used by the rest of the server.
//
// Migration design: SQL statements are kept in the [migrations] slice as
// ordered strings. Each is applied exactly once; the applied version is
// tracked in the schema_migrations table. To add a migration, append a new
// string — never edit or reorder existing entries.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

// Sentinel errors returned by entity operations (spec §4.2).
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// migrations holds the ordered list of DDL/DML statements that bring the
// schema up to date. Index i corresponds to version i+1.
var migrations = []string{
	// v1 — accounts
	`CREATE TABLE IF NOT EXISTS accounts (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		username        TEXT NOT NULL UNIQUE COLLATE NOCASE,
		password_hash   TEXT NOT NULL DEFAULT '',
		is_admin        INTEGER NOT NULL DEFAULT 0,
		enabled         INTEGER NOT NULL DEFAULT 1,
		is_shared       INTEGER NOT NULL DEFAULT 0,
		permissions     TEXT NOT NULL DEFAULT '',
		created_at      INTEGER NOT NULL DEFAULT (unixepoch())
	)`,
	// v2 — channels
	`CREATE TABLE IF NOT EXISTS channels (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		name          TEXT NOT NULL UNIQUE COLLATE NOCASE,
		topic         TEXT NOT NULL DEFAULT '',
		topic_set_by  TEXT NOT NULL DEFAULT '',
		secret        INTEGER NOT NULL DEFAULT 0
	)`,
	// v3 — news
	`CREATE TABLE IF NOT EXISTS news (
		id                INTEGER PRIMARY KEY AUTOINCREMENT,
		body              TEXT,
		image             TEXT,
		author_id         INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		author_username   TEXT NOT NULL,
		author_is_admin   INTEGER NOT NULL DEFAULT 0,
		created_at        INTEGER NOT NULL DEFAULT (unixepoch()),
		updated_at        INTEGER
	)`,
	// v4 — bans
	`CREATE TABLE IF NOT EXISTS bans (
		ip_address TEXT PRIMARY KEY,
		nickname   TEXT,
		reason     TEXT,
		created_by TEXT NOT NULL,
		created_at INTEGER NOT NULL DEFAULT (unixepoch()),
		expires_at INTEGER
	)`,
	// v5 — trusts
	`CREATE TABLE IF NOT EXISTS trusts (
		ip_address TEXT PRIMARY KEY,
		nickname   TEXT,
		reason     TEXT,
		created_by TEXT NOT NULL,
		created_at INTEGER NOT NULL DEFAULT (unixepoch()),
		expires_at INTEGER
	)`,
	// v6 — offline messages
	`CREATE TABLE IF NOT EXISTS offline_messages (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		recipient_id INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		sender_name  TEXT NOT NULL,
		body         TEXT NOT NULL,
		created_at   INTEGER NOT NULL DEFAULT (unixepoch())
	)`,
	// v7 — settings key/value store (server name, etc.)
	`CREATE TABLE IF NOT EXISTS settings (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	// v8, v9 — indexes
	`CREATE INDEX IF NOT EXISTS idx_news_author ON news(author_id)`,
	`CREATE INDEX IF NOT EXISTS idx_offline_recipient ON offline_messages(recipient_id)`,
}

// Store wraps a SQLite database and exposes server-state operations.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and applies any
// pending migrations. Use ":memory:" for ephemeral in-process storage
// (tests).
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		log.Printf("[store] WAL mode: %v (non-fatal)", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		log.Printf("[store] busy_timeout: %v (non-fatal)", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		log.Printf("[store] foreign_keys: %v (non-fatal)", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := s.db.QueryRow(
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`,
	).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i, stmt := range migrations {
		v := i + 1
		if v <= current {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", v, err)
		}
		if _, err := s.db.Exec(`INSERT INTO schema_migrations(version) VALUES(?)`, v); err != nil {
			return fmt.Errorf("record migration %d: %w", v, err)
		}
		log.Printf("[store] applied migration v%d", v)
	}
	return nil
}

// ---------------------------------------------------------------------
// Accounts
// ---------------------------------------------------------------------

// Account is a persistent user record (spec §3).
type Account struct {
	ID           uint32
	Username     string
	PasswordHash string
	IsAdmin      bool
	Enabled      bool
	IsShared     bool
	Permissions  []string
}

// GetByUsername looks up an account case-insensitively.
func (s *Store) GetByUsername(username string) (Account, error) {
	row := s.db.QueryRow(`SELECT id, username, password_hash, is_admin, enabled, is_shared, permissions
		FROM accounts WHERE username = ? COLLATE NOCASE`, username)
	return scanAccount(row)
}

// GetByID looks up an account by id.
func (s *Store) GetByID(id uint32) (Account, error) {
	row := s.db.QueryRow(`SELECT id, username, password_hash, is_admin, enabled, is_shared, permissions
		FROM accounts WHERE id = ?`, id)
	return scanAccount(row)
}

func scanAccount(row *sql.Row) (Account, error) {
	var a Account
	var perms string
	if err := row.Scan(&a.ID, &a.Username, &a.PasswordHash, &a.IsAdmin, &a.Enabled, &a.IsShared, &perms); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, fmt.Errorf("scan account: %w", err)
	}
	a.Permissions = splitPerms(perms)
	return a, nil
}

func splitPerms(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func joinPerms(perms []string) string { return strings.Join(perms, ",") }

// CreateAccount inserts a new account, hashing plainPassword with bcrypt
// (empty password ⇒ passwordless guest, stored as an empty hash).
func (s *Store) CreateAccount(username, plainPassword string, isAdmin, isShared bool, perms []string) (Account, error) {
	hash := ""
	if plainPassword != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(plainPassword), bcrypt.DefaultCost)
		if err != nil {
			return Account{}, fmt.Errorf("hash password: %w", err)
		}
		hash = string(h)
	}
	res, err := s.db.Exec(`INSERT INTO accounts(username, password_hash, is_admin, enabled, is_shared, permissions)
		VALUES (?, ?, ?, 1, ?, ?)`, username, hash, isAdmin, isShared, joinPerms(perms))
	if err != nil {
		if isUniqueViolation(err) {
			return Account{}, ErrAlreadyExists
		}
		return Account{}, fmt.Errorf("create account: %w", err)
	}
	id, _ := res.LastInsertId()
	return s.GetByID(uint32(id))
}

// UpdateAccount replaces the full set of mutable fields on an account.
// Permission mutations always replace the full set atomically (spec §4.2).
func (s *Store) UpdateAccount(id uint32, username string, isAdmin, enabled bool, perms []string) error {
	res, err := s.db.Exec(`UPDATE accounts SET username = ?, is_admin = ?, enabled = ?, permissions = ? WHERE id = ?`,
		username, isAdmin, enabled, joinPerms(perms), id)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("update account: %w", err)
	}
	return requireAffected(res)
}

// SetPassword rehashes and stores a new password for id.
func (s *Store) SetPassword(id uint32, plainPassword string) error {
	hash := ""
	if plainPassword != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(plainPassword), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		hash = string(h)
	}
	res, err := s.db.Exec(`UPDATE accounts SET password_hash = ? WHERE id = ?`, hash, id)
	if err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	return requireAffected(res)
}

// DeleteAccount removes an account; news authored by it cascades per the
// foreign key (spec §3 News: "Cascade delete with author").
func (s *Store) DeleteAccount(id uint32) error {
	res, err := s.db.Exec(`DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return requireAffected(res)
}

// GetPermissions returns the account's permission tags.
func (s *Store) GetPermissions(id uint32) ([]string, error) {
	a, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}
	return a.Permissions, nil
}

// VerifyPassword reports whether plain matches hash. An empty hash (guest
// account) only matches an empty plain password.
func VerifyPassword(plain, hash string) bool {
	if hash == "" {
		return plain == ""
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint")
}

// ---------------------------------------------------------------------
// Channels
// ---------------------------------------------------------------------

// ChannelSettings is the persisted subset of a channel's state.
type ChannelSettings struct {
	Name       string
	Topic      string
	TopicSetBy string
	Secret     bool
}

// GetChannelSettings looks up a persistent channel by name, case-insensitively.
func (s *Store) GetChannelSettings(name string) (ChannelSettings, error) {
	var cs ChannelSettings
	err := s.db.QueryRow(`SELECT name, topic, topic_set_by, secret FROM channels WHERE name = ? COLLATE NOCASE`, name).
		Scan(&cs.Name, &cs.Topic, &cs.TopicSetBy, &cs.Secret)
	if errors.Is(err, sql.ErrNoRows) {
		return ChannelSettings{}, ErrNotFound
	}
	if err != nil {
		return ChannelSettings{}, fmt.Errorf("get channel: %w", err)
	}
	return cs, nil
}

// AllChannels returns every persistent channel.
func (s *Store) AllChannels() ([]ChannelSettings, error) {
	rows, err := s.db.Query(`SELECT name, topic, topic_set_by, secret FROM channels`)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()
	var out []ChannelSettings
	for rows.Next() {
		var cs ChannelSettings
		if err := rows.Scan(&cs.Name, &cs.Topic, &cs.TopicSetBy, &cs.Secret); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

// UpsertChannel creates the channel if absent, or overwrites its
// topic/secret fields if present.
func (s *Store) UpsertChannel(name, topic, topicSetBy string, secret bool) error {
	_, err := s.db.Exec(`INSERT INTO channels(name, topic, topic_set_by, secret) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET topic = excluded.topic, topic_set_by = excluded.topic_set_by, secret = excluded.secret`,
		name, topic, topicSetBy, secret)
	if err != nil {
		return fmt.Errorf("upsert channel: %w", err)
	}
	return nil
}

// SetChannelTopic updates a persistent channel's topic.
func (s *Store) SetChannelTopic(name, topic, setBy string) error {
	res, err := s.db.Exec(`UPDATE channels SET topic = ?, topic_set_by = ? WHERE name = ? COLLATE NOCASE`, topic, setBy, name)
	if err != nil {
		return fmt.Errorf("set topic: %w", err)
	}
	return requireAffected(res)
}

// SetChannelSecret updates a persistent channel's secret flag.
func (s *Store) SetChannelSecret(name string, secret bool) error {
	res, err := s.db.Exec(`UPDATE channels SET secret = ? WHERE name = ? COLLATE NOCASE`, secret, name)
	if err != nil {
		return fmt.Errorf("set secret: %w", err)
	}
	return requireAffected(res)
}

// DeleteChannel removes a persistent channel.
func (s *Store) DeleteChannel(name string) error {
	res, err := s.db.Exec(`DELETE FROM channels WHERE name = ? COLLATE NOCASE`, name)
	if err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}
	return requireAffected(res)
}

// ---------------------------------------------------------------------
// News
// ---------------------------------------------------------------------

// NewsItem is one append-only news post (spec §3).
type NewsItem struct {
	ID             uint32
	Body           string
	Image          string
	AuthorID       uint32
	AuthorUsername string
	AuthorIsAdmin  bool
	CreatedAt      int64
	UpdatedAt      int64 // 0 = never updated
}

// GetAllNews returns every news item, oldest first.
func (s *Store) GetAllNews() ([]NewsItem, error) {
	rows, err := s.db.Query(`SELECT id, body, image, author_id, author_username, author_is_admin, created_at, updated_at
		FROM news ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list news: %w", err)
	}
	defer rows.Close()
	var out []NewsItem
	for rows.Next() {
		n, err := scanNews(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNews(row rowScanner) (NewsItem, error) {
	var n NewsItem
	var body, image sql.NullString
	var updatedAt sql.NullInt64
	if err := row.Scan(&n.ID, &body, &image, &n.AuthorID, &n.AuthorUsername, &n.AuthorIsAdmin, &n.CreatedAt, &updatedAt); err != nil {
		return NewsItem{}, err
	}
	n.Body = body.String
	n.Image = image.String
	n.UpdatedAt = updatedAt.Int64
	return n, nil
}

// GetNewsByID fetches a single news item.
func (s *Store) GetNewsByID(id uint32) (NewsItem, error) {
	row := s.db.QueryRow(`SELECT id, body, image, author_id, author_username, author_is_admin, created_at, updated_at
		FROM news WHERE id = ?`, id)
	n, err := scanNews(row)
	if errors.Is(err, sql.ErrNoRows) {
		return NewsItem{}, ErrNotFound
	}
	if err != nil {
		return NewsItem{}, fmt.Errorf("get news: %w", err)
	}
	return n, nil
}

// CreateNews inserts a news item. Empty body/image are normalized to
// absent (NULL) per spec §3.
func (s *Store) CreateNews(body, image string, authorID uint32, authorUsername string, authorIsAdmin bool) (NewsItem, error) {
	res, err := s.db.Exec(`INSERT INTO news(body, image, author_id, author_username, author_is_admin)
		VALUES (?, ?, ?, ?, ?)`, nullIfEmpty(body), nullIfEmpty(image), authorID, authorUsername, authorIsAdmin)
	if err != nil {
		return NewsItem{}, fmt.Errorf("create news: %w", err)
	}
	id, _ := res.LastInsertId()
	return s.GetNewsByID(uint32(id))
}

// UpdateNews sets a news item's body/image and stamps updated_at. Who may
// call it (the original author or a news_post holder, and never a
// non-admin on an admin's post) is enforced by the handler, not the store.
func (s *Store) UpdateNews(id uint32, body, image string) error {
	res, err := s.db.Exec(`UPDATE news SET body = ?, image = ?, updated_at = unixepoch() WHERE id = ?`,
		nullIfEmpty(body), nullIfEmpty(image), id)
	if err != nil {
		return fmt.Errorf("update news: %w", err)
	}
	return requireAffected(res)
}

// DeleteNews removes a news item.
func (s *Store) DeleteNews(id uint32) error {
	res, err := s.db.Exec(`DELETE FROM news WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete news: %w", err)
	}
	return requireAffected(res)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// ---------------------------------------------------------------------
// Bans / Trusts
// ---------------------------------------------------------------------

// RuleRecord is a ban or trust row (spec §3).
type RuleRecord struct {
	IPAddress string
	Nickname  string
	Reason    string
	CreatedBy string
	CreatedAt int64
	ExpiresAt int64 // 0 = no expiry
}

func (s *Store) createOrUpdateRule(table, ip, nickname, reason, createdBy string, expiresAt int64) (RuleRecord, error) {
	var expiresVal any
	if expiresAt != 0 {
		expiresVal = expiresAt
	}
	_, err := s.db.Exec(fmt.Sprintf(`INSERT INTO %s(ip_address, nickname, reason, created_by, expires_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(ip_address) DO UPDATE SET nickname = excluded.nickname, reason = excluded.reason,
			created_by = excluded.created_by, created_at = unixepoch(), expires_at = excluded.expires_at`, table),
		ip, nullIfEmpty(nickname), nullIfEmpty(reason), createdBy, expiresVal)
	if err != nil {
		return RuleRecord{}, fmt.Errorf("upsert %s: %w", table, err)
	}
	return s.getRuleUnfiltered(table, ip)
}

func (s *Store) getRuleUnfiltered(table, ip string) (RuleRecord, error) {
	var r RuleRecord
	var nickname, reason sql.NullString
	var expires sql.NullInt64
	err := s.db.QueryRow(fmt.Sprintf(`SELECT ip_address, nickname, reason, created_by, created_at, expires_at FROM %s WHERE ip_address = ?`, table), ip).
		Scan(&r.IPAddress, &nickname, &reason, &r.CreatedBy, &r.CreatedAt, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return RuleRecord{}, ErrNotFound
	}
	if err != nil {
		return RuleRecord{}, fmt.Errorf("get %s: %w", table, err)
	}
	r.Nickname, r.Reason, r.ExpiresAt = nickname.String, reason.String, expires.Int64
	return r, nil
}

func (s *Store) deleteRuleByIP(table, ip string) (bool, error) {
	res, err := s.db.Exec(fmt.Sprintf(`DELETE FROM %s WHERE ip_address = ?`, table), ip)
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", table, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Store) deleteRulesByNickname(table, nickname string) ([]string, error) {
	rows, err := s.db.Query(fmt.Sprintf(`SELECT ip_address FROM %s WHERE nickname = ? COLLATE NOCASE`, table), nickname)
	if err != nil {
		return nil, fmt.Errorf("select %s by nickname: %w", table, err)
	}
	var ips []string
	for rows.Next() {
		var ip string
		if err := rows.Scan(&ip); err != nil {
			rows.Close()
			return nil, err
		}
		ips = append(ips, ip)
	}
	rows.Close()
	if len(ips) == 0 {
		return nil, nil
	}
	if _, err := s.db.Exec(fmt.Sprintf(`DELETE FROM %s WHERE nickname = ? COLLATE NOCASE`, table), nickname); err != nil {
		return nil, fmt.Errorf("delete %s by nickname: %w", table, err)
	}
	return ips, nil
}

func (s *Store) listActiveRules(table string) ([]RuleRecord, error) {
	rows, err := s.db.Query(fmt.Sprintf(`SELECT ip_address, nickname, reason, created_by, created_at, expires_at FROM %s
		WHERE expires_at IS NULL OR expires_at > unixepoch() ORDER BY created_at DESC`, table))
	if err != nil {
		return nil, fmt.Errorf("list active %s: %w", table, err)
	}
	defer rows.Close()
	var out []RuleRecord
	for rows.Next() {
		var r RuleRecord
		var nickname, reason sql.NullString
		var expires sql.NullInt64
		if err := rows.Scan(&r.IPAddress, &nickname, &reason, &r.CreatedBy, &r.CreatedAt, &expires); err != nil {
			return nil, err
		}
		r.Nickname, r.Reason, r.ExpiresAt = nickname.String, reason.String, expires.Int64
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) cleanupExpiredRules(table string) (int64, error) {
	res, err := s.db.Exec(fmt.Sprintf(`DELETE FROM %s WHERE expires_at IS NOT NULL AND expires_at <= unixepoch()`, table))
	if err != nil {
		return 0, fmt.Errorf("cleanup %s: %w", table, err)
	}
	return res.RowsAffected()
}

// CreateOrUpdateBan upserts a ban record.
func (s *Store) CreateOrUpdateBan(ip, nickname, reason, createdBy string, expiresAt int64) (RuleRecord, error) {
	return s.createOrUpdateRule("bans", ip, nickname, reason, createdBy, expiresAt)
}

// CreateOrUpdateTrust upserts a trust record.
func (s *Store) CreateOrUpdateTrust(ip, nickname, reason, createdBy string, expiresAt int64) (RuleRecord, error) {
	return s.createOrUpdateRule("trusts", ip, nickname, reason, createdBy, expiresAt)
}

// DeleteBanByIP removes a ban by exact IP/CIDR.
func (s *Store) DeleteBanByIP(ip string) (bool, error) { return s.deleteRuleByIP("bans", ip) }

// DeleteTrustByIP removes a trust by exact IP/CIDR.
func (s *Store) DeleteTrustByIP(ip string) (bool, error) { return s.deleteRuleByIP("trusts", ip) }

// DeleteBansByNickname removes every ban annotated with nickname, returning
// the IPs that were unbanned.
func (s *Store) DeleteBansByNickname(nickname string) ([]string, error) {
	return s.deleteRulesByNickname("bans", nickname)
}

// DeleteTrustsByNickname removes every trust annotated with nickname.
func (s *Store) DeleteTrustsByNickname(nickname string) ([]string, error) {
	return s.deleteRulesByNickname("trusts", nickname)
}

// ListActiveBans returns every non-expired ban.
func (s *Store) ListActiveBans() ([]RuleRecord, error) { return s.listActiveRules("bans") }

// ListActiveTrusts returns every non-expired trust.
func (s *Store) ListActiveTrusts() ([]RuleRecord, error) { return s.listActiveRules("trusts") }

// CleanupExpiredBans deletes expired ban rows, returning the count removed.
func (s *Store) CleanupExpiredBans() (int64, error) { return s.cleanupExpiredRules("bans") }

// CleanupExpiredTrusts deletes expired trust rows, returning the count removed.
func (s *Store) CleanupExpiredTrusts() (int64, error) { return s.cleanupExpiredRules("trusts") }

// ---------------------------------------------------------------------
// Offline messages
// ---------------------------------------------------------------------

// OfflineMessage is a direct message queued for a recipient who was not
// connected at send time.
type OfflineMessage struct {
	ID         uint32
	SenderName string
	Body       string
	CreatedAt  int64
}

// QueueOfflineMessage enqueues body for recipientID.
func (s *Store) QueueOfflineMessage(recipientID uint32, senderName, body string) error {
	_, err := s.db.Exec(`INSERT INTO offline_messages(recipient_id, sender_name, body) VALUES (?, ?, ?)`,
		recipientID, senderName, body)
	if err != nil {
		return fmt.Errorf("queue offline message: %w", err)
	}
	return nil
}

// DrainOfflineMessages returns and deletes every queued message for
// recipientID, oldest first.
func (s *Store) DrainOfflineMessages(recipientID uint32) ([]OfflineMessage, error) {
	rows, err := s.db.Query(`SELECT id, sender_name, body, created_at FROM offline_messages
		WHERE recipient_id = ? ORDER BY created_at ASC`, recipientID)
	if err != nil {
		return nil, fmt.Errorf("drain offline messages: %w", err)
	}
	var out []OfflineMessage
	for rows.Next() {
		var m OfflineMessage
		if err := rows.Scan(&m.ID, &m.SenderName, &m.Body, &m.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, m)
	}
	rows.Close()
	if len(out) > 0 {
		if _, err := s.db.Exec(`DELETE FROM offline_messages WHERE recipient_id = ?`, recipientID); err != nil {
			return nil, fmt.Errorf("clear offline messages: %w", err)
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------
// Settings
// ---------------------------------------------------------------------

// GetSetting returns the value stored under key; ok is false when absent.
func (s *Store) GetSetting(key string) (value string, ok bool, err error) {
	err = s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting %q: %w", key, err)
	}
	return value, true, nil
}

// SetSetting upserts a key/value pair.
func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(`INSERT INTO settings(key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}

// AccountCount returns the number of accounts, used to decide whether a
// first-run bootstrap admin must be created.
func (s *Store) AccountCount() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM accounts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}
	return n, nil
}
