package store

import "testing"

// newMemStore opens an in-memory SQLite database, runs migrations, and
// returns the store. The database is discarded when the test process exits.
func newMemStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMigrationsApplied(t *testing.T) {
	s := newMemStore(t)

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&count); err != nil {
		t.Fatalf("query schema_migrations: %v", err)
	}
	if count != len(migrations) {
		t.Errorf("expected %d migrations recorded, got %d", len(migrations), count)
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	s := newMemStore(t)

	if err := s.migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&count); err != nil {
		t.Fatalf("query: %v", err)
	}
	if count != len(migrations) {
		t.Errorf("expected %d rows after second migrate, got %d", len(migrations), count)
	}
}

func TestCreateAndGetAccount(t *testing.T) {
	s := newMemStore(t)

	a, err := s.CreateAccount("Alice", "hunter2", false, false, []string{"chat_send", "user_list"})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if a.ID == 0 {
		t.Fatal("expected nonzero id")
	}

	got, err := s.GetByUsername("alice")
	if err != nil {
		t.Fatalf("GetByUsername (case-insensitive): %v", err)
	}
	if got.Username != "Alice" {
		t.Errorf("username: got %q, want %q", got.Username, "Alice")
	}
	if len(got.Permissions) != 2 {
		t.Errorf("expected 2 permissions, got %v", got.Permissions)
	}
	if !VerifyPassword("hunter2", got.PasswordHash) {
		t.Error("expected password to verify")
	}
	if VerifyPassword("wrong", got.PasswordHash) {
		t.Error("expected wrong password to fail verification")
	}
}

func TestCreateAccountDuplicateUsername(t *testing.T) {
	s := newMemStore(t)

	if _, err := s.CreateAccount("bob", "x", false, false, nil); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := s.CreateAccount("BOB", "y", false, false, nil)
	if err != ErrAlreadyExists {
		t.Errorf("expected ErrAlreadyExists for case-insensitive duplicate, got %v", err)
	}
}

func TestGuestAccountEmptyPassword(t *testing.T) {
	s := newMemStore(t)

	a, err := s.CreateAccount("guest", "", false, false, nil)
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if !VerifyPassword("", a.PasswordHash) {
		t.Error("expected empty password to verify against guest hash")
	}
	if VerifyPassword("anything", a.PasswordHash) {
		t.Error("non-empty password must not verify against a guest account")
	}
}

func TestGetByUsernameNotFound(t *testing.T) {
	s := newMemStore(t)

	_, err := s.GetByUsername("nobody")
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateAccount(t *testing.T) {
	s := newMemStore(t)

	a, _ := s.CreateAccount("carol", "pw", false, false, nil)
	if err := s.UpdateAccount(a.ID, "carol2", true, true, []string{"user_edit"}); err != nil {
		t.Fatalf("UpdateAccount: %v", err)
	}

	got, err := s.GetByID(a.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Username != "carol2" || !got.IsAdmin || len(got.Permissions) != 1 {
		t.Errorf("unexpected account after update: %+v", got)
	}
}

func TestDeleteAccountCascadesNews(t *testing.T) {
	s := newMemStore(t)

	a, _ := s.CreateAccount("dave", "pw", true, false, nil)
	n, err := s.CreateNews("hello world", "", a.ID, "dave", true)
	if err != nil {
		t.Fatalf("CreateNews: %v", err)
	}

	if err := s.DeleteAccount(a.ID); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}

	if _, err := s.GetNewsByID(n.ID); err != ErrNotFound {
		t.Errorf("expected news to cascade-delete with its author, got err=%v", err)
	}
}

func TestNewsCreateUpdateDelete(t *testing.T) {
	s := newMemStore(t)

	a, _ := s.CreateAccount("erin", "pw", true, false, nil)
	n, err := s.CreateNews("first post", "", a.ID, "erin", true)
	if err != nil {
		t.Fatalf("CreateNews: %v", err)
	}
	if n.UpdatedAt != 0 {
		t.Errorf("expected UpdatedAt 0 on create, got %d", n.UpdatedAt)
	}

	if err := s.UpdateNews(n.ID, "edited post", ""); err != nil {
		t.Fatalf("UpdateNews: %v", err)
	}
	got, err := s.GetNewsByID(n.ID)
	if err != nil {
		t.Fatalf("GetNewsByID: %v", err)
	}
	if got.Body != "edited post" {
		t.Errorf("body: got %q", got.Body)
	}
	if got.UpdatedAt == 0 {
		t.Error("expected UpdatedAt to be stamped after edit")
	}

	if err := s.DeleteNews(n.ID); err != nil {
		t.Fatalf("DeleteNews: %v", err)
	}
	if _, err := s.GetNewsByID(n.ID); err != ErrNotFound {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestChannelUpsertAndTopic(t *testing.T) {
	s := newMemStore(t)

	if err := s.UpsertChannel("#general", "welcome", "admin", false); err != nil {
		t.Fatalf("UpsertChannel: %v", err)
	}
	if err := s.SetChannelTopic("#general", "new topic", "alice"); err != nil {
		t.Fatalf("SetChannelTopic: %v", err)
	}

	cs, err := s.GetChannelSettings("#GENERAL")
	if err != nil {
		t.Fatalf("GetChannelSettings (case-insensitive): %v", err)
	}
	if cs.Topic != "new topic" || cs.TopicSetBy != "alice" {
		t.Errorf("unexpected settings: %+v", cs)
	}
}

func TestChannelSetTopicNotFound(t *testing.T) {
	s := newMemStore(t)

	if err := s.SetChannelTopic("#ghost", "x", "y"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestBanAndTrustRoundTrip(t *testing.T) {
	s := newMemStore(t)

	if _, err := s.CreateOrUpdateBan("10.0.0.0/24", "", "abuse", "admin", 0); err != nil {
		t.Fatalf("CreateOrUpdateBan: %v", err)
	}
	if _, err := s.CreateOrUpdateTrust("10.0.0.5", "", "exempt", "admin", 0); err != nil {
		t.Fatalf("CreateOrUpdateTrust: %v", err)
	}

	bans, err := s.ListActiveBans()
	if err != nil || len(bans) != 1 {
		t.Fatalf("ListActiveBans: %v %+v", err, bans)
	}
	trusts, err := s.ListActiveTrusts()
	if err != nil || len(trusts) != 1 {
		t.Fatalf("ListActiveTrusts: %v %+v", err, trusts)
	}
}

func TestDeleteBansByNickname(t *testing.T) {
	s := newMemStore(t)

	s.CreateOrUpdateBan("1.2.3.4", "troll", "spam", "admin", 0)
	s.CreateOrUpdateBan("5.6.7.8", "troll", "spam", "admin", 0)
	s.CreateOrUpdateBan("9.9.9.9", "other", "spam", "admin", 0)

	ips, err := s.DeleteBansByNickname("TROLL")
	if err != nil {
		t.Fatalf("DeleteBansByNickname: %v", err)
	}
	if len(ips) != 2 {
		t.Fatalf("expected 2 unbanned ips, got %v", ips)
	}

	remaining, _ := s.ListActiveBans()
	if len(remaining) != 1 {
		t.Fatalf("expected 1 remaining ban, got %d", len(remaining))
	}
}

func TestCleanupExpiredBans(t *testing.T) {
	s := newMemStore(t)

	s.CreateOrUpdateBan("1.1.1.1", "", "temp", "admin", 1) // already expired (unix time 1)
	s.CreateOrUpdateBan("2.2.2.2", "", "perm", "admin", 0)  // no expiry

	n, err := s.CleanupExpiredBans()
	if err != nil {
		t.Fatalf("CleanupExpiredBans: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 expired ban removed, got %d", n)
	}

	remaining, _ := s.ListActiveBans()
	if len(remaining) != 1 || remaining[0].IPAddress != "2.2.2.2" {
		t.Errorf("unexpected remaining bans: %+v", remaining)
	}
}

func TestOfflineMessageQueueAndDrain(t *testing.T) {
	s := newMemStore(t)

	a, _ := s.CreateAccount("frank", "pw", false, false, nil)
	if err := s.QueueOfflineMessage(a.ID, "alice", "are you there?"); err != nil {
		t.Fatalf("QueueOfflineMessage: %v", err)
	}
	if err := s.QueueOfflineMessage(a.ID, "bob", "hello"); err != nil {
		t.Fatalf("QueueOfflineMessage: %v", err)
	}

	msgs, err := s.DrainOfflineMessages(a.ID)
	if err != nil {
		t.Fatalf("DrainOfflineMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].SenderName != "alice" || msgs[1].SenderName != "bob" {
		t.Errorf("unexpected order: %+v", msgs)
	}

	// A second drain must return nothing: offline messages are consumed once.
	msgs, err = s.DrainOfflineMessages(a.ID)
	if err != nil {
		t.Fatalf("second DrainOfflineMessages: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected empty drain, got %d messages", len(msgs))
	}
}

func TestGetSetSetting(t *testing.T) {
	s := newMemStore(t)

	val, ok, err := s.GetSetting("server_name")
	if err != nil {
		t.Fatalf("GetSetting missing key: %v", err)
	}
	if ok {
		t.Errorf("expected ok=false for missing key, got %q", val)
	}

	if err := s.SetSetting("server_name", "Nexus"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	val, ok, err = s.GetSetting("server_name")
	if err != nil || !ok || val != "Nexus" {
		t.Fatalf("GetSetting after set: val=%q ok=%v err=%v", val, ok, err)
	}
}

func TestAccountCount(t *testing.T) {
	s := newMemStore(t)

	n, err := s.AccountCount()
	if err != nil || n != 0 {
		t.Fatalf("expected 0, got %d err=%v", n, err)
	}

	s.CreateAccount("a", "pw", false, false, nil)
	s.CreateAccount("b", "pw", false, false, nil)

	n, err = s.AccountCount()
	if err != nil || n != 2 {
		t.Fatalf("expected 2, got %d err=%v", n, err)
	}
}
