package filearea

import "testing"

func TestParseFolderTypeDefault(t *testing.T) {
	for _, name := range []string{"Documents", "My Files", ""} {
		if got := ParseFolderType(name).Type; got != Default {
			t.Errorf("ParseFolderType(%q) = %v, want Default", name, got)
		}
	}
}

func TestParseFolderTypeUpload(t *testing.T) {
	if got := ParseFolderType("Uploads [NEXUS-UL]").Type; got != Upload {
		t.Errorf("got %v, want Upload", got)
	}
}

func TestParseFolderTypeSuffixOnlyIsDefault(t *testing.T) {
	cases := []string{
		"[NEXUS-UL]", "[NEXUS-DB]", "[NEXUS-DB-alice]",
		" [NEXUS-UL]", " [NEXUS-DB]", " [NEXUS-DB-alice]",
		"   [NEXUS-UL]", "   [NEXUS-DB]", "  [NEXUS-DB-alice]",
	}
	for _, name := range cases {
		if got := ParseFolderType(name).Type; got != Default {
			t.Errorf("ParseFolderType(%q) = %v, want Default", name, got)
		}
	}
}

func TestParseFolderTypeUploadCaseInsensitive(t *testing.T) {
	for _, name := range []string{"Uploads [nexus-ul]", "Uploads [Nexus-UL]", "Uploads [NEXUS-ul]"} {
		if got := ParseFolderType(name).Type; got != Upload {
			t.Errorf("ParseFolderType(%q) = %v, want Upload", name, got)
		}
	}
}

func TestParseFolderTypeDropBox(t *testing.T) {
	if got := ParseFolderType("Inbox [NEXUS-DB]").Type; got != DropBox {
		t.Errorf("got %v, want DropBox", got)
	}
}

func TestParseFolderTypeDropBoxCaseInsensitive(t *testing.T) {
	for _, name := range []string{"Inbox [nexus-db]", "Inbox [Nexus-DB]"} {
		if got := ParseFolderType(name).Type; got != DropBox {
			t.Errorf("ParseFolderType(%q) = %v, want DropBox", name, got)
		}
	}
}

func TestParseFolderTypeUserDropBox(t *testing.T) {
	r := ParseFolderType("For Alice [NEXUS-DB-alice]")
	if r.Type != UserDropBox || r.User != "alice" {
		t.Errorf("got %v/%q, want UserDropBox/alice", r.Type, r.User)
	}
}

func TestParseFolderTypeUserDropBoxCaseInsensitivePrefixPreservesUsernameCase(t *testing.T) {
	r := ParseFolderType("For Alice [nexus-db-Alice]")
	if r.Type != UserDropBox || r.User != "Alice" {
		t.Errorf("got %v/%q, want UserDropBox/Alice", r.Type, r.User)
	}

	r = ParseFolderType("Files [NEXUS-DB-AlIcE]")
	if r.Type != UserDropBox || r.User != "AlIcE" {
		t.Errorf("got %v/%q, want UserDropBox/AlIcE", r.Type, r.User)
	}
}

func TestParseFolderTypeEmptyUserDropBoxIsDefault(t *testing.T) {
	if got := ParseFolderType("Files [NEXUS-DB-]").Type; got != Default {
		t.Errorf("got %v, want Default", got)
	}
}

func TestParseFolderTypeSuffixMustBeAtEnd(t *testing.T) {
	for _, name := range []string{"[NEXUS-UL] Documents", "[NEXUS-DB] Inbox"} {
		if got := ParseFolderType(name).Type; got != Default {
			t.Errorf("ParseFolderType(%q) = %v, want Default", name, got)
		}
	}
}

func TestParseFolderTypeNoSpaceBeforeSuffixIsDefault(t *testing.T) {
	cases := []string{"Uploads[NEXUS-UL]", "Inbox[NEXUS-DB]", "For Alice[NEXUS-DB-alice]"}
	for _, name := range cases {
		if got := ParseFolderType(name).Type; got != Default {
			t.Errorf("ParseFolderType(%q) = %v, want Default", name, got)
		}
	}
}

func TestParseFolderTypeExtraBracketsRejected(t *testing.T) {
	cases := []string{"Folder [NEXUS-DB-alice] extra]", "Folder [NEXUS-DB-al[ice]"}
	for _, name := range cases {
		if got := ParseFolderType(name).Type; got != Default {
			t.Errorf("ParseFolderType(%q) = %v, want Default", name, got)
		}
	}
}

func TestParseFolderTypeMultipleSuffixesLastWins(t *testing.T) {
	if got := ParseFolderType("Folder [NEXUS-UL] [NEXUS-DB]").Type; got != DropBox {
		t.Errorf("got %v, want DropBox", got)
	}
	if got := ParseFolderType("Folder [NEXUS-DB] [NEXUS-UL]").Type; got != Upload {
		t.Errorf("got %v, want Upload", got)
	}
}

func TestDisplayNameDefault(t *testing.T) {
	for _, name := range []string{"Documents", "My Files"} {
		if got := DisplayName(name); got != name {
			t.Errorf("DisplayName(%q) = %q, want unchanged", name, got)
		}
	}
}

func TestDisplayNameUpload(t *testing.T) {
	if got := DisplayName("Uploads [NEXUS-UL]"); got != "Uploads" {
		t.Errorf("got %q, want Uploads", got)
	}
	// No space before suffix: treated as Default, returned unchanged.
	if got := DisplayName("Uploads[NEXUS-UL]"); got != "Uploads[NEXUS-UL]" {
		t.Errorf("got %q, want unchanged", got)
	}
	if got := DisplayName("[NEXUS-UL]"); got != "[NEXUS-UL]" {
		t.Errorf("got %q, want unchanged", got)
	}
	if got := DisplayName("   [NEXUS-UL]"); got != "   [NEXUS-UL]" {
		t.Errorf("got %q, want unchanged", got)
	}
}

func TestDisplayNameDropBox(t *testing.T) {
	if got := DisplayName("Inbox [NEXUS-DB]"); got != "Inbox" {
		t.Errorf("got %q, want Inbox", got)
	}
	if got := DisplayName("Inbox[NEXUS-DB]"); got != "Inbox[NEXUS-DB]" {
		t.Errorf("got %q, want unchanged", got)
	}
}

func TestDisplayNameUserDropBox(t *testing.T) {
	if got := DisplayName("For Alice [NEXUS-DB-alice]"); got != "For Alice" {
		t.Errorf("got %q, want %q", got, "For Alice")
	}
	if got := DisplayName("For Alice[NEXUS-DB-alice]"); got != "For Alice[NEXUS-DB-alice]" {
		t.Errorf("got %q, want unchanged", got)
	}
	if got := DisplayName("[NEXUS-DB-bob]"); got != "[NEXUS-DB-bob]" {
		t.Errorf("got %q, want unchanged", got)
	}
}

func TestDisplayNameCaseInsensitive(t *testing.T) {
	if got := DisplayName("Uploads [nexus-ul]"); got != "Uploads" {
		t.Errorf("got %q, want Uploads", got)
	}
	if got := DisplayName("Inbox [nexus-db]"); got != "Inbox" {
		t.Errorf("got %q, want Inbox", got)
	}
	if got := DisplayName("For Alice [nexus-db-alice]"); got != "For Alice" {
		t.Errorf("got %q, want %q", got, "For Alice")
	}
}

func TestDisplayNameTrimsTrailingSpace(t *testing.T) {
	if got := DisplayName("Uploads   [NEXUS-UL]"); got != "Uploads" {
		t.Errorf("got %q, want Uploads", got)
	}
	if got := DisplayName("Inbox  [NEXUS-DB]"); got != "Inbox" {
		t.Errorf("got %q, want Inbox", got)
	}
}

func TestDisplayNameMalformedUserDropBox(t *testing.T) {
	name := "Folder [NEXUS-DB-alice] extra]"
	if got := DisplayName(name); got != name {
		t.Errorf("got %q, want unchanged %q", got, name)
	}
}
