package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/nexus-im/server/internal/store"
	"golang.org/x/term"
)

// Version is the server's reported semver, surfaced in the handshake
// response and the "version" CLI subcommand.
const Version = "1.0.0"

// RunCLI handles administrative subcommands invoked as `nexus-server <cmd>
// ...` instead of starting the listeners. Returns true if a subcommand was
// recognized and handled.
func RunCLI(args []string, dbPath string) bool {
	if len(args) == 0 {
		return false
	}

	switch args[0] {
	case "version":
		fmt.Printf("nexus-server %s\n", Version)
		return true
	case "status":
		return cliStatus(dbPath)
	case "admin":
		return cliAdmin(args[1:], dbPath)
	case "bootstrap":
		return cliBootstrap(dbPath)
	default:
		return false
	}
}

func cliStatus(dbPath string) bool {
	st, err := store.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	n, _ := st.AccountCount()
	fmt.Printf("Database: %s\n", dbPath)
	fmt.Printf("Accounts: %d\n", n)
	fmt.Printf("Version: %s\n", Version)
	return true
}

// cliAdmin implements `admin create <username>` / `admin reset-password
// <username>`, prompting for a password without echoing it.
func cliAdmin(args []string, dbPath string) bool {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: nexus-server admin [create|reset-password] <username>")
		os.Exit(1)
	}

	st, err := store.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	username := args[1]
	switch args[0] {
	case "create":
		password := promptPassword("Password: ")
		account, err := st.CreateAccount(username, password, true, false, permissionStrings(allPermissions))
		if err != nil {
			fmt.Fprintf(os.Stderr, "error creating admin: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Created admin %q (id=%d)\n", account.Username, account.ID)
		return true
	case "reset-password":
		account, err := st.GetByUsername(username)
		if err != nil {
			fmt.Fprintf(os.Stderr, "no such account: %s\n", username)
			os.Exit(1)
		}
		password := promptPassword("New password: ")
		if err := st.SetPassword(account.ID, password); err != nil {
			fmt.Fprintf(os.Stderr, "error resetting password: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Password reset for %q\n", username)
		return true
	default:
		fmt.Fprintln(os.Stderr, "Usage: nexus-server admin [create|reset-password] <username>")
		os.Exit(1)
		return true
	}
}

// cliBootstrap creates the first admin account interactively if the
// account table is still empty; used from a fresh container entrypoint
// before the server is started for the first time.
func cliBootstrap(dbPath string) bool {
	st, err := store.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	n, err := st.AccountCount()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if n > 0 {
		fmt.Println("Accounts already exist; nothing to bootstrap.")
		return true
	}

	fmt.Print("Admin username: ")
	reader := bufio.NewReader(os.Stdin)
	username, _ := reader.ReadString('\n')
	username = strings.TrimSpace(username)
	password := promptPassword("Admin password: ")

	account, err := st.CreateAccount(username, password, true, false, permissionStrings(allPermissions))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error creating admin: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Created admin %q (id=%d)\n", account.Username, account.ID)
	return true
}

func promptPassword(prompt string) string {
	fmt.Print(prompt)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error reading password: %v\n", err)
		os.Exit(1)
	}
	return string(raw)
}

// ensureBootstrapAdmin creates a default admin account on a genuinely empty
// database so `nexus-server serve` is usable without a separate bootstrap
// step; the generated password is printed once and never stored in
// recoverable form.
func ensureBootstrapAdmin(st *store.Store) {
	n, err := st.AccountCount()
	if err != nil || n > 0 {
		return
	}
	password := randomToken(16)
	account, err := st.CreateAccount("admin", password, true, false, permissionStrings(allPermissions))
	if err != nil {
		fmt.Fprintf(os.Stderr, "[bootstrap] create admin: %v\n", err)
		return
	}
	fmt.Printf("[bootstrap] created initial admin account %q with password: %s\n", account.Username, password)
	fmt.Println("[bootstrap] change this password immediately after logging in.")
}
