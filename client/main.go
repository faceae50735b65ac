package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/nexus-im/client/internal/uri"
	"golang.org/x/term"
)

// main is a headless driver for App: it resolves an optional nexus://
// argument (spec §6: "a single executable optionally taking a nexus://
// URI as its first positional argument to open on startup"), otherwise
// prompts for a server/username/password, then runs a line-oriented
// command loop over the connection. There is no bound GUI in this
// module (spec.md §1 scopes the actual interface out); this loop exists
// to drive and exercise App end to end.
func main() {
	app := NewApp()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if len(os.Args) > 1 && strings.HasPrefix(os.Args[1], uri.Scheme+"://") {
		intent, err := app.ConnectURI(ctx, os.Args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		applyStartupIntent(app, intent)
	} else if err := connectInteractively(ctx, app); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	runCommandLoop(ctx, app)
}

func connectInteractively(ctx context.Context, app *App) error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Print("Server address: ")
	addrLine, _ := reader.ReadString('\n')
	addr, err := normalizeServerAddr(addrLine)
	if err != nil {
		return err
	}

	fmt.Print("Username: ")
	userLine, _ := reader.ReadString('\n')
	username := strings.TrimSpace(userLine)

	fmt.Print("Password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	return app.Connect(ctx, addr, username, string(password))
}

// applyStartupIntent acts on the path intent a nexus:// link resolved to,
// once the connection it implied is established (spec §4.13).
func applyStartupIntent(app *App, intent uri.PathIntent) {
	switch v := intent.(type) {
	case uri.ChatIntent:
		if v.IsChannel {
			app.JoinChannel(v.Target)
		}
	case uri.FilesIntent:
		parent, leaf := "", v.Path
		if i := strings.LastIndex(v.Path, "/"); i >= 0 {
			parent, leaf = v.Path[:i], v.Path[i+1:]
		}
		app.ListFiles("startup", parent, leaf)
	}
}

// runCommandLoop reads one line-oriented command per line until /quit or
// EOF. It is deliberately small: a real UI drives App through its typed
// methods directly rather than through this text protocol.
func runCommandLoop(ctx context.Context, app *App) {
	fmt.Println("Connected. Commands: /join <channel>, /msg <channel> <text>, /voice <target>, /quit")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, " ", 3)
		switch fields[0] {
		case "/quit":
			app.Disconnect()
			return
		case "/join":
			if len(fields) < 2 {
				fmt.Println("usage: /join <channel>")
				continue
			}
			if err := app.JoinChannel(fields[1]); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
			}
		case "/msg":
			if len(fields) < 3 {
				fmt.Println("usage: /msg <channel> <text>")
				continue
			}
			if err := app.SendChat(fields[1], fields[2]); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
			}
		case "/voice":
			if len(fields) < 2 {
				fmt.Println("usage: /voice <target>")
				continue
			}
			target := fields[1]
			if err := app.JoinVoice(ctx, target, strings.HasPrefix(target, "#")); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
			}
		default:
			fmt.Printf("unrecognized command: %s\n", fields[0])
		}
	}
	app.Disconnect()
}
