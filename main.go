package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/nexus-im/server/internal/api"
	"github.com/nexus-im/server/internal/config"
	"github.com/nexus-im/server/internal/ipcache"
	"github.com/nexus-im/server/internal/store"
	"github.com/nexus-im/server/internal/transfer"
)

func main() {
	if len(os.Args) > 1 {
		cliDB := "nexus.db"
		if RunCLI(os.Args[1:], cliDB) {
			return
		}
	}

	// The config file path and data directory are scanned ahead of the main
	// flag set so their contents can seed every other flag's default (spec.md
	// §6: "a single executable taking a config path and a data-directory
	// path"). A flag given explicitly on the command line still wins, since
	// flag.Parse runs after these defaults are set.
	preConfigPath, preDataDir := scanEarlyFlags(os.Args[1:])
	fileCfg, err := config.Load(preConfigPath)
	if err != nil {
		log.Fatalf("[config] %v", err)
	}

	configPath := flag.String("config", preConfigPath, "path to a YAML config file")
	dataDir := flag.String("data-dir", firstNonEmpty(preDataDir, fileCfg.DataDir), "data directory holding the SQLite database and file area (overrides -db/-files)")
	addr := flag.String("addr", firstNonEmpty(fileCfg.Addr, ":6667"), "control port listen address")
	transferAddr := flag.String("transfer-addr", firstNonEmpty(fileCfg.TransferAddr, ":6668"), "file-transfer port listen address")
	voiceAddr := flag.String("voice-addr", firstNonEmpty(fileCfg.VoiceAddr, ":6669"), "voice DTLS control-plane listen address (empty to disable)")
	apiAddr := flag.String("api-addr", firstNonEmpty(fileCfg.APIAddr, ":8080"), "diagnostics HTTP listen address (empty to disable)")
	dbPath := flag.String("db", "nexus.db", "SQLite database path (ignored if -data-dir is set)")
	fileAreaRoot := flag.String("files", "files", "file area root directory (ignored if -data-dir is set)")
	certValidity := flag.Duration("cert-validity", firstNonZeroDuration(fileCfg.CertValidity, 365*24*time.Hour), "self-signed TLS certificate validity")
	defaultChannel := flag.String("default-channel", firstNonEmpty(fileCfg.DefaultChannel, "#lobby"), "persistent channel created at first boot")
	serverName := flag.String("name", firstNonEmpty(fileCfg.ServerName, "Nexus Server"), "server display name")
	serverDescription := flag.String("description", fileCfg.ServerDescription, "server description shown at login")
	maxUsers := flag.Int("max-users", firstNonZeroInt(fileCfg.MaxUsers, 500), "advertised maximum concurrent users")
	flag.Parse()

	if *configPath != "" {
		log.Printf("[config] loaded %s", *configPath)
	}
	if *dataDir != "" {
		if err := os.MkdirAll(*dataDir, 0o755); err != nil {
			log.Fatalf("[config] create data directory: %v", err)
		}
		*dbPath = filepath.Join(*dataDir, "nexus.db")
		*fileAreaRoot = filepath.Join(*dataDir, "files")
	}

	st, err := store.Open(*dbPath)
	if err != nil {
		log.Fatalf("[store] %v", err)
	}
	defer st.Close()
	ensureBootstrapAdmin(st)

	if err := os.MkdirAll(*fileAreaRoot, 0o755); err != nil {
		log.Fatalf("[files] create file area root: %v", err)
	}

	tlsHostname := ""
	if host, _, err := net.SplitHostPort(*addr); err == nil && host != "" {
		tlsHostname = host
	}
	tlsConfig, fingerprint, err := generateTLSConfig(*certValidity, tlsHostname)
	if err != nil {
		log.Fatalf("[server] %v", err)
	}
	log.Printf("[server] TLS certificate fingerprint: %s", fingerprint)

	ipCache := ipcache.New()
	bans, err := st.ListActiveBans()
	if err != nil {
		log.Fatalf("[store] load bans: %v", err)
	}
	trusts, err := st.ListActiveTrusts()
	if err != nil {
		log.Fatalf("[store] load trusts: %v", err)
	}
	ipCache.Load(toIPCacheRules(bans), toIPCacheRules(trusts))

	sessions := NewSessionRegistry()
	channels := NewChannelRegistry(*defaultChannel)
	voices := NewVoiceRegistry()

	persisted, err := st.AllChannels()
	if err != nil {
		log.Fatalf("[store] load channels: %v", err)
	}
	channels.LoadPersistent(toPersistedChannels(persisted))
	channels.SetOnUpsert(func(name, topic string, secret bool) error {
		return st.UpsertChannel(name, topic, "", secret)
	})

	engine := &Engine{
		Store: st, IPCache: ipCache, Sessions: sessions, Channels: channels, Voices: voices,
		FileAreaRoot: *fileAreaRoot, ServerName: *serverName, ServerDescription: *serverDescription,
		ServerVersion: Version, MaxUsers: *maxUsers, DefaultChannel: *defaultChannel,
		VoiceAddr: *voiceAddr,
	}

	transferEngine := &transfer.Engine{
		ServerVersion: Version,
		Auth:          storeAuthenticator{store: st},
		Areas:         fileAreaResolver{root: *fileAreaRoot},
		IdleTimeout:   negotiationTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Println("[server] shutting down...")
		cancel()
	}()

	go RunMetrics(ctx, sessions, channels, voices, 30*time.Second)
	go runMaintenance(ctx, st, ipCache)

	if *apiAddr != "" {
		apiServer := api.New(*serverName, Version, func() api.Stats {
			return api.Stats{Users: sessions.Count(), Channels: channels.Count()}
		})
		go apiServer.Run(ctx, *apiAddr)
		log.Printf("[api] listening on %s", *apiAddr)
	}

	transferServer := &TransferServer{Serve: transferEngine.Serve, TLSConfig: tlsConfig, Addr: *transferAddr}
	go func() {
		if err := transferServer.ListenAndServe(ctx); err != nil {
			log.Printf("[server] transfer listener: %v", err)
		}
	}()

	if *voiceAddr != "" {
		voicePlane := &VoicePlane{Voices: voices, Certs: tlsConfig.Certificates, Addr: *voiceAddr}
		go func() {
			if err := voicePlane.ListenAndServe(ctx); err != nil {
				log.Printf("[voice] listener: %v", err)
			}
		}()
	}

	controlServer := &ControlServer{Engine: engine, TLSConfig: tlsConfig, Addr: *addr}
	if err := controlServer.ListenAndServe(ctx); err != nil {
		log.Fatalf("[server] %v", err)
	}
}

// runMaintenance periodically sweeps expired bans/trusts from the database
// and keeps the in-memory ipcache in sync, mirroring the teacher's
// periodic-ban-purge ticker.
func runMaintenance(ctx context.Context, st *store.Store, ipCache *ipcache.Cache) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := st.CleanupExpiredBans(); err != nil {
				log.Printf("[ban] cleanup: %v", err)
			}
			if _, err := st.CleanupExpiredTrusts(); err != nil {
				log.Printf("[trust] cleanup: %v", err)
			}
			bans, err := st.ListActiveBans()
			if err != nil {
				log.Printf("[ban] reload: %v", err)
				continue
			}
			trusts, err := st.ListActiveTrusts()
			if err != nil {
				log.Printf("[trust] reload: %v", err)
				continue
			}
			ipCache.Load(toIPCacheRules(bans), toIPCacheRules(trusts))
		}
	}
}

func toIPCacheRules(recs []store.RuleRecord) []ipcache.Rule {
	out := make([]ipcache.Rule, len(recs))
	for i, r := range recs {
		out[i] = ipcache.Rule{IPAddress: r.IPAddress, Nickname: r.Nickname, Reason: r.Reason, CreatedBy: r.CreatedBy, CreatedAt: r.CreatedAt, ExpiresAt: r.ExpiresAt}
	}
	return out
}

func toPersistedChannels(cs []store.ChannelSettings) []PersistedChannel {
	out := make([]PersistedChannel, len(cs))
	for i, c := range cs {
		out[i] = PersistedChannel{Name: c.Name, Topic: c.Topic, TopicSetBy: c.TopicSetBy, Secret: c.Secret}
	}
	return out
}

// scanEarlyFlags picks -config/--config and -data-dir/--data-dir out of
// args without involving the flag package, so their values can seed the
// defaults of every other flag before flag.Parse runs.
func scanEarlyFlags(args []string) (configPath, dataDir string) {
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" || args[i] == "--config":
			if i+1 < len(args) {
				configPath = args[i+1]
			}
		case strings.HasPrefix(args[i], "-config=") || strings.HasPrefix(args[i], "--config="):
			configPath = args[i][strings.IndexByte(args[i], '=')+1:]
		case args[i] == "-data-dir" || args[i] == "--data-dir":
			if i+1 < len(args) {
				dataDir = args[i+1]
			}
		case strings.HasPrefix(args[i], "-data-dir=") || strings.HasPrefix(args[i], "--data-dir="):
			dataDir = args[i][strings.IndexByte(args[i], '=')+1:]
		}
	}
	return configPath, dataDir
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func firstNonZeroInt(a, b int) int {
	if a != 0 {
		return a
	}
	return b
}

func firstNonZeroDuration(a, b time.Duration) time.Duration {
	if a != 0 {
		return a
	}
	return b
}
