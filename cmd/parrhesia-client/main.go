// Command parrhesia-client is a runnable demo/driver binary: it opens a
// gorilla/websocket connection to the server collaborator, decodes §6.1
// frames, and drives internal/session.Machine end to end. It exists so the
// core (crypto, treekem, ratchet, groupkey, session) has a real process
// exercising it outside of tests, mirroring the teacher's
// cmd/room-service/cmd/main.go wiring (config load, router, graceful
// shutdown) adapted from serving connections to dialing one.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/kindlyrobotics/parrhesia-core/internal/config"
	pcrypto "github.com/kindlyrobotics/parrhesia-core/internal/crypto"
	"github.com/kindlyrobotics/parrhesia-core/internal/groupkey"
	"github.com/kindlyrobotics/parrhesia-core/internal/identity"
	"github.com/kindlyrobotics/parrhesia-core/internal/roomclient"
	"github.com/kindlyrobotics/parrhesia-core/internal/session"
)

func main() {
	cfg := config.Load()

	signing, err := loadOrCreateIdentity(cfg)
	if err != nil {
		log.Fatalf("failed to load identity: %v", err)
	}

	tofu, err := identity.LoadStore(cfg.TofuPath)
	if err != nil {
		log.Fatalf("failed to load tofu store: %v", err)
	}

	history, err := identity.LoadHistory(cfg.HistoryPath, cfg.Password)
	if err != nil {
		log.Fatalf("failed to load message history: %v", err)
	}
	log.Printf("loaded %d message history records", len(history))

	rc := roomclient.New(cfg.RoomServerURL)
	roomID := os.Getenv("PARRHESIA_ROOM_ID")
	if roomID == "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		roomID, err = rc.CreateRoom(ctx)
		if err != nil {
			log.Fatalf("failed to create room: %v", err)
		}
		log.Printf("created room %s", roomID)
	}

	mgr, err := groupkey.NewManager(signing, roomID, tofu)
	if err != nil {
		log.Fatalf("failed to init group key manager: %v", err)
	}

	conn, err := dialTransport(cfg.WebSocketURL)
	if err != nil {
		log.Fatalf("failed to connect to %s: %v", cfg.WebSocketURL, err)
	}
	defer conn.Close()

	machine := session.NewMachine(mgr, conn, tofu, roomID)
	machine.OnPlaintext = func(pt session.Plaintext) {
		fmt.Printf("%s: %s\n", pt.PeerID, string(pt.Body))
		history = append(history, identity.NewMessageRecord(pt.PeerID, string(pt.Body), pt.Epoch, pt.Counter))
	}
	machine.OnSent = func(pt session.Plaintext) {
		history = append(history, identity.NewMessageRecord(pt.PeerID, string(pt.Body), pt.Epoch, pt.Counter))
	}
	machine.OnStatus = func(status string) {
		log.Printf("room status: %s", status)
	}

	go serveDebug(cfg.DebugPort, mgr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go readLoop(ctx, conn, machine)
	go stdinLoop(ctx, machine)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down parrhesia-client")

	if err := identity.SaveHistory(cfg.HistoryPath, history, cfg.Password); err != nil {
		log.Printf("failed to save message history: %v", err)
	}
}

func loadOrCreateIdentity(cfg *config.Config) (*pcrypto.SigningKeyPair, error) {
	if _, err := os.Stat(cfg.IdentityPath); err == nil {
		return identity.Load(cfg.IdentityPath, cfg.Password)
	}

	kp, err := pcrypto.SigningGenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing keypair: %w", err)
	}
	if cfg.Password != "" {
		if err := identity.SaveWrapped(cfg.IdentityPath, kp, cfg.Password); err != nil {
			return nil, err
		}
	} else {
		if err := identity.SaveRaw(cfg.IdentityPath, kp); err != nil {
			return nil, err
		}
	}
	return kp, nil
}

func readLoop(ctx context.Context, conn *wsTransport, machine *session.Machine) {
	for {
		f, err := conn.Recv()
		if err != nil {
			log.Printf("transport closed: %v", err)
			return
		}
		if err := machine.Handle(ctx, f); err != nil {
			log.Printf("fatal session error, shutting down: %v", err)
			return
		}
	}
}

func stdinLoop(ctx context.Context, machine *session.Machine) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if err := machine.SendMessage(ctx, []byte(line)); err != nil {
			log.Printf("failed to send message: %v", err)
		}
	}
}

// serveDebug exposes a local read-only view of session state for
// inspection during the demo, matching the teacher's every-service
// /health endpoint convention wired through gorilla/mux.
func serveDebug(port string, mgr *groupkey.Manager) {
	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprintf(w, `{"peer_id":%q,"epoch":%d,"peers":%d}`, mgr.SelfPeerID(), mgr.Epoch(), mgr.PeerCount())
	}).Methods("GET")

	log.Printf("debug endpoint listening on :%s", port)
	if err := http.ListenAndServe(":"+port, r); err != nil {
		log.Printf("debug endpoint stopped: %v", err)
	}
}
