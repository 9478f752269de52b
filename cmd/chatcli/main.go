package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/freelago/chatkit/internal/chat"
	"github.com/freelago/chatkit/internal/config"
	"github.com/freelago/chatkit/internal/domain"
	"github.com/freelago/chatkit/internal/logger"
	"github.com/freelago/chatkit/internal/transport/rest"
	"github.com/freelago/chatkit/internal/transport/ws"
)

var (
	flagID    string
	flagKind  string
	flagPeer  string
	flagToken string
	flagName  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "chatcli",
		Short: "Terminal chat client for the freelancer marketplace",
		Long: "Opens one conversation: loads its history, connects the realtime " +
			"channel and relays stdin lines as messages. Type /req to request a " +
			"service from the peer, /quit to leave.",
		RunE: run,
	}

	rootCmd.Flags().StringVar(&flagID, "id", "", "own party ID (required)")
	rootCmd.Flags().StringVar(&flagKind, "kind", "user", "own party kind: user or freelancer")
	rootCmd.Flags().StringVar(&flagPeer, "peer", "", "peer party ID (required)")
	rootCmd.Flags().StringVar(&flagToken, "token", "", "session token; minted from the dev server when empty")
	rootCmd.Flags().StringVar(&flagName, "name", "", "display name to register when minting a token")
	rootCmd.MarkFlagRequired("id")
	rootCmd.MarkFlagRequired("peer")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()

	log, err := logger.New(cfg.Development)
	if err != nil {
		return err
	}
	defer log.Sync()

	kind := domain.PartyKind(flagKind)
	if !kind.Valid() {
		return fmt.Errorf("invalid kind %q, want user or freelancer", flagKind)
	}

	token := flagToken
	if token == "" {
		token, err = mintToken(cmd.Context(), cfg.APIBaseURL, flagID, kind, flagName)
		if err != nil {
			return fmt.Errorf("minting dev token: %w", err)
		}
	}

	cred := domain.Credential{ID: flagID, Token: token, Kind: kind}
	restClient := rest.NewClient(cfg.APIBaseURL, log)

	session := chat.NewSession(chat.Config{
		Credential: cred,
		PeerID:     flagPeer,
		History:    restClient,
		Services:   restClient,
		Dial: func(ctx context.Context, onMessage func(domain.RawMessage), onClose func(error)) (chat.Channel, error) {
			return ws.Dial(ctx, cfg.SocketURL, cred.Token, ws.Options{
				OnMessage: onMessage,
				OnClose:   onClose,
				Log:       log,
			})
		},
		OnMessage: func(msg domain.Message) {
			printMessage(msg, flagID)
		},
		OnHistoryError: func(err error) {
			fmt.Printf("\r! could not load message history: %v\n> ", err)
		},
		OnDisconnect: func() {
			fmt.Print("\r! disconnected, re-open the conversation to reconnect\n")
		},
		Log: log,
	})

	if err := session.Start(cmd.Context()); err != nil {
		return err
	}
	defer session.Close()

	waitReady(session)
	for _, msg := range session.Messages() {
		printMessage(msg, flagID)
	}
	fmt.Print("> ")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "/quit":
			return nil
		case line == "/req":
			if err := session.RequestService(cmd.Context()); err != nil {
				fmt.Printf("! service request failed: %v\n", err)
			} else {
				fmt.Println("service requested")
			}
		case line != "":
			if err := session.Send(cmd.Context(), line); err != nil {
				fmt.Printf("! send failed: %v\n", err)
			}
		}
		fmt.Print("> ")
	}
	return scanner.Err()
}

func waitReady(session *chat.Session) {
	deadline := time.Now().Add(10 * time.Second)
	for session.State() == chat.StateLoading && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
}

func printMessage(msg domain.Message, viewerID string) {
	who := "peer"
	if msg.Own(viewerID) {
		who = "me"
	}
	ts := msg.CreatedAt
	if t, err := time.Parse(time.RFC3339, msg.CreatedAt); err == nil {
		ts = t.Local().Format("15:04")
	}
	fmt.Printf("\r[%s] %s: %s\n> ", ts, who, msg.Content)
}

// mintToken asks the dev server for a signed token. Against the real
// backend a token comes from the auth flow instead.
func mintToken(ctx context.Context, apiBase, id string, kind domain.PartyKind, name string) (string, error) {
	body, _ := json.Marshal(map[string]string{
		"id":   id,
		"kind": string(kind),
		"name": name,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(apiBase, "/")+"/auth/token", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Token, nil
}
