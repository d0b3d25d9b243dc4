// chatcli is a terminal client for exercising a relay node: it
// authenticates, prints every frame it receives, and sends each stdin line
// as a chat message.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"strings"
	"time"

	"github.com/litchat/relay/internal/protocol"
)

type cliConfig struct {
	addr      string
	userID    int64
	targetID  int64
	group     bool
	heartbeat time.Duration
}

func main() {
	var cfg cliConfig
	flag.StringVar(&cfg.addr, "addr", "127.0.0.1:9090", "Relay node address")
	flag.Int64Var(&cfg.userID, "user", 0, "User ID to authenticate as")
	flag.Int64Var(&cfg.targetID, "target", 0, "Recipient user ID (or session ID with -group)")
	flag.BoolVar(&cfg.group, "group", false, "Send group chat to a session instead of single chat")
	flag.DurationVar(&cfg.heartbeat, "heartbeat", 30*time.Second, "Heartbeat interval")
	flag.Parse()

	if cfg.userID <= 0 || cfg.targetID <= 0 {
		log.Fatal("both -user and -target are required")
	}
	if err := run(cfg); err != nil {
		log.Fatalf("chatcli failed: %v", err)
	}
}

func run(cfg cliConfig) error {
	conn, err := net.Dial("tcp", cfg.addr)
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}
	defer conn.Close()

	authFrame, err := protocol.NewFrame(protocol.CmdAuth, reqID(), protocol.AuthPayload{
		Token: fmt.Sprintf("user:%d", cfg.userID),
	})
	if err != nil {
		return err
	}
	if _, err := conn.Write(protocol.Encode(authFrame)); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}
	log.Printf("authenticated as user %d on %s", cfg.userID, cfg.addr)

	go receive(conn)
	go heartbeat(conn, cfg.heartbeat)

	cmd := protocol.CmdSingleChat
	if cfg.group {
		cmd = protocol.CmdGroupChat
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		frame, err := protocol.NewFrame(cmd, reqID(), protocol.ChatPayload{
			SenderID:  cfg.userID,
			TargetID:  cfg.targetID,
			Content:   text,
			Timestamp: time.Now().UnixMilli(),
		})
		if err != nil {
			return err
		}
		if _, err := conn.Write(protocol.Encode(frame)); err != nil {
			return fmt.Errorf("send chat: %w", err)
		}
	}
	return scanner.Err()
}

func receive(conn net.Conn) {
	dec := protocol.NewDecoder()
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			log.Printf("connection closed: %v", err)
			os.Exit(0)
		}
		frames, decErr := dec.Push(buf[:n])
		for _, f := range frames {
			switch f.Header.Cmd {
			case protocol.CmdSingleChat, protocol.CmdGroupChat:
				p, err := protocol.ParseChat(f)
				if err != nil {
					log.Printf("bad chat frame: %v", err)
					continue
				}
				if p.Encrypted {
					log.Printf("[%s] from %d: <encrypted %d bytes>", f.Header.Cmd, p.SenderID, len(p.EncContent))
				} else {
					log.Printf("[%s] from %d: %s", f.Header.Cmd, p.SenderID, p.Content)
				}
			default:
				log.Printf("[%s] reqId=%d", f.Header.Cmd, f.Header.ReqID)
			}
		}
		if decErr != nil {
			log.Printf("protocol error: %v", decErr)
			os.Exit(1)
		}
	}
}

func heartbeat(conn net.Conn, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		frame, err := protocol.NewFrame(protocol.CmdHeartbeat, reqID(), nil)
		if err != nil {
			return
		}
		if _, err := conn.Write(protocol.Encode(frame)); err != nil {
			return
		}
	}
}

func reqID() uint64 {
	return uint64(time.Now().UnixNano())
}
