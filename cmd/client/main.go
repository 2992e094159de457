// Package main is a terminal peer for the hangout hub. It prints room events
// and can start or join a snake session, driving the tick loop when it is the
// controller.
//
// Commands read from stdin: up, down, left, right, confetti, jumpscare,
// typing, stop, quit. Any other line is sent as a typing signal.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Tyrowin/hangout/internal/client"
	"github.com/Tyrowin/hangout/internal/game/snake"
	"github.com/Tyrowin/hangout/internal/protocol"
)

func main() {
	url := flag.String("url", "ws://localhost:8080/ws", "hub WebSocket URL")
	origin := flag.String("origin", "http://localhost:8080", "Origin header sent on dial")
	username := flag.String("username", "", "username to join as")
	room := flag.String("room", "main", "room to join")
	secret := flag.String("secret", "", "room secret")
	snakeMode := flag.String("snake", "", "start or join a snake session")
	flag.Parse()
	log.SetPrefix("[CLIENT] ")

	if *username == "" {
		log.Fatal("-username is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	header := http.Header{}
	header.Set("Origin", *origin)
	conn, err := client.Dial(ctx, *url, header)
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close() }()

	if err := conn.Join(*username, *room, *secret); err != nil {
		log.Fatalf("join: %v", err)
	}

	peer := snake.NewPeer(*username, nil)
	if *snakeMode == "start" {
		send(conn, peer.Start())
	}

	go readCommands(ctx, conn, peer, stop)
	run(ctx, conn, peer, *snakeMode == "join")
}

func run(ctx context.Context, conn *client.Client, peer *snake.Peer, joinSnake bool) {
	ticker := time.NewTicker(snake.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if snapshot, ok := peer.Tick(); ok {
				send(conn, snapshot)
			}
		case event, ok := <-conn.Events():
			if !ok {
				if err := conn.Err(); err != nil {
					log.Printf("connection ended: %v", err)
				}
				return
			}
			if event.Type != protocol.EventGame {
				printEvent(event)
				continue
			}
			payload, err := snake.Decode(event.Payload)
			if err != nil {
				fmt.Printf("game: %s\n", event.Payload)
				continue
			}
			if peer.Receive(payload) && joinSnake {
				joinSnake = false
				if join, err := peer.Join(); err == nil {
					send(conn, join)
				}
			}
			printBoard(peer)
		}
	}
}

func readCommands(ctx context.Context, conn *client.Client, peer *snake.Peer, stop context.CancelFunc) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		var err error
		switch strings.ToLower(line) {
		case "":
			continue
		case "quit":
			stop()
			return
		case "up", "down", "left", "right":
			if intent, ok := peer.SetDirection(snake.Direction(strings.ToUpper(line))); ok {
				send(conn, intent)
			}
		case protocol.ActionConfetti, protocol.ActionJumpscare:
			err = conn.Effect(line)
		case "stop":
			err = conn.StopTyping()
		default:
			err = conn.Typing()
		}
		if err != nil {
			log.Printf("send: %v", err)
		}
	}
}

func send(conn *client.Client, payload snake.Payload) {
	raw, err := payload.Encode()
	if err != nil {
		log.Printf("encode: %v", err)
		return
	}
	if err := conn.Game(raw); err != nil {
		log.Printf("send game payload: %v", err)
	}
}

func printEvent(event protocol.Event) {
	switch event.Type {
	case protocol.EventPresenceList:
		fmt.Printf("online: %s\n", strings.Join(event.Users, ", "))
	case protocol.EventTypingList:
		fmt.Printf("typing: %s\n", strings.Join(event.Users, ", "))
	case protocol.EventError:
		fmt.Printf("error %s: %s\n", event.Code, event.Message)
	case protocol.EventNewMessage, protocol.EventDeleteMessage:
		fmt.Printf("%s in %s: #%d\n", event.Type, event.Room, event.ID)
	default:
		fmt.Printf("%s!\n", event.Type)
	}
}

func printBoard(peer *snake.Peer) {
	state := peer.State()
	if !state.Started {
		return
	}
	var b strings.Builder
	for name, player := range state.Players {
		status := "alive"
		if !player.Alive {
			status = "dead"
		}
		fmt.Fprintf(&b, "%s:%d(%s) ", name, player.Score, status)
	}
	fmt.Printf("snake [controller %s] food %v %s\n", state.Controller, state.Food, b.String())
}
