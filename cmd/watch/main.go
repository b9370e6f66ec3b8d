// Command watch connects to a voteboard server's real-time channel and
// prints every event it receives. With -vote it first casts a vote for the
// given username.
//
//	go run ./cmd/watch -url ws://localhost:8080/ws -vote alice
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/coder/websocket"

	"github.com/sakif/voteboard/internal/model"
)

func main() {
	url := flag.String("url", "ws://localhost:8080/ws", "real-time channel URL")
	vote := flag.String("vote", "", "username to vote for after connecting")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *url, nil)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "client exit")

	if *vote != "" {
		frame, err := json.Marshal(model.Event{
			Name: model.EventVote,
			Data: model.VoteRequest{Username: *vote},
		})
		if err != nil {
			log.Fatalf("Failed to encode vote: %v", err)
		}
		if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
			log.Fatalf("Failed to send vote: %v", err)
		}
	}

	log.Printf("Listening for events on %s...", *url)
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Println("Connection closed")
				return
			}
			log.Printf("Read error: %v", err)
			return
		}

		var ev model.InboundMessage
		if err := json.Unmarshal(msg, &ev); err != nil {
			log.Printf("Unreadable frame: %s", msg)
			continue
		}
		log.Printf("%-13s %s", ev.Event, ev.Data)
	}
}
