// Command wsclient tails a layoutsync session topic and prints every frame.
// Usage: go run ./cmd/wsclient ws://127.0.0.1:7171/sessions/<id>/ws [token]
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pseudocoder/layoutsync/internal/wire"
)

func main() {
	url := "ws://127.0.0.1:7171/sessions/default/ws"
	if len(os.Args) > 1 {
		url = os.Args[1]
	}
	header := http.Header{}
	if len(os.Args) > 2 {
		header.Set("Authorization", "Bearer "+os.Args[2])
	}

	fmt.Printf("Connecting to %s...\n", url)

	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	fmt.Println("Connected! Waiting for messages...")

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	done := make(chan struct{})
	messageCount := 0

	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					fmt.Printf("Read error: %v\n", err)
				}
				return
			}

			messageCount++

			var msg wire.Message
			if err := json.Unmarshal(data, &msg); err != nil {
				fmt.Printf("[%d] Raw: %s\n", messageCount, string(data))
				continue
			}

			fmt.Printf("[%d] type=%s device=%s", messageCount, msg.Type, msg.DeviceID)
			if msg.UserID != "" {
				fmt.Printf(" user=%s", msg.UserID)
			}
			if len(msg.Payload) > 0 {
				fmt.Printf(" payload=%s", msg.Payload)
			}
			fmt.Println()
		}
	}()

	select {
	case <-done:
		fmt.Println("Connection closed")
	case <-interrupt:
		fmt.Println("Interrupted")
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}

	fmt.Printf("Total messages received: %d\n", messageCount)
}
