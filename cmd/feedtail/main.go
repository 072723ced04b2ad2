// Command feedtail prints transcript feed frames from a running agent.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"realtime-voice-agent/backend/pkg/logger"
	feed "realtime-voice-agent/backend/pkg/ws"
)

const pingInterval = 30 * time.Second

func main() {
	addr := flag.String("addr", "ws://localhost:8090/ws", "transcript feed URL")
	raw := flag.Bool("json", false, "print raw frames")
	flag.Parse()

	log := logger.New(logger.DefaultConfig())

	u, err := url.Parse(*addr)
	if err != nil {
		log.LogError(err, "invalid feed URL", "addr", *addr)
		os.Exit(1)
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.LogError(err, "failed to connect to feed", "addr", u.String())
		os.Exit(1)
	}
	defer conn.Close()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure) {
					log.Warn("feed read failed", "error", err.Error())
				}
				return
			}
			if *raw {
				fmt.Println(string(data))
				continue
			}

			var frame feed.Frame
			if err := json.Unmarshal(data, &frame); err != nil {
				log.Warn("skipping undecodable frame", "error", err.Error())
				continue
			}
			printFrame(os.Stdout, frame)
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteJSON(feed.Frame{Type: feed.FramePing}); err != nil {
				log.Warn("ping failed", "error", err.Error())
				return
			}
		case <-interrupt:
			err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Warn("close failed", "error", err.Error())
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		}
	}
}

// printFrame writes a one-line summary of a snapshot and its newest
// message.
func printFrame(w io.Writer, frame feed.Frame) {
	if frame.Type != feed.FrameSnapshot {
		return
	}

	line := fmt.Sprintf("[v%d %s]", frame.Version, frame.State)
	if frame.Error != "" {
		line += " error: " + frame.Error
	}
	if n := len(frame.Messages); n > 0 {
		last := frame.Messages[n-1]
		marker := ""
		if last.IsStreaming {
			marker = "…"
		}
		line += fmt.Sprintf(" %s: %s%s", last.Role, last.Text, marker)
	}
	fmt.Fprintln(w, line)
}
