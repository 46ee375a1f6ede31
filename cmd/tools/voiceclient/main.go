// voiceclient drives a full voice session against a running backend: it
// dials the websocket, streams an audio file as one utterance, and prints
// every server event until the session ends.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const chunkSize = 32 * 1024

type envelope struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

type audioChunk struct {
	AudioData []byte `json:"audioData"`
	Format    string `json:"format,omitempty"`
	IsLast    bool   `json:"isLast"`
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	addr := flag.String("addr", "ws://localhost:8080/api/voice/ws", "websocket endpoint")
	token := flag.String("token", "", "bearer token for the Authorization header")
	audioPath := flag.String("audio", "", "audio file to stream as one utterance")
	format := flag.String("format", "", "audio format, inferred from the file extension when empty")
	timeout := flag.Duration("timeout", 45*time.Second, "time to wait for server events")
	flag.Parse()

	if *token == "" {
		log.Fatal("provide -token with a valid session token")
	}
	if *audioPath == "" {
		log.Fatal("provide -audio with the utterance file to stream")
	}

	audio, err := os.ReadFile(*audioPath)
	if err != nil {
		log.Fatalf("read audio file: %v", err)
	}
	audioFormat := *format
	if audioFormat == "" {
		audioFormat = strings.TrimPrefix(strings.ToLower(filepath.Ext(*audioPath)), ".")
		if audioFormat == "" {
			audioFormat = "wav"
		}
	}

	header := map[string][]string{"Authorization": {"Bearer " + *token}}
	conn, _, err := websocket.DefaultDialer.Dial(*addr, header)
	if err != nil {
		log.Fatalf("dial %s: %v", *addr, err)
	}
	defer conn.Close()

	send(conn, "start_session", nil)
	started := waitFor(conn, *timeout, "session_started", "quota_exceeded")
	if started.Type == "quota_exceeded" {
		log.Fatalf("quota exceeded: %s", string(started.Data))
	}
	log.Printf("session started: %s", string(started.Data))

	send(conn, "start_turn", nil)
	for offset := 0; offset < len(audio); offset += chunkSize {
		end := offset + chunkSize
		if end > len(audio) {
			end = len(audio)
		}
		send(conn, "audio_chunk", audioChunk{
			AudioData: audio[offset:end],
			Format:    audioFormat,
			IsLast:    end == len(audio),
		})
	}
	log.Printf("streamed %d bytes as %s", len(audio), audioFormat)

	transcript := waitFor(conn, *timeout, "transcription", "transcription_failed")
	log.Printf("%s: %s", transcript.Type, string(transcript.Data))
	if transcript.Type == "transcription" {
		reply := waitFor(conn, *timeout, "assistant_reply", "generation_failed")
		log.Printf("%s: %s", reply.Type, string(reply.Data))
	}

	send(conn, "end_session", nil)
	ended := waitFor(conn, *timeout, "session_ended")
	log.Printf("session ended: %s", string(ended.Data))
}

func send(conn *websocket.Conn, msgType string, payload interface{}) {
	msg := envelope{Type: msgType, Timestamp: time.Now().Unix()}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			log.Fatalf("marshal %s payload: %v", msgType, err)
		}
		msg.Data = raw
	}
	if err := conn.WriteJSON(msg); err != nil {
		log.Fatalf("send %s: %v", msgType, err)
	}
}

// waitFor reads events until one of the wanted types arrives, printing
// everything else as it passes.
func waitFor(conn *websocket.Conn, timeout time.Duration, wanted ...string) envelope {
	deadline := time.Now().Add(timeout)
	for {
		conn.SetReadDeadline(deadline)
		var msg envelope
		if err := conn.ReadJSON(&msg); err != nil {
			log.Fatalf("waiting for %v: %v", wanted, err)
		}
		for _, w := range wanted {
			if msg.Type == w {
				return msg
			}
		}
		log.Printf("event %s: %s", msg.Type, string(msg.Data))
	}
}
