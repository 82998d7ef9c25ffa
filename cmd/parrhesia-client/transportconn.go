package main

import (
	"context"
	"fmt"
	"log"

	"github.com/gorilla/websocket"

	"github.com/kindlyrobotics/parrhesia-core/internal/transport"
)

// wsTransport adapts a gorilla/websocket connection to session.Transport,
// grounded on the teacher's ServeWs/ReadPump/WritePump split
// (cmd/room-service/internal/handlers/Websocket.go) collapsed into a single
// connection object since the demo binary is a single client, not a
// fan-out server.
type wsTransport struct {
	conn *websocket.Conn
}

func dialTransport(url string) (*wsTransport, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	return &wsTransport{conn: conn}, nil
}

// Send implements session.Transport.
func (t *wsTransport) Send(ctx context.Context, f *transport.Frame) error {
	data, err := transport.Encode(f)
	if err != nil {
		return err
	}
	log.Printf("[transport] -> %s", f.Type)
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

// Recv blocks for the next frame, decoding it from the wire. It returns an
// error when the underlying connection closes or a frame is malformed.
func (t *wsTransport) Recv() (*transport.Frame, error) {
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("transport read failed: %w", err)
	}
	f, err := transport.Decode(data)
	if err != nil {
		return nil, err
	}
	log.Printf("[transport] <- %s", f.Type)
	return f, nil
}

func (t *wsTransport) Close() error { return t.conn.Close() }
