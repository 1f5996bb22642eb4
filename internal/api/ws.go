package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/sprite-ai/ragrev/internal/pipeline"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024 * 64,
	WriteBufferSize: 1024 * 64,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local dev; restrict in production
	},
}

// WebSocket message types from client.
const (
	wsMsgReview = "review"
)

// WebSocket message types to client.
const (
	wsMsgStage  = "stage"
	wsMsgResult = "result"
	wsMsgVeto   = "veto"
	wsMsgError  = "error"
)

// wsMessage is the envelope for WebSocket messages in both directions.
type wsMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// handleWebSocket runs reviews over a socket, streaming a stage event
// at each pipeline boundary before the final result.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("websocket read: %v", err)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			sendWSError(conn, "invalid message format")
			continue
		}

		switch msg.Type {
		case wsMsgReview:
			s.handleWSReview(conn, r, msg.Data)
		default:
			sendWSError(conn, "unknown message type: "+msg.Type)
		}
	}
}

func (s *Server) handleWSReview(conn *websocket.Conn, r *http.Request, data json.RawMessage) {
	var req reviewRequest
	if err := json.Unmarshal(data, &req); err != nil {
		sendWSError(conn, "invalid review data")
		return
	}
	if req.Diff == "" {
		sendWSError(conn, "diff is required")
		return
	}
	if req.RepoDir == "" {
		req.RepoDir = s.repoDir
	}

	result, err := s.pipe.RunWithProgress(r.Context(), req.Payload, req.PRKey, func(ev pipeline.Event) {
		sendWSMessage(conn, wsMsgStage, ev)
	})
	if err != nil {
		var veto *pipeline.VetoError
		if errors.As(err, &veto) {
			sendWSMessage(conn, wsMsgVeto, map[string]string{"reason": veto.Reason})
			return
		}
		sendWSError(conn, err.Error())
		return
	}
	sendWSMessage(conn, wsMsgResult, result)
}

func sendWSMessage(conn *websocket.Conn, msgType string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		log.Printf("ws marshal: %v", err)
		return
	}
	msg := wsMessage{Type: msgType, Data: raw}
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("ws write: %v", err)
	}
}

func sendWSError(conn *websocket.Conn, errMsg string) {
	sendWSMessage(conn, wsMsgError, map[string]string{"message": errMsg})
}
