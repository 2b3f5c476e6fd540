package gateway

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/classcast/classcast/internal/auth"
	"github.com/classcast/classcast/internal/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 1 << 20 // base64 audio chunks dominate inbound traffic
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// inboundMessage is the envelope for every text frame a client sends. Binary
// frames are raw audio and bypass JSON entirely.
type inboundMessage struct {
	Type           string `json:"type"`
	LectureID      string `json:"lectureId"`
	AudioData      string `json:"audioData"`
	QuizID         string `json:"quizId"`
	SelectedOption *int   `json:"selectedOption"`
}

// ServeWS authenticates the handshake and upgrades it to a websocket. Auth
// failures are rejected with an HTTP status before the upgrade, so clients
// with bad tokens never hold an open socket.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	identity, err := g.Authenticate(handshakeToken(r))
	if err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, auth.ErrAccountInactive) {
			status = http.StatusForbidden
		}
		http.Error(w, "unauthorized", status)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("gateway: websocket upgrade: %v", err)
		return
	}

	c := newConn(identity)
	g.register(c)
	log.Printf("gateway: %s %s connected (%s)", identity.Role, identity.UserID, c.ID)

	go g.writePump(ws, c)
	g.readPump(ws, c)
}

func handshakeToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	header := r.Header.Get("Authorization")
	return strings.TrimPrefix(header, "Bearer ")
}

func (g *Gateway) readPump(ws *websocket.Conn, c *Conn) {
	defer func() {
		g.Leave(c)
		g.unregister(c)
		c.Close()
		_ = ws.Close()
		log.Printf("gateway: %s disconnected (%s)", c.Identity.UserID, c.ID)
	}()

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("gateway: read from %s: %v", c.ID, err)
			}
			return
		}

		if msgType == websocket.BinaryMessage {
			g.HandleAudio(c, data)
			continue
		}

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.Send(session.ErrorPayload("Malformed message"))
			continue
		}
		g.handleMessage(c, msg)
	}
}

func (g *Gateway) handleMessage(c *Conn, msg inboundMessage) {
	switch msg.Type {
	case "join-lecture":
		if err := g.JoinLecture(c, msg.LectureID); err != nil {
			log.Printf("gateway: join lecture %s by %s: %v", msg.LectureID, c.Identity.UserID, err)
			c.Send(session.ErrorPayload(errorMessage(err)))
		}

	case "audio-chunk":
		frame, err := base64.StdEncoding.DecodeString(msg.AudioData)
		if err != nil {
			c.Send(session.ErrorPayload("Malformed audio chunk"))
			return
		}
		g.HandleAudio(c, frame)

	case "quiz-response":
		if msg.SelectedOption == nil {
			c.Send(session.ErrorPayload("Invalid option selected"))
			return
		}
		if err := g.HandleQuizResponse(c, msg.QuizID, *msg.SelectedOption); err != nil {
			c.Send(session.ErrorPayload(errorMessage(err)))
		}

	case "end-lecture":
		if err := g.HandleEndLecture(c); err != nil {
			c.Send(session.ErrorPayload(errorMessage(err)))
		}

	default:
		c.Send(session.ErrorPayload("Unknown message type"))
	}
}

func (g *Gateway) writePump(ws *websocket.Conn, c *Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = ws.Close()
	}()

	for {
		select {
		case payload := <-c.Out():
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.Done():
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
