package mockbackend

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/edenward/carevoice/internal/domain"
	"github.com/edenward/carevoice/internal/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// voiceConn is one mock voice-mode conversation: it answers init with
// ready, swallows audio frames and closes every utterance with a
// transcription plus a spoken response.
type voiceConn struct {
	conn      *websocket.Conn
	sessionID string
	turnBytes int
}

func (s *Server) handleVoiceMode(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "mockbackend.voice").Msg("upgrade failed")
		return
	}
	vc := &voiceConn{conn: conn}
	defer conn.Close()
	vc.readLoop(s)
}

func (vc *voiceConn) readLoop(s *Server) {
	for {
		kind, data, err := vc.conn.ReadMessage()
		if err != nil {
			log.Info().Err(err).Str("module", "mockbackend.voice").Str("sid", vc.sessionID).Msg("voice connection closed")
			return
		}
		if kind == websocket.BinaryMessage {
			vc.turnBytes += len(data)
			continue
		}
		vc.handleControl(s, data)
	}
}

func (vc *voiceConn) handleControl(s *Server, data []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		vc.sendJSON(protocol.ErrorMessage{Type: protocol.TypeError, Detail: "bad json"})
		return
	}

	switch env.Type {
	case protocol.TypeInit:
		vc.handleInit(s, data)
	case protocol.TypeAudioEnd:
		vc.handleAudioEnd()
	case protocol.TypeOffer:
		// The mock cannot terminate media; chunked upload is the
		// supported path.
		vc.sendJSON(protocol.ErrorMessage{Type: protocol.TypeError, Detail: "webrtc unsupported by mock backend"})
	case protocol.TypeICECandidate:
		// Trickled before our error response lands; drop silently.
	default:
		vc.sendJSON(protocol.ErrorMessage{Type: protocol.TypeError, Detail: "unsupported message type"})
	}
}

func (vc *voiceConn) handleInit(s *Server, data []byte) {
	var msg protocol.Init
	if err := json.Unmarshal(data, &msg); err != nil {
		vc.sendJSON(protocol.ErrorMessage{Type: protocol.TypeError, Detail: "bad init"})
		return
	}
	if _, ok := s.hospitalByID(domain.HospitalID(msg.HospitalID)); !ok {
		vc.sendJSON(protocol.ErrorMessage{Type: protocol.TypeError, Detail: "hospital not found"})
		return
	}

	vc.sessionID = msg.SessionID
	if vc.sessionID == "" {
		vc.sessionID = uuid.NewString()
	}
	log.Info().Str("module", "mockbackend.voice").Str("sid", vc.sessionID).Str("hospital", msg.HospitalID).Msg("voice session ready")
	vc.sendJSON(protocol.Ready{Type: protocol.TypeReady, SessionID: vc.sessionID})
}

func (vc *voiceConn) handleAudioEnd() {
	log.Info().Str("module", "mockbackend.voice").Str("sid", vc.sessionID).Int("bytes", vc.turnBytes).Msg("utterance complete")
	vc.turnBytes = 0

	// Simulated recognition plus agent latency.
	time.Sleep(50 * time.Millisecond)

	transcript := "I would like to book an appointment."
	reply := scriptedReply(transcript)
	vc.sendJSON(protocol.Transcription{Type: protocol.TypeTranscription, Text: transcript})
	vc.sendJSON(protocol.Response{
		Type:  protocol.TypeResponse,
		Text:  reply,
		Audio: base64.StdEncoding.EncodeToString(fakeMP3(reply)),
	})
}

func (vc *voiceConn) sendJSON(msg any) {
	b, err := protocol.Encode(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "mockbackend.voice").Msg("encode")
		return
	}
	if err := vc.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
		log.Error().Err(err).Str("module", "mockbackend.voice").Msg("set deadline")
		return
	}
	if err := vc.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		log.Error().Err(err).Str("module", "mockbackend.voice").Msg("write")
	}
}
