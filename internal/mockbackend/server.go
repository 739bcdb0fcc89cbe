package mockbackend

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/edenward/carevoice/internal/domain"
)

// Server holds the canned data the mock serves. Conversations live in
// memory for the process lifetime.
type Server struct {
	hospitals []domain.Hospital

	mu       sync.Mutex
	sessions map[domain.SessionID]domain.HospitalID
}

func NewServer() *Server {
	return &Server{
		hospitals: []domain.Hospital{
			{ID: "stmarys", Name: "St. Mary's General", Address: "12 Harbor Rd", Phone: "+1 555 0101"},
			{ID: "northside", Name: "Northside Clinic", Address: "3 Elm St", Phone: "+1 555 0102"},
			{ID: "lakeview", Name: "Lakeview Medical Center", Address: "89 Lake Ave", Phone: "+1 555 0103"},
		},
		sessions: make(map[domain.SessionID]domain.HospitalID),
	}
}

func (s *Server) hospitalByID(id domain.HospitalID) (domain.Hospital, bool) {
	for _, h := range s.hospitals {
		if h.ID == id {
			return h, true
		}
	}
	return domain.Hospital{}, false
}

func (s *Server) handleHospitals(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"hospitals": s.hospitals})
}

func (s *Server) handleCreateSession(c *gin.Context) {
	var req struct {
		HospitalID domain.HospitalID `json:"hospital_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid request body"})
		return
	}
	h, ok := s.hospitalByID(req.HospitalID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": fmt.Sprintf("hospital %q not found", req.HospitalID)})
		return
	}

	id := domain.SessionID(uuid.NewString())
	s.mu.Lock()
	s.sessions[id] = h.ID
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"session_id":    id,
		"hospital_name": h.Name,
	})
}

func (s *Server) handleMessage(c *gin.Context) {
	var req struct {
		SessionID  domain.SessionID  `json:"session_id"`
		HospitalID domain.HospitalID `json:"hospital_id"`
		Message    string            `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid request body"})
		return
	}

	s.mu.Lock()
	_, known := s.sessions[req.SessionID]
	s.mu.Unlock()
	if !known {
		c.JSON(http.StatusNotFound, gin.H{"detail": "unknown session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"response":    scriptedReply(req.Message),
		"intent":      scriptedIntent(req.Message),
		"agent_used":  "booking-agent",
		"system_type": "mock",
	})
}

func scriptedIntent(message string) string {
	m := strings.ToLower(message)
	switch {
	case strings.Contains(m, "book"), strings.Contains(m, "appointment"):
		return "book_appointment"
	case strings.Contains(m, "hour"), strings.Contains(m, "open"):
		return "opening_hours"
	default:
		return "general_inquiry"
	}
}

func scriptedReply(message string) string {
	switch scriptedIntent(message) {
	case "book_appointment":
		return "I can book that for you. Dr. Lin has an opening on Tuesday at 10:30."
	case "opening_hours":
		return "We are open Monday to Friday, 8:00 to 18:00."
	default:
		return "Thanks for your message. How else can I help you today?"
	}
}

func (s *Server) handleSpeechToText(c *gin.Context) {
	file, _, err := c.Request.FormFile("audio_file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "audio_file missing"})
		return
	}
	defer file.Close()
	n, _ := io.Copy(io.Discard, file)
	log.Info().Str("module", "mockbackend").Int64("bytes", n).Msg("speech-to-text upload")

	c.JSON(http.StatusOK, gin.H{
		"transcribed_text": "I would like to book an appointment.",
	})
}

func (s *Server) handleTextToSpeech(c *gin.Context) {
	var req struct {
		Text    string `json:"text"`
		VoiceID string `json:"voice_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid request body"})
		return
	}
	// Not real speech, just recognizable bytes for the wire path.
	c.Data(http.StatusOK, "audio/mpeg", fakeMP3(req.Text))
}

// fakeMP3 returns a deterministic placeholder payload. Clients treat it
// as opaque; only decoders would notice.
func fakeMP3(text string) []byte {
	return []byte("MOCKMP3:" + text)
}
