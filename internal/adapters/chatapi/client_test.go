package chatapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHospitals(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat/hospitals" || r.Method != http.MethodGet {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"hospitals":[{"id":"h1","name":"City General","address":"123 Main St","phone":"+1-555-0123"}]}`))
	}))
	defer srv.Close()

	got, err := NewClient(srv.URL).Hospitals(context.Background())
	if err != nil {
		t.Fatalf("Hospitals() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != "h1" || got[0].Name != "City General" {
		t.Fatalf("unexpected hospitals: %+v", got)
	}
}

func TestCreateSessionAndSendMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/chat/session":
			var req map[string]string
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req["hospital_id"] != "h1" {
				t.Errorf("bad session request: %v %v", req, err)
			}
			_, _ = w.Write([]byte(`{"session_id":"s1","hospital_name":"City General"}`))
		case "/api/chat/message":
			var req map[string]string
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req["session_id"] != "s1" || req["message"] != "hello" {
				t.Errorf("bad message request: %v %v", req, err)
			}
			_, _ = w.Write([]byte(`{"response":"Hi there","intent":"greeting","agent_used":"triage","system_type":"multi_agent"}`))
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	sess, err := c.CreateSession(context.Background(), "h1")
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if sess.ID != "s1" || sess.Name != "City General" {
		t.Fatalf("unexpected session: %+v", sess)
	}

	reply, err := c.SendMessage(context.Background(), sess, "hello")
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if reply.Response != "Hi there" || reply.Intent != "greeting" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}

func TestSpeechToTextUploadsMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		f, hdr, err := r.FormFile("audio_file")
		if err != nil {
			t.Errorf("form file: %v", err)
			http.Error(w, "no file", http.StatusBadRequest)
			return
		}
		defer f.Close()
		if hdr.Filename != "recording.wav" {
			t.Errorf("filename = %q", hdr.Filename)
		}
		_, _ = w.Write([]byte(`{"transcribed_text":"book an appointment"}`))
	}))
	defer srv.Close()

	text, err := NewClient(srv.URL).SpeechToText(context.Background(), []byte("RIFFxxxx"))
	if err != nil {
		t.Fatalf("SpeechToText() error = %v", err)
	}
	if text != "book an appointment" {
		t.Fatalf("text = %q", text)
	}
}

func TestTextToSpeechReturnsAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req["text"] == "" || req["voice_id"] == "" {
			t.Errorf("bad tts request: %v %v", req, err)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte{0xFF, 0xFB, 0x90})
	}))
	defer srv.Close()

	audio, err := NewClient(srv.URL).TextToSpeech(context.Background(), "Hello", "21m00Tcm4TlvDq8ikWAM")
	if err != nil {
		t.Fatalf("TextToSpeech() error = %v", err)
	}
	if len(audio) != 3 || audio[0] != 0xFF {
		t.Fatalf("unexpected audio: %v", audio)
	}
}

func TestErrorDetailSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"voice feature requires subscription"}`, http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).TextToSpeech(context.Background(), "Hello", "v1")
	if err == nil || !strings.Contains(err.Error(), "voice feature requires subscription") {
		t.Fatalf("error = %v, want detail surfaced", err)
	}
}
