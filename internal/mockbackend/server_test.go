package mockbackend

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/edenward/carevoice/internal/protocol"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	r := SetupRouter(RouterConfig{Mode: "release", Secret: "test-secret"}, NewServer())
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func TestHospitalsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/api/chat/hospitals")
	if err != nil {
		t.Fatal(err)
	}
	var out struct {
		Hospitals []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"hospitals"`
	}
	decodeBody(t, resp, &out)
	if len(out.Hospitals) != 3 {
		t.Fatalf("hospitals = %d, want 3", len(out.Hospitals))
	}
	if out.Hospitals[0].ID != "stmarys" {
		t.Fatalf("first hospital = %q", out.Hospitals[0].ID)
	}
}

func TestSessionAndMessageFlow(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/chat/session", map[string]string{"hospital_id": "northside"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create session status = %d", resp.StatusCode)
	}
	var sess struct {
		SessionID    string `json:"session_id"`
		HospitalName string `json:"hospital_name"`
	}
	decodeBody(t, resp, &sess)
	if sess.SessionID == "" || sess.HospitalName != "Northside Clinic" {
		t.Fatalf("session = %+v", sess)
	}

	resp = postJSON(t, ts.URL+"/api/chat/message", map[string]string{
		"session_id":  sess.SessionID,
		"hospital_id": "northside",
		"message":     "I want to book an appointment",
	})
	var reply struct {
		Response string `json:"response"`
		Intent   string `json:"intent"`
	}
	decodeBody(t, resp, &reply)
	if reply.Intent != "book_appointment" {
		t.Fatalf("intent = %q", reply.Intent)
	}
	if !strings.Contains(reply.Response, "Dr. Lin") {
		t.Fatalf("response = %q", reply.Response)
	}
}

func TestUnknownHospitalRejected(t *testing.T) {
	ts := newTestServer(t)
	resp := postJSON(t, ts.URL+"/api/chat/session", map[string]string{"hospital_id": "nowhere"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	var out struct {
		Detail string `json:"detail"`
	}
	decodeBody(t, resp, &out)
	if !strings.Contains(out.Detail, "nowhere") {
		t.Fatalf("detail = %q", out.Detail)
	}
}

func TestSpeechEndpoints(t *testing.T) {
	ts := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("audio_file", "recording.wav")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte("RIFF fake wav"))
	mw.Close()

	resp, err := http.Post(ts.URL+"/api/v1/speech-to-text", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatal(err)
	}
	var stt struct {
		TranscribedText string `json:"transcribed_text"`
	}
	decodeBody(t, resp, &stt)
	if stt.TranscribedText == "" {
		t.Fatal("empty transcription")
	}

	resp = postJSON(t, ts.URL+"/api/v1/text-to-speech", map[string]string{"text": "hello", "voice_id": ""})
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "audio/mpeg" {
		t.Fatalf("content type = %q", ct)
	}
}

// TestVoiceModeConversation runs one complete voice turn over the
// websocket: init, audio upload, audio-end, transcription, response.
func TestVoiceModeConversation(t *testing.T) {
	ts := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws/voice-mode"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	send := func(msg any) {
		t.Helper()
		b, err := protocol.Encode(msg)
		if err != nil {
			t.Fatal(err)
		}
		if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
			t.Fatal(err)
		}
	}
	recv := func() any {
		t.Helper()
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		msg, err := protocol.ParseServerMessage(data)
		if err != nil {
			t.Fatalf("parse %s: %v", data, err)
		}
		return msg
	}

	send(protocol.NewInit("stmarys", ""))
	ready, ok := recv().(protocol.Ready)
	if !ok || ready.SessionID == "" {
		t.Fatalf("expected ready with session id, got %+v", ready)
	}

	for i := 0; i < 3; i++ {
		if err := conn.WriteMessage(websocket.BinaryMessage, []byte{0, 1, 2, 3}); err != nil {
			t.Fatal(err)
		}
	}
	send(protocol.NewAudioEnd())

	tr, ok := recv().(protocol.Transcription)
	if !ok || tr.Text == "" {
		t.Fatalf("expected transcription, got %+v", tr)
	}
	resp, ok := recv().(protocol.Response)
	if !ok || resp.Text == "" {
		t.Fatalf("expected response, got %+v", resp)
	}
	audio, err := base64.StdEncoding.DecodeString(resp.Audio)
	if err != nil {
		t.Fatalf("audio not base64: %v", err)
	}
	if !bytes.HasPrefix(audio, []byte("MOCKMP3:")) {
		t.Fatalf("audio payload = %q", audio)
	}
}

func TestVoiceModeRejectsUnknownHospital(t *testing.T) {
	ts := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws/voice-mode"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	b, _ := protocol.Encode(protocol.NewInit("nowhere", ""))
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		t.Fatal(err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	msg, err := protocol.ParseServerMessage(data)
	if err != nil {
		t.Fatal(err)
	}
	em, ok := msg.(protocol.ErrorMessage)
	if !ok || !strings.Contains(em.Detail, "not found") {
		t.Fatalf("expected error message, got %+v", msg)
	}
}
