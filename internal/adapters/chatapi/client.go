// Package chatapi wraps the hospital chat backend's REST surface: the
// hospital directory, chat sessions and messages, and the speech
// round-trip endpoints. Plain request/response wrappers, no retries.
package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/edenward/carevoice/internal/domain"
)

const defaultTimeout = 30 * time.Second

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

type hospitalsResponse struct {
	Hospitals []domain.Hospital `json:"hospitals"`
}

type createSessionRequest struct {
	HospitalID domain.HospitalID `json:"hospital_id"`
}

type createSessionResponse struct {
	SessionID    domain.SessionID `json:"session_id"`
	HospitalName string           `json:"hospital_name"`
}

type sendMessageRequest struct {
	SessionID  domain.SessionID  `json:"session_id"`
	HospitalID domain.HospitalID `json:"hospital_id"`
	Message    string            `json:"message"`
}

// Reply is the assistant's answer to one chat message.
type Reply struct {
	Response   string `json:"response"`
	Intent     string `json:"intent"`
	AgentUsed  string `json:"agent_used"`
	SystemType string `json:"system_type"`
}

type transcriptionResponse struct {
	TranscribedText string `json:"transcribed_text"`
}

type ttsRequest struct {
	Text    string `json:"text"`
	VoiceID string `json:"voice_id"`
}

type apiError struct {
	Detail string `json:"detail"`
}

func (c *Client) Hospitals(ctx context.Context) ([]domain.Hospital, error) {
	var out hospitalsResponse
	if err := c.getJSON(ctx, "/api/chat/hospitals", &out); err != nil {
		return nil, err
	}
	return out.Hospitals, nil
}

func (c *Client) CreateSession(ctx context.Context, hospitalID domain.HospitalID) (*domain.ChatSession, error) {
	var out createSessionResponse
	if err := c.postJSON(ctx, "/api/chat/session", createSessionRequest{HospitalID: hospitalID}, &out); err != nil {
		return nil, err
	}
	return domain.NewChatSession(out.SessionID, hospitalID, out.HospitalName)
}

func (c *Client) SendMessage(ctx context.Context, sess *domain.ChatSession, message string) (*Reply, error) {
	var out Reply
	req := sendMessageRequest{SessionID: sess.ID, HospitalID: sess.Hospital, Message: message}
	if err := c.postJSON(ctx, "/api/chat/message", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SpeechToText uploads a WAV recording and returns its transcript.
func (c *Client) SpeechToText(ctx context.Context, wav []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("audio_file", "recording.wav")
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(wav); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/speech-to-text", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", decodeAPIError(resp)
	}

	var out transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode transcription: %w", err)
	}
	return out.TranscribedText, nil
}

// TextToSpeech synthesizes text and returns the raw audio payload.
func (c *Client) TextToSpeech(ctx context.Context, text, voiceID string) ([]byte, error) {
	b, err := json.Marshal(ttsRequest{Text: text, VoiceID: voiceID})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/text-to-speech", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.doJSON(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doJSON(req, out)
}

func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", req.URL.Path, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	var ae apiError
	if err := json.NewDecoder(resp.Body).Decode(&ae); err == nil && ae.Detail != "" {
		return fmt.Errorf("%s: %s", resp.Status, ae.Detail)
	}
	return fmt.Errorf("unexpected status %s", resp.Status)
}
