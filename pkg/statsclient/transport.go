package statsclient

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	snapshotPath = "/api/v1/admin/stats"
	streamPath   = "/api/v1/admin/stats/stream"

	maxFrameSize = 1 << 20
)

// Snapshot is the dashboard counters as served by the API.
type Snapshot struct {
	PendingPayments      int       `json:"pendingPayments"`
	PendingConfirmations int       `json:"pendingConfirmations"`
	TotalStaff           int       `json:"totalStaff"`
	TodayPayments        int       `json:"todayPayments"`
	TotalTickets         int       `json:"totalTickets"`
	AvailableTickets     int       `json:"availableTickets"`
	CarsParked           int       `json:"carsParked"`
	PaidTickets          int       `json:"paidTickets"`
	Timestamp            time.Time `json:"timestamp"`
}

// StreamHandler receives stream callbacks; nil fields are skipped.
// Opened fires once the server accepted the stream, Frame for every
// snapshot and Alive for every frame of any kind, heartbeats included.
type StreamHandler struct {
	Opened func()
	Frame  func(*Snapshot)
	Alive  func()
}

func (h StreamHandler) opened() {
	if h.Opened != nil {
		h.Opened()
	}
}

func (h StreamHandler) frame(s *Snapshot) {
	if h.Frame != nil {
		h.Frame(s)
	}
}

func (h StreamHandler) alive() {
	if h.Alive != nil {
		h.Alive()
	}
}

// Transport talks to the stats API. Stream blocks until the stream ends
// or ctx is cancelled.
type Transport interface {
	Fetch(ctx context.Context) (*Snapshot, error)
	Stream(ctx context.Context, h StreamHandler) error
}

// ErrStreamClosed is returned when the server ends the stream.
var ErrStreamClosed = errors.New("stats stream closed by server")

type HTTPTransport struct {
	baseURL string
	token   string

	fetch  *http.Client
	stream *http.Client
}

// NewHTTPTransport: token, if set, is sent as a Bearer token.
func NewHTTPTransport(baseURL, token string) *HTTPTransport {
	return &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		fetch:   &http.Client{Timeout: 10 * time.Second},
		stream:  &http.Client{},
	}
}

func (t *HTTPTransport) newRequest(ctx context.Context, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}
	req.Header.Set("Cache-Control", "no-cache")
	return req, nil
}

func (t *HTTPTransport) Fetch(ctx context.Context) (*Snapshot, error) {
	req, err := t.newRequest(ctx, snapshotPath)
	if err != nil {
		return nil, err
	}

	resp, err := t.fetch.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch stats: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch stats: %s", resp.Status)
	}

	var snap Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode stats: %w", err)
	}
	return &snap, nil
}

// Stream has no read deadline of its own; the client cancels ctx when the
// stream goes silent.
func (t *HTTPTransport) Stream(ctx context.Context, h StreamHandler) error {
	req, err := t.newRequest(ctx, streamPath)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := t.stream.Do(req)
	if err != nil {
		return fmt.Errorf("failed to open stats stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to open stats stream: %s", resp.Status)
	}
	h.opened()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)

	var event string
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			dispatch(event, data.String(), h)
			event = ""
			data.Reset()
		case strings.HasPrefix(line, ":"):
			// комментарий keep-alive
			h.alive()
		case strings.HasPrefix(line, "event:"):
			event = field(line, "event:")
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(field(line, "data:"))
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stats stream broken: %w", err)
	}
	return ErrStreamClosed
}

func field(line, prefix string) string {
	return strings.TrimPrefix(strings.TrimPrefix(line, prefix), " ")
}

func dispatch(event, data string, h StreamHandler) {
	if data == "" {
		return
	}
	h.alive()

	switch event {
	case "", "stats":
		var snap Snapshot
		if err := json.Unmarshal([]byte(data), &snap); err != nil {
			logrus.WithError(err).Warn("Skipping malformed stats frame")
			return
		}
		h.frame(&snap)
	case "error":
		logrus.WithField("frame", data).Warn("Server failed to calculate stats")
	}
}
