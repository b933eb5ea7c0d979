package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/capto/internal/common"
	"github.com/ternarybob/capto/internal/interfaces"
	"github.com/ternarybob/capto/internal/models"
	"github.com/ternarybob/capto/internal/services/events"
)

func dialTestSocket(t *testing.T, handler *WebSocketHandler) (*httptest.Server, *websocket.Conn) {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))

	// Convert http:// to ws://
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		server.Close()
		t.Fatalf("Failed to connect: %v", err)
	}
	return server, conn
}

// readFrame reads the next frame, failing the test on error or timeout
func readFrame(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("Failed to read frame: %v", err)
	}
	return msg
}

// decodeJobUpdate remarshals a frame payload into a JobUpdate
func decodeJobUpdate(t *testing.T, payload interface{}) JobUpdate {
	t.Helper()

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Failed to marshal payload: %v", err)
	}
	var update JobUpdate
	if err := json.Unmarshal(data, &update); err != nil {
		t.Fatalf("Failed to unmarshal payload: %v", err)
	}
	return update
}

func TestWebSocketHelloOnConnect(t *testing.T) {
	logger := arbor.NewLogger()
	handler := NewWebSocketHandler(nil, logger, &common.WebSocketConfig{})

	server, conn := dialTestSocket(t, handler)
	defer server.Close()
	defer conn.Close()

	msg := readFrame(t, conn)
	if msg.Type != "hello" {
		t.Fatalf("Expected hello frame first, got %q", msg.Type)
	}

	payload, ok := msg.Payload.(map[string]interface{})
	if !ok {
		t.Fatalf("Expected hello payload to be an object, got %T", msg.Payload)
	}
	instanceID, _ := payload["server_instance_id"].(string)
	if instanceID == "" {
		t.Error("Expected a server_instance_id in the hello frame")
	}
	version, _ := payload["version"].(string)
	if version == "" {
		t.Error("Expected a version in the hello frame")
	}

	if count := handler.ClientCount(); count != 1 {
		t.Errorf("Expected 1 connected client, got %d", count)
	}

	// Closing the connection must drain the registry.
	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for handler.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("Expected client count to drop to 0, still %d", handler.ClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}

	handler.mu.RLock()
	remainingMutexes := len(handler.clientMutex)
	handler.mu.RUnlock()
	if remainingMutexes != 0 {
		t.Errorf("Handler still has %d client mutexes after cleanup", remainingMutexes)
	}
}

func TestWebSocketBroadcastsJobEvents(t *testing.T) {
	logger := arbor.NewLogger()
	eventService := events.NewService(logger)
	handler := NewWebSocketHandler(eventService, logger, &common.WebSocketConfig{})

	server, conn := dialTestSocket(t, handler)
	defer server.Close()
	defer conn.Close()

	if msg := readFrame(t, conn); msg.Type != "hello" {
		t.Fatalf("Expected hello frame first, got %q", msg.Type)
	}

	job := models.DownloadJob{
		ID:          "capto_abc123",
		Platform:    models.PlatformYouTube,
		Phase:       models.PhaseCompleted,
		Progress:    100,
		Message:     "Download completed successfully!",
		Filename:    "clip.mp4",
		DownloadURL: "/api/download/capto_abc123/clip.mp4",
		UpdatedAt:   time.Now(),
	}
	err := eventService.PublishSync(context.Background(), interfaces.Event{
		Type:    interfaces.EventJobCompleted,
		Payload: job,
	})
	if err != nil {
		t.Fatalf("Failed to publish event: %v", err)
	}

	msg := readFrame(t, conn)
	if msg.Type != "job_completed" {
		t.Fatalf("Expected job_completed frame, got %q", msg.Type)
	}

	update := decodeJobUpdate(t, msg.Payload)
	if update.JobID != "capto_abc123" {
		t.Errorf("Expected job_id 'capto_abc123', got %q", update.JobID)
	}
	if update.Status != "completed" {
		t.Errorf("Expected status 'completed', got %q", update.Status)
	}
	if update.Progress != 100 {
		t.Errorf("Expected progress 100, got %d", update.Progress)
	}
	if update.DownloadURL != "/api/download/capto_abc123/clip.mp4" {
		t.Errorf("Unexpected download_url: %q", update.DownloadURL)
	}
}

func TestWebSocketThrottlesProgressButNotTerminal(t *testing.T) {
	logger := arbor.NewLogger()
	eventService := events.NewService(logger)

	// One progress frame per minute: the second mid-flight snapshot must
	// be dropped while the terminal snapshot still goes through.
	handler := NewWebSocketHandler(eventService, logger, &common.WebSocketConfig{ThrottleMs: 60000})

	server, conn := dialTestSocket(t, handler)
	defer server.Close()
	defer conn.Close()

	if msg := readFrame(t, conn); msg.Type != "hello" {
		t.Fatalf("Expected hello frame first, got %q", msg.Type)
	}

	publish := func(phase models.JobPhase, progress int) {
		err := eventService.PublishSync(context.Background(), interfaces.Event{
			Type: interfaces.EventJobProgress,
			Payload: models.DownloadJob{
				ID:       "capto_abc123",
				Phase:    phase,
				Progress: progress,
			},
		})
		if err != nil {
			t.Fatalf("Failed to publish event: %v", err)
		}
	}

	publish(models.PhaseDownloading, 25)
	publish(models.PhaseDownloading, 55)
	publish(models.PhaseCompleted, 100)

	first := decodeJobUpdate(t, readFrame(t, conn).Payload)
	if first.Progress != 25 {
		t.Errorf("Expected first frame progress 25, got %d", first.Progress)
	}

	second := decodeJobUpdate(t, readFrame(t, conn).Payload)
	if second.Status != "completed" || second.Progress != 100 {
		t.Errorf("Expected throttled stream to skip to the terminal frame, got status %q progress %d",
			second.Status, second.Progress)
	}
}

func TestWebSocketFanOutToMultipleClients(t *testing.T) {
	logger := arbor.NewLogger()
	handler := NewWebSocketHandler(nil, logger, &common.WebSocketConfig{})

	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	numSubscribers := 3
	received := make([][]JobUpdate, numSubscribers)
	var receivedMutex sync.Mutex

	var wg sync.WaitGroup
	wg.Add(numSubscribers)

	initialGoroutines := runtime.NumGoroutine()

	subscribers := make([]*websocket.Conn, numSubscribers)
	for i := 0; i < numSubscribers; i++ {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			t.Fatalf("Failed to connect subscriber %d: %v", i, err)
		}
		subscribers[i] = conn

		subscriberIdx := i
		go func() {
			defer wg.Done()
			defer conn.Close()

			conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			for {
				var msg WSMessage
				if err := conn.ReadJSON(&msg); err != nil {
					// Expected when the connection closes or the deadline hits
					return
				}
				if msg.Type != "job_progress" {
					continue
				}

				data, err := json.Marshal(msg.Payload)
				if err != nil {
					continue
				}
				var update JobUpdate
				if err := json.Unmarshal(data, &update); err != nil {
					continue
				}

				receivedMutex.Lock()
				received[subscriberIdx] = append(received[subscriberIdx], update)
				receivedMutex.Unlock()
			}
		}()
	}

	// Wait for all subscribers to connect
	deadline := time.Now().Add(2 * time.Second)
	for handler.ClientCount() != numSubscribers {
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d connected clients, got %d", numSubscribers, handler.ClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}

	progressSteps := []int{20, 35, 50, 80}
	for _, progress := range progressSteps {
		handler.BroadcastJobUpdate("job_progress", models.DownloadJob{
			ID:       "capto_abc123",
			Phase:    models.PhaseDownloading,
			Progress: progress,
		})
	}

	// Allow time for delivery
	time.Sleep(500 * time.Millisecond)

	for _, conn := range subscribers {
		conn.Close()
	}

	doneChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneChan)
	}()
	select {
	case <-doneChan:
	case <-time.After(2 * time.Second):
		t.Error("Timeout waiting for subscribers to finish")
	}

	receivedMutex.Lock()
	defer receivedMutex.Unlock()

	for i, updates := range received {
		if len(updates) != len(progressSteps) {
			t.Errorf("Subscriber %d received %d updates, expected %d", i, len(updates), len(progressSteps))
			continue
		}
		// Per-connection writes are serialized, so order is preserved.
		for j, progress := range progressSteps {
			if updates[j].Progress != progress {
				t.Errorf("Subscriber %d update %d: expected progress %d, got %d", i, j, progress, updates[j].Progress)
			}
		}
	}

	// Wait a bit for connection goroutines to clean up
	time.Sleep(100 * time.Millisecond)

	if diff := runtime.NumGoroutine() - initialGoroutines; diff > 2 {
		t.Errorf("Potential goroutine leak detected: %d goroutines leaked", diff)
	}

	handler.mu.RLock()
	remainingClients := len(handler.clients)
	remainingMutexes := len(handler.clientMutex)
	handler.mu.RUnlock()

	if remainingClients != 0 {
		t.Errorf("Handler still has %d clients after cleanup", remainingClients)
	}
	if remainingMutexes != 0 {
		t.Errorf("Handler still has %d client mutexes after cleanup", remainingMutexes)
	}
}
