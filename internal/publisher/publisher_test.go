package publisher

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/klimeurt/activity-exporter/internal/logging"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

func TestPublisherCreation(t *testing.T) {
	tests := []struct {
		name          string
		url           func(*natsserver.Server) string
		needServer    bool
		expectError   bool
		errorContains string
	}{
		{
			name:       "running server",
			url:        func(s *natsserver.Server) string { return s.ClientURL() },
			needServer: true,
		},
		{
			name:          "unreachable server",
			url:           func(*natsserver.Server) string { return "nats://127.0.0.1:1" },
			expectError:   true,
			errorContains: "failed to connect to NATS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var server *natsserver.Server
			if tt.needServer {
				server = runMockNATSServer()
				defer server.Shutdown()
			}

			p, err := New(tt.url(server), "repo.activity.exported", logging.Discard())

			if tt.expectError {
				if err == nil {
					p.Close()
					t.Fatal("New() expected error, got nil")
				}
				if !strings.Contains(err.Error(), tt.errorContains) {
					t.Errorf("New() error = %v, want to contain %v", err, tt.errorContains)
				}
				return
			}

			if err != nil {
				t.Fatalf("New() unexpected error: %v", err)
			}
			defer p.Close()

			if !p.nc.IsConnected() {
				t.Error("NATS connection should be established")
			}
		})
	}
}

func TestPublish(t *testing.T) {
	server := runMockNATSServer()
	defer server.Shutdown()

	p, err := New(server.ClientURL(), "repo.activity.exported", logging.Discard())
	if err != nil {
		t.Fatalf("Failed to create publisher: %v", err)
	}
	defer p.Close()

	// Subscribe on a separate connection like a real consumer
	nc, err := nats.Connect(server.ClientURL())
	if err != nil {
		t.Fatalf("Failed to connect subscriber: %v", err)
	}
	defer nc.Close()

	messages := make(chan *nats.Msg, 1)
	sub, err := nc.ChanSubscribe("repo.activity.exported", messages)
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	defer func() { _ = sub.Unsubscribe() }()
	if err := nc.Flush(); err != nil {
		t.Fatalf("Failed to flush subscriber: %v", err)
	}

	generated := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	err = p.Publish(ExportCompleted{
		Owner:              "octo",
		Repo:               "hello",
		GeneratedAt:        generated,
		TotalCommits:       42,
		ActiveContributors: 3,
		BusFactor:          1,
		Files:              []string{"data/commit_frequency_by_author.csv"},
	})
	if err != nil {
		t.Fatalf("Publish() unexpected error: %v", err)
	}

	select {
	case msg := <-messages:
		var ev ExportCompleted
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			t.Fatalf("Failed to unmarshal message: %v", err)
		}
		if ev.Owner != "octo" || ev.Repo != "hello" {
			t.Errorf("event repo = %s/%s", ev.Owner, ev.Repo)
		}
		if ev.TotalCommits != 42 || ev.ActiveContributors != 3 || ev.BusFactor != 1 {
			t.Errorf("event counters = %+v", ev)
		}
		if !ev.GeneratedAt.Equal(generated) {
			t.Errorf("GeneratedAt = %v, want %v", ev.GeneratedAt, generated)
		}
		if len(ev.Files) != 1 {
			t.Errorf("Files = %v", ev.Files)
		}

	case <-time.After(5 * time.Second):
		t.Fatal("Timeout waiting for published message")
	}
}

func TestPublishClosedConnection(t *testing.T) {
	server := runMockNATSServer()
	defer server.Shutdown()

	p, err := New(server.ClientURL(), "repo.activity.exported", logging.Discard())
	if err != nil {
		t.Fatalf("Failed to create publisher: %v", err)
	}
	p.Close()

	if !p.nc.IsClosed() {
		t.Error("NATS connection should be closed after Close()")
	}

	err = p.Publish(ExportCompleted{Owner: "octo", Repo: "hello"})
	if err == nil {
		t.Fatal("Expected error publishing on a closed connection")
	}
	if !strings.Contains(err.Error(), "failed to publish to NATS") {
		t.Errorf("unexpected error: %v", err)
	}
}

// Test helper functions

func runMockNATSServer() *natsserver.Server {
	opts := &natsserver.Options{
		Host: "127.0.0.1",
		Port: -1, // Use random port
	}

	server, err := natsserver.NewServer(opts)
	if err != nil {
		panic(err)
	}

	go server.Start()

	if !server.ReadyForConnections(5 * time.Second) {
		panic("NATS server not ready")
	}

	return server
}
