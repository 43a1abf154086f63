package messaging

import (
	"context"
	"os"
	"testing"
	"time"
)

// setupTestClient connects to the NATS server in TEST_NATS_URL, or the
// local default. The test is skipped when no server is reachable.
func setupTestClient(t *testing.T) *NATSClient {
	t.Helper()

	cfg := DefaultNATSConfig()
	if url := os.Getenv("TEST_NATS_URL"); url != "" {
		cfg.URL = url
	}
	cfg.Name = "matcher-test"
	cfg.MaxReconnects = 0

	c, err := NewNATSClient(cfg)
	if err != nil {
		t.Skipf("NATS not available at %s: %v", cfg.URL, err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestRankedSubject(t *testing.T) {
	if got := RankedSubject("u-42"); got != "match.ranked.u-42" {
		t.Fatalf("RankedSubject = %q", got)
	}
}

func TestMatchRank_RequestReply(t *testing.T) {
	c := setupTestClient(t)

	err := c.SubscribeMatchRank("test", func(data []byte) []byte {
		return append([]byte("ranked:"), data...)
	})
	if err != nil {
		t.Fatalf("SubscribeMatchRank: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	reply, err := c.Request(ctx, SubjectMatchRank, []byte("u1"))
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if string(reply) != "ranked:u1" {
		t.Fatalf("reply = %q, want %q", reply, "ranked:u1")
	}
}

func TestRequest_NoResponders(t *testing.T) {
	c := setupTestClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := c.Request(ctx, "match.nobody.home", []byte("x")); err == nil {
		t.Fatal("expected an error with no subscribers")
	}
}

func TestRanked_PublishSubscribe(t *testing.T) {
	c := setupTestClient(t)

	got := make(chan []byte, 1)
	if err := c.SubscribeRanked("u7", func(data []byte) { got <- data }); err != nil {
		t.Fatalf("SubscribeRanked: %v", err)
	}
	if err := c.conn.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if err := c.PublishRanked("u7", []byte(`{"results":[]}`)); err != nil {
		t.Fatalf("PublishRanked: %v", err)
	}

	select {
	case data := <-got:
		if string(data) != `{"results":[]}` {
			t.Fatalf("payload = %s", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ranked broadcast")
	}

	if err := c.UnsubscribeRanked("u7"); err != nil {
		t.Fatalf("UnsubscribeRanked: %v", err)
	}
	if err := c.UnsubscribeRanked("u7"); err == nil {
		t.Fatal("second unsubscribe should fail")
	}
}

func TestProfileSubjects_QueueGroup(t *testing.T) {
	c := setupTestClient(t)

	upserts := make(chan []byte, 1)
	removes := make(chan []byte, 1)
	if err := c.SubscribeProfileUpsert("test", func(data []byte) { upserts <- data }); err != nil {
		t.Fatalf("SubscribeProfileUpsert: %v", err)
	}
	if err := c.SubscribeProfileRemove("test", func(data []byte) { removes <- data }); err != nil {
		t.Fatalf("SubscribeProfileRemove: %v", err)
	}
	if err := c.conn.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if err := c.Publish(SubjectProfileUpsert, []byte("up")); err != nil {
		t.Fatal(err)
	}
	if err := c.Publish(SubjectProfileRemove, []byte("rm")); err != nil {
		t.Fatal(err)
	}

	for name, ch := range map[string]chan []byte{"up": upserts, "rm": removes} {
		select {
		case data := <-ch:
			if string(data) != name {
				t.Fatalf("got %q, want %q", data, name)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", name)
		}
	}
}
