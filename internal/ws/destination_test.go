package ws

import "testing"

func TestParseDestinationExplicitForm(t *testing.T) {
	q, err := ParseDestination("/user/7/queue/messages", 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q != QueueMessages {
		t.Fatalf("expected messages queue, got %q", q)
	}
}

func TestParseDestinationBareForm(t *testing.T) {
	q, err := ParseDestination("/user/queue/notifications", 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q != QueueNotifications {
		t.Fatalf("expected notifications queue, got %q", q)
	}
}

func TestParseDestinationRejectsOtherUsersQueue(t *testing.T) {
	if _, err := ParseDestination("/user/8/queue/messages", 7); err == nil {
		t.Fatalf("expected error for a queue the caller does not own")
	}
}

func TestParseDestinationRejectsUnknownQueue(t *testing.T) {
	for _, dest := range []string{
		"/user/7/queue/presence",
		"/user/queue/presence",
		"/topic/rooms/1",
		"/user/abc/queue/messages",
		"",
	} {
		if _, err := ParseDestination(dest, 7); err == nil {
			t.Fatalf("expected error for destination %q", dest)
		}
	}
}

func TestDestinationForRoundTrips(t *testing.T) {
	dest := DestinationFor(QueueNotifications, 5)
	if dest != "/user/5/queue/notifications" {
		t.Fatalf("unexpected destination %q", dest)
	}
	q, err := ParseDestination(dest, 5)
	if err != nil || q != QueueNotifications {
		t.Fatalf("round trip failed: %q %v", q, err)
	}
}
