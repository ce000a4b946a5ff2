package auth

import (
	"testing"
	"time"
)

func TestEvents_SubscribeAndPublish(t *testing.T) {
	events := NewEvents()

	ch, cancel := events.Subscribe("user-1")
	defer cancel()

	events.Publish(SessionEvent{Type: SessionEventSignedIn, UserID: "user-1"})

	select {
	case evt := <-ch:
		if evt.Type != SessionEventSignedIn {
			t.Errorf("イベント種別 = %q, want %q", evt.Type, SessionEventSignedIn)
		}
		if evt.UserID != "user-1" {
			t.Errorf("UserID = %q, want %q", evt.UserID, "user-1")
		}
	case <-time.After(time.Second):
		t.Fatal("イベントが配信されなかった")
	}
}

func TestEvents_PublishOnlyToMatchingUser(t *testing.T) {
	events := NewEvents()

	chA, cancelA := events.Subscribe("user-a")
	defer cancelA()
	chB, cancelB := events.Subscribe("user-b")
	defer cancelB()

	events.Publish(SessionEvent{Type: SessionEventSignedOut, UserID: "user-a"})

	select {
	case <-chA:
	case <-time.After(time.Second):
		t.Fatal("user-aにイベントが配信されなかった")
	}

	select {
	case evt := <-chB:
		t.Errorf("user-bに他ユーザーのイベントが配信された: %+v", evt)
	default:
	}
}

func TestEvents_CancelRemovesSubscriberAndClosesChannel(t *testing.T) {
	events := NewEvents()

	ch, cancel := events.Subscribe("user-1")
	if events.SubscriberCount("user-1") != 1 {
		t.Fatalf("購読者数 = %d, want 1", events.SubscriberCount("user-1"))
	}

	cancel()

	if events.SubscriberCount("user-1") != 0 {
		t.Errorf("解除後の購読者数 = %d, want 0", events.SubscriberCount("user-1"))
	}

	if _, ok := <-ch; ok {
		t.Error("解除後のチャネルはクローズされるべき")
	}

	// cancelは冪等
	cancel()
}

func TestEvents_PublishDoesNotBlockOnFullBuffer(t *testing.T) {
	events := NewEvents()

	_, cancel := events.Subscribe("user-1")
	defer cancel()

	// バッファ（8件）を超えて配信してもブロックしない
	done := make(chan struct{})
	go func() {
		for i := 0; i < 20; i++ {
			events.Publish(SessionEvent{Type: SessionEventSignedIn, UserID: "user-1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publishが受信されない購読者でブロックした")
	}
}

func TestEvents_MultipleSubscribersSameUser(t *testing.T) {
	events := NewEvents()

	ch1, cancel1 := events.Subscribe("user-1")
	defer cancel1()
	ch2, cancel2 := events.Subscribe("user-1")
	defer cancel2()

	events.Publish(SessionEvent{Type: SessionEventSignedIn, UserID: "user-1"})

	for i, ch := range []<-chan SessionEvent{ch1, ch2} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatalf("購読者%dにイベントが配信されなかった", i+1)
		}
	}
}
