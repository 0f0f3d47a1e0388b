package subchannel

import "testing"

func TestNotificationsDedupWithinWindow(t *testing.T) {
	n := NewNotifications()
	if !n.ShouldDeliver(1) {
		t.Fatal("first delivery of a nid should be allowed")
	}
	if n.ShouldDeliver(1) {
		t.Fatal("repeat delivery within the dedup window should be suppressed")
	}
}

func TestNotificationsDistinctIDsBothDeliver(t *testing.T) {
	n := NewNotifications()
	if !n.ShouldDeliver(1) || !n.ShouldDeliver(2) {
		t.Fatal("distinct nids should both be delivered")
	}
}

func TestNotificationsCloseAllowsImmediateRedelivery(t *testing.T) {
	n := NewNotifications()
	n.ShouldDeliver(5)
	n.Close(5)
	if !n.ShouldDeliver(5) {
		t.Fatal("expected redelivery to be allowed after Close")
	}
}
