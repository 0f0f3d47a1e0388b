package subchannel

import "testing"

type recordingSink struct {
	quality, speed int
	encoding       string
	refreshMs      int
	sharingAllowed bool
}

func (s *recordingSink) SetQualitySpeed(quality, speed int) {
	if quality >= 0 {
		s.quality = quality
	}
	if speed >= 0 {
		s.speed = speed
	}
}
func (s *recordingSink) SetPreferredEncoding(name string)  { s.encoding = name }
func (s *recordingSink) SetAutoRefreshDelayMs(delayMs int) { s.refreshMs = delayMs }
func (s *recordingSink) SetSharingAllowed(allowed bool)    { s.sharingAllowed = allowed }

func TestControlAppliesQualityAndSpeedIndependently(t *testing.T) {
	sink := &recordingSink{quality: 50, speed: 50}
	c := NewControl(sink)

	if err := c.Apply(ControlQuality, 80); err != nil {
		t.Fatalf("Apply quality: %v", err)
	}
	if sink.quality != 80 || sink.speed != 50 {
		t.Fatalf("sink = %+v, want quality=80 speed unchanged", sink)
	}

	if err := c.Apply(ControlSpeed, 90); err != nil {
		t.Fatalf("Apply speed: %v", err)
	}
	if sink.speed != 90 || sink.quality != 80 {
		t.Fatalf("sink = %+v, want speed=90 quality unchanged", sink)
	}
}

func TestControlRejectsOutOfRangeValues(t *testing.T) {
	c := NewControl(&recordingSink{})
	if err := c.Apply(ControlQuality, 101); err != ErrInvalidControlArgument {
		t.Fatalf("Apply err = %v, want ErrInvalidControlArgument", err)
	}
	if err := c.Apply(ControlSpeed, -5); err != ErrInvalidControlArgument {
		t.Fatalf("Apply err = %v, want ErrInvalidControlArgument", err)
	}
}

func TestControlAppliesEncodingRefreshAndSharePolicy(t *testing.T) {
	sink := &recordingSink{}
	c := NewControl(sink)

	if err := c.Apply(ControlEncoding, "vp9"); err != nil {
		t.Fatalf("Apply encoding: %v", err)
	}
	if sink.encoding != "vp9" {
		t.Fatalf("encoding = %q, want vp9", sink.encoding)
	}

	if err := c.Apply(ControlRefresh, 250); err != nil {
		t.Fatalf("Apply refresh: %v", err)
	}
	if sink.refreshMs != 250 {
		t.Fatalf("refreshMs = %d, want 250", sink.refreshMs)
	}

	if err := c.Apply(ControlSharePolicy, true); err != nil {
		t.Fatalf("Apply share-policy: %v", err)
	}
	if !sink.sharingAllowed {
		t.Fatal("expected sharingAllowed = true")
	}
}

func TestControlRejectsUnknownCommand(t *testing.T) {
	c := NewControl(&recordingSink{})
	if err := c.Apply(ControlCommand("bogus"), 1); err != ErrUnknownControlCommand {
		t.Fatalf("Apply err = %v, want ErrUnknownControlCommand", err)
	}
}

func TestControlRejectsWrongArgumentType(t *testing.T) {
	c := NewControl(&recordingSink{})
	if err := c.Apply(ControlQuality, "not-an-int"); err != ErrInvalidControlArgument {
		t.Fatalf("Apply err = %v, want ErrInvalidControlArgument", err)
	}
}
