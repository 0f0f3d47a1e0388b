package main

import "testing"

func TestHandleRequestUnknownCommand(t *testing.T) {
	c := &controlServer{display: ":100"}
	resp := c.handleRequest(controlRequest{Command: "bogus"})
	if resp.OK {
		t.Fatalf("expected failure for unknown command, got %+v", resp)
	}
}

func TestApplyControlRejectsUnknownCommand(t *testing.T) {
	c := &controlServer{display: ":100"}
	if err := c.applyControl("bogus", "1"); err == nil {
		t.Fatal("expected error for unknown control command")
	}
}

func TestApplyControlRejectsMalformedInteger(t *testing.T) {
	c := &controlServer{display: ":100"}
	if err := c.applyControl("quality", "not-a-number"); err == nil {
		t.Fatal("expected error for malformed integer argument")
	}
}
