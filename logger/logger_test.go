package logger

import "testing"

func TestLogUsableBeforeInit(t *testing.T) {
	if Log == nil {
		t.Fatal("Log should never be nil")
	}
	Log.Infof("no-op logger accepts %s", "messages")
}

func TestInitUnknownLevelFallsBackToInfo(t *testing.T) {
	prev := Log
	defer func() { Log = prev }()

	Init("loud")
	if Log == nil {
		t.Fatal("Init should install a logger")
	}
	if Log.Desugar().Core().Enabled(-1) {
		t.Error("Expected debug to be disabled when falling back to info")
	}
}
