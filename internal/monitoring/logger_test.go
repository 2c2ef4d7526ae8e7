package monitoring

import "testing"

func TestSetLoggerNil(t *testing.T) {
	defer SetLogger(nil)

	called := false
	SetLogger(func(format string, v ...interface{}) { called = true })
	Logf("hello")
	if !called {
		t.Fatal("custom logger was not invoked")
	}

	SetLogger(nil)
	// Must not panic.
	Logf("muted")
}

func TestDebugfRespectsVerbose(t *testing.T) {
	defer SetLogger(nil)
	defer func() { Verbose = false }()

	var lines int
	SetLogger(func(format string, v ...interface{}) { lines++ })

	Verbose = false
	Debugf("suppressed")
	if lines != 0 {
		t.Fatalf("Debugf logged %d lines with Verbose off, want 0", lines)
	}

	Verbose = true
	Debugf("emitted")
	if lines != 1 {
		t.Fatalf("Debugf logged %d lines with Verbose on, want 1", lines)
	}
}
