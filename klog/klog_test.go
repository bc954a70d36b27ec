package klog

import "bytes"
import "log/slog"
import "os"
import "strings"
import "testing"

func TestSubsys(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)

	l := Mklog("semaphore")
	l.Info("inited")
	l.Debug("hidden")
	out := buf.String()
	if !strings.Contains(out, "subsys=semaphore") || !strings.Contains(out, "inited") {
		t.Fatalf("bad log line %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug logged at info level")
	}

	SetLevel(slog.LevelDebug)
	defer SetLevel(slog.LevelInfo)
	l.Debug("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("debug suppressed at debug level")
	}
}
