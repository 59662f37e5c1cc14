package telemetry_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/telemetry"
)

func TestInitLoggerWritesJSONToFileAndConsole(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer

	logger, err := telemetry.InitLogger(telemetry.Options{LogDir: dir, Console: &console})
	if err != nil {
		t.Fatalf("InitLogger: %v", err)
	}
	logger.Info("hello", "capability", "planning")

	if !strings.Contains(console.String(), `"capability":"planning"`) {
		t.Fatalf("console output missing attribute: %s", console.String())
	}
	if _, err := os.Stat(filepath.Join(dir, "agent.log")); err != nil {
		t.Fatalf("expected log file: %v", err)
	}
}

func TestInitTelemetryDisabledIsNoop(t *testing.T) {
	tracer, meter, cleanup, err := telemetry.InitTelemetry(context.Background(), telemetry.Options{})
	if err != nil {
		t.Fatalf("InitTelemetry: %v", err)
	}
	defer cleanup()

	ctx, span := tracer.Start(context.Background(), "noop")
	telemetry.RecordDuration(ctx, meter, "test.duration", time.Millisecond)
	telemetry.AddCount(ctx, meter, "test.count", 1)
	span.End()
}
