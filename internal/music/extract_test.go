package music

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type runnerCall struct {
	binary string
	args   []string
}

func recordingRunner(calls *[]runnerCall, results []func() ([]byte, error)) commandRunner {
	return func(_ context.Context, binary string, args ...string) ([]byte, error) {
		i := len(*calls)
		*calls = append(*calls, runnerCall{binary: binary, args: args})
		if i < len(results) {
			return results[i]()
		}
		return nil, errors.New("unexpected extra invocation")
	}
}

func formatArg(args []string) string {
	for i, a := range args {
		if a == "-f" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func TestStreamURLFirstStrategyWins(t *testing.T) {
	var calls []runnerCall
	e := &Extractor{
		Binary:     "yt-dlp",
		Timeout:    time.Second,
		Strategies: defaultStrategies,
		run: recordingRunner(&calls, []func() ([]byte, error){
			func() ([]byte, error) { return []byte("https://cdn.example/audio.m4a\n"), nil },
		}),
	}

	got, err := e.StreamURL(context.Background(), "https://media.example/a")
	if err != nil {
		t.Fatalf("StreamURL: %v", err)
	}
	if got != "https://cdn.example/audio.m4a" {
		t.Errorf("stream url = %q", got)
	}
	if len(calls) != 1 {
		t.Fatalf("invocations = %d, want 1", len(calls))
	}
	if f := formatArg(calls[0].args); f != "bestaudio[ext=m4a]/bestaudio/best" {
		t.Errorf("first strategy format = %q", f)
	}
}

func TestStreamURLFallsThroughStages(t *testing.T) {
	fail := func() ([]byte, error) { return []byte("ERROR: format unavailable"), errors.New("exit 1") }
	ok := func() ([]byte, error) { return []byte("https://cdn.example/audio.webm"), nil }

	var calls []runnerCall
	e := &Extractor{
		Binary:     "yt-dlp",
		Timeout:    time.Second,
		Strategies: defaultStrategies,
		run:        recordingRunner(&calls, []func() ([]byte, error){fail, fail, ok}),
	}

	got, err := e.StreamURL(context.Background(), "https://media.example/a")
	if err != nil {
		t.Fatalf("StreamURL: %v", err)
	}
	if got != "https://cdn.example/audio.webm" {
		t.Errorf("stream url = %q", got)
	}
	if len(calls) != 3 {
		t.Fatalf("invocations = %d, want 3", len(calls))
	}
	if f := formatArg(calls[2].args); f != "bestaudio[ext=webm]/bestaudio/best" {
		t.Errorf("third strategy format = %q", f)
	}
}

func TestStreamURLLastStageDropsFormat(t *testing.T) {
	fail := func() ([]byte, error) { return nil, errors.New("exit 1") }
	ok := func() ([]byte, error) { return []byte("https://cdn.example/audio"), nil }

	var calls []runnerCall
	e := &Extractor{
		Binary:     "yt-dlp",
		Timeout:    time.Second,
		Strategies: defaultStrategies,
		run:        recordingRunner(&calls, []func() ([]byte, error){fail, fail, fail, ok}),
	}

	if _, err := e.StreamURL(context.Background(), "https://media.example/a"); err != nil {
		t.Fatalf("StreamURL: %v", err)
	}
	if len(calls) != 4 {
		t.Fatalf("invocations = %d, want 4", len(calls))
	}
	if f := formatArg(calls[3].args); f != "" {
		t.Errorf("final stage should carry no format selector, got %q", f)
	}
}

func TestStreamURLExhaustionReportsAllStages(t *testing.T) {
	var calls []runnerCall
	results := make([]func() ([]byte, error), len(defaultStrategies))
	for i := range results {
		i := i
		results[i] = func() ([]byte, error) { return nil, fmt.Errorf("stage %d boom", i) }
	}

	e := &Extractor{
		Binary:     "yt-dlp",
		Timeout:    time.Second,
		Strategies: defaultStrategies,
		run:        recordingRunner(&calls, results),
	}

	_, err := e.StreamURL(context.Background(), "https://media.example/a")
	if err == nil {
		t.Fatal("expected error after exhausting all strategies")
	}

	var exErr *ExtractionError
	if !errors.As(err, &exErr) {
		t.Fatalf("error type = %T, want *ExtractionError", err)
	}
	if len(exErr.Stages) != len(defaultStrategies) {
		t.Fatalf("recorded failures = %d, want %d", len(exErr.Stages), len(defaultStrategies))
	}
	for i, s := range exErr.Stages {
		if s.Stage != i {
			t.Errorf("failure %d has stage %d", i, s.Stage)
		}
		if s.Strategy != defaultStrategies[i].Name {
			t.Errorf("failure %d strategy = %q, want %q", i, s.Strategy, defaultStrategies[i].Name)
		}
	}
	// Each strategy tried exactly once.
	if len(calls) != len(defaultStrategies) {
		t.Fatalf("invocations = %d, want %d", len(calls), len(defaultStrategies))
	}
}

func TestStreamURLTakesFirstOutputLine(t *testing.T) {
	var calls []runnerCall
	e := &Extractor{
		Binary:     "yt-dlp",
		Timeout:    time.Second,
		Strategies: defaultStrategies,
		run: recordingRunner(&calls, []func() ([]byte, error){
			func() ([]byte, error) {
				return []byte("https://cdn.example/audio\nhttps://cdn.example/video\n"), nil
			},
		}),
	}

	got, err := e.StreamURL(context.Background(), "https://media.example/a")
	if err != nil {
		t.Fatalf("StreamURL: %v", err)
	}
	if got != "https://cdn.example/audio" {
		t.Errorf("stream url = %q", got)
	}
}

func TestStreamURLStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var calls []runnerCall
	e := &Extractor{
		Binary:     "yt-dlp",
		Timeout:    time.Second,
		Strategies: defaultStrategies,
		run: recordingRunner(&calls, []func() ([]byte, error){
			func() ([]byte, error) { cancel(); return nil, errors.New("killed") },
		}),
	}

	if _, err := e.StreamURL(ctx, "https://media.example/a"); err == nil {
		t.Fatal("expected error")
	}
	if len(calls) != 1 {
		t.Fatalf("invocations after cancel = %d, want 1", len(calls))
	}
}
