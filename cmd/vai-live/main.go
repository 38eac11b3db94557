// Command vai-live is an interactive terminal client for realtime
// multimodal conversations: it streams microphone audio (plus optional
// camera or screen frames) to the model and plays synthesized speech
// back, with a small command language for toggling sources mid-session.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"google.golang.org/genai"

	"github.com/vango-go/vai-live/internal/config"
	"github.com/vango-go/vai-live/internal/devices"
	"github.com/vango-go/vai-live/pkg/live"
	"github.com/vango-go/vai-live/pkg/transport/gemini"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	var (
		modeFlag   = flag.String("mode", "", "video mode: camera, screen, both or none (overrides VAI_LIVE_VIDEO_MODE)")
		modelFlag  = flag.String("model", "", "model resource name (overrides VAI_LIVE_MODEL)")
		promptFlag = flag.String("prompt", "", "initial text turn sent after connecting")
		debugFlag  = flag.Bool("debug", false, "verbose logging")
	)
	flag.Parse()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	if *modeFlag != "" {
		mode, err := live.ParseVideoMode(*modeFlag)
		if err != nil {
			return err
		}
		cfg.VideoMode = mode
	}
	if *modelFlag != "" {
		cfg.Model = *modelFlag
	}
	if *promptFlag != "" {
		cfg.InitialPrompt = *promptFlag
	}
	if *debugFlag {
		cfg.Debug = true
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sources, sink, err := openDevices(cfg, logger)
	if err != nil {
		return err
	}

	dialerOpts := []gemini.DialerOption{gemini.WithLogger(logger)}
	if cfg.Voice != "" {
		dialerOpts = append(dialerOpts, gemini.WithVoice(cfg.Voice))
	}
	if cfg.SystemInstruction != "" {
		dialerOpts = append(dialerOpts, gemini.WithSystemInstruction(cfg.SystemInstruction))
	}
	if cfg.MediaResolution != "" {
		dialerOpts = append(dialerOpts, gemini.WithMediaResolution(genai.MediaResolution(cfg.MediaResolution)))
	}
	if cfg.TurnCoverage != "" {
		dialerOpts = append(dialerOpts, gemini.WithTurnCoverage(genai.TurnCoverage(cfg.TurnCoverage)))
	}
	if cfg.CompressionTrigger > 0 {
		dialerOpts = append(dialerOpts, gemini.WithContextWindowCompression(int64(cfg.CompressionTrigger)))
	}
	dialer := gemini.NewDialer(cfg.APIKey, dialerOpts...)

	session := live.NewSession(cfg.SessionConfig(), dialer, sources, sink, logger)
	session.Start(ctx)
	defer session.Close()

	go printEvents(session)

	fmt.Println("vai-live ready. Type a message, or: camera on|off, screen on|off, search on|off, status, history, prompt, clear, q")
	return readInput(ctx, session, cfg.InitialPrompt)
}

// openDevices acquires whatever hardware the configuration asks for.
// The mic and speaker are required; image sources degrade to nil with a
// warning so the session can still run.
func openDevices(cfg config.Config, logger *slog.Logger) (live.Sources, live.MediaSink, error) {
	mic, err := devices.NewMic(cfg.SendSampleRate, cfg.ChunkBytes)
	if err != nil {
		return live.Sources{}, nil, fmt.Errorf("open microphone: %w", err)
	}
	speaker, err := devices.NewSpeaker(cfg.ReceiveSampleRate)
	if err != nil {
		_ = mic.Close()
		return live.Sources{}, nil, fmt.Errorf("open speaker: %w", err)
	}

	sources := live.Sources{Mic: mic}
	if cam, err := devices.NewCamera(cfg.CameraDevice, cfg.CameraMaxWidth, cfg.CameraMaxHeight); err == nil {
		sources.Camera = cam
	} else {
		logger.Warn("camera unavailable", "error", err)
	}
	if scr, err := devices.NewScreen(cfg.ScreenMaxWidth, cfg.ScreenMaxHeight, cfg.ScreenJPEGQuality); err == nil {
		sources.Screen = scr
	} else {
		logger.Warn("screen capture unavailable", "error", err)
	}
	return sources, speaker, nil
}

// printEvents renders the session event stream to the terminal.
func printEvents(session *live.Session) {
	for ev := range session.Events() {
		switch e := ev.(type) {
		case *live.TextDeltaEvent:
			fmt.Print(e.Text)
		case *live.TurnCompleteEvent:
			fmt.Println()
		case *live.InterruptedEvent:
			fmt.Println("\n[interrupted]")
		case *live.ConnectedEvent:
			fmt.Printf("[connected: %s]\n", e.Model)
		case *live.ModelFallbackEvent:
			fmt.Printf("[%s unavailable, switching to %s]\n", e.From, e.To)
		case *live.ReconnectingEvent:
			fmt.Printf("[reconnecting: %s]\n", e.Reason)
		case *live.SourceDisabledEvent:
			fmt.Printf("[%s disabled: %s]\n", e.Source, e.Reason)
		case *live.ToolCallEvent:
			fmt.Printf("[tool call: %s]\n", e.Name)
		case *live.ErrorEvent:
			fmt.Printf("[%s: %s]\n", e.Kind, e.Message)
		case *live.ClosedEvent:
			if e.Err != nil {
				fmt.Printf("[session closed: %v]\n", e.Err)
			} else {
				fmt.Println("[session closed]")
			}
		}
	}
}

// readInput runs the interactive prompt until EOF, "q" or ctx ends.
func readInput(ctx context.Context, session *live.Session, initialPrompt string) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-session.Done():
			return session.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit, err := dispatch(session, strings.TrimSpace(line), initialPrompt); err != nil {
				return err
			} else if quit {
				return nil
			}
		}
	}
}

// dispatch interprets one input line: a control command or a text turn.
func dispatch(session *live.Session, line, initialPrompt string) (quit bool, err error) {
	switch line {
	case "":
		return false, nil
	case "q", "quit", "exit":
		return true, nil
	case "camera on":
		return false, session.EnableCamera(true)
	case "camera off":
		return false, session.EnableCamera(false)
	case "screen on":
		return false, session.EnableScreen(true)
	case "screen off":
		return false, session.EnableScreen(false)
	case "search on":
		fmt.Println("[search grounding will apply on the next reconnect]")
		return false, session.EnableSearch(true)
	case "search off":
		return false, session.EnableSearch(false)
	case "status":
		status, err := session.Status()
		if err != nil {
			return false, err
		}
		fmt.Printf("state=%s model=%s mic=%v camera=%v screen=%v search=%v queue=%d dropped=%d/%d turns=%d\n",
			status.State, status.Model, status.MicOn, status.CameraOn, status.ScreenOn,
			status.SearchOn, status.QueueDepth, status.DroppedAudio, status.DroppedImages, status.Turns)
		return false, nil
	case "history":
		turns, err := session.History()
		if err != nil {
			return false, err
		}
		for _, turn := range turns {
			fmt.Printf("%s [%s]: %s\n", turn.At.Format("15:04:05"), turn.Role, turn.Text)
		}
		return false, nil
	case "prompt":
		if initialPrompt == "" {
			fmt.Println("[no initial prompt configured]")
		} else {
			fmt.Println(initialPrompt)
		}
		return false, nil
	case "clear":
		return false, session.ClearHistory()
	default:
		return false, session.SendText(line)
	}
}
