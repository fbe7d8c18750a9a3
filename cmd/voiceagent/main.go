package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/rojolang/voiceagent-sdk-go/pkg/voiceagent"
)

var (
	verbose     bool
	jsonLogs    bool
	authURL     string
	endpoint    string
	inputFile   string
	noPlayback  bool
	metricsAddr string
	prompt      string
	duration    time.Duration
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "voiceagent",
		Short: "Voice agent streaming client",
		Long:  "Stream microphone audio to a real-time voice agent and play its replies",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := "INFO"
			if verbose {
				level = "DEBUG"
			}
			voiceagent.SetGlobalLogger(voiceagent.NewLogger(&voiceagent.LogConfig{
				Level:  level,
				Pretty: !jsonLogs,
				Output: os.Stderr,
			}))
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json", false, "Log as JSON instead of console output")
	rootCmd.PersistentFlags().StringVar(&authURL, "auth-url", "", "Base URL of the authentication server")
	rootCmd.PersistentFlags().StringVar(&endpoint, "endpoint", "", "Agent WebSocket endpoint URL")

	rootCmd.AddCommand(converseCmd())
	rootCmd.AddCommand(authServerCmd())
	rootCmd.AddCommand(devicesCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		voiceagent.GetGlobalLogger().WithError(err).Fatal("CLI execution failed")
	}
}

// loadConfig reads the environment and applies command line overrides.
func loadConfig() (*voiceagent.Config, error) {
	cfg, err := voiceagent.LoadConfig()
	if err != nil {
		return nil, err
	}
	if authURL != "" {
		cfg.AuthURL = authURL
	}
	if endpoint != "" {
		cfg.AgentEndpoint = endpoint
	}
	if verbose {
		cfg.DebugWebsocket = true
	}
	if issues := cfg.Validate(); len(issues) > 0 {
		for _, issue := range issues {
			fmt.Fprintf(os.Stderr, "  - %s\n", issue)
		}
		return nil, errors.New("invalid configuration")
	}
	return cfg, nil
}

func converseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "converse",
		Short: "Talk to the agent",
		Long:  "Open a session, stream the microphone (or a WAV file) and play the agent's audio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := voiceagent.GetGlobalLogger().WithComponent("Converse")

			opts := voiceagent.ClientOptions{Logger: voiceagent.GetGlobalLogger()}
			settings := voiceagent.DefaultSettings(cfg)
			if prompt != "" {
				settings.Agent.Think.Prompt = prompt
			}
			opts.Settings = settings

			var wav *voiceagent.WAVSource
			if inputFile != "" {
				wav, err = voiceagent.LoadWAVSource(inputFile, cfg.CaptureBufferSize)
				if err != nil {
					return err
				}
				wav.Realtime = true
				opts.Source = wav
			} else {
				opts.Source = voiceagent.NewMicrophoneSource(cfg)
			}

			if !noPlayback {
				opts.Player = voiceagent.NewPlayer(cfg)
				if err := opts.Player.Start(); err != nil {
					logger.WithError(err).Warn("Playback unavailable, continuing without audio output")
					opts.Player = nil
				}
			}

			if metricsAddr != "" {
				reg := prometheus.NewRegistry()
				opts.Registerer = reg
				go serveMetrics(metricsAddr, reg, logger)
			}

			client, err := voiceagent.NewClient(cfg, opts)
			if err != nil {
				return err
			}

			session := client.Session()
			session.AddStateHandler(voiceagent.StateLoggingHandler(voiceagent.GetGlobalLogger()))
			session.AddFrameHandler(voiceagent.LoggingFrameHandler(voiceagent.GetGlobalLogger(), verbose))
			session.AddFrameHandler(voiceagent.ConversationTextHandler(func(role, content string) {
				fmt.Printf("%s: %s\n", role, content)
			}))
			transcript := voiceagent.NewTranscript(200)
			session.AddFrameHandler(transcript.HandleFrame)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client.Start(ctx)
			client.Connect()
			if err := client.StartCapture(); err != nil {
				client.Close()
				return err
			}

			var deadline <-chan time.Time
			if duration > 0 {
				deadline = time.After(duration)
			}
			var wavDone <-chan struct{}
			if wav != nil {
				wavDone = wav.Done()
			}

			select {
			case <-ctx.Done():
				logger.Info("Interrupted")
			case <-deadline:
				logger.Info("Duration elapsed")
			case <-wavDone:
				logger.Info("Input file finished, waiting for the agent to reply")
				select {
				case <-ctx.Done():
				case <-time.After(5 * time.Second):
				}
			}

			snap := client.Snapshot()
			if err := client.Close(); err != nil {
				return err
			}
			if capture := client.Capture(); capture != nil {
				fmt.Printf("\nFrames sent: %d, dropped: %d\n", capture.FramesSent(), capture.FramesDropped())
			}
			fmt.Printf("Turns: %d from you, %d from the agent\n", transcript.Count("user"), transcript.Count("assistant"))
			if snap.LikelyRateLimited() {
				return errors.New("gave up after repeated disconnects; the agent is likely rate limiting this client")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&inputFile, "input", "i", "", "Stream a mono WAV file instead of the microphone")
	cmd.Flags().BoolVar(&noPlayback, "no-playback", false, "Do not play agent audio")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	cmd.Flags().StringVar(&prompt, "prompt", "", "Override the agent prompt")
	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "Stop after this long (0 runs until interrupted)")
	return cmd
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *voiceagent.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	logger.WithField("addr", addr).Info("Serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Error("Metrics server failed")
	}
}

func devicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "Audio device management",
	}
	cmd.AddCommand(devicesListCmd())
	return cmd
}

func devicesListCmd() *cobra.Command {
	var inputsOnly, outputsOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := voiceagent.ListAudioDevices()
			if err != nil {
				return err
			}
			switch {
			case inputsOnly:
				devices = voiceagent.FilterDevices(devices, voiceagent.AudioDevice.IsInput)
			case outputsOnly:
				devices = voiceagent.FilterDevices(devices, voiceagent.AudioDevice.IsOutput)
			}

			fmt.Println("Available Audio Devices:")
			for _, d := range devices {
				marker := ""
				if d.IsDefaultInput {
					marker += " (default input)"
				}
				if d.IsDefaultOutput {
					marker += " (default output)"
				}
				fmt.Printf("  %d: %s%s - in:%d out:%d (%.0f Hz, %s)\n",
					d.ID, d.Name, marker, d.MaxInputChannels, d.MaxOutputChannels, d.DefaultSampleRate, d.HostAPI)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&inputsOnly, "inputs", false, "Only list input devices")
	cmd.Flags().BoolVar(&outputsOnly, "outputs", false, "Only list output devices")
	return cmd
}

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := voiceagent.LoadConfig()
			if err != nil {
				return err
			}
			if authURL != "" {
				cfg.AuthURL = authURL
			}
			if endpoint != "" {
				cfg.AgentEndpoint = endpoint
			}
			cfg.PrintConfig(os.Stdout)

			if issues := cfg.Validate(); len(issues) > 0 {
				fmt.Println("\nIssues:")
				for _, issue := range issues {
					fmt.Printf("  - %s\n", issue)
				}
			}
			return nil
		},
	}
}
