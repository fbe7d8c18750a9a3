// Package voiceagent is a streaming client for a real-time voice agent
// reached over a single authenticated WebSocket.
//
// # Overview
//
// The package provides:
//   - a Session that owns the socket, reconnects on a fixed delay and sends
//     a keep-alive every ten seconds
//   - a Capture pipeline that resamples 48 kHz float audio to 16 kHz linear16
//   - typed control messages (Settings, UpdatePrompt, UpdateSpeak, KeepAlive)
//   - an HTTP TokenProvider that fetches a fresh bearer token per attempt
//   - microphone, WAV file and speaker adapters built on portaudio
//
// # Quick Start
//
//	cfg, err := voiceagent.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	client, err := voiceagent.NewClient(cfg, voiceagent.ClientOptions{
//		Source: voiceagent.NewMicrophoneSource(cfg),
//		Player: voiceagent.NewPlayer(cfg),
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	client.Session().AddFrameHandler(voiceagent.ConversationTextHandler(func(role, text string) {
//		fmt.Printf("%s: %s\n", role, text)
//	}))
//
//	client.Start(ctx)
//	client.Connect()
//	defer client.Close()
//
// # Reconnects
//
// Every close that was not requested by Disconnect increments an attempt
// counter and schedules a reconnect. A successful open resets it. After
// MaxReconnectAttempts consecutive closes the session stops retrying and
// reports Degraded, surfaced to users as "likely rate limited". The agent
// never says so explicitly; it is a guess. Call Reset before connecting
// again.
//
// # Logging
//
// Logging goes through a zerolog-backed Logger. Use SetGlobalLogger to
// change the default, or pass one in SessionOptions.
package voiceagent
