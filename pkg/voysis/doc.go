// Package voysis provides a Go client for the Voysis query service.
//
// A Session keeps one persistent WebSocket connection to the service and
// multiplexes JSON requests over it. Responses are correlated back to the
// request that produced them by request id, while server notifications
// (vad_stop, query_complete, internal_server_error) are routed to the audio
// stream that is currently recording.
//
// # Quick Start
//
//	session, err := voysis.NewSession("mycompany.voysis.io", audioProfileID,
//	    voysis.WithRefreshToken(refreshToken),
//	    voysis.WithMediaProvider(mic),
//	    voysis.WithRecorder(newRecorder),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Close()
//
//	query, err := session.SendAudioQuery(ctx, "en-US", nil, "", voysis.StreamOptions{
//	    OnRecordingStarted: func() { fmt.Println("listening...") },
//	})
//
// # Text Queries
//
//	query, err := session.SendTextQuery(ctx, "en-US", "show me red shoes", nil, "")
//
// # Audio Streaming
//
// StreamAudio starts capture on the configured MediaProvider and streams
// 16-bit PCM chunks as binary frames. Streaming stops when the server sends
// vad_stop, when Stop is called (a single 0x04 byte marks the end of the
// stream), when the streaming deadline elapses, or when capture or the
// connection fails. Capture resources are released exactly once and the
// stream result settles exactly once.
//
//	stream, err := session.StreamAudio(ctx, query, voysis.StreamOptions{})
//	...
//	stream.Stop()
//	completed, err := stream.Wait(ctx)
//
// # Tokens
//
// When a refresh token is configured, every query request first makes sure
// the session token expires no sooner than the configured margin, issuing a
// new one with POST /tokens when needed.
//
// # Error Handling
//
//	if e, ok := voysis.AsError(err); ok {
//	    if e.IsAuth() {
//	        // refresh token rejected
//	    }
//	}
//	if errors.Is(err, voysis.ErrTimeout) {
//	    // no response within the streaming deadline
//	}
package voysis
