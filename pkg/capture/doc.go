// Package capture provides audio sources for voysis audio streams.
//
// Microphone and MicRecorder record from a capture device through
// miniaudio, resampling to 16 kHz mono PCM. File and FileRecorder replay
// a WAV or raw PCM file instead, which is useful for testing and for
// machines without a microphone.
//
//	sess, err := voysis.NewSession(host, profileID,
//	    voysis.WithMediaProvider(&capture.Microphone{}),
//	    voysis.WithRecorder(func(n int) voysis.Recorder {
//	        return capture.NewMicRecorder(n, false, nil)
//	    }),
//	)
package capture
