package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/voysis/go/pkg/audio/pcm16"
	"github.com/haivivi/voysis/go/pkg/capture"
	"github.com/haivivi/voysis/go/pkg/cli"
	"github.com/haivivi/voysis/go/pkg/history"
	"github.com/haivivi/voysis/go/pkg/voysis"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Send queries and rate results",
}

var (
	queryLocale       string
	queryConversation string
	queryContinue     bool

	audioFile      string
	audioDevice    string
	audioSave      string
	audioRealtime  bool
	audioDeadline  time.Duration
	audioDurations bool

	rateRating      int
	rateDescription string
)

var queryTextCmd = &cobra.Command{
	Use:   "text [text...]",
	Short: "Send a text query",
	Long: `Send a text query and print the service's answer.

The query can also be described in a request file:

  locale: en-US
  text: show me red shoes
  conversation_id: optional
  context:
    page: home

Examples:
  voysis query text "show me red shoes"
  voysis query text --continue "in size 9"
  voysis query text -f query.yaml --json`,
	RunE: runQueryText,
}

var queryAudioCmd = &cobra.Command{
	Use:   "audio",
	Short: "Send an audio query from the microphone or a file",
	Long: `Stream audio for a new query and print the completed query.

Without --audio the default microphone is recorded until the service
detects the end of speech, Enter is pressed, or the deadline passes.

Examples:
  voysis query audio
  voysis query audio --device USB --save question.wav
  voysis query audio --audio question.wav --realtime`,
	RunE: runQueryAudio,
}

var queryRateCmd = &cobra.Command{
	Use:   "rate <query-id>",
	Short: "Rate a query from the history",
	Args:  cobra.ExactArgs(1),
	RunE:  runQueryRate,
}

var queryDevicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List capture devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		names, err := capture.Devices()
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{queryTextCmd, queryAudioCmd} {
		c.Flags().StringVar(&queryLocale, "locale", "", "query locale (default: the context's, or en-US)")
		c.Flags().StringVar(&queryConversation, "conversation", "", "conversation id to continue")
		c.Flags().BoolVar(&queryContinue, "continue", false, "continue the conversation of the last query")
	}

	queryAudioCmd.Flags().StringVar(&audioFile, "audio", "", "send a WAV or raw 16 kHz PCM file instead of recording")
	queryAudioCmd.Flags().StringVar(&audioDevice, "device", "", "capture device name (substring match)")
	queryAudioCmd.Flags().StringVar(&audioSave, "save", "", "save the sent audio (.wav, or raw PCM otherwise)")
	queryAudioCmd.Flags().BoolVar(&audioRealtime, "realtime", false, "pace --audio at playback speed")
	queryAudioCmd.Flags().DurationVar(&audioDeadline, "deadline", 0, "streaming deadline (default: the context's, or 20s)")
	queryAudioCmd.Flags().BoolVar(&audioDurations, "send-durations", false, "report stream durations after the query completes")

	queryRateCmd.Flags().IntVar(&rateRating, "rating", 0, "rating to give")
	queryRateCmd.Flags().StringVar(&rateDescription, "description", "", "feedback description")

	queryCmd.AddCommand(queryTextCmd)
	queryCmd.AddCommand(queryAudioCmd)
	queryCmd.AddCommand(queryRateCmd)
	queryCmd.AddCommand(queryDevicesCmd)
}

// resolveQuery combines flags, the request file and history into the
// parameters of a new query.
func resolveQuery(c *cli.Context, store *history.Store, args []string) (*cli.QueryRequest, error) {
	req := &cli.QueryRequest{}
	if inputFile != "" {
		if err := cli.LoadRequest(inputFile, req); err != nil {
			return nil, err
		}
	}
	if len(args) > 0 {
		req.Text = strings.Join(args, " ")
	}
	if queryLocale != "" {
		req.Locale = queryLocale
	}
	if req.Locale == "" {
		req.Locale = c.Locale
	}
	if req.Locale == "" {
		req.Locale = "en-US"
	}
	if queryConversation != "" {
		req.ConversationID = queryConversation
	}
	if queryContinue && req.ConversationID == "" {
		last, err := store.Latest(context.Background())
		if err != nil {
			if errors.Is(err, history.ErrNotFound) {
				return nil, errors.New("--continue: no previous query in history")
			}
			return nil, err
		}
		req.ConversationID = last.ConversationID
	}
	return req, nil
}

func runQueryText(cmd *cobra.Command, args []string) error {
	c, err := getContext()
	if err != nil {
		return err
	}
	store, err := openHistory(c)
	if err != nil {
		return err
	}
	defer store.Close()

	req, err := resolveQuery(c, store, args)
	if err != nil {
		return err
	}
	if req.Text == "" {
		return errors.New("query text is required, as arguments or in a request file")
	}

	sess, err := newSession(c)
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer cancel()
	q, err := sess.SendTextQuery(ctx, req.Locale, req.Text, req.Context, req.ConversationID)
	if err != nil {
		return err
	}
	return finishQuery(ctx, store, q)
}

func runQueryAudio(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return errors.New("query audio takes no arguments")
	}
	c, err := getContext()
	if err != nil {
		return err
	}
	store, err := openHistory(c)
	if err != nil {
		return err
	}
	defer store.Close()

	req, err := resolveQuery(c, store, nil)
	if err != nil {
		return err
	}

	opts := []voysis.Option{
		voysis.WithAutoSendDurations(audioDurations),
		voysis.WithMimeType(pcm16.MimeType),
	}
	if audioDeadline > 0 {
		opts = append(opts, voysis.WithStreamingDeadline(audioDeadline))
	}
	save := audioSave != ""
	if audioFile != "" {
		var recOpts []capture.FileRecorderOption
		if audioRealtime {
			recOpts = append(recOpts, capture.WithRealtime())
		}
		if save {
			recOpts = append(recOpts, capture.WithSave())
		}
		recOpts = append(recOpts, capture.WithRecorderLogger(slog.Default()))
		opts = append(opts,
			voysis.WithMediaProvider(&capture.File{Path: audioFile}),
			voysis.WithRecorder(func(n int) voysis.Recorder { return capture.NewFileRecorder(n, recOpts...) }),
		)
	} else {
		opts = append(opts,
			voysis.WithMediaProvider(&capture.Microphone{Device: audioDevice}),
			voysis.WithRecorder(func(n int) voysis.Recorder { return capture.NewMicRecorder(n, save, slog.Default()) }),
		)
	}

	sess, err := newSession(c, opts...)
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer cancel()

	q, err := sess.CreateAudioQuery(ctx, req.Locale, req.Context, req.ConversationID)
	if err != nil {
		return err
	}
	slog.Debug("audio query created", "query_id", q.ID)

	st, err := sess.StreamAudio(ctx, q, voysis.StreamOptions{
		OnRecordingStarted: func() {
			status.Info("Recording... press Enter to stop")
		},
		OnVADStop: func(string) {
			status.Info("End of speech detected, waiting for the result")
		},
	})
	if err != nil {
		return err
	}

	go func() {
		if _, err := bufio.NewReader(os.Stdin).ReadString('\n'); err == nil {
			st.Stop()
		}
	}()

	result, err := st.Wait(ctx)
	if save {
		if serr := saveAudio(audioSave, st.SavedStream()); serr != nil {
			status.Warn("save audio: %v", serr)
		}
	}
	if err != nil {
		return describeStreamError(err)
	}
	if verbose {
		for phase, ms := range sess.Durations() {
			status.Field(phase, cli.FormatDuration(ms))
		}
	}
	return finishQuery(ctx, store, result)
}

func saveAudio(path string, pcm []byte) error {
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		if err := capture.SaveWAV(path, pcm, pcm16.Rate); err != nil {
			return err
		}
	} else if err := cli.OutputBytes(pcm, path); err != nil {
		return err
	}
	status.Info("Saved %s to %s", cli.FormatAudio(len(pcm)), path)
	return nil
}

func describeStreamError(err error) error {
	var capErr *voysis.CaptureError
	switch {
	case errors.As(err, &capErr) && capErr.Reason == voysis.ReasonPermissionDenied:
		return fmt.Errorf("microphone access was denied: %w", err)
	case errors.As(err, &capErr) && capErr.Reason == voysis.ReasonUnsupported:
		return fmt.Errorf("no usable audio input: %w", err)
	case errors.Is(err, voysis.ErrTimeout):
		return fmt.Errorf("no result before the streaming deadline: %w", err)
	}
	return err
}

// finishQuery records q in the history and prints it.
func finishQuery(ctx context.Context, store *history.Store, q *voysis.Query) error {
	if err := store.Put(ctx, history.FromQuery(q, time.Now())); err != nil {
		status.Warn("history: %v", err)
	}
	if outputJSON || outputFile != "" {
		return outputResult(q)
	}
	status.Success("Query %s", q.ID)
	status.Field("Transcript", q.Text())
	status.Field("Intent", q.Intent)
	if q.Reply != nil {
		status.Field("Reply", q.Reply.Text)
	}
	status.Field("Conversation", q.ConversationID)
	return nil
}

func runQueryRate(cmd *cobra.Command, args []string) error {
	if !cmd.Flags().Changed("rating") && rateDescription == "" {
		return errors.New("--rating or --description is required")
	}
	c, err := getContext()
	if err != nil {
		return err
	}
	store, err := openHistory(c)
	if err != nil {
		return err
	}
	defer store.Close()

	rec, err := store.Get(cmd.Context(), args[0])
	if errors.Is(err, history.ErrNotFound) {
		return fmt.Errorf("query %s is not in the history of context %q", args[0], c.Name)
	}
	if err != nil {
		return err
	}

	sess, err := newSession(c)
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	if err := sess.Rate(ctx, rec.Query(), rateRating, rateDescription); err != nil {
		return err
	}
	if err := store.SetRating(ctx, rec.ID, rateRating); err != nil {
		status.Warn("history: %v", err)
	}
	status.Success("Rated query %s", rec.ID)
	return nil
}
