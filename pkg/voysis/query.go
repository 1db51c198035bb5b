package voysis

import (
	"context"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"
)

// Query types.
const (
	QueryTypeAudio = "audio"
	QueryTypeText  = "text"
)

// DefaultMimeType is 16-bit little-endian mono PCM at 16 kHz.
const DefaultMimeType = "audio/pcm;bits=16;rate=16000"

const acceptQuery = "application/vnd.voysisquery.v1+json"

// Link is a HAL link.
type Link struct {
	Href string `json:"href"`
}

// QueryLinks are the links of a query resource.
type QueryLinks struct {
	Self         Link  `json:"self"`
	Audio        *Link `json:"audio,omitempty"`
	Feedback     *Link `json:"feedback,omitempty"`
	Cancellation *Link `json:"cancellation,omitempty"`
}

// AudioQuery describes the audio of an audio query.
type AudioQuery struct {
	MimeType string `json:"mimeType"`
}

// TextQuery holds the text of a text query, or the transcript of an audio
// query once it completes.
type TextQuery struct {
	Text string `json:"text"`
}

// Reply is the service's reply to a query.
type Reply struct {
	Text string `json:"text,omitempty"`
}

// Query is a query resource.
type Query struct {
	ID             string         `json:"id,omitempty"`
	Locale         string         `json:"locale,omitempty"`
	QueryType      string         `json:"queryType,omitempty"`
	ConversationID string         `json:"conversationId,omitempty"`
	UserID         string         `json:"userId,omitempty"`
	AudioQuery     *AudioQuery    `json:"audioQuery,omitempty"`
	TextQuery      *TextQuery     `json:"textQuery,omitempty"`
	Context        map[string]any `json:"context,omitempty"`
	Intent         string         `json:"intent,omitempty"`
	Reply          *Reply         `json:"reply,omitempty"`
	Entities       map[string]any `json:"entities,omitempty"`
	Links          QueryLinks     `json:"_links"`

	// Raw is the entity as received.
	Raw json.RawMessage `json:"-"`
}

// Text returns the query text or transcript, if any.
func (q *Query) Text() string {
	if q == nil || q.TextQuery == nil {
		return ""
	}
	return q.TextQuery.Text
}

func decodeQuery(entity json.RawMessage) (*Query, error) {
	var q Query
	if err := json.Unmarshal(entity, &q); err != nil {
		return nil, fmt.Errorf("voysis: decode query: %w", err)
	}
	q.Raw = entity
	return &q, nil
}

// queryEntity is the body of POST /queries.
type queryEntity struct {
	Locale         string         `json:"locale"`
	QueryType      string         `json:"queryType"`
	AudioQuery     *AudioQuery    `json:"audioQuery,omitempty"`
	TextQuery      *TextQuery     `json:"textQuery,omitempty"`
	Context        map[string]any `json:"context"`
	ConversationID string         `json:"conversationId,omitempty"`
	UserID         string         `json:"userId,omitempty"`
}

func (s *Session) queryHeaders(ignoreVAD bool) map[string]any {
	h := map[string]any{
		"X-Voysis-Audio-Profile-Id": s.config.audioProfileID,
		"X-Voysis-Ignore-Vad":       ignoreVAD,
		"Accept":                    acceptQuery,
	}
	if s.config.clientInfo != "" {
		h["X-Voysis-Client-Info"] = s.config.clientInfo
	}
	return h
}

func (s *Session) createQuery(ctx context.Context, entity *queryEntity, ignoreVAD bool) (*Query, error) {
	if entity.Context == nil {
		entity.Context = map[string]any{}
	}
	entity.UserID = s.config.userID

	raw, err := s.sendAuthorized(ctx, &request{
		method:  http.MethodPost,
		uri:     "/queries",
		headers: s.queryHeaders(ignoreVAD),
		entity:  entity,
	})
	if err != nil {
		return nil, err
	}
	return decodeQuery(raw)
}

// CreateAudioQuery creates an audio query. Stream its audio with
// StreamAudio. The durations collected for the previous query are cleared.
func (s *Session) CreateAudioQuery(ctx context.Context, locale string, queryContext map[string]any, conversationID string) (*Query, error) {
	s.durations.reset()
	return s.createQuery(ctx, &queryEntity{
		Locale:         locale,
		QueryType:      QueryTypeAudio,
		AudioQuery:     &AudioQuery{MimeType: s.config.mimeType},
		Context:        queryContext,
		ConversationID: conversationID,
	}, s.config.ignoreVAD)
}

// SendTextQuery creates a text query and returns the service's answer.
func (s *Session) SendTextQuery(ctx context.Context, locale, text string, queryContext map[string]any, conversationID string) (*Query, error) {
	return s.createQuery(ctx, &queryEntity{
		Locale:         locale,
		QueryType:      QueryTypeText,
		TextQuery:      &TextQuery{Text: text},
		Context:        queryContext,
		ConversationID: conversationID,
	}, true)
}

// SendAudioQuery creates an audio query, streams audio for it and waits for
// the completed query.
func (s *Session) SendAudioQuery(ctx context.Context, locale string, queryContext map[string]any, conversationID string, opts StreamOptions) (*Query, error) {
	q, err := s.CreateAudioQuery(ctx, locale, queryContext, conversationID)
	if err != nil {
		return nil, err
	}
	st, err := s.StreamAudio(ctx, q, opts)
	if err != nil {
		return nil, err
	}
	return st.Wait(ctx)
}
