package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"
)

// Service defines the interface between the widget panels and the comment
// backend. All mutating calls are acknowledgement-only; the panels follow
// them with a fresh LoadPage rather than patching local state. Rating
// submission is the exception: its response carries the new aggregate.
type Service interface {

	// LoadPage fetches one page of top-level comments for the given ref.
	LoadPage(ctx context.Context, ref PageRef, page int) (*PageSnapshot, error)

	// PostComment creates a new top-level comment on the given ref.
	PostComment(ctx context.Context, ref PageRef, text string) error

	// PostReply creates a reply under the given parent comment.
	PostReply(ctx context.Context, parentID int64, text string) error

	// React toggles a like or dislike on the given comment. Reacting twice
	// with the same kind toggles it off; the opposite kind is cleared
	// server-side.
	React(ctx context.Context, commentID int64, kind ReactionKind) error

	// LoadRating fetches the rating aggregate for the given item.
	LoadRating(ctx context.Context, itemID int64) (*RatingState, error)

	// SubmitRating records the viewer's scores and returns the updated
	// aggregate.
	SubmitRating(ctx context.Context, itemID int64, scores RatingScores) (*RatingState, error)
}

// ViewerHeader carries the viewer's display name on every request. Session
// handling proper is external to the widgets; the panels only ever see the
// name the server echoes back in each snapshot.
const ViewerHeader = "X-Viewer"

// HTTPService implements Service against the platform's JSON API.
type HTTPService struct {
	baseURL string
	viewer  string
	client  *http.Client
	log     zerolog.Logger
}

// NewHTTPService creates a Service talking to the API at baseURL. An empty
// viewer means anonymous: reads work, mutations get rejected server-side.
func NewHTTPService(baseURL, viewer string, timeout time.Duration, log zerolog.Logger) *HTTPService {
	return &HTTPService{
		baseURL: strings.TrimRight(baseURL, "/"),
		viewer:  viewer,
		client:  &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "backend").Logger(),
	}
}

// ack is the acknowledgement envelope mutating endpoints respond with.
// The server sometimes reports failure with a 200 and an "error" key, so
// both the status code and the envelope have to be checked.
type ack struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// LoadPage fetches one page of top-level comments for the given ref.
func (s *HTTPService) LoadPage(ctx context.Context, ref PageRef, page int) (*PageSnapshot, error) {
	var snap PageSnapshot
	path := fmt.Sprintf("/comments/%s/%d/%d", ref.Type, ref.ID, page)
	if err := s.get(ctx, path, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// PostComment creates a new top-level comment on the given ref.
func (s *HTTPService) PostComment(ctx context.Context, ref PageRef, text string) error {
	body := struct {
		Text string `json:"text"`
		ID   int64  `json:"id"`
	}{Text: text, ID: ref.ID}

	var a ack
	if err := s.post(ctx, fmt.Sprintf("/compose/%s", ref.Type), body, &a); err != nil {
		return err
	}
	return a.err()
}

// PostReply creates a reply under the given parent comment.
func (s *HTTPService) PostReply(ctx context.Context, parentID int64, text string) error {
	body := struct {
		Text string `json:"text"`
	}{Text: text}

	var a ack
	if err := s.post(ctx, fmt.Sprintf("/reply/%d", parentID), body, &a); err != nil {
		return err
	}
	return a.err()
}

// React toggles a like or dislike on the given comment.
func (s *HTTPService) React(ctx context.Context, commentID int64, kind ReactionKind) error {
	var a ack
	if err := s.get(ctx, fmt.Sprintf("/%s/%d", kind, commentID), &a); err != nil {
		return err
	}
	return a.err()
}

// LoadRating fetches the rating aggregate for the given item.
func (s *HTTPService) LoadRating(ctx context.Context, itemID int64) (*RatingState, error) {
	var state RatingState
	if err := s.get(ctx, fmt.Sprintf("/rating/%d", itemID), &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// SubmitRating records the viewer's scores and returns the updated aggregate.
func (s *HTTPService) SubmitRating(ctx context.Context, itemID int64, scores RatingScores) (*RatingState, error) {
	var state RatingState
	if err := s.post(ctx, fmt.Sprintf("/rating/%d", itemID), scores, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (a ack) err() error {
	if a.Error != "" {
		return fmt.Errorf("backend: %s", a.Error)
	}
	return nil
}

func (s *HTTPService) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return s.do(req, out)
}

func (s *HTTPService) post(ctx context.Context, path string, in, out any) error {
	payload, err := sonic.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return s.do(req, out)
}

func (s *HTTPService) do(req *http.Request, out any) error {
	if s.viewer != "" {
		req.Header.Set(ViewerHeader, s.viewer)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", req.Method, req.URL.Path, err)
	}

	s.log.Debug().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("request")

	if resp.StatusCode >= http.StatusBadRequest {
		var a ack
		if sonic.Unmarshal(raw, &a) == nil && a.Error != "" {
			return fmt.Errorf("%s %s: %s", req.Method, req.URL.Path, a.Error)
		}
		return fmt.Errorf("%s %s: status %d", req.Method, req.URL.Path, resp.StatusCode)
	}

	if err := sonic.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", req.Method, req.URL.Path, err)
	}
	return nil
}
