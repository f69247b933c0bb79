package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrNoTranscript means the source has no transcript at all. It is
// user-facing and not worth retrying, unlike provider errors.
var ErrNoTranscript = errors.New("no transcript available for this video")

// TranscriptService resolves a video/page URL to a transcript plus
// metadata through an external scraping provider.
//
// Two provider strategies exist and both are supported: the scrape
// endpoint either answers synchronously (200 + result) or hands back an
// asynchronous job (202 + job id) which is polled at a fixed interval up
// to a bounded attempt count, then its dataset is fetched.
type TranscriptService struct {
	client          *http.Client
	baseURL         string
	apiToken        string
	oembedURL       string
	pollInterval    time.Duration
	maxPollAttempts int
	log             zerolog.Logger
}

func NewTranscriptService(baseURL, apiToken, oembedURL string, pollInterval time.Duration, maxPollAttempts int, log zerolog.Logger) *TranscriptService {
	return &TranscriptService{
		client:          &http.Client{Timeout: 60 * time.Second},
		baseURL:         strings.TrimRight(baseURL, "/"),
		apiToken:        apiToken,
		oembedURL:       strings.TrimRight(oembedURL, "/"),
		pollInterval:    pollInterval,
		maxPollAttempts: maxPollAttempts,
		log:             log,
	}
}

// providerResult tolerates the heterogeneous field names the provider
// uses across scrape versions; normalize() folds them into one shape.
type providerResult struct {
	Title        string          `json:"title"`
	VideoTitle   string          `json:"videoTitle"`
	Thumbnail    string          `json:"thumbnail"`
	ThumbnailURL string          `json:"thumbnailUrl"`
	Transcript   json.RawMessage `json:"transcript"`
	Segments     json.RawMessage `json:"segments"`
	Subtitles    json.RawMessage `json:"subtitles"`
	Text         string          `json:"text"`
}

type providerSegment struct {
	Start   float64 `json:"start"`
	Offset  float64 `json:"offset"`
	StartMS float64 `json:"startMs"`
	Text    string  `json:"text"`
	Content string  `json:"content"`
}

type jobStatus struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

// FetchTranscript acquires the transcript bundle for the URL, failing
// the metadata part softly: provider metadata, then oEmbed, then
// placeholders.
func (s *TranscriptService) FetchTranscript(ctx context.Context, sourceURL string) (*TranscriptBundle, error) {
	raw, err := s.scrape(ctx, sourceURL)
	if err != nil {
		return nil, err
	}

	bundle, err := normalize(raw)
	if err != nil {
		return nil, err
	}

	if bundle.Title == "" || bundle.Thumbnail == "" {
		title, thumbnail, err := s.lookupOEmbed(ctx, sourceURL)
		if err != nil {
			s.log.Warn().Err(err).Str("url", sourceURL).Msg("oEmbed metadata lookup failed, using placeholders")
		}
		if bundle.Title == "" {
			bundle.Title = title
		}
		if bundle.Thumbnail == "" {
			bundle.Thumbnail = thumbnail
		}
	}
	if bundle.Title == "" {
		bundle.Title = "Untitled video"
	}

	return bundle, nil
}

func (s *TranscriptService) scrape(ctx context.Context, sourceURL string) (*providerResult, error) {
	endpoint := fmt.Sprintf("%s/v1/scrape?url=%s", s.baseURL, url.QueryEscape(sourceURL))
	body, status, err := s.get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("scrape request failed: %w", err)
	}

	switch status {
	case http.StatusOK:
		var result providerResult
		if err := json.Unmarshal(body, &result); err != nil {
			return nil, fmt.Errorf("decode scrape result: %w", err)
		}
		return &result, nil
	case http.StatusAccepted:
		var job jobStatus
		if err := json.Unmarshal(body, &job); err != nil {
			return nil, fmt.Errorf("decode job handle: %w", err)
		}
		return s.pollJob(ctx, job.JobID)
	case http.StatusNotFound:
		return nil, ErrNoTranscript
	default:
		return nil, fmt.Errorf("scrape provider returned status %d: %s", status, strings.TrimSpace(string(body)))
	}
}

// pollJob polls the job at a fixed interval until it reaches a terminal
// state or the attempt budget runs out. Terminal failure states stop the
// loop immediately instead of exhausting all attempts.
func (s *TranscriptService) pollJob(ctx context.Context, jobID string) (*providerResult, error) {
	if jobID == "" {
		return nil, fmt.Errorf("provider returned an empty job id")
	}

	for attempt := 0; attempt < s.maxPollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.pollInterval):
		}

		body, status, err := s.get(ctx, fmt.Sprintf("%s/v1/jobs/%s", s.baseURL, jobID))
		if err != nil {
			return nil, fmt.Errorf("job status request failed: %w", err)
		}
		if status != http.StatusOK {
			return nil, fmt.Errorf("job status returned %d", status)
		}

		var job jobStatus
		if err := json.Unmarshal(body, &job); err != nil {
			return nil, fmt.Errorf("decode job status: %w", err)
		}

		switch job.Status {
		case "succeeded":
			return s.fetchDataset(ctx, jobID)
		case "failed", "aborted", "timed-out":
			return nil, fmt.Errorf("transcript job ended in state %q", job.Status)
		}
		// queued / running: keep polling
	}

	return nil, fmt.Errorf("transcript job %s did not finish within %d attempts", jobID, s.maxPollAttempts)
}

func (s *TranscriptService) fetchDataset(ctx context.Context, jobID string) (*providerResult, error) {
	body, status, err := s.get(ctx, fmt.Sprintf("%s/v1/jobs/%s/dataset", s.baseURL, jobID))
	if err != nil {
		return nil, fmt.Errorf("dataset request failed: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("dataset returned %d", status)
	}

	// Datasets come back either as a bare result or a one-element array.
	var items []providerResult
	if err := json.Unmarshal(body, &items); err == nil {
		if len(items) == 0 {
			return nil, ErrNoTranscript
		}
		return &items[0], nil
	}
	var result providerResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	return &result, nil
}

func (s *TranscriptService) get(ctx context.Context, endpoint string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, err
	}
	if s.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiToken)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

// lookupOEmbed fetches title/thumbnail through the lightweight oEmbed
// endpoint keyed by the same URL.
func (s *TranscriptService) lookupOEmbed(ctx context.Context, sourceURL string) (string, string, error) {
	endpoint := fmt.Sprintf("%s?url=%s&format=json", s.oembedURL, url.QueryEscape(sourceURL))
	body, status, err := s.get(ctx, endpoint)
	if err != nil {
		return "", "", err
	}
	if status != http.StatusOK {
		return "", "", fmt.Errorf("oembed returned %d", status)
	}

	var meta struct {
		Title        string `json:"title"`
		ThumbnailURL string `json:"thumbnail_url"`
	}
	if err := json.Unmarshal(body, &meta); err != nil {
		return "", "", err
	}
	return meta.Title, meta.ThumbnailURL, nil
}

// normalize folds the provider's result shapes into one TranscriptBundle.
func normalize(raw *providerResult) (*TranscriptBundle, error) {
	bundle := &TranscriptBundle{
		Title:     firstNonEmpty(raw.Title, raw.VideoTitle),
		Thumbnail: firstNonEmpty(raw.Thumbnail, raw.ThumbnailURL),
	}

	for _, candidate := range []json.RawMessage{raw.Segments, raw.Transcript, raw.Subtitles} {
		if len(candidate) == 0 {
			continue
		}
		segments, text, err := decodeTranscriptField(candidate)
		if err != nil {
			continue
		}
		bundle.Segments = segments
		bundle.Text = text
		break
	}

	if bundle.Text == "" && raw.Text != "" {
		bundle.Text = raw.Text
	}
	if strings.TrimSpace(bundle.Text) == "" {
		return nil, ErrNoTranscript
	}
	return bundle, nil
}

// decodeTranscriptField accepts either a plain string transcript or an
// array of segments in any of the known field spellings.
func decodeTranscriptField(raw json.RawMessage) ([]TranscriptSegment, string, error) {
	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return nil, plain, nil
	}

	var rawSegments []providerSegment
	if err := json.Unmarshal(raw, &rawSegments); err != nil {
		return nil, "", err
	}

	var segments []TranscriptSegment
	var sb strings.Builder
	for _, seg := range rawSegments {
		text := firstNonEmpty(seg.Text, seg.Content)
		if text == "" {
			continue
		}
		start := seg.Start
		if start == 0 && seg.Offset != 0 {
			start = seg.Offset
		}
		if start == 0 && seg.StartMS != 0 {
			start = seg.StartMS / 1000
		}
		segments = append(segments, TranscriptSegment{Start: start, Text: text})
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(text)
	}
	return segments, sb.String(), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// FormatTimestamp renders a segment offset as m:ss for prompts that
// correlate findings against transcript timestamps.
func FormatTimestamp(seconds float64) string {
	total := int(seconds)
	return strconv.Itoa(total/60) + ":" + fmt.Sprintf("%02d", total%60)
}
