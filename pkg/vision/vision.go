// Package vision generates captions and tags for photos through an Ollama
// vision model. The whole stage is optional: an empty endpoint URL yields a
// disabled client and the pipeline marks caption and tag work skipped.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"golang.org/x/time/rate"

	"github.com/mbianchi/photarc/internal/logger"
)

// ErrDisabled is returned when no endpoint is configured.
var ErrDisabled = errors.New("vision: no endpoint configured")

// ErrUnavailable is returned while the endpoint is in cool-down after a
// connection failure.
var ErrUnavailable = errors.New("vision: endpoint unavailable")

const (
	// maxEdge is the longest image side sent to the model. Larger inputs
	// are resized down before encoding.
	maxEdge = 1024

	// cooldown is how long the client stops trying after a transport-level
	// failure, so an offline Ollama does not burn the retry budget.
	cooldown = 2 * time.Minute

	captionPrompt = "Describe this photo in one concise sentence. " +
		"Mention the main subject and setting. Do not speculate about " +
		"people's identities. Reply with the sentence only."

	tagPrompt = "List up to 8 short lowercase tags describing this photo: " +
		"subjects, setting, activity, season if visible. " +
		"Reply with a comma-separated list only."
)

// Config configures the client.
type Config struct {
	URL               string // base URL, e.g. http://localhost:11434; empty disables
	Model             string
	RequestsPerMinute int
	Timeout           time.Duration
}

// Client talks to one Ollama endpoint.
type Client struct {
	url     string
	model   string
	http    *http.Client
	limiter *rate.Limiter

	mu        sync.Mutex
	downUntil time.Time
}

// New builds a client. An empty URL yields a disabled client whose methods
// return ErrDisabled.
func New(cfg Config) *Client {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 30
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		url:     strings.TrimSuffix(cfg.URL, "/"),
		model:   cfg.Model,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1),
	}
}

// Enabled reports whether an endpoint is configured.
func (c *Client) Enabled() bool {
	return c.url != ""
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// Caption generates a one-sentence description of the image at absPath.
func (c *Client) Caption(ctx context.Context, absPath string) (string, error) {
	out, err := c.generate(ctx, absPath, captionPrompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Tags generates content labels for the image at absPath.
func (c *Client) Tags(ctx context.Context, absPath string) ([]string, error) {
	out, err := c.generate(ctx, absPath, tagPrompt)
	if err != nil {
		return nil, err
	}
	var tags []string
	for _, part := range strings.Split(out, ",") {
		tag := strings.ToLower(strings.TrimSpace(part))
		tag = strings.Trim(tag, ".\"'")
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags, nil
}

type generateRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images"`
	Stream bool     `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

func (c *Client) generate(ctx context.Context, absPath, prompt string) (string, error) {
	if !c.Enabled() {
		return "", ErrDisabled
	}
	if c.inCooldown() {
		return "", ErrUnavailable
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	encoded, err := encodeImage(absPath)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(generateRequest{
		Model:  c.model,
		Prompt: prompt,
		Images: []string{encoded},
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.url+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.markDown()
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("vision: endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return out.Response, nil
}

func (c *Client) inCooldown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Now().Before(c.downUntil)
}

func (c *Client) markDown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.downUntil = time.Now().Add(cooldown)
	logger.Warn("vision endpoint unreachable, cooling down",
		"url", c.url, "retry_after", cooldown.String())
}

// encodeImage loads, downsizes, and base64-encodes an image for the model.
func encodeImage(absPath string) (string, error) {
	f, err := os.Open(absPath)
	if err != nil {
		return "", fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}

	b := img.Bounds()
	if b.Dx() > maxEdge || b.Dy() > maxEdge {
		img = imaging.Fit(img, maxEdge, maxEdge, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return "", fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
