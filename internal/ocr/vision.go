package ocr

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

// Vision calls Google Cloud Vision images:annotate with DOCUMENT_TEXT_DETECTION.
type Vision struct {
	client *resty.Client
	apiKey string
}

func NewVision(baseURL, apiKey string, timeout time.Duration) *Vision {
	if baseURL == "" {
		baseURL = "https://vision.googleapis.com"
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &Vision{client: client, apiKey: apiKey}
}

func (v *Vision) Name() string { return "cloud-vision" }

type visionRequest struct {
	Requests []visionImageRequest `json:"requests"`
}

type visionImageRequest struct {
	Image    visionImage     `json:"image"`
	Features []visionFeature `json:"features"`
}

type visionImage struct {
	Content string `json:"content"`
}

type visionFeature struct {
	Type string `json:"type"`
}

func (v *Vision) Recognize(ctx context.Context, img Image) (string, error) {
	data, err := os.ReadFile(img.Path)
	if err != nil {
		return "", BackendError(err, false)
	}
	body := visionRequest{Requests: []visionImageRequest{{
		Image:    visionImage{Content: base64.StdEncoding.EncodeToString(data)},
		Features: []visionFeature{{Type: "DOCUMENT_TEXT_DETECTION"}},
	}}}

	resp, err := v.client.R().
		SetContext(ctx).
		SetQueryParam("key", v.apiKey).
		SetBody(body).
		Post("/v1/images:annotate")
	if err != nil {
		var ne net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
			return "", timeout(fmt.Errorf("vision: %w", err))
		}
		return "", BackendError(fmt.Errorf("vision: %w", err), true)
	}

	code := resp.StatusCode()
	if code >= 300 {
		msg := gjson.GetBytes(resp.Body(), "error.message").String()
		if msg == "" {
			msg = http.StatusText(code)
		}
		retriable := code == http.StatusTooManyRequests || code >= 500
		return "", BackendError(fmt.Errorf("vision: status %d: %s", code, msg), retriable)
	}

	first := gjson.GetBytes(resp.Body(), "responses.0")
	if msg := first.Get("error.message").String(); msg != "" {
		return "", BackendError(fmt.Errorf("vision: %s", msg), false)
	}
	return first.Get("fullTextAnnotation.text").String(), nil
}
