package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"ipdr-backend/pkg/api"

	"github.com/go-resty/resty/v2"
)

const defaultTimeout = 5 * time.Minute

// Error is returned when the server answers with a non 2xx status.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Client talks to a running prediction backend over its REST api.
type Client struct {
	client *resty.Client
}

func New(baseURL string) *Client {
	return &Client{
		client: resty.New().SetBaseURL(baseURL).SetTimeout(defaultTimeout),
	}
}

func checkResponse(res *resty.Response, err error, action string) error {
	if err != nil {
		slog.Error("request failed", "action", action, "error", err)
		return fmt.Errorf("error sending %s request: %w", action, err)
	}
	if !res.IsSuccess() {
		return &Error{StatusCode: res.StatusCode(), Message: strings.TrimSpace(res.String())}
	}
	return nil
}

func (c *Client) Health(ctx context.Context) error {
	res, err := c.client.R().SetContext(ctx).Get("/health")
	return checkResponse(res, err, "health")
}

// Upload sends a delimited file for prediction and returns the server's
// per-row results.
func (c *Client) Upload(ctx context.Context, path string) (api.PredictFileResponse, error) {
	var out api.PredictFileResponse
	res, err := c.client.R().
		SetContext(ctx).
		SetFile("file", path).
		SetResult(&out).
		Post("/predict-file")
	if err := checkResponse(res, err, "upload"); err != nil {
		return api.PredictFileResponse{}, err
	}
	return out, nil
}

func (c *Client) List(ctx context.Context) ([]string, error) {
	var out []string
	res, err := c.client.R().SetContext(ctx).SetResult(&out).Get("/data/list")
	if err := checkResponse(res, err, "list"); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Delete(ctx context.Context, file string) (api.StatusResponse, error) {
	var out api.StatusResponse
	res, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("file", file).
		SetResult(&out).
		Delete("/data/delete")
	if err := checkResponse(res, err, "delete"); err != nil {
		return api.StatusResponse{}, err
	}
	return out, nil
}

func (c *Client) Summary(ctx context.Context) (api.SummaryResponse, error) {
	var out api.SummaryResponse
	res, err := c.client.R().SetContext(ctx).SetResult(&out).Get("/reports/summary")
	if err := checkResponse(res, err, "summary"); err != nil {
		return api.SummaryResponse{}, err
	}
	return out, nil
}

// Export streams the prediction export in the given format (csv, xlsx or
// pdf) into w.
func (c *Client) Export(ctx context.Context, format string, w io.Writer) error {
	req := c.client.R().SetContext(ctx).SetDoNotParseResponse(true)

	var res *resty.Response
	var err error
	if format == "pdf" {
		res, err = req.Get("/reports/export_pdf")
	} else {
		res, err = req.SetQueryParam("format", format).Get("/reports/export")
	}
	if err != nil {
		return fmt.Errorf("error sending export request: %w", err)
	}

	body := res.RawBody()
	defer body.Close()

	if !res.IsSuccess() {
		msg, _ := io.ReadAll(body)
		return &Error{StatusCode: res.StatusCode(), Message: strings.TrimSpace(string(msg))}
	}

	if _, err := io.Copy(w, body); err != nil {
		return fmt.Errorf("error writing export: %w", err)
	}
	return nil
}
