package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/noah-isme/campus-leave-api/internal/models"
	appErrors "github.com/noah-isme/campus-leave-api/pkg/errors"
)

const maxUpstreamBody = 16 << 20

// upstreamEnvelope is the response shape of the leave backend.
type upstreamEnvelope struct {
	Success bool              `json:"success"`
	Data    []json.RawMessage `json:"data"`
	Message string            `json:"message"`
}

// HTTPLeaveSource pulls the record set from the leave backend's JSON API.
type HTTPLeaveSource struct {
	client   *http.Client
	endpoint string
}

// NewHTTPLeaveSource builds a source for GET {baseURL}{path}.
func NewHTTPLeaveSource(baseURL, path string, timeout time.Duration) *HTTPLeaveSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	endpoint := strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(path, "/")
	return &HTTPLeaveSource{
		client:   &http.Client{Timeout: timeout},
		endpoint: endpoint,
	}
}

// Name identifies the source in logs and metrics.
func (s *HTTPLeaveSource) Name() string {
	return "http"
}

// Fetch returns the raw payloads. Transport failures, non-2xx statuses and
// envelopes with success=false are all reported as ErrDataUnavailable. An
// element that does not decode is returned with DecodeErr set so that only
// that record is dropped.
func (s *HTTPLeaveSource) Fetch(ctx context.Context) ([]models.LeaveRecordPayload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "build upstream request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, appErrors.CloneWrap(appErrors.ErrDataUnavailable, err, "leave backend unreachable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody))
	if err != nil {
		return nil, appErrors.CloneWrap(appErrors.ErrDataUnavailable, err, "read leave backend response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, appErrors.CloneWrap(appErrors.ErrDataUnavailable,
			fmt.Errorf("status %d", resp.StatusCode), "leave backend returned an error")
	}

	var envelope upstreamEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, appErrors.CloneWrap(appErrors.ErrDataUnavailable, err, "decode leave backend response")
	}
	if !envelope.Success {
		message := envelope.Message
		if message == "" {
			message = "leave backend reported failure"
		}
		return nil, appErrors.Clone(appErrors.ErrDataUnavailable, message)
	}
	payloads := make([]models.LeaveRecordPayload, 0, len(envelope.Data))
	for _, raw := range envelope.Data {
		payloads = append(payloads, decodePayload(raw))
	}
	return payloads, nil
}

func decodePayload(raw json.RawMessage) models.LeaveRecordPayload {
	var payload models.LeaveRecordPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		var partial struct {
			LeaveID models.LeaveID `json:"leave_id"`
		}
		_ = json.Unmarshal(raw, &partial)
		return models.LeaveRecordPayload{LeaveID: partial.LeaveID, DecodeErr: err}
	}
	return payload
}
