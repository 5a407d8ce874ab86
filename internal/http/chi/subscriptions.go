package chi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/marcelsud/heatmap-webhooks/webhook"
)

/* HTTP layer DTOs for the webhook configuration API
 * Separate from domain entities to avoid leaking internal structure
 */

// maxBodyBytes bounds request bodies
const maxBodyBytes = 1 << 20

type createRequest struct {
	Name              string   `json:"name"`
	URL               string   `json:"url"`
	EventTypes        []string `json:"event_types"`
	MaxRetries        *int     `json:"max_retries"`
	RetryDelaySeconds *int     `json:"retry_delay_seconds"`
}

type updateRequest struct {
	Name              *string   `json:"name"`
	URL               *string   `json:"url"`
	IsActive          *bool     `json:"is_active"`
	EventTypes        *[]string `json:"event_types"`
	MaxRetries        *int      `json:"max_retries"`
	RetryDelaySeconds *int      `json:"retry_delay_seconds"`
}

// configResponse never carries the secret
type configResponse struct {
	ID                string     `json:"id"`
	UserID            string     `json:"user_id"`
	Name              string     `json:"name"`
	URL               string     `json:"url"`
	EventTypes        []string   `json:"event_types"`
	IsActive          bool       `json:"is_active"`
	MaxRetries        int        `json:"max_retries"`
	RetryDelaySeconds int        `json:"retry_delay_seconds"`
	LastTriggeredAt   *time.Time `json:"last_triggered_at"`
	TotalDeliveries   int64      `json:"total_deliveries"`
	FailedDeliveries  int64      `json:"failed_deliveries"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// secretResponse is returned by create and regenerate-secret, the only places the secret is shown
type secretResponse struct {
	configResponse
	Secret string `json:"secret"`
}

type listResponse struct {
	Webhooks []configResponse `json:"webhooks"`
	Total    int              `json:"total"`
}

type testRequest struct {
	EventType   string         `json:"event_type"`
	TestPayload map[string]any `json:"test_payload"`
}

type testResponse struct {
	Success      bool    `json:"success"`
	StatusCode   *int    `json:"status_code"`
	ResponseBody *string `json:"response_body"`
	Error        *string `json:"error"`
}

type deliveryResponse struct {
	ID             string          `json:"id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	ResponseStatus int             `json:"response_status"`
	ResponseBody   string          `json:"response_body"`
	Success        bool            `json:"success"`
	DurationMs     int64           `json:"duration_ms"`
	SentAt         time.Time       `json:"sent_at"`
}

type deliveriesResponse struct {
	Deliveries []deliveryResponse `json:"deliveries"`
}

type dispatchRequest struct {
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload"`
}

type dispatchResponse struct {
	EventType string `json:"event_type"`
	Delivered int    `json:"delivered"`
}

func toConfigResponse(s webhook.Subscription) configResponse {
	eventTypes := s.EventFilter
	if eventTypes == nil {
		eventTypes = []string{}
	}
	return configResponse{
		ID:                s.ID,
		UserID:            s.OwnerID,
		Name:              s.Name,
		URL:               s.Endpoint,
		EventTypes:        eventTypes,
		IsActive:          s.Active,
		MaxRetries:        s.MaxRetries,
		RetryDelaySeconds: s.RetryDelaySeconds,
		LastTriggeredAt:   s.LastTriggeredAt,
		TotalDeliveries:   s.TotalDeliveries,
		FailedDeliveries:  s.FailedDeliveries,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
	}
}

// decode reads a JSON body; an empty body leaves dst untouched when allowEmpty is set
func decode(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	err := dec.Decode(dst)
	if allowEmpty && errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// postConfig handles POST /api/v1/webhook-configs
func postConfig(service webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req createRequest
		if err := decode(w, r, &req, false); err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body")
			return
		}

		sub, err := service.Create(r.Context(), ownerFrom(r.Context()), webhook.NewSubscription{
			Name:              req.Name,
			Endpoint:          req.URL,
			EventFilter:       req.EventTypes,
			MaxRetries:        req.MaxRetries,
			RetryDelaySeconds: req.RetryDelaySeconds,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, secretResponse{configResponse: toConfigResponse(sub), Secret: sub.Secret})
	})
}

// getConfigs handles GET /api/v1/webhook-configs?skip=&limit=
func getConfigs(service webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		skip, err := queryInt(r, "skip", 0)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
			return
		}
		limit, err := queryInt(r, "limit", webhook.DefaultListMax)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
			return
		}

		subs, total, err := service.List(r.Context(), ownerFrom(r.Context()), webhook.ListOptions{Offset: skip, Limit: limit})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		resp := listResponse{Webhooks: make([]configResponse, 0, len(subs)), Total: total}
		for _, s := range subs {
			resp.Webhooks = append(resp.Webhooks, toConfigResponse(s))
		}
		writeJSON(w, http.StatusOK, resp)
	})
}

// getConfig handles GET /api/v1/webhook-configs/{id}
func getConfig(service webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub, err := service.Get(r.Context(), ownerFrom(r.Context()), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toConfigResponse(sub))
	})
}

// patchConfig handles PATCH /api/v1/webhook-configs/{id}
func patchConfig(service webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req updateRequest
		if err := decode(w, r, &req, false); err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body")
			return
		}

		sub, err := service.Update(r.Context(), ownerFrom(r.Context()), chi.URLParam(r, "id"), webhook.SubscriptionPatch{
			Name:              req.Name,
			Endpoint:          req.URL,
			Active:            req.IsActive,
			EventFilter:       req.EventTypes,
			MaxRetries:        req.MaxRetries,
			RetryDelaySeconds: req.RetryDelaySeconds,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toConfigResponse(sub))
	})
}

// deleteConfig handles DELETE /api/v1/webhook-configs/{id}
func deleteConfig(service webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := service.Delete(r.Context(), ownerFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

// deactivateConfig handles POST /api/v1/webhook-configs/{id}/deactivate
func deactivateConfig(service webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub, err := service.Deactivate(r.Context(), ownerFrom(r.Context()), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toConfigResponse(sub))
	})
}

// regenerateSecret handles POST /api/v1/webhook-configs/{id}/regenerate-secret
func regenerateSecret(service webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub, err := service.RotateSecret(r.Context(), ownerFrom(r.Context()), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, secretResponse{configResponse: toConfigResponse(sub), Secret: sub.Secret})
	})
}

// testConfig handles POST /api/v1/webhook-configs/{id}/test
func testConfig(service webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req testRequest
		if err := decode(w, r, &req, true); err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body")
			return
		}

		result, err := service.Test(r.Context(), ownerFrom(r.Context()), chi.URLParam(r, "id"), req.EventType, req.TestPayload)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		resp := testResponse{Success: result.Success()}
		switch {
		case !result.Attempted():
			msg := "webhook is inactive or not subscribed to this event type"
			resp.Error = &msg
		case result.Outcome == webhook.Unreachable:
			msg := result.ResponseBody
			if result.Err != nil {
				msg = result.Err.Error()
			}
			resp.Error = &msg
		default:
			status, body := result.StatusCode, result.ResponseBody
			resp.StatusCode = &status
			resp.ResponseBody = &body
		}
		writeJSON(w, http.StatusOK, resp)
	})
}

// getDeliveries handles GET /api/v1/webhook-configs/{id}/deliveries?limit=
func getDeliveries(service webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit, err := queryInt(r, "limit", webhook.DefaultLogMax)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
			return
		}

		entries, err := service.Deliveries(r.Context(), ownerFrom(r.Context()), chi.URLParam(r, "id"), limit)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		resp := deliveriesResponse{Deliveries: make([]deliveryResponse, 0, len(entries))}
		for _, e := range entries {
			resp.Deliveries = append(resp.Deliveries, deliveryResponse{
				ID:             e.ID,
				EventType:      e.EventType,
				Payload:        json.RawMessage(e.Payload),
				ResponseStatus: e.ResponseStatus,
				ResponseBody:   e.ResponseBody,
				Success:        e.Success,
				DurationMs:     e.DurationMs,
				SentAt:         e.SentAt,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	})
}

// postDispatch handles POST /api/v1/dispatch
func postDispatch(service webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req dispatchRequest
		if err := decode(w, r, &req, false); err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body")
			return
		}

		delivered, err := service.Dispatch(r.Context(), webhook.Event{
			OwnerID: ownerFrom(r.Context()),
			Type:    req.EventType,
			Payload: req.Payload,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, dispatchResponse{EventType: req.EventType, Delivered: delivered})
	})
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return n, nil
}
