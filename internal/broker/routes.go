package broker

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/sonos-broker-go/internal/api"
	"github.com/strefethen/sonos-broker-go/internal/apperrors"
	"github.com/strefethen/sonos-broker-go/internal/auth"
	"github.com/strefethen/sonos-broker-go/internal/snippet"
	"github.com/strefethen/sonos-broker-go/internal/sonos"
	"github.com/strefethen/sonos-broker-go/internal/sonos/soap"
	"github.com/strefethen/sonos-broker-go/internal/speaker"
)

// RegisterRoutes wires the speaker control API to the router.
func RegisterRoutes(router chi.Router, b *Broker) {
	router.Method(http.MethodGet, "/v1/speakers", api.Handler(listSpeakers(b)))
	router.Method(http.MethodGet, "/v1/speakers/{uid}", api.Handler(getSpeaker(b)))
	router.Method(http.MethodDelete, "/v1/speakers/{uid}", api.Handler(removeSpeaker(b)))

	// Properties
	router.Method(http.MethodGet, "/v1/speakers/{uid}/properties/{name}", api.Handler(getProperty(b)))
	router.Method(http.MethodPut, "/v1/speakers/{uid}/properties/{name}", api.Handler(setProperty(b)))

	// Overrides
	router.Method(http.MethodGet, "/v1/speakers/{uid}/snippet", api.Handler(lastSnippet(b)))
	router.Method(http.MethodPost, "/v1/speakers/{uid}/snippet", api.Handler(playSnippet(b)))
	router.Method(http.MethodPost, "/v1/speakers/{uid}/snippet/stop", api.Handler(stopSnippet(b)))

	// Commands
	router.Method(http.MethodPost, "/v1/speakers/{uid}/{action}", api.Handler(runAction(b)))

	router.Method(http.MethodPost, "/v1/discover", api.Handler(discover(b)))
}

func listSpeakers(b *Broker) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		speakers := b.registry.List()
		formatted := make([]map[string]any, 0, len(speakers))
		for _, s := range speakers {
			formatted = append(formatted, b.formatSpeaker(s))
		}
		return api.WriteList(w, "/v1/speakers", formatted, false)
	}
}

func getSpeaker(b *Broker) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		s, err := b.registry.Lookup(chi.URLParam(r, "uid"))
		if err != nil {
			return toAppError(err)
		}
		return api.WriteResource(w, http.StatusOK, b.formatSpeaker(s))
	}
}

func removeSpeaker(b *Broker) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		uid := chi.URLParam(r, "uid")
		if err := b.RemoveSpeaker(r.Context(), uid); err != nil {
			return toAppError(err)
		}
		return api.WriteAction(w, http.StatusOK, map[string]any{
			"object":  "speaker",
			"uid":     speaker.NormalizeUID(uid),
			"deleted": true,
		})
	}
}

func getProperty(b *Broker) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		s, p, err := b.lookupProperty(r)
		if err != nil {
			return err
		}
		return api.WriteResource(w, http.StatusOK, formatProperty(s, p))
	}
}

type setPropertyInput struct {
	Value any  `json:"value"`
	Group bool `json:"group"`
}

func setProperty(b *Broker) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		s, p, err := b.lookupProperty(r)
		if err != nil {
			return err
		}
		var input setPropertyInput
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			return apperrors.NewValidationError("invalid request body", nil)
		}
		if input.Value == nil {
			return apperrors.NewValidationError("value is required", nil)
		}

		err = s.Set(r.Context(), p, input.Value, speaker.SetOptions{Trigger: true, Group: input.Group})
		b.dispatcher.FlushGroup(s)
		if err != nil {
			return toAppError(err)
		}
		return api.WriteResource(w, http.StatusOK, formatProperty(s, p))
	}
}

type actionInput struct {
	Group  bool   `json:"group"`
	Target string `json:"target"`
	Play   bool   `json:"play"`
	URI    string `json:"uri"`
	Name   string `json:"name"`
	Clear  bool   `json:"clear"`
}

func runAction(b *Broker) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		s, err := b.registry.Lookup(chi.URLParam(r, "uid"))
		if err != nil {
			return toAppError(err)
		}
		var input actionInput
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
				return apperrors.NewValidationError("invalid request body", nil)
			}
		}

		ctx := r.Context()
		action := chi.URLParam(r, "action")
		switch action {
		case "refresh":
			_, err = b.Refresh(ctx, s.UID())
		case "next":
			err = s.Next(ctx)
		case "previous":
			err = s.Previous(ctx)
		case "volume_up":
			err = s.VolumeUp(ctx, input.Group)
		case "volume_down":
			err = s.VolumeDown(ctx, input.Group)
		case "join":
			if input.Target == "" {
				return apperrors.NewValidationError("target is required", nil)
			}
			err = s.Join(ctx, input.Target)
			if err == nil {
				b.recompute(ctx)
			}
		case "unjoin":
			err = s.Unjoin(ctx, input.Play)
			if err == nil {
				b.recompute(ctx)
			}
		case "play_uri":
			if input.URI == "" {
				return apperrors.NewValidationError("uri is required", nil)
			}
			err = s.PlayURI(ctx, input.URI)
		case "playlist":
			err = s.LoadPlaylist(ctx, input.Name, input.Play, input.Clear)
		case "clear_queue":
			err = s.ClearQueue(ctx)
		case "add_to_queue":
			if input.URI == "" {
				return apperrors.NewValidationError("uri is required", nil)
			}
			err = s.AddToQueue(ctx, input.URI)
		case "partymode":
			err = s.PartyMode(ctx)
			if err == nil {
				b.recompute(ctx)
			}
		default:
			return apperrors.NewNotFoundResource("action", action)
		}
		b.dispatcher.FlushGroup(s)
		if err != nil {
			return toAppError(err)
		}
		return api.WriteAction(w, http.StatusOK, map[string]any{
			"object": "speaker_action",
			"uid":    s.UID(),
			"action": action,
			"status": "completed",
		})
	}
}

type snippetInput struct {
	URI          string `json:"uri"`
	Volume       *int   `json:"volume"`
	GroupCommand bool   `json:"group_command"`
	FadeIn       bool   `json:"fade_in"`
	TimeoutSec   int    `json:"timeout_sec"`
}

func playSnippet(b *Broker) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		var input snippetInput
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			return apperrors.NewValidationError("invalid request body", nil)
		}
		req := snippet.Request{
			URI:          input.URI,
			Volume:       -1,
			GroupCommand: input.GroupCommand,
			FadeIn:       input.FadeIn,
			Timeout:      time.Duration(input.TimeoutSec) * time.Second,
		}
		if input.Volume != nil {
			req.Volume = *input.Volume
		}

		uid := chi.URLParam(r, "uid")
		if client, ok := auth.ClientFromContext(r.Context()); ok {
			b.logger.Printf("SNIPPET: %s requested on %s by %s", req.URI, uid, client.DeviceName)
		}
		exec, err := b.snippets.Play(r.Context(), uid, req)
		if err != nil {
			return toAppError(err)
		}
		if s := b.registry.Get(exec.ZoneUID); s != nil {
			b.dispatcher.FlushGroup(s)
		}
		return api.WriteAction(w, http.StatusOK, formatExecution(exec))
	}
}

func stopSnippet(b *Broker) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		s, err := b.registry.Lookup(chi.URLParam(r, "uid"))
		if err != nil {
			return toAppError(err)
		}
		stopped := b.snippets.Stop(s.UID())
		return api.WriteAction(w, http.StatusOK, map[string]any{
			"object":  "snippet_stop",
			"zone":    s.CoordinatorUID(),
			"stopped": stopped,
		})
	}
}

func lastSnippet(b *Broker) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		s, err := b.registry.Lookup(chi.URLParam(r, "uid"))
		if err != nil {
			return toAppError(err)
		}
		exec := b.snippets.Last(s.CoordinatorUID())
		if exec == nil {
			return apperrors.NewNotFoundResource("snippet execution", s.CoordinatorUID())
		}
		return api.WriteResource(w, http.StatusOK, formatExecution(exec))
	}
}

func discover(b *Broker) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		added, err := b.Discover(r.Context())
		if err != nil {
			return apperrors.NewAppError(apperrors.ErrorCodeDiscoveryFailed, err.Error(), http.StatusServiceUnavailable, nil)
		}
		return api.WriteAction(w, http.StatusOK, map[string]any{
			"object":   "discovery",
			"added":    added,
			"speakers": b.registry.Len(),
		})
	}
}

func (b *Broker) lookupProperty(r *http.Request) (*speaker.Speaker, speaker.Property, error) {
	s, err := b.registry.Lookup(chi.URLParam(r, "uid"))
	if err != nil {
		return nil, 0, toAppError(err)
	}
	p, err := speaker.ParseProperty(chi.URLParam(r, "name"))
	if err != nil {
		return nil, 0, toAppError(err)
	}
	return s, p, nil
}

func (b *Broker) formatSpeaker(s *speaker.Speaker) map[string]any {
	out := map[string]any(s.Values())
	out["object"] = "speaker"
	out["snippet_running"] = b.snippets.Running(s.UID())
	subscriptions := []speaker.Category{}
	if m := b.Subscriptions(s.UID()); m != nil {
		subscriptions = m.Active()
	}
	out["subscriptions"] = subscriptions
	return out
}

func formatProperty(s *speaker.Speaker, p speaker.Property) map[string]any {
	return map[string]any{
		"object": "property",
		"uid":    s.UID(),
		"name":   p.String(),
		"value":  s.Get(p),
	}
}

func formatExecution(exec *snippet.Execution) map[string]any {
	out := map[string]any{
		"object":        "snippet_execution",
		"id":            exec.ID,
		"zone_uid":      exec.ZoneUID,
		"requested_uid": exec.RequestedUID,
		"uri":           exec.URI,
		"steps":         exec.Steps,
		"end_reason":    exec.EndReason,
		"started_at":    exec.StartedAt.UTC().Format(time.RFC3339),
		"finished_at":   exec.FinishedAt.UTC().Format(time.RFC3339),
	}
	if len(exec.Errors) > 0 {
		out["errors"] = exec.Errors
	}
	return out
}

// toAppError maps mirror and device errors onto API errors.
func toAppError(err error) error {
	var actionErr *speaker.ActionError
	uid := ""
	if errors.As(err, &actionErr) {
		uid = actionErr.UID
	}

	var rejected *soap.SonosRejectedError
	var timeout *soap.SonosTimeoutError
	switch {
	case errors.Is(err, speaker.ErrSpeakerNotFound):
		return apperrors.NewAppError(apperrors.ErrorCodeDeviceNotFound, err.Error(), http.StatusNotFound, nil)
	case errors.Is(err, speaker.ErrUnknownProperty):
		return apperrors.NewAppError(apperrors.ErrorCodePropertyNotFound, err.Error(), http.StatusNotFound, nil)
	case errors.Is(err, speaker.ErrReadOnly):
		return apperrors.NewAppError(apperrors.ErrorCodePropertyReadOnly, err.Error(), http.StatusBadRequest, nil)
	case errors.Is(err, speaker.ErrOutOfRange), errors.Is(err, speaker.ErrInvalidValue), errors.Is(err, snippet.ErrInvalidRequest):
		return apperrors.NewValidationError(err.Error(), nil)
	case errors.Is(err, sonos.ErrPlaylistNotFound):
		return apperrors.NewAppError(apperrors.ErrorCodePlaylistNotFound, err.Error(), http.StatusNotFound, nil)
	case errors.Is(err, snippet.ErrLockTimeout):
		return apperrors.NewAppError(apperrors.ErrorCodeSnippetLockHeld, err.Error(), http.StatusConflict, nil)
	case errors.As(err, &timeout):
		return apperrors.NewDeviceError(apperrors.ErrorCodeSonosTimeout, err.Error(), http.StatusGatewayTimeout, uid)
	case soap.IsOffline(err):
		return apperrors.NewDeviceError(apperrors.ErrorCodeDeviceOffline, err.Error(), http.StatusServiceUnavailable, uid)
	case errors.As(err, &rejected):
		return apperrors.NewDeviceError(apperrors.ErrorCodeSonosRejected, err.Error(), http.StatusBadGateway, uid)
	case actionErr != nil:
		return apperrors.NewDeviceError(apperrors.ErrorCodeSonosUnreachable, err.Error(), http.StatusBadGateway, uid)
	}
	return err
}
