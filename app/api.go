package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fiffu/feedwatch/config"
	"github.com/fiffu/feedwatch/lib"
	"github.com/fiffu/feedwatch/lib/models"
	"github.com/fiffu/feedwatch/lib/poller"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewAPI serves the control API when SERVER_PORT is set. It returns nil
// otherwise.
func NewAPI(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, svc *lib.Service) *http.Server {
	if cfg.ServerPort <= 0 {
		log.Sugar().Info("Control API disabled since SERVER_PORT is not set")
		return nil
	}

	addr := fmt.Sprintf(":%d", cfg.ServerPort)
	srv := &http.Server{Addr: addr, Handler: router(cfg, log, svc)}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Sugar().Errorw("Control API stopped", "err", err)
				}
			}()
			log.Sugar().Infow("Control API listening", "addr", addr)
			return nil
		},
		OnStop: srv.Shutdown,
	})

	return srv
}

func router(cfg *config.Config, log *zap.Logger, svc *lib.Service) http.Handler {
	ctrl := &controller{log, svc}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		if creds := cfg.GetCreds(); len(creds) > 0 {
			r.Use(middleware.BasicAuth("feedwatch", creds))
		} else {
			log.Sugar().Info("Auth is disabled since no credentials are defined")
		}

		r.Route("/tenants/{tenant_id}", func(r chi.Router) {
			r.Get("/", ctrl.viewTenant)

			r.Get("/subscriptions", ctrl.listSubscriptions)
			r.Post("/subscriptions", ctrl.subscribe)
			r.Delete("/subscriptions", ctrl.unsubscribe)
			r.Post("/test", ctrl.testFeed)
			r.Post("/check", ctrl.forceCheck)

			r.Get("/keywords", ctrl.listKeywords)
			r.Put("/keywords", ctrl.setKeywords)
			r.Delete("/keywords", ctrl.clearKeywords)
			r.Post("/keywords/add", ctrl.addKeywords)
			r.Post("/keywords/remove", ctrl.removeKeywords)
			r.Post("/keywords/reset", ctrl.resetKeywords)

			r.Put("/logs", ctrl.setLogChannel)
			r.Delete("/logs", ctrl.removeLogChannel)
		})
	})

	return r
}

type controller struct {
	log *zap.Logger
	svc *lib.Service
}

func (ctrl *controller) reject(w http.ResponseWriter, status int, err error) {
	if err != nil {
		http.Error(w, err.Error(), status)
	} else {
		w.WriteHeader(status)
	}
}

// fail maps service errors onto HTTP statuses.
func (ctrl *controller) fail(w http.ResponseWriter, err error) {
	var (
		fetchErr   *models.FetchError
		invalidErr *models.InvalidFeedError
	)
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrUnknownTenant), errors.Is(err, models.ErrNotSubscribed):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrAlreadySubscribed):
		status = http.StatusConflict
	case errors.Is(err, models.ErrInvalidFeedURL),
		errors.Is(err, models.ErrInvalidDestination),
		errors.Is(err, models.ErrNoKeywords),
		errors.Is(err, models.ErrNoLogDestination):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrNotPrivileged):
		status = http.StatusForbidden
	case errors.Is(err, models.ErrNoEntries), errors.As(err, &invalidErr):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &fetchErr):
		status = http.StatusBadGateway
	case errors.Is(err, poller.ErrStopped):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		ctrl.log.Sugar().Errorw("Request failed", "err", err)
	}
	ctrl.reject(w, status, err)
}

func (ctrl *controller) resolve(w http.ResponseWriter, status int, body any) {
	if b, err := json.Marshal(body); err != nil {
		ctrl.reject(w, http.StatusInternalServerError, err)
		ctrl.log.Sugar().Errorw("Request failed", "err", err)
		return
	} else {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if b != nil {
			w.Write(b)
		}
	}
}

func (ctrl *controller) viewTenant(w http.ResponseWriter, r *http.Request) {
	tenant, err := ctrl.svc.Tenant(chi.URLParam(r, "tenant_id"))
	if err != nil {
		ctrl.fail(w, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, TenantView{}.From(tenant))
}

func (ctrl *controller) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := ctrl.svc.List(chi.URLParam(r, "tenant_id"))
	if err != nil {
		ctrl.fail(w, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, FromMany[models.Subscription, SubscriptionView](subs))
}

func (ctrl *controller) subscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := chi.URLParam(r, "tenant_id")
	url := r.FormValue("url")
	if url == "" {
		ctrl.reject(w, http.StatusBadRequest, errors.New("url is required"))
		return
	}

	var dest models.Destination
	if raw := r.FormValue("destination"); raw != "" {
		parsed, err := models.ParseDestination(raw)
		if err != nil {
			ctrl.fail(w, err)
			return
		}
		dest = parsed
	}

	res, err := ctrl.svc.Subscribe(ctx, tenantID, dest, url)
	if res == nil {
		ctrl.fail(w, err)
		return
	}
	view := SubscribeView{}.From(res)
	if err != nil {
		view.Warning = err.Error()
	}
	ctrl.resolve(w, http.StatusCreated, view)
}

func (ctrl *controller) unsubscribe(w http.ResponseWriter, r *http.Request) {
	if err := ctrl.svc.Unsubscribe(r.Context(), chi.URLParam(r, "tenant_id"), r.FormValue("url")); err != nil {
		ctrl.fail(w, err)
		return
	}
	ctrl.reject(w, http.StatusNoContent, nil)
}

func (ctrl *controller) testFeed(w http.ResponseWriter, r *http.Request) {
	res, err := ctrl.svc.Test(r.Context(), chi.URLParam(r, "tenant_id"), r.FormValue("url"))
	if err != nil {
		ctrl.fail(w, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, TestView{}.From(res))
}

// forceCheck runs a manual cycle for the tenant and waits for its report.
// Callers past basic auth are privileged.
func (ctrl *controller) forceCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	invoker, _, _ := r.BasicAuth()
	if invoker == "" {
		invoker = "api"
	}

	reports := make(chan *poller.CycleReport, 1)
	err := ctrl.svc.ForceCheck(ctx, chi.URLParam(r, "tenant_id"), invoker, true, func(_ context.Context, report *poller.CycleReport) {
		reports <- report
	})
	if err != nil {
		ctrl.fail(w, err)
		return
	}

	select {
	case report := <-reports:
		ctrl.resolve(w, http.StatusOK, CycleReportView{}.From(report))
	case <-ctx.Done():
		ctrl.reject(w, http.StatusAccepted, nil)
	}
}

func (ctrl *controller) listKeywords(w http.ResponseWriter, r *http.Request) {
	kws := ctrl.svc.ListKeywords(chi.URLParam(r, "tenant_id"))
	ctrl.resolve(w, http.StatusOK, map[string]any{"keywords": nonNil(kws)})
}

func (ctrl *controller) setKeywords(w http.ResponseWriter, r *http.Request) {
	kws, err := ctrl.svc.SetKeywords(r.Context(), chi.URLParam(r, "tenant_id"), formKeywords(r))
	if err != nil {
		ctrl.fail(w, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, map[string]any{"keywords": nonNil(kws)})
}

func (ctrl *controller) addKeywords(w http.ResponseWriter, r *http.Request) {
	all, added, err := ctrl.svc.AddKeywords(r.Context(), chi.URLParam(r, "tenant_id"), formKeywords(r))
	if err != nil {
		ctrl.fail(w, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, map[string]any{"keywords": nonNil(all), "added": nonNil(added)})
}

func (ctrl *controller) removeKeywords(w http.ResponseWriter, r *http.Request) {
	remaining, removed, err := ctrl.svc.RemoveKeywords(r.Context(), chi.URLParam(r, "tenant_id"), formKeywords(r))
	if err != nil {
		ctrl.fail(w, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, map[string]any{"keywords": nonNil(remaining), "removed": nonNil(removed)})
}

func (ctrl *controller) clearKeywords(w http.ResponseWriter, r *http.Request) {
	n, err := ctrl.svc.ClearKeywords(r.Context(), chi.URLParam(r, "tenant_id"))
	if err != nil {
		ctrl.fail(w, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, map[string]any{"cleared": n})
}

func (ctrl *controller) resetKeywords(w http.ResponseWriter, r *http.Request) {
	kws, err := ctrl.svc.ResetKeywords(r.Context(), chi.URLParam(r, "tenant_id"))
	if err != nil {
		ctrl.fail(w, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, map[string]any{"keywords": nonNil(kws)})
}

func (ctrl *controller) setLogChannel(w http.ResponseWriter, r *http.Request) {
	dest, err := models.ParseDestination(r.FormValue("destination"))
	if err != nil {
		ctrl.fail(w, err)
		return
	}

	err = ctrl.svc.SetLogChannel(r.Context(), chi.URLParam(r, "tenant_id"), dest)
	var deliveryErr *models.DeliveryError
	if err != nil && !errors.As(err, &deliveryErr) {
		ctrl.fail(w, err)
		return
	}
	body := map[string]any{"log_destination": dest.String()}
	if err != nil {
		body["warning"] = err.Error()
	}
	ctrl.resolve(w, http.StatusOK, body)
}

func (ctrl *controller) removeLogChannel(w http.ResponseWriter, r *http.Request) {
	if err := ctrl.svc.RemoveLogChannel(r.Context(), chi.URLParam(r, "tenant_id")); err != nil {
		ctrl.fail(w, err)
		return
	}
	ctrl.reject(w, http.StatusNoContent, nil)
}

// formKeywords accepts repeated "keyword" values or one comma-separated
// "keywords" value.
func formKeywords(r *http.Request) []string {
	r.ParseForm()
	kws := append([]string(nil), r.Form["keyword"]...)
	if raw := r.Form.Get("keywords"); raw != "" {
		kws = append(kws, strings.Split(raw, ",")...)
	}
	return kws
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
