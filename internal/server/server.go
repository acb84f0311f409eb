// Package server exposes the lifecycle engine over HTTP with huma on chi.
// Every error uses a single envelope whose code mirrors the engine taxonomy.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"expertline/internal/domain"
	"expertline/internal/engine"
	"expertline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"INVALID_STATUS"`
	Message string         `json:"message" example:"offer abc is DECLINED, cannot accept"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Expertline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Expertline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerProfiles(group, cfg.Engine)
	registerRequests(group, cfg.Engine)
	registerOffers(group, cfg.Engine)
	registerEngagements(group, cfg.Engine)
	registerTransferPacks(group, cfg.Engine)
	registerPayments(group, cfg.Engine, cfg.Auth)
	registerAudit(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// handleError maps the engine taxonomy onto HTTP statuses. The engine code
// travels verbatim in the envelope.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	code := engine.CodeOf(err)
	if code == "" && errors.Is(err, repo.ErrNotFound) {
		code = engine.CodeNotFound
	}
	switch code {
	case engine.CodeUnauthorized, engine.CodeAuthFailed:
		return newAPIError(http.StatusUnauthorized, string(code), err.Error(), nil)
	case engine.CodeForbidden, engine.CodeNoProfile:
		return newAPIError(http.StatusForbidden, string(code), err.Error(), nil)
	case engine.CodeNotFound:
		return newAPIError(http.StatusNotFound, string(code), err.Error(), nil)
	case engine.CodeInvalidStatus, engine.CodeAlreadyExists, engine.CodeAlreadyFinalized, engine.CodeSelfOffer:
		return newAPIError(http.StatusConflict, string(code), err.Error(), nil)
	case engine.CodeIncomplete, engine.CodeTransferRequired, engine.CodePaymentRequired:
		return newAPIError(http.StatusUnprocessableEntity, string(code), err.Error(), nil)
	case engine.CodeValidation:
		return newAPIError(http.StatusBadRequest, string(code), err.Error(), nil)
	case engine.CodeAIError:
		return newAPIError(http.StatusBadGateway, string(code), err.Error(), nil)
	default:
		return newAPIError(http.StatusInternalServerError, "INTERNAL", "internal error", map[string]any{"error": err.Error()})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return string(engine.CodeValidation)
	case http.StatusUnauthorized:
		return string(engine.CodeUnauthorized)
	case http.StatusForbidden:
		return string(engine.CodeForbidden)
	case http.StatusNotFound:
		return string(engine.CodeNotFound)
	case http.StatusConflict:
		return string(engine.CodeInvalidStatus)
	default:
		return strings.ToUpper(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	open := map[string]bool{
		path.Join(basePath, "health"):            true,
		path.Join(basePath, "payments/callback"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if open[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Expertline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerProfiles(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "upsert-profile",
		Method:      http.MethodPut,
		Path:        "/profiles/me",
		Summary:     "Create or replace your consultant profile",
	}, func(ctx context.Context, input *struct {
		Body ProfileUpsertBody `json:"body"`
	}) (*struct {
		Body domain.ConsultantProfile `json:"body"`
	}, error) {
		p := principalFromContext(ctx)
		profile, err := e.UpsertConsultantProfile(ctx, p, engine.ProfileUpsertOptions{
			Headline:        input.Body.Headline,
			Bio:             input.Body.Bio,
			HourlyRateCents: input.Body.HourlyRateCents,
			Currency:        input.Body.Currency,
			Skills:          input.Body.Skills,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ConsultantProfile `json:"body"`
		}{Body: profile}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-profile",
		Method:      http.MethodGet,
		Path:        "/profiles/{actor_id}",
		Summary:     "Get a consultant profile",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ActorID string `path:"actor_id"`
	}) (*struct {
		Body domain.ConsultantProfile `json:"body"`
	}, error) {
		profile, err := e.GetConsultantProfile(ctx, input.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ConsultantProfile `json:"body"`
		}{Body: profile}, nil
	})
}

func registerRequests(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-request",
		Method:        http.MethodPost,
		Path:          "/requests",
		Summary:       "Create a draft consultation request",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body RequestCreateBody `json:"body"`
	}) (*struct {
		Body domain.Request `json:"body"`
	}, error) {
		p := principalFromContext(ctx)
		rq, err := e.CreateRequest(ctx, p, engine.RequestCreateOptions{
			Title:                 input.Body.Title,
			RawDescription:        input.Body.Description,
			Constraints:           input.Body.Constraints,
			DesiredOutcome:        input.Body.DesiredOutcome,
			Urgency:               input.Body.Urgency,
			BudgetCents:           input.Body.BudgetCents,
			Currency:              input.Body.Currency,
			SuggestedDurationMins: input.Body.SuggestedDurationMins,
			IsPublic:              input.Body.IsPublic,
			Skills:                input.Body.Skills,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Request `json:"body"`
		}{Body: rq}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-requests",
		Method:      http.MethodGet,
		Path:        "/requests",
		Summary:     "List requests (market or your own)",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Mine   bool   `query:"mine"`
		Status string `query:"status"`
		Limit  int    `query:"limit"`
		Cursor string `query:"cursor"`
	}) (*struct {
		Body []domain.Request `json:"body"`
	}, error) {
		p := principalFromContext(ctx)
		items, err := e.ListRequests(ctx, p, engine.RequestListOptions{
			Mine:   input.Mine,
			Status: input.Status,
			Limit:  input.Limit,
			Cursor: input.Cursor,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Request `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-request",
		Method:      http.MethodGet,
		Path:        "/requests/{request_id}",
		Summary:     "Get a request",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		RequestID string `path:"request_id"`
	}) (*struct {
		Body domain.Request `json:"body"`
	}, error) {
		p := principalFromContext(ctx)
		rq, err := e.GetRequest(ctx, p, input.RequestID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Request `json:"body"`
		}{Body: rq}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-request",
		Method:      http.MethodPatch,
		Path:        "/requests/{request_id}",
		Summary:     "Edit a draft request",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		RequestID string            `path:"request_id"`
		Body      RequestUpdateBody `json:"body"`
	}) (*struct {
		Body domain.Request `json:"body"`
	}, error) {
		p := principalFromContext(ctx)
		rq, err := e.UpdateRequest(ctx, p, input.RequestID, engine.RequestUpdateOptions{
			Title:                 input.Body.Title,
			RawDescription:        input.Body.Description,
			Constraints:           input.Body.Constraints,
			DesiredOutcome:        input.Body.DesiredOutcome,
			Urgency:               input.Body.Urgency,
			BudgetCents:           input.Body.BudgetCents,
			Currency:              input.Body.Currency,
			SuggestedDurationMins: input.Body.SuggestedDurationMins,
			IsPublic:              input.Body.IsPublic,
			Skills:                input.Body.Skills,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Request `json:"body"`
		}{Body: rq}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "publish-request",
		Method:      http.MethodPost,
		Path:        "/requests/{request_id}/publish",
		Summary:     "Publish a draft to the market",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		RequestID string `path:"request_id"`
	}) (*struct {
		Body domain.Request `json:"body"`
	}, error) {
		p := principalFromContext(ctx)
		rq, err := e.PublishRequest(ctx, p, input.RequestID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Request `json:"body"`
		}{Body: rq}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "refine-request",
		Method:      http.MethodPost,
		Path:        "/requests/{request_id}/refine",
		Summary:     "Draft a refined summary of the request",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusBadGateway},
	}, func(ctx context.Context, input *struct {
		RequestID string `path:"request_id"`
	}) (*struct {
		Body domain.Request `json:"body"`
	}, error) {
		p := principalFromContext(ctx)
		rq, err := e.RefineRequest(ctx, p, input.RequestID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Request `json:"body"`
		}{Body: rq}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-request",
		Method:      http.MethodPost,
		Path:        "/requests/{request_id}/cancel",
		Summary:     "Cancel a request, declining open offers",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		RequestID string            `path:"request_id"`
		Body      RequestCancelBody `json:"body,omitempty"`
	}) (*struct {
		Body domain.Request `json:"body"`
	}, error) {
		p := principalFromContext(ctx)
		rq, err := e.CancelRequest(ctx, p, input.RequestID, input.Body.Reason)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Request `json:"body"`
		}{Body: rq}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "match-request",
		Method:      http.MethodPost,
		Path:        "/requests/{request_id}/matches",
		Summary:     "Suggest consultants for a request",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusBadGateway},
	}, func(ctx context.Context, input *struct {
		RequestID string `path:"request_id"`
		Limit     int    `query:"limit"`
	}) (*struct {
		Body []engine.Match `json:"body"`
	}, error) {
		p := principalFromContext(ctx)
		matches, err := e.FindMatches(ctx, p, input.RequestID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []engine.Match `json:"body"`
		}{Body: matches}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-request-offers",
		Method:      http.MethodGet,
		Path:        "/requests/{request_id}/offers",
		Summary:     "List offers on a request",
		Errors:      []int{http.StatusNotFound, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		RequestID string `path:"request_id"`
	}) (*struct {
		Body []domain.Offer `json:"body"`
	}, error) {
		p := principalFromContext(ctx)
		items, err := e.ListOffersForRequest(ctx, p, input.RequestID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Offer `json:"body"`
		}{Body: items}, nil
	})
}

func registerOffers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-offer",
		Method:        http.MethodPost,
		Path:          "/offers",
		Summary:       "Offer to consult on a request",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body OfferCreateBody `json:"body"`
	}) (*struct {
		Body domain.Offer `json:"body"`
	}, error) {
		p := principalFromContext(ctx)
		o, err := e.CreateOffer(ctx, p, engine.OfferCreateOptions{
			RequestID:         input.Body.RequestID,
			Message:           input.Body.Message,
			ProposedRateCents: input.Body.ProposedRateCents,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Offer `json:"body"`
		}{Body: o}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-own-offers",
		Method:      http.MethodGet,
		Path:        "/offers",
		Summary:     "List your offers",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Offer `json:"body"`
	}, error) {
		p := principalFromContext(ctx)
		items, err := e.ListOwnOffers(ctx, p)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Offer `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "accept-offer",
		Method:      http.MethodPost,
		Path:        "/offers/{offer_id}/accept",
		Summary:     "Accept an offer, booking the request",
		Description: "Accepts the offer, declines pending siblings, and creates the booking, payment and engagement in one transaction.",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		OfferID string          `path:"offer_id"`
		Body    OfferAcceptBody `json:"body,omitempty"`
	}) (*struct {
		Body engine.AcceptResult `json:"body"`
	}, error) {
		p := principalFromContext(ctx)
		res, err := e.AcceptOffer(ctx, p, input.OfferID, engine.AcceptOptions{
			ScheduledStart: input.Body.ScheduledStart,
			DurationMins:   input.Body.DurationMins,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.AcceptResult `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "decline-offer",
		Method:      http.MethodPost,
		Path:        "/offers/{offer_id}/decline",
		Summary:     "Decline a pending offer",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		OfferID string           `path:"offer_id"`
		Body    OfferDeclineBody `json:"body,omitempty"`
	}) (*struct {
		Body domain.Offer `json:"body"`
	}, error) {
		p := principalFromContext(ctx)
		o, err := e.DeclineOffer(ctx, p, input.OfferID, input.Body.Reason)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Offer `json:"body"`
		}{Body: o}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "withdraw-offer",
		Method:      http.MethodPost,
		Path:        "/offers/{offer_id}/withdraw",
		Summary:     "Withdraw your pending offer",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		OfferID string `path:"offer_id"`
	}) (*struct {
		Body domain.Offer `json:"body"`
	}, error) {
		p := principalFromContext(ctx)
		o, err := e.WithdrawOffer(ctx, p, input.OfferID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Offer `json:"body"`
		}{Body: o}, nil
	})
}

func registerEngagements(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-engagements",
		Method:      http.MethodGet,
		Path:        "/engagements",
		Summary:     "List your engagements",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Engagement `json:"body"`
	}, error) {
		p := principalFromContext(ctx)
		items, err := e.ListEngagements(ctx, p)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Engagement `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-engagement",
		Method:      http.MethodGet,
		Path:        "/engagements/{engagement_id}",
		Summary:     "Get an engagement workspace",
		Errors:      []int{http.StatusNotFound, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		EngagementID string `path:"engagement_id"`
	}) (*struct {
		Body engine.EngagementView `json:"body"`
	}, error) {
		p := principalFromContext(ctx)
		view, err := e.GetEngagement(ctx, p, input.EngagementID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.EngagementView `json:"body"`
		}{Body: view}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-engagement",
		Method:      http.MethodPatch,
		Path:        "/engagements/{engagement_id}",
		Summary:     "Edit agenda, video link, or pause/resume",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		EngagementID string               `path:"engagement_id"`
		Body         EngagementUpdateBody `json:"body"`
	}) (*struct {
		Body domain.Engagement `json:"body"`
	}, error) {
		p := principalFromContext(ctx)
		eng, err := e.UpdateEngagement(ctx, p, input.EngagementID, engine.EngagementUpdateOptions{
			Agenda:    input.Body.Agenda,
			VideoLink: input.Body.VideoLink,
			Status:    input.Body.Status,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Engagement `json:"body"`
		}{Body: eng}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-engagement",
		Method:      http.MethodPost,
		Path:        "/engagements/{engagement_id}/complete",
		Summary:     "Complete an engagement (finalized transfer pack required)",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		EngagementID string `path:"engagement_id"`
	}) (*struct {
		Body domain.Engagement `json:"body"`
	}, error) {
		p := principalFromContext(ctx)
		eng, err := e.CompleteEngagement(ctx, p, input.EngagementID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Engagement `json:"body"`
		}{Body: eng}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "send-message",
		Method:        http.MethodPost,
		Path:          "/engagements/{engagement_id}/messages",
		Summary:       "Send a message",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusNotFound, http.StatusUnprocessableEntity, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		EngagementID string `path:"engagement_id"`
		Body         struct {
			Body string `json:"body" minLength:"1"`
		} `json:"body"`
	}) (*struct {
		Body domain.Message `json:"body"`
	}, error) {
		p := principalFromContext(ctx)
		m, err := e.SendMessage(ctx, p, input.EngagementID, input.Body.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Message `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-messages",
		Method:      http.MethodGet,
		Path:        "/engagements/{engagement_id}/messages",
		Summary:     "List messages in order",
		Errors:      []int{http.StatusNotFound, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		EngagementID string `path:"engagement_id"`
	}) (*struct {
		Body []domain.Message `json:"body"`
	}, error) {
		p := principalFromContext(ctx)
		items, err := e.ListMessages(ctx, p, input.EngagementID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Message `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-note",
		Method:        http.MethodPost,
		Path:          "/engagements/{engagement_id}/notes",
		Summary:       "Add a note",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusNotFound, http.StatusUnprocessableEntity, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		EngagementID string         `path:"engagement_id"`
		Body         NoteCreateBody `json:"body"`
	}) (*struct {
		Body domain.Note `json:"body"`
	}, error) {
		p := principalFromContext(ctx)
		n, err := e.CreateNote(ctx, p, input.EngagementID, engine.NoteCreateOptions{
			Title:     input.Body.Title,
			Content:   input.Body.Content,
			IsPrivate: input.Body.IsPrivate,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Note `json:"body"`
		}{Body: n}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-notes",
		Method:      http.MethodGet,
		Path:        "/engagements/{engagement_id}/notes",
		Summary:     "List notes (shared plus your private ones)",
		Errors:      []int{http.StatusNotFound, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		EngagementID string `path:"engagement_id"`
	}) (*struct {
		Body []domain.Note `json:"body"`
	}, error) {
		p := principalFromContext(ctx)
		items, err := e.ListNotes(ctx, p, input.EngagementID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Note `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-checklist-item",
		Method:        http.MethodPost,
		Path:          "/engagements/{engagement_id}/checklist",
		Summary:       "Append a checklist item",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusNotFound, http.StatusUnprocessableEntity, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		EngagementID string `path:"engagement_id"`
		Body         struct {
			Text string `json:"text" minLength:"1"`
		} `json:"body"`
	}) (*struct {
		Body domain.ChecklistItem `json:"body"`
	}, error) {
		p := principalFromContext(ctx)
		item, err := e.AddChecklistItem(ctx, p, input.EngagementID, input.Body.Text)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ChecklistItem `json:"body"`
		}{Body: item}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "toggle-checklist-item",
		Method:      http.MethodPost,
		Path:        "/engagements/{engagement_id}/checklist/{item_id}/toggle",
		Summary:     "Toggle a checklist item",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		EngagementID string `path:"engagement_id"`
		ItemID       string `path:"item_id"`
	}) (*struct {
		Body domain.ChecklistItem `json:"body"`
	}, error) {
		p := principalFromContext(ctx)
		item, err := e.ToggleChecklistItem(ctx, p, input.EngagementID, input.ItemID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ChecklistItem `json:"body"`
		}{Body: item}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-checklist",
		Method:      http.MethodGet,
		Path:        "/engagements/{engagement_id}/checklist",
		Summary:     "List checklist items in order",
		Errors:      []int{http.StatusNotFound, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		EngagementID string `path:"engagement_id"`
	}) (*struct {
		Body []domain.ChecklistItem `json:"body"`
	}, error) {
		p := principalFromContext(ctx)
		items, err := e.ListChecklist(ctx, p, input.EngagementID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.ChecklistItem `json:"body"`
		}{Body: items}, nil
	})
}

func registerTransferPacks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-transfer-pack",
		Method:      http.MethodGet,
		Path:        "/engagements/{engagement_id}/transfer-pack",
		Summary:     "Get the transfer pack",
		Errors:      []int{http.StatusNotFound, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		EngagementID string `path:"engagement_id"`
	}) (*struct {
		Body domain.TransferPack `json:"body"`
	}, error) {
		p := principalFromContext(ctx)
		pack, err := e.GetTransferPack(ctx, p, input.EngagementID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TransferPack `json:"body"`
		}{Body: pack}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "generate-transfer-pack",
		Method:      http.MethodPost,
		Path:        "/engagements/{engagement_id}/transfer-pack/generate",
		Summary:     "Draft the transfer pack from the workspace",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity, http.StatusBadGateway},
	}, func(ctx context.Context, input *struct {
		EngagementID string `path:"engagement_id"`
	}) (*struct {
		Body domain.TransferPack `json:"body"`
	}, error) {
		p := principalFromContext(ctx)
		pack, err := e.GenerateTransferPack(ctx, p, input.EngagementID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TransferPack `json:"body"`
		}{Body: pack}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-transfer-pack",
		Method:      http.MethodPatch,
		Path:        "/engagements/{engagement_id}/transfer-pack",
		Summary:     "Edit the draft transfer pack",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		EngagementID string         `path:"engagement_id"`
		Body         PackUpdateBody `json:"body"`
	}) (*struct {
		Body domain.TransferPack `json:"body"`
	}, error) {
		p := principalFromContext(ctx)
		pack, err := e.UpdateTransferPack(ctx, p, input.EngagementID, engine.PackUpdateOptions{
			Summary:                  input.Body.Summary,
			KeyDecisions:             input.Body.KeyDecisions,
			Runbook:                  input.Body.Runbook,
			NextSteps:                input.Body.NextSteps,
			InternalizationChecklist: input.Body.InternalizationChecklist,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TransferPack `json:"body"`
		}{Body: pack}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "finalize-transfer-pack",
		Method:      http.MethodPost,
		Path:        "/engagements/{engagement_id}/transfer-pack/finalize",
		Summary:     "Finalize the transfer pack, marking the engagement transferred",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		EngagementID string `path:"engagement_id"`
	}) (*struct {
		Body domain.TransferPack `json:"body"`
	}, error) {
		p := principalFromContext(ctx)
		pack, err := e.FinalizeTransferPack(ctx, p, input.EngagementID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TransferPack `json:"body"`
		}{Body: pack}, nil
	})
}

func registerAudit(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-audit-log",
		Method:      http.MethodGet,
		Path:        "/audit",
		Summary:     "List audit log entries (admin)",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ActorID    string `query:"actor_id"`
		Action     string `query:"action"`
		EntityType string `query:"entity_type"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit"`
		Cursor     int64  `query:"cursor"`
	}) (*struct {
		Body []domain.AuditLogEntry `json:"body"`
	}, error) {
		p := principalFromContext(ctx)
		items, err := e.ListAuditLog(ctx, p, repo.AuditFilters{
			ActorID:    input.ActorID,
			Action:     input.Action,
			EntityType: input.EntityType,
			EntityID:   input.EntityID,
			Limit:      input.Limit,
			Cursor:     input.Cursor,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.AuditLogEntry `json:"body"`
		}{Body: items}, nil
	})
}
