package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"expertline/internal/config"
	"expertline/internal/db"
	"expertline/internal/domain"
	"expertline/internal/draft"
	"expertline/internal/engine"
	"expertline/internal/engine/access"
	"expertline/internal/migrate"
	"expertline/internal/repo"
	"expertline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "xl",
	Short: "Expertline CLI",
	Long: `Expertline runs a two-sided expert consultation marketplace.
Clients draft and publish requests, consultants make offers, accepting an
offer books the engagement, and no engagement completes without a finalized
knowledge transfer pack.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("EXPERTLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().Bool("admin", false, "act with admin rights (local workspace only)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("admin", rootCmd.PersistentFlags().Lookup("admin"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(requestCmd())
	rootCmd.AddCommand(profileCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(configCmd())
}

func principal() access.Principal {
	return access.Principal{
		ActorID: viper.GetString("actor-id"),
		Admin:   viper.GetBool("admin"),
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				authCfg := server.AuthConfig{
					JWTSecret:              os.Getenv("EXPERTLINE_JWT_SECRET"),
					PaymentCallbackSecret:  os.Getenv("EXPERTLINE_PAYMENT_CALLBACK_SECRET"),
					AllowLegacyActorHeader: e.Config.Auth.AllowActorHeader,
				}
				if authCfg.JWTSecret == "" {
					return fmt.Errorf("EXPERTLINE_JWT_SECRET is required for bearer auth")
				}
				if basePath == "" {
					basePath = e.Config.Service.BasePath
				}
				handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving Expertline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (defaults to config)")
	return cmd
}

func requestCmd() *cobra.Command {
	rq := &cobra.Command{Use: "request", Short: "Manage consultation requests"}
	rq.AddCommand(requestCreateCmd())
	rq.AddCommand(requestListCmd())
	rq.AddCommand(requestShowCmd())
	rq.AddCommand(requestPublishCmd())
	rq.AddCommand(requestCancelCmd())
	return rq
}

func requestCreateCmd() *cobra.Command {
	var title, description, urgency string
	var skills []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a draft request",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rq, err := e.CreateRequest(ctx, principal(), engine.RequestCreateOptions{
					Title:          title,
					RawDescription: description,
					Urgency:        urgency,
					Skills:         skills,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(rq)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&description, "description", "", "what you need help with")
	cmd.Flags().StringVar(&urgency, "urgency", "NORMAL", "LOW, NORMAL, HIGH or URGENT")
	cmd.Flags().StringArrayVar(&skills, "skill", []string{}, "required skill (repeatable)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

func requestListCmd() *cobra.Command {
	var mine bool
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListRequests(ctx, principal(), engine.RequestListOptions{Mine: mine, Status: status})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"ID", "Title", "Status", "Urgency", "Skills", "Created"})
				for _, rq := range items {
					t.AppendRow(table.Row{rq.ID, rq.Title, rq.Status, rq.Urgency, strings.Join(rq.Skills, ","), rq.CreatedAt})
				}
				t.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&mine, "mine", false, "only your own requests")
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

func requestShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rq, err := e.GetRequest(ctx, principal(), args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(rq)
			})
		},
	}
	return cmd
}

func requestPublishCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish <id>",
		Short: "Publish a draft request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rq, err := e.PublishRequest(ctx, principal(), args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(rq)
			})
		},
	}
	return cmd
}

func requestCancelCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rq, err := e.CancelRequest(ctx, principal(), args[0], reason)
				if err != nil {
					return err
				}
				return printJSONOrTable(rq)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the request is being cancelled")
	return cmd
}

func profileCmd() *cobra.Command {
	profile := &cobra.Command{Use: "profile", Short: "Manage your consultant profile"}
	var headline string
	var rate int64
	var skills []string
	upsert := &cobra.Command{
		Use:   "upsert",
		Short: "Create or replace your consultant profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.UpsertConsultantProfile(ctx, principal(), engine.ProfileUpsertOptions{
					Headline:        headline,
					HourlyRateCents: rate,
					Skills:          skills,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	upsert.Flags().StringVar(&headline, "headline", "", "one-line pitch")
	upsert.Flags().Int64Var(&rate, "rate-cents", 0, "hourly rate in cents")
	upsert.Flags().StringArrayVar(&skills, "skill", []string{}, "skill (repeatable)")
	_ = upsert.MarkFlagRequired("headline")
	_ = upsert.MarkFlagRequired("rate-cents")
	profile.AddCommand(upsert)

	show := &cobra.Command{
		Use:   "show <actor-id>",
		Short: "Show a consultant profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.GetConsultantProfile(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	profile.AddCommand(show)
	return profile
}

func auditCmd() *cobra.Command {
	a := &cobra.Command{Use: "audit", Short: "Inspect the audit log"}
	var n int
	var action, entityType, entityID string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Tail audit entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				// Local workspace inspection always acts as admin.
				p := principal()
				p.Admin = true
				entries, err := e.ListAuditLog(ctx, p, repo.AuditFilters{
					Action:     action,
					EntityType: entityType,
					EntityID:   entityID,
					Limit:      n,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"ID", "TS", "Actor", "Action", "Entity", "Entity ID"})
				for _, entry := range entries {
					t.AppendRow(table.Row{entry.ID, entry.TS, entry.ActorID, entry.Action, entry.EntityType, entry.EntityID})
				}
				t.Render()
				return nil
			})
		},
	}
	tail.Flags().IntVar(&n, "n", 20, "number of entries")
	tail.Flags().StringVar(&action, "action", "", "action filter")
	tail.Flags().StringVar(&entityType, "entity-type", "", "entity type filter")
	tail.Flags().StringVar(&entityID, "entity-id", "", "entity id filter")
	a.AddCommand(tail)
	return a
}

func apikeyCmd() *cobra.Command {
	ak := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	ak.AddCommand(apikeyCreateCmd())
	ak.AddCommand(apikeyListCmd())
	ak.AddCommand(apikeyDeleteCmd())
	return ak
}

func apikeyCreateCmd() *cobra.Command {
	var actorID, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (prints the key once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if actorID == "" {
				actorID = viper.GetString("actor-id")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				raw := uuid.NewString() + uuid.NewString()
				key := domain.APIKey{
					ID:      uuid.NewString(),
					ActorID: actorID,
					Name:    name,
					KeyHash: repo.HashAPIKey(raw),
				}
				tx, err := r.DB.BeginTx(ctx, nil)
				if err != nil {
					return err
				}
				defer tx.Rollback()
				now := time.Now().UTC().Format(time.RFC3339)
				if err := r.EnsureActor(ctx, tx, domain.Actor{ID: actorID, CreatedAt: now}); err != nil {
					return err
				}
				if err := r.InsertAPIKey(ctx, tx, key); err != nil {
					return err
				}
				if err := tx.Commit(); err != nil {
					return err
				}
				fmt.Printf("API key created for %s (id=%s)\n", actorID, key.ID)
				fmt.Printf("Key (store it now, it is not shown again): %s\n", raw)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "actor id (defaults to --actor-id)")
	cmd.Flags().StringVar(&name, "name", "", "key name")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var actorID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx, actorID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"ID", "Actor", "Name", "Created"})
				for _, k := range keys {
					t.AppendRow(table.Row{k.ID, k.ActorID, k.Name, k.CreatedAt})
				}
				t.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "filter by actor id")
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func tokenCmd() *cobra.Command {
	tk := &cobra.Command{Use: "token", Short: "Issue development JWTs"}
	var subject string
	var roles []string
	var ttl time.Duration
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Issue a signed JWT (dev only, uses EXPERTLINE_JWT_SECRET)",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("EXPERTLINE_JWT_SECRET")
			if secret == "" {
				return fmt.Errorf("EXPERTLINE_JWT_SECRET is required")
			}
			if subject == "" {
				subject = viper.GetString("actor-id")
			}
			now := time.Now()
			claims := jwt.MapClaims{
				"sub": subject,
				"iat": now.Unix(),
				"exp": now.Add(ttl).Unix(),
			}
			if len(roles) > 0 {
				claims["roles"] = roles
			}
			token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
			signed, err := token.SignedString([]byte(secret))
			if err != nil {
				return err
			}
			fmt.Println(signed)
			return nil
		},
	}
	issue.Flags().StringVar(&subject, "subject", "", "actor id (defaults to --actor-id)")
	issue.Flags().StringArrayVar(&roles, "role", []string{}, "role claim (repeatable, e.g. admin)")
	issue.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	tk.AddCommand(issue)
	return tk
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage workspace config"}
	cfg.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write default expertline.yml to the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(c)
		},
	})
	return cfg
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	var drafter draft.Service
	if apiKey := os.Getenv("EXPERTLINE_OPENAI_API_KEY"); apiKey != "" {
		drafter = draft.NewClient(apiKey, cfg.Drafting.Model, cfg.Drafting.ResponsesURL)
	}
	e := engine.New(conn, cfg, drafter)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
