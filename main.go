package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jestadalan-dotcom/Jes-Bingo/config"
	"github.com/jestadalan-dotcom/Jes-Bingo/routes"
	"github.com/jestadalan-dotcom/Jes-Bingo/services"
	"github.com/jestadalan-dotcom/Jes-Bingo/utils/logger"
)

const releaseVersion = "0.2.0"

func newCmd(cfg *config.Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("BINGO")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "bingohost",
		Short:         "Host-authoritative live bingo sessions over direct peer channels.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		SilenceUsage:  true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cfg)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.Bind, "bind", "b", "0.0.0.0", "address to bind to (env: BINGO_BIND)")
	fs.IntVarP(&cfg.Port, "port", "p", 4000, "port to listen on (env: BINGO_PORT)")
	fs.StringVar(&cfg.PublicURL, "public-url", "", "externally visible base URL for join links (env: BINGO_PUBLIC_URL)")
	fs.StringSliceVar(&cfg.AllowedOrigins, "allowed-origins", []string{"http://localhost:3000"}, "CORS origins allowed on the REST surface (env: BINGO_ALLOWED_ORIGINS)")
	fs.DurationVar(&cfg.CallInterval, "call-interval", 6*time.Second, "default pause between auto-called items (env: BINGO_CALL_INTERVAL)")
	fs.StringVar(&cfg.ThemeEndpoint, "theme-endpoint", "", "themed item generation endpoint, blank for the default (env: BINGO_THEME_ENDPOINT)")
	fs.StringVar(&cfg.ThemeAPIKey, "theme-api-key", "", "API key for the theme service (env: BINGO_THEME_API_KEY)")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", false, "log at debug level (env: BINGO_VERBOSE)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("bingohost v{{.Version}}\n")

	return cmd
}

// setupRouter wires middleware, the REST control surface, the health check,
// and the websocket endpoint players dial.
func setupRouter(cfg *config.Config, reg *services.Registry) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.SetupRoutes(r, cfg, reg)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now()})
	})

	// WebSocket room endpoint
	r.GET("/ws/:code", services.HandleWebSocket(reg))

	return r
}

func run(cfg *config.Config) error {
	if !cfg.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}

	reg := services.NewRegistry(services.NewThemeClient(cfg.ThemeEndpoint, cfg.ThemeAPIKey))
	router := setupRouter(cfg, reg)

	logger.Infof("bingohost v%s listening on %s", releaseVersion, cfg.Addr())
	return router.Run(cfg.Addr())
}

func main() {
	config.LoadEnv()
	cfg := &config.Config{}
	cobra.CheckErr(newCmd(cfg).Execute())
}
