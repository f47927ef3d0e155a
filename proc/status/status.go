// Package status serves a small read-only JSON API about the bot's guilds.
package status

import (
	"context"
	"errors"
	"net/http"
	"time"

	jwt "github.com/dgrijalva/jwt-go"
	"github.com/disgoorg/snowflake/v2"
	"github.com/dustin/go-humanize"
	"github.com/labstack/echo"
	"github.com/labstack/echo/middleware"
	"github.com/leeineian/minstrel/proc/guild"
	"github.com/leeineian/minstrel/sys"
)

type Options struct {
	// Secret enables bearer-token auth on the guild routes.
	Secret    string
	StartedAt time.Time
	// Downloads reports how many downloads the pipeline ran; optional.
	Downloads func() int64
}

type guildView struct {
	ID           string   `json:"id"`
	Phase        string   `json:"phase"`
	NowPlaying   string   `json:"now_playing,omitempty"`
	PositionSec  float64  `json:"position_sec"`
	Pending      []string `json:"pending"`
	VoiceChannel string   `json:"voice_channel,omitempty"`
	TextChannel  string   `json:"text_channel,omitempty"`
	SkipKeywords []string `json:"skip_keywords"`
}

func viewOf(s guild.Snapshot) guildView {
	v := guildView{
		ID:           s.GuildID.String(),
		Phase:        s.Phase.String(),
		NowPlaying:   s.NowPlaying,
		PositionSec:  s.Position.Seconds(),
		Pending:      make([]string, 0, len(s.Pending)),
		SkipKeywords: s.SkipKeywords,
	}
	if v.SkipKeywords == nil {
		v.SkipKeywords = []string{}
	}
	for _, e := range s.Pending {
		v.Pending = append(v.Pending, e.ID)
	}
	if s.VoiceChannel != 0 {
		v.VoiceChannel = s.VoiceChannel.String()
	}
	if s.TextChannel != 0 {
		v.TextChannel = s.TextChannel.String()
	}
	return v
}

// NewRouter builds the API over registry.
func NewRouter(registry *guild.Registry, opts Options) *echo.Echo {
	if opts.StartedAt.IsZero() {
		opts.StartedAt = time.Now()
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(requestLogger)

	api := e.Group("/api")
	api.GET("/health", func(c echo.Context) error {
		body := echo.Map{
			"status": "ok",
			"guilds": registry.Len(),
			"uptime": humanize.RelTime(opts.StartedAt, time.Now(), "", ""),
		}
		if opts.Downloads != nil {
			body["downloads"] = opts.Downloads()
		}
		return c.JSON(http.StatusOK, body)
	})

	guilds := api.Group("/guilds")
	if opts.Secret != "" {
		guilds.Use(middleware.JWT([]byte(opts.Secret)))
	}
	guilds.GET("", func(c echo.Context) error {
		snaps := registry.Snapshots()
		out := make([]guildView, 0, len(snaps))
		for _, s := range snaps {
			out = append(out, viewOf(s))
		}
		return c.JSON(http.StatusOK, out)
	})
	guilds.GET("/:id", func(c echo.Context) error {
		id, err := snowflake.Parse(c.Param("id"))
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid guild id"})
		}
		st, ok := registry.Lookup(id)
		if !ok {
			return c.JSON(http.StatusNotFound, echo.Map{"message": "unknown guild"})
		}
		return c.JSON(http.StatusOK, viewOf(st.Snapshot()))
	})

	return e
}

func requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		sys.LogDebug("%s %s %d (%s)", c.Request().Method, c.Request().URL.Path, c.Response().Status, time.Since(start))
		return nil
	}
}

// IssueToken signs a bearer token for the guild routes.
func IssueToken(secret, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("status secret is not configured")
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	})
	return token.SignedString([]byte(secret))
}

// Daemon returns a starter for sys.RegisterDaemon that serves e on addr.
// An empty addr disables the API.
func Daemon(e *echo.Echo, addr string) func(ctx context.Context) (bool, func(), func()) {
	return func(ctx context.Context) (bool, func(), func()) {
		if addr == "" {
			return false, nil, nil
		}
		run := func() {
			sys.LogHTTP(sys.MsgHTTPListening, addr)
			if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				sys.LogHTTP(sys.MsgHTTPStopped, err)
			}
		}
		shutdown := func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := e.Shutdown(sctx); err != nil {
				sys.LogHTTP(sys.MsgHTTPStopped, err)
			}
		}
		return true, run, shutdown
	}
}
