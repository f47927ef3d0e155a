package home

import (
	"context"
	"errors"
	"strings"

	"github.com/disgoorg/disgo/bot"
	"github.com/leeineian/minstrel/proc/conn"
	"github.com/leeineian/minstrel/proc/guild"
	"github.com/leeineian/minstrel/proc/pipeline"
	"github.com/leeineian/minstrel/proc/player"
	"github.com/leeineian/minstrel/proc/resolver"
	"github.com/leeineian/minstrel/proc/search"
	"github.com/leeineian/minstrel/proc/sleep"
	"github.com/leeineian/minstrel/proc/titles"
	"github.com/leeineian/minstrel/sys"
)

// App is everything the handlers share. It is filled once by Wire before the
// gateway opens.
type App struct {
	Client     *bot.Client
	Config     *sys.Config
	Registry   *guild.Registry
	Pipeline   *pipeline.Pipeline
	Player     *player.Player
	Voice      *conn.Voice
	Supervisor *conn.Supervisor
	Titles     *titles.Store
	Search     *search.Searcher
	Sleep      *sleep.Scheduler
}

var app *App

func Wire(a *App) { app = a }

var errInvalidInput = errors.New("input is not a playable link, ID or title")

type titleLookup interface {
	Lookup(ctx context.Context, title string) (string, bool, error)
}

type firstSearcher interface {
	First(ctx context.Context, query string) (search.Result, error)
}

func (a *App) sources() (titleLookup, firstSearcher) {
	var t titleLookup
	var s firstSearcher
	if a.Titles != nil {
		t = a.Titles
	}
	if a.Search != nil {
		s = a.Search
	}
	return t, s
}

// resolveQuery turns user input into a source ID. Links win, then stored
// titles, then bare IDs, then the first search hit. A stored title may look
// exactly like an ID, so titles are checked before the ID shape.
func resolveQuery(ctx context.Context, query string, t titleLookup, s firstSearcher) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", errInvalidInput
	}
	ref, isRef := resolver.Resolve(query)
	if resolver.LooksLikeURL(query) || (isRef && !resolver.LooksLikeID(query)) {
		if isRef {
			return ref, nil
		}
		return "", errInvalidInput
	}

	if t != nil {
		id, ok, err := t.Lookup(ctx, query)
		if err != nil && !isRef {
			return "", err
		}
		if ok {
			return id, nil
		}
	}
	if isRef {
		return ref, nil
	}

	if s != nil {
		r, err := s.First(ctx, query)
		if errors.Is(err, search.ErrNoResults) {
			return "", errInvalidInput
		}
		if err != nil {
			return "", err
		}
		return r.ID, nil
	}
	return "", errInvalidInput
}
