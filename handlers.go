package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"
)

const clientCookieName = "clientId"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func identityCookie(id string) *http.Cookie {
	return &http.Cookie{
		Name:     clientCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// getOrSetClientID resolves the caller's opaque client id, issuing a cookie
// on first contact. The cookie is the sole basis of identity.
func getOrSetClientID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(clientCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	id := uuid.NewString()
	http.SetCookie(w, identityCookie(id))

	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response body")
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := errorStatus(err)

	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Msg("Request failed")
	} else {
		log.Debug().Err(err).Msg("Request rejected")
	}

	writeJSON(w, status, map[string]string{"message": err.Error()})
}

// withGame resolves the :id route parameter to a live session before
// invoking the wrapped handler.
func withGame(cfg *Config, reg *Registry, fn func(w http.ResponseWriter, r *http.Request, ps httprouter.Params, g *Game, clientID string)) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		securityHeaders(cfg, w)

		game, err := reg.Get(ps.ByName("id"))
		if err != nil {
			writeError(w, err)
			return
		}

		fn(w, r, ps, game, getOrSetClientID(w, r))
	}
}

type playerRequest struct {
	Name string `json:"name"`
	Role Role   `json:"role"`
	Team Team   `json:"team"`
}

func parsePlayer(r *http.Request, clientID string) (Player, error) {
	var body playerRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return Player{}, fmt.Errorf("%w: malformed player payload", ErrInvalidOperation)
	}

	if body.Name == "" {
		return Player{}, fmt.Errorf("%w: a player name is required", ErrInvalidOperation)
	}

	switch body.Role {
	case "":
		body.Role = RoleOperative
	case RoleSpymaster, RoleOperative:
	default:
		return Player{}, fmt.Errorf("%w: unknown role %q", ErrInvalidOperation, body.Role)
	}

	switch body.Team {
	case "":
		body.Team = TeamRed
	case TeamRed, TeamBlue:
	default:
		return Player{}, fmt.Errorf("%w: unknown team %q", ErrInvalidOperation, body.Team)
	}

	return Player{
		ID:   clientID,
		Name: body.Name,
		Role: body.Role,
		Team: body.Team,
	}, nil
}

func registerAPI(cfg *Config, mux *httprouter.Router, reg *Registry, supply *WordSupply) {
	mux.GET(cfg.prefix+"/me", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		securityHeaders(cfg, w)
		writeJSON(w, http.StatusOK, map[string]string{"clientId": getOrSetClientID(w, r)})
	})

	mux.GET(cfg.prefix+"/wordList", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		securityHeaders(cfg, w)

		type listInfo struct {
			ID    string `json:"id"`
			Name  string `json:"name"`
			Count int    `json:"count"`
		}

		lists := make([]listInfo, 0)
		for _, list := range supply.All() {
			lists = append(lists, listInfo{
				ID:    list.ID,
				Name:  list.Name,
				Count: list.Size(),
			})
		}

		writeJSON(w, http.StatusOK, lists)
	})

	mux.POST(cfg.prefix+"/game", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		securityHeaders(cfg, w)

		var body struct {
			WordListID string `json:"wordListId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && err != io.EOF {
			writeError(w, fmt.Errorf("%w: malformed request body", ErrInvalidOperation))
			return
		}

		game, err := reg.Create(body.WordListID)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, game.View(getOrSetClientID(w, r)))
	})

	mux.GET(cfg.prefix+"/game/:id", withGame(cfg, reg, func(w http.ResponseWriter, r *http.Request, ps httprouter.Params, g *Game, clientID string) {
		writeJSON(w, http.StatusOK, g.View(clientID))
	}))

	mux.GET(cfg.prefix+"/game/:id/events", withGame(cfg, reg, func(w http.ResponseWriter, r *http.Request, ps httprouter.Params, g *Game, clientID string) {
		// the upgrade writes its own handshake response, so a cookie set on
		// w would be lost; a first-contact caller gets it via the handshake
		header := http.Header{}
		if _, err := r.Cookie(clientCookieName); err != nil {
			header.Set("Set-Cookie", identityCookie(clientID).String())
		}

		conn, err := upgrader.Upgrade(w, r, header)
		if err != nil {
			log.Error().Err(err).Str("gameID", g.ID()).Msg("Event stream upgrade failed")
			return
		}

		c := &client{
			conn:     conn,
			send:     make(chan Envelope, 32),
			clientID: clientID,
		}

		g.hub.Connect(c)
		log.Info().Str("gameID", g.ID()).Str("clientID", clientID).Str("remote", realIP(r)).Msg("Event stream opened")

		go c.writePump()
		c.readPump(g.hub)
	}))

	mux.POST(cfg.prefix+"/game/:id/join", withGame(cfg, reg, func(w http.ResponseWriter, r *http.Request, ps httprouter.Params, g *Game, clientID string) {
		p, err := parsePlayer(r, clientID)
		if err != nil {
			writeError(w, err)
			return
		}

		g.JoinTable(p)
		w.WriteHeader(http.StatusNoContent)
	}))

	mux.POST(cfg.prefix+"/game/:id/lobby", withGame(cfg, reg, func(w http.ResponseWriter, r *http.Request, ps httprouter.Params, g *Game, clientID string) {
		p, err := parsePlayer(r, clientID)
		if err != nil {
			writeError(w, err)
			return
		}

		g.JoinLobby(p)
		w.WriteHeader(http.StatusNoContent)
	}))

	mux.POST(cfg.prefix+"/game/:id/selectTile/:index", withGame(cfg, reg, func(w http.ResponseWriter, r *http.Request, ps httprouter.Params, g *Game, clientID string) {
		index, err := strconv.Atoi(ps.ByName("index"))
		if err != nil {
			writeError(w, fmt.Errorf("%w: tile index must be a number", ErrInvalidOperation))
			return
		}

		if err := g.SelectTile(clientID, index); err != nil {
			writeError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}))

	mux.POST(cfg.prefix+"/game/:id/pass", withGame(cfg, reg, func(w http.ResponseWriter, r *http.Request, ps httprouter.Params, g *Game, clientID string) {
		if err := g.Pass(clientID); err != nil {
			writeError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}))

	mux.POST(cfg.prefix+"/game/:id/newRound", withGame(cfg, reg, func(w http.ResponseWriter, r *http.Request, ps httprouter.Params, g *Game, clientID string) {
		if err := g.StartNewRound(clientID); err != nil {
			writeError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}))

	mux.POST(cfg.prefix+"/game/:id/rotateKey", withGame(cfg, reg, func(w http.ResponseWriter, r *http.Request, ps httprouter.Params, g *Game, clientID string) {
		if err := g.RotateKey(clientID); err != nil {
			writeError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}))

	mux.GET(cfg.prefix+"/game/:id/logs", withGame(cfg, reg, func(w http.ResponseWriter, r *http.Request, ps httprouter.Params, g *Game, clientID string) {
		writeJSON(w, http.StatusOK, g.Logs())
	}))

	mux.POST(cfg.prefix+"/game/:id/logMessage", withGame(cfg, reg, func(w http.ResponseWriter, r *http.Request, ps httprouter.Params, g *Game, clientID string) {
		var body struct {
			Message string `json:"message"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Message == "" {
			writeError(w, fmt.Errorf("%w: a message is required", ErrInvalidOperation))
			return
		}

		writeJSON(w, http.StatusOK, g.AddLogMessage(clientID, body.Message))
	}))

	mux.GET(cfg.prefix+"/game/:id/suggestion", withGame(cfg, reg, func(w http.ResponseWriter, r *http.Request, ps httprouter.Params, g *Game, clientID string) {
		suggestion, err := g.GetSuggestion(r.Context(), clientID)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, suggestion)
	}))

	mux.GET(cfg.prefix+"/game/:id/qr", withGame(cfg, reg, func(w http.ResponseWriter, r *http.Request, ps httprouter.Params, g *Game, clientID string) {
		scheme := cfg.scheme()
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		url := scheme + "://" + r.Host + strings.TrimSuffix(r.URL.Path, "/qr")

		png, err := qrcode.Encode(url, qrcode.Medium, 320)
		if err != nil {
			writeError(w, err)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}))

	if cfg.images != "" {
		mux.ServeFiles(cfg.prefix+"/static/images/*filepath", http.Dir(cfg.images))
	}
}
