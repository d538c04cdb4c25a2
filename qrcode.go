/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"net/http"
	"strconv"

	"github.com/Seednode/showdown/games/battle"
	"github.com/julienschmidt/httprouter"
	qrcode "github.com/skip2/go-qrcode"
)

const qrSize = 320

// lobbyURL rebuilds the public address of a lobby page, honoring TLS
// termination at a proxy.
func lobbyURL(cfg *Config, r *http.Request, code string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	return scheme + "://" + r.Host + cfg.prefix + "/lobby/" + code
}

func serveLobbyQR(cfg *Config, registry *battle.Registry, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		l, err := registry.Get(p.ByName("code"))
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))

			return
		}

		png, err := qrcode.Encode(lobbyURL(cfg, r, l.Code()), qrcode.Medium, qrSize)
		if err != nil {
			cfg.logger.WithError(err).WithField("lobby", l.Code()).Error("qr generation failed")
			http.Error(w, "qr generation failed", http.StatusInternalServerError)

			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Length", strconv.Itoa(len(png)))
		w.Header().Set("Cache-Control", "no-store")
		securityHeaders(cfg, w)

		_, err = w.Write(png)
		if err != nil {
			errs <- err

			return
		}
	}
}
