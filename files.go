/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"embed"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

func contentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".css":
		return "text/css; charset=utf-8"
	case ".html":
		return "text/html; charset=utf-8"
	case ".js":
		return "text/javascript; charset=utf-8"
	case ".png":
		return "image/png"
	case ".svg":
		return "image/svg+xml"
	case ".webmanifest":
		return "application/manifest+json"
	case ".woff2":
		return "font/woff2"
	}

	return "application/octet-stream"
}

// serveEmbedded writes name from fsys, reporting whether it existed.
func serveEmbedded(cfg *Config, fsys embed.FS, name string, w http.ResponseWriter, r *http.Request, errs chan<- error) bool {
	startTime := time.Now()

	data, err := fsys.ReadFile(name)
	if err != nil {
		return false
	}

	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
	w.Header().Set("Content-Type", contentType(name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	securityHeaders(cfg, w)

	written, err := w.Write(data)
	if err != nil {
		errs <- err

		return true
	}

	cfg.logger.WithFields(logrus.Fields{
		"file":     name,
		"size":     humanize.Bytes(uint64(written)),
		"remote":   realIP(r),
		"duration": time.Since(startTime).Round(time.Microsecond),
	}).Debug("served file")

	return true
}
