/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Seednode/showdown/games/battle"
	"github.com/sirupsen/logrus"
)

func newLogger(cfg *Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: logDate,
	})

	logger.SetLevel(logrus.InfoLevel)
	if cfg.verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	return logger
}

// drainErrors logs write failures reported by handlers until errs is closed.
func drainErrors(logger *logrus.Logger, errs <-chan error) {
	for err := range errs {
		logger.WithError(err).Debug("failed to write response")
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, battle.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, battle.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, battle.ErrUnauthorized):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func newPage(title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(getFavicon())
	htmlBody.WriteString(`<style>`)
	htmlBody.WriteString(`html,body,a{display:block;height:100%;width:100%;text-decoration:none;color:inherit;cursor:auto;}</style>`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", title))
	htmlBody.WriteString(fmt.Sprintf("<body><a href=\"/\">%s</a></body></html>", body))

	return htmlBody.String()
}
