package server

import "embed"

// templates contains the embedded HTML templates.
//
//go:embed templates/*
var templates embed.FS
