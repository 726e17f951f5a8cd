package web

import "embed"

// Templates embeds the dashboard HTML templates.
//
//go:embed templates/layouts/*.html templates/partials/*.html templates/pages/*.html
var Templates embed.FS

// Static embeds stylesheets and scripts served under /static.
//
//go:embed static/css/* static/js/*
var Static embed.FS
