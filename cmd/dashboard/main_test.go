package main

import (
	"testing"

	"github.com/spmonitor/dashboard/internal/app"
	_ "github.com/spmonitor/dashboard/internal/testing/guard"
)

func TestMainSkipsInTestMode(t *testing.T) {
	if !app.InTestMode() {
		t.Fatal("expected guard to enable test mode")
	}
	main()
}
