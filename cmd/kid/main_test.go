package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kid-livraison/parcel/internal/app"
	_ "github.com/kid-livraison/parcel/testing"
)

func TestMainSkipsStartupInTestMode(t *testing.T) {
	app.RefreshTestMode()
	assert.True(t, app.InTestMode())
	assert.NotPanics(t, main)
}
