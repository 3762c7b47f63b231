package main

import (
	"os"

	"ember-chat/backend/internal/app"
)

// @title           Ember Chat Backend API
// @version         1.0
// @description     Local backend for the Ember desktop chat client: conversation
// @description     storage, model management and the streaming response
// @description     ingestion engine.
// @BasePath        /api
func main() {
	os.Exit(app.Run())
}
