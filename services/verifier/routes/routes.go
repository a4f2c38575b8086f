// Copyright (C) 2025 Moats AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/moats-ai/moats/services/verifier/handlers"
)

// SetupRoutes registers the verifier's HTTP surface on the router.
func SetupRoutes(router *gin.Engine, verifier handlers.Verifier) {
	router.GET("/health", handlers.HealthCheck)

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.POST("/verify", handlers.HandleVerify(verifier))
	}
}
