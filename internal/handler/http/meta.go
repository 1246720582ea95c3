package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Health is the liveness probe.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Categories accepted by the marketplace.
var manifestCategories = []string{
	"financial", "frontend-dev", "backend-dev", "fullstack-dev",
	"pm", "designer", "marketing", "secretary",
	"video-maker", "productivity", "content", "research", "others",
}

// Manifest serves the AI discovery document at /.well-known/ai-manifest.json.
func Manifest(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "ClawFactory",
		"description": "OpenClaw Copy Registry - Share and discover AI agent configurations",
		"version":     "1.0.0",
		"api_base":    "/api",
		"endpoints": gin.H{
			"copies":      "/api/copies",
			"search":      "/api/search?q=...",
			"categories":  "/api/categories",
			"copy_detail": "/api/copies/:id",
		},
		"cli": gin.H{
			"name":    "clawfactory",
			"install": "clawfactory install <copy-id>",
			"list":    "clawfactory list",
			"search":  "clawfactory search <query>",
		},
		"categories": manifestCategories,
		"features": []string{
			"complete_snapshot", "version_history", "forking",
			"private_copies", "star_system",
		},
	})
}
