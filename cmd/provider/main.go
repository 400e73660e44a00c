package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SendRequest mirrors the gateway's provider wire contract.
type SendRequest struct {
	MessageID    string                 `json:"message_id" binding:"required"`
	Channel      string                 `json:"channel" binding:"required"`
	To           string                 `json:"to" binding:"required"`
	TemplateCode string                 `json:"template_code"`
	Subject      string                 `json:"subject"`
	Payload      map[string]interface{} `json:"payload"`
}

// SendResponse is the synchronous provider verdict for one message.
type SendResponse struct {
	Success           bool       `json:"success"`
	ProviderMessageID string     `json:"provider_message_id,omitempty"`
	Delivered         bool       `json:"delivered,omitempty"`
	DeliveredAt       *time.Time `json:"delivered_at,omitempty"`
	ProviderErrorCode string     `json:"provider_error_code,omitempty"`
	ProviderMessage   string     `json:"provider_message,omitempty"`
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status       string    `json:"status"`
	ProviderID   string    `json:"provider_id"`
	Timestamp    time.Time `json:"timestamp"`
	SuccessRate  float64   `json:"success_rate"`
	DeliveryRate float64   `json:"delivery_rate"`
}

// MockProvider simulates a downstream messaging provider. Failures are drawn
// from the real WhatsApp Business error code space so the dispatcher's retry
// classification can be exercised end to end.
type MockProvider struct {
	successRate  float64
	deliveryRate float64
	minDelay     time.Duration
	maxDelay     time.Duration
	providerID   string
	rng          *rand.Rand
}

// NewMockProvider creates a new mock provider instance
func NewMockProvider(successRate, deliveryRate float64, minDelay, maxDelay time.Duration) *MockProvider {
	return &MockProvider{
		successRate:  successRate,
		deliveryRate: deliveryRate,
		minDelay:     minDelay,
		maxDelay:     maxDelay,
		providerID:   "MOCK_PROVIDER_" + uuid.New().String()[:8],
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// simulateSend simulates accepting and delivering one message
func (m *MockProvider) simulateSend(req *SendRequest) *SendResponse {
	delay := m.randomDelay()

	// Template sends hit the faster, pre-approved pipeline
	if req.TemplateCode != "" {
		delay = delay / 2
	}

	time.Sleep(delay)

	response := &SendResponse{}

	if m.shouldSucceed() {
		response.Success = true
		response.ProviderMessageID = "wamid." + uuid.New().String()

		// Some messages get an immediate delivery receipt
		if m.rng.Float64() < m.deliveryRate {
			now := time.Now()
			response.Delivered = true
			response.DeliveredAt = &now
		}

		log.Info().
			Str("message_id", req.MessageID).
			Str("channel", req.Channel).
			Str("to", req.To).
			Dur("delay", delay).
			Bool("delivered", response.Delivered).
			Msg("Message accepted")
	} else {
		response.ProviderErrorCode = m.randomErrorCode()
		response.ProviderMessage = m.errorMessage(response.ProviderErrorCode)

		log.Warn().
			Str("message_id", req.MessageID).
			Str("to", req.To).
			Str("error_code", response.ProviderErrorCode).
			Msg("Message rejected")
	}

	return response
}

func (m *MockProvider) randomDelay() time.Duration {
	delta := m.maxDelay - m.minDelay
	randomDelta := time.Duration(m.rng.Int63n(int64(delta)))
	return m.minDelay + randomDelta
}

func (m *MockProvider) shouldSucceed() bool {
	return m.rng.Float64() < m.successRate
}

func (m *MockProvider) randomErrorCode() string {
	errorCodes := []string{
		"130429", // rate limit hit
		"131016", // service unavailable
		"131026", // undeliverable recipient
		"131047", // re-engagement required
		"131049", // healthy ecosystem throttling
		"131053", // media upload error
		"132000", // template parameter mismatch
	}
	return errorCodes[m.rng.Intn(len(errorCodes))]
}

func (m *MockProvider) errorMessage(code string) string {
	messages := map[string]string{
		"130429": "Cloud API message throughput has been reached",
		"131016": "Service temporarily unavailable",
		"131026": "Message undeliverable, recipient may not exist on this channel",
		"131047": "More than 24 hours have passed since the recipient last replied",
		"131049": "Message deferred to maintain healthy ecosystem engagement",
		"131053": "Media upload failed",
		"132000": "Template parameter count mismatch",
	}

	if msg, ok := messages[code]; ok {
		return msg
	}
	return "Unknown error occurred"
}

// Handler struct holds the mock provider and routes
type Handler struct {
	provider *MockProvider
}

func NewHandler(provider *MockProvider) *Handler {
	return &Handler{provider: provider}
}

// SendMessage handles single message send requests
func (h *Handler) SendMessage(c *gin.Context) {
	var req SendRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	log.Info().
		Str("message_id", req.MessageID).
		Str("channel", req.Channel).
		Str("template", req.TemplateCode).
		Msg("Received send request")

	response := h.provider.simulateSend(&req)

	statusCode := http.StatusOK
	if !response.Success {
		statusCode = http.StatusAccepted // 202: accepted but rejected by channel
	}

	c.JSON(statusCode, response)
}

// HealthCheck handles health check requests
func (h *Handler) HealthCheck(c *gin.Context) {
	// Simulate 5% downtime
	if h.provider.rng.Float64() < 0.05 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"error":  "Provider temporarily unavailable",
		})
		return
	}

	c.JSON(http.StatusOK, HealthResponse{
		Status:       "healthy",
		ProviderID:   h.provider.providerID,
		Timestamp:    time.Now(),
		SuccessRate:  h.provider.successRate,
		DeliveryRate: h.provider.deliveryRate,
	})
}

// UpdateConfig allows changing provider configuration at runtime
func (h *Handler) UpdateConfig(c *gin.Context) {
	var config struct {
		SuccessRate  *float64 `json:"success_rate"`
		DeliveryRate *float64 `json:"delivery_rate"`
	}

	if err := c.ShouldBindJSON(&config); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	if config.SuccessRate != nil {
		if *config.SuccessRate >= 0 && *config.SuccessRate <= 1.0 {
			h.provider.successRate = *config.SuccessRate
			log.Info().Float64("rate", *config.SuccessRate).Msg("Updated success rate")
		}
	}

	if config.DeliveryRate != nil {
		if *config.DeliveryRate >= 0 && *config.DeliveryRate <= 1.0 {
			h.provider.deliveryRate = *config.DeliveryRate
			log.Info().Float64("rate", *config.DeliveryRate).Msg("Updated delivery rate")
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"message":       "Configuration updated",
		"success_rate":  h.provider.successRate,
		"delivery_rate": h.provider.deliveryRate,
	})
}

// SetupRouter configures all routes
func SetupRouter(handler *Handler) *gin.Engine {
	router := gin.Default()

	// Add request logging middleware
	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", duration).
			Msg("Request processed")
	})

	// API routes
	v1 := router.Group("/api/v1")
	{
		v1.POST("/messages/send", handler.SendMessage)
		v1.GET("/health", handler.HealthCheck)
		v1.PUT("/config", handler.UpdateConfig)
	}

	// Root health check
	router.GET("/health", handler.HealthCheck)

	return router
}

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Get configuration from environment
	port := getEnv("PORT", "8082")
	successRate := getEnvFloat("SUCCESS_RATE", 0.95)
	deliveryRate := getEnvFloat("DELIVERY_RATE", 0.8)
	minDelay := getEnvDuration("MIN_DELAY", 50*time.Millisecond)
	maxDelay := getEnvDuration("MAX_DELAY", 500*time.Millisecond)

	log.Info().
		Str("port", port).
		Float64("success_rate", successRate).
		Float64("delivery_rate", deliveryRate).
		Dur("min_delay", minDelay).
		Dur("max_delay", maxDelay).
		Msg("Starting Mock Message Provider")

	// Create mock provider
	provider := NewMockProvider(successRate, deliveryRate, minDelay, maxDelay)
	handler := NewHandler(provider)
	router := SetupRouter(handler)

	// Setup HTTP server
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%f", &f); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
