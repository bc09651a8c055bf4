package config

import "go.uber.org/zap"

// InitApp runs the production-only checks after the application is built.
// It never fails startup; it only reports settings that will bite later.
func (c Config) InitApp(logger *zap.Logger) {
	if c.Name != ProfileProd {
		return
	}
	if c.JWTSecret == DefaultJWTSecret {
		logger.Warn("JWT secret is the development default; set JWT_SECRET_KEY")
	}
	if c.UsesSQLiteFile() {
		logger.Warn("production profile is using SQLite; set DATABASE_URL", zap.String("database_uri", c.DatabaseURI))
	}
	if c.OpenAI.APIKey == "" {
		logger.Warn("OPENAI_API_KEY not set; RAG answers use the extractive fallback")
	}
}
