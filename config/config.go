package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// This function will Load the ENVIORNMENT VARIABLES from .env if GO_ENV variable is not set
func LoadENV() error {
	goEnv := os.Getenv("GO_ENV")

	if goEnv == "" || goEnv == "development" {
		err := godotenv.Load()
		if err != nil {
			return err
		}
	}

	return nil
}

type EnviornmentVariable struct {
	// All variables
	GO_ENV       string
	DB_USER_NAME string
	DB_PASSWORD  string
	DB_NAME      string
	DB_HOST      string
	DB_PORT      string
	DB_SSL_MODE  string
	PORT         int
	// Redis Configuration
	REDIS_URL string
	// OpenAI Configuration (embeddings, completions, Whisper)
	OPENAI_API_KEY  string
	OPENAI_BASE_URL string
	// Mux Configuration (managed video CDN)
	MUX_TOKEN_ID     string
	MUX_TOKEN_SECRET string
	// Spaces Configuration (uploaded file storage)
	SPACES_ACCESS_KEY string
	SPACES_SECRET_KEY string
	SPACES_BUCKET     string
	SPACES_REGION     string
	SPACES_ENDPOINT   string
	// Ingestion pipeline tuning
	INGEST_WORKERS       int
	CHUNK_TARGET_WORDS   int
	CHUNK_OVERLAP_WORDS  int
	SESSION_FRESHNESS_HR int
	SIMILARITY_FLOOR     float64
	RETRIEVAL_TOP_K      int
	// Policy hook: minimum auto-caption confidence before paid transcription
	// is preferred. Zero keeps the cost-first policy.
	CAPTION_MIN_CONFIDENCE float64
}

func Get() (*EnviornmentVariable, error) {

	port, err := strconv.Atoi(os.Getenv("PORT"))
	if err != nil {
		port = 8080
	}

	// Database defaults
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		dbHost = "localhost"
	}

	dbPort := os.Getenv("DB_PORT")
	if dbPort == "" {
		dbPort = "5432"
	}

	envVariables := &EnviornmentVariable{
		GO_ENV:       os.Getenv("GO_ENV"),
		DB_USER_NAME: os.Getenv("DB_USER_NAME"),
		DB_PASSWORD:  os.Getenv("DB_PASSWORD"),
		DB_NAME:      os.Getenv("DB_NAME"),
		DB_HOST:      dbHost,
		DB_PORT:      dbPort,
		DB_SSL_MODE:  os.Getenv("DB_SSL_MODE"),
		PORT:         port,
		// Redis
		REDIS_URL: os.Getenv("REDIS_URL"),
		// OpenAI
		OPENAI_API_KEY:  os.Getenv("OPENAI_API_KEY"),
		OPENAI_BASE_URL: os.Getenv("OPENAI_BASE_URL"),
		// Mux
		MUX_TOKEN_ID:     os.Getenv("MUX_TOKEN_ID"),
		MUX_TOKEN_SECRET: os.Getenv("MUX_TOKEN_SECRET"),
		// Spaces
		SPACES_ACCESS_KEY: os.Getenv("SPACES_ACCESS_KEY"),
		SPACES_SECRET_KEY: os.Getenv("SPACES_SECRET_KEY"),
		SPACES_BUCKET:     os.Getenv("SPACES_BUCKET"),
		SPACES_REGION:     os.Getenv("SPACES_REGION"),
		SPACES_ENDPOINT:   os.Getenv("SPACES_ENDPOINT"),
		// Pipeline tuning
		INGEST_WORKERS:         envInt("INGEST_WORKERS", 5),
		CHUNK_TARGET_WORDS:     envInt("CHUNK_TARGET_WORDS", 500),
		CHUNK_OVERLAP_WORDS:    envInt("CHUNK_OVERLAP_WORDS", 50),
		SESSION_FRESHNESS_HR:   envInt("SESSION_FRESHNESS_HOURS", 24),
		SIMILARITY_FLOOR:       envFloat("SIMILARITY_FLOOR", 0.7),
		RETRIEVAL_TOP_K:        envInt("RETRIEVAL_TOP_K", 5),
		CAPTION_MIN_CONFIDENCE: envFloat("CAPTION_MIN_CONFIDENCE", 0),
	}

	return envVariables, nil
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func envFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
