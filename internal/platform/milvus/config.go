package milvus

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	URL              string
	CollectionPrefix string
	VectorDim        int
	Timeout          time.Duration
}

type ConfigErrorCode string

const (
	ConfigErrorMissingURL       ConfigErrorCode = "missing_url"
	ConfigErrorInvalidURL       ConfigErrorCode = "invalid_url"
	ConfigErrorMissingVectorDim ConfigErrorCode = "missing_vector_dim"
	ConfigErrorInvalidVectorDim ConfigErrorCode = "invalid_vector_dim"
)

type ConfigError struct {
	Code  ConfigErrorCode
	Value string
	Cause error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "invalid milvus config"
	}
	switch e.Code {
	case ConfigErrorMissingURL:
		return "MILVUS_URL is required"
	case ConfigErrorInvalidURL:
		return fmt.Sprintf(
			"invalid MILVUS_URL=%q; expected absolute URL like http://milvus:19530",
			e.Value,
		)
	case ConfigErrorMissingVectorDim:
		return "MILVUS_VECTOR_DIM is required and must be a positive integer"
	case ConfigErrorInvalidVectorDim:
		return fmt.Sprintf(
			"invalid MILVUS_VECTOR_DIM=%q; expected positive integer",
			e.Value,
		)
	default:
		return "invalid milvus config"
	}
}

func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func ResolveConfigFromEnv() (Config, error) {
	rawDim := strings.TrimSpace(os.Getenv("MILVUS_VECTOR_DIM"))
	dim := 0
	if rawDim != "" {
		parsed, err := strconv.Atoi(rawDim)
		if err != nil {
			return Config{}, &ConfigError{
				Code:  ConfigErrorInvalidVectorDim,
				Value: rawDim,
				Cause: err,
			}
		}
		dim = parsed
	}

	timeoutSeconds := 10
	if raw := strings.TrimSpace(os.Getenv("MILVUS_TIMEOUT_SECONDS")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			timeoutSeconds = parsed
		}
	}

	cfg := Config{
		URL:              strings.TrimSpace(os.Getenv("MILVUS_URL")),
		CollectionPrefix: strings.TrimSpace(os.Getenv("MILVUS_COLLECTION_PREFIX")),
		VectorDim:        dim,
		Timeout:          time.Duration(timeoutSeconds) * time.Second,
	}
	if cfg.CollectionPrefix == "" {
		cfg.CollectionPrefix = "course_knowledge"
	}

	// The partially resolved config is returned alongside the error so a
	// caller with its own vector-dim default can fill it in and revalidate.
	if err := ValidateConfig(cfg, rawDim != ""); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ValidateConfig validates a Milvus config.
// Pass hasRawVectorDim=false when MILVUS_VECTOR_DIM is unset so missing vs
// invalid can be reported separately.
func ValidateConfig(cfg Config, hasRawVectorDim bool) error {
	if cfg.URL == "" {
		return &ConfigError{Code: ConfigErrorMissingURL}
	}
	parsed, err := url.Parse(cfg.URL)
	if err != nil || strings.TrimSpace(parsed.Scheme) == "" || strings.TrimSpace(parsed.Host) == "" {
		return &ConfigError{
			Code:  ConfigErrorInvalidURL,
			Value: cfg.URL,
			Cause: err,
		}
	}
	if !hasRawVectorDim && cfg.VectorDim == 0 {
		return &ConfigError{Code: ConfigErrorMissingVectorDim}
	}
	if cfg.VectorDim <= 0 {
		return &ConfigError{
			Code:  ConfigErrorInvalidVectorDim,
			Value: strconv.Itoa(cfg.VectorDim),
		}
	}
	return nil
}
