package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// envFile is loaded into the process environment when present.
var envFile = ".env"

func lookup(keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := os.LookupEnv(k); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

// parseEnv overlays CHAT_* variables. PORT, JWT_SECRET and FRONTEND_ADDRESS
// are accepted as fallbacks for deployments that already set them.
// Malformed numeric or duration values panic, like malformed flags.
func parseEnv(config *Config) {
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			panic(err)
		}
	}

	if v, ok := lookup("CHAT_HTTP_ADDR"); ok {
		config.HTTPAddr = v
	} else if v, ok := lookup("PORT"); ok {
		config.HTTPAddr = ":" + v
	}

	vars := []struct {
		dst  *string
		keys []string
	}{
		{&config.GRPCAddr, []string{"CHAT_GRPC_ADDR"}},
		{&config.DatabaseDSN, []string{"CHAT_DATABASE_DSN", "DATABASE_URL"}},
		{&config.SecretKey, []string{"CHAT_SECRET_KEY", "JWT_SECRET"}},
		{&config.FrontendOrigin, []string{"CHAT_FRONTEND_ORIGIN", "FRONTEND_ADDRESS"}},
		{&config.RedisURL, []string{"CHAT_REDIS_URL"}},
		{&config.S3RootUser, []string{"CHAT_S3_ROOT_USER"}},
		{&config.S3RootPassword, []string{"CHAT_S3_ROOT_PASSWORD"}},
		{&config.S3Bucket, []string{"CHAT_S3_BUCKET"}},
		{&config.S3Region, []string{"CHAT_S3_REGION"}},
		{&config.S3BaseEndpoint, []string{"CHAT_S3_BASE_ENDPOINT"}},
		{&config.LogLevel, []string{"CHAT_LOG_LEVEL"}},
	}
	for _, s := range vars {
		if v, ok := lookup(s.keys...); ok {
			*s.dst = v
		}
	}

	if v, ok := lookup("CHAT_ACCESS_TOKEN_TTL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			panic(err)
		}
		config.AccessTokenValidityDuration = d
	}

	if v, ok := lookup("CHAT_MAX_UPLOAD_SIZE"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			panic(err)
		}
		config.MaxUploadSize = n
	}
}
