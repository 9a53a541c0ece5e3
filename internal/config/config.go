package config // package config loads application configuration from environment variables

import (
	"log"     // log is used to report configuration errors and halt execution
	"os"      // os provides access to environment variables
	"strconv" // strconv converts strings to other types
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  The JWT signing secret is carried here and
// injected into the token codec at startup; it is never exposed as a
// process-wide global.
type Config struct {
	Env              string // application environment (e.g. "dev", "prod")
	Port             string // HTTP port to listen on
	DBUser           string // database username
	DBPass           string // database password (optional)
	DBHost           string // database host address
	DBPort           string // database port number
	DBName           string // database name
	JWTSecret        string // secret used to sign access tokens
	AccessTTLMin     int    // access token time-to-live in minutes
	RefreshTTLDays   int    // refresh token time-to-live in days
	ResetTTLMin      int    // password-reset token time-to-live in minutes
	BcryptCost       int    // bcrypt cost for password hashing
	CircleServiceURL string // base URL of the external circle membership service (optional)
	OAuthEndpoint    string // override for the Google tokeninfo endpoint (optional, tests/stubs)
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.  Optional values fall
// back to sensible defaults.
func Load() Config {
	return Config{
		Env:              must("APP_ENV"),
		Port:             must("APP_PORT"),
		DBUser:           must("DB_USER"),
		DBPass:           os.Getenv("DB_PASS"), // empty allowed
		DBHost:           must("DB_HOST"),
		DBPort:           must("DB_PORT"),
		DBName:           must("DB_NAME"),
		JWTSecret:        must("JWT_SECRET"),
		AccessTTLMin:     intOr("ACCESS_TOKEN_TTL_MIN", 60),
		RefreshTTLDays:   intOr("REFRESH_TOKEN_TTL_DAYS", 7),
		ResetTTLMin:      intOr("RESET_TOKEN_TTL_MIN", 30),
		BcryptCost:       intOr("BCRYPT_COST", 12),
		CircleServiceURL: os.Getenv("CIRCLE_SERVICE_URL"),
		OAuthEndpoint:    os.Getenv("OAUTH_TOKENINFO_URL"),
	}
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// intOr converts an optional environment variable into an integer, falling
// back to def when unset.  A present but malformed value is fatal.
func intOr(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}
