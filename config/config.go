package config

import (
	"flag"
	"net"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
)

type Config struct {
	Addr         string
	DBUrl        string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	FrontendURL  string
	TokenSecret  string
	SessionTTL   time.Duration
	Debug        bool
}

// ParseFlags reads configuration from command line flags, falling back to
// environment variables (a .env file is loaded first when present, without
// overriding already-set variables).
func ParseFlags() (cfg Config, err error) {
	if _, statErr := os.Stat(".env"); statErr == nil {
		if loadErr := godotenv.Load(); loadErr != nil {
			err = multierror.Append(err, loadErr)
		}
	}

	var host string
	flag.StringVar(&host, "host", envOr("HOST", "0.0.0.0"), "listen host name")
	var port uint
	flag.UintVar(&port, "port", envUintOr("PORT", 3001), "listen port number")
	flag.StringVar(&cfg.DBUrl, "db-url", envOr("DB_URL", "gridforms.sqlite"), "path to SQLite3 DB file")
	flag.StringVar(&cfg.ClientID, "client-id", os.Getenv("AIRTABLE_CLIENT_ID"), "Airtable OAuth client id")
	flag.StringVar(&cfg.ClientSecret, "client-secret", os.Getenv("AIRTABLE_CLIENT_SECRET"), "Airtable OAuth client secret")
	flag.StringVar(&cfg.RedirectURI, "redirect-uri", os.Getenv("AIRTABLE_REDIRECT_URI"), "OAuth callback URL, must match the dev console exactly")
	flag.StringVar(&cfg.FrontendURL, "frontend-url", envOr("FRONTEND_URL", "http://localhost:3000"), "frontend base URL for OAuth redirects")
	flag.StringVar(&cfg.TokenSecret, "token-secret", os.Getenv("TOKEN_SECRET"), "secret key for session token signing")
	var ttl uint
	flag.UintVar(&ttl, "session-ttl", envUintOr("SESSION_TTL", 86400), "session cookie TTL in seconds")
	flag.BoolVar(&cfg.Debug, "debug", false, "log at DEBUG level")
	flag.Parse()

	cfg.Addr = net.JoinHostPort(host, strconv.Itoa(int(port)))
	cfg.SessionTTL = time.Duration(ttl) * time.Second

	for _, required := range []struct{ name, value string }{
		{"-client-id", cfg.ClientID},
		{"-client-secret", cfg.ClientSecret},
		{"-redirect-uri", cfg.RedirectURI},
		{"-token-secret", cfg.TokenSecret},
	} {
		if required.value == "" {
			err = multierror.Append(err, missingParam(required.name))
		}
	}

	return
}

type missingParam string

func (p missingParam) Error() string {
	return "missing parameter " + string(p)
}

func (cfg Config) Url() (url string) {
	url = cfg.Addr
	url = regexp.MustCompile(`^0.0.0.0`).ReplaceAllString(url, "localhost")
	url = "http://" + url
	return
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envUintOr(key string, fallback uint) uint {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			return uint(n)
		}
	}
	return fallback
}
