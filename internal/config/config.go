package config // package config loads application configuration from environment variables

import (
	"log"     // log is used to report configuration errors and halt execution
	"os"      // os provides access to environment variables
	"strconv" // strconv converts strings to other types
	"time"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  The types reflect how the values are used in
// the application: strings for identifiers and secrets, numbers for rates
// and timeouts.
type Config struct {
	Env       string // application environment (e.g. "dev", "prod")
	Port      string // HTTP port to listen on
	DBUser    string // database username
	DBPass    string // database password (optional)
	DBHost    string // database host address
	DBPort    string // database port number
	DBName    string // database name
	JWTSecret string // secret used to verify client JWTs

	AmqpURL string // RabbitMQ broker URL for the notification queues

	ServiceFee float64 // marketplace fee rate applied on top of the seller price

	OpsEmail      string // operations inbox for manual-intervention alerts
	OutboundEmail string // sender address for transactional email
	MailgunURL    string // Mailgun messages endpoint for the sending domain
	MailgunAPIKey string // Mailgun API key

	StripeAPIKey        string // Stripe secret key
	StripeWebhookSecret string // Stripe webhook signing secret

	PayPalBaseURL   string // PayPal API base URL (sandbox or live)
	PayPalClientID  string // PayPal REST client id
	PayPalSecret    string // PayPal REST secret
	PayPalWebhookID string // PayPal webhook id used for signature verification

	FCMServerKey string // FCM server key for push delivery

	HTTPTimeout time.Duration // timeout for outbound gateway calls
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
	return Config{
		Env:       must("APP_ENV"),      // environment (dev/test/prod)
		Port:      must("APP_PORT"),     // port to bind the HTTP server
		DBUser:    must("DB_USER"),      // database user
		DBPass:    os.Getenv("DB_PASS"), // database password (empty allowed)
		DBHost:    must("DB_HOST"),      // database host
		DBPort:    must("DB_PORT"),      // database port
		DBName:    must("DB_NAME"),      // database name
		JWTSecret: must("JWT_SECRET"),   // secret used for verifying JWTs

		AmqpURL: must("AMQP_URL"),

		ServiceFee: mustFloat("SERVICE_FEE"),

		OpsEmail:      must("OPS_EMAIL"),
		OutboundEmail: must("OUTBOUND_EMAIL"),
		MailgunURL:    must("MAILGUN_URL"),
		MailgunAPIKey: must("MAILGUN_API_KEY"),

		StripeAPIKey:        must("STRIPE_API_KEY"),
		StripeWebhookSecret: must("STRIPE_WEBHOOK_SECRET"),

		PayPalBaseURL:   must("PAYPAL_BASE_URL"),
		PayPalClientID:  must("PAYPAL_CLIENT_ID"),
		PayPalSecret:    must("PAYPAL_SECRET"),
		PayPalWebhookID: must("PAYPAL_WEBHOOK_ID"),

		FCMServerKey: must("FCM_SERVER_KEY"),

		HTTPTimeout: time.Duration(mustInt("HTTP_TIMEOUT_SEC")) * time.Second,
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

// mustInt is like must() but converts the retrieved string into an integer.
// If conversion fails, the application logs a fatal error and exits.
func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}

// mustFloat is like must() but converts the retrieved string into a float.
func mustFloat(key string) float64 {
	s := must(key)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		log.Fatalf("invalid float for %s: %q", key, s)
	}
	return f
}
