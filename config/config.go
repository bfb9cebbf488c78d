package config

import (
	"time"

	"github.com/irsalhamdi/storefront/database"
)

type Config struct {
	Web     Web
	DB      database.Config
	Redis   Redis
	Session Session
	Rate    Rate
	Paypal  Paypal
	Stripe  Stripe
}

type Web struct {
	Address         string        `conf:"default:0.0.0.0:8000"`
	ReadTimeout     time.Duration `conf:"default:5s"`
	WriteTimeout    time.Duration `conf:"default:10s"`
	IdleTimeout     time.Duration `conf:"default:120s"`
	ShutdownTimeout time.Duration `conf:"default:20s"`
	CorsOrigin      string
}

type Redis struct {
	Address  string        `conf:"default:localhost:6379"`
	Password string        `conf:"mask"`
	DB       int           `conf:"default:0"`
	StockTTL time.Duration `conf:"default:30s"`
}

type Session struct {
	Lifetime time.Duration `conf:"default:24h"`
}

type Rate struct {
	Burst    int           `conf:"default:20"`
	Interval time.Duration `conf:"default:100ms"`
	Expiry   time.Duration `conf:"default:10m"`
}

type Paypal struct {
	ClientID string
	Secret   string `conf:"mask"`
	URL      string `conf:"default:https://api-m.sandbox.paypal.com"`
	Currency string `conf:"default:USD"`
}

type Stripe struct {
	APISecret     string `conf:"mask"`
	WebhookSecret string `conf:"mask"`
	SuccessURL    string `conf:"default:http://localhost:3000/order/success"`
	CancelURL     string `conf:"default:http://localhost:3000/order/canceled"`
	Currency      string `conf:"default:usd"`
}
