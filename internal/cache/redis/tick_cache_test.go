package redis

import "testing"

func TestTickKey(t *testing.T) {
	tests := []struct {
		exchange, asset string
		want            string
	}{
		{"coinbase", "BTC", "tick:coinbase:BTC"},
		{"binanceus", "ADA", "tick:binanceus:ADA"},
	}
	for _, tt := range tests {
		if got := tickKey(tt.exchange, tt.asset); got != tt.want {
			t.Errorf("tickKey(%q, %q) = %q, want %q", tt.exchange, tt.asset, got, tt.want)
		}
	}
}

func TestConfigOptions(t *testing.T) {
	cfg := Config{
		Addr:       "localhost:6379",
		Password:   "secret",
		DB:         2,
		PoolSize:   8,
		MaxRetries: 4,
	}

	opts := cfg.options()
	if opts.Addr != cfg.Addr || opts.Password != cfg.Password || opts.DB != cfg.DB {
		t.Errorf("options dropped connection fields: %+v", opts)
	}
	if opts.PoolSize != cfg.PoolSize || opts.MaxRetries != cfg.MaxRetries {
		t.Errorf("options dropped pool fields: %+v", opts)
	}
	if opts.TLSConfig != nil {
		t.Error("TLS configured without tls_enabled")
	}

	cfg.TLSEnabled = true
	if cfg.options().TLSConfig == nil {
		t.Error("tls_enabled did not configure TLS")
	}
}
