package command

import (
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/yaml"
	"github.com/urfave/cli/v3"

	"github.com/vasialek/openaio-api/internal/config"
	mylog "github.com/vasialek/openaio-api/internal/log"
)

// settings are the resolved values of the serve flags.
type settings struct {
	Addr            string
	LogLevel        string
	LogFormat       string
	CommunityURL    string
	ShopURL         string
	HTTPTimeout     time.Duration
	ShutdownTimeout time.Duration
	TTL             ttls
}

type ttls struct {
	Drops        time.Duration
	DropProducts time.Duration
	Categories   time.Duration
	Products     time.Duration
}

func settingsFrom(cmd *cli.Command) settings {
	return settings{
		Addr:            cmd.String("addr"),
		LogLevel:        cmd.String("log-level"),
		LogFormat:       cmd.String("log-format"),
		CommunityURL:    cmd.String("community-url"),
		ShopURL:         cmd.String("shop-url"),
		HTTPTimeout:     cmd.Duration("http-timeout"),
		ShutdownTimeout: cmd.Duration("shutdown-timeout"),
		TTL: ttls{
			Drops:        cmd.Duration("drops-ttl"),
			DropProducts: cmd.Duration("drop-products-ttl"),
			Categories:   cmd.Duration("categories-ttl"),
			Products:     cmd.Duration("products-ttl"),
		},
	}
}

// configKeys maps flag names to their config file keys.
var configKeys = map[string]string{
	"addr":              "addr",
	"log-level":         "log_level",
	"log-format":        "log_format",
	"community-url":     "upstream.community",
	"shop-url":          "upstream.shop",
	"http-timeout":      "upstream.timeout",
	"drops-ttl":         "ttl.drops",
	"drop-products-ttl": "ttl.drop_products",
	"categories-ttl":    "ttl.categories",
	"products-ttl":      "ttl.products",
	"shutdown-timeout":  "shutdown_timeout",
}

// sources looks a flag up in the environment, then in the config file.
func sources(cfg config.Type, env, flag string) cli.ValueSourceChain {
	return cli.NewValueSourceChain(
		cli.EnvVar(env),
		yaml.YAML(configKeys[flag], altsrc.StringSourcer(cfg.Source)),
	)
}

// unknownKeys returns the keys of cfg that no flag reads.
func unknownKeys(cfg config.Type) []string {
	known := make(map[string]bool, len(configKeys))
	for _, k := range configKeys {
		known[k] = true
	}
	var unknown []string
	for _, k := range cfg.Keys() {
		if !known[k] {
			unknown = append(unknown, k)
		}
	}
	return unknown
}

func serveFlags(cfg config.Type) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "config file",
			Sources: cli.EnvVars(config.EnvVar),
		},
		&cli.StringFlag{
			Name:    "addr",
			Usage:   "listen address",
			Sources: sources(cfg, "OPENAIO_ADDR", "addr"),
			Value:   ":8081",
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "debug, info, warn or error",
			Sources: sources(cfg, mylog.EnvVar, "log-level"),
			Value:   "info",
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "text or json",
			Sources: sources(cfg, "OPENAIO_LOG_FORMAT", "log-format"),
			Value:   "text",
		},
		&cli.StringFlag{
			Name:    "community-url",
			Usage:   "base URL of the drop list site",
			Sources: sources(cfg, "OPENAIO_COMMUNITY_URL", "community-url"),
			Value:   "https://supremecommunity.com",
		},
		&cli.StringFlag{
			Name:    "shop-url",
			Usage:   "base URL of the shop",
			Sources: sources(cfg, "OPENAIO_SHOP_URL", "shop-url"),
			Value:   "http://supremenewyork.com",
		},
		&cli.DurationFlag{
			Name:    "http-timeout",
			Usage:   "timeout of one upstream request",
			Sources: sources(cfg, "OPENAIO_HTTP_TIMEOUT", "http-timeout"),
			Value:   30 * time.Second,
		},
		&cli.DurationFlag{
			Name:    "drops-ttl",
			Usage:   "how long the drop list is served from cache",
			Sources: sources(cfg, "OPENAIO_DROPS_TTL", "drops-ttl"),
			Value:   10 * time.Minute,
		},
		&cli.DurationFlag{
			Name:    "drop-products-ttl",
			Usage:   "how long the products of a drop are served from cache",
			Sources: sources(cfg, "OPENAIO_DROP_PRODUCTS_TTL", "drop-products-ttl"),
			Value:   10 * time.Minute,
		},
		&cli.DurationFlag{
			Name:    "categories-ttl",
			Usage:   "how long the category list is served from cache",
			Sources: sources(cfg, "OPENAIO_CATEGORIES_TTL", "categories-ttl"),
			Value:   9 * time.Second,
		},
		&cli.DurationFlag{
			Name:    "products-ttl",
			Usage:   "how long the products of a category are served from cache",
			Sources: sources(cfg, "OPENAIO_PRODUCTS_TTL", "products-ttl"),
			Value:   6 * time.Second,
		},
		&cli.DurationFlag{
			Name:    "shutdown-timeout",
			Usage:   "time given to in-flight requests on shutdown",
			Sources: sources(cfg, "OPENAIO_SHUTDOWN_TIMEOUT", "shutdown-timeout"),
			Value:   10 * time.Second,
		},
	}
}
