package container

import "time"

// Options is the service configuration. humacli maps every field to a flag
// (e.g. --fetch-timeout-ms) and an environment variable (SERVICE_FETCH_TIMEOUT_MS).
type Options struct {
	Port           int    `default:"9876"                         help:"Port to listen on"                                 short:"p"`
	WindowSize     int    `default:"10"                           help:"Distinct values kept per category"                 short:"w"`
	FetchTimeoutMs int    `default:"500"                          help:"Upstream fetch deadline in milliseconds"           short:"t"`
	UpstreamURL    string `default:"http://20.244.56.144/numbers" help:"Base URL of the numbers provider"                  short:"u"`
	UpstreamToken  string `default:""                             help:"Bearer token sent to the provider"`
	RedisAddr      string `default:""                             help:"Redis server address, empty disables Redis"        short:"r"`
	RateLimit      int    `default:"0"                            help:"Requests per minute per client, 0 disables"`
	DatabaseURL    string `default:""                             help:"PostgreSQL URL for the event store, empty logs only"`
	LogFormat      string `default:"console"                      help:"Log format: console or json"`
	LogLevel       string `default:"info"                         help:"Log level: debug, info, warn or error"`
}

// FetchTimeout returns the upstream deadline as a duration.
func (o *Options) FetchTimeout() time.Duration {
	return time.Duration(o.FetchTimeoutMs) * time.Millisecond
}
