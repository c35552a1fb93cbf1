// Package builtin registers every module shipped with gabriel-messenger.
package builtin

import (
	"github.com/rcomino/gabriel-messenger/internal/modules"
	"github.com/rcomino/gabriel-messenger/internal/modules/receivers/htmllist"
	"github.com/rcomino/gabriel-messenger/internal/modules/receivers/jsonfeed"
	"github.com/rcomino/gabriel-messenger/internal/modules/receivers/rss"
	"github.com/rcomino/gabriel-messenger/internal/modules/receivers/speedtest"
	"github.com/rcomino/gabriel-messenger/internal/modules/receivers/systemdunits"
	"github.com/rcomino/gabriel-messenger/internal/modules/senders/console"
	"github.com/rcomino/gabriel-messenger/internal/modules/senders/redis"
	"github.com/rcomino/gabriel-messenger/internal/modules/senders/telegram"
	"github.com/rcomino/gabriel-messenger/internal/modules/senders/webhook"
)

// Registry returns a registry with all built-in receivers and senders.
func Registry() *modules.Registry {
	r := modules.NewRegistry()

	r.RegisterReceiver(htmllist.Module, htmllist.New)
	r.RegisterReceiver(rss.Module, rss.New)
	r.RegisterReceiver(jsonfeed.Module, jsonfeed.New)
	r.RegisterReceiver(systemdunits.Module, systemdunits.New)
	r.RegisterReceiver(speedtest.Module, speedtest.New)

	r.RegisterSender(telegram.Module, telegram.New)
	r.RegisterSender(webhook.Module, webhook.New)
	r.RegisterSender(redis.Module, redis.New)
	r.RegisterSender(console.Module, console.New)
	return r
}
