package main

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/yohanns/storefront/internal/account"
	"github.com/yohanns/storefront/internal/api"
	"github.com/yohanns/storefront/internal/artist"
	"github.com/yohanns/storefront/internal/assign"
	"github.com/yohanns/storefront/internal/auth"
	"github.com/yohanns/storefront/internal/catalog"
	"github.com/yohanns/storefront/internal/chat"
	"github.com/yohanns/storefront/internal/config"
	"github.com/yohanns/storefront/internal/insights"
	"github.com/yohanns/storefront/internal/media"
	"github.com/yohanns/storefront/internal/newsletter"
	"github.com/yohanns/storefront/internal/orders"
	"github.com/yohanns/storefront/internal/realtime"
	"github.com/yohanns/storefront/internal/store"
	"github.com/yohanns/storefront/internal/store/sqlite"
	"github.com/yohanns/storefront/internal/store/supabase"
	"github.com/yohanns/storefront/internal/users"
	"github.com/yohanns/storefront/internal/workflow"
)

// backend is the persistence and identity layer selected by store.driver.
type backend struct {
	store    store.Store
	verifier auth.Verifier // nil when tokens cannot be checked
	dir      auth.UserAdmin
	bucket   media.Bucket
	files    *media.DirBucket // set when uploads are served by this process
}

// openBackend connects to the configured store. Tokens are verified
// locally when a JWT secret is set; on Supabase they otherwise go through
// the Auth API.
func openBackend(ctx context.Context, c *config.Config, log *zap.Logger) (*backend, error) {
	b := &backend{}
	switch c.Store.Driver {
	case config.DriverSupabase:
		st, err := supabase.New(c.Supabase.URL, c.Supabase.ServiceRoleKey)
		if err != nil {
			return nil, err
		}
		authClient := st.Client().Auth
		b.store = st
		b.dir = auth.NewSupabaseDirectory(authClient.WithToken(c.Supabase.ServiceRoleKey))
		if c.Supabase.JWTSecret != "" {
			b.verifier = auth.NewJWTVerifier(c.Supabase.JWTSecret)
		} else {
			b.verifier = auth.NewRemoteVerifier(authClient)
		}
		b.bucket = media.NewSupabaseBucket(st.Client().Storage, c.Media.Bucket)
		log.Info("using supabase store", zap.String("url", c.Supabase.URL), zap.String("bucket", c.Media.Bucket))
	case config.DriverSQLite:
		db, err := sqlite.OpenContext(ctx, c.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		b.store = db
		b.dir = auth.MapDirectory{}
		if c.Supabase.JWTSecret != "" {
			b.verifier = auth.NewJWTVerifier(c.Supabase.JWTSecret)
		}
		dir, err := media.NewDirBucket(c.Media.Dir, localPrefix(c.Media.PublicURL))
		if err != nil {
			db.Close()
			return nil, err
		}
		b.bucket, b.files = dir, dir
		log.Info("using sqlite store", zap.String("path", c.Store.SQLitePath), zap.String("media", c.Media.Dir))
	default:
		return nil, fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if b.verifier == nil {
		log.Warn("no token verifier configured; authenticated routes will answer 503")
	}
	return b, nil
}

// localPrefix returns the URL path local uploads are served under.
func localPrefix(publicURL string) string {
	p := strings.TrimRight(publicURL, "/")
	if !strings.HasPrefix(p, "/") {
		return "/media"
	}
	return p
}

func (b *backend) Close() error {
	return b.store.Close()
}

// services builds the domain services over b. pub may be nil.
func (b *backend) services(c *config.Config, pub realtime.Publisher, log *zap.Logger) api.Services {
	wf := workflow.NewService(b.store, pub, log.Named("workflow"))
	cat := catalog.NewService(b.store, log.Named("catalog"))
	as := b.assigner(c, pub, log)

	var completer insights.Completer
	if c.Anthropic.APIKey != "" {
		completer = insights.NewAnthropicCompleter(c.Anthropic.APIKey, c.Anthropic.Model)
	}

	return api.Services{
		Catalog: cat,
		Orders: orders.NewService(b.store, orders.Options{
			Workflow:  wf,
			Assigner:  as,
			Stats:     cat,
			Publisher: pub,
			Logger:    log.Named("orders"),
		}),
		Workflow:   wf,
		Assign:     as,
		Artist:     artist.NewService(b.store, pub, log.Named("artist")),
		Chat:       chat.NewService(b.store, b.dir, pub, log.Named("chat")),
		Account:    account.NewService(b.store, log.Named("account")),
		Insights:   insights.NewService(b.store, completer, c.Anthropic.Model, log.Named("insights")),
		Users:      users.NewService(b.dir, b.store, log.Named("users")),
		Newsletter: newsletter.NewService(b.store, log.Named("newsletter")),
		Media:      media.NewService(b.bucket, log.Named("media")),
	}
}

func (b *backend) assigner(c *config.Config, pub realtime.Publisher, log *zap.Logger) *assign.Service {
	return assign.NewService(b.store, assign.Options{
		MaxOpenTasks: c.Assign.MaxOpenTasks,
		Publisher:    pub,
		Logger:       log.Named("assign"),
	})
}
