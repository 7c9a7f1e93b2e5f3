package marketplace

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/markethub/marketplace-sync/config"
)

// CredentialResolver разрешает учетные данные маркетплейса из конфигурации
// процесса. Результат кэшируется в памяти с TTL, чтобы не перечитывать
// конфигурацию на каждый товар пакета.
type CredentialResolver struct {
	cfg   *config.Config
	cache *gocache.Cache
}

// NewCredentialResolver создает резолвер с кэшем на TTL из конфигурации
func NewCredentialResolver(cfg *config.Config) *CredentialResolver {
	ttl := cfg.Sync.CredentialsTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CredentialResolver{
		cfg:   cfg,
		cache: gocache.New(ttl, 2*ttl),
	}
}

// Resolve возвращает учетные данные маркетплейса. Имя сравнивается строго:
// "MercadoLivre" и "mercadolivre" - разные ключи конфигурации.
func (r *CredentialResolver) Resolve(marketplace string) (config.MarketplaceCredentials, error) {
	if cached, ok := r.cache.Get(marketplace); ok {
		return cached.(config.MarketplaceCredentials), nil
	}

	creds, ok := r.cfg.MarketplaceCredentials(marketplace)
	if !ok {
		return config.MarketplaceCredentials{}, fmt.Errorf("credentials for marketplace %q are not configured", marketplace)
	}

	r.cache.Set(marketplace, creds, gocache.DefaultExpiration)
	return creds, nil
}

// Invalidate сбрасывает кэшированные учетные данные маркетплейса.
// Вызывается после обновления токена, чтобы следующий Resolve увидел
// актуальную конфигурацию.
func (r *CredentialResolver) Invalidate(marketplace string) {
	r.cache.Delete(marketplace)
}

// RefreshToken запрашивает новый access token по протоколу client credentials.
// Используется, когда маркетплейс ответил 401 на текущий токен подключения.
func (r *CredentialResolver) RefreshToken(ctx context.Context, marketplace string) (*oauth2.Token, error) {
	creds, err := r.Resolve(marketplace)
	if err != nil {
		return nil, err
	}
	if creds.TokenURL == "" {
		return nil, fmt.Errorf("marketplace %q has no token endpoint configured", marketplace)
	}

	oauthCfg := &clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     creds.TokenURL,
	}

	token, err := oauthCfg.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token for marketplace %s: %w", marketplace, err)
	}

	return token, nil
}
