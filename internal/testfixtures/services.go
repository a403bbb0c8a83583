package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/conference-companion/internal/application"
	"github.com/example/conference-companion/internal/catalog"
	"github.com/example/conference-companion/internal/feed"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator(""),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("")
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// SelectionServiceDeps captures dependencies for constructing a selection service.
type SelectionServiceDeps struct {
	Selections  application.SelectionRepository
	IDGenerator func() string
	Now         func() time.Time
	Logger      *slog.Logger
}

// NewSelectionService builds a selection service whose feed ids come from
// the factory generator unless overridden.
func (f *ServiceFactory) NewSelectionService(deps SelectionServiceDeps) *application.SelectionService {
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = f.IDGenerator.NextFunc()
	}
	now := deps.Now
	if now == nil {
		now = f.Clock.NowFunc()
	}
	return application.NewSelectionServiceWithLogger(deps.Selections, idGen, now, deps.Logger)
}

// FeedServiceDeps captures dependencies for constructing a feed service.
type FeedServiceDeps struct {
	Selections application.SelectionReader
	Catalog    application.CatalogSource
	Encoder    application.CalendarEncoder
	Logger     *slog.Logger
}

// NewFeedService builds a feed service. A nil catalog serves an empty
// snapshot and a nil encoder uses the default iCalendar encoder.
func (f *ServiceFactory) NewFeedService(deps FeedServiceDeps) *application.FeedService {
	source := deps.Catalog
	if source == nil {
		source = catalog.NewStaticStore(nil)
	}
	encoder := deps.Encoder
	if encoder == nil {
		encoder = feed.NewEncoder(feed.Options{})
	}
	return application.NewFeedServiceWithLogger(deps.Selections, source, encoder, f.Clock.NowFunc(), deps.Logger)
}

// AuthServiceDeps captures dependencies for constructing an auth service.
type AuthServiceDeps struct {
	Accounts    application.AccountRepository
	Challenges  application.ChallengeRepository
	Sender      application.LinkSender
	Provisioner application.Provisioner
	Config      application.AuthConfig
	Logger      *slog.Logger
}

// FastArgon2Params keeps token digests cheap in tests.
var FastArgon2Params = application.Argon2idParams{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16}

// NewAuthService builds an auth service on the factory clock. An empty
// secret is replaced with a fixed test secret and digests use
// FastArgon2Params unless configured.
func (f *ServiceFactory) NewAuthService(deps AuthServiceDeps) *application.AuthService {
	config := deps.Config
	if len(config.SessionSecret) == 0 {
		config.SessionSecret = []byte("test-session-secret")
	}
	if config.Argon2 == (application.Argon2idParams{}) {
		config.Argon2 = FastArgon2Params
	}
	return application.NewAuthServiceWithLogger(
		deps.Accounts,
		deps.Challenges,
		deps.Sender,
		deps.Provisioner,
		config,
		f.Clock.NowFunc(),
		deps.Logger,
	)
}
