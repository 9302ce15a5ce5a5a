package viewer

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dl-alexandre/bimview/internal/api"
	"github.com/dl-alexandre/bimview/internal/auth"
	"github.com/dl-alexandre/bimview/internal/config"
	"github.com/dl-alexandre/bimview/internal/logging"
	"github.com/dl-alexandre/bimview/internal/model"
	"github.com/dl-alexandre/bimview/internal/model/gltf"
	"github.com/dl-alexandre/bimview/internal/model/ifc"
	"github.com/dl-alexandre/bimview/internal/store"
	"github.com/dl-alexandre/bimview/internal/store/gdrive"
	"github.com/dl-alexandre/bimview/internal/store/graph"
	s3store "github.com/dl-alexandre/bimview/internal/store/s3"
	"github.com/dl-alexandre/bimview/internal/utils"
	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// DefaultParsers registers the IFC and glTF parsers
func DefaultParsers() *model.Registry {
	r := model.NewRegistry()
	g := gltf.New()
	r.Register(model.FormatIFC, ifc.New())
	r.Register(model.FormatGLTF, g)
	r.Register(model.FormatGLB, g)
	return r
}

// Backend bundles a file store with the token provider guarding it. Tokens
// is nil for backends that sign requests themselves.
type Backend struct {
	Store  store.FileStore
	Tokens auth.TokenProvider
}

// BackendOptions controls how a backend is assembled
type BackendOptions struct {
	Profile string
	// Interactive is consulted when no usable session is stored. Nil
	// makes a missing session an error.
	Interactive auth.TokenProvider
	// Transport wraps outgoing HTTP, e.g. the debug transport
	Transport http.RoundTripper
	Logger    logging.Logger
}

// NewAuthManager creates the credential manager for cfg's backend. S3
// has no OAuth provider and gets nil.
func NewAuthManager(cfg *config.Config, logger logging.Logger) (*auth.Manager, error) {
	if cfg.Backend == utils.BackendS3 {
		return nil, nil
	}
	dir, err := config.GetConfigDir()
	if err != nil {
		return nil, err
	}
	p, err := auth.ProviderFor(cfg)
	if err != nil {
		return nil, err
	}
	mgr := auth.NewManagerWithOptions(dir, auth.ManagerOptions{Logger: logger})
	mgr.SetProvider(p)
	return mgr, nil
}

// NewBackend builds the file store named by cfg.Backend
func NewBackend(ctx context.Context, cfg *config.Config, mgr *auth.Manager, opts BackendOptions) (*Backend, error) {
	if opts.Logger == nil {
		opts.Logger = logging.NewNoOpLogger()
	}
	if opts.Profile == "" {
		opts.Profile = cfg.DefaultProfile
	}

	switch cfg.Backend {
	case utils.BackendS3:
		var hc *http.Client
		if opts.Transport != nil {
			hc = &http.Client{Transport: opts.Transport, Timeout: cfg.GetRequestTimeout()}
		}
		s, err := s3store.New(ctx, s3store.Options{
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			UsePathStyle:    cfg.S3.UsePathStyle,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			MaxRetries:      cfg.MaxRetries,
			HTTPClient:      hc,
			Profile:         opts.Profile,
			Logger:          opts.Logger,
		})
		if err != nil {
			return nil, err
		}
		return &Backend{Store: s}, nil

	case utils.BackendGraph, utils.BackendGDrive:
		if mgr == nil {
			return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeAuthRequired,
				fmt.Sprintf("the %s backend needs a credential manager", cfg.Backend)).Build())
		}
		tokens := auth.NewTokenProvider(mgr, opts.Profile, opts.Interactive, opts.Logger)
		ts := auth.TokenSource(ctx, tokens)

		if cfg.Backend == utils.BackendGraph {
			return &Backend{
				Store: graph.NewClient(ts, graph.Options{
					Profile:      opts.Profile,
					MaxRetries:   cfg.MaxRetries,
					RetryWaitMin: cfg.GetRetryBaseDelay(),
					Timeout:      cfg.GetRequestTimeout(),
					Transport:    opts.Transport,
					Logger:       opts.Logger,
				}),
				Tokens: tokens,
			}, nil
		}

		base := opts.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		hc := &http.Client{
			Transport: &oauth2.Transport{Source: ts, Base: base},
			Timeout:   cfg.GetRequestTimeout(),
		}
		svc, err := drive.NewService(ctx, option.WithHTTPClient(hc))
		if err != nil {
			return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeAuthRequired,
				"failed to create Drive service: "+err.Error()).Build())
		}
		client := api.NewClient(svc, cfg.MaxRetries, cfg.RetryBaseDelay, opts.Logger)
		return &Backend{Store: gdrive.New(client, opts.Profile), Tokens: tokens}, nil
	}

	return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
		fmt.Sprintf("unknown backend %q", cfg.Backend)).Build())
}
