package cmd

import (
	"fmt"

	"farmfield/internal/auth"
	"farmfield/internal/config"
	"farmfield/internal/fields"
	"farmfield/internal/geo"
	"farmfield/internal/selection"
	"farmfield/internal/tokencache"

	"github.com/spf13/cobra"
)

// services holds the clients a command works with, built from the loaded
// configuration.
type services struct {
	cfg    config.Config
	auth   *auth.Client
	fields *fields.Client
}

func loadServices(cmd *cobra.Command, opts *options) (*services, error) {
	cfg, err := config.LoadConfig(opts.configDir)
	if err != nil {
		return nil, err
	}
	if opts.tokenDir != "" {
		cfg.TokenDir = opts.tokenDir
	}

	cache, err := tokencache.New(tokencache.Config{Dir: cfg.TokenDir})
	if err != nil {
		return nil, fmt.Errorf("failed to open token cache: %w", err)
	}

	authorizer := opts.authorizer
	if authorizer == nil {
		authorizer = &auth.LoopbackAuthorizer{
			Port: cfg.Provider.RedirectPort,
			Out:  cmd.ErrOrStderr(),
		}
	}
	authClient := auth.NewClient(auth.NewConfig(cfg), cache, auth.WithAuthorizer(authorizer))

	fieldsCfg, err := fields.NewConfig(cfg)
	if err != nil {
		return nil, err
	}

	return &services{
		cfg:    cfg,
		auth:   authClient,
		fields: fields.NewClient(fieldsCfg, authClient),
	}, nil
}

func (s *services) selectionConfig() selection.Config {
	return selection.Config{
		Projector: geo.Projector{Padding: s.cfg.Projection.Padding},
		DefaultField: selection.DefaultField{
			Name:   s.cfg.DefaultField.Name,
			Width:  s.cfg.DefaultField.Width,
			Height: s.cfg.DefaultField.Height,
		},
	}
}
