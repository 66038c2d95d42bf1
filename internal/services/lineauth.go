package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// IdentityClaims is the verified identity extracted from the messaging
// platform's ID token.
type IdentityClaims struct {
	Subject     string
	DisplayName string
	Email       string
}

type PlatformAuthProvider interface {
	AuthCodeURL(state, nonce string) string
	ExchangeAndVerify(ctx context.Context, code, nonce string) (IdentityClaims, error)
}

type PlatformOIDCConfig struct {
	ChannelID     string
	ChannelSecret string
	RedirectURL   string
	IssuerURL     string
	Scopes        []string
}

// PlatformOIDC performs the OIDC code flow against the messaging
// platform's login service.
type PlatformOIDC struct {
	oidc        *oidc.Provider
	verifier    *oidc.IDTokenVerifier
	oauthConfig oauth2.Config
}

func NewPlatformOIDC(ctx context.Context, cfg PlatformOIDCConfig) (*PlatformOIDC, error) {
	if strings.TrimSpace(cfg.ChannelID) == "" || strings.TrimSpace(cfg.ChannelSecret) == "" {
		return nil, errors.New("channel id and secret are required")
	}
	if strings.TrimSpace(cfg.RedirectURL) == "" || strings.TrimSpace(cfg.IssuerURL) == "" {
		return nil, errors.New("redirect url and issuer url are required")
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("discovering platform oidc provider: %w", err)
	}

	oauthConfig := oauth2.Config{
		ClientID:     cfg.ChannelID,
		ClientSecret: cfg.ChannelSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     provider.Endpoint(),
		Scopes:       cfg.Scopes,
	}

	verifier := provider.Verifier(&oidc.Config{ClientID: cfg.ChannelID})

	return &PlatformOIDC{
		oidc:        provider,
		verifier:    verifier,
		oauthConfig: oauthConfig,
	}, nil
}

func (p *PlatformOIDC) AuthCodeURL(state, nonce string) string {
	return p.oauthConfig.AuthCodeURL(state, oidc.Nonce(nonce))
}

func (p *PlatformOIDC) ExchangeAndVerify(ctx context.Context, code, nonce string) (IdentityClaims, error) {
	token, err := p.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return IdentityClaims{}, fmt.Errorf("exchanging authorization code: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return IdentityClaims{}, errors.New("token response missing id_token")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return IdentityClaims{}, fmt.Errorf("verifying id token: %w", err)
	}
	if idToken.Nonce != nonce {
		return IdentityClaims{}, errors.New("id token nonce mismatch")
	}

	var claims struct {
		Name    string `json:"name"`
		Email   string `json:"email"`
		Picture string `json:"picture"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return IdentityClaims{}, fmt.Errorf("parsing id token claims: %w", err)
	}

	return IdentityClaims{
		Subject:     idToken.Subject,
		DisplayName: claims.Name,
		Email:       claims.Email,
	}, nil
}
