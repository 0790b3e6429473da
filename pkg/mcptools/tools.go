// SPDX-FileCopyrightText: Copyright 2025 Sellermesh, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package mcptools exposes identity, profile, region, oauth, and cache
// operations as MCP tools. Each tool is a thin adapter over the auth
// manager; no tool holds state of its own.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/sellermesh/adsgate/pkg/auth"
	"github.com/sellermesh/adsgate/pkg/oauthflow"
	"github.com/sellermesh/adsgate/pkg/regions"
	"github.com/sellermesh/adsgate/pkg/tokenstore"
)

// Handler wires the MCP tool surface to the auth manager and, when
// configured, the interactive OAuth flow.
type Handler struct {
	manager *auth.Manager
	flow    *oauthflow.Flow
}

// NewHandler creates the tool handler. The flow may be nil when the direct
// provider is fully configured from the environment.
func NewHandler(manager *auth.Manager, flow *oauthflow.Flow) *Handler {
	return &Handler{manager: manager, flow: flow}
}

// RegisterTools adds every tool to the MCP server.
func (h *Handler) RegisterTools(s *server.MCPServer) {
	s.AddTool(mcp.Tool{
		Name:        "identity_list",
		Description: "List the identities reachable through the active auth provider",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"identity_type": map[string]interface{}{
					"type":        "string",
					"description": "Optional provider-specific identity type filter",
				},
			},
		},
	}, h.identityList)

	s.AddTool(mcp.Tool{
		Name:        "identity_set",
		Description: "Make an identity the active one for subsequent API calls",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"identity_id": map[string]interface{}{
					"type":        "string",
					"description": "ID of the identity to activate",
				},
			},
			Required: []string{"identity_id"},
		},
	}, h.identitySet)

	s.AddTool(mcp.Tool{
		Name:        "identity_active",
		Description: "Show the currently active identity",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, h.identityActive)

	s.AddTool(mcp.Tool{
		Name:        "profile_set",
		Description: "Set the Amazon Ads profile (scope) id for the active identity",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"profile_id": map[string]interface{}{
					"type":        "string",
					"description": "Profile id used as the API scope header",
				},
			},
			Required: []string{"profile_id"},
		},
	}, h.profileSet)

	s.AddTool(mcp.Tool{
		Name:        "profile_get",
		Description: "Show the effective profile (scope) id and whether it was set explicitly",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, h.profileGet)

	s.AddTool(mcp.Tool{
		Name:        "profile_clear",
		Description: "Clear the active identity's explicit profile, falling back to the default",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, h.profileClear)

	s.AddTool(mcp.Tool{
		Name:        "region_active",
		Description: "Show the effective Amazon Ads region and its API endpoint",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, h.regionActive)

	s.AddTool(mcp.Tool{
		Name:        "oauth_start",
		Description: "Start the interactive Login-with-Amazon authorization flow",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, h.oauthStart)

	s.AddTool(mcp.Tool{
		Name:        "oauth_status",
		Description: "Check the status of an interactive authorization attempt",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session id returned by oauth_start",
				},
			},
			Required: []string{"session_id"},
		},
	}, h.oauthStatus)

	s.AddTool(mcp.Tool{
		Name:        "cache_invalidate",
		Description: "Invalidate cached tokens, optionally narrowed by identity or token kind",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"identity_id": map[string]interface{}{
					"type":        "string",
					"description": "Only invalidate tokens for this identity",
				},
				"kind": map[string]interface{}{
					"type":        "string",
					"description": "Only invalidate tokens of this kind (refresh, access, provider_jwt)",
				},
			},
		},
	}, h.cacheInvalidate)
}

func (h *Handler) identityList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		IdentityType string `json:"identity_type"`
	}
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	identities, err := h.manager.ListIdentities(ctx, auth.IdentityFilter{Type: args.IdentityType})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list identities: %v", err)), nil
	}
	return jsonResult(map[string]interface{}{
		"identities": identities,
		"count":      len(identities),
	})
}

func (h *Handler) identitySet(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	identityID, err := request.RequireString("identity_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := h.manager.SetActiveIdentity(ctx, identityID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to set identity: %v", err)), nil
	}
	return jsonResult(map[string]interface{}{
		"active_identity": identityID,
		"region":          h.manager.ActiveRegion(),
	})
}

func (h *Handler) identityActive(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	active, ok := h.manager.ActiveIdentity()
	if !ok {
		return jsonResult(map[string]interface{}{
			"active": false,
			"hint":   "no identity selected, use identity_set",
		})
	}
	return jsonResult(map[string]interface{}{
		"active":   true,
		"identity": active,
		"region":   h.manager.ActiveRegion(),
	})
}

func (h *Handler) profileSet(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	profileID, err := request.RequireString("profile_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	h.manager.SetProfile(profileID)
	return jsonResult(map[string]interface{}{"profile_id": profileID})
}

func (h *Handler) profileGet(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	profile, explicit := h.manager.Profile()
	return jsonResult(map[string]interface{}{
		"profile_id": profile,
		"explicit":   explicit,
	})
}

func (h *Handler) profileClear(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h.manager.ClearProfile()
	profile, _ := h.manager.Profile()
	return jsonResult(map[string]interface{}{
		"cleared":    true,
		"profile_id": profile,
	})
}

func (h *Handler) regionActive(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	region := h.manager.ActiveRegion()
	return jsonResult(map[string]interface{}{
		"region":       region,
		"display_name": regions.DisplayName(region),
		"endpoint":     regions.APIEndpoint(region),
	})
}

func (h *Handler) oauthStart(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if h.flow == nil {
		return mcp.NewToolResultError("interactive authorization is not configured for this provider"), nil
	}

	sess, err := h.flow.Start("")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to start oauth flow: %v", err)), nil
	}
	return jsonResult(map[string]interface{}{
		"session_id": sess.ID,
		"auth_url":   sess.AuthURL,
		"message":    "Visit the URL to authorize. The callback is handled automatically.",
	})
}

func (h *Handler) oauthStatus(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if h.flow == nil {
		return mcp.NewToolResultError("interactive authorization is not configured for this provider"), nil
	}

	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	sess, err := h.flow.Status(sessionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to check status: %v", err)), nil
	}
	return jsonResult(sess)
}

func (h *Handler) cacheInvalidate(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		IdentityID string `json:"identity_id"`
		Kind       string `json:"kind"`
	}
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	filter := tokenstore.Filter{IdentityID: args.IdentityID}
	if args.Kind != "" {
		switch kind := tokenstore.Kind(args.Kind); kind {
		case tokenstore.KindRefresh, tokenstore.KindAccess, tokenstore.KindProviderJWT:
			filter.Kind = kind
		default:
			return mcp.NewToolResultError(fmt.Sprintf("unknown token kind %q", args.Kind)), nil
		}
	}

	removed := h.manager.InvalidateTokens(filter)
	return jsonResult(map[string]interface{}{"invalidated": removed})
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
