package httpapi

import "storefront-gateway/internal/rbac"

// AgentTool is one endpoint under /api/mcp/tools and the role it needs.
// Local tools are served by the gateway; the rest are proxied upstream.
type AgentTool struct {
	Name  string
	Role  rbac.Role
	Local bool
}

const ToolRevokeAgentKey = "revoke_agent_key"

var AgentTools = []AgentTool{
	{Name: "search_products", Role: rbac.RoleRead},
	{Name: "check_stock", Role: rbac.RoleRead},
	{Name: "catalog", Role: rbac.RoleRead},
	{Name: "get_order_status", Role: rbac.RoleWrite},
	{Name: "manage_cart", Role: rbac.RoleWrite},
	{Name: ToolRevokeAgentKey, Role: rbac.RoleAdmin, Local: true},
}
